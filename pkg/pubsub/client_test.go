package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/cartsplit-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		name    string
		project string
		kind    string
		input   string
		want    string
	}{
		{"short topic", "proj", "topics", "cs-order-events", "projects/proj/topics/cs-order-events"},
		{"full topic", "proj", "topics", "projects/other/topics/t", "projects/other/topics/t"},
		{"short subscription", "proj", "subscriptions", " analytics ", "projects/proj/subscriptions/analytics"},
		{"empty name", "proj", "topics", "  ", ""},
		{"missing project", "", "topics", "t", ""},
		{"wrong kind keeps prefix check", "proj", "subscriptions", "projects/other/topics/t", "projects/proj/subscriptions/projects/other/topics/t"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := resourceName(tc.project, tc.kind, tc.input); got != tc.want {
				t.Fatalf("resourceName() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	if c.Publisher("t") != nil || c.AnalyticsSubscription() != nil {
		t.Fatal("expected nil handles from nil client")
	}
	if err := c.Ping(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	if _, err := NewClient(context.Background(), config.GCPConfig{ProjectID: " "}, config.PubSubConfig{}, nil); err == nil {
		t.Fatal("expected error without project id")
	}
}

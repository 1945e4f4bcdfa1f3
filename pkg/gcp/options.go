// Package gcp holds what the Google Cloud clients share.
package gcp

import (
	"strings"

	"google.golang.org/api/option"

	"github.com/angelmondragon/cartsplit-backend/pkg/config"
)

// ClientOptions picks explicit credentials when configured. Inline JSON wins
// over a file path; with neither, the SDK falls back to application default
// credentials.
func ClientOptions(cfg config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(cfg.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(cfg.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

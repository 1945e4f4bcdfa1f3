package redis

import "strings"

const keyNamespace = "cs"

// IdempotencyKey namespaces replay records and consumer claims.
func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey("idempotency", scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return buildKey("rate_limit", scope)
}

// WebhookEventKey guards a single gateway delivery against replays.
func (c *Client) WebhookEventKey(gateway, eventID string) string {
	return buildKey("webhook", gateway, eventID)
}

func (c *Client) LockKey(name string) string {
	return buildKey("lock", name)
}

// RoomChannel is the pub/sub channel shared by all of a user's sessions.
func (c *Client) RoomChannel(userID string) string {
	return buildKey("room", userID)
}

func buildKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

package payos

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
)

// Sign computes the PayOS checksum: HMAC-SHA256 over key=value pairs sorted by
// key and joined with '&', hex encoded.
func Sign(checksumKey string, fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatValue(fields[k]))
	}
	mac := hmac.New(sha256.New, []byte(checksumKey))
	mac.Write([]byte(strings.Join(parts, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		if val == "null" || val == "undefined" {
			return ""
		}
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	}
}

// Webhook is the notification PayOS posts after a transfer lands.
type Webhook struct {
	Code      string      `json:"code"`
	Desc      string      `json:"desc"`
	Success   bool        `json:"success"`
	Data      WebhookData `json:"data"`
	Signature string      `json:"signature"`
}

type WebhookData struct {
	OrderCode           int64  `json:"orderCode"`
	Amount              int64  `json:"amount"`
	Description         string `json:"description"`
	Reference           string `json:"reference"`
	TransactionDateTime string `json:"transactionDateTime"`
	PaymentLinkID       string `json:"paymentLinkId"`
	Code                string `json:"code"`
	Desc                string `json:"desc"`
}

// VerifyWebhook decodes body and checks its signature against the data fields.
func (c *Client) VerifyWebhook(body []byte) (*Webhook, error) {
	return VerifyWebhook(c.checksumKey, body)
}

func VerifyWebhook(checksumKey string, body []byte) (*Webhook, error) {
	var raw struct {
		Data      json.RawMessage `json:"data"`
		Signature string          `json:"signature"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payos webhook")
	}
	if raw.Signature == "" || len(raw.Data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "payos webhook signature missing")
	}

	dec := json.NewDecoder(strings.NewReader(string(raw.Data)))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payos webhook data")
	}
	expected := Sign(checksumKey, fields)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(raw.Signature))) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid payos signature")
	}

	var hook Webhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payos webhook")
	}
	return &hook, nil
}

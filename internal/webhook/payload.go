package webhook

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/boardsync/boardsync/internal/github"
)

// DecodePayload parses a webhook request body. GitHub delivers either raw
// JSON or, for form-encoded hooks, a urlencoded body with the JSON in a
// "payload" field.
func DecodePayload(contentType string, body []byte) (*github.WebhookPayload, error) {
	raw := body
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("parse form payload: %w", err)
		}
		payload := values.Get("payload")
		if payload == "" {
			return nil, fmt.Errorf("form payload missing payload field")
		}
		raw = []byte(payload)
	}

	var payload github.WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	return &payload, nil
}

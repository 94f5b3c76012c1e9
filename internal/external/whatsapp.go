package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gardenwatch/internal/types"
)

// WhatsAppConfig holds the configuration for creating a WhatsAppClient.
type WhatsAppConfig struct {
	BaseURL  string
	Token    types.SecretString
	SenderID string
	Timeout  time.Duration
	Backoff  Backoff // zero means a single retry
	Logger   *slog.Logger
}

// WhatsAppClient sends text messages through an HTTP WhatsApp gateway
// (POST {base}/messages with a bearer token).
type WhatsAppClient struct {
	api      *upstream
	baseURL  string
	token    types.SecretString
	senderID string
	logger   *slog.Logger
}

// NewWhatsAppClient creates a WhatsAppClient. Sends are retried at most once
// by default: a duplicated push is worse than a missed one.
func NewWhatsAppClient(cfg WhatsAppConfig) *WhatsAppClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = Backoff{Retries: 1, Min: 500 * time.Millisecond, Max: 2 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WhatsAppClient{
		api:      newUpstream("whatsapp", cfg.Timeout, cfg.Backoff),
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		token:    cfg.Token,
		senderID: cfg.SenderID,
		logger:   cfg.Logger,
	}
}

type whatsAppMessage struct {
	From string       `json:"from,omitempty"`
	To   string       `json:"to"`
	Type string       `json:"type"`
	Text whatsAppText `json:"text"`
}

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppResponse struct {
	ID string `json:"id"`
}

// Send posts one text message. The title is rendered in bold on its own line.
//
// 429 and 5xx answers are retried by the upstream; any other non-2xx answer
// is an ErrCodeUpstreamDispatch.
func (c *WhatsAppClient) Send(ctx context.Context, phone, title, body string) error {
	payload, err := json.Marshal(whatsAppMessage{
		From: c.senderID,
		To:   phone,
		Type: "text",
		Text: whatsAppText{Body: formatWhatsAppText(title, body)},
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal WhatsApp payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create WhatsApp request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.token.Unmask(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.api.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.NewAppError(types.ErrCodeUpstreamDispatch,
			fmt.Sprintf("whatsapp gateway returned %d: %s", resp.StatusCode, bodySnippet(resp)), nil)
	}

	var out whatsAppResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	c.logger.DebugContext(ctx, "whatsapp message accepted", "message_id", out.ID)
	return nil
}

func formatWhatsAppText(title, body string) string {
	switch {
	case body == "":
		return "*" + title + "*"
	case title == "":
		return body
	default:
		return "*" + title + "*\n" + body
	}
}

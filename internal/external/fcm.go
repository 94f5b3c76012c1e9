package external

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"gardenwatch/internal/types"
)

// FCMConfig holds the configuration for creating an FCMSender. Exactly one of
// CredentialsFile and CredentialsBase64 should be set; base64 is meant for
// platforms where mounting a file is awkward.
type FCMConfig struct {
	CredentialsFile   string
	CredentialsBase64 types.SecretString
	// TopicPrefix namespaces per-user topics, e.g. "garden-" + "33612345678".
	TopicPrefix string
	Logger      *slog.Logger
}

// FCMSender pushes notifications to the mobile apps through Firebase Cloud
// Messaging. Each user's devices subscribe to a topic derived from the phone
// number, so the engine needs no device token registry.
type FCMSender struct {
	client      messagingClient
	topicPrefix string
	logger      *slog.Logger
}

// NewFCMSender initializes a Firebase app and its messaging client.
func NewFCMSender(ctx context.Context, cfg FCMConfig) (*FCMSender, error) {
	var opt option.ClientOption
	switch {
	case !cfg.CredentialsBase64.Empty():
		raw, err := base64.StdEncoding.DecodeString(cfg.CredentialsBase64.Unmask())
		if err != nil {
			return nil, fmt.Errorf("decode firebase credentials: %w", err)
		}
		opt = option.WithCredentialsJSON(raw)
	case cfg.CredentialsFile != "":
		opt = option.WithCredentialsFile(cfg.CredentialsFile)
	default:
		return nil, fmt.Errorf("firebase credentials are not configured")
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get firebase messaging client: %w", err)
	}
	return newFCMSender(client, cfg), nil
}

func newFCMSender(client messagingClient, cfg FCMConfig) *FCMSender {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FCMSender{client: client, topicPrefix: cfg.TopicPrefix, logger: logger}
}

// Send publishes one notification to the user's topic.
func (s *FCMSender) Send(ctx context.Context, phone, title, body string) error {
	topic := s.Topic(phone)
	if topic == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "phone number has no usable digits", nil)
	}

	msg := &messaging.Message{
		Topic: topic,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}

	id, err := s.client.Send(ctx, msg)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamDispatch, "fcm send failed", err)
	}
	s.logger.DebugContext(ctx, "fcm message sent", "message_id", id, "topic", topic)
	return nil
}

// Topic maps a phone number to its FCM topic name. Topics only allow
// [a-zA-Z0-9-_.~%], so everything but digits is dropped.
func (s *FCMSender) Topic(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return s.topicPrefix + b.String()
}

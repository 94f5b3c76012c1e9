package external

import (
	"context"

	"firebase.google.com/go/v4/messaging"
)

// ---------------------------------------------------------------------------
// Push transports
// ---------------------------------------------------------------------------

// messagingClient is the slice of *messaging.Client that FCMSender uses.
type messagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Provider names accepted in DISPATCH_PROVIDER and reported by diagnostics.
// WhatsAppClient and FCMSender both satisfy notifications.Sender.
const (
	ProviderWhatsApp = "whatsapp"
	ProviderFCM      = "fcm"
	ProviderNone     = "none"
)

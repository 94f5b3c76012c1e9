// Package notifications delivers persisted notifications to users' devices.
// Delivery is best effort: the Dispatcher reports a boolean and never returns
// an error or panics into the caller.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gardenwatch/internal/types"
)

// DefaultSendTimeout bounds one push attempt including transport retries.
const DefaultSendTimeout = 15 * time.Second

// Sender is a push transport (WhatsApp gateway, FCM).
type Sender interface {
	Send(ctx context.Context, phone, title, body string) error
}

// Config configures a Dispatcher.
type Config struct {
	// Provider is the transport name reported by diagnostics.
	Provider    string
	SendTimeout time.Duration
}

// Dispatcher adapts a Sender to the alert engine's boolean dispatch contract.
type Dispatcher struct {
	sender   Sender
	provider string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. A nil sender yields a dispatcher that is
// never ready and always reports false.
func NewDispatcher(sender Sender, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	provider := cfg.Provider
	if sender == nil || provider == "" {
		provider = "none"
	}
	return &Dispatcher{sender: sender, provider: provider, timeout: timeout, logger: logger}
}

// Ready reports whether a transport is configured.
func (d *Dispatcher) Ready() bool { return d.sender != nil }

// Provider returns the configured transport name.
func (d *Dispatcher) Provider() string { return d.provider }

// Dispatch pushes n to phone using its title and message.
func (d *Dispatcher) Dispatch(ctx context.Context, phone string, n *types.Notification) bool {
	if n == nil {
		return false
	}
	ok := d.SendNotification(ctx, phone, n.Title, n.Message)
	if ok {
		d.logger.InfoContext(ctx, "notification pushed",
			"notification_id", n.ID,
			"notification_type", n.Type,
			"provider", d.provider,
		)
	}
	return ok
}

// SendNotification pushes a raw title/body pair. It returns false when no
// phone number or transport is available, on timeout, on transport error and
// on transport panic.
func (d *Dispatcher) SendNotification(ctx context.Context, phone, title, body string) (ok bool) {
	if phone == "" || d.sender == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "push transport panicked",
				"provider", d.provider,
				"error", fmt.Sprint(r),
			)
			ok = false
		}
	}()

	if err := d.sender.Send(ctx, phone, title, body); err != nil {
		d.logger.WarnContext(ctx, "push failed",
			"provider", d.provider,
			"error", err,
		)
		return false
	}
	return true
}

package notify

import (
	"context"
	"errors"
)

var (
	// ErrChannelTimeout is reported when a channel does not finish within the channel timeout.
	ErrChannelTimeout = errors.New("notification channel timed out")
	// ErrChannelPanic is reported when a sender panics.
	ErrChannelPanic = errors.New("notification channel panicked")
	// ErrFailedToSendEmail wraps transport failures of email senders.
	ErrFailedToSendEmail = errors.New("failed to send email")
	// ErrInvalidConfig is returned by sender constructors.
	ErrInvalidConfig = errors.New("invalid notification config")
)

// Channel names a notification transport.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
)

// Outcome is the result of one channel attempt.
type Outcome struct {
	Channel   Channel `json:"channel"`
	Succeeded bool    `json:"succeeded"`
	Skipped   bool    `json:"skipped,omitempty"`
	Err       error   `json:"-"`
	Error     string  `json:"error,omitempty"`
}

// RecipientSource resolves the administrators who receive critical alerts.
type RecipientSource interface {
	ListAdminRecipients(ctx context.Context) ([]string, error)
}

// EmailSender delivers one HTML email to a set of recipients.
type EmailSender interface {
	Send(ctx context.Context, recipients []string, subject, bodyHTML string) error
}

// PushSender delivers a push notification. Delivery is best effort.
type PushSender interface {
	Send(ctx context.Context, message string)
}

// SMSSender sends a text message, blocking the calling goroutine until done.
type SMSSender interface {
	SendBlocking(message string) error
}

// ResultRecorder receives one call per channel attempt.
type ResultRecorder interface {
	NotificationResult(channel, result string)
}

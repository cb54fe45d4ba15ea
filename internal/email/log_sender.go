package email

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogSender writes messages to the log instead of sending them. It is used
// when no provider is configured.
type LogSender struct{}

// Send logs the message metadata.
func (LogSender) Send(_ context.Context, msg Message) error {
	log.Info().
		Str("subject", msg.Subject).
		Int("html_bytes", len(msg.HTMLBody)).
		Int("text_bytes", len(msg.TextBody)).
		Msg("email (log sender)")
	return nil
}

package mailer

import (
	"context"

	"github.com/rs/zerolog"
)

// Noop accepts every message and delivers nothing.
type Noop struct{}

func (Noop) Send(context.Context, string, string, string) error { return nil }

// Log records that a message would have been sent. The body is never logged
// because it carries a reset token.
type Log struct {
	Logger zerolog.Logger
}

func (m Log) Send(_ context.Context, to, subject, htmlBody string) error {
	m.Logger.Info().
		Str("component", "mailer").
		Str("to", to).
		Str("subject", subject).
		Int("body_bytes", len(htmlBody)).
		Msg("mail not delivered (log mailer)")
	return nil
}

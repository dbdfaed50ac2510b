// Package mailer provides the delivery back ends for reset mail.
//
// [SMTP] speaks to a relay with STARTTLS when offered. [Noop] and [Log] are the
// explicit stand-ins for environments without outbound mail; the engine is
// always handed one of these rather than a nil mailer.
package mailer

// Package email provides the mail transport used to deliver newsletter issues
// and subscription confirmations. Transports do not retry; retry policy
// belongs to the caller.
package email

import (
	"context"
	"errors"
	"fmt"
)

// Message is a single email to one recipient.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// SendError describes a rejected send. Permanent errors will fail the same
// way on every retry.
type SendError struct {
	StatusCode int
	Permanent  bool
	Err        error
}

func (e *SendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("email send failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("email send failed: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a SendError marked permanent.
func IsPermanent(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Permanent
}

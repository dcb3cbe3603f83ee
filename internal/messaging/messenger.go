// Package messaging delivers per-recipient messages through a side channel.
// Sends fail independently: one recipient's failure never blocks another's.
package messaging

import "context"

// Messenger sends one message to one named recipient.
type Messenger interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Noop discards messages. Used when no channel credentials are configured.
type Noop struct{}

func (Noop) Send(_ context.Context, _, _, _ string) error { return nil }

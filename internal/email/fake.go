package email

import (
	"context"
	"sync"
)

// FakeSender records messages instead of delivering them. It is used by
// tests and by local runs without an SMTP server.
type FakeSender struct {
	mu   sync.Mutex
	sent []Message

	// Fail, when set, is consulted before recording; a non-nil result is
	// returned as the send error and the message is not recorded.
	Fail func(msg Message) error
}

// Send records msg.
func (f *FakeSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		if err := f.Fail(msg); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (f *FakeSender) Sent() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.sent))
	copy(out, f.sent)
	return out
}

// SentTo returns the recorded messages addressed to to.
func (f *FakeSender) SentTo(to string) []Message {
	var out []Message
	for _, m := range f.Sent() {
		if m.To == to {
			out = append(out, m)
		}
	}
	return out
}

var _ Sender = (*FakeSender)(nil)

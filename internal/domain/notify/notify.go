// Package notify defines the outbound notification capability.
package notify

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// EventMail is the outbox event type carrying a Message.
const EventMail = "notify.mail"

// Message is one outbound notification.
type Message struct {
	// Ref identifies what the message is about (an inventory session id).
	Ref     string `json:"ref"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers a message. Implementations are constructed only when a
// transport is configured.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Queue keeps a message for later delivery after a failed send.
type Queue interface {
	Enqueue(ctx context.Context, msg Message, cause error) error
}

// Dispatcher delivers queued events back through a Sender.
type Dispatcher struct {
	sender Sender
}

func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// Dispatch decodes a queued event and sends it.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, payload []byte) error {
	if eventType != EventMail {
		return fmt.Errorf("unsupported event type %q", eventType)
	}
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode queued message: %w", err)
	}
	return d.sender.Send(ctx, msg)
}

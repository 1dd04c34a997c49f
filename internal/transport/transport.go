// Package transport defines the narrow messaging interface the bot consumes
// and the inbound event shape the transport adapter produces.
package transport

import (
	"context"

	"gallerybot/internal/domain"
)

// Content is one piece of inbound or outbound message content. Handle is the
// transport's reference for media; Text carries the body of text messages and
// the caption of media.
type Content struct {
	Kind        domain.ContentKind
	Handle      string
	Text        string
	DisplayName string
}

func (c Content) IsZero() bool {
	return c.Kind == "" && c.Handle == "" && c.Text == ""
}

type Button struct {
	Text string
	Data string
}

// Keyboard is a grid of inline buttons, one slice per row.
type Keyboard [][]Button

func Row(buttons ...Button) []Button { return buttons }

// Message is an outbound message. When ReplaceID is set and the content is
// text, the transport may edit that earlier message instead of sending anew.
type Message struct {
	Content   Content
	Keyboard  Keyboard
	ReplaceID string
}

func Text(text string, kb Keyboard) Message {
	return Message{Content: Content{Kind: domain.ContentText, Text: text}, Keyboard: kb}
}

type Messenger interface {
	Deliver(ctx context.Context, target string, msg Message) (deliveryID string, err error)
	// Retract is best-effort.
	Retract(ctx context.Context, target, deliveryID string) error
	Acknowledge(ctx context.Context, callbackID, text string, alert bool) error
}

type EventKind int

const (
	EventUnknown EventKind = iota
	EventCommand
	EventButton
	EventContent
)

// Event is a classified inbound update.
type Event struct {
	Kind   EventKind
	UserID string
	Handle string

	// Command and Args are set for EventCommand, without the leading slash.
	Command string
	Args    string

	// Data, CallbackID and MessageID are set for EventButton. MessageID is the
	// message carrying the pressed button.
	Data       string
	CallbackID string
	MessageID  string

	Content Content
}

package telegram

import (
	"strconv"
	"strings"

	"gallerybot/internal/domain"
	"gallerybot/internal/transport"
)

type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type File struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text,omitempty"`
	Caption   string `json:"caption,omitempty"`
	Photo     []File `json:"photo,omitempty"`
	Video     *File  `json:"video,omitempty"`
	Document  *File  `json:"document,omitempty"`
	Voice     *File  `json:"voice,omitempty"`
	Sticker   *File  `json:"sticker,omitempty"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// ToEvent classifies an update. Only private-chat messages and button
// presses are handled; everything else reports false.
func ToEvent(u Update) (transport.Event, bool) {
	if cq := u.CallbackQuery; cq != nil {
		ev := transport.Event{
			Kind:       transport.EventButton,
			UserID:     strconv.FormatInt(cq.From.ID, 10),
			Handle:     displayHandle(cq.From),
			Data:       cq.Data,
			CallbackID: cq.ID,
		}
		if cq.Message != nil {
			ev.MessageID = strconv.FormatInt(cq.Message.MessageID, 10)
		}
		return ev, true
	}

	m := u.Message
	if m == nil || m.From == nil {
		return transport.Event{}, false
	}
	if m.Chat.Type != "" && m.Chat.Type != "private" {
		return transport.Event{}, false
	}

	ev := transport.Event{
		UserID:    strconv.FormatInt(m.From.ID, 10),
		Handle:    displayHandle(*m.From),
		MessageID: strconv.FormatInt(m.MessageID, 10),
	}
	if cmd, args, ok := parseCommand(m.Text); ok {
		ev.Kind = transport.EventCommand
		ev.Command = cmd
		ev.Args = args
		return ev, true
	}

	c, ok := contentOf(m)
	if !ok {
		return transport.Event{}, false
	}
	ev.Kind = transport.EventContent
	ev.Content = c
	return ev, true
}

// displayHandle falls back to the first name for users without a username.
// An empty result leaves the choice of fallback to registration.
func displayHandle(u User) string {
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName)
}

func parseCommand(text string) (string, string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	word, args, _ := strings.Cut(text[1:], " ")
	word, _, _ = strings.Cut(word, "@")
	if word == "" {
		return "", "", false
	}
	return strings.ToLower(word), strings.TrimSpace(args), true
}

// contentOf picks the message's content. For photos the largest size, which
// Telegram lists last, wins.
func contentOf(m *Message) (transport.Content, bool) {
	switch {
	case len(m.Photo) > 0:
		return transport.Content{Kind: domain.ContentPhoto, Handle: m.Photo[len(m.Photo)-1].FileID, Text: m.Caption}, true
	case m.Video != nil:
		return transport.Content{Kind: domain.ContentVideo, Handle: m.Video.FileID, Text: m.Caption, DisplayName: m.Video.FileName}, true
	case m.Document != nil:
		return transport.Content{Kind: domain.ContentDocument, Handle: m.Document.FileID, Text: m.Caption, DisplayName: m.Document.FileName}, true
	case m.Voice != nil:
		return transport.Content{Kind: domain.ContentVoice, Handle: m.Voice.FileID, Text: m.Caption}, true
	case m.Sticker != nil:
		return transport.Content{Kind: domain.ContentSticker, Handle: m.Sticker.FileID}, true
	case m.Text != "":
		return transport.Content{Kind: domain.ContentText, Text: m.Text}, true
	}
	return transport.Content{}, false
}

package domain

import (
	"slices"
	"time"
)

// Field limits, counted in characters.
const (
	MaxItemNameLen    = 25
	MaxDescriptionLen = 200
	MaxCommentLen     = 150
	MaxAliasLen       = 20
)

type ContentKind string

const (
	ContentText     ContentKind = "text"
	ContentPhoto    ContentKind = "photo"
	ContentVideo    ContentKind = "video"
	ContentDocument ContentKind = "document"
	ContentVoice    ContentKind = "voice"
	ContentSticker  ContentKind = "sticker"
)

// Storable reports whether content of this kind may be added to a gallery.
func (k ContentKind) Storable() bool {
	switch k {
	case ContentPhoto, ContentVideo, ContentDocument:
		return true
	}
	return false
}

// Identity is a known user. Handles are display names and are not unique.
type Identity struct {
	ID           string            `json:"id"`
	Handle       string            `json:"username"`
	Friends      []string          `json:"friends"`
	Aliases      map[string]string `json:"nicknames,omitempty"`
	RegisteredAt time.Time         `json:"registeredAt"`
}

func (u Identity) HasFriend(id string) bool {
	return slices.Contains(u.Friends, id)
}

// DisplayNameFor returns the owner's alias for friendID, falling back to handle.
func (u Identity) DisplayNameFor(friendID, handle string) string {
	if alias := u.Aliases[friendID]; alias != "" {
		return alias
	}
	return handle
}

func (u Identity) Clone() Identity {
	out := u
	out.Friends = slices.Clone(u.Friends)
	if u.Aliases != nil {
		out.Aliases = make(map[string]string, len(u.Aliases))
		for k, v := range u.Aliases {
			out.Aliases[k] = v
		}
	}
	return out
}

// Invite is the single pending friendship invite addressed to a user.
type Invite struct {
	FromID     string    `json:"from_id"`
	FromHandle string    `json:"from_username"`
	Token      string    `json:"token"`
	SentAt     time.Time `json:"sentAt"`
}

type Comment struct {
	Author string    `json:"author"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// Item is one gallery entry. Handle is the transport's reference to the
// content, never the bytes themselves.
type Item struct {
	ID          string      `json:"id"`
	Kind        ContentKind `json:"type"`
	Handle      string      `json:"file_id"`
	Name        string      `json:"name"`
	Description string      `json:"comment,omitempty"`
	AddedBy     string      `json:"added_by"`
	AddedAt     time.Time   `json:"added_date"`
	LocalPath   string      `json:"local_path,omitempty"`
	Comments    []Comment   `json:"comments,omitempty"`
}

func (it Item) Clone() Item {
	out := it
	out.Comments = slices.Clone(it.Comments)
	return out
}

type Gallery struct {
	Members []string `json:"users"`
	Items   []Item   `json:"files"`
}

func (g Gallery) HasMember(id string) bool {
	return slices.Contains(g.Members, id)
}

func (g Gallery) Clone() Gallery {
	out := Gallery{Members: slices.Clone(g.Members)}
	if g.Items != nil {
		out.Items = make([]Item, len(g.Items))
		for i, it := range g.Items {
			out.Items[i] = it.Clone()
		}
	}
	return out
}

// ChatRequest is the single outstanding chat request of a sender.
// DeliveryID identifies the notification shown to the target so it can be
// retracted on cancel.
type ChatRequest struct {
	ToID        string    `json:"to_id"`
	DeliveryID  string    `json:"message_id,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Document is the whole persisted state.
type Document struct {
	Users        map[string]Identity    `json:"users"`
	Galleries    map[string]Gallery     `json:"galleries"`
	Invites      map[string]Invite      `json:"invites"`
	ChatRequests map[string]ChatRequest `json:"chatRequests"`
	ActiveChats  map[string]string      `json:"activeChats"`
	BannedUsers  []string               `json:"bannedUsers"`
}

func NewDocument() *Document {
	d := &Document{}
	d.Normalize()
	return d
}

// Normalize allocates nil collections, e.g. after decoding an older file, and
// restores gallery membership from the pair key where it is missing.
func (d *Document) Normalize() {
	if d.Users == nil {
		d.Users = map[string]Identity{}
	}
	if d.Galleries == nil {
		d.Galleries = map[string]Gallery{}
	}
	for key, g := range d.Galleries {
		if len(g.Members) == 2 {
			continue
		}
		if a, b, ok := splitPairKey(key); ok {
			g.Members = []string{a, b}
			d.Galleries[key] = g
		}
	}
	if d.Invites == nil {
		d.Invites = map[string]Invite{}
	}
	if d.ChatRequests == nil {
		d.ChatRequests = map[string]ChatRequest{}
	}
	if d.ActiveChats == nil {
		d.ActiveChats = map[string]string{}
	}
	if d.BannedUsers == nil {
		d.BannedUsers = []string{}
	}
}

func (d *Document) IsBanned(id string) bool {
	return slices.Contains(d.BannedUsers, id)
}

func (d *Document) Clone() *Document {
	out := &Document{
		Users:        make(map[string]Identity, len(d.Users)),
		Galleries:    make(map[string]Gallery, len(d.Galleries)),
		Invites:      make(map[string]Invite, len(d.Invites)),
		ChatRequests: make(map[string]ChatRequest, len(d.ChatRequests)),
		ActiveChats:  make(map[string]string, len(d.ActiveChats)),
		BannedUsers:  slices.Clone(d.BannedUsers),
	}
	for k, v := range d.Users {
		out.Users[k] = v.Clone()
	}
	for k, v := range d.Galleries {
		out.Galleries[k] = v.Clone()
	}
	for k, v := range d.Invites {
		out.Invites[k] = v
	}
	for k, v := range d.ChatRequests {
		out.ChatRequests[k] = v
	}
	for k, v := range d.ActiveChats {
		out.ActiveChats[k] = v
	}
	if out.BannedUsers == nil {
		out.BannedUsers = []string{}
	}
	return out
}

// ErrorEntry is one line of the operational error log.
type ErrorEntry struct {
	At      time.Time `json:"date"`
	Message string    `json:"error"`
}

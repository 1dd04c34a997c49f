package store

import (
	"cmp"
	"fmt"
	"slices"

	"gallerybot/internal/domain"
)

type Kind string

const (
	KindUser        Kind = "user"
	KindGallery     Kind = "gallery"
	KindInvite      Kind = "invite"
	KindChatRequest Kind = "chatreq"
	KindActiveChat  Kind = "chat"
	KindBan         Kind = "ban"
)

// Key names one logical entity of the document.
type Key struct {
	Kind Kind
	ID   string
}

func (k Key) String() string { return string(k.Kind) + ":" + k.ID }

func UserKey(id string) Key              { return Key{Kind: KindUser, ID: id} }
func GalleryKey(pairKey string) Key      { return Key{Kind: KindGallery, ID: pairKey} }
func InviteKey(targetID string) Key      { return Key{Kind: KindInvite, ID: targetID} }
func ChatRequestKey(senderID string) Key { return Key{Kind: KindChatRequest, ID: senderID} }
func ActiveChatKey(id string) Key        { return Key{Kind: KindActiveChat, ID: id} }
func BanKey(id string) Key               { return Key{Kind: KindBan, ID: id} }

type write struct {
	value   any
	deleted bool
}

// Tx is the view a transaction callback works on. Reads see the
// transaction's own pending writes first. Only declared keys can be written.
type Tx struct {
	s       *Store
	allowed map[Key]struct{}
	writes  map[Key]write
	order   []Key
}

func newTx(s *Store, keys []Key) *Tx {
	allowed := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		allowed[k] = struct{}{}
	}
	return &Tx{s: s, allowed: allowed, writes: map[Key]write{}}
}

func (tx *Tx) set(k Key, v any, deleted bool) error {
	if _, ok := tx.allowed[k]; !ok {
		return fmt.Errorf("%w: %s", ErrUndeclaredKey, k)
	}
	if _, seen := tx.writes[k]; !seen {
		tx.order = append(tx.order, k)
	}
	tx.writes[k] = write{value: v, deleted: deleted}
	return nil
}

func (tx *Tx) pending(k Key) (write, bool) {
	w, ok := tx.writes[k]
	return w, ok
}

func (tx *Tx) User(id string) (domain.Identity, bool) {
	if w, ok := tx.pending(UserKey(id)); ok {
		if w.deleted {
			return domain.Identity{}, false
		}
		return w.value.(domain.Identity).Clone(), true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	u, ok := tx.s.doc.Users[id]
	return u.Clone(), ok
}

func (tx *Tx) PutUser(u domain.Identity) error {
	return tx.set(UserKey(u.ID), u.Clone(), false)
}

// Users lists every identity in registration order. Identities not covered
// by the transaction's keys may change concurrently.
func (tx *Tx) Users() []domain.Identity {
	tx.s.mu.RLock()
	out := make([]domain.Identity, 0, len(tx.s.doc.Users))
	for id, u := range tx.s.doc.Users {
		if _, ok := tx.writes[UserKey(id)]; ok {
			continue
		}
		out = append(out, u.Clone())
	}
	tx.s.mu.RUnlock()

	for k, w := range tx.writes {
		if k.Kind == KindUser && !w.deleted {
			out = append(out, w.value.(domain.Identity).Clone())
		}
	}
	SortByRegistration(out)
	return out
}

// SortByRegistration orders identities oldest first, ties broken by id.
func SortByRegistration(users []domain.Identity) {
	slices.SortStableFunc(users, func(a, b domain.Identity) int {
		if c := a.RegisteredAt.Compare(b.RegisteredAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func (tx *Tx) Gallery(pairKey string) (domain.Gallery, bool) {
	if w, ok := tx.pending(GalleryKey(pairKey)); ok {
		if w.deleted {
			return domain.Gallery{}, false
		}
		return w.value.(domain.Gallery).Clone(), true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	g, ok := tx.s.doc.Galleries[pairKey]
	return g.Clone(), ok
}

func (tx *Tx) PutGallery(pairKey string, g domain.Gallery) error {
	return tx.set(GalleryKey(pairKey), g.Clone(), false)
}

func (tx *Tx) Invite(targetID string) (domain.Invite, bool) {
	if w, ok := tx.pending(InviteKey(targetID)); ok {
		if w.deleted {
			return domain.Invite{}, false
		}
		return w.value.(domain.Invite), true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	inv, ok := tx.s.doc.Invites[targetID]
	return inv, ok
}

func (tx *Tx) PutInvite(targetID string, inv domain.Invite) error {
	return tx.set(InviteKey(targetID), inv, false)
}

func (tx *Tx) DeleteInvite(targetID string) error {
	return tx.set(InviteKey(targetID), nil, true)
}

func (tx *Tx) ChatRequest(senderID string) (domain.ChatRequest, bool) {
	if w, ok := tx.pending(ChatRequestKey(senderID)); ok {
		if w.deleted {
			return domain.ChatRequest{}, false
		}
		return w.value.(domain.ChatRequest), true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	req, ok := tx.s.doc.ChatRequests[senderID]
	return req, ok
}

func (tx *Tx) PutChatRequest(senderID string, req domain.ChatRequest) error {
	return tx.set(ChatRequestKey(senderID), req, false)
}

func (tx *Tx) DeleteChatRequest(senderID string) error {
	return tx.set(ChatRequestKey(senderID), nil, true)
}

func (tx *Tx) Partner(id string) (string, bool) {
	if w, ok := tx.pending(ActiveChatKey(id)); ok {
		if w.deleted {
			return "", false
		}
		return w.value.(string), true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	p, ok := tx.s.doc.ActiveChats[id]
	return p, ok
}

func (tx *Tx) PutPartner(id, partnerID string) error {
	return tx.set(ActiveChatKey(id), partnerID, false)
}

func (tx *Tx) DeletePartner(id string) error {
	return tx.set(ActiveChatKey(id), nil, true)
}

func (tx *Tx) Banned(id string) bool {
	if w, ok := tx.pending(BanKey(id)); ok {
		return !w.deleted
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	return tx.s.doc.IsBanned(id)
}

func (tx *Tx) SetBanned(id string, banned bool) error {
	return tx.set(BanKey(id), true, !banned)
}

package service

import (
	"context"
	"strings"
	"time"

	"gallerybot/internal/domain"
	"gallerybot/internal/ids"
	"gallerybot/internal/store"
)

type FriendsService struct {
	Store DocumentStore
	Now   func() time.Time
}

// SentInvite is what the caller needs to notify the invited user.
type SentInvite struct {
	Target domain.Identity
	Invite domain.Invite
}

// SendInvite addresses an invite to the identity behind toHandle, replacing
// any invite that identity already holds.
func (s *FriendsService) SendInvite(ctx context.Context, fromID, toHandle string) (SentInvite, error) {
	toHandle = normalizeHandle(toHandle)
	if err := validateInput(handleInput{Handle: toHandle}); err != nil {
		return SentInvite{}, err
	}

	var target domain.Identity
	err := s.Store.View(ctx, func(doc *domain.Document) error {
		u, ok := resolveHandle(doc, toHandle)
		if !ok {
			return domain.ErrUnknownHandle
		}
		target = u.Clone()
		return nil
	})
	if err != nil {
		return SentInvite{}, err
	}
	if target.ID == fromID {
		return SentInvite{}, domain.ErrSelfInvite
	}

	token, err := ids.New(ids.TokenLen)
	if err != nil {
		return SentInvite{}, err
	}
	now := nowFunc(s.Now)

	var inv domain.Invite
	err = s.Store.Transact(ctx, []store.Key{store.InviteKey(target.ID)}, func(tx *store.Tx) error {
		sender, ok := tx.User(fromID)
		if !ok {
			return domain.ErrUnknownUser
		}
		if sender.HasFriend(target.ID) {
			return domain.ErrAlreadyFriends
		}
		inv = domain.Invite{
			FromID:     fromID,
			FromHandle: sender.Handle,
			Token:      token,
			SentAt:     now().UTC(),
		}
		return tx.PutInvite(target.ID, inv)
	})
	if err != nil {
		return SentInvite{}, err
	}
	return SentInvite{Target: target, Invite: inv}, nil
}

func (s *FriendsService) PendingInvite(ctx context.Context, userID string) (domain.Invite, bool, error) {
	var (
		inv domain.Invite
		ok  bool
	)
	err := s.Store.View(ctx, func(doc *domain.Document) error {
		inv, ok = doc.Invites[userID]
		return nil
	})
	return inv, ok, err
}

// AcceptInvite turns the invite addressed to userID into a friendship and
// makes sure the pair's gallery exists. fromID, when set, must match the
// invite's sender so a stale button cannot accept a newer invite.
func (s *FriendsService) AcceptInvite(ctx context.Context, userID, fromID string) (domain.Identity, error) {
	inv, ok, err := s.PendingInvite(ctx, userID)
	if err != nil {
		return domain.Identity{}, err
	}
	if !ok || (fromID != "" && inv.FromID != fromID) {
		return domain.Identity{}, domain.ErrNoInvite
	}
	senderID := inv.FromID
	pair := domain.PairKey(userID, senderID)

	keys := []store.Key{
		store.InviteKey(userID),
		store.UserKey(userID),
		store.UserKey(senderID),
		store.GalleryKey(pair),
	}
	var peer domain.Identity
	err = s.Store.Transact(ctx, keys, func(tx *store.Tx) error {
		cur, ok := tx.Invite(userID)
		if !ok || cur.FromID != senderID {
			return domain.ErrNoInvite
		}
		me, ok := tx.User(userID)
		if !ok {
			return domain.ErrUnknownUser
		}
		sender, ok := tx.User(senderID)
		if !ok {
			return domain.ErrUnknownUser
		}

		if !me.HasFriend(senderID) {
			me.Friends = append(me.Friends, senderID)
			if err := tx.PutUser(me); err != nil {
				return err
			}
		}
		if !sender.HasFriend(userID) {
			sender.Friends = append(sender.Friends, userID)
			if err := tx.PutUser(sender); err != nil {
				return err
			}
		}
		if _, ok := tx.Gallery(pair); !ok {
			if err := tx.PutGallery(pair, newGallery(userID, senderID)); err != nil {
				return err
			}
		}
		peer = sender
		return tx.DeleteInvite(userID)
	})
	if err != nil {
		return domain.Identity{}, err
	}
	return peer, nil
}

// DeclineInvite drops the invite addressed to userID and returns it.
func (s *FriendsService) DeclineInvite(ctx context.Context, userID, fromID string) (domain.Invite, error) {
	var inv domain.Invite
	err := s.Store.Transact(ctx, []store.Key{store.InviteKey(userID)}, func(tx *store.Tx) error {
		cur, ok := tx.Invite(userID)
		if !ok || (fromID != "" && cur.FromID != fromID) {
			return domain.ErrNoInvite
		}
		inv = cur
		return tx.DeleteInvite(userID)
	})
	return inv, err
}

// SetAlias stores the owner's private display name for a friend. An empty
// alias removes it.
func (s *FriendsService) SetAlias(ctx context.Context, userID, friendID, alias string) error {
	alias = strings.TrimSpace(alias)
	if err := validateInput(aliasInput{Alias: alias}); err != nil {
		return err
	}
	return s.Store.Transact(ctx, []store.Key{store.UserKey(userID)}, func(tx *store.Tx) error {
		me, ok := tx.User(userID)
		if !ok {
			return domain.ErrUnknownUser
		}
		if !me.HasFriend(friendID) {
			return domain.ErrNotFriends
		}
		if alias == "" {
			delete(me.Aliases, friendID)
		} else {
			if me.Aliases == nil {
				me.Aliases = map[string]string{}
			}
			me.Aliases[friendID] = alias
		}
		return tx.PutUser(me)
	})
}

// Friends lists userID's friends in the order the friendships were made.
func (s *FriendsService) Friends(ctx context.Context, userID string) ([]domain.Friend, error) {
	var out []domain.Friend
	err := s.Store.View(ctx, func(doc *domain.Document) error {
		me, err := lookupUser(doc, userID)
		if err != nil {
			return err
		}
		out = friendsOf(doc, me)
		return nil
	})
	return out, err
}

func (s *FriendsService) Friend(ctx context.Context, userID, friendID string) (domain.Friend, error) {
	friends, err := s.Friends(ctx, userID)
	if err != nil {
		return domain.Friend{}, err
	}
	for _, f := range friends {
		if f.ID == friendID {
			return f, nil
		}
	}
	return domain.Friend{}, domain.ErrNotFriends
}

func friendsOf(doc *domain.Document, me domain.Identity) []domain.Friend {
	out := make([]domain.Friend, 0, len(me.Friends))
	for _, id := range me.Friends {
		f := domain.Friend{ID: id, Alias: me.Aliases[id]}
		if u, ok := doc.Users[id]; ok {
			f.Handle = u.Handle
		}
		if f.Handle == "" {
			f.Handle = id
		}
		out = append(out, f)
	}
	return out
}

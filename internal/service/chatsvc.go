package service

import (
	"context"
	"time"

	"gallerybot/internal/domain"
	"gallerybot/internal/store"
)

// ChatService runs the relay handshake. A user holds at most one of an
// outstanding request or an active session. Requests are exclusive per
// sender only: anyone may be addressed by several requests at once.
type ChatService struct {
	Store DocumentStore
	Now   func() time.Time
}

// AcceptedChat describes a handshake that became an active session.
// Withdrawn is the accepter's own outstanding request, if one had to be
// dropped to keep the accepter single-session.
type AcceptedChat struct {
	RequesterID string
	Request     domain.ChatRequest
	Withdrawn   *domain.ChatRequest
}

func chatKeys(ids ...string) []store.Key {
	keys := make([]store.Key, 0, len(ids)*2)
	for _, id := range ids {
		keys = append(keys, store.ChatRequestKey(id), store.ActiveChatKey(id))
	}
	return keys
}

func (s *ChatService) Request(ctx context.Context, fromID, toID string) (domain.ChatRequest, error) {
	if fromID == toID {
		return domain.ChatRequest{}, domain.ErrSelfChat
	}
	now := nowFunc(s.Now)

	var req domain.ChatRequest
	err := s.Store.Transact(ctx, chatKeys(fromID), func(tx *store.Tx) error {
		if err := txCheckFriends(tx, fromID, toID); err != nil {
			return err
		}
		if _, ok := tx.ChatRequest(fromID); ok {
			return domain.ErrRequestAlreadyActive
		}
		if _, ok := tx.Partner(fromID); ok {
			return domain.ErrRequestAlreadyActive
		}
		req = domain.ChatRequest{ToID: toID, RequestedAt: now().UTC()}
		return tx.PutChatRequest(fromID, req)
	})
	return req, err
}

// AttachDelivery records the notification shown to the addressee so that a
// later cancel can retract it. It fails with ErrNoChatRequest when the
// request was resolved in the meantime.
func (s *ChatService) AttachDelivery(ctx context.Context, fromID, toID, deliveryID string) error {
	return s.Store.Transact(ctx, []store.Key{store.ChatRequestKey(fromID)}, func(tx *store.Tx) error {
		req, ok := tx.ChatRequest(fromID)
		if !ok || req.ToID != toID {
			return domain.ErrNoChatRequest
		}
		req.DeliveryID = deliveryID
		return tx.PutChatRequest(fromID, req)
	})
}

// Cancel withdraws fromID's outstanding request. toID, when set, must be the
// addressee. The caller retracts the returned request's notification.
func (s *ChatService) Cancel(ctx context.Context, fromID, toID string) (domain.ChatRequest, error) {
	var req domain.ChatRequest
	err := s.Store.Transact(ctx, []store.Key{store.ChatRequestKey(fromID)}, func(tx *store.Tx) error {
		cur, ok := tx.ChatRequest(fromID)
		if !ok || (toID != "" && cur.ToID != toID) {
			return domain.ErrNoChatRequest
		}
		req = cur
		return tx.DeleteChatRequest(fromID)
	})
	return req, err
}

func (s *ChatService) Accept(ctx context.Context, accepterID, requesterID string) (AcceptedChat, error) {
	var out AcceptedChat
	err := s.Store.Transact(ctx, chatKeys(accepterID, requesterID), func(tx *store.Tx) error {
		req, ok := tx.ChatRequest(requesterID)
		if !ok || req.ToID != accepterID {
			return domain.ErrNoChatRequest
		}
		if _, busy := tx.Partner(accepterID); busy {
			return domain.ErrChatBusy
		}
		if _, busy := tx.Partner(requesterID); busy {
			return domain.ErrChatBusy
		}

		if err := tx.DeleteChatRequest(requesterID); err != nil {
			return err
		}
		if own, ok := tx.ChatRequest(accepterID); ok {
			if err := tx.DeleteChatRequest(accepterID); err != nil {
				return err
			}
			out.Withdrawn = &own
		}
		if err := tx.PutPartner(accepterID, requesterID); err != nil {
			return err
		}
		if err := tx.PutPartner(requesterID, accepterID); err != nil {
			return err
		}
		out.RequesterID = requesterID
		out.Request = req
		return nil
	})
	if err != nil {
		return AcceptedChat{}, err
	}
	return out, nil
}

func (s *ChatService) Decline(ctx context.Context, declinerID, requesterID string) (domain.ChatRequest, error) {
	var req domain.ChatRequest
	err := s.Store.Transact(ctx, []store.Key{store.ChatRequestKey(requesterID)}, func(tx *store.Tx) error {
		cur, ok := tx.ChatRequest(requesterID)
		if !ok || cur.ToID != declinerID {
			return domain.ErrNoChatRequest
		}
		req = cur
		return tx.DeleteChatRequest(requesterID)
	})
	return req, err
}

// End tears down userID's active session and returns the former partner.
// partnerID, when set, must be the current partner.
func (s *ChatService) End(ctx context.Context, userID, partnerID string) (string, error) {
	var (
		current string
		ok      bool
	)
	err := s.Store.View(ctx, func(doc *domain.Document) error {
		current, ok = doc.ActiveChats[userID]
		return nil
	})
	if err != nil {
		return "", err
	}
	if !ok || (partnerID != "" && current != partnerID) {
		return "", domain.ErrNoActiveChat
	}

	keys := []store.Key{store.ActiveChatKey(userID), store.ActiveChatKey(current)}
	err = s.Store.Transact(ctx, keys, func(tx *store.Tx) error {
		p, ok := tx.Partner(userID)
		if !ok || p != current {
			return domain.ErrNoActiveChat
		}
		if err := tx.DeletePartner(userID); err != nil {
			return err
		}
		if back, ok := tx.Partner(current); ok && back == userID {
			return tx.DeletePartner(current)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return current, nil
}

// Partner reports userID's active session partner. A one-sided mapping is
// not a session.
func (s *ChatService) Partner(ctx context.Context, userID string) (string, bool, error) {
	var (
		partner string
		ok      bool
	)
	err := s.Store.View(ctx, func(doc *domain.Document) error {
		p, has := doc.ActiveChats[userID]
		if has && doc.ActiveChats[p] == userID {
			partner, ok = p, true
		}
		return nil
	})
	return partner, ok, err
}

func (s *ChatService) Outgoing(ctx context.Context, userID string) (domain.ChatRequest, bool, error) {
	var (
		req domain.ChatRequest
		ok  bool
	)
	err := s.Store.View(ctx, func(doc *domain.Document) error {
		req, ok = doc.ChatRequests[userID]
		return nil
	})
	return req, ok, err
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gallerybot/internal/domain"
	"gallerybot/internal/store"
)

type BroadcastReport struct {
	Total  int
	Sent   int
	Failed int
}

type AdminService struct {
	Store  DocumentStore
	Errors ErrorLog
	Logger *slog.Logger
	Now    func() time.Time
}

func (s *AdminService) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	err := s.Store.View(ctx, func(doc *domain.Document) error {
		st.Users = len(doc.Users)
		st.Banned = len(doc.BannedUsers)
		st.Galleries = len(doc.Galleries)
		for _, g := range doc.Galleries {
			st.Items += len(g.Items)
			for _, it := range g.Items {
				switch it.Kind {
				case domain.ContentPhoto:
					st.Photos++
				case domain.ContentVideo:
					st.Videos++
				case domain.ContentDocument:
					st.Documents++
				}
			}
		}
		for id, p := range doc.ActiveChats {
			if doc.ActiveChats[p] == id {
				st.ActiveChats++
			}
		}
		st.ActiveChats /= 2
		return nil
	})
	return st, err
}

func (s *AdminService) LookupUser(ctx context.Context, id string) (domain.UserReport, error) {
	id = strings.TrimSpace(id)
	var rep domain.UserReport
	err := s.Store.View(ctx, func(doc *domain.Document) error {
		u, err := lookupUser(doc, id)
		if err != nil {
			return err
		}
		rep.User = u.Clone()
		rep.Banned = doc.IsBanned(id)
		for _, f := range friendsOf(doc, u) {
			n := len(doc.Galleries[domain.PairKey(id, f.ID)].Items)
			rep.TotalItems += n
			rep.Galleries = append(rep.Galleries, domain.FriendGallery{Friend: f, Items: n})
		}
		return nil
	})
	return rep, err
}

// ToggleBan flips the ban flag of id and returns the new state.
func (s *AdminService) ToggleBan(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, domain.NewValidationError(map[string]string{"id": "required"})
	}
	var banned bool
	err := s.Store.Transact(ctx, []store.Key{store.BanKey(id)}, func(tx *store.Tx) error {
		banned = !tx.Banned(id)
		return tx.SetBanned(id, banned)
	})
	return banned, err
}

func (s *AdminService) Banned(ctx context.Context) ([]string, error) {
	var out []string
	err := s.Store.View(ctx, func(doc *domain.Document) error {
		out = append([]string(nil), doc.BannedUsers...)
		return nil
	})
	return out, err
}

func (s *AdminService) PairGallery(ctx context.Context, a, b string) (domain.Gallery, error) {
	var g domain.Gallery
	err := s.Store.View(ctx, func(doc *domain.Document) error {
		cur, ok := doc.Galleries[domain.PairKey(a, b)]
		if !ok {
			return domain.ErrNoGallery
		}
		g = cur.Clone()
		return nil
	})
	return g, err
}

// Broadcast calls send for every known identity that is not banned, in
// registration order. Failures are logged and counted.
func (s *AdminService) Broadcast(ctx context.Context, send func(ctx context.Context, u domain.Identity) error) (BroadcastReport, error) {
	var users []domain.Identity
	err := s.Store.View(ctx, func(doc *domain.Document) error {
		for id, u := range doc.Users {
			if !doc.IsBanned(id) {
				users = append(users, u.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return BroadcastReport{}, err
	}
	store.SortByRegistration(users)

	now := nowFunc(s.Now)
	rep := BroadcastReport{Total: len(users)}
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := send(ctx, u); err != nil {
			rep.Failed++
			recordError(ctx, s.Errors, s.Logger, now(), fmt.Sprintf("broadcast to %s: %v", u.ID, err))
			continue
		}
		rep.Sent++
	}
	return rep, nil
}

func (s *AdminService) LogError(ctx context.Context, msg string) {
	recordError(ctx, s.Errors, s.Logger, nowFunc(s.Now)(), msg)
}

func (s *AdminService) Logs(ctx context.Context, n int) ([]domain.ErrorEntry, error) {
	if s.Errors == nil {
		return nil, nil
	}
	return s.Errors.Recent(ctx, n)
}

func (s *AdminService) ClearLogs(ctx context.Context) error {
	if s.Errors == nil {
		return nil
	}
	return s.Errors.Clear(ctx)
}

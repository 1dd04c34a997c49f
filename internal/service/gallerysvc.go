package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"gallerybot/internal/domain"
	"gallerybot/internal/ids"
	"gallerybot/internal/store"
)

const DefaultExportDelay = 500 * time.Millisecond

type SortOrder string

const (
	SortInsertion   SortOrder = ""
	SortDateAsc     SortOrder = "date_asc"
	SortDateDesc    SortOrder = "date_desc"
	SortNameAsc     SortOrder = "name_asc"
	SortNameDesc    SortOrder = "name_desc"
	SortContributor SortOrder = "by_user"
)

func ParseSortOrder(s string) SortOrder {
	switch o := SortOrder(s); o {
	case SortDateAsc, SortDateDesc, SortNameAsc, SortNameDesc, SortContributor:
		return o
	}
	return SortInsertion
}

// ItemRef addresses an item by position. When ID is set it must match the
// item found at Index.
type ItemRef struct {
	Index int
	ID    string
}

// ListedItem is an item together with its position in the stored order.
type ListedItem struct {
	Index int
	domain.Item
}

func (l ListedItem) Ref() ItemRef { return ItemRef{Index: l.Index, ID: l.ID} }

type NewItem struct {
	Kind        domain.ContentKind
	Handle      string
	Name        string
	Description string
}

type ExportReport struct {
	Total  int
	Sent   int
	Failed int
}

type GalleryService struct {
	Store  DocumentStore
	Cache  ContentCache
	Errors ErrorLog
	Logger *slog.Logger
	Now    func() time.Time

	ExportDelay time.Duration
	// Sleep waits between export sends; it returns early with ctx's error.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (s *GalleryService) AddItem(ctx context.Context, userID, friendID string, in NewItem) (domain.Item, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateInput(itemInput{Kind: string(in.Kind), Handle: in.Handle, Name: in.Name, Description: in.Description}); err != nil {
		return domain.Item{}, err
	}
	pair := domain.PairKey(userID, friendID)
	if err := s.checkFriends(ctx, userID, friendID); err != nil {
		return domain.Item{}, err
	}

	id, err := ids.New(ids.ItemLen)
	if err != nil {
		return domain.Item{}, err
	}
	now := nowFunc(s.Now)

	var localPath string
	if s.Cache != nil {
		localPath, err = s.Cache.Cache(ctx, pair, in.Handle)
		if err != nil {
			loggerOrDefault(s.Logger).Warn("gallery: cache content failed", "pair_key", pair, "err", err)
			localPath = ""
		}
	}

	var item domain.Item
	err = s.Store.Transact(ctx, []store.Key{store.GalleryKey(pair)}, func(tx *store.Tx) error {
		me, ok := tx.User(userID)
		if !ok {
			return domain.ErrUnknownUser
		}
		if !me.HasFriend(friendID) {
			return domain.ErrNotFriends
		}
		g, ok := tx.Gallery(pair)
		if !ok {
			g = newGallery(userID, friendID)
		}
		item = domain.Item{
			ID:          id,
			Kind:        in.Kind,
			Handle:      in.Handle,
			Name:        in.Name,
			Description: in.Description,
			AddedBy:     me.Handle,
			AddedAt:     now().UTC(),
			LocalPath:   localPath,
		}
		g.Items = append(g.Items, item)
		return tx.PutGallery(pair, g)
	})
	if err != nil {
		if localPath != "" {
			s.release(ctx, pair, localPath)
		}
		return domain.Item{}, err
	}
	return item, nil
}

// ListItems returns the pair's items in the requested order. The stored
// order is never changed.
func (s *GalleryService) ListItems(ctx context.Context, userID, friendID string, order SortOrder) ([]ListedItem, error) {
	var out []ListedItem
	err := s.Store.View(ctx, func(doc *domain.Document) error {
		g, err := friendGallery(doc, userID, friendID)
		if err != nil {
			return err
		}
		out = make([]ListedItem, len(g.Items))
		for i, it := range g.Items {
			out[i] = ListedItem{Index: i, Item: it.Clone()}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	SortItems(out, order)
	return out, nil
}

// SortItems sorts stably, so equal keys keep their stored order.
func SortItems(items []ListedItem, order SortOrder) {
	var less func(a, b ListedItem) int
	switch order {
	case SortDateAsc:
		less = func(a, b ListedItem) int { return a.AddedAt.Compare(b.AddedAt) }
	case SortDateDesc:
		less = func(a, b ListedItem) int { return b.AddedAt.Compare(a.AddedAt) }
	case SortNameAsc:
		less = func(a, b ListedItem) int { return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)) }
	case SortNameDesc:
		less = func(a, b ListedItem) int { return cmp.Compare(strings.ToLower(b.Name), strings.ToLower(a.Name)) }
	case SortContributor:
		less = func(a, b ListedItem) int { return cmp.Compare(strings.ToLower(a.AddedBy), strings.ToLower(b.AddedBy)) }
	default:
		less = func(a, b ListedItem) int { return cmp.Compare(a.Index, b.Index) }
	}
	slices.SortStableFunc(items, less)
}

func (s *GalleryService) Item(ctx context.Context, userID, friendID string, ref ItemRef) (ListedItem, error) {
	var out ListedItem
	err := s.Store.View(ctx, func(doc *domain.Document) error {
		g, err := friendGallery(doc, userID, friendID)
		if err != nil {
			return err
		}
		it, err := itemAt(g, ref)
		if err != nil {
			return err
		}
		out = ListedItem{Index: ref.Index, Item: it.Clone()}
		return nil
	})
	return out, err
}

// RemoveItem deletes the referenced item; later items shift down by one. A
// cached copy is released after the removal commits; release failures are
// logged only.
func (s *GalleryService) RemoveItem(ctx context.Context, userID, friendID string, ref ItemRef) (domain.Item, error) {
	pair := domain.PairKey(userID, friendID)
	var removed domain.Item
	err := s.Store.Transact(ctx, []store.Key{store.GalleryKey(pair)}, func(tx *store.Tx) error {
		if err := txCheckFriends(tx, userID, friendID); err != nil {
			return err
		}
		g, ok := tx.Gallery(pair)
		if !ok {
			return domain.ErrItemNotFound
		}
		it, err := itemAt(g, ref)
		if err != nil {
			return err
		}
		removed = it
		g.Items = slices.Delete(g.Items, ref.Index, ref.Index+1)
		return tx.PutGallery(pair, g)
	})
	if err != nil {
		return domain.Item{}, err
	}
	if removed.LocalPath != "" {
		s.release(ctx, pair, removed.LocalPath)
	}
	return removed, nil
}

func (s *GalleryService) AddComment(ctx context.Context, userID, friendID string, ref ItemRef, text string) (domain.Item, error) {
	text = strings.TrimSpace(text)
	if err := validateInput(commentInput{Text: text}); err != nil {
		return domain.Item{}, err
	}
	pair := domain.PairKey(userID, friendID)
	now := nowFunc(s.Now)

	var updated domain.Item
	err := s.Store.Transact(ctx, []store.Key{store.GalleryKey(pair)}, func(tx *store.Tx) error {
		if err := txCheckFriends(tx, userID, friendID); err != nil {
			return err
		}
		me, _ := tx.User(userID)
		g, ok := tx.Gallery(pair)
		if !ok {
			return domain.ErrItemNotFound
		}
		if _, err := itemAt(g, ref); err != nil {
			return err
		}
		it := &g.Items[ref.Index]
		it.Comments = append(it.Comments, domain.Comment{Author: me.Handle, Text: text, At: now().UTC()})
		updated = it.Clone()
		return tx.PutGallery(pair, g)
	})
	return updated, err
}

// Export sends every item of the pair's gallery through send, waiting
// ExportDelay between items. A failed item is recorded and skipped.
func (s *GalleryService) Export(ctx context.Context, userID, friendID string, send func(ctx context.Context, it domain.Item) error) (ExportReport, error) {
	items, err := s.ListItems(ctx, userID, friendID, SortInsertion)
	if err != nil {
		return ExportReport{}, err
	}
	return s.export(ctx, domain.PairKey(userID, friendID), items, send)
}

// ExportPair exports any pair's gallery without a membership check.
func (s *GalleryService) ExportPair(ctx context.Context, a, b string, send func(ctx context.Context, it domain.Item) error) (ExportReport, error) {
	pair := domain.PairKey(a, b)
	var items []ListedItem
	err := s.Store.View(ctx, func(doc *domain.Document) error {
		g, ok := doc.Galleries[pair]
		if !ok {
			return domain.ErrNoGallery
		}
		for i, it := range g.Items {
			items = append(items, ListedItem{Index: i, Item: it.Clone()})
		}
		return nil
	})
	if err != nil {
		return ExportReport{}, err
	}
	return s.export(ctx, pair, items, send)
}

func (s *GalleryService) export(ctx context.Context, pair string, items []ListedItem, send func(ctx context.Context, it domain.Item) error) (ExportReport, error) {
	delay := s.ExportDelay
	if delay < 0 {
		delay = 0
	}
	sleep := s.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	now := nowFunc(s.Now)

	rep := ExportReport{Total: len(items)}
	for i, it := range items {
		if i > 0 && delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return rep, err
			}
		}
		if err := send(ctx, it.Item); err != nil {
			rep.Failed++
			recordError(ctx, s.Errors, s.Logger, now(), fmt.Sprintf("export %s item %d (%s): %v", pair, it.Index+1, it.Name, err))
			continue
		}
		rep.Sent++
	}
	return rep, nil
}

// UserStats summarizes the galleries userID shares with friends.
func (s *GalleryService) UserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	var out domain.UserStats
	err := s.Store.View(ctx, func(doc *domain.Document) error {
		me, err := lookupUser(doc, userID)
		if err != nil {
			return err
		}
		out.Friends = len(me.Friends)
		for _, f := range friendsOf(doc, me) {
			n := len(doc.Galleries[domain.PairKey(userID, f.ID)].Items)
			out.TotalItems += n
			if n == 0 {
				continue
			}
			if n > out.MostActiveItems || (n == out.MostActiveItems && f.Handle < out.MostActiveHandle) {
				out.MostActiveItems = n
				out.MostActiveHandle = f.Handle
			}
		}
		return nil
	})
	return out, err
}

func (s *GalleryService) checkFriends(ctx context.Context, userID, friendID string) error {
	return s.Store.View(ctx, func(doc *domain.Document) error {
		me, err := lookupUser(doc, userID)
		if err != nil {
			return err
		}
		if !me.HasFriend(friendID) {
			return domain.ErrNotFriends
		}
		return nil
	})
}

func (s *GalleryService) release(ctx context.Context, pair, ref string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Release(ctx, ref); err != nil {
		loggerOrDefault(s.Logger).Warn("gallery: cache release failed", "pair_key", pair, "ref", ref, "err", err)
		recordError(ctx, s.Errors, s.Logger, nowFunc(s.Now)(), fmt.Sprintf("release cached file %s: %v", ref, err))
	}
}

func txCheckFriends(tx *store.Tx, userID, friendID string) error {
	me, ok := tx.User(userID)
	if !ok {
		return domain.ErrUnknownUser
	}
	if !me.HasFriend(friendID) {
		return domain.ErrNotFriends
	}
	return nil
}

func friendGallery(doc *domain.Document, userID, friendID string) (domain.Gallery, error) {
	me, err := lookupUser(doc, userID)
	if err != nil {
		return domain.Gallery{}, err
	}
	if !me.HasFriend(friendID) {
		return domain.Gallery{}, domain.ErrNotFriends
	}
	return doc.Galleries[domain.PairKey(userID, friendID)], nil
}

func itemAt(g domain.Gallery, ref ItemRef) (domain.Item, error) {
	if ref.Index < 0 || ref.Index >= len(g.Items) {
		return domain.Item{}, domain.ErrItemNotFound
	}
	it := g.Items[ref.Index]
	if ref.ID != "" && it.ID != ref.ID {
		return domain.Item{}, domain.ErrItemNotFound
	}
	return it, nil
}

func newGallery(a, b string) domain.Gallery {
	if b < a {
		a, b = b, a
	}
	return domain.Gallery{Members: []string{a, b}, Items: []domain.Item{}}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gallerybot/internal/domain"
)

func friendsFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	f.register(t, "u1", "alice")
	f.register(t, "u2", "bob")
	f.befriend(t, "u1", "u2")
	return f
}

func addItem(t *testing.T, f *fixture, user, friend, name string) domain.Item {
	t.Helper()
	it, err := f.gallery.AddItem(context.Background(), user, friend, NewItem{Kind: domain.ContentPhoto, Handle: "h-" + name, Name: name})
	if err != nil {
		t.Fatalf("AddItem(%s): %v", name, err)
	}
	f.tick()
	return it
}

func TestContributorWithoutUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "u1", "")
	f.register(t, "u2", "bob")

	sent, err := f.friends.SendInvite(ctx, "u1", "bob")
	if err != nil {
		t.Fatalf("SendInvite: %v", err)
	}
	if sent.Invite.FromHandle != "user_u1" {
		t.Fatalf("invite from handle = %q", sent.Invite.FromHandle)
	}
	if _, err := f.friends.AcceptInvite(ctx, "u2", "u1"); err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}

	it := addItem(t, f, "u1", "u2", "trip")
	if it.AddedBy != "user_u1" {
		t.Fatalf("AddedBy = %q, want user_u1", it.AddedBy)
	}
	commented, err := f.gallery.AddComment(ctx, "u1", "u2", ItemRef{Index: 0, ID: it.ID}, "nice")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if c := commented.Comments[len(commented.Comments)-1]; c.Author != "user_u1" {
		t.Fatalf("comment author = %q", c.Author)
	}
}

func TestScenarioInviteAcceptAddItem(t *testing.T) {
	f := friendsFixture(t)
	ctx := context.Background()

	items, err := f.gallery.ListItems(ctx, "u1", "u2", SortInsertion)
	if err != nil || len(items) != 0 {
		t.Fatalf("ListItems = %v, %v", items, err)
	}

	it, err := f.gallery.AddItem(ctx, "u1", "u2", NewItem{Kind: domain.ContentPhoto, Handle: "photo-1", Name: "trip", Description: "fun"})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	g := f.doc(t).Galleries[domain.PairKey("u2", "u1")]
	if len(g.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(g.Items))
	}
	got := g.Items[0]
	if got.Name != "trip" || got.Description != "fun" || got.AddedBy != "alice" || got.Handle != "photo-1" {
		t.Fatalf("item = %+v", got)
	}
	if got.ID != it.ID || got.LocalPath == "" {
		t.Fatalf("item id/local path = %q/%q", got.ID, got.LocalPath)
	}
}

func TestAddItemValidation(t *testing.T) {
	f := friendsFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		in    NewItem
		field string
	}{
		{"long name", NewItem{Kind: domain.ContentPhoto, Handle: "h", Name: strings.Repeat("a", 26)}, "name"},
		{"empty name", NewItem{Kind: domain.ContentPhoto, Handle: "h", Name: " "}, "name"},
		{"long comment", NewItem{Kind: domain.ContentVideo, Handle: "h", Name: "n", Description: strings.Repeat("c", 201)}, "comment"},
		{"voice", NewItem{Kind: domain.ContentVoice, Handle: "h", Name: "n"}, "kind"},
		{"no file", NewItem{Kind: domain.ContentDocument, Name: "n"}, "file"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.gallery.AddItem(ctx, "u1", "u2", tc.in)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want validation error", err)
			}
			if _, ok := verr.Fields[tc.field]; !ok {
				t.Fatalf("fields = %v, want %q", verr.Fields, tc.field)
			}
		})
	}

	if _, err := f.gallery.AddItem(ctx, "u1", "u2", NewItem{Kind: domain.ContentPhoto, Handle: "h", Name: strings.Repeat("я", 25)}); err != nil {
		t.Fatalf("25 characters rejected: %v", err)
	}
}

func TestAddItemRequiresFriendship(t *testing.T) {
	f := friendsFixture(t)
	f.register(t, "u3", "carol")
	_, err := f.gallery.AddItem(context.Background(), "u1", "u3", NewItem{Kind: domain.ContentPhoto, Handle: "h", Name: "n"})
	assertKind(t, err, domain.ErrNotFound)
	if len(f.cache.cached) != 0 {
		t.Fatal("content cached for a rejected item")
	}
}

func TestAddItemSurvivesCacheFailure(t *testing.T) {
	f := friendsFixture(t)
	f.cache.cacheErr = errors.New("download failed")
	it, err := f.gallery.AddItem(context.Background(), "u1", "u2", NewItem{Kind: domain.ContentDocument, Handle: "h", Name: "n"})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if it.LocalPath != "" {
		t.Fatalf("local path = %q, want empty", it.LocalPath)
	}
}

func TestAddItemReleasesCacheWhenCommitFails(t *testing.T) {
	f := friendsFixture(t)
	f.backend.SetSaveErr(errors.New("disk full"))
	_, err := f.gallery.AddItem(context.Background(), "u1", "u2", NewItem{Kind: domain.ContentPhoto, Handle: "h", Name: "n"})
	assertKind(t, err, domain.ErrPersistence)
	if len(f.cache.released) != 1 || f.cache.released[0] != f.cache.cached[0] {
		t.Fatalf("released = %v, cached = %v", f.cache.released, f.cache.cached)
	}
}

func TestListItemsSortOrders(t *testing.T) {
	f := friendsFixture(t)
	ctx := context.Background()
	addItem(t, f, "u1", "u2", "beta")
	addItem(t, f, "u2", "u1", "Alpha")
	addItem(t, f, "u1", "u2", "gamma")
	addItem(t, f, "u2", "u1", "alpha")

	names := func(items []ListedItem) string {
		var out []string
		for _, it := range items {
			out = append(out, fmt.Sprintf("%s@%d", it.Name, it.Index))
		}
		return strings.Join(out, ",")
	}

	cases := []struct {
		order SortOrder
		want  string
	}{
		{SortInsertion, "beta@0,Alpha@1,gamma@2,alpha@3"},
		{SortDateAsc, "beta@0,Alpha@1,gamma@2,alpha@3"},
		{SortDateDesc, "alpha@3,gamma@2,Alpha@1,beta@0"},
		{SortNameAsc, "Alpha@1,alpha@3,beta@0,gamma@2"},
		{SortNameDesc, "gamma@2,beta@0,Alpha@1,alpha@3"},
		{SortContributor, "beta@0,gamma@2,Alpha@1,alpha@3"},
	}
	for _, tc := range cases {
		items, err := f.gallery.ListItems(ctx, "u1", "u2", tc.order)
		if err != nil {
			t.Fatalf("ListItems(%q): %v", tc.order, err)
		}
		if got := names(items); got != tc.want {
			t.Fatalf("ListItems(%q) = %s, want %s", tc.order, got, tc.want)
		}
	}

	stored := f.doc(t).Galleries[domain.PairKey("u1", "u2")].Items
	if stored[0].Name != "beta" || stored[3].Name != "alpha" {
		t.Fatal("sorting changed the stored order")
	}
}

func TestParseSortOrder(t *testing.T) {
	if ParseSortOrder("name_desc") != SortNameDesc || ParseSortOrder("bogus") != SortInsertion {
		t.Fatal("unexpected parse result")
	}
}

func TestRemoveItemShiftsAndRejectsStaleRef(t *testing.T) {
	f := friendsFixture(t)
	ctx := context.Background()
	a := addItem(t, f, "u1", "u2", "a")
	b := addItem(t, f, "u1", "u2", "b")
	c := addItem(t, f, "u1", "u2", "c")

	removed, err := f.gallery.RemoveItem(ctx, "u2", "u1", ItemRef{Index: 1, ID: b.ID})
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if removed.ID != b.ID {
		t.Fatalf("removed %s, want %s", removed.Name, b.Name)
	}
	items, _ := f.gallery.ListItems(ctx, "u1", "u2", SortInsertion)
	if len(items) != 2 || items[0].ID != a.ID || items[1].ID != c.ID || items[1].Index != 1 {
		t.Fatalf("items after removal = %+v", items)
	}

	_, err = f.gallery.RemoveItem(ctx, "u2", "u1", ItemRef{Index: 1, ID: b.ID})
	assertKind(t, err, domain.ErrNotFound)
	_, err = f.gallery.RemoveItem(ctx, "u2", "u1", ItemRef{Index: 2})
	assertKind(t, err, domain.ErrNotFound)
	if n := len(f.doc(t).Galleries[domain.PairKey("u1", "u2")].Items); n != 2 {
		t.Fatalf("stale removes deleted something: %d items", n)
	}
}

func TestRemoveItemReleaseFailureIsNotFatal(t *testing.T) {
	f := friendsFixture(t)
	it := addItem(t, f, "u1", "u2", "a")
	f.cache.releaseErr = errors.New("permission denied")

	if _, err := f.gallery.RemoveItem(context.Background(), "u1", "u2", ItemRef{Index: 0, ID: it.ID}); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if len(f.cache.released) != 1 || f.cache.released[0] != it.LocalPath {
		t.Fatalf("released = %v", f.cache.released)
	}
	if f.errs.len() != 1 {
		t.Fatalf("error log entries = %d, want 1", f.errs.len())
	}
}

func TestAddComment(t *testing.T) {
	f := friendsFixture(t)
	ctx := context.Background()
	it := addItem(t, f, "u1", "u2", "a")

	updated, err := f.gallery.AddComment(ctx, "u2", "u1", ItemRef{Index: 0, ID: it.ID}, " nice ")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if len(updated.Comments) != 1 || updated.Comments[0].Author != "bob" || updated.Comments[0].Text != "nice" {
		t.Fatalf("comments = %+v", updated.Comments)
	}

	_, err = f.gallery.AddComment(ctx, "u2", "u1", ItemRef{Index: 0}, strings.Repeat("x", 151))
	assertKind(t, err, domain.ErrValidation)
	_, err = f.gallery.AddComment(ctx, "u2", "u1", ItemRef{Index: 5}, "late")
	assertKind(t, err, domain.ErrNotFound)
}

func TestConcurrentAddItemsOnSamePair(t *testing.T) {
	f := friendsFixture(t)
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user, friend := "u1", "u2"
			if i%2 == 1 {
				user, friend = friend, user
			}
			_, err := f.gallery.AddItem(ctx, user, friend, NewItem{Kind: domain.ContentPhoto, Handle: fmt.Sprintf("h%d", i), Name: fmt.Sprintf("n%d", i)})
			if err != nil {
				t.Errorf("AddItem %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	saved, _ := f.backend.Saved()
	if got := len(saved.Galleries[domain.PairKey("u1", "u2")].Items); got != n {
		t.Fatalf("persisted items = %d, want %d", got, n)
	}
}

func TestExportContinuesPastFailures(t *testing.T) {
	f := friendsFixture(t)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		addItem(t, f, "u1", "u2", name)
	}

	var (
		sent   []string
		sleeps []time.Duration
	)
	f.gallery.ExportDelay = 500 * time.Millisecond
	f.gallery.Sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	rep, err := f.gallery.Export(ctx, "u2", "u1", func(ctx context.Context, it domain.Item) error {
		if it.Name == "b" {
			return errors.New("wrong file identifier")
		}
		sent = append(sent, it.Name)
		return nil
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if rep != (ExportReport{Total: 3, Sent: 2, Failed: 1}) {
		t.Fatalf("report = %+v", rep)
	}
	if strings.Join(sent, "") != "ac" {
		t.Fatalf("sent = %v", sent)
	}
	if len(sleeps) != 2 || sleeps[0] != 500*time.Millisecond {
		t.Fatalf("sleeps = %v", sleeps)
	}
	if f.errs.len() != 1 {
		t.Fatalf("error log entries = %d, want 1", f.errs.len())
	}
}

func TestExportStopsOnCancel(t *testing.T) {
	f := friendsFixture(t)
	addItem(t, f, "u1", "u2", "a")
	addItem(t, f, "u1", "u2", "b")
	f.gallery.ExportDelay = time.Second
	f.gallery.Sleep = func(ctx context.Context, d time.Duration) error { return context.Canceled }

	rep, err := f.gallery.Export(context.Background(), "u1", "u2", func(ctx context.Context, it domain.Item) error { return nil })
	if !errors.Is(err, context.Canceled) || rep.Sent != 1 {
		t.Fatalf("Export = %+v, %v", rep, err)
	}
}

func TestExportPairUnknownGallery(t *testing.T) {
	f := friendsFixture(t)
	_, err := f.gallery.ExportPair(context.Background(), "u1", "u9", func(ctx context.Context, it domain.Item) error { return nil })
	assertKind(t, err, domain.ErrNotFound)
}

func TestUserStats(t *testing.T) {
	f := friendsFixture(t)
	f.register(t, "u3", "carol")
	f.register(t, "u4", "dave")
	f.befriend(t, "u1", "u3")
	f.befriend(t, "u1", "u4")
	addItem(t, f, "u1", "u2", "a")
	addItem(t, f, "u1", "u3", "b")
	addItem(t, f, "u3", "u1", "c")
	addItem(t, f, "u4", "u1", "d")
	addItem(t, f, "u1", "u4", "e")

	st, err := f.gallery.UserStats(context.Background(), "u1")
	if err != nil {
		t.Fatalf("UserStats: %v", err)
	}
	want := domain.UserStats{Friends: 3, TotalItems: 5, MostActiveHandle: "carol", MostActiveItems: 2}
	if st != want {
		t.Fatalf("stats = %+v, want %+v", st, want)
	}
}

package service

import (
	"context"
	"errors"
	"testing"

	"gallerybot/internal/domain"
)

func TestAdminStats(t *testing.T) {
	f := friendsFixture(t)
	ctx := context.Background()
	f.register(t, "u3", "carol")
	addItem(t, f, "u1", "u2", "p")
	if _, err := f.gallery.AddItem(ctx, "u1", "u2", NewItem{Kind: domain.ContentVideo, Handle: "v", Name: "v"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.chat.Request(ctx, "u1", "u2"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.chat.Accept(ctx, "u2", "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.admin.ToggleBan(ctx, "u3"); err != nil {
		t.Fatal(err)
	}

	st, err := f.admin.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := domain.Stats{Users: 3, Banned: 1, Galleries: 1, Items: 2, Photos: 1, Videos: 1, ActiveChats: 1}
	if st != want {
		t.Fatalf("stats = %+v, want %+v", st, want)
	}
}

func TestLookupUser(t *testing.T) {
	f := friendsFixture(t)
	ctx := context.Background()
	addItem(t, f, "u2", "u1", "p")

	rep, err := f.admin.LookupUser(ctx, " u1 ")
	if err != nil {
		t.Fatalf("LookupUser: %v", err)
	}
	if rep.User.Handle != "alice" || rep.TotalItems != 1 || len(rep.Galleries) != 1 || rep.Galleries[0].Friend.Handle != "bob" {
		t.Fatalf("report = %+v", rep)
	}
	_, err = f.admin.LookupUser(ctx, "nope")
	assertKind(t, err, domain.ErrNotFound)
}

func TestToggleBan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	banned, err := f.admin.ToggleBan(ctx, "42")
	if err != nil || !banned {
		t.Fatalf("ToggleBan = %v, %v", banned, err)
	}
	list, _ := f.admin.Banned(ctx)
	if len(list) != 1 || list[0] != "42" {
		t.Fatalf("banned = %v", list)
	}
	banned, err = f.admin.ToggleBan(ctx, "42")
	if err != nil || banned {
		t.Fatalf("ToggleBan = %v, %v", banned, err)
	}
	if list, _ := f.admin.Banned(ctx); len(list) != 0 {
		t.Fatalf("banned = %v", list)
	}
}

func TestBroadcastSkipsBannedAndCountsFailures(t *testing.T) {
	f := friendsFixture(t)
	ctx := context.Background()
	f.register(t, "u3", "carol")
	f.register(t, "u4", "dave")
	if _, err := f.admin.ToggleBan(ctx, "u4"); err != nil {
		t.Fatal(err)
	}

	var order []string
	rep, err := f.admin.Broadcast(ctx, func(ctx context.Context, u domain.Identity) error {
		order = append(order, u.ID)
		if u.ID == "u2" {
			return errors.New("bot was blocked by the user")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if rep != (BroadcastReport{Total: 3, Sent: 2, Failed: 1}) {
		t.Fatalf("report = %+v", rep)
	}
	if len(order) != 3 || order[0] != "u1" || order[2] != "u3" {
		t.Fatalf("order = %v", order)
	}
	logs, _ := f.admin.Logs(ctx, 0)
	if len(logs) != 1 {
		t.Fatalf("logs = %+v", logs)
	}
	if err := f.admin.ClearLogs(ctx); err != nil {
		t.Fatal(err)
	}
	if logs, _ := f.admin.Logs(ctx, 0); len(logs) != 0 {
		t.Fatalf("logs after clear = %+v", logs)
	}
}

func TestPairGallery(t *testing.T) {
	f := friendsFixture(t)
	ctx := context.Background()
	addItem(t, f, "u1", "u2", "p")
	g, err := f.admin.PairGallery(ctx, "u2", "u1")
	if err != nil || len(g.Items) != 1 {
		t.Fatalf("PairGallery = %+v, %v", g, err)
	}
	_, err = f.admin.PairGallery(ctx, "u1", "u9")
	assertKind(t, err, domain.ErrNotFound)
}

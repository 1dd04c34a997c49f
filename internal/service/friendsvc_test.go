package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gallerybot/internal/domain"
)

func TestInviteAcceptCreatesFriendshipAndGallery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "u1", "alice")
	f.register(t, "u2", "bob")

	sent, err := f.friends.SendInvite(ctx, "u1", "bob")
	if err != nil {
		t.Fatalf("SendInvite: %v", err)
	}
	if sent.Target.ID != "u2" || sent.Invite.FromHandle != "alice" || sent.Invite.Token == "" {
		t.Fatalf("sent = %+v", sent)
	}

	peer, err := f.friends.AcceptInvite(ctx, "u2", "")
	if err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}
	if peer.ID != "u1" {
		t.Fatalf("peer = %s, want u1", peer.ID)
	}

	doc := f.doc(t)
	if !doc.Users["u1"].HasFriend("u2") || !doc.Users["u2"].HasFriend("u1") {
		t.Fatalf("friendship not symmetric: %+v %+v", doc.Users["u1"], doc.Users["u2"])
	}
	g, ok := doc.Galleries[domain.PairKey("u1", "u2")]
	if !ok || len(g.Items) != 0 || !g.HasMember("u1") || !g.HasMember("u2") {
		t.Fatalf("gallery = %+v, %v", g, ok)
	}
	if _, ok := doc.Invites["u2"]; ok {
		t.Fatal("invite not deleted")
	}

	_, err = f.friends.AcceptInvite(ctx, "u2", "")
	assertKind(t, err, domain.ErrNotFound)
}

func TestSendInviteErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "u1", "alice")
	f.register(t, "u2", "bob")
	f.befriend(t, "u1", "u2")

	cases := []struct {
		name   string
		handle string
		want   error
	}{
		{"self", "@Alice", domain.ErrSelfInvite},
		{"unknown", "carol", domain.ErrUnknownHandle},
		{"already friends", "bob", domain.ErrAlreadyFriends},
		{"empty", "  ", domain.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.friends.SendInvite(ctx, "u1", tc.handle)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNewInviteOverwritesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "u1", "alice")
	f.register(t, "u2", "bob")
	f.register(t, "u3", "carol")

	if _, err := f.friends.SendInvite(ctx, "u1", "carol"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.friends.SendInvite(ctx, "u2", "carol"); err != nil {
		t.Fatal(err)
	}
	inv, ok, _ := f.friends.PendingInvite(ctx, "u3")
	if !ok || inv.FromID != "u2" {
		t.Fatalf("pending = %+v, %v", inv, ok)
	}

	_, err := f.friends.AcceptInvite(ctx, "u3", "u1")
	assertKind(t, err, domain.ErrNotFound)
}

func TestDeclineInviteOnlyDeletesInvite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "u1", "alice")
	f.register(t, "u2", "bob")
	if _, err := f.friends.SendInvite(ctx, "u1", "bob"); err != nil {
		t.Fatal(err)
	}

	inv, err := f.friends.DeclineInvite(ctx, "u2", "u1")
	if err != nil || inv.FromID != "u1" {
		t.Fatalf("DeclineInvite = %+v, %v", inv, err)
	}
	doc := f.doc(t)
	if len(doc.Invites) != 0 || len(doc.Galleries) != 0 || doc.Users["u2"].HasFriend("u1") {
		t.Fatalf("decline had side effects: %+v", doc)
	}
	_, err = f.friends.DeclineInvite(ctx, "u2", "")
	assertKind(t, err, domain.ErrNotFound)
}

func TestSetAlias(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "u1", "alice")
	f.register(t, "u2", "bob")
	f.register(t, "u3", "carol")
	f.befriend(t, "u1", "u2")

	if err := f.friends.SetAlias(ctx, "u1", "u2", "Bobby"); err != nil {
		t.Fatalf("SetAlias: %v", err)
	}
	friends, _ := f.friends.Friends(ctx, "u1")
	if len(friends) != 1 || friends[0].DisplayName() != "Bobby" {
		t.Fatalf("friends = %+v", friends)
	}
	other, _ := f.friends.Friends(ctx, "u2")
	if other[0].Alias != "" {
		t.Fatal("alias leaked to the friend's record")
	}

	assertKind(t, f.friends.SetAlias(ctx, "u1", "u2", strings.Repeat("ж", 21)), domain.ErrValidation)
	if err := f.friends.SetAlias(ctx, "u1", "u2", strings.Repeat("ж", 20)); err != nil {
		t.Fatalf("20 characters rejected: %v", err)
	}
	assertKind(t, f.friends.SetAlias(ctx, "u1", "u3", "x"), domain.ErrNotFound)

	if err := f.friends.SetAlias(ctx, "u1", "u2", ""); err != nil {
		t.Fatal(err)
	}
	fr, _ := f.friends.Friend(ctx, "u1", "u2")
	if fr.DisplayName() != "bob" {
		t.Fatalf("display name = %q after clearing alias", fr.DisplayName())
	}
}

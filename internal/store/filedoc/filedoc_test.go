package filedoc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gallerybot/internal/domain"
)

func TestLoadMissingFileReturnsEmptyDocument(t *testing.T) {
	b := New(filepath.Join(t.TempDir(), "data.json"))
	doc, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Users == nil || doc.Galleries == nil || doc.BannedUsers == nil {
		t.Fatalf("document not normalized: %+v", doc)
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.json")
	b := New(path)
	ctx := context.Background()

	doc := domain.NewDocument()
	doc.Users["1"] = domain.Identity{ID: "1", Handle: "alice", Friends: []string{"2"}, RegisteredAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	doc.Galleries["1_2"] = domain.Gallery{Members: []string{"1", "2"}, Items: []domain.Item{{ID: "x", Kind: domain.ContentPhoto, Name: "trip"}}}
	doc.ActiveChats["1"] = "2"
	doc.BannedUsers = []string{"9"}

	if err := b.Save(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Users["1"].Handle != "alice" || got.Galleries["1_2"].Items[0].Name != "trip" {
		t.Fatalf("round trip lost data: %+v", got)
	}
	if got.ActiveChats["1"] != "2" || !got.IsBanned("9") {
		t.Fatalf("round trip lost session or ban: %+v", got)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestLoadKeepsLegacyFieldNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	raw := `{"users":{"7":{"id":"7","username":"bob","friends":["8"],"nicknames":{"8":"al"}}},
"galleries":{"7_8":{"users":["7","8"],"files":[{"type":"photo","file_id":"F","name":"n","comment":"c","added_by":"bob","added_date":"18.10.2025",
"comments":[{"author":"al","text":"nice"}]}]}}}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := New(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	u := doc.Users["7"]
	if u.Handle != "bob" || u.Aliases["8"] != "al" {
		t.Fatalf("user = %+v", u)
	}
	it := doc.Galleries["7_8"].Items[0]
	if it.Handle != "F" || it.Description != "c" || it.Kind != domain.ContentPhoto {
		t.Fatalf("item = %+v", it)
	}
	if want := time.Date(2025, 10, 18, 0, 0, 0, 0, time.UTC); !it.AddedAt.Equal(want) {
		t.Fatalf("added date = %v, want %v", it.AddedAt, want)
	}
	if len(it.Comments) != 1 || it.Comments[0].Author != "al" {
		t.Fatalf("comments = %+v", it.Comments)
	}
	if doc.Invites == nil || doc.ChatRequests == nil {
		t.Fatal("missing collections not allocated")
	}
}

func TestLoadCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path).Load(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}

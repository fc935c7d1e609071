package prefs

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/tektrg/command-bar-extension-sub000/internal/bus"
	"github.com/tektrg/command-bar-extension-sub000/internal/storage"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

func testGateway(t *testing.T) (*Gateway, *bus.Bus) {
	t.Helper()
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	b := bus.New()
	return New(storage.NewKV(db, "popup"), b), b
}

func TestDefaults(t *testing.T) {
	g, _ := testGateway(t)
	ctx := context.Background()

	sort, err := g.LoadSortMode(ctx)
	if err != nil || sort != types.SortByPosition {
		t.Errorf("LoadSortMode = %q, %v", sort, err)
	}
	view, err := g.LoadViewMode(ctx)
	if err != nil || view != types.ViewFolder {
		t.Errorf("LoadViewMode = %q, %v", view, err)
	}
	rel, err := g.LoadRelationships(ctx)
	if err != nil || len(rel) != 0 {
		t.Errorf("LoadRelationships = %v, %v", rel, err)
	}
	pinned, err := g.LoadPinned(ctx)
	if err != nil || len(pinned) != 0 {
		t.Errorf("LoadPinned = %v, %v", pinned, err)
	}
}

func TestSavePinned_DedupesAndCaps(t *testing.T) {
	g, _ := testGateway(t)
	ctx := context.Background()

	var entries []types.PinnedTabEntry
	entries = append(entries,
		types.PinnedTabEntry{URL: "https://a.com/", Title: "A"},
		types.PinnedTabEntry{URL: "https://a.com", Title: "A again"},
		types.PinnedTabEntry{URL: "https://a.com/#top", Title: "A hash"},
	)
	for i := 0; i < 12; i++ {
		entries = append(entries, types.PinnedTabEntry{URL: fmt.Sprintf("https://site%d.com/", i)})
	}

	saved, err := g.SavePinned(ctx, entries)
	if err != nil {
		t.Fatalf("SavePinned: %v", err)
	}
	if len(saved) != MaxPinned {
		t.Fatalf("saved %d entries, want %d", len(saved), MaxPinned)
	}
	if saved[0].URL != "https://a.com" || saved[0].Title != "A" {
		t.Errorf("first entry = %+v", saved[0])
	}

	loaded, err := g.LoadPinned(ctx)
	if err != nil {
		t.Fatalf("LoadPinned: %v", err)
	}
	seen := map[string]bool{}
	for _, e := range loaded {
		if seen[e.URL] {
			t.Errorf("duplicate url %q", e.URL)
		}
		seen[e.URL] = true
	}
	if len(loaded) != MaxPinned {
		t.Errorf("loaded %d entries", len(loaded))
	}
}

func TestSavePinned_Broadcasts(t *testing.T) {
	g, b := testGateway(t)
	ch, unsub := b.Subscribe()
	defer unsub()

	if _, err := g.SavePinned(context.Background(), []types.PinnedTabEntry{{URL: "https://a.com"}}); err != nil {
		t.Fatalf("SavePinned: %v", err)
	}

	var topics []string
	for i := 0; i < 2; i++ {
		select {
		case msg := <-ch:
			topics = append(topics, msg.Topic)
			if msg.Origin != "popup" {
				t.Errorf("origin = %q", msg.Origin)
			}
		case <-time.After(time.Second):
			t.Fatal("missing broadcast")
		}
	}
	if topics[0] != bus.TopicSliceChanged || topics[1] != bus.TopicPinnedChanged {
		t.Errorf("topics = %v", topics)
	}
}

func TestRelationshipsRoundTrip(t *testing.T) {
	g, _ := testGateway(t)
	ctx := context.Background()

	want := types.Relationships{"b1": 10, "b2": 20}
	if err := g.SaveRelationships(ctx, want); err != nil {
		t.Fatalf("SaveRelationships: %v", err)
	}
	got, err := g.LoadRelationships(ctx)
	if err != nil {
		t.Fatalf("LoadRelationships: %v", err)
	}
	if len(got) != 2 || got["b1"] != 10 || got["b2"] != 20 {
		t.Errorf("got %v", got)
	}
}

func TestExpandedRoundTrip(t *testing.T) {
	g, _ := testGateway(t)
	ctx := context.Background()

	if err := g.SaveExpanded(ctx, map[string]bool{"f1": true, "f2": false, "f3": true}); err != nil {
		t.Fatalf("SaveExpanded: %v", err)
	}
	got, err := g.LoadExpanded(ctx)
	if err != nil {
		t.Fatalf("LoadExpanded: %v", err)
	}
	if len(got) != 2 || !got["f1"] || !got["f3"] {
		t.Errorf("got %v", got)
	}
}

func TestModesRejectUnknown(t *testing.T) {
	g, _ := testGateway(t)
	ctx := context.Background()

	if err := g.SaveSortMode(ctx, "bogus"); err == nil {
		t.Error("expected error for unknown sort mode")
	}
	if err := g.SaveViewMode(ctx, types.ViewDomain); err != nil {
		t.Fatalf("SaveViewMode: %v", err)
	}
	mode, err := g.LoadViewMode(ctx)
	if err != nil || mode != types.ViewDomain {
		t.Errorf("LoadViewMode = %q, %v", mode, err)
	}
}

func TestDatedLinksLastWriteWins(t *testing.T) {
	g, _ := testGateway(t)
	d1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	saved, err := g.SaveDatedLinks(context.Background(), []types.DatedLinkEntry{
		{URL: "https://a.com/x/", Date: d1},
		{URL: "https://b.com", Date: d1},
		{URL: "https://a.com/x#y", Date: d2},
	})
	if err != nil {
		t.Fatalf("SaveDatedLinks: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("saved %d entries, want 2", len(saved))
	}
	if saved[0].URL != "https://a.com/x" || !saved[0].Date.Equal(d2) {
		t.Errorf("first entry = %+v", saved[0])
	}
}

func TestCustomTitlesNormalized(t *testing.T) {
	g, _ := testGateway(t)
	ctx := context.Background()

	if _, err := g.SaveCustomTitles(ctx, map[string]string{
		"https://a.com/": "Home",
		"https://b.com":  "",
	}); err != nil {
		t.Fatalf("SaveCustomTitles: %v", err)
	}
	got, err := g.LoadCustomTitles(ctx)
	if err != nil {
		t.Fatalf("LoadCustomTitles: %v", err)
	}
	if len(got) != 1 || got["https://a.com"] != "Home" {
		t.Errorf("got %v", got)
	}
}

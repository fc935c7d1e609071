package pinned

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tektrg/command-bar-extension-sub000/internal/analyzer"
	"github.com/tektrg/command-bar-extension-sub000/internal/host"
	"github.com/tektrg/command-bar-extension-sub000/internal/prefs"
	"github.com/tektrg/command-bar-extension-sub000/internal/storage"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

func testCoordinator(t *testing.T) (*Coordinator, *host.Memory) {
	t.Helper()
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	h := host.NewMemory()
	return New(h, prefs.New(storage.NewKV(db, "popup"), nil)), h
}

func assertCollection(t *testing.T, entries []types.PinnedTabEntry) {
	t.Helper()
	if len(entries) > prefs.MaxPinned {
		t.Errorf("collection has %d entries, cap is %d", len(entries), prefs.MaxPinned)
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		key := analyzer.NormalizeURL(e.URL)
		if seen[key] {
			t.Errorf("duplicate entry %s", key)
		}
		seen[key] = true
	}
}

func TestAddRejectsNormalizedDuplicate(t *testing.T) {
	c, _ := testCoordinator(t)
	ctx := context.Background()

	if r, err := c.Add(ctx, "https://a.com/", "A", "", nil); err != nil || r != Added {
		t.Fatalf("first Add = %v, %v", r, err)
	}
	if r, err := c.Add(ctx, "https://a.com", "A", "", nil); err != nil || r != Duplicate {
		t.Fatalf("second Add = %v, %v; want duplicate", r, err)
	}
	entries, _ := c.Entries(ctx)
	if len(entries) != 1 || entries[0].URL != "https://a.com" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestAddRespectsCapacity(t *testing.T) {
	c, _ := testCoordinator(t)
	ctx := context.Background()

	for i := 0; i < prefs.MaxPinned+3; i++ {
		r, err := c.Add(ctx, fmt.Sprintf("https://site%d.com", i), "", "", nil)
		if err != nil {
			t.Fatal(err)
		}
		want := Added
		if i >= prefs.MaxPinned {
			want = Full
		}
		if r != want {
			t.Errorf("Add #%d = %v, want %v", i, r, want)
		}
	}
	entries, _ := c.Entries(ctx)
	if len(entries) != prefs.MaxPinned {
		t.Errorf("entries = %d", len(entries))
	}
	assertCollection(t, entries)
}

func TestAddRemoveSequenceKeepsInvariants(t *testing.T) {
	c, _ := testCoordinator(t)
	ctx := context.Background()
	urls := []string{"https://a.com", "https://a.com/", "https://b.com#x", "https://c.com", "https://b.com"}
	for round := 0; round < 4; round++ {
		for i := 0; i < 12; i++ {
			u := urls[(i+round)%len(urls)]
			if i%3 == 2 {
				if _, err := c.Remove(ctx, u); err != nil {
					t.Fatal(err)
				}
				continue
			}
			if _, err := c.Add(ctx, fmt.Sprintf("%s/p%d", u, i%5), "", "", nil); err != nil {
				t.Fatal(err)
			}
		}
		entries, err := c.Entries(ctx)
		if err != nil {
			t.Fatal(err)
		}
		assertCollection(t, entries)
	}
}

func TestConcurrentAddsBothSucceed(t *testing.T) {
	c, _ := testCoordinator(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]AddResult, 2)
	errs := make([]error, 2)
	for i, u := range []string{"https://one.com", "https://two.com"} {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			results[i], errs[i] = c.Add(ctx, u, "", "", nil)
		}(i, u)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil || results[i] != Added {
			t.Errorf("Add #%d = %v, %v", i, results[i], errs[i])
		}
	}
	entries, _ := c.Entries(ctx)
	if len(entries) != 2 {
		t.Fatalf("entries = %+v, want both adds", entries)
	}
	assertCollection(t, entries)
}

func TestSyncNowAddsUntrackedAndKeepsClosed(t *testing.T) {
	c, h := testCoordinator(t)
	ctx := context.Background()

	if _, err := c.Add(ctx, "https://kept.com", "Kept", "", nil); err != nil {
		t.Fatal(err)
	}
	h.SeedTab(types.TabRecord{ID: 1, WindowID: 1, URL: "https://pinned.com/", Title: "P", Pinned: true})
	h.SeedTab(types.TabRecord{ID: 2, WindowID: 1, Index: 1, URL: "https://plain.com"})

	added, err := c.SyncNow(ctx)
	if err != nil || added != 1 {
		t.Fatalf("SyncNow = %d, %v", added, err)
	}
	entries, _ := c.Entries(ctx)
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].URL != "https://kept.com" || entries[0].TabID != nil {
		t.Errorf("kept entry = %+v", entries[0])
	}
	if entries[1].URL != "https://pinned.com" || entries[1].TabID == nil || *entries[1].TabID != 1 {
		t.Errorf("synced entry = %+v", entries[1])
	}

	// Closing the tab clears the transient id but keeps the entry.
	if err := h.RemoveTab(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SyncNow(ctx); err != nil {
		t.Fatal(err)
	}
	entries, _ = c.Entries(ctx)
	if len(entries) != 2 || entries[1].TabID != nil {
		t.Errorf("after close entries = %+v", entries)
	}
}

func TestSyncNowFillsOnlyRemainingCapacity(t *testing.T) {
	c, h := testCoordinator(t)
	ctx := context.Background()
	for i := 0; i < prefs.MaxPinned-1; i++ {
		if _, err := c.Add(ctx, fmt.Sprintf("https://have%d.com", i), "", "", nil); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 3; i++ {
		h.SeedTab(types.TabRecord{ID: i + 1, WindowID: 1, Index: i, URL: fmt.Sprintf("https://new%d.com", i), Pinned: true})
	}
	added, err := c.SyncNow(ctx)
	if err != nil || added != 1 {
		t.Fatalf("SyncNow = %d, %v", added, err)
	}
	entries, _ := c.Entries(ctx)
	assertCollection(t, entries)
	if entries[len(entries)-1].URL != "https://new0.com" {
		t.Errorf("last entry = %s, want the first pinned tab", entries[len(entries)-1].URL)
	}
}

func TestSyncNowSkipsUnchangedSave(t *testing.T) {
	c, h := testCoordinator(t)
	ctx := context.Background()
	h.SeedTab(types.TabRecord{ID: 1, WindowID: 1, URL: "https://a.com", Pinned: true})
	saves := 0
	c.OnChange = func([]types.PinnedTabEntry) { saves++ }

	if _, err := c.SyncNow(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SyncNow(ctx); err != nil {
		t.Fatal(err)
	}
	if saves != 1 {
		t.Errorf("saves = %d, want 1", saves)
	}
}

func TestHandleUnpinnedRemoves(t *testing.T) {
	c, _ := testCoordinator(t)
	ctx := context.Background()
	if _, err := c.Add(ctx, "https://a.com", "", "", nil); err != nil {
		t.Fatal(err)
	}
	c.HandleUnpinned(ctx, "https://a.com/#frag")
	if entries, _ := c.Entries(ctx); len(entries) != 0 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestUpdateURLFollowsTab(t *testing.T) {
	c, _ := testCoordinator(t)
	ctx := context.Background()
	one, two := 1, 2
	if _, err := c.Add(ctx, "https://a.com", "A", "", &one); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Add(ctx, "https://b.com", "B", "", &two); err != nil {
		t.Fatal(err)
	}

	if changed, err := c.UpdateURL(ctx, 1, "https://a.com/next/", "Next"); err != nil || !changed {
		t.Fatalf("UpdateURL = %v, %v", changed, err)
	}
	entries, _ := c.Entries(ctx)
	if entries[0].URL != "https://a.com/next" || entries[0].Title != "Next" {
		t.Errorf("entry = %+v", entries[0])
	}

	// Navigating onto another pinned url merges the two.
	if _, err := c.UpdateURL(ctx, 1, "https://b.com", ""); err != nil {
		t.Fatal(err)
	}
	entries, _ = c.Entries(ctx)
	if len(entries) != 1 || entries[0].URL != "https://b.com" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestGuardIsFIFOWithHandoff(t *testing.T) {
	const handoff = 20 * time.Millisecond
	g := NewGuard(handoff)
	ctx := context.Background()

	release, err := g.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := g.Acquire(ctx)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			r()
		}(i)
		for g.Waiting() != i {
			time.Sleep(time.Millisecond)
		}
		// Let the waiter reach the semaphore queue before the next one.
		time.Sleep(5 * time.Millisecond)
	}

	start := time.Now()
	release()
	wg.Wait()

	if fmt.Sprint(order) != "[1 2 3]" {
		t.Errorf("order = %v, want FIFO", order)
	}
	// Three handoffs happened while someone was waiting.
	if elapsed := time.Since(start); elapsed < 2*handoff {
		t.Errorf("elapsed %v, want at least %v of handoff delay", elapsed, 2*handoff)
	}
}

func TestGuardReleaseIsIdempotent(t *testing.T) {
	g := NewGuard(0)
	ctx := context.Background()
	release, err := g.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	release()
	release()

	held, err := g.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer held()
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := g.Acquire(short); err == nil {
		t.Fatal("double release admitted two holders")
	}
}

func TestGuardDoReleasesOnError(t *testing.T) {
	g := NewGuard(0)
	ctx := context.Background()
	boom := fmt.Errorf("boom")
	if err := g.Do(ctx, func(context.Context) error { return boom }); err != boom {
		t.Fatalf("Do err = %v", err)
	}
	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := g.Do(short, func(context.Context) error { return nil }); err != nil {
		t.Errorf("guard still held after error: %v", err)
	}
}

func TestDebounceCollapsesBurst(t *testing.T) {
	const window = 30 * time.Millisecond
	var runs atomic.Int32
	fired := make(chan time.Time, 4)
	d := NewDebouncer(window, func() {
		runs.Add(1)
		fired <- time.Now()
	})
	defer d.Stop()

	var last time.Time
	for i := 0; i < 10; i++ {
		last = time.Now()
		d.Trigger()
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case at := <-fired:
		if at.Sub(last) < window {
			t.Errorf("fired %v after last trigger, want >= %v", at.Sub(last), window)
		}
	case <-time.After(time.Second):
		t.Fatal("debounced function never ran")
	}
	time.Sleep(3 * window)
	if n := runs.Load(); n != 1 {
		t.Errorf("runs = %d, want 1", n)
	}
	if d.Pending() {
		t.Error("still pending")
	}
}

func TestDebounceStopCancels(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(10*time.Millisecond, func() { runs.Add(1) })
	d.Trigger()
	d.Stop()
	d.Trigger()
	time.Sleep(40 * time.Millisecond)
	if runs.Load() != 0 {
		t.Errorf("runs = %d after Stop", runs.Load())
	}
}

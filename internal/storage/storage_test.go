package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// testDB creates a temporary database for testing.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenDB(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "state.db")

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database file not found: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("query migrations: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("applied %d migrations, want %d", count, len(migrations))
	}
}

func TestOpenDB_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	for i := 0; i < 2; i++ {
		db, err := OpenDB(dbPath)
		if err != nil {
			t.Fatalf("OpenDB pass %d: %v", i, err)
		}
		db.Close()
	}
}

func TestKV_SetGet(t *testing.T) {
	kv := NewKV(testDB(t), "popup")
	ctx := context.Background()

	rev, err := kv.Set(ctx, map[string][]byte{
		"pinnedTabs": []byte(`[]`),
		"sortMode":   []byte(`"position"`),
	})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if rev != 1 {
		t.Errorf("first rev = %d, want 1", rev)
	}

	got, err := kv.Get(ctx, "pinnedTabs", "sortMode", "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got["sortMode"]) != `"position"` {
		t.Errorf("sortMode = %q", got["sortMode"])
	}
	if _, ok := got["missing"]; ok {
		t.Error("missing slice should be absent")
	}

	rev2, err := kv.Set(ctx, map[string][]byte{"sortMode": []byte(`"domain"`)})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if rev2 != 2 {
		t.Errorf("second rev = %d, want 2", rev2)
	}
	revs, err := kv.Revisions(ctx)
	if err != nil {
		t.Fatalf("Revisions: %v", err)
	}
	if revs["pinnedTabs"] != 1 || revs["sortMode"] != 2 {
		t.Errorf("revisions = %v", revs)
	}
}

func TestKV_SubscribeReceivesLocalWrites(t *testing.T) {
	kv := NewKV(testDB(t), "sidepanel")
	ch, unsubscribe := kv.Subscribe()
	defer unsubscribe()

	if _, err := kv.Set(context.Background(), map[string][]byte{"customTitles": []byte(`{}`)}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case c := <-ch:
		if len(c.Names) != 1 || c.Names[0] != "customTitles" {
			t.Errorf("names = %v", c.Names)
		}
		if c.External {
			t.Error("local write reported as external")
		}
		if c.Writer != "sidepanel" {
			t.Errorf("writer = %q", c.Writer)
		}
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}
}

func TestKV_DetectExternal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	dbA, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer dbA.Close()
	dbB, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer dbB.Close()

	a := NewKV(dbA, "popup")
	b := NewKV(dbB, "sidepanel")
	ctx := context.Background()

	ch, unsubscribe := a.Subscribe()
	defer unsubscribe()

	if _, err := b.Set(ctx, map[string][]byte{"datedLinks": []byte(`[]`)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := a.detectExternal(ctx); err != nil {
		t.Fatalf("detectExternal: %v", err)
	}

	select {
	case c := <-ch:
		if !c.External || len(c.Names) != 1 || c.Names[0] != "datedLinks" {
			t.Errorf("unexpected change %+v", c)
		}
	default:
		t.Fatal("expected external change")
	}

	// A second pass without new writes publishes nothing.
	if err := a.detectExternal(ctx); err != nil {
		t.Fatalf("detectExternal: %v", err)
	}
	select {
	case c := <-ch:
		t.Errorf("unexpected change %+v", c)
	default:
	}
}

func TestKV_UnsubscribeClosesChannel(t *testing.T) {
	kv := NewKV(testDB(t), "popup")
	ch, unsubscribe := kv.Subscribe()
	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
}

func TestWatchPublishesOtherProcessWrites(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	dbA, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer dbA.Close()
	dbB, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer dbB.Close()

	a := NewKV(dbA, "popup")
	b := NewKV(dbB, "sidepanel")
	ch, unsubscribe := a.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, a, dbPath) }()
	defer func() {
		cancel()
		<-done
	}()
	time.Sleep(100 * time.Millisecond) // let the watcher register

	if _, err := b.Set(context.Background(), map[string][]byte{"pinnedTabs": []byte(`[]`)}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case c := <-ch:
		if !c.External || len(c.Names) != 1 || c.Names[0] != "pinnedTabs" {
			t.Errorf("unexpected change %+v", c)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher published nothing")
	}
}

package applog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAfterInit(t *testing.T) {
	dir := t.TempDir()
	if err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	Info("pinned.sync", "added", 2)
	With("surface", "popup").Error("drag.move", errors.New("boom now"), "bookmark", "12")

	data, err := os.ReadFile(filepath.Join(dir, fileName))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "INFO pinned.sync added=2") {
		t.Errorf("missing info line in %q", out)
	}
	if !strings.Contains(out, `ERROR drag.move err="boom now" bookmark=12 surface=popup`) {
		t.Errorf("missing error line in %q", out)
	}
}

func TestNoopWithoutInit(t *testing.T) {
	Close()
	Warn("nothing.happens", "k", "v")
}

func TestQuoteTruncates(t *testing.T) {
	long := strings.Repeat("x", maxValueLen+10)
	got := quote(long)
	if !strings.HasSuffix(got, truncSuffix) {
		t.Errorf("expected truncation suffix, got %q", got)
	}
}

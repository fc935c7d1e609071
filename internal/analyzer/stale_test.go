package analyzer

import (
	"testing"
	"time"

	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

func TestCategorize(t *testing.T) {
	now := time.Now()
	tabs := []types.TabRecord{
		{ID: 1, URL: "https://fresh.com", LastAccessed: now.Add(-1 * time.Hour)},
		{ID: 2, URL: "https://stale.com", LastAccessed: now.Add(-30 * time.Hour)},
		{ID: 3, URL: "https://focused.com", LastAccessed: now.Add(-90 * time.Hour), Active: true},
		{ID: 4, URL: "https://edge.com", LastAccessed: now.Add(-InactiveAfter)},
	}

	active, inactive := Categorize(tabs, now, InactiveAfter)

	if len(active) != 3 {
		t.Fatalf("expected 3 active tabs, got %d", len(active))
	}
	wantActive := []int{1, 3, 4}
	for i, id := range wantActive {
		if active[i].ID != id {
			t.Errorf("active[%d].ID = %d, want %d", i, active[i].ID, id)
		}
	}
	if len(inactive) != 1 || inactive[0].ID != 2 {
		t.Errorf("expected only tab 2 inactive, got %+v", inactive)
	}
}

func TestIsActive_FocusedTabIgnoresAge(t *testing.T) {
	now := time.Now()
	tab := types.TabRecord{Active: true, LastAccessed: now.Add(-1000 * time.Hour)}
	if !IsActive(tab, now, InactiveAfter) {
		t.Error("focused tab should be active")
	}
}

package analyzer

import (
	"time"

	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// InactiveAfter is how long a tab may go unvisited before it moves to the
// inactive list.
const InactiveAfter = 24 * time.Hour

// IsActive reports whether tab belongs in the active list at now. The
// currently focused tab is always active.
func IsActive(tab types.TabRecord, now time.Time, threshold time.Duration) bool {
	if tab.Active {
		return true
	}
	return now.Sub(tab.LastAccessed) <= threshold
}

// Categorize splits tabs into active and inactive lists, preserving order.
func Categorize(tabs []types.TabRecord, now time.Time, threshold time.Duration) (active, inactive []types.TabRecord) {
	for _, tab := range tabs {
		if IsActive(tab, now, threshold) {
			active = append(active, tab)
		} else {
			inactive = append(inactive, tab)
		}
	}
	return active, inactive
}

package store

import (
	"sort"

	"github.com/tektrg/command-bar-extension-sub000/internal/analyzer"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// Relationship returns the live tab linked to a bookmark.
func (s *Store) Relationship(bookmarkID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.rel[bookmarkID]
	return id, ok
}

// Relationships returns a copy of the relationship map.
func (s *Store) Relationships() types.Relationships {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyRel(s.rel)
}

// SetRelationships replaces the relationship map.
func (s *Store) SetRelationships(rel types.Relationships) {
	s.mu.Lock()
	s.rel = copyRel(rel)
	s.mu.Unlock()
}

// Link records that bookmarkID is open in tabID, replacing any previous
// tab for that bookmark.
func (s *Store) Link(bookmarkID string, tabID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.rel[bookmarkID]; ok && cur == tabID {
		return false
	}
	s.rel[bookmarkID] = tabID
	return true
}

// UnlinkTab removes every relationship pointing at tabID and returns the
// affected bookmark ids.
func (s *Store) UnlinkTab(tabID int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for bm, t := range s.rel {
		if t == tabID {
			out = append(out, bm)
			delete(s.rel, bm)
		}
	}
	sort.Strings(out)
	return out
}

// UnlinkBookmarks removes the relationships of the given bookmarks. It
// reports whether any existed.
func (s *Store) UnlinkBookmarks(ids ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for _, id := range ids {
		if _, ok := s.rel[id]; ok {
			delete(s.rel, id)
			changed = true
		}
	}
	return changed
}

// PruneRelationships drops relationships whose tab is no longer mirrored or
// whose bookmark is gone. It returns how many were dropped.
func (s *Store) PruneRelationships() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for bm, tab := range s.rel {
		_, tabOK := s.tabsByID[tab]
		_, bmOK := s.bookmarksByID[bm]
		if !tabOK || !bmOK {
			delete(s.rel, bm)
			n++
		}
	}
	return n
}

// StaleRelationships returns the bookmark ids whose linked tab is not in
// the tab index.
func (s *Store) StaleRelationships() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for bm, tab := range s.rel {
		if _, ok := s.tabsByID[tab]; !ok {
			out = append(out, bm)
		}
	}
	sort.Strings(out)
	return out
}

func copyRel(rel types.Relationships) types.Relationships {
	out := make(types.Relationships, len(rel))
	for k, v := range rel {
		out[k] = v
	}
	return out
}

// --- history ---

// SetHistory replaces the history results and rebuilds their index.
func (s *Store) SetHistory(items []types.HistoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = s.history[:0]
	s.historyByURL = make(map[string]types.HistoryItem, len(items))
	for _, h := range items {
		key := analyzer.NormalizeURL(h.URL)
		if _, dup := s.historyByURL[key]; dup {
			continue
		}
		s.historyByURL[key] = h
		s.history = append(s.history, h)
	}
}

// History returns the current history results.
func (s *Store) History() []types.HistoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.HistoryItem(nil), s.history...)
}

// HistoryItem looks a url up in the history index.
func (s *Store) HistoryItem(url string) (types.HistoryItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.historyByURL[analyzer.NormalizeURL(url)]
	return h, ok
}

// RemoveHistory drops url from the history results and index.
func (s *Store) RemoveHistory(url string) bool {
	key := analyzer.NormalizeURL(url)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.historyByURL[key]; !ok {
		return false
	}
	delete(s.historyByURL, key)
	kept := s.history[:0]
	for _, h := range s.history {
		if analyzer.NormalizeURL(h.URL) != key {
			kept = append(kept, h)
		}
	}
	s.history = kept
	return true
}

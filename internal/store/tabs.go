package store

import (
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// PatchResult says what PatchTab did.
type PatchResult int

const (
	// Unchanged: the record equals what the store holds.
	Unchanged PatchResult = iota
	// Patched: the record was replaced in place.
	Patched
	// Crossed: the new record belongs in the other list. Nothing was
	// mutated; the caller must reload tabs.
	Crossed
	// Missing: the tab is not tracked.
	Missing
)

func (r PatchResult) String() string {
	switch r {
	case Unchanged:
		return "unchanged"
	case Patched:
		return "patched"
	case Crossed:
		return "crossed"
	}
	return "missing"
}

// AddTab inserts t into its list and shifts the positions of the tabs after
// it in the same window. A tab already tracked is taken out first, closing
// its gap, so a re-delivered create leaves the other positions as they were.
func (s *Store) AddTab(t types.TabRecord) Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.tabsByID[t.ID]; ok {
		if old == t {
			cat, _ := s.categoryLocked(t.ID)
			return cat
		}
		s.removeTabLocked(t.ID)
		s.shiftLocked(old.WindowID, old.Index+1, -1)
	}
	s.shiftLocked(t.WindowID, t.Index, +1)
	cat := s.categorize(t)
	s.insertSortedLocked(cat, t)
	s.tabsByID[t.ID] = t
	return cat
}

// RemoveTab drops a tab from its list and the index map and closes the gap
// in its window.
func (s *Store) RemoveTab(id int) (types.TabRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tabsByID[id]
	if !ok {
		return types.TabRecord{}, false
	}
	s.removeTabLocked(id)
	s.shiftLocked(t.WindowID, t.Index+1, -1)
	return t, true
}

// PatchTab applies a full updated record. A record that would move the tab
// across the active/inactive boundary, or to another position, is not
// applied.
func (s *Store) PatchTab(t types.TabRecord) PatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.tabsByID[t.ID]
	if !ok {
		return Missing
	}
	if old == t {
		return Unchanged
	}
	cat, _ := s.categoryLocked(t.ID)
	if s.categorize(t) != cat || old.WindowID != t.WindowID || old.Index != t.Index {
		return Crossed
	}
	s.replaceLocked(cat, t)
	s.tabsByID[t.ID] = t
	return Patched
}

// ActivateTab marks id as the focused tab of windowID and clears the flag on
// the previously focused tab. It returns the ids whose records changed. If
// either tab would change lists, nothing is mutated and crossed is true.
func (s *Store) ActivateTab(id, windowID int) (changed []int, crossed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tabsByID[id]
	if !ok {
		return nil, false
	}

	var updates []types.TabRecord
	for _, other := range s.tabsByID {
		if other.WindowID == windowID && other.Active && other.ID != id {
			other.Active = false
			updates = append(updates, other)
		}
	}
	if !t.Active {
		t.Active = true
		t.LastAccessed = s.Now()
		updates = append(updates, t)
	}

	for _, u := range updates {
		cat, _ := s.categoryLocked(u.ID)
		if s.categorize(u) != cat {
			return nil, true
		}
	}
	for _, u := range updates {
		cat, _ := s.categoryLocked(u.ID)
		s.replaceLocked(cat, u)
		s.tabsByID[u.ID] = u
		changed = append(changed, u.ID)
	}
	return changed, false
}

// MoveTab records a tab's move within its window.
func (s *Store) MoveTab(id, from, to int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tabsByID[id]
	if !ok || from == to {
		return false
	}
	s.removeTabLocked(id)
	s.shiftLocked(t.WindowID, from+1, -1)
	s.shiftLocked(t.WindowID, to, +1)
	t.Index = to
	cat := s.categorize(t)
	s.insertSortedLocked(cat, t)
	s.tabsByID[id] = t
	return true
}

func (s *Store) removeTabLocked(id int) {
	s.active = dropTab(s.active, id)
	s.inactive = dropTab(s.inactive, id)
	delete(s.tabsByID, id)
}

// shiftLocked adds delta to the index of every tab in windowID at or after
// from.
func (s *Store) shiftLocked(windowID, from, delta int) {
	for _, list := range [][]types.TabRecord{s.active, s.inactive} {
		for i := range list {
			if list[i].WindowID == windowID && list[i].Index >= from {
				list[i].Index += delta
				s.tabsByID[list[i].ID] = list[i]
			}
		}
	}
}

func (s *Store) insertSortedLocked(cat Category, t types.TabRecord) {
	list := &s.active
	if cat == Inactive {
		list = &s.inactive
	}
	pos := len(*list)
	for i, o := range *list {
		if o.WindowID > t.WindowID || (o.WindowID == t.WindowID && o.Index > t.Index) {
			pos = i
			break
		}
	}
	*list = append(*list, types.TabRecord{})
	copy((*list)[pos+1:], (*list)[pos:])
	(*list)[pos] = t
}

func (s *Store) replaceLocked(cat Category, t types.TabRecord) {
	list := s.active
	if cat == Inactive {
		list = s.inactive
	}
	for i := range list {
		if list[i].ID == t.ID {
			list[i] = t
			return
		}
	}
}

func dropTab(list []types.TabRecord, id int) []types.TabRecord {
	for i, t := range list {
		if t.ID == id {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

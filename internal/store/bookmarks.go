package store

import (
	"errors"
	"fmt"

	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

var (
	ErrUnknownBookmark = errors.New("bookmark not in mirror")
	ErrUnknownParent   = errors.New("bookmark parent not in mirror")
)

// InsertBookmark adds n (and its subtree) under n.ParentID at n.Index. A
// node already mirrored is moved there instead.
func (s *Store) InsertBookmark(n *types.BookmarkNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookmarksByID[n.ID]; ok {
		return s.moveLocked(n.ID, n.ParentID, n.Index)
	}
	parent, ok := s.bookmarksByID[n.ParentID]
	if !ok {
		return fmt.Errorf("insert %s under %s: %w", n.ID, n.ParentID, ErrUnknownParent)
	}
	c := n.Clone()
	parent.Children = insertBookmark(parent.Children, c, c.Index)
	reindex(parent)
	c.Walk(func(d *types.BookmarkNode) { s.bookmarksByID[d.ID] = d })
	s.refilterLocked()
	return nil
}

// MoveBookmark relocates a mirrored node. index is its position in the new
// parent's child list after the move.
func (s *Store) MoveBookmark(id, parentID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveLocked(id, parentID, index)
}

func (s *Store) moveLocked(id, parentID string, index int) error {
	n, ok := s.bookmarksByID[id]
	if !ok {
		return fmt.Errorf("move %s: %w", id, ErrUnknownBookmark)
	}
	parent, ok := s.bookmarksByID[parentID]
	if !ok {
		return fmt.Errorf("move %s into %s: %w", id, parentID, ErrUnknownParent)
	}
	for p := parent; p != nil; p = s.bookmarksByID[p.ParentID] {
		if p.ID == id {
			return fmt.Errorf("move %s into its own subtree", id)
		}
		if p.ParentID == "" {
			break
		}
	}
	if old, ok := s.bookmarksByID[n.ParentID]; ok {
		old.Children = removeBookmark(old.Children, id)
		reindex(old)
	}
	n.ParentID = parentID
	parent.Children = insertBookmark(parent.Children, n, index)
	reindex(parent)
	s.refilterLocked()
	return nil
}

// UpdateBookmark replaces the title and/or url of a mirrored node. It
// reports whether anything changed.
func (s *Store) UpdateBookmark(id string, title, url *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.bookmarksByID[id]
	if !ok {
		return false, fmt.Errorf("update %s: %w", id, ErrUnknownBookmark)
	}
	changed := false
	if title != nil && *title != n.Title {
		n.Title = *title
		changed = true
	}
	if url != nil && *url != n.URL && !n.IsFolder() {
		n.URL = *url
		changed = true
	}
	if changed {
		s.refilterLocked()
	}
	return changed, nil
}

// RemoveBookmark drops a node and its subtree from the tree and the index
// map, and returns the removed ids.
func (s *Store) RemoveBookmark(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.bookmarksByID[id]
	if !ok {
		return nil
	}
	if parent, ok := s.bookmarksByID[n.ParentID]; ok {
		parent.Children = removeBookmark(parent.Children, id)
		reindex(parent)
	} else {
		s.roots = removeBookmark(s.roots, id)
	}
	var removed []string
	n.Walk(func(d *types.BookmarkNode) {
		removed = append(removed, d.ID)
		delete(s.bookmarksByID, d.ID)
		delete(s.expanded, d.ID)
	})
	s.refilterLocked()
	return removed
}

// ChildIDs returns the mirrored child order of a folder.
func (s *Store) ChildIDs(parentID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.bookmarksByID[parentID]
	if !ok {
		return nil
	}
	out := make([]string, len(n.Children))
	for i, c := range n.Children {
		out[i] = c.ID
	}
	return out
}

func removeBookmark(children []*types.BookmarkNode, id string) []*types.BookmarkNode {
	for i, c := range children {
		if c.ID == id {
			return append(children[:i:i], children[i+1:]...)
		}
	}
	return children
}

func insertBookmark(children []*types.BookmarkNode, n *types.BookmarkNode, index int) []*types.BookmarkNode {
	if index < 0 || index > len(children) {
		index = len(children)
	}
	children = append(children, nil)
	copy(children[index+1:], children[index:])
	children[index] = n
	return children
}

func reindex(parent *types.BookmarkNode) {
	for i, c := range parent.Children {
		c.Index = i
	}
}

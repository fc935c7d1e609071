// Package prefs is the typed gateway over the persisted slices shared by
// every surface. Each Save validates its slice, writes it and broadcasts a
// change notification; Load returns defaults for slices never written.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tektrg/command-bar-extension-sub000/internal/analyzer"
	"github.com/tektrg/command-bar-extension-sub000/internal/bus"
	"github.com/tektrg/command-bar-extension-sub000/internal/storage"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// Slice names as stored in the KV store.
const (
	SliceExpandedFolders = "expandedFolders"
	SliceRelationships   = "bookmarkTabRelationships"
	SliceTabSortMode     = "tabSortMode"
	SliceViewMode        = "bookmarkViewMode"
	SlicePinnedTabs      = "pinnedTabs"
	SliceDatedLinks      = "datedLinks"
	SliceCustomTitles    = "customTitles"
)

// MaxPinned caps the pinned-tab collection.
const MaxPinned = 9

// Gateway loads and saves typed slices.
type Gateway struct {
	kv  *storage.KV
	bus *bus.Bus
}

// New returns a gateway over kv. b may be nil, in which case writes are not
// broadcast.
func New(kv *storage.KV, b *bus.Bus) *Gateway {
	return &Gateway{kv: kv, bus: b}
}

func (g *Gateway) load(ctx context.Context, name string, v any) (bool, error) {
	values, err := g.kv.Get(ctx, name)
	if err != nil {
		return false, err
	}
	raw, ok := values[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (g *Gateway) save(ctx context.Context, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if _, err := g.kv.Set(ctx, map[string][]byte{name: raw}); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	g.broadcast(name)
	return nil
}

func (g *Gateway) broadcast(name string) {
	if g.bus == nil {
		return
	}
	g.bus.Publish(bus.Message{Topic: bus.TopicSliceChanged, Slice: name, Origin: g.kv.Writer()})
	if name == SlicePinnedTabs {
		g.bus.Publish(bus.Message{Topic: bus.TopicPinnedChanged, Slice: name, Origin: g.kv.Writer()})
	}
}

// LoadExpanded returns the set of expanded folder ids.
func (g *Gateway) LoadExpanded(ctx context.Context) (map[string]bool, error) {
	var ids []string
	if _, err := g.load(ctx, SliceExpandedFolders, &ids); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// SaveExpanded stores the expanded folder ids in sorted order.
func (g *Gateway) SaveExpanded(ctx context.Context, expanded map[string]bool) error {
	ids := make([]string, 0, len(expanded))
	for id, open := range expanded {
		if open {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return g.save(ctx, SliceExpandedFolders, ids)
}

// LoadRelationships returns the persisted bookmark to tab map.
func (g *Gateway) LoadRelationships(ctx context.Context) (types.Relationships, error) {
	rel := types.Relationships{}
	if _, err := g.load(ctx, SliceRelationships, &rel); err != nil {
		return nil, err
	}
	return rel, nil
}

func (g *Gateway) SaveRelationships(ctx context.Context, rel types.Relationships) error {
	if rel == nil {
		rel = types.Relationships{}
	}
	return g.save(ctx, SliceRelationships, rel)
}

// LoadSortMode returns the tab sort mode, defaulting to position order.
func (g *Gateway) LoadSortMode(ctx context.Context) (types.TabSortMode, error) {
	var mode types.TabSortMode
	if _, err := g.load(ctx, SliceTabSortMode, &mode); err != nil {
		return types.SortByPosition, err
	}
	if !ValidSortMode(mode) {
		return types.SortByPosition, nil
	}
	return mode, nil
}

func (g *Gateway) SaveSortMode(ctx context.Context, mode types.TabSortMode) error {
	if !ValidSortMode(mode) {
		return fmt.Errorf("unknown tab sort mode %q", mode)
	}
	return g.save(ctx, SliceTabSortMode, mode)
}

// LoadViewMode returns the bookmark view mode, defaulting to the folder tree.
func (g *Gateway) LoadViewMode(ctx context.Context) (types.BookmarkViewMode, error) {
	var mode types.BookmarkViewMode
	if _, err := g.load(ctx, SliceViewMode, &mode); err != nil {
		return types.ViewFolder, err
	}
	if !ValidViewMode(mode) {
		return types.ViewFolder, nil
	}
	return mode, nil
}

func (g *Gateway) SaveViewMode(ctx context.Context, mode types.BookmarkViewMode) error {
	if !ValidViewMode(mode) {
		return fmt.Errorf("unknown bookmark view mode %q", mode)
	}
	return g.save(ctx, SliceViewMode, mode)
}

// LoadPinned returns the pinned-tab collection.
func (g *Gateway) LoadPinned(ctx context.Context) ([]types.PinnedTabEntry, error) {
	var entries []types.PinnedTabEntry
	if _, err := g.load(ctx, SlicePinnedTabs, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SavePinned normalizes, deduplicates and caps entries before writing them.
// It returns what was actually stored.
func (g *Gateway) SavePinned(ctx context.Context, entries []types.PinnedTabEntry) ([]types.PinnedTabEntry, error) {
	clean := DedupePinned(entries)
	if err := g.save(ctx, SlicePinnedTabs, clean); err != nil {
		return nil, err
	}
	return clean, nil
}

// LoadDatedLinks returns the dated-link collection.
func (g *Gateway) LoadDatedLinks(ctx context.Context) ([]types.DatedLinkEntry, error) {
	var entries []types.DatedLinkEntry
	if _, err := g.load(ctx, SliceDatedLinks, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SaveDatedLinks deduplicates by normalized url (last write wins) before
// writing.
func (g *Gateway) SaveDatedLinks(ctx context.Context, entries []types.DatedLinkEntry) ([]types.DatedLinkEntry, error) {
	clean := DedupeDatedLinks(entries)
	if err := g.save(ctx, SliceDatedLinks, clean); err != nil {
		return nil, err
	}
	return clean, nil
}

// LoadCustomTitles returns custom titles keyed by normalized url.
func (g *Gateway) LoadCustomTitles(ctx context.Context) (map[string]string, error) {
	titles := map[string]string{}
	if _, err := g.load(ctx, SliceCustomTitles, &titles); err != nil {
		return nil, err
	}
	return titles, nil
}

// SaveCustomTitles re-keys titles by normalized url and drops empty titles.
func (g *Gateway) SaveCustomTitles(ctx context.Context, titles map[string]string) (map[string]string, error) {
	clean := make(map[string]string, len(titles))
	for url, title := range titles {
		if title == "" {
			continue
		}
		clean[analyzer.NormalizeURL(url)] = title
	}
	if err := g.save(ctx, SliceCustomTitles, clean); err != nil {
		return nil, err
	}
	return clean, nil
}

// DedupePinned keeps the first entry for each normalized url, stores the
// normalized form and caps the result at MaxPinned.
func DedupePinned(entries []types.PinnedTabEntry) []types.PinnedTabEntry {
	seen := make(map[string]bool, len(entries))
	out := make([]types.PinnedTabEntry, 0, len(entries))
	for _, e := range entries {
		key := analyzer.NormalizeURL(e.URL)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		e.URL = key
		out = append(out, e)
		if len(out) == MaxPinned {
			break
		}
	}
	return out
}

// DedupeDatedLinks keeps the last entry for each normalized url, in the
// position of its first occurrence.
func DedupeDatedLinks(entries []types.DatedLinkEntry) []types.DatedLinkEntry {
	pos := make(map[string]int, len(entries))
	out := make([]types.DatedLinkEntry, 0, len(entries))
	for _, e := range entries {
		key := analyzer.NormalizeURL(e.URL)
		e.URL = key
		if i, ok := pos[key]; ok {
			out[i] = e
			continue
		}
		pos[key] = len(out)
		out = append(out, e)
	}
	return out
}

func ValidSortMode(m types.TabSortMode) bool {
	switch m {
	case types.SortByPosition, types.SortByLastVisit, types.SortByDomain:
		return true
	}
	return false
}

func ValidViewMode(m types.BookmarkViewMode) bool {
	switch m {
	case types.ViewFolder, types.ViewActive, types.ViewDomain:
		return true
	}
	return false
}

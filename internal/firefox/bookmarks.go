package firefox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// Firefox root folder guids. The WebExtension API exposes them as ids.
const (
	RootGUID    = "root________"
	MenuGUID    = "menu________"
	ToolbarGUID = "toolbar_____"
	UnfiledGUID = "unfiled_____"
	MobileGUID  = "mobile______"
)

var rootTitles = map[string]string{
	MenuGUID:    "Bookmarks Menu",
	ToolbarGUID: "Bookmarks Toolbar",
	UnfiledGUID: "Other Bookmarks",
	MobileGUID:  "Mobile Bookmarks",
}

const placeContainer = "text/x-moz-place-container"

type rawBookmark struct {
	GUID     string        `json:"guid"`
	Title    string        `json:"title"`
	Index    int           `json:"index"`
	Type     string        `json:"type"`
	URI      string        `json:"uri"`
	Children []rawBookmark `json:"children"`
}

func (r rawBookmark) node(parentID string) *types.BookmarkNode {
	n := &types.BookmarkNode{
		ID:       r.GUID,
		ParentID: parentID,
		Index:    r.Index,
		Title:    r.Title,
	}
	if t, ok := rootTitles[r.GUID]; ok {
		n.Title = t
	}
	if r.Type != placeContainer {
		n.URL = r.URI
	}
	for _, c := range r.Children {
		// Separators carry neither children nor a uri.
		if c.Type != placeContainer && c.URI == "" {
			continue
		}
		n.Children = append(n.Children, c.node(n.ID))
	}
	for i, c := range n.Children {
		c.Index = i
	}
	return n
}

// ParseBookmarkBackup parses the JSON of a bookmarkbackups file into the
// bookmark forest. Separators are dropped and child indices renumbered.
func ParseBookmarkBackup(data []byte) ([]*types.BookmarkNode, error) {
	var raw rawBookmark
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse bookmark backup: %w", err)
	}
	if raw.GUID == "" {
		raw.GUID = RootGUID
	}
	return []*types.BookmarkNode{raw.node("")}, nil
}

// LatestBookmarkBackup returns the newest file in the profile's
// bookmarkbackups directory. Names embed the date, so the lexical maximum
// is the newest.
func LatestBookmarkBackup(profileDir string) (string, error) {
	dir := filepath.Join(profileDir, "bookmarkbackups")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read bookmark backups: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "bookmarks-") && strings.HasSuffix(e.Name(), ".jsonlz4") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no bookmark backup in %s", dir)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}

// ReadBookmarks reads the newest bookmark backup of a profile.
func ReadBookmarks(profileDir string) ([]*types.BookmarkNode, error) {
	path, err := LatestBookmarkBackup(profileDir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bookmark backup: %w", err)
	}
	decompressed, err := DecompressMozLz4(data)
	if err != nil {
		return nil, fmt.Errorf("decompress bookmark backup: %w", err)
	}
	return ParseBookmarkBackup(decompressed)
}

package firefox

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// mozlz4 header: 8-byte magic "mozLz40\x00"
var mozLz4Magic = []byte("mozLz40\x00")

// DecompressMozLz4 decompresses data in Mozilla's mozlz4 format.
// The format is: 8-byte magic "mozLz40\x00" + 4-byte LE uint32 uncompressed size + lz4 block data.
func DecompressMozLz4(data []byte) ([]byte, error) {
	const headerSize = 12 // 8 magic + 4 size

	if len(data) < headerSize {
		return nil, fmt.Errorf("mozlz4: data too short (%d bytes)", len(data))
	}
	for i := range mozLz4Magic {
		if data[i] != mozLz4Magic[i] {
			return nil, fmt.Errorf("mozlz4: invalid header magic")
		}
	}

	uncompressedSize := binary.LittleEndian.Uint32(data[8:12])
	dst := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(data[headerSize:], dst)
	if err != nil {
		return nil, fmt.Errorf("mozlz4: decompress failed: %w", err)
	}
	return dst[:n], nil
}

// CompressMozLz4 encodes data in the mozlz4 format.
func CompressMozLz4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("mozlz4: compress failed: %w", err)
	}
	out := make([]byte, 0, 12+n)
	out = append(out, mozLz4Magic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
	return append(out, dst[:n]...), nil
}

// Raw JSON types for Firefox session file parsing.
type rawEntry struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type rawTab struct {
	Entries      []rawEntry `json:"entries"`
	Index        int        `json:"index"`
	LastAccessed int64      `json:"lastAccessed"`
	Image        string     `json:"image"`
	Pinned       bool       `json:"pinned"`
}

type rawWindow struct {
	Tabs     []rawTab `json:"tabs"`
	Selected int      `json:"selected"`
}

type rawSession struct {
	Windows []rawWindow `json:"windows"`
}

// Session is the browser state recovered from a session file.
type Session struct {
	Tabs []types.TabRecord
	// History holds every navigation entry of every tab, newest visit
	// first per url.
	History []types.HistoryItem
}

// ParseSession parses raw JSON session data. Tabs get sequential ids in
// window order; windows are numbered from 1.
func ParseSession(data []byte) (*Session, error) {
	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse session JSON: %w", err)
	}

	s := &Session{}
	seen := make(map[string]int)
	nextID := 1
	for winIdx, window := range raw.Windows {
		pos := 0
		for tabIdx, rt := range window.Tabs {
			if len(rt.Entries) == 0 {
				continue
			}

			// index is 1-based; current page is entries[index-1].
			entryIdx := rt.Index - 1
			if entryIdx < 0 || entryIdx >= len(rt.Entries) {
				entryIdx = len(rt.Entries) - 1
			}
			entry := rt.Entries[entryIdx]
			accessed := time.UnixMilli(rt.LastAccessed)

			s.Tabs = append(s.Tabs, types.TabRecord{
				ID:           nextID,
				WindowID:     winIdx + 1,
				Index:        pos,
				URL:          entry.URL,
				Title:        entry.Title,
				Favicon:      rt.Image,
				Active:       window.Selected == tabIdx+1,
				Pinned:       rt.Pinned,
				LastAccessed: accessed,
			})
			nextID++
			pos++

			for _, e := range rt.Entries {
				if e.URL == "" {
					continue
				}
				if i, ok := seen[e.URL]; ok {
					s.History[i].VisitCount++
					if accessed.After(s.History[i].LastVisitTime) {
						s.History[i].LastVisitTime = accessed
					}
					continue
				}
				seen[e.URL] = len(s.History)
				s.History = append(s.History, types.HistoryItem{
					URL:           e.URL,
					Title:         e.Title,
					VisitCount:    1,
					LastVisitTime: accessed,
				})
			}
		}
	}
	return s, nil
}

// ReadSessionFile reads and parses a Firefox session recovery file from the given profile directory.
// It tries recovery.jsonlz4 first (active session), then previous.jsonlz4 (last closed session).
func ReadSessionFile(profileDir string) (*Session, error) {
	backupDir := filepath.Join(profileDir, "sessionstore-backups")
	var data []byte
	var err error
	for _, name := range sessionFiles {
		data, err = os.ReadFile(filepath.Join(backupDir, name))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("no session file found in %s", backupDir)
	}

	decompressed, err := DecompressMozLz4(data)
	if err != nil {
		return nil, fmt.Errorf("decompress session file: %w", err)
	}
	return ParseSession(decompressed)
}

var sessionFiles = []string{"recovery.jsonlz4", "previous.jsonlz4"}

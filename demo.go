package main

import (
	"time"

	"github.com/tektrg/command-bar-extension-sub000/internal/host"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// demoHost is an in-memory browser with a few bookmarks, tabs and history
// entries, for trying the panel without Firefox.
func demoHost() *host.Memory {
	h := host.NewMemory()
	now := time.Now()

	dev := h.SeedBookmark(host.ToolbarID, "Dev", "")
	h.SeedBookmark(dev.ID, "Go documentation", "https://go.dev/doc/")
	h.SeedBookmark(dev.ID, "pkg.go.dev", "https://pkg.go.dev/")
	h.SeedBookmark(host.ToolbarID, "Hacker News", "https://news.ycombinator.com/")
	reading := h.SeedBookmark(host.OtherFolderID, "Reading", "")
	h.SeedBookmark(reading.ID, "Effective Go", "https://go.dev/doc/effective_go")

	h.SeedTab(types.TabRecord{WindowID: 1, Index: 0, URL: "https://go.dev/doc/", Title: "Documentation - The Go Programming Language", Active: true})
	h.SeedTab(types.TabRecord{WindowID: 1, Index: 1, URL: "https://github.com/", Title: "GitHub", Pinned: true})
	h.SeedTab(types.TabRecord{WindowID: 1, Index: 2, URL: "https://en.wikipedia.org/wiki/Go_(programming_language)", Title: "Go (programming language) - Wikipedia",
		LastAccessed: now.Add(-72 * time.Hour)})

	h.SeedHistory(
		types.HistoryItem{URL: "https://go.dev/blog/", Title: "The Go Blog", VisitCount: 4, LastVisitTime: now.Add(-2 * time.Hour)},
		types.HistoryItem{URL: "https://go.dev/play/", Title: "Go Playground", VisitCount: 1, LastVisitTime: now.Add(-26 * time.Hour)},
	)
	return h
}

package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/tektrg/command-bar-extension-sub000/internal/applog"
	"github.com/tektrg/command-bar-extension-sub000/internal/export"
	"github.com/tektrg/command-bar-extension-sub000/internal/panel"
	"github.com/tektrg/command-bar-extension-sub000/internal/pinned"
	"github.com/tektrg/command-bar-extension-sub000/internal/prefs"
	"github.com/tektrg/command-bar-extension-sub000/internal/surface"
)

var slices = map[string]bool{
	prefs.SliceExpandedFolders: true,
	prefs.SliceRelationships:   true,
	prefs.SliceTabSortMode:     true,
	prefs.SliceViewMode:        true,
	prefs.SlicePinnedTabs:      true,
	prefs.SliceDatedLinks:      true,
	prefs.SliceCustomTitles:    true,
}

// API serves the read side of one surface over HTTP, plus the extension
// WebSocket endpoint.
type API struct {
	surface *surface.Surface
	ws      *Server
}

// NewAPI returns an API over sf. ws may be nil when no extension bridge is
// running.
func NewAPI(sf *surface.Surface, ws *Server) *API {
	return &API{surface: sf, ws: ws}
}

type pinRequest struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Favicon string `json:"favicon"`
}

// Handler returns the routed handler wrapped with CORS for extension pages.
func (a *API) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/api/ping", a.ping).Methods("GET")
	router.HandleFunc("/api/pinned", a.listPinned).Methods("GET")
	router.HandleFunc("/api/pinned", a.addPinned).Methods("POST")
	router.HandleFunc("/api/pinned", a.removePinned).Methods("DELETE")
	router.HandleFunc("/api/view/{section}", a.view).Methods("GET")
	router.HandleFunc("/api/slices/{name}", a.slice).Methods("GET")
	if a.ws != nil {
		router.Handle("/ws", a.ws.Handler())
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
	return c.Handler(router)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.Error("api.encode", err)
	}
}

func (a *API) ping(w http.ResponseWriter, r *http.Request) {
	connected := a.ws != nil && a.ws.Connected()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"surface":   a.surface.ID,
		"extension": connected,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) listPinned(w http.ResponseWriter, r *http.Request) {
	entries, err := a.surface.Pinned().Entries(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) addPinned(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := a.surface.Pinned().Add(r.Context(), req.URL, req.Title, req.Favicon, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	status := http.StatusCreated
	switch res {
	case pinned.Duplicate:
		status = http.StatusConflict
	case pinned.Full, pinned.Invalid:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"result": res.String()})
}

func (a *API) removePinned(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}
	removed, err := a.surface.Pinned().Remove(r.Context(), url)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !removed {
		http.Error(w, "not pinned", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) view(w http.ResponseWriter, r *http.Request) {
	id := "section:" + mux.Vars(r)["section"]
	var (
		out export.SectionView
		ok  bool
	)
	a.surface.View(func(p *panel.Panel) {
		out, ok = export.Section(p, id)
	})
	if !ok {
		http.Error(w, "unknown section", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) slice(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if !slices[name] {
		http.Error(w, "unknown slice", http.StatusNotFound)
		return
	}
	values, err := a.surface.KV().Get(r.Context(), name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	raw, ok := values[name]
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

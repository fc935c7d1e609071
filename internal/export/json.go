package export

import (
	"encoding/json"
	"time"

	"github.com/tektrg/command-bar-extension-sub000/internal/analyzer"
	"github.com/tektrg/command-bar-extension-sub000/internal/panel"
)

type jsonExport struct {
	Surface    string        `json:"surface"`
	ExportedAt time.Time     `json:"exported_at"`
	Sections   []SectionView `json:"sections"`
}

// SectionView is the serialized form of one panel section.
type SectionView struct {
	ID    string     `json:"id"`
	Title string     `json:"title"`
	Items []ItemView `json:"items"`
}

// ItemView is one row of a section. Folders carry their children.
type ItemView struct {
	ID       string     `json:"id"`
	Kind     string     `json:"kind"`
	Title    string     `json:"title"`
	URL      string     `json:"url,omitempty"`
	Domain   string     `json:"domain,omitempty"`
	Badges   []string   `json:"badges,omitempty"`
	Children []ItemView `json:"children,omitempty"`
}

// Section returns the serialized form of one section.
func Section(p *panel.Panel, id string) (SectionView, bool) {
	s, ok := p.Find(id)
	if !ok || s.Kind != panel.KindSection {
		return SectionView{}, false
	}
	view := SectionView{ID: s.ID, Title: s.Title, Items: make([]ItemView, 0, len(s.Children))}
	for _, c := range s.Children {
		view.Items = append(view.Items, item(c))
	}
	return view, true
}

func item(n *panel.Node) ItemView {
	v := ItemView{
		ID:     panel.EntityID(n.ID),
		Kind:   string(n.Kind),
		Title:  n.Title,
		URL:    n.URL,
		Badges: n.Badges,
	}
	if n.URL != "" {
		v.Domain = analyzer.Hostname(n.URL)
	}
	for _, c := range n.Children {
		v.Children = append(v.Children, item(c))
	}
	return v
}

// JSON formats every section of p as a JSON document.
func JSON(name string, p *panel.Panel) (string, error) {
	out := jsonExport{
		Surface:    name,
		ExportedAt: now(),
		Sections:   make([]SectionView, 0, len(panel.Sections)),
	}
	for _, id := range panel.Sections {
		if s, ok := Section(p, id); ok {
			out.Sections = append(out.Sections, s)
		}
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

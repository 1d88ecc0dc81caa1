// Package catalog resolves media IDs to titles and kinds.
//
// The storefront never owns the catalog; it only reads it to label cart
// items and to reject IDs that do not exist.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/carta/internal/model"
)

// ErrNotFound is returned by Lookup for unknown IDs.
var ErrNotFound = errors.New("media not found")

// Entry is one catalog item.
type Entry struct {
	ID      int64           `yaml:"id" json:"id"`
	Title   string          `yaml:"title" json:"title"`
	Kind    model.MediaKind `yaml:"kind" json:"kind"`
	Year    int             `yaml:"year,omitempty" json:"year,omitempty"`
	Seasons int             `yaml:"seasons,omitempty" json:"seasons,omitempty"`
}

// Source is a read-only catalog.
type Source interface {
	Lookup(ctx context.Context, id int64) (Entry, error)
}

// LineItem builds a cart item for e. Series start with the first season
// selected.
func (e Entry) LineItem(method model.PaymentMethod) model.CartLineItem {
	item := model.CartLineItem{
		ID:            e.ID,
		Title:         e.Title,
		Kind:          e.Kind,
		PaymentMethod: method,
	}
	if e.Kind == model.KindSeries {
		item.SelectedSeasons = []int{1}
	}
	return item
}

// Static is an in-memory catalog.
type Static struct {
	entries map[int64]Entry
}

type file struct {
	Media []Entry `yaml:"media"`
}

// NewStatic builds a catalog from entries. IDs must be positive and unique.
func NewStatic(entries []Entry) (*Static, error) {
	s := &Static{entries: make(map[int64]Entry, len(entries))}
	for i, e := range entries {
		if e.ID <= 0 {
			return nil, fmt.Errorf("media[%d]: id must be positive", i)
		}
		if e.Title == "" {
			return nil, fmt.Errorf("media[%d]: title is required", i)
		}
		if !e.Kind.Valid() {
			return nil, fmt.Errorf("media[%d]: unknown kind %q", i, e.Kind)
		}
		if e.Seasons < 0 {
			return nil, fmt.Errorf("media[%d]: seasons must be non-negative", i)
		}
		if _, dup := s.entries[e.ID]; dup {
			return nil, fmt.Errorf("media[%d]: duplicate id %d", i, e.ID)
		}
		s.entries[e.ID] = e
	}
	return s, nil
}

// Load reads a YAML catalog file with a top-level "media" list.
// Unknown fields are rejected.
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	s, err := NewStatic(f.Media)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return s, nil
}

// Lookup returns the entry for id.
func (s *Static) Lookup(ctx context.Context, id int64) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("id %d: %w", id, ErrNotFound)
	}
	return e, nil
}

// All returns every entry ordered by ID.
func (s *Static) All() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of entries.
func (s *Static) Len() int {
	return len(s.entries)
}

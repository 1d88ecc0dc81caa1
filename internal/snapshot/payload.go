package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/notify"
)

// Format identifies the payload layout. Bump the suffix on incompatible changes.
const Format = "carta/admin-state/v1"

// ErrForeignPayload is returned by Decode for data that is not a payload of
// this format.
var ErrForeignPayload = errors.New("foreign payload")

// Payload is the replicated admin state.
type Payload struct {
	Format        string               `json:"format"`
	Prices        model.PriceConfig    `json:"prices"`
	DeliveryZones []model.DeliveryZone `json:"delivery_zones"`
	Novels        []model.Novel        `json:"novels"`
	Notifications notify.Log           `json:"notifications"`
	LastSyncedAt  *time.Time           `json:"last_synced_at,omitempty"`
}

// Encode serializes p. Nil slices are written as empty arrays so that a
// decoded payload compares equal to its source.
func Encode(p Payload) ([]byte, error) {
	p.Format = Format
	if p.DeliveryZones == nil {
		p.DeliveryZones = []model.DeliveryZone{}
	}
	if p.Novels == nil {
		p.Novels = []model.Novel{}
	}
	if p.Notifications == nil {
		p.Notifications = notify.Log{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// Decode parses data written by Encode.
//
// Unknown fields, a missing or different Format, trailing data and records
// without identity are rejected. The notification log is truncated to
// notify.Capacity.
func Decode(data []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Payload{}, fmt.Errorf("decode payload: trailing data")
	}
	if p.Format != Format {
		return Payload{}, fmt.Errorf("decode payload: format %q: %w", p.Format, ErrForeignPayload)
	}
	if err := p.validate(); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}

	if p.DeliveryZones == nil {
		p.DeliveryZones = []model.DeliveryZone{}
	}
	if p.Novels == nil {
		p.Novels = []model.Novel{}
	}
	if p.Notifications == nil {
		p.Notifications = notify.Log{}
	}
	p.Notifications = p.Notifications.Truncate()
	return p, nil
}

func (p Payload) validate() error {
	if !p.Prices.Valid() {
		return fmt.Errorf("invalid prices: %w", ErrForeignPayload)
	}
	seen := make(map[string]bool, len(p.DeliveryZones))
	for i, z := range p.DeliveryZones {
		if z.ID == "" || seen[z.ID] {
			return fmt.Errorf("delivery_zones[%d]: missing or duplicate id: %w", i, ErrForeignPayload)
		}
		seen[z.ID] = true
	}
	seen = make(map[string]bool, len(p.Novels))
	for i, n := range p.Novels {
		if n.ID == "" || seen[n.ID] {
			return fmt.Errorf("novels[%d]: missing or duplicate id: %w", i, ErrForeignPayload)
		}
		seen[n.ID] = true
	}
	return nil
}

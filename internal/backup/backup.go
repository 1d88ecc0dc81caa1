// Package backup exports the admin configuration as a JSON document.
package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/state"
)

const (
	AppName = "TV a la Carta"
	Version = "3.0.0"
)

// Document is the exported backup.
type Document struct {
	AppName       string               `json:"app_name"`
	Version       string               `json:"version"`
	ExportDate    time.Time            `json:"export_date"`
	AdminConfig   AdminConfig          `json:"admin_config"`
	Notifications []model.Notification `json:"notifications"`
	Metadata      Metadata             `json:"metadata"`
}

// AdminConfig is the replicated admin data at export time.
type AdminConfig struct {
	Prices        model.PriceConfig    `json:"prices"`
	DeliveryZones []model.DeliveryZone `json:"delivery_zones"`
	Novels        []model.Novel        `json:"novels"`
	SyncStatus    model.SyncStatus     `json:"sync_status"`
	LastUpdates   LastUpdates          `json:"last_updates"`
}

// LastUpdates holds the per-section modification times.
type LastUpdates struct {
	Prices *time.Time `json:"prices,omitempty"`
	Zones  *time.Time `json:"zones,omitempty"`
	Novels *time.Time `json:"novels,omitempty"`
}

// Metadata summarizes the document.
type Metadata struct {
	TotalZones         int        `json:"total_zones"`
	ActiveZones        int        `json:"active_zones"`
	TotalNovels        int        `json:"total_novels"`
	ActiveNovels       int        `json:"active_novels"`
	LastBackup         *time.Time `json:"last_backup,omitempty"`
	TransferFeePercent float64    `json:"transfer_fee_percent"`
}

// Build assembles the backup document for s.
func Build(s state.State, now time.Time) Document {
	a := s.Admin
	activeNovels := 0
	for _, n := range a.Novels {
		if n.Active {
			activeNovels++
		}
	}

	return Document{
		AppName:    AppName,
		Version:    Version,
		ExportDate: model.Stamp(now),
		AdminConfig: AdminConfig{
			Prices:        a.Prices,
			DeliveryZones: nonNil(a.DeliveryZones),
			Novels:        nonNil(a.Novels),
			SyncStatus:    a.Sync,
			LastUpdates: LastUpdates{
				Prices: a.LastPriceUpdate,
				Zones:  a.LastZoneUpdate,
				Novels: a.LastNovelUpdate,
			},
		},
		Notifications: nonNil([]model.Notification(a.Notifications)),
		Metadata: Metadata{
			TotalZones:         len(a.DeliveryZones),
			ActiveZones:        len(a.ActiveZones()),
			TotalNovels:        len(a.Novels),
			ActiveNovels:       activeNovels,
			LastBackup:         a.LastBackup,
			TransferFeePercent: a.Prices.TransferFeePercent,
		},
	}
}

// Write encodes d as indented JSON followed by a newline.
func Write(w io.Writer, d Document) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return nil
}

// Export writes the backup of c's current state to w, then records the
// export time on the container.
func Export(c *state.Container, w io.Writer, now time.Time) (Document, error) {
	d := Build(c.Snapshot(), now)
	if err := Write(w, d); err != nil {
		return Document{}, err
	}
	c.Dispatch(state.SetLastBackup{At: now})
	return d, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

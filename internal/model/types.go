package model

import (
	"math"
	"time"
)

// PriceConfig holds the tenant-wide price list.
type PriceConfig struct {
	MoviePrice           int64   `json:"movie_price" yaml:"movie_price"`
	SeriesPricePerSeason int64   `json:"series_price_per_season" yaml:"series_price_per_season"`
	NovelPricePerChapter int64   `json:"novel_price_per_chapter" yaml:"novel_price_per_chapter"`
	TransferFeePercent   float64 `json:"transfer_fee_percent" yaml:"transfer_fee_percent"`
}

// Valid reports whether every field is a finite, non-negative number.
func (p PriceConfig) Valid() bool {
	if p.MoviePrice < 0 || p.SeriesPricePerSeason < 0 || p.NovelPricePerChapter < 0 {
		return false
	}
	if math.IsNaN(p.TransferFeePercent) || math.IsInf(p.TransferFeePercent, 0) {
		return false
	}
	return p.TransferFeePercent >= 0
}

// DeliveryZone is a named delivery destination with a flat cost.
type DeliveryZone struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Cost      int64     `json:"cost"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Novel is a catalog entry priced per chapter.
type Novel struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Genre       string    `json:"genre"`
	Chapters    int       `json:"chapters"`
	Year        int       `json:"year"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MediaKind distinguishes cart line items.
type MediaKind string

const (
	KindMovie  MediaKind = "movie"
	KindSeries MediaKind = "series"
)

// Valid reports whether k is a known kind.
func (k MediaKind) Valid() bool {
	return k == KindMovie || k == KindSeries
}

// PaymentMethod selects how a line item is paid.
type PaymentMethod string

const (
	PayCash     PaymentMethod = "cash"
	PayTransfer PaymentMethod = "transfer"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PayCash || m == PayTransfer
}

// CartLineItem is one purchasable unit held in a cart.
// ID is the catalog media ID; a cart holds at most one item per ID.
type CartLineItem struct {
	ID              int64         `json:"id" yaml:"id"`
	Title           string        `json:"title,omitempty" yaml:"title,omitempty"`
	Kind            MediaKind     `json:"kind" yaml:"kind"`
	SelectedSeasons []int         `json:"selected_seasons,omitempty" yaml:"selected_seasons,omitempty"`
	PaymentMethod   PaymentMethod `json:"payment_method" yaml:"payment_method"`
}

// Severity classifies a notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeveritySuccess, SeverityWarning, SeverityError, SeverityInfo:
		return true
	}
	return false
}

// Notification is one human-readable audit event.
type Notification struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Section   string    `json:"section"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncStatus is process-local replication metadata.
// Only LastSyncedAt travels with the persisted payload.
type SyncStatus struct {
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	Online         bool       `json:"online"`
	PendingChanges int        `json:"pending_changes"`
}

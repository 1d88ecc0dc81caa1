package state

import (
	"time"

	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/snapshot"
)

// Kind identifies an action type. Each Kind has exactly one transition.
type Kind string

const (
	KindLogin               Kind = "login"
	KindLogout              Kind = "logout"
	KindUpdatePrices        Kind = "update_prices"
	KindAddZone             Kind = "add_zone"
	KindUpdateZone          Kind = "update_zone"
	KindDeleteZone          Kind = "delete_zone"
	KindAddNovel            Kind = "add_novel"
	KindUpdateNovel         Kind = "update_novel"
	KindDeleteNovel         Kind = "delete_novel"
	KindAddNotification     Kind = "add_notification"
	KindClearNotifications  Kind = "clear_notifications"
	KindSetLastBackup       Kind = "set_last_backup"
	KindReplaceState        Kind = "replace_state"
	KindMarkSynced          Kind = "mark_synced"
	KindSetOnline           Kind = "set_online"
	KindSyncFailed          Kind = "sync_failed"
	KindAddItem             Kind = "add_item"
	KindRemoveItem          Kind = "remove_item"
	KindUpdateSeasons       Kind = "update_seasons"
	KindUpdatePaymentMethod Kind = "update_payment_method"
	KindClearCart           Kind = "clear_cart"
	KindLoadCart            Kind = "load_cart"
)

// Action is a request to change state.
type Action interface {
	Kind() Kind
}

// Login records the outcome of a credential check. Verification happens in
// Container.Login; the action only carries the result.
type Login struct {
	Username string
	Granted  bool
}

// Logout clears the authenticated flag.
type Logout struct{}

// UpdatePrices replaces the price list.
type UpdatePrices struct {
	Prices model.PriceConfig
}

// AddZone creates a delivery zone with a generated ID.
type AddZone struct {
	Name   string
	Cost   int64
	Active bool
}

// UpdateZone replaces the mutable fields of the zone with Zone.ID.
// CreatedAt is kept from the existing record.
type UpdateZone struct {
	Zone model.DeliveryZone
}

// DeleteZone removes a zone.
type DeleteZone struct {
	ID string
}

// AddNovel creates a novel with a generated ID.
type AddNovel struct {
	Title       string
	Genre       string
	Chapters    int
	Year        int
	Description string
	Active      bool
}

// UpdateNovel replaces the mutable fields of the novel with Novel.ID.
type UpdateNovel struct {
	Novel model.Novel
}

// DeleteNovel removes a novel.
type DeleteNovel struct {
	ID string
}

// AddNotification appends an entry to the log. ID and Timestamp are assigned
// by the container.
type AddNotification struct {
	Severity model.Severity
	Title    string
	Message  string
	Section  string
	Action   string
	Details  string
}

// ClearNotifications empties the log, leaving one audit entry.
type ClearNotifications struct{}

// SetLastBackup records a completed export.
type SetLastBackup struct {
	At time.Time
}

// ReplaceState adopts an external payload wholesale.
type ReplaceState struct {
	Payload snapshot.Payload
	At      time.Time

	// Source is the instance that wrote the payload, if known.
	Source string
}

// MarkSynced records a successful write of the local payload.
type MarkSynced struct {
	At time.Time
}

// SyncFailed records a failed store read or write. The store is marked
// offline and an error notification is added; the in-memory state stays
// authoritative.
type SyncFailed struct {
	Operation string
	Err       string
}

// SetOnline records store reachability.
type SetOnline struct {
	Online bool
}

// AddItem inserts or replaces a cart line item.
type AddItem struct {
	Item model.CartLineItem
}

// RemoveItem drops a cart line item.
type RemoveItem struct {
	ID int64
}

// UpdateSeasons changes the selected seasons of a series item.
type UpdateSeasons struct {
	ID      int64
	Seasons []int
}

// UpdatePaymentMethod changes how a line item is paid.
type UpdatePaymentMethod struct {
	ID     int64
	Method model.PaymentMethod
}

// ClearCart empties the cart.
type ClearCart struct{}

// LoadCart replaces the cart with persisted items.
type LoadCart struct {
	Items []model.CartLineItem
}

func (Login) Kind() Kind { return KindLogin }
func (Logout) Kind() Kind { return KindLogout }
func (UpdatePrices) Kind() Kind { return KindUpdatePrices }
func (AddZone) Kind() Kind { return KindAddZone }
func (UpdateZone) Kind() Kind { return KindUpdateZone }
func (DeleteZone) Kind() Kind { return KindDeleteZone }
func (AddNovel) Kind() Kind { return KindAddNovel }
func (UpdateNovel) Kind() Kind { return KindUpdateNovel }
func (DeleteNovel) Kind() Kind { return KindDeleteNovel }
func (AddNotification) Kind() Kind { return KindAddNotification }
func (ClearNotifications) Kind() Kind { return KindClearNotifications }
func (SetLastBackup) Kind() Kind { return KindSetLastBackup }
func (ReplaceState) Kind() Kind { return KindReplaceState }
func (MarkSynced) Kind() Kind { return KindMarkSynced }
func (SetOnline) Kind() Kind { return KindSetOnline }
func (SyncFailed) Kind() Kind { return KindSyncFailed }
func (AddItem) Kind() Kind { return KindAddItem }
func (RemoveItem) Kind() Kind { return KindRemoveItem }
func (UpdateSeasons) Kind() Kind { return KindUpdateSeasons }
func (UpdatePaymentMethod) Kind() Kind { return KindUpdatePaymentMethod }
func (ClearCart) Kind() Kind { return KindClearCart }
func (LoadCart) Kind() Kind { return KindLoadCart }

// replicated reports whether an action originates locally and therefore
// counts toward SyncStatus.PendingChanges when it changes the payload.
func replicated(k Kind) bool {
	switch k {
	case KindReplaceState, KindMarkSynced, KindSetOnline, KindSyncFailed:
		return false
	}
	return true
}

package state

import (
	"time"

	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/notify"
	"github.com/roach88/carta/internal/pricing"
	"github.com/roach88/carta/internal/snapshot"
)

// State is one immutable snapshot of the container.
//
// Values returned by Container.Snapshot share backing arrays with the
// container; treat every slice as read-only.
type State struct {
	Admin    AdminState `json:"admin"`
	Cart     CartState  `json:"cart"`
	Revision int64      `json:"revision"`
}

// AdminState is the replicated admin data plus local bookkeeping.
type AdminState struct {
	Authenticated   bool                 `json:"authenticated"`
	Prices          model.PriceConfig    `json:"prices"`
	DeliveryZones   []model.DeliveryZone `json:"delivery_zones"`
	Novels          []model.Novel        `json:"novels"`
	Notifications   notify.Log           `json:"notifications"`
	LastPriceUpdate *time.Time           `json:"last_price_update,omitempty"`
	LastZoneUpdate  *time.Time           `json:"last_zone_update,omitempty"`
	LastNovelUpdate *time.Time           `json:"last_novel_update,omitempty"`
	LastBackup      *time.Time           `json:"last_backup,omitempty"`
	Sync            model.SyncStatus     `json:"sync"`
}

// CartState holds the line items of this instance's cart.
type CartState struct {
	Items []model.CartLineItem `json:"items"`
}

// Seed is the fixed configuration a container starts from.
type Seed struct {
	Prices model.PriceConfig
	Zones  []ZoneSeed
}

// ZoneSeed describes a delivery zone present at first start.
// Seed zones carry fixed IDs so that instances starting from an empty store
// agree on identity.
type ZoneSeed struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Cost int64  `json:"cost" yaml:"cost"`
}

// DefaultSeed is the built-in initial configuration.
func DefaultSeed() Seed {
	return Seed{
		Prices: pricing.DefaultPriceConfig,
		Zones: []ZoneSeed{
			{ID: "zone-centro", Name: "Santiago de Cuba > Centro", Cost: 100},
			{ID: "zone-vista-alegre", Name: "Santiago de Cuba > Vista Alegre", Cost: 300},
		},
	}
}

func initialState(seed Seed, now time.Time) State {
	prices := seed.Prices
	if !prices.Valid() {
		prices = pricing.DefaultPriceConfig
	}
	zones := make([]model.DeliveryZone, 0, len(seed.Zones))
	for _, z := range seed.Zones {
		zones = append(zones, model.DeliveryZone{
			ID:        z.ID,
			Name:      z.Name,
			Cost:      z.Cost,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return State{
		Admin: AdminState{
			Prices:        prices,
			DeliveryZones: zones,
			Novels:        []model.Novel{},
			Notifications: notify.Log{},
			Sync:          model.SyncStatus{Online: true},
		},
		Cart: CartState{Items: []model.CartLineItem{}},
	}
}

// ToPayload projects the replicated part of the admin state.
func (a AdminState) ToPayload() snapshot.Payload {
	p := snapshot.Payload{
		Format:        snapshot.Format,
		Prices:        a.Prices,
		DeliveryZones: a.DeliveryZones,
		Novels:        a.Novels,
		Notifications: a.Notifications,
		LastSyncedAt:  a.Sync.LastSyncedAt,
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
	return p
}

// ActiveZones returns the zones a customer may select, in list order.
func (a AdminState) ActiveZones() []model.DeliveryZone {
	out := make([]model.DeliveryZone, 0, len(a.DeliveryZones))
	for _, z := range a.DeliveryZones {
		if z.Active {
			out = append(out, z)
		}
	}
	return out
}

// LookupZone finds an active zone by ID. A deleted or deactivated zone is a
// miss: callers treat it as no longer available and re-select.
func (a AdminState) LookupZone(id string) (model.DeliveryZone, bool) {
	for _, z := range a.DeliveryZones {
		if z.ID == id && z.Active {
			return z, true
		}
	}
	return model.DeliveryZone{}, false
}

// LookupNovel finds a novel by ID.
func (a AdminState) LookupNovel(id string) (model.Novel, bool) {
	for _, n := range a.Novels {
		if n.ID == id {
			return n, true
		}
	}
	return model.Novel{}, false
}

// IsInCart reports whether the cart holds an item with the given media ID.
func (c CartState) IsInCart(id int64) bool {
	_, ok := c.find(id)
	return ok
}

// ItemSeasons returns the selected seasons of a series item, or nil.
func (c CartState) ItemSeasons(id int64) []int {
	i, ok := c.find(id)
	if !ok {
		return nil
	}
	return c.Items[i].SelectedSeasons
}

func (c CartState) find(id int64) (int, bool) {
	for i, item := range c.Items {
		if item.ID == id {
			return i, true
		}
	}
	return -1, false
}

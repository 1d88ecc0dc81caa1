package state

import (
	"time"

	"github.com/roach88/carta/internal/model"
)

// Env carries the non-deterministic inputs of a transition.
type Env struct {
	// Now is the stamped wall-clock time of the dispatch.
	Now time.Time

	// NewID returns a fresh identifier.
	NewID func() string
}

// transition is a pure function from (state, action) to the next state.
// It must not modify prev or anything reachable from it.
type transition func(prev State, a Action, env Env) (State, error)

// transitions maps every action kind to its single transition.
var transitions = map[Kind]transition{
	KindLogin:               reduceLogin,
	KindLogout:              reduceLogout,
	KindUpdatePrices:        reduceUpdatePrices,
	KindAddZone:             reduceAddZone,
	KindUpdateZone:          reduceUpdateZone,
	KindDeleteZone:          reduceDeleteZone,
	KindAddNovel:            reduceAddNovel,
	KindUpdateNovel:         reduceUpdateNovel,
	KindDeleteNovel:         reduceDeleteNovel,
	KindAddNotification:     reduceAddNotification,
	KindClearNotifications:  reduceClearNotifications,
	KindSetLastBackup:       reduceSetLastBackup,
	KindReplaceState:        reduceReplaceState,
	KindMarkSynced:          reduceMarkSynced,
	KindSetOnline:           reduceSetOnline,
	KindSyncFailed:          reduceSyncFailed,
	KindAddItem:             reduceAddItem,
	KindRemoveItem:          reduceRemoveItem,
	KindUpdateSeasons:       reduceUpdateSeasons,
	KindUpdatePaymentMethod: reduceUpdatePaymentMethod,
	KindClearCart:           reduceClearCart,
	KindLoadCart:            reduceLoadCart,
}

// Notification sections.
const (
	SectionAuth          = "Authentication"
	SectionPrices        = "Prices"
	SectionZones         = "Delivery Zones"
	SectionNovels        = "Novels"
	SectionNotifications = "Notifications"
	SectionBackup        = "Backup"
	SectionSync          = "Sync"
)

func notice(env Env, sev model.Severity, section, action, title, message, details string) model.Notification {
	return model.Notification{
		ID:        env.NewID(),
		Severity:  sev,
		Title:     title,
		Message:   message,
		Section:   section,
		Action:    action,
		Details:   details,
		Timestamp: env.Now,
	}
}

func record(s State, n model.Notification) State {
	s.Admin.Notifications = s.Admin.Notifications.Append(n)
	return s
}

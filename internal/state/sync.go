package state

import (
	"fmt"
	"reflect"

	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/notify"
)

// reduceReplaceState adopts an external payload. Per-section update stamps
// move only for sections whose content actually changed, so replaying the
// same ReplaceState is a no-op.
func reduceReplaceState(prev State, a Action, _ Env) (State, error) {
	act := a.(ReplaceState)
	p := act.Payload
	if !p.Prices.Valid() {
		return prev, invalid(KindReplaceState, "payload prices are malformed")
	}
	if act.At.IsZero() {
		return prev, invalid(KindReplaceState, "adoption time is required")
	}
	zones := p.DeliveryZones
	if zones == nil {
		zones = []model.DeliveryZone{}
	}
	novels := p.Novels
	if novels == nil {
		novels = []model.Novel{}
	}
	log := p.Notifications.Truncate()
	if log == nil {
		log = notify.Log{}
	}

	at := model.Stamp(act.At)
	next := prev
	if prev.Admin.Prices != p.Prices {
		next.Admin.Prices = p.Prices
		next.Admin.LastPriceUpdate = &at
	}
	if !reflect.DeepEqual(prev.Admin.DeliveryZones, zones) {
		next.Admin.DeliveryZones = zones
		next.Admin.LastZoneUpdate = &at
	}
	if !reflect.DeepEqual(prev.Admin.Novels, novels) {
		next.Admin.Novels = novels
		next.Admin.LastNovelUpdate = &at
	}
	if !reflect.DeepEqual(prev.Admin.Notifications, log) {
		next.Admin.Notifications = log
	}
	if prev.Admin.Sync.LastSyncedAt == nil || !prev.Admin.Sync.LastSyncedAt.Equal(at) {
		next.Admin.Sync.LastSyncedAt = &at
	}
	next.Admin.Sync.PendingChanges = 0
	return next, nil
}

func reduceMarkSynced(prev State, a Action, _ Env) (State, error) {
	act := a.(MarkSynced)
	if act.At.IsZero() {
		return prev, invalid(KindMarkSynced, "sync time is required")
	}
	next := prev
	next.Admin.Sync.LastSyncedAt = model.TimePtr(act.At)
	next.Admin.Sync.PendingChanges = 0
	next.Admin.Sync.Online = true
	return next, nil
}

func reduceSyncFailed(prev State, a Action, env Env) (State, error) {
	act := a.(SyncFailed)
	if act.Operation == "" {
		return prev, invalid(KindSyncFailed, "operation is required")
	}
	next := prev
	next.Admin.Sync.Online = false
	return record(next, notice(env, model.SeverityError, SectionSync, act.Operation,
		"Sync failed", fmt.Sprintf("Could not %s shared state; local changes are kept", act.Operation), act.Err)), nil
}

func reduceSetOnline(prev State, a Action, _ Env) (State, error) {
	next := prev
	next.Admin.Sync.Online = a.(SetOnline).Online
	return next, nil
}

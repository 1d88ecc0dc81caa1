package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/notify"
	"github.com/roach88/carta/internal/testutil"
)

type stubAuth map[string]string

func (a stubAuth) Verify(username, password string) bool {
	want, ok := a[username]
	return ok && want == password
}

func newTestContainer(t *testing.T, opts ...Option) (*Container, *testutil.ManualClock) {
	t.Helper()
	clock := testutil.NewManualClock(testutil.Epoch)
	base := []Option{
		WithNow(clock.Now),
		WithIDGenerator(testutil.NewSequenceGenerator("id")),
	}
	return New(append(base, opts...)...), clock
}

func TestNew_SeedState(t *testing.T) {
	c, _ := newTestContainer(t)
	s := c.Snapshot()

	assert.Equal(t, int64(0), s.Revision)
	assert.Equal(t, DefaultSeed().Prices, s.Admin.Prices)
	require.Len(t, s.Admin.DeliveryZones, 2)
	for _, z := range s.Admin.DeliveryZones {
		assert.True(t, z.Active)
		assert.Equal(t, testutil.Epoch, z.CreatedAt)
	}
	assert.Empty(t, s.Admin.Notifications)
	assert.Empty(t, s.Cart.Items)
	assert.True(t, s.Admin.Sync.Online)
	assert.False(t, s.Admin.Authenticated)
}

func TestNew_InvalidSeedPricesFallBack(t *testing.T) {
	seed := DefaultSeed()
	seed.Prices.MoviePrice = -1
	c, _ := newTestContainer(t, WithSeed(seed))
	assert.Equal(t, DefaultSeed().Prices, c.Prices())
}

func TestDispatch_AddZone(t *testing.T) {
	c, clock := newTestContainer(t)
	before := c.Snapshot()
	clock.Advance(time.Minute)

	after := c.Dispatch(AddZone{Name: "  Santiago de Cuba > Altamira ", Cost: 150, Active: true})

	require.Len(t, after.Admin.DeliveryZones, 3)
	zone := after.Admin.DeliveryZones[2]
	assert.Equal(t, "id-1", zone.ID)
	assert.Equal(t, "Santiago de Cuba > Altamira", zone.Name)
	assert.Equal(t, int64(150), zone.Cost)
	assert.Equal(t, clock.Now(), zone.CreatedAt)
	assert.Equal(t, clock.Now(), zone.UpdatedAt)

	require.Len(t, after.Admin.Notifications, 1)
	n := after.Admin.Notifications[0]
	assert.Equal(t, model.SeveritySuccess, n.Severity)
	assert.Equal(t, SectionZones, n.Section)
	assert.Equal(t, "Add Zone", n.Action)

	require.NotNil(t, after.Admin.LastZoneUpdate)
	assert.Equal(t, clock.Now(), *after.Admin.LastZoneUpdate)
	assert.Equal(t, int64(1), after.Revision)
	assert.Equal(t, 1, after.Admin.Sync.PendingChanges)

	// The previous snapshot is untouched.
	assert.Len(t, before.Admin.DeliveryZones, 2)
	assert.Empty(t, before.Admin.Notifications)
}

func TestApply_InvalidActionsAreSilentNoOps(t *testing.T) {
	tests := []struct {
		name   string
		action Action
	}{
		{"zone without name", AddZone{Name: "  ", Cost: 10}},
		{"zone with negative cost", AddZone{Name: "X", Cost: -1}},
		{"update zone without id", UpdateZone{Zone: model.DeliveryZone{Name: "X"}}},
		{"delete zone without id", DeleteZone{}},
		{"novel without chapters", AddNovel{Title: "Rosa", Chapters: 0}},
		{"novel without title", AddNovel{Chapters: 10}},
		{"negative movie price", UpdatePrices{Prices: model.PriceConfig{MoviePrice: -5}}},
		{"notification with bad severity", AddNotification{Severity: "fatal", Title: "x"}},
		{"notification without title", AddNotification{Severity: model.SeverityInfo}},
		{"backup without time", SetLastBackup{}},
		{"mark synced without time", MarkSynced{}},
		{"item without id", AddItem{Item: model.CartLineItem{Kind: model.KindMovie}}},
		{"item with unknown kind", AddItem{Item: model.CartLineItem{ID: 1, Kind: "book"}}},
		{"item with zero season", AddItem{Item: model.CartLineItem{ID: 1, Kind: model.KindSeries, SelectedSeasons: []int{0}}}},
		{"unknown payment method", UpdatePaymentMethod{ID: 1, Method: "card"}},
		{"pointer action", &AddZone{Name: "X", Cost: 1}},
		{"nil action", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestContainer(t)
			before := c.Snapshot()

			got, err := c.Apply(tt.action)
			require.ErrorIs(t, err, ErrInvalidAction)
			assert.True(t, IsInvalidAction(err))
			assert.Equal(t, before, got)

			assert.Equal(t, before, c.Dispatch(tt.action))
			assert.Empty(t, c.Snapshot().Admin.Notifications)
		})
	}
}

func TestDispatch_DuplicateActiveZoneNameRejectedWithWarning(t *testing.T) {
	c, _ := newTestContainer(t)
	existing := c.Zones()[0].Name

	s := c.Dispatch(AddZone{Name: existing, Cost: 10, Active: true})

	assert.Len(t, s.Admin.DeliveryZones, 2)
	require.Len(t, s.Admin.Notifications, 1)
	assert.Equal(t, model.SeverityWarning, s.Admin.Notifications[0].Severity)

	// An inactive zone may reuse the name.
	s = c.Dispatch(AddZone{Name: existing, Cost: 10, Active: false})
	assert.Len(t, s.Admin.DeliveryZones, 3)
}

func TestDispatch_UpdateZoneKeepsIdentity(t *testing.T) {
	c, clock := newTestContainer(t)
	orig := c.Zones()[0]
	clock.Advance(time.Hour)

	s := c.Dispatch(UpdateZone{Zone: model.DeliveryZone{ID: orig.ID, Name: "Renamed", Cost: 120, Active: true}})

	got := s.Admin.DeliveryZones[0]
	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, orig.CreatedAt, got.CreatedAt)
	assert.Equal(t, clock.Now(), got.UpdatedAt)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, int64(120), got.Cost)

	require.Len(t, s.Admin.Notifications, 1)
	assert.Contains(t, s.Admin.Notifications[0].Details, "cost: 100 -> 120")
}

func TestDispatch_UpdateUnknownZoneRecordsAttempt(t *testing.T) {
	c, _ := newTestContainer(t)
	zones := c.Zones()

	s := c.Dispatch(UpdateZone{Zone: model.DeliveryZone{ID: "missing", Name: "X", Cost: 1}})

	assert.Equal(t, zones, s.Admin.DeliveryZones)
	require.Len(t, s.Admin.Notifications, 1)
	assert.Equal(t, model.SeverityWarning, s.Admin.Notifications[0].Severity)
}

func TestDispatch_DeleteZone(t *testing.T) {
	c, _ := newTestContainer(t)
	id := c.Zones()[0].ID

	_, ok := c.LookupZone(id)
	require.True(t, ok)

	s := c.Dispatch(DeleteZone{ID: id})
	assert.Len(t, s.Admin.DeliveryZones, 1)

	// A deleted zone is a lookup miss, not an error.
	_, ok = c.LookupZone(id)
	assert.False(t, ok)

	// Deleting it again records the attempt and changes nothing else.
	s = c.Dispatch(DeleteZone{ID: id})
	assert.Len(t, s.Admin.DeliveryZones, 1)
	require.Len(t, s.Admin.Notifications, 2)
	assert.Equal(t, "Zone not found", s.Admin.Notifications[0].Title)
}

func TestLookupZone_InactiveIsMiss(t *testing.T) {
	c, _ := newTestContainer(t)
	z := c.Zones()[1]
	z.Active = false
	c.Dispatch(UpdateZone{Zone: z})

	_, ok := c.LookupZone(z.ID)
	assert.False(t, ok)
	assert.Len(t, c.ActiveZones(), 1)
	assert.Len(t, c.Zones(), 2)
}

func TestDispatch_NovelLifecycle(t *testing.T) {
	c, clock := newTestContainer(t)

	s := c.Dispatch(AddNovel{Title: "Café con aroma de mujer", Genre: "Drama", Chapters: 20, Year: 1994, Active: true})
	require.Len(t, s.Admin.Novels, 1)
	novel := s.Admin.Novels[0]
	assert.Equal(t, "id-1", novel.ID)
	assert.Contains(t, s.Admin.Notifications[0].Details, "cash: 100; transfer: 110")

	clock.Advance(time.Minute)
	novel.Chapters = 30
	s = c.Dispatch(UpdateNovel{Novel: novel})
	require.Len(t, s.Admin.Novels, 1)
	assert.Equal(t, 30, s.Admin.Novels[0].Chapters)
	assert.Equal(t, novel.CreatedAt, s.Admin.Novels[0].CreatedAt)
	assert.Equal(t, clock.Now(), s.Admin.Novels[0].UpdatedAt)

	s = c.Dispatch(DeleteNovel{ID: novel.ID})
	assert.Empty(t, s.Admin.Novels)
	assert.Len(t, s.Admin.Notifications, 3)
	require.NotNil(t, s.Admin.LastNovelUpdate)
}

func TestDispatch_UpdatePrices(t *testing.T) {
	c, _ := newTestContainer(t)
	p := c.Prices()
	p.MoviePrice = 90

	s := c.Dispatch(UpdatePrices{Prices: p})
	assert.Equal(t, int64(90), s.Admin.Prices.MoviePrice)
	require.NotNil(t, s.Admin.LastPriceUpdate)
	require.Len(t, s.Admin.Notifications, 1)
	assert.Equal(t, "movie_price: 80 -> 90", s.Admin.Notifications[0].Details)

	// Saving the same prices is still an audited operation.
	s = c.Dispatch(UpdatePrices{Prices: p})
	require.Len(t, s.Admin.Notifications, 2)
	assert.Equal(t, "Price list saved without changes", s.Admin.Notifications[0].Message)
}

func TestDispatch_NotificationLogIsCapped(t *testing.T) {
	c, _ := newTestContainer(t)
	for i := 0; i < notify.Capacity+5; i++ {
		c.Dispatch(AddNotification{Severity: model.SeverityInfo, Title: "tick"})
	}
	log := c.Snapshot().Admin.Notifications
	assert.Len(t, log, notify.Capacity)
	// Newest first: the last generated ID is at the head.
	assert.Equal(t, "id-55", log[0].ID)
	assert.Equal(t, "id-6", log[len(log)-1].ID)
}

func TestDispatch_ClearNotificationsLeavesAudit(t *testing.T) {
	c, _ := newTestContainer(t)
	c.Dispatch(AddNotification{Severity: model.SeverityInfo, Title: "a"})
	c.Dispatch(AddNotification{Severity: model.SeverityInfo, Title: "b"})

	s := c.Dispatch(ClearNotifications{})
	require.Len(t, s.Admin.Notifications, 1)
	assert.Equal(t, "Notifications cleared", s.Admin.Notifications[0].Title)
	assert.Equal(t, "2 notification(s) removed", s.Admin.Notifications[0].Message)
}

func TestDispatch_ReplaceStateIsIdempotent(t *testing.T) {
	c, clock := newTestContainer(t)
	c.Dispatch(AddZone{Name: "Local", Cost: 5, Active: true})
	require.Equal(t, 1, c.Snapshot().Admin.Sync.PendingChanges)

	payload := c.Snapshot().Admin.ToPayload()
	payload.Prices.MoviePrice = 95
	payload.DeliveryZones = payload.DeliveryZones[:1]
	at := clock.Advance(time.Second)

	once := c.Dispatch(ReplaceState{Payload: payload, At: at})
	twice := c.Dispatch(ReplaceState{Payload: payload, At: at})

	assert.Equal(t, once, twice)
	assert.Equal(t, int64(95), once.Admin.Prices.MoviePrice)
	assert.Len(t, once.Admin.DeliveryZones, 1)
	assert.Equal(t, 0, once.Admin.Sync.PendingChanges)
	require.NotNil(t, once.Admin.Sync.LastSyncedAt)
	assert.Equal(t, at, *once.Admin.Sync.LastSyncedAt)
	require.NotNil(t, once.Admin.LastPriceUpdate)
	assert.Equal(t, at, *once.Admin.LastPriceUpdate)
}

func TestDispatch_ReplaceStateKeepsCartAndAuth(t *testing.T) {
	c, clock := newTestContainer(t, WithAuthenticator(stubAuth{"root": "secret"}))
	require.True(t, c.Login("root", "secret"))
	c.Dispatch(AddItem{Item: model.CartLineItem{ID: 7, Kind: model.KindMovie}})

	payload := c.Snapshot().Admin.ToPayload()
	payload.Notifications = nil
	s := c.Dispatch(ReplaceState{Payload: payload, At: clock.Now()})

	assert.True(t, s.Admin.Authenticated)
	assert.True(t, s.Cart.IsInCart(7))
	assert.NotNil(t, s.Admin.Notifications)
	assert.Empty(t, s.Admin.Notifications)
}

func TestMarkSynced_ResetsPending(t *testing.T) {
	c, clock := newTestContainer(t)
	c.Dispatch(AddZone{Name: "A", Cost: 1, Active: true})
	c.Dispatch(AddZone{Name: "B", Cost: 1, Active: true})
	require.Equal(t, 2, c.Snapshot().Admin.Sync.PendingChanges)

	s := c.Dispatch(MarkSynced{At: clock.Now()})
	assert.Equal(t, 0, s.Admin.Sync.PendingChanges)
	require.NotNil(t, s.Admin.Sync.LastSyncedAt)
}

func TestCartActionsDoNotCountAsPending(t *testing.T) {
	c, _ := newTestContainer(t)
	s := c.Dispatch(AddItem{Item: model.CartLineItem{ID: 1, Kind: model.KindMovie}})
	assert.Equal(t, 0, s.Admin.Sync.PendingChanges)
	assert.Equal(t, int64(1), s.Revision)
}

func TestOnChange_FollowUpsSkipHooks(t *testing.T) {
	c, clock := newTestContainer(t)

	var calls []Kind
	c.OnChange(func(ch Change) []Action {
		calls = append(calls, ch.Action.Kind())
		assert.Equal(t, ch.Next, c.Snapshot(), "hooks observe the committed state")
		return []Action{
			MarkSynced{At: clock.Now()},
			AddNotification{Severity: "bogus", Title: "dropped"},
		}
	})

	s := c.Dispatch(AddZone{Name: "Z", Cost: 1, Active: true})
	assert.Equal(t, []Kind{KindAddZone}, calls)
	assert.Equal(t, 0, s.Admin.Sync.PendingChanges)
	assert.Equal(t, int64(2), s.Revision)

	// No-op and invalid actions never reach hooks.
	c.Dispatch(RemoveItem{ID: 42})
	c.Dispatch(AddZone{})
	assert.Len(t, calls, 1)
}

func TestDispatchFunc(t *testing.T) {
	c, _ := newTestContainer(t)

	s := c.DispatchFunc(func(State) (Action, bool) { return nil, false })
	assert.Equal(t, int64(0), s.Revision)

	s = c.DispatchFunc(func(cur State) (Action, bool) {
		if _, ok := cur.Admin.LookupZone(cur.Admin.DeliveryZones[0].ID); !ok {
			return nil, false
		}
		return DeleteZone{ID: cur.Admin.DeliveryZones[0].ID}, true
	})
	assert.Len(t, s.Admin.DeliveryZones, 1)
}

func TestLogin(t *testing.T) {
	c, _ := newTestContainer(t, WithAuthenticator(stubAuth{"root": "secret"}))

	assert.False(t, c.Login("root", "wrong"))
	s := c.Snapshot()
	assert.False(t, s.Admin.Authenticated)
	require.Len(t, s.Admin.Notifications, 1)
	assert.Equal(t, model.SeverityError, s.Admin.Notifications[0].Severity)

	assert.True(t, c.Login(" root ", "secret"))
	s = c.Snapshot()
	assert.True(t, s.Admin.Authenticated)
	assert.Equal(t, model.SeveritySuccess, s.Admin.Notifications[0].Severity)

	c.Logout()
	assert.False(t, c.Snapshot().Admin.Authenticated)
}

func TestLogin_NoAuthenticatorDenies(t *testing.T) {
	c, _ := newTestContainer(t)
	assert.False(t, c.Login("root", "anything"))
	assert.False(t, c.Snapshot().Admin.Authenticated)
}

func TestDispatch_DefaultIDsAreUniqueUnderRapidCreates(t *testing.T) {
	c := New()
	for i := 0; i < 200; i++ {
		c.Dispatch(AddNovel{Title: "N", Chapters: 1})
	}
	seen := make(map[string]bool)
	for _, n := range c.Snapshot().Admin.Novels {
		require.False(t, seen[n.ID], "duplicate id %s", n.ID)
		seen[n.ID] = true
	}
	assert.Len(t, seen, 200)
}

func TestDispatch_ConcurrentCallersAreSerialized(t *testing.T) {
	c, _ := newTestContainer(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				c.Dispatch(AddNovel{Title: "N", Chapters: 1})
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	assert.Len(t, s.Admin.Novels, 200)
	assert.Equal(t, int64(200), s.Revision)
	assert.Equal(t, 200, s.Admin.Sync.PendingChanges)
}

func TestSyncFailed_RecordsErrorAndGoesOffline(t *testing.T) {
	c, clock := newTestContainer(t)

	s := c.Dispatch(SyncFailed{Operation: "write", Err: "disk full"})
	assert.False(t, s.Admin.Sync.Online)
	assert.Equal(t, 0, s.Admin.Sync.PendingChanges)
	require.Len(t, s.Admin.Notifications, 1)
	n := s.Admin.Notifications[0]
	assert.Equal(t, model.SeverityError, n.Severity)
	assert.Equal(t, SectionSync, n.Section)
	assert.Equal(t, "disk full", n.Details)

	s = c.Dispatch(MarkSynced{At: clock.Now()})
	assert.True(t, s.Admin.Sync.Online)
}

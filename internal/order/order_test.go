package order

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/state"
	"github.com/roach88/carta/internal/testutil"
)

var customer = CustomerInfo{
	FullName: "  Ana Pérez ",
	Phone:    "+53 5555-1234",
	Address:  "Calle 4 #12, Santiago de Cuba",
}

func cartState(t *testing.T) state.State {
	t.Helper()
	clock := testutil.NewManualClock(testutil.Epoch)
	c := state.New(
		state.WithNow(clock.Now),
		state.WithIDGenerator(testutil.NewSequenceGenerator("id")),
	)
	c.Dispatch(state.AddItem{Item: model.CartLineItem{ID: 1, Title: "Dune", Kind: model.KindMovie}})
	c.Dispatch(state.AddItem{Item: model.CartLineItem{
		ID: 2, Title: "Dark", Kind: model.KindSeries,
		SelectedSeasons: []int{1, 2}, PaymentMethod: model.PayTransfer,
	}})
	return c.Snapshot()
}

func TestBuild_Pickup(t *testing.T) {
	s := cartState(t)

	o, err := Build(s, customer, Delivery{Type: Pickup}, state.NewFixedGenerator("0001"), testutil.Epoch)
	require.NoError(t, err)

	assert.Equal(t, "TV-0001", o.ID)
	assert.Equal(t, "Ana Pérez", o.Customer.FullName)
	assert.Equal(t, PickupName, o.ZoneName)
	assert.Empty(t, o.ZoneID)
	assert.Zero(t, o.DeliveryCost)
	require.Len(t, o.Lines, 2)
	assert.Equal(t, int64(80), o.Lines[0].Price)
	assert.Equal(t, int64(660), o.Lines[1].Price)
	assert.Equal(t, int64(740), o.Subtotal)
	assert.Equal(t, int64(80), o.Totals.Cash)
	assert.Equal(t, int64(660), o.Totals.Transfer)
	assert.Equal(t, int64(60), o.TransferFee)
	assert.Equal(t, int64(740), o.Total)
	assert.Equal(t, testutil.Epoch, o.CreatedAt)
}

func TestBuild_DeliveryAddsZoneCost(t *testing.T) {
	s := cartState(t)

	o, err := Build(s, customer, Delivery{Type: HomeDelivery, ZoneID: "zone-centro"}, state.NewFixedGenerator("0002"), testutil.Epoch)
	require.NoError(t, err)

	assert.Equal(t, "zone-centro", o.ZoneID)
	assert.Equal(t, "Santiago de Cuba > Centro", o.ZoneName)
	assert.Equal(t, int64(100), o.DeliveryCost)
	assert.Equal(t, o.Subtotal+100, o.Total)
	assert.Equal(t, o.Subtotal, o.Totals.Sum())
}

func TestBuild_UnknownZone(t *testing.T) {
	s := cartState(t)

	_, err := Build(s, customer, Delivery{Type: HomeDelivery, ZoneID: "zone-gone"}, state.NewFixedGenerator("x"), testutil.Epoch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrZoneUnavailable))
}

func TestBuild_InactiveZoneIsUnavailable(t *testing.T) {
	s := cartState(t)
	for i := range s.Admin.DeliveryZones {
		s.Admin.DeliveryZones[i].Active = false
	}

	_, err := Build(s, customer, Delivery{Type: HomeDelivery, ZoneID: "zone-centro"}, state.NewFixedGenerator("x"), testutil.Epoch)
	assert.ErrorIs(t, err, ErrZoneUnavailable)
}

func TestBuild_EmptyCart(t *testing.T) {
	s := state.New().Snapshot()

	_, err := Build(s, customer, Delivery{Type: Pickup}, state.NewFixedGenerator("x"), testutil.Epoch)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		customer CustomerInfo
		delivery Delivery
		fields   []string
	}{
		{"valid pickup", customer, Delivery{Type: Pickup}, nil},
		{"valid delivery", customer, Delivery{Type: HomeDelivery, ZoneID: "z"}, nil},
		{"phone with parentheses", CustomerInfo{FullName: "A", Phone: "(53) 555 1234", Address: "B"}, Delivery{Type: Pickup}, nil},
		{"blank name", CustomerInfo{FullName: "   ", Phone: customer.Phone, Address: "B"}, Delivery{Type: Pickup}, []string{"full_name"}},
		{"short phone", CustomerInfo{FullName: "A", Phone: "5551234", Address: "B"}, Delivery{Type: Pickup}, []string{"phone"}},
		{"letters in phone", CustomerInfo{FullName: "A", Phone: "555-CALL-NOW", Address: "B"}, Delivery{Type: Pickup}, []string{"phone"}},
		{"missing everything", CustomerInfo{}, Delivery{Type: HomeDelivery}, []string{"address", "full_name", "phone", "zone_id"}},
		{"unknown type", customer, Delivery{Type: "drone"}, []string{"type"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.customer, tt.delivery)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			var fe FieldErrors
			require.ErrorAs(t, err, &fe)
			got := make([]string, 0, len(fe))
			for k := range fe {
				got = append(got, k)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestFieldErrors_MessageIsSorted(t *testing.T) {
	err := FieldErrors{"phone": "required", "address": "required"}
	assert.Equal(t, "invalid order: address: required; phone: required", err.Error())
}

package order

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/pricing"
	"github.com/roach88/carta/internal/state"
)

// IDPrefix starts every order ID.
const IDPrefix = "TV-"

// PickupName labels the delivery of orders collected in store.
const PickupName = "Pickup in store"

var (
	// ErrZoneUnavailable is returned when the selected zone is unknown or
	// inactive in the snapshot. Callers should let the customer re-select.
	ErrZoneUnavailable = errors.New("delivery zone unavailable")

	// ErrEmptyCart is returned when there is nothing to order.
	ErrEmptyCart = errors.New("cart is empty")
)

var phonePattern = regexp.MustCompile(`^[+]?[0-9\s\-()]{8,}$`)

// CustomerInfo identifies who receives the order.
type CustomerInfo struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

// DeliveryType selects pickup or delivery.
type DeliveryType string

const (
	Pickup       DeliveryType = "pickup"
	HomeDelivery DeliveryType = "delivery"
)

// Delivery is the customer's delivery choice.
type Delivery struct {
	Type   DeliveryType `json:"type"`
	ZoneID string       `json:"zone_id,omitempty"`
}

// FieldErrors maps a form field to the reason it was rejected.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e[k]))
	}
	return "invalid order: " + strings.Join(parts, "; ")
}

// Validate checks the customer fields and the delivery choice.
// The zone itself is resolved by Build.
func Validate(c CustomerInfo, d Delivery) error {
	errs := FieldErrors{}
	if strings.TrimSpace(c.FullName) == "" {
		errs["full_name"] = "required"
	}
	switch phone := strings.TrimSpace(c.Phone); {
	case phone == "":
		errs["phone"] = "required"
	case !phonePattern.MatchString(phone):
		errs["phone"] = "invalid format"
	}
	if strings.TrimSpace(c.Address) == "" {
		errs["address"] = "required"
	}
	switch d.Type {
	case Pickup:
	case HomeDelivery:
		if d.ZoneID == "" {
			errs["zone_id"] = "required for delivery"
		}
	default:
		errs["type"] = fmt.Sprintf("unknown delivery type %q", d.Type)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Order is a priced checkout ready for submission.
type Order struct {
	ID           string            `json:"id"`
	Customer     CustomerInfo      `json:"customer"`
	DeliveryType DeliveryType      `json:"delivery_type"`
	ZoneID       string            `json:"zone_id,omitempty"`
	ZoneName     string            `json:"zone_name"`
	Lines        []pricing.Line    `json:"lines"`
	Subtotal     int64             `json:"subtotal"`
	Totals       pricing.Totals    `json:"totals"`
	TransferFee  int64             `json:"transfer_fee"`
	DeliveryCost int64             `json:"delivery_cost"`
	Total        int64             `json:"total"`
	Prices       model.PriceConfig `json:"prices"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Build prices the cart held by s for the given customer and delivery.
func Build(s state.State, c CustomerInfo, d Delivery, ids state.IDGenerator, now time.Time) (Order, error) {
	if err := Validate(c, d); err != nil {
		return Order{}, err
	}
	if len(s.Cart.Items) == 0 {
		return Order{}, ErrEmptyCart
	}

	o := Order{
		Customer: CustomerInfo{
			FullName: strings.TrimSpace(c.FullName),
			Phone:    strings.TrimSpace(c.Phone),
			Address:  strings.TrimSpace(c.Address),
		},
		DeliveryType: d.Type,
		ZoneName:     PickupName,
		CreatedAt:    model.Stamp(now),
	}

	if d.Type == HomeDelivery {
		zone, ok := s.Admin.LookupZone(d.ZoneID)
		if !ok {
			return Order{}, fmt.Errorf("zone %q: %w", d.ZoneID, ErrZoneUnavailable)
		}
		o.ZoneID = zone.ID
		o.ZoneName = zone.Name
		o.DeliveryCost = zone.Cost
	}

	b := pricing.Quote(&s.Admin.Prices, s.Cart.Items)
	o.Prices = b.Prices
	o.Lines = b.Lines
	o.Subtotal = b.Subtotal
	o.Totals = b.Totals
	o.TransferFee = b.Surcharge
	o.Total = pricing.OrderTotal(b.Subtotal, o.DeliveryCost)
	o.ID = IDPrefix + ids.Generate()
	return o, nil
}

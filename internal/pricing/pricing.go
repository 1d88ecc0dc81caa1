// Package pricing computes line, cart, novel and order totals.
//
// Every function is pure: the result depends only on the arguments, and the
// price list is always passed in by the caller rather than read from shared
// state. Callers recompute on demand from the current state snapshot.
package pricing

import (
	"math/big"
	"strconv"

	"github.com/roach88/carta/internal/model"
)

// DefaultPriceConfig is used whenever a price list is missing or malformed.
var DefaultPriceConfig = model.PriceConfig{
	MoviePrice:           80,
	SeriesPricePerSeason: 300,
	NovelPricePerChapter: 5,
	TransferFeePercent:   10,
}

// Resolve returns cfg, or DefaultPriceConfig if cfg is nil or fails
// model.PriceConfig.Valid. The fallback replaces the whole config; fields are
// never mixed between a bad config and the defaults.
func Resolve(cfg *model.PriceConfig) model.PriceConfig {
	if cfg == nil || !cfg.Valid() {
		return DefaultPriceConfig
	}
	return *cfg
}

// Totals splits an amount by payment method.
type Totals struct {
	Cash     int64 `json:"cash"`
	Transfer int64 `json:"transfer"`
}

// Sum returns Cash + Transfer.
func (t Totals) Sum() int64 {
	return t.Cash + t.Transfer
}

// ItemPrice returns the price of one cart line item.
//
// Movies cost MoviePrice. Series cost SeriesPricePerSeason per selected
// season, with an empty selection counted as one season. Transfer-paid items
// carry the transfer surcharge.
func ItemPrice(cfg *model.PriceConfig, item model.CartLineItem) int64 {
	p := Resolve(cfg)

	var base int64
	switch item.Kind {
	case model.KindSeries:
		seasons := int64(len(item.SelectedSeasons))
		if seasons == 0 {
			seasons = 1
		}
		base = seasons * p.SeriesPricePerSeason
	default:
		base = p.MoviePrice
	}
	return applyPayment(base, p.TransferFeePercent, item.PaymentMethod)
}

// CartTotal sums ItemPrice over items.
func CartTotal(cfg *model.PriceConfig, items []model.CartLineItem) int64 {
	var total int64
	for _, item := range items {
		total += ItemPrice(cfg, item)
	}
	return total
}

// TotalsByPaymentMethod sums ItemPrice per payment method.
// Items with an unknown method are counted as cash, matching ItemPrice which
// only surcharges transfer.
func TotalsByPaymentMethod(cfg *model.PriceConfig, items []model.CartLineItem) Totals {
	var t Totals
	for _, item := range items {
		price := ItemPrice(cfg, item)
		if item.PaymentMethod == model.PayTransfer {
			t.Transfer += price
		} else {
			t.Cash += price
		}
	}
	return t
}

// NovelCost returns the price of a whole novel paid with method.
func NovelCost(novel model.Novel, cfg *model.PriceConfig, method model.PaymentMethod) int64 {
	p := Resolve(cfg)
	chapters := int64(novel.Chapters)
	if chapters < 0 {
		chapters = 0
	}
	return applyPayment(chapters*p.NovelPricePerChapter, p.TransferFeePercent, method)
}

// OrderTotal adds the delivery cost to a cart total.
// Pickup orders pass a zero delivery cost.
func OrderTotal(cartTotal, deliveryCost int64) int64 {
	return cartTotal + deliveryCost
}

// WithTransferFee applies the surcharge to base: round(base * (1 + pct/100)).
// pct is read as the decimal it prints as, so 13 means exactly 13/100 and
// ties such as 50 at 13% (56.5) round up to 57.
func WithTransferFee(base int64, pct float64) int64 {
	rate, ok := new(big.Rat).SetString(strconv.FormatFloat(pct, 'f', -1, 64))
	if !ok {
		return base
	}
	v := new(big.Rat).Add(big.NewRat(100, 1), rate)
	v.Mul(v, big.NewRat(base, 100))
	return roundHalfUp(v)
}

func applyPayment(base int64, pct float64, method model.PaymentMethod) int64 {
	if method == model.PayTransfer {
		return WithTransferFee(base, pct)
	}
	return base
}

// roundHalfUp rounds to the nearest integer, ties towards +Inf.
func roundHalfUp(v *big.Rat) int64 {
	v = new(big.Rat).Add(v, big.NewRat(1, 2))
	// Div is Euclidean; with a positive denominator that is floor.
	return new(big.Int).Div(v.Num(), v.Denom()).Int64()
}

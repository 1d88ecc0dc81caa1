package pricing

import "github.com/roach88/carta/internal/model"

// Line is the priced view of one cart item.
type Line struct {
	Item      model.CartLineItem `json:"item"`
	BasePrice int64              `json:"base_price"`
	Price     int64              `json:"price"`
	Surcharge int64              `json:"surcharge"`
}

// Breakdown is the full price derivation of a cart.
type Breakdown struct {
	Prices    model.PriceConfig `json:"prices"`
	Lines     []Line            `json:"lines"`
	Totals    Totals            `json:"totals"`
	Subtotal  int64             `json:"subtotal"`
	Surcharge int64             `json:"surcharge"`
}

// Quote prices every item and returns the breakdown.
// Subtotal always equals CartTotal for the same arguments.
func Quote(cfg *model.PriceConfig, items []model.CartLineItem) Breakdown {
	p := Resolve(cfg)
	b := Breakdown{
		Prices: p,
		Lines:  make([]Line, 0, len(items)),
	}
	for _, item := range items {
		cash := item
		cash.PaymentMethod = model.PayCash
		base := ItemPrice(&p, cash)
		price := ItemPrice(&p, item)

		b.Lines = append(b.Lines, Line{
			Item:      item,
			BasePrice: base,
			Price:     price,
			Surcharge: price - base,
		})
		b.Subtotal += price
		b.Surcharge += price - base
	}
	b.Totals = TotalsByPaymentMethod(&p, items)
	return b
}

package state

import (
	"slices"

	"github.com/roach88/carta/internal/model"
)

// normalizeItem applies the line item invariants: known kind, known payment
// method (empty means cash), and for series a non-empty, sorted set of
// positive seasons. Movies never carry seasons.
func normalizeItem(kind Kind, item model.CartLineItem) (model.CartLineItem, error) {
	if item.ID <= 0 {
		return item, invalid(kind, "item id must be positive")
	}
	if !item.Kind.Valid() {
		return item, invalid(kind, "unknown media kind %q", item.Kind)
	}
	if item.PaymentMethod == "" {
		item.PaymentMethod = model.PayCash
	}
	if !item.PaymentMethod.Valid() {
		return item, invalid(kind, "unknown payment method %q", item.PaymentMethod)
	}
	if item.Kind == model.KindMovie {
		item.SelectedSeasons = nil
		return item, nil
	}
	seasons, err := normalizeSeasons(kind, item.SelectedSeasons)
	if err != nil {
		return item, err
	}
	item.SelectedSeasons = seasons
	return item, nil
}

func normalizeSeasons(kind Kind, in []int) ([]int, error) {
	seasons, ok := model.NormalizeSeasons(in)
	if !ok {
		return nil, invalid(kind, "season numbers must be positive")
	}
	if len(seasons) == 0 {
		return []int{1}, nil
	}
	return seasons, nil
}

// reduceAddItem upserts by media ID. Re-adding an item keeps the payment
// method already chosen for it.
func reduceAddItem(prev State, a Action, _ Env) (State, error) {
	item, err := normalizeItem(KindAddItem, a.(AddItem).Item)
	if err != nil {
		return prev, err
	}
	next := prev
	items := slices.Clone(prev.Cart.Items)
	if i, ok := prev.Cart.find(item.ID); ok {
		item.PaymentMethod = items[i].PaymentMethod
		items[i] = item
	} else {
		items = append(items, item)
	}
	next.Cart.Items = items
	return next, nil
}

func reduceRemoveItem(prev State, a Action, _ Env) (State, error) {
	i, ok := prev.Cart.find(a.(RemoveItem).ID)
	if !ok {
		return prev, nil
	}
	next := prev
	next.Cart.Items = slices.Delete(slices.Clone(prev.Cart.Items), i, i+1)
	return next, nil
}

func reduceUpdateSeasons(prev State, a Action, _ Env) (State, error) {
	act := a.(UpdateSeasons)
	seasons, err := normalizeSeasons(KindUpdateSeasons, act.Seasons)
	if err != nil {
		return prev, err
	}
	i, ok := prev.Cart.find(act.ID)
	if !ok {
		return prev, nil
	}
	if prev.Cart.Items[i].Kind != model.KindSeries {
		return prev, invalid(KindUpdateSeasons, "item %d is not a series", act.ID)
	}
	next := prev
	next.Cart.Items = slices.Clone(prev.Cart.Items)
	next.Cart.Items[i].SelectedSeasons = seasons
	return next, nil
}

func reduceUpdatePaymentMethod(prev State, a Action, _ Env) (State, error) {
	act := a.(UpdatePaymentMethod)
	if !act.Method.Valid() {
		return prev, invalid(KindUpdatePaymentMethod, "unknown payment method %q", act.Method)
	}
	i, ok := prev.Cart.find(act.ID)
	if !ok {
		return prev, nil
	}
	next := prev
	next.Cart.Items = slices.Clone(prev.Cart.Items)
	next.Cart.Items[i].PaymentMethod = act.Method
	return next, nil
}

func reduceClearCart(prev State, _ Action, _ Env) (State, error) {
	next := prev
	next.Cart.Items = []model.CartLineItem{}
	return next, nil
}

// reduceLoadCart replaces the cart with persisted items. Items that violate
// the line item invariants are dropped; for duplicate IDs the first wins.
func reduceLoadCart(prev State, a Action, _ Env) (State, error) {
	items := make([]model.CartLineItem, 0, len(a.(LoadCart).Items))
	seen := make(map[int64]bool)
	for _, raw := range a.(LoadCart).Items {
		item, err := normalizeItem(KindLoadCart, raw)
		if err != nil || seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		items = append(items, item)
	}
	next := prev
	next.Cart.Items = items
	return next, nil
}

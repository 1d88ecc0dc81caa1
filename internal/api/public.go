package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/order"
	"github.com/roach88/carta/internal/pricing"
	"github.com/roach88/carta/internal/state"
)

type novelView struct {
	model.Novel
	CashCost     int64 `json:"cash_cost"`
	TransferCost int64 `json:"transfer_cost"`
}

type stateView struct {
	Revision int64                `json:"revision"`
	Prices   model.PriceConfig    `json:"prices"`
	Zones    []model.DeliveryZone `json:"zones"`
	Novels   []novelView          `json:"novels"`
	Sync     model.SyncStatus     `json:"sync"`
}

func activeNovels(a state.AdminState) []novelView {
	out := make([]novelView, 0, len(a.Novels))
	for _, n := range a.Novels {
		if !n.Active {
			continue
		}
		out = append(out, novelView{
			Novel:        n,
			CashCost:     pricing.NovelCost(n, &a.Prices, model.PayCash),
			TransferCost: pricing.NovelCost(n, &a.Prices, model.PayTransfer),
		})
	}
	return out
}

func (s *Server) getState(c echo.Context) error {
	snap := s.container.Snapshot()
	return c.JSON(http.StatusOK, stateView{
		Revision: snap.Revision,
		Prices:   snap.Admin.Prices,
		Zones:    snap.Admin.ActiveZones(),
		Novels:   activeNovels(snap.Admin),
		Sync:     snap.Admin.Sync,
	})
}

func (s *Server) getZones(c echo.Context) error {
	return c.JSON(http.StatusOK, s.container.ActiveZones())
}

func (s *Server) getNovels(c echo.Context) error {
	return c.JSON(http.StatusOK, activeNovels(s.container.Snapshot().Admin))
}

type quoteRequest struct {
	Items  []model.CartLineItem `json:"items"`
	ZoneID string               `json:"zone_id"`
}

type quoteResponse struct {
	pricing.Breakdown
	DeliveryCost int64 `json:"delivery_cost"`
	Total        int64 `json:"total"`
}

func (s *Server) postQuote(c echo.Context) error {
	var req quoteRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}
	for _, item := range req.Items {
		if !item.Kind.Valid() {
			return errorJSON(c, http.StatusBadRequest, "unknown kind "+string(item.Kind))
		}
		if item.PaymentMethod != "" && !item.PaymentMethod.Valid() {
			return errorJSON(c, http.StatusBadRequest, "unknown payment method "+string(item.PaymentMethod))
		}
	}

	snap := s.container.Snapshot()
	var delivery int64
	if req.ZoneID != "" {
		zone, ok := snap.Admin.LookupZone(req.ZoneID)
		if !ok {
			return errorJSON(c, http.StatusConflict, order.ErrZoneUnavailable.Error())
		}
		delivery = zone.Cost
	}

	b := pricing.Quote(&snap.Admin.Prices, req.Items)
	return c.JSON(http.StatusOK, quoteResponse{
		Breakdown:    b,
		DeliveryCost: delivery,
		Total:        pricing.OrderTotal(b.Subtotal, delivery),
	})
}

type orderRequest struct {
	Customer order.CustomerInfo `json:"customer"`
	Delivery order.Delivery     `json:"delivery"`
}

func (s *Server) postOrder(c echo.Context) error {
	var req orderRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}

	o, err := order.Build(s.container.Snapshot(), req.Customer, req.Delivery, s.orderIDs, s.now())
	var fields order.FieldErrors
	switch {
	case errors.As(err, &fields):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "invalid order", "fields": fields})
	case errors.Is(err, order.ErrZoneUnavailable), errors.Is(err, order.ErrEmptyCart):
		return errorJSON(c, http.StatusConflict, err.Error())
	case err != nil:
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	ctx := c.Request().Context()
	if err := s.sink.Submit(ctx, o); err != nil {
		s.logger.ErrorContext(ctx, "order submission failed", "order", o.ID, "error", err)
		return errorJSON(c, http.StatusBadGateway, "order could not be submitted")
	}
	s.logger.InfoContext(ctx, "order submitted", "order", o.ID, "total", o.Total)
	s.container.Dispatch(state.ClearCart{})
	return c.JSON(http.StatusCreated, o)
}

func (s *Server) postResume(c echo.Context) error {
	if s.syncer == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "sync is not configured")
	}
	s.syncer.Resume()
	return c.NoContent(http.StatusAccepted)
}

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/roach88/carta/internal/catalog"
	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/pricing"
	"github.com/roach88/carta/internal/state"
)

type cartView struct {
	Items     []model.CartLineItem `json:"items"`
	Breakdown pricing.Breakdown    `json:"breakdown"`
}

func (s *Server) cartResponse(c echo.Context, snap state.State) error {
	return c.JSON(http.StatusOK, cartView{
		Items:     snap.Cart.Items,
		Breakdown: pricing.Quote(&snap.Admin.Prices, snap.Cart.Items),
	})
}

func (s *Server) getCart(c echo.Context) error {
	return s.cartResponse(c, s.container.Snapshot())
}

type cartItemRequest struct {
	ID            int64               `json:"id"`
	Title         string              `json:"title"`
	Kind          model.MediaKind     `json:"kind"`
	Seasons       []int               `json:"seasons"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
}

func (s *Server) postCartItem(c echo.Context) error {
	var req cartItemRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}

	item := model.CartLineItem{
		ID:              req.ID,
		Title:           req.Title,
		Kind:            req.Kind,
		SelectedSeasons: req.Seasons,
		PaymentMethod:   req.PaymentMethod,
	}
	if s.catalog != nil {
		entry, err := s.catalog.Lookup(c.Request().Context(), req.ID)
		if errors.Is(err, catalog.ErrNotFound) {
			return errorJSON(c, http.StatusNotFound, err.Error())
		}
		if err != nil {
			return errorJSON(c, http.StatusInternalServerError, err.Error())
		}
		item.Title = entry.Title
		item.Kind = entry.Kind
	}

	snap, err := s.container.Apply(state.AddItem{Item: item})
	if err != nil {
		return actionError(c, err)
	}
	return s.cartResponse(c, snap)
}

func itemID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func (s *Server) deleteCartItem(c echo.Context) error {
	id, err := itemID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid id")
	}
	if !s.container.Snapshot().Cart.IsInCart(id) {
		return errorJSON(c, http.StatusNotFound, "item not in cart")
	}
	return s.cartResponse(c, s.container.Dispatch(state.RemoveItem{ID: id}))
}

func (s *Server) putSeasons(c echo.Context) error {
	id, err := itemID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid id")
	}
	var req struct {
		Seasons []int `json:"seasons"`
	}
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}
	if !s.container.Snapshot().Cart.IsInCart(id) {
		return errorJSON(c, http.StatusNotFound, "item not in cart")
	}
	snap, err := s.container.Apply(state.UpdateSeasons{ID: id, Seasons: req.Seasons})
	if err != nil {
		return actionError(c, err)
	}
	return s.cartResponse(c, snap)
}

func (s *Server) putPayment(c echo.Context) error {
	id, err := itemID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid id")
	}
	var req struct {
		PaymentMethod model.PaymentMethod `json:"payment_method"`
	}
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}
	if !s.container.Snapshot().Cart.IsInCart(id) {
		return errorJSON(c, http.StatusNotFound, "item not in cart")
	}
	snap, err := s.container.Apply(state.UpdatePaymentMethod{ID: id, Method: req.PaymentMethod})
	if err != nil {
		return actionError(c, err)
	}
	return s.cartResponse(c, snap)
}

func (s *Server) deleteCart(c echo.Context) error {
	return s.cartResponse(c, s.container.Dispatch(state.ClearCart{}))
}

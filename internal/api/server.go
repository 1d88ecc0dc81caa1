// Package api exposes a container over HTTP.
//
// Public routes serve the storefront (state, quotes, cart, checkout).
// Admin routes require a bearer token obtained from /api/admin/login.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/roach88/carta/internal/auth"
	"github.com/roach88/carta/internal/catalog"
	"github.com/roach88/carta/internal/order"
	"github.com/roach88/carta/internal/state"
)

// Syncer is the replication surface used by the sync routes.
type Syncer interface {
	Resume()
	Flush(ctx context.Context) error
}

// Deps are the collaborators of a Server. Container and Sink are required.
type Deps struct {
	Container *state.Container
	Sink      order.Sink
	Tokens    *auth.Tokens
	Catalog   catalog.Source
	Syncer    Syncer
	OrderIDs  state.IDGenerator
	Now       func() time.Time
	Logger    *slog.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	container *state.Container
	sink      order.Sink
	tokens    *auth.Tokens
	catalog   catalog.Source
	syncer    Syncer
	orderIDs  state.IDGenerator
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Server.
func New(d Deps) *Server {
	s := &Server{
		container: d.Container,
		sink:      d.Sink,
		tokens:    d.Tokens,
		catalog:   d.Catalog,
		syncer:    d.Syncer,
		orderIDs:  d.OrderIDs,
		now:       d.Now,
		logger:    d.Logger,
	}
	if s.orderIDs == nil {
		s.orderIDs = state.UUIDv7Generator{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Echo returns a configured router with every route registered.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	s.Register(e)
	return e
}

// Register adds the routes to e. Admin routes are only registered when the
// server has a token service.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", health)

	api := e.Group("/api")
	api.GET("/state", s.getState)
	api.GET("/zones", s.getZones)
	api.GET("/novels", s.getNovels)
	api.POST("/quote", s.postQuote)
	api.POST("/orders", s.postOrder)
	api.POST("/sync/resume", s.postResume)

	api.GET("/cart", s.getCart)
	api.POST("/cart/items", s.postCartItem)
	api.DELETE("/cart/items/:id", s.deleteCartItem)
	api.PUT("/cart/items/:id/seasons", s.putSeasons)
	api.PUT("/cart/items/:id/payment", s.putPayment)
	api.DELETE("/cart", s.deleteCart)

	if s.tokens == nil {
		return
	}
	api.POST("/admin/login", s.postLogin)

	admin := api.Group("/admin", RequireAdmin(s.tokens))
	admin.POST("/logout", s.postLogout)
	admin.GET("/state", s.getAdminState)
	admin.PUT("/prices", s.putPrices)
	admin.POST("/zones", s.postZone)
	admin.PUT("/zones/:id", s.putZone)
	admin.DELETE("/zones/:id", s.deleteZone)
	admin.POST("/novels", s.postNovel)
	admin.PUT("/novels/:id", s.putNovel)
	admin.DELETE("/novels/:id", s.deleteNovel)
	admin.GET("/notifications", s.getNotifications)
	admin.DELETE("/notifications", s.deleteNotifications)
	admin.GET("/backup", s.getBackup)
	admin.POST("/sync", s.postFlush)
}

func health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"error": msg})
}

// actionError maps a rejected action to 400 and anything else to 500.
func actionError(c echo.Context, err error) error {
	if state.IsInvalidAction(err) {
		var ia *state.InvalidActionError
		if errors.As(err, &ia) {
			return errorJSON(c, http.StatusBadRequest, ia.Reason)
		}
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	return errorJSON(c, http.StatusInternalServerError, err.Error())
}

package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/roach88/carta/internal/backup"
	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/state"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) postLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}
	if !s.container.Login(req.Username, req.Password) {
		return errorJSON(c, http.StatusUnauthorized, "invalid credentials")
	}
	tok, err := s.tokens.Issue(req.Username)
	if err != nil {
		s.logger.Error("token issue failed", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "could not issue token")
	}
	return c.JSON(http.StatusOK, tok)
}

func (s *Server) postLogout(c echo.Context) error {
	s.container.Logout()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getAdminState(c echo.Context) error {
	return c.JSON(http.StatusOK, s.container.Snapshot())
}

// mutationResult reports the revision after an admin mutation and the
// notification it produced.
type mutationResult struct {
	Revision     int64               `json:"revision"`
	Notification *model.Notification `json:"notification,omitempty"`
}

// apply dispatches a strictly and answers with the notification it recorded.
// A warning from a create or update means the change was refused (for
// example a duplicate zone name) and maps to 409.
func (s *Server) apply(c echo.Context, a state.Action, ok int) error {
	before := s.container.Snapshot()
	after, err := s.container.Apply(a)
	if err != nil {
		return actionError(c, err)
	}

	res := mutationResult{Revision: after.Revision}
	if after.Revision != before.Revision {
		if n, found := after.Admin.Notifications.Latest(); found {
			res.Notification = &n
		}
	}
	status := ok
	if res.Notification != nil && res.Notification.Severity == model.SeverityWarning && !isDelete(a) {
		status = http.StatusConflict
	}
	return c.JSON(status, res)
}

func isDelete(a state.Action) bool {
	switch a.Kind() {
	case state.KindDeleteZone, state.KindDeleteNovel:
		return true
	}
	return false
}

// notFound records the rejected attempt and answers 404.
func (s *Server) notFound(c echo.Context, a state.Action, what string) error {
	s.container.Dispatch(a)
	return errorJSON(c, http.StatusNotFound, what+" not found")
}

func (s *Server) putPrices(c echo.Context) error {
	var prices model.PriceConfig
	if err := c.Bind(&prices); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}
	return s.apply(c, state.UpdatePrices{Prices: prices}, http.StatusOK)
}

type zoneRequest struct {
	Name   string `json:"name"`
	Cost   int64  `json:"cost"`
	Active *bool  `json:"active"`
}

func (r zoneRequest) active() bool {
	return r.Active == nil || *r.Active
}

func (s *Server) postZone(c echo.Context) error {
	var req zoneRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}
	return s.apply(c, state.AddZone{Name: req.Name, Cost: req.Cost, Active: req.active()}, http.StatusCreated)
}

func findZone(zones []model.DeliveryZone, id string) (model.DeliveryZone, bool) {
	for _, z := range zones {
		if z.ID == id {
			return z, true
		}
	}
	return model.DeliveryZone{}, false
}

func (s *Server) putZone(c echo.Context) error {
	var req zoneRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}
	id := c.Param("id")
	zone, ok := findZone(s.container.Zones(), id)
	upd := state.UpdateZone{Zone: model.DeliveryZone{ID: id, Name: req.Name, Cost: req.Cost, Active: req.active()}}
	if !ok {
		return s.notFound(c, upd, "zone")
	}
	upd.Zone.CreatedAt = zone.CreatedAt
	return s.apply(c, upd, http.StatusOK)
}

func (s *Server) deleteZone(c echo.Context) error {
	id := c.Param("id")
	if _, ok := findZone(s.container.Zones(), id); !ok {
		return s.notFound(c, state.DeleteZone{ID: id}, "zone")
	}
	return s.apply(c, state.DeleteZone{ID: id}, http.StatusOK)
}

type novelRequest struct {
	Title       string `json:"title"`
	Genre       string `json:"genre"`
	Chapters    int    `json:"chapters"`
	Year        int    `json:"year"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

func (r novelRequest) active() bool {
	return r.Active == nil || *r.Active
}

func (s *Server) postNovel(c echo.Context) error {
	var req novelRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}
	return s.apply(c, state.AddNovel{
		Title:       req.Title,
		Genre:       req.Genre,
		Chapters:    req.Chapters,
		Year:        req.Year,
		Description: req.Description,
		Active:      req.active(),
	}, http.StatusCreated)
}

func (s *Server) putNovel(c echo.Context) error {
	var req novelRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}
	id := c.Param("id")
	upd := state.UpdateNovel{Novel: model.Novel{
		ID:          id,
		Title:       req.Title,
		Genre:       req.Genre,
		Chapters:    req.Chapters,
		Year:        req.Year,
		Description: req.Description,
		Active:      req.active(),
	}}
	if _, ok := s.container.Snapshot().Admin.LookupNovel(id); !ok {
		return s.notFound(c, upd, "novel")
	}
	return s.apply(c, upd, http.StatusOK)
}

func (s *Server) deleteNovel(c echo.Context) error {
	id := c.Param("id")
	if _, ok := s.container.Snapshot().Admin.LookupNovel(id); !ok {
		return s.notFound(c, state.DeleteNovel{ID: id}, "novel")
	}
	return s.apply(c, state.DeleteNovel{ID: id}, http.StatusOK)
}

func (s *Server) getNotifications(c echo.Context) error {
	log := s.container.Snapshot().Admin.Notifications
	if sev := model.Severity(c.QueryParam("severity")); sev != "" {
		if !sev.Valid() {
			return errorJSON(c, http.StatusBadRequest, "unknown severity")
		}
		log = log.Filter(sev)
	}
	if log == nil {
		return c.JSON(http.StatusOK, []model.Notification{})
	}
	return c.JSON(http.StatusOK, log)
}

func (s *Server) deleteNotifications(c echo.Context) error {
	return s.apply(c, state.ClearNotifications{}, http.StatusOK)
}

func (s *Server) getBackup(c echo.Context) error {
	now := s.now()
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	res.Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", "carta-backup-"+now.UTC().Format("20060102-150405")+".json"))
	res.WriteHeader(http.StatusOK)

	if _, err := backup.Export(s.container, res, now); err != nil {
		s.logger.Error("backup export failed", "error", err)
		return err
	}
	return nil
}

func (s *Server) postFlush(c echo.Context) error {
	if s.syncer == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "sync is not configured")
	}
	if err := s.syncer.Flush(c.Request().Context()); err != nil {
		return errorJSON(c, http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, s.container.Snapshot().Admin.Sync)
}


package handler

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/recital-program/internal/auth"
	"github.com/iliyamo/recital-program/internal/favorites"
	"github.com/iliyamo/recital-program/internal/middleware"
	"github.com/iliyamo/recital-program/internal/model"
	"github.com/iliyamo/recital-program/internal/search"
)

// PrefsFunc returns the preference storage of one session subject.
type PrefsFunc func(subject string) favorites.Storage

// SessionHandler serves per-session data: identity, favorites, theme and
// the annotated program.
type SessionHandler struct {
	Shows *CatalogHandler
	Live  *LiveHandler
	Prefs PrefsFunc
	Allow auth.AllowList
	Log   *log.Logger

	// locks serializes favorite toggles of one subject.
	locks favorites.Locks
}

type meResp struct {
	model.Session
	Authorized bool `json:"authorized"`
}

func (h *SessionHandler) favorites(c echo.Context, s model.Session) *favorites.Store {
	return favorites.Open(c.Request().Context(), h.Prefs(s.Subject), h.Log)
}

// Me describes the caller and whether it may drive live status.
func (h *SessionHandler) Me(c echo.Context) error {
	s, ok := middleware.SessionFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing session"})
	}
	return c.JSON(http.StatusOK, meResp{Session: s, Authorized: h.Allow.Authorized(s)})
}

// ListFavorites returns the caller's favorites, sorted.
func (h *SessionHandler) ListFavorites(c echo.Context) error {
	s, ok := middleware.SessionFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing session"})
	}
	fav := h.favorites(c, s)
	return c.JSON(http.StatusOK, echo.Map{"favorites": fav.List(), "count": fav.Len()})
}

type toggleReq struct {
	Name string `json:"name"`
}

// ToggleFavorite adds or removes a performer.  The name is kept verbatim.
func (h *SessionHandler) ToggleFavorite(c echo.Context) error {
	s, ok := middleware.SessionFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing session"})
	}
	var req toggleReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required"})
	}
	unlock := h.locks.Lock(s.Subject)
	defer unlock()
	fav := h.favorites(c, s)
	on := fav.Toggle(c.Request().Context(), req.Name)
	return c.JSON(http.StatusOK, echo.Map{"name": req.Name, "favorite": on, "count": fav.Len()})
}

// ShowFavorites joins the caller's favorites with a show.
func (h *SessionHandler) ShowFavorites(c echo.Context) error {
	s, ok := middleware.SessionFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing session"})
	}
	show, _, ok := h.Shows.Lookup(c)
	if !ok {
		return notFound(c)
	}
	return c.JSON(http.StatusOK, echo.Map{"show": show.Key, "favorites": h.favorites(c, s).JoinWithShow(show)})
}

// GetTheme returns the caller's theme, light by default.
func (h *SessionHandler) GetTheme(c echo.Context) error {
	s, ok := middleware.SessionFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing session"})
	}
	theme := favorites.LoadTheme(c.Request().Context(), h.Prefs(s.Subject), h.Log)
	return c.JSON(http.StatusOK, echo.Map{"theme": theme})
}

type themeReq struct {
	Theme string `json:"theme"`
}

// PutTheme stores the caller's theme.
func (h *SessionHandler) PutTheme(c echo.Context) error {
	s, ok := middleware.SessionFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing session"})
	}
	var req themeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	theme, err := favorites.ParseTheme(req.Theme)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "theme must be light or dark"})
	}
	favorites.SaveTheme(c.Request().Context(), h.Prefs(s.Subject), theme, h.Log)
	return c.JSON(http.StatusOK, echo.Map{"theme": theme})
}

// Program returns the acts of a show flagged with favorite and current.
// Without a session no act is a favorite.  When live status cannot be read
// no act is current.
func (h *SessionHandler) Program(c echo.Context) error {
	show, _, ok := h.Shows.Lookup(c)
	if !ok {
		return notFound(c)
	}
	var isFavorite func(string) bool
	if s, ok := middleware.SessionFrom(c); ok {
		isFavorite = h.favorites(c, s).Has
	}
	current, err := h.Live.Current(c.Request().Context(), show)
	if err != nil {
		h.Log.Warn("program without live status", "show", show.Key, "err", err)
		current = model.CurrentAct{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"show":  show.Key,
		"label": show.Label,
		"live":  current,
		"acts":  search.Program(show, isFavorite, current),
	})
}

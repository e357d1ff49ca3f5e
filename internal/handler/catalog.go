// Package handler implements the HTTP endpoints of the recital API.
package handler

import (
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/recital-program/internal/catalog"
	"github.com/iliyamo/recital-program/internal/model"
	"github.com/iliyamo/recital-program/internal/search"
)

// CatalogHandler serves the read-only program data.  Search indexes are
// built once per show at construction.
type CatalogHandler struct {
	catalog *catalog.Catalog
	indexes map[model.ShowKey]*search.Index
}

func NewCatalogHandler(c *catalog.Catalog) *CatalogHandler {
	h := &CatalogHandler{catalog: c, indexes: make(map[model.ShowKey]*search.Index, c.Len())}
	for _, s := range c.Shows() {
		h.indexes[s.Key] = search.NewIndex(s)
	}
	return h
}

type showSummary struct {
	Key      model.ShowKey `json:"key"`
	Label    string        `json:"label"`
	Datetime time.Time     `json:"datetime"`
	Acts     int           `json:"acts"`
}

// Lookup resolves the :key path parameter.
func (h *CatalogHandler) Lookup(c echo.Context) (*model.Show, *search.Index, bool) {
	raw, err := url.PathUnescape(c.Param("key"))
	if err != nil {
		return nil, nil, false
	}
	show, ok := h.catalog.Show(model.ShowKey(raw))
	if !ok {
		return nil, nil, false
	}
	return show, h.indexes[show.Key], true
}

func notFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown show"})
}

// ListShows returns every show in dataset order.
func (h *CatalogHandler) ListShows(c echo.Context) error {
	shows := h.catalog.Shows()
	out := make([]showSummary, 0, len(shows))
	for _, s := range shows {
		out = append(out, showSummary{Key: s.Key, Label: s.Label, Datetime: s.Datetime, Acts: len(s.Acts)})
	}
	return c.JSON(http.StatusOK, echo.Map{"shows": out})
}

// GetShow returns one show with its acts.
func (h *CatalogHandler) GetShow(c echo.Context) error {
	show, _, ok := h.Lookup(c)
	if !ok {
		return notFound(c)
	}
	return c.JSON(http.StatusOK, show)
}

// SearchPerformers is the performer view: ?q= matches performer names.
func (h *CatalogHandler) SearchPerformers(c echo.Context) error {
	_, idx, ok := h.Lookup(c)
	if !ok {
		return notFound(c)
	}
	q := c.QueryParam("q")
	return c.JSON(http.StatusOK, echo.Map{"query": q, "performers": idx.Performers(q)})
}

// SearchActs is the act view: ?q= matches title, number or performer.
func (h *CatalogHandler) SearchActs(c echo.Context) error {
	_, idx, ok := h.Lookup(c)
	if !ok {
		return notFound(c)
	}
	q := c.QueryParam("q")
	return c.JSON(http.StatusOK, echo.Map{"query": q, "acts": idx.Acts(q)})
}

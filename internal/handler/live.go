package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/recital-program/internal/auth"
	"github.com/iliyamo/recital-program/internal/livestatus"
	"github.com/iliyamo/recital-program/internal/middleware"
	"github.com/iliyamo/recital-program/internal/model"
	"github.com/iliyamo/recital-program/internal/queue"
)

// EventPublisher sends live status audit events.
type EventPublisher interface {
	PublishLiveStatusChanged(ctx context.Context, ev queue.LiveStatusChangedEvent) error
}

// LiveHandler serves the "now performing" state.  Every request owns a
// livestatus.Tracker for the duration of the request.
type LiveHandler struct {
	Shows  *CatalogHandler
	Store  livestatus.Store
	AppID  string
	Allow  auth.AllowList
	Events EventPublisher // nil disables audit events
	Log    *log.Logger

	// FirstUpdate bounds the wait for the initial document value.
	FirstUpdate time.Duration
	// KeepAlive is the comment interval on idle streams.
	KeepAlive time.Duration
}

type liveView struct {
	Show  model.ShowKey    `json:"show"`
	Label string           `json:"label"`
	Live  model.CurrentAct `json:"live"`
}

var errFirstUpdate = fmt.Errorf("%w: no update before timeout", livestatus.ErrSubscription)

// offer replaces whatever is buffered in ch with v.  The tracker listener
// is the only sender.
func offer(ch chan model.CurrentAct, v model.CurrentAct) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// open selects show on a new tracker and waits for the first resolved
// state.  The returned channel always holds the latest state.
func (h *LiveHandler) open(ctx context.Context, show *model.Show, authorized bool) (*livestatus.Tracker, <-chan model.CurrentAct, model.CurrentAct, error) {
	updates := make(chan model.CurrentAct, 1)
	t := livestatus.NewTracker(h.Store, h.AppID,
		livestatus.WithLogger(h.Log),
		livestatus.WithAuthorized(authorized),
		livestatus.WithListener(func(ca model.CurrentAct) { offer(updates, ca) }),
	)
	if err := t.Select(ctx, show); err != nil {
		return nil, nil, model.CurrentAct{}, err
	}
	first, err := h.next(ctx, updates)
	if err != nil {
		_ = t.Close()
		return nil, nil, model.CurrentAct{}, err
	}
	return t, updates, first, nil
}

func (h *LiveHandler) next(ctx context.Context, updates <-chan model.CurrentAct) (model.CurrentAct, error) {
	timer := time.NewTimer(h.firstUpdate())
	defer timer.Stop()
	select {
	case ca := <-updates:
		return ca, nil
	case <-timer.C:
		return model.CurrentAct{}, errFirstUpdate
	case <-ctx.Done():
		return model.CurrentAct{}, ctx.Err()
	}
}

func (h *LiveHandler) firstUpdate() time.Duration {
	if h.FirstUpdate <= 0 {
		return 5 * time.Second
	}
	return h.FirstUpdate
}

// Current resolves the live state of show once.
func (h *LiveHandler) Current(ctx context.Context, show *model.Show) (model.CurrentAct, error) {
	t, _, first, err := h.open(ctx, show, false)
	if err != nil {
		return model.CurrentAct{}, err
	}
	_ = t.Close()
	return first, nil
}

// liveError maps tracker errors onto HTTP responses.
func liveError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, livestatus.ErrInvalidActNumber):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "act number must be at least 1"})
	case errors.Is(err, livestatus.ErrNotAuthorized):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not authorized to update live status"})
	case errors.Is(err, livestatus.ErrNoShowSelected):
		return c.JSON(http.StatusConflict, echo.Map{"error": "no show selected"})
	case errors.Is(err, livestatus.ErrWrite):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "live status write failed"})
	case errors.Is(err, livestatus.ErrSubscription):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "live status unavailable"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "live status unavailable"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// Snapshot returns the current live state of a show.
func (h *LiveHandler) Snapshot(c echo.Context) error {
	show, _, ok := h.Shows.Lookup(c)
	if !ok {
		return notFound(c)
	}
	ca, err := h.Current(c.Request().Context(), show)
	if err != nil {
		return liveError(c, err)
	}
	return c.JSON(http.StatusOK, liveView{Show: show.Key, Label: show.Label, Live: ca})
}

// Stream pushes every resolved state of a show as a Server-Sent Event until
// the client disconnects.
func (h *LiveHandler) Stream(c echo.Context) error {
	show, _, ok := h.Shows.Lookup(c)
	if !ok {
		return notFound(c)
	}
	ctx := c.Request().Context()
	t, updates, first, err := h.open(ctx, show, false)
	if err != nil {
		return liveError(c, err)
	}
	defer t.Close()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeStatusEvent(w, liveView{Show: show.Key, Label: show.Label, Live: first}); err != nil {
		return nil
	}
	w.Flush()

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	h.Log.Debug("live stream opened", "show", show.Key)
	for {
		select {
		case <-ctx.Done():
			h.Log.Debug("live stream closed", "show", show.Key)
			return nil
		case ca := <-updates:
			if err := writeStatusEvent(w, liveView{Show: show.Key, Label: show.Label, Live: ca}); err != nil {
				return nil
			}
			w.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

func writeStatusEvent(w http.ResponseWriter, v liveView) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
	return err
}

type actReq struct {
	Number *int `json:"number"`
}

type stepReq struct {
	Delta int `json:"delta"`
}

// SetAct marks an act as being performed and turns tracking on.
func (h *LiveHandler) SetAct(c echo.Context) error {
	var req actReq
	if err := c.Bind(&req); err != nil || req.Number == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "number required"})
	}
	n := *req.Number
	return h.mutate(c, queue.ActionSetAct, func(ctx context.Context, t *livestatus.Tracker) (livestatus.Patch, error) {
		if err := t.SetCurrentAct(ctx, n); err != nil {
			return livestatus.Patch{}, err
		}
		tracking := true
		return livestatus.Patch{CurrentActNumber: &n, IsTracking: &tracking}, nil
	})
}

// Step moves the current act by delta.
func (h *LiveHandler) Step(c echo.Context) error {
	var req stepReq
	if err := c.Bind(&req); err != nil || req.Delta == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "non-zero delta required"})
	}
	return h.mutate(c, queue.ActionStep, func(ctx context.Context, t *livestatus.Tracker) (livestatus.Patch, error) {
		return t.Step(ctx, req.Delta)
	})
}

// Toggle flips whether the show is being tracked.
func (h *LiveHandler) Toggle(c echo.Context) error {
	return h.mutate(c, queue.ActionToggle, func(ctx context.Context, t *livestatus.Tracker) (livestatus.Patch, error) {
		return t.ToggleTracking(ctx)
	})
}

// mutation performs one write and returns the patch it wrote.
type mutation func(ctx context.Context, t *livestatus.Tracker) (livestatus.Patch, error)

// mutate runs one write on a tracker subscribed to the show.  It answers
// with the state pushed back after the write, or 202 when none arrives in
// time.
func (h *LiveHandler) mutate(c echo.Context, action string, do mutation) error {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing session"})
	}
	show, _, ok := h.Shows.Lookup(c)
	if !ok {
		return notFound(c)
	}
	ctx := c.Request().Context()
	t, updates, _, err := h.open(ctx, show, h.Allow.Authorized(session))
	if err != nil {
		return liveError(c, err)
	}
	defer t.Close()

	patch, err := do(ctx, t)
	if err != nil {
		return liveError(c, err)
	}
	h.Log.Info("live status changed", "show", show.Key, "action", action, "by", session.Email)
	h.publish(queue.LiveStatusChangedEvent{
		AppID:            h.AppID,
		ShowKey:          string(show.Key),
		Path:             string(livestatus.DocumentPath(h.AppID, show.Key)),
		Action:           action,
		Subject:          session.Subject,
		Email:            session.Email,
		CurrentActNumber: patch.CurrentActNumber,
		IsTracking:       patch.IsTracking,
		ChangedAt:        time.Now().UTC().Format(time.RFC3339),
	})

	after, err := h.next(ctx, updates)
	if err != nil {
		return c.JSON(http.StatusAccepted, echo.Map{"status": "accepted"})
	}
	return c.JSON(http.StatusOK, liveView{Show: show.Key, Label: show.Label, Live: after})
}

func (h *LiveHandler) publish(ev queue.LiveStatusChangedEvent) {
	if h.Events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Events.PublishLiveStatusChanged(ctx, ev); err != nil {
			h.Log.Warn("live status event not published", "show", ev.ShowKey, "err", err)
		}
	}()
}

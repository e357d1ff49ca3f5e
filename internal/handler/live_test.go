package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/recital-program/internal/livestatus"
	"github.com/iliyamo/recital-program/internal/model"
	"github.com/iliyamo/recital-program/internal/queue"
)

func (a *testAPI) snapshot(t *testing.T, key string) model.CurrentAct {
	t.Helper()
	rec := a.do(t, http.MethodGet, "/v1/shows/"+key+"/live", "", nil)
	expectStatus(t, rec, http.StatusOK)
	return decode[liveView](t, rec).Live
}

func expectAct(t *testing.T, got model.CurrentAct, number int, title string, tracking bool) {
	t.Helper()
	if got.Number == nil || *got.Number != number || got.Title != title || got.IsTracking != tracking {
		t.Fatalf("live = %+v (number %v), want %d %q tracking=%v", got, got.Number, number, title, tracking)
	}
}

func (a *testAPI) expectEvent(t *testing.T, action string) queue.LiveStatusChangedEvent {
	t.Helper()
	select {
	case ev := <-a.events.ch:
		if ev.Action != action {
			t.Fatalf("event action = %q, want %q", ev.Action, action)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no %s event published", action)
	}
	return queue.LiveStatusChangedEvent{}
}

func (a *testAPI) expectNoEvent(t *testing.T) {
	t.Helper()
	select {
	case ev := <-a.events.ch:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLiveSnapshotDefaults(t *testing.T) {
	a := newTestAPI(t)
	expectAct(t, a.snapshot(t, saturday), 1, "Opening Number", false)
	expectStatus(t, a.do(t, http.MethodGet, "/v1/shows/nope/live", "", nil), http.StatusNotFound)
}

func TestSetActAuthorized(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodPost, "/v1/shows/"+saturday+"/live/act", a.directorToken(t), map[string]int{"number": 3})
	expectStatus(t, rec, http.StatusOK)
	expectAct(t, decode[liveView](t, rec).Live, 3, "Tap Attack", true)
	expectAct(t, a.snapshot(t, saturday), 3, "Tap Attack", true)

	ev := a.expectEvent(t, queue.ActionSetAct)
	if ev.ShowKey != saturday || ev.Email != director || *ev.CurrentActNumber != 3 || !*ev.IsTracking {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Path != "artifacts/test-app/public/data/show_status/"+saturday {
		t.Fatalf("event path = %q", ev.Path)
	}

	// Shows have separate documents.
	expectAct(t, a.snapshot(t, sunday), 1, "Sunrise", false)
}

func TestSetActRejections(t *testing.T) {
	a := newTestAPI(t)
	path := "/v1/shows/" + saturday + "/live/act"

	expectStatus(t, a.do(t, http.MethodPost, path, "", map[string]int{"number": 2}), http.StatusUnauthorized)
	expectStatus(t, a.do(t, http.MethodPost, path, a.guestToken(t), map[string]int{"number": 2}), http.StatusForbidden)
	expectStatus(t, a.do(t, http.MethodPost, path, a.directorToken(t), map[string]int{"number": 0}), http.StatusBadRequest)
	expectStatus(t, a.do(t, http.MethodPost, path, a.guestToken(t), map[string]int{"number": -1}), http.StatusBadRequest)
	expectStatus(t, a.do(t, http.MethodPost, path, a.directorToken(t), map[string]string{}), http.StatusBadRequest)
	expectStatus(t, a.do(t, http.MethodPost, "/v1/shows/nope/live/act", a.directorToken(t), map[string]int{"number": 2}), http.StatusNotFound)

	expectAct(t, a.snapshot(t, saturday), 1, "Opening Number", false)
	a.expectNoEvent(t)
}

func TestStepAndToggle(t *testing.T) {
	a := newTestAPI(t)
	tok := a.directorToken(t)
	base := "/v1/shows/" + saturday + "/live/"

	expectStatus(t, a.do(t, http.MethodPost, base+"act", tok, map[string]int{"number": 3}), http.StatusOK)
	a.expectEvent(t, queue.ActionSetAct)

	rec := a.do(t, http.MethodPost, base+"step", tok, map[string]int{"delta": 1})
	expectStatus(t, rec, http.StatusOK)
	expectAct(t, decode[liveView](t, rec).Live, 4, model.ActNotFoundTitle, true)
	if ev := a.expectEvent(t, queue.ActionStep); *ev.CurrentActNumber != 4 {
		t.Fatalf("step event number = %d", *ev.CurrentActNumber)
	}

	rec = a.do(t, http.MethodPost, base+"toggle", tok, nil)
	expectStatus(t, rec, http.StatusOK)
	expectAct(t, decode[liveView](t, rec).Live, 4, model.ActNotFoundTitle, false)
	if ev := a.expectEvent(t, queue.ActionToggle); ev.CurrentActNumber != nil || *ev.IsTracking {
		t.Fatalf("toggle event = %+v", ev)
	}

	expectStatus(t, a.do(t, http.MethodPost, base+"step", tok, map[string]int{"delta": 0}), http.StatusBadRequest)
	expectStatus(t, a.do(t, http.MethodPost, base+"step", tok, map[string]int{"delta": -10}), http.StatusBadRequest)
	expectStatus(t, a.do(t, http.MethodPost, base+"toggle", a.guestToken(t), nil), http.StatusForbidden)
}

func TestLiveStoreFailures(t *testing.T) {
	a := newTestAPI(t)
	tok := a.directorToken(t)

	a.store.mu.Lock()
	a.store.failMerge = true
	a.store.mu.Unlock()
	expectStatus(t, a.do(t, http.MethodPost, "/v1/shows/"+saturday+"/live/act", tok, map[string]int{"number": 3}), http.StatusBadGateway)
	a.expectNoEvent(t)

	a.store.mu.Lock()
	a.store.failMerge = false
	a.store.failSubscribe = true
	a.store.mu.Unlock()
	expectStatus(t, a.do(t, http.MethodGet, "/v1/shows/"+saturday+"/live", "", nil), http.StatusServiceUnavailable)
	expectStatus(t, a.do(t, http.MethodPost, "/v1/shows/"+saturday+"/live/toggle", tok, nil), http.StatusServiceUnavailable)
}

func TestLiveHandlerClosesTrackers(t *testing.T) {
	a := newTestAPI(t)
	a.snapshot(t, saturday)
	a.do(t, http.MethodPost, "/v1/shows/"+saturday+"/live/act", a.directorToken(t), map[string]int{"number": 3})
	p := livestatus.DocumentPath("test-app", saturday)
	waitUntil(t, func() bool { return a.mem.Subscribers(p) == 0 })
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// readEvent returns the data of the next "status" event on the stream.
func readEvent(t *testing.T, sc *bufio.Scanner) liveView {
	t.Helper()
	for sc.Scan() {
		line := sc.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var v liveView
			if err := json.Unmarshal([]byte(data), &v); err != nil {
				t.Fatalf("decode event %q: %v", data, err)
			}
			return v
		}
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return liveView{}
}

func TestStream(t *testing.T) {
	a := newTestAPI(t)
	srv := httptest.NewServer(a.e)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/shows/"+saturday+"/live/stream", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Fatalf("status %d content type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	sc := bufio.NewScanner(resp.Body)

	first := readEvent(t, sc)
	if first.Show != saturday {
		t.Fatalf("first event for %q", first.Show)
	}
	expectAct(t, first.Live, 1, "Opening Number", false)

	p := livestatus.DocumentPath("test-app", saturday)
	seven, on := 7, true
	if err := a.mem.Merge(context.Background(), p, livestatus.Patch{CurrentActNumber: &seven, IsTracking: &on}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	expectAct(t, readEvent(t, sc).Live, 7, "Finale", true)

	cancel()
	waitUntil(t, func() bool { return a.mem.Subscribers(p) == 0 })
}

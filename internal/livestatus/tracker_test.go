package livestatus

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/iliyamo/recital-program/internal/model"
)

// fakeStore hands subscription callbacks to the test so deliveries are
// fully under test control.
type fakeStore struct {
	mu       sync.Mutex
	subs     map[Path]*fakeSub
	merges   []fakeMerge
	mergeErr error
	subErr   error
}

type fakeMerge struct {
	path  Path
	patch Patch
}

type fakeSub struct {
	onNext func(Snapshot)
	onErr  func(error)
	closed bool
}

func (f *fakeSub) Close() error { f.closed = true; return nil }

func newFakeStore() *fakeStore { return &fakeStore{subs: make(map[Path]*fakeSub)} }

func (f *fakeStore) Subscribe(_ context.Context, path Path, onNext func(Snapshot), onErr func(error)) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	s := &fakeSub{onNext: onNext, onErr: onErr}
	f.subs[path] = s
	return s, nil
}

func (f *fakeStore) Merge(_ context.Context, path Path, patch Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mergeErr != nil {
		return f.mergeErr
	}
	f.merges = append(f.merges, fakeMerge{path: path, patch: patch})
	return nil
}

func (f *fakeStore) sub(path Path) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[path]
}

func (f *fakeStore) mergeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.merges)
}

func quietLogger() *log.Logger { return log.New(io.Discard) }

var (
	showA = &model.Show{Key: "2025-05-31T18:00:00", Acts: []model.Act{
		{Number: 1, Title: "Opening"},
		{Number: 2, Title: "Tap Attack"},
	}}
	showB = &model.Show{Key: "2025-06-01T13:30:00", Acts: []model.Act{
		{Number: 1, Title: "Sunrise"},
		{Number: 5, Title: "Bows"},
	}}
)

func pathOf(s *model.Show) Path { return DocumentPath("test-app", s.Key) }

func newTestTracker(store Store, authorized bool) *Tracker {
	return NewTracker(store, "test-app", WithLogger(quietLogger()), WithAuthorized(authorized))
}

func intPtr(n int) *int { return &n }

func TestDocumentPath(t *testing.T) {
	if got := DocumentPath("app", "2025-05-31T18:00:00"); got != "artifacts/app/public/data/show_status/2025-05-31T18:00:00" {
		t.Fatalf("path = %q", got)
	}
	if got := DocumentPath("", "k"); got != "artifacts/dancers-pointe-app/public/data/show_status/k" {
		t.Fatalf("default path = %q", got)
	}
}

func TestResolve(t *testing.T) {
	got := Resolve(showA, Snapshot{})
	if got.Number == nil || *got.Number != 1 || got.Title != "Opening" || got.IsTracking {
		t.Fatalf("missing document should resolve to act 1, got %+v", got)
	}
	got = Resolve(showA, Snapshot{Exists: true, Status: model.LiveStatus{CurrentActNumber: 2, IsTracking: true}})
	if *got.Number != 2 || got.Title != "Tap Attack" || !got.IsTracking {
		t.Fatalf("got %+v", got)
	}
	got = Resolve(showA, Snapshot{Exists: true, Status: model.LiveStatus{CurrentActNumber: 42, IsTracking: true}})
	if *got.Number != 42 || got.Title != model.ActNotFoundTitle {
		t.Fatalf("unknown act should resolve to sentinel title, got %+v", got)
	}
	if got := Resolve(nil, Snapshot{Exists: true}); got.Number != nil || got.Title != "" || got.IsTracking {
		t.Fatalf("no show should resolve idle, got %+v", got)
	}
}

func TestTrackerLifecycle(t *testing.T) {
	store := newFakeStore()
	tr := newTestTracker(store, false)
	if tr.State() != Idle {
		t.Fatalf("new tracker state = %v", tr.State())
	}
	if err := tr.Select(context.Background(), showA); err != nil {
		t.Fatalf("select: %v", err)
	}
	if tr.State() != Subscribed {
		t.Fatalf("state after select = %v", tr.State())
	}
	store.sub(pathOf(showA)).onNext(Snapshot{Exists: true, Status: model.LiveStatus{CurrentActNumber: 2, IsTracking: true}})
	if cur := tr.Current(); cur.Title != "Tap Attack" || !cur.IsTracking {
		t.Fatalf("current = %+v", cur)
	}

	tr.Clear()
	if tr.State() != Idle || tr.Show() != nil {
		t.Fatalf("clear: state=%v show=%v", tr.State(), tr.Show())
	}
	if cur := tr.Current(); cur.Number != nil || cur.Title != "" || cur.IsTracking {
		t.Fatalf("clear should reset current, got %+v", cur)
	}
	if !store.sub(pathOf(showA)).closed {
		t.Fatal("clear should release the subscription")
	}

	if err := tr.Select(context.Background(), showB); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if tr.State() != Unsubscribed || !store.sub(pathOf(showB)).closed {
		t.Fatalf("close: state=%v", tr.State())
	}
}

func TestSwitchingShowsIgnoresStaleUpdates(t *testing.T) {
	store := newFakeStore()
	tr := newTestTracker(store, false)
	ctx := context.Background()

	if err := tr.Select(ctx, showA); err != nil {
		t.Fatalf("select A: %v", err)
	}
	subA := store.sub(pathOf(showA))
	subA.onNext(Snapshot{Exists: true, Status: model.LiveStatus{CurrentActNumber: 2, IsTracking: true}})

	if err := tr.Select(ctx, showB); err != nil {
		t.Fatalf("select B: %v", err)
	}
	if !subA.closed {
		t.Fatal("A's subscription must be closed when B is selected")
	}
	if cur := tr.Current(); cur.Number != nil {
		t.Fatalf("A's state leaked into B: %+v", cur)
	}

	subA.onNext(Snapshot{Exists: true, Status: model.LiveStatus{CurrentActNumber: 1, IsTracking: true}})
	if cur := tr.Current(); cur.Number != nil {
		t.Fatalf("update from A applied after B was selected: %+v", cur)
	}

	store.sub(pathOf(showB)).onNext(Snapshot{Exists: true, Status: model.LiveStatus{CurrentActNumber: 5, IsTracking: true}})
	if cur := tr.Current(); cur.Title != "Bows" {
		t.Fatalf("current = %+v", cur)
	}
}

func TestSubscriptionErrorKeepsState(t *testing.T) {
	store := newFakeStore()
	tr := newTestTracker(store, false)
	if err := tr.Select(context.Background(), showA); err != nil {
		t.Fatalf("select: %v", err)
	}
	sub := store.sub(pathOf(showA))
	sub.onNext(Snapshot{Exists: true, Status: model.LiveStatus{CurrentActNumber: 2, IsTracking: true}})
	sub.onErr(errors.New("connection reset"))
	if cur := tr.Current(); cur.Title != "Tap Attack" || !cur.IsTracking {
		t.Fatalf("state lost after error: %+v", cur)
	}
}

func TestSelectReportsSubscribeFailure(t *testing.T) {
	store := newFakeStore()
	store.subErr = errors.New("dial tcp: refused")
	tr := newTestTracker(store, true)
	if err := tr.Select(context.Background(), showA); !errors.Is(err, ErrSubscription) {
		t.Fatalf("expected ErrSubscription, got %v", err)
	}
	if tr.State() != Idle {
		t.Fatalf("state = %v, want idle", tr.State())
	}
}

func TestSetCurrentActRejections(t *testing.T) {
	ctx := context.Background()
	for _, authorized := range []bool{true, false} {
		store := newFakeStore()
		tr := newTestTracker(store, authorized)
		if err := tr.Select(ctx, showA); err != nil {
			t.Fatalf("select: %v", err)
		}
		store.sub(pathOf(showA)).onNext(Snapshot{Exists: true, Status: model.LiveStatus{CurrentActNumber: 2, IsTracking: true}})
		before := tr.Current()

		for _, n := range []int{0, -1} {
			if err := tr.SetCurrentAct(ctx, n); !errors.Is(err, ErrInvalidActNumber) {
				t.Fatalf("SetCurrentAct(%d) authorized=%v: %v", n, authorized, err)
			}
		}
		if store.mergeCount() != 0 {
			t.Fatalf("authorized=%v: rejected calls wrote to the store", authorized)
		}
		if after := tr.Current(); *after.Number != *before.Number || after.IsTracking != before.IsTracking {
			t.Fatalf("state changed: %+v -> %+v", before, after)
		}
	}
}

func TestUnauthorizedNeverWrites(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	tr := newTestTracker(store, false)
	if err := tr.Select(ctx, showA); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := tr.SetCurrentAct(ctx, 2); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("SetCurrentAct: %v", err)
	}
	if _, err := tr.ToggleTracking(ctx); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("ToggleTracking: %v", err)
	}
	if _, err := tr.Step(ctx, 1); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("Step: %v", err)
	}
	if store.mergeCount() != 0 {
		t.Fatalf("unauthorized caller produced %d writes", store.mergeCount())
	}
}

func TestMutationsWithoutShow(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	tr := newTestTracker(store, true)
	if err := tr.SetCurrentAct(ctx, 3); !errors.Is(err, ErrNoShowSelected) {
		t.Fatalf("SetCurrentAct: %v", err)
	}
	if _, err := tr.ToggleTracking(ctx); !errors.Is(err, ErrNoShowSelected) {
		t.Fatalf("ToggleTracking: %v", err)
	}
	if store.mergeCount() != 0 {
		t.Fatal("writes without a show")
	}
}

func TestAuthorizedMutationsMerge(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	tr := newTestTracker(store, true)
	if err := tr.Select(ctx, showA); err != nil {
		t.Fatalf("select: %v", err)
	}
	store.sub(pathOf(showA)).onNext(Snapshot{Exists: true, Status: model.LiveStatus{CurrentActNumber: 1, IsTracking: true}})

	if err := tr.SetCurrentAct(ctx, 2); err != nil {
		t.Fatalf("SetCurrentAct: %v", err)
	}
	if p, err := tr.ToggleTracking(ctx); err != nil || p.IsTracking == nil || *p.IsTracking || p.CurrentActNumber != nil {
		t.Fatalf("ToggleTracking = %+v, %v", p, err)
	}
	if p, err := tr.Step(ctx, 1); err != nil || p.CurrentActNumber == nil || *p.CurrentActNumber != 2 {
		t.Fatalf("Step = %+v, %v", p, err)
	}

	store.mu.Lock()
	merges := append([]fakeMerge(nil), store.merges...)
	store.mu.Unlock()
	if len(merges) != 3 {
		t.Fatalf("expected 3 writes, got %d", len(merges))
	}
	for _, m := range merges {
		if m.path != pathOf(showA) {
			t.Fatalf("write to %q", m.path)
		}
	}
	first := merges[0].patch
	if first.CurrentActNumber == nil || *first.CurrentActNumber != 2 || first.IsTracking == nil || !*first.IsTracking {
		t.Fatalf("SetCurrentAct patch = %+v", first)
	}
	toggle := merges[1].patch
	if toggle.CurrentActNumber != nil || toggle.IsTracking == nil || *toggle.IsTracking {
		t.Fatalf("toggle patch should only turn tracking off, got %+v", toggle)
	}
	step := merges[2].patch
	if step.CurrentActNumber == nil || *step.CurrentActNumber != 2 {
		t.Fatalf("step patch = %+v", step)
	}
	if cur := tr.Current(); *cur.Number != 1 {
		t.Fatalf("local state must wait for the pushed update, got %+v", cur)
	}
}

func TestMutationsReturnWrittenPatch(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	tr := newTestTracker(store, true)
	if err := tr.Select(ctx, showA); err != nil {
		t.Fatalf("select: %v", err)
	}
	sub := store.sub(pathOf(showA))
	sub.onNext(Snapshot{Exists: true, Status: model.LiveStatus{CurrentActNumber: 1, IsTracking: false}})
	// Another client moves the show on before this caller steps.
	sub.onNext(Snapshot{Exists: true, Status: model.LiveStatus{CurrentActNumber: 5, IsTracking: true}})

	step, err := tr.Step(ctx, 1)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	toggle, err := tr.ToggleTracking(ctx)
	if err != nil {
		t.Fatalf("ToggleTracking: %v", err)
	}

	store.mu.Lock()
	merges := append([]fakeMerge(nil), store.merges...)
	store.mu.Unlock()
	if len(merges) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(merges))
	}
	if *step.CurrentActNumber != 6 || *merges[0].patch.CurrentActNumber != *step.CurrentActNumber {
		t.Fatalf("Step returned %d, wrote %d", *step.CurrentActNumber, *merges[0].patch.CurrentActNumber)
	}
	if *toggle.IsTracking || *merges[1].patch.IsTracking != *toggle.IsTracking {
		t.Fatalf("ToggleTracking returned %v, wrote %v", *toggle.IsTracking, *merges[1].patch.IsTracking)
	}
}

func TestWriteFailureIsReported(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.mergeErr = errors.New("permission denied")
	tr := newTestTracker(store, true)
	if err := tr.Select(ctx, showA); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := tr.SetCurrentAct(ctx, 2); !errors.Is(err, ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
	if _, err := tr.ToggleTracking(ctx); !errors.Is(err, ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
}

func TestSetAuthorizedTakesEffect(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	tr := newTestTracker(store, false)
	if err := tr.Select(ctx, showA); err != nil {
		t.Fatalf("select: %v", err)
	}
	tr.SetAuthorized(true)
	if err := tr.SetCurrentAct(ctx, 2); err != nil {
		t.Fatalf("SetCurrentAct: %v", err)
	}
	if store.mergeCount() != 1 {
		t.Fatalf("expected one write, got %d", store.mergeCount())
	}
}

func TestListenerReceivesResolvedStates(t *testing.T) {
	store := newFakeStore()
	var got []model.CurrentAct
	tr := NewTracker(store, "test-app", WithLogger(quietLogger()), WithListener(func(c model.CurrentAct) {
		got = append(got, c)
	}))
	if err := tr.Select(context.Background(), showA); err != nil {
		t.Fatalf("select: %v", err)
	}
	store.sub(pathOf(showA)).onNext(Snapshot{})
	tr.Clear()
	if len(got) != 2 || *got[0].Number != 1 || got[1].Number != nil {
		t.Fatalf("listener saw %+v", got)
	}
}

func TestTrackerOverMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(quietLogger())
	updates := make(chan model.CurrentAct, 16)
	viewer := NewTracker(store, "test-app", WithLogger(quietLogger()), WithListener(func(c model.CurrentAct) { updates <- c }))
	admin := newTestTracker(store, true)

	if err := viewer.Select(ctx, showA); err != nil {
		t.Fatalf("select: %v", err)
	}
	defer viewer.Close()
	first := waitFor(t, updates)
	if *first.Number != 1 || first.IsTracking {
		t.Fatalf("initial = %+v", first)
	}

	if err := admin.Select(ctx, showA); err != nil {
		t.Fatalf("admin select: %v", err)
	}
	defer admin.Close()
	if err := admin.SetCurrentAct(ctx, 2); err != nil {
		t.Fatalf("SetCurrentAct: %v", err)
	}
	next := waitFor(t, updates)
	if *next.Number != 2 || next.Title != "Tap Attack" || !next.IsTracking {
		t.Fatalf("pushed = %+v", next)
	}
}

func waitFor(t *testing.T, ch <-chan model.CurrentAct) model.CurrentAct {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for live status update")
	}
	return model.CurrentAct{}
}

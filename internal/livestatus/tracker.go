package livestatus

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/iliyamo/recital-program/internal/model"
)

// State is the lifecycle state of a Tracker.
type State int

const (
	// Idle: no show selected, or the subscription is not open yet.
	Idle State = iota
	// Subscribed: receiving updates for the selected show.
	Subscribed
	// Unsubscribed: torn down by Close.
	Unsubscribed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Subscribed:
		return "subscribed"
	case Unsubscribed:
		return "unsubscribed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option { return func(t *Tracker) { t.log = l } }

// WithAuthorized sets the initial mutation capability.
func WithAuthorized(ok bool) Option { return func(t *Tracker) { t.authorized = ok } }

// WithListener registers fn to receive every resolved state.  fn runs with
// the tracker locked and must not call back into the Tracker.
func WithListener(fn func(model.CurrentAct)) Option {
	return func(t *Tracker) { t.listener = fn }
}

// Tracker follows the live status of one selected show at a time.
type Tracker struct {
	store    Store
	appID    string
	log      *log.Logger
	listener func(model.CurrentAct)

	mu         sync.Mutex
	state      State
	authorized bool
	show       *model.Show
	current    model.CurrentAct
	sub        Subscription
	gen        uint64
}

// NewTracker returns an Idle tracker reading documents under appID.
func NewTracker(store Store, appID string, opts ...Option) *Tracker {
	t := &Tracker{store: store, appID: appID}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = log.Default()
	}
	return t
}

// Select switches the tracker to show.  The previous subscription is
// closed before the new one is opened, and nothing it delivers afterwards
// reaches the tracker.  A nil show is the same as Clear.
func (t *Tracker) Select(ctx context.Context, show *model.Show) error {
	if show == nil {
		t.Clear()
		return nil
	}

	t.mu.Lock()
	prev := t.detachLocked()
	gen := t.gen
	t.show = show
	t.current = model.CurrentAct{}
	t.state = Idle
	t.mu.Unlock()
	closeSub(prev, t.log)

	path := DocumentPath(t.appID, show.Key)
	sub, err := t.store.Subscribe(ctx, path,
		func(s Snapshot) { t.apply(gen, s) },
		func(err error) { t.fail(gen, err) },
	)
	if err != nil {
		t.log.Error("live status subscribe failed", "show", show.Key, "err", err)
		return fmt.Errorf("%w: %v", ErrSubscription, err)
	}

	t.mu.Lock()
	if t.gen != gen {
		// Superseded by a concurrent Select, Clear or Close.
		t.mu.Unlock()
		closeSub(sub, t.log)
		return nil
	}
	t.sub = sub
	t.state = Subscribed
	t.mu.Unlock()
	t.log.Debug("live status subscribed", "show", show.Key, "path", path)
	return nil
}

// Clear drops the selected show and resets to the idle view.
func (t *Tracker) Clear() {
	t.mu.Lock()
	prev := t.detachLocked()
	t.show = nil
	t.current = model.CurrentAct{}
	t.state = Idle
	if t.listener != nil {
		t.listener(t.current)
	}
	t.mu.Unlock()
	closeSub(prev, t.log)
}

// Close releases the subscription.  The tracker can be reused with Select.
func (t *Tracker) Close() error {
	t.mu.Lock()
	prev := t.detachLocked()
	t.show = nil
	t.state = Unsubscribed
	t.mu.Unlock()
	if prev == nil {
		return nil
	}
	return prev.Close()
}

// detachLocked invalidates in-flight callbacks and hands back the current
// subscription for closing outside the lock.
func (t *Tracker) detachLocked() Subscription {
	t.gen++
	sub := t.sub
	t.sub = nil
	return sub
}

func closeSub(sub Subscription, logger *log.Logger) {
	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		logger.Warn("live status unsubscribe failed", "err", err)
	}
}

func (t *Tracker) apply(gen uint64, snap Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	t.current = Resolve(t.show, snap)
	if t.listener != nil {
		t.listener(t.current)
	}
}

func (t *Tracker) fail(gen uint64, err error) {
	t.mu.Lock()
	stale := gen != t.gen
	var key model.ShowKey
	if t.show != nil {
		key = t.show.Key
	}
	t.mu.Unlock()
	if stale {
		return
	}
	t.log.Error("live status update failed", "show", key, "err", fmt.Errorf("%w: %v", ErrSubscription, err))
}

// State reports the lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Current returns the last resolved state.
func (t *Tracker) Current() model.CurrentAct {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Show returns the selected show, or nil.
func (t *Tracker) Show() *model.Show {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.show
}

// SetAuthorized updates the mutation capability.
func (t *Tracker) SetAuthorized(ok bool) {
	t.mu.Lock()
	t.authorized = ok
	t.mu.Unlock()
}

// SetCurrentAct marks act n as being performed and turns tracking on.
// Local state is not changed; it follows the next pushed update.
func (t *Tracker) SetCurrentAct(ctx context.Context, n int) error {
	if n < 1 {
		return ErrInvalidActNumber
	}
	show, err := t.writable()
	if err != nil {
		return err
	}
	tracking := true
	return t.merge(ctx, show, Patch{CurrentActNumber: &n, IsTracking: &tracking})
}

// Step moves the current act number by delta, the way the +/- controls do,
// and returns the patch it wrote.
func (t *Tracker) Step(ctx context.Context, delta int) (Patch, error) {
	t.mu.Lock()
	n := model.DefaultLiveStatus.CurrentActNumber
	if t.current.Number != nil {
		n = *t.current.Number
	}
	t.mu.Unlock()
	n += delta
	tracking := true
	if err := t.SetCurrentAct(ctx, n); err != nil {
		return Patch{}, err
	}
	return Patch{CurrentActNumber: &n, IsTracking: &tracking}, nil
}

// ToggleTracking flips the tracking flag relative to the last resolved
// state and returns the patch it wrote.
func (t *Tracker) ToggleTracking(ctx context.Context) (Patch, error) {
	show, err := t.writable()
	if err != nil {
		return Patch{}, err
	}
	t.mu.Lock()
	tracking := !t.current.IsTracking
	t.mu.Unlock()
	patch := Patch{IsTracking: &tracking}
	if err := t.merge(ctx, show, patch); err != nil {
		return Patch{}, err
	}
	return patch, nil
}

func (t *Tracker) writable() (*model.Show, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.show == nil {
		return nil, ErrNoShowSelected
	}
	if !t.authorized {
		return nil, ErrNotAuthorized
	}
	return t.show, nil
}

func (t *Tracker) merge(ctx context.Context, show *model.Show, patch Patch) error {
	if err := t.store.Merge(ctx, DocumentPath(t.appID, show.Key), patch); err != nil {
		t.log.Error("live status write failed", "show", show.Key, "err", err)
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// Package livestatus tracks which act of a show is being performed right
// now.  The state lives in one remote document per show; every client
// subscribes to that document and authorized clients merge changes into
// it.  Concurrent writers are resolved by the store (last write wins).
package livestatus

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/recital-program/internal/model"
)

var (
	// ErrSubscription is reported when the push channel of a subscription
	// fails.  The last resolved state is kept.
	ErrSubscription = errors.New("livestatus: subscription failed")
	// ErrWrite is returned when a merge write fails.
	ErrWrite = errors.New("livestatus: write failed")

	// Rejections.  No write is attempted and no state changes.
	ErrNotAuthorized    = errors.New("livestatus: not authorized")
	ErrInvalidActNumber = errors.New("livestatus: act number must be at least 1")
	ErrNoShowSelected   = errors.New("livestatus: no show selected")
)

// DefaultAppID namespaces documents when no app id is configured.
const DefaultAppID = "dancers-pointe-app"

// Path addresses one live status document.
type Path string

// DocumentPath maps a show to the address of its live status document.
// All document addressing goes through here.
func DocumentPath(appID string, key model.ShowKey) Path {
	if appID == "" {
		appID = DefaultAppID
	}
	return Path(fmt.Sprintf("artifacts/%s/public/data/show_status/%s", appID, key))
}

// Snapshot is the value of a document at one point in time.  When Exists
// is false Status holds model.DefaultLiveStatus.  Stores fill fields that
// are absent from an existing document with their defaults.
type Snapshot struct {
	Exists bool
	Status model.LiveStatus
}

// Patch is a merge update: nil fields are left untouched.
type Patch struct {
	CurrentActNumber *int
	IsTracking       *bool
}

// Subscription is a live document subscription.  Close stops delivery;
// once it returns no further callbacks run.
type Subscription interface {
	Close() error
}

// Store is the hosted document store.  Subscribe delivers the current value
// first and then every later value, in order, on a goroutine owned by the
// store.  Callbacks must not block for long.
type Store interface {
	Subscribe(ctx context.Context, path Path, onNext func(Snapshot), onErr func(error)) (Subscription, error)
	Merge(ctx context.Context, path Path, patch Patch) error
}

// Resolve turns a snapshot into the "now performing" view for show.  An act
// number with no matching act resolves to model.ActNotFoundTitle.
func Resolve(show *model.Show, snap Snapshot) model.CurrentAct {
	if show == nil {
		return model.CurrentAct{}
	}
	status := model.DefaultLiveStatus
	if snap.Exists {
		status = snap.Status
	}
	n := status.CurrentActNumber
	title := model.ActNotFoundTitle
	if act, ok := show.ActByNumber(n); ok {
		title = act.Title
	}
	return model.CurrentAct{Number: &n, Title: title, IsTracking: status.IsTracking}
}

package livestatus

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/iliyamo/recital-program/internal/model"
)

// MemoryStore is an in-process Store.  It backs tests and single-instance
// deployments without Redis.  Each subscriber holds at most one pending
// snapshot; a newer value replaces an undelivered one, so a slow subscriber
// skips intermediate states but always ends on the latest document.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[Path]model.LiveStatus
	subs map[Path]map[*memorySub]struct{}
	log  *log.Logger
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(logger *log.Logger) *MemoryStore {
	if logger == nil {
		logger = log.Default()
	}
	return &MemoryStore{
		docs: make(map[Path]model.LiveStatus),
		subs: make(map[Path]map[*memorySub]struct{}),
		log:  logger,
	}
}

type memorySub struct {
	store *MemoryStore
	path  Path
	ch    chan Snapshot
	done  chan struct{}
	exit  chan struct{}
	once  sync.Once
}

func (m *MemoryStore) snapshotLocked(path Path) Snapshot {
	doc, ok := m.docs[path]
	if !ok {
		return Snapshot{Status: model.DefaultLiveStatus}
	}
	return Snapshot{Exists: true, Status: doc}
}

// Subscribe registers a subscriber and queues the current value.
func (m *MemoryStore) Subscribe(_ context.Context, path Path, onNext func(Snapshot), _ func(error)) (Subscription, error) {
	sub := &memorySub{
		store: m,
		path:  path,
		ch:    make(chan Snapshot, 1),
		done:  make(chan struct{}),
		exit:  make(chan struct{}),
	}
	m.mu.Lock()
	set := m.subs[path]
	if set == nil {
		set = make(map[*memorySub]struct{})
		m.subs[path] = set
	}
	set[sub] = struct{}{}
	sub.ch <- m.snapshotLocked(path)
	m.mu.Unlock()

	go func() {
		defer close(sub.exit)
		for {
			select {
			case <-sub.done:
				return
			case snap := <-sub.ch:
				select {
				case <-sub.done:
					return
				default:
				}
				onNext(snap)
			}
		}
	}()
	return sub, nil
}

// Merge applies patch and pushes the new value to every subscriber of path.
func (m *MemoryStore) Merge(_ context.Context, path Path, patch Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		doc = model.DefaultLiveStatus
	}
	if patch.CurrentActNumber != nil {
		doc.CurrentActNumber = *patch.CurrentActNumber
	}
	if patch.IsTracking != nil {
		doc.IsTracking = *patch.IsTracking
	}
	m.docs[path] = doc

	snap := Snapshot{Exists: true, Status: doc}
	for sub := range m.subs[path] {
		if sub.offer(snap) {
			m.log.Debug("live status update coalesced", "path", path)
		}
	}
	return nil
}

// offer replaces whatever is pending for the subscriber with snap and
// reports whether an undelivered snapshot was discarded.  Callers hold the
// store lock, so Merge is the only sender.
func (s *memorySub) offer(snap Snapshot) bool {
	replaced := false
	for {
		select {
		case s.ch <- snap:
			return replaced
		default:
		}
		select {
		case <-s.ch:
			replaced = true
		default:
		}
	}
}

// Subscribers reports the number of open subscriptions on path.
func (m *MemoryStore) Subscribers(path Path) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[path])
}

func (s *memorySub) Close() error {
	s.once.Do(func() {
		m := s.store
		m.mu.Lock()
		if set := m.subs[s.path]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(m.subs, s.path)
			}
		}
		m.mu.Unlock()
		close(s.done)
	})
	<-s.exit
	return nil
}

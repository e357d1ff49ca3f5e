// Package favorites keeps the set of favorite performer names for one
// session and joins it against a show.
//
// Every mutation writes the whole set back to Storage.  Storage is a
// best-effort cache: read and write failures are logged and the store
// carries on with what it has in memory.
package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/iliyamo/recital-program/internal/model"
	"github.com/iliyamo/recital-program/internal/search"
)

// FavoritesKey is the storage key holding the JSON array of names.
const FavoritesKey = "dancersPointeFavorites"

// ErrStorage wraps failures of the underlying Storage.
var ErrStorage = errors.New("favorites: storage failure")

// Storage is the key-value persistence behind favorites and preferences.
// Get reports ok=false when the key has never been written.
type Storage interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}

// Updater is implemented by storages that can read, change and write a key
// as one step.  Toggle uses it so concurrent toggles of one session never
// overwrite each other.  fn receives ok=false when the key is unset.
type Updater interface {
	Update(ctx context.Context, key string, fn func(old []byte, ok bool) ([]byte, error)) error
}

// Match is one favorite joined against a show.  Missing is true when the
// name does not appear in any of the show's performer lists.
type Match struct {
	Name    string         `json:"name"`
	Acts    []model.ActRef `json:"acts"`
	Missing bool           `json:"missing"`
}

// Store is a session's favorite set.  It is not safe for concurrent use;
// callers own one Store per session and request.
type Store struct {
	storage Storage
	log     *log.Logger
	names   map[string]struct{}
}

// Open loads the favorite set from storage.  A missing, unreadable or
// corrupt value yields an empty set.
func Open(ctx context.Context, storage Storage, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	s := &Store{storage: storage, log: logger, names: make(map[string]struct{})}
	if storage == nil {
		return s
	}
	raw, ok, err := storage.Get(ctx, FavoritesKey)
	if err != nil {
		s.log.Warn("favorites load failed", "err", fmt.Errorf("%w: %v", ErrStorage, err))
		return s
	}
	s.names = s.decode(raw, ok)
	return s
}

// decode parses a stored value.  Unset or corrupt values yield an empty set.
func (s *Store) decode(raw []byte, ok bool) map[string]struct{} {
	names := make(map[string]struct{})
	if !ok {
		return names
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		s.log.Warn("favorites corrupt, starting empty", "err", err)
		return names
	}
	for _, n := range list {
		names[n] = struct{}{}
	}
	return names
}

func (s *Store) flip(name string) bool {
	if _, had := s.names[name]; had {
		delete(s.names, name)
		return false
	}
	s.names[name] = struct{}{}
	return true
}

// Toggle flips membership of name, persists the set and reports whether
// name is a favorite afterwards.  With an Updater storage the flip is
// applied to the stored set, which also refreshes this Store.
func (s *Store) Toggle(ctx context.Context, name string) bool {
	if u, ok := s.storage.(Updater); ok {
		return s.toggleStored(ctx, u, name)
	}
	on := s.flip(name)
	s.persist(ctx)
	return on
}

func (s *Store) toggleStored(ctx context.Context, u Updater, name string) bool {
	var (
		on  bool
		ran bool
	)
	err := u.Update(ctx, FavoritesKey, func(old []byte, ok bool) ([]byte, error) {
		ran = true
		s.names = s.decode(old, ok)
		on = s.flip(name)
		return json.Marshal(s.List())
	})
	if err != nil {
		s.log.Warn("favorites save failed", "err", fmt.Errorf("%w: %v", ErrStorage, err))
	}
	if !ran {
		on = s.flip(name)
	}
	return on
}

func (s *Store) persist(ctx context.Context) {
	if s.storage == nil {
		return
	}
	payload, err := json.Marshal(s.List())
	if err != nil {
		s.log.Warn("favorites encode failed", "err", err)
		return
	}
	if err := s.storage.Set(ctx, FavoritesKey, payload); err != nil {
		s.log.Warn("favorites save failed", "err", fmt.Errorf("%w: %v", ErrStorage, err))
	}
}

// Has reports whether name is a favorite.  Names compare verbatim.
func (s *Store) Has(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Len is the number of favorites.
func (s *Store) Len() int { return len(s.names) }

// List returns the favorites sorted ascending.
func (s *Store) List() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// JoinWithShow pairs each favorite, in List order, with the acts it appears
// in for show.  A nil show yields no matches.
func (s *Store) JoinWithShow(show *model.Show) []Match {
	if show == nil {
		return []Match{}
	}
	idx := search.NewIndex(show)
	out := make([]Match, 0, len(s.names))
	for _, name := range s.List() {
		acts := idx.ActsFor(name)
		out = append(out, Match{Name: name, Acts: acts, Missing: !idx.HasPerformer(name)})
	}
	return out
}

package favorites

import (
	"context"
	"errors"
	"io"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/iliyamo/recital-program/internal/model"
)

type failingStorage struct {
	getErr error
	setErr error
	sets   int
}

func (f *failingStorage) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, f.getErr
}

func (f *failingStorage) Set(context.Context, string, []byte) error {
	f.sets++
	return f.setErr
}

func quietLogger() *log.Logger { return log.New(io.Discard) }

func testShow() *model.Show {
	return &model.Show{
		Key: "2025-05-31T18:00:00",
		Acts: []model.Act{
			{Number: 2, Title: "Jazz Hands", Performers: []string{"Ava Chen", "Mia Lopez"}},
			{Number: 5, Title: "Lyrical", Performers: []string{"Mia Lopez"}},
			{Number: 9, Title: "Hip Hop", Performers: []string{"Ava Chen"}},
		},
	}
}

func TestToggleTwiceRestoresMembership(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, NewMemoryStorage(), quietLogger())
	s.Toggle(ctx, "Mia Lopez")
	before := s.List()

	if !s.Toggle(ctx, "Ava Chen") {
		t.Fatal("first toggle should add")
	}
	if s.Toggle(ctx, "Ava Chen") {
		t.Fatal("second toggle should remove")
	}
	if got := s.List(); !reflect.DeepEqual(got, before) {
		t.Fatalf("List = %v, want %v", got, before)
	}
}

func TestTogglePersistsEveryMutation(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	s := Open(ctx, storage, quietLogger())
	s.Toggle(ctx, "Zoe Park")
	s.Toggle(ctx, "Ava Chen")

	raw, ok, _ := storage.Get(ctx, FavoritesKey)
	if !ok || string(raw) != `["Ava Chen","Zoe Park"]` {
		t.Fatalf("stored %q (ok=%v)", raw, ok)
	}

	reopened := Open(ctx, storage, quietLogger())
	if want := []string{"Ava Chen", "Zoe Park"}; !reflect.DeepEqual(reopened.List(), want) {
		t.Fatalf("reopened List = %v, want %v", reopened.List(), want)
	}
}

func TestOpenDegradesToEmpty(t *testing.T) {
	ctx := context.Background()

	corrupt := NewMemoryStorage()
	_ = corrupt.Set(ctx, FavoritesKey, []byte("{not json"))
	if s := Open(ctx, corrupt, quietLogger()); s.Len() != 0 {
		t.Fatalf("corrupt storage: expected empty set, got %v", s.List())
	}

	broken := &failingStorage{getErr: errors.New("disk gone"), setErr: errors.New("disk gone")}
	s := Open(ctx, broken, quietLogger())
	if s.Len() != 0 {
		t.Fatalf("failing storage: expected empty set, got %v", s.List())
	}
	if !s.Toggle(ctx, "Ava Chen") || !s.Has("Ava Chen") {
		t.Fatal("toggle should still apply in memory when storage fails")
	}
	if broken.sets != 1 {
		t.Fatalf("expected one save attempt, got %d", broken.sets)
	}

	if s := Open(ctx, nil, nil); s.Len() != 0 || !s.Toggle(ctx, "x") {
		t.Fatal("nil storage should behave as an empty in-memory set")
	}
}

func TestListSortedAscending(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, NewMemoryStorage(), quietLogger())
	for _, n := range []string{"Zoe Park", "ava chen", "Ava Chen", "Mia Lopez"} {
		s.Toggle(ctx, n)
	}
	if want := []string{"Ava Chen", "Mia Lopez", "Zoe Park", "ava chen"}; !reflect.DeepEqual(s.List(), want) {
		t.Fatalf("List = %v, want %v", s.List(), want)
	}
}

func TestJoinWithShow(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, NewMemoryStorage(), quietLogger())
	s.Toggle(ctx, "Ava Chen")
	s.Toggle(ctx, "Zoe Park")
	s.Toggle(ctx, "ava chen")

	got := s.JoinWithShow(testShow())
	want := []Match{
		{Name: "Ava Chen", Acts: []model.ActRef{{Number: 2, Title: "Jazz Hands"}, {Number: 9, Title: "Hip Hop"}}, Missing: false},
		{Name: "Zoe Park", Acts: []model.ActRef{}, Missing: true},
		{Name: "ava chen", Acts: []model.ActRef{}, Missing: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("JoinWithShow:\n got %+v\nwant %+v", got, want)
	}
	if got := s.JoinWithShow(nil); len(got) != 0 {
		t.Fatalf("expected no matches without a show, got %+v", got)
	}
}

func TestScopedStorageIsolatesSessions(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStorage()
	a := Open(ctx, mem.Scoped("a"), quietLogger())
	a.Toggle(ctx, "Ava Chen")
	b := Open(ctx, mem.Scoped("b"), quietLogger())
	if b.Len() != 0 {
		t.Fatalf("session b sees %v", b.List())
	}
	if again := Open(ctx, mem.Scoped("a"), quietLogger()); !again.Has("Ava Chen") {
		t.Fatal("session a lost its favorite")
	}
}

func TestTheme(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStorage()
	if got := LoadTheme(ctx, mem, quietLogger()); got != ThemeLight {
		t.Fatalf("default theme = %q", got)
	}
	theme, err := ParseTheme(" Dark ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	SaveTheme(ctx, mem, theme, quietLogger())
	if got := LoadTheme(ctx, mem, quietLogger()); got != ThemeDark {
		t.Fatalf("theme = %q, want dark", got)
	}
	if _, err := ParseTheme("sepia"); !errors.Is(err, ErrInvalidTheme) {
		t.Fatalf("expected ErrInvalidTheme, got %v", err)
	}
	_ = mem.Set(ctx, ThemeKey, []byte("sepia"))
	if got := LoadTheme(ctx, mem, quietLogger()); got != ThemeLight {
		t.Fatalf("unknown stored theme should fall back to light, got %q", got)
	}
}

func TestConcurrentTogglesKeepEveryName(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage().Scoped("anon:guest")

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// One Store per request, as the handlers do.
			Open(ctx, storage, quietLogger()).Toggle(ctx, fmt.Sprintf("Dancer %03d", i))
		}(i)
	}
	wg.Wait()

	if got := Open(ctx, storage, quietLogger()).Len(); got != n {
		t.Fatalf("stored %d favorites, want %d", got, n)
	}
}

func TestToggleRefreshesFromStorage(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	stale := Open(ctx, storage, quietLogger())
	Open(ctx, storage, quietLogger()).Toggle(ctx, "Mia Lopez")

	if !stale.Toggle(ctx, "Ava Chen") {
		t.Fatal("toggle should add")
	}
	if want := []string{"Ava Chen", "Mia Lopez"}; !reflect.DeepEqual(stale.List(), want) {
		t.Fatalf("List = %v, want %v", stale.List(), want)
	}
}

func TestLocksSerializePerKey(t *testing.T) {
	var (
		locks   Locks
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  = map[string]int{}
		overlap bool
	)
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("subject-%d", i%3)
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(key)
			defer unlock()
			mu.Lock()
			inside[key]++
			if inside[key] > 1 {
				overlap = true
			}
			mu.Unlock()
			mu.Lock()
			inside[key]--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if overlap {
		t.Fatal("two holders of one key ran at once")
	}
	if locks.Len() != 0 {
		t.Fatalf("%d lock entries left behind", locks.Len())
	}
}

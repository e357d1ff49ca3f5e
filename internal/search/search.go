// Package search derives lookup views over one show's acts: performers
// matching a query, acts matching a query, and the annotated program.
//
// Matching is a case-insensitive substring test.  A query that is empty or
// only whitespace matches nothing.
package search

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/iliyamo/recital-program/internal/model"
)

// PerformerMatch groups the acts a performer appears in.
type PerformerMatch struct {
	Name string         `json:"name"`
	Acts []model.ActRef `json:"acts"`
}

// Index holds case-folded copies of a show's searchable text.  It is
// immutable once built and may be shared between goroutines.
type Index struct {
	show  *model.Show
	acts  []indexedAct
	names []string // distinct performer names, first-appearance order
}

type indexedAct struct {
	act        model.Act
	title      string
	number     string
	performers []string
}

// NewIndex builds the index for show.  A nil show yields an index that
// matches nothing.
func NewIndex(show *model.Show) *Index {
	idx := &Index{show: show}
	if show == nil {
		return idx
	}
	fold := cases.Fold()
	seen := make(map[string]bool)
	idx.acts = make([]indexedAct, 0, len(show.Acts))
	for _, a := range show.Acts {
		ia := indexedAct{
			act:        a,
			title:      fold.String(a.Title),
			number:     strconv.Itoa(a.Number),
			performers: make([]string, len(a.Performers)),
		}
		for i, p := range a.Performers {
			ia.performers[i] = fold.String(p)
			if !seen[p] {
				seen[p] = true
				idx.names = append(idx.names, p)
			}
		}
		idx.acts = append(idx.acts, ia)
	}
	return idx
}

// Show returns the show the index was built over.
func (idx *Index) Show() *model.Show { return idx.show }

func normalizeQuery(query string) (string, bool) {
	if strings.TrimSpace(query) == "" {
		return "", false
	}
	return cases.Fold().String(query), true
}

// Performers returns every performer whose name contains query, each with
// the acts they appear in (program order), sorted by name ignoring case.
func (idx *Index) Performers(query string) []PerformerMatch {
	q, ok := normalizeQuery(query)
	if !ok || idx.show == nil {
		return []PerformerMatch{}
	}

	byName := make(map[string]*PerformerMatch)
	var order []string
	for _, ia := range idx.acts {
		listed := make(map[string]bool, len(ia.performers))
		for i, folded := range ia.performers {
			name := ia.act.Performers[i]
			if listed[name] || !strings.Contains(folded, q) {
				continue
			}
			listed[name] = true
			m, ok := byName[name]
			if !ok {
				m = &PerformerMatch{Name: name}
				byName[name] = m
				order = append(order, name)
			}
			m.Acts = append(m.Acts, ia.act.Ref())
		}
	}

	SortNames(order)
	out := make([]PerformerMatch, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}

// Acts returns every act whose title, number or any performer contains
// query, in program order.
func (idx *Index) Acts(query string) []model.Act {
	q, ok := normalizeQuery(query)
	if !ok || idx.show == nil {
		return []model.Act{}
	}
	out := []model.Act{}
	seen := make(map[int]bool)
	for _, ia := range idx.acts {
		if seen[ia.act.Number] || !ia.matches(q) {
			continue
		}
		seen[ia.act.Number] = true
		out = append(out, ia.act)
	}
	return out
}

func (ia indexedAct) matches(q string) bool {
	if strings.Contains(ia.title, q) || strings.Contains(ia.number, q) {
		return true
	}
	for _, p := range ia.performers {
		if strings.Contains(p, q) {
			return true
		}
	}
	return false
}

// Names returns the distinct performer names of the show in order of first
// appearance.
func (idx *Index) Names() []string {
	out := make([]string, len(idx.names))
	copy(out, idx.names)
	return out
}

// HasPerformer reports whether name appears verbatim in any act.
func (idx *Index) HasPerformer(name string) bool {
	for _, n := range idx.names {
		if n == name {
			return true
		}
	}
	return false
}

// ActsFor returns the acts the exact performer name appears in.
func (idx *Index) ActsFor(name string) []model.ActRef {
	out := []model.ActRef{}
	for _, ia := range idx.acts {
		for _, p := range ia.act.Performers {
			if p == name {
				out = append(out, ia.act.Ref())
				break
			}
		}
	}
	return out
}

// SortNames sorts names in English collation order ignoring case.  Names
// that collate equal fall back to byte order so the result is stable.
func SortNames(names []string) {
	col := collate.New(language.English, collate.IgnoreCase)
	sort.SliceStable(names, func(i, j int) bool {
		if c := col.CompareString(names[i], names[j]); c != 0 {
			return c < 0
		}
		return names[i] < names[j]
	})
}

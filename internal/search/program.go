package search

import "github.com/iliyamo/recital-program/internal/model"

// ProgramEntry is an act annotated for display.
type ProgramEntry struct {
	model.Act
	Favorite bool `json:"favorite"`
	Current  bool `json:"current"`
}

// Program annotates every act of show: Favorite when any performer is a
// favorite, Current when the act is the one being performed.
func Program(show *model.Show, isFavorite func(string) bool, current model.CurrentAct) []ProgramEntry {
	if show == nil {
		return []ProgramEntry{}
	}
	out := make([]ProgramEntry, 0, len(show.Acts))
	for _, a := range show.Acts {
		e := ProgramEntry{Act: a, Current: current.IsCurrent(a.Number)}
		if isFavorite != nil {
			for _, p := range a.Performers {
				if isFavorite(p) {
					e.Favorite = true
					break
				}
			}
		}
		out = append(out, e)
	}
	return out
}

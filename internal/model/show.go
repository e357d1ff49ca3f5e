package model

import "time"

// ShowKey identifies a show.  It is the raw datetime string the dataset
// uses for the show and is also the key of the show's live status
// document.
type ShowKey string

// Show represents one scheduled recital performance.  Shows are loaded
// once from the bundled dataset and never mutated afterwards.
//
// Fields:
//
//	Key      – raw datetime string from the dataset.
//	Datetime – parsed start time.
//	Label    – display label derived from Datetime at load time.
//	Acts     – acts in program order.
type Show struct {
	Key      ShowKey   `json:"key"`
	Datetime time.Time `json:"datetime"`
	Label    string    `json:"label"`
	Acts     []Act     `json:"acts"`
}

// Act is one performance slot within a show.  Number is unique within its
// show but numbers are not necessarily contiguous.
type Act struct {
	Number     int      `json:"number"`
	Title      string   `json:"title"`
	Performers []string `json:"performers"`
}

// ActByNumber returns the act with the given number and whether it exists.
func (s *Show) ActByNumber(n int) (Act, bool) {
	if s == nil {
		return Act{}, false
	}
	for _, a := range s.Acts {
		if a.Number == n {
			return a, true
		}
	}
	return Act{}, false
}

// ActRef is the short form of an act used in derived views.
type ActRef struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// Ref returns the short form of the act.
func (a Act) Ref() ActRef { return ActRef{Number: a.Number, Title: a.Title} }

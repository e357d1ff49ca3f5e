package model

// LiveStatus is the remote document held per show.  It is owned by the
// hosted document store; clients only read it or merge fields into it.
type LiveStatus struct {
	CurrentActNumber int  `json:"currentActNumber"`
	IsTracking       bool `json:"isTracking"`
}

// DefaultLiveStatus is what a show resolves to before anyone has written
// its document.
var DefaultLiveStatus = LiveStatus{CurrentActNumber: 1, IsTracking: false}

// ActNotFoundTitle is the title resolved when the current act number does
// not match any act of the selected show.
const ActNotFoundTitle = "Act not found"

// CurrentAct is the resolved "now performing" view.  Number is nil when no
// show is selected.
type CurrentAct struct {
	Number     *int   `json:"number"`
	Title      string `json:"title"`
	IsTracking bool   `json:"isTracking"`
}

// IsCurrent reports whether the act with number n is the one being
// performed right now.
func (c CurrentAct) IsCurrent(n int) bool {
	return c.IsTracking && c.Number != nil && *c.Number == n
}

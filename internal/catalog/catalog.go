// Package catalog loads the bundled recital dataset into an in-memory,
// read-only index of shows and their acts.
//
// The dataset file is a single base64 text blob wrapping a JSON document of
// the form {"shows": [{"datetime": ..., "acts": [...]}]}.  The base64 layer
// only keeps the file from being edited by hand; it is reversed before
// parsing.
package catalog

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
	"unicode"

	"github.com/iliyamo/recital-program/internal/model"
)

// ErrDataFormat is returned when the dataset cannot be decoded or does not
// match the expected schema.  No partial catalog is ever returned with it.
var ErrDataFormat = errors.New("catalog: invalid data format")

// LabelLayout renders a show's start time as a long US-English date and
// 12-hour clock time, e.g. "Saturday, May 31, 2025 at 6:00 PM".
const LabelLayout = "Monday, January 2, 2006 at 3:04 PM"

// datetimeLayouts are tried in order when parsing a show's datetime.
// Layouts without an offset are interpreted in the catalog's location.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Dataset is the decoded JSON document.  It is also what Encode writes.
type Dataset struct {
	Shows []ShowRecord `json:"shows"`
}

// ShowRecord is one show as it appears in the dataset.
type ShowRecord struct {
	Datetime string      `json:"datetime"`
	Acts     []model.Act `json:"acts"`
}

type rawDataset struct {
	Shows *[]rawShow `json:"shows"`
}

type rawShow struct {
	Datetime *string   `json:"datetime"`
	Acts     *[]rawAct `json:"acts"`
}

type rawAct struct {
	Number     *int     `json:"number"`
	Title      *string  `json:"title"`
	Performers []string `json:"performers"`
}

// Catalog is the loaded, immutable set of shows.
type Catalog struct {
	shows map[model.ShowKey]*model.Show
	order []model.ShowKey
}

// LoadFile reads the dataset at path and loads it.  Read failures are
// reported as-is; everything after the read is subject to ErrDataFormat.
func LoadFile(path string, loc *time.Location) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Load(raw, loc)
}

// Load decodes and parses the transport-encoded dataset.  A nil loc means
// UTC.
func Load(raw []byte, loc *time.Location) (*Catalog, error) {
	doc, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return Parse(doc, loc)
}

// Decode reverses the transport encoding and returns the JSON document.
// Whitespace anywhere in the blob is ignored.
func Decode(raw []byte) ([]byte, error) {
	compact := bytes.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if len(compact) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDataFormat)
	}
	out := make([]byte, base64.StdEncoding.DecodedLen(len(compact)))
	n, err := base64.StdEncoding.Decode(out, compact)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDataFormat, err)
	}
	return out[:n], nil
}

// Encode applies the transport encoding to a dataset.
func Encode(ds Dataset) ([]byte, error) {
	doc, err := json.Marshal(ds)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(doc)))
	base64.StdEncoding.Encode(out, doc)
	return out, nil
}

// Parse validates the JSON document and builds the catalog.
func Parse(doc []byte, loc *time.Location) (*Catalog, error) {
	if loc == nil {
		loc = time.UTC
	}
	var ds rawDataset
	if err := json.Unmarshal(doc, &ds); err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrDataFormat, err)
	}
	if ds.Shows == nil {
		return nil, fmt.Errorf("%w: missing shows array", ErrDataFormat)
	}

	c := &Catalog{
		shows: make(map[model.ShowKey]*model.Show, len(*ds.Shows)),
		order: make([]model.ShowKey, 0, len(*ds.Shows)),
	}
	for i, rs := range *ds.Shows {
		show, err := parseShow(rs, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: show %d: %v", ErrDataFormat, i, err)
		}
		if _, dup := c.shows[show.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate show %q", ErrDataFormat, show.Key)
		}
		c.shows[show.Key] = show
		c.order = append(c.order, show.Key)
	}
	return c, nil
}

func parseShow(rs rawShow, loc *time.Location) (*model.Show, error) {
	if rs.Datetime == nil || *rs.Datetime == "" {
		return nil, errors.New("missing datetime")
	}
	if rs.Acts == nil {
		return nil, errors.New("missing acts array")
	}
	start, err := parseDatetime(*rs.Datetime, loc)
	if err != nil {
		return nil, err
	}

	acts := make([]model.Act, 0, len(*rs.Acts))
	seen := make(map[int]bool, len(*rs.Acts))
	for j, ra := range *rs.Acts {
		if ra.Number == nil {
			return nil, fmt.Errorf("act %d: missing number", j)
		}
		if ra.Title == nil {
			return nil, fmt.Errorf("act %d: missing title", j)
		}
		if seen[*ra.Number] {
			return nil, fmt.Errorf("act %d: duplicate number %d", j, *ra.Number)
		}
		seen[*ra.Number] = true
		performers := ra.Performers
		if performers == nil {
			performers = []string{}
		}
		acts = append(acts, model.Act{Number: *ra.Number, Title: *ra.Title, Performers: performers})
	}

	return &model.Show{
		Key:      model.ShowKey(*rs.Datetime),
		Datetime: start,
		Label:    FormatLabel(start),
		Acts:     acts,
	}, nil
}

func parseDatetime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range datetimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised datetime %q", s)
}

// FormatLabel renders a show's display label.
func FormatLabel(t time.Time) string {
	return t.Format(LabelLayout)
}

// Show returns the show with the given key.
func (c *Catalog) Show(key model.ShowKey) (*model.Show, bool) {
	if c == nil {
		return nil, false
	}
	s, ok := c.shows[key]
	return s, ok
}

// Shows returns all shows in dataset order.
func (c *Catalog) Shows() []*model.Show {
	if c == nil {
		return nil
	}
	out := make([]*model.Show, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.shows[k])
	}
	return out
}

// Len reports the number of shows.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Dataset rebuilds the dataset the catalog was loaded from.
func (c *Catalog) Dataset() Dataset {
	ds := Dataset{Shows: make([]ShowRecord, 0, c.Len())}
	for _, s := range c.Shows() {
		acts := make([]model.Act, len(s.Acts))
		copy(acts, s.Acts)
		ds.Shows = append(ds.Shows, ShowRecord{Datetime: string(s.Key), Acts: acts})
	}
	return ds
}

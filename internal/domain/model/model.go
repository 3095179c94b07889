// Package model contains the dashboard shapes passed between layers.
package model

import (
	"encoding/json"
	"time"

	"github.com/okian/botpulse/internal/domain/cells"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// SectionKind selects how a catalog section is read from its sheet.
type SectionKind string

// Section kinds.
const (
	KindSnapshot   SectionKind = "snapshot"
	KindSeries     SectionKind = "series"
	KindWideSeries SectionKind = "wide_series"
	KindTable      SectionKind = "table"
)

// SectionStatus reports whether a section could be loaded.
type SectionStatus string

// Section statuses.
const (
	StatusOK          SectionStatus = "ok"
	StatusUnavailable SectionStatus = "unavailable"
)

// Unavailable is the only error text shown for a section that failed to load.
const Unavailable = "data not available"

// Snapshot is one day's flat map of metric name to value for a department.
// Keys keeps the sheet order of Metrics.
type Snapshot struct {
	Metrics map[string]cells.Value `json:"metrics"`
	Keys    []string               `json:"keys"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() Snapshot {
	return Snapshot{Metrics: make(map[string]cells.Value)}
}

// Set stores v under key; a repeated key replaces the value but keeps its position.
func (s *Snapshot) Set(key string, v cells.Value) {
	if s.Metrics == nil {
		s.Metrics = make(map[string]cells.Value)
	}
	if _, ok := s.Metrics[key]; !ok {
		s.Keys = append(s.Keys, key)
	}
	s.Metrics[key] = v
}

// Number returns the numeric value of key, or 0 and false when absent or non-numeric.
func (s Snapshot) Number(key string) (float64, bool) {
	v, ok := s.Metrics[key]
	if !ok || !v.Numeric() {
		return 0, false
	}
	return v.Number, true
}

// Point is one date of a trendline. A field missing from Values is absent
// for that date, which is different from zero.
type Point struct {
	Date   time.Time          `json:"date"`
	Values map[string]float64 `json:"values"`
}

// NewPoint returns a point with no values.
func NewPoint(date time.Time) Point {
	return Point{Date: date, Values: make(map[string]float64)}
}

// Get returns the field value and whether the point carries it.
func (p Point) Get(field string) (float64, bool) {
	v, ok := p.Values[field]
	return v, ok
}

// MarshalJSON writes the date as YYYY-MM-DD.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date   string             `json:"date"`
		Values map[string]float64 `json:"values"`
	}{Date: p.Date.Format(DateLayout), Values: p.Values})
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (p *Point) UnmarshalJSON(b []byte) error {
	var raw struct {
		Date   string             `json:"date"`
		Values map[string]float64 `json:"values"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	d, err := time.Parse(DateLayout, raw.Date)
	if err != nil {
		return err
	}
	p.Date = d
	p.Values = raw.Values
	if p.Values == nil {
		p.Values = make(map[string]float64)
	}
	return nil
}

// Series is a trendline: points in ascending date order.
type Series struct {
	Fields []string `json:"fields"`
	Points []Point  `json:"points"`
}

// AddField records a field name once, in first-seen order.
func (s *Series) AddField(name string) {
	for _, f := range s.Fields {
		if f == name {
			return
		}
	}
	s.Fields = append(s.Fields, name)
}

// Table mirrors a spreadsheet block: one merged header row and padded body rows.
type Table struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// Section is one independently loaded part of a dashboard.
type Section struct {
	ID        string        `json:"id"`
	Title     string        `json:"title,omitempty"`
	Kind      SectionKind   `json:"kind"`
	Status    SectionStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	Stale     bool          `json:"stale,omitempty"`
	FetchedAt time.Time     `json:"fetched_at,omitzero"`
	Snapshot  *Snapshot     `json:"snapshot,omitempty"`
	Series    *Series       `json:"series,omitempty"`
	Table     *Table        `json:"table,omitempty"`
}

// OK reports whether the section loaded.
func (s Section) OK() bool {
	return s.Status == StatusOK
}

// Dashboard is every section of one department for one date.
type Dashboard struct {
	Department  string    `json:"department"`
	Name        string    `json:"name"`
	Date        string    `json:"date"`
	Sections    []Section `json:"sections"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Section returns the section with id.
func (d Dashboard) Section(id string) (Section, bool) {
	for _, s := range d.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// SectionRef describes a catalog section without its data.
type SectionRef struct {
	ID    string      `json:"id"`
	Title string      `json:"title,omitempty"`
	Kind  SectionKind `json:"kind"`
}

// Department is a catalog entry as listed by the API.
type Department struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	SpreadsheetID string       `json:"spreadsheet_id"`
	Sections      []SectionRef `json:"sections"`
}

// RefreshJob asks for a department's ranges to be fetched again.
type RefreshJob struct {
	Department string    `json:"department"`
	Reason     string    `json:"reason"`
	Requested  time.Time `json:"requested"`
}

// Notice is pushed to live clients after a department is refreshed.
type Notice struct {
	Type       string    `json:"type"`
	Department string    `json:"department"`
	Date       string    `json:"date"`
	At         time.Time `json:"at"`
}

// NoticeRefreshed is the type of a Notice sent after a refresh.
const NoticeRefreshed = "refreshed"

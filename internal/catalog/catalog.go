// Package catalog describes which spreadsheets and ranges make up each
// department's dashboard. It is loaded from YAML and may be hot-reloaded.
package catalog

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/botpulse/internal/domain/model"
)

// Derivation operations.
const (
	OpPercent       = "percent"
	OpMovingAverage = "moving_average"
)

// Catalog lists every department.
type Catalog struct {
	Departments []Department `yaml:"departments"`
}

// Department is one dashboard backed by one spreadsheet.
type Department struct {
	ID            string    `yaml:"id"`
	Name          string    `yaml:"name"`
	SpreadsheetID string    `yaml:"spreadsheet_id"`
	Sections      []Section `yaml:"sections"`
}

// Section says where a dashboard section lives and how to read it.
type Section struct {
	ID    string            `yaml:"id"`
	Title string            `yaml:"title"`
	Kind  model.SectionKind `yaml:"kind"`
	// TabLayout, when set, makes the tab name the requested date formatted
	// with this Go layout, e.g. "Jan 2" for a tab called "Oct 19".
	TabLayout string `yaml:"tab_layout"`
	Range     string `yaml:"range"`

	// Snapshot columns, zero-based. Defaults are A and B.
	KeyColumn   int `yaml:"key_column"`
	ValueColumn int `yaml:"value_column"`

	DateColumn string       `yaml:"date_column"`
	Derive     []Derivation `yaml:"derive"`
	// Days limits a series to the trailing number of days before the
	// requested date. Zero keeps the whole sheet.
	Days int `yaml:"days"`

	// Block is the title of a block on a multi-section tab.
	Block      string `yaml:"section"`
	HeaderRows int    `yaml:"header_rows"`
}

// Derivation adds a computed field to a series.
type Derivation struct {
	Name   string `yaml:"name"`
	Op     string `yaml:"op"`
	Part   string `yaml:"part"`
	Total  string `yaml:"total"`
	Source string `yaml:"source"`
	Window int    `yaml:"window"`
}

// Load reads and validates the catalog at path.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadCatalog, err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML catalog. Unknown keys are rejected.
func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) applyDefaults() {
	for d := range c.Departments {
		dept := &c.Departments[d]
		if dept.Name == "" {
			dept.Name = dept.ID
		}
		for s := range dept.Sections {
			sec := &dept.Sections[s]
			if sec.KeyColumn == 0 && sec.ValueColumn == 0 {
				sec.ValueColumn = 1
			}
			if sec.HeaderRows == 0 {
				sec.HeaderRows = 1
			}
		}
	}
}

// Validate checks ids, kinds and derivations.
func (c *Catalog) Validate() error {
	if len(c.Departments) == 0 {
		return fmt.Errorf("%w: no departments", ErrInvalidCatalog)
	}
	seen := make(map[string]bool, len(c.Departments))
	for _, d := range c.Departments {
		if d.ID == "" {
			return fmt.Errorf("%w: department without id", ErrInvalidCatalog)
		}
		if seen[d.ID] {
			return fmt.Errorf("%w: duplicate department %q", ErrInvalidCatalog, d.ID)
		}
		seen[d.ID] = true
		if d.SpreadsheetID == "" {
			return fmt.Errorf("%w: department %q has no spreadsheet_id", ErrInvalidCatalog, d.ID)
		}
		if err := d.validateSections(); err != nil {
			return err
		}
	}
	return nil
}

func (d Department) validateSections() error {
	seen := make(map[string]bool, len(d.Sections))
	for _, s := range d.Sections {
		where := d.ID + "/" + s.ID
		if s.ID == "" {
			return fmt.Errorf("%w: department %q has a section without id", ErrInvalidCatalog, d.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate section %q", ErrInvalidCatalog, where)
		}
		seen[s.ID] = true
		switch s.Kind {
		case model.KindSnapshot, model.KindSeries, model.KindWideSeries, model.KindTable:
		default:
			return fmt.Errorf("%w: section %q has unknown kind %q", ErrInvalidCatalog, where, s.Kind)
		}
		if s.Range == "" {
			return fmt.Errorf("%w: section %q has no range", ErrInvalidCatalog, where)
		}
		if s.KeyColumn < 0 || s.ValueColumn < 0 || s.HeaderRows < 0 || s.Days < 0 {
			return fmt.Errorf("%w: section %q has a negative column, header_rows or days", ErrInvalidCatalog, where)
		}
		if len(s.Derive) > 0 && s.Kind != model.KindSeries && s.Kind != model.KindWideSeries {
			return fmt.Errorf("%w: section %q derives fields but is not a series", ErrInvalidCatalog, where)
		}
		for _, dv := range s.Derive {
			if err := dv.validate(where); err != nil {
				return err
			}
		}
	}
	return nil
}

func (dv Derivation) validate(where string) error {
	if dv.Name == "" {
		return fmt.Errorf("%w: section %q has a derivation without name", ErrInvalidCatalog, where)
	}
	switch dv.Op {
	case OpPercent:
		if dv.Part == "" || dv.Total == "" {
			return fmt.Errorf("%w: %s/%s needs part and total", ErrInvalidCatalog, where, dv.Name)
		}
	case OpMovingAverage:
		if dv.Source == "" || dv.Window < 0 {
			return fmt.Errorf("%w: %s/%s needs a source and a non-negative window", ErrInvalidCatalog, where, dv.Name)
		}
	default:
		return fmt.Errorf("%w: %s/%s has unknown op %q", ErrInvalidCatalog, where, dv.Name, dv.Op)
	}
	return nil
}

// Department returns the department with id.
func (c *Catalog) Department(id string) (Department, error) {
	for _, d := range c.Departments {
		if d.ID == id {
			return d, nil
		}
	}
	return Department{}, fmt.Errorf("%w: %q", ErrUnknownDept, id)
}

// Summaries lists departments for the API.
func (c *Catalog) Summaries() []model.Department {
	out := make([]model.Department, 0, len(c.Departments))
	for _, d := range c.Departments {
		refs := make([]model.SectionRef, 0, len(d.Sections))
		for _, s := range d.Sections {
			refs = append(refs, model.SectionRef{ID: s.ID, Title: s.Title, Kind: s.Kind})
		}
		out = append(out, model.Department{ID: d.ID, Name: d.Name, SpreadsheetID: d.SpreadsheetID, Sections: refs})
	}
	return out
}

// Section returns the section with id.
func (d Department) Section(id string) (Section, error) {
	for _, s := range d.Sections {
		if s.ID == id {
			return s, nil
		}
	}
	return Section{}, fmt.Errorf("%w: %q in %q", ErrUnknownSection, id, d.ID)
}

// SourceURL is the browser URL of the department's spreadsheet.
func (d Department) SourceURL() string {
	return "https://docs.google.com/spreadsheets/d/" + d.SpreadsheetID + "/edit"
}

// A1 returns the A1 range to fetch for date. With a tab layout the tab is the
// formatted date; otherwise the tab named in Range, if any, is quoted.
func (s Section) A1(date time.Time) string {
	if s.TabLayout != "" {
		cellsPart := s.Range
		if i := strings.LastIndex(cellsPart, "!"); i >= 0 {
			cellsPart = cellsPart[i+1:]
		}
		return QuoteTab(date.Format(s.TabLayout)) + "!" + cellsPart
	}
	i := strings.LastIndex(s.Range, "!")
	if i < 0 {
		return s.Range
	}
	return QuoteTab(s.Range[:i]) + "!" + s.Range[i+1:]
}

// QuoteTab wraps a tab name in single quotes, doubling quotes inside it.
// Already quoted names are returned unchanged.
func QuoteTab(tab string) string {
	if len(tab) >= 2 && strings.HasPrefix(tab, "'") && strings.HasSuffix(tab, "'") {
		return tab
	}
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

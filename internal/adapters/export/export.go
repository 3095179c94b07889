// Package export renders a dashboard as an XLSX workbook.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/okian/botpulse/internal/domain/model"
)

// Sheet names that are always present.
const (
	InfoSheet     = "Info"
	SnapshotSheet = "Snapshot"
)

// ContentType is the media type of the written workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const maxSheetName = 31

// Write encodes d as a workbook into w.
func Write(w io.Writer, d model.Dashboard) error {
	f, err := Workbook(d)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Workbook builds the workbook for d: an Info sheet, a Snapshot sheet with the
// metrics of every snapshot section, and one sheet per series and table.
// Unavailable sections are listed on the Info sheet only.
func Workbook(d model.Dashboard) (*excelize.File, error) {
	b := &builder{f: excelize.NewFile(), used: map[string]bool{}}
	if err := b.init(); err != nil {
		_ = b.f.Close()
		return nil, err
	}
	if err := b.build(d); err != nil {
		_ = b.f.Close()
		return nil, err
	}
	return b.f, nil
}

type builder struct {
	f    *excelize.File
	bold int
	used map[string]bool
}

func (b *builder) init() error {
	if err := b.f.SetSheetName("Sheet1", InfoSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	b.used[strings.ToLower(InfoSheet)] = true
	style, err := b.f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	b.bold = style
	return nil
}

func (b *builder) build(d model.Dashboard) error {
	var snaps []model.Section
	for _, s := range d.Sections {
		if !s.OK() {
			continue
		}
		var err error
		switch {
		case s.Snapshot != nil:
			snaps = append(snaps, s)
		case s.Series != nil:
			err = b.series(s)
		case s.Table != nil:
			err = b.table(s)
		}
		if err != nil {
			return fmt.Errorf("section %s: %w", s.ID, err)
		}
	}
	if len(snaps) > 0 {
		if err := b.snapshots(snaps); err != nil {
			return err
		}
	}
	return b.info(d)
}

func (b *builder) info(d model.Dashboard) error {
	rows := [][]any{
		{"Department", d.Name},
		{"Department ID", d.Department},
		{"Date", d.Date},
		{"Generated", d.GeneratedAt.UTC().Format(time.RFC3339)},
		{},
		{"Section", "Status", "Note"},
	}
	header := len(rows)
	for _, s := range d.Sections {
		note := ""
		switch {
		case !s.OK():
			note = s.Error
		case s.Stale:
			note = "served from cache, fetched " + s.FetchedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []any{s.Title, string(s.Status), note})
	}
	if err := b.rows(InfoSheet, rows, header); err != nil {
		return err
	}
	return b.f.SetColWidth(InfoSheet, "A", "C", 24)
}

func (b *builder) snapshots(sections []model.Section) error {
	name := b.sheet(SnapshotSheet)
	if _, err := b.f.NewSheet(name); err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	rows := [][]any{{"Section", "Metric", "Raw", "Value", "Kind"}}
	for _, s := range sections {
		for _, key := range s.Snapshot.Keys {
			v := s.Snapshot.Metrics[key]
			var value any
			if v.Numeric() {
				value = v.Number
			}
			rows = append(rows, []any{s.Title, key, v.Raw, value, string(v.Kind)})
		}
	}
	return b.rows(name, rows, 1)
}

func (b *builder) series(s model.Section) error {
	name := b.sheet(s.Title)
	if _, err := b.f.NewSheet(name); err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	header := make([]any, 0, len(s.Series.Fields)+1)
	header = append(header, "Date")
	for _, f := range s.Series.Fields {
		header = append(header, f)
	}
	rows := [][]any{header}
	for _, p := range s.Series.Points {
		row := make([]any, 0, len(header))
		row = append(row, p.Date.Format(model.DateLayout))
		for _, f := range s.Series.Fields {
			if v, ok := p.Get(f); ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		rows = append(rows, row)
	}
	return b.rows(name, rows, 1)
}

func (b *builder) table(s model.Section) error {
	name := b.sheet(s.Title)
	if _, err := b.f.NewSheet(name); err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	rows := make([][]any, 0, len(s.Table.Rows)+1)
	headerRows := 0
	if len(s.Table.Header) > 0 {
		rows = append(rows, strings2any(s.Table.Header))
		headerRows = 1
	}
	for _, r := range s.Table.Rows {
		rows = append(rows, strings2any(r))
	}
	return b.rows(name, rows, headerRows)
}

// rows writes rows from A1 down and makes the given header row bold.
func (b *builder) rows(sheet string, rows [][]any, headerRow int) error {
	for i, r := range rows {
		if len(r) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := b.f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if headerRow > 0 && len(rows) >= headerRow {
		if err := b.f.SetRowStyle(sheet, headerRow, headerRow, b.bold); err != nil {
			return fmt.Errorf("style %s: %w", sheet, err)
		}
	}
	return nil
}

// sheet turns a title into a unique, valid sheet name.
func (b *builder) sheet(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return '-'
		}
		return r
	}, strings.TrimSpace(title))
	name = strings.Trim(name, "'")
	if name == "" {
		name = "Section"
	}
	base := truncate(name, maxSheetName)
	name = base
	for i := 2; b.used[strings.ToLower(name)]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		name = truncate(base, maxSheetName-len(suffix)) + suffix
	}
	b.used[strings.ToLower(name)] = true
	return name
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func strings2any(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

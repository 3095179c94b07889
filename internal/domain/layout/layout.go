// Package layout turns the ragged rows returned by the Sheets values API into
// snapshots, tables and trendlines. Dashboard sheets are laid out by hand, so
// the functions here tolerate missing cells, merged header cells and several
// titled blocks stacked on one tab.
package layout

import (
	"strings"

	"github.com/okian/botpulse/internal/domain/cells"
	"github.com/okian/botpulse/internal/domain/model"
)

// Grid is a rectangular view over ragged spreadsheet rows.
type Grid [][]string

// Cell returns the trimmed cell at r, c or "" outside the grid.
func (g Grid) Cell(r, c int) string {
	if r < 0 || r >= len(g) || c < 0 || c >= len(g[r]) {
		return ""
	}
	return strings.TrimSpace(g[r][c])
}

// Width is the length of the longest row.
func (g Grid) Width() int {
	w := 0
	for _, row := range g {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}

// Collapse merges the first headerRows rows into one header row and returns
// the grid with that single header followed by the body.
func (g Grid) Collapse(headerRows int) Grid {
	if headerRows <= 1 || len(g) == 0 {
		return g
	}
	if headerRows > len(g) {
		headerRows = len(g)
	}
	out := make(Grid, 0, len(g)-headerRows+1)
	out = append(out, MergeHeaders(g[:headerRows]))
	return append(out, g[headerRows:]...)
}

// NormalizeKey trims s, collapses inner whitespace and strips a trailing colon.
func NormalizeKey(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(strings.TrimSuffix(s, ":"))
}

// ColumnIndex finds name in header ignoring case and key formatting, or -1.
func ColumnIndex(header []string, name string) int {
	want := strings.ToLower(NormalizeKey(name))
	if want == "" {
		return -1
	}
	for i, h := range header {
		if strings.ToLower(NormalizeKey(h)) == want {
			return i
		}
	}
	return -1
}

// KeyValues reads a two-column metric list into a snapshot. Blank keys are
// skipped and a repeated key takes the later value.
func KeyValues(g Grid, keyCol, valCol int) model.Snapshot {
	s := model.NewSnapshot()
	for r := range g {
		key := NormalizeKey(g.Cell(r, keyCol))
		if key == "" {
			continue
		}
		s.Set(key, cells.Parse(g.Cell(r, valCol)))
	}
	return s
}

// MergeHeaders combines stacked header rows into one. A blank cell in any row
// but the last takes the nearest non-blank cell to its left, which is how a
// horizontally merged cell comes back from the API. The parts of a column are
// joined with a single space.
func MergeHeaders(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}
	width := Grid(rows).Width()
	filled := make([][]string, len(rows))
	for i, row := range rows {
		line := make([]string, width)
		carry := ""
		for c := 0; c < width; c++ {
			v := ""
			if c < len(row) {
				v = NormalizeKey(row[c])
			}
			if v != "" {
				carry = v
			} else if i < len(rows)-1 {
				v = carry
			}
			line[c] = v
		}
		filled[i] = line
	}
	out := make([]string, width)
	for c := 0; c < width; c++ {
		parts := make([]string, 0, len(rows))
		for _, line := range filled {
			if line[c] != "" {
				parts = append(parts, line[c])
			}
		}
		out[c] = strings.Join(parts, " ")
	}
	return out
}

// TableFrom builds a table from a block whose first headerRows rows are
// headers. Trailing blank rows are dropped and every row is padded to the
// table width.
func TableFrom(g Grid, headerRows int) model.Table {
	if headerRows < 1 {
		headerRows = 1
	}
	if len(g) == 0 {
		return model.Table{Header: []string{}, Rows: [][]string{}}
	}
	if headerRows > len(g) {
		headerRows = len(g)
	}
	header := MergeHeaders(g[:headerRows])
	body := g[headerRows:]
	for len(body) > 0 && blankRow(body[len(body)-1]) {
		body = body[:len(body)-1]
	}
	width := max(len(header), Grid(body).Width())
	header = pad(header, width)
	rows := make([][]string, 0, len(body))
	for _, row := range body {
		trimmed := make([]string, len(row))
		for i, v := range row {
			trimmed[i] = strings.TrimSpace(v)
		}
		rows = append(rows, pad(trimmed, width))
	}
	return model.Table{Header: header, Rows: rows}
}

func pad(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

package layout

import "strings"

// Section is a titled block of a multi-section sheet.
type Section struct {
	Title string
	// Start is the grid row of the title, or of the first row for an untitled block.
	Start int
	Rows  Grid
}

// Sections splits a sheet into blocks. A title row has a single non-blank
// cell, in column A. A block ends at the next title or at two consecutive
// blank rows; a single blank row inside a block is kept. Content before the
// first title, or after a block has ended, forms an untitled block.
func Sections(g Grid) []Section {
	var (
		out   []Section
		cur   *Section
		blank int
	)
	flush := func() {
		if cur != nil && (cur.Title != "" || len(cur.Rows) > 0) {
			out = append(out, *cur)
		}
		cur = nil
	}
	for r, row := range g {
		switch {
		case isTitle(row):
			flush()
			cur = &Section{Title: NormalizeKey(row[0]), Start: r}
			blank = 0
		case blankRow(row):
			blank++
			if blank >= 2 {
				flush()
			}
		default:
			if cur == nil {
				cur = &Section{Start: r}
			} else if blank == 1 && len(cur.Rows) > 0 {
				cur.Rows = append(cur.Rows, []string{})
			}
			blank = 0
			cur.Rows = append(cur.Rows, row)
		}
	}
	flush()
	return out
}

// FindSection returns the block whose title matches, ignoring case.
func FindSection(g Grid, title string) (Section, bool) {
	want := strings.ToLower(NormalizeKey(title))
	for _, s := range Sections(g) {
		if strings.ToLower(s.Title) == want {
			return s, true
		}
	}
	return Section{}, false
}

func isTitle(row []string) bool {
	if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
		return false
	}
	for _, v := range row[1:] {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

package layout

import (
	"sort"
	"time"

	"github.com/okian/botpulse/internal/domain/cells"
	"github.com/okian/botpulse/internal/domain/model"
	"github.com/okian/botpulse/pkg/metrics"
)

// Suffixes of the extra fields split out of compound cells.
const (
	CountSuffix  = " count"
	WindowSuffix = " window"
)

// LongSeries reads a sheet with a header row and one row per date. The date
// column is found by name (column A when dateColumn is empty). Rows whose
// date does not parse are skipped; a non-numeric cell leaves its field absent
// for that date. "3.67%(9)" contributes both the field and "<field> count";
// "$32 (Last 30 days: $1,670)" contributes the field and "<field> window".
func LongSeries(g Grid, dateColumn string, loc *time.Location) model.Series {
	return longSeries(g, dateColumn, loc, time.Now())
}

func longSeries(g Grid, dateColumn string, loc *time.Location, ref time.Time) model.Series {
	series := model.Series{Fields: []string{}, Points: []model.Point{}}
	if len(g) == 0 {
		return series
	}
	header := make([]string, g.Width())
	for c := range header {
		header[c] = NormalizeKey(g.Cell(0, c))
	}
	dateCol := 0
	if dateColumn != "" {
		dateCol = ColumnIndex(header, dateColumn)
	}
	if dateCol < 0 {
		return series
	}
	for c, name := range header {
		if c != dateCol && name != "" {
			series.AddField(name)
		}
	}

	byDate := make(map[time.Time]int)
	for r := 1; r < len(g); r++ {
		date, ok := cells.ParseDateRef(g.Cell(r, dateCol), loc, ref)
		if !ok {
			continue
		}
		idx, seen := byDate[date]
		if !seen {
			idx = len(series.Points)
			byDate[date] = idx
			series.Points = append(series.Points, model.NewPoint(date))
		}
		for c, name := range header {
			if c == dateCol || name == "" {
				continue
			}
			put(&series, series.Points[idx], name, g.Cell(r, c))
		}
	}
	sortPoints(series.Points)
	return series
}

// WideSeries reads a sheet whose first row holds dates from column B on and
// whose following rows each carry one metric named in column A.
func WideSeries(g Grid, loc *time.Location) model.Series {
	return wideSeries(g, loc, time.Now())
}

func wideSeries(g Grid, loc *time.Location, ref time.Time) model.Series {
	series := model.Series{Fields: []string{}, Points: []model.Point{}}
	if len(g) == 0 {
		return series
	}
	cols := make(map[int]int)
	byDate := make(map[time.Time]int)
	for c := 1; c < len(g[0]); c++ {
		date, ok := cells.ParseDateRef(g.Cell(0, c), loc, ref)
		if !ok {
			continue
		}
		idx, seen := byDate[date]
		if !seen {
			idx = len(series.Points)
			byDate[date] = idx
			series.Points = append(series.Points, model.NewPoint(date))
		}
		cols[c] = idx
	}
	for r := 1; r < len(g); r++ {
		name := NormalizeKey(g.Cell(r, 0))
		if name == "" {
			continue
		}
		series.AddField(name)
		for c, idx := range cols {
			put(&series, series.Points[idx], name, g.Cell(r, c))
		}
	}
	sortPoints(series.Points)
	return series
}

// put parses raw into p under name. Blank cells are absent; non-blank cells
// that are not numeric are counted as parse fallbacks.
func put(s *model.Series, p model.Point, name, raw string) {
	if cells.IsBlank(raw) {
		return
	}
	v := cells.Parse(raw)
	if !v.Numeric() {
		metrics.RecordParseFallback(string(cells.KindNumber))
		return
	}
	p.Values[name] = v.Number
	switch v.Kind {
	case cells.KindPercentCount:
		p.Values[name+CountSuffix] = float64(v.Count)
		s.AddField(name + CountSuffix)
	case cells.KindCurrencyWindow:
		p.Values[name+WindowSuffix] = v.Window
		s.AddField(name + WindowSuffix)
	}
}

func sortPoints(points []model.Point) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
}

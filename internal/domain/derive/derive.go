// Package derive computes the metrics a dashboard shows but the sheets do not
// store: ratios, trailing moving averages and headline totals.
package derive

import (
	"math"
	"time"

	"github.com/okian/botpulse/internal/domain/model"
)

// DefaultWindow is the moving-average window in days.
const DefaultWindow = 7

// Sample is one output value of a derivation.
type Sample struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Percent returns part as a percentage of total, or 0 when total is 0.
func Percent(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return part / total * 100
}

// Change returns the relative change from prev to cur in percent, or 0 when prev is 0.
func Change(prev, cur float64) float64 {
	if prev == 0 {
		return 0
	}
	return (cur - prev) / math.Abs(prev) * 100
}

// MovingAverage computes a trailing average of field over the last window
// points that carry it. Until window values have been seen the average covers
// what is available. Points without the field produce no sample. points must
// be in ascending date order.
func MovingAverage(points []model.Point, field string, window int) []Sample {
	out := make([]Sample, 0, len(points))
	trailing(points, field, window, func(p model.Point, avg float64) {
		out = append(out, Sample{Date: p.Date, Value: avg})
	})
	return out
}

// AddMovingAverage stores the moving average of source as name on every point
// that carries source.
func AddMovingAverage(s *model.Series, name, source string, window int) {
	trailing(s.Points, source, window, func(p model.Point, avg float64) {
		p.Values[name] = avg
	})
	s.AddField(name)
}

func trailing(points []model.Point, field string, window int, emit func(model.Point, float64)) {
	if window < 1 {
		window = DefaultWindow
	}
	ring := make([]float64, 0, window)
	for _, p := range points {
		v, ok := p.Get(field)
		if !ok {
			continue
		}
		if len(ring) == window {
			ring = ring[1:]
		}
		ring = append(ring, v)
		var sum float64
		for _, x := range ring {
			sum += x
		}
		emit(p, sum/float64(len(ring)))
	}
}

// AddPercent stores part/total*100 as name on every point that carries both.
func AddPercent(s *model.Series, name, part, total string) {
	for _, p := range s.Points {
		pv, ok := p.Get(part)
		if !ok {
			continue
		}
		tv, ok := p.Get(total)
		if !ok {
			continue
		}
		p.Values[name] = Percent(pv, tv)
	}
	s.AddField(name)
}

// Sum adds field over every point that carries it.
func Sum(s model.Series, field string) float64 {
	var total float64
	for _, p := range s.Points {
		if v, ok := p.Get(field); ok {
			total += v
		}
	}
	return total
}

// Latest returns the last value of field and its date.
func Latest(s model.Series, field string) (Sample, bool) {
	for i := len(s.Points) - 1; i >= 0; i-- {
		if v, ok := s.Points[i].Get(field); ok {
			return Sample{Date: s.Points[i].Date, Value: v}, true
		}
	}
	return Sample{}, false
}

// Clip keeps the points dated within [from, to]. A zero bound is open.
func Clip(s model.Series, from, to time.Time) model.Series {
	out := model.Series{Fields: s.Fields, Points: make([]model.Point, 0, len(s.Points))}
	for _, p := range s.Points {
		if !from.IsZero() && p.Date.Before(from) {
			continue
		}
		if !to.IsZero() && p.Date.After(to) {
			continue
		}
		out.Points = append(out.Points, p)
	}
	return out
}

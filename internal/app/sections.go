package service

import (
	"context"
	"time"

	"github.com/okian/botpulse/internal/catalog"
	"github.com/okian/botpulse/internal/domain/derive"
	"github.com/okian/botpulse/internal/domain/layout"
	"github.com/okian/botpulse/internal/domain/model"
	"github.com/okian/botpulse/pkg/logger"
	"github.com/okian/botpulse/pkg/metrics"
)

// build turns a fetched range into a dashboard section. With window set a
// series is cut to the section's trailing day window ending at date.
func (s *Service) build(ctx context.Context, dept catalog.Department, sec catalog.Section, res fetchResult, date time.Time, window bool) model.Section {
	out := model.Section{
		ID:    sec.ID,
		Title: sec.Title,
		Kind:  sec.Kind,
	}
	if out.Title == "" {
		out.Title = sec.ID
	}
	if res.err != nil {
		out.Status = model.StatusUnavailable
		out.Error = model.Unavailable
		metrics.RecordSectionOutcome(string(sec.Kind), string(model.StatusUnavailable))
		return out
	}

	grid := layout.Grid(res.values.Values)
	if sec.Block != "" {
		block, ok := layout.FindSection(grid, sec.Block)
		if !ok {
			s.logger.Warn(ctx, "block not found",
				logger.String("department", dept.ID),
				logger.String("section", sec.ID),
				logger.String("block", sec.Block))
		}
		grid = block.Rows
	}

	switch sec.Kind {
	case model.KindSnapshot:
		snap := layout.KeyValues(grid, sec.KeyColumn, sec.ValueColumn)
		out.Snapshot = &snap
	case model.KindSeries:
		ser := layout.LongSeries(grid.Collapse(sec.HeaderRows), sec.DateColumn, s.loc)
		ser = s.derive(ser, sec, date, window)
		out.Series = &ser
	case model.KindWideSeries:
		ser := layout.WideSeries(grid, s.loc)
		ser = s.derive(ser, sec, date, window)
		out.Series = &ser
	case model.KindTable:
		t := layout.TableFrom(grid, sec.HeaderRows)
		out.Table = &t
	}

	out.Status = model.StatusOK
	out.Stale = res.stale
	out.FetchedAt = res.fetchedAt
	status := string(model.StatusOK)
	if res.stale {
		status = "stale"
	}
	metrics.RecordSectionOutcome(string(sec.Kind), status)
	return out
}

// derive runs the section's derivations over the whole series, then clips.
// Moving averages are computed before clipping so the first visible days
// still average a full window.
func (s *Service) derive(ser model.Series, sec catalog.Section, date time.Time, window bool) model.Series {
	for _, dv := range sec.Derive {
		switch dv.Op {
		case catalog.OpPercent:
			derive.AddPercent(&ser, dv.Name, dv.Part, dv.Total)
		case catalog.OpMovingAverage:
			w := dv.Window
			if w < 1 {
				w = s.maWindow
			}
			derive.AddMovingAverage(&ser, dv.Name, dv.Source, w)
		}
	}
	if window && sec.Days > 0 {
		ser = clip(ser, date.AddDate(0, 0, -(sec.Days-1)), date)
	}
	return ser
}

func clip(ser model.Series, from, to time.Time) model.Series {
	return derive.Clip(ser, from, to)
}

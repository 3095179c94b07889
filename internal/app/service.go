// Package service assembles dashboards from the catalog, the Sheets client and
// the range cache, and runs background refreshes. It implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	eventqueue "github.com/okian/botpulse/internal/adapters/mq/queue"
	workerpool "github.com/okian/botpulse/internal/adapters/mq/worker"
	"github.com/okian/botpulse/internal/adapters/repository"
	"github.com/okian/botpulse/internal/adapters/sheets"
	"github.com/okian/botpulse/internal/catalog"
	"github.com/okian/botpulse/internal/domain/cells"
	"github.com/okian/botpulse/internal/domain/dedupe"
	"github.com/okian/botpulse/internal/domain/model"
	"github.com/okian/botpulse/pkg/logger"
	"github.com/okian/botpulse/pkg/metrics"
)

// Fetcher reads value ranges from a spreadsheet.
type Fetcher interface {
	Get(ctx context.Context, spreadsheetID, a1 string) (sheets.ValueRange, error)
}

// Catalog supplies the catalog in effect.
type Catalog interface {
	Current() *catalog.Catalog
}

// Notifier is told when a department has been refreshed.
type Notifier interface {
	Notify(ctx context.Context, n model.Notice)
}

// RefreshResult is the outcome of RequestRefresh.
type RefreshResult string

// Refresh request outcomes.
const (
	RefreshAccepted     RefreshResult = "accepted"
	RefreshDuplicate    RefreshResult = "duplicate"
	RefreshBackpressure RefreshResult = "backpressure"
)

// Service implements the API dependencies for the dashboard.
type Service struct {
	mu sync.RWMutex

	// Core components
	catalog   Catalog
	fetcher   Fetcher
	cache     repository.Store
	notifiers []Notifier
	deduper   dedupe.Deduper
	queue     eventqueue.Queue
	pool      *workerpool.Pool
	scheduler *gocron.Scheduler

	// Configuration
	workerCount     int
	queueSize       int
	cacheTTL        time.Duration
	refreshInterval time.Duration
	fetchTimeout    time.Duration
	loc             *time.Location
	maWindow        int
	now             func() time.Time

	// State
	started     bool
	lastRefresh map[string]time.Time

	logger logger.Logger
}

// New constructs a Service. Background refresh starts with Start; the read
// operations work without it.
func New(cat Catalog, fetcher Fetcher, opts ...Option) *Service {
	s := &Service{
		catalog:         cat,
		fetcher:         fetcher,
		workerCount:     min(runtime.NumCPU(), 4),
		queueSize:       64,
		cacheTTL:        5 * time.Minute,
		refreshInterval: 15 * time.Minute,
		fetchTimeout:    45 * time.Second,
		loc:             time.UTC,
		maWindow:        7,
		now:             time.Now,
		lastRefresh:     make(map[string]time.Time),
		deduper:         dedupe.NewInMemoryDeduper(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	return s
}

// Start creates the refresh queue and workers and, when an interval is set,
// the refresh schedule.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting dashboard service...")

	q := eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.queue = q
	s.pool = workerpool.NewPool(s.workerCount, q, s, s.deduper)
	s.pool.Start(ctx)

	if s.refreshInterval > 0 {
		sched, err := s.newScheduler(ctx)
		if err != nil {
			_ = s.pool.Shutdown(ctx)
			return fmt.Errorf("schedule refresh: %w", err)
		}
		s.scheduler = sched
		s.scheduler.StartAsync()
	}

	s.started = true
	s.logger.Info(ctx, "dashboard service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Duration("cacheTTL", s.cacheTTL),
		logger.Duration("refreshInterval", s.refreshInterval),
	)
	return nil
}

// Stop drains queued refreshes and stops the schedule.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	sched, pool := s.scheduler, s.pool
	s.scheduler = nil
	s.started = false
	s.mu.Unlock()

	// Workers take the lock when they finish a refresh, so drain without it.
	ctx := context.Background()
	s.logger.Info(ctx, "stopping dashboard service...")
	if sched != nil {
		sched.Stop()
	}
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.logger.Info(ctx, "dashboard service stopped")
}

// Today is midnight of the current day in the configured timezone.
func (s *Service) Today() time.Time {
	return cells.Day(s.now(), s.loc)
}

// Location returns the configured timezone.
func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) day(date time.Time) time.Time {
	if date.IsZero() {
		return s.Today()
	}
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.loc)
}

func (s *Service) department(id string) (catalog.Department, error) {
	c := s.catalog.Current()
	if c == nil {
		return catalog.Department{}, fmt.Errorf("%w: %q", ErrUnknownDepartment, id)
	}
	return c.Department(id)
}

// Departments lists the catalog.
func (s *Service) Departments(_ context.Context) []model.Department {
	c := s.catalog.Current()
	if c == nil {
		return []model.Department{}
	}
	return c.Summaries()
}

// SourceURL returns the spreadsheet URL of a department.
func (s *Service) SourceURL(id string) (string, error) {
	d, err := s.department(id)
	if err != nil {
		return "", err
	}
	return d.SourceURL(), nil
}

// Dashboard loads every section of a department for date (today when zero).
// Ranges are fetched concurrently and each section succeeds or fails on its
// own; a failed section is marked unavailable.
func (s *Service) Dashboard(ctx context.Context, id string, date time.Time) (model.Dashboard, error) {
	dept, err := s.department(id)
	if err != nil {
		return model.Dashboard{}, err
	}
	date = s.day(date)

	ranges := make([]string, 0, len(dept.Sections))
	for _, sec := range dept.Sections {
		ranges = append(ranges, sec.A1(date))
	}
	fetched := s.fetchAll(ctx, dept.SpreadsheetID, ranges, false)

	sections := make([]model.Section, len(dept.Sections))
	for i, sec := range dept.Sections {
		sections[i] = s.build(ctx, dept, sec, fetched[sec.A1(date)], date, true)
	}
	return model.Dashboard{
		Department:  dept.ID,
		Name:        dept.Name,
		Date:        date.Format(model.DateLayout),
		Sections:    sections,
		GeneratedAt: s.now(),
	}, nil
}

// Snapshot loads the department's first snapshot section.
func (s *Service) Snapshot(ctx context.Context, id string, date time.Time) (model.Section, error) {
	dept, err := s.department(id)
	if err != nil {
		return model.Section{}, err
	}
	for _, sec := range dept.Sections {
		if sec.Kind == model.KindSnapshot {
			return s.section(ctx, dept, sec, s.day(date), true)
		}
	}
	return model.Section{}, fmt.Errorf("%w: no snapshot in %q", ErrUnknownSection, id)
}

// Series loads one trendline clipped to [from, to]. With both bounds zero
// the section's own day window ending today applies.
func (s *Service) Series(ctx context.Context, id, sectionID string, from, to time.Time) (model.Section, error) {
	dept, sec, err := s.lookup(id, sectionID)
	if err != nil {
		return model.Section{}, err
	}
	if sec.Kind != model.KindSeries && sec.Kind != model.KindWideSeries {
		return model.Section{}, fmt.Errorf("%w: %q is a %s", ErrWrongKind, sectionID, sec.Kind)
	}
	bounded := !from.IsZero() || !to.IsZero()
	out, err := s.section(ctx, dept, sec, s.day(to), !bounded)
	if err != nil || !bounded || out.Series == nil {
		return out, err
	}
	if !from.IsZero() {
		from = s.day(from)
	}
	if !to.IsZero() {
		to = s.day(to)
	}
	clipped := clip(*out.Series, from, to)
	out.Series = &clipped
	return out, nil
}

// Table loads one table section for today.
func (s *Service) Table(ctx context.Context, id, sectionID string) (model.Section, error) {
	dept, sec, err := s.lookup(id, sectionID)
	if err != nil {
		return model.Section{}, err
	}
	if sec.Kind != model.KindTable {
		return model.Section{}, fmt.Errorf("%w: %q is a %s", ErrWrongKind, sectionID, sec.Kind)
	}
	return s.section(ctx, dept, sec, s.Today(), true)
}

func (s *Service) lookup(id, sectionID string) (catalog.Department, catalog.Section, error) {
	dept, err := s.department(id)
	if err != nil {
		return catalog.Department{}, catalog.Section{}, err
	}
	sec, err := dept.Section(sectionID)
	if err != nil {
		return catalog.Department{}, catalog.Section{}, err
	}
	return dept, sec, nil
}

func (s *Service) section(ctx context.Context, dept catalog.Department, sec catalog.Section, date time.Time, window bool) (model.Section, error) {
	a1 := sec.A1(date)
	res := s.fetchAll(ctx, dept.SpreadsheetID, []string{a1}, false)[a1]
	out := s.build(ctx, dept, sec, res, date, window)
	if !out.OK() {
		return out, ErrUnavailable
	}
	return out, nil
}

// Refresh refetches every range of a department, bypassing the fresh-cache
// check, and notifies subscribers. Ranges that could not be fetched are
// reported together; the others are still cached. When no range could be
// fetched nothing changed, so subscribers are not notified.
func (s *Service) Refresh(ctx context.Context, id string) error {
	dept, err := s.department(id)
	if err != nil {
		return err
	}
	date := s.Today()
	ranges := make([]string, 0, len(dept.Sections))
	for _, sec := range dept.Sections {
		ranges = append(ranges, sec.A1(date))
	}
	fetched := s.fetchAll(ctx, dept.SpreadsheetID, ranges, true)

	var errs []error
	for _, a1 := range sortedKeys(fetched) {
		r := fetched[a1]
		switch {
		case r.err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", a1, r.err))
		case r.stale:
			errs = append(errs, fmt.Errorf("%s: %w", a1, ErrUnavailable))
		}
	}

	if len(fetched) > 0 && len(errs) == len(fetched) {
		s.logger.Warn(ctx, "refresh fetched nothing", logger.String("department", dept.ID))
		return errors.Join(errs...)
	}

	at := s.now()
	s.mu.Lock()
	s.lastRefresh[dept.ID] = at
	s.mu.Unlock()

	notice := model.Notice{
		Type:       model.NoticeRefreshed,
		Department: dept.ID,
		Date:       date.Format(model.DateLayout),
		At:         at,
	}
	for _, n := range s.notifiers {
		n.Notify(ctx, notice)
	}
	return errors.Join(errs...)
}

// RequestRefresh queues a refresh of a department. A department that already
// has a job queued is reported as a duplicate; a full queue as backpressure.
func (s *Service) RequestRefresh(ctx context.Context, id, reason string) (RefreshResult, error) {
	if _, err := s.department(id); err != nil {
		return "", err
	}
	s.mu.RLock()
	q, started := s.queue, s.started
	s.mu.RUnlock()
	if !started {
		return "", ErrNotStarted
	}

	if s.deduper.SeenAndRecord(ctx, id) {
		return RefreshDuplicate, nil
	}
	err := q.Enqueue(ctx, model.RefreshJob{Department: id, Reason: reason, Requested: s.now()})
	if err == nil {
		return RefreshAccepted, nil
	}
	s.deduper.Unrecord(ctx, id)
	if errors.Is(err, eventqueue.ErrFull) {
		s.logger.Warn(ctx, "refresh queue full", logger.String("department", id))
		return RefreshBackpressure, nil
	}
	return "", fmt.Errorf("enqueue refresh %s: %w", id, err)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	last := make(map[string]time.Time, len(s.lastRefresh))
	for k, v := range s.lastRefresh {
		last[k] = v
	}
	stats := map[string]interface{}{
		"started":         s.started,
		"departments":     len(s.Departments(ctx)),
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"cacheTTL":        s.cacheTTL.String(),
		"refreshInterval": s.refreshInterval.String(),
		"timezone":        s.loc.String(),
		"pending":         s.deduper.Pending(),
		"lastRefresh":     last,
	}
	if s.cache != nil {
		if n, err := s.cache.Count(ctx); err == nil {
			stats["cacheEntries"] = n
			metrics.UpdateCacheEntries(n)
		}
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["workerCount"] = s.pool.Size()
	}
	return stats
}

// fetchResult is one range as served to the builders.
type fetchResult struct {
	values    sheets.ValueRange
	fetchedAt time.Time
	stale     bool
	err       error
}

// fetchAll fetches distinct ranges concurrently and waits for all of them.
func (s *Service) fetchAll(ctx context.Context, spreadsheetID string, ranges []string, force bool) map[string]fetchResult {
	distinct := make([]string, 0, len(ranges))
	seen := make(map[string]struct{}, len(ranges))
	for _, a1 := range ranges {
		if _, dup := seen[a1]; dup {
			continue
		}
		seen[a1] = struct{}{}
		distinct = append(distinct, a1)
	}

	results := make([]fetchResult, len(distinct))
	var wg sync.WaitGroup
	for i, a1 := range distinct {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.fetchRange(ctx, spreadsheetID, a1, force)
		}()
	}
	wg.Wait()

	out := make(map[string]fetchResult, len(distinct))
	for i, a1 := range distinct {
		out[a1] = results[i]
	}
	return out
}

// fetchRange serves a fresh cache hit, else calls the API and caches the
// answer. When the API fails, any cached copy is served as stale.
func (s *Service) fetchRange(ctx context.Context, spreadsheetID, a1 string, force bool) fetchResult {
	key := spreadsheetID + "|" + a1
	var cached *repository.Entry
	if s.cache != nil {
		e, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			cached = &e
			if !force && e.Age(s.now()) < s.cacheTTL {
				if vr, err := decodeRange(e.Payload); err == nil {
					metrics.RecordCacheLookup("hit")
					return fetchResult{values: vr, fetchedAt: e.FetchedAt}
				}
			}
		case !errors.Is(err, repository.ErrNotFound):
			s.logger.Warn(ctx, "cache read failed", logger.String("key", key), logger.Error(err))
		}
		metrics.RecordCacheLookup("miss")
	}

	fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	vr, err := s.fetcher.Get(fctx, spreadsheetID, a1)
	cancel()
	if err != nil {
		if cached != nil {
			if old, derr := decodeRange(cached.Payload); derr == nil {
				metrics.RecordCacheLookup("stale")
				s.logger.Warn(ctx, "serving stale range",
					logger.String("range", a1),
					logger.Duration("age", cached.Age(s.now())),
					logger.Error(err))
				return fetchResult{values: old, fetchedAt: cached.FetchedAt, stale: true}
			}
		}
		s.logger.Warn(ctx, "range unavailable", logger.String("range", a1), logger.Error(err))
		return fetchResult{err: err}
	}

	if s.cache != nil {
		if payload, err := json.Marshal(vr); err == nil {
			if err := s.cache.Put(ctx, key, payload); err != nil {
				s.logger.Warn(ctx, "cache write failed", logger.String("key", key), logger.Error(err))
			}
		}
	}
	return fetchResult{values: vr, fetchedAt: s.now()}
}

func decodeRange(payload []byte) (sheets.ValueRange, error) {
	var vr sheets.ValueRange
	if err := json.Unmarshal(payload, &vr); err != nil {
		return sheets.ValueRange{}, fmt.Errorf("%w: %w", repository.ErrCorrupt, err)
	}
	return vr, nil
}

func sortedKeys(m map[string]fetchResult) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package sheets is a read-only client for the Google Sheets values API.
//
// Calls are retried with exponential backoff on rate limits (429), server
// errors and network failures, and may be routed through CORS-style proxies.
// A route that fails at the network or 5xx level is rotated out in favor of
// the next one for the following attempt.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/okian/botpulse/pkg/logger"
	"github.com/okian/botpulse/pkg/metrics"
)

// Defaults.
const (
	DefaultBaseURL        = "https://sheets.googleapis.com"
	defaultMaxAttempts    = 5
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 8 * time.Second
	defaultMaxRetryAfter  = 30 * time.Second
	defaultTimeout        = 15 * time.Second
	maxErrorBody          = 512
)

// ValueRange is one range of formatted cell text.
type ValueRange struct {
	Range          string     `json:"range"`
	MajorDimension string     `json:"majorDimension"`
	Values         [][]string `json:"values"`
}

// Client fetches value ranges.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	routes         []route
	noDirect       bool
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxRetryAfter  time.Duration
	log            logger.Logger

	// next is the index of the route the next attempt starts on.
	next  atomic.Int64
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a client. With no options it calls the public API directly.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:        DefaultBaseURL,
		httpClient:     &http.Client{Timeout: defaultTimeout},
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		maxRetryAfter:  defaultMaxRetryAfter,
		sleep:          sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	if !c.noDirect || len(c.routes) == 0 {
		c.routes = append([]route{directRoute()}, c.routes...)
	}
	if c.log == nil {
		c.log = logger.Nop()
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	return c
}

// Get fetches one A1 range.
func (c *Client) Get(ctx context.Context, spreadsheetID, a1 string) (ValueRange, error) {
	target := c.baseURL + "/v4/spreadsheets/" + url.PathEscape(spreadsheetID) +
		"/values/" + url.PathEscape(a1) + "?" + c.query(nil).Encode()

	var vr rawRange
	if err := c.fetch(ctx, target, &vr); err != nil {
		return ValueRange{}, fmt.Errorf("get %s: %w", a1, err)
	}
	return vr.normalize(), nil
}

// BatchGet fetches several ranges of one spreadsheet in a single call.
// Results are in request order.
func (c *Client) BatchGet(ctx context.Context, spreadsheetID string, ranges ...string) ([]ValueRange, error) {
	if len(ranges) == 0 {
		return []ValueRange{}, nil
	}
	target := c.baseURL + "/v4/spreadsheets/" + url.PathEscape(spreadsheetID) +
		"/values:batchGet?" + c.query(url.Values{"ranges": ranges}).Encode()

	var resp struct {
		ValueRanges []rawRange `json:"valueRanges"`
	}
	if err := c.fetch(ctx, target, &resp); err != nil {
		return nil, fmt.Errorf("batch get %d ranges: %w", len(ranges), err)
	}
	out := make([]ValueRange, len(ranges))
	for i := range out {
		out[i] = ValueRange{Range: ranges[i], Values: [][]string{}}
		if i < len(resp.ValueRanges) {
			out[i] = resp.ValueRanges[i].normalize()
		}
	}
	return out, nil
}

func (c *Client) query(extra url.Values) url.Values {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	q.Set("valueRenderOption", "FORMATTED_VALUE")
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	return q
}

// attempt outcome labels.
const (
	outcomeOK          = "ok"
	outcomeRateLimited = "rate_limited"
	outcomeServerError = "server_error"
	outcomeNetwork     = "network"
	outcomePermanent   = "permanent"
)

func (c *Client) fetch(ctx context.Context, target string, into any) error {
	start := time.Now()
	defer func() {
		metrics.RecordSheetFetchDuration(float64(time.Since(start).Milliseconds()))
	}()

	var (
		lastErr    error
		retryAfter time.Duration
	)
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt-1, retryAfter)
			c.log.Debug(ctx, "retrying sheets call",
				logger.Int("attempt", attempt+1),
				logger.Duration("wait", wait),
				logger.Error(lastErr))
			if err := c.sleep(ctx, wait); err != nil {
				return fmt.Errorf("%w: %w", ErrTransient, err)
			}
		}
		retryAfter = 0

		idx := int(c.next.Load() % int64(len(c.routes)))
		r := c.routes[idx]
		outcome, after, err := c.try(ctx, r, target, into)
		metrics.RecordSheetFetch(r.name, outcome)
		switch outcome {
		case outcomeOK:
			return nil
		case outcomePermanent:
			metrics.RecordErrorByComponent("sheets", outcome)
			return fmt.Errorf("%w: %w", ErrPermanent, err)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrTransient, ctx.Err())
		}
		lastErr = err
		retryAfter = after
		metrics.RecordSheetRetry(outcome)
		if outcome == outcomeNetwork || outcome == outcomeServerError {
			c.next.CompareAndSwap(int64(idx), int64((idx+1)%len(c.routes)))
		}
	}
	metrics.RecordErrorByComponent("sheets", "exhausted")
	c.log.Warn(ctx, "sheets call failed after retries",
		logger.Int("attempts", c.maxAttempts), logger.Error(lastErr))
	return fmt.Errorf("%w: %w", ErrTransient, lastErr)
}

// try makes one HTTP call and classifies the result.
func (c *Client) try(ctx context.Context, r route, target string, into any) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.wrap(target), nil)
	if err != nil {
		return outcomePermanent, 0, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return outcomeNetwork, 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return outcomeRateLimited, parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			&StatusError{Code: resp.StatusCode}
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusRequestTimeout:
		return outcomeServerError, 0, statusError(resp)
	case resp.StatusCode >= http.StatusBadRequest:
		return outcomePermanent, 0, statusError(resp)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return outcomePermanent, 0, statusError(resp)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(into); err != nil {
		// A proxy answering 200 with an HTML error page is a route failure.
		return outcomeNetwork, 0, fmt.Errorf("decode response: %w", err)
	}
	return outcomeOK, 0, nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// backoff returns initial*2^n capped at max, or retryAfter when that is
// longer. retryAfter itself is capped at maxRetryAfter.
func (c *Client) backoff(n int, retryAfter time.Duration) time.Duration {
	retryAfter = min(retryAfter, c.maxRetryAfter)
	d := c.initialBackoff
	for i := 0; i < n && d < c.maxBackoff; i++ {
		d *= 2
	}
	if d > c.maxBackoff {
		d = c.maxBackoff
	}
	if retryAfter > d {
		return retryAfter
	}
	return d
}

// parseRetryAfter reads delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// rawRange is a value range as the API sends it: cells may be JSON strings,
// numbers or booleans.
type rawRange struct {
	Range          string  `json:"range"`
	MajorDimension string  `json:"majorDimension"`
	Values         [][]any `json:"values"`
}

func (r rawRange) normalize() ValueRange {
	out := ValueRange{Range: r.Range, MajorDimension: r.MajorDimension, Values: make([][]string, len(r.Values))}
	for i, row := range r.Values {
		line := make([]string, len(row))
		for j, v := range row {
			line[j] = cellText(v)
		}
		out.Values[i] = line
	}
	return out
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// IsPermanent reports whether err will not go away on retry.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

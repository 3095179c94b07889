package sheets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// newTestClient records sleeps instead of waiting.
func newTestClient(opts ...Option) (*Client, *[]time.Duration) {
	c := New(opts...)
	var mu sync.Mutex
	slept := []time.Duration{}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		slept = append(slept, d)
		return ctx.Err()
	}
	return c, &slept
}

func TestGet(t *testing.T) {
	Convey("Given a Sheets API stub", t, func() {
		var gotPath, gotQuery string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotQuery = r.URL.RawQuery
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"range":"'Oct 19'!A1:B3","majorDimension":"ROWS",
				"values":[["Conversations","1,204"],["Rate",3.5],["Live",true,null]]}`))
		}))
		defer srv.Close()

		c, _ := newTestClient(WithBaseURL(srv.URL), WithAPIKey("k123"))

		Convey("When fetching a quoted tab range", func() {
			vr, err := c.Get(context.Background(), "sheet-1", "'Oct 19'!A1:B3")

			Convey("Then the request follows the values API shape", func() {
				So(err, ShouldBeNil)
				So(gotPath, ShouldEqual, "/v4/spreadsheets/sheet-1/values/'Oct 19'!A1:B3")
				q, _ := url.ParseQuery(gotQuery)
				So(q.Get("key"), ShouldEqual, "k123")
				So(q.Get("valueRenderOption"), ShouldEqual, "FORMATTED_VALUE")
			})

			Convey("Then cells are coerced to text", func() {
				So(vr.MajorDimension, ShouldEqual, "ROWS")
				So(vr.Values, ShouldResemble, [][]string{
					{"Conversations", "1,204"},
					{"Rate", "3.5"},
					{"Live", "TRUE", ""},
				})
			})
		})
	})
}

func TestBatchGet(t *testing.T) {
	Convey("Given a batchGet stub", t, func(cc C) {
		var ranges []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cc.So(strings.HasSuffix(r.URL.Path, "/values:batchGet"), ShouldBeTrue)
			ranges = r.URL.Query()["ranges"]
			_, _ = w.Write([]byte(`{"spreadsheetId":"s","valueRanges":[{"range":"A!A1","values":[["1"]]}]}`))
		}))
		defer srv.Close()
		c, _ := newTestClient(WithBaseURL(srv.URL))

		Convey("Then ranges are sent and missing results come back empty", func() {
			out, err := c.BatchGet(context.Background(), "s", "A!A1", "B!A1")
			So(err, ShouldBeNil)
			So(ranges, ShouldResemble, []string{"A!A1", "B!A1"})
			So(len(out), ShouldEqual, 2)
			So(out[0].Values, ShouldResemble, [][]string{{"1"}})
			So(out[1].Range, ShouldEqual, "B!A1")
			So(out[1].Values, ShouldBeEmpty)
		})

		Convey("Then no ranges makes no call", func() {
			out, err := c.BatchGet(context.Background(), "s")
			So(err, ShouldBeNil)
			So(out, ShouldBeEmpty)
		})
	})
}

func TestRetry(t *testing.T) {
	Convey("Given an API that rate limits before answering", t, func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := calls.Add(1)
			if n <= 3 {
				if n == 3 {
					w.Header().Set("Retry-After", "20")
				}
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = w.Write([]byte(`{"values":[["ok"]]}`))
		}))
		defer srv.Close()

		c, slept := newTestClient(WithBaseURL(srv.URL), WithBackoff(100*time.Millisecond, 10*time.Second))
		vr, err := c.Get(context.Background(), "s", "A1")

		Convey("Then it backs off exponentially and honors Retry-After", func() {
			So(err, ShouldBeNil)
			So(vr.Values[0][0], ShouldEqual, "ok")
			So(calls.Load(), ShouldEqual, 4)
			So(*slept, ShouldResemble, []time.Duration{
				100 * time.Millisecond, 200 * time.Millisecond, 20 * time.Second,
			})
		})
	})

	Convey("Given an API that always fails with 503", t, func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "backend down", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		c, slept := newTestClient(WithBaseURL(srv.URL), WithMaxAttempts(4), WithBackoff(time.Second, 3*time.Second))
		_, err := c.Get(context.Background(), "s", "A1")

		Convey("Then it gives up with a transient error and caps the delay", func() {
			So(errors.Is(err, ErrTransient), ShouldBeTrue)
			So(IsPermanent(err), ShouldBeFalse)
			var se *StatusError
			So(errors.As(err, &se), ShouldBeTrue)
			So(se.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(calls.Load(), ShouldEqual, 4)
			So(*slept, ShouldResemble, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second})
		})
	})

	Convey("Given permanent failures", t, func() {
		for _, code := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound} {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, `{"error":{"message":"Unable to parse range"}}`, code)
			}))
			c, slept := newTestClient(WithBaseURL(srv.URL))
			_, err := c.Get(context.Background(), "s", "Nope!A1")
			srv.Close()

			So(errors.Is(err, ErrPermanent), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "Unable to parse range")
			So(calls.Load(), ShouldEqual, 1)
			So(*slept, ShouldBeEmpty)
		}
	})

	Convey("Given a cancelled context", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()
		c, _ := newTestClient(WithBaseURL(srv.URL))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.Get(ctx, "s", "A1")
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
		So(errors.Is(err, ErrTransient), ShouldBeTrue)
		So(IsPermanent(err), ShouldBeFalse)
	})

	Convey("Given an API that asks for a day-long pause", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "86400")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		Convey("When the default cap applies", func() {
			c, slept := newTestClient(WithBaseURL(srv.URL), WithMaxAttempts(3), WithBackoff(10*time.Millisecond, 50*time.Millisecond))
			_, err := c.Get(context.Background(), "s", "A1")

			Convey("Then every wait is held to the cap", func() {
				So(errors.Is(err, ErrTransient), ShouldBeTrue)
				So(*slept, ShouldResemble, []time.Duration{defaultMaxRetryAfter, defaultMaxRetryAfter})
			})
		})

		Convey("When a tighter cap is configured", func() {
			c, slept := newTestClient(WithBaseURL(srv.URL), WithMaxAttempts(2), WithMaxRetryAfter(2*time.Second))
			_, err := c.Get(context.Background(), "s", "A1")
			So(err, ShouldNotBeNil)
			So(*slept, ShouldResemble, []time.Duration{2 * time.Second})
		})
	})
}

func TestProxyRoutes(t *testing.T) {
	Convey("Given a broken direct route and a working proxy", t, func() {
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer api.Close()

		var proxied atomic.Int32
		var target string
		proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proxied.Add(1)
			target = r.URL.Query().Get("url")
			_, _ = w.Write([]byte(`{"values":[["via proxy"]]}`))
		}))
		defer proxy.Close()

		c, _ := newTestClient(WithBaseURL(api.URL), WithProxies(proxy.URL+"/raw?url={url}"))

		Convey("When fetching", func() {
			vr, err := c.Get(context.Background(), "s", "A1")

			Convey("Then the failing route is rotated out", func() {
				So(err, ShouldBeNil)
				So(vr.Values[0][0], ShouldEqual, "via proxy")
				So(proxied.Load(), ShouldEqual, 1)
				So(target, ShouldStartWith, api.URL+"/v4/spreadsheets/s/values/A1?")
			})

			Convey("Then the next call starts on the proxy", func() {
				_, err := c.Get(context.Background(), "s", "A1")
				So(err, ShouldBeNil)
				So(proxied.Load(), ShouldEqual, 2)
			})
		})
	})

	Convey("Given route templates", t, func() {
		r := proxyRoute("https://cors.example.com/?u={url}")
		So(r.name, ShouldEqual, "cors.example.com")
		So(r.wrap("https://a/b?c=d"), ShouldEqual, "https://cors.example.com/?u=https%3A%2F%2Fa%2Fb%3Fc%3Dd")

		p := proxyRoute("https://prefix.example.com/")
		So(p.wrap("https://a/b"), ShouldEqual, "https://prefix.example.com/https://a/b")

		c := New(WithProxies("https://p.example/"), WithoutDirect())
		So(len(c.routes), ShouldEqual, 1)
		So(c.routes[0].name, ShouldEqual, "p.example")
	})

	Convey("Given a proxy that answers 200 with HTML", t, func() {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				_, _ = w.Write([]byte("<html>quota</html>"))
				return
			}
			_, _ = w.Write([]byte(`{"values":[]}`))
		}))
		defer srv.Close()
		c, slept := newTestClient(WithBaseURL(srv.URL))
		_, err := c.Get(context.Background(), "s", "A1")
		So(err, ShouldBeNil)
		So(len(*slept), ShouldEqual, 1)
	})
}

func TestRetryAfter(t *testing.T) {
	Convey("Given Retry-After headers", t, func() {
		now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		So(parseRetryAfter("7", now), ShouldEqual, 7*time.Second)
		So(parseRetryAfter("", now), ShouldEqual, 0)
		So(parseRetryAfter("soon", now), ShouldEqual, 0)
		So(parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now), ShouldEqual, 30*time.Second)
		So(parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now), ShouldEqual, 0)
	})
}

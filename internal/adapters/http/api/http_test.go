package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/xuri/excelize/v2"

	"github.com/okian/botpulse/internal/adapters/http/api"
	service "github.com/okian/botpulse/internal/app"
	"github.com/okian/botpulse/internal/domain/cells"
	"github.com/okian/botpulse/internal/domain/model"
)

// mockDeps serves a single "support" department.
type mockDeps struct {
	refresh    service.RefreshResult
	refreshErr error
	lastFrom   time.Time
	lastTo     time.Time
	lastDate   time.Time
}

func (m *mockDeps) Location() *time.Location { return time.UTC }

func (m *mockDeps) Departments(context.Context) []model.Department {
	return []model.Department{{ID: "support", Name: "Customer Support", SpreadsheetID: "sheet-1",
		Sections: []model.SectionRef{{ID: "today", Kind: model.KindSnapshot}}}}
}

func (m *mockDeps) check(dept string) error {
	if dept != "support" {
		return fmt.Errorf("%w: %q", service.ErrUnknownDepartment, dept)
	}
	return nil
}

func snapshotSection() model.Section {
	snap := model.NewSnapshot()
	snap.Set("Conversations", cells.Parse("1,204"))
	return model.Section{ID: "today", Title: "Today", Kind: model.KindSnapshot, Status: model.StatusOK, Snapshot: &snap}
}

func (m *mockDeps) Dashboard(_ context.Context, dept string, date time.Time) (model.Dashboard, error) {
	if err := m.check(dept); err != nil {
		return model.Dashboard{}, err
	}
	m.lastDate = date
	return model.Dashboard{
		Department: "support",
		Name:       "Customer Support",
		Date:       "2024-10-19",
		Sections: []model.Section{
			snapshotSection(),
			{ID: "spend", Title: "Spend", Kind: model.KindSnapshot, Status: model.StatusUnavailable, Error: model.Unavailable},
		},
	}, nil
}

func (m *mockDeps) Snapshot(_ context.Context, dept string, date time.Time) (model.Section, error) {
	if err := m.check(dept); err != nil {
		return model.Section{}, err
	}
	m.lastDate = date
	return snapshotSection(), nil
}

func (m *mockDeps) Series(_ context.Context, dept, section string, from, to time.Time) (model.Section, error) {
	if err := m.check(dept); err != nil {
		return model.Section{}, err
	}
	m.lastFrom, m.lastTo = from, to
	switch section {
	case "daily":
		return model.Section{ID: "daily", Kind: model.KindSeries, Status: model.StatusOK, Series: &model.Series{Fields: []string{}, Points: []model.Point{}}}, nil
	case "broken":
		return model.Section{ID: "broken", Status: model.StatusUnavailable, Error: model.Unavailable}, service.ErrUnavailable
	case "today":
		return model.Section{}, fmt.Errorf("%w: today is a snapshot", service.ErrWrongKind)
	}
	return model.Section{}, fmt.Errorf("%w: %q", service.ErrUnknownSection, section)
}

func (m *mockDeps) Table(_ context.Context, dept, section string) (model.Section, error) {
	if err := m.check(dept); err != nil {
		return model.Section{}, err
	}
	if section != "intents" {
		return model.Section{}, fmt.Errorf("%w: %q", service.ErrUnknownSection, section)
	}
	return model.Section{ID: "intents", Kind: model.KindTable, Status: model.StatusOK,
		Table: &model.Table{Header: []string{"Intent", "Count"}, Rows: [][]string{{"Billing", "40"}}}}, nil
}

func (m *mockDeps) SourceURL(dept string) (string, error) {
	if err := m.check(dept); err != nil {
		return "", err
	}
	return "https://docs.google.com/spreadsheets/d/sheet-1/edit", nil
}

func (m *mockDeps) RequestRefresh(_ context.Context, dept, _ string) (service.RefreshResult, error) {
	if err := m.check(dept); err != nil {
		return "", err
	}
	return m.refresh, m.refreshErr
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func do(h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) errorBody {
	var e errorBody
	_ = json.Unmarshal(w.Body.Bytes(), &e)
	return e
}

func newRouter(deps *mockDeps, opts ...api.ServerOption) http.Handler {
	stats := &mockStatsProvider{stats: map[string]interface{}{"departments": 1}}
	return api.NewServer(deps, stats, opts...).NewRouter(context.Background())
}

func TestServer_Routes(t *testing.T) {
	Convey("Given a router with every route registered", t, func() {
		deps := &mockDeps{refresh: service.RefreshAccepted}
		live := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
		r := newRouter(deps, api.WithLive(live))

		Convey("Health serves the metrics registry", func() {
			w := do(r, http.MethodGet, "/healthz", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Stats merges service and runtime stats", func() {
			w := do(r, http.MethodGet, "/stats", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			var body map[string]interface{}
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body["departments"], ShouldEqual, float64(1))
			So(body, ShouldContainKey, "runtime")
		})

		Convey("The dashboard page is served", func() {
			w := do(r, http.MethodGet, "/dashboard", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
			So(w.Body.String(), ShouldContainSubstring, "/api/departments")
		})

		Convey("The websocket hub is mounted at /ws", func() {
			w := do(r, http.MethodGet, "/ws", nil)
			So(w.Code, ShouldEqual, http.StatusTeapot)
		})

		Convey("Unknown paths get the JSON envelope", func() {
			w := do(r, http.MethodGet, "/nope", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decodeError(w).Code, ShouldEqual, "not_found")
		})

		Convey("Wrong methods are refused", func() {
			w := do(r, http.MethodGet, "/api/departments/support/refresh", nil)
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestServer_RequestID(t *testing.T) {
	Convey("Given the request id middleware", t, func() {
		r := newRouter(&mockDeps{})

		Convey("A caller's id is echoed", func() {
			w := do(r, http.MethodGet, "/api/departments", http.Header{"X-Request-Id": {"abc-123"}})
			So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "abc-123")
		})

		Convey("A missing id is generated", func() {
			w := do(r, http.MethodGet, "/api/departments", nil)
			So(len(w.Header().Get(api.RequestIDHeader)), ShouldEqual, 36)
		})

		Convey("The id reaches the handler context", func() {
			var seen string
			h := api.RequestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, req *http.Request) {
				seen = api.RequestID(req.Context())
			}))
			do(h, http.MethodGet, "/", http.Header{"X-Request-Id": {"xyz"}})
			So(seen, ShouldEqual, "xyz")
		})
	})
}

func TestDepartmentHandler(t *testing.T) {
	Convey("Given the department routes", t, func() {
		deps := &mockDeps{}
		r := newRouter(deps)

		Convey("The catalog is listed", func() {
			w := do(r, http.MethodGet, "/api/departments", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			var ds []model.Department
			So(json.Unmarshal(w.Body.Bytes(), &ds), ShouldBeNil)
			So(ds[0].ID, ShouldEqual, "support")
		})

		Convey("A dashboard with an unavailable section is still a 200", func() {
			w := do(r, http.MethodGet, "/api/departments/support/dashboard?date=2024-10-18", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			var d model.Dashboard
			So(json.Unmarshal(w.Body.Bytes(), &d), ShouldBeNil)
			So(len(d.Sections), ShouldEqual, 2)
			So(d.Sections[1].Error, ShouldEqual, "data not available")
			So(deps.lastDate.Equal(time.Date(2024, 10, 18, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
		})

		Convey("A malformed date is a bad request", func() {
			w := do(r, http.MethodGet, "/api/departments/support/dashboard?date=18/10/2024", nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			e := decodeError(w)
			So(e.Code, ShouldEqual, "bad_request")
			So(e.Message, ShouldContainSubstring, "YYYY-MM-DD")
		})

		Convey("An unknown department is not found", func() {
			w := do(r, http.MethodGet, "/api/departments/marketing/dashboard", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decodeError(w).Code, ShouldEqual, "not_found")
		})

		Convey("The snapshot is returned", func() {
			w := do(r, http.MethodGet, "/api/departments/support/snapshot", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"Conversations"`)
			So(deps.lastDate.IsZero(), ShouldBeTrue)
		})

		Convey("Series bounds are parsed", func() {
			w := do(r, http.MethodGet, "/api/departments/support/series/daily?from=2024-10-01&to=2024-10-19", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastFrom.Day(), ShouldEqual, 1)
			So(deps.lastTo.Day(), ShouldEqual, 19)
		})

		Convey("Inverted series bounds are a bad request", func() {
			w := do(r, http.MethodGet, "/api/departments/support/series/daily?from=2024-10-19&to=2024-10-01", nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A section of another kind is not found", func() {
			w := do(r, http.MethodGet, "/api/departments/support/series/today", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("An unavailable section is a 503 with the generic message", func() {
			w := do(r, http.MethodGet, "/api/departments/support/series/broken", nil)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			e := decodeError(w)
			So(e.Code, ShouldEqual, "unavailable")
			So(e.Message, ShouldEqual, "data not available")
		})

		Convey("Tables are returned", func() {
			w := do(r, http.MethodGet, "/api/departments/support/tables/intents", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "Billing")
			w = do(r, http.MethodGet, "/api/departments/support/tables/nope", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("The export is a workbook", func() {
			w := do(r, http.MethodGet, "/api/departments/support/export.xlsx", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Disposition"), ShouldContainSubstring, "support-2024-10-19.xlsx")
			f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
			So(err, ShouldBeNil)
			defer f.Close()
			So(f.GetSheetList(), ShouldContain, "Snapshot")
		})

		Convey("Source redirects to the spreadsheet", func() {
			w := do(r, http.MethodGet, "/api/departments/support/source", nil)
			So(w.Code, ShouldEqual, http.StatusFound)
			So(w.Header().Get("Location"), ShouldEqual, "https://docs.google.com/spreadsheets/d/sheet-1/edit")
		})
	})
}

func TestRefreshHandler(t *testing.T) {
	Convey("Given the refresh route", t, func() {
		deps := &mockDeps{}
		r := newRouter(deps)

		Convey("An accepted request is a 202", func() {
			deps.refresh = service.RefreshAccepted
			w := do(r, http.MethodPost, "/api/departments/support/refresh", nil)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(w.Body.String(), ShouldContainSubstring, `"accepted"`)
		})

		Convey("A duplicate is a 200", func() {
			deps.refresh = service.RefreshDuplicate
			w := do(r, http.MethodPost, "/api/departments/support/refresh", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"duplicate":true`)
		})

		Convey("Backpressure is a 429", func() {
			deps.refresh = service.RefreshBackpressure
			w := do(r, http.MethodPost, "/api/departments/support/refresh", nil)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(decodeError(w).Code, ShouldEqual, "backpressure")
		})

		Convey("A stopped service is unavailable", func() {
			deps.refreshErr = service.ErrNotStarted
			w := do(r, http.MethodPost, "/api/departments/support/refresh", nil)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("Unknown departments are not found", func() {
			w := do(r, http.MethodPost, "/api/departments/nope/refresh", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given API errors", t, func() {
		cause := errors.New("boom")

		Convey("WrapKind matches both kind and cause", func() {
			err := api.WrapKind("api.op", api.ErrBadRequest, cause)
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: bad request: boom")
		})

		Convey("NewKind carries only the kind", func() {
			err := api.NewKind("api.op", api.ErrBackpressure)
			So(errors.Is(err, api.ErrBackpressure), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: backpressure")
		})

		Convey("Wrap of nil is nil", func() {
			So(api.Wrap("api.op", nil), ShouldBeNil)
			So(api.Wrap("api.op", cause).Error(), ShouldEqual, "api.op: boom")
		})
	})
}

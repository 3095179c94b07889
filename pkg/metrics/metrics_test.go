package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "botpulse")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("sheets"),
				WithMetricPrefix("x_"),
				WithHistogramBuckets([]float64{1, 10}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.sheetFetches.WithLabelValues("direct", "ok").Inc()

			Convey("Then names and labels reflect the options", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_sheets_x_sheet_fetches_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When registering twice on the same registry", func() {
			registry := prometheus.NewRegistry()
			_ = NewManager(WithPrometheusRegistry(registry))

			Convey("Then promauto panics on the duplicate", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording upstream metrics", func() {
			before := gathered("botpulse_dashboard_sheet_retries_total")
			RecordSheetRetry("rate_limit")
			RecordSheetFetch("direct", "ok")
			RecordSheetFetchDuration(120)

			Convey("Then the counters move", func() {
				So(gathered("botpulse_dashboard_sheet_retries_total"), ShouldEqual, before+1)
			})
		})

		Convey("When recording pipeline gauges", func() {
			UpdateQueueSize(3)
			UpdateQueueCapacity(64)
			UpdateWorkerCount(4)
			UpdateLiveClients(2)
			UpdateCacheEntries(10)

			Convey("Then gauges hold the last value", func() {
				So(gathered("botpulse_dashboard_refresh_queue_size"), ShouldEqual, 3)
				So(gathered("botpulse_dashboard_refresh_queue_capacity"), ShouldEqual, 64)
				So(gathered("botpulse_dashboard_refresh_worker_count"), ShouldEqual, 4)
				So(gathered("botpulse_dashboard_live_clients"), ShouldEqual, 2)
				So(gathered("botpulse_dashboard_cache_entries"), ShouldEqual, 10)
			})
		})

		Convey("When recording everything else", func() {
			So(func() {
				RecordCacheLookup("hit")
				RecordParseFallback("percent_count")
				RecordSectionOutcome("snapshot", "ok")
				RecordRefresh("ok", 250)
				RecordQueueRejected("full")
				RecordCatalogReload("ok")
				RecordHTTPRequest("dashboard", "GET", "200")
				RecordHTTPRequestDuration("dashboard", "GET", "200", 12)
				RecordErrorByComponent("sheets", "rate_limit")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.4)
			}, ShouldNotPanic)
		})

		Convey("When gathering the custom registry", func() {
			RecordCacheLookup("miss")
			families, err := GetRegistry().Gather()

			Convey("Then botpulse metrics are exposed", func() {
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(strings.Join(names, ","), ShouldContainSubstring, "botpulse_dashboard_cache_lookups_total")
			})
		})
	})
}

// gathered sums every sample of a counter or gauge family in the custom registry.
func gathered(name string) float64 {
	families, err := GetRegistry().Gather()
	if err != nil {
		return -1
	}
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue() + m.GetGauge().GetValue()
		}
	}
	return total
}

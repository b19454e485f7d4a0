package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating a manager with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("x_"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(true),
				WithRefreshInterval(5*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the metrics should be registered under the custom names", func() {
				So(manager, ShouldNotBeNil)
				manager.framesRead.WithLabelValues("entry").Inc()

				families, err := registry.Gather()
				So(err, ShouldBeNil)

				found := false
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_x_frames_read_total" {
						found = true
						So(f.GetMetric()[0].GetLabel(), ShouldHaveLength, 2)
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When options are given raw values", func() {
			labels := map[string]string{"gate": "north"}
			buckets := []float64{50, 5, 500}
			manager := NewManager(
				WithMetricPrefix("cam"),
				WithCustomLabels(labels),
				WithHistogramBuckets(buckets),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)
			labels["gate"] = "south"

			Convey("Then they should be normalized and copied", func() {
				So(manager.metricPrefix, ShouldEqual, "cam_")
				So(manager.customLabels["gate"], ShouldEqual, "north")
				So(manager.histogramBuckets, ShouldResemble, []float64{5, 50, 500})
				So(buckets, ShouldResemble, []float64{50, 5, 500})
			})
		})

		Convey("When ignoring empty option values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "facegate")
				So(manager.histogramBuckets, ShouldResemble, defaultLatencyBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording recognition metrics", func() {
			before := testutil.ToFloat64(globalManager.framesRead.WithLabelValues("entry"))
			RecordFrameRead("entry")
			RecordFrameRead("entry")
			RecordFrameReadFailure("entry")
			RecordFrameProcessed("entry")
			RecordDetectionLatency("entry", 42)
			RecordDetectionFailure("exit")
			RecordMatchOutcome("entry", "known")
			RecordMatchConfidence("entry", 0.9)
			RecordPacingSleep("entry", 150)

			Convey("Then counters should advance per channel", func() {
				So(testutil.ToFloat64(globalManager.framesRead.WithLabelValues("entry")), ShouldEqual, before+2)
				So(testutil.ToFloat64(globalManager.detectionFailures.WithLabelValues("exit")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When toggling channel state", func() {
			UpdateChannelRunning("exit", true)
			So(testutil.ToFloat64(globalManager.channelRunning.WithLabelValues("exit")), ShouldEqual, 1)
			UpdateChannelRunning("exit", false)
			So(testutil.ToFloat64(globalManager.channelRunning.WithLabelValues("exit")), ShouldEqual, 0)
			So(func() { RecordChannelState("exit", "stopped") }, ShouldNotPanic)
		})

		Convey("When recording ledger and gallery metrics", func() {
			RecordAttendanceEvent("entry")
			RecordDebounceSuppressed("entry")
			UpdateLedgerRecords(7)
			RecordLedgerPersist("json", 1.5)
			RecordLedgerPersistError("json")
			UpdateLedgerDirty(true)
			UpdateGallerySize(3, 9)
			RecordGalleryReload("ok")

			Convey("Then gauges should hold the latest values", func() {
				So(testutil.ToFloat64(globalManager.ledgerRecords), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.ledgerDirty), ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.galleryIdentities), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.galleryEmbeddings), ShouldEqual, 9)
			})
		})

		Convey("When recording queue, publish and HTTP metrics", func() {
			So(func() {
				UpdateQueueCapacity(100)
				UpdateQueueSize(3)
				RecordQueueEnqueue()
				RecordQueueDropped("full")
				RecordPublish("ok", 3)
				UpdatePublisherWorkers(2)
				RecordScheduledJobError("flush")
				RecordHTTPRequest("attendance", "GET", "200")
				RecordHTTPRequestDuration("attendance", "GET", "200", 5.0)
				RecordErrorByComponent("ledger", "persist")
				RecordErrorByEndpoint("attendance", "GET", "client_error")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(10)
				RecordSystemGCPauseTime(0.4)
			}, ShouldNotPanic)
		})

		Convey("When gathering the custom registry", func() {
			RecordFrameRead("entry")
			families, err := GetRegistry().Gather()

			Convey("Then only facegate metrics should be exposed", func() {
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				for _, f := range families {
					So(strings.HasPrefix(f.GetName(), "facegate_attendance_"), ShouldBeTrue)
				}
			})
		})
	})
}

func TestMetricsEnabled(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		defer Configure(WithMetricsEnabled(true), WithRefreshInterval(defaultRefreshInterval))

		Convey("When metrics are disabled", func() {
			RecordFrameRead("exit")
			UpdateLedgerRecords(4)
			before := testutil.ToFloat64(globalManager.framesRead.WithLabelValues("exit"))

			Configure(WithMetricsEnabled(false))
			RecordFrameRead("exit")
			UpdateLedgerRecords(99)

			Convey("Then the helpers should leave every metric untouched", func() {
				So(Enabled(), ShouldBeFalse)
				So(testutil.ToFloat64(globalManager.framesRead.WithLabelValues("exit")), ShouldEqual, before)
				So(testutil.ToFloat64(globalManager.ledgerRecords), ShouldEqual, 4)
			})

			Convey("And enabling them again should resume recording", func() {
				Configure(WithMetricsEnabled(true))
				RecordFrameRead("exit")
				So(testutil.ToFloat64(globalManager.framesRead.WithLabelValues("exit")), ShouldEqual, before+1)
			})
		})

		Convey("When changing the refresh interval", func() {
			Configure(WithRefreshInterval(3 * time.Second))
			So(RefreshInterval(), ShouldEqual, 3*time.Second)

			Configure(WithRefreshInterval(0))
			So(RefreshInterval(), ShouldEqual, 3*time.Second)
		})
	})
}

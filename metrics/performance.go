package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline stages used as the "stage" label.
const (
	StageLoad   = "load"
	StageRender = "render"
	StageEncode = "encode"
	StageWrite  = "write"
)

type PerformanceMetrics struct {
	StageDuration   *prometheus.HistogramVec
	BatchDuration   *prometheus.HistogramVec
	RequestDuration *prometheus.HistogramVec
	HTTPRequestTime *prometheus.HistogramVec
	ImageSizeBytes  *prometheus.HistogramVec
}

func InitializePerformanceMetrics(registry prometheus.Registerer, constLabels prometheus.Labels) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "frame_stage_seconds",
			Help:        "Time spent per frame in each pipeline stage",
			ConstLabels: constLabels,
			Buckets:     []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"stage"}),

		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "batch_duration_seconds",
			Help:        "Batch duration in seconds",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 4, 9),
		}, []string{"operation"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "request_duration_seconds",
			Help:        "Request duration in seconds",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"type", "status"}),

		HTTPRequestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_time_seconds",
			Help:        "Remote matrix fetch time in seconds",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"hostname"}),

		ImageSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "image_size_bytes",
			Help:        "Encoded image size in bytes",
			ConstLabels: constLabels,
			Buckets:     []float64{256, 1024, 10240, 102400, 1048576, 10485760}, // 256B to 10MB
		}, []string{"format"}),
	}

	registry.MustRegister(
		metrics.StageDuration,
		metrics.BatchDuration,
		metrics.RequestDuration,
		metrics.HTTPRequestTime,
		metrics.ImageSizeBytes,
	)

	return metrics
}

// TimeFunction measures the execution time of one pipeline stage
func TimeFunction[T any](fn func() (T, error), stage string, metrics *PerformanceMetrics) (T, error) {
	start := time.Now()
	result, err := fn()
	duration := time.Since(start).Seconds()

	if metrics != nil {
		metrics.StageDuration.WithLabelValues(stage).Observe(duration)
	}

	return result, err
}

// TimeBatch returns a func that records the batch duration when called.
func TimeBatch(operation string, metrics *PerformanceMetrics) func() {
	start := time.Now()
	return func() {
		if metrics != nil {
			metrics.BatchDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		}
	}
}

// TimeHTTPRequest measures HTTP request duration
func TimeHTTPRequest(hostname string, metrics *PerformanceMetrics) func() {
	start := time.Now()
	return func() {
		duration := time.Since(start).Seconds()
		if metrics != nil {
			metrics.HTTPRequestTime.WithLabelValues(hostname).Observe(duration)
		}
	}
}

// ObserveSize records an encoded image size. It is a no-op on a nil receiver.
func (m *PerformanceMetrics) ObserveSize(format string, n int) {
	if m == nil {
		return
	}
	m.ImageSizeBytes.WithLabelValues(format).Observe(float64(n))
}

// ObserveRequest records a finished HTTP request. It is a no-op on a nil
// receiver.
func (m *PerformanceMetrics) ObserveRequest(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(kind, status).Observe(d.Seconds())
}

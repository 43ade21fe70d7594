package metrics

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Conversion outcomes used as the "status" label.
const (
	StatusWritten = "written"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

type Metrics struct {
	Conversions        *prometheus.CounterVec
	SelectedSpread     *prometheus.GaugeVec
	SuccessfullyServed *prometheus.CounterVec
	ServedCached       *prometheus.CounterVec
}

func InitializeMetrics(registry prometheus.Registerer, constLabels prometheus.Labels) *Metrics {
	metrics := &Metrics{
		Conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "frames_converted_total",
			Help:        "Number of matrix files processed, by render mode and outcome",
			ConstLabels: constLabels,
		}, []string{"mode", "status"}),
		SelectedSpread: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "selected_frame_spread",
			Help:        "Temperature spread of the last frame picked by max-spread selection",
			ConstLabels: constLabels,
		}, []string{"mode"}),
		SuccessfullyServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "successfully_served",
			Help:        "Number of successfully served render requests",
			ConstLabels: constLabels,
		}, []string{"type", "hostname", "url_hash"}),
		ServedCached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "served_cached",
			Help:        "Number of renders served from cache",
			ConstLabels: constLabels,
		}, []string{"type", "place"}),
	}

	registry.MustRegister(
		metrics.Conversions,
		metrics.SelectedSpread,
		metrics.SuccessfullyServed,
		metrics.ServedCached,
	)

	return metrics
}

// Converted counts one processed file. It is a no-op on a nil receiver.
func (m *Metrics) Converted(mode, status string) {
	if m == nil {
		return
	}
	m.Conversions.WithLabelValues(mode, status).Inc()
}

// Selected records the spread of a selection winner. It is a no-op on a nil
// receiver.
func (m *Metrics) Selected(mode string, spread float64) {
	if m == nil {
		return
	}
	m.SelectedSpread.WithLabelValues(mode).Set(spread)
}

// HashURL creates a short hash of the URL to reduce metric cardinality
func HashURL(url string) string {
	if len(url) > 100 {
		url = url[:100]
	}

	hash := sha256.Sum256([]byte(url))
	return hex.EncodeToString(hash[:8])
}

// CleanHostname strips the port and bounds the length of a hostname label.
func CleanHostname(hostname string) string {
	if hostname == "" {
		return "unknown"
	}

	if idx := strings.Index(hostname, ":"); idx != -1 {
		hostname = hostname[:idx]
	}

	if len(hostname) > 50 {
		hostname = hostname[:50]
	}

	return hostname
}

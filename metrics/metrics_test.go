package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestConverted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitializeMetrics(reg, prometheus.Labels{"app": "test"})
	m.Converted("gray", StatusWritten)
	m.Converted("gray", StatusWritten)
	m.Converted("gray", StatusFailed)
	if got := testutil.ToFloat64(m.Conversions.WithLabelValues("gray", StatusWritten)); got != 2 {
		t.Fatal(got)
	}
	if got := testutil.ToFloat64(m.Conversions.WithLabelValues("gray", StatusFailed)); got != 1 {
		t.Fatal(got)
	}
	m.Selected("color", 7.5)
	if got := testutil.ToFloat64(m.SelectedSpread.WithLabelValues("color")); got != 7.5 {
		t.Fatal(got)
	}
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	m.Converted("gray", StatusWritten)
	m.Selected("gray", 1)
	var p *PerformanceMetrics
	p.ObserveSize("png", 10)
	p.ObserveRequest("render", "200", 0)
	TimeBatch("bulk", nil)()
	TimeHTTPRequest("example.com", nil)()
	if _, err := TimeFunction(func() (int, error) { return 0, errors.New("x") }, StageLoad, nil); err == nil {
		t.Fatal("error not propagated")
	}
}

func TestTimeFunction(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := InitializePerformanceMetrics(reg, nil)
	v, err := TimeFunction(func() (int, error) { return 42, nil }, StageRender, p)
	if err != nil || v != 42 {
		t.Fatal(v, err)
	}
	if n := testutil.CollectAndCount(p.StageDuration); n != 1 {
		t.Fatalf("%d series", n)
	}
}

func TestCleanHostname(t *testing.T) {
	data := map[string]string{"": "unknown", "example.com:8080": "example.com", "a.b": "a.b"}
	for in, want := range data {
		if got := CleanHostname(in); got != want {
			t.Fatalf("%q: got %q", in, got)
		}
	}
	if len(HashURL("https://example.com/m.txt")) != 16 {
		t.Fatal("hash length")
	}
}

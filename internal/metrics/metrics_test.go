package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestRecorderIncrementsCounters(t *testing.T) {
	r := New()

	before := counterValue(t, promotionsTotal)
	r.Promotion()
	after := counterValue(t, promotionsTotal)
	if after != before+1 {
		t.Fatalf("promotionsTotal = %v, want %v", after, before+1)
	}

	r.ReconcilePass(5 * time.Millisecond)
	r.RegistrySizes(3, 7)
	r.Transition()
	r.GC()
	r.SamplerError()
	r.Query("state", time.Millisecond)
}

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestKPIRewardMetricsRecord(t *testing.T) {
	m := KPIReward()
	if KPIReward() != m {
		t.Fatalf("registry should be a singleton")
	}
	beforeMinted := testutil.ToFloat64(m.minted)
	beforeNet := testutil.ToFloat64(m.net)
	beforeIssued := testutil.ToFloat64(m.claims.WithLabelValues("issued"))

	m.ObserveClaim("issued", 15*time.Millisecond)
	m.RecordIssuance(250, 2)
	m.SetPause(true)
	m.SetReplayEntries(-3)

	if got := testutil.ToFloat64(m.minted) - beforeMinted; got != 250 {
		t.Fatalf("minted delta = %v", got)
	}
	if got := testutil.ToFloat64(m.net) - beforeNet; got != 248 {
		t.Fatalf("net delta = %v", got)
	}
	if got := testutil.ToFloat64(m.claims.WithLabelValues("issued")) - beforeIssued; got != 1 {
		t.Fatalf("issued delta = %v", got)
	}
	if testutil.ToFloat64(m.pauseEngaged) != 1 {
		t.Fatalf("pause gauge not set")
	}
	if testutil.ToFloat64(m.replayEntries) != 0 {
		t.Fatalf("negative replay size should clamp to zero")
	}
	m.SetPause(false)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *KPIRewardMetrics
	m.ObserveClaim("issued", time.Second)
	m.RecordIssuance(1, 0)
	m.RecordPartial("burn")
	m.RecordReconciled()
	m.SetPause(true)
	m.SetReplayEntries(4)

	var mm *moduleMetrics
	mm.Observe("claims", "POST /v1/claims", 500, time.Second)
	mm.RecordThrottle("claims", "")
}

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	before := testutil.ToFloat64(m.errors.WithLabelValues("claims", "submit", "429"))
	m.Observe("claims", "submit", 429, time.Millisecond)
	if got := testutil.ToFloat64(m.errors.WithLabelValues("claims", "submit", "429")) - before; got != 1 {
		t.Fatalf("error counter delta = %v", got)
	}
}

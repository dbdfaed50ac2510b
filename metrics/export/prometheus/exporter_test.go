package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MrEthical07/roleauth"
	"github.com/MrEthical07/roleauth/metrics/export/internaldefs"
)

type fakeSource struct {
	snapshot roleauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() roleauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func populated() fakeSource {
	return fakeSource{
		snapshot: roleauth.MetricsSnapshot{
			Counters: map[roleauth.MetricID]uint64{
				roleauth.MetricLoginSuccess:          7,
				roleauth.MetricRoleDowngradeRejected: 2,
			},
			Histograms: map[roleauth.MetricID][]uint64{
				roleauth.MetricVerifyLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 3,
	}
}

func TestCollectorEmptyWhenMetricsDisabled(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: roleauth.MetricsSnapshot{
			Counters:   map[roleauth.MetricID]uint64{},
			Histograms: map[roleauth.MetricID][]uint64{},
		},
	})
	if n := testutil.CollectAndCount(c); n != 0 {
		t.Fatalf("expected no samples, got %d", n)
	}
}

func TestCollectorCounters(t *testing.T) {
	c := NewCollectorFromSource(populated())

	want := len(internaldefs.CounterDefs) + len(internaldefs.HistogramDefs) + 1
	if n := testutil.CollectAndCount(c); n != want {
		t.Fatalf("expected %d metrics, got %d", want, n)
	}

	expected := `
# HELP roleauth_login_success_total Successful password sign-ins.
# TYPE roleauth_login_success_total counter
roleauth_login_success_total 7
# HELP roleauth_role_downgrade_rejected_total Organizer to member requests refused.
# TYPE roleauth_role_downgrade_rejected_total counter
roleauth_role_downgrade_rejected_total 2
# HELP roleauth_audit_dropped_total Audit events dropped because the dispatcher buffer was full.
# TYPE roleauth_audit_dropped_total counter
roleauth_audit_dropped_total 3
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"roleauth_login_success_total",
		"roleauth_role_downgrade_rejected_total",
		"roleauth_audit_dropped_total",
	)
	if err != nil {
		t.Fatalf("CollectAndCompare: %v", err)
	}
}

func TestHandlerServesHistogram(t *testing.T) {
	c := NewCollectorFromSource(populated())
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(body)

	for _, want := range []string{
		`roleauth_session_verify_latency_seconds_bucket{le="0.005"} 1`,
		`roleauth_session_verify_latency_seconds_bucket{le="0.5"} 7`,
		`roleauth_session_verify_latency_seconds_bucket{le="+Inf"} 8`,
		`roleauth_session_verify_latency_seconds_count 8`,
		`roleauth_login_success_total 7`,
		`go_goroutines`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in:\n%s", want, text)
		}
	}
}

func TestCollectorFromEngine(t *testing.T) {
	c := NewCollector(nil)
	if n := testutil.CollectAndCount(c); n != 0 {
		t.Fatalf("nil engine should export nothing, got %d", n)
	}
}

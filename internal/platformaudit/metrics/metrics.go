package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the platform audit chain.
type Metrics struct {
	Appends        prometheus.Counter
	AppendRetries  prometheus.Counter
	AppendFailures prometheus.Counter
	VerifyRuns     prometheus.Counter
	VerifyBreaks   prometheus.Counter
}

// New creates a Metrics instance with all chain metrics registered.
func New() *Metrics {
	return &Metrics{
		Appends: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pagemd_platform_audit_appends_total",
			Help: "Total number of platform audit chain entries appended",
		}),
		AppendRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pagemd_platform_audit_append_retries_total",
			Help: "Total number of chain appends retried after losing the tail race",
		}),
		AppendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pagemd_platform_audit_append_failures_total",
			Help: "Total number of chain appends that failed hard",
		}),
		VerifyRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pagemd_platform_audit_verify_runs_total",
			Help: "Total number of chain verification runs",
		}),
		VerifyBreaks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pagemd_platform_audit_verify_breaks_total",
			Help: "Total number of chain breaks detected by verification",
		}),
	}
}

func (m *Metrics) IncAppends()        { m.Appends.Inc() }
func (m *Metrics) IncAppendRetries()  { m.AppendRetries.Inc() }
func (m *Metrics) IncAppendFailures() { m.AppendFailures.Inc() }

// ObserveVerifyRun records one verification run and its break count.
func (m *Metrics) ObserveVerifyRun(breaks int) {
	m.VerifyRuns.Inc()
	m.VerifyBreaks.Add(float64(breaks))
}

package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the clinical audit stream. Because the
// stream swallows write failures by contract, the failure counter is the
// only operational signal that events are being lost; alert on it.
type Metrics struct {
	Recorded      prometheus.Counter
	WriteFailures prometheus.Counter
	Dropped       prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Recorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pagemd_clinical_audit_recorded_total",
			Help: "Total number of clinical audit events persisted",
		}),
		WriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pagemd_clinical_audit_write_failures_total",
			Help: "Total number of clinical audit writes that failed and were swallowed",
		}),
		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pagemd_clinical_audit_dropped_total",
			Help: "Total number of clinical audit events dropped due to a full inbox",
		}),
	}
}

func (m *Metrics) IncRecorded()      { m.Recorded.Inc() }
func (m *Metrics) IncWriteFailures() { m.WriteFailures.Inc() }
func (m *Metrics) IncDropped()       { m.Dropped.Inc() }

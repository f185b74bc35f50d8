package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for role governance.
type Metrics struct {
	DriftRuns     prometheus.Counter
	DriftedRoles  prometheus.Counter
	Syncs         prometheus.Counter
	SyncConflicts prometheus.Counter
	SyncFailures  prometheus.Counter
}

// New creates a Metrics instance with all governance metrics registered.
func New() *Metrics {
	return &Metrics{
		DriftRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pagemd_governance_drift_runs_total",
			Help: "Total number of per-clinic drift detection runs",
		}),
		DriftedRoles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pagemd_governance_drifted_roles_total",
			Help: "Total number of DRIFTED or MISSING roles found by drift runs",
		}),
		Syncs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pagemd_governance_role_syncs_total",
			Help: "Total number of completed role syncs",
		}),
		SyncConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pagemd_governance_sync_conflicts_total",
			Help: "Total number of syncs rejected because the tenant was locked",
		}),
		SyncFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pagemd_governance_sync_failures_total",
			Help: "Total number of syncs that failed after acquiring the lock",
		}),
	}
}

func (m *Metrics) IncSyncs()         { m.Syncs.Inc() }
func (m *Metrics) IncSyncConflicts() { m.SyncConflicts.Inc() }
func (m *Metrics) IncSyncFailures()  { m.SyncFailures.Inc() }

// ObserveDriftRun records one drift detection run and its finding count.
func (m *Metrics) ObserveDriftRun(drifted int) {
	m.DriftRuns.Inc()
	m.DriftedRoles.Add(float64(drifted))
}

package platformaudit

import (
	"context"
	"fmt"
	"log/slog"

	auditmetrics "pagemd/internal/platformaudit/metrics"
)

// Break describes one detected chain violation. A verification run reports
// every break it finds, not just the first; compliance review needs the
// complete picture for forensic triage.
type Break struct {
	Seq    int64  `json:"seq"`
	Reason string `json:"reason"`
}

// Report is the outcome of a full chain walk. An empty chain is valid.
type Report struct {
	Valid  bool    `json:"valid"`
	Count  int     `json:"count"`
	Errors []Break `json:"errors"`
}

// Verifier re-walks the platform chain and recomputes every hash. It
// performs no writes: the system's job on a mismatch is detection, not
// silent self-repair, since a modified historical row is evidence of
// external tampering.
type Verifier struct {
	store   Store
	logger  *slog.Logger
	metrics *auditmetrics.Metrics
}

type VerifierOption func(*Verifier)

func VerifierWithLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) { v.logger = logger }
}

func VerifierWithMetrics(m *auditmetrics.Metrics) VerifierOption {
	return func(v *Verifier) { v.metrics = m }
}

func NewVerifier(store Store, opts ...VerifierOption) *Verifier {
	v := &Verifier{store: store}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyChain walks entries in Seq order from the genesis entry. At each
// step it checks the stored link against the running hash and recomputes the
// content hash from the stored fields. After flagging a break it resumes
// from the stored hash, so each independent tamper site is reported once
// instead of cascading into noise.
func (v *Verifier) VerifyChain(ctx context.Context) (Report, error) {
	entries, err := v.store.ListInOrder(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load chain: %w", err)
	}

	report := Report{Valid: true, Count: len(entries), Errors: []Break{}}
	running := GenesisHash

	for _, e := range entries {
		if e.PreviousHash != running {
			report.Errors = append(report.Errors, Break{
				Seq:    e.Seq,
				Reason: fmt.Sprintf("previous hash mismatch: chain expects %s", running),
			})
		}

		recomputed, err := ComputeHash(e.PreviousHash, e)
		if err != nil {
			report.Errors = append(report.Errors, Break{
				Seq:    e.Seq,
				Reason: fmt.Sprintf("entry not hashable: %v", err),
			})
		} else if recomputed != e.Hash {
			report.Errors = append(report.Errors, Break{
				Seq:    e.Seq,
				Reason: "content hash mismatch: stored fields do not match stored hash",
			})
		}

		running = e.Hash
	}

	report.Valid = len(report.Errors) == 0

	if v.metrics != nil {
		v.metrics.ObserveVerifyRun(len(report.Errors))
	}
	if v.logger != nil && !report.Valid {
		v.logger.WarnContext(ctx, "platform audit chain verification failed",
			"count", report.Count,
			"breaks", len(report.Errors),
		)
	}
	return report, nil
}

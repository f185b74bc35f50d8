// Command verifychain re-walks the platform audit chain and reports every
// break. It is meant to run on a schedule; a non-zero exit signals that the
// chain no longer verifies and compliance review is needed.
package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"pagemd/internal/platform/config"
	"pagemd/internal/platform/logger"
	"pagemd/internal/platform/postgres"
	"pagemd/internal/platformaudit"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	verifier := platformaudit.NewVerifier(platformaudit.NewPostgres(db),
		platformaudit.VerifierWithLogger(log))

	report, err := verifier.VerifyChain(ctx)
	if err != nil {
		log.Error("chain verification aborted", "error", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	os.Stdout.Write(append(out, '\n'))

	if !report.Valid {
		log.Error("platform audit chain is broken",
			"entries", report.Count,
			"breaks", len(report.Errors),
		)
		os.Exit(2)
	}
	log.Info("platform audit chain verified", "entries", report.Count)
}

// Command migrate applies control-schema migrations and seeds, then brings
// every clinic schema listed in the clinics table up to date.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"pagemd/internal/platform/config"
	"pagemd/internal/platform/logger"
	"pagemd/internal/platform/migrate"
	"pagemd/internal/platform/postgres"
)

func main() {
	var (
		dir         = flag.String("dir", "migrations", "path to the migrations directory")
		skipSeeds   = flag.Bool("skip-seeds", false, "do not apply seed files")
		skipTenants = flag.Bool("skip-tenants", false, "do not migrate clinic schemas")
	)
	flag.Parse()

	cfg := config.FromEnv()
	log := logger.New()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	mgr := migrate.NewManager(db,
		*dir+"/control",
		*dir+"/seeds",
		*dir+"/tenant",
	)

	if err := mgr.Up(ctx); err != nil {
		log.Error("control migrations failed", "error", err)
		os.Exit(1)
	}
	log.Info("control schema up to date")

	if !*skipSeeds {
		if err := mgr.Seed(ctx); err != nil {
			log.Error("seeds failed", "error", err)
			os.Exit(1)
		}
		log.Info("seeds applied")
	}

	if *skipTenants {
		return
	}

	rows, err := db.QueryContext(ctx, `SELECT schema_name FROM clinics WHERE status <> 'deactivated' ORDER BY schema_name`)
	if err != nil {
		log.Error("list clinic schemas failed", "error", err)
		os.Exit(1)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var schema string
		if err := rows.Scan(&schema); err != nil {
			log.Error("scan clinic schema failed", "error", err)
			os.Exit(1)
		}
		schemas = append(schemas, schema)
	}
	if err := rows.Err(); err != nil {
		log.Error("list clinic schemas failed", "error", err)
		os.Exit(1)
	}

	for _, schema := range schemas {
		if err := mgr.ApplyTenant(ctx, schema); err != nil {
			log.Error("tenant migration failed", "schema", schema, "error", err)
			os.Exit(1)
		}
	}
	log.Info("tenant schemas up to date", "count", len(schemas))
}

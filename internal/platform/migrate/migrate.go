// Package migrate executes the SQL migration and seed files that define the
// control schema and the per-clinic tenant schemas. Files apply in lexical
// order and each file runs in its own transaction.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"
)

// Manager applies migration and seed files stored on disk. Control migrations
// run against the default search path; tenant migrations run with the clinic
// schema first on the search path so the same files serve every clinic.
type Manager struct {
	db         *sql.DB
	controlDir string
	seedsDir   string
	tenantDir  string
}

func NewManager(db *sql.DB, controlDir, seedsDir, tenantDir string) *Manager {
	return &Manager{db: db, controlDir: controlDir, seedsDir: seedsDir, tenantDir: tenantDir}
}

// Up applies all pending control migrations.
func (m *Manager) Up(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	return m.applyDir(ctx, m.controlDir, migrationsTable, "")
}

// Seed applies seed files idempotently. Seeds run after Up.
func (m *Manager) Seed(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	return m.applyDir(ctx, m.seedsDir, seedsTable, "")
}

// ApplyTenant creates schemaName if needed and applies all pending tenant
// migrations inside it. Bookkeeping is per schema so clinics migrate
// independently.
func (m *Manager) ApplyTenant(ctx context.Context, schemaName string) error {
	quoted := pq.QuoteIdentifier(schemaName)
	if _, err := m.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoted); err != nil {
		return fmt.Errorf("create schema %s: %w", schemaName, err)
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, quoted, migrationsTable)
	if _, err := m.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create tenant bookkeeping in %s: %w", schemaName, err)
	}
	return m.applyDir(ctx, m.tenantDir, quoted+"."+migrationsTable, schemaName)
}

func (m *Manager) applyDir(ctx context.Context, dir, table, schemaName string) error {
	applied, err := m.listApplied(ctx, table)
	if err != nil {
		return err
	}
	files, err := collectSQL(dir)
	if err != nil {
		return err
	}
	for _, f := range files {
		if applied[f.base] {
			continue
		}
		if err := m.execFile(ctx, f.path, schemaName); err != nil {
			return fmt.Errorf("apply %s: %w", f.base, err)
		}
		if _, err := m.db.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (name, applied_at) VALUES ($1, $2)`, table),
			f.base, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("record %s: %w", f.base, err)
		}
	}
	return nil
}

func (m *Manager) execFile(ctx context.Context, path, schemaName string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if schemaName != "" {
		setPath := fmt.Sprintf("SET LOCAL search_path TO %s, public", pq.QuoteIdentifier(schemaName))
		if _, err := tx.ExecContext(ctx, setPath); err != nil {
			return err
		}
	}
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) ensureTables(ctx context.Context) error {
	for _, table := range []string{migrationsTable, seedsTable} {
		ddl := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				name TEXT PRIMARY KEY,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, table)
		if _, err := m.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) listApplied(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`SELECT name FROM %s`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

type sqlFile struct {
	base string
	path string
}

func collectSQL(dir string) ([]sqlFile, error) {
	if dir == "" {
		return nil, nil
	}
	var files []sqlFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".sql") {
			return nil
		}
		files = append(files, sqlFile{base: d.Name(), path: path})
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].base < files[j].base })
	return files, nil
}

// splitStatements splits a migration file on semicolons. It is aware of
// single-quoted strings, dollar-quoted bodies and -- line comments so trigger
// functions and commented headers survive the split; the driver's extended
// protocol rejects multi-statement strings.
func splitStatements(sqlText string) []string {
	var (
		stmts     []string
		current   strings.Builder
		inString  bool
		dollarTag string
	)
	runes := []rune(sqlText)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if dollarTag != "" {
			current.WriteRune(r)
			if r == '$' && strings.HasSuffix(current.String(), dollarTag) {
				dollarTag = ""
			}
			continue
		}
		if inString {
			current.WriteRune(r)
			if r == '\'' {
				inString = false
			}
			continue
		}

		switch r {
		case '-':
			if i+1 < len(runes) && runes[i+1] == '-' {
				j := i
				for j < len(runes) && runes[j] != '\n' {
					current.WriteRune(runes[j])
					j++
				}
				i = j - 1
			} else {
				current.WriteRune(r)
			}
		case '\'':
			inString = true
			current.WriteRune(r)
		case '$':
			if tag, ok := dollarQuoteAt(runes[i:]); ok {
				dollarTag = tag
				current.WriteString(tag)
				i += len([]rune(tag)) - 1
			} else {
				current.WriteRune(r)
			}
		case ';':
			stmts = append(stmts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}

// dollarQuoteAt reports whether runes begin a dollar-quote opener like $$ or
// $body$ and returns the full tag.
func dollarQuoteAt(runes []rune) (string, bool) {
	if len(runes) < 2 || runes[0] != '$' {
		return "", false
	}
	for i := 1; i < len(runes); i++ {
		r := runes[i]
		if r == '$' {
			return string(runes[:i+1]), true
		}
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return "", false
		}
	}
	return "", false
}

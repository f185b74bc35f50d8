package governance

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "pagemd/pkg/domain"
	"pagemd/pkg/platform/sentinel"
	txcontext "pagemd/pkg/platform/tx"
)

// syncLockClass namespaces the per-tenant sync advisory locks away from the
// chain lock and anything else using two-int locks on the same database.
const syncLockClass int32 = 0x6779 // "gy"

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func runner(ctx context.Context, db *sql.DB) execer {
	if txn, ok := txcontext.From(ctx); ok {
		return txn
	}
	return db
}

// PostgresTemplates persists the template catalog in the control schema.
type PostgresTemplates struct {
	db *sql.DB
}

func NewPostgresTemplates(db *sql.DB) *PostgresTemplates {
	return &PostgresTemplates{db: db}
}

const selectTemplates = `
	SELECT t.id, t.role_key, t.display_name, COALESCE(t.description, ''),
	       t.version, t.is_required, t.updated_by, t.created_at, t.updated_at,
	       COALESCE(array_agg(tp.privilege_name ORDER BY tp.privilege_name)
	                FILTER (WHERE tp.privilege_name IS NOT NULL), '{}')
	FROM platform_role_templates t
	LEFT JOIN platform_role_template_privileges tp ON tp.template_id = t.id
`

func scanTemplate(row interface{ Scan(...any) error }) (RoleTemplate, error) {
	var (
		tpl       RoleTemplate
		tplID     uuid.UUID
		updatedBy *uuid.UUID
		privs     []string
	)
	err := row.Scan(&tplID, &tpl.RoleKey, &tpl.DisplayName, &tpl.Description,
		&tpl.Version, &tpl.Required, &updatedBy, &tpl.CreatedAt, &tpl.UpdatedAt,
		pq.Array(&privs))
	if err != nil {
		return RoleTemplate{}, err
	}
	tpl.ID = id.TemplateID(tplID)
	if updatedBy != nil {
		tpl.UpdatedBy = id.OperatorID(*updatedBy)
	}
	tpl.Privileges = privs
	return tpl, nil
}

func (s *PostgresTemplates) ListTemplates(ctx context.Context) ([]RoleTemplate, error) {
	rows, err := runner(ctx, s.db).QueryContext(ctx, selectTemplates+` GROUP BY t.id ORDER BY t.role_key`)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []RoleTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

func (s *PostgresTemplates) FindByKey(ctx context.Context, roleKey string) (RoleTemplate, error) {
	row := runner(ctx, s.db).QueryRowContext(ctx, selectTemplates+` WHERE t.role_key = $1 GROUP BY t.id`, roleKey)
	tpl, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return RoleTemplate{}, sentinel.ErrNotFound
	}
	if err != nil {
		return RoleTemplate{}, fmt.Errorf("find template %s: %w", roleKey, err)
	}
	return tpl, nil
}

func (s *PostgresTemplates) CreateTemplate(ctx context.Context, tpl *RoleTemplate) error {
	run := runner(ctx, s.db)

	var tplID uuid.UUID
	err := run.QueryRowContext(ctx, `
		INSERT INTO platform_role_templates (role_key, display_name, description, version, is_required, updated_by)
		VALUES ($1, $2, $3, 1, $4, $5)
		ON CONFLICT (role_key) DO NOTHING
		RETURNING id
	`, tpl.RoleKey, tpl.DisplayName, tpl.Description, tpl.Required, operatorRef(tpl.UpdatedBy)).Scan(&tplID)
	if err == sql.ErrNoRows {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert template %s: %w", tpl.RoleKey, err)
	}
	tpl.ID = id.TemplateID(tplID)
	tpl.Version = 1

	return insertTemplatePrivileges(ctx, run, tplID, tpl.Privileges)
}

func (s *PostgresTemplates) UpdateTemplate(ctx context.Context, tpl RoleTemplate) (int, error) {
	run := runner(ctx, s.db)

	// The bump is decided in SQL against the stored privilege set, before
	// that set is replaced below. Two racing updates each compare against
	// what is actually on disk, so neither can overwrite the other's bump.
	var (
		tplID   uuid.UUID
		version int
	)
	err := run.QueryRowContext(ctx, `
		UPDATE platform_role_templates
		SET display_name = $2, description = $3, is_required = $4,
		    updated_by = $5, updated_at = CURRENT_TIMESTAMP,
		    version = version + CASE WHEN (
		        SELECT COALESCE(array_agg(tp.privilege_name ORDER BY tp.privilege_name), '{}')
		        FROM platform_role_template_privileges tp
		        WHERE tp.template_id = platform_role_templates.id
		    ) IS DISTINCT FROM (
		        SELECT COALESCE(array_agg(p ORDER BY p), '{}') FROM unnest($6::text[]) AS p
		    ) THEN 1 ELSE 0 END
		WHERE role_key = $1
		RETURNING id, version
	`, tpl.RoleKey, tpl.DisplayName, tpl.Description, tpl.Required,
		operatorRef(tpl.UpdatedBy), pq.Array(tpl.Privileges)).Scan(&tplID, &version)
	if err == sql.ErrNoRows {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("update template %s: %w", tpl.RoleKey, err)
	}

	if _, err := run.ExecContext(ctx,
		`DELETE FROM platform_role_template_privileges WHERE template_id = $1`, tplID); err != nil {
		return 0, fmt.Errorf("clear template privileges: %w", err)
	}
	if err := insertTemplatePrivileges(ctx, run, tplID, tpl.Privileges); err != nil {
		return 0, err
	}
	return version, nil
}

func (s *PostgresTemplates) DeleteTemplate(ctx context.Context, roleKey string) error {
	// FK on template privileges cascades; tenant role links are left to
	// dangle, they live in other schemas this statement never touches.
	res, err := runner(ctx, s.db).ExecContext(ctx,
		`DELETE FROM platform_role_templates WHERE role_key = $1`, roleKey)
	if err != nil {
		return fmt.Errorf("delete template %s: %w", roleKey, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete template %s: %w", roleKey, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// InTx opens a transaction for a catalog mutation. The transaction rides the
// context passed to fn, so the template statements and the chain append all
// land in it.
func (s *PostgresTemplates) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin template tx: %w", err)
	}
	defer func() { _ = txn.Rollback() }()

	if err := fn(txcontext.WithTx(ctx, txn)); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit template tx: %w", err)
	}
	return nil
}

func insertTemplatePrivileges(ctx context.Context, run execer, tplID uuid.UUID, privileges []string) error {
	if len(privileges) == 0 {
		return nil
	}
	_, err := run.ExecContext(ctx, `
		INSERT INTO platform_role_template_privileges (template_id, privilege_name)
		SELECT $1, unnest($2::text[])
	`, tplID, pq.Array(privileges))
	if err != nil {
		return fmt.Errorf("insert template privileges: %w", err)
	}
	return nil
}

func operatorRef(operatorID id.OperatorID) *uuid.UUID {
	if operatorID.IsNil() {
		return nil
	}
	u := uuid.UUID(operatorID)
	return &u
}

// PostgresRoles reads and reconciles roles inside tenant schemas. Table
// names are qualified with the tenant's schema; the schema name comes from
// the clinics table, never from request input, and is still quoted.
type PostgresRoles struct {
	db *sql.DB
}

func NewPostgresRoles(db *sql.DB) *PostgresRoles {
	return &PostgresRoles{db: db}
}

func (s *PostgresRoles) table(tenant Tenant, name string) string {
	return pq.QuoteIdentifier(tenant.SchemaName) + "." + name
}

func (s *PostgresRoles) ListRoles(ctx context.Context, tenant Tenant) ([]ClinicRole, error) {
	query := fmt.Sprintf(`
		SELECT r.id, r.name, r.source_template_id,
		       COALESCE(array_agg(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}')
		FROM %s r
		LEFT JOIN %s rp ON rp.role_id = r.id
		LEFT JOIN %s p ON p.id = rp.privilege_id
		GROUP BY r.id
		ORDER BY r.name
	`, s.table(tenant, "roles"), s.table(tenant, "role_privileges"), s.table(tenant, "privileges"))

	rows, err := runner(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query roles for %s: %w", tenant.ID, err)
	}
	defer rows.Close()

	var roles []ClinicRole
	for rows.Next() {
		role, err := scanClinicRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}

func scanClinicRole(row interface{ Scan(...any) error }) (ClinicRole, error) {
	var (
		role   ClinicRole
		roleID uuid.UUID
		link   *uuid.UUID
		privs  []string
	)
	if err := row.Scan(&roleID, &role.Name, &link, pq.Array(&privs)); err != nil {
		return ClinicRole{}, err
	}
	role.ID = id.RoleID(roleID)
	if link != nil {
		tplID := id.TemplateID(*link)
		role.SourceTemplateID = &tplID
	}
	role.Privileges = privs
	return role, nil
}

func (s *PostgresRoles) findRole(ctx context.Context, tenant Tenant, where string, args ...any) (ClinicRole, error) {
	query := fmt.Sprintf(`
		SELECT r.id, r.name, r.source_template_id,
		       COALESCE(array_agg(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}')
		FROM %s r
		LEFT JOIN %s rp ON rp.role_id = r.id
		LEFT JOIN %s p ON p.id = rp.privilege_id
		WHERE %s
		GROUP BY r.id
		LIMIT 1
	`, s.table(tenant, "roles"), s.table(tenant, "role_privileges"), s.table(tenant, "privileges"), where)

	role, err := scanClinicRole(runner(ctx, s.db).QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return ClinicRole{}, sentinel.ErrNotFound
	}
	if err != nil {
		return ClinicRole{}, fmt.Errorf("find role in %s: %w", tenant.ID, err)
	}
	return role, nil
}

func (s *PostgresRoles) FindRoleByTemplate(ctx context.Context, tenant Tenant, templateID id.TemplateID) (ClinicRole, error) {
	return s.findRole(ctx, tenant, `r.source_template_id = $1`, uuid.UUID(templateID))
}

func (s *PostgresRoles) FindRoleByName(ctx context.Context, tenant Tenant, names ...string) (ClinicRole, error) {
	return s.findRole(ctx, tenant, `r.name = ANY($1)`, pq.Array(names))
}

func (s *PostgresRoles) CreateRole(ctx context.Context, tenant Tenant, name, description string, templateID id.TemplateID) (id.RoleID, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (name, description, is_system_role, source_template_id)
		VALUES ($1, $2, TRUE, $3)
		RETURNING id
	`, s.table(tenant, "roles"))

	var roleID uuid.UUID
	err := runner(ctx, s.db).QueryRowContext(ctx, query, name, description, uuid.UUID(templateID)).Scan(&roleID)
	if err != nil {
		return id.RoleID{}, fmt.Errorf("create role %s in %s: %w", name, tenant.ID, err)
	}
	return id.RoleID(roleID), nil
}

func (s *PostgresRoles) RelinkRole(ctx context.Context, tenant Tenant, roleID id.RoleID, templateID id.TemplateID, name string) error {
	query := fmt.Sprintf(
		`UPDATE %s SET source_template_id = $1, name = $2 WHERE id = $3`,
		s.table(tenant, "roles"))

	res, err := runner(ctx, s.db).ExecContext(ctx, query, uuid.UUID(templateID), name, uuid.UUID(roleID))
	if err != nil {
		return fmt.Errorf("relink role in %s: %w", tenant.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("relink role in %s: %w", tenant.ID, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresRoles) ReplacePrivileges(ctx context.Context, tenant Tenant, roleID id.RoleID, privileges []string) error {
	run := runner(ctx, s.db)

	clear := fmt.Sprintf(`DELETE FROM %s WHERE role_id = $1`, s.table(tenant, "role_privileges"))
	if _, err := run.ExecContext(ctx, clear, uuid.UUID(roleID)); err != nil {
		return fmt.Errorf("clear role privileges in %s: %w", tenant.ID, err)
	}
	if len(privileges) == 0 {
		return nil
	}

	// Tenants provisioned before a catalog addition will not know the
	// privilege yet; create it on the fly like a fresh grant would.
	ensure := fmt.Sprintf(`
		INSERT INTO %s (name, description, category)
		SELECT p, 'Standard Permission: ' || p, 'clinical'
		FROM unnest($1::text[]) AS p
		ON CONFLICT (name) DO NOTHING
	`, s.table(tenant, "privileges"))
	if _, err := run.ExecContext(ctx, ensure, pq.Array(privileges)); err != nil {
		return fmt.Errorf("ensure privileges in %s: %w", tenant.ID, err)
	}

	grant := fmt.Sprintf(`
		INSERT INTO %s (role_id, privilege_id)
		SELECT $1, p.id FROM %s p WHERE p.name = ANY($2)
	`, s.table(tenant, "role_privileges"), s.table(tenant, "privileges"))
	if _, err := run.ExecContext(ctx, grant, uuid.UUID(roleID), pq.Array(privileges)); err != nil {
		return fmt.Errorf("grant privileges in %s: %w", tenant.ID, err)
	}
	return nil
}

// InSyncTx opens the reconciliation transaction and takes the tenant's
// advisory lock without waiting. The lock is transaction-scoped, so commit
// and rollback both release it; fn sees a context carrying the transaction
// and every store call inside rides it.
func (s *PostgresRoles) InSyncTx(ctx context.Context, tenant Tenant, fn func(ctx context.Context) error) error {
	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync: %w", err)
	}
	defer func() { _ = txn.Rollback() }()

	var acquired bool
	err = txn.QueryRowContext(ctx,
		`SELECT pg_try_advisory_xact_lock($1, $2)`,
		syncLockClass, tenantLockKey(tenant.ID),
	).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("acquire sync lock for %s: %w", tenant.ID, err)
	}
	if !acquired {
		return sentinel.ErrLockHeld
	}

	if err := fn(txcontext.WithTx(ctx, txn)); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit sync: %w", err)
	}
	return nil
}

func tenantLockKey(clinicID id.ClinicID) int32 {
	h := fnv.New32a()
	h.Write([]byte(clinicID.String()))
	return int32(h.Sum32())
}

package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"pagemd/internal/governance/metrics"
	"pagemd/internal/platformaudit"
	id "pagemd/pkg/domain"
	dErrors "pagemd/pkg/domain-errors"
	"pagemd/pkg/platform/sentinel"
	pstrings "pagemd/pkg/platform/strings"
)

// syncAllParallelism bounds how many clinics a platform-wide sync touches at
// once. Each clinic sync serializes on its own lock, so parallelism across
// clinics is safe.
const syncAllParallelism = 4

var roleKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]{1,49}$`)

// ChainWriter records privileged governance actions on the platform audit
// chain. Satisfied by platformaudit.Writer.
type ChainWriter interface {
	Append(ctx context.Context, action string, targetClinicID *id.ClinicID, details any) (platformaudit.Entry, error)
}

// Service owns the template catalog and reconciles tenant roles against it.
type Service struct {
	templates TemplateStore
	roles     RoleStore
	clinics   ClinicDirectory
	chain     ChainWriter
	locker    SyncLocker
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLocker replaces the default in-process locker, e.g. with the redis
// locker when the platform API runs more than one replica.
func WithLocker(locker SyncLocker) Option {
	return func(s *Service) { s.locker = locker }
}

func NewService(templates TemplateStore, roles RoleStore, clinics ClinicDirectory, chain ChainWriter, opts ...Option) *Service {
	s := &Service{
		templates: templates,
		roles:     roles,
		clinics:   clinics,
		chain:     chain,
		locker:    NewMemoryLocker(),
		logger:    slog.Default(),
		tracer:    otel.Tracer("pagemd/governance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TemplateInput carries the mutable template fields for create and update.
type TemplateInput struct {
	RoleKey     string   `json:"roleKey"`
	DisplayName string   `json:"displayName"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Privileges  []string `json:"privileges"`
}

func (in *TemplateInput) validate(requireKey bool) error {
	if requireKey && !roleKeyPattern.MatchString(in.RoleKey) {
		return dErrors.New(dErrors.CodeValidation,
			"role key must be UPPER_SNAKE, 2-50 characters")
	}
	if in.DisplayName == "" || len(in.DisplayName) > 100 {
		return dErrors.New(dErrors.CodeValidation,
			"display name is required and at most 100 characters")
	}
	in.Privileges = pstrings.DedupeAndTrim(in.Privileges)
	if len(in.Privileges) == 0 {
		return dErrors.New(dErrors.CodeValidation, "a template grants at least one privilege")
	}
	var outside []string
	for _, p := range in.Privileges {
		if !InCatalog(p) {
			outside = append(outside, p)
		}
	}
	if len(outside) > 0 {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("privileges not in the platform catalog: %v", outside))
	}
	return nil
}

func (s *Service) ListTemplates(ctx context.Context) ([]RoleTemplate, error) {
	return s.templates.ListTemplates(ctx)
}

func (s *Service) GetTemplate(ctx context.Context, roleKey string) (RoleTemplate, error) {
	tpl, err := s.templates.FindByKey(ctx, roleKey)
	if errors.Is(err, sentinel.ErrNotFound) {
		return RoleTemplate{}, dErrors.New(dErrors.CodeNotFound, "role template not found")
	}
	return tpl, err
}

// CreateTemplate adds a template to the catalog and records the action on
// the chain. The role key is fixed for the template's lifetime.
func (s *Service) CreateTemplate(ctx context.Context, operatorID id.OperatorID, in TemplateInput) (RoleTemplate, error) {
	if err := in.validate(true); err != nil {
		return RoleTemplate{}, err
	}

	tpl := RoleTemplate{
		RoleKey:     in.RoleKey,
		DisplayName: in.DisplayName,
		Description: in.Description,
		Version:     1,
		Required:    in.Required,
		Privileges:  in.Privileges,
		UpdatedBy:   operatorID,
	}
	// One transaction: a template that cannot be audited is not created.
	err := s.templates.InTx(ctx, func(ctx context.Context) error {
		if err := s.templates.CreateTemplate(ctx, &tpl); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict,
					fmt.Sprintf("role template %s already exists", in.RoleKey))
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "create role template")
		}
		_, err := s.chain.Append(ctx, platformaudit.ActionRoleTemplateCreated, nil, templateAuditDetails{
			RoleKey:    tpl.RoleKey,
			Version:    tpl.Version,
			OperatorID: operatorID.String(),
		})
		return err
	})
	if err != nil {
		return RoleTemplate{}, err
	}
	return tpl, nil
}

// UpdateTemplate replaces the mutable fields of a template. A change to the
// privilege set bumps the version; metadata-only edits do not. The store
// decides the bump against the stored set, so it cannot be lost to a
// concurrent update.
func (s *Service) UpdateTemplate(ctx context.Context, operatorID id.OperatorID, roleKey string, in TemplateInput) (RoleTemplate, error) {
	in.RoleKey = roleKey
	if err := in.validate(false); err != nil {
		return RoleTemplate{}, err
	}

	var updated RoleTemplate
	err := s.templates.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.GetTemplate(ctx, roleKey)
		if err != nil {
			return err
		}

		updated = existing
		updated.DisplayName = in.DisplayName
		updated.Description = in.Description
		updated.Required = in.Required
		updated.Privileges = in.Privileges
		updated.UpdatedBy = operatorID

		version, err := s.templates.UpdateTemplate(ctx, updated)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update role template")
		}
		updated.Version = version

		_, err = s.chain.Append(ctx, platformaudit.ActionRoleTemplateUpdated, nil, templateAuditDetails{
			RoleKey:    updated.RoleKey,
			Version:    updated.Version,
			OperatorID: operatorID.String(),
		})
		return err
	})
	if err != nil {
		return RoleTemplate{}, err
	}
	return updated, nil
}

// DeleteTemplate removes a template from the catalog. Tenant roles created
// from it keep their privileges and their now-dangling link; they surface as
// unlinked in later drift reports instead of being touched here.
func (s *Service) DeleteTemplate(ctx context.Context, operatorID id.OperatorID, roleKey string) error {
	return s.templates.InTx(ctx, func(ctx context.Context) error {
		tpl, err := s.GetTemplate(ctx, roleKey)
		if err != nil {
			return err
		}
		if err := s.templates.DeleteTemplate(ctx, roleKey); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "role template not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "delete role template")
		}

		_, err = s.chain.Append(ctx, platformaudit.ActionRoleTemplateDeleted, nil, templateAuditDetails{
			RoleKey:    tpl.RoleKey,
			Version:    tpl.Version,
			OperatorID: operatorID.String(),
		})
		return err
	})
}

// DetectDrift classifies every template against one clinic's roles. Pure
// read: safe to run while a sync is in flight, though a report raced against
// a sync may be stale by the time it is rendered.
func (s *Service) DetectDrift(ctx context.Context, clinicID id.ClinicID) ([]DriftReport, error) {
	ctx, span := s.tracer.Start(ctx, "governance.DetectDrift",
		trace.WithAttributes(attribute.String("clinic.id", clinicID.String())))
	defer span.End()

	tenant, err := s.clinics.Tenant(ctx, clinicID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "clinic not found")
	}
	if err != nil {
		return nil, err
	}

	templates, err := s.templates.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := s.roles.ListRoles(ctx, tenant)
	if err != nil {
		return nil, err
	}

	reports := make([]DriftReport, 0, len(templates))
	drifted := 0
	for _, tpl := range templates {
		report := compareRole(tpl, roles)
		if report.Status != StatusSynced {
			drifted++
		}
		reports = append(reports, report)
	}
	if s.metrics != nil {
		s.metrics.ObserveDriftRun(drifted)
	}
	span.SetAttributes(attribute.Int("drift.findings", drifted))
	return reports, nil
}

// SyncRole forces one clinic role to match its template. The whole
// reconciliation runs in one transaction under the tenant's sync lock;
// concurrent callers for the same clinic get CodeSyncInProgress immediately.
// Syncing an already-synced role is a no-op apart from a fresh chain entry.
func (s *Service) SyncRole(ctx context.Context, clinicID id.ClinicID, roleKey string, operatorID id.OperatorID) (SyncResult, error) {
	ctx, span := s.tracer.Start(ctx, "governance.SyncRole",
		trace.WithAttributes(
			attribute.String("clinic.id", clinicID.String()),
			attribute.String("role.key", roleKey),
		))
	defer span.End()

	tenant, err := s.clinics.Tenant(ctx, clinicID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return SyncResult{}, dErrors.New(dErrors.CodeNotFound, "clinic not found")
	}
	if err != nil {
		return SyncResult{}, err
	}
	tpl, err := s.GetTemplate(ctx, roleKey)
	if err != nil {
		return SyncResult{}, err
	}

	release, err := s.locker.TryLock(ctx, clinicID)
	if errors.Is(err, sentinel.ErrLockHeld) {
		if s.metrics != nil {
			s.metrics.IncSyncConflicts()
		}
		return SyncResult{}, dErrors.New(dErrors.CodeSyncInProgress,
			"a sync for this clinic is already running")
	}
	if err != nil {
		return SyncResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "acquire sync lock")
	}
	defer release()

	var result SyncResult
	err = s.roles.InSyncTx(ctx, tenant, func(ctx context.Context) error {
		var txErr error
		result, txErr = s.reconcileRole(ctx, tenant, tpl, operatorID)
		return txErr
	})
	if errors.Is(err, sentinel.ErrLockHeld) {
		if s.metrics != nil {
			s.metrics.IncSyncConflicts()
		}
		return SyncResult{}, dErrors.New(dErrors.CodeSyncInProgress,
			"a sync for this clinic is already running")
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncSyncFailures()
		}
		return SyncResult{}, err
	}

	if s.metrics != nil {
		s.metrics.IncSyncs()
	}
	s.logger.InfoContext(ctx, "role synced",
		"clinic_id", clinicID,
		"role_key", roleKey,
		"template_version", result.TemplateVersion,
		"created", result.Created,
	)
	return result, nil
}

// reconcileRole runs inside the sync transaction. Resolution prefers the
// template link; a role found by name is adopted and re-linked, which also
// restores the canonical display name after a tenant rename.
func (s *Service) reconcileRole(ctx context.Context, tenant Tenant, tpl RoleTemplate, operatorID id.OperatorID) (SyncResult, error) {
	created := false
	role, err := s.roles.FindRoleByTemplate(ctx, tenant, tpl.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		role, err = s.roles.FindRoleByName(ctx, tenant, tpl.RoleKey, tpl.DisplayName)
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		roleID, createErr := s.roles.CreateRole(ctx, tenant, tpl.DisplayName,
			"Standard platform role: "+tpl.DisplayName, tpl.ID)
		if createErr != nil {
			return SyncResult{}, dErrors.Wrap(createErr, dErrors.CodeInternal, "create clinic role")
		}
		role = ClinicRole{ID: roleID, Name: tpl.DisplayName}
		created = true
	case err != nil:
		return SyncResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "resolve clinic role")
	default:
		if err := s.roles.RelinkRole(ctx, tenant, role.ID, tpl.ID, tpl.DisplayName); err != nil {
			return SyncResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "relink clinic role")
		}
	}

	missingBefore, extraBefore, _ := diffPrivileges(tpl.Privileges, role.Privileges)

	if err := s.roles.ReplacePrivileges(ctx, tenant, role.ID, tpl.Privileges); err != nil {
		return SyncResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "replace role privileges")
	}

	// The chain entry joins the reconciliation transaction via the context:
	// either both land or neither does.
	clinicID := tenant.ID
	if _, err := s.chain.Append(ctx, platformaudit.ActionRoleForceSync, &clinicID, syncAuditDetails{
		RoleKey:         tpl.RoleKey,
		TemplateVersion: tpl.Version,
		OperatorID:      operatorID.String(),
		Diff: SyncDiff{
			MissingBefore: missingBefore,
			ExtraBefore:   extraBefore,
		},
	}); err != nil {
		return SyncResult{}, err
	}

	return SyncResult{RoleKey: tpl.RoleKey, TemplateVersion: tpl.Version, Created: created}, nil
}

// SyncAllClinics applies every template to every active clinic. Clinics run
// concurrently under a bounded group; templates within a clinic run in
// order. Per-clinic failures are collected, not fatal: one broken tenant
// must not stop the fleet.
func (s *Service) SyncAllClinics(ctx context.Context, operatorID id.OperatorID) ([]ClinicSyncOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "governance.SyncAllClinics")
	defer span.End()

	tenants, err := s.clinics.ActiveTenants(ctx)
	if err != nil {
		return nil, err
	}
	templates, err := s.templates.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		outcomes []ClinicSyncOutcome
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(syncAllParallelism)
	for _, tenant := range tenants {
		g.Go(func() error {
			outcome := ClinicSyncOutcome{ClinicID: tenant.ID}
			for _, tpl := range templates {
				if _, err := s.SyncRole(ctx, tenant.ID, tpl.RoleKey, operatorID); err != nil {
					if outcome.Failed == nil {
						outcome.Failed = make(map[string]string)
					}
					outcome.Failed[tpl.RoleKey] = err.Error()
					s.logger.WarnContext(ctx, "clinic role sync failed",
						"clinic_id", tenant.ID, "role_key", tpl.RoleKey, "error", err)
					continue
				}
				outcome.Synced = append(outcome.Synced, tpl.RoleKey)
			}
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].ClinicID.String() < outcomes[j].ClinicID.String()
	})
	span.SetAttributes(attribute.Int("clinics", len(outcomes)))
	return outcomes, nil
}

func samePrivileges(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, p := range a {
		set[p] = struct{}{}
	}
	for _, p := range b {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}

type templateAuditDetails struct {
	RoleKey    string `json:"roleKey"`
	Version    int    `json:"version"`
	OperatorID string `json:"operatorId"`
}

type syncAuditDetails struct {
	RoleKey         string   `json:"roleKey"`
	TemplateVersion int      `json:"templateVersion"`
	OperatorID      string   `json:"operatorId"`
	Diff            SyncDiff `json:"diff"`
}

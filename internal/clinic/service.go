package clinic

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pagemd/internal/audit"
	"pagemd/internal/platformaudit"
	id "pagemd/pkg/domain"
	dErrors "pagemd/pkg/domain-errors"
	"pagemd/pkg/platform/sentinel"
)

// impersonationTTL bounds how long a break-glass ticket can sit unredeemed.
const impersonationTTL = 5 * time.Minute

// ChainWriter records privileged clinic actions on the platform audit chain.
// Satisfied by platformaudit.Writer.
type ChainWriter interface {
	Append(ctx context.Context, action string, targetClinicID *id.ClinicID, details any) (platformaudit.Entry, error)
}

// ClinicalRecorder lands break-glass access on the clinical stream so the
// affected clinic sees it in its own audit trail, not only on the chain.
type ClinicalRecorder interface {
	Record(ctx context.Context, event audit.Event)
}

// Service owns clinic lifecycle and break-glass impersonation.
type Service struct {
	store    Store
	grants   GrantStore
	chain    ChainWriter
	recorder ClinicalRecorder
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClinicalRecorder enables the clinical-stream copy of break-glass
// events. Without it only the chain entry is written.
func WithClinicalRecorder(recorder ClinicalRecorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

func NewService(store Store, grants GrantStore, chain ChainWriter, opts ...Option) *Service {
	s := &Service{
		store:  store,
		grants: grants,
		chain:  chain,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) List(ctx context.Context) ([]Clinic, error) {
	return s.store.List(ctx)
}

func (s *Service) Get(ctx context.Context, clinicID id.ClinicID) (Clinic, error) {
	c, err := s.store.FindByID(ctx, clinicID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Clinic{}, dErrors.New(dErrors.CodeNotFound, "clinic not found")
	}
	return c, err
}

// statusActions maps the target status to its chain action name.
var statusActions = map[Status]string{
	StatusActive:      platformaudit.ActionClinicReactivated,
	StatusSuspended:   platformaudit.ActionClinicSuspended,
	StatusDeactivated: platformaudit.ActionClinicDeactivated,
}

type statusAuditDetails struct {
	From       Status `json:"from"`
	To         Status `json:"to"`
	Reason     string `json:"reason,omitempty"`
	OperatorID string `json:"operatorId"`
}

// SetStatus moves a clinic through its lifecycle and records the transition
// on the chain. Invalid transitions, including anything out of deactivated,
// are rejected before any write.
func (s *Service) SetStatus(ctx context.Context, operatorID id.OperatorID, clinicID id.ClinicID, to Status, reason string) (Clinic, error) {
	action, known := statusActions[to]
	if !known {
		return Clinic{}, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("unknown clinic status %q", to))
	}

	c, err := s.Get(ctx, clinicID)
	if err != nil {
		return Clinic{}, err
	}
	if !c.CanTransition(to) {
		return Clinic{}, dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("clinic cannot move from %s to %s", c.Status, to))
	}

	// One transaction: the status change and its chain entry land together
	// or not at all.
	err = s.store.InTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateStatus(ctx, clinicID, to); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update clinic status")
		}
		_, err := s.chain.Append(ctx, action, &clinicID, statusAuditDetails{
			From:       c.Status,
			To:         to,
			Reason:     reason,
			OperatorID: operatorID.String(),
		})
		return err
	})
	if err != nil {
		return Clinic{}, err
	}

	s.logger.InfoContext(ctx, "clinic status changed",
		"clinic_id", clinicID, "from", c.Status, "to", to, "operator_id", operatorID)

	c.Status = to
	return c, nil
}

// ImpersonationTicket is returned exactly once at issuance; the token is
// not recoverable afterwards.
type ImpersonationTicket struct {
	GrantID   id.GrantID `json:"grantId"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

type impersonationAuditDetails struct {
	GrantID      string `json:"grantId"`
	TargetUserID string `json:"targetUserId"`
	OperatorID   string `json:"operatorId"`
	Reason       string `json:"reason"`
}

// Impersonate issues a break-glass ticket for an operator to act as a clinic
// user. The ticket is short-lived and single-use; issuance lands on the
// chain and on the clinic's own clinical stream.
func (s *Service) Impersonate(ctx context.Context, operatorID id.OperatorID, clinicID id.ClinicID, targetUserID id.UserID, reason string) (ImpersonationTicket, error) {
	if reason == "" {
		return ImpersonationTicket{}, dErrors.New(dErrors.CodeValidation,
			"break-glass access requires a reason")
	}
	c, err := s.Get(ctx, clinicID)
	if err != nil {
		return ImpersonationTicket{}, err
	}
	if c.Status != StatusActive {
		return ImpersonationTicket{}, dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("clinic is %s, impersonation requires an active clinic", c.Status))
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return ImpersonationTicket{}, dErrors.Wrap(err, dErrors.CodeInternal, "generate impersonation token")
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return ImpersonationTicket{}, dErrors.Wrap(err, dErrors.CodeInternal, "hash impersonation token")
	}

	grant := ImpersonationGrant{
		ClinicID:     clinicID,
		TargetUserID: targetUserID,
		OperatorID:   operatorID,
		TokenHash:    hash,
		Reason:       reason,
		ExpiresAt:    time.Now().Add(impersonationTTL),
	}
	// One transaction: an unaudited grant must never become redeemable.
	err = s.store.InTx(ctx, func(ctx context.Context) error {
		if err := s.grants.CreateGrant(ctx, &grant); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist impersonation grant")
		}
		_, err := s.chain.Append(ctx, platformaudit.ActionImpersonationInitiated, &clinicID, impersonationAuditDetails{
			GrantID:      grant.ID.String(),
			TargetUserID: targetUserID.String(),
			OperatorID:   operatorID.String(),
			Reason:       reason,
		})
		return err
	})
	if err != nil {
		return ImpersonationTicket{}, err
	}

	if s.recorder != nil {
		s.recorder.Record(ctx, audit.Event{
			Action:     audit.ActionBreakGlassAccess,
			EntityType: "User",
			EntityID:   targetUserID.String(),
			ClinicID:   clinicID,
		})
	}

	return ImpersonationTicket{GrantID: grant.ID, Token: token, ExpiresAt: grant.ExpiresAt}, nil
}

// Redeem validates and consumes an impersonation ticket, returning the grant
// it stands for. Expired, already-used, and forged tickets all fail with the
// same unauthorized code.
func (s *Service) Redeem(ctx context.Context, grantID id.GrantID, token string) (ImpersonationGrant, error) {
	denied := dErrors.New(dErrors.CodeUnauthorized, "invalid impersonation ticket")

	grant, err := s.grants.FindGrant(ctx, grantID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return ImpersonationGrant{}, denied
	}
	if err != nil {
		return ImpersonationGrant{}, dErrors.Wrap(err, dErrors.CodeInternal, "load impersonation grant")
	}
	if time.Now().After(grant.ExpiresAt) {
		return ImpersonationGrant{}, denied
	}
	if bcrypt.CompareHashAndPassword(grant.TokenHash, []byte(token)) != nil {
		return ImpersonationGrant{}, denied
	}

	if err := s.grants.MarkUsed(ctx, grantID); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return ImpersonationGrant{}, denied
		}
		return ImpersonationGrant{}, dErrors.Wrap(err, dErrors.CodeInternal, "consume impersonation grant")
	}
	return grant, nil
}

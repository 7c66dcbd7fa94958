package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/casbin/casbin/v3"
	"github.com/keyfold/keyfold/internal/pkg/clock"
	"github.com/keyfold/keyfold/internal/pkg/config"
	"github.com/keyfold/keyfold/internal/pkg/goerror"
	"github.com/keyfold/keyfold/internal/pkg/hash"
	"github.com/keyfold/keyfold/internal/pkg/idempotency"
	"github.com/keyfold/keyfold/internal/pkg/instrument"
	"github.com/keyfold/keyfold/internal/pkg/jwt"
	"github.com/keyfold/keyfold/internal/pkg/passcode"
	"github.com/keyfold/keyfold/internal/pkg/secrets"
	"github.com/keyfold/keyfold/internal/pkg/storage"
	"github.com/keyfold/keyfold/internal/pkg/uid"
	"github.com/keyfold/keyfold/internal/pkg/validator"
	"github.com/keyfold/keyfold/internal/pkg/valueobject"
	"github.com/keyfold/keyfold/internal/vault/entity"
	"go.opentelemetry.io/otel/trace"
)

type AssignmentCreatedEvent struct {
	CredentialID int64
	GranteeIDs   []int64
	AssignedBy   int64
}

type repoMessaging interface {
	PublishAssignmentCreated(ctx context.Context, msg AssignmentCreatedEvent) error
}

type repoDB interface {
	GetCredentialByID(ctx context.Context, id int64) (*entity.Credential, error)
	GetAssignment(ctx context.Context, credentialID, userID int64) (*entity.Assignment, error)
	ListAssignments(ctx context.Context, credentialID int64) ([]entity.AssignmentInfo, error)
	CreateAssignments(ctx context.Context, ins []entity.NewAssignment) error
	DeleteAssignment(ctx context.Context, credentialID, userID int64) (bool, error)

	CreateOTPRequest(ctx context.Context, in entity.OTPRequest) error
	CountOutstandingOTPRequests(ctx context.Context, credentialID, userID int64, now time.Time) (int64, error)
	ConsumeOTPRequest(ctx context.Context, credentialID, userID int64, codeHash string, now time.Time) (*entity.OTPRequest, error)
	LookupOTPRequest(ctx context.Context, credentialID, userID int64, codeHash string) (*entity.OTPRequest, error)
	CreateRevealGrant(ctx context.Context, in entity.RevealGrant) error
	ConsumeRevealGrant(ctx context.Context, credentialID, userID int64, tokenHash string, now time.Time) (bool, error)

	CreateAuditEvent(ctx context.Context, in entity.AuditEvent) error
	ListAuditEvents(ctx context.Context, from, to time.Time, afterID int64, limit int32) ([]entity.AuditEvent, error)
}

type Usecase struct {
	repoDB        repoDB
	repoMessaging repoMessaging
	idemp         idempotency.Idempotency
	validator     validator.Validator
	cfg           config.Config
	storage       storage.Storage
	hmac          hash.Hash
	encryptor     secrets.Encryptor
	passcode      passcode.Generator
	uid           uid.NumberID
	oid           uid.StringID
	clock         clock.Clocker
	ins           instrument.Instrumentation
	enforcer      *casbin.Enforcer
}

type Dependency struct {
	RepoDB        repoDB
	RepoMessaging repoMessaging
	Idempotency   idempotency.Idempotency
	Validator     validator.Validator
	Config        config.Config
	Storage       storage.Storage
	HMAC          hash.Hash
	Encryptor     secrets.Encryptor
	Passcode      passcode.Generator
	UID           uid.NumberID
	OID           uid.StringID
	Clock         clock.Clocker
	Instrument    instrument.Instrumentation
	Enforcer      *casbin.Enforcer
}

func New(dep Dependency) *Usecase {
	return &Usecase{
		repoDB:        dep.RepoDB,
		repoMessaging: dep.RepoMessaging,
		idemp:         dep.Idempotency,
		validator:     dep.Validator,
		cfg:           dep.Config,
		storage:       dep.Storage,
		hmac:          dep.HMAC,
		encryptor:     dep.Encryptor,
		passcode:      dep.Passcode,
		uid:           dep.UID,
		oid:           dep.OID,
		clock:         dep.Clock,
		ins:           dep.Instrument,
		enforcer:      dep.Enforcer,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("vault.usecase").Start(ctx, name)
}

func (s *Usecase) authenticated(ctx context.Context) (*jwt.Claims, error) {
	clm := jwt.GetAuth(ctx)
	if clm == nil {
		return nil, goerror.NewBusiness("Authentication required", goerror.CodeUnauthorized)
	}
	return clm, nil
}

func (s *Usecase) authenticatedAndAuthorized(ctx context.Context, obj, act string) (*jwt.Claims, error) {
	clm, err := s.authenticated(ctx)
	if err != nil {
		return nil, err
	}

	ok, err := s.enforcer.Enforce(clm.Subject, obj, act)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check authorization", "user_id", clm.Subject, "error", err)
		return nil, goerror.NewServer(err)
	}

	if !ok {
		return nil, goerror.NewBusiness("Account not allowed", goerror.CodeForbidden)
	}

	return clm, nil
}

// authorizeAccess is the gate every secret-touching operation passes through:
// the credential must exist and the caller must hold an active assignment.
// The check is re-run on each call, so a revocation takes effect immediately
// even when the caller already holds an unexpired passcode.
func (s *Usecase) authorizeAccess(ctx context.Context, credentialID, userID int64) (*entity.Credential, error) {
	cred, err := s.repoDB.GetCredentialByID(ctx, credentialID)
	if err != nil {
		if errors.Is(err, goerror.ErrNotFound) {
			return nil, goerror.NewBusiness("Credential not found", goerror.CodeNotFound)
		}
		slog.ErrorContext(ctx, "failed to repo get credential", "credential_id", credentialID, "error", err)
		return nil, goerror.NewServer(err)
	}

	if _, err := s.repoDB.GetAssignment(ctx, credentialID, userID); err != nil {
		if errors.Is(err, goerror.ErrNotFound) {
			slog.WarnContext(ctx, "credential is not assigned to user",
				"credential_id", credentialID, "user_id", userID)
			return nil, goerror.NewBusiness("Credential not assigned to you", goerror.CodeForbidden)
		}
		slog.ErrorContext(ctx, "failed to repo get assignment",
			"credential_id", credentialID, "user_id", userID, "error", err)
		return nil, goerror.NewServer(err)
	}

	return cred, nil
}

// audit appends to the trail. Failures are logged, never surfaced; auditing
// must not fail an operation that already committed.
func (s *Usecase) audit(ctx context.Context, credentialID, actorID int64, action entity.AuditAction, meta valueobject.JSONMap) {
	ev := entity.AuditEvent{
		ID:           s.uid.Generate(),
		CredentialID: credentialID,
		ActorID:      actorID,
		Action:       action,
		Metadata:     meta,
	}
	if err := s.repoDB.CreateAuditEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "failed to append audit event",
			"credential_id", credentialID, "action", action.String(), "error", err)
	}
}

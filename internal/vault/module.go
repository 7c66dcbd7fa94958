package vault

import (
	"github.com/casbin/casbin/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keyfold/keyfold/internal/pkg/clock"
	"github.com/keyfold/keyfold/internal/pkg/config"
	"github.com/keyfold/keyfold/internal/pkg/hash"
	"github.com/keyfold/keyfold/internal/pkg/idempotency"
	"github.com/keyfold/keyfold/internal/pkg/instrument"
	"github.com/keyfold/keyfold/internal/pkg/messaging"
	"github.com/keyfold/keyfold/internal/pkg/passcode"
	"github.com/keyfold/keyfold/internal/pkg/router"
	"github.com/keyfold/keyfold/internal/pkg/secrets"
	"github.com/keyfold/keyfold/internal/pkg/storage"
	"github.com/keyfold/keyfold/internal/pkg/uid"
	"github.com/keyfold/keyfold/internal/pkg/validator"
	"github.com/keyfold/keyfold/internal/vault/inbound"
	"github.com/keyfold/keyfold/internal/vault/outbound/db"
	"github.com/keyfold/keyfold/internal/vault/outbound/mq"
	"github.com/keyfold/keyfold/internal/vault/usecase"
)

type Dependency struct {
	DBConn      *pgxpool.Pool              `validate:"required"`
	Enforcer    *casbin.Enforcer           `validate:"required"`
	Router      *router.Router             `validate:"required"`
	Idempotency idempotency.Idempotency    `validate:"required"`
	Messaging   messaging.Messaging        `validate:"required"`
	Storage     storage.Storage            `validate:"required"`
	Config      config.Config              `validate:"required"`
	Instrument  instrument.Instrumentation `validate:"required"`
	UID         uid.NumberID               `validate:"required"`
	OID         uid.StringID               `validate:"required"`
	HMAC        hash.Hash                  `validate:"required"`
	Encryptor   secrets.Encryptor          `validate:"required"`
	Passcode    passcode.Generator         `validate:"required"`
	Clock       clock.Clocker              `validate:"required"`
	Validator   validator.Validator        `validate:"required"`
}

func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	dbVault := db.NewDB(dep.DBConn, dep.Instrument)
	repoMsg := mq.NewMessaging(dep.Messaging, dep.Instrument)

	uc := usecase.New(usecase.Dependency{
		RepoDB:        dbVault,
		RepoMessaging: repoMsg,
		Idempotency:   dep.Idempotency,
		Validator:     dep.Validator,
		Config:        dep.Config,
		Storage:       dep.Storage,
		HMAC:          dep.HMAC,
		Encryptor:     dep.Encryptor,
		Passcode:      dep.Passcode,
		UID:           dep.UID,
		OID:           dep.OID,
		Clock:         dep.Clock,
		Instrument:    dep.Instrument,
		Enforcer:      dep.Enforcer,
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc)

	return nil
}

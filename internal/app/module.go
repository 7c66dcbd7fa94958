package app

import (
	"log/slog"
	"os"

	"github.com/keyfold/keyfold/internal/notification"
	"github.com/keyfold/keyfold/internal/vault"
)

func (a *App) initModules() {
	if a.config.GetBool("modules.vault.enabled") {
		if err := vault.New(vault.Dependency{
			Config:      a.config,
			Instrument:  a.ins,
			UID:         a.uid,
			OID:         a.oid,
			HMAC:        a.hmac,
			Encryptor:   a.encryptor,
			Passcode:    a.passcode,
			Clock:       a.clock,
			Validator:   a.validator,
			Router:      a.router,
			DBConn:      a.dbConn,
			Idempotency: a.idemp,
			Messaging:   a.messaging,
			Storage:     a.storage,
			Enforcer:    a.casbin,
		}); err != nil {
			slog.Error("failed to init module vault", "error", err)
			os.Exit(1)
		}
	}

	if a.config.GetBool("modules.notification.enabled") {
		if err := notification.New(notification.Dependency{
			Ctx:        a.ctx,
			DBConn:     a.dbConn,
			Messaging:  a.messaging,
			Config:     a.config,
			Instrument: a.ins,
			UID:        a.uid,
			UUID:       a.uuid,
			Clock:      a.clock,
			Goroutine:  a.goroutine,
			Validator:  a.validator,
			Mail:       a.mail,
		}); err != nil {
			slog.Error("failed to init module notification", "error", err)
			os.Exit(1)
		}
	}
}

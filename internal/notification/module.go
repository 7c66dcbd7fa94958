package notification

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keyfold/keyfold/internal/notification/inbound"
	"github.com/keyfold/keyfold/internal/notification/outbound/db"
	"github.com/keyfold/keyfold/internal/notification/outbound/email"
	"github.com/keyfold/keyfold/internal/notification/usecase"
	"github.com/keyfold/keyfold/internal/pkg/clock"
	"github.com/keyfold/keyfold/internal/pkg/config"
	"github.com/keyfold/keyfold/internal/pkg/goroutine"
	"github.com/keyfold/keyfold/internal/pkg/instrument"
	"github.com/keyfold/keyfold/internal/pkg/mail"
	"github.com/keyfold/keyfold/internal/pkg/messaging"
	"github.com/keyfold/keyfold/internal/pkg/uid"
	"github.com/keyfold/keyfold/internal/pkg/validator"
)

type Dependency struct {
	Ctx        context.Context
	DBConn     *pgxpool.Pool
	Messaging  messaging.Messaging
	Config     config.Config
	Instrument instrument.Instrumentation
	UID        uid.NumberID
	UUID       uid.StringID
	Clock      clock.Clocker
	Goroutine  *goroutine.Manager
	Validator  validator.Validator
	Mail       mail.Mail
}

func New(dep Dependency) error {
	dbNotif := db.NewDB(dep.DBConn, dep.Instrument)
	repoMail := email.New(dep.Mail, dep.Instrument)

	uc := usecase.NewNotification(usecase.Dependency{
		RepoDB:     dbNotif,
		RepoMail:   repoMail,
		Config:     dep.Config,
		UID:        dep.UID,
		Clock:      dep.Clock,
		Validator:  dep.Validator,
		Instrument: dep.Instrument,
	})

	if dep.Ctx != nil {
		inbound.RegisterMQConsumer(dep.Ctx, dep.Config, dep.Goroutine, dep.Messaging, dep.UUID, uc, dep.Instrument)
	}

	return nil
}

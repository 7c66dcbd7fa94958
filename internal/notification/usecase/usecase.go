package usecase

import (
	"bytes"
	"context"
	"html/template"

	"github.com/keyfold/keyfold/internal/notification/entity"
	"github.com/keyfold/keyfold/internal/pkg/clock"
	"github.com/keyfold/keyfold/internal/pkg/config"
	"github.com/keyfold/keyfold/internal/pkg/instrument"
	"github.com/keyfold/keyfold/internal/pkg/mail"
	"github.com/keyfold/keyfold/internal/pkg/uid"
	"github.com/keyfold/keyfold/internal/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

type repoDB interface {
	GetGranteeByID(ctx context.Context, id int64) (*entity.Grantee, error)
	GetCredentialSummary(ctx context.Context, id int64) (*entity.CredentialSummary, error)
	MarkNotificationSent(ctx context.Context, credentialID, userID int64) (bool, error)

	CreateDeliveryLog(ctx context.Context, in entity.CreateDeliveryLog) error
	UpdateDeliveryLogStatus(ctx context.Context, in entity.UpdateDeliveryLog) error
}

type repoMail interface {
	Send(ctx context.Context, msg mail.Message) error
}

type Usecase struct {
	repoDB    repoDB
	repoMail  repoMail
	cfg       config.Config
	uid       uid.NumberID
	clock     clock.Clocker
	validator validator.Validator
	ins       instrument.Instrumentation
}

type Dependency struct {
	RepoDB     repoDB
	RepoMail   repoMail
	Config     config.Config
	UID        uid.NumberID
	Clock      clock.Clocker
	Validator  validator.Validator
	Instrument instrument.Instrumentation
}

func NewNotification(dep Dependency) *Usecase {
	return &Usecase{
		repoDB:    dep.RepoDB,
		repoMail:  dep.RepoMail,
		cfg:       dep.Config,
		uid:       dep.UID,
		clock:     dep.Clock,
		validator: dep.Validator,
		ins:       dep.Instrument,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("notification.usecase").Start(ctx, name)
}

func (s *Usecase) renderTemplate(name, tpl string, data map[string]any) (string, error) {
	t, err := template.New(name).Option("missingkey=zero").Parse(tpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *Usecase) baseEmailTemplateData() map[string]any {
	return map[string]any{
		"support_email": s.cfg.GetString("modules.notification.support_email"),
		"company_name":  s.cfg.GetString("modules.notification.company_name"),
		"year":          s.clock.Now().Format("2006"),
	}
}

package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/keyfold/keyfold/internal/notification/entity"
	"github.com/keyfold/keyfold/internal/pkg/goerror"
	"github.com/keyfold/keyfold/internal/pkg/instrument"
	"github.com/keyfold/keyfold/internal/pkg/mail"
	"github.com/keyfold/keyfold/internal/pkg/validator"
)

type fakeRepo struct {
	grantees    map[int64]entity.Grantee
	credentials map[int64]entity.CredentialSummary
	revoked     map[int64]bool // userID -> assignment already gone

	created []entity.CreateDeliveryLog
	updated []entity.UpdateDeliveryLog
	marked  []int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		grantees:    make(map[int64]entity.Grantee),
		credentials: make(map[int64]entity.CredentialSummary),
		revoked:     make(map[int64]bool),
	}
}

func (f *fakeRepo) GetGranteeByID(_ context.Context, id int64) (*entity.Grantee, error) {
	g, ok := f.grantees[id]
	if !ok {
		return nil, goerror.ErrNotFound
	}
	return &g, nil
}

func (f *fakeRepo) GetCredentialSummary(_ context.Context, id int64) (*entity.CredentialSummary, error) {
	c, ok := f.credentials[id]
	if !ok {
		return nil, goerror.ErrNotFound
	}
	return &c, nil
}

func (f *fakeRepo) MarkNotificationSent(_ context.Context, _, userID int64) (bool, error) {
	f.marked = append(f.marked, userID)
	return !f.revoked[userID], nil
}

func (f *fakeRepo) CreateDeliveryLog(_ context.Context, in entity.CreateDeliveryLog) error {
	f.created = append(f.created, in)
	return nil
}

func (f *fakeRepo) UpdateDeliveryLogStatus(_ context.Context, in entity.UpdateDeliveryLog) error {
	f.updated = append(f.updated, in)
	return nil
}

type fakeMail struct {
	sent    []mail.Message
	failFor map[string]error // recipient -> error
}

func (f *fakeMail) Send(_ context.Context, msg mail.Message) error {
	for _, to := range msg.To {
		if err := f.failFor[to]; err != nil {
			return err
		}
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqNumberID struct{ n int64 }

func (s *seqNumberID) Generate() int64 {
	s.n++
	return s.n
}

type testConfig struct{ strings map[string]string }

func (c *testConfig) Close() error { return nil }
func (c *testConfig) GetSecond(string) time.Duration { return 0 }
func (c *testConfig) GetMinute(string) time.Duration { return 0 }
func (c *testConfig) GetHour(string) time.Duration { return 0 }
func (c *testConfig) GetDay(string) time.Duration { return 0 }
func (c *testConfig) GetInt(string) int { return 0 }
func (c *testConfig) GetInt32(string) int32 { return 0 }
func (c *testConfig) GetInt64(string) int64 { return 0 }
func (c *testConfig) GetUint(string) uint { return 0 }
func (c *testConfig) GetUint16(string) uint16 { return 0 }
func (c *testConfig) GetUint32(string) uint32 { return 0 }
func (c *testConfig) GetUint64(string) uint64 { return 0 }
func (c *testConfig) GetFloat32(string) float32 { return 0 }
func (c *testConfig) GetFloat64(string) float64 { return 0 }
func (c *testConfig) GetBool(string) bool { return false }
func (c *testConfig) GetString(key string) string { return c.strings[key] }
func (c *testConfig) GetBinary(string) []byte { return nil }
func (c *testConfig) GetArray(string) []string { return nil }
func (c *testConfig) GetMap(string) map[string]string { return nil }

type testEnv struct {
	uc   *Usecase
	repo *fakeRepo
	mail *fakeMail
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	v, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("init validator: %v", err)
	}

	repo := newFakeRepo()
	fm := &fakeMail{failFor: make(map[string]error)}

	uc := NewNotification(Dependency{
		RepoDB:   repo,
		RepoMail: fm,
		Config: &testConfig{strings: map[string]string{
			"modules.notification.support_email": "support@keyfold.dev",
			"modules.notification.company_name":  "Keyfold",
			"app.web":                            "https://vault.keyfold.dev",
		}},
		UID:        &seqNumberID{},
		Clock:      fixedClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)},
		Validator:  v,
		Instrument: instrument.NewNoop(),
	})

	return &testEnv{uc: uc, repo: repo, mail: fm}
}

func TestConsumeAssignmentCreated(t *testing.T) {
	t.Run("mails every grantee and marks the assignment", func(t *testing.T) {
		env := newTestEnv(t)
		env.repo.credentials[10] = entity.CredentialSummary{ID: 10, WebsiteName: "Example", WebsiteURL: "https://example.com"}
		env.repo.grantees[1] = entity.Grantee{ID: 1, Email: "admin@example.com", FullName: "Ada Admin"}
		env.repo.grantees[2] = entity.Grantee{ID: 2, Email: "two@example.com", FullName: "User Two"}
		env.repo.grantees[3] = entity.Grantee{ID: 3, Email: "three@example.com", FullName: "User Three"}

		err := env.uc.ConsumeAssignmentCreated(t.Context(), ConsumeAssignmentCreatedInput{
			CredentialID: 10,
			GranteeIDs:   []int64{2, 3},
			AssignedBy:   1,
		})
		if err != nil {
			t.Fatalf("ConsumeAssignmentCreated: %v", err)
		}

		if len(env.mail.sent) != 2 {
			t.Fatalf("sent = %d, want 2", len(env.mail.sent))
		}
		body := env.mail.sent[0].HTMLBody
		for _, want := range []string{"User Two", "Ada Admin", "Example", "https://vault.keyfold.dev", "Keyfold"} {
			if !strings.Contains(body, want) {
				t.Fatalf("email body missing %q:\n%s", want, body)
			}
		}
		if strings.Contains(body, "s3cret") {
			t.Fatal("email body leaks secret material")
		}

		if len(env.repo.created) != 2 || len(env.repo.updated) != 2 {
			t.Fatalf("delivery logs created=%d updated=%d, want 2 each", len(env.repo.created), len(env.repo.updated))
		}
		for _, up := range env.repo.updated {
			if up.Status != entity.DeliveryStatusSent || up.DeliveredAt == nil {
				t.Fatalf("delivery log %d not finalized as sent: %+v", up.ID, up)
			}
		}
		if len(env.repo.marked) != 2 {
			t.Fatalf("marked = %d, want 2", len(env.repo.marked))
		}
	})

	t.Run("one dead mailbox never blocks the rest", func(t *testing.T) {
		env := newTestEnv(t)
		env.repo.credentials[10] = entity.CredentialSummary{ID: 10, WebsiteName: "Example"}
		env.repo.grantees[2] = entity.Grantee{ID: 2, Email: "dead@example.com", FullName: "User Two"}
		env.repo.grantees[3] = entity.Grantee{ID: 3, Email: "three@example.com", FullName: "User Three"}
		env.mail.failFor["dead@example.com"] = errors.New("mailbox unavailable")

		err := env.uc.ConsumeAssignmentCreated(t.Context(), ConsumeAssignmentCreatedInput{
			CredentialID: 10,
			GranteeIDs:   []int64{2, 3},
			AssignedBy:   1,
		})
		if err != nil {
			t.Fatalf("ConsumeAssignmentCreated: %v", err)
		}

		if len(env.mail.sent) != 1 {
			t.Fatalf("sent = %d, want 1", len(env.mail.sent))
		}

		var failed, sent int
		for _, up := range env.repo.updated {
			switch up.Status {
			case entity.DeliveryStatusFailed:
				failed++
				if up.ProviderResponse["error"] == nil {
					t.Fatal("failed delivery log missing provider error")
				}
			case entity.DeliveryStatusSent:
				sent++
			}
		}
		if failed != 1 || sent != 1 {
			t.Fatalf("delivery logs failed=%d sent=%d, want 1 each", failed, sent)
		}
	})

	t.Run("credential gone before notification acks silently", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.uc.ConsumeAssignmentCreated(t.Context(), ConsumeAssignmentCreatedInput{
			CredentialID: 999,
			GranteeIDs:   []int64{2},
			AssignedBy:   1,
		})
		if err != nil {
			t.Fatalf("ConsumeAssignmentCreated: %v", err)
		}
		if len(env.mail.sent) != 0 {
			t.Fatal("mail sent for a deleted credential")
		}
	})

	t.Run("unknown assigner falls back to a generic name", func(t *testing.T) {
		env := newTestEnv(t)
		env.repo.credentials[10] = entity.CredentialSummary{ID: 10, WebsiteName: "Example"}
		env.repo.grantees[2] = entity.Grantee{ID: 2, Email: "two@example.com", FullName: "User Two"}

		err := env.uc.ConsumeAssignmentCreated(t.Context(), ConsumeAssignmentCreatedInput{
			CredentialID: 10,
			GranteeIDs:   []int64{2},
			AssignedBy:   77,
		})
		if err != nil {
			t.Fatalf("ConsumeAssignmentCreated: %v", err)
		}
		if len(env.mail.sent) != 1 {
			t.Fatalf("sent = %d, want 1", len(env.mail.sent))
		}
		if !strings.Contains(env.mail.sent[0].HTMLBody, "An administrator") {
			t.Fatal("email body missing assigner fallback")
		}
	})

	t.Run("malformed message acks without side effects", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.uc.ConsumeAssignmentCreated(t.Context(), ConsumeAssignmentCreatedInput{})
		if err != nil {
			t.Fatalf("ConsumeAssignmentCreated: %v", err)
		}
		if len(env.repo.created) != 0 || len(env.mail.sent) != 0 {
			t.Fatal("side effects recorded for a malformed message")
		}
	})
}

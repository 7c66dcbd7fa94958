package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/keyfold/keyfold/internal/pkg/goerror"
	"github.com/keyfold/keyfold/internal/pkg/hash"
	"github.com/keyfold/keyfold/internal/pkg/idempotency"
	"github.com/keyfold/keyfold/internal/pkg/instrument"
	"github.com/keyfold/keyfold/internal/pkg/jwt"
	"github.com/keyfold/keyfold/internal/pkg/passcode"
	"github.com/keyfold/keyfold/internal/pkg/secrets"
	"github.com/keyfold/keyfold/internal/pkg/storage"
	"github.com/keyfold/keyfold/internal/pkg/validator"
	"github.com/keyfold/keyfold/internal/vault/entity"
)

// ---- in-memory repo ----

type pairKey struct {
	credentialID int64
	userID       int64
}

type fakeRepo struct {
	mu          sync.Mutex
	credentials map[int64]*entity.Credential
	assignments map[pairKey]*entity.Assignment
	users       map[int64][2]string // id -> email, full name
	otps   []*entity.OTPRequest
	grants []*entity.RevealGrant
	audits []entity.AuditEvent
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		credentials: make(map[int64]*entity.Credential),
		assignments: make(map[pairKey]*entity.Assignment),
		users:       make(map[int64][2]string),
	}
}

func (f *fakeRepo) GetCredentialByID(_ context.Context, id int64) (*entity.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.credentials[id]
	if !ok {
		return nil, goerror.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeRepo) GetAssignment(_ context.Context, credentialID, userID int64) (*entity.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.assignments[pairKey{credentialID, userID}]
	if !ok {
		return nil, goerror.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) ListAssignments(_ context.Context, credentialID int64) ([]entity.AssignmentInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]entity.AssignmentInfo, 0)
	for k, a := range f.assignments {
		if k.credentialID != credentialID {
			continue
		}
		info := entity.AssignmentInfo{Assignment: *a}
		if u, ok := f.users[a.UserID]; ok {
			info.UserEmail = u[0]
			info.UserFullName = u[1]
		}
		out = append(out, info)
	}
	return out, nil
}

func (f *fakeRepo) CreateAssignments(_ context.Context, ins []entity.NewAssignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, in := range ins {
		if _, exists := f.assignments[pairKey{in.CredentialID, in.UserID}]; exists {
			return goerror.ErrConflict
		}
	}
	for _, in := range ins {
		f.assignments[pairKey{in.CredentialID, in.UserID}] = &entity.Assignment{
			ID:           in.ID,
			CredentialID: in.CredentialID,
			UserID:       in.UserID,
			AssignedBy:   in.AssignedBy,
		}
	}
	return nil
}

func (f *fakeRepo) DeleteAssignment(_ context.Context, credentialID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.assignments[pairKey{credentialID, userID}]; !ok {
		return false, nil
	}
	delete(f.assignments, pairKey{credentialID, userID})

	kept := f.otps[:0]
	for _, o := range f.otps {
		if o.CredentialID == credentialID && o.RequestedBy == userID && !o.Used {
			continue
		}
		kept = append(kept, o)
	}
	f.otps = kept

	keptGrants := f.grants[:0]
	for _, g := range f.grants {
		if g.CredentialID == credentialID && g.UserID == userID {
			continue
		}
		keptGrants = append(keptGrants, g)
	}
	f.grants = keptGrants

	return true, nil
}

func (f *fakeRepo) CreateOTPRequest(_ context.Context, in entity.OTPRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := in
	f.otps = append(f.otps, &cp)
	return nil
}

func (f *fakeRepo) CountOutstandingOTPRequests(_ context.Context, credentialID, userID int64, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	for _, o := range f.otps {
		if o.CredentialID == credentialID && o.RequestedBy == userID && !o.Used && now.Before(o.ExpiresAt) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) ConsumeOTPRequest(_ context.Context, credentialID, userID int64, codeHash string, now time.Time) (*entity.OTPRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, o := range f.otps {
		if o.CredentialID == credentialID && o.RequestedBy == userID && o.CodeHash == codeHash &&
			!o.Used && now.Before(o.ExpiresAt) {
			o.Used = true
			cp := *o
			return &cp, nil
		}
	}
	return nil, goerror.ErrNotFound
}

func (f *fakeRepo) LookupOTPRequest(_ context.Context, credentialID, userID int64, codeHash string) (*entity.OTPRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var latest *entity.OTPRequest
	for _, o := range f.otps {
		if o.CredentialID == credentialID && o.RequestedBy == userID && o.CodeHash == codeHash {
			if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
				latest = o
			}
		}
	}
	if latest == nil {
		return nil, goerror.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeRepo) CreateRevealGrant(_ context.Context, in entity.RevealGrant) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := in
	f.grants = append(f.grants, &cp)
	return nil
}

func (f *fakeRepo) ConsumeRevealGrant(_ context.Context, credentialID, userID int64, tokenHash string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, g := range f.grants {
		if g.CredentialID == credentialID && g.UserID == userID && g.TokenHash == tokenHash && now.Before(g.ExpiresAt) {
			f.grants = append(f.grants[:i], f.grants[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) CreateAuditEvent(_ context.Context, in entity.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.audits = append(f.audits, in)
	return nil
}

func (f *fakeRepo) ListAuditEvents(_ context.Context, from, to time.Time, afterID int64, limit int32) ([]entity.AuditEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]entity.AuditEvent, 0)
	for _, ev := range f.audits {
		if ev.ID <= afterID {
			continue
		}
		if ev.CreatedAt.Before(from) || !ev.CreatedAt.Before(to) {
			continue
		}
		out = append(out, ev)
		if int32(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) auditActions() []entity.AuditAction {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]entity.AuditAction, 0, len(f.audits))
	for _, ev := range f.audits {
		out = append(out, ev.Action)
	}
	return out
}

// ---- other fakes ----

var errBrokerDown = errors.New("broker down")

type fakeMessaging struct {
	mu     sync.Mutex
	events []AssignmentCreatedEvent
	err    error
}

func (f *fakeMessaging) PublishAssignmentCreated(_ context.Context, msg AssignmentCreatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, msg)
	return nil
}

type fakeIdempotency struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (f *fakeIdempotency) Acquire(context.Context, string, time.Duration) (idempotency.State, error) {
	return idempotency.StateNone, nil
}

func (f *fakeIdempotency) MarkCompleted(context.Context, string, time.Duration) error { return nil }

func (f *fakeIdempotency) MarkFailed(context.Context, string, time.Duration) error { return nil }

func (f *fakeIdempotency) Exec(ctx context.Context, key string, fn func(context.Context) error, _ ...idempotency.Option) error {
	f.mu.Lock()
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[key] {
		f.mu.Unlock()
		return idempotency.ErrAlreadyCompleted
	}
	f.seen[key] = true
	f.mu.Unlock()

	return fn(ctx)
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeStorage) Close() error { return nil }

func (f *fakeStorage) PutObject(_ context.Context, bucket, key string, r io.Reader, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[bucket+"/"+key] = data
	return storage.ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(data))}, nil
}

func (f *fakeStorage) GetObject(context.Context, string, string, storage.GetOptions) (io.ReadCloser, storage.ObjectInfo, error) {
	return nil, storage.ObjectInfo{}, goerror.ErrNotFound
}

func (f *fakeStorage) StatObject(context.Context, string, string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, goerror.ErrNotFound
}

func (f *fakeStorage) DeleteObject(context.Context, string, string) error { return nil }

func (f *fakeStorage) ListObjects(context.Context, string, string, storage.ListOptions) ([]storage.ObjectInfo, error) {
	return nil, nil
}

func (f *fakeStorage) PresignGet(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://files.test/" + bucket + "/" + key + "?sig=abc", nil
}

func (f *fakeStorage) PresignPut(context.Context, string, string, storage.PutOptions, time.Duration) (string, error) {
	return "", storage.ErrMissingSigner
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type seqNumberID struct{ n int64 }

func (s *seqNumberID) Generate() int64 {
	s.n++
	return s.n
}

type seqStringID struct{ n int64 }

func (s *seqStringID) Generate() string {
	s.n++
	return "tok-" + strconv.FormatInt(s.n, 10)
}

type testConfig struct {
	strings map[string]string
	minutes map[string]time.Duration
	seconds map[string]time.Duration
}

func (c *testConfig) Close() error { return nil }
func (c *testConfig) GetSecond(key string) time.Duration { return c.seconds[key] }
func (c *testConfig) GetMinute(key string) time.Duration { return c.minutes[key] }
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

// ---- environment ----

const (
	adminID    int64 = 1
	employeeID int64 = 2
	otherID    int64 = 3
)

type testEnv struct {
	uc        *Usecase
	repo      *fakeRepo
	messaging *fakeMessaging
	storage   *fakeStorage
	clock     *fixedClock
	encryptor secrets.Encryptor
}

func newTestEnv(t testing.TB) *testEnv {
	t.Helper()

	v, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("init validator: %v", err)
	}

	m, err := model.NewModelFromString(`
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`)
	if err != nil {
		t.Fatalf("init casbin model: %v", err)
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		t.Fatalf("init casbin enforcer: %v", err)
	}
	if _, err := enforcer.AddPolicy("role:admin", "*", "*"); err != nil {
		t.Fatalf("seed casbin policy: %v", err)
	}
	if _, err := enforcer.AddGroupingPolicy(strconv.FormatInt(adminID, 10), "role:admin"); err != nil {
		t.Fatalf("seed casbin grouping: %v", err)
	}

	key := make([]byte, 32)
	copy(key, []byte("0123456789abcdef0123456789abcdef"))
	enc := secrets.NewAESGCMEncryptor(secrets.StaticKeyProvider{KeyBytes: key})

	repo := newFakeRepo()
	msg := &fakeMessaging{}
	stg := &fakeStorage{}
	clk := &fixedClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	hm := hash.NewHMACSHA256("test-hmac-secret")

	cfg := &testConfig{
		strings: map[string]string{
			"modules.vault.audit_export_bucket": "keyfold-exports",
		},
		minutes: map[string]time.Duration{
			"modules.vault.otp_ttl_minutes":              10 * time.Minute,
			"modules.vault.audit_export_url_ttl_minutes": 15 * time.Minute,
		},
		seconds: map[string]time.Duration{
			"modules.vault.reveal_ttl_seconds": 60 * time.Second,
		},
	}

	uc := New(Dependency{
		RepoDB:        repo,
		RepoMessaging: msg,
		Idempotency:   &fakeIdempotency{},
		Validator:     v,
		Config:        cfg,
		Storage:       stg,
		HMAC:          hm,
		Encryptor:     enc,
		Passcode:      passcode.NewNumeric(),
		UID:           &seqNumberID{n: 1000},
		OID:           &seqStringID{},
		Clock:         clk,
		Instrument:    instrument.NewNoop(),
		Enforcer:      enforcer,
	})

	return &testEnv{
		uc:        uc,
		repo:      repo,
		messaging: msg,
		storage:   stg,
		clock:     clk,
		encryptor: enc,
	}
}

func (e *testEnv) seedCredential(t testing.TB, id int64, otpRequired bool, secret string) {
	t.Helper()

	enc, err := e.encryptor.Encrypt([]byte(secret), secrets.Scope{
		CredentialID: id,
		Purpose:      secrets.PurposeCredentialSecret,
	})
	if err != nil {
		t.Fatalf("encrypt secret: %v", err)
	}

	e.repo.credentials[id] = &entity.Credential{
		ID:          id,
		WebsiteName: "Example",
		WebsiteURL:  "https://example.com",
		Username:    "team@example.com",
		Secret:      enc,
		OTPRequired: otpRequired,
		CreatedBy:   adminID,
	}
}

func (e *testEnv) seedAssignment(credentialID, userID int64) {
	e.repo.assignments[pairKey{credentialID, userID}] = &entity.Assignment{
		ID:           credentialID*100 + userID,
		CredentialID: credentialID,
		UserID:       userID,
		AssignedBy:   adminID,
	}
	e.repo.users[userID] = [2]string{fmt.Sprintf("user%d@example.com", userID), fmt.Sprintf("User %d", userID)}
}

func authCtx(userID int64) context.Context {
	clm := jwt.Claims{UserID: userID}
	clm.Subject = strconv.FormatInt(userID, 10)
	return jwt.SetAuth(context.Background(), clm)
}

func assertCode(t *testing.T, err error, want goerror.Code) {
	t.Helper()

	var gerr *goerror.Error
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *goerror.Error, got %T: %v", err, err)
	}
	if gerr.Code() != want {
		t.Fatalf("error code = %s, want %s (message %q)", gerr.Code(), want, gerr.Msg())
	}
}

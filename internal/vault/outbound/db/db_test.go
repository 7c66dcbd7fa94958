package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keyfold/keyfold/internal/pkg/goerror"
	"github.com/keyfold/keyfold/internal/pkg/instrument"
	"github.com/keyfold/keyfold/internal/pkg/valueobject"
	"github.com/keyfold/keyfold/internal/vault/entity"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// These tests need Docker. Set KEYFOLD_DB_TESTS=1 to run them.

var testPool *pgxpool.Pool

const testSchema = `
CREATE TABLE vault_users (
	id         BIGINT PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	full_name  TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE vault_credentials (
	id           BIGINT PRIMARY KEY,
	website_name TEXT NOT NULL,
	website_url  TEXT NOT NULL,
	username     TEXT NOT NULL,
	secret_enc   BYTEA NOT NULL,
	notes        TEXT NOT NULL DEFAULT '',
	otp_required BOOLEAN NOT NULL DEFAULT FALSE,
	created_by   BIGINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE vault_assignments (
	id                BIGINT PRIMARY KEY,
	credential_id     BIGINT NOT NULL,
	user_id           BIGINT NOT NULL,
	assigned_by       BIGINT NOT NULL,
	assigned_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	notification_sent BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (credential_id, user_id)
);

CREATE TABLE vault_otp_requests (
	id            BIGINT PRIMARY KEY,
	credential_id BIGINT NOT NULL,
	requested_by  BIGINT NOT NULL,
	code_hash     TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at    TIMESTAMPTZ NOT NULL,
	used          BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE vault_reveal_grants (
	id            BIGINT PRIMARY KEY,
	credential_id BIGINT NOT NULL,
	user_id       BIGINT NOT NULL,
	token_hash    TEXT NOT NULL,
	expires_at    TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE vault_audit_events (
	id            BIGINT PRIMARY KEY,
	credential_id BIGINT NOT NULL,
	actor_id      BIGINT NOT NULL,
	action        TEXT NOT NULL,
	metadata      JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);`

func TestMain(m *testing.M) {
	if os.Getenv("KEYFOLD_DB_TESTS") == "" {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("keyfold"),
		postgres.WithUsername("keyfold"),
		postgres.WithPassword("keyfold"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("failed to start postgres container: %v", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			log.Printf("failed to terminate container: %v", err)
		}
	}()

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("failed to get connection string: %v", err)
	}

	testPool, err = pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("failed to create pool: %v", err)
	}
	defer testPool.Close()

	if _, err := testPool.Exec(ctx, testSchema); err != nil {
		log.Fatalf("failed to create schema: %v", err)
	}

	os.Exit(m.Run())
}

var seq int64 = 1_000

func nextID() int64 {
	seq++
	return seq
}

func testStore(t *testing.T) *DB {
	t.Helper()

	if testPool == nil {
		t.Skip("set KEYFOLD_DB_TESTS=1 to run database tests")
	}
	return NewDB(testPool, instrument.NewNoop())
}

func seedUser(t *testing.T, id int64) {
	t.Helper()

	_, err := testPool.Exec(t.Context(),
		`INSERT INTO vault_users (id, email, full_name) VALUES ($1, $2, $3)`,
		id, fmt.Sprintf("user%d@example.com", id), fmt.Sprintf("User %d", id),
	)
	if err != nil {
		t.Fatalf("seed user %d: %v", id, err)
	}
}

func seedCredential(t *testing.T, id int64, otpRequired bool) {
	t.Helper()

	_, err := testPool.Exec(t.Context(),
		`INSERT INTO vault_credentials (id, website_name, website_url, username, secret_enc, otp_required, created_by)
		 VALUES ($1, 'Example', 'https://example.com', 'team@example.com', '\x0102'::bytea, $2, 1)`,
		id, otpRequired,
	)
	if err != nil {
		t.Fatalf("seed credential %d: %v", id, err)
	}
}

func TestGetCredentialByID(t *testing.T) {
	store := testStore(t)

	id := nextID()
	seedCredential(t, id, true)

	cred, err := store.GetCredentialByID(t.Context(), id)
	if err != nil {
		t.Fatalf("GetCredentialByID: %v", err)
	}
	if cred.WebsiteName != "Example" || !cred.OTPRequired {
		t.Fatalf("unexpected credential %+v", cred)
	}

	if _, err := store.GetCredentialByID(t.Context(), nextID()); !errors.Is(err, goerror.ErrNotFound) {
		t.Fatalf("missing credential: %v, want ErrNotFound", err)
	}
}

func TestAssignments(t *testing.T) {
	store := testStore(t)

	credID := nextID()
	seedCredential(t, credID, false)
	userA, userB := nextID(), nextID()
	seedUser(t, userA)
	seedUser(t, userB)

	batch := []entity.NewAssignment{
		{ID: nextID(), CredentialID: credID, UserID: userA, AssignedBy: 1},
		{ID: nextID(), CredentialID: credID, UserID: userB, AssignedBy: 1},
	}
	if err := store.CreateAssignments(t.Context(), batch); err != nil {
		t.Fatalf("CreateAssignments: %v", err)
	}

	t.Run("duplicate pair rolls back the whole batch", func(t *testing.T) {
		userC := nextID()
		seedUser(t, userC)

		err := store.CreateAssignments(t.Context(), []entity.NewAssignment{
			{ID: nextID(), CredentialID: credID, UserID: userC, AssignedBy: 1},
			{ID: nextID(), CredentialID: credID, UserID: userA, AssignedBy: 1},
		})
		if !errors.Is(err, goerror.ErrConflict) {
			t.Fatalf("duplicate batch: %v, want ErrConflict", err)
		}

		if _, err := store.GetAssignment(t.Context(), credID, userC); !errors.Is(err, goerror.ErrNotFound) {
			t.Fatalf("partial batch persisted: %v, want ErrNotFound", err)
		}
	})

	t.Run("list joins directory info", func(t *testing.T) {
		list, err := store.ListAssignments(t.Context(), credID)
		if err != nil {
			t.Fatalf("ListAssignments: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("assignments = %d, want 2", len(list))
		}
		for _, a := range list {
			if a.UserEmail == "" || a.UserFullName == "" {
				t.Fatalf("assignment %d missing joined user info", a.UserID)
			}
		}
	})

	t.Run("delete cascades to passcodes and grants", func(t *testing.T) {
		expires := time.Now().Add(10 * time.Minute)
		if err := store.CreateOTPRequest(t.Context(), entity.OTPRequest{
			ID: nextID(), CredentialID: credID, RequestedBy: userA, CodeHash: "hash-a", ExpiresAt: expires,
		}); err != nil {
			t.Fatalf("CreateOTPRequest: %v", err)
		}
		if err := store.CreateRevealGrant(t.Context(), entity.RevealGrant{
			ID: nextID(), CredentialID: credID, UserID: userA, TokenHash: "token-a", ExpiresAt: expires,
		}); err != nil {
			t.Fatalf("CreateRevealGrant: %v", err)
		}

		deleted, err := store.DeleteAssignment(t.Context(), credID, userA)
		if err != nil {
			t.Fatalf("DeleteAssignment: %v", err)
		}
		if !deleted {
			t.Fatal("DeleteAssignment reported no row")
		}

		n, err := store.CountOutstandingOTPRequests(t.Context(), credID, userA, time.Now())
		if err != nil {
			t.Fatalf("CountOutstandingOTPRequests: %v", err)
		}
		if n != 0 {
			t.Fatalf("outstanding passcodes after revoke = %d, want 0", n)
		}

		ok, err := store.ConsumeRevealGrant(t.Context(), credID, userA, "token-a", time.Now())
		if err != nil {
			t.Fatalf("ConsumeRevealGrant: %v", err)
		}
		if ok {
			t.Fatal("reveal grant survived the revoke")
		}
	})

	t.Run("delete of a missing pair reports false", func(t *testing.T) {
		deleted, err := store.DeleteAssignment(t.Context(), credID, nextID())
		if err != nil {
			t.Fatalf("DeleteAssignment: %v", err)
		}
		if deleted {
			t.Fatal("DeleteAssignment reported a row for a missing pair")
		}
	})
}

func TestConsumeOTPRequest(t *testing.T) {
	store := testStore(t)

	credID, userID := nextID(), nextID()

	t.Run("consume wins once then misses", func(t *testing.T) {
		id := nextID()
		if err := store.CreateOTPRequest(t.Context(), entity.OTPRequest{
			ID: id, CredentialID: credID, RequestedBy: userID, CodeHash: "code-1",
			ExpiresAt: time.Now().Add(10 * time.Minute),
		}); err != nil {
			t.Fatalf("CreateOTPRequest: %v", err)
		}

		req, err := store.ConsumeOTPRequest(t.Context(), credID, userID, "code-1", time.Now())
		if err != nil {
			t.Fatalf("ConsumeOTPRequest: %v", err)
		}
		if req.ID != id || !req.Used {
			t.Fatalf("unexpected consumed request %+v", req)
		}

		if _, err := store.ConsumeOTPRequest(t.Context(), credID, userID, "code-1", time.Now()); !errors.Is(err, goerror.ErrNotFound) {
			t.Fatalf("second consume: %v, want ErrNotFound", err)
		}

		lookedUp, err := store.LookupOTPRequest(t.Context(), credID, userID, "code-1")
		if err != nil {
			t.Fatalf("LookupOTPRequest: %v", err)
		}
		if !lookedUp.Used {
			t.Fatal("lookup shows request unused after consume")
		}
	})

	t.Run("expired request never matches", func(t *testing.T) {
		if err := store.CreateOTPRequest(t.Context(), entity.OTPRequest{
			ID: nextID(), CredentialID: credID, RequestedBy: userID, CodeHash: "code-2",
			ExpiresAt: time.Now().Add(-time.Minute),
		}); err != nil {
			t.Fatalf("CreateOTPRequest: %v", err)
		}

		if _, err := store.ConsumeOTPRequest(t.Context(), credID, userID, "code-2", time.Now()); !errors.Is(err, goerror.ErrNotFound) {
			t.Fatalf("expired consume: %v, want ErrNotFound", err)
		}

		lookedUp, err := store.LookupOTPRequest(t.Context(), credID, userID, "code-2")
		if err != nil {
			t.Fatalf("LookupOTPRequest: %v", err)
		}
		if lookedUp.Used {
			t.Fatal("expired request was marked used")
		}
	})

	t.Run("concurrent consumes yield one winner", func(t *testing.T) {
		if err := store.CreateOTPRequest(t.Context(), entity.OTPRequest{
			ID: nextID(), CredentialID: credID, RequestedBy: userID, CodeHash: "code-3",
			ExpiresAt: time.Now().Add(10 * time.Minute),
		}); err != nil {
			t.Fatalf("CreateOTPRequest: %v", err)
		}

		const callers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.ConsumeOTPRequest(context.Background(), credID, userID, "code-3", time.Now()); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Fatalf("winners = %d, want exactly 1", wins)
		}
	})
}

func TestRevealGrants(t *testing.T) {
	store := testStore(t)

	credID, userID := nextID(), nextID()

	t.Run("grant is single use", func(t *testing.T) {
		if err := store.CreateRevealGrant(t.Context(), entity.RevealGrant{
			ID: nextID(), CredentialID: credID, UserID: userID, TokenHash: "grant-1",
			ExpiresAt: time.Now().Add(time.Minute),
		}); err != nil {
			t.Fatalf("CreateRevealGrant: %v", err)
		}

		ok, err := store.ConsumeRevealGrant(t.Context(), credID, userID, "grant-1", time.Now())
		if err != nil {
			t.Fatalf("ConsumeRevealGrant: %v", err)
		}
		if !ok {
			t.Fatal("live grant not consumed")
		}

		ok, err = store.ConsumeRevealGrant(t.Context(), credID, userID, "grant-1", time.Now())
		if err != nil {
			t.Fatalf("ConsumeRevealGrant: %v", err)
		}
		if ok {
			t.Fatal("grant consumed twice")
		}
	})

	t.Run("expired grant does not match", func(t *testing.T) {
		if err := store.CreateRevealGrant(t.Context(), entity.RevealGrant{
			ID: nextID(), CredentialID: credID, UserID: userID, TokenHash: "grant-2",
			ExpiresAt: time.Now().Add(-time.Minute),
		}); err != nil {
			t.Fatalf("CreateRevealGrant: %v", err)
		}

		ok, err := store.ConsumeRevealGrant(t.Context(), credID, userID, "grant-2", time.Now())
		if err != nil {
			t.Fatalf("ConsumeRevealGrant: %v", err)
		}
		if ok {
			t.Fatal("expired grant consumed")
		}
	})
}

func TestAuditEvents(t *testing.T) {
	store := testStore(t)

	credID, actorID := nextID(), nextID()
	for i := 0; i < 5; i++ {
		if err := store.CreateAuditEvent(t.Context(), entity.AuditEvent{
			ID:           nextID(),
			CredentialID: credID,
			ActorID:      actorID,
			Action:       entity.AuditOTPIssued,
			Metadata:     valueobject.JSONMap{"n": i},
		}); err != nil {
			t.Fatalf("CreateAuditEvent %d: %v", i, err)
		}
	}

	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)

	var (
		afterID int64
		total   int
	)
	for {
		page, err := store.ListAuditEvents(t.Context(), from, to, afterID, 2)
		if err != nil {
			t.Fatalf("ListAuditEvents: %v", err)
		}
		if len(page) == 0 {
			break
		}
		for _, ev := range page {
			if ev.ID <= afterID {
				t.Fatalf("keyset paging returned id %d after %d", ev.ID, afterID)
			}
			if ev.CredentialID == credID {
				total++
			}
		}
		afterID = page[len(page)-1].ID
	}

	if total != 5 {
		t.Fatalf("events for credential = %d, want 5", total)
	}
}

package usecase

import (
	"testing"

	"github.com/keyfold/keyfold/internal/pkg/goerror"
	"github.com/keyfold/keyfold/internal/vault/entity"
)

func TestAssign(t *testing.T) {
	t.Run("grants access, audits and notifies", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 30, true, "s3cret")

		out, err := env.uc.Assign(authCtx(adminID), AssignInput{CredentialID: 30, GranteeIDs: []int64{employeeID, otherID}})
		if err != nil {
			t.Fatalf("Assign: %v", err)
		}
		if out.Assigned != 2 {
			t.Fatalf("assigned = %d, want 2", out.Assigned)
		}

		for _, uid := range []int64{employeeID, otherID} {
			if _, ok := env.repo.assignments[pairKey{30, uid}]; !ok {
				t.Fatalf("assignment for user %d not persisted", uid)
			}
		}

		actions := env.repo.auditActions()
		if len(actions) != 2 {
			t.Fatalf("audit events = %d, want 2", len(actions))
		}
		for _, a := range actions {
			if a != entity.AuditAssignmentCreated {
				t.Fatalf("audit action = %s, want assignment_created", a)
			}
		}

		if len(env.messaging.events) != 1 {
			t.Fatalf("published events = %d, want 1", len(env.messaging.events))
		}
		ev := env.messaging.events[0]
		if ev.CredentialID != 30 || ev.AssignedBy != adminID || len(ev.GranteeIDs) != 2 {
			t.Fatalf("unexpected event %+v", ev)
		}
	})

	t.Run("batch is all or nothing on a duplicate grantee", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 30, true, "s3cret")
		env.seedAssignment(30, employeeID)

		_, err := env.uc.Assign(authCtx(adminID), AssignInput{CredentialID: 30, GranteeIDs: []int64{otherID, employeeID}})
		assertCode(t, err, goerror.CodeConflict)

		if _, ok := env.repo.assignments[pairKey{30, otherID}]; ok {
			t.Fatal("partial batch persisted despite conflict")
		}
		if len(env.messaging.events) != 0 {
			t.Fatal("event published for a rejected batch")
		}
	})

	t.Run("replayed request is suppressed", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 30, true, "s3cret")

		in := AssignInput{CredentialID: 30, GranteeIDs: []int64{employeeID, otherID}}
		if _, err := env.uc.Assign(authCtx(adminID), in); err != nil {
			t.Fatalf("first assign: %v", err)
		}

		// Same grantees in a different order hit the same idempotency key.
		replay := AssignInput{CredentialID: 30, GranteeIDs: []int64{otherID, employeeID}}
		_, err := env.uc.Assign(authCtx(adminID), replay)
		assertCode(t, err, goerror.CodeConflict)
	})

	t.Run("publish failure does not fail the grant", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 30, true, "s3cret")
		env.messaging.err = errBrokerDown

		out, err := env.uc.Assign(authCtx(adminID), AssignInput{CredentialID: 30, GranteeIDs: []int64{employeeID}})
		if err != nil {
			t.Fatalf("Assign: %v", err)
		}
		if out.Assigned != 1 {
			t.Fatalf("assigned = %d, want 1", out.Assigned)
		}
	})

	t.Run("unknown credential", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.uc.Assign(authCtx(adminID), AssignInput{CredentialID: 999, GranteeIDs: []int64{employeeID}})
		assertCode(t, err, goerror.CodeNotFound)
	})

	t.Run("non admin is forbidden", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 30, true, "s3cret")

		_, err := env.uc.Assign(authCtx(employeeID), AssignInput{CredentialID: 30, GranteeIDs: []int64{otherID}})
		assertCode(t, err, goerror.CodeForbidden)
	})

	t.Run("empty grantee list fails validation", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.uc.Assign(authCtx(adminID), AssignInput{CredentialID: 30, GranteeIDs: nil})
		assertCode(t, err, goerror.CodeInvalidInput)
	})
}

func TestRevoke(t *testing.T) {
	t.Run("removes the assignment and audits", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 30, true, "s3cret")
		env.seedAssignment(30, employeeID)

		if err := env.uc.Revoke(authCtx(adminID), RevokeInput{CredentialID: 30, UserID: employeeID}); err != nil {
			t.Fatalf("Revoke: %v", err)
		}

		if _, ok := env.repo.assignments[pairKey{30, employeeID}]; ok {
			t.Fatal("assignment still present after revoke")
		}
		actions := env.repo.auditActions()
		if len(actions) != 1 || actions[0] != entity.AuditAssignmentRevoked {
			t.Fatalf("audit trail = %v, want one assignment_revoked", actions)
		}
	})

	t.Run("missing assignment is not found", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 30, true, "s3cret")

		err := env.uc.Revoke(authCtx(adminID), RevokeInput{CredentialID: 30, UserID: employeeID})
		assertCode(t, err, goerror.CodeNotFound)
	})

	t.Run("non admin is forbidden", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 30, true, "s3cret")
		env.seedAssignment(30, employeeID)

		err := env.uc.Revoke(authCtx(employeeID), RevokeInput{CredentialID: 30, UserID: employeeID})
		assertCode(t, err, goerror.CodeForbidden)
	})
}

func TestAssignmentList(t *testing.T) {
	t.Run("returns grantees with directory info", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 30, true, "s3cret")
		env.seedAssignment(30, employeeID)
		env.seedAssignment(30, otherID)

		out, err := env.uc.AssignmentList(authCtx(adminID), AssignmentListInput{CredentialID: 30})
		if err != nil {
			t.Fatalf("AssignmentList: %v", err)
		}
		if len(out.Assignments) != 2 {
			t.Fatalf("assignments = %d, want 2", len(out.Assignments))
		}
		for _, a := range out.Assignments {
			if a.UserEmail == "" || a.UserFullName == "" {
				t.Fatalf("assignment %d missing directory info", a.UserID)
			}
		}
	})

	t.Run("unknown credential", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.uc.AssignmentList(authCtx(adminID), AssignmentListInput{CredentialID: 999})
		assertCode(t, err, goerror.CodeNotFound)
	})

	t.Run("non admin is forbidden", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedCredential(t, 30, true, "s3cret")

		_, err := env.uc.AssignmentList(authCtx(employeeID), AssignmentListInput{CredentialID: 30})
		assertCode(t, err, goerror.CodeForbidden)
	})
}

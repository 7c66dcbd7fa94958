package inbound

import (
	"context"

	"github.com/keyfold/keyfold/internal/pkg/router"
	"github.com/keyfold/keyfold/internal/vault/usecase"
)

type uc interface {
	OTPIssue(ctx context.Context, in usecase.OTPIssueInput) (*usecase.OTPIssueOutput, error)
	OTPConsume(ctx context.Context, in usecase.OTPConsumeInput) (*usecase.OTPConsumeOutput, error)
	Reveal(ctx context.Context, in usecase.RevealInput) (*usecase.RevealOutput, error)

	Assign(ctx context.Context, in usecase.AssignInput) (*usecase.AssignOutput, error)
	Revoke(ctx context.Context, in usecase.RevokeInput) error
	AssignmentList(ctx context.Context, in usecase.AssignmentListInput) (*usecase.AssignmentListOutput, error)

	AuditExport(ctx context.Context, in usecase.AuditExportInput) (*usecase.AuditExportOutput, error)
}

func RegisterHTTPEndpoint(r *router.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	// Passcode flow & reveal (need authenticated)
	r.POST("/api/v1/vault/credentials/:id/otp", end.OTPIssue)
	r.POST("/api/v1/vault/credentials/:id/otp/consume", end.OTPConsume)
	r.POST("/api/v1/vault/credentials/:id/reveal", end.Reveal)

	// Assignment management (need authenticated & authorization)
	r.POST("/api/v1/vault/credentials/:id/assignments", end.Assign)
	r.GET("/api/v1/vault/credentials/:id/assignments", end.AssignmentList)
	r.DELETE("/api/v1/vault/credentials/:id/assignments/:user_id", end.Revoke)

	// Audit (need authenticated & authorization)
	r.GET("/api/v1/vault/audit-export", end.AuditExport)
}

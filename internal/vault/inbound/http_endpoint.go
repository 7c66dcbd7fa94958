package inbound

import (
	"time"

	"github.com/keyfold/keyfold/internal/pkg/goerror"
	"github.com/keyfold/keyfold/internal/pkg/router"
	"github.com/keyfold/keyfold/internal/vault/usecase"
)

// HTTPEndpoint exposes HTTP handlers for credential access workflows.
type HTTPEndpoint struct {
	uc uc
}

// OTPIssue generates a one-time passcode for a passcode-gated credential.
// @Summary Issue one-time passcode
// @Description Generates a fresh single-use passcode for an assigned, passcode-gated credential.
// @Tags Vault, Passcode
// @Security BearerAuth
// @Produce json
// @Param id path int true "Credential ID"
// @Success 200 {object} router.successResponse{data=OTPIssueResponse} "Issued passcode"
// @Failure 400 {object} router.errorResponse "Invalid path parameter"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 403 {object} router.errorResponse "Credential not assigned"
// @Failure 404 {object} router.errorResponse "Credential not found"
// @Failure 422 {object} router.errorResponse "Credential does not require a passcode"
// @Failure 429 {object} router.errorResponse "Too many active passcodes"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/vault/credentials/{id}/otp [post]
func (h *HTTPEndpoint) OTPIssue(r *router.Request) (any, error) {
	credentialID, err := r.GetParamInt64("id")
	if err != nil {
		return nil, err
	}

	resp, err := h.uc.OTPIssue(r.Context(), usecase.OTPIssueInput{CredentialID: credentialID})
	if err != nil {
		return nil, err
	}

	return OTPIssueResponse{
		Code:      resp.Code,
		ExpiresAt: resp.ExpiresAt,
	}, nil
}

// OTPConsume redeems a passcode for a short-lived reveal authorization.
// @Summary Consume one-time passcode
// @Description Verifies the passcode and returns a single-use token authorizing one secret reveal.
// @Tags Vault, Passcode
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Credential ID"
// @Param request body OTPConsumeRequest true "Passcode payload"
// @Success 200 {object} router.successResponse{data=OTPConsumeResponse} "Reveal authorization"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Passcode expired or already used"
// @Failure 403 {object} router.errorResponse "Credential not assigned"
// @Failure 404 {object} router.errorResponse "Passcode not recognized"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/vault/credentials/{id}/otp/consume [post]
func (h *HTTPEndpoint) OTPConsume(r *router.Request) (any, error) {
	credentialID, err := r.GetParamInt64("id")
	if err != nil {
		return nil, err
	}

	var req OTPConsumeRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.OTPConsume(r.Context(), usecase.OTPConsumeInput{
		CredentialID: credentialID,
		Code:         req.Code,
	})
	if err != nil {
		return nil, err
	}

	return OTPConsumeResponse{
		RevealToken: resp.RevealToken,
		ExpiresAt:   resp.ExpiresAt,
	}, nil
}

// Reveal returns the decrypted credential secret.
// @Summary Reveal credential secret
// @Description Returns the plaintext secret. Passcode-gated credentials require a reveal token from a consumed passcode.
// @Tags Vault, Credentials
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Credential ID"
// @Param request body RevealRequest false "Reveal payload"
// @Success 200 {object} router.successResponse{data=RevealResponse} "Credential secret"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Reveal authorization missing, invalid or expired"
// @Failure 403 {object} router.errorResponse "Credential not assigned"
// @Failure 404 {object} router.errorResponse "Credential not found"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/vault/credentials/{id}/reveal [post]
func (h *HTTPEndpoint) Reveal(r *router.Request) (any, error) {
	credentialID, err := r.GetParamInt64("id")
	if err != nil {
		return nil, err
	}

	// Body is optional; credentials without passcode gating need none.
	var req RevealRequest
	if r.ContentLength != 0 {
		if err := r.DecodeBody(&req); err != nil {
			return nil, err
		}
	}

	resp, err := h.uc.Reveal(r.Context(), usecase.RevealInput{
		CredentialID: credentialID,
		RevealToken:  req.RevealToken,
	})
	if err != nil {
		return nil, err
	}

	return RevealResponse{
		WebsiteName: resp.WebsiteName,
		WebsiteURL:  resp.WebsiteURL,
		Username:    resp.Username,
		Secret:      resp.Secret,
		Notes:       resp.Notes,
	}, nil
}

// Assign grants users access to a credential.
// @Summary Assign credential
// @Description Grants the listed users view access to the credential. Rejects the whole batch on any duplicate.
// @Tags Vault, Assignments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Credential ID"
// @Param request body AssignRequest true "Assignment payload"
// @Success 200 {object} router.successResponse{data=AssignResponse} "Assignment result"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 403 {object} router.errorResponse "Forbidden"
// @Failure 404 {object} router.errorResponse "Credential not found"
// @Failure 409 {object} router.errorResponse "Credential already assigned to one of the users"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/vault/credentials/{id}/assignments [post]
func (h *HTTPEndpoint) Assign(r *router.Request) (any, error) {
	credentialID, err := r.GetParamInt64("id")
	if err != nil {
		return nil, err
	}

	var req AssignRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.Assign(r.Context(), usecase.AssignInput{
		CredentialID: credentialID,
		GranteeIDs:   req.GranteeIDs,
	})
	if err != nil {
		return nil, err
	}

	return AssignResponse{Assigned: resp.Assigned}, nil
}

// AssignmentList lists the users a credential is assigned to.
// @Summary List credential assignments
// @Description Returns every user holding the credential, with grantee directory info.
// @Tags Vault, Assignments
// @Security BearerAuth
// @Produce json
// @Param id path int true "Credential ID"
// @Success 200 {object} router.successResponse{data=AssignmentsResponse} "Assignment list"
// @Failure 400 {object} router.errorResponse "Invalid path parameter"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 403 {object} router.errorResponse "Forbidden"
// @Failure 404 {object} router.errorResponse "Credential not found"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/vault/credentials/{id}/assignments [get]
func (h *HTTPEndpoint) AssignmentList(r *router.Request) (any, error) {
	credentialID, err := r.GetParamInt64("id")
	if err != nil {
		return nil, err
	}

	resp, err := h.uc.AssignmentList(r.Context(), usecase.AssignmentListInput{CredentialID: credentialID})
	if err != nil {
		return nil, err
	}

	items := make([]AssignmentResponse, 0, len(resp.Assignments))
	for _, item := range resp.Assignments {
		items = append(items, AssignmentResponse{
			UserID:           item.UserID,
			UserEmail:        item.UserEmail,
			UserFullName:     item.UserFullName,
			AssignedBy:       item.AssignedBy,
			AssignedAt:       item.AssignedAt,
			NotificationSent: item.NotificationSent,
		})
	}

	return AssignmentsResponse{Assignments: items}, nil
}

// Revoke removes a user's access to a credential.
// @Summary Revoke credential assignment
// @Description Removes the user's access and invalidates their outstanding passcodes and reveal authorizations.
// @Tags Vault, Assignments
// @Security BearerAuth
// @Param id path int true "Credential ID"
// @Param user_id path int true "Grantee user ID"
// @Success 204 "No Content"
// @Failure 400 {object} router.errorResponse "Invalid path parameter"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 403 {object} router.errorResponse "Forbidden"
// @Failure 404 {object} router.errorResponse "Assignment not found"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/vault/credentials/{id}/assignments/{user_id} [delete]
func (h *HTTPEndpoint) Revoke(r *router.Request) (any, error) {
	credentialID, err := r.GetParamInt64("id")
	if err != nil {
		return nil, err
	}

	userID, err := r.GetParamInt64("user_id")
	if err != nil {
		return nil, err
	}

	if err := h.uc.Revoke(r.Context(), usecase.RevokeInput{
		CredentialID: credentialID,
		UserID:       userID,
	}); err != nil {
		return nil, err
	}

	return nil, nil
}

// AuditExport exports the credential access trail as CSV.
// @Summary Export audit trail
// @Description Writes the audit events in the given range to object storage and returns a signed download URL.
// @Tags Vault, Audit
// @Security BearerAuth
// @Produce json
// @Param date_from query string true "Range start (RFC3339)"
// @Param date_to query string true "Range end (RFC3339)"
// @Success 200 {object} router.successResponse{data=AuditExportResponse} "Export result"
// @Failure 400 {object} router.errorResponse "Invalid query parameters"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 403 {object} router.errorResponse "Forbidden"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/vault/audit-export [get]
func (h *HTTPEndpoint) AuditExport(r *router.Request) (any, error) {
	dateFrom, err := r.GetQueryDate("date_from", time.RFC3339)
	if err != nil {
		return nil, err
	}

	dateTo, err := r.GetQueryDate("date_to", time.RFC3339)
	if err != nil {
		return nil, err
	}

	if !dateFrom.IsZero() && !dateTo.IsZero() && dateFrom.After(dateTo) {
		return nil, goerror.NewInvalidFormat("date_from must be before date_to")
	}

	resp, err := h.uc.AuditExport(r.Context(), usecase.AuditExportInput{
		From: dateFrom,
		To:   dateTo,
	})
	if err != nil {
		return nil, err
	}

	return AuditExportResponse{
		DownloadURL: resp.DownloadURL,
		ExpiresAt:   resp.ExpiresAt,
		Rows:        resp.Rows,
	}, nil
}

package inbound

import "time"

type OTPIssueResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (OTPIssueResponse) Message() string {
	return "Passcode issued. It is valid once, until it expires."
}

type OTPConsumeRequest struct {
	Code string `json:"code"`
}

type OTPConsumeResponse struct {
	RevealToken string    `json:"reveal_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (OTPConsumeResponse) Message() string {
	return "Passcode accepted."
}

type RevealRequest struct {
	RevealToken string `json:"reveal_token,omitempty"`
}

type RevealResponse struct {
	WebsiteName string `json:"website_name"`
	WebsiteURL  string `json:"website_url"`
	Username    string `json:"username"`
	Secret      string `json:"secret"`
	Notes       string `json:"notes,omitempty"`
}

type AssignRequest struct {
	GranteeIDs []int64 `json:"grantee_ids"`
}

type AssignResponse struct {
	Assigned int `json:"assigned"`
}

func (AssignResponse) Message() string {
	return "Credential assigned. Grantees will be notified."
}

type AssignmentResponse struct {
	UserID           int64     `json:"user_id"`
	UserEmail        string    `json:"user_email"`
	UserFullName     string    `json:"user_full_name"`
	AssignedBy       int64     `json:"assigned_by"`
	AssignedAt       time.Time `json:"assigned_at"`
	NotificationSent bool      `json:"notification_sent"`
}

type AssignmentsResponse struct {
	Assignments []AssignmentResponse `json:"assignments"`
}

type AuditExportResponse struct {
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
	Rows        int       `json:"rows"`
}

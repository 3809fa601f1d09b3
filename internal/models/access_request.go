package models

import "time"

// AccessRequestStatus captures the lifecycle of a join request.
type AccessRequestStatus string

const (
	AccessRequestPending  AccessRequestStatus = "PENDING"
	AccessRequestApproved AccessRequestStatus = "APPROVED"
	AccessRequestRejected AccessRequestStatus = "REJECTED"
)

// AccessRequest is a user's request to join a class. DeclaredRole is
// advisory; the role is re-resolved against the directory at approval time.
type AccessRequest struct {
	ID              string              `db:"id" json:"id"`
	RequesterID     string              `db:"requester_id" json:"requester_id"`
	ClassID         string              `db:"class_id" json:"class_id"`
	DeclaredRole    *Role               `db:"declared_role" json:"declared_role,omitempty"`
	Status          AccessRequestStatus `db:"status" json:"status"`
	RejectionReason *string             `db:"rejection_reason" json:"rejection_reason,omitempty"`
	RequestedAt     time.Time           `db:"requested_at" json:"requested_at"`
	ResolvedAt      *time.Time          `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy      *string             `db:"resolved_by" json:"resolved_by,omitempty"`
}

// AccessRequestDetail enriches AccessRequest with requester and class info.
type AccessRequestDetail struct {
	AccessRequest
	RequesterName string `db:"requester_name" json:"requester_name"`
	ClassName     string `db:"class_name" json:"class_name"`
}

// AccessRequestFilter provides filters for listing requests.
type AccessRequestFilter struct {
	RequesterID string
	ClassID     string
	Status      AccessRequestStatus
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

package models

import "time"

// Grant is the active membership of a user in a class, derived from an
// approved access request. Revocable independently of the request.
type Grant struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	Role      Role      `db:"role" json:"role"`
	RequestID *string   `db:"request_id" json:"request_id,omitempty"`
	GrantedAt time.Time `db:"granted_at" json:"granted_at"`
}

// PublicationRight is an explicit per-user override of the class-level
// publication policy. At most one user per class holds CanModerate.
type PublicationRight struct {
	UserID      string    `db:"user_id" json:"user_id"`
	ClassID     string    `db:"class_id" json:"class_id"`
	CanPublish  bool      `db:"can_publish" json:"can_publish"`
	CanModerate bool      `db:"can_moderate" json:"can_moderate"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

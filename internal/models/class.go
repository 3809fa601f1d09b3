package models

import "time"

// ClassState captures the approval lifecycle of a class.
type ClassState string

const (
	ClassStatePendingApproval ClassState = "PENDING_APPROVAL"
	ClassStateActive          ClassState = "ACTIVE"
	ClassStateRejected        ClassState = "REJECTED"
)

// Terminal reports whether no further lifecycle transitions are allowed.
func (s ClassState) Terminal() bool {
	return s == ClassStateActive || s == ClassStateRejected
}

// PaymentStatus reflects the billing state attached to a class.
type PaymentStatus string

const (
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentPending PaymentStatus = "PENDING"
	PaymentNone    PaymentStatus = "NONE"
)

// PublicationPolicy is the class-level default rule for who may post.
type PublicationPolicy string

const (
	PublishEveryone            PublicationPolicy = "EVERYONE"
	PublishModeratorOnly       PublicationPolicy = "MODERATOR_ONLY"
	PublishParentsAndModerator PublicationPolicy = "PARENTS_AND_MODERATOR"
	PublishProfessorsOnly      PublicationPolicy = "PROFESSORS_ONLY"
)

// Class represents a class record governed by the approval workflow.
// A nil EstablishmentID means the class is independent and self-managed.
type Class struct {
	ID                string            `db:"id" json:"id"`
	Name              string            `db:"name" json:"name"`
	Level             string            `db:"level" json:"level"`
	ActivationCode    string            `db:"activation_code" json:"activation_code"`
	EstablishmentID   *string           `db:"establishment_id" json:"establishment_id,omitempty"`
	CreatorID         string            `db:"creator_id" json:"creator_id"`
	PaymentStatus     PaymentStatus     `db:"payment_status" json:"payment_status"`
	State             ClassState        `db:"state" json:"state"`
	PublicationPolicy PublicationPolicy `db:"publication_policy" json:"publication_policy"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

// ClassDecision records the outcome of a class approval or rejection.
// SelfDecided distinguishes creator-initiated decisions from establishment
// ones for audit; the state transition itself is identical.
type ClassDecision struct {
	ClassID     string     `db:"class_id" json:"class_id"`
	State       ClassState `db:"state" json:"state"`
	DecidedBy   string     `db:"decided_by" json:"decided_by"`
	SelfDecided bool       `db:"self_decided" json:"self_decided"`
	ReasonCodes []string   `db:"-" json:"reason_codes,omitempty"`
	Note        *string    `db:"note" json:"note,omitempty"`
	DecidedAt   time.Time  `db:"decided_at" json:"decided_at"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	State           ClassState
	EstablishmentID string
	CreatorID       string
	Search          string
	Page            int
	PageSize        int
	SortBy          string
	SortOrder       string
}

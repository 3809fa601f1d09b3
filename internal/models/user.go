package models

import "time"

// Role categorises a directory user for publication-policy checks.
type Role string

const (
	RoleProfessor Role = "PROFESSOR"
	RoleStudent   Role = "STUDENT"
	RoleParent    Role = "PARENT"
	RoleGeneric   Role = "GENERIC"
)

// Valid reports whether the role is one of the known categories.
func (r Role) Valid() bool {
	switch r {
	case RoleProfessor, RoleStudent, RoleParent, RoleGeneric:
		return true
	}
	return false
}

// UserRole represents the application-level roles used for RBAC on the
// administrative API. Distinct from the directory Role: ADMIN is a staff
// concept, while PROFESSOR/STUDENT/PARENT describe class participants.
type UserRole string

const (
	RoleAdmin         UserRole = "ADMIN"
	RoleEstablishment UserRole = "ESTABLISHMENT"
	RoleMember        UserRole = "MEMBER"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

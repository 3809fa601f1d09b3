package models

// DirectoryRecord is the raw profile returned by the user directory. The
// optional fields carry the structural signals used for role resolution
// when no explicit tag or reference-collection membership is available.
type DirectoryRecord struct {
	ID              string  `db:"id" json:"id"`
	DisplayName     string  `db:"display_name" json:"display_name"`
	Email           string  `db:"email" json:"email"`
	RoleTag         *string `db:"role_tag" json:"role_tag,omitempty"`
	InstitutionName *string `db:"institution_name" json:"institution_name,omitempty"`
	RegistrationNo  *string `db:"registration_no" json:"registration_no,omitempty"`
	AcademicLevel   *string `db:"academic_level" json:"academic_level,omitempty"`
	HomeAddress     *string `db:"home_address" json:"home_address,omitempty"`
}

// RoleResolution reports how a role was determined, for audit and debugging.
type RoleResolution struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	Signal string `json:"signal"`
}

// Signal names recorded in RoleResolution.
const (
	SignalExplicitTag = "EXPLICIT_TAG"
	SignalMembership  = "REFERENCE_COLLECTION"
	SignalHeuristic   = "STRUCTURAL_HEURISTIC"
	SignalFallback    = "FALLBACK"
)

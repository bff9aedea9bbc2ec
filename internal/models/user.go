package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleCitizen    UserRole = "CITIZEN"
	RoleGovernment UserRole = "GOVERNMENT"
	RoleAdmin      UserRole = "ADMIN"
)

// User represents an application user stored in the users table. Identity is
// owned by the external auth provider; ExternalID is the provider uid.
type User struct {
	ID          string     `db:"id" json:"id"`
	ExternalID  string     `db:"external_id" json:"external_id"`
	Email       string     `db:"email" json:"email"`
	DisplayName string     `db:"display_name" json:"display_name"`
	Role        UserRole   `db:"role" json:"role"`
	Department  *string    `db:"department" json:"department,omitempty"`
	Active      bool       `db:"active" json:"active"`
	LastSeen    *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

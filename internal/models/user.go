package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin    UserRole = "ADMIN"
	RoleWorker   UserRole = "WORKER"
	RoleCustomer UserRole = "CUSTOMER"
)

// User is the read-only view of an account owned by the account service.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Role      UserRole  `db:"role" json:"role"`
	Active    bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Actor identifies who performs an operation.
type Actor struct {
	UserID string
	Role   UserRole
	Email  string
}

// IsAdmin reports whether the actor has the ADMIN role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

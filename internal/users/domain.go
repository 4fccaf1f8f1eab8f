package users

import (
	"time"

	"github.com/odyssey-erp/retail-authz/internal/roles"
)

// User represents an account that can log in.
type User struct {
	ID               string       `json:"id"`
	Username         string       `json:"username"`
	PasswordHash     string       `json:"-"`
	Roles            []roles.Role `json:"roles"`
	OrganizationID   string       `json:"organizationId,omitempty"`
	OrganizationType string       `json:"organizationType"`
	IsActive         bool         `json:"isActive"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

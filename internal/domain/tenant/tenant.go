// Package tenant defines the tenant and membership domain models for
// multi-tenancy.
package tenant

import "time"

// Tenant represents an isolated customer partition of the system's data.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership is the association granting a user access to a tenant.
// It is independently revocable: access requires both Membership.Active
// and the tenant's own Active flag.
type Membership struct {
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

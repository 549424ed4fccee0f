// Package identity defines the caller identity model: roles and verified
// credential claims.
package identity

import "fmt"

// Role represents the authorization level of a user within a tenant.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// ValidRoles is the set of all valid roles. Claims carrying a role outside
// this set are rejected at the boundary rather than passed through.
var ValidRoles = map[Role]bool{
	RoleOwner:    true,
	RoleAdmin:    true,
	RoleManager:  true,
	RoleOperator: true,
	RoleViewer:   true,
}

// ParseRole validates a raw role string from an external source.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !ValidRoles[r] {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Claims contains the decoded payload of a verified access token.
// Claims are a hint from the issuance flow, not an authorization: tenant
// membership is re-confirmed against live state on every request.
type Claims struct {
	UserID   string `json:"sub"`
	TenantID string `json:"tid,omitempty"`
	Role     Role   `json:"role,omitempty"`
	IssuedAt int64  `json:"iat"`
	Expiry   int64  `json:"exp"`
	Issuer   string `json:"iss"`
	Audience string `json:"aud"`
}

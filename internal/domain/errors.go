// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// Authentication failures. All of them map to HTTP 401 with a generic
// message; the specific cause is only ever logged server-side.
var (
	// ErrMissingCredential indicates the request carried no usable bearer credential.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidSignature indicates the credential failed integrity checks.
	ErrInvalidSignature = errors.New("invalid credential signature")

	// ErrExpired indicates the credential is past its expiry.
	ErrExpired = errors.New("credential expired")
)

// Authorization failures (HTTP 403).
var (
	// ErrTenantAccessDenied indicates the caller is not an active member of
	// the tenant named in the credential, or the tenant itself is inactive.
	ErrTenantAccessDenied = errors.New("tenant access denied")

	// ErrInsufficientRole indicates the caller's role is not in the route's allow-list.
	ErrInsufficientRole = errors.New("insufficient role")
)

// ErrRateLimited indicates the caller exceeded the request budget for the
// current window (HTTP 429).
var ErrRateLimited = errors.New("rate limited")

// ErrTenantUnavailable indicates the tenant's data partition could not be
// reached or provisioned in time (HTTP 5xx).
var ErrTenantUnavailable = errors.New("tenant partition unavailable")

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

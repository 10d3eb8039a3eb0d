package leads

import "errors"

var (
	// ErrLeadNotFound is returned when a lead does not exist within the tenant.
	ErrLeadNotFound = errors.New("lead not found")

	// ErrMissingTenantID is returned when a call is not scoped to a tenant.
	ErrMissingTenantID = errors.New("tenant id is required")

	// ErrInvalidPhone is returned when a phone number has no usable digits.
	ErrInvalidPhone = errors.New("phone is required")
)

package domain

import "errors"

// Error taxonomy shared across services and handlers. Repositories and services
// wrap these with fmt.Errorf("...: %w", err); handlers map them to status codes
// with errors.Is.
var (
	// ErrInvalidFormat 输入格式错误（在任何存储访问之前拒绝）
	ErrInvalidFormat = errors.New("invalid format")
	// ErrNotFound unknown corporate_id / identifier.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyLinked messaging identity is bound to a different corporate_id.
	ErrAlreadyLinked = errors.New("messaging identity already linked")
	// ErrNoSession no verification session exists for the messaging identity.
	ErrNoSession = errors.New("no verification session")
	// ErrSessionExpired the verification session passed its expiry.
	ErrSessionExpired = errors.New("verification session expired")
	// ErrLocked the account is under an active lockout.
	ErrLocked = errors.New("account locked")
	// ErrUnauthorized bad shared secret or bad webhook signature.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUpstream provisioning panel or messaging transport failure.
	ErrUpstream = errors.New("upstream unavailable")
)

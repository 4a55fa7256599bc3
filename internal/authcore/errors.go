package authcore

import "errors"

var (
	// ErrUnauthorized is the single outcome for every token-trust failure:
	// bad signature, expiry, malformed token, unknown subject, or a token
	// version that no longer matches the user record. The cause is never
	// exposed to callers.
	ErrUnauthorized = errors.New("authcore.unauthorized")
	// ErrUserNotFound indicates a direct-by-id lookup missed on a path where
	// authorization is already established.
	ErrUserNotFound = errors.New("authcore.user_not_found")
	// ErrStorageUnavailable indicates the user store could not be reached.
	// It is distinct from ErrUnauthorized: a storage timeout must never be
	// reported as a trust failure.
	ErrStorageUnavailable = errors.New("authcore.storage_unavailable")
	// ErrEmailRequired indicates a provider profile arrived without an email.
	ErrEmailRequired = errors.New("authcore.email_required")
)

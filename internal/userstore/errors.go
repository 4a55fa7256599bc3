package userstore

import "errors"

var (
	// ErrUserNotFound indicates no user matched the provided identifier.
	ErrUserNotFound = errors.New("user_store.not_found")
	// ErrEmailRequired indicates an upsert or lookup was attempted with an empty email.
	ErrEmailRequired = errors.New("user_store.email_required")
	// ErrUserIDRequired indicates an operation was attempted with an empty user ID.
	ErrUserIDRequired = errors.New("user_store.user_id_required")
)

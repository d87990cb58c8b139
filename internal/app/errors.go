package app

import (
	"errors"
	"fmt"
)

// AuthErrorKind is the closed set of user-facing authentication failures.
type AuthErrorKind string

const (
	AuthInvalidCredentials AuthErrorKind = "invalid-credentials"
	AuthRateLimited        AuthErrorKind = "rate-limited"
	AuthEmailInUse         AuthErrorKind = "email-in-use"
	AuthUnknown            AuthErrorKind = "unknown"
)

// AuthError carries a mapped, user-facing authentication failure. Raw
// backend error text never travels through it; callers only see the mapped
// message.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
}

func (e *AuthError) Error() string { return e.Message }

func authError(kind AuthErrorKind) *AuthError {
	switch kind {
	case AuthInvalidCredentials:
		return &AuthError{Kind: kind, Message: "E-Mail-Adresse oder Passwort ist falsch"}
	case AuthRateLimited:
		return &AuthError{Kind: kind, Message: "Zu viele Anmeldeversuche. Bitte versuchen Sie es später erneut"}
	case AuthEmailInUse:
		return &AuthError{Kind: kind, Message: "Diese E-Mail-Adresse wird bereits verwendet"}
	default:
		return &AuthError{Kind: AuthUnknown, Message: "Bei der Anmeldung ist ein Fehler aufgetreten"}
	}
}

// ValidationError reports a client-side form constraint violation. It is
// raised before any remote call is attempted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ErrAuthRequired is returned when an operation needs an authenticated
// session and none is present.
var ErrAuthRequired = errors.New("authentication required")

// ErrNotFound is returned when a referenced document does not exist.
var ErrNotFound = errors.New("not found")

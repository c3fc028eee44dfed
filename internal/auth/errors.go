package auth

import "errors"

// Backend error codes. Callers branch on these, never on message text.
const (
	CodeEmailInUse    = "auth/email-already-in-use"
	CodeUserNotFound  = "auth/user-not-found"
	CodeWrongPassword = "auth/wrong-password"
	CodeInvalidEmail  = "auth/invalid-email"
	CodeWeakPassword  = "auth/weak-password"
	CodeInvalidToken  = "auth/invalid-token"
	CodeTokenRevoked  = "auth/token-revoked"
	CodeInternal      = "auth/internal-error"
)

// Error is a failure reported by the identity backend.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code string, cause error) *Error {
	return &Error{Code: code, Err: cause}
}

// CodeOf returns the backend code carried by err, or "" if err did not
// come from this package.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

package session

import "github.com/izzacatering/backend/internal/auth"

// loginMessage turns a backend sign-in failure into the text the login
// screen shows. Wrong passwords, unknown accounts and malformed emails
// read the same, so the screen does not reveal which emails are
// registered.
func loginMessage(err error) string {
	switch auth.CodeOf(err) {
	case auth.CodeWrongPassword, auth.CodeUserNotFound, auth.CodeInvalidEmail:
		return "Invalid email or password"
	}
	return "Login failed. Please try again."
}

// registerMessage turns a backend sign-up failure into the text the
// register screen shows.
func registerMessage(err error) string {
	switch auth.CodeOf(err) {
	case auth.CodeEmailInUse:
		return "Email already registered"
	}
	return "Registration failed. Please try again."
}

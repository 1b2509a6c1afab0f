package auth

import "errors"

var (
	ErrEmailInUse       = errors.New("auth: email already in use")
	ErrInvalidEmail     = errors.New("auth: invalid email")
	ErrUserNotFound     = errors.New("auth: user not found")
	ErrWrongPassword    = errors.New("auth: wrong password")
	ErrEmailNotVerified = errors.New("auth: email not verified")
	ErrPasswordMismatch = errors.New("auth: passwords do not match")
	ErrWeakPassword     = errors.New("auth: weak password")
	ErrInvalidToken     = errors.New("auth: invalid or expired token")
	ErrAlreadyVerified  = errors.New("auth: email already verified")
)

const genericMessage = "Something went wrong. Please try again."

var messages = []struct {
	err error
	msg string
}{
	{ErrEmailInUse, "This email is already registered."},
	{ErrInvalidEmail, "Invalid email address."},
	{ErrUserNotFound, "User not found."},
	{ErrWrongPassword, "Incorrect password."},
	{ErrEmailNotVerified, "Please verify your email before signing in."},
	{ErrPasswordMismatch, "Passwords do not match."},
	{ErrWeakPassword, "Password should be at least 6 characters."},
	{ErrInvalidToken, "This link is invalid or has expired."},
	{ErrAlreadyVerified, "Your email is already verified."},
}

// Message maps an identity error to the text shown to the user. Unknown
// errors get a generic retry prompt.
func Message(err error) string {
	if err == nil {
		return ""
	}
	for _, m := range messages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return genericMessage
}

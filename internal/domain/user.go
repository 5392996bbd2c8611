package domain

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultUserStatus is the status every new user starts with.
const DefaultUserStatus = "I am new!"

const (
	minPasswordLength = 5
	maxPasswordLength = 72 // bcrypt input limit, in bytes
)

var (
	// ErrUserAlreadyExists is returned when trying to create a user with an existing email.
	ErrUserAlreadyExists = &Error{Kind: ErrValidation, Message: "E-Mail address already exists!"}
	// ErrUserNotFound is returned when looking up a non-existent user.
	ErrUserNotFound = &Error{Kind: ErrNotFound, Message: "Could not find user."}
	// ErrUnknownEmail is returned on login when no user has the given email.
	ErrUnknownEmail = &Error{Kind: ErrUnauthenticated, Message: "A user with this email could not be found."}
	// ErrWrongPassword is returned on login when the password does not match.
	ErrWrongPassword = &Error{Kind: ErrUnauthenticated, Message: "Wrong password!"}
	// ErrEmptyStatus is returned when a status update is blank.
	ErrEmptyStatus = NewValidationError("Status can not be empty.", FieldError{Field: "status", Message: "must not be empty"})
)

// User represents an account that can author posts.
type User struct {
	ID           string    // Unique identifier (UUIDv7)
	Email        string    // Unique login email
	PasswordHash []byte    // bcrypt hash
	Name         string    // Display name
	Status       string    // Free-text status
	Posts        []string  // IDs of owned posts, oldest first
	CreatedAt    time.Time // Account creation time
}

// Summary returns the public creator view of the user.
func (u *User) Summary() CreatorSummary {
	return CreatorSummary{ID: u.ID, Name: u.Name}
}

// SignupRequest holds the input of an account registration.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Normalize trims the email and name and lowercases the email.
// The password is kept verbatim, login compares it unmodified.
func (req SignupRequest) Normalize() SignupRequest {
	return SignupRequest{
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Password: req.Password,
		Name:     strings.TrimSpace(req.Name),
	}
}

// Validate checks a normalized signup request.
func (req SignupRequest) Validate() error {
	var fields []FieldError

	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		fields = append(fields, fieldErrorf("email", "Please enter a valid email."))
	}

	if utf8.RuneCountInString(req.Password) < minPasswordLength || len(req.Password) > maxPasswordLength {
		fields = append(fields, fieldErrorf("password",
			"must be between %d and %d characters", minPasswordLength, maxPasswordLength))
	}

	if req.Name == "" {
		fields = append(fields, fieldErrorf("name", "must not be empty"))
	}

	if len(fields) > 0 {
		return NewValidationError("Validation failed.", fields...)
	}

	return nil
}

// LoginRequest holds login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupResponse is returned after a successful signup.
type SignupResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// StatusRequest is the body of a status update.
type StatusRequest struct {
	Status string `json:"status"`
}

// StatusResponse carries a user's status.
type StatusResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NormalizeStatus trims a status and rejects it if empty.
func NormalizeStatus(status string) (string, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return "", ErrEmptyStatus
	}

	return status, nil
}

// ABOUTME: Input normalisation and validation for new admin accounts
// ABOUTME: Checks email, then password, then full name; first failure wins

package provision

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Field names reported in ValidationError.
const (
	FieldEmail    = "email"
	FieldPassword = "password"
	FieldFullName = "fullName"
	FieldUserID   = "user_id"
)

// Length limits.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 100
	MinFullNameLength = 2
	MaxFullNameLength = 100
	MaxEmailLength    = 255
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Request is the input of ProvisionAdmin.
type Request struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

// Normalize trims every field and lower-cases the email.
func (r Request) Normalize() Request {
	return Request{
		Email:    strings.ToLower(strings.TrimSpace(r.Email)),
		Password: strings.TrimSpace(r.Password),
		FullName: strings.TrimSpace(r.FullName),
	}
}

// Validate checks a normalized request and returns the first failing field.
func (r Request) Validate() *ValidationError {
	if !emailPattern.MatchString(r.Email) {
		return &ValidationError{Field: FieldEmail, Message: "Invalid email"}
	}
	if utf8.RuneCountInString(r.Email) > MaxEmailLength {
		return &ValidationError{Field: FieldEmail, Message: "Email must be less than 255 characters"}
	}

	switch n := utf8.RuneCountInString(r.Password); {
	case n < MinPasswordLength:
		return &ValidationError{Field: FieldPassword, Message: "Password must be at least 8 characters"}
	case n > MaxPasswordLength:
		return &ValidationError{Field: FieldPassword, Message: "Password must be less than 100 characters"}
	}

	switch n := utf8.RuneCountInString(r.FullName); {
	case n < MinFullNameLength:
		return &ValidationError{Field: FieldFullName, Message: "Full name must be at least 2 characters"}
	case n > MaxFullNameLength:
		return &ValidationError{Field: FieldFullName, Message: "Full name must be less than 100 characters"}
	}

	return nil
}

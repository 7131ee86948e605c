// Package registration provisions a new practice: it creates the
// organization on the identity platform, invites the first admin
// practitioner, scopes their profile, and relays the password-setup token
// into local storage.
package registration

import (
	"fmt"
	"strings"
)

// Request is the registration input.
type Request struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Email            string `json:"email"`
	Password         string `json:"password,omitempty"`
	OrganizationName string `json:"organization_name"`
}

// ValidationError reports an invalid registration request.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// Validate checks the request fields.
func (r Request) Validate() error {
	var missing []string
	if strings.TrimSpace(r.FirstName) == "" {
		missing = append(missing, "first_name")
	}
	if strings.TrimSpace(r.LastName) == "" {
		missing = append(missing, "last_name")
	}
	if strings.TrimSpace(r.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(r.OrganizationName) == "" {
		missing = append(missing, "organization_name")
	}
	if len(missing) > 0 {
		return &ValidationError{msg: fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", "))}
	}
	if !strings.Contains(r.Email, "@") {
		return &ValidationError{msg: "invalid email address"}
	}
	return nil
}

// Result reports the platform records created for a registration.
type Result struct {
	OrganizationID string `json:"organization_id"`
	ProfileRef     string `json:"profile_ref"`
	UserRef        string `json:"user_ref"`
}

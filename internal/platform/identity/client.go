// Package identity is the admin client for the external identity/FHIR
// platform. Organizations, practitioner profiles, and project memberships
// live on the platform; this client reaches them over the admin API using
// the configured client credentials.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when the platform reports a missing resource.
var ErrNotFound = fmt.Errorf("identity: resource not found")

// PlatformError is a non-2xx response from the platform admin API.
type PlatformError struct {
	Status  int
	Message string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("identity platform returned %d: %s", e.Status, e.Message)
}

// Config holds the admin credentials and project scope for the platform.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	ProjectID    string
}

// Client talks to the identity platform admin API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

// NewClient constructs a Client. The HTTP client carries a 15s timeout; all
// calls additionally honor their context.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

// Organization is an identity-platform organization resource.
type Organization struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ProjectID string `json:"project_id"`
}

// Profile is a practitioner profile resource. Compartments list the
// organization references the profile belongs to.
type Profile struct {
	Reference    string   `json:"reference"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	Email        string   `json:"email"`
	Compartments []string `json:"compartments"`
}

// Membership binds a platform user to a profile, organization, and access
// policy within the project.
type Membership struct {
	Reference        string `json:"reference"`
	UserRef          string `json:"user_ref"`
	ProfileRef       string `json:"profile_ref"`
	OrganizationRef  string `json:"organization_ref"`
	AccessPolicyRef  string `json:"access_policy_ref"`
	ScopingParameter string `json:"scoping_parameter"`
}

// InviteRequest invites a user into the project with a practitioner profile.
type InviteRequest struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Password        string `json:"password,omitempty"`
	AccessPolicyRef string `json:"access_policy_ref"`
	OrganizationRef string `json:"organization_ref"`
}

// InviteResponse is the platform's answer to an invite.
type InviteResponse struct {
	ProfileRef       string `json:"profile_ref"`
	UserRef          string `json:"user_ref"`
	MembershipRef    string `json:"membership_ref"`
	PasswordResetURL string `json:"password_reset_url"`
}

// SecurityRequest is a platform-native credential request (password setup,
// reset) attached to a user.
type SecurityRequest struct {
	ID      string `json:"id"`
	Secret  string `json:"secret"`
	UserRef string `json:"user_ref"`
	Type    string `json:"type"`
}

// CreateOrganization creates an organization scoped to the configured
// project.
func (c *Client) CreateOrganization(ctx context.Context, name string) (*Organization, error) {
	path := fmt.Sprintf("/admin/projects/%s/organizations", url.PathEscape(c.cfg.ProjectID))
	body := map[string]string{"name": name}

	var org Organization
	if err := c.do(ctx, http.MethodPost, path, body, &org); err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}
	return &org, nil
}

// InviteUser invites a user into the project, creating their practitioner
// profile and membership in one call.
func (c *Client) InviteUser(ctx context.Context, req InviteRequest) (*InviteResponse, error) {
	path := fmt.Sprintf("/admin/projects/%s/invite", url.PathEscape(c.cfg.ProjectID))

	var resp InviteResponse
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("invite user: %w", err)
	}
	return &resp, nil
}

// GetProfile fetches a practitioner profile by reference
// ("Practitioner/<id>").
func (c *Client) GetProfile(ctx context.Context, ref string) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, "/fhir/"+ref, nil, &p); err != nil {
		return nil, fmt.Errorf("get profile %s: %w", ref, err)
	}
	return &p, nil
}

// UpdateProfile replaces a practitioner profile.
func (c *Client) UpdateProfile(ctx context.Context, p *Profile) error {
	if err := c.do(ctx, http.MethodPut, "/fhir/"+p.Reference, p, nil); err != nil {
		return fmt.Errorf("update profile %s: %w", p.Reference, err)
	}
	return nil
}

// GetMembershipByProfile finds the project membership whose profile matches
// the given reference.
func (c *Client) GetMembershipByProfile(ctx context.Context, profileRef string) (*Membership, error) {
	path := fmt.Sprintf("/admin/projects/%s/memberships?profile=%s",
		url.PathEscape(c.cfg.ProjectID), url.QueryEscape(profileRef))

	var list struct {
		Data []Membership `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, fmt.Errorf("search memberships for %s: %w", profileRef, err)
	}
	if len(list.Data) == 0 {
		return nil, ErrNotFound
	}
	return &list.Data[0], nil
}

// GetOrganization fetches an organization by reference ("Organization/<id>").
func (c *Client) GetOrganization(ctx context.Context, ref string) (*Organization, error) {
	var org Organization
	if err := c.do(ctx, http.MethodGet, "/fhir/"+ref, nil, &org); err != nil {
		return nil, fmt.Errorf("get organization %s: %w", ref, err)
	}
	return &org, nil
}

// SearchSecurityRequests lists the platform's credential requests for a
// user, newest first.
func (c *Client) SearchSecurityRequests(ctx context.Context, userRef string) ([]SecurityRequest, error) {
	path := "/admin/security-requests?user=" + url.QueryEscape(userRef)

	var list struct {
		Data []SecurityRequest `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, fmt.Errorf("search security requests for %s: %w", userRef, err)
	}
	return list.Data, nil
}

// do performs one authenticated request and decodes the response into out
// when it is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError reads the platform's error body, falling back to raw text.
func (c *Client) decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	message := ""
	if err := json.Unmarshal(data, &envelope); err == nil {
		if envelope.Message != "" {
			message = envelope.Message
		} else if envelope.Error != "" {
			message = envelope.Error
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(data))
	}

	c.logger.Warn().
		Int("status", resp.StatusCode).
		Str("message", message).
		Msg("identity platform error")

	return &PlatformError{Status: resp.StatusCode, Message: message}
}

package registration

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/praxis/praxis/internal/domain/securitytoken"
	"github.com/praxis/praxis/internal/platform/identity"
)

// ErrNotConfigured is returned before any remote call when the platform
// credentials or access policy are absent.
var ErrNotConfigured = errors.New("registration is not configured")

// PlatformClient is the slice of the identity admin API registration needs.
type PlatformClient interface {
	CreateOrganization(ctx context.Context, name string) (*identity.Organization, error)
	InviteUser(ctx context.Context, req identity.InviteRequest) (*identity.InviteResponse, error)
	GetProfile(ctx context.Context, ref string) (*identity.Profile, error)
	UpdateProfile(ctx context.Context, p *identity.Profile) error
	SearchSecurityRequests(ctx context.Context, userRef string) ([]identity.SecurityRequest, error)
}

// TokenStore persists relayed password-setup tokens.
type TokenStore interface {
	Persist(ctx context.Context, profileRef, tokenID, tokenSecret, userRef string) error
}

// Service runs the registration workflow.
type Service struct {
	client         PlatformClient
	tokens         TokenStore
	accessPolicyID string
	logger         zerolog.Logger
}

func NewService(client PlatformClient, tokens TokenStore, accessPolicyID string, logger zerolog.Logger) *Service {
	return &Service{
		client:         client,
		tokens:         tokens,
		accessPolicyID: accessPolicyID,
		logger:         logger,
	}
}

// Register provisions an organization and its first admin practitioner.
// Platform records created before a later step fails are not rolled back.
func (s *Service) Register(ctx context.Context, req Request) (*Result, error) {
	if s.client == nil || s.accessPolicyID == "" {
		return nil, ErrNotConfigured
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	org, err := s.client.CreateOrganization(ctx, req.OrganizationName)
	if err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}
	orgRef := "Organization/" + org.ID

	invite, err := s.client.InviteUser(ctx, identity.InviteRequest{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Password:        req.Password,
		AccessPolicyRef: "AccessPolicy/" + s.accessPolicyID,
		OrganizationRef: orgRef,
	})
	if err != nil {
		return nil, fmt.Errorf("invite user: %w", err)
	}

	if err := s.addCompartment(ctx, invite.ProfileRef, orgRef); err != nil {
		return nil, err
	}

	// Both token paths are best effort and independent of each other. A
	// failure here never aborts the registration.
	s.relayResetURLToken(ctx, invite)
	s.relaySecurityRequests(ctx, invite)

	s.logger.Info().
		Str("organization_id", org.ID).
		Str("profile_ref", invite.ProfileRef).
		Str("user_ref", invite.UserRef).
		Msg("registration completed")

	return &Result{
		OrganizationID: org.ID,
		ProfileRef:     invite.ProfileRef,
		UserRef:        invite.UserRef,
	}, nil
}

// addCompartment appends the new organization to the invited profile's
// compartment list, read-modify-write.
func (s *Service) addCompartment(ctx context.Context, profileRef, orgRef string) error {
	profile, err := s.client.GetProfile(ctx, profileRef)
	if err != nil {
		return fmt.Errorf("fetch invited profile: %w", err)
	}
	for _, c := range profile.Compartments {
		if c == orgRef {
			return nil
		}
	}
	profile.Compartments = append(profile.Compartments, orgRef)
	if err := s.client.UpdateProfile(ctx, profile); err != nil {
		return fmt.Errorf("scope invited profile: %w", err)
	}
	return nil
}

// relayResetURLToken extracts the token id and secret from the invite's
// password reset URL (its trailing two path segments) and persists them.
func (s *Service) relayResetURLToken(ctx context.Context, invite *identity.InviteResponse) {
	tokenID, tokenSecret, err := splitResetURL(invite.PasswordResetURL)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("profile_ref", invite.ProfileRef).
			Msg("could not extract token from reset url")
		return
	}
	if err := s.tokens.Persist(ctx, invite.ProfileRef, tokenID, tokenSecret, invite.UserRef); err != nil {
		s.logger.Warn().Err(err).
			Str("profile_ref", invite.ProfileRef).
			Msg("could not persist reset-url token")
	}
}

// relaySecurityRequests persists any platform-native credential request
// minted for the invited user.
func (s *Service) relaySecurityRequests(ctx context.Context, invite *identity.InviteResponse) {
	reqs, err := s.client.SearchSecurityRequests(ctx, invite.UserRef)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("user_ref", invite.UserRef).
			Msg("could not search security requests")
		return
	}
	for _, sr := range reqs {
		if sr.ID == "" || sr.Secret == "" {
			continue
		}
		if err := s.tokens.Persist(ctx, invite.ProfileRef, sr.ID, sr.Secret, sr.UserRef); err != nil {
			s.logger.Warn().Err(err).
				Str("profile_ref", invite.ProfileRef).
				Str("token_id", sr.ID).
				Msg("could not persist security request token")
		}
	}
}

// splitResetURL takes the trailing two path segments of a password reset URL
// as {tokenID, tokenSecret}.
func splitResetURL(resetURL string) (string, string, error) {
	if resetURL == "" {
		return "", "", fmt.Errorf("empty reset url")
	}
	u, err := url.Parse(resetURL)
	if err != nil {
		return "", "", fmt.Errorf("parse reset url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[len(parts)-2] == "" || parts[len(parts)-1] == "" {
		return "", "", fmt.Errorf("reset url has no token segments: %s", u.Path)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}

var _ TokenStore = (*securitytoken.Service)(nil)

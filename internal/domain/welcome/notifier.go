// Package welcome sends the first-login welcome email for newly invited
// practitioners. It runs as an event handler: when the identity platform
// reports a Practitioner create or update, the notifier resolves the
// profile's email, membership, and organization, claims the persisted
// password-setup token, and sends a templated email with the setup link.
package welcome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/praxis/praxis/internal/domain/securitytoken"
	"github.com/praxis/praxis/internal/platform/event"
	"github.com/praxis/praxis/internal/platform/identity"
	"github.com/praxis/praxis/internal/platform/notification"
)

// Terminal statuses recorded per execution. Every exit path is explicit so
// the execution log can tell a skipped send from a failed one.
const (
	StatusSent           = "sent"
	StatusNoEmail        = "skipped_no_email"
	StatusNoMembership   = "skipped_no_membership"
	StatusTokenMissing   = "token_missing"
	StatusTokenMalformed = "token_malformed"
	StatusSendFailed     = "send_failed"
)

// defaultOrgName is used when the organization cannot be resolved.
const defaultOrgName = "your practice"

// Directory is the slice of the identity platform the notifier reads.
type Directory interface {
	GetProfile(ctx context.Context, ref string) (*identity.Profile, error)
	GetMembershipByProfile(ctx context.Context, profileRef string) (*identity.Membership, error)
	GetOrganization(ctx context.Context, ref string) (*identity.Organization, error)
}

// TokenClaimer claims a persisted password-setup token.
type TokenClaimer interface {
	Claim(ctx context.Context, profileRef string) (*securitytoken.Token, error)
}

// Mailer sends a templated notification.
type Mailer interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error)
}

// Config bounds the token-claim retry and anchors setup links.
type Config struct {
	AppBaseURL    string
	RetryAttempts int
	RetryDelay    time.Duration
}

// Notifier implements the welcome workflow.
type Notifier struct {
	directory Directory
	tokens    TokenClaimer
	mailer    Mailer
	cfg       Config
	logger    zerolog.Logger

	// sleep is swappable so tests don't wait out the retry delay.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewNotifier(directory Directory, tokens TokenClaimer, mailer Mailer, cfg Config, logger zerolog.Logger) *Notifier {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &Notifier{
		directory: directory,
		tokens:    tokens,
		mailer:    mailer,
		cfg:       cfg,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Register binds the notifier to Practitioner create and update events.
func (n *Notifier) Register(d *event.Dispatcher) error {
	for _, action := range []string{"create", "update"} {
		reg := event.Registration{
			ID:           "welcome-practitioner-" + action,
			Name:         "Practitioner Welcome Email",
			Description:  "Sends the password-setup welcome email when a practitioner profile appears",
			ResourceType: "Practitioner",
			Action:       action,
			Enabled:      true,
		}
		if err := d.Register(reg, n.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle processes one Practitioner event. Every exit path yields a
// terminal status; only unexpected infrastructure failures surface as
// errors.
func (n *Notifier) Handle(ctx context.Context, evt event.Event) (event.Result, error) {
	profile, err := n.resolveProfile(ctx, evt)
	if err != nil {
		return event.Result{}, err
	}

	log := n.logger.With().
		Str("profile_ref", profile.Reference).
		Str("event_id", evt.ID).
		Logger()

	if profile.Email == "" {
		log.Info().Msg("welcome skipped: profile has no email")
		return event.Result{Status: StatusNoEmail, Detail: "profile has no email"}, nil
	}

	membership, err := n.directory.GetMembershipByProfile(ctx, profile.Reference)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			log.Info().Msg("welcome skipped: no project membership")
			return event.Result{Status: StatusNoMembership, Detail: "no project membership"}, nil
		}
		return event.Result{}, fmt.Errorf("resolve membership: %w", err)
	}

	orgName := defaultOrgName
	if membership.OrganizationRef != "" {
		if org, err := n.directory.GetOrganization(ctx, membership.OrganizationRef); err == nil && org.Name != "" {
			orgName = org.Name
		} else if err != nil {
			log.Warn().Err(err).
				Str("organization_ref", membership.OrganizationRef).
				Msg("organization unresolvable, using default display name")
		}
	}

	token, err := n.claimWithRetry(ctx, profile.Reference)
	if err != nil {
		if errors.Is(err, securitytoken.ErrNotFound) {
			log.Warn().Int("attempts", n.cfg.RetryAttempts).Msg("welcome failed: no security token after retries")
			return event.Result{Status: StatusTokenMissing, Detail: "no security token after retries"}, nil
		}
		return event.Result{}, fmt.Errorf("claim security token: %w", err)
	}

	if token.TokenID == "" || token.TokenSecret == "" || token.UserRef == "" {
		log.Warn().Str("token_id", token.TokenID).Msg("welcome failed: malformed security token")
		return event.Result{Status: StatusTokenMalformed, Detail: "security token missing id, secret, or user"}, nil
	}

	setupURL := fmt.Sprintf("%s/setpassword/%s/%s",
		strings.TrimRight(n.cfg.AppBaseURL, "/"), token.TokenID, token.TokenSecret)

	_, err = n.mailer.SendFromTemplate(ctx, notification.WelcomeTemplateID, map[string]string{
		"given_name":    profile.FirstName,
		"practice_name": orgName,
		"setup_url":     setupURL,
	}, profile.Email)
	if err != nil {
		log.Error().Err(err).Msg("welcome email send failed")
		return event.Result{Status: StatusSendFailed, Detail: err.Error()}, nil
	}

	log.Info().Str("recipient", profile.Email).Str("organization", orgName).Msg("welcome email sent")
	return event.Result{Status: StatusSent}, nil
}

// resolveProfile builds the profile from the event payload, refetching from
// the directory when the payload lacks an email.
func (n *Notifier) resolveProfile(ctx context.Context, evt event.Event) (*identity.Profile, error) {
	var profile identity.Profile
	if evt.Resource != nil {
		data, err := json.Marshal(evt.Resource)
		if err != nil {
			return nil, fmt.Errorf("encode event resource: %w", err)
		}
		if err := json.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("decode event resource: %w", err)
		}
	}
	if profile.Reference == "" {
		if id, ok := evt.Resource["id"].(string); ok && id != "" {
			profile.Reference = evt.ResourceType + "/" + id
		}
	}
	if profile.Reference == "" {
		return nil, fmt.Errorf("event resource has no reference")
	}

	if profile.Email == "" {
		fetched, err := n.directory.GetProfile(ctx, profile.Reference)
		if err == nil {
			return fetched, nil
		}
		if !errors.Is(err, identity.ErrNotFound) {
			return nil, fmt.Errorf("fetch profile: %w", err)
		}
	}
	return &profile, nil
}

// claimWithRetry claims the profile's token with a bounded retry. The token
// is often persisted moments after the profile event fires, so not-found is
// retried; other errors are not.
func (n *Notifier) claimWithRetry(ctx context.Context, profileRef string) (*securitytoken.Token, error) {
	var lastErr error
	for attempt := 1; attempt <= n.cfg.RetryAttempts; attempt++ {
		token, err := n.tokens.Claim(ctx, profileRef)
		if err == nil {
			return token, nil
		}
		lastErr = err
		if !errors.Is(err, securitytoken.ErrNotFound) {
			return nil, err
		}
		if attempt < n.cfg.RetryAttempts {
			if err := n.sleep(ctx, n.cfg.RetryDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

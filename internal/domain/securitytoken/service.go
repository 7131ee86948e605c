package securitytoken

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no usable token exists for a profile.
var ErrNotFound = errors.New("security token not found")

// Service relays and claims password-setup tokens.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Persist stores a relayed token under the password-setup category.
func (s *Service) Persist(ctx context.Context, profileRef, tokenID, tokenSecret, userRef string) error {
	if profileRef == "" {
		return fmt.Errorf("profile reference is required")
	}
	if tokenID == "" || tokenSecret == "" {
		return fmt.Errorf("token id and secret are required")
	}

	t := &Token{
		ProfileRef:  profileRef,
		TokenID:     tokenID,
		TokenSecret: tokenSecret,
		UserRef:     userRef,
		Category:    CategoryPasswordSetup,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return fmt.Errorf("persist security token: %w", err)
	}

	s.logger.Debug().
		Str("profile_ref", profileRef).
		Str("token_id", tokenID).
		Msg("security token persisted")
	return nil
}

// Claim returns the newest unconsumed token for a profile and marks it
// consumed. Tokens are single use: a second claim without a fresh token
// returns ErrNotFound.
func (s *Service) Claim(ctx context.Context, profileRef string) (*Token, error) {
	t, err := s.repo.LatestUnconsumed(ctx, profileRef)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("claim security token: %w", err)
	}
	if err := s.repo.MarkConsumed(ctx, t); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Lost the race to another consumer.
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mark security token consumed: %w", err)
	}
	return t, nil
}

// List returns a profile's tokens, newest first.
func (s *Service) List(ctx context.Context, profileRef string, limit, offset int) ([]*Token, int, error) {
	return s.repo.ListByProfile(ctx, profileRef, limit, offset)
}

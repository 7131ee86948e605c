package securitytoken

import (
	"context"
)

type Repository interface {
	Create(ctx context.Context, t *Token) error
	// LatestUnconsumed returns the newest unconsumed token for a profile.
	LatestUnconsumed(ctx context.Context, profileRef string) (*Token, error)
	// MarkConsumed stamps consumed_at on a token.
	MarkConsumed(ctx context.Context, t *Token) error
	ListByProfile(ctx context.Context, profileRef string, limit, offset int) ([]*Token, int, error)
}

package securitytoken

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxis/praxis/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type tokenRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &tokenRepoPG{pool: pool} }

func (r *tokenRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const tokenCols = `id, profile_ref, token_id, token_secret, user_ref, category, consumed_at, created_at`

func (r *tokenRepoPG) scanToken(row pgx.Row) (*Token, error) {
	var t Token
	err := row.Scan(&t.ID, &t.ProfileRef, &t.TokenID, &t.TokenSecret, &t.UserRef,
		&t.Category, &t.ConsumedAt, &t.CreatedAt)
	return &t, err
}

func (r *tokenRepoPG) Create(ctx context.Context, t *Token) error {
	t.ID = uuid.New()
	if t.Category == "" {
		t.Category = CategoryPasswordSetup
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO security_token (id, profile_ref, token_id, token_secret, user_ref, category)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.ProfileRef, t.TokenID, t.TokenSecret, t.UserRef, t.Category)
	return err
}

func (r *tokenRepoPG) LatestUnconsumed(ctx context.Context, profileRef string) (*Token, error) {
	t, err := r.scanToken(r.conn(ctx).QueryRow(ctx, `
		SELECT `+tokenCols+` FROM security_token
		WHERE profile_ref = $1 AND consumed_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`, profileRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *tokenRepoPG) MarkConsumed(ctx context.Context, t *Token) error {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE security_token SET consumed_at = NOW()
		WHERE id = $1 AND consumed_at IS NULL
		RETURNING consumed_at`, t.ID)
	if err := row.Scan(&t.ConsumedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (r *tokenRepoPG) ListByProfile(ctx context.Context, profileRef string, limit, offset int) ([]*Token, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM security_token WHERE profile_ref = $1`, profileRef).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+tokenCols+` FROM security_token
		WHERE profile_ref = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, profileRef, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Token
	for rows.Next() {
		t, err := r.scanToken(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, nil
}

package billingsync

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

type billingRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &billingRepoPG{pool: pool} }

func (r *billingRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const accountCols = `id, customer_id, status, created_at, updated_at`

func scanAccount(row pgx.Row) (*BillingAccount, error) {
	var a BillingAccount
	err := row.Scan(&a.ID, &a.CustomerID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *billingRepoPG) UpsertAccount(ctx context.Context, customerID, status string) (*BillingAccount, error) {
	a, err := scanAccount(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing_account (id, customer_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id)
		DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()
		RETURNING `+accountCols,
		uuid.New(), customerID, status))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *billingRepoPG) GetAccount(ctx context.Context, id string) (*BillingAccount, error) {
	a, err := scanAccount(r.conn(ctx).QueryRow(ctx,
		`SELECT `+accountCols+` FROM billing_account WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *billingRepoPG) GetAccountByCustomer(ctx context.Context, customerID string) (*BillingAccount, error) {
	a, err := scanAccount(r.conn(ctx).QueryRow(ctx,
		`SELECT `+accountCols+` FROM billing_account WHERE customer_id = $1`, customerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *billingRepoPG) ListAccounts(ctx context.Context, limit, offset int) ([]*BillingAccount, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billing_account`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+accountCols+` FROM billing_account
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*BillingAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}

const invoiceCols = `id, invoice_id, account_id, gross_amount_cents, net_amount_cents, currency, status, created_at, updated_at`

func scanInvoice(row pgx.Row) (*BillingInvoice, error) {
	var inv BillingInvoice
	err := row.Scan(&inv.ID, &inv.InvoiceID, &inv.AccountID, &inv.GrossAmountCents,
		&inv.NetAmountCents, &inv.Currency, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
	return &inv, err
}

func (r *billingRepoPG) UpsertInvoice(ctx context.Context, inv *BillingInvoice) (*BillingInvoice, error) {
	out, err := scanInvoice(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing_invoice (id, invoice_id, account_id, gross_amount_cents, net_amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (invoice_id)
		DO UPDATE SET
			gross_amount_cents = EXCLUDED.gross_amount_cents,
			net_amount_cents = EXCLUDED.net_amount_cents,
			currency = EXCLUDED.currency,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING `+invoiceCols,
		uuid.New(), inv.InvoiceID, inv.AccountID, inv.GrossAmountCents,
		inv.NetAmountCents, inv.Currency, inv.Status))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *billingRepoPG) ListInvoicesByAccount(ctx context.Context, accountID string, limit, offset int) ([]*BillingInvoice, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM billing_invoice WHERE account_id = $1`, accountID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+invoiceCols+` FROM billing_invoice
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*BillingInvoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inv)
	}
	return items, total, nil
}

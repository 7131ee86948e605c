package billingsync

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a billing record does not exist.
var ErrNotFound = errors.New("billing record not found")

// Repository persists billing mirrors. Upserts are keyed by the provider
// identifiers so webhook redeliveries converge on one row.
type Repository interface {
	UpsertAccount(ctx context.Context, customerID, status string) (*BillingAccount, error)
	GetAccount(ctx context.Context, id string) (*BillingAccount, error)
	GetAccountByCustomer(ctx context.Context, customerID string) (*BillingAccount, error)
	ListAccounts(ctx context.Context, limit, offset int) ([]*BillingAccount, int, error)
	UpsertInvoice(ctx context.Context, inv *BillingInvoice) (*BillingInvoice, error)
	ListInvoicesByAccount(ctx context.Context, accountID string, limit, offset int) ([]*BillingInvoice, int, error)
}

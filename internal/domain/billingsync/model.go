// Package billingsync reconciles billing provider webhook events into local
// financial records. Accounts mirror the provider's customers and invoices
// mirror its invoices, keyed by the provider identifiers so redeliveries
// update rather than duplicate.
package billingsync

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus is the local financial lifecycle of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusIssued    InvoiceStatus = "issued"
	InvoiceStatusBalanced  InvoiceStatus = "balanced"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// MapInvoiceStatus translates a provider invoice status into the local
// lifecycle. Unknown statuses map to draft so new provider states never
// drop an invoice.
func MapInvoiceStatus(provider string) InvoiceStatus {
	switch provider {
	case "paid":
		return InvoiceStatusBalanced
	case "open":
		return InvoiceStatusIssued
	case "uncollectible", "void":
		return InvoiceStatusCancelled
	default:
		return InvoiceStatusDraft
	}
}

// BillingAccount is the local mirror of a provider customer.
type BillingAccount struct {
	ID         uuid.UUID `json:"id"`
	CustomerID string    `json:"customer_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BillingInvoice is the local mirror of a provider invoice. Amounts are in
// the provider's smallest currency unit.
type BillingInvoice struct {
	ID               uuid.UUID     `json:"id"`
	InvoiceID        string        `json:"invoice_id"`
	AccountID        uuid.UUID     `json:"account_id"`
	GrossAmountCents int64         `json:"gross_amount_cents"`
	NetAmountCents   int64         `json:"net_amount_cents"`
	Currency         string        `json:"currency"`
	Status           InvoiceStatus `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

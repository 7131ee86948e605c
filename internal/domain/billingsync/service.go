package billingsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// WebhookEvent is the provider's event envelope. The payload is decoded
// into typed objects per event family; unknown fields are ignored.
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object webhookObject `json:"object"`
	} `json:"data"`
}

// webhookObject covers the union of subscription and invoice fields the
// reconciler reads.
type webhookObject struct {
	ID         string `json:"id"`
	Customer   string `json:"customer"`
	Status     string `json:"status"`
	Total      int64  `json:"total"`
	AmountPaid int64  `json:"amount_paid"`
	Currency   string `json:"currency"`
}

// Outcome reports what a webhook event did.
type Outcome struct {
	Handled   bool   `json:"handled"`
	AccountID string `json:"account_id,omitempty"`
	InvoiceID string `json:"invoice_id,omitempty"`
	Status    string `json:"status,omitempty"`
}

// Service reconciles provider events into local billing records.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// HandleEvent applies one provider event. Event types outside the
// subscription and invoice families are acknowledged without action so the
// provider stops redelivering them.
func (s *Service) HandleEvent(ctx context.Context, evt WebhookEvent) (Outcome, error) {
	switch {
	case evt.Type == "customer.subscription.created" || evt.Type == "customer.subscription.updated":
		return s.handleSubscription(ctx, evt)
	case strings.HasPrefix(evt.Type, "invoice."):
		return s.handleInvoice(ctx, evt)
	default:
		s.logger.Debug().Str("event_id", evt.ID).Str("type", evt.Type).Msg("billing event ignored")
		return Outcome{Handled: false}, nil
	}
}

func (s *Service) handleSubscription(ctx context.Context, evt WebhookEvent) (Outcome, error) {
	sub := evt.Data.Object
	if sub.Customer == "" {
		return Outcome{}, fmt.Errorf("subscription event %s has no customer", evt.ID)
	}
	account, err := s.repo.UpsertAccount(ctx, sub.Customer, sub.Status)
	if err != nil {
		return Outcome{}, fmt.Errorf("upsert billing account: %w", err)
	}
	s.logger.Info().
		Str("event_id", evt.ID).
		Str("customer_id", sub.Customer).
		Str("status", sub.Status).
		Msg("billing account reconciled")
	return Outcome{Handled: true, AccountID: account.ID.String(), Status: sub.Status}, nil
}

func (s *Service) handleInvoice(ctx context.Context, evt WebhookEvent) (Outcome, error) {
	inv := evt.Data.Object
	if inv.Customer == "" {
		return Outcome{}, fmt.Errorf("invoice event %s has no customer", evt.ID)
	}
	if inv.ID == "" {
		return Outcome{}, fmt.Errorf("invoice event %s has no invoice id", evt.ID)
	}

	account, err := s.repo.UpsertAccount(ctx, inv.Customer, "active")
	if err != nil {
		return Outcome{}, fmt.Errorf("upsert billing account: %w", err)
	}

	status := MapInvoiceStatus(inv.Status)
	stored, err := s.repo.UpsertInvoice(ctx, &BillingInvoice{
		InvoiceID:        inv.ID,
		AccountID:        account.ID,
		GrossAmountCents: inv.Total,
		NetAmountCents:   inv.AmountPaid,
		Currency:         inv.Currency,
		Status:           status,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("upsert billing invoice: %w", err)
	}

	s.logger.Info().
		Str("event_id", evt.ID).
		Str("invoice_id", inv.ID).
		Str("customer_id", inv.Customer).
		Str("status", string(status)).
		Int64("gross_amount_cents", inv.Total).
		Msg("billing invoice reconciled")
	return Outcome{
		Handled:   true,
		AccountID: account.ID.String(),
		InvoiceID: stored.InvoiceID,
		Status:    string(status),
	}, nil
}

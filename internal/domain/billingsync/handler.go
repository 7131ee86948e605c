package billingsync

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/praxis/praxis/pkg/pagination"
)

// maxWebhookBody bounds the webhook payload size.
const maxWebhookBody = 1 << 20

// HandlerConfig carries the webhook verification settings. There is no
// package-level provider state; everything arrives here.
type HandlerConfig struct {
	SigningSecret string
	Tolerance     time.Duration
}

// Handler exposes the webhook endpoint and operator billing views.
type Handler struct {
	svc  *Service
	repo Repository
	cfg  HandlerConfig

	// now is swappable so signature tolerance tests can pin the clock.
	now func() time.Time
}

func NewHandler(svc *Service, repo Repository, cfg HandlerConfig) *Handler {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	return &Handler{svc: svc, repo: repo, cfg: cfg, now: time.Now}
}

// RegisterWebhook binds the unauthenticated webhook route. The signature
// check is the authentication.
func (h *Handler) RegisterWebhook(e *echo.Echo) {
	e.POST("/webhooks/billing", h.HandleWebhook)
}

// RegisterRoutes binds the JWT-guarded operator routes.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/billing/accounts", h.ListAccounts)
	g.GET("/billing/accounts/:id/invoices", h.ListAccountInvoices)
}

// HandleWebhook handles POST /webhooks/billing.
func (h *Handler) HandleWebhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable payload"})
	}

	sig := c.Request().Header.Get(SignatureHeader)
	if err := VerifySignature(payload, sig, h.cfg.SigningSecret, h.cfg.Tolerance, h.now()); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	var evt WebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed event payload"})
	}
	if evt.Type == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "event type missing"})
	}

	outcome, err := h.svc.HandleEvent(c.Request().Context(), evt)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, outcome)
}

// ListAccounts handles GET /api/v1/billing/accounts.
func (h *Handler) ListAccounts(c echo.Context) error {
	p := pagination.FromContext(c)
	accounts, total, err := h.repo.ListAccounts(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if accounts == nil {
		accounts = []*BillingAccount{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(accounts, total, p.Limit, p.Offset))
}

// ListAccountInvoices handles GET /api/v1/billing/accounts/:id/invoices.
func (h *Handler) ListAccountInvoices(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.repo.GetAccount(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "billing account not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	p := pagination.FromContext(c)
	invoices, total, err := h.repo.ListInvoicesByAccount(c.Request().Context(), id, p.Limit, p.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if invoices == nil {
		invoices = []*BillingInvoice{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(invoices, total, p.Limit, p.Offset))
}

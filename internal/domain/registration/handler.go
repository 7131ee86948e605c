package registration

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/praxis/praxis/internal/platform/identity"
)

// Handler exposes registration over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes binds registration routes to the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/registrations", h.HandleRegister)
}

// HandleRegister handles POST /registrations.
func (h *Handler) HandleRegister(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	result, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		var ve *ValidationError
		var pe *identity.PlatformError
		switch {
		case errors.Is(err, ErrNotConfigured):
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		case errors.As(err, &ve):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.As(err, &pe):
			return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}
	return c.JSON(http.StatusCreated, result)
}

package event

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// IngestSecretHeader carries the shared secret on inbound event posts. The
// identity platform has no bearer token of its own, so ingest authenticates
// the same way the billing webhook does: a secret agreed out of band.
const IngestSecretHeader = "X-Event-Secret"

// Handler exposes the dispatcher over HTTP via Echo.
type Handler struct {
	dispatcher   *Dispatcher
	ingestSecret string
}

// NewHandler creates a new Handler. An empty ingestSecret disables the
// shared-secret check on event ingest; that is only acceptable in
// development, and production configuration validation enforces it.
func NewHandler(d *Dispatcher, ingestSecret string) *Handler {
	return &Handler{dispatcher: d, ingestSecret: ingestSecret}
}

// RegisterIngest binds the inbound event route. It is registered separately
// from the operator routes because it sits outside bearer-token auth.
func (h *Handler) RegisterIngest(g *echo.Group) {
	g.POST("/events", h.HandleDispatch)
}

// RegisterRoutes binds the operator routes to the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/handlers", h.HandleListHandlers)
	g.GET("/handlers/:id/executions", h.HandleExecutions)
	g.GET("/executions", h.HandleAllExecutions)
	g.POST("/handlers/:id/enable", h.HandleEnable)
	g.POST("/handlers/:id/disable", h.HandleDisable)
}

// dispatchRequest is the JSON body for POST /events.
type dispatchRequest struct {
	ResourceType string                 `json:"resource_type"`
	Action       string                 `json:"action"`
	Resource     map[string]interface{} `json:"resource"`
}

// HandleDispatch handles POST /events.
func (h *Handler) HandleDispatch(c echo.Context) error {
	if h.ingestSecret != "" {
		presented := c.Request().Header.Get(IngestSecretHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(h.ingestSecret)) != 1 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid event secret"})
		}
	}

	var req dispatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.ResourceType == "" || req.Action == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "resource_type and action are required"})
	}

	evt := Event{
		ResourceType: req.ResourceType,
		Action:       req.Action,
		Resource:     req.Resource,
	}
	execs := h.dispatcher.Dispatch(c.Request().Context(), evt)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  execs,
		"total": len(execs),
	})
}

// HandleListHandlers handles GET /handlers.
func (h *Handler) HandleListHandlers(c echo.Context) error {
	handlers := h.dispatcher.Handlers()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  handlers,
		"total": len(handlers),
	})
}

// HandleExecutions handles GET /handlers/:id/executions.
func (h *Handler) HandleExecutions(c echo.Context) error {
	id := c.Param("id")
	execs := h.dispatcher.Executions(id)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  execs,
		"total": len(execs),
	})
}

// HandleAllExecutions handles GET /executions.
func (h *Handler) HandleAllExecutions(c echo.Context) error {
	execs := h.dispatcher.AllExecutions()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  execs,
		"total": len(execs),
	})
}

// HandleEnable handles POST /handlers/:id/enable.
func (h *Handler) HandleEnable(c echo.Context) error {
	if err := h.dispatcher.SetEnabled(c.Param("id"), true); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "handler not found"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "enabled"})
}

// HandleDisable handles POST /handlers/:id/disable.
func (h *Handler) HandleDisable(c echo.Context) error {
	if err := h.dispatcher.SetEnabled(c.Param("id"), false); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "handler not found"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "disabled"})
}

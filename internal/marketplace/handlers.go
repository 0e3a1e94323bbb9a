package marketplace

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/peerledger/internal/middleware"
)

type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// Get returns the marketplace configuration and counters
func (h *Handler) Get(c echo.Context) error {
	m, err := h.registry.Get(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

type initializeRequest struct {
	FeeRate int `json:"fee_rate"`
}

// Initialize creates the marketplace with the calling admin as authority
func (h *Handler) Initialize(c echo.Context) error {
	authority, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	var req initializeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	m, err := h.registry.Initialize(c.Request().Context(), authority, req.FeeRate)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

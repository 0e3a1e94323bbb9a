package listing

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/peerledger/internal/middleware"
)

type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// Create allows a user to list a new item on the marketplace
func (h *Handler) Create(c echo.Context) error {
	seller, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	var req Input
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	l, err := h.manager.Create(c.Request().Context(), seller, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, l)
}

// Get returns a single listing
func (h *Handler) Get(c echo.Context) error {
	l, err := h.manager.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

type statusRequest struct {
	IsActive *bool `json:"is_active"`
}

// UpdateStatus lets the seller pause or resume a listing
func (h *Handler) UpdateStatus(c echo.Context) error {
	actor, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil || req.IsActive == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "is_active is required")
	}
	l, err := h.manager.SetActive(c.Request().Context(), actor, c.Param("id"), *req.IsActive)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

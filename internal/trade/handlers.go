package trade

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/peerledger/internal/middleware"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// POST /listings/:id/purchase
func (h *Handler) Purchase(c echo.Context) error {
	buyer, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	p, err := h.engine.Purchase(c.Request().Context(), buyer, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

// GET /purchases/:id
func (h *Handler) Get(c echo.Context) error {
	p, err := h.engine.GetPurchase(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// POST /purchases/:id/complete
func (h *Handler) Complete(c echo.Context) error {
	actor, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	p, err := h.engine.Complete(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

type disputeRequest struct {
	Reason string `json:"reason"`
}

// POST /purchases/:id/dispute
func (h *Handler) Dispute(c echo.Context) error {
	actor, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	var req disputeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	p, err := h.engine.OpenDispute(c.Request().Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// POST /purchases/:id/reviews
func (h *Handler) Review(c echo.Context) error {
	reviewer, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	var req ReviewInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	r, err := h.engine.LeaveReview(c.Request().Context(), reviewer, c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, r)
}

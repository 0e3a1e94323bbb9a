package wallet

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/peerledger/internal/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Balance returns the authenticated user's wallet balance
func (h *Handler) Balance(c echo.Context) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	w, err := h.svc.Balance(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": userID,
		"balance": w.Balance,
	})
}

// Transactions returns the authenticated user's journal, newest first
func (h *Handler) Transactions(c echo.Context) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	entries, err := h.svc.Entries(c.Request().Context(), userID, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": entries})
}

type depositRequest struct {
	Amount int64 `json:"amount"`
}

// AdminDeposit credits a user's wallet (admin view)
func (h *Handler) AdminDeposit(c echo.Context) error {
	var req depositRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	w, err := h.svc.Deposit(c.Request().Context(), c.Param("id"), req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w)
}

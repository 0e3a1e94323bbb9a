package user

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/peerledger/internal/middleware"
	"github.com/sudo-init-do/peerledger/internal/storage"
)

type Handler struct {
	tracker *Tracker
}

func NewHandler(tracker *Tracker) *Handler {
	return &Handler{tracker: tracker}
}

type profileResponse struct {
	storage.Profile
	AverageRating string `json:"average_rating"`
}

func newProfileResponse(p storage.Profile) profileResponse {
	return profileResponse{Profile: p, AverageRating: AverageRating(p).StringFixed(2)}
}

// POST /users
func (h *Handler) Create(c echo.Context) error {
	identity, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	var req ProfileInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	p, err := h.tracker.CreateProfile(c.Request().Context(), identity, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newProfileResponse(p))
}

// PATCH /users/me
func (h *Handler) Update(c echo.Context) error {
	identity, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	var req ProfileInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	p, err := h.tracker.UpdateProfile(c.Request().Context(), identity, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newProfileResponse(p))
}

// GET /users/:id
func (h *Handler) Get(c echo.Context) error {
	p, err := h.tracker.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newProfileResponse(p))
}

// GET /users/:id/reviews?page=&limit=
func (h *Handler) Reviews(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	reviews, err := h.tracker.ListReviews(c.Request().Context(), c.Param("id"), page, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"reviews": reviews})
}

type verificationRequest struct {
	Attestation string `json:"attestation"`
}

// POST /users/me/verification
func (h *Handler) Verify(c echo.Context) error {
	identity, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	var req verificationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	p, err := h.tracker.ApplyVerification(c.Request().Context(), identity, identity, req.Attestation)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newProfileResponse(p))
}

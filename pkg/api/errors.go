package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jakechorley/radflow/pkg/core/auction"
	"github.com/jakechorley/radflow/pkg/core/model"
	"github.com/jakechorley/radflow/pkg/core/registry"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings is checked in order; the first sentinel matched by errors.Is wins
var errorMappings = []errorMapping{
	{model.ErrShiftNotFound, http.StatusNotFound, "shift_not_found"},
	{model.ErrRadiologistNotFound, http.StatusNotFound, "radiologist_not_found"},
	{model.ErrLocationNotFound, http.StatusNotFound, "location_not_found"},
	{model.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{auction.ErrWindowOpen, http.StatusConflict, "bidding_window_open"},
	{model.ErrBidTooLow, http.StatusUnprocessableEntity, "bid_too_low"},
	{model.ErrShiftNotBidding, http.StatusUnprocessableEntity, "shift_not_bidding"},
	{model.ErrPolicyViolation, http.StatusUnprocessableEntity, "policy_violation"},
	{model.ErrIneligibleBidder, http.StatusUnprocessableEntity, "ineligible_bidder"},
	{model.ErrInvalidShift, http.StatusBadRequest, "invalid_shift"},
	{registry.ErrClosed, http.StatusServiceUnavailable, "unavailable"},
}

func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func (h *handler) respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(status, ErrorResponse{Error: "internal server error", Code: code})
		return
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_request"})
}

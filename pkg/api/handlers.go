package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jakechorley/radflow/pkg/core/model"
	"github.com/jakechorley/radflow/pkg/core/reports"
	"github.com/jakechorley/radflow/pkg/core/services"
)

type handler struct {
	engine *services.Engine
	logger *zap.Logger
}

func (h *handler) createShift(c *gin.Context) {
	var req CreateShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	spec, err := req.toSpec()
	if err != nil {
		badRequest(c, err)
		return
	}

	shift, err := h.engine.CreateShift(c.Request.Context(), spec)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newShiftResponse(shift))
}

// listShifts accepts ?status=active_bidding,filled or repeated status parameters
func (h *handler) listShifts(c *gin.Context) {
	var values []string
	for _, param := range c.QueryArray("status") {
		for _, v := range strings.Split(param, ",") {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
	}
	statuses, err := parseStatuses(values)
	if err != nil {
		badRequest(c, err)
		return
	}

	shifts := h.engine.ListShifts(c.Request.Context(), statuses...)
	resp := make([]ShiftResponse, 0, len(shifts))
	for _, s := range shifts {
		resp = append(resp, newShiftResponse(s))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) getShift(c *gin.Context) {
	shift, err := h.engine.GetShift(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newShiftResponse(shift))
}

func (h *handler) runShift(c *gin.Context) {
	result, err := h.engine.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRunResponse(result))
}

// openBidding takes an optional ?windowHours= override of the department bidding window
func (h *handler) openBidding(c *gin.Context) {
	var window time.Duration
	if raw := c.Query("windowHours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			badRequest(c, fmt.Errorf("windowHours must be a positive whole number"))
			return
		}
		window = time.Duration(hours) * time.Hour
	}

	shift, err := h.engine.OpenBidding(c.Request.Context(), c.Param("id"), window)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newShiftResponse(shift))
}

func (h *handler) placeBid(c *gin.Context) {
	var req BidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	shift, err := h.engine.PlaceBid(c.Request.Context(), c.Param("id"), req.BidderID, req.Amount)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newShiftResponse(shift))
}

func (h *handler) registerAutoBid(c *gin.Context) {
	var req AutoBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	shift, err := h.engine.RegisterAutoBid(c.Request.Context(), c.Param("id"), req.RadiologistID, req.Ceiling)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newShiftResponse(shift))
}

func (h *handler) closeShift(c *gin.Context) {
	var req CloseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	result, shift, err := h.engine.Close(c.Request.Context(), c.Param("id"), req.Force)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, CloseResponse{Result: string(result), Shift: newShiftResponse(shift)})
}

func (h *handler) resolveApproval(c *gin.Context) {
	var req ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	shift, err := h.engine.Resolve(c.Request.Context(), c.Param("id"), *req.Approved)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newShiftResponse(shift))
}

func (h *handler) withdrawShift(c *gin.Context) {
	shift, err := h.engine.Withdraw(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newShiftResponse(shift))
}

func (h *handler) eligibility(c *gin.Context) {
	radiologistID, err := strconv.Atoi(c.Param("radiologistID"))
	if err != nil {
		badRequest(c, fmt.Errorf("radiologistID must be a whole number"))
		return
	}

	report, err := h.engine.Eligibility(c.Request.Context(), c.Param("id"), radiologistID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newEligibilityResponse(report))
}

func (h *handler) candidates(c *gin.Context) {
	candidates, err := h.engine.Candidates(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	resp := make([]CandidateResponse, 0, len(candidates))
	for _, cand := range candidates {
		resp = append(resp, newCandidateResponse(cand))
	}
	c.JSON(http.StatusOK, resp)
}

// report accepts optional ?from=2025-03-01&to=2025-04-01, to being exclusive
func (h *handler) report(c *gin.Context) {
	var period reports.Period
	for _, bound := range []struct {
		name string
		dst  *time.Time
	}{{"from", &period.From}, {"to", &period.To}} {
		v := c.Query(bound.name)
		if v == "" {
			continue
		}
		d, err := model.ParseDate(v)
		if err != nil {
			badRequest(c, fmt.Errorf("invalid %s: %w", bound.name, err))
			return
		}
		*bound.dst = d
	}
	if !period.From.IsZero() && !period.To.IsZero() && !period.From.Before(period.To) {
		badRequest(c, fmt.Errorf("from must be before to"))
		return
	}

	report, err := h.engine.Report(c.Request.Context(), period)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newReportResponse(report))
}

package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jakechorley/radflow/pkg/core/services"
)

type RouterOptions struct {
	// RequestsPerMinute per client address; zero disables rate limiting
	RequestsPerMinute int
	// TrustedProxies are the addresses or CIDRs allowed to set X-Forwarded-For; none by default
	TrustedProxies []string
}

// NewRouter wires the shift engine to its HTTP routes
func NewRouter(engine *services.Engine, logger *zap.Logger, opts RouterOptions) (*gin.Engine, error) {
	router := gin.New()
	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	router.Use(gin.Recovery(), RequestLogger(logger))
	if opts.RequestsPerMinute > 0 {
		router.Use(RateLimit(opts.RequestsPerMinute, logger))
	}

	h := &handler{engine: engine, logger: logger}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/reports", h.report)

	shifts := router.Group("/shifts")
	{
		shifts.POST("", h.createShift)
		shifts.GET("", h.listShifts)
		shifts.GET("/:id", h.getShift)
		shifts.POST("/:id/run", h.runShift)
		shifts.POST("/:id/bidding", h.openBidding)
		shifts.POST("/:id/bids", h.placeBid)
		shifts.POST("/:id/auto-bids", h.registerAutoBid)
		shifts.POST("/:id/close", h.closeShift)
		shifts.POST("/:id/approval", h.resolveApproval)
		shifts.POST("/:id/withdraw", h.withdrawShift)
		shifts.GET("/:id/eligibility/:radiologistID", h.eligibility)
		shifts.GET("/:id/candidates", h.candidates)
	}

	return router, nil
}

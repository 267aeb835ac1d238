package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ticket-service/internal/models"
	"ticket-service/internal/service"
	"ticket-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Allocator admits purchase requests.
type Allocator interface {
	Allocate(ctx context.Context, req *service.AllocateRequest) (*service.AllocateResult, error)
}

type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, []models.Ticket, error)
}

type AvailabilityReader interface {
	Availability(ctx context.Context, sessionID, zoneID int64) (*service.Availability, error)
}

// RateLimiter decides whether a purchaser may start another purchase.
type RateLimiter interface {
	AllowPurchase(ctx context.Context, purchaserID int64, limit int, window time.Duration) (bool, error)
}

// ReadinessCheck reports whether a dependency is reachable.
type ReadinessCheck func(ctx context.Context) error

const rateLimitWindow = time.Minute

// Handler contains HTTP handlers
type Handler struct {
	allocator Allocator
	orders    OrderReader
	catalog   AvailabilityReader
	limiter   RateLimiter
	limit     int
	checks    map[string]ReadinessCheck
	logger    *zap.Logger
}

type HandlerOption func(*Handler)

// WithRateLimit allows each purchaser limit purchase attempts per minute.
func WithRateLimit(limiter RateLimiter, limit int) HandlerOption {
	return func(h *Handler) {
		h.limiter = limiter
		h.limit = limit
	}
}

// WithReadinessCheck adds a dependency probed by /ready.
func WithReadinessCheck(name string, check ReadinessCheck) HandlerOption {
	return func(h *Handler) {
		h.checks[name] = check
	}
}

// NewHandler creates a new HTTP handler
func NewHandler(allocator Allocator, orders OrderReader, catalog AvailabilityReader, opts ...HandlerOption) *Handler {
	h := &Handler{
		allocator: allocator,
		orders:    orders,
		catalog:   catalog,
		checks:    make(map[string]ReadinessCheck),
		logger:    util.GetLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/sessions/:sessionId/zones/:zoneId/availability", h.getAvailability)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every registered dependency answers.
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not ready",
			"failures": failed,
			"time":     time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder handles ticket purchases
func (h *Handler) createOrder(c *gin.Context) {
	var req service.AllocateRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	purchaserID, identified, err := purchaserFromHeader(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid X-User-ID header"})
		return
	}
	if identified {
		req.PurchaserID = purchaserID
	}
	if req.PurchaserID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "purchaser_id is required"})
		return
	}

	ctx := c.Request.Context()
	if !h.allowPurchase(ctx, req.PurchaserID) {
		writeRejection(c, &models.Rejection{
			Reason: models.ReasonRateLimited,
			Detail: "too many purchase attempts, retry later",
		})
		return
	}

	resp, err := h.allocator.Allocate(ctx, &req)
	if err != nil {
		if rej, ok := models.AsRejection(err); ok {
			writeRejection(c, rej)
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to allocate tickets, please retry",
		})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) allowPurchase(ctx context.Context, purchaserID int64) bool {
	if h.limiter == nil || h.limit <= 0 {
		return true
	}
	allowed, err := h.limiter.AllowPurchase(ctx, purchaserID, h.limit, rateLimitWindow)
	if err != nil {
		h.logger.Warn("Rate limiter unavailable, allowing request",
			zap.Int64("purchaser_id", purchaserID),
			zap.Error(err))
		return true
	}
	return allowed
}

// getOrder handles get order by ID. A caller identified by X-User-ID only
// sees its own orders; without the header, buyer id numbers are masked.
func (h *Handler) getOrder(c *gin.Context) {
	callerID, identified, err := purchaserFromHeader(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid X-User-ID header"})
		return
	}

	order, tickets, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if errors.Is(err, service.ErrOrderNotFound) || (err == nil && identified && order.PurchaserID != callerID) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Order not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load order", zap.String("order_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to load order",
		})
		return
	}

	if !identified {
		masked := make([]models.Ticket, len(tickets))
		for i, t := range tickets {
			t.BuyerIDNumber = util.MaskIDNumber(t.BuyerIDNumber)
			masked[i] = t
		}
		tickets = masked
	}

	c.JSON(http.StatusOK, gin.H{
		"order":   order,
		"tickets": tickets,
	})
}

// purchaserFromHeader reads X-User-ID. ok is false when the header is absent.
func purchaserFromHeader(c *gin.Context) (id int64, ok bool, err error) {
	header := c.GetHeader("X-User-ID")
	if header == "" {
		return 0, false, nil
	}
	id, err = strconv.ParseInt(header, 10, 64)
	if err != nil || id <= 0 {
		return 0, false, errors.New("invalid X-User-ID")
	}
	return id, true, nil
}

func (h *Handler) getAvailability(c *gin.Context) {
	sessionID, err := strconv.ParseInt(c.Param("sessionId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}
	zoneID, err := strconv.ParseInt(c.Param("zoneId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid zone ID"})
		return
	}

	avail, err := h.catalog.Availability(c.Request.Context(), sessionID, zoneID)
	if err != nil {
		if rej, ok := models.AsRejection(err); ok {
			writeRejection(c, rej)
			return
		}
		h.logger.Error("Failed to read availability", zap.Int64("zone_id", zoneID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to read availability"})
		return
	}

	c.JSON(http.StatusOK, avail)
}

func statusForReason(reason models.Reason) int {
	switch reason {
	case models.ReasonSessionNotFound, models.ReasonZoneNotFound:
		return http.StatusNotFound
	case models.ReasonInsufficientCapacity, models.ReasonAlreadyPurchased, models.ReasonSessionClosed:
		return http.StatusConflict
	case models.ReasonRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}

func writeRejection(c *gin.Context, rej *models.Rejection) {
	body := gin.H{
		"error":  rej.Error(),
		"reason": rej.Reason,
	}
	switch rej.Reason {
	case models.ReasonInsufficientCapacity:
		body["remaining"] = rej.Remaining
	case models.ReasonAlreadyPurchased:
		body["id_number"] = rej.IDNumber
	}
	c.JSON(statusForReason(rej.Reason), body)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

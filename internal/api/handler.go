package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"groupbuy-service/internal/models"
	"groupbuy-service/internal/service"
	"groupbuy-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	campaignService *service.CampaignService
	pledgeService   *service.PledgeService
	paymentService  *service.PaymentService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	campaignService *service.CampaignService,
	pledgeService *service.PledgeService,
	paymentService *service.PaymentService,
) *Handler {
	return &Handler{
		campaignService: campaignService,
		pledgeService:   pledgeService,
		paymentService:  paymentService,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/campaigns", h.createCampaign)
		v1.GET("/campaigns/:id", h.getCampaign)
		v1.DELETE("/campaigns/:id", h.deleteCampaign)
		v1.POST("/campaigns/:id/publish", h.publishCampaign)
		v1.POST("/campaigns/:id/cancel", h.cancelCampaign)
		v1.POST("/campaigns/:id/complete", h.completeCampaign)
		v1.GET("/campaigns/:id/progress", h.getBracketProgress)
		v1.GET("/campaigns/:id/payments", h.getPaymentHistory)

		v1.POST("/pledges", h.createPledge)
		v1.PATCH("/pledges/:id", h.updatePledge)
		v1.POST("/pledges/:id/cancel", h.cancelPledge)
		v1.POST("/pledges/:id/commit", h.commitPledge)

		v1.POST("/payment-intents/:id/retry", h.retryPaymentIntent)
		v1.POST("/payment-intents/:id/escalate", h.escalateToAR)
		v1.POST("/payment-intents/:id/resolve-ar", h.resolveAR)
	}
}

// respondError maps core error kinds to client-facing failure responses.
// Nothing from the core crashes the process; everything lands here.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrPledgeAccessDenied):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrPhaseViolation),
		errors.Is(err, models.ErrDuplicateCommitment),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrRetryLimitExceeded),
		errors.Is(err, models.ErrNotRetryable):
		status = http.StatusConflict
	case errors.Is(err, models.ErrOrganizationNotActive),
		errors.Is(err, models.ErrBracketConfigInvalid):
		status = http.StatusUnprocessableEntity
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) createCampaign(c *gin.Context) {
	var req service.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	campaign, err := h.campaignService.CreateCampaign(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

func (h *Handler) getCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	campaign, brackets, err := h.campaignService.GetCampaign(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": campaign, "brackets": brackets})
}

type supplierActionRequest struct {
	SupplierOrgID int64 `json:"supplier_org_id" binding:"required"`
}

func (h *Handler) deleteCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req supplierActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	if err := h.campaignService.DeleteDraft(c.Request.Context(), id, req.SupplierOrgID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) publishCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req supplierActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	campaign, err := h.campaignService.Publish(c.Request.Context(), id, req.SupplierOrgID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

func (h *Handler) cancelCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := h.campaignService.Cancel(c.Request.Context(), id, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) completeCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.campaignService.Complete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getBracketProgress(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	progress, err := h.campaignService.GetBracketProgress(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (h *Handler) getPaymentHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	intents, err := h.paymentService.GetPaymentHistory(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": intents})
}

func (h *Handler) createPledge(c *gin.Context) {
	var req service.CreatePledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	pledge, err := h.pledgeService.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pledge)
}

type buyerActionRequest struct {
	BuyerOrgID int64 `json:"buyer_org_id" binding:"required"`
	Quantity   int64 `json:"quantity"`
}

func (h *Handler) updatePledge(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req buyerActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	pledge, err := h.pledgeService.Update(c.Request.Context(), id, req.BuyerOrgID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pledge)
}

func (h *Handler) cancelPledge(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req buyerActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	if err := h.pledgeService.Cancel(c.Request.Context(), id, req.BuyerOrgID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) commitPledge(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req buyerActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	pledge, err := h.pledgeService.Commit(c.Request.Context(), id, req.BuyerOrgID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pledge)
}

func (h *Handler) retryPaymentIntent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.paymentService.Retry(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	intent, err := h.paymentService.GetIntent(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (h *Handler) escalateToAR(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.paymentService.EscalateToAR(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) resolveAR(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Outcome string `json:"outcome" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	if err := h.paymentService.ResolveAR(c.Request.Context(), id, req.Outcome); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
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

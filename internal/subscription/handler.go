package subscription

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victoralfred/kube_provisioner/pkg/errors"
)

// Handler handles HTTP requests for subscription operations
type Handler struct {
	service Service
}

// NewHandler creates a new subscription handler
func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes mounts the subscription routes on rg
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	subs := rg.Group("/subscriptions")
	{
		subs.POST("", h.CreateSubscription)
		subs.GET("/:id", h.GetSubscription)
		subs.PUT("/:id", h.UpdateSubscription)
		subs.GET("/:id/landlord", h.GetLandlord)
	}

	rg.GET("/tenants/:id/subscriptions", h.ListTenantSubscriptions)
}

// CreateSubscription handles subscription creation
// @Summary Create a subscription
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param request body CreateSubscriptionRequest true "Subscription creation request"
// @Success 201 {object} SubscriptionResponse
// @Failure 400 {object} errors.AppError
// @Failure 404 {object} errors.AppError
// @Failure 409 {object} errors.AppError
// @Failure 500 {object} errors.AppError
// @Router /subscriptions [post]
func (h *Handler) CreateSubscription(c *gin.Context) {
	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.Validation(err.Error()))
		return
	}

	resp, err := h.service.CreateSubscription(c.Request.Context(), req)
	if err != nil {
		appErr := errors.From(err)
		c.JSON(appErr.Status, appErr)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetSubscription handles retrieving a subscription by ID
// @Summary Get subscription by ID
// @Tags subscriptions
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 200 {object} model.Subscription
// @Failure 404 {object} errors.AppError
// @Router /subscriptions/{id} [get]
func (h *Handler) GetSubscription(c *gin.Context) {
	sub, err := h.service.GetSubscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		appErr := errors.From(err)
		c.JSON(appErr.Status, appErr)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// UpdateSubscription handles partial subscription updates
// @Summary Update a subscription
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param id path string true "Subscription ID"
// @Param request body UpdateSubscriptionRequest true "Fields to change"
// @Success 200 {object} SubscriptionResponse
// @Failure 400 {object} errors.AppError
// @Failure 404 {object} errors.AppError
// @Failure 409 {object} errors.AppError
// @Failure 500 {object} errors.AppError
// @Router /subscriptions/{id} [put]
func (h *Handler) UpdateSubscription(c *gin.Context) {
	var req UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.Validation(err.Error()))
		return
	}

	resp, err := h.service.UpdateSubscription(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		appErr := errors.From(err)
		c.JSON(appErr.Status, appErr)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetLandlord handles retrieving the landlord row of a subscription
// @Summary Get the landlord row of a subscription
// @Tags subscriptions
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 200 {object} model.Landlord
// @Failure 404 {object} errors.AppError
// @Router /subscriptions/{id}/landlord [get]
func (h *Handler) GetLandlord(c *gin.Context) {
	landlord, err := h.service.GetLandlord(c.Request.Context(), c.Param("id"))
	if err != nil {
		appErr := errors.From(err)
		c.JSON(appErr.Status, appErr)
		return
	}

	c.JSON(http.StatusOK, landlord)
}

// ListTenantSubscriptions handles listing the subscriptions of a tenant
// @Summary List tenant subscriptions
// @Tags subscriptions
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} errors.AppError
// @Router /tenants/{id}/subscriptions [get]
func (h *Handler) ListTenantSubscriptions(c *gin.Context) {
	subs, err := h.service.ListByTenant(c.Request.Context(), c.Param("id"))
	if err != nil {
		appErr := errors.From(err)
		c.JSON(appErr.Status, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subscriptions": subs,
		"total":         len(subs),
	})
}

package tenant

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/pkg/errors"
)

// Handler handles HTTP requests for tenant operations
type Handler struct {
	service Service
}

// NewHandler creates a new tenant handler
func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes mounts the tenant routes on rg
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	tenants := rg.Group("/tenants")
	{
		tenants.POST("", h.OnboardTenant)
		tenants.GET("", h.ListTenants)
		tenants.GET("/:id", h.GetTenant)
		tenants.PUT("/:id", h.UpdateTenant)
		tenants.PUT("/:id/status", h.UpdateTenantStatus)
	}
}

// OnboardTenant handles tenant onboarding
// @Summary Onboard a new tenant
// @Tags tenants
// @Accept json
// @Produce json
// @Param request body OnboardTenantRequest true "Tenant onboarding request"
// @Success 201 {object} model.Tenant
// @Failure 400 {object} errors.AppError
// @Failure 404 {object} errors.AppError
// @Failure 409 {object} errors.AppError
// @Router /tenants [post]
func (h *Handler) OnboardTenant(c *gin.Context) {
	var req OnboardTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.Validation(err.Error()))
		return
	}

	tenant, err := h.service.OnboardTenant(c.Request.Context(), req)
	if err != nil {
		appErr := errors.From(err)
		c.JSON(appErr.Status, appErr)
		return
	}

	c.JSON(http.StatusCreated, tenant)
}

// GetTenant handles retrieving a tenant by ID
// @Summary Get tenant by ID
// @Tags tenants
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} model.Tenant
// @Failure 404 {object} errors.AppError
// @Router /tenants/{id} [get]
func (h *Handler) GetTenant(c *gin.Context) {
	tenant, err := h.service.GetTenant(c.Request.Context(), c.Param("id"))
	if err != nil {
		appErr := errors.From(err)
		c.JSON(appErr.Status, appErr)
		return
	}

	c.JSON(http.StatusOK, tenant)
}

// ListTenants handles listing tenants
// @Summary List tenants
// @Tags tenants
// @Produce json
// @Param status query string false "Filter by status"
// @Param deployment_type query string false "Filter by deployment type"
// @Param cluster_id query string false "Filter by cluster"
// @Param search query string false "Search business name or tenant url"
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{}
// @Router /tenants [get]
func (h *Handler) ListTenants(c *gin.Context) {
	filter := ListTenantsFilter{
		Status:         model.TenantStatus(c.Query("status")),
		DeploymentType: model.DeploymentType(c.Query("deployment_type")),
		ClusterID:      c.Query("cluster_id"),
		Search:         c.Query("search"),
	}

	if limit := c.Query("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			filter.Limit = l
		}
	}

	if offset := c.Query("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			filter.Offset = o
		}
	}

	tenants, total, err := h.service.ListTenants(c.Request.Context(), filter)
	if err != nil {
		appErr := errors.From(err)
		c.JSON(appErr.Status, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenants": tenants,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// UpdateTenant handles tenant updates
// @Summary Update a tenant
// @Tags tenants
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID"
// @Param request body UpdateTenantRequest true "Tenant update request"
// @Success 200 {object} TenantResponse
// @Failure 400 {object} errors.AppError
// @Failure 404 {object} errors.AppError
// @Failure 500 {object} errors.AppError
// @Router /tenants/{id} [put]
func (h *Handler) UpdateTenant(c *gin.Context) {
	var req UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.Validation(err.Error()))
		return
	}

	resp, err := h.service.UpdateTenant(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		appErr := errors.From(err)
		c.JSON(appErr.Status, appErr)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateTenantStatus handles tenant status changes
// @Summary Update tenant status
// @Tags tenants
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID"
// @Param request body UpdateTenantStatusRequest true "Status update"
// @Success 200 {object} TenantResponse
// @Failure 400 {object} errors.AppError
// @Failure 404 {object} errors.AppError
// @Failure 500 {object} errors.AppError
// @Router /tenants/{id}/status [put]
func (h *Handler) UpdateTenantStatus(c *gin.Context) {
	var req UpdateTenantStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.Validation(err.Error()))
		return
	}

	resp, err := h.service.UpdateTenantStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		appErr := errors.From(err)
		c.JSON(appErr.Status, appErr)
		return
	}

	c.JSON(http.StatusOK, resp)
}

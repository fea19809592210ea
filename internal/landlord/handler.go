package landlord

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/victoralfred/kube_provisioner/pkg/errors"
)

// Handler handles HTTP requests for landlord projections
type Handler struct {
	service Service
}

// NewHandler creates a new landlord handler
func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
	}
}

// GetLandlord handles retrieving the projection row of a subscription
// @Summary Get landlord by subscription ID
// @Tags landlords
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 200 {object} model.Landlord
// @Failure 404 {object} errors.AppError
// @Failure 500 {object} errors.AppError
// @Router /landlords/{id} [get]
func (h *Handler) GetLandlord(c *gin.Context) {
	landlord, err := h.service.GetLandlord(c.Request.Context(), c.Param("id"))
	if err != nil {
		appErr := errors.From(err)
		c.JSON(appErr.Status, appErr)
		return
	}

	c.JSON(http.StatusOK, landlord)
}

// RegisterRoutes mounts the landlord routes on rg
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/landlords/:id", h.GetLandlord)
}

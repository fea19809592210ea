package cluster

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/pkg/errors"
)

// Handler handles HTTP requests for cluster operations
type Handler struct {
	service Service
}

// NewHandler creates a new cluster handler
func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes mounts the cluster routes on rg
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	clusters := rg.Group("/clusters")
	{
		clusters.POST("", h.RegisterCluster)
		clusters.GET("", h.ListClusters)
		clusters.GET("/:id", h.GetCluster)
		clusters.PUT("/:id/status", h.UpdateClusterStatus)
		clusters.DELETE("/:id", h.DeleteCluster)
	}
}

// RegisterCluster handles cluster registration
// @Summary Register a cluster
// @Tags clusters
// @Accept json
// @Produce json
// @Param request body RegisterClusterRequest true "Cluster registration request"
// @Success 201 {object} model.Cluster
// @Failure 400 {object} errors.AppError
// @Failure 409 {object} errors.AppError
// @Router /clusters [post]
func (h *Handler) RegisterCluster(c *gin.Context) {
	var req RegisterClusterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.Validation(err.Error()))
		return
	}

	cluster, err := h.service.RegisterCluster(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, cluster)
}

// GetCluster handles retrieving a cluster by ID
// @Summary Get cluster by ID
// @Tags clusters
// @Produce json
// @Param id path string true "Cluster ID"
// @Success 200 {object} model.Cluster
// @Failure 404 {object} errors.AppError
// @Router /clusters/{id} [get]
func (h *Handler) GetCluster(c *gin.Context) {
	cluster, err := h.service.GetCluster(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, cluster)
}

// ListClusters handles listing clusters
// @Summary List clusters
// @Tags clusters
// @Produce json
// @Param status query string false "Filter by status"
// @Param type query string false "Filter by type"
// @Param region query string false "Filter by region"
// @Success 200 {object} map[string]interface{}
// @Router /clusters [get]
func (h *Handler) ListClusters(c *gin.Context) {
	filter := ListClustersFilter{
		Status: model.ClusterStatus(c.Query("status")),
		Type:   model.ClusterType(c.Query("type")),
		Region: c.Query("region"),
	}

	clusters, err := h.service.ListClusters(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"clusters": clusters,
		"total":    len(clusters),
	})
}

// UpdateClusterStatus handles deployment status updates
// @Summary Update cluster status
// @Tags clusters
// @Accept json
// @Produce json
// @Param id path string true "Cluster ID"
// @Param request body UpdateClusterStatusRequest true "Status update"
// @Success 200 {object} model.Cluster
// @Failure 400 {object} errors.AppError
// @Failure 404 {object} errors.AppError
// @Router /clusters/{id}/status [put]
func (h *Handler) UpdateClusterStatus(c *gin.Context) {
	var req UpdateClusterStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.Validation(err.Error()))
		return
	}

	cluster, err := h.service.UpdateClusterStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, cluster)
}

// DeleteCluster handles cluster deletion
// @Summary Delete an In-Active cluster
// @Tags clusters
// @Param id path string true "Cluster ID"
// @Success 204
// @Failure 400 {object} errors.AppError
// @Failure 404 {object} errors.AppError
// @Router /clusters/{id} [delete]
func (h *Handler) DeleteCluster(c *gin.Context) {
	if err := h.service.DeleteCluster(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func respondError(c *gin.Context, err error) {
	appErr := errors.From(err)
	c.JSON(appErr.Status, appErr)
}

package tenant

import (
	"github.com/victoralfred/kube_provisioner/pkg/logger"
	"github.com/victoralfred/kube_provisioner/pkg/metrics"
)

// Module holds all tenant module components
type Module struct {
	Repository Repository
	Service    Service
	Handler    *Handler
}

// NewModule creates and initializes the tenant module. The repository is
// created by the caller because the propagator reads tenants through it.
func NewModule(repo Repository, clusters ClusterReader, propagator Propagator, recorder metrics.Recorder, log *logger.Logger) *Module {
	svc := NewService(repo, clusters, propagator, recorder, log)

	return &Module{
		Repository: repo,
		Service:    svc,
		Handler:    NewHandler(svc),
	}
}

// GetService returns the tenant service
func (m *Module) GetService() Service {
	return m.Service
}

// GetHandler returns the tenant handler
func (m *Module) GetHandler() *Handler {
	return m.Handler
}

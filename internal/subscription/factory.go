package subscription

import (
	"github.com/victoralfred/kube_provisioner/internal/propagation"
	"github.com/victoralfred/kube_provisioner/internal/uniqueness"
	"github.com/victoralfred/kube_provisioner/pkg/logger"
	"github.com/victoralfred/kube_provisioner/pkg/metrics"
)

// Module holds all subscription module components
type Module struct {
	Repository Repository
	Service    Service
	Handler    *Handler
}

// NewModule creates and initializes the subscription module. The
// repository is created by the caller because the uniqueness validator and
// the propagator are built over it as well.
func NewModule(repo Repository, tenants TenantReader, clusters ClusterReader, landlords LandlordReader,
	validator *uniqueness.Validator, propagator *propagation.Propagator, recorder metrics.Recorder, log *logger.Logger) *Module {
	svc := NewService(Dependencies{
		Repository: repo,
		Tenants:    tenants,
		Clusters:   clusters,
		Landlords:  landlords,
		Validator:  validator,
		Propagator: propagator,
		Recorder:   recorder,
	}, log)

	return &Module{
		Repository: repo,
		Service:    svc,
		Handler:    NewHandler(svc),
	}
}

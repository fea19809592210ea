package cluster

import (
	"github.com/victoralfred/kube_provisioner/pkg/kvstore"
	"github.com/victoralfred/kube_provisioner/pkg/logger"
	"github.com/victoralfred/kube_provisioner/pkg/metrics"
)

// Module holds all cluster module components
type Module struct {
	Repository Repository
	Service    Service
	Handler    *Handler
}

// NewModule creates and initializes the cluster module
func NewModule(kv kvstore.Store, log *logger.Logger, recorder metrics.Recorder) *Module {
	repo := NewRepository(kv)
	svc := NewService(repo, log, recorder)

	return &Module{
		Repository: repo,
		Service:    svc,
		Handler:    NewHandler(svc),
	}
}

package landlord

import (
	"github.com/victoralfred/kube_provisioner/pkg/kvstore"
	"github.com/victoralfred/kube_provisioner/pkg/logger"
)

// Module holds all landlord module components
type Module struct {
	Repository Repository
	Service    Service
	Handler    *Handler
}

// NewModule wires the landlord repository, service and handler
func NewModule(kv kvstore.Store, log *logger.Logger) *Module {
	repo := NewRepository(kv)
	svc := NewService(repo, log)

	return &Module{
		Repository: repo,
		Service:    svc,
		Handler:    NewHandler(svc),
	}
}

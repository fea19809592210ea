package propagation

import (
	"context"
	"fmt"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/pkg/errors"
	"github.com/victoralfred/kube_provisioner/pkg/journal"
)

// CascadeResult summarizes one tenant status cascade
type CascadeResult struct {
	CascadeID string   `json:"cascade_id,omitempty"`
	TenantID  string   `json:"tenant_id"`
	Suspended []string `json:"suspended"`
	Failed    []string `json:"failed,omitempty"`
	Skipped   []string `json:"skipped,omitempty"`
}

// CascadeTenantStatus forces every subscription of a Suspended or
// Terminated tenant, and its landlord row, into Suspended. Subscriptions of
// a Terminated tenant are Suspended, not Terminated. Other tenant statuses
// cascade nothing; reactivating a tenant leaves its subscriptions as they
// are.
//
// A failed step does not stop the cascade. All failures are reported in
// one internal error after the remaining steps ran. A cancelled context
// stops between steps; applied steps stay committed.
func (p *Propagator) CascadeTenantStatus(ctx context.Context, tenant *model.Tenant) (*CascadeResult, error) {
	result := &CascadeResult{TenantID: tenant.ID, Suspended: []string{}}
	if !tenant.Status.Cascades() {
		return result, nil
	}

	subs, err := p.subs.ListByTenant(ctx, tenant.ID)
	if err != nil {
		return result, errors.Internal("failed to list subscriptions for tenant "+tenant.ID, err)
	}

	result.CascadeID = journal.NewID()
	log := p.logger.WithTenantID(tenant.ID).WithField("cascade_id", result.CascadeID)
	log.WithField("subscriptions", len(subs)).Info("cascading tenant status")

	for i, sub := range subs {
		if err := ctx.Err(); err != nil {
			for _, rest := range subs[i:] {
				result.Skipped = append(result.Skipped, rest.ID)
			}
			log.WithField("skipped", len(result.Skipped)).Warn("cascade interrupted")
			return result, errors.Internal(
				fmt.Sprintf("cascade interrupted, not applied to: %s", errors.JoinIDs(result.Skipped)), err)
		}

		if err := p.suspendSubscription(ctx, result.CascadeID, tenant, sub.ID); err != nil {
			result.Failed = append(result.Failed, sub.ID)
			continue
		}
		result.Suspended = append(result.Suspended, sub.ID)
	}

	if len(result.Failed) > 0 {
		return result, errors.Internal(
			fmt.Sprintf("cascade failed for subscriptions: %s", errors.JoinIDs(result.Failed)), nil)
	}

	log.WithField("suspended", len(result.Suspended)).Info("tenant cascade complete")
	return result, nil
}

// suspendSubscription sets the subscription to Suspended and mirrors the
// status onto its landlord row
func (p *Propagator) suspendSubscription(ctx context.Context, cascadeID string, tenant *model.Tenant, subID string) error {
	var updated *model.Subscription
	step := p.newStep(cascadeID, journal.KindSubscriptionSuspend, tenant.ID, journal.TargetSubscription, subID, map[string]string{
		"status": string(model.SubscriptionStatusSuspended),
	})

	err := p.runStep(step, func() error {
		var err error
		updated, err = p.subs.Update(ctx, subID, func(s *model.Subscription) error {
			s.Status = model.SubscriptionStatusSuspended
			s.UpdatedAt = p.now()
			return nil
		})
		return err
	})
	if err != nil {
		return err
	}

	_, err = p.mirror(ctx, cascadeID, updated, model.StatusPatch(updated.Status), tenant.BusinessName)
	return err
}

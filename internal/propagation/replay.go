package propagation

import (
	"context"
	"fmt"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/pkg/errors"
	"github.com/victoralfred/kube_provisioner/pkg/journal"
)

// ReplayResult summarizes a journal replay
type ReplayResult struct {
	Pending  int      `json:"pending"`
	Applied  []string `json:"applied"`
	Obsolete []string `json:"obsolete,omitempty"`
	Failed   []string `json:"failed,omitempty"`
}

// Replay re-runs every step in entries whose latest state is not applied.
// Each step recomputes its target from current source records, so a step
// that has since been overtaken becomes a no-op. A suspend step whose
// tenant no longer cascades is obsolete and is not re-applied.
func (p *Propagator) Replay(ctx context.Context, entries []*journal.Entry) (*ReplayResult, error) {
	pending := journal.Pending(entries)
	result := &ReplayResult{Pending: len(pending), Applied: []string{}}

	for _, step := range pending {
		if err := ctx.Err(); err != nil {
			return result, errors.Internal("replay interrupted", err)
		}

		obsolete, err := p.replayStep(ctx, step)
		switch {
		case err != nil:
			p.logger.WithField("step_id", step.StepID).
				WithEntity(step.TargetType, step.TargetID).
				Error("replay step failed", err)
			result.Failed = append(result.Failed, step.StepID)
			continue
		case obsolete:
			result.Obsolete = append(result.Obsolete, step.StepID)
		default:
			result.Applied = append(result.Applied, step.StepID)
		}
		// Close the original step so the next replay skips it
		p.write(step.Transition(journal.ResultApplied, nil))
	}

	if len(result.Failed) > 0 {
		return result, errors.Internal(fmt.Sprintf("replay failed for steps: %s", errors.JoinIDs(result.Failed)), nil)
	}
	return result, nil
}

func (p *Propagator) replayStep(ctx context.Context, step *journal.Entry) (bool, error) {
	switch step.Kind {
	case journal.KindSubscriptionSuspend:
		tenant, err := p.tenants.GetByID(ctx, step.TenantID)
		if err != nil {
			return false, err
		}
		if !tenant.Status.Cascades() {
			return true, nil
		}
		return false, p.suspendSubscription(ctx, step.CascadeID, tenant, step.TargetID)

	case journal.KindLandlordMirror, journal.KindLandlordDerive:
		sub, err := p.subs.GetByID(ctx, step.TargetID)
		if err != nil {
			return false, err
		}
		_, err = p.DeriveLandlord(ctx, sub, "")
		return false, err

	case journal.KindLandlordRename:
		tenant, err := p.tenants.GetByID(ctx, step.TenantID)
		if err != nil {
			return false, err
		}
		landlord, err := p.landlords.Get(ctx, step.TargetID)
		if err != nil {
			return false, err
		}
		if landlord.Name == tenant.BusinessName {
			return true, nil
		}
		landlord.Name = tenant.BusinessName
		landlord.UpdatedAt = p.now()
		return false, p.landlords.Put(ctx, landlord)
	}

	return false, fmt.Errorf("unknown step kind %q", step.Kind)
}

// Verify checks that the landlord row of sub mirrors it. It returns the
// names of the fields that differ.
func Verify(sub *model.Subscription, landlord *model.Landlord) []string {
	var drift []string
	if landlord.PackageID != sub.PackageID {
		drift = append(drift, "package_id")
	}
	if landlord.Domain != sub.TenantURL {
		drift = append(drift, "domain")
	}
	if landlord.APIURL != sub.TenantAPIURL {
		drift = append(drift, "api_url")
	}
	if landlord.URL != sub.DomainName {
		drift = append(drift, "url")
	}
	if landlord.Outlets != sub.NumberOfStores {
		drift = append(drift, "outlets")
	}
	if landlord.Status != model.Project(sub.Status) {
		drift = append(drift, "status")
	}
	return drift
}

// Package propagation applies the dependent writes that follow a committed
// change: landlord rows mirroring their subscription, and the tenant status
// cascade. Every dependent write is an independent step recorded in the
// journal as planned and then applied or failed. Steps recompute their
// target state rather than increment it, so running any of them again
// converges on the same result.
package propagation

import (
	"context"
	"fmt"
	"time"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/pkg/errors"
	"github.com/victoralfred/kube_provisioner/pkg/journal"
	"github.com/victoralfred/kube_provisioner/pkg/logger"
	"github.com/victoralfred/kube_provisioner/pkg/metrics"
)

// SubscriptionStore is the subscription persistence the propagator writes through
type SubscriptionStore interface {
	GetByID(ctx context.Context, id string) (*model.Subscription, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*model.Subscription, error)
	Update(ctx context.Context, id string, mutate func(*model.Subscription) error) (*model.Subscription, error)
}

// LandlordStore is the landlord persistence the propagator writes through
type LandlordStore interface {
	Get(ctx context.Context, id string) (*model.Landlord, error)
	Put(ctx context.Context, landlord *model.Landlord) error
	ListByTenant(ctx context.Context, tenantID string) ([]*model.Landlord, error)
}

// TenantReader resolves the tenant fields landlord rows are derived from
type TenantReader interface {
	GetByID(ctx context.Context, id string) (*model.Tenant, error)
}

// Propagator applies dependent writes for subscriptions and tenants
type Propagator struct {
	subs      SubscriptionStore
	landlords LandlordStore
	tenants   TenantReader
	journal   journal.Recorder
	recorder  metrics.Recorder
	logger    *logger.Logger
	now       func() time.Time
}

// NewPropagator creates a propagator that journals nowhere and records no
// metrics until configured otherwise
func NewPropagator(subs SubscriptionStore, landlords LandlordStore, tenants TenantReader, log *logger.Logger) *Propagator {
	return &Propagator{
		subs:      subs,
		landlords: landlords,
		tenants:   tenants,
		journal:   journal.Discard,
		recorder:  metrics.NopRecorder,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithJournal records every step to j
func (p *Propagator) WithJournal(j journal.Recorder) *Propagator {
	p.journal = j
	return p
}

// WithRecorder reports step outcomes to r
func (p *Propagator) WithRecorder(r metrics.Recorder) *Propagator {
	p.recorder = r
	return p
}

// DeriveLandlord writes the full landlord row for sub, keeping the created
// timestamp of an existing row
func (p *Propagator) DeriveLandlord(ctx context.Context, sub *model.Subscription, businessName string) (*model.Landlord, error) {
	var landlord *model.Landlord
	step := p.newStep("", journal.KindLandlordDerive, sub.TenantID, journal.TargetLandlord, sub.ID, map[string]string{
		"status": string(model.Project(sub.Status)),
	})

	err := p.runStep(step, func() error {
		var err error
		landlord, err = p.derive(ctx, sub, businessName)
		return err
	})
	if err != nil {
		return nil, errors.Internal(fmt.Sprintf("failed to write landlord for subscription %s", sub.ID), err)
	}
	return landlord, nil
}

// MirrorSubscription copies the fields present in patch from the updated
// subscription onto its landlord row. A missing landlord row, left by an
// earlier partial failure, is re-derived in full.
func (p *Propagator) MirrorSubscription(ctx context.Context, sub *model.Subscription, patch model.SubscriptionPatch) (*model.Landlord, error) {
	landlord, err := p.mirror(ctx, "", sub, patch, "")
	if err != nil {
		return nil, errors.Internal(fmt.Sprintf("failed to mirror subscription %s onto landlord", sub.ID), err)
	}
	return landlord, nil
}

// mirror is MirrorSubscription without error classification. businessName
// is resolved from the tenant when empty and a re-derive is needed.
func (p *Propagator) mirror(ctx context.Context, cascadeID string, sub *model.Subscription, patch model.SubscriptionPatch, businessName string) (*model.Landlord, error) {
	if patch.IsEmpty() {
		return p.landlords.Get(ctx, sub.ID)
	}

	existing, err := p.landlords.Get(ctx, sub.ID)
	if err != nil && !errors.IsNotFound(err) {
		return nil, err
	}

	if existing == nil {
		p.logger.WithEntity("landlord", sub.ID).Warn("landlord row missing, re-deriving from subscription")

		var landlord *model.Landlord
		step := p.newStep(cascadeID, journal.KindLandlordDerive, sub.TenantID, journal.TargetLandlord, sub.ID, map[string]string{
			"status": string(model.Project(sub.Status)),
		})
		err := p.runStep(step, func() error {
			var err error
			landlord, err = p.derive(ctx, sub, businessName)
			return err
		})
		return landlord, err
	}

	fields := patch.Mirror(existing, sub)
	existing.UpdatedAt = p.now()

	payload := map[string]string{"fields": fmt.Sprint(fields)}
	if patch.Status != nil {
		payload["status"] = string(existing.Status)
	}
	step := p.newStep(cascadeID, journal.KindLandlordMirror, sub.TenantID, journal.TargetLandlord, sub.ID, payload)

	err = p.runStep(step, func() error {
		return p.landlords.Put(ctx, existing)
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// derive builds and writes the full landlord row for sub
func (p *Propagator) derive(ctx context.Context, sub *model.Subscription, businessName string) (*model.Landlord, error) {
	if businessName == "" {
		tenant, err := p.tenants.GetByID(ctx, sub.TenantID)
		if err != nil {
			return nil, fmt.Errorf("resolve tenant %s: %w", sub.TenantID, err)
		}
		businessName = tenant.BusinessName
	}

	var createdAt time.Time
	existing, err := p.landlords.Get(ctx, sub.ID)
	switch {
	case err == nil:
		createdAt = existing.CreatedAt
	case !errors.IsNotFound(err):
		return nil, err
	}

	landlord := model.DeriveLandlord(sub, businessName, createdAt, p.now())
	if err := p.landlords.Put(ctx, landlord); err != nil {
		return nil, err
	}
	return landlord, nil
}

// MirrorTenantName re-projects the tenant's business name onto every
// landlord row of the tenant
func (p *Propagator) MirrorTenantName(ctx context.Context, tenant *model.Tenant) error {
	landlords, err := p.landlords.ListByTenant(ctx, tenant.ID)
	if err != nil {
		return errors.Internal("failed to list landlords for tenant "+tenant.ID, err)
	}

	cascadeID := journal.NewID()
	var failed []string
	for _, l := range landlords {
		if l.Name == tenant.BusinessName {
			continue
		}
		if err := ctx.Err(); err != nil {
			return errors.Internal("landlord rename interrupted", err)
		}

		landlord := l
		step := p.newStep(cascadeID, journal.KindLandlordRename, tenant.ID, journal.TargetLandlord, landlord.ID, map[string]string{
			"name": tenant.BusinessName,
		})
		err := p.runStep(step, func() error {
			landlord.Name = tenant.BusinessName
			landlord.UpdatedAt = p.now()
			return p.landlords.Put(ctx, landlord)
		})
		if err != nil {
			failed = append(failed, landlord.ID)
		}
	}

	if len(failed) > 0 {
		return errors.Internal(fmt.Sprintf("failed to rename landlords: %s", errors.JoinIDs(failed)), nil)
	}
	return nil
}

func (p *Propagator) newStep(cascadeID, kind, tenantID, targetType, targetID string, payload map[string]string) *journal.Entry {
	return &journal.Entry{
		StepID:     journal.NewID(),
		CascadeID:  cascadeID,
		Kind:       kind,
		TenantID:   tenantID,
		TargetType: targetType,
		TargetID:   targetID,
		Result:     journal.ResultPlanned,
		Payload:    payload,
	}
}

// runStep journals planned, runs apply, then journals the outcome. A
// journal write failure is logged and does not fail the step.
func (p *Propagator) runStep(planned *journal.Entry, apply func() error) error {
	p.write(planned)

	err := apply()
	result := journal.ResultApplied
	if err != nil {
		result = journal.ResultFailed
		p.logger.WithTenantID(planned.TenantID).
			WithEntity(planned.TargetType, planned.TargetID).
			WithOperation(planned.Kind).
			Error("propagation step failed", err)
	}

	p.write(planned.Transition(result, err))
	p.recorder.RecordCascadeStep(planned.Kind, result)
	return err
}

func (p *Propagator) write(entry *journal.Entry) {
	if err := p.journal.Write(entry); err != nil {
		p.logger.WithField("step_id", entry.StepID).Error("failed to journal propagation step", err)
	}
}

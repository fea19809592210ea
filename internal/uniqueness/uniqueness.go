// Package uniqueness enforces that no two subscriptions share a domain name,
// tenant url or tenant api url. Checks scan the subscription collection;
// optional reservation rows close the check-then-act window using the
// store's single-key conditional create and swap.
package uniqueness

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/internal/store"
	"github.com/victoralfred/kube_provisioner/pkg/errors"
	"github.com/victoralfred/kube_provisioner/pkg/kvstore"
	"github.com/victoralfred/kube_provisioner/pkg/logger"
)

// Attribute names a unique subscription field
type Attribute string

const (
	DomainName   Attribute = "domain_name"
	TenantURL    Attribute = "tenant_url"
	TenantAPIURL Attribute = "tenant_api_url"
)

// Attributes lists the unique attributes in the order they are checked
var Attributes = []Attribute{DomainName, TenantURL, TenantAPIURL}

// Normalize is the single comparison and storage form for all unique
// attributes: surrounding space trimmed, lowercased.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Candidates carries the values to check. Empty values are skipped.
type Candidates struct {
	DomainName   string
	TenantURL    string
	TenantAPIURL string
}

// FromSubscription returns the unique values held by sub
func FromSubscription(sub *model.Subscription) Candidates {
	return Candidates{
		DomainName:   sub.DomainName,
		TenantURL:    sub.TenantURL,
		TenantAPIURL: sub.TenantAPIURL,
	}
}

// Value returns the candidate for attr
func (c Candidates) Value(attr Attribute) string {
	switch attr {
	case DomainName:
		return c.DomainName
	case TenantURL:
		return c.TenantURL
	case TenantAPIURL:
		return c.TenantAPIURL
	}
	return ""
}

// Normalized returns c with every value normalized
func (c Candidates) Normalized() Candidates {
	return Candidates{
		DomainName:   Normalize(c.DomainName),
		TenantURL:    Normalize(c.TenantURL),
		TenantAPIURL: Normalize(c.TenantAPIURL),
	}
}

// SubscriptionReader is the part of the subscription collection the
// validator needs
type SubscriptionReader interface {
	Get(ctx context.Context, id string) (*model.Subscription, error)
	Scan(ctx context.Context, pred func(*model.Subscription) bool) ([]*model.Subscription, error)
}

// Validator checks candidate values against stored subscriptions
type Validator struct {
	subs   SubscriptionReader
	kv     kvstore.Store
	lease  time.Duration
	now    func() time.Time
	logger *logger.Logger
}

// NewValidator creates a scan-only validator
func NewValidator(subs SubscriptionReader, log *logger.Logger) *Validator {
	return &Validator{subs: subs, now: time.Now, logger: log}
}

// WithReservations enables reservation rows in kv. A row whose subscription
// was never written blocks other owners for lease.
func (v *Validator) WithReservations(kv kvstore.Store, lease time.Duration) *Validator {
	v.kv = kv
	v.lease = lease
	return v
}

// ReservationsEnabled reports whether Reserve writes reservation rows
func (v *Validator) ReservationsEnabled() bool {
	return v.kv != nil
}

// IsUnique reports whether no subscription other than excludeID holds value
// for attr.
func (v *Validator) IsUnique(ctx context.Context, attr Attribute, value, excludeID string) (bool, error) {
	holders, err := v.holders(ctx, Candidates{}.with(attr, value), excludeID)
	if err != nil {
		return false, err
	}
	return len(holders[attr]) == 0, nil
}

// Check verifies every non-empty candidate in attribute order and fails on
// the first attribute that is already held, listing the holders.
func (v *Validator) Check(ctx context.Context, cand Candidates, excludeID string) error {
	holders, err := v.holders(ctx, cand, excludeID)
	if err != nil {
		return err
	}

	for _, attr := range Attributes {
		ids := holders[attr]
		if len(ids) == 0 {
			continue
		}
		value := Normalize(cand.Value(attr))
		conflicts := make([]string, 0, len(ids))
		for _, id := range ids {
			conflicts = append(conflicts, fmt.Sprintf("%s=%s (subscription %s)", attr, value, id))
		}
		return errors.Conflict(fmt.Sprintf("%s %q is already in use", attr, value), conflicts...)
	}
	return nil
}

// holders does one pass over the collection and returns, per attribute,
// the ids of subscriptions holding the candidate value.
func (v *Validator) holders(ctx context.Context, cand Candidates, excludeID string) (map[Attribute][]string, error) {
	want := cand.Normalized()
	found := make(map[Attribute][]string)

	_, err := v.subs.Scan(ctx, func(sub *model.Subscription) bool {
		if sub.ID == excludeID {
			return false
		}
		held := FromSubscription(sub)
		for _, attr := range Attributes {
			w := want.Value(attr)
			if w != "" && Normalize(held.Value(attr)) == w {
				found[attr] = append(found[attr], sub.ID)
			}
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (c Candidates) with(attr Attribute, value string) Candidates {
	switch attr {
	case DomainName:
		c.DomainName = value
	case TenantURL:
		c.TenantURL = value
	case TenantAPIURL:
		c.TenantAPIURL = value
	}
	return c
}

// Reservation tracks the rows written by one Reserve call
type Reservation struct {
	kv   kvstore.Store
	keys []string
}

// Release deletes the rows this reservation created or took over. Used when
// the subscription write that followed did not happen.
func (r *Reservation) Release(ctx context.Context) error {
	if r == nil || r.kv == nil {
		return nil
	}
	var errs []error
	for _, key := range r.keys {
		if err := r.kv.Delete(ctx, model.CollectionReservations, key); err != nil {
			errs = append(errs, err)
		}
	}
	r.keys = nil
	return stderrors.Join(errs...)
}

// reservationRow is the value stored under a reservation key
type reservationRow struct {
	Owner      string    `msgpack:"owner"`
	ReservedAt time.Time `msgpack:"reserved_at"`
}

func decodeReservation(data []byte) (reservationRow, error) {
	var row reservationRow
	err := msgpack.Unmarshal(data, &row)
	return row, err
}

// maxClaimAttempts bounds the retries when the row changes under a claim
const maxClaimAttempts = 3

// Reserve claims every non-empty candidate for ownerID. A value already
// reserved by ownerID is accepted. A row held by someone else is only taken
// over once its lease has run out and its owner does not hold the value,
// and the takeover is a compare-and-swap on the row read. Any other holder
// is a conflict, and rows claimed so far are released. Without reservations
// enabled Reserve is a no-op.
func (v *Validator) Reserve(ctx context.Context, cand Candidates, ownerID string) (*Reservation, error) {
	res := &Reservation{kv: v.kv}
	if v.kv == nil {
		return res, nil
	}

	row, err := msgpack.Marshal(reservationRow{Owner: ownerID, ReservedAt: v.now().UTC()})
	if err != nil {
		return nil, errors.Internal("failed to encode reservation", err)
	}

	want := cand.Normalized()
	for _, attr := range Attributes {
		value := want.Value(attr)
		if value == "" {
			continue
		}
		key := reservationKey(attr, value)

		claimed, err := v.claim(ctx, attr, value, key, ownerID, row)
		if err != nil {
			v.release(ctx, res)
			return nil, err
		}
		if claimed {
			res.keys = append(res.keys, key)
		}
	}
	return res, nil
}

// claim reports true when it wrote row under key, false when ownerID
// already held it.
func (v *Validator) claim(ctx context.Context, attr Attribute, value, key, ownerID string, row []byte) (bool, error) {
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		created, err := v.kv.PutIfAbsent(ctx, model.CollectionReservations, key, row)
		if err != nil {
			return false, errors.Internal("failed to reserve "+string(attr), err)
		}
		if created {
			return true, nil
		}

		current, err := v.kv.Get(ctx, model.CollectionReservations, key)
		if stderrors.Is(err, kvstore.ErrNotFound) {
			// Released between the create attempt and this read
			continue
		}
		if err != nil {
			return false, errors.Internal("failed to read reservation", err)
		}

		holder, err := decodeReservation(current)
		if err != nil {
			return false, errors.Internal("failed to decode reservation", err)
		}
		if holder.Owner == ownerID {
			return false, nil
		}

		stale, err := v.stale(ctx, attr, value, holder)
		if err != nil {
			return false, err
		}
		if !stale {
			return false, errors.Conflict(
				fmt.Sprintf("%s %q is already in use", attr, value),
				fmt.Sprintf("%s=%s (subscription %s)", attr, value, holder.Owner),
			)
		}

		swapped, err := v.kv.CompareAndSwap(ctx, model.CollectionReservations, key, current, row)
		if err != nil {
			return false, errors.Internal("failed to take over reservation", err)
		}
		if swapped {
			v.logger.WithField("attribute", string(attr)).
				WithField("stale_holder", holder.Owner).
				WithField("owner", ownerID).
				Warn("took over stale reservation")
			return true, nil
		}
	}
	return false, errors.Conflict(fmt.Sprintf("%s %q is being reserved concurrently", attr, value))
}

// stale reports whether holder's row may be taken over. Within the lease the
// holder may still be writing its subscription, so the row stands. After it,
// the row stands only while the holder's subscription carries the value.
func (v *Validator) stale(ctx context.Context, attr Attribute, value string, holder reservationRow) (bool, error) {
	if v.now().Sub(holder.ReservedAt) < v.lease {
		return false, nil
	}

	sub, err := v.subs.Get(ctx, holder.Owner)
	switch {
	case err == nil:
		return Normalize(FromSubscription(sub).Value(attr)) != value, nil
	case stderrors.Is(err, store.ErrNotFound):
		return true, nil
	default:
		return false, err
	}
}

// Forget removes reservations for values that ownerID no longer holds,
// typically the old values after an update changed them.
func (v *Validator) Forget(ctx context.Context, cand Candidates, ownerID string) error {
	if v.kv == nil {
		return nil
	}

	want := cand.Normalized()
	var errs []error
	for _, attr := range Attributes {
		value := want.Value(attr)
		if value == "" {
			continue
		}
		key := reservationKey(attr, value)

		current, err := v.kv.Get(ctx, model.CollectionReservations, key)
		if err != nil {
			if !stderrors.Is(err, kvstore.ErrNotFound) {
				errs = append(errs, err)
			}
			continue
		}
		holder, err := decodeReservation(current)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if holder.Owner != ownerID {
			continue
		}
		if err := v.kv.Delete(ctx, model.CollectionReservations, key); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (v *Validator) release(ctx context.Context, res *Reservation) {
	if err := res.Release(ctx); err != nil {
		v.logger.Error("failed to release reservation", err)
	}
}

func reservationKey(attr Attribute, value string) string {
	return string(attr) + ":" + value
}

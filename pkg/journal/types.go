package journal

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Entry records one state of one propagation step. A step is first written
// as planned and then as applied or failed under the same StepID, so a
// step whose last entry is not applied can be replayed.
type Entry struct {
	ID         string            `msgpack:"id"`
	StepID     string            `msgpack:"step_id"`
	CascadeID  string            `msgpack:"cascade_id"`
	Kind       string            `msgpack:"kind"`
	TenantID   string            `msgpack:"tenant_id"`
	TargetType string            `msgpack:"target_type"`
	TargetID   string            `msgpack:"target_id"`
	Result     string            `msgpack:"result"`
	Error      string            `msgpack:"error,omitempty"`
	Payload    map[string]string `msgpack:"payload,omitempty"`
	CreatedAt  time.Time         `msgpack:"created_at"`
}

// Step kinds
const (
	KindSubscriptionSuspend = "subscription.suspend"
	KindLandlordMirror      = "landlord.mirror"
	KindLandlordDerive      = "landlord.derive"
	KindLandlordRename      = "landlord.rename"
)

// Target types
const (
	TargetSubscription = "subscription"
	TargetLandlord     = "landlord"
)

// Step results
const (
	ResultPlanned = "planned"
	ResultApplied = "applied"
	ResultFailed  = "failed"
)

// NewID returns a lexically sortable id
func NewID() string {
	return ulid.Make().String()
}

// Transition returns a copy of e for the same step with a new id and result
func (e *Entry) Transition(result string, err error) *Entry {
	next := *e
	next.ID = ""
	next.CreatedAt = time.Time{}
	next.Result = result
	next.Error = ""
	if err != nil {
		next.Error = err.Error()
	}
	return &next
}

// Recorder accepts journal entries
type Recorder interface {
	Write(entry *Entry) error
}

type discard struct{}

func (discard) Write(*Entry) error { return nil }

// Discard is a Recorder that drops every entry
var Discard Recorder = discard{}

package key

import (
	"context"
	"time"

	"github.com/aethra/keybot/pkg/strmap"
)

// ResetCooldown is the fixed wait between self-service owner label resets.
const ResetCooldown = 2 * time.Hour

// RedemptionRecord binds a requester to the single key they redeemed.
type RedemptionRecord struct {
	RequesterID string `json:"requester_id"`
	Key         string `json:"key"`
}

// Secondary effects that may fail without undoing the primary mutation.
const (
	EffectGrantBenefit  = "grant_benefit"
	EffectRevokeBenefit = "revoke_benefit"
	EffectCooldown      = "record_cooldown"
)

// EffectFailure records a secondary effect that failed after the primary
// state change was committed.
type EffectFailure struct {
	Effect string
	Err    error
}

// Outcome is returned by operations with secondary effects.
type Outcome struct {
	Key      string
	Failures []EffectFailure
}

// Degraded reports whether any secondary effect failed.
func (o Outcome) Degraded() bool {
	return len(o.Failures) > 0
}

func (o *Outcome) addFailure(effect string, err error) {
	o.Failures = append(o.Failures, EffectFailure{Effect: effect, Err: err})
}

// Drift describes how the ledger, registry and redemption store disagree.
type Drift struct {
	LedgerOnly   []string
	RegistryOnly []string
	Orphaned     []RedemptionRecord
}

// Empty reports whether the stores agree.
func (d Drift) Empty() bool {
	return len(d.LedgerOnly) == 0 && len(d.RegistryOnly) == 0 && len(d.Orphaned) == 0
}

// LedgerStore persists the ordered list of valid keys.
type LedgerStore interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, keys []string) error
}

// RedemptionStore persists requester to key bindings.
type RedemptionStore interface {
	Load(ctx context.Context) (*strmap.Map, error)
	Save(ctx context.Context, records *strmap.Map) error
}

// Mutation edits registry records in place and returns the commit message.
// Returning strmap.ErrUnchanged skips the write; any other error aborts it.
type Mutation = func(records *strmap.Map) (message string, err error)

// Registry persists key to owner label records in a revisioned store.
type Registry interface {
	// Load returns the current records, empty when the document is missing
	// or unreadable.
	Load(ctx context.Context) (*strmap.Map, error)
	// Save overwrites the document against the revision read just before
	// writing.
	Save(ctx context.Context, records *strmap.Map, message string) error
	// Update applies mutate to the current records and writes them against
	// the revision they were read at.
	Update(ctx context.Context, mutate Mutation) error
}

// BenefitGranter grants and removes the external role tied to redemption.
type BenefitGranter interface {
	Grant(ctx context.Context, requesterID string) error
	Revoke(ctx context.Context, requesterID string) error
}

// Locker provides exclusion across processes sharing the same stores.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// Observer receives operation results for metrics.
type Observer interface {
	OperationCompleted(op string, err error)
	EffectFailed(effect string)
}

type nopBenefits struct{}

func (nopBenefits) Grant(context.Context, string) error  { return nil }
func (nopBenefits) Revoke(context.Context, string) error { return nil }

type nopObserver struct{}

func (nopObserver) OperationCompleted(string, error) {}
func (nopObserver) EffectFailed(string)              {}

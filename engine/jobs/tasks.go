package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/aethra/keybot/engine/dispatch"
	"github.com/aethra/keybot/engine/key"
	"github.com/aethra/keybot/pkg/logger"
)

const (
	DriftCheckJob    = "drift_check"
	CooldownPruneJob = "cooldown_prune"
)

// Reconciler reports drift between the ledger, registry and redemptions.
type Reconciler interface {
	Reconcile(ctx context.Context) (key.Drift, error)
}

// Pruner removes expired entries and reports how many it dropped.
type Pruner interface {
	Prune(now time.Time) int
}

// DriftCheck posts a notice when drift appears or changes. The same drift is
// reported once.
type DriftCheck struct {
	keys     Reconciler
	notifier dispatch.Notifier

	mu   sync.Mutex
	last string
}

func NewDriftCheck(keys Reconciler, notifier dispatch.Notifier) *DriftCheck {
	if notifier == nil {
		notifier = dispatch.LogNotifier{}
	}
	return &DriftCheck{keys: keys, notifier: notifier}
}

func (d *DriftCheck) Run(ctx context.Context) error {
	drift, err := d.keys.Reconcile(ctx)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	d.mu.Lock()
	defer d.mu.Unlock()
	if drift.Empty() {
		if d.last != "" {
			log.Info("Registry drift resolved")
		}
		d.last = ""
		return nil
	}
	report := dispatch.RenderDrift(drift, false)
	if report == d.last {
		return nil
	}
	d.last = report
	log.Warn("Registry drift detected",
		"ledger_only", len(drift.LedgerOnly),
		"registry_only", len(drift.RegistryOnly),
		"orphaned", len(drift.Orphaned),
	)
	return d.notifier.Notify(ctx, dispatch.Notice{
		Title:       "⚠️ Registry Drift Detected",
		Description: report,
		Color:       dispatch.ColorWarning,
	})
}

// Job returns the drift check as a schedulable job.
func (d *DriftCheck) Job(schedule string) Job {
	return Job{Name: DriftCheckJob, Schedule: schedule, Run: d.Run}
}

// CooldownPrune returns a job dropping expired cooldown entries.
func CooldownPrune(schedule string, p Pruner, clock func() time.Time) Job {
	if clock == nil {
		clock = time.Now
	}
	return Job{
		Name:     CooldownPruneJob,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			if n := p.Prune(clock()); n > 0 {
				logger.FromContext(ctx).Debug("Pruned expired cooldowns", "count", n)
			}
			return nil
		},
	}
}

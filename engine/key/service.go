package key

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/aethra/keybot/engine/key/cooldown"
	"github.com/aethra/keybot/pkg/logger"
	"github.com/aethra/keybot/pkg/strmap"
)

// Operation names reported to the Observer.
const (
	OpAddKey         = "add_key"
	OpDeleteKey      = "delete_key"
	OpUpdateKeyOwner = "update_key_owner"
	OpRedeem         = "redeem"
	OpRevoke         = "revoke"
	OpResetOwner     = "reset_owner_label"
	OpSyncRegistry   = "sync_registry"
)

// Dependencies groups the stores and collaborators used by Service.
// Ledger, Registry and Redemptions are required.
type Dependencies struct {
	Ledger      LedgerStore
	Registry    Registry
	Redemptions RedemptionStore
	Cooldowns   cooldown.Tracker
	Benefits    BenefitGranter
	Observer    Observer
	Locker      Locker
}

// Service owns the key lifecycle across the ledger, the registry and the
// redemption store. Read-validate-write sections are serialized.
type Service struct {
	mu          sync.Mutex
	ledger      LedgerStore
	registry    Registry
	redemptions RedemptionStore
	cooldowns   cooldown.Tracker
	benefits    BenefitGranter
	observer    Observer
	locker      Locker
	adminID     string
}

func NewService(deps Dependencies, adminID string) (*Service, error) {
	if deps.Ledger == nil || deps.Registry == nil || deps.Redemptions == nil {
		return nil, errors.New("key service requires ledger, registry and redemption stores")
	}
	svc := &Service{
		ledger:      deps.Ledger,
		registry:    deps.Registry,
		redemptions: deps.Redemptions,
		cooldowns:   deps.Cooldowns,
		benefits:    deps.Benefits,
		observer:    deps.Observer,
		locker:      deps.Locker,
		adminID:     strings.TrimSpace(adminID),
	}
	if svc.cooldowns == nil {
		svc.cooldowns = cooldown.NewMemoryTracker()
	}
	if svc.benefits == nil {
		svc.benefits = nopBenefits{}
	}
	if svc.observer == nil {
		svc.observer = nopObserver{}
	}
	return svc, nil
}

// IsAdmin reports whether callerID is the configured administrator.
func (s *Service) IsAdmin(callerID string) bool {
	return s.adminID != "" && callerID == s.adminID
}

func (s *Service) AddKey(ctx context.Context, key, label string) (err error) {
	defer s.observe(OpAddKey, &err)
	key = strings.TrimSpace(key)
	label = strings.TrimSpace(label)
	if key == "" || label == "" {
		return fmt.Errorf("%w: key and owner label are required", ErrInvalidArgument)
	}
	// The ledger is line oriented.
	if strings.ContainsFunc(key, unicode.IsSpace) {
		return fmt.Errorf("%w: key must not contain whitespace", ErrInvalidArgument)
	}
	log := logger.FromContext(ctx).With("key", key)

	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	keys, err := s.loadLedger(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return ErrAlreadyExists
	}
	if err := s.ledger.Save(ctx, append(keys, key)); err != nil {
		return &StoreError{Store: StoreLedger, Op: "save", Err: err}
	}
	err = s.registry.Update(ctx, func(records *strmap.Map) (string, error) {
		records.Set(key, label)
		return fmt.Sprintf("Add key %s for user %s", key, label), nil
	})
	if err != nil {
		log.Error("Key added to ledger but registry write failed", "error", err)
		return &PartialWriteError{
			Op: OpAddKey, Key: key, Committed: StoreLedger, Failed: StoreRegistry, Err: err,
		}
	}
	log.Info("Key added", "owner", label)
	return nil
}

// DeleteKey removes key from the ledger and the registry. Deleting an
// unknown key succeeds. Redemptions referencing the key are kept.
func (s *Service) DeleteKey(ctx context.Context, key string) (err error) {
	defer s.observe(OpDeleteKey, &err)
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidArgument)
	}
	log := logger.FromContext(ctx).With("key", key)

	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	keys, err := s.loadLedger(ctx)
	if err != nil {
		return err
	}
	remaining := slices.DeleteFunc(slices.Clone(keys), func(k string) bool { return k == key })
	ledgerChanged := len(remaining) != len(keys)
	if ledgerChanged {
		if err := s.ledger.Save(ctx, remaining); err != nil {
			return &StoreError{Store: StoreLedger, Op: "save", Err: err}
		}
	}
	err = s.registry.Update(ctx, func(records *strmap.Map) (string, error) {
		if !records.Delete(key) {
			return "", strmap.ErrUnchanged
		}
		return fmt.Sprintf("Delete key %s", key), nil
	})
	if err != nil {
		if ledgerChanged {
			log.Error("Key removed from ledger but registry write failed", "error", err)
			return &PartialWriteError{
				Op: OpDeleteKey, Key: key, Committed: StoreLedger, Failed: StoreRegistry, Err: err,
			}
		}
		return &StoreError{Store: StoreRegistry, Op: "update", Err: err}
	}
	log.Info("Key deleted", "in_ledger", ledgerChanged)
	return nil
}

// UpdateKeyOwner changes the registry label of an existing registry record.
func (s *Service) UpdateKeyOwner(ctx context.Context, key, label string) (err error) {
	defer s.observe(OpUpdateKeyOwner, &err)
	key = strings.TrimSpace(key)
	label = strings.TrimSpace(label)
	if key == "" || label == "" {
		return fmt.Errorf("%w: key and owner label are required", ErrInvalidArgument)
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.registry.Update(ctx, func(records *strmap.Map) (string, error) {
		if !records.Has(key) {
			return "", ErrNotFound
		}
		records.Set(key, label)
		return fmt.Sprintf("Update key %s Roblox username to %s", key, label), nil
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return &StoreError{Store: StoreRegistry, Op: "update", Err: err}
	}
	logger.FromContext(ctx).Info("Key owner updated", "key", key, "owner", label)
	return nil
}

// Redeem binds key to requesterID and grants the benefit. actingAs must be
// the requester or the administrator.
func (s *Service) Redeem(ctx context.Context, requesterID, key, actingAs string) (out Outcome, err error) {
	defer s.observe(OpRedeem, &err)
	requesterID = strings.TrimSpace(requesterID)
	key = strings.TrimSpace(key)
	if requesterID == "" || key == "" {
		return Outcome{}, fmt.Errorf("%w: requester and key are required", ErrInvalidArgument)
	}
	if actingAs != requesterID && !s.IsAdmin(actingAs) {
		return Outcome{}, ErrUnauthorized
	}
	if err := s.commitRedeem(ctx, requesterID, key); err != nil {
		return Outcome{}, err
	}

	out = Outcome{Key: key}
	log := logger.FromContext(ctx).With("requester", requesterID, "key", key)
	if err := s.benefits.Grant(ctx, requesterID); err != nil {
		log.Warn("Benefit grant failed after redemption", "error", err)
		s.effectFailed(&out, EffectGrantBenefit, err)
	}
	log.Info("Key redeemed", "acting_as", actingAs)
	return out, nil
}

func (s *Service) commitRedeem(ctx context.Context, requesterID, key string) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	keys, err := s.loadLedger(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(keys, key) {
		return ErrInvalidKey
	}
	redeemed, err := s.loadRedemptions(ctx)
	if err != nil {
		return err
	}
	if heldByOther(redeemed, key, requesterID) {
		return ErrAlreadyUsed
	}
	if redeemed.Has(requesterID) {
		return ErrAlreadyRedeemed
	}
	redeemed.Set(requesterID, key)
	if err := s.redemptions.Save(ctx, redeemed); err != nil {
		return &StoreError{Store: StoreRedemptions, Op: "save", Err: err}
	}
	return nil
}

func heldByOther(redeemed *strmap.Map, key, requesterID string) bool {
	for _, entry := range redeemed.Entries() {
		if entry.Value == key && entry.Key != requesterID {
			return true
		}
	}
	return false
}

// Revoke removes the requester's redemption and the benefit it granted.
func (s *Service) Revoke(ctx context.Context, requesterID string) (out Outcome, err error) {
	defer s.observe(OpRevoke, &err)
	requesterID = strings.TrimSpace(requesterID)
	if requesterID == "" {
		return Outcome{}, fmt.Errorf("%w: requester is required", ErrInvalidArgument)
	}
	key, err := s.commitRevoke(ctx, requesterID)
	if err != nil {
		return Outcome{}, err
	}

	out = Outcome{Key: key}
	log := logger.FromContext(ctx).With("requester", requesterID, "key", key)
	if err := s.benefits.Revoke(ctx, requesterID); err != nil {
		log.Warn("Benefit removal failed after revocation", "error", err)
		s.effectFailed(&out, EffectRevokeBenefit, err)
	}
	log.Info("Redemption revoked")
	return out, nil
}

func (s *Service) commitRevoke(ctx context.Context, requesterID string) (string, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()

	redeemed, err := s.loadRedemptions(ctx)
	if err != nil {
		return "", err
	}
	key, ok := redeemed.Get(requesterID)
	if !ok {
		return "", ErrNoActiveKey
	}
	redeemed.Delete(requesterID)
	if err := s.redemptions.Save(ctx, redeemed); err != nil {
		return "", &StoreError{Store: StoreRedemptions, Op: "save", Err: err}
	}
	return key, nil
}

// ResetOwnerLabel sets the registry label of the requester's redeemed key,
// at most once per ResetCooldown.
func (s *Service) ResetOwnerLabel(
	ctx context.Context,
	requesterID, label string,
	now time.Time,
) (out Outcome, err error) {
	defer s.observe(OpResetOwner, &err)
	requesterID = strings.TrimSpace(requesterID)
	label = strings.TrimSpace(label)
	if requesterID == "" || label == "" {
		return Outcome{}, fmt.Errorf("%w: requester and owner label are required", ErrInvalidArgument)
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer unlock()

	redeemed, err := s.loadRedemptions(ctx)
	if err != nil {
		return Outcome{}, err
	}
	key, ok := redeemed.Get(requesterID)
	if !ok {
		return Outcome{}, ErrNoActiveKey
	}
	until, ok, err := s.cooldowns.Expiry(ctx, requesterID)
	if err != nil {
		return Outcome{}, &StoreError{Store: StoreCooldowns, Op: "load", Err: err}
	}
	if ok && now.Before(until) {
		return Outcome{}, &CooldownError{Until: until, Remaining: until.Sub(now)}
	}
	err = s.registry.Update(ctx, func(records *strmap.Map) (string, error) {
		existed := records.Has(key)
		records.Set(key, label)
		if existed {
			return fmt.Sprintf("Update key %s Roblox username to %s", key, label), nil
		}
		return fmt.Sprintf("Add missing key %s for %s", key, label), nil
	})
	if err != nil {
		return Outcome{}, &StoreError{Store: StoreRegistry, Op: "update", Err: err}
	}

	out = Outcome{Key: key}
	log := logger.FromContext(ctx).With("requester", requesterID, "key", key)
	if err := s.cooldowns.Set(ctx, requesterID, now.Add(ResetCooldown)); err != nil {
		log.Warn("Failed to record reset cooldown", "error", err)
		s.effectFailed(&out, EffectCooldown, err)
	}
	log.Info("Owner label reset", "owner", label)
	return out, nil
}

// CooldownRemaining returns the time left before requesterID may reset again.
func (s *Service) CooldownRemaining(ctx context.Context, requesterID string, now time.Time) (time.Duration, error) {
	left, err := cooldown.Remaining(ctx, s.cooldowns, requesterID, now)
	if err != nil {
		return 0, &StoreError{Store: StoreCooldowns, Op: "load", Err: err}
	}
	return left, nil
}

// ListAvailable returns ledger keys not held by any requester, in ledger order.
func (s *Service) ListAvailable(ctx context.Context) ([]string, error) {
	keys, err := s.loadLedger(ctx)
	if err != nil {
		return nil, err
	}
	redeemed, err := s.loadRedemptions(ctx)
	if err != nil {
		return nil, err
	}
	available := make([]string, 0, len(keys))
	for _, k := range keys {
		if !redeemed.ContainsValue(k) {
			available = append(available, k)
		}
	}
	return available, nil
}

// ListRedeemed returns all redemptions in insertion order.
func (s *Service) ListRedeemed(ctx context.Context) ([]RedemptionRecord, error) {
	redeemed, err := s.loadRedemptions(ctx)
	if err != nil {
		return nil, err
	}
	return toRecords(redeemed), nil
}

// Redemption returns the key held by requesterID.
func (s *Service) Redemption(ctx context.Context, requesterID string) (string, bool, error) {
	redeemed, err := s.loadRedemptions(ctx)
	if err != nil {
		return "", false, err
	}
	key, ok := redeemed.Get(requesterID)
	return key, ok, nil
}

// OwnerLabel returns the registry label recorded for key.
func (s *Service) OwnerLabel(ctx context.Context, key string) (string, bool, error) {
	records, err := s.registry.Load(ctx)
	if err != nil {
		return "", false, &StoreError{Store: StoreRegistry, Op: "load", Err: err}
	}
	label, ok := records.Get(key)
	return label, ok, nil
}

// lock serializes mutations within the process and, when a Locker is
// configured, across processes sharing the same data directory.
func (s *Service) lock(ctx context.Context) (func(), error) {
	s.mu.Lock()
	if s.locker == nil {
		return s.mu.Unlock, nil
	}
	release, err := s.locker.Lock(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, &StoreError{Store: StoreLock, Op: "acquire", Err: err}
	}
	return func() {
		release()
		s.mu.Unlock()
	}, nil
}

func (s *Service) loadLedger(ctx context.Context) ([]string, error) {
	keys, err := s.ledger.Load(ctx)
	if err != nil {
		return nil, &StoreError{Store: StoreLedger, Op: "load", Err: err}
	}
	return keys, nil
}

func (s *Service) loadRedemptions(ctx context.Context) (*strmap.Map, error) {
	redeemed, err := s.redemptions.Load(ctx)
	if err != nil {
		return nil, &StoreError{Store: StoreRedemptions, Op: "load", Err: err}
	}
	return redeemed, nil
}

func (s *Service) effectFailed(out *Outcome, effect string, err error) {
	out.addFailure(effect, err)
	s.observer.EffectFailed(effect)
}

func (s *Service) observe(op string, err *error) {
	s.observer.OperationCompleted(op, *err)
}

func toRecords(m *strmap.Map) []RedemptionRecord {
	entries := m.Entries()
	records := make([]RedemptionRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, RedemptionRecord{RequesterID: e.Key, Key: e.Value})
	}
	return records
}

package key

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aethra/keybot/pkg/logger"
	"github.com/aethra/keybot/pkg/strmap"
)

// Reconcile compares the three stores without changing them.
func (s *Service) Reconcile(ctx context.Context) (Drift, error) {
	keys, err := s.loadLedger(ctx)
	if err != nil {
		return Drift{}, err
	}
	records, err := s.registry.Load(ctx)
	if err != nil {
		return Drift{}, &StoreError{Store: StoreRegistry, Op: "load", Err: err}
	}
	redeemed, err := s.loadRedemptions(ctx)
	if err != nil {
		return Drift{}, err
	}
	drift := registryDrift(keys, records)
	drift.Orphaned = orphanedRedemptions(keys, redeemed)
	return drift, nil
}

// SyncRegistry makes the registry match the ledger in a single commit:
// ledger-only keys are added with label and registry-only keys are removed.
// Redemptions are never modified.
func (s *Service) SyncRegistry(ctx context.Context, label string) (drift Drift, err error) {
	defer s.observe(OpSyncRegistry, &err)
	label = strings.TrimSpace(label)
	if label == "" {
		return Drift{}, fmt.Errorf("%w: owner label is required", ErrInvalidArgument)
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return Drift{}, err
	}
	defer unlock()

	keys, err := s.loadLedger(ctx)
	if err != nil {
		return Drift{}, err
	}
	err = s.registry.Update(ctx, func(records *strmap.Map) (string, error) {
		drift = registryDrift(keys, records)
		if len(drift.LedgerOnly) == 0 && len(drift.RegistryOnly) == 0 {
			return "", strmap.ErrUnchanged
		}
		for _, k := range drift.LedgerOnly {
			records.Set(k, label)
		}
		for _, k := range drift.RegistryOnly {
			records.Delete(k)
		}
		return fmt.Sprintf("Reconcile keys: add %d, remove %d", len(drift.LedgerOnly), len(drift.RegistryOnly)), nil
	})
	if err != nil && !errors.Is(err, strmap.ErrUnchanged) {
		return Drift{}, &StoreError{Store: StoreRegistry, Op: "update", Err: err}
	}
	logger.FromContext(ctx).Info("Registry synchronized with ledger",
		"added", len(drift.LedgerOnly), "removed", len(drift.RegistryOnly))
	return drift, nil
}

func registryDrift(keys []string, records *strmap.Map) Drift {
	var drift Drift
	inLedger := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		inLedger[k] = struct{}{}
		if !records.Has(k) {
			drift.LedgerOnly = append(drift.LedgerOnly, k)
		}
	}
	for _, k := range records.Keys() {
		if _, ok := inLedger[k]; !ok {
			drift.RegistryOnly = append(drift.RegistryOnly, k)
		}
	}
	return drift
}

func orphanedRedemptions(keys []string, redeemed *strmap.Map) []RedemptionRecord {
	inLedger := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		inLedger[k] = struct{}{}
	}
	var orphaned []RedemptionRecord
	for _, e := range redeemed.Entries() {
		if _, ok := inLedger[e.Value]; !ok {
			orphaned = append(orphaned, RedemptionRecord{RequesterID: e.Key, Key: e.Value})
		}
	}
	return orphaned
}

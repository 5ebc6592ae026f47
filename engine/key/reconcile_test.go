package key

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethra/keybot/pkg/strmap"
)

func TestService_Reconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("Should report drift across all stores", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.keys = []string{"K1", "K2"}
		f.registry = newMemRegistry(strmap.Entry{Key: "K2", Value: "B"}, strmap.Entry{Key: "K3", Value: "C"})
		f.svc.registry = f.registry
		f.redemptions = newMemRedemptions(strmap.Entry{Key: "u1", Value: "K1"}, strmap.Entry{Key: "u2", Value: "gone"})
		f.svc.redemptions = f.redemptions

		drift, err := f.svc.Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"K1"}, drift.LedgerOnly)
		assert.Equal(t, []string{"K3"}, drift.RegistryOnly)
		assert.Equal(t, []RedemptionRecord{{RequesterID: "u2", Key: "gone"}}, drift.Orphaned)
		assert.False(t, drift.Empty())
		assert.Empty(t, f.registry.messages)
	})

	t.Run("Should report no drift for consistent stores", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.keys = []string{"K1"}
		f.registry = newMemRegistry(strmap.Entry{Key: "K1", Value: "A"})
		f.svc.registry = f.registry

		drift, err := f.svc.Reconcile(ctx)
		require.NoError(t, err)
		assert.True(t, drift.Empty())
	})
}

func TestService_SyncRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("Should apply additions and removals in one commit", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.keys = []string{"K1", "K2"}
		f.registry = newMemRegistry(strmap.Entry{Key: "K2", Value: "B"}, strmap.Entry{Key: "K3", Value: "C"})
		f.svc.registry = f.registry

		drift, err := f.svc.SyncRegistry(ctx, "restored")
		require.NoError(t, err)
		assert.Equal(t, []string{"K1"}, drift.LedgerOnly)
		assert.Equal(t, []string{"K3"}, drift.RegistryOnly)
		assert.Equal(t, []string{"Reconcile keys: add 1, remove 1"}, f.registry.messages)
		assert.Equal(t, []string{"K2", "K1"}, f.registry.records.Keys())
		label, _ := f.registry.records.Get("K1")
		assert.Equal(t, "restored", label)
	})

	t.Run("Should skip the commit when nothing drifted", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.keys = []string{"K1"}
		f.registry = newMemRegistry(strmap.Entry{Key: "K1", Value: "A"})
		f.svc.registry = f.registry

		drift, err := f.svc.SyncRegistry(ctx, "restored")
		require.NoError(t, err)
		assert.True(t, drift.Empty())
		assert.Empty(t, f.registry.messages)
	})

	t.Run("Should require a label", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.SyncRegistry(ctx, " ")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

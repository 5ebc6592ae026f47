package localstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethra/keybot/engine/infra/registry"
	"github.com/aethra/keybot/pkg/strmap"
)

func TestLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("Should treat a missing file as empty", func(t *testing.T) {
		ledger := NewLedger(afero.NewMemMapFs(), "data/keys.txt")
		keys, err := ledger.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("Should trim lines and drop blanks", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "keys.txt", []byte("  K1 \r\n\nK2\n   \nK3"), 0o644))
		keys, err := NewLedger(fs, "keys.txt").Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"K1", "K2", "K3"}, keys)
	})

	t.Run("Should write newline separated keys", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		ledger := NewLedger(fs, "data/keys.txt")
		require.NoError(t, ledger.Save(ctx, []string{"K1", "K2"}))

		data, err := afero.ReadFile(fs, "data/keys.txt")
		require.NoError(t, err)
		assert.Equal(t, "K1\nK2", string(data))

		keys, err := ledger.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"K1", "K2"}, keys)
	})

	t.Run("Should leave no temp files behind", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		ledger := NewLedger(fs, "data/keys.txt")
		require.NoError(t, ledger.Save(ctx, []string{"K1"}))
		require.NoError(t, ledger.Save(ctx, []string{"K1", "K2"}))

		entries, err := afero.ReadDir(fs, "data")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "keys.txt", entries[0].Name())
	})

	t.Run("Should honor a cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := NewLedger(afero.NewMemMapFs(), "keys.txt").Load(cancelled)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRedemptions(t *testing.T) {
	ctx := context.Background()

	t.Run("Should preserve insertion order with four space indentation", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		store := NewRedemptions(fs, "redeemedKeys.json")
		records := strmap.New()
		records.Set("222", "K2")
		records.Set("111", "K1")
		require.NoError(t, store.Save(ctx, records))

		data, err := afero.ReadFile(fs, "redeemedKeys.json")
		require.NoError(t, err)
		assert.Equal(t, "{\n    \"222\": \"K2\",\n    \"111\": \"K1\"\n}\n", string(data))

		loaded, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"222", "111"}, loaded.Keys())
	})

	t.Run("Should treat missing and empty files as empty", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		store := NewRedemptions(fs, "redeemedKeys.json")
		loaded, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, loaded.Len())

		require.NoError(t, afero.WriteFile(fs, "redeemedKeys.json", nil, 0o644))
		loaded, err = store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, loaded.Len())
	})

	t.Run("Should treat corrupt files as empty", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "redeemedKeys.json", []byte("{not json"), 0o644))
		loaded, err := NewRedemptions(fs, "redeemedKeys.json").Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, loaded.Len())
	})
}

func TestFileRegistry(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 5, 1, 8, 30, 0, 0, time.UTC)

	newRegistry := func() (afero.Fs, *FileRegistry) {
		fs := afero.NewMemMapFs()
		reg := NewFileRegistry(fs, "registry.json")
		reg.now = func() time.Time { return fixed }
		return fs, reg
	}

	t.Run("Should read an absent document as empty with no revision", func(t *testing.T) {
		_, reg := newRegistry()
		records, revision, err := reg.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, records.Len())
		assert.Empty(t, revision)
	})

	t.Run("Should write against the current revision and journal the message", func(t *testing.T) {
		fs, reg := newRegistry()
		records := strmap.FromEntries(strmap.Entry{Key: "K1", Value: "Bob"})
		require.NoError(t, reg.Write(ctx, records, "", "Add key K1 for user Bob"))

		loaded, revision, err := reg.Read(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, revision)
		assert.True(t, loaded.Equal(records))

		journal, err := afero.ReadFile(fs, "registry.json.log")
		require.NoError(t, err)
		assert.Equal(t, "2025-05-01T08:30:00Z Add key K1 for user Bob\n", string(journal))
	})

	t.Run("Should reject writes based on a stale revision", func(t *testing.T) {
		_, reg := newRegistry()
		require.NoError(t, reg.Write(ctx, strmap.New(), "", "init"))
		stale, err := reg.Revision(ctx)
		require.NoError(t, err)
		require.NoError(t, reg.Write(ctx, strmap.FromEntries(strmap.Entry{Key: "K1", Value: "A"}), stale, "first"))

		err = reg.Write(ctx, strmap.FromEntries(strmap.Entry{Key: "K2", Value: "B"}), stale, "second")
		assert.ErrorIs(t, err, registry.ErrConflict)
	})

	t.Run("Should serve as a retrying registry store", func(t *testing.T) {
		_, reg := newRegistry()
		store := registry.New(reg, registry.Options{MaxRetries: 2, Backoff: time.Millisecond})

		require.NoError(t, store.Update(ctx, func(records *strmap.Map) (string, error) {
			records.Set("K1", "Bob")
			return "Add key K1 for user Bob", nil
		}))
		records, err := store.Load(ctx)
		require.NoError(t, err)
		label, ok := records.Get("K1")
		assert.True(t, ok)
		assert.Equal(t, "Bob", label)
	})

	t.Run("Should treat corrupt documents as empty but keep their revision", func(t *testing.T) {
		fs, reg := newRegistry()
		require.NoError(t, afero.WriteFile(fs, "registry.json", []byte("[1,2]"), 0o644))
		records, revision, err := reg.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, records.Len())
		assert.NotEmpty(t, revision)
	})
}

func TestFileLock(t *testing.T) {
	t.Run("Should block a second holder until released", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".keybot.lock")
		first := NewFileLock(path)
		unlock, err := first.Lock(context.Background())
		require.NoError(t, err)

		second := NewFileLock(path)
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_, err = second.Lock(ctx)
		assert.Error(t, err)

		unlock()
		release, err := second.Lock(context.Background())
		require.NoError(t, err)
		release()
	})
}

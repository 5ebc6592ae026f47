package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethra/keybot/pkg/strmap"
)

type fakeDocument struct {
	records   *strmap.Map
	revision  int
	conflicts int
	readErr   error
	writeErr  error
	reads     int
	messages  []string
}

func (d *fakeDocument) Name() string { return "fake" }

func (d *fakeDocument) Read(context.Context) (*strmap.Map, string, error) {
	d.reads++
	if d.readErr != nil {
		return nil, "", d.readErr
	}
	return d.records.Clone(), revisionString(d.revision), nil
}

func (d *fakeDocument) Write(_ context.Context, records *strmap.Map, revision, message string) error {
	if d.writeErr != nil {
		return d.writeErr
	}
	if d.conflicts > 0 {
		d.conflicts--
		d.revision++
		return ErrConflict
	}
	if revision != revisionString(d.revision) {
		return ErrConflict
	}
	d.records = records.Clone()
	d.revision++
	d.messages = append(d.messages, message)
	return nil
}

func revisionString(n int) string {
	return string(rune('a' + n))
}

func fastOptions(retries uint64) Options {
	return Options{MaxRetries: retries, Backoff: time.Millisecond}
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("Should apply the mutation and commit with its message", func(t *testing.T) {
		doc := &fakeDocument{records: strmap.New()}
		store := New(doc, fastOptions(3))

		err := store.Update(ctx, func(records *strmap.Map) (string, error) {
			records.Set("K1", "Bob")
			return "Add key K1 for user Bob", nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Add key K1 for user Bob"}, doc.messages)
		label, _ := doc.records.Get("K1")
		assert.Equal(t, "Bob", label)
	})

	t.Run("Should re-read and re-apply after a conflict", func(t *testing.T) {
		doc := &fakeDocument{records: strmap.New(), conflicts: 2}
		store := New(doc, fastOptions(3))
		calls := 0

		err := store.Update(ctx, func(records *strmap.Map) (string, error) {
			calls++
			records.Set("K1", "Bob")
			return "add", nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 3, doc.reads)
	})

	t.Run("Should give up after the retry budget", func(t *testing.T) {
		doc := &fakeDocument{records: strmap.New(), conflicts: 10}
		store := New(doc, fastOptions(2))

		err := store.Update(ctx, func(records *strmap.Map) (string, error) {
			records.Set("K1", "Bob")
			return "add", nil
		})
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, 3, doc.reads)
	})

	t.Run("Should skip the write for unchanged records", func(t *testing.T) {
		doc := &fakeDocument{records: strmap.New()}
		store := New(doc, fastOptions(3))

		err := store.Update(ctx, func(*strmap.Map) (string, error) {
			return "", strmap.ErrUnchanged
		})
		require.NoError(t, err)
		assert.Empty(t, doc.messages)
	})

	t.Run("Should return mutation errors without retrying", func(t *testing.T) {
		doc := &fakeDocument{records: strmap.New()}
		store := New(doc, fastOptions(3))
		sentinel := errors.New("not found")

		err := store.Update(ctx, func(*strmap.Map) (string, error) { return "", sentinel })
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, doc.reads)
	})

	t.Run("Should not retry transport failures", func(t *testing.T) {
		doc := &fakeDocument{records: strmap.New(), writeErr: errors.New("unauthorized")}
		store := New(doc, fastOptions(3))

		err := store.Update(ctx, func(records *strmap.Map) (string, error) {
			records.Set("K1", "x")
			return "add", nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "write fake")
		assert.Equal(t, 1, doc.reads)
	})
}

func TestStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("Should overwrite using the current revision", func(t *testing.T) {
		doc := &fakeDocument{records: strmap.FromEntries(strmap.Entry{Key: "old", Value: "x"}), revision: 4}
		store := New(doc, fastOptions(3))

		require.NoError(t, store.Save(ctx, strmap.FromEntries(strmap.Entry{Key: "K1", Value: "A"}), "replace"))
		records, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"K1"}, records.Keys())
	})

	t.Run("Should propagate read failures", func(t *testing.T) {
		doc := &fakeDocument{readErr: errors.New("timeout")}
		store := New(doc, fastOptions(3))
		_, err := store.Load(ctx)
		assert.Error(t, err)
	})

	t.Run("Should default a non-positive backoff", func(t *testing.T) {
		store := New(&fakeDocument{}, Options{MaxRetries: 1})
		assert.Equal(t, DefaultOptions().Backoff, store.opts.Backoff)
	})
}

func TestUnavailable(t *testing.T) {
	reason := errors.New("github token is required")
	store := New(Unavailable("github", reason), fastOptions(3))

	t.Run("Should fail loads with the configuration reason", func(t *testing.T) {
		_, err := store.Load(t.Context())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.ErrorIs(t, err, reason)
		assert.Contains(t, err.Error(), "read github")
	})

	t.Run("Should fail updates without retrying", func(t *testing.T) {
		called := false
		err := store.Update(t.Context(), func(*strmap.Map) (string, error) {
			called = true
			return "add", nil
		})
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.False(t, called)
	})

	t.Run("Should fail saves", func(t *testing.T) {
		err := store.Save(t.Context(), strmap.New(), "sync")
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

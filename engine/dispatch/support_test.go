package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottle(t *testing.T) {
	t.Run("Should be disabled for a non-positive limit", func(t *testing.T) {
		th := NewThrottle(nil, 0, time.Minute)
		assert.Nil(t, th)
		ok, wait, err := th.Allow(t.Context(), "1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Zero(t, wait)
	})
	t.Run("Should track callers independently", func(t *testing.T) {
		th := NewThrottle(nil, 2, time.Minute)
		for range 2 {
			ok, _, err := th.Allow(t.Context(), "1")
			require.NoError(t, err)
			assert.True(t, ok)
		}
		ok, wait, err := th.Allow(t.Context(), "1")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.GreaterOrEqual(t, wait, time.Second)
		ok, _, err = th.Allow(t.Context(), "2")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestScriptRenderer(t *testing.T) {
	t.Run("Should render the key and sprig helpers", func(t *testing.T) {
		r, err := NewScriptRenderer(`key={{ .Key | quote }} user={{ .UserID | upper }}`)
		require.NoError(t, err)
		out, err := r.Render(ScriptData{Key: "K", UserID: "abc"})
		require.NoError(t, err)
		assert.Equal(t, `key="K" user=ABC`, out)
	})
	t.Run("Should reject a malformed template", func(t *testing.T) {
		_, err := NewScriptRenderer("{{ .Key ")
		require.Error(t, err)
	})
	t.Run("Should fail on unknown fields", func(t *testing.T) {
		r, err := NewScriptRenderer("{{ .Missing }}")
		require.NoError(t, err)
		_, err = r.Render(ScriptData{Key: "K"})
		require.Error(t, err)
	})
}

type failingNotifier struct{ err error }

func (f failingNotifier) Notify(context.Context, Notice) error { return f.err }

func TestMultiNotifier(t *testing.T) {
	t.Run("Should deliver to every notifier and join errors", func(t *testing.T) {
		rec := &recordingNotifier{}
		boom := errors.New("boom")
		multi := MultiNotifier{failingNotifier{err: boom}, rec, LogNotifier{}}
		err := multi.Notify(t.Context(), Notice{Title: "T"})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"T"}, rec.titles())
	})
}

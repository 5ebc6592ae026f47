package key

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	storeErr := &StoreError{Store: StoreLedger, Op: "save", Err: errors.New("disk full")}
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"invalid argument", fmt.Errorf("%w: empty", ErrInvalidArgument), KindValidation},
		{"unauthorized", ErrUnauthorized, KindValidation},
		{"not found", ErrNotFound, KindNotFound},
		{"invalid key", ErrInvalidKey, KindNotFound},
		{"no active key", ErrNoActiveKey, KindNotFound},
		{"already used", ErrAlreadyUsed, KindConflict},
		{"cooldown", &CooldownError{Remaining: time.Minute}, KindConflict},
		{"store", storeErr, KindStoreIO},
		{"partial", &PartialWriteError{Op: OpAddKey, Err: storeErr}, KindPartialWrite},
		{"other", errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		t.Run("Should classify "+tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	t.Run("Should name both stores in partial writes", func(t *testing.T) {
		err := &PartialWriteError{
			Op: OpAddKey, Key: "K1", Committed: StoreLedger, Failed: StoreRegistry, Err: errors.New("409"),
		}
		assert.Equal(t, `add_key "K1": ledger updated but registry write failed: 409`, err.Error())
	})

	t.Run("Should round cooldown remaining to seconds", func(t *testing.T) {
		err := &CooldownError{Remaining: 90*time.Minute + 300*time.Millisecond}
		assert.Equal(t, "reset on cooldown: 1h30m0s remaining", err.Error())
	})
}

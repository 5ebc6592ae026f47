package key

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrAlreadyExists   = errors.New("key already exists")
	ErrNotFound        = errors.New("key not found")
	ErrInvalidKey      = errors.New("invalid key")
	ErrAlreadyUsed     = errors.New("key already used")
	ErrAlreadyRedeemed = errors.New("requester already redeemed a key")
	ErrNoActiveKey     = errors.New("requester has no active key")
	ErrOnCooldown      = errors.New("reset on cooldown")
)

// Store names used in StoreError and PartialWriteError.
const (
	StoreLedger      = "ledger"
	StoreRegistry    = "registry"
	StoreRedemptions = "redemptions"
	StoreCooldowns   = "cooldowns"
	StoreLock        = "lock"
)

// Kind classifies errors for rendering and metrics.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindStoreIO
	KindPartialWrite
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindStoreIO:
		return "store_io"
	case KindPartialWrite:
		return "partial_write"
	default:
		return "internal"
	}
}

// StoreError reports a failed read or write against one store.
type StoreError struct {
	Store string
	Op    string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Store, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// PartialWriteError reports that Committed was written but Failed was not.
// Nothing is rolled back.
type PartialWriteError struct {
	Op        string
	Key       string
	Committed string
	Failed    string
	Err       error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s %q: %s updated but %s write failed: %v", e.Op, e.Key, e.Committed, e.Failed, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// CooldownError is returned while a requester's reset cooldown is active.
type CooldownError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%v: %s remaining", ErrOnCooldown, e.Remaining.Round(time.Second))
}

func (e *CooldownError) Unwrap() error { return ErrOnCooldown }

// KindOf maps err to its Kind.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var partial *PartialWriteError
	if errors.As(err, &partial) {
		return KindPartialWrite
	}
	switch {
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrUnauthorized):
		return KindValidation
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidKey), errors.Is(err, ErrNoActiveKey):
		return KindNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrAlreadyUsed),
		errors.Is(err, ErrAlreadyRedeemed), errors.Is(err, ErrOnCooldown):
		return KindConflict
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return KindStoreIO
	}
	return KindInternal
}

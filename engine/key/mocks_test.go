package key

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/aethra/keybot/pkg/strmap"
)

// MockBenefitGranter implements BenefitGranter for testing
type MockBenefitGranter struct {
	mock.Mock
}

func (m *MockBenefitGranter) Grant(ctx context.Context, requesterID string) error {
	args := m.Called(ctx, requesterID)
	return args.Error(0)
}

func (m *MockBenefitGranter) Revoke(ctx context.Context, requesterID string) error {
	args := m.Called(ctx, requesterID)
	return args.Error(0)
}

type memLedger struct {
	keys    []string
	saves   int
	saveErr error
	loadErr error
}

func (l *memLedger) Load(context.Context) ([]string, error) {
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	return slices.Clone(l.keys), nil
}

func (l *memLedger) Save(_ context.Context, keys []string) error {
	if l.saveErr != nil {
		return l.saveErr
	}
	l.saves++
	l.keys = slices.Clone(keys)
	return nil
}

type memRedemptions struct {
	records *strmap.Map
	saves   int
	saveErr error
}

func newMemRedemptions(entries ...strmap.Entry) *memRedemptions {
	return &memRedemptions{records: strmap.FromEntries(entries...)}
}

func (r *memRedemptions) Load(context.Context) (*strmap.Map, error) {
	return r.records.Clone(), nil
}

func (r *memRedemptions) Save(_ context.Context, records *strmap.Map) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	r.records = records.Clone()
	return nil
}

type memRegistry struct {
	mu       sync.Mutex
	records  *strmap.Map
	messages []string
	writeErr error
}

func newMemRegistry(entries ...strmap.Entry) *memRegistry {
	return &memRegistry{records: strmap.FromEntries(entries...)}
}

func (r *memRegistry) Load(context.Context) (*strmap.Map, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records.Clone(), nil
}

func (r *memRegistry) Save(_ context.Context, records *strmap.Map, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	r.records = records.Clone()
	r.messages = append(r.messages, message)
	return nil
}

func (r *memRegistry) Update(_ context.Context, mutate Mutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	working := r.records.Clone()
	message, err := mutate(working)
	if errors.Is(err, strmap.ErrUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}
	if r.writeErr != nil {
		return r.writeErr
	}
	r.records = working
	r.messages = append(r.messages, message)
	return nil
}

type recordingObserver struct {
	ops     map[string][]error
	effects []string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{ops: make(map[string][]error)}
}

func (o *recordingObserver) OperationCompleted(op string, err error) {
	o.ops[op] = append(o.ops[op], err)
}

func (o *recordingObserver) EffectFailed(effect string) {
	o.effects = append(o.effects, effect)
}

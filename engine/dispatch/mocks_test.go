package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/aethra/keybot/engine/key"
)

// MockKeyService implements KeyService for testing
type MockKeyService struct {
	mock.Mock
	admin string
}

func (m *MockKeyService) IsAdmin(callerID string) bool {
	return callerID == m.admin
}

func (m *MockKeyService) AddKey(ctx context.Context, k, label string) error {
	return m.Called(ctx, k, label).Error(0)
}

func (m *MockKeyService) DeleteKey(ctx context.Context, k string) error {
	return m.Called(ctx, k).Error(0)
}

func (m *MockKeyService) UpdateKeyOwner(ctx context.Context, k, label string) error {
	return m.Called(ctx, k, label).Error(0)
}

func (m *MockKeyService) Redeem(ctx context.Context, requesterID, k, actingAs string) (key.Outcome, error) {
	args := m.Called(ctx, requesterID, k, actingAs)
	return args.Get(0).(key.Outcome), args.Error(1)
}

func (m *MockKeyService) Revoke(ctx context.Context, requesterID string) (key.Outcome, error) {
	args := m.Called(ctx, requesterID)
	return args.Get(0).(key.Outcome), args.Error(1)
}

func (m *MockKeyService) ResetOwnerLabel(
	ctx context.Context,
	requesterID, label string,
	now time.Time,
) (key.Outcome, error) {
	args := m.Called(ctx, requesterID, label, now)
	return args.Get(0).(key.Outcome), args.Error(1)
}

func (m *MockKeyService) CooldownRemaining(ctx context.Context, requesterID string, now time.Time) (time.Duration, error) {
	args := m.Called(ctx, requesterID, now)
	return args.Get(0).(time.Duration), args.Error(1)
}

func (m *MockKeyService) ListAvailable(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockKeyService) ListRedeemed(ctx context.Context) ([]key.RedemptionRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]key.RedemptionRecord), args.Error(1)
}

func (m *MockKeyService) Redemption(ctx context.Context, requesterID string) (string, bool, error) {
	args := m.Called(ctx, requesterID)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockKeyService) OwnerLabel(ctx context.Context, k string) (string, bool, error) {
	args := m.Called(ctx, k)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockKeyService) Reconcile(ctx context.Context) (key.Drift, error) {
	args := m.Called(ctx)
	return args.Get(0).(key.Drift), args.Error(1)
}

func (m *MockKeyService) SyncRegistry(ctx context.Context, label string) (key.Drift, error) {
	args := m.Called(ctx, label)
	return args.Get(0).(key.Drift), args.Error(1)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, notice Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *recordingNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.notices))
	for _, notice := range n.notices {
		out = append(out, notice.Title)
	}
	return out
}

type recordingCommands struct {
	mu       sync.Mutex
	outcomes map[string][]string
}

func (r *recordingCommands) CommandHandled(command, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string][]string{}
	}
	r.outcomes[command] = append(r.outcomes[command], outcome)
}

func (r *recordingCommands) last(command string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.outcomes[command]
	if len(list) == 0 {
		return ""
	}
	return list[len(list)-1]
}

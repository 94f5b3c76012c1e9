package scheduler

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"gardenwatch/internal/daily"
	"gardenwatch/internal/runstate"
	"gardenwatch/internal/types"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context) (daily.Summary, error) {
	args := m.Called(ctx)
	return args.Get(0).(daily.Summary), args.Error(1)
}

func (m *mockRunner) RunReminders(ctx context.Context) (daily.Summary, error) {
	args := m.Called(ctx)
	return args.Get(0).(daily.Summary), args.Error(1)
}

type mockLease struct {
	mock.Mock
}

func (m *mockLease) NeedsRun(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockLease) TryAcquire(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockLease) MarkCompleted(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockLease) Release(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockLease) Status(ctx context.Context) (runstate.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(runstate.Status), args.Error(1)
}

type mockPruner struct {
	mock.Mock
}

func (m *mockPruner) CountPrunable(ctx context.Context, cutoff time.Time) (int, error) {
	args := m.Called(ctx, cutoff)
	return args.Int(0), args.Error(1)
}

func (m *mockPruner) ListPrunable(ctx context.Context, cutoff time.Time, limit int) ([]types.Snapshot, error) {
	args := m.Called(ctx, cutoff, limit)
	if s := args.Get(0); s != nil {
		return s.([]types.Snapshot), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPruner) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	args := m.Called(ctx, ids)
	return args.Int(0), args.Error(1)
}

type mockStats struct {
	mock.Mock
}

func (m *mockStats) CountSince(ctx context.Context, since time.Time) (int, error) {
	args := m.Called(ctx, since)
	return args.Int(0), args.Error(1)
}

func (m *mockStats) FindLastNotificationDate(ctx context.Context) (*time.Time, error) {
	args := m.Called(ctx)
	if t := args.Get(0); t != nil {
		return t.(*time.Time), args.Error(1)
	}
	return nil, args.Error(1)
}

type stubDispatch struct {
	ready    bool
	provider string
}

func (s stubDispatch) Ready() bool      { return s.ready }
func (s stubDispatch) Provider() string { return s.provider }

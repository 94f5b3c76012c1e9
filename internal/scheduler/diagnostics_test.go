package scheduler

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gardenwatch/internal/runstate"
	"gardenwatch/internal/types"
)

func TestDiagnostics_Collect(t *testing.T) {
	stats, lease := new(mockStats), new(mockLease)
	last := testNow.Add(-2 * time.Hour)
	lastRun := testNow.Add(-time.Hour)

	stats.On("CountSince", mock.Anything, testNow.Add(-24*time.Hour)).Return(5, nil)
	stats.On("CountSince", mock.Anything, types.StartOfDay(testNow)).Return(2, nil)
	stats.On("CountSince", mock.Anything, testNow.AddDate(0, 0, -7)).Return(19, nil)
	stats.On("FindLastNotificationDate", mock.Anything).Return(&last, nil)
	lease.On("Status", mock.Anything).Return(runstate.Status{LastRunAt: &lastRun, LockHeld: false}, nil)

	d := NewDiagnostics(stats, lease, stubDispatch{ready: true, provider: "whatsapp"}, types.FixedClock{T: testNow})
	r, err := d.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, r.NotificationsLast24h)
	assert.Equal(t, 2, r.NotificationsToday)
	assert.Equal(t, 19, r.NotificationsLast7d)
	assert.Equal(t, &last, r.LastNotificationAt)
	assert.Equal(t, &lastRun, r.LastRunAt)
	assert.False(t, r.LockHeld)
	assert.Equal(t, "whatsapp", r.DispatchProvider)
	assert.True(t, r.DispatchReady)
}

func TestDiagnostics_Collect_Error(t *testing.T) {
	stats, lease := new(mockStats), new(mockLease)
	stats.On("CountSince", mock.Anything, mock.Anything).Return(0, errors.New("connection refused"))
	stats.On("FindLastNotificationDate", mock.Anything).Return(nil, nil)
	lease.On("Status", mock.Anything).Return(runstate.Status{}, nil)

	_, err := NewDiagnostics(stats, lease, nil, types.FixedClock{T: testNow}).Collect(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestReport_WriteText(t *testing.T) {
	r := &Report{NotificationsLast24h: 3, DispatchProvider: "none"}
	var buf bytes.Buffer
	require.NoError(t, r.WriteText(&buf))

	out := buf.String()
	assert.Contains(t, out, "Notifications (last 24h): 3")
	assert.Contains(t, out, "Last notification:        never")
	assert.Contains(t, out, "Dispatch provider:        none (ready: false)")
}

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gardenwatch/internal/daily"
)

func TestParseCron(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	sched, err := ParseCron("0 6 * * *")
	require.NoError(t, err)
	from := time.Date(2026, 6, 15, 7, 0, 0, 0, paris)
	assert.Equal(t, time.Date(2026, 6, 16, 6, 0, 0, 0, paris), sched.Next(from))

	for _, bad := range []string{"", "every day", "0 6 * *", "61 6 * * *"} {
		_, err := ParseCron(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewCronScheduler_InvalidExpression(t *testing.T) {
	job := newTestJob(new(mockRunner), new(mockLease))
	_, err := NewCronScheduler(job, CronConfig{DailyCron: "0 6 * * *", EveningCron: "bogus"}, nil)
	assert.Error(t, err)
}

func TestCronScheduler_Fire(t *testing.T) {
	r, l := new(mockRunner), new(mockLease)
	l.On("NeedsRun", mock.Anything).Return(true, nil)
	l.On("TryAcquire", mock.Anything).Return(true, nil)
	r.On("Run", mock.Anything).Return(daily.Summary{Processed: 1}, nil)
	l.On("MarkCompleted", mock.Anything).Return(nil)
	r.On("RunReminders", mock.Anything).Return(daily.Summary{}, nil)

	s, err := NewCronScheduler(newTestJob(r, l), CronConfig{
		DailyCron:   "0 6 * * *",
		EveningCron: "30 15 * * *",
		RunTimeout:  time.Minute,
	}, nil)
	require.NoError(t, err)
	assert.Len(t, s.Next(), 2)

	s.fire(TaskDailyProcess)
	s.fire(TaskEveningReminders)
	r.AssertExpectations(t)
	l.AssertExpectations(t)

	s.Start()
	require.NoError(t, s.Stop(context.Background()))
}

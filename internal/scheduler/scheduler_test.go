package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raoulx24/bsu-backup/internal/config"
	"github.com/raoulx24/bsu-backup/internal/logging"
	"github.com/raoulx24/bsu-backup/internal/mailbox"
	"github.com/raoulx24/bsu-backup/internal/worker"
)

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New("every tuesday", logging.Nop(), mailbox.New[worker.Job]())
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestTriggerPutsOneJob(t *testing.T) {
	mb := mailbox.New[worker.Job]()
	s, err := New("@daily", logging.Nop(), mb)
	require.NoError(t, err)

	s.trigger()
	s.trigger()

	job, ok := mb.Take(context.Background())
	require.True(t, ok)
	assert.Equal(t, "schedule", job.Trigger)
	assert.NotEmpty(t, job.ID)
	assert.False(t, mb.HasJob())
}

func TestUpdateConfig(t *testing.T) {
	s, err := New("0 3 * * *", logging.Nop(), mailbox.New[worker.Job]())
	require.NoError(t, err)

	next := s.Next()
	assert.Equal(t, 3, next.Hour())
	assert.Equal(t, 0, next.Minute())

	require.NoError(t, s.UpdateConfig(config.ScheduleConfig{Cron: "30 4 * * *"}))
	assert.Equal(t, "30 4 * * *", s.Spec())
	assert.Equal(t, 4, s.Next().Hour())
	assert.Len(t, s.cron.Entries(), 1)

	err = s.UpdateConfig(config.ScheduleConfig{Cron: "bogus"})
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Equal(t, "30 4 * * *", s.Spec())
}

func TestStartStop(t *testing.T) {
	s, err := New("@every 1h", logging.Nop(), mailbox.New[worker.Job]())
	require.NoError(t, err)

	s.Start()
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

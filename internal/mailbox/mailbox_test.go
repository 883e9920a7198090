package mailbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestJobWins(t *testing.T) {
	mb := New[int]()
	assert.False(t, mb.HasJob())
	assert.Nil(t, mb.TryTake())

	mb.Put(1)
	mb.Put(2)
	assert.True(t, mb.HasJob())

	j, ok := mb.Take(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2, j)
	assert.False(t, mb.HasJob())
}

func TestTakeBlocksUntilPut(t *testing.T) {
	mb := New[string]()
	got := make(chan string)

	go func() {
		j, _ := mb.Take(context.Background())
		got <- j
	}()

	mb.Put("tick")
	select {
	case j := <-got:
		assert.Equal(t, "tick", j)
	case <-time.After(5 * time.Second):
		t.Fatal("Take did not return")
	}
}

func TestTakeHonoursContext(t *testing.T) {
	mb := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := mb.Take(ctx)
	assert.False(t, ok)
}

package msgworker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_DispatchNonBlocking(t *testing.T) {
	pool := NewReplyPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	var processed int64
	done := make(chan struct{})

	ok := pool.TryDispatch(ReplyJob{
		ConversationID: "conv-1",
		Handler: func(ctx context.Context) error {
			atomic.AddInt64(&processed, 1)
			close(done)
			return nil
		},
	})
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never processed")
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&processed))
}

func TestPool_SameConversationStaysOrdered(t *testing.T) {
	pool := NewReplyPool(4, 50)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		require.True(t, pool.TryDispatch(ReplyJob{
			ConversationID: "conv-ordered",
			Handler: func(ctx context.Context) error {
				defer wg.Done()
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			},
		}))
	}
	wg.Wait()

	require.Len(t, order, 20)
	for i, v := range order {
		assert.Equal(t, i, v, "jobs for one conversation must run in dispatch order")
	}
}

func TestPool_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	pool := NewReplyPool(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	block := make(chan struct{})
	release := make(chan struct{})

	require.True(t, pool.TryDispatch(ReplyJob{
		ConversationID: "conv-busy",
		Handler: func(ctx context.Context) error {
			close(block)
			<-release
			return nil
		},
	}))
	<-block

	// Fill the single queue slot, then overflow it.
	_ = pool.TryDispatch(ReplyJob{ConversationID: "conv-busy", Handler: func(ctx context.Context) error { return nil }})

	dropped := false
	for i := 0; i < 5; i++ {
		if !pool.TryDispatch(ReplyJob{ConversationID: "conv-busy", Handler: func(ctx context.Context) error { return nil }}) {
			dropped = true
			break
		}
	}
	close(release)

	assert.True(t, dropped, "overflow dispatch should report a drop")
	assert.Greater(t, pool.GetStats().TotalDropped, int64(0))
}

func TestPool_StopRejectsNewJobs(t *testing.T) {
	pool := NewReplyPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	pool.Stop()

	ok := pool.TryDispatch(ReplyJob{
		ConversationID: "conv-late",
		Handler:        func(ctx context.Context) error { return nil },
	})
	assert.False(t, ok)
}

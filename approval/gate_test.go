package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/overseer/types"
)

func newTestGate(t *testing.T, config Config) *Gate {
	t.Helper()
	return NewGate(NewMemoryRequestStore(), config, zap.NewNop())
}

func TestGate_SuspendResumeWait(t *testing.T) {
	gate := newTestGate(t, Config{})
	ctx := context.Background()

	handle, err := gate.Suspend(ctx, "thread-1", "deploy to production?", map[string]string{"env": "prod"})
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	done := make(chan Decision, 1)
	go func() {
		d, err := gate.Wait(ctx, handle)
		if err == nil {
			done <- d
		}
	}()

	// 给 Wait 一点时间进入阻塞
	time.Sleep(10 * time.Millisecond)

	err = gate.Resume(ctx, handle, Decision{Approved: true, DecidedBy: "alice"})
	require.NoError(t, err)

	select {
	case d := <-done:
		assert.True(t, d.Approved)
		assert.Equal(t, "alice", d.DecidedBy)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Resume")
	}
}

func TestGate_ResumeUnknownHandle(t *testing.T) {
	gate := newTestGate(t, Config{})

	err := gate.Resume(context.Background(), "no-such-handle", Decision{Approved: true})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrHandleNotFound))
}

func TestGate_ResumeAppliedExactlyOnce(t *testing.T) {
	gate := newTestGate(t, Config{})
	ctx := context.Background()

	handle, err := gate.Suspend(ctx, "t", "proceed?", nil)
	require.NoError(t, err)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = gate.Resume(ctx, handle, Decision{Approved: i%2 == 0})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, types.IsCode(err, types.ErrHandleNotFound))
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestGate_WaitAfterResume(t *testing.T) {
	gate := newTestGate(t, Config{})
	ctx := context.Background()

	handle, err := gate.Suspend(ctx, "t", "ok?", nil)
	require.NoError(t, err)
	require.NoError(t, gate.Resume(ctx, handle, Decision{Approved: true}))

	// Wait 晚于 Resume 进入时直接取回已落盘的裁决
	d, err := gate.Wait(ctx, handle)
	require.NoError(t, err)
	assert.True(t, d.Approved)
}

func TestGate_WaitReattachesToPendingRequest(t *testing.T) {
	store := NewMemoryRequestStore()
	gate := NewGate(store, Config{}, zap.NewNop())
	ctx := context.Background()

	handle, err := gate.Suspend(ctx, "t", "ok?", nil)
	require.NoError(t, err)

	// 模拟进程重启: store 里的请求还在, 内存里的 waiter 丢失
	gate2 := NewGate(store, Config{}, zap.NewNop())

	done := make(chan Decision, 1)
	go func() {
		d, err := gate2.Wait(ctx, handle)
		if err == nil {
			done <- d
		}
	}()

	// 无论 Wait 是否已重新挂接 waiter, Resume 都应一次成功
	require.NoError(t, gate2.Resume(ctx, handle, Decision{Approved: true, DecidedBy: "bob"}))

	select {
	case d := <-done:
		assert.True(t, d.Approved)
		assert.Equal(t, "bob", d.DecidedBy)
	case <-time.After(time.Second):
		t.Fatal("Wait did not re-attach to the stored request")
	}
}

// 重启后线程尚未重放时, 操作员的裁决直接落到 store 里的 pending 请求上。
func TestGate_ResumeSettlesStoredRequestWithoutWaiter(t *testing.T) {
	store := NewMemoryRequestStore()
	gate := NewGate(store, Config{}, zap.NewNop())
	ctx := context.Background()

	handle, err := gate.Suspend(ctx, "t", "ok?", nil)
	require.NoError(t, err)

	// 模拟进程重启: waiter 丢失, 请求仍在 store 中 pending
	gate2 := NewGate(store, Config{}, zap.NewNop())

	require.NoError(t, gate2.Resume(ctx, handle, Decision{Approved: true, DecidedBy: "alice"}))

	// 每个 handle 只允许一次裁决
	err = gate2.Resume(ctx, handle, Decision{Approved: false})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrHandleNotFound))

	// 线程重放后直接取回已落盘的裁决
	d, err := gate2.Wait(ctx, handle)
	require.NoError(t, err)
	assert.True(t, d.Approved)
	assert.Equal(t, "alice", d.DecidedBy)

	reqs, err := gate2.History(ctx)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, StatusApproved, reqs[0].Status)
}

func TestGate_TimeoutAppliesDefaultDecision(t *testing.T) {
	gate := newTestGate(t, Config{Timeout: 20 * time.Millisecond})
	ctx := context.Background()

	handle, err := gate.Suspend(ctx, "t", "ok?", nil)
	require.NoError(t, err)

	d, err := gate.Wait(ctx, handle)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrApprovalTimeout))
	assert.False(t, d.Approved)
	assert.Equal(t, "system", d.DecidedBy)

	// 超时后 handle 已消费
	err = gate.Resume(ctx, handle, Decision{Approved: true})
	assert.True(t, types.IsCode(err, types.ErrHandleNotFound))

	reqs, err := gate.History(ctx)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, StatusTimeout, reqs[0].Status)
}

func TestGate_PendingListing(t *testing.T) {
	gate := newTestGate(t, Config{})
	ctx := context.Background()

	h1, err := gate.Suspend(ctx, "t1", "first?", nil)
	require.NoError(t, err)
	_, err = gate.Suspend(ctx, "t2", "second?", nil)
	require.NoError(t, err)

	pending, err := gate.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "first?", pending[0].Question)

	require.NoError(t, gate.Resume(ctx, h1, Decision{Approved: false}))

	pending, err = gate.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "second?", pending[0].Question)
}

func TestGate_EventsPublished(t *testing.T) {
	gate := newTestGate(t, Config{})
	ctx := context.Background()

	handle, err := gate.Suspend(ctx, "t", "ok?", nil)
	require.NoError(t, err)

	ev := <-gate.Events()
	assert.Equal(t, EventPending, ev.Type)
	assert.Equal(t, handle, ev.Request.Handle)

	require.NoError(t, gate.Resume(ctx, handle, Decision{Approved: true}))

	ev = <-gate.Events()
	assert.Equal(t, EventResolved, ev.Type)
	assert.Equal(t, StatusApproved, ev.Request.Status)
}

func TestRedisRequestStore_RoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisRequestStore(client, "test")
	ctx := context.Background()

	req := &Request{
		Handle:    "h1",
		ThreadID:  "t1",
		Question:  "deploy?",
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Save(ctx, req))

	got, err := store.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "deploy?", got.Question)

	got.Status = StatusApproved
	require.NoError(t, store.Update(ctx, got))

	pending, err := store.List(ctx, StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, StatusApproved, all[0].Status)

	_, err = store.Get(ctx, "missing")
	assert.True(t, types.IsCode(err, types.ErrHandleNotFound))
}

func TestRedisRequestStore_UpdateUnknownHandle(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisRequestStore(client, "test")
	err = store.Update(context.Background(), &Request{Handle: "ghost"})
	assert.True(t, types.IsCode(err, types.ErrHandleNotFound))
}

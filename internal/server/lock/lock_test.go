package lock

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/logging"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_TryLockConflicts(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	unlock, err := l.TryLock(ctx, "u")
	require.NoError(t, err)

	_, err = l.TryLock(ctx, "u")
	assert.ErrorIs(t, err, common.ErrorConflict)

	// other users are independent
	other, err := l.TryLock(ctx, "v")
	require.NoError(t, err)
	other()

	unlock()
	unlock()

	again, err := l.TryLock(ctx, "u")
	require.NoError(t, err)
	again()
	assert.Empty(t, l.sems)
}

func TestLocal_LockWaitsAndHonoursContext(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "u")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "u")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan struct{})
	go func() {
		u, err := l.Lock(context.Background(), "u")
		if err == nil {
			u()
		}
		close(done)
	}()
	unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}

func TestLocal_ExactlyOneConcurrentTryLock(t *testing.T) {
	l := NewLocal()
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	unlocks := make(chan Unlock, 16)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			u, err := l.TryLock(context.Background(), "u")
			if err != nil {
				conflicts.Add(1)
				return
			}
			wins.Add(1)
			unlocks <- u
		}()
	}
	close(start)
	wg.Wait()
	close(unlocks)
	for u := range unlocks {
		u()
	}

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(15), conflicts.Load())
}

type fakeRedis struct {
	mu        sync.Mutex
	data      map[string]string
	refreshes int
	evalErr   error
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.evalErr != nil {
		return redis.NewCmdResult(nil, f.evalErr)
	}
	if f.data[keys[0]] != args[0].(string) {
		return redis.NewCmdResult(int64(0), nil)
	}
	if script == refreshScript {
		f.refreshes++
	} else {
		delete(f.data, keys[0])
	}
	return redis.NewCmdResult(int64(1), nil)
}

func (f *fakeRedis) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func TestRedis_TryLockAndUnlock(t *testing.T) {
	f := &fakeRedis{data: map[string]string{}}
	l := NewRedis(f, time.Minute, time.Millisecond, logging.NopLogger{})
	ctx := context.Background()

	unlock, err := l.TryLock(ctx, "u")
	require.NoError(t, err)

	_, err = l.TryLock(ctx, "u")
	assert.ErrorIs(t, err, common.ErrorConflict)

	unlock()
	assert.Empty(t, f.data)
}

func TestRedis_UnlockLeavesForeignToken(t *testing.T) {
	f := &fakeRedis{data: map[string]string{}}
	l := NewRedis(f, time.Minute, time.Millisecond, logging.NopLogger{})

	unlock, err := l.TryLock(context.Background(), "u")
	require.NoError(t, err)

	// the lock expired and another instance took it
	f.data[lockPrefix+"u"] = "someone-else"
	unlock()
	assert.Equal(t, "someone-else", f.data[lockPrefix+"u"])
}

func TestRedis_LockPollsUntilFree(t *testing.T) {
	f := &fakeRedis{data: map[string]string{}}
	l := NewRedis(f, time.Minute, time.Millisecond, logging.NopLogger{})

	first, err := l.TryLock(context.Background(), "u")
	require.NoError(t, err)
	go func() {
		time.Sleep(10 * time.Millisecond)
		first()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	second, err := l.Lock(ctx, "u")
	require.NoError(t, err)
	second()
}

func TestRedis_HeldLockIsRefreshed(t *testing.T) {
	f := &fakeRedis{data: map[string]string{}}
	l := NewRedis(f, 30*time.Millisecond, time.Millisecond, logging.NopLogger{})

	unlock, err := l.TryLock(context.Background(), "u")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.refreshCount() >= 2 }, time.Second, 5*time.Millisecond)

	unlock()
	after := f.refreshCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, f.refreshCount())
	assert.Empty(t, f.data)
}

func TestRedis_ReleaseErrorIsLogged(t *testing.T) {
	f := &fakeRedis{data: map[string]string{}}
	var buf bytes.Buffer
	log, err := logging.New("json", &buf)
	require.NoError(t, err)
	l := NewRedis(f, time.Minute, time.Millisecond, log)

	unlock, err := l.TryLock(context.Background(), "u")
	require.NoError(t, err)

	f.mu.Lock()
	f.evalErr = errors.New("connection reset")
	f.mu.Unlock()
	unlock()

	assert.Contains(t, buf.String(), "lock release failed")
	assert.Contains(t, buf.String(), "connection reset")
}

package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRegistry_SupersedesSameClient(t *testing.T) {
	reg := NewRunRegistry(time.Minute)

	oldSink := &recordingSink{}
	oldSession := newTestSession(oldSink, false)
	oldCtx, oldRelease := reg.Start(context.Background(), "tab-1", oldSession)
	defer oldRelease()
	oldID := oldSession.RunID()
	require.NotEmpty(t, oldID)

	newSession := newTestSession(&recordingSink{}, false)
	newCtx, newRelease := reg.Start(context.Background(), "tab-1", newSession)

	assert.True(t, oldSession.Closed())
	assert.ErrorIs(t, context.Cause(oldCtx), ErrRunSuperseded)
	assert.NoError(t, newCtx.Err())
	assert.NotEqual(t, oldID, newSession.RunID())

	// 被取代的会话以唯一的错误帧结束
	require.Len(t, oldSink.events, 1)
	assert.False(t, oldSink.events[0].Success)
	assert.True(t, oldSink.events[0].IsComplete)
	assert.Equal(t, ErrRunSuperseded.Error(), oldSink.events[0].Error)

	// 旧运行的 release 不影响新运行
	oldRelease()
	assert.Equal(t, 1, reg.Active())

	newRelease()
	assert.Equal(t, 0, reg.Active())
	assert.Error(t, newCtx.Err())
}

func TestRunRegistry_DifferentClientsIndependent(t *testing.T) {
	reg := NewRunRegistry(time.Minute)
	a := newTestSession(&recordingSink{}, false)
	b := newTestSession(&recordingSink{}, false)

	_, releaseA := reg.Start(context.Background(), "a", a)
	defer releaseA()
	_, releaseB := reg.Start(context.Background(), "b", b)
	defer releaseB()

	assert.Equal(t, 2, reg.Active())
	assert.False(t, a.Closed())
	assert.False(t, b.Closed())
}

func TestRunRegistry_EmptyClientNeverSupersedes(t *testing.T) {
	reg := NewRunRegistry(time.Minute)
	a := newTestSession(&recordingSink{}, false)
	b := newTestSession(&recordingSink{}, false)

	ctxA, releaseA := reg.Start(context.Background(), "", a)
	ctxB, releaseB := reg.Start(context.Background(), "", b)
	defer releaseB()

	assert.Equal(t, 2, reg.Active())
	assert.False(t, a.Closed())
	assert.False(t, b.Closed())
	assert.NoError(t, ctxA.Err())
	assert.NoError(t, ctxB.Err())

	releaseA()
	assert.Equal(t, 1, reg.Active())
	assert.NoError(t, ctxB.Err())
}

func TestRunRegistry_ResetStuck(t *testing.T) {
	reg := NewRunRegistry(5 * time.Minute)
	base := time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return base }

	sink := &recordingSink{}
	stuck := newTestSession(sink, false)
	ctx, release := reg.Start(context.Background(), "slow", stuck)
	defer release()

	reg.now = func() time.Time { return base.Add(4 * time.Minute) }
	assert.Equal(t, 0, reg.ResetStuck())

	reg.now = func() time.Time { return base.Add(6 * time.Minute) }
	assert.Equal(t, 1, reg.ResetStuck())

	assert.ErrorIs(t, context.Cause(ctx), ErrRunTimeout)
	assert.True(t, stuck.Closed())
	require.Len(t, sink.events, 1)
	assert.False(t, sink.events[0].Success)
	assert.Equal(t, 0, reg.Active())

	// 重置后同一客户端可以立即重试
	retry := newTestSession(&recordingSink{}, false)
	retryCtx, retryRelease := reg.Start(context.Background(), "slow", retry)
	defer retryRelease()
	assert.NoError(t, retryCtx.Err())
}

func TestRunRegistry_Shutdown(t *testing.T) {
	reg := NewRunRegistry(time.Minute)
	sessions := []*StreamSession{
		newTestSession(&recordingSink{}, false),
		newTestSession(&recordingSink{}, false),
	}
	var ctxs []context.Context
	for i, s := range sessions {
		ctx, release := reg.Start(context.Background(), string(rune('a'+i)), s)
		defer release()
		ctxs = append(ctxs, ctx)
	}

	reg.Shutdown()
	for i := range sessions {
		assert.True(t, sessions[i].Closed())
		assert.ErrorIs(t, context.Cause(ctxs[i]), ErrShuttingDown)
	}
	assert.Equal(t, 0, reg.Active())
}

func TestWatchdogInterval(t *testing.T) {
	assert.Equal(t, time.Second, watchdogInterval(2*time.Second))
	assert.Equal(t, time.Minute/5, watchdogInterval(time.Minute))
	assert.Equal(t, 30*time.Second, watchdogInterval(5*time.Minute))
}

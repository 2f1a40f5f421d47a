package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diarysync/model"
)

func scripted[S any](statuses ...S) (FetchFunc[S], *atomic.Int32) {
	var calls atomic.Int32
	return func(context.Context) (S, error) {
		n := int(calls.Add(1)) - 1
		if n >= len(statuses) {
			return statuses[len(statuses)-1], nil
		}
		return statuses[n], nil
	}, &calls
}

func TestPoll_StopsAtTerminal(t *testing.T) {
	fetch, calls := scripted(model.VideoProcessing, model.VideoProcessing, model.VideoReady, model.VideoFailed)

	var got []model.VideoStatus
	for status, err := range Poll(context.Background(), fetch, model.VideoStatus.Terminal, time.Millisecond) {
		require.NoError(t, err)
		got = append(got, status)
	}

	assert.Equal(t, []model.VideoStatus{model.VideoProcessing, model.VideoProcessing, model.VideoReady}, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPoll_BreakStopsFetching(t *testing.T) {
	fetch, calls := scripted(model.VideoProcessing)

	n := 0
	for range Poll(context.Background(), fetch, model.VideoStatus.Terminal, time.Millisecond) {
		n++
		if n == 2 {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPoll_ErrorEndsSequence(t *testing.T) {
	boom := errors.New("offline")
	var calls atomic.Int32
	fetch := func(context.Context) (model.ClipStatus, error) {
		if calls.Add(1) == 2 {
			return "", boom
		}
		return model.ClipExtracting, nil
	}

	var errs []error
	values := 0
	for _, err := range Poll(context.Background(), fetch, model.ClipStatus.Terminal, time.Millisecond) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		values++
	}

	assert.Equal(t, 1, values)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPoll_ContextCancelDuringWait(t *testing.T) {
	fetch, calls := scripted(model.VideoProcessing)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range Poll(ctx, fetch, model.VideoStatus.Terminal, time.Hour) {
		}
	}()

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poll did not stop after cancel")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestPoll_Restartable(t *testing.T) {
	fetch, calls := scripted(model.VideoReady)
	seq := Poll(context.Background(), fetch, model.VideoStatus.Terminal, time.Millisecond)

	for range 2 {
		count := 0
		for range seq {
			count++
		}
		assert.Equal(t, 1, count)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestUntil(t *testing.T) {
	fetch, _ := scripted(model.CompilationPending, model.CompilationProcessing, model.CompilationCompleted)
	ctx := context.Background()

	last, err := Until(ctx, Poll(ctx, fetch, model.CompilationStatus.Terminal, time.Millisecond), model.CompilationStatus.Terminal)
	require.NoError(t, err)
	assert.Equal(t, model.CompilationCompleted, last)
}

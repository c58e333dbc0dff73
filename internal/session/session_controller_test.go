package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/studymate/internal/fsm"
	"github.com/rbright/studymate/internal/ipc"
	"github.com/rbright/studymate/internal/transcript"
)

func TestHandleStatusAndUnknownCommand(t *testing.T) {
	ctrl := NewController(nil, nil, nil, nil, nil)

	status := ctrl.Handle(context.Background(), ipc.Request{Command: "status"})
	require.True(t, status.OK)
	require.Equal(t, string(fsm.StateIdle), status.State)
	require.Equal(t, "0 turns recorded", status.Message)

	unknown := ctrl.Handle(context.Background(), ipc.Request{Command: "definitely-unknown"})
	require.False(t, unknown.OK)
	require.Contains(t, unknown.Error, "unknown command")
}

func TestHandleStopStateGuard(t *testing.T) {
	ctrl := NewController(nil, nil, nil, nil, nil)

	resp := ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "cannot stop from state idle")
}

func TestHandleStopAndTurns(t *testing.T) {
	handle := newFakeHandle()
	opener := &fakeOpener{handle: handle}
	ctrl := NewController(nil, opener, nil, nil, nil)
	require.NoError(t, ctrl.Start(context.Background()))
	opener.callbacks().Turn(transcript.Turn{User: "hello", Model: "hi there"})

	status := ctrl.Handle(context.Background(), ipc.Request{Command: "status"})
	require.Equal(t, string(fsm.StateActive), status.State)
	require.Equal(t, "session-1", status.Session)

	turns := ctrl.Handle(context.Background(), ipc.Request{Command: "turns"})
	require.True(t, turns.OK)
	var decoded []transcript.Turn
	require.NoError(t, json.Unmarshal(turns.Data, &decoded))
	require.Equal(t, []transcript.Turn{{User: "hello", Model: "hi there"}}, decoded)

	stop := ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})
	require.True(t, stop.OK)
	require.Equal(t, string(fsm.StateIdle), stop.State)
	require.Equal(t, "stopped; feedback available", stop.Message)
	require.Equal(t, int32(1), handle.closes.Load())
}

func TestRunStartFailure(t *testing.T) {
	observer := &fakeObserver{}
	ctrl := NewController(nil, &fakeOpener{err: errors.New("start failed")}, nil, observer, nil)

	result := ctrl.Run(context.Background())
	require.Error(t, result.Err)
	require.Equal(t, fsm.StateIdle, result.State)
	require.NotZero(t, result.FinishedAt)
	require.Equal(t, int32(0), observer.stopCues.Load())
	require.Equal(t, int32(1), observer.errorCues.Load())
}

func TestRunWithoutOpener(t *testing.T) {
	result := NewController(nil, nil, nil, nil, nil).Run(context.Background())
	require.ErrorIs(t, result.Err, ErrPipelineUnavailable)
}

func TestRunContextCancelledStops(t *testing.T) {
	handle := newFakeHandle()
	ctrl := NewController(nil, &fakeOpener{handle: handle}, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Run(ctx)
	}()

	waitForState(t, ctrl, fsm.StateActive)
	cancel()

	result := <-resultCh
	require.NoError(t, result.Err)
	require.Equal(t, fsm.StateIdle, result.State)
	require.Equal(t, int32(1), handle.closes.Load())
}

func TestRunEndsOnIPCStop(t *testing.T) {
	opener := &fakeOpener{handle: newFakeHandle()}
	ctrl := NewController(nil, opener, nil, nil, nil)

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Run(context.Background())
	}()

	waitForState(t, ctrl, fsm.StateActive)
	opener.callbacks().Turn(transcript.Turn{User: "u", Model: "m"})
	resp := ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})
	require.True(t, resp.OK)

	select {
	case result := <-resultCh:
		require.True(t, result.FeedbackAvailable)
		require.Equal(t, 1, result.Turns)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after stop")
	}
}

func TestRunEndsOnRemoteClose(t *testing.T) {
	opener := &fakeOpener{handle: newFakeHandle()}
	ctrl := NewController(nil, opener, nil, nil, nil)

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Run(context.Background())
	}()

	waitForState(t, ctrl, fsm.StateActive)
	remoteErr := errors.New("going away")
	opener.callbacks().Closed(remoteErr)

	result := <-resultCh
	require.ErrorIs(t, result.Err, remoteErr)
	require.NotZero(t, result.StartedAt)
	require.False(t, result.FinishedAt.Before(result.StartedAt))
}

//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/llamabridge"
)

func startBridge(t *testing.T, tr llamabridge.Transport, opts ...llamabridge.Option) (*llamabridge.Bridge, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	base := []llamabridge.Option{
		llamabridge.WithModel(modelPath(t)),
		llamabridge.WithTransport(tr),
		llamabridge.WithInMemoryJournal(),
	}

	bridge, err := llamabridge.New(append(base, opts...)...)
	require.NoError(t, err)

	t.Cleanup(func() { _ = bridge.Close() })

	if err := bridge.Start(ctx); err != nil {
		skipIfLlamaNotInstalled(t, err)
		t.Fatalf("Start failed: %v", err)
	}

	go func() { _ = bridge.Run(ctx) }()

	return bridge, ctx
}

// TestBridge_MotionCommand tests the default instruction against a real
// model: the init reply comes first, then a motion code for the request.
func TestBridge_MotionCommand(t *testing.T) {
	tr := newReplyTransport()
	bridge, ctx := startBridge(t, tr)

	initReply := tr.nextReply(t, 2*time.Minute)
	t.Logf("Init reply: %q", initReply)

	_, err := bridge.Dispatch(ctx, "向前走")
	require.NoError(t, err)

	reply := tr.nextReply(t, 2*time.Minute)
	t.Logf("Reply: %q", reply)
	require.True(t, isMotionCode(reply), "expected a motion code, got %q", reply)

	history, err := bridge.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "向前走", history[0].Request)
}

// TestBridge_CloseMidGeneration tests that closing while the model is
// generating returns within the shutdown bound.
func TestBridge_CloseMidGeneration(t *testing.T) {
	tr := newReplyTransport()
	bridge, ctx := startBridge(t, tr,
		llamabridge.WithInitPrompt(""),
		llamabridge.WithMaxTokens(512),
		llamabridge.WithShutdownTimeouts(time.Second, 2*time.Second, 2*time.Second),
	)

	_, err := bridge.Dispatch(ctx, "Write a long story about a robot.")
	require.NoError(t, err)

	time.Sleep(500 * time.Millisecond)

	start := time.Now()
	require.NoError(t, bridge.Close())
	require.Less(t, time.Since(start), 6*time.Second)
	require.False(t, bridge.Alive())
}

// TestBridge_PlainReply tests a request without the init instruction.
func TestBridge_PlainReply(t *testing.T) {
	tr := newReplyTransport()
	bridge, ctx := startBridge(t, tr, llamabridge.WithInitPrompt(""))

	before := bridge.Status()
	require.True(t, before.Alive)
	require.Equal(t, uint64(1), before.Generation)

	_, err := bridge.Dispatch(ctx, "hello")
	require.NoError(t, err)

	reply := tr.nextReply(t, 2*time.Minute)
	require.NotEmpty(t, reply)
}

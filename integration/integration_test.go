//go:build integration

package integration

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wagiedev/llamabridge"
)

// skipIfLlamaNotInstalled skips the test if llama-cli or the model is missing.
func skipIfLlamaNotInstalled(t *testing.T, err error) {
	t.Helper()

	if launchErr, ok := errors.AsType[*llamabridge.LaunchError](err); ok {
		t.Skipf("llama-cli %s not installed", launchErr.Missing)
	}
}

// modelPath returns the model under test or skips.
func modelPath(t *testing.T) string {
	t.Helper()

	model := os.Getenv("LLAMABRIDGE_MODEL")
	if model == "" {
		t.Skip("LLAMABRIDGE_MODEL not set")
	}

	return model
}

// isMotionCode checks if a reply is one of the robot motion codes.
func isMotionCode(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))

	for _, code := range []string{"0x01", "0x02", "0x03", "0x04"} {
		if strings.Contains(s, code) {
			return true
		}
	}

	return false
}

// replyTransport publishes into a channel and serves nothing.
type replyTransport struct {
	replies chan string
	once    sync.Once
	done    chan struct{}
}

func newReplyTransport() *replyTransport {
	return &replyTransport{replies: make(chan string, 16), done: make(chan struct{})}
}

func (r *replyTransport) Serve(ctx context.Context, _ llamabridge.RequestHandler) error {
	select {
	case <-ctx.Done():
	case <-r.done:
	}

	return nil
}

func (r *replyTransport) Publish(_ context.Context, text string) error {
	r.replies <- text

	return nil
}

func (r *replyTransport) Close() error {
	r.once.Do(func() { close(r.done) })

	return nil
}

// nextReply waits for a published reply.
func (r *replyTransport) nextReply(t *testing.T, timeout time.Duration) string {
	t.Helper()

	select {
	case reply := <-r.replies:
		return reply
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a reply")

		return ""
	}
}

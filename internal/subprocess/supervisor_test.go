//go:build !windows

package subprocess

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/llamabridge/internal/channel"
	"github.com/wagiedev/llamabridge/internal/config"
	"github.com/wagiedev/llamabridge/internal/errors"
)

// fakeLlama behaves like interactive llama-cli: banner noise on stdout,
// diagnostics on stderr, and one "reply: <text>" line plus a boundary marker
// per templated prompt. Every stdin line is logged to $FAKE_LLAMA_DIR/<pid>.log.
const fakeLlama = `#!/bin/sh
log="$FAKE_LLAMA_DIR/$$.log"
echo "$@" > "$FAKE_LLAMA_DIR/args"
echo "build: 4589 (fake)"
echo "system_info: n_threads = 4"
echo "loading model" >&2
echo "[INFO] suppressed" >&2
last=""
while IFS= read -r line; do
  echo "$line" >> "$log"
  case "$line" in
    "<|im_start|>assistant") echo "reply: $last"; echo ">" ;;
    "<|im_start|>"*) ;;
    *) last="${line%"<|im_end|>"}" ;;
  esac
done
echo "EOF by user"
`

func skipWithoutShell(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("Test requires a POSIX shell")
	}
}

// newFakeSupervisor writes script as the executable and returns a supervisor
// wired to a fresh channel, plus the directory the script logs into.
func newFakeSupervisor(t *testing.T, script string) (*Supervisor, *channel.ResponseChannel, string) {
	t.Helper()
	skipWithoutShell(t)

	dir := t.TempDir()
	exe := filepath.Join(dir, "llama-cli")
	model := filepath.Join(dir, "model.gguf")

	require.NoError(t, os.WriteFile(exe, []byte(script), 0o755))
	require.NoError(t, os.WriteFile(model, []byte("GGUF"), 0o644))

	t.Setenv("FAKE_LLAMA_DIR", dir)
	t.Setenv("LLAMABRIDGE_SKIP_VERSION_CHECK", "1")

	opts := config.Default()
	opts.Executable = exe
	opts.Model = model
	opts.InitPrompt = "INIT"
	opts.PumpJoinTimeout = 500 * time.Millisecond
	opts.GracefulTimeout = 500 * time.Millisecond
	opts.KillTimeout = 2 * time.Second

	out := channel.New()
	sup := NewSupervisor(slog.Default(), opts, out)

	t.Cleanup(func() {
		_ = sup.Terminate(context.Background())
	})

	return sup, out, dir
}

func popText(t *testing.T, out *channel.ResponseChannel) channel.Unit {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		if u, ok := out.Pop(ctx, 100*time.Millisecond); ok {
			return u
		}

		if ctx.Err() != nil {
			t.Fatal("timed out waiting for a response unit")
		}
	}
}

func TestSupervisor_StartAndRoundTrip(t *testing.T) {
	sup, out, dir := newFakeSupervisor(t, fakeLlama)
	ctx := context.Background()

	require.NoError(t, sup.Start(ctx))
	require.True(t, sup.Alive())
	require.Equal(t, uint64(1), sup.Generation())
	require.Positive(t, sup.PID())

	initReply := popText(t, out)
	require.Equal(t, "reply: INIT", initReply.Text)
	require.Equal(t, uint64(1), initReply.Generation)

	require.NoError(t, sup.Write(ctx, sup.options.Template.Wrap("hello")))
	require.Equal(t, "reply: hello", popText(t, out).Text)

	args, err := os.ReadFile(filepath.Join(dir, "args"))
	require.NoError(t, err)
	require.Equal(t, "-m "+sup.options.Model+" -n 256 --threads 4 -i", strings.TrimSpace(string(args)))

	require.NoError(t, sup.Terminate(ctx))
	require.False(t, sup.Alive())
	require.Zero(t, sup.PID())
}

// TestSupervisor_EnsureAliveIsIdempotent tests that no duplicate process is launched.
func TestSupervisor_EnsureAliveIsIdempotent(t *testing.T) {
	sup, _, _ := newFakeSupervisor(t, fakeLlama)
	ctx := context.Background()

	require.True(t, sup.EnsureAlive(ctx))

	pid := sup.PID()

	for range 3 {
		require.True(t, sup.EnsureAlive(ctx))
		require.NoError(t, sup.Start(ctx))
	}

	require.Equal(t, pid, sup.PID())
	require.Equal(t, uint64(1), sup.Generation())
}

// TestSupervisor_InitPromptOncePerGeneration tests that a restarted process
// receives the initialization prompt again, exactly once.
func TestSupervisor_InitPromptOncePerGeneration(t *testing.T) {
	sup, out, dir := newFakeSupervisor(t, fakeLlama)
	ctx := context.Background()

	require.True(t, sup.EnsureAlive(ctx))
	require.Equal(t, "reply: INIT", popText(t, out).Text)

	firstPID := sup.PID()
	require.NoError(t, syscall.Kill(firstPID, syscall.SIGKILL))

	require.Eventually(t, func() bool { return !sup.Alive() }, 5*time.Second, 10*time.Millisecond)

	require.True(t, sup.EnsureAlive(ctx))
	require.Equal(t, uint64(2), sup.Generation())

	secondPID := sup.PID()
	require.NotEqual(t, firstPID, secondPID)

	u := popText(t, out)
	require.Equal(t, "reply: INIT", u.Text)
	require.Equal(t, uint64(2), u.Generation)

	require.NoError(t, sup.Terminate(ctx))

	for _, pid := range []int{firstPID, secondPID} {
		data, err := os.ReadFile(filepath.Join(dir, strconv.Itoa(pid)+".log"))
		require.NoError(t, err)
		require.Equal(t, 1, strings.Count(string(data), "INIT<|im_end|>"), "pid %d", pid)
	}
}

// TestSupervisor_LaunchFailure tests that a missing executable leaves no
// process and every write reports the process as unavailable.
func TestSupervisor_LaunchFailure(t *testing.T) {
	opts := config.Default()
	opts.Executable = filepath.Join(t.TempDir(), "missing", "llama-cli")
	opts.Model = "model.gguf"

	out := channel.New()
	sup := NewSupervisor(slog.Default(), opts, out)
	ctx := context.Background()

	err := sup.Start(ctx)

	var launchErr *errors.LaunchError
	require.ErrorAs(t, err, &launchErr)
	require.Equal(t, "executable", launchErr.Missing)

	require.False(t, sup.EnsureAlive(ctx))
	require.ErrorIs(t, sup.Write(ctx, "hello\n"), errors.ErrProcessUnavailable)
	require.Zero(t, sup.Generation())
	require.Zero(t, out.Len())
	require.NoError(t, sup.Terminate(ctx))
}

// TestSupervisor_FlushOnExit tests that a reply cut short by process exit is
// still delivered.
func TestSupervisor_FlushOnExit(t *testing.T) {
	sup, out, _ := newFakeSupervisor(t, "#!/bin/sh\necho 'main: build = 1'\necho 'partial line'\n")
	sup.options.InitPrompt = ""

	require.NoError(t, sup.Start(context.Background()))

	u := popText(t, out)
	require.Equal(t, "partial line", u.Text)

	require.Eventually(t, func() bool { return !sup.Alive() }, 5*time.Second, 10*time.Millisecond)
}

// TestSupervisor_TerminateEscalates tests that a process ignoring end of
// input and SIGTERM is killed within the configured bounds.
func TestSupervisor_TerminateEscalates(t *testing.T) {
	script := "#!/bin/sh\ntrap '' TERM\nwhile :; do read -r line || sleep 0.05; done\n"
	sup, _, _ := newFakeSupervisor(t, script)
	sup.options.InitPrompt = ""
	sup.options.GracefulTimeout = 200 * time.Millisecond

	ctx := context.Background()
	require.NoError(t, sup.Start(ctx))

	start := time.Now()
	err := sup.Terminate(ctx)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.False(t, sup.Alive())
	require.GreaterOrEqual(t, elapsed, sup.options.GracefulTimeout)
	require.Less(t, elapsed, sup.options.ShutdownBound())
}

// TestSupervisor_NoRestartAfterTerminate tests that a start waiting on an
// in-progress Terminate does not launch a new process.
func TestSupervisor_NoRestartAfterTerminate(t *testing.T) {
	script := "#!/bin/sh\ntrap '' TERM\nwhile :; do read -r line || sleep 0.05; done\n"
	sup, _, _ := newFakeSupervisor(t, script)
	sup.options.InitPrompt = ""
	sup.options.GracefulTimeout = 300 * time.Millisecond

	ctx := context.Background()
	require.NoError(t, sup.Start(ctx))

	terminated := make(chan error, 1)

	go func() {
		terminated <- sup.Terminate(ctx)
	}()

	require.Eventually(t, func() bool { return !sup.Alive() }, 2*time.Second, 5*time.Millisecond)

	require.False(t, sup.EnsureAlive(ctx))
	require.NoError(t, <-terminated)

	require.ErrorIs(t, sup.Start(ctx), errors.ErrProcessUnavailable)
	require.False(t, sup.Alive())
	require.Zero(t, sup.PID())
	require.Zero(t, sup.Generation())
}

// TestSupervisor_StderrCallback tests that stderr diagnostics reach the
// callback while suppressed lines do not.
func TestSupervisor_StderrCallback(t *testing.T) {
	sup, out, _ := newFakeSupervisor(t, fakeLlama)

	var (
		mu    sync.Mutex
		lines []string
	)

	sup.options.Stderr = func(line string) {
		mu.Lock()
		defer mu.Unlock()

		lines = append(lines, line)
	}

	require.NoError(t, sup.Start(context.Background()))
	popText(t, out)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(lines) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	require.Equal(t, []string{"loading model"}, lines)
}

package subprocess

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/wagiedev/llamabridge/internal/channel"
	"github.com/wagiedev/llamabridge/internal/cli"
	"github.com/wagiedev/llamabridge/internal/config"
	"github.com/wagiedev/llamabridge/internal/errors"
)

// handle is one process generation: a started llama-cli with its pipes and
// pumps. A handle is never reused after it dies.
type handle struct {
	cmd        *exec.Cmd
	pid        int
	generation uint64

	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	alive    atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	pumps    sync.WaitGroup
	done     chan struct{} // closed once cmd.Wait has returned
	exitErr  error
	tail     tailBuffer
	initSent bool // guarded by Supervisor.mu
}

func (h *handle) requestStop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *handle) stopping() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}

// Supervisor owns the llama-cli process. It starts it on demand, restarts it
// after it dies, and terminates it on shutdown. At most one live process
// exists at any time.
type Supervisor struct {
	log        *slog.Logger
	options    *config.Options
	out        *channel.ResponseChannel
	discoverer cli.Discoverer

	mu         sync.Mutex // serializes start and terminate
	terminated bool       // guarded by mu; set once by Terminate
	writeMu    sync.Mutex // serializes writes to stdin
	current    atomic.Pointer[handle]
	generation atomic.Uint64
}

// NewSupervisor creates a supervisor that pushes framed replies into out.
// The process is not started until Start or EnsureAlive is called.
func NewSupervisor(log *slog.Logger, options *config.Options, out *channel.ResponseChannel) *Supervisor {
	log = log.With("component", "supervisor")

	return &Supervisor{
		log:     log,
		options: options,
		out:     out,
		discoverer: cli.NewDiscoverer(&cli.Config{
			Executable: options.Executable,
			Model:      options.Model,
			Logger:     log,
		}),
	}
}

// Start launches the process if none is alive. It returns
// *errors.LaunchError when the executable or model is missing and
// *errors.ProcessError for any other launch failure; in both cases no
// handle is retained. After Terminate it returns errors.ErrProcessUnavailable.
//
// The process outlives ctx. ctx only bounds discovery.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return errors.ErrProcessUnavailable
	}

	if h := s.current.Load(); h != nil {
		if h.alive.Load() {
			return nil
		}

		// Release the dead generation before replacing it.
		s.joinPumps(h)
		s.current.Store(nil)
	}

	path, err := s.discoverer.Discover(ctx)
	if err != nil {
		return err
	}

	h, err := s.launch(path)
	if err != nil {
		s.log.Error("Failed to launch process", "error", err)

		return err
	}

	s.current.Store(h)
	s.log.Info("Process started", "pid", h.pid, "generation", h.generation)

	if err := s.sendInitializationPrompt(ctx, h); err != nil {
		return err
	}

	return nil
}

func (s *Supervisor) launch(path string) (*handle, error) {
	args := cli.BuildArgs(s.options)
	s.log.Debug("Built command arguments", "path", path, "args", args)

	//nolint:gosec // G204: the executable and its arguments come from configuration
	cmd := exec.Command(path, args...)
	cmd.Env = cli.BuildEnvironment()
	cmd.Dir = s.options.Cwd

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &errors.ProcessError{ExitCode: -1, Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()

		return nil, &errors.ProcessError{ExitCode: -1, Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()

		return nil, &errors.ProcessError{ExitCode: -1, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, &errors.ProcessError{ExitCode: -1, Err: fmt.Errorf("start process: %w", err)}
	}

	h := &handle{
		cmd:        cmd,
		pid:        cmd.Process.Pid,
		generation: s.generation.Add(1),
		stdin:      stdin,
		stdout:     stdout,
		stderr:     stderr,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	h.alive.Store(true)

	h.pumps.Go(func() { s.pumpStdout(h) })
	h.pumps.Go(func() { s.pumpStderr(h) })

	go s.monitor(h)

	return h, nil
}

// monitor reaps the process once both pumps have drained their pipes.
func (s *Supervisor) monitor(h *handle) {
	// Reads must complete before Wait closes the pipes.
	// See: https://pkg.go.dev/os/exec#Cmd.StdoutPipe
	h.pumps.Wait()

	err := h.cmd.Wait()

	h.exitErr = err
	h.alive.Store(false)
	close(h.done)

	if h.stopping() {
		s.log.Debug("Process exited during shutdown", "pid", h.pid, "generation", h.generation)

		return
	}

	if err == nil {
		s.log.Warn("Process exited", "pid", h.pid, "generation", h.generation)

		return
	}

	exitCode := -1
	if exitErr, ok := stderrors.AsType[*exec.ExitError](err); ok {
		exitCode = exitErr.ExitCode()
	}

	s.log.Error("Process exited unexpectedly",
		"generation", h.generation,
		"error", &errors.ProcessError{
			ExitCode: exitCode,
			Stderr:   cleanStderr(h.tail.String()),
			Err:      err,
		},
	)
}

// sendInitializationPrompt writes the system instruction once per handle.
// Must be called with s.mu held.
func (s *Supervisor) sendInitializationPrompt(ctx context.Context, h *handle) error {
	if h.initSent || s.options.InitPrompt == "" {
		return nil
	}

	h.initSent = true

	s.log.Debug("Sending initialization prompt", "generation", h.generation)

	return s.write(ctx, h, s.options.Template.Wrap(s.options.InitPrompt))
}

// EnsureAlive reports whether a live process exists, starting one if not.
// It performs no action beyond the check when the process is already alive.
func (s *Supervisor) EnsureAlive(ctx context.Context) bool {
	if s.Alive() {
		return true
	}

	s.log.Info("Process not running, starting")

	if err := s.Start(ctx); err != nil {
		s.log.Warn("Process recovery failed", "error", err)
	}

	return s.Alive()
}

// Write sends data to the live process stdin. data is written as-is; the
// caller is responsible for templating and the trailing newline.
//
// It returns errors.ErrProcessUnavailable without a live process and
// *errors.WriteError when the pipe is broken, in which case the process is
// discarded so the next EnsureAlive restarts it.
func (s *Supervisor) Write(ctx context.Context, data string) error {
	h := s.current.Load()
	if h == nil || !h.alive.Load() {
		return errors.ErrProcessUnavailable
	}

	return s.write(ctx, h, data)
}

func (s *Supervisor) write(ctx context.Context, h *handle, data string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)

	go func() {
		_, err := io.WriteString(h.stdin, data)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			s.log.Warn("Write to process failed, discarding process", "generation", h.generation, "error", err)
			s.invalidate(h)

			return &errors.WriteError{Err: err}
		}

		s.log.Debug("Wrote to process", "generation", h.generation, "bytes", len(data))

		return nil

	case <-ctx.Done():
		// A half-written prompt leaves the process mid-turn; start over.
		s.log.Debug("Context cancelled during write, discarding process")
		s.invalidate(h)

		select {
		case <-done:
		case <-time.After(time.Second):
			s.log.Warn("Write goroutine did not exit after stdin close, potential leak")
		}

		return ctx.Err()
	}
}

// invalidate marks h dead and kills it. The pumps drain what the process
// already wrote and exit on end of stream.
func (s *Supervisor) invalidate(h *handle) {
	h.alive.Store(false)

	_ = h.stdin.Close()

	if h.cmd != nil && h.cmd.Process != nil {
		if err := h.cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
			s.log.Debug("Kill after write failure", "pid", h.pid, "error", err)
		}
	}
}

// joinPumps stops the pumps of h and waits for them, bounded by
// PumpJoinTimeout. Closing the read ends interrupts any blocked read.
func (s *Supervisor) joinPumps(h *handle) bool {
	h.requestStop()

	_ = h.stdout.Close()
	_ = h.stderr.Close()

	joined := make(chan struct{})

	go func() {
		h.pumps.Wait()
		close(joined)
	}()

	select {
	case <-joined:
		return true
	case <-time.After(s.options.PumpJoinTimeout):
		s.log.Warn("Stream pumps did not stop in time", "generation", h.generation, "timeout", s.options.PumpJoinTimeout)

		return false
	}
}

// Terminate stops the pumps, asks the process to exit, and kills it if it
// has not exited within GracefulTimeout. Every step is bounded; failures are
// logged and summarized in the returned error, never retried.
//
// The supervisor is not restartable: later Start and EnsureAlive calls fail.
func (s *Supervisor) Terminate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.terminated = true

	h := s.current.Swap(nil)
	if h == nil {
		return nil
	}

	s.log.Info("Terminating process", "pid", h.pid, "generation", h.generation)

	h.alive.Store(false)
	s.joinPumps(h)

	// Interactive llama-cli exits on end of input.
	_ = h.stdin.Close()

	if s.waitExit(ctx, h, 0) {
		return nil
	}

	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		s.log.Warn("Failed to signal process", "pid", h.pid, "error", err)
	}

	if s.waitExit(ctx, h, s.options.GracefulTimeout) {
		return nil
	}

	s.log.Warn("Process did not exit gracefully, killing", "pid", h.pid, "timeout", s.options.GracefulTimeout)

	if err := h.cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		s.log.Error("Failed to kill process", "pid", h.pid, "error", err)
	}

	if s.waitExit(ctx, h, s.options.KillTimeout) {
		return nil
	}

	s.log.Error("Process did not exit after kill", "pid", h.pid, "timeout", s.options.KillTimeout)

	return fmt.Errorf("process %d did not exit after kill", h.pid)
}

// waitExit waits up to d for the process to be reaped. A zero d only checks.
func (s *Supervisor) waitExit(ctx context.Context, h *handle, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-h.done:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-h.done:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Alive reports whether the current process is running. It never blocks.
func (s *Supervisor) Alive() bool {
	h := s.current.Load()

	return h != nil && h.alive.Load()
}

// PID returns the pid of the current process, or 0 without one.
func (s *Supervisor) PID() int {
	if h := s.current.Load(); h != nil {
		return h.pid
	}

	return 0
}

// Generation returns the generation of the current process, or 0 without one.
// Generations start at 1 and increase with every successful start.
func (s *Supervisor) Generation() uint64 {
	if h := s.current.Load(); h != nil {
		return h.generation
	}

	return 0
}

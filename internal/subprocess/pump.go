package subprocess

import (
	"bufio"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/wagiedev/llamabridge/internal/channel"
	"github.com/wagiedev/llamabridge/internal/errors"
	"github.com/wagiedev/llamabridge/internal/framer"
)

const (
	// maxScanTokenSize is the maximum buffer size for one output line.
	maxScanTokenSize = 1024 * 1024 // 1MB
	// maxStderrTailLines bounds the stderr lines kept for exit diagnostics.
	maxStderrTailLines = 64
)

// readLines scans r line by line and calls fn for each line until the stream
// ends, the read fails, or stop is closed. The stop channel is checked once
// per line, so a read that is already blocked only returns once the pipe is
// closed.
//
// A clean end of stream returns nil. Any other termination is returned as a
// *errors.ReadTerminationError, which callers treat as normal completion.
func readLines(stream string, r io.Reader, stop <-chan struct{}, fn func(line string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		select {
		case <-stop:
			return &errors.ReadTerminationError{Stream: stream, Err: errStopped}
		default:
		}

		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return &errors.ReadTerminationError{Stream: stream, Err: err}
	}

	return nil
}

var errStopped = stderrors.New("stop requested")

// isClosedPipe reports whether err comes from reading a pipe that was
// closed underneath the reader.
func isClosedPipe(err error) bool {
	return stderrors.Is(err, os.ErrClosed) ||
		stderrors.Is(err, io.ErrClosedPipe) ||
		stderrors.Is(err, errStopped)
}

// pumpStdout frames stdout into response units for this generation.
// Whatever is still buffered when the stream ends is flushed as a final unit.
func (s *Supervisor) pumpStdout(h *handle) {
	log := s.log.With("stream", "stdout", "generation", h.generation)

	f := framer.New(framer.Config{
		Marker:     s.options.Marker,
		Noise:      s.options.Noise,
		Delimiters: s.options.Template.Delimiters(),
	}, func(text string) {
		unit := channel.NewUnit(text, h.generation)
		log.Debug("Response unit framed", "unit_id", unit.ID, "text_len", len(text))
		s.out.Push(unit)
	})

	err := readLines("stdout", h.stdout, h.stop, func(line string) {
		if class := f.Feed(line); class == framer.ClassNoise {
			log.Debug("Dropped noise line", "line", line)
		}
	})

	if pending := f.Pending(); pending > 0 {
		log.Debug("Flushing partial reply at end of stream", "lines", pending)
	}

	f.Flush()

	logTermination(log, err)
}

// pumpStderr forwards diagnostics that are not suppressed by the stderr noise
// table. It never produces response units.
func (s *Supervisor) pumpStderr(h *handle) {
	log := s.log.With("stream", "stderr", "generation", h.generation)

	err := readLines("stderr", h.stderr, h.stop, func(line string) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || s.options.StderrNoise.Match(trimmed) {
			return
		}

		h.tail.add(line)
		log.Warn("process stderr", "line", line)

		if s.options.Stderr != nil {
			s.options.Stderr(line)
		}
	})

	logTermination(log, err)
}

func logTermination(log *slog.Logger, err error) {
	switch {
	case err == nil:
		log.Debug("Stream reached end of file")
	case isClosedPipe(err):
		log.Debug("Stream closed", "reason", err)
	default:
		log.Debug("Stream terminated", "error", err)
	}
}

// tailBuffer keeps the most recent stderr lines of one generation.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
}

func (b *tailBuffer) add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.lines) == maxStderrTailLines {
		copy(b.lines, b.lines[1:])
		b.lines = b.lines[:len(b.lines)-1]
	}

	b.lines = append(b.lines, line)
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return strings.Join(b.lines, "\n")
}

// cleanStderr strips llama.cpp loader dumps from captured stderr, keeping the
// lines that explain a failure.
func cleanStderr(stderr string) string {
	if stderr == "" {
		return ""
	}

	var cleaned strings.Builder

	for line := range strings.SplitSeq(stderr, "\n") {
		if isLoaderDumpLine(strings.TrimSpace(line)) {
			continue
		}

		if cleaned.Len() > 0 {
			cleaned.WriteString("\n")
		}

		cleaned.WriteString(line)
	}

	return strings.TrimSpace(cleaned.String())
}

// loaderDumpPrefixes are the per-tensor and per-key metadata listings
// printed while a model loads.
var loaderDumpPrefixes = []string{
	"llama_model_loader: - kv",
	"llama_model_loader: - type",
	"print_info:",
	"load_tensors:",
	"llama_context:",
	"llama_kv_cache",
}

func isLoaderDumpLine(line string) bool {
	if line == "" || line == "." || strings.Trim(line, ".") == "" {
		return true
	}

	for _, p := range loaderDumpPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}

	return false
}

package framer

import (
	"regexp"
	"strings"
)

// DefaultMarker is the character llama-cli prints when it hands control back
// to the user, closing one generated reply.
const DefaultMarker = ">"

// Class is the classification of one output line.
type Class int

const (
	// ClassEmpty is a blank line; it never changes state.
	ClassEmpty Class = iota
	// ClassNoise is diagnostic or banner output.
	ClassNoise
	// ClassBoundary closes the reply being assembled.
	ClassBoundary
	// ClassContent is part of the reply being assembled.
	ClassContent
)

func (c Class) String() string {
	switch c {
	case ClassNoise:
		return "noise"
	case ClassBoundary:
		return "boundary"
	case ClassContent:
		return "content"
	default:
		return "empty"
	}
}

// Config configures a Framer.
type Config struct {
	// Marker is the boundary prefix. Defaults to DefaultMarker.
	Marker string
	// Noise is the table of discarded lines.
	Noise Rules
	// Delimiters are chat-template tokens stripped from finalized replies.
	Delimiters []string
}

// Framer turns raw stdout lines into finalized reply texts.
//
// A Framer is not safe for concurrent use; it is owned by the stdout pump.
type Framer struct {
	marker     string
	noise      Rules
	delimiters []string
	lines      []string
	emit       func(text string)
}

// New creates a Framer that calls emit for each non-empty finalized reply.
func New(cfg Config, emit func(text string)) *Framer {
	marker := cfg.Marker
	if marker == "" {
		marker = DefaultMarker
	}

	return &Framer{
		marker:     marker,
		noise:      cfg.Noise,
		delimiters: cfg.Delimiters,
		emit:       emit,
	}
}

// Classify reports how a raw line would be treated, without changing state.
func (f *Framer) Classify(raw string) Class {
	line := strings.TrimSpace(raw)

	switch {
	case f.noise.Match(line):
		return ClassNoise
	case strings.HasPrefix(line, f.marker):
		return ClassBoundary
	case line != "":
		return ClassContent
	default:
		return ClassEmpty
	}
}

// Feed processes one raw line and returns its classification.
func (f *Framer) Feed(raw string) Class {
	line := strings.TrimSpace(raw)
	class := f.Classify(line)

	switch class {
	case ClassBoundary:
		if rest := strings.TrimSpace(line[len(f.marker):]); rest != "" {
			f.lines = append(f.lines, rest)
		}

		f.finalize()
	case ClassContent:
		f.lines = append(f.lines, line)
	}

	return class
}

// Flush finalizes whatever has been buffered. It is called when the stream
// ends so a reply cut short by process exit is still delivered.
func (f *Framer) Flush() {
	f.finalize()
}

// Pending returns the number of buffered content lines.
func (f *Framer) Pending() int {
	return len(f.lines)
}

func (f *Framer) finalize() {
	if len(f.lines) == 0 {
		return
	}

	text := Clean(f.lines, f.delimiters)
	f.lines = f.lines[:0]

	if text != "" && f.emit != nil {
		f.emit(text)
	}
}

var blankLines = regexp.MustCompile(`\n\s*\n`)

// Clean joins buffered lines and removes chat delimiters and blank lines.
func Clean(lines []string, delimiters []string) string {
	text := strings.TrimSpace(strings.Join(lines, "\n"))

	for _, d := range delimiters {
		if d != "" {
			text = strings.ReplaceAll(text, d, "")
		}
	}

	text = strings.TrimSpace(text)
	text = blankLines.ReplaceAllString(text, "\n")

	return strings.TrimSpace(text)
}

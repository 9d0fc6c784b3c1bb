package cli

import (
	"os"
	"strconv"

	"github.com/wagiedev/llamabridge/internal/config"
)

// BuildArgs constructs the llama-cli arguments for a persistent interactive
// session.
func BuildArgs(options *config.Options) []string {
	args := []string{
		"-m", options.Model,
		"-n", strconv.Itoa(options.MaxTokens),
		"--threads", strconv.Itoa(options.Threads),
		// Interactive mode keeps reading stdin across turns.
		"-i",
	}

	return append(args, options.ExtraArgs...)
}

// BuildEnvironment constructs the environment for the process.
func BuildEnvironment() []string {
	env := os.Environ()

	// ANSI color codes would end up inside framed replies.
	return append(env, "NO_COLOR=1")
}

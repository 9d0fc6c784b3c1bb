package cli

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wagiedev/llamabridge/internal/errors"
)

const (
	// MinimumBuild is the oldest llama.cpp build number the bridge is tested against.
	MinimumBuild = 3500

	// VersionCheckTimeout is the timeout for the --version probe.
	VersionCheckTimeout = 2 * time.Second
)

// Config holds configuration for executable discovery.
type Config struct {
	// Executable is a path or a bare binary name. A path containing a
	// separator is used as-is; a bare name is searched in PATH and common
	// locations.
	Executable string

	// Model is the model artifact that must exist before launch.
	Model string

	// SkipVersionCheck skips the build number probe.
	// Can also be controlled via LLAMABRIDGE_SKIP_VERSION_CHECK env var.
	SkipVersionCheck bool

	// Logger is an optional logger for discovery operations.
	// If nil, a default no-op logger is used.
	Logger *slog.Logger
}

// Discoverer locates the executable and the model artifact.
type Discoverer interface {
	// Discover returns the absolute path of the executable after checking
	// that the model exists. Returns *errors.LaunchError when either is missing.
	Discover(ctx context.Context) (string, error)
}

// discoverer implements the Discoverer interface.
type discoverer struct {
	cfg *Config
	log *slog.Logger
}

// Compile-time verification that discoverer implements Discoverer.
var _ Discoverer = (*discoverer)(nil)

// NewDiscoverer creates a new discoverer with the given configuration.
func NewDiscoverer(cfg *Config) Discoverer {
	if cfg == nil {
		cfg = &Config{}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}

	return &discoverer{
		cfg: cfg,
		log: log,
	}
}

// Discover locates the executable and verifies the model file.
func (d *discoverer) Discover(ctx context.Context) (string, error) {
	d.log.Debug("Discovering llama-cli executable", "executable", d.cfg.Executable)

	path, err := d.findExecutable()
	if err != nil {
		d.log.Error("Failed to find executable", "error", err)

		return "", err
	}

	if err := d.checkModel(); err != nil {
		d.log.Error("Failed to find model", "error", err)

		return "", err
	}

	d.log.Debug("Found executable", "path", path, "model", d.cfg.Model)

	d.checkVersion(ctx, path)

	return path, nil
}

// findExecutable locates the llama-cli binary.
func (d *discoverer) findExecutable() (string, error) {
	name := d.cfg.Executable
	if name == "" {
		name = "llama-cli"
	}

	// Explicit path: use it and only it
	if strings.ContainsRune(name, os.PathSeparator) || filepath.IsAbs(name) {
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			return name, nil
		}

		return "", &errors.LaunchError{Missing: "executable", SearchedPaths: []string{name}}
	}

	searchedPaths := make([]string, 0, 4)

	if path, err := exec.LookPath(name); err == nil {
		d.log.Debug("Found executable in PATH", "path", path)

		return path, nil
	}

	searchedPaths = append(searchedPaths, "$PATH")

	commonPaths := []string{
		filepath.Join("/usr/local/bin", name),
		filepath.Join("/usr/bin", name),
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		commonPaths = append(commonPaths,
			filepath.Join(homeDir, ".local/bin", name),
			filepath.Join(homeDir, "llama.cpp/build/bin", name),
		)
	}

	for _, path := range commonPaths {
		searchedPaths = append(searchedPaths, path)

		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			d.log.Debug("Found executable at common path", "path", path)

			return path, nil
		}
	}

	d.log.Warn("Executable not found in any searched paths", "searched_paths", searchedPaths)

	return "", &errors.LaunchError{Missing: "executable", SearchedPaths: searchedPaths}
}

func (d *discoverer) checkModel() error {
	if d.cfg.Model == "" {
		return &errors.LaunchError{Missing: "model", SearchedPaths: []string{}}
	}

	info, err := os.Stat(d.cfg.Model)
	if err != nil || info.IsDir() {
		return &errors.LaunchError{Missing: "model", SearchedPaths: []string{d.cfg.Model}}
	}

	return nil
}

var buildPattern = regexp.MustCompile(`version:\s*([0-9]+)`)

// checkVersion logs a warning when the build is older than MinimumBuild.
// Probe failures are ignored.
func (d *discoverer) checkVersion(ctx context.Context, path string) {
	if d.cfg.SkipVersionCheck {
		d.log.Debug("Skipping version check (configured)")

		return
	}

	if os.Getenv("LLAMABRIDGE_SKIP_VERSION_CHECK") != "" {
		d.log.Debug("Skipping version check (LLAMABRIDGE_SKIP_VERSION_CHECK set)")

		return
	}

	ctx, cancel := context.WithTimeout(ctx, VersionCheckTimeout)
	defer cancel()

	// llama-cli prints its version banner on stderr.
	output, err := exec.CommandContext(ctx, path, "--version").CombinedOutput()
	if err != nil {
		d.log.Debug("Version check failed", "error", err)

		return
	}

	build, ok := parseBuild(string(output))
	if !ok {
		d.log.Debug("Could not parse build number", "output", strings.TrimSpace(string(output)))

		return
	}

	if build < MinimumBuild {
		d.log.Warn("llama.cpp build is older than tested minimum",
			"build", build,
			"minimum", MinimumBuild,
		)
	} else {
		d.log.Debug("Version check passed", "build", build)
	}
}

// parseBuild extracts the build number from "version: 4589 (abc123)".
func parseBuild(output string) (int, bool) {
	match := buildPattern.FindStringSubmatch(output)
	if match == nil {
		return 0, false
	}

	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}

	return n, true
}

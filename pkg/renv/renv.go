// Package renv detects the R installation handed to launched sessions.
package renv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mercator-hq/workbench/pkg/config"
)

var (
	// ErrRNotFound is returned when no R executable can be queried.
	ErrRNotFound = errors.New("R executable not found")

	// ErrInvalidHome is returned when the reported R_HOME is unusable.
	ErrInvalidHome = errors.New("invalid R home")
)

// Runner executes path with args and returns its standard output.
type Runner func(ctx context.Context, path string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, path string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, path, args...).Output()
}

// Environment is the detected R environment.
type Environment struct {
	Home          string
	ShareDir      string
	IncludeDir    string
	DocDir        string
	LdLibraryPath string
}

// Vars returns the environment as sorted KEY=value entries.
func (e *Environment) Vars() []string {
	vars := []string{
		"R_HOME=" + e.Home,
		"R_SHARE_DIR=" + e.ShareDir,
		"R_INCLUDE_DIR=" + e.IncludeDir,
		"R_DOC_DIR=" + e.DocDir,
		"LD_LIBRARY_PATH=" + e.LdLibraryPath,
	}
	sort.Strings(vars)
	return vars
}

// Detect locates R_HOME, from the configuration or by running "R RHOME",
// and derives the remaining variables from it.
func Detect(ctx context.Context, cfg config.REnvironmentConfig) (*Environment, error) {
	return DetectWith(ctx, cfg, execRunner)
}

// DetectWith is Detect with an explicit process runner.
func DetectWith(ctx context.Context, cfg config.REnvironmentConfig, run Runner) (*Environment, error) {
	home := cfg.Home
	if home == "" {
		var err error
		if home, err = queryHome(ctx, cfg, run); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(home)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidHome, home)
	}

	env := &Environment{
		Home:       home,
		ShareDir:   firstDir(filepath.Join(home, "share"), "/usr/share/R/share"),
		IncludeDir: firstDir(filepath.Join(home, "include"), "/usr/share/R/include"),
		DocDir:     firstDir(filepath.Join(home, "doc"), "/usr/share/R/doc"),
	}

	libPath := []string{filepath.Join(home, "lib")}
	if cfg.LdLibraryPath != "" {
		libPath = append(libPath, cfg.LdLibraryPath)
	}
	env.LdLibraryPath = strings.Join(libPath, ":")
	return env, nil
}

func queryHome(ctx context.Context, cfg config.REnvironmentConfig, run Runner) (string, error) {
	path := cfg.Path
	if path == "" {
		p, err := exec.LookPath("R")
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrRNotFound, err)
		}
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", ErrRNotFound, path)
	}

	timeout := cfg.DetectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := run(ctx, path, "RHOME")
	if err != nil {
		return "", fmt.Errorf("failed to run %s RHOME: %w", path, err)
	}
	home := strings.TrimSpace(string(out))
	if i := strings.LastIndexByte(home, '\n'); i >= 0 {
		home = strings.TrimSpace(home[i+1:])
	}
	if home == "" {
		return "", fmt.Errorf("%w: %s RHOME printed nothing", ErrInvalidHome, path)
	}
	return home, nil
}

func firstDir(candidates ...string) string {
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return candidates[0]
}

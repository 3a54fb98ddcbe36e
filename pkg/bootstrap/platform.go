package bootstrap

import (
	"context"
	"os"

	"mercator-hq/workbench/pkg/config"
	"mercator-hq/workbench/pkg/renv"
	"mercator-hq/workbench/pkg/system"
)

// Platform is the process-level operating system surface startup uses.
type Platform interface {
	IgnoreSignal(sig os.Signal)
	IgnoreTerminalSignals()
	Daemonize() (detached bool, err error)
	SetUmask(mask int) int
	RealUserIsRoot() bool
	SetFileLimit(n uint64) error
	ChangeWorkingDir(dir string) error
	EnforceRestricted(profile string) error
	TemporarilyDropPriv(user string) (*system.Privileges, error)
	DetectEnvironment(ctx context.Context, cfg config.REnvironmentConfig) (*renv.Environment, error)
}

// SystemPlatform is the real Platform.
type SystemPlatform struct{}

func (SystemPlatform) IgnoreSignal(sig os.Signal)             { system.IgnoreSignal(sig) }
func (SystemPlatform) IgnoreTerminalSignals()                 { system.IgnoreTerminalSignals() }
func (SystemPlatform) Daemonize() (bool, error)               { return system.Daemonize() }
func (SystemPlatform) SetUmask(mask int) int                  { return system.SetUmask(mask) }
func (SystemPlatform) RealUserIsRoot() bool                   { return system.RealUserIsRoot() }
func (SystemPlatform) SetFileLimit(n uint64) error            { return system.SetFileLimit(n) }
func (SystemPlatform) ChangeWorkingDir(dir string) error      { return system.ChangeWorkingDir(dir) }
func (SystemPlatform) EnforceRestricted(profile string) error { return system.EnforceRestricted(profile) }

func (SystemPlatform) TemporarilyDropPriv(user string) (*system.Privileges, error) {
	return system.TemporarilyDropPriv(user)
}

func (SystemPlatform) DetectEnvironment(ctx context.Context, cfg config.REnvironmentConfig) (*renv.Environment, error) {
	return renv.Detect(ctx, cfg)
}

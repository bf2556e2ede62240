package process

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/nerrad567/tracker-core/internal/infrastructure/config"
)

// BridgeName is the process name used for the runtime bridge.
const BridgeName = "openvr-bridge"

// ExitCodeConfig is the sysexits EX_CONFIG code. The bridge exits with it
// when the VR runtime is not installed or its configuration is unusable,
// which a restart cannot fix.
const ExitCodeConfig = 78

// ExitError is an exit cause with an explicit restart decision.
type ExitError struct {
	Err         error
	Code        int
	recoverable bool
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// IsRecoverable implements RecoverableError.
func (e *ExitError) IsRecoverable() bool { return e.recoverable }

// ClassifyBridgeExit marks an EX_CONFIG exit as unrecoverable. Any other
// error is returned unchanged.
func ClassifyBridgeExit(err error) error {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return err
	}
	code := exitErr.ExitCode()
	return &ExitError{Err: err, Code: code, recoverable: code != ExitCodeConfig}
}

// BridgeConfig builds the manager configuration for the runtime bridge.
// health is typically the bridge runtime's freshness check and may be nil.
func BridgeConfig(cfg config.BridgeProcessConfig, health func(ctx context.Context) error) Config {
	c := DefaultConfig(BridgeName, cfg.Binary, cfg.Args)
	if cfg.RestartDelaySeconds > 0 {
		c.RestartDelay = time.Duration(cfg.RestartDelaySeconds) * time.Second
	}
	c.MaxRestartAttempts = cfg.MaxRestartAttempts
	if cfg.HealthCheckInterval > 0 {
		c.HealthCheckInterval = cfg.HealthCheckInterval
	}
	c.HealthCheckFunc = health
	c.ClassifyExit = ClassifyBridgeExit
	return c
}

package runner

import (
	"context"
	"fmt"
	"log"

	"traffic-exp/internal/config"
)

// Handle is a command dispatched to a host.
type Handle interface {
	// Wait blocks until the command exits or ctx is done.
	Wait(ctx context.Context) error
	// Terminate signals the command to stop and does not wait for it.
	Terminate() error
}

// TaskRunner launches commands on emulated hosts. Launch must not block
// on the command itself.
type TaskRunner interface {
	Launch(ctx context.Context, host string, tmpl Template, params Params) (Handle, error)
}

// New builds the runner selected in cfg.
func New(cfg config.RunnerConfig) (TaskRunner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case config.RunnerSSH:
		return NewSSH(cfg.SSHFrontend), nil
	default:
		return NewMininet(cfg.MininetUtil), nil
	}
}

// Cleanup launches every stop template on every host and waits for them.
// Stop commands commonly exit non-zero when nothing is left to kill, so
// only launch failures are returned.
func Cleanup(ctx context.Context, r TaskRunner, hosts []string, cmds Commands, params Params) []error {
	var errs []error
	var handles []Handle
	for _, host := range hosts {
		for _, c := range cmds.All() {
			if c.Stop == "" {
				continue
			}
			h, err := r.Launch(ctx, host, c.Stop, params)
			if err != nil {
				errs = append(errs, fmt.Errorf("cleanup on %s: %w", host, err))
				continue
			}
			handles = append(handles, h)
		}
	}
	for _, h := range handles {
		if err := h.Wait(ctx); err != nil && ctx.Err() != nil {
			log.Printf("cleanup interrupted: %v\n", err)
			break
		}
	}
	return errs
}

package deployer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Restarter restarts the container stack defined in a site directory
type Restarter interface {
	Restart(ctx context.Context, siteDir string) error
}

// ComposeRestarter runs `docker compose down` then `docker compose up -d`
// in the site directory.
type ComposeRestarter struct {
	// Binary defaults to "docker".
	Binary string
	// Timeout bounds both commands together. Zero means only ctx applies.
	Timeout time.Duration
}

func (r ComposeRestarter) Restart(ctx context.Context, siteDir string) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	binary := r.Binary
	if binary == "" {
		binary = "docker"
	}

	for _, args := range [][]string{
		{"compose", "down"},
		{"compose", "up", "-d"},
	} {
		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, binary, args...)
		cmd.Dir = siteDir
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			return fmt.Errorf("%w: %s %s: %s", ErrRestartFailed, binary, strings.Join(args, " "), msg)
		}
	}
	return nil
}

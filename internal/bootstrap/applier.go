package bootstrap

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Applier writes one configuration key to the external store. Each call is a
// single atomic write; there is no batching or transaction across keys.
type Applier interface {
	Apply(ctx context.Context, key, value string) error
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(ctx context.Context, key, value string) error

func (f ApplierFunc) Apply(ctx context.Context, key, value string) error {
	return f(ctx, key, value)
}

// CLIApplier shells out to the external configuration tool, one invocation
// per key: `<tool> config set <key> <value>`.
type CLIApplier struct {
	Tool string
}

func (a CLIApplier) Apply(ctx context.Context, key, value string) error {
	if strings.TrimSpace(a.Tool) == "" {
		return fmt.Errorf("apply %s: no config tool configured", key)
	}
	// #nosec G204 -- tool and keys come from operator configuration
	cmd := exec.CommandContext(ctx, a.Tool, "config", "set", key, value)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s config set %s: %w: %s", a.Tool, key, err, strings.TrimSpace(string(out)))
	}
	return nil
}

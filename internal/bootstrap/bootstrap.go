// Package bootstrap runs the one-shot configuration sequence before the
// supervisor takes over: credential validation, first-boot seeding, catalog
// resolution, and atomic key writes to the external configuration store.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/eigenclaw/warden/internal/catalog"
)

// CredentialEnv is the environment variable that must carry the provider API
// key. The value is only checked for presence, never logged.
const CredentialEnv = "EIGENCLOUD_API_KEY"

// ErrMissingCredential means the container was launched without the provider
// key; bootstrap refuses to proceed rather than configure a dead agent.
var ErrMissingCredential = errors.New(CredentialEnv + " is not set")

const firstBootMarker = ".warden-seeded"

// Configuration keys written during bootstrap.
const (
	KeyProviderBaseURL = "provider.base_url"
	KeyProviderModel   = "provider.model"
	KeyAgentNetwork    = "agent.network"
	KeyAgentBindMode   = "agent.bind_mode"
)

// Bootstrapper applies the one-shot configuration. Fields are plain values so
// callers (and tests) assemble it directly.
type Bootstrapper struct {
	StateDir   string          // holds the first-boot marker
	CatalogURL string          // remote catalog location; empty means static only
	Catalog    *catalog.Client // optional; built from CatalogURL when nil
	Applier    Applier
	Network    string // public network label, e.g. mainnet
	Log        *slog.Logger
}

// Run executes the full sequence. It is safe to re-run: the first-boot seed
// only applies once, and every other write is an idempotent key set.
func (b *Bootstrapper) Run(ctx context.Context) error {
	if b.Log == nil {
		b.Log = slog.Default()
	}
	if b.Applier == nil {
		return errors.New("bootstrap: no applier configured")
	}
	if err := RequireCredential(); err != nil {
		return err
	}

	if err := b.seedFirstBoot(ctx); err != nil {
		return fmt.Errorf("first-boot seed: %w", err)
	}

	cat := b.resolveCatalog(ctx)
	entry, ok := cat.Default()
	if !ok {
		return errors.New("bootstrap: catalog resolved to zero models")
	}

	// Atomic key writes: one Apply call per key, each a single write in the
	// external store.
	writes := []struct{ key, value string }{
		{KeyProviderBaseURL, entry.BaseURL},
		{KeyProviderModel, entry.Name},
	}
	for _, w := range writes {
		if err := b.Applier.Apply(ctx, w.key, w.value); err != nil {
			return fmt.Errorf("apply %s: %w", w.key, err)
		}
	}
	b.Log.Info("bootstrap complete",
		slog.String("model", entry.Name),
		slog.String("base_url", entry.BaseURL))
	return nil
}

// RequireCredential validates the provider credential is present.
func RequireCredential() error {
	if os.Getenv(CredentialEnv) == "" {
		return ErrMissingCredential
	}
	return nil
}

// seedFirstBoot applies defaults exactly once per container volume, tracked
// by a marker file in StateDir.
func (b *Bootstrapper) seedFirstBoot(ctx context.Context) error {
	if b.StateDir == "" {
		return nil
	}
	marker := filepath.Join(b.StateDir, firstBootMarker)
	if _, err := os.Stat(marker); err == nil {
		return nil
	}
	network := b.Network
	if network == "" {
		network = "mainnet"
	}
	seeds := []struct{ key, value string }{
		{KeyAgentNetwork, network},
		{KeyAgentBindMode, "0.0.0.0"},
	}
	for _, s := range seeds {
		if err := b.Applier.Apply(ctx, s.key, s.value); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(b.StateDir, 0o750); err != nil {
		return err
	}
	if err := os.WriteFile(marker, []byte("seeded\n"), 0o600); err != nil {
		return err
	}
	b.Log.Info("first-boot configuration seeded", slog.String("network", network))
	return nil
}

// resolveCatalog fetches the remote catalog, falling back to the static one
// on any failure. Fallback is a warning, never an error: the static catalog
// is always sufficient to boot.
func (b *Bootstrapper) resolveCatalog(ctx context.Context) catalog.Catalog {
	client := b.Catalog
	if client == nil && b.CatalogURL != "" {
		client = catalog.NewClient(b.CatalogURL, 0)
	}
	if client == nil {
		return catalog.Static()
	}
	cat, err := client.Fetch(ctx)
	if err != nil {
		b.Log.Warn("catalog fetch failed, using static catalog", slog.String("error", err.Error()))
		return catalog.Static()
	}
	return cat
}

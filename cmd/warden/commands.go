package main

import (
	"context"
	cryptotls "crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/eigenclaw/warden/internal/bootstrap"
	"github.com/eigenclaw/warden/internal/config"
	"github.com/eigenclaw/warden/internal/gatewayproc"
	"github.com/eigenclaw/warden/internal/health"
	"github.com/eigenclaw/warden/internal/history"
	histsqlite "github.com/eigenclaw/warden/internal/history/sqlite"
	"github.com/eigenclaw/warden/internal/logger"
	"github.com/eigenclaw/warden/internal/metrics"
	"github.com/eigenclaw/warden/internal/server"
	"github.com/eigenclaw/warden/internal/supervisor"
	admintls "github.com/eigenclaw/warden/internal/tls"
	"github.com/eigenclaw/warden/pkg/client"
)

// Bootstrap environment, read here rather than in internal/config because it
// only matters for the one-shot phase.
const (
	envConfigTool = "WARDEN_CONFIG_TOOL"
	envCatalogURL = "WARDEN_CATALOG_URL"
	envStateDir   = "WARDEN_STATE_DIR"
	envNetwork    = "NETWORK_PUBLIC"

	defaultConfigTool = "agentctl"
	defaultStateDir   = "/var/lib/warden"

	// historyBuffer bounds the in-memory event log used when no sqlite
	// path is configured.
	historyBuffer = 512
)

func setupLogging(flags *GlobalFlags) {
	format := "text"
	if flags.LogJSON {
		format = "json"
	}
	cfg := logger.Config{Level: flags.LogLevel, Format: format, Color: !flags.LogJSON}
	slog.SetDefault(cfg.NewSlogger())
}

// RunFlags holds flags for the run command.
type RunFlags struct {
	SkipBootstrap bool
}

func createRunCommand(globalFlags *GlobalFlags) *cobra.Command {
	runFlags := &RunFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Bootstrap configuration and supervise the gateway",
		Long: `Run the container entrypoint: apply one-shot provider configuration,
then spawn and supervise the gateway subprocess indefinitely.

The process exits non-zero only when configuration is invalid, bootstrap
fails, or the very first gateway spawn is impossible. Every later failure
is absorbed by the restart loop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(globalFlags)
			return runSupervisor(globalFlags, runFlags)
		},
	}

	cmd.Flags().BoolVar(&runFlags.SkipBootstrap, "skip-bootstrap", false, "skip the one-shot configuration phase")
	return cmd
}

func runSupervisor(globalFlags *GlobalFlags, runFlags *RunFlags) error {
	cfg, err := config.Load(globalFlags.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if !runFlags.SkipBootstrap {
		if err := runBootstrap(context.Background()); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	store, closeStore, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	outW, errW, err := logger.GatewayWriters(cfg.LogDir, "gateway")
	if err != nil {
		return err
	}
	if outW != nil {
		defer func() { _ = outW.Close() }()
	}
	if errW != nil {
		defer func() { _ = errW.Close() }()
	}

	argv := cfg.GatewayArgs()
	spawner := supervisor.SpawnerFunc(func() (supervisor.Gateway, error) {
		var stdout, stderr io.Writer
		if outW != nil {
			stdout, stderr = outW, errW
		}
		return gatewayproc.Start(argv, cfg.Env, stdout, stderr)
	})
	prober := health.NewHTTPProber(cfg.HealthURL(), cfg.ProbeTimeout)

	sup := supervisor.New(cfg, spawner, prober)
	sup.SetSink(store)

	var tlsConf *cryptotls.Config
	if cfg.AdminTLSDir != "" {
		tlsConf, err = admintls.Serving(cfg.AdminTLSDir)
		if err != nil {
			return fmt.Errorf("admin tls: %w", err)
		}
	}
	admin := server.NewServer(cfg.AdminAddr, tlsConf, sup, store)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = admin.Shutdown(shutdownCtx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("warden starting",
		slog.Int("port", cfg.Port),
		slog.Duration("grace", cfg.GracePeriod),
		slog.Duration("poll", cfg.PollInterval),
		slog.Duration("backoff", cfg.Backoff))
	return sup.Run(ctx)
}

// openHistory returns the configured event store: sqlite when a path is set,
// otherwise a bounded in-memory log so the admin /history endpoint works.
func openHistory(cfg config.Supervisor) (history.Store, func(), error) {
	if cfg.HistoryPath == "" {
		return history.NewMemorySink(historyBuffer), func() {}, nil
	}
	db, err := histsqlite.Open(cfg.HistoryPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("history schema: %w", err)
	}
	return db, func() { _ = db.Close() }, nil
}

func createBootstrapCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Apply one-shot provider configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(globalFlags)
			return runBootstrap(cmd.Context())
		},
	}
}

func runBootstrap(ctx context.Context) error {
	tool := os.Getenv(envConfigTool)
	if tool == "" {
		tool = defaultConfigTool
	}
	stateDir := os.Getenv(envStateDir)
	if stateDir == "" {
		stateDir = defaultStateDir
	}
	b := &bootstrap.Bootstrapper{
		StateDir:   stateDir,
		CatalogURL: os.Getenv(envCatalogURL),
		Applier:    bootstrap.CLIApplier{Tool: tool},
		Network:    os.Getenv(envNetwork),
		Log:        slog.Default(),
	}
	return b.Run(ctx)
}

// AdminFlags holds flags shared by commands that query the admin endpoint.
type AdminFlags struct {
	Addr     string
	Timeout  time.Duration
	CACert   string
	Insecure bool
}

func (f *AdminFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Addr, "addr", "", "admin address (default from config)")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 5*time.Second, "request timeout")
	cmd.Flags().StringVar(&f.CACert, "cacert", "", "CA certificate for a TLS admin endpoint")
	cmd.Flags().BoolVar(&f.Insecure, "insecure", false, "skip TLS verification (self-signed admin certs)")
}

func (f *AdminFlags) useTLS() bool {
	return f.CACert != "" || f.Insecure
}

func (f *AdminFlags) newClient(fallbackAddr string) (*client.Client, error) {
	addr := f.Addr
	if addr == "" {
		addr = fallbackAddr
	}
	conf := client.Config{
		BaseURL: adminURL(addr, f.useTLS()),
		Timeout: f.Timeout,
		Logger:  slog.Default(),
	}
	if f.useTLS() {
		conf.TLS = &client.TLSClientConfig{CACert: f.CACert, SkipVerify: f.Insecure}
	}
	return client.New(conf)
}

func createStatusCommand(globalFlags *GlobalFlags) *cobra.Command {
	adminFlags := &AdminFlags{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the supervisor state from the local admin endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			c, err := adminFlags.newClient(cfg.AdminAddr)
			if err != nil {
				return err
			}
			return printStatus(cmd.Context(), cmd.OutOrStdout(), c)
		},
	}

	adminFlags.register(cmd)
	return cmd
}

func printStatus(ctx context.Context, w io.Writer, c *client.Client) error {
	snap, err := c.Status(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func createHistoryCommand(globalFlags *GlobalFlags) *cobra.Command {
	adminFlags := &AdminFlags{}
	limit := 20

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent gateway lifecycle events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			c, err := adminFlags.newClient(cfg.AdminAddr)
			if err != nil {
				return err
			}
			return printHistory(cmd.Context(), cmd.OutOrStdout(), c, limit)
		},
	}

	adminFlags.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum events to fetch")
	return cmd
}

func printHistory(ctx context.Context, w io.Writer, c *client.Client, limit int) error {
	events, err := c.History(ctx, limit)
	if err != nil {
		return err
	}
	for _, ev := range events {
		line := fmt.Sprintf("%s  %-13s pid=%d", ev.OccurredAt.Format(time.RFC3339), ev.Type, ev.PID)
		if ev.Detail != "" {
			line += "  " + ev.Detail
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// adminURL turns a listen address like ":9090" into a loopback URL.
func adminURL(addr string, tls bool) string {
	scheme := "http://"
	if tls {
		scheme = "https://"
	}
	if len(addr) > 0 && addr[0] == ':' {
		return scheme + "127.0.0.1" + addr
	}
	return scheme + addr
}

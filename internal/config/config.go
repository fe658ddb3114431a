package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultPort            = 8080
	DefaultHealthPath      = "/health"
	DefaultGraceSeconds    = 45
	DefaultPollSeconds     = 10
	DefaultBootPollSeconds = 2
	DefaultBackoffSeconds  = 5
	DefaultProbeSeconds    = 3
	DefaultStopWaitSeconds = 5
	DefaultCommand         = "agent-gateway"
	DefaultAdminAddr       = ":9090"
)

// Supervisor holds the immutable runtime configuration for the gateway
// supervisor. It is read once at startup; values come from environment
// variables, optionally merged over a TOML file (environment wins).
type Supervisor struct {
	Port             int
	HealthPath       string
	GracePeriod      time.Duration
	PollInterval     time.Duration
	BootPollInterval time.Duration
	Backoff          time.Duration
	ProbeTimeout     time.Duration
	StopWait         time.Duration
	Command          string
	Env              []string
	AdminAddr        string
	AdminTLSDir      string
	HistoryPath      string
	LogDir           string
}

// GatewayArgs returns argv for spawning the gateway: the configured command
// plus the flags selecting network-bound mode and the target port.
func (c Supervisor) GatewayArgs() []string {
	parts := strings.Fields(c.Command)
	return append(parts, "--bind", "0.0.0.0", "--port", fmt.Sprintf("%d", c.Port))
}

// HealthURL is the liveness endpoint probed by the supervisor. Probes go
// over loopback regardless of the gateway's bind address.
func (c Supervisor) HealthURL() string {
	path := c.HealthPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("http://127.0.0.1:%d%s", c.Port, path)
}

// Load builds the supervisor configuration. path may be empty; when set it
// names a TOML file whose values apply beneath the environment.
func Load(path string) (Supervisor, error) {
	v := viper.New()
	v.SetDefault("port", DefaultPort)
	v.SetDefault("health_path", DefaultHealthPath)
	v.SetDefault("grace_seconds", DefaultGraceSeconds)
	v.SetDefault("poll_seconds", DefaultPollSeconds)
	v.SetDefault("boot_poll_seconds", DefaultBootPollSeconds)
	v.SetDefault("backoff_seconds", DefaultBackoffSeconds)
	v.SetDefault("probe_timeout_seconds", DefaultProbeSeconds)
	v.SetDefault("stop_wait_seconds", DefaultStopWaitSeconds)
	v.SetDefault("command", DefaultCommand)
	v.SetDefault("env", "")
	v.SetDefault("admin_addr", DefaultAdminAddr)
	v.SetDefault("admin_tls_dir", "")
	v.SetDefault("history_path", "")
	v.SetDefault("log_dir", "")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Supervisor{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// Environment bindings. Durations are plain second counts in the
	// environment (GATEWAY_GRACE_SECONDS=45), matching the container contract.
	bindings := map[string]string{
		"port":                  "GATEWAY_PORT",
		"health_path":           "GATEWAY_HEALTH_PATH",
		"grace_seconds":         "GATEWAY_GRACE_SECONDS",
		"poll_seconds":          "GATEWAY_POLL_SECONDS",
		"boot_poll_seconds":     "GATEWAY_BOOT_POLL_SECONDS",
		"backoff_seconds":       "GATEWAY_BACKOFF_SECONDS",
		"probe_timeout_seconds": "GATEWAY_PROBE_TIMEOUT_SECONDS",
		"stop_wait_seconds":     "GATEWAY_STOP_WAIT_SECONDS",
		"command":               "GATEWAY_COMMAND",
		"env":                   "GATEWAY_ENV",
		"admin_addr":            "WARDEN_ADMIN_ADDR",
		"admin_tls_dir":         "WARDEN_ADMIN_TLS_DIR",
		"history_path":          "WARDEN_HISTORY_PATH",
		"log_dir":               "WARDEN_LOG_DIR",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return Supervisor{}, err
		}
	}

	c := Supervisor{
		Port:        v.GetInt("port"),
		HealthPath:  v.GetString("health_path"),
		Command:     v.GetString("command"),
		AdminAddr:   v.GetString("admin_addr"),
		AdminTLSDir: v.GetString("admin_tls_dir"),
		HistoryPath: v.GetString("history_path"),
		LogDir:      v.GetString("log_dir"),
	}

	env, err := parseEnvList(v.GetString("env"))
	if err != nil {
		return Supervisor{}, err
	}
	c.Env = env

	secs := map[string]*time.Duration{
		"grace_seconds":         &c.GracePeriod,
		"poll_seconds":          &c.PollInterval,
		"boot_poll_seconds":     &c.BootPollInterval,
		"backoff_seconds":       &c.Backoff,
		"probe_timeout_seconds": &c.ProbeTimeout,
		"stop_wait_seconds":     &c.StopWait,
	}
	for key, dst := range secs {
		raw := v.GetString(key)
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Supervisor{}, fmt.Errorf("%s must be an integer number of seconds, got %q", key, raw)
		}
		if n < 0 {
			return Supervisor{}, fmt.Errorf("%s must be non-negative, got %d", key, n)
		}
		*dst = time.Duration(n) * time.Second
	}

	if c.Port <= 0 || c.Port > 65535 {
		return Supervisor{}, fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	}
	if strings.TrimSpace(c.Command) == "" {
		return Supervisor{}, fmt.Errorf("command must not be empty")
	}
	return c, nil
}

// parseEnvList parses a comma-separated list of KEY=VALUE entries injected
// into the gateway's environment (GATEWAY_ENV="HF_HOME=/cache,LOG_LEVEL=debug").
func parseEnvList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if i := strings.IndexByte(entry, '='); i <= 0 {
			return nil, fmt.Errorf("env entry %q must be KEY=VALUE", entry)
		}
		out = append(out, entry)
	}
	return out, nil
}

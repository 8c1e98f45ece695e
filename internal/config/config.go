// Package config assembles runtime settings from defaults, an optional TOML file, the
// environment (optionally seeded from a .env file) and command-line flags, in that order.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/joshsymonds/mailsort/internal/llm"
	"github.com/joshsymonds/mailsort/internal/triage"
)

const (
	BackendGmail = "gmail"
	BackendIMAP  = "imap"

	ProviderOllama = "ollama"
	ProviderGemini = "gemini"

	EnvIMAPPassword = "MAILSORT_IMAP_PASSWORD"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvOllamaHost   = "OLLAMA_HOST"
)

// Duration decodes TOML strings such as "90s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	Backend      string   `toml:"backend"`
	AuthDir      string   `toml:"auth_dir"`
	EnvFile      string   `toml:"env_file"`
	PollInterval Duration `toml:"poll_interval"`
	PageSize     int      `toml:"page_size"`
	RPS          int      `toml:"rps"`
	DryRun       bool     `toml:"dry_run"`
	MetricsAddr  string   `toml:"metrics_addr"`

	IMAP   IMAPConfig   `toml:"imap"`
	Model  ModelConfig  `toml:"model"`
	Labels LabelsConfig `toml:"labels"`
	Log    LogConfig    `toml:"log"`
}

type IMAPConfig struct {
	Addr     string `toml:"addr"`
	User     string `toml:"user"`
	Password string `toml:"-"` // environment only
	// StartTLS upgrades a plain connection; when false the server must speak TLS directly.
	StartTLS bool `toml:"starttls"`
	// InsecureSkipVerify is meant for local bridges with self-signed certificates.
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`
}

type ModelConfig struct {
	Provider string   `toml:"provider"`
	Name     string   `toml:"name"`
	Host     string   `toml:"host"`
	Timeout  Duration `toml:"timeout"`
	APIKey   string   `toml:"-"` // environment only
}

type LabelsConfig struct {
	Inbox    string `toml:"inbox"`
	Spam     string `toml:"spam"`
	Trash    string `toml:"trash"`
	Receipts string `toml:"receipts"`
	Shipping string `toml:"shipping"`
	Social   string `toml:"social"`
	Takeaway string `toml:"takeaway"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the built-in settings.
func Default() Config {
	names := triage.DefaultLabelNames()
	return Config{
		Backend:      BackendGmail,
		AuthDir:      os.ExpandEnv("$HOME/.config/mailsort"),
		EnvFile:      ".env",
		PollInterval: Duration{60 * time.Second},
		PageSize:     100,
		RPS:          4,
		IMAP: IMAPConfig{
			Addr:     "127.0.0.1:1143",
			StartTLS: true,
		},
		Model: ModelConfig{
			Provider: ProviderOllama,
			Timeout:  Duration{2 * time.Minute},
		},
		Labels: LabelsConfig{
			Inbox:    names.Inbox,
			Spam:     names.Spam,
			Trash:    names.Trash,
			Receipts: names.Receipts,
			Shipping: names.Shipping,
			Social:   names.Social,
			Takeaway: names.Takeaway,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadFile decodes path over cfg. Keys the file sets but Config does not know are an error.
func LoadFile(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("decode %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// LoadEnv seeds the environment from envFile, when it exists, and copies secrets and
// host overrides into cfg. Variables already set in the process win over the file.
func LoadEnv(envFile string, cfg *Config) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if v := os.Getenv(EnvIMAPPassword); v != "" {
		cfg.IMAP.Password = v
	}
	if v := os.Getenv(EnvGeminiAPIKey); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv(EnvOllamaHost); v != "" && cfg.Model.Host == "" {
		cfg.Model.Host = v
	}
	return nil
}

// Load builds a Config for the named binary: defaults, then the -config file, then the
// environment, then flags given in args. extra registers binary-specific flags; it is
// called once per parse pass and must bind to the same variables each time.
func Load(name string, args []string, extra func(fs *flag.FlagSet)) (Config, error) {
	// First pass only discovers -config; every flag is defined so unknown flags and -h
	// are reported once.
	var path string
	scratch := Default()
	fs := newFlagSet(name, &scratch, &path, extra)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	envFile := cfg.EnvFile
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "env-file" {
			envFile = scratch.EnvFile
		}
	})
	if err := LoadEnv(envFile, &cfg); err != nil {
		return Config{}, err
	}

	// Second pass over the merged values so explicitly given flags override them.
	fs = newFlagSet(name, &cfg, &path, extra)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newFlagSet(name string, cfg *Config, path *string, extra func(*flag.FlagSet)) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(path, "config", "", "path to a TOML config file (optional)")
	cfg.Bind(fs)
	if extra != nil {
		extra(fs)
	}
	return fs
}

// Bind registers flags for cfg's fields, using the current values as defaults.
func (c *Config) Bind(fs *flag.FlagSet) {
	fs.StringVar(&c.Backend, "backend", c.Backend, "mail backend: gmail or imap")
	fs.StringVar(&c.AuthDir, "auth-dir", c.AuthDir, "directory holding credentials.json and token.json")
	fs.StringVar(&c.EnvFile, "env-file", c.EnvFile, "dotenv file with secrets (optional)")
	fs.StringVar(&c.IMAP.Addr, "imap-addr", c.IMAP.Addr, "IMAP server host:port")
	fs.StringVar(&c.IMAP.User, "imap-user", c.IMAP.User, "IMAP user name")
	fs.BoolVar(&c.IMAP.StartTLS, "imap-starttls", c.IMAP.StartTLS, "use STARTTLS instead of implicit TLS")
	fs.BoolVar(&c.IMAP.InsecureSkipVerify, "imap-insecure", c.IMAP.InsecureSkipVerify, "skip IMAP TLS certificate verification")
	fs.StringVar(&c.Model.Provider, "model-provider", c.Model.Provider, "generative backend: ollama or gemini")
	fs.StringVar(&c.Model.Name, "model", c.Model.Name, "model name (provider default when empty)")
	fs.StringVar(&c.Model.Host, "model-host", c.Model.Host, "Ollama host URL")
	fs.DurationVar(&c.Model.Timeout.Duration, "model-timeout", c.Model.Timeout.Duration, "timeout per classifier call")
	fs.DurationVar(&c.PollInterval.Duration, "poll-interval", c.PollInterval.Duration, "interval between event polls")
	fs.IntVar(&c.PageSize, "page-size", c.PageSize, "message list page size")
	fs.IntVar(&c.RPS, "rps", c.RPS, "max backend requests per second (0 disables limiting)")
	fs.BoolVar(&c.DryRun, "dry-run", c.DryRun, "log actions without applying them")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "serve Prometheus metrics on this address (optional)")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "debug, info, warn or error")
	fs.StringVar(&c.Log.Format, "log-format", c.Log.Format, "text or json")
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendGmail:
		if c.AuthDir == "" {
			return errors.New("auth dir must be set for the gmail backend")
		}
	case BackendIMAP:
		if c.IMAP.Addr == "" || c.IMAP.User == "" {
			return errors.New("imap backend needs an address and a user")
		}
		if c.IMAP.Password == "" {
			return fmt.Errorf("imap backend needs %s", EnvIMAPPassword)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	switch c.Model.Provider {
	case ProviderOllama:
	case ProviderGemini:
		if c.Model.APIKey == "" {
			return fmt.Errorf("gemini provider needs %s", EnvGeminiAPIKey)
		}
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	if c.Model.Timeout.Duration <= 0 {
		return errors.New("model timeout must be positive")
	}
	if c.PollInterval.Duration <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.PageSize <= 0 {
		return errors.New("page size must be positive")
	}
	if c.RPS < 0 {
		return errors.New("rps must not be negative")
	}

	for field, name := range map[string]string{
		"inbox":    c.Labels.Inbox,
		"spam":     c.Labels.Spam,
		"trash":    c.Labels.Trash,
		"receipts": c.Labels.Receipts,
		"shipping": c.Labels.Shipping,
		"social":   c.Labels.Social,
		"takeaway": c.Labels.Takeaway,
	} {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("label name %s must not be empty", field)
		}
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// LabelNames converts the configured names for the rule chain.
func (c Config) LabelNames() triage.LabelNames {
	return triage.LabelNames{
		Inbox:    c.Labels.Inbox,
		Spam:     c.Labels.Spam,
		Trash:    c.Labels.Trash,
		Receipts: c.Labels.Receipts,
		Shipping: c.Labels.Shipping,
		Social:   c.Labels.Social,
		Takeaway: c.Labels.Takeaway,
	}
}

// ModelName is the configured model or the provider's default.
func (c Config) ModelName() string {
	if c.Model.Name != "" {
		return c.Model.Name
	}
	if c.Model.Provider == ProviderGemini {
		return llm.DefaultGeminiModel
	}
	return llm.DefaultOllamaModel
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

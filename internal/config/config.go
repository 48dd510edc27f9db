package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dshills/gosight-mcp/internal/cache"
	"github.com/dshills/gosight-mcp/internal/lsp"
	"github.com/dshills/gosight-mcp/internal/workspace"
)

// EnvPrefix prefixes every environment override, e.g. GOSIGHT_LOG_LEVEL
const EnvPrefix = "GOSIGHT"

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the structure of the configuration file
type Config struct {
	DataDir     string          `mapstructure:"data_dir"`
	LogLevel    string          `mapstructure:"log_level"`
	MetricsAddr string          `mapstructure:"metrics_addr"`
	Trace       bool            `mapstructure:"trace"`
	Cache       CacheConfig     `mapstructure:"cache"`
	LSP         LSPConfig       `mapstructure:"lsp"`
	Workspace   WorkspaceConfig `mapstructure:"workspace"`
}

// CacheConfig configures the per-project file cache
type CacheConfig struct {
	MaxEntries int      `mapstructure:"max_entries"`
	Watch      bool     `mapstructure:"watch"`
	Extensions []string `mapstructure:"extensions"`
}

// LSPConfig configures the language server connections
type LSPConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Command          string        `mapstructure:"command"`
	Args             []string      `mapstructure:"args"`
	LanguageID       string        `mapstructure:"language_id"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	RequireAny       []string      `mapstructure:"require_any"`
	RejectAny        []string      `mapstructure:"reject_any"`
}

// WorkspaceConfig configures project sessions
type WorkspaceConfig struct {
	Workers int `mapstructure:"workers"`
}

// Default returns the built-in configuration
func Default() *Config {
	lspDefaults := lsp.DefaultRegistryConfig()
	return &Config{
		DataDir:  defaultDataDir(),
		LogLevel: "info",
		Cache: CacheConfig{
			MaxEntries: cache.DefaultMaxEntries,
			Watch:      true,
			Extensions: []string{".go"},
		},
		LSP: LSPConfig{
			Enabled:          true,
			Command:          lspDefaults.Conn.Command,
			Args:             lspDefaults.Conn.Args,
			LanguageID:       lspDefaults.Conn.LanguageID,
			HandshakeTimeout: lspDefaults.Conn.HandshakeTimeout,
			RequireAny:       lspDefaults.RequireAny,
			RejectAny:        lspDefaults.RejectAny,
		},
		Workspace: WorkspaceConfig{
			Workers: runtime.NumCPU(),
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "gosight")
	}
	return filepath.Join(home, ".gosight")
}

// setDefaults sets all default configuration values
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("trace", d.Trace)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)
	v.SetDefault("cache.watch", d.Cache.Watch)
	v.SetDefault("cache.extensions", d.Cache.Extensions)
	v.SetDefault("lsp.enabled", d.LSP.Enabled)
	v.SetDefault("lsp.command", d.LSP.Command)
	v.SetDefault("lsp.args", d.LSP.Args)
	v.SetDefault("lsp.language_id", d.LSP.LanguageID)
	v.SetDefault("lsp.handshake_timeout", d.LSP.HandshakeTimeout)
	v.SetDefault("lsp.require_any", d.LSP.RequireAny)
	v.SetDefault("lsp.reject_any", d.LSP.RejectAny)
	v.SetDefault("workspace.workers", d.Workspace.Workers)
}

// InitFlags registers the persistent flags that override configuration
func InitFlags(cmd *cobra.Command) {
	d := Default()
	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to a configuration file (YAML or JSON)")
	flags.String("data-dir", d.DataDir, "Directory for caches and the notes database")
	flags.String("log-level", d.LogLevel, "Log level: debug, info, warn or error")
	flags.String("metrics-addr", d.MetricsAddr, "Serve Prometheus metrics on this address (e.g. :9464)")
	flags.Bool("trace", d.Trace, "Write OpenTelemetry spans to stderr")
	flags.Bool("lsp", d.LSP.Enabled, "Use a language server when the project supports it")
	flags.String("lsp-command", d.LSP.Command, "Language server executable")
}

// bindFlags binds the CLI flags to configuration values
func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	flags := cmd.Flags()
	bind := func(key, name string) {
		if f := flags.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
	bind("data_dir", "data-dir")
	bind("log_level", "log-level")
	bind("metrics_addr", "metrics-addr")
	bind("trace", "trace")
	bind("lsp.enabled", "lsp")
	bind("lsp.command", "lsp-command")
}

// Load builds the configuration from defaults, the config file, GOSIGHT_*
// environment variables and flags, in increasing order of precedence. cmd
// may be nil. An explicitly named config file must exist; the default
// location is optional.
func Load(cmd *cobra.Command, cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(defaultDataDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if cmd != nil {
		bindFlags(v, cmd)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is empty", ErrInvalidConfig)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("%w: cache.max_entries must be positive", ErrInvalidConfig)
	}
	for _, ext := range c.Cache.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("%w: cache extension %q must start with a dot", ErrInvalidConfig, ext)
		}
	}
	if c.LSP.Enabled && c.LSP.Command == "" {
		return fmt.Errorf("%w: lsp.command is empty", ErrInvalidConfig)
	}
	if c.LSP.HandshakeTimeout < 0 {
		return fmt.Errorf("%w: lsp.handshake_timeout is negative", ErrInvalidConfig)
	}
	if c.Workspace.Workers < 0 {
		return fmt.Errorf("%w: workspace.workers is negative", ErrInvalidConfig)
	}
	return nil
}

// ParseLevel maps a log level name to a slog.Level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, s)
}

// RegistryConfig returns the language server registry configuration
func (c *Config) RegistryConfig() lsp.RegistryConfig {
	conn := lsp.DefaultConfig()
	conn.Command = c.LSP.Command
	conn.Args = c.LSP.Args
	if c.LSP.LanguageID != "" {
		conn.LanguageID = c.LSP.LanguageID
	}
	if c.LSP.HandshakeTimeout > 0 {
		conn.HandshakeTimeout = c.LSP.HandshakeTimeout
	}
	return lsp.RegistryConfig{
		Conn:       conn,
		RequireAny: c.LSP.RequireAny,
		RejectAny:  c.LSP.RejectAny,
	}
}

// WorkspaceConfig returns the configuration for project sessions
func (c *Config) WorkspaceConfig() workspace.Config {
	wc := workspace.DefaultConfig(c.DataDir)
	wc.MaxEntries = c.Cache.MaxEntries
	if len(c.Cache.Extensions) > 0 {
		wc.Extensions = c.Cache.Extensions
	}
	if c.Workspace.Workers > 0 {
		wc.Workers = c.Workspace.Workers
	}
	return wc
}

// NotesPath returns the location of the notes database
func (c *Config) NotesPath() string {
	return filepath.Join(c.DataDir, "notes.db")
}

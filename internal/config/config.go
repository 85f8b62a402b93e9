// Package config loads seqgen settings from defaults, seqgen.yaml, SEQGEN_
// environment variables and command-line flags, in that order of
// precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	DefaultServerURL    = "http://localhost:5000"
	DefaultMaxUploadMB  = 25
	DefaultExportFormat = "xsq"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultOutput       = "text"
	DefaultCanvasWidth  = 1000
	DefaultCanvasHeight = 80
	EnvPrefix           = "SEQGEN_"
)

var configFileNames = []string{"seqgen.yaml", "seqgen.yml"}

type Config struct {
	ServerURL      string        `koanf:"server_url" json:"server_url" yaml:"server_url"`
	MaxUploadMB    int           `koanf:"max_upload_mb" json:"max_upload_mb" yaml:"max_upload_mb"`
	RequestTimeout time.Duration `koanf:"request_timeout" json:"request_timeout" yaml:"request_timeout"`
	ExportFormat   string        `koanf:"export_format" json:"export_format" yaml:"export_format"`
	StateDir       string        `koanf:"state_dir" json:"state_dir" yaml:"state_dir"`
	DownloadDir    string        `koanf:"download_dir" json:"download_dir" yaml:"download_dir"`
	LogLevel       string        `koanf:"log_level" json:"log_level" yaml:"log_level"`
	LogFormat      string        `koanf:"log_format" json:"log_format" yaml:"log_format"`
	Output         string        `koanf:"output" json:"output" yaml:"output"`
	CanvasWidth    int           `koanf:"canvas_width" json:"canvas_width" yaml:"canvas_width"`
	CanvasHeight   int           `koanf:"canvas_height" json:"canvas_height" yaml:"canvas_height"`

	// FileUsed is the config file that was read, if any.
	FileUsed string `koanf:"-" json:"-" yaml:"-"`
}

// MaxBytes is the per-file upload limit in bytes.
func (c *Config) MaxBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"server_url":      DefaultServerURL,
		"max_upload_mb":   DefaultMaxUploadMB,
		"request_timeout": "0s",
		"export_format":   DefaultExportFormat,
		"state_dir":       defaultStateDir(),
		"download_dir":    ".",
		"log_level":       DefaultLogLevel,
		"log_format":      DefaultLogFormat,
		"output":          DefaultOutput,
		"canvas_width":    DefaultCanvasWidth,
		"canvas_height":   DefaultCanvasHeight,
	}
}

func defaultStateDir() string {
	root, err := os.UserCacheDir()
	if err != nil || strings.TrimSpace(root) == "" {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return filepath.Join(os.TempDir(), "seqgen")
		}
		root = filepath.Join(home, ".cache")
	}
	return filepath.Join(root, "seqgen")
}

func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range configFileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load builds a Config. cfgFile may be empty to search the working
// directory; flags may be nil. Only flags that were set override.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", used, err)
		}
	}

	// SEQGEN_SERVER_URL -> server_url
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			switch key {
			case "server":
				key = "server_url"
			case "timeout":
				key = "request_timeout"
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.FileUsed = used
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.ServerURL = strings.TrimRight(strings.TrimSpace(c.ServerURL), "/")
	c.ExportFormat = strings.ToLower(strings.TrimSpace(c.ExportFormat))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.Output = strings.ToLower(strings.TrimSpace(c.Output))
	c.StateDir = strings.TrimSpace(c.StateDir)
	c.DownloadDir = strings.TrimSpace(c.DownloadDir)
	if c.DownloadDir == "" {
		c.DownloadDir = "."
	}
}

func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.ServerURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("server_url: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("server_url %q must use http or https", c.ServerURL))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("server_url %q has no host", c.ServerURL))
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("max_upload_mb must be positive (got %d)", c.MaxUploadMB))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request_timeout must not be negative (got %s)", c.RequestTimeout))
	}
	if c.CanvasWidth <= 0 || c.CanvasHeight <= 0 {
		errs = append(errs, fmt.Errorf("canvas size must be positive (got %dx%d)", c.CanvasWidth, c.CanvasHeight))
	}
	if c.StateDir == "" {
		errs = append(errs, errors.New("state_dir is required"))
	}
	if c.ExportFormat == "" {
		errs = append(errs, errors.New("export_format is required"))
	}
	if !oneOf(c.LogLevel, "debug", "info", "warn", "error") {
		errs = append(errs, fmt.Errorf("log_level %q must be debug, info, warn or error", c.LogLevel))
	}
	if !oneOf(c.LogFormat, "text", "json") {
		errs = append(errs, fmt.Errorf("log_format %q must be text or json", c.LogFormat))
	}
	if !oneOf(c.Output, "text", "json", "yaml") {
		errs = append(errs, fmt.Errorf("output %q must be text, json or yaml", c.Output))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

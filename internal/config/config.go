// Package config provides layered configuration loading and validation for
// the CLI. Values come from flags, ROBUSTACK_* environment variables, an
// optional config file and defaults, in that order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/code-bush/robustack-dl/internal/types"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "ROBUSTACK"

// Config holds every setting of the CLI. Keys match the flag names.
type Config struct {
	// Session and transport
	CookieName string `mapstructure:"cookie-name"`
	CookieVal  string `mapstructure:"cookie-val"`
	Proxy      string `mapstructure:"proxy" validate:"omitempty,url"`
	Rate       int    `mapstructure:"rate" validate:"min=1,max=100"`
	UseBrowser bool   `mapstructure:"use-browser"`

	// Listing
	URL    string `mapstructure:"url"`
	After  string `mapstructure:"after" validate:"omitempty,datetime=2006-01-02"`
	Before string `mapstructure:"before" validate:"omitempty,datetime=2006-01-02"`
	Limit  int    `mapstructure:"limit" validate:"min=0"`

	// Download
	Output         string `mapstructure:"output"`
	Format         string `mapstructure:"format" validate:"oneof=html md markdown txt text"`
	DryRun         bool   `mapstructure:"dry-run"`
	DownloadImages bool   `mapstructure:"download-images"`
	ImagesDir      string `mapstructure:"images-dir" validate:"required"`
	ImageQuality   string `mapstructure:"image-quality" validate:"oneof=high medium low"`
	DownloadFiles  bool   `mapstructure:"download-files"`
	FilesDir       string `mapstructure:"files-dir" validate:"required"`
	FileExtensions string `mapstructure:"file-extensions"`
	AddSourceURL   bool   `mapstructure:"add-source-url"`
	CreateArchive  bool   `mapstructure:"create-archive"`

	// Audit
	Manifest string `mapstructure:"manifest"`
	Jobs     int    `mapstructure:"jobs" validate:"min=0"`

	// Logging
	Verbose   bool   `mapstructure:"verbose"`
	LogLevel  string `mapstructure:"log-level" validate:"oneof=debug info warn warning error"`
	LogFormat string `mapstructure:"log-format" validate:"oneof=text json"`
	LogFile   string `mapstructure:"log-file"`
}

// Defaults returns the value of every key when nothing else sets it. Every
// key is listed so that viper consults the environment for it.
func Defaults() map[string]any {
	return map[string]any{
		"cookie-name":     "",
		"cookie-val":      "",
		"proxy":           "",
		"rate":            2,
		"use-browser":     false,
		"url":             "",
		"after":           "",
		"before":          "",
		"limit":           0,
		"output":          ".",
		"format":          "html",
		"dry-run":         false,
		"download-images": false,
		"images-dir":      "images",
		"image-quality":   "high",
		"download-files":  false,
		"files-dir":       "files",
		"file-extensions": "",
		"add-source-url":  false,
		"create-archive":  false,
		"manifest":        "manifest.json",
		"jobs":            0,
		"verbose":         false,
		"log-level":       "info",
		"log-format":      "text",
		"log-file":        "",
	}
}

// NewViper returns a viper instance with defaults and environment binding
// configured.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads the optional config file at path into v and returns the
// merged, validated configuration.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields of individual commands
// since those are handled by the commands themselves.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if (c.CookieName == "") != (c.CookieVal == "") {
		return fmt.Errorf("config error: 'cookie-name' and 'cookie-val' must be set together")
	}

	if c.After != "" && c.Before != "" && c.After > c.Before {
		return fmt.Errorf("config error: 'after' (%s) is later than 'before' (%s)", c.After, c.Before)
	}

	return nil
}

// Extensions splits FileExtensions into a cleaned list.
func (c *Config) Extensions() []string {
	var out []string
	for _, ext := range strings.Split(c.FileExtensions, ",") {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

// Filter returns the listing filter.
func (c *Config) Filter() types.Filter {
	return types.Filter{
		After:  c.After,
		Before: c.Before,
		Limit:  c.Limit,
	}
}

// OutputFormat parses Format.
func (c *Config) OutputFormat() (types.OutputFormat, error) {
	return types.ParseOutputFormat(c.Format)
}

// Quality parses ImageQuality.
func (c *Config) Quality() (types.ImageQuality, error) {
	return types.ParseImageQuality(c.ImageQuality)
}

// EffectiveLogLevel is debug when Verbose is set.
func (c *Config) EffectiveLogLevel() string {
	if c.Verbose {
		return "debug"
	}
	return c.LogLevel
}

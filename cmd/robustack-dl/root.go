package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/code-bush/robustack-dl/internal/config"
	"github.com/code-bush/robustack-dl/internal/fetch"
	"github.com/code-bush/robustack-dl/internal/logging"
	"github.com/code-bush/robustack-dl/internal/substack"
)

// app carries the state shared by subcommands of one invocation.
type app struct {
	v          *viper.Viper
	configPath string
	cfg        *config.Config
	log        *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	cmd := &cobra.Command{
		Use:   "robustack-dl",
		Short: "Archive Substack publications with verifiable integrity",
		Long: "robustack-dl downloads the posts of a Substack publication into a local, " +
			"content-addressed archive and audits that archive against its manifest.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	defaults := config.Defaults()
	pf := cmd.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "Path to a YAML, JSON or TOML config file")
	pf.String("cookie-name", "", "Session cookie name for paywalled posts (e.g. substack.sid)")
	pf.String("cookie-val", "", "Session cookie value")
	pf.StringP("proxy", "x", "", "Proxy URL (http, https or socks5)")
	pf.IntP("rate", "r", defaults["rate"].(int), "Maximum requests per second")
	pf.BoolP("verbose", "v", false, "Enable debug logging")
	pf.String("after", "", "Only posts on or after this date (YYYY-MM-DD)")
	pf.String("before", "", "Only posts on or before this date (YYYY-MM-DD)")
	pf.String("log-level", defaults["log-level"].(string), "Log level: debug, info, warn, error")
	pf.String("log-format", defaults["log-format"].(string), "Log format: text or json")
	pf.String("log-file", "", "Write logs to this file with rotation instead of stderr")

	cmd.AddCommand(
		newDownloadCmd(a),
		newListCmd(a),
		newAuditCmd(a),
		newCompletionsCmd(),
		newVersionCmd(),
	)
	return cmd
}

// setup merges flags, environment and config file, then builds the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	cfg, err := config.LoadConfig(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logging.New(logging.Config{
		Level:  cfg.EffectiveLogLevel(),
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

// newClient builds the HTTP client for a publication, scoping the session
// cookie to its host.
func (a *app) newClient(baseURL string) (*fetch.Client, error) {
	opts := fetch.DefaultOptions()
	opts.Proxy = a.cfg.Proxy
	opts.Rate = a.cfg.Rate
	opts.CookieName = a.cfg.CookieName
	opts.CookieValue = a.cfg.CookieVal
	opts.Logger = a.log
	if host := substack.Host(baseURL); host != "" {
		opts.CookieDomains = []string{host}
	}
	return fetch.NewClient(opts)
}

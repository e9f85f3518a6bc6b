package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gleicon/devserve/internal/config"
	"github.com/gleicon/devserve/internal/server"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := serveCmd()
	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flags shared by serve and check
type options struct {
	configPath string
	proxies    []string
}

func (o *options) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&o.configPath, "config", "c", "", "Path to config file (yaml, json or toml)")
	flags.StringArrayVar(&o.proxies, "proxy", nil, "Proxy rule as <path>=<target>, repeatable")
	flags.String("public-path", "/", "URL prefix the content folders are mounted under")
	flags.String("host", "localhost", "Host to listen on")
	flags.IntP("port", "p", 10001, "Port to listen on")
	flags.Bool("history-api-fallback", false, "Serve index.html for unknown paths")
	flags.StringSlice("ext", nil, "Extensions tried after the exact file name, e.g. .html")
	flags.Bool("serve-index", true, "List directories without an index document")
	flags.Bool("compress", false, "Gzip compressible responses")
	flags.Bool("verbose", true, "Log requests and print the startup banner")
}

// viper keys for the flags above
var flagKeys = map[string]string{
	"public-path":          "content_base_public_path",
	"host":                 "host",
	"port":                 "port",
	"history-api-fallback": "history_api_fallback",
	"ext":                  "extensions",
	"serve-index":          "serve_index",
	"compress":             "compress",
	"verbose":              "verbose",
}

// viper builds the configuration source: defaults, then the file, then
// flags that were set explicitly, then positional content folders
func (o *options) viper(cmd *cobra.Command, args []string) (*viper.Viper, error) {
	v, err := config.NewViper(o.configPath)
	if err != nil {
		return nil, err
	}

	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	if len(args) > 0 {
		v.Set("content_base", args)
	}

	return v, nil
}

// apply appends the --proxy rules, which come after the configured ones
func (o *options) apply(cfg *config.Config) error {
	for _, p := range o.proxies {
		path, target, ok := strings.Cut(p, "=")
		if !ok || path == "" || target == "" {
			return fmt.Errorf("invalid proxy rule %q, expected <path>=<target>", p)
		}
		cfg.Proxy = append(cfg.Proxy, config.ProxyConfig{Path: path, Target: target})
	}
	return cfg.Validate()
}

func (o *options) load(cmd *cobra.Command, args []string) (*viper.Viper, *config.Config, error) {
	v, err := o.viper(cmd, args)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	if err := o.apply(cfg); err != nil {
		return nil, nil, err
	}

	return v, cfg, nil
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// serveCmd is the root command
func serveCmd() *cobra.Command {
	var opts options
	var watch bool

	cmd := &cobra.Command{
		Use:   "devserve [content-folder...]",
		Short: "Development server for static sites and single page apps",
		Long: `devserve serves one or more content folders over HTTP, with an
optional history API fallback for client side routing and proxy rules that
forward API calls to a backend.

Examples:
  # Serve the current folder on http://localhost:10001
  devserve

  # Serve dist, then public, with SPA fallback
  devserve dist public --history-api-fallback

  # Forward /api to a backend
  devserve dist --proxy /api/*=http://localhost:3000

  # Use a config file and reload on change
  devserve --config devserve.yaml --watch`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, cfg, err := opts.load(cmd, args)
			if err != nil {
				return err
			}

			logger := newLogger(cfg.Verbose)
			runner := server.NewRunner(server.Options{
				Logger: logger,
				Out:    cmd.OutOrStdout(),
			})

			if err := runner.Start(cfg); err != nil {
				var listenErr *server.ListenError
				if errors.As(err, &listenErr) {
					return fmt.Errorf("%w (is another server running on this port?)", listenErr)
				}
				return err
			}
			runner.HandleSignals()

			if watch {
				if opts.configPath == "" {
					logger.Warn().Msg("--watch needs --config, not watching")
				} else {
					config.Watch(v, func(next *config.Config) {
						if err := opts.apply(next); err != nil {
							logger.Error().Err(err).Msg("ignoring config change")
							return
						}
						reload(runner, next, logger)
					}, func(err error) {
						logger.Error().Err(err).Msg("ignoring config change")
					})
					logger.Info().Str("config", opts.configPath).Msg("watching config")
				}
			}

			<-runner.Done()
			return nil
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Restart the server when the config file changes")

	return cmd
}

// reload swaps the running server. Losing the port on reload is fatal.
func reload(runner *server.Runner, cfg *config.Config, logger zerolog.Logger) {
	err := runner.Reload(cfg)
	if err == nil {
		logger.Info().Msg("configuration reloaded")
		return
	}

	var listenErr *server.ListenError
	if errors.As(err, &listenErr) {
		logger.Error().Err(err).Msg("failed to restart server")
		runner.Stop(context.Background())
		return
	}
	logger.Error().Err(err).Msg("ignoring config change")
}

// checkCmd validates the configuration and prints what would be served
func checkCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "check [content-folder...]",
		Short: "Validate the configuration and print the effective setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := opts.load(cmd, args)
			if err != nil {
				return err
			}

			handler, err := server.NewHandler(cfg, zerolog.Nop())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Listen: %s\n", cfg.Addr())
			fmt.Fprintf(out, "Public path: %s\n", handler.PublicPath())
			fmt.Fprintln(out, "Content folders:")
			for _, root := range handler.Roots() {
				fmt.Fprintf(out, "  %s\n", root)
			}
			if cfg.HistoryAPIFallback.Enabled {
				target := cfg.HistoryAPIFallback.Target
				if target == "" {
					target = handler.PublicPath() + "index.html"
				}
				fmt.Fprintf(out, "History API fallback: %s\n", target)
			}
			if len(cfg.Proxy) > 0 {
				fmt.Fprintln(out, "Proxy rules:")
				for _, p := range cfg.Proxy {
					target := p.Target
					if target == "" {
						target = "(static)"
					}
					fmt.Fprintf(out, "  %s -> %s\n", p.Path, target)
				}
			}
			return nil
		},
	}

	opts.register(cmd)
	return cmd
}

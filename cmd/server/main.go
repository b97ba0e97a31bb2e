package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/lexyo-server/internal/app"
	"github.com/vovakirdan/lexyo-server/internal/auth"
	"github.com/vovakirdan/lexyo-server/internal/config"
	applog "github.com/vovakirdan/lexyo-server/internal/log"
)

type flags struct {
	configPath string
	overrides  config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:          "lexyo-server",
		Short:        "Real-time multi-room chat server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "path to config.yaml (default: $LEXYO_CONFIG_DEFAULT_PATH or ./config.yaml)")
	pf.StringVar(&f.overrides.Addr, "addr", "", "HTTP listen address")
	pf.DurationVar(&f.overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	pf.DurationVar(&f.overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	pf.StringVar(&f.overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&f.overrides.DataDir, "data-dir", "", "directory for history and the room directory")
	pf.StringVar(&f.overrides.Env, "env", "", "dev or prod")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the chat server (default)",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), f)
			},
		},
		newTokenCmd(f),
		newHashKeyCmd(),
	)
	return root
}

func loadConfig(f *flags) (config.Config, *zerolog.Logger, error) {
	bootLogger := applog.New("info", "")
	cfg, path, err := config.Load(bootLogger, f.configPath)
	if err != nil {
		return cfg, bootLogger, err
	}
	cfg.UpdateFrom(f.overrides)

	logger := applog.New(cfg.LogLevel, cfg.LogFile)
	logger.Debug().Str("path", path).Msg("config loaded")
	return cfg, logger, nil
}

func runServe(parent context.Context, f *flags) error {
	cfg, logger, err := loadConfig(f)
	if err != nil {
		logger.Error().Err(err).Msg("load config")
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("init app")
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Str("env", cfg.Env).Msg("starting lexyo server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newTokenCmd(f *flags) *cobra.Command {
	var (
		operator string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the operator API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(f)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Operator.TTL
			}
			tokens := auth.NewService(&auth.JWTConfig{
				Secret: []byte(cfg.Operator.Secret),
				Issuer: cfg.Operator.Issuer,
				TTL:    ttl,
			})
			token, err := tokens.IssueToken(operator)
			if errors.Is(err, auth.ErrDisabled) {
				return errors.New("operator.secret is not configured")
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "", "operator name recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: operator.ttl)")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <key>",
		Short: "Print a bcrypt hash for the admin_key_hash setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

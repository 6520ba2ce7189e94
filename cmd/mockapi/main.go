// Package main serves the in-memory fake of the VM management backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vmdash.io/vmdash/internal/config"
	"vmdash.io/vmdash/internal/mockapi"
	"vmdash.io/vmdash/internal/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		listen     string
		seedFile   string
	)

	cmd := &cobra.Command{
		Use:           "mockapi",
		Short:         "Serve an in-memory VM management backend for development and tests",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			if listen != "" {
				cfg.Mock.Listen = listen
			}
			if seedFile != "" {
				cfg.Mock.SeedFile = seedFile
			}

			srv, err := mockapi.NewFromConfig(cfg.Mock)
			if err != nil {
				return fmt.Errorf("init fake backend: %w", err)
			}
			logger.Info("Starting fake backend",
				zap.String("listen", cfg.Mock.Listen),
				zap.String("seed", cfg.Mock.SeedFile),
			)
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file")
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&seedFile, "seed", "", "Seed YAML file (default: built-in seed)")
	return cmd
}

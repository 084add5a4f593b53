package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"anigiffy/internal/logging"
	"anigiffy/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Paths.APIBind = bind
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return runServer(cmd.Context(), ctx, logger)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Override paths.api_bind")
	return cmd
}

func runServer(parent context.Context, ctx *commandContext, logger *slog.Logger) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if ctx.configSeen {
		logger.Info("configuration loaded", logging.String("path", ctx.configPath))
	}
	d, err := server.NewDaemon(signalCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Start(signalCtx); err != nil {
		return err
	}
	<-signalCtx.Done()
	logger.Info("anigiffy shutting down")
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/zulandar/atelier/internal/bot"
	"github.com/zulandar/atelier/internal/config"
	"github.com/zulandar/atelier/internal/dashboard"
	"github.com/zulandar/atelier/internal/db"
	"github.com/zulandar/atelier/internal/stability"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Discord bot",
		Long:  "Connects to the Discord gateway, registers the /imagine command, and serves generation requests until interrupted. Also starts the dashboard and digest scheduler when enabled in config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "atelier.yaml", "path to Atelier config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	// Best-effort .env load so local deployments match the documented
	// environment contract. A missing file is fine.
	godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return err
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	client, err := stability.NewClient(stability.ClientOpts{
		APIKey:  cfg.Stability.APIKey,
		BaseURL: cfg.Stability.BaseURL,
		Timeout: time.Duration(cfg.Stability.TimeoutSec) * time.Second,
	})
	if err != nil {
		return err
	}

	daemon, err := bot.NewDaemon(bot.DaemonOpts{
		DB:        gormDB,
		Config:    cfg,
		Generator: client,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if cfg.Dashboard.Enabled {
		go func() {
			if err := dashboard.Start(ctx, dashboard.StartOpts{
				DB:   gormDB,
				Port: cfg.Dashboard.Port,
				Out:  out,
			}); err != nil {
				fmt.Fprintf(out, "dashboard error: %v\n", err)
			}
		}()
	}

	fmt.Fprintf(out, "Atelier starting (model: %s, cooldown: %ds, max concurrent: %d)\n",
		cfg.Stability.DefaultModel, cfg.Limits.UserCooldownSec, cfg.Limits.MaxConcurrent)

	if err := daemon.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Fprintln(out, "Atelier stopped.")
	return nil
}

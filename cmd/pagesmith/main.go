// cmd/pagesmith/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/pagesmith/internal/artifacts"
	"github.com/xkilldash9x/pagesmith/internal/assert"
	"github.com/xkilldash9x/pagesmith/internal/browser"
	"github.com/xkilldash9x/pagesmith/internal/config"
	"github.com/xkilldash9x/pagesmith/internal/mcp"
	"github.com/xkilldash9x/pagesmith/internal/observability"
	"github.com/xkilldash9x/pagesmith/internal/tools"
)

// version is stamped by the build.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "pagesmith",
		Short:         "Browser automation tool engine over HTTP",
		Long:          "pagesmith drives one long-lived headless browser session and exposes navigation, interaction, scraping, screenshot and assertion tools over a JSON HTTP API.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the configuration file")

	root.AddCommand(newServeCmd(&cfgFile))
	return root
}

func newServeCmd(cfgFile *string) *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tool engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)
			if *cfgFile != "" {
				v.SetConfigFile(*cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read config %q: %w", *cfgFile, err)
				}
			}
			if cmd.Flags().Changed("listen") {
				v.Set("server.listen_addr", listenAddr)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address, host:port")
	return cmd
}

func runServe(parent context.Context, cfg config.Interface) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	observability.InitializeLogger(cfg.Logger())
	defer observability.Sync()
	logger := observability.GetLogger()
	logger.Info("Starting pagesmith.", zap.String("version", version))

	provider, err := browser.NewPlaywrightProvider(ctx, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize the browser provider: %w", err)
	}
	defer func() {
		if err := provider.Stop(); err != nil {
			logger.Warn("Error stopping the browser provider.", zap.Error(err))
		}
	}()

	session := browser.NewManager(provider, cfg.Browser(), logger)
	registry := tools.NewRegistry(logger)
	if err := tools.RegisterAll(registry, tools.Deps{
		Session: session,
		Assert:  assert.NewEvaluator(cfg.Assert(), logger),
		Shots:   artifacts.NewManager(cfg.Screenshot(), logger),
		Log:     logger,
	}); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	server := mcp.NewServer(cfg.Server(), registry, cfg.Screenshot().Dir, cfg.Screenshot().BaseURL, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		session.RunHeartbeat(gctx)
		return nil
	})
	g.Go(func() error {
		return server.Start(gctx)
	})
	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server().ShutdownTimeout)
	defer cancel()
	if shutdownErr := session.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("Error shutting down the browser session.", zap.Error(shutdownErr))
	}

	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("pagesmith stopped.")
	return nil
}

// Package app wires the gateway together and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mcpgw/internal/infra/config"
	"mcpgw/internal/infra/store"
	"mcpgw/internal/infra/telemetry"
)

type App struct {
	logger *zap.Logger
}

type ServeConfig struct {
	ConfigPath string
}

func New(logger *zap.Logger) *App {
	return &App{logger: logger.Named("app")}
}

// ValidateConfig loads and validates the config file without serving.
func (a *App) ValidateConfig(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	a.logger.Info("configuration is valid",
		zap.String("config", path),
		zap.String("listenAddress", cfg.ListenAddress),
		zap.Int("schemeRoutes", len(cfg.SchemeRoutes)),
	)
	return nil
}

// Serve runs the gateway until the context is cancelled.
func (a *App) Serve(ctx context.Context, serveCfg ServeConfig) error {
	cfg, err := config.Load(serveCfg.ConfigPath)
	if err != nil {
		return err
	}
	a.logger.Info("configuration loaded",
		zap.String("config", serveCfg.ConfigPath),
		zap.String("listenAddress", cfg.ListenAddress),
	)

	presets, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer func() { _ = presets.Close() }()

	runtime, err := NewRuntime(ctx, RuntimeOptions{
		Config:  cfg,
		Presets: presets,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}
	defer runtime.Close()

	server := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: runtime.Router.Routes(),
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		a.logger.Info("gateway listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		return telemetry.StartHTTPServer(groupCtx, telemetry.HTTPServerOptions{
			Addr:          cfg.MetricsAddress,
			EnableMetrics: true,
			EnableHealthz: true,
		}, a.logger)
	})

	if serveCfg.ConfigPath != "" {
		group.Go(func() error {
			err := config.Watch(groupCtx, serveCfg.ConfigPath, a.logger, func(next config.Config) {
				runtime.UpdateSchemeRoutes(next.SchemeRoutes)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return group.Wait()
}

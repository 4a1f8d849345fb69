package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/butp-hub/destination-predictor/config"
	"github.com/butp-hub/destination-predictor/internal/application/command"
	"github.com/butp-hub/destination-predictor/internal/application/query"
	"github.com/butp-hub/destination-predictor/internal/domain/course"
	"github.com/butp-hub/destination-predictor/internal/infrastructure/ingest"
	httpapi "github.com/butp-hub/destination-predictor/internal/interface/http"
	"github.com/butp-hub/destination-predictor/internal/interface/http/handlers"
	"github.com/butp-hub/destination-predictor/pkg/logger"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the evaluation API, stored runs, health and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				app.Config.HTTP.Addr = addr
			}
			return runServe(cmd.Context(), app)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func runServe(ctx context.Context, app *App) error {
	cfg := app.Config
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := app.Logger.With(logger.Operation("serve"))

	bundle, err := app.Loader.Load(cfg.Artifacts.ModelDir)
	if err != nil {
		return err
	}

	var catalog *course.Catalog
	if cfg.HTTP.CatalogPath != "" {
		if catalog, err = ingest.LoadCatalog(cfg.HTTP.CatalogPath, app.slog()); err != nil {
			return err
		}
	}

	store, err := app.openRunStore(ctx, cfg.Database.AutoMigrate)
	if err != nil {
		return err
	}
	defer store.close()

	cache := app.openResultCache(ctx)
	defer cache.close()

	checker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	checker.AddCheck("model", handlers.NewModelCheck(bundle.Version))
	if store.pinger != nil {
		checker.AddCheck("database", handlers.NewPingCheck(store.pinger))
	}
	if cache.pinger != nil {
		checker.AddOptionalCheck("cache", handlers.NewPingCheck(cache.pinger))
	}

	deps := httpapi.Dependencies{
		Catalog:       catalog,
		Bounds:        cfg.Engine.Bounds(),
		WithSearch:    cfg.Engine.WithUniformInverse,
		HealthChecker: checker,
		Logger:        app.Logger,
	}
	if cfg.Features.IsEnabled(config.FeatureEvaluateAPI) {
		deps.Evaluator = command.NewStudentEvaluator(bundle.Model, bundle.Version, cache.cache, app.slog())
	}
	if store.repo != nil {
		deps.GetRun = query.NewGetRunHandler(store.repo)
		deps.GetStudentResult = query.NewGetStudentResultHandler(store.repo)
	}

	httpCfg := httpapi.DefaultConfig()
	httpCfg.Addr = cfg.HTTP.Addr
	if cfg.HTTP.ReadTimeout > 0 {
		httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	}
	if cfg.HTTP.WriteTimeout > 0 {
		httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	}
	if cfg.HTTP.IdleTimeout > 0 {
		httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	}
	httpCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpCfg.EnableMetrics = cfg.Observability.MetricsEnabled

	srv := httpapi.NewServer(httpCfg, deps)
	errCh := srv.StartAsync()

	log.Info("predictor API ready",
		logger.String("addr", httpCfg.Addr),
		logger.ModelVersion(bundle.Version),
		logger.Bool("catalog_loaded", catalog != nil),
		logger.Bool("runs_enabled", store.repo != nil),
		logger.Bool("cache_enabled", cache.cache != nil),
	)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("predictor API stopped")
	return nil
}

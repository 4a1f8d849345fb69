// Package cli implements the predictor command line: batch cohort prediction,
// the evaluation API server, database migrations and cache maintenance.
package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/butp-hub/destination-predictor/config"
	"github.com/butp-hub/destination-predictor/internal/infrastructure/artifacts"
	"github.com/butp-hub/destination-predictor/pkg/logger"
)

// App holds what every subcommand shares. Nil fields are filled from the
// configuration before a command runs, so tests can inject their own.
type App struct {
	Config *config.Config
	Logger *logger.Logger
	Loader *artifacts.Loader

	// Out receives command summaries; logs go to the logger.
	Out io.Writer
}

// NewRootCmd creates the top-level "predictor" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "predictor",
		Short:         "Predict student destinations and the uniform score needed to reach each",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd, configPath)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv(config.ConfigFileEnv),
		"YAML configuration file (env PREDICTOR_CONFIG)")

	root.AddCommand(
		newPredictCmd(app),
		newServeCmd(app),
		newMigrateCmd(app),
		newCacheCmd(app),
	)

	return root
}

func (a *App) init(cmd *cobra.Command, configPath string) error {
	if a.Config == nil {
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		a.Config = cfg
	}
	if a.Logger == nil {
		a.Logger = SetupLogger(a.Config, cmd.ErrOrStderr())
	}
	if a.Loader == nil {
		a.Loader = artifacts.NewLoader(a.slog())
	}
	if a.Out == nil {
		a.Out = cmd.OutOrStdout()
	}
	return nil
}

func (a *App) slog() *slog.Logger {
	return a.Logger.Slog()
}

// SetupLogger builds the process logger: text in development, JSON in
// production or when configured. It also becomes the slog default.
func SetupLogger(cfg *config.Config, w io.Writer) *logger.Logger {
	level := logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		level = logger.LevelDebug
	}

	format := cfg.Observability.LogFormat
	if cfg.IsProduction() {
		format = "json"
	}

	l := logger.New(logger.Options{Output: w, Level: level, Format: format}).
		With(logger.String("app", cfg.App.Name), logger.String("env", string(cfg.App.Environment)))
	slog.SetDefault(l.Slog())
	return l
}

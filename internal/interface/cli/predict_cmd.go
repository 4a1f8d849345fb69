package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/butp-hub/destination-predictor/config"
	"github.com/butp-hub/destination-predictor/internal/application/command"
	"github.com/butp-hub/destination-predictor/internal/application/eventhandler"
	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/domain/student"
	"github.com/butp-hub/destination-predictor/internal/domain/threshold"
	"github.com/butp-hub/destination-predictor/internal/infrastructure/export"
	"github.com/butp-hub/destination-predictor/internal/infrastructure/ingest"
	"github.com/butp-hub/destination-predictor/internal/infrastructure/messaging"
	"github.com/butp-hub/destination-predictor/pkg/logger"
)

type predictOptions struct {
	scores     string
	catalog    string
	catalogDir string
	majors     []string
	modelDir   string
	out        string
	prefix     string
	minGrade   int
	maxGrade   int
	noInverse  bool
	persist    bool
}

// majorPlan pairs a major with its catalog file. An empty major evaluates
// every student.
type majorPlan struct {
	major   shared.Major
	catalog string
}

func newPredictCmd(app *App) *cobra.Command {
	var opts predictOptions

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict a cohort and write the result sheets",
		Long: `Reads a score sheet and one catalog per major, predicts every student's
destination class and, unless --no-inverse is given, searches the lowest uniform
score on the missing courses that reaches class 1 and class 2.

With --catalog-dir each major's catalog is <dir>/<major>.csv (or .tsv); without
--major every catalog in the directory is processed and a combined
<prefix>_All.csv is written as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("min-grade") {
				app.Config.Engine.MinGrade = opts.minGrade
			}
			if cmd.Flags().Changed("max-grade") {
				app.Config.Engine.MaxGrade = opts.maxGrade
			}
			if opts.noInverse {
				app.Config.Engine.WithUniformInverse = false
			}
			if opts.modelDir != "" {
				app.Config.Artifacts.ModelDir = opts.modelDir
			}
			return runPredict(cmd.Context(), app, opts)
		},
	}

	cmd.Flags().StringVar(&opts.scores, "scores", "", "Score sheet (.csv or .tsv)")
	cmd.Flags().StringVar(&opts.catalog, "catalog", "", "Catalog of the requested major")
	cmd.Flags().StringVar(&opts.catalogDir, "catalog-dir", "", "Directory of per-major catalogs named <major>.csv")
	cmd.Flags().StringArrayVar(&opts.majors, "major", nil, "Major to evaluate (repeatable)")
	cmd.Flags().StringVar(&opts.modelDir, "model-dir", "", "Model artifact directory (default from config)")
	cmd.Flags().StringVar(&opts.out, "out", ".", "Output directory")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "Cohort", "Output file name prefix")
	cmd.Flags().IntVar(&opts.minGrade, "min-grade", threshold.DefaultBounds().Min, "Lowest swept uniform score (default from config)")
	cmd.Flags().IntVar(&opts.maxGrade, "max-grade", threshold.DefaultBounds().Max, "Highest swept uniform score (default from config)")
	cmd.Flags().BoolVar(&opts.noInverse, "no-inverse", false, "Skip the uniform-threshold search")
	cmd.Flags().BoolVar(&opts.persist, "persist", false, "Store the run in the run store")
	_ = cmd.MarkFlagRequired("scores")
	cmd.MarkFlagsOneRequired("catalog", "catalog-dir")
	cmd.MarkFlagsMutuallyExclusive("catalog", "catalog-dir")

	return cmd
}

func runPredict(ctx context.Context, app *App, opts predictOptions) error {
	cfg := app.Config
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := app.Logger.With(logger.Operation("predict"))
	slogger := log.Slog()

	plans, err := resolvePlans(opts)
	if err != nil {
		return err
	}

	bundle, err := app.Loader.Load(cfg.Artifacts.ModelDir)
	if err != nil {
		return err
	}
	log.Info("model loaded", logger.ModelVersion(bundle.Version), logger.String("dir", bundle.Dir))

	students, stats, err := ingest.LoadScores(opts.scores, slogger)
	if err != nil {
		return err
	}
	log.Info("scores loaded",
		logger.Int("students", students.Len()),
		logger.Int("rows", stats.Rows),
		logger.Int("kept", stats.Kept),
		logger.Int("electives", stats.Electives),
		logger.Int("bad_grades", stats.BadGrades),
	)

	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode:      false,
		WorkerPoolSize: 1,
		Logger:         slogger,
	})
	defer bus.Close()

	if cfg.Features.IsEnabled(config.FeatureAuditEvents) {
		if err := eventhandler.NewAuditHandler(slogger).Register(bus); err != nil {
			return err
		}
	}

	var store runStore
	if opts.persist {
		if store, err = app.openRunStore(ctx, cfg.Database.AutoMigrate); err != nil {
			return err
		}
	} else {
		store = runStore{close: func() {}}
	}
	defer store.close()

	cache := app.openResultCache(ctx)
	defer cache.close()

	evaluator := command.NewStudentEvaluator(bundle.Model, bundle.Version, cache.cache, slogger)
	handler := command.NewPredictCohortHandler(evaluator, store.repo, bus, slogger, command.PredictCohortConfig{
		Concurrency: cfg.Engine.Concurrency,
		AuditEvents: cfg.Features.IsEnabled(config.FeatureAuditEvents),
	})

	correlationID := uuid.NewString()
	var combined []export.Sheets
	for _, plan := range plans {
		sheets, err := predictMajor(ctx, app, handler, plan, opts, correlationID, students)
		if err != nil {
			if len(plans) == 1 || ctx.Err() != nil {
				return err
			}
			log.Error("major failed, continuing with the next one", logger.Major(plan.major.String()), logger.Err(err))
			continue
		}
		combined = append(combined, sheets)
	}

	if len(combined) == 0 {
		return shared.NewDomainError("run", "Predict", shared.ErrEvaluation, "no major produced results")
	}
	if len(plans) > 1 {
		path := filepath.Join(opts.out, opts.prefix+export.AllSuffix)
		if err := export.WriteCombined(path, combined); err != nil {
			return err
		}
		fmt.Fprintf(app.Out, "combined: %s\n", path)
	}

	bus.Drain()
	return nil
}

func predictMajor(
	ctx context.Context,
	app *App,
	handler *command.PredictCohortHandler,
	plan majorPlan,
	opts predictOptions,
	correlationID string,
	students *student.Cohort,
) (export.Sheets, error) {
	catalog, err := ingest.LoadCatalog(plan.catalog, app.slog())
	if err != nil {
		return export.Sheets{}, err
	}

	res, err := handler.Handle(ctx, command.PredictCohortCommand{
		Students:      students,
		Catalog:       catalog,
		Major:         plan.major,
		Bounds:        app.Config.Engine.Bounds(),
		WithSearch:    app.Config.Engine.WithUniformInverse,
		Persist:       opts.persist,
		CorrelationID: correlationID,
	})
	if err != nil {
		return export.Sheets{}, err
	}

	sheets := export.Sheets{
		CourseNames: catalog.Names(),
		Predictions: res.Rows,
		Uniform:     res.Uniform,
		Missing:     res.Missing,
		Failed:      res.Failed,
	}
	paths, err := export.WriteSheets(opts.out, filePrefix(opts.prefix, plan.major), sheets)
	if err != nil {
		return export.Sheets{}, err
	}

	label := plan.major.String()
	if label == "" {
		label = "all majors"
	}
	fmt.Fprintf(app.Out, "%s: %d evaluated, %d failed, %d violations (run %s)\n",
		label, res.Run.Evaluated, res.Run.Failed, res.Run.Violations, res.Run.ID)
	if res.FellBack {
		fmt.Fprintf(app.Out, "  no student matched %q; all %d students were evaluated\n", label, res.Run.Students)
	}
	for _, p := range paths {
		fmt.Fprintf(app.Out, "  %s\n", p)
	}
	return sheets, nil
}

// resolvePlans maps the flags to the majors to process.
func resolvePlans(opts predictOptions) ([]majorPlan, error) {
	if opts.catalog != "" {
		if len(opts.majors) > 1 {
			return nil, shared.NewDomainError("run", "Plan", shared.ErrInvalidInput,
				"--catalog takes a single --major; use --catalog-dir for several")
		}
		plan := majorPlan{catalog: opts.catalog}
		if len(opts.majors) == 1 {
			plan.major = shared.Major(opts.majors[0])
		}
		return []majorPlan{plan}, nil
	}

	if len(opts.majors) > 0 {
		plans := make([]majorPlan, 0, len(opts.majors))
		for _, m := range opts.majors {
			path, err := findCatalog(opts.catalogDir, m)
			if err != nil {
				return nil, err
			}
			plans = append(plans, majorPlan{major: shared.Major(m), catalog: path})
		}
		return plans, nil
	}

	entries, err := os.ReadDir(opts.catalogDir)
	if err != nil {
		return nil, shared.WrapError("run", "Plan", shared.ErrConfiguration, "cannot read catalog directory", err)
	}
	var plans []majorPlan
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".csv" && ext != ".tsv") {
			continue
		}
		plans = append(plans, majorPlan{
			major:   shared.Major(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))),
			catalog: filepath.Join(opts.catalogDir, e.Name()),
		})
	}
	if len(plans) == 0 {
		return nil, shared.NewDomainError("run", "Plan", shared.ErrConfiguration, "catalog directory has no .csv or .tsv files")
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].major < plans[j].major })
	return plans, nil
}

func findCatalog(dir, major string) (string, error) {
	for _, ext := range []string{".csv", ".tsv"} {
		path := filepath.Join(dir, major+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", shared.WrapError("run", "Plan", shared.ErrConfiguration, "no catalog for major",
		fmt.Errorf("%s in %s", major, dir))
}

// filePrefix names the sheets of one major: <prefix>_<code>.
func filePrefix(prefix string, major shared.Major) string {
	if major == "" {
		return prefix
	}
	code := major.Code()
	if code == "unknown" {
		code = strings.Map(func(r rune) rune {
			if r == '/' || r == '\\' || r == ' ' {
				return '_'
			}
			return r
		}, major.String())
	}
	return prefix + "_" + code
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"acc-reconcile/internal/config"
	"acc-reconcile/internal/observability/metrics"
	"acc-reconcile/internal/reconcile/application"
	reconcile "acc-reconcile/internal/reconcile/domain"
	"acc-reconcile/internal/reconcile/infrastructure/cells"
	"acc-reconcile/internal/reconcile/infrastructure/postgres"
	"acc-reconcile/internal/reconcile/infrastructure/r15"
	"acc-reconcile/internal/reconcile/infrastructure/spreadsheet"
	"acc-reconcile/internal/reconcile/interfaces"
)

const (
	exitOK      = 0
	exitRun     = 1
	exitConfig  = 2
	exitInvalid = 3
)

type flags struct {
	configPath string
	start      string
	cutoff     string
	outDir     string
	formats    string
	verbose    bool
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("acc-reconcile", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "yaml config file (or RECONCILE_CONFIG)")
	fs.StringVar(&f.start, "start", "", "window start YYYY-MM-DD, overrides the R15 marker")
	fs.StringVar(&f.cutoff, "cutoff", "", "window cutoff YYYY-MM-DD (or RECONCILE_CUTOFF)")
	fs.StringVar(&f.outDir, "out", "", "output directory (or RECONCILE_OUT_DIR)")
	fs.StringVar(&f.formats, "formats", "", "comma separated output formats: xlsx,csv,pdf")
	fs.BoolVar(&f.verbose, "verbose", false, "development logging")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	return f, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	f, err := parseFlags(args)
	if err != nil {
		return exitConfig
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return exitConfig
	}
	applyFlags(&cfg, f)

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return exitConfig
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	defer func() {
		if err := m.WriteTextfile(cfg.Output.MetricsTextfile); err != nil {
			logger.Warn("metrics textfile", zap.Error(err))
		}
	}()

	if err := reconcileOnce(ctx, logger, m, cfg); err != nil {
		logger.Error("reconciliation failed", zap.Error(err))
		if errors.Is(err, reconcile.ErrMalformedInput) || errors.Is(err, reconcile.ErrDegenerateInterval) ||
			errors.Is(err, reconcile.ErrNoStartMarker) || errors.Is(err, reconcile.ErrInvalidWindow) {
			return exitInvalid
		}
		return exitRun
	}
	return exitOK
}

func applyFlags(cfg *config.Config, f flags) {
	if f.start != "" {
		cfg.Window.Start = f.start
	}
	if f.cutoff != "" {
		cfg.Window.Cutoff = f.cutoff
	}
	if f.outDir != "" {
		cfg.Output.Dir = f.outDir
	}
	if formats := config.SplitCSV(f.formats); len(formats) > 0 {
		cfg.Output.Formats = formats
	}
	if f.verbose {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

func reconcileOnce(ctx context.Context, logger *zap.Logger, m *metrics.Metrics, cfg config.Config) error {
	billing, err := loadBilling(ctx, logger, cfg.Billing)
	if err != nil {
		return err
	}
	batch, err := loadMeasurements(cfg.Measurements)
	if err != nil {
		return err
	}
	logger.Info("inputs loaded",
		zap.Int("billing_rows", len(billing)),
		zap.Int("measurement_rows", len(batch.Records)),
		zap.Strings("measure_fields", batch.Fields),
	)

	start, _ := cfg.StartDate()
	cutoff, _ := cfg.CutoffDate()
	svc, err := application.NewService(logger, application.WithRecorder(m))
	if err != nil {
		return err
	}
	result, err := svc.Run(ctx, application.Input{
		Billing:          billing,
		Measurements:     batch.Records,
		Start:            start,
		Cutoff:           cutoff,
		Marker:           cfg.Measurements.MarkerValue,
		ArticlePrefixes:  cfg.Billing.ArticlePrefixes,
		BillingFields:    cfg.Billing.MeasureFields,
		MeasureFields:    batch.Fields,
		DegeneratePolicy: cfg.Policy(),
	})
	if err != nil {
		return err
	}

	outputs := interfaces.Outputs{
		Dir:       cfg.Output.Dir,
		XLSX:      cfg.HasFormat(config.FormatXLSX),
		CSV:       cfg.HasFormat(config.FormatCSV),
		PDF:       cfg.HasFormat(config.FormatPDF),
		Separator: []rune(cfg.Measurements.Separator)[0],
		Generated: time.Now(),
	}
	written, err := outputs.Write(result, cfg.Billing.MeasureFields)
	if err != nil {
		return err
	}
	logger.Info("outputs written", zap.Strings("files", written))
	return nil
}

func billingColumns(c config.BillingColumns) cells.BillingColumns {
	return cells.BillingColumns{
		Contract:      c.Contract,
		Article:       c.Article,
		UnitPrice:     c.UnitPrice,
		BillingDate:   c.BillingDate,
		Period:        c.Period,
		ArticleName:   c.ArticleName,
		DeliveryPoint: c.DeliveryPoint,
	}
}

func loadBilling(ctx context.Context, logger *zap.Logger, cfg config.BillingConfig) ([]reconcile.BillingRecord, error) {
	columns := billingColumns(cfg.Columns)
	switch cfg.Source {
	case config.SourcePostgres:
		db, err := sql.Open("pgx", cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		defer db.Close()
		source, err := postgres.NewBillingSource(db,
			postgres.WithTable(cfg.Postgres.Table),
			postgres.WithColumns(columns),
			postgres.WithMeasureFields(cfg.MeasureFields...),
		)
		if err != nil {
			return nil, err
		}
		logger.Info("loading billing journal", zap.String("source", cfg.Source), zap.String("table", cfg.Postgres.Table))
		return source.Load(ctx)
	default:
		loader := spreadsheet.NewBillingLoader(
			spreadsheet.WithSheet(cfg.Sheet),
			spreadsheet.WithColumns(columns),
			spreadsheet.WithMeasureFields(cfg.MeasureFields...),
		)
		logger.Info("loading billing journal", zap.String("source", cfg.Source), zap.String("path", cfg.Path))
		return loader.LoadFile(cfg.Path)
	}
}

func loadMeasurements(cfg config.MeasurementConfig) (r15.Batch, error) {
	loader := r15.NewLoader(
		r15.WithSeparator([]rune(cfg.Separator)[0]),
		r15.WithTimestampColumn(cfg.TimestampColumn),
		r15.WithMarkerColumn(cfg.MarkerColumn),
		r15.WithMeasureFields(cfg.MeasureFields...),
		r15.WithMeasurePrefixes(cfg.MeasurePrefixes...),
	)
	return loader.LoadPath(cfg.Path)
}

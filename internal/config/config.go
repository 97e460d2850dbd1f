package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	reconcile "acc-reconcile/internal/reconcile/domain"
)

// Billing sources.
const (
	SourceSpreadsheet = "spreadsheet"
	SourcePostgres    = "postgres"
)

// Output formats.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
	FormatPDF  = "pdf"
)

// BillingColumns maps journal columns to record fields.
type BillingColumns struct {
	Contract      string `yaml:"contract"`
	Article       string `yaml:"article"`
	UnitPrice     string `yaml:"unit_price"`
	BillingDate   string `yaml:"billing_date"`
	Period        string `yaml:"period"`
	ArticleName   string `yaml:"article_name"`
	DeliveryPoint string `yaml:"delivery_point"`
}

// Keys returns the identifier columns, never summed.
func (c BillingColumns) Keys() []string {
	keys := []string{c.Contract, c.Article, c.UnitPrice, c.BillingDate, c.Period, c.ArticleName, c.DeliveryPoint}
	out := keys[:0]
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// PostgresConfig locates the billing table.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// BillingConfig describes the sales journal input.
type BillingConfig struct {
	Source          string         `yaml:"source"`
	Path            string         `yaml:"path"`
	Sheet           string         `yaml:"sheet"`
	Columns         BillingColumns `yaml:"columns"`
	MeasureFields   []string       `yaml:"measure_fields"`
	ArticlePrefixes []string       `yaml:"article_prefixes"`
	Postgres        PostgresConfig `yaml:"postgres"`
}

// Schema returns the declared key and measure columns.
func (c BillingConfig) Schema() reconcile.Schema {
	return reconcile.Schema{KeyFields: c.Columns.Keys(), MeasureFields: c.MeasureFields}
}

// MeasurementConfig describes the R15 input.
type MeasurementConfig struct {
	Path            string   `yaml:"path"`
	Separator       string   `yaml:"separator"`
	TimestampColumn string   `yaml:"timestamp_column"`
	MarkerColumn    string   `yaml:"marker_column"`
	MarkerValue     string   `yaml:"marker_value"`
	MeasureFields   []string `yaml:"measure_fields"`
	MeasurePrefixes []string `yaml:"measure_prefixes"`
}

// WindowConfig holds the regularization window bounds.
// Start is optional and overrides marker detection.
type WindowConfig struct {
	Start  string `yaml:"start"`
	Cutoff string `yaml:"cutoff"`
}

// OutputConfig controls where and how results are written.
type OutputConfig struct {
	Dir             string   `yaml:"dir"`
	Formats         []string `yaml:"formats"`
	MetricsTextfile string   `yaml:"metrics_textfile"`
}

// LoggingConfig controls zap.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Config is the batch configuration.
type Config struct {
	Billing          BillingConfig     `yaml:"billing"`
	Measurements     MeasurementConfig `yaml:"measurements"`
	Window           WindowConfig      `yaml:"window"`
	DegeneratePolicy string            `yaml:"degenerate_policy"`
	Output           OutputConfig      `yaml:"output"`
	Logging          LoggingConfig     `yaml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Billing: BillingConfig{
			Source: SourceSpreadsheet,
			Columns: BillingColumns{
				Contract:      "CONTRAT",
				Article:       "CODE_ARTICLE",
				UnitPrice:     "PUHT",
				BillingDate:   "DATEFACT",
				Period:        "PÉRIODE",
				ArticleName:   "NOM_ARTICLE",
				DeliveryPoint: "PDS_CONTRAT",
			},
			Postgres: PostgresConfig{Table: "journal_ventes"},
		},
		Measurements: MeasurementConfig{
			Separator:       ";",
			TimestampColumn: "Date_Releve",
			MarkerColumn:    "Motif_Releve",
			MarkerValue:     "ACC",
			MeasurePrefixes: []string{"EA"},
		},
		DegeneratePolicy: string(reconcile.DegenerateReject),
		Output: OutputConfig{
			Dir:     "./out",
			Formats: []string{FormatXLSX, FormatCSV},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the yaml file at path (optional) over the defaults, then applies env overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("RECONCILE_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Billing.Path = getenvDefault("RECONCILE_BILLING_PATH", cfg.Billing.Path)
	cfg.Billing.Source = getenvDefault("RECONCILE_BILLING_SOURCE", cfg.Billing.Source)
	cfg.Billing.Postgres.DSN = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.Billing.Postgres.DSN))
	cfg.Measurements.Path = getenvDefault("RECONCILE_R15_PATH", cfg.Measurements.Path)
	cfg.Window.Start = getenvDefault("RECONCILE_START", cfg.Window.Start)
	cfg.Window.Cutoff = getenvDefault("RECONCILE_CUTOFF", cfg.Window.Cutoff)
	cfg.Output.Dir = getenvDefault("RECONCILE_OUT_DIR", cfg.Output.Dir)
	cfg.Output.MetricsTextfile = getenvDefault("RECONCILE_METRICS_TEXTFILE", cfg.Output.MetricsTextfile)
	cfg.Logging.Level = getenvDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Development = getenvBoolDefault("LOG_DEVELOPMENT", cfg.Logging.Development)
	if prefixes := splitCSV(os.Getenv("RECONCILE_ARTICLE_PREFIXES")); len(prefixes) > 0 {
		cfg.Billing.ArticlePrefixes = prefixes
	}
}

// Validate reports the first configuration problem.
func (c Config) Validate() error {
	switch c.Billing.Source {
	case SourceSpreadsheet:
		if c.Billing.Path == "" {
			return errors.New("config: billing path required")
		}
	case SourcePostgres:
		if c.Billing.Postgres.DSN == "" {
			return errors.New("config: billing postgres dsn required")
		}
		if c.Billing.Postgres.Table == "" {
			return errors.New("config: billing postgres table required")
		}
	default:
		return fmt.Errorf("config: unknown billing source %q", c.Billing.Source)
	}
	cols := c.Billing.Columns
	if cols.Contract == "" || cols.Article == "" || cols.UnitPrice == "" || cols.BillingDate == "" {
		return errors.New("config: billing contract, article, unit_price and billing_date columns required")
	}
	if err := c.Billing.Schema().Validate(); err != nil {
		return err
	}
	if c.Measurements.Path == "" {
		return errors.New("config: measurements path required")
	}
	if c.Measurements.TimestampColumn == "" {
		return errors.New("config: measurements timestamp column required")
	}
	if c.Window.Start == "" && (c.Measurements.MarkerColumn == "" || c.Measurements.MarkerValue == "") {
		return errors.New("config: window start or measurement marker required")
	}
	if len(c.Measurements.MeasureFields) == 0 && len(c.Measurements.MeasurePrefixes) == 0 {
		return errors.New("config: measurement measure_fields or measure_prefixes required")
	}
	if len([]rune(c.Measurements.Separator)) != 1 {
		return fmt.Errorf("config: measurement separator must be one character, got %q", c.Measurements.Separator)
	}
	if _, err := c.CutoffDate(); err != nil {
		return err
	}
	if _, err := c.StartDate(); err != nil {
		return err
	}
	if _, err := reconcile.ParseDegeneratePolicy(c.DegeneratePolicy); err != nil {
		return err
	}
	for _, format := range c.Output.Formats {
		switch format {
		case FormatXLSX, FormatCSV, FormatPDF:
		default:
			return fmt.Errorf("config: unknown output format %q", format)
		}
	}
	if c.Output.Dir == "" {
		return errors.New("config: output dir required")
	}
	return nil
}

// CutoffDate parses the operator-chosen cutoff.
func (c Config) CutoffDate() (time.Time, error) {
	if c.Window.Cutoff == "" {
		return time.Time{}, errors.New("config: window cutoff required (YYYY-MM-DD)")
	}
	parsed, err := time.Parse(reconcile.DayLayout, c.Window.Cutoff)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: window cutoff: %w", err)
	}
	return parsed, nil
}

// StartDate parses the optional start override; zero when unset.
func (c Config) StartDate() (time.Time, error) {
	if c.Window.Start == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(reconcile.DayLayout, c.Window.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: window start: %w", err)
	}
	return parsed, nil
}

// Policy returns the parsed degenerate policy.
func (c Config) Policy() reconcile.DegeneratePolicy {
	policy, err := reconcile.ParseDegeneratePolicy(c.DegeneratePolicy)
	if err != nil {
		return reconcile.DegenerateReject
	}
	return policy
}

// HasFormat reports whether format is requested.
func (c Config) HasFormat(format string) bool {
	for _, f := range c.Output.Formats {
		if f == format {
			return true
		}
	}
	return false
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// SplitCSV splits a comma separated flag or env value, dropping blanks.
func SplitCSV(value string) []string {
	return splitCSV(value)
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

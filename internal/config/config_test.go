package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reconcile "acc-reconcile/internal/reconcile/domain"
)

const sampleYAML = `
billing:
  path: journal.xlsx
  measure_fields: [QUANTITE, MONTANT_HT]
  article_prefixes: [CONSO]
measurements:
  path: r15/
  marker_value: CFNE
window:
  cutoff: "2024-12-31"
degenerate_policy: last_wins
output:
  dir: out
  formats: [xlsx, pdf]
logging:
  development: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reconcile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, SourceSpreadsheet, cfg.Billing.Source)
	assert.Equal(t, "CONTRAT", cfg.Billing.Columns.Contract)
	assert.Equal(t, []string{"QUANTITE", "MONTANT_HT"}, cfg.Billing.MeasureFields)
	assert.Equal(t, "CFNE", cfg.Measurements.MarkerValue)
	assert.Equal(t, "Date_Releve", cfg.Measurements.TimestampColumn)
	assert.Equal(t, reconcile.DegenerateLastWins, cfg.Policy())
	assert.True(t, cfg.HasFormat(FormatPDF))
	assert.False(t, cfg.HasFormat(FormatCSV))
	assert.True(t, cfg.Logging.Development)

	cutoff, err := cfg.CutoffDate()
	require.NoError(t, err)
	assert.Equal(t, "2024-12-31", reconcile.FormatDay(cutoff))

	start, err := cfg.StartDate()
	require.NoError(t, err)
	assert.True(t, start.IsZero())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RECONCILE_CUTOFF", "2025-01-31")
	t.Setenv("RECONCILE_OUT_DIR", "/tmp/reports")
	t.Setenv("RECONCILE_ARTICLE_PREFIXES", "CONSO, ABO ,")
	t.Setenv("LOG_DEVELOPMENT", "false")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "2025-01-31", cfg.Window.Cutoff)
	assert.Equal(t, "/tmp/reports", cfg.Output.Dir)
	assert.Equal(t, []string{"CONSO", "ABO"}, cfg.Billing.ArticlePrefixes)
	assert.False(t, cfg.Logging.Development)
}

func TestLoadFromEnvPath(t *testing.T) {
	t.Setenv("RECONCILE_CONFIG", writeConfig(t, sampleYAML))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "journal.xlsx", cfg.Billing.Path)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "billing: [unterminated"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Billing.Path = "journal.xlsx"
		cfg.Measurements.Path = "r15"
		cfg.Window.Cutoff = "2024-12-31"
		return cfg
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"missing cutoff":       func(c *Config) { c.Window.Cutoff = "" },
		"bad cutoff":           func(c *Config) { c.Window.Cutoff = "31/12/2024" },
		"bad start":            func(c *Config) { c.Window.Start = "yesterday" },
		"missing billing":      func(c *Config) { c.Billing.Path = "" },
		"unknown source":       func(c *Config) { c.Billing.Source = "ftp" },
		"postgres without dsn": func(c *Config) { c.Billing.Source = SourcePostgres },
		"missing column":       func(c *Config) { c.Billing.Columns.UnitPrice = "" },
		"measure is key":       func(c *Config) { c.Billing.MeasureFields = []string{"PUHT"} },
		"missing r15":          func(c *Config) { c.Measurements.Path = "" },
		"no marker":            func(c *Config) { c.Measurements.MarkerValue = "" },
		"no measures":          func(c *Config) { c.Measurements.MeasurePrefixes = nil },
		"bad separator":        func(c *Config) { c.Measurements.Separator = ";;" },
		"bad policy":           func(c *Config) { c.DegeneratePolicy = "clamp" },
		"bad format":           func(c *Config) { c.Output.Formats = []string{"docx"} },
		"missing out dir":      func(c *Config) { c.Output.Dir = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	withStart := valid()
	withStart.Window.Start = "2024-01-01"
	withStart.Measurements.MarkerValue = ""
	assert.NoError(t, withStart.Validate())
}

func TestSplitCSV(t *testing.T) {
	assert.Nil(t, SplitCSV(""))
	assert.Equal(t, []string{"a", "b"}, SplitCSV(" a,,b "))
}

package application

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"acc-reconcile/internal/observability/metrics"
	reconcile "acc-reconcile/internal/reconcile/domain"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(reconcile.DayLayout, s)
	require.NoError(t, err)
	return d
}

func billing(t *testing.T, contract, article, price, date string, amount int64) reconcile.BillingRecord {
	t.Helper()
	return reconcile.BillingRecord{
		ContractID:  contract,
		ArticleCode: article,
		UnitPrice:   decimal.RequireFromString(price),
		BillingDate: day(t, date),
		PeriodLabel: date[:7],
		ArticleName: "Fourniture " + article,
		Amounts:     reconcile.Measures{"QUANTITE": decimal.NewFromInt(amount)},
	}
}

func reading(t *testing.T, date, flag string, hp int64) reconcile.MeasurementRecord {
	t.Helper()
	return reconcile.MeasurementRecord{
		ReadingDate:    day(t, date),
		CollectiveFlag: flag,
		Energies:       reconcile.Measures{"EA_HP": decimal.NewFromInt(hp)},
	}
}

func fixture(t *testing.T) Input {
	return Input{
		Billing: []reconcile.BillingRecord{
			billing(t, "C1", "ACC01", "0.10", "2023-12-31", 1),
			billing(t, "C1", "ACC01", "0.10", "2024-01-31", 10),
			billing(t, "C1", "ACC01", "0.12", "2024-02-29", 20),
			billing(t, "C1", "ACC01", "0.12", "2024-03-31", 30),
			billing(t, "C2", "ACC01", "0.20", "2024-01-31", 5),
			billing(t, "C2", "ABO01", "9.99", "2024-01-31", 1),
		},
		Measurements: []reconcile.MeasurementRecord{
			reading(t, "2024-01-05", "", 1),
			reading(t, "2024-01-10", "ACC", 2),
			reading(t, "2024-02-01", "", 3),
			reading(t, "2024-03-01", "", 4),
			reading(t, "2024-04-01", "", 100),
		},
		Cutoff:          day(t, "2024-03-31"),
		Marker:          "ACC",
		ArticlePrefixes: []string{"ACC"},
		BillingFields:   []string{"QUANTITE"},
	}
}

func newService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	svc, err := NewService(zap.NewNop(), opts...)
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresLogger(t *testing.T) {
	_, err := NewService(nil)
	assert.Error(t, err)
}

func TestRunEndToEnd(t *testing.T) {
	m := metrics.New()
	result, err := newService(t, WithRecorder(m)).Run(context.Background(), fixture(t))
	require.NoError(t, err)

	assert.Equal(t, day(t, "2024-01-10"), result.Start)
	assert.Equal(t, "[2024-01-10, 2024-03-31]", result.Window.String())
	assert.Len(t, result.Billing, 4, "out-of-window and non ACC articles dropped")
	assert.Len(t, result.Measurements, 3)
	assert.Equal(t, []string{"EA_HP"}, result.Fields)

	require.Len(t, result.Periods, 3)
	first := result.Periods[0]
	assert.Equal(t, "C1", first.ContractID)
	assert.Equal(t, day(t, "2024-01-31"), first.Start)
	assert.Equal(t, day(t, "2024-02-28"), first.End)
	assert.Equal(t, 29, first.DurationDays)

	require.Len(t, result.Aggregated, 3)
	assert.Equal(t, 1, result.Aggregated[0].RecordCount)
	assert.Equal(t, "3", result.Aggregated[0].Sums["EA_HP"].String())
	assert.Equal(t, 1, result.Aggregated[1].RecordCount)
	assert.Equal(t, "4", result.Aggregated[1].Sums["EA_HP"].String())
	assert.Equal(t, 0, result.Aggregated[2].RecordCount, "C2 period has no reading in its single day")
	assert.Equal(t, 1, result.Unmatched())

	assert.Equal(t, 2, result.Report.TotalGroups)
	assert.Equal(t, 1, result.Report.ChangedGroups)

	require.Len(t, result.Journal, 4)
	assert.Equal(t, "C1", result.Journal[0].ContractID)
	assert.Equal(t, "2024-01", result.Journal[0].PeriodLabel)
	assert.Equal(t, "10", result.Journal[0].Sums["QUANTITE"].String())

	expected := `
# HELP acc_reconcile_price_periods Price periods produced by the last run
# TYPE acc_reconcile_price_periods gauge
acc_reconcile_price_periods 3
# HELP acc_reconcile_unmatched_periods Price periods without any measurement record
# TYPE acc_reconcile_unmatched_periods gauge
acc_reconcile_unmatched_periods 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"acc_reconcile_price_periods", "acc_reconcile_unmatched_periods"))
}

func TestRunStartOverride(t *testing.T) {
	in := fixture(t)
	in.Start = day(t, "2024-02-01")
	in.Marker = ""
	result, err := newService(t).Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, day(t, "2024-02-01"), result.Start)
	assert.Len(t, result.Billing, 2)
}

func TestRunNoStartMarker(t *testing.T) {
	in := fixture(t)
	in.Marker = "NOPE"
	_, err := newService(t).Run(context.Background(), in)
	require.ErrorIs(t, err, reconcile.ErrNoStartMarker)
	assert.Contains(t, err.Error(), StageStartMarker)
}

func TestRunInvalidWindow(t *testing.T) {
	in := fixture(t)
	in.Cutoff = day(t, "2023-01-01")
	_, err := newService(t).Run(context.Background(), in)
	require.ErrorIs(t, err, reconcile.ErrInvalidWindow)
	assert.Contains(t, err.Error(), StageWindow)
}

func TestRunDegenerateInterval(t *testing.T) {
	in := fixture(t)
	in.Billing = append(in.Billing, billing(t, "C1", "ACC01", "0.99", "2024-02-29", 1))

	_, err := newService(t).Run(context.Background(), in)
	var degenerate *reconcile.DegenerateIntervalError
	require.ErrorAs(t, err, &degenerate)
	assert.Equal(t, reconcile.GroupKey{ContractID: "C1", ArticleCode: "ACC01"}, degenerate.Key)

	in.DegeneratePolicy = reconcile.DegenerateLastWins
	result, err := newService(t).Run(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, result.Periods[1].UnitPrice.Equal(decimal.RequireFromString("0.99")))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newService(t).Run(ctx, fixture(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunLogsFailedStage(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	svc, err := NewService(zap.New(core))
	require.NoError(t, err)

	in := fixture(t)
	in.BillingFields = []string{"QUANTITE", "QUANTITE"}
	_, err = svc.Run(context.Background(), in)
	require.ErrorIs(t, err, reconcile.ErrMalformedInput)

	failed := logs.FilterMessage("stage failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, StageJournal, failed[0].ContextMap()["stage"])
	assert.Equal(t, 6, logs.FilterMessage("stage done").Len())
}

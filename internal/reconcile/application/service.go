package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	reconcile "acc-reconcile/internal/reconcile/domain"
)

// Pipeline stage names, used for logging, metrics and error wrapping.
const (
	StageStartMarker = "start_marker"
	StageWindow      = "window"
	StageFilter      = "filter"
	StageSegment     = "segment"
	StageAggregate   = "aggregate"
	StageReport      = "report"
	StageJournal     = "journal"

	resultSuccess = "success"
	resultError   = "error"
)

// Recorder receives stage observations and run outcomes.
type Recorder interface {
	ObserveStage(stage, result string, duration time.Duration)
	SetInputRows(source string, rows int)
	SetOutcome(periods, changedGroups, unmatchedPeriods int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, string, time.Duration) {}
func (nopRecorder) SetInputRows(string, int)                   {}
func (nopRecorder) SetOutcome(int, int, int)                   {}

// Input carries everything one reconciliation run needs.
type Input struct {
	Billing      []reconcile.BillingRecord
	Measurements []reconcile.MeasurementRecord

	// Start overrides marker detection when set.
	Start  time.Time
	Cutoff time.Time
	Marker string

	ArticlePrefixes []string
	// BillingFields are summed by the journal consolidation.
	BillingFields []string
	// MeasureFields are summed per period. Empty means every field seen in the measurements.
	MeasureFields []string

	DegeneratePolicy reconcile.DegeneratePolicy
}

// Result is the output of a run.
type Result struct {
	Start        time.Time
	Window       reconcile.Window
	Billing      []reconcile.BillingRecord
	Measurements []reconcile.MeasurementRecord
	Fields       []string
	Periods      []reconcile.PricePeriod
	Aggregated   []reconcile.AggregatedPeriod
	Report       reconcile.VariationReport
	Journal      []reconcile.JournalLine
}

// Unmatched counts aggregated periods without any measurement.
func (r *Result) Unmatched() int {
	n := 0
	for _, p := range r.Aggregated {
		if p.RecordCount == 0 {
			n++
		}
	}
	return n
}

// Service runs the reconciliation pipeline.
type Service struct {
	logger   *zap.Logger
	recorder Recorder
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithRecorder attaches a stage recorder.
func WithRecorder(recorder Recorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// NewService constructs the service.
func NewService(logger *zap.Logger, opts ...ServiceOption) (*Service, error) {
	if logger == nil {
		return nil, errors.New("reconcile service: nil logger")
	}
	s := &Service{logger: logger, recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes start marker, window, filter, segment, aggregate, report and
// journal stages in order. Errors are wrapped with the failing stage name.
func (s *Service) Run(ctx context.Context, in Input) (*Result, error) {
	s.recorder.SetInputRows("billing", len(in.Billing))
	s.recorder.SetInputRows("measurements", len(in.Measurements))
	result := &Result{}

	err := s.stage(ctx, StageStartMarker, func() error {
		if !in.Start.IsZero() {
			result.Start = reconcile.TruncateDay(in.Start)
			return nil
		}
		if in.Marker == "" {
			return fmt.Errorf("%w: no marker configured", reconcile.ErrNoStartMarker)
		}
		start, err := reconcile.StartMarker(in.Measurements, in.Marker)
		if err != nil {
			return err
		}
		result.Start = reconcile.TruncateDay(start)
		return nil
	}, zap.String("marker", in.Marker))
	if err != nil {
		return nil, err
	}

	err = s.stage(ctx, StageWindow, func() error {
		w, err := reconcile.NewWindow(result.Start, in.Cutoff)
		result.Window = w
		return err
	}, zap.Time("start", result.Start), zap.Time("cutoff", in.Cutoff))
	if err != nil {
		return nil, err
	}

	err = s.stage(ctx, StageFilter, func() error {
		result.Billing = reconcile.FilterBilling(in.Billing, result.Window, reconcile.ArticlePrefixes(in.ArticlePrefixes...))
		result.Measurements = reconcile.FilterMeasurements(in.Measurements, result.Window)
		return nil
	}, zap.Strings("article_prefixes", in.ArticlePrefixes))
	if err != nil {
		return nil, err
	}
	s.recorder.SetInputRows("billing_in_window", len(result.Billing))
	s.recorder.SetInputRows("measurements_in_window", len(result.Measurements))

	err = s.stage(ctx, StageSegment, func() error {
		policy := in.DegeneratePolicy
		if policy == "" {
			policy = reconcile.DegenerateReject
		}
		periods, err := reconcile.Segment(result.Billing, reconcile.WithDegeneratePolicy(policy))
		result.Periods = periods
		return err
	}, zap.Int("billing_rows", len(result.Billing)))
	if err != nil {
		return nil, err
	}

	result.Fields = in.MeasureFields
	if len(result.Fields) == 0 {
		energies := make([]reconcile.Measures, 0, len(result.Measurements))
		for _, m := range result.Measurements {
			energies = append(energies, m.Energies)
		}
		result.Fields = reconcile.SortedFields(energies...)
	}
	err = s.stage(ctx, StageAggregate, func() error {
		aggregated, err := reconcile.Aggregate(result.Periods, result.Measurements, result.Fields)
		result.Aggregated = aggregated
		return err
	}, zap.Int("periods", len(result.Periods)), zap.Int("measurement_rows", len(result.Measurements)))
	if err != nil {
		return nil, err
	}

	err = s.stage(ctx, StageReport, func() error {
		result.Report = reconcile.ReportVariations(result.Periods)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.stage(ctx, StageJournal, func() error {
		journal, err := reconcile.ConsolidateJournal(result.Billing, in.BillingFields)
		result.Journal = journal
		return err
	}, zap.Strings("fields", in.BillingFields))
	if err != nil {
		return nil, err
	}

	s.recorder.SetOutcome(len(result.Periods), result.Report.ChangedGroups, result.Unmatched())
	s.logger.Info("reconciliation complete",
		zap.Stringer("window", result.Window),
		zap.Int("periods", len(result.Periods)),
		zap.Int("groups", result.Report.TotalGroups),
		zap.Int("changed_groups", result.Report.ChangedGroups),
		zap.Int("unmatched_periods", result.Unmatched()),
		zap.Int("journal_lines", len(result.Journal)),
	)
	return result, nil
}

func (s *Service) stage(ctx context.Context, name string, fn func() error, fields ...zap.Field) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	started := time.Now()
	err := fn()
	elapsed := time.Since(started)

	fields = append(fields, zap.String("stage", name), zap.Duration("elapsed", elapsed))
	if err != nil {
		s.recorder.ObserveStage(name, resultError, elapsed)
		s.logger.Error("stage failed", append(fields, zap.Error(err))...)
		return fmt.Errorf("%s: %w", name, err)
	}
	s.recorder.ObserveStage(name, resultSuccess, elapsed)
	s.logger.Debug("stage done", fields...)
	return nil
}

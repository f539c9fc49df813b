package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"rekord/internal/amqp"
	"rekord/internal/cache"
	"rekord/internal/core"
	"rekord/internal/log"
	"rekord/internal/report"
)

// RecordSource is the data layer used by ReportService.
type RecordSource interface {
	DistinctValues(ctx context.Context, field core.Field) ([]string, error)
	Records(ctx context.Context, f core.Filter) (*core.Table, error)
	Ping(ctx context.Context) error
}

// EventPublisher receives an event per successful report query.
type EventPublisher interface {
	PublishReportQueried(ctx context.Context, msg *amqp.ReportQueriedMessage) error
}

// Result is a filtered table with its per-year aggregation.
type Result struct {
	Filter   core.Filter
	Table    *core.Table
	Counts   []core.YearCount
	Duration time.Duration
}

// Empty reports whether the query matched no rows.
func (r *Result) Empty() bool { return r == nil || r.Table.Empty() }

// OptionList is the outcome of one option lookup. A failed lookup keeps
// Values empty and the error in Err.
type OptionList struct {
	Field  core.Field
	Values []string
	Err    error
}

// ReportService orchestrates option lookup, filtered queries and
// aggregation across the data source, the option cache and AMQP.
type ReportService struct {
	source    RecordSource
	options   *cache.OptionCache
	publisher EventPublisher
	logger    *log.Logger
	now       func() time.Time
}

func NewReportService(source RecordSource, options *cache.OptionCache, publisher EventPublisher, logger *log.Logger) *ReportService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ReportService{
		source:    source,
		options:   options,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentReport),
		now:       time.Now,
	}
}

// Options returns the sorted distinct values of field, memoized per field.
func (s *ReportService) Options(ctx context.Context, field core.Field) ([]string, error) {
	if !field.Valid() {
		return nil, core.NewDataError(core.KindQuery, "distinct values", fmt.Errorf("%w: %q", core.ErrUnknownField, field))
	}

	compute := func(ctx context.Context) ([]string, error) {
		values, err := s.source.DistinctValues(ctx, field)
		if err != nil {
			return nil, err
		}
		s.logger.DebugContext(ctx, "Loaded option list",
			log.FieldField, field.String(),
			log.FieldValues, len(values))
		return values, nil
	}

	if s.options == nil {
		return compute(ctx)
	}
	return s.options.GetOrCompute(ctx, field.String(), compute)
}

// AllOptions loads the option lists of every filterable field concurrently.
// One field failing does not affect the others.
func (s *ReportService) AllOptions(ctx context.Context) []OptionList {
	fields := core.OptionFields()
	lists := make([]OptionList, len(fields))

	var g errgroup.Group
	for i, field := range fields {
		g.Go(func() error {
			values, err := s.Options(ctx, field)
			if err != nil {
				log.LogError(ctx, "Option lookup failed", err, log.OpOptions,
					log.NewFields().WithComponent(log.ComponentReport))
				values = []string{}
			}
			lists[i] = OptionList{Field: field, Values: values, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return lists
}

// Report runs the filtered query and aggregates the rows per year. Callers
// check for an empty year selection first; it is rejected with ErrNoYears.
func (s *ReportService) Report(ctx context.Context, f core.Filter) (*Result, error) {
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return nil, err
	}

	start := s.now()
	table, err := s.source.Records(ctx, f)
	if err != nil {
		log.LogError(ctx, "Report query failed", err, log.OpRecords,
			log.NewFields().WithComponent(log.ComponentReport).WithFilter(f))
		return nil, err
	}
	took := s.now().Sub(start)

	res := &Result{
		Filter:   f,
		Table:    table,
		Counts:   report.Aggregate(table),
		Duration: took,
	}

	s.logger.InfoContext(ctx, "Report queried",
		log.NewFields().WithFilter(f).WithResult(table.Len(), took).ToSlice()...)

	if err := s.publishQueried(ctx, res); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish report event",
			log.FieldOperation, log.OpPublish,
			log.FieldError, err)
		// Don't fail the request - the report itself succeeded
	}

	return res, nil
}

// YearCounts is Report without the table.
func (s *ReportService) YearCounts(ctx context.Context, f core.Filter) ([]core.YearCount, error) {
	res, err := s.Report(ctx, f)
	if err != nil {
		return nil, err
	}
	return res.Counts, nil
}

// Ready pings the data source.
func (s *ReportService) Ready(ctx context.Context) error {
	return s.source.Ping(ctx)
}

// InvalidateOptions drops memoized option lists so the next lookup
// queries the data source again.
func (s *ReportService) InvalidateOptions() {
	if s.options == nil {
		return
	}
	for _, field := range core.OptionFields() {
		s.options.Invalidate(field.String())
	}
}

// OptionsLoadedAt reports when the memoized list for field was computed.
func (s *ReportService) OptionsLoadedAt(field core.Field) (time.Time, bool) {
	if s.options == nil {
		return time.Time{}, false
	}
	return s.options.StoredAt(field.String())
}

// CacheStats returns option cache counters.
func (s *ReportService) CacheStats() cache.Stats {
	if s.options == nil {
		return cache.Stats{}
	}
	return s.options.Stats()
}

func (s *ReportService) publishQueried(ctx context.Context, res *Result) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.PublishReportQueried(ctx, amqp.NewReportQueriedMessage(res.Filter, res.Table.Len(), res.Duration))
}

// Close closes the data source and publisher when they support it
func (s *ReportService) Close() error {
	var errs []error

	if c, ok := s.source.(interface{ Close() error }); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(interface{ Close() error }); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close report service: %w", errors.Join(errs...))
	}

	return nil
}

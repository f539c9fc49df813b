package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/alexbrainman/odbc"
	_ "modernc.org/sqlite"

	"rekord/internal/config"
	"rekord/internal/core"
)

// Repository is a read-only view of the non-conformance report tables.
type Repository struct {
	db      *sql.DB
	timeout time.Duration
}

// Open opens the configured data source. sql.Open does not dial, so a
// reachable data source is only verified on first use or by Ping.
func Open(cfg *config.Config) (*Repository, error) {
	if cfg.DBDriver == config.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DBDSN), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open(cfg.DBDriver, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open %s data source: %w", cfg.DBDriver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return NewRepository(db, cfg.QueryTimeout), nil
}

// NewRepository wraps an existing handle. A zero timeout disables the
// per-query deadline.
func NewRepository(db *sql.DB, timeout time.Duration) *Repository {
	return &Repository{db: db, timeout: timeout}
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks that a connection to the data source can be established.
func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.db.PingContext(ctx); err != nil {
		return core.NewDataError(core.KindConnection, "ping", err)
	}
	return nil
}

// DistinctValues returns the distinct non-null values of field, ascending.
func (r *Repository) DistinctValues(ctx context.Context, field core.Field) ([]string, error) {
	query, err := distinctValuesQuery(field)
	if err != nil {
		return nil, core.NewDataError(core.KindQuery, "distinct values", err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, core.NewDataError(core.KindConnection, "distinct values", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, core.NewDataError(core.KindQuery, "distinct values", fmt.Errorf("field %s: %w", field, err))
	}
	values, err := scanRows(rows, func(rows *sql.Rows) (string, error) {
		var v string
		err := rows.Scan(&v)
		return v, err
	})
	if err != nil {
		return nil, core.NewDataError(core.KindQuery, "distinct values", fmt.Errorf("scan %s: %w", field, err))
	}
	if values == nil {
		values = []string{}
	}

	slog.DebugContext(ctx, "Distinct values loaded", "field", field, "count", len(values))
	return values, nil
}

// Records runs the filtered records query. A successful query with no
// matches returns an empty, non-nil table; failures return a nil table and
// a *core.DataError.
func (r *Repository) Records(ctx context.Context, f core.Filter) (*core.Table, error) {
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	query, args := BuildRecordsQuery(f)

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, core.NewDataError(core.KindConnection, "records", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewDataError(core.KindQuery, "records", err)
	}

	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, core.NewDataError(core.KindQuery, "records", fmt.Errorf("columns: %w", err))
	}

	records, err := scanRows(rows, scanRecord)
	if err != nil {
		return nil, core.NewDataError(core.KindQuery, "records", fmt.Errorf("scan: %w", err))
	}
	if records == nil {
		records = []core.Record{}
	}

	slog.DebugContext(ctx, "Records loaded",
		"years", f.Years,
		"categories", len(f.OrderCategories),
		"symbols", len(f.ObjectSymbols),
		"rows", len(records),
		"duration_ms", time.Since(start).Milliseconds())

	return &core.Table{Columns: columns, Records: records}, nil
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func scanRecord(rows *sql.Rows) (core.Record, error) {
	var (
		rec core.Record
		reg nullTime
	)
	err := rows.Scan(
		&rec.Year, &rec.Number, &rec.OrderCategory, &rec.OrderSymbol, &rec.LineItem, &rec.CarrierNumber,
		&reg, &rec.ObjectSymbol, &rec.Cause, &rec.Description, &rec.CorrectiveMeasures,
		&rec.LocationCode, &rec.LocationName, &rec.ConductorNumber, &rec.Index, &rec.Ident,
	)
	rec.RegisteredAt = sql.NullTime(reg)
	return rec, err
}

// scanRows scans all rows into a slice using the provided scanner.
func scanRows[T any](rows *sql.Rows, scan func(*sql.Rows) (T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// nullTime accepts native time values as well as textual dates, which is
// what SQLite and some ODBC drivers hand back for DATE columns.
type nullTime sql.NullTime

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	time.DateTime,
	time.DateOnly,
}

func (t *nullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = nullTime{}
		return nil
	case time.Time:
		*t = nullTime{Time: v, Valid: true}
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("unsupported date value %T", src)
	}
}

func (t *nullTime) parse(s string) error {
	if s == "" {
		*t = nullTime{}
		return nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			*t = nullTime{Time: ts, Valid: true}
			return nil
		}
	}
	return fmt.Errorf("unrecognized date %q", s)
}

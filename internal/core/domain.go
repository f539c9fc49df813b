package core

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Displayable year range offered by the filter UI.
const (
	MinYear = 2020
	MaxYear = 2029
)

type (
	// Field is an allow-listed column identifier of the record table.
	// Only Field values are ever interpolated into query text.
	Field string

	// Record is one non-conformance report row.
	Record struct {
		Year               int            // ROK_OBL
		Number             int64          // NUMER
		OrderCategory      sql.NullString // KAT_ZLEC
		OrderSymbol        sql.NullString // SYMB_ZLEC
		LineItem           sql.NullString // LP_ZLEC
		CarrierNumber      sql.NullString // NR_PRZEW
		RegisteredAt       sql.NullTime   // DATA_REJ
		ObjectSymbol       sql.NullString // SYMBOL_OBJ
		Cause              sql.NullString // PRZYCZYNA
		Description        sql.NullString // OPIS
		CorrectiveMeasures sql.NullString // SR_ZARADCZE
		LocationCode       sql.NullString // MIEJSCE_POWST
		LocationName       sql.NullString // NAZWA (lookup join)
		ConductorNumber    sql.NullString // NUM_PRZEWOD
		Index              sql.NullString // INDEKS
		Ident              sql.NullString // IDENT
	}

	// Table is a query result: named columns and zero or more rows.
	Table struct {
		Columns []string
		Records []Record
	}

	// Filter is the user's current selection. Empty category or symbol
	// sets mean no restriction on that field.
	Filter struct {
		Years           []int
		OrderCategories []string
		ObjectSymbols   []string
	}

	// YearCount is one aggregate row: number of records for a year.
	YearCount struct {
		Year  int `json:"year"`
		Count int `json:"count"`
	}
)

const (
	FieldYear          Field = "ROK_OBL"
	FieldOrderCategory Field = "KAT_ZLEC"
	FieldObjectSymbol  Field = "SYMBOL_OBJ"
)

// Columns is the projection returned by the records query, in order.
var Columns = []string{
	"ROK_OBL", "NUMER", "KAT_ZLEC", "SYMB_ZLEC", "LP_ZLEC", "NR_PRZEW",
	"DATA_REJ", "SYMBOL_OBJ", "PRZYCZYNA", "OPIS", "SR_ZARADCZE",
	"MIEJSCE_POWST", "NAZWA", "NUM_PRZEWOD", "INDEKS", "IDENT",
}

var (
	ErrNoYears      = errors.New("no years selected")
	ErrYearRange    = fmt.Errorf("year outside %d-%d", MinYear, MaxYear)
	ErrUnknownField = errors.New("unknown field")
)

// DefaultYears is the initial year selection of a new session.
func DefaultYears() []int { return []int{2023, 2024, 2025} }

// YearOptions lists every selectable year.
func YearOptions() []int {
	out := make([]int, 0, MaxYear-MinYear+1)
	for y := MinYear; y <= MaxYear; y++ {
		out = append(out, y)
	}
	return out
}

// OptionFields are the fields whose distinct values feed the filter UI.
func OptionFields() []Field { return []Field{FieldOrderCategory, FieldObjectSymbol} }

// ParseField maps a name onto the allow-list.
func ParseField(name string) (Field, error) {
	f := Field(strings.ToUpper(strings.TrimSpace(name)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return f, nil
}

func (f Field) Valid() bool {
	switch f {
	case FieldYear, FieldOrderCategory, FieldObjectSymbol:
		return true
	default:
		return false
	}
}

func (f Field) String() string { return string(f) }

// Label returns the localized filter label for the field.
func (f Field) Label() string {
	switch f {
	case FieldYear:
		return "Rok"
	case FieldOrderCategory:
		return "Kategoria zlecenia (KAT_ZLEC)"
	case FieldObjectSymbol:
		return "Kategoria niezgodności (SYMBOL_OBJ)"
	default:
		return string(f)
	}
}

// Normalize returns a copy with sorted, deduplicated sets. Values are kept
// byte for byte so they still match what DistinctValues returned.
func (f Filter) Normalize() Filter {
	years := slices.Clone(f.Years)
	slices.Sort(years)
	return Filter{
		Years:           slices.Compact(years),
		OrderCategories: dedupeSorted(f.OrderCategories),
		ObjectSymbols:   dedupeSorted(f.ObjectSymbols),
	}
}

// Validate checks that at least one year is selected and every year is
// inside the displayable range.
func (f Filter) Validate() error {
	if len(f.Years) == 0 {
		return ErrNoYears
	}
	for _, y := range f.Years {
		if y < MinYear || y > MaxYear {
			return fmt.Errorf("%w: %d", ErrYearRange, y)
		}
	}
	return nil
}

// HasYear reports whether y is part of the selection.
func (f Filter) HasYear(y int) bool { return slices.Contains(f.Years, y) }

// Empty reports whether the query matched no rows.
func (t *Table) Empty() bool { return t == nil || len(t.Records) == 0 }

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Values returns the record as display strings in Columns order.
func (r Record) Values() []string {
	return []string{
		fmt.Sprint(r.Year),
		fmt.Sprint(r.Number),
		nullString(r.OrderCategory),
		nullString(r.OrderSymbol),
		nullString(r.LineItem),
		nullString(r.CarrierNumber),
		nullTime(r.RegisteredAt),
		nullString(r.ObjectSymbol),
		nullString(r.Cause),
		nullString(r.Description),
		nullString(r.CorrectiveMeasures),
		nullString(r.LocationCode),
		nullString(r.LocationName),
		nullString(r.ConductorNumber),
		nullString(r.Index),
		nullString(r.Ident),
	}
}

func nullString(s sql.NullString) string {
	if !s.Valid {
		return ""
	}
	return s.String
}

func nullTime(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	if t.Time.Hour() == 0 && t.Time.Minute() == 0 && t.Time.Second() == 0 {
		return t.Time.Format(time.DateOnly)
	}
	return t.Time.Format(time.DateTime)
}

func dedupeSorted(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

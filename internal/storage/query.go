package storage

import (
	"fmt"
	"strings"

	"rekord/internal/core"
)

const (
	recordsTable  = "M_OPERBRAKI"
	locationTable = "M_MP_BRAKOW"
)

const recordsSelect = `SELECT B.ROK_OBL, B.NUMER, B.KAT_ZLEC, B.SYMB_ZLEC, B.LP_ZLEC, B.NR_PRZEW,
       B.DATA_REJ, B.SYMBOL_OBJ, B.PRZYCZYNA, B.OPIS, B.SR_ZARADCZE,
       B.MIEJSCE_POWST, MPB.NAZWA, B.NUM_PRZEWOD, B.INDEKS, B.IDENT
FROM ` + recordsTable + ` B
LEFT JOIN ` + locationTable + ` MPB ON MPB.SYMBOL = B.MIEJSCE_POWST`

// inClauseArgs returns a comma-separated list of "?" placeholders and the
// corresponding args slice.
func inClauseArgs[T any](items []T) (placeholders string, args []any) {
	ph := make([]string, len(items))
	args = make([]any, len(items))
	for i, item := range items {
		ph[i] = "?"
		args[i] = item
	}
	return strings.Join(ph, ", "), args
}

// BuildRecordsQuery returns the records query and its positional args.
// Each non-empty set adds one IN predicate; predicates are ANDed and an
// absent predicate falls back to 1=1. Values never enter the query text.
func BuildRecordsQuery(f core.Filter) (string, []any) {
	var (
		conditions []string
		params     []any
	)
	add := func(field core.Field, placeholders string, args []any) {
		conditions = append(conditions, fmt.Sprintf("B.%s IN (%s)", field, placeholders))
		params = append(params, args...)
	}

	if len(f.Years) > 0 {
		ph, args := inClauseArgs(f.Years)
		add(core.FieldYear, ph, args)
	}
	if len(f.OrderCategories) > 0 {
		ph, args := inClauseArgs(f.OrderCategories)
		add(core.FieldOrderCategory, ph, args)
	}
	if len(f.ObjectSymbols) > 0 {
		ph, args := inClauseArgs(f.ObjectSymbols)
		add(core.FieldObjectSymbol, ph, args)
	}

	where := "1=1"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}

	query := recordsSelect + "\nWHERE " + where + "\nORDER BY B.ROK_OBL DESC, B.NUMER DESC"
	return query, params
}

// distinctValuesQuery builds the option lookup query. field must come from
// the allow-list.
func distinctValuesQuery(field core.Field) (string, error) {
	if !field.Valid() {
		return "", fmt.Errorf("%w: %q", core.ErrUnknownField, string(field))
	}
	return fmt.Sprintf("SELECT DISTINCT %[1]s FROM %[2]s WHERE %[1]s IS NOT NULL ORDER BY %[1]s", field, recordsTable), nil
}

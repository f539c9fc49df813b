// Package http provides HTTP server and handler implementations.
//
// This file parses filter selections out of query strings. The whole
// filter state of a session lives in the URL, so pages, htmx partials and
// the JSON API share these helpers.

package http

import (
	"net/url"
	"strconv"
	"strings"

	"rekord/internal/core"
)

// Query parameter names.
const (
	paramView      = "view"
	paramYear      = "year"
	paramCategory  = "category"
	paramSymbol    = "symbol"
	paramSubmitted = "f"
)

// View selects the presentation of a report.
type View string

const (
	ViewChart    View = "chart"
	ViewTable    View = "table"
	ViewSettings View = "settings"
)

// ParseView maps a query value onto a report view, defaulting to the chart.
func ParseView(s string) View {
	switch View(strings.ToLower(strings.TrimSpace(s))) {
	case ViewTable:
		return ViewTable
	default:
		return ViewChart
	}
}

// Path returns the page path of the view.
func (v View) Path() string {
	switch v {
	case ViewTable:
		return "/table"
	case ViewSettings:
		return "/settings"
	default:
		return "/charts"
	}
}

// FilterParams is a parsed filter selection.
type FilterParams struct {
	Filter core.Filter
	// Invalid holds year values that were skipped.
	Invalid []string
	// Explicit is set when the query carried a selection, even an empty one.
	Explicit bool
}

// ParseFilterParams extracts the filter from query values. Years accept
// repeated parameters and comma separated lists. When the query carries no
// selection and withDefaults is set, the default years are used.
func ParseFilterParams(q url.Values, withDefaults bool) FilterParams {
	var p FilterParams
	_, submitted := q[paramSubmitted]
	_, hasYears := q[paramYear]
	p.Explicit = submitted || hasYears

	for _, raw := range splitValues(q[paramYear]) {
		y, err := strconv.Atoi(raw)
		if err != nil || y < core.MinYear || y > core.MaxYear {
			p.Invalid = append(p.Invalid, raw)
			continue
		}
		p.Filter.Years = append(p.Filter.Years, y)
	}
	p.Filter.OrderCategories = sanitizeValues(q[paramCategory])
	p.Filter.ObjectSymbols = sanitizeValues(q[paramSymbol])

	if !p.Explicit && withDefaults {
		p.Filter.Years = core.DefaultYears()
	}
	p.Filter = p.Filter.Normalize()
	return p
}

// EncodeFilter renders f as query values understood by ParseFilterParams.
func EncodeFilter(f core.Filter) url.Values {
	q := url.Values{}
	q.Set(paramSubmitted, "1")
	for _, y := range f.Years {
		q.Add(paramYear, strconv.Itoa(y))
	}
	for _, c := range f.OrderCategories {
		q.Add(paramCategory, c)
	}
	for _, s := range f.ObjectSymbols {
		q.Add(paramSymbol, s)
	}
	return q
}

// ViewURL is the page URL of view with filter f applied.
func ViewURL(v View, f core.Filter) string {
	return v.Path() + "?" + EncodeFilter(f).Encode()
}

func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// sanitizeValues keeps category values verbatim apart from control
// characters; commas and padding are legal inside them.
func sanitizeValues(values []string) []string {
	var out []string
	for _, v := range values {
		if v = sanitizeInput(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

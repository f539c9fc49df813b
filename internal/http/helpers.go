package http

import (
	"errors"
	"net/http"
	"strings"

	"rekord/internal/core"
	"rekord/internal/report"
)

// User-facing messages.
const (
	MsgNoData           = report.MsgNoData
	MsgChooseYearsChart = report.MsgChooseYearsChart
	MsgChooseYearsTable = report.MsgChooseYearsTable
	MsgConnection       = report.MsgConnection
	MsgQuery            = report.MsgQuery
	MsgTimeout          = report.MsgTimeout
	MsgOptionsPrefix    = report.MsgOptionsPrefix
	MsgInvalidYears     = "Pominięto nieprawidłowe lata: "
	MsgOptionsRefreshed = "Listy wartości filtrów zostaną pobrane ponownie."
	MsgRateLimited      = "Zbyt wiele zapytań. Spróbuj ponownie za chwilę."
)

// noYearsMessage is the prompt shown instead of a report without years.
func noYearsMessage(v View) string {
	if v == ViewTable {
		return MsgChooseYearsTable
	}
	return MsgChooseYearsChart
}

func dataErrorMessage(err error) string { return report.DataErrorMessage(err) }

// dataErrorStatus maps a data layer failure onto an API status code.
func dataErrorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrNoYears), errors.Is(err, core.ErrYearRange), errors.Is(err, core.ErrUnknownField):
		return http.StatusBadRequest
	}
	switch core.KindOf(err) {
	case core.KindConnection:
		return http.StatusServiceUnavailable
	case core.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// sanitizeInput removes control characters. Surrounding space is kept:
// padded values are legal in the data source.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 {
			return -1
		}
		return r
	}, s)
}

package report

import "rekord/internal/core"

// User-facing messages shared by the web UI and the terminal.
const (
	MsgNoData           = "Brak danych dla wybranych filtrów."
	MsgChooseYearsChart = "Wybierz lata, aby wygenerować wykres."
	MsgChooseYearsTable = "Wybierz lata, aby wyświetlić tabelę."
	MsgConnection       = "Błąd połączenia z bazą danych"
	MsgQuery            = "Błąd zapytania"
	MsgTimeout          = "Przekroczono czas oczekiwania na bazę danych"
	MsgOptionsPrefix    = "Błąd pobierania wartości dla "
)

// DataErrorMessage maps a data layer failure onto a localized message.
func DataErrorMessage(err error) string {
	switch core.KindOf(err) {
	case core.KindConnection:
		return MsgConnection
	case core.KindTimeout:
		return MsgTimeout
	default:
		return MsgQuery
	}
}

package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"slices"
	"strings"
	"time"

	"rekord/internal/cache"
	"rekord/internal/core"
	"rekord/internal/log"
	"rekord/internal/report"
)

// templateFuncs holds the arithmetic the SVG chart template needs.
var templateFuncs = template.FuncMap{
	"f2":   func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"half": func(v float64) float64 { return v / 2 },
	"mid":  func(a, b float64) float64 { return (a + b) / 2 },
	"sub":  func(a, b float64) float64 { return a - b },
}

type message struct {
	Kind   NotificationType
	Text   string
	Detail string
}

type yearOption struct {
	Year     int
	Selected bool
}

type optionValue struct {
	Value    string
	Selected bool
}

type optionList struct {
	Param  string
	Label  string
	Values []optionValue
	Error  *message
}

type navItem struct {
	Label  string
	URL    string
	Active bool
}

// reportView is the content swapped into #report.
type reportView struct {
	View     View
	Heading  string
	Notices  []message
	Message  *message
	Chart    *report.Chart
	Columns  []string
	Rows     [][]string
	Total    int
	Duration time.Duration
}

// optionStatus is one row of the option list table on the settings page.
type optionStatus struct {
	Label    string
	LoadedAt string
}

// serverMetrics is what the settings page shows about the middleware.
type serverMetrics struct {
	Requests         int64
	FailedRequests   int64
	AvgDuration      time.Duration
	RateLimited      int64
	RateLimitClients int64
	Suspicious       int64
	Blocked          int64
}

type pageData struct {
	Title    string
	View     View
	Version  string
	Nav      []navItem
	Years    []yearOption
	Options  []optionList
	Report   reportView
	Settings [][2]string
	Cache    cache.Stats
	Lists    []optionStatus
	Metrics  serverMetrics
}

func viewHeading(v View) string {
	switch v {
	case ViewTable:
		return "📁 Tabela danych"
	case ViewSettings:
		return "⚙️ Ustawienia"
	default:
		return "📊 Wykresy"
	}
}

func (s *Server) nav(active View, f core.Filter) []navItem {
	views := []View{ViewChart, ViewTable, ViewSettings}
	items := make([]navItem, 0, len(views))
	for _, v := range views {
		items = append(items, navItem{Label: viewHeading(v), URL: ViewURL(v, f), Active: v == active})
	}
	return items
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.svc.Ready(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	target := ViewChart.Path()
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// handlePage renders a full report page with the filter form.
func (s *Server) handlePage(view View) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := ParseFilterParams(r.URL.Query(), true)
		data := s.basePage(r.Context(), view, params.Filter)
		data.Options = s.optionLists(r.Context(), params.Filter)
		data.Report = s.buildReport(r.Context(), view, params)
		s.render(w, r, nil, "page", data)
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	params := ParseFilterParams(r.URL.Query(), true)
	data := s.basePage(r.Context(), ViewSettings, params.Filter)
	data.Settings = s.settings
	data.Cache = s.svc.CacheStats()
	for _, field := range core.OptionFields() {
		st := optionStatus{Label: field.Label(), LoadedAt: "nie pobrano"}
		if at, ok := s.svc.OptionsLoadedAt(field); ok {
			st.LoadedAt = at.Format(time.DateTime)
		}
		data.Lists = append(data.Lists, st)
	}
	data.Metrics = s.metrics()
	s.render(w, r, nil, "page", data)
}

func (s *Server) metrics() serverMetrics {
	tm := s.tracer.GetMetrics()
	rm := s.limiter.GetMetrics()
	dm := s.detector.GetMetrics()
	m := serverMetrics{
		Requests:         tm.TotalRequests,
		FailedRequests:   tm.FailedRequests,
		RateLimited:      rm.TotalHits,
		RateLimitClients: rm.ClientCount,
		Suspicious:       dm.SuspiciousRequests,
		Blocked:          dm.BlockedRequests,
	}
	if tm.TotalRequests > 0 {
		m.AvgDuration = (time.Duration(tm.TotalDurationUs/tm.TotalRequests) * time.Microsecond).Round(time.Microsecond)
	}
	return m
}

func (s *Server) basePage(_ context.Context, view View, f core.Filter) pageData {
	years := make([]yearOption, 0, core.MaxYear-core.MinYear+1)
	for _, y := range core.YearOptions() {
		years = append(years, yearOption{Year: y, Selected: f.HasYear(y)})
	}
	return pageData{
		Title:   viewHeading(view),
		View:    view,
		Version: s.version,
		Nav:     s.nav(view, f),
		Years:   years,
	}
}

// optionLists loads the category and symbol choices. A failed lookup
// degrades to an empty list with an inline error.
func (s *Server) optionLists(ctx context.Context, f core.Filter) []optionList {
	selected := map[core.Field][]string{
		core.FieldOrderCategory: f.OrderCategories,
		core.FieldObjectSymbol:  f.ObjectSymbols,
	}
	params := map[core.Field]string{
		core.FieldOrderCategory: paramCategory,
		core.FieldObjectSymbol:  paramSymbol,
	}

	var lists []optionList
	for _, ol := range s.svc.AllOptions(ctx) {
		list := optionList{Param: params[ol.Field], Label: "Filtr: " + ol.Field.Label()}
		for _, v := range ol.Values {
			list.Values = append(list.Values, optionValue{Value: v, Selected: slices.Contains(selected[ol.Field], v)})
		}
		if ol.Err != nil {
			list.Error = &message{
				Kind:   NotificationError,
				Text:   MsgOptionsPrefix + ol.Field.String(),
				Detail: ol.Err.Error(),
			}
		}
		lists = append(lists, list)
	}
	return lists
}

// buildReport runs the query for a view and turns the outcome into the
// content of the report area. It never fails: problems become messages.
func (s *Server) buildReport(ctx context.Context, view View, params FilterParams) reportView {
	rv := reportView{View: view, Heading: viewHeading(view)}
	if len(params.Invalid) > 0 {
		rv.Notices = append(rv.Notices, message{Kind: NotificationWarning, Text: MsgInvalidYears + strings.Join(params.Invalid, ", ")})
	}

	if len(params.Filter.Years) == 0 {
		rv.Message = &message{Kind: NotificationInfo, Text: noYearsMessage(view)}
		return rv
	}

	res, err := s.svc.Report(ctx, params.Filter)
	if err != nil {
		rv.Message = &message{Kind: NotificationError, Text: dataErrorMessage(err), Detail: err.Error()}
		return rv
	}
	if res.Empty() {
		rv.Message = &message{Kind: NotificationWarning, Text: MsgNoData}
		return rv
	}

	rv.Total = res.Table.Len()
	rv.Duration = res.Duration
	switch view {
	case ViewTable:
		rv.Columns = res.Table.Columns
		rv.Rows = make([][]string, 0, len(res.Table.Records))
		for _, rec := range res.Table.Records {
			rv.Rows = append(rv.Rows, rec.Values())
		}
	default:
		c := report.BuildChart(res.Counts, report.DefaultChartOptions())
		rv.Chart = &c
	}
	return rv
}

// handleReportPartial re-renders the report area after a filter change.
func (s *Server) handleReportPartial(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view := ParseView(q.Get(paramView))
	params := ParseFilterParams(q, false)

	rv := s.buildReport(r.Context(), view, params)
	b := NewHTMXResponse().
		PushURL(ViewURL(view, params.Filter)).
		TriggerReportUpdated(view, rv.Total)
	s.render(w, r, b, "report", rv)
}

func (s *Server) handleRefreshOptions(w http.ResponseWriter, r *http.Request) {
	s.svc.InvalidateOptions()
	log.FromContext(r.Context()).InfoContext(r.Context(), "Option lists invalidated")
	MessageResponse(NotificationSuccess, MsgOptionsRefreshed).Write(w)
}

// handleYearCounts answers with the aggregate rows, ascending by year.
func (s *Server) handleYearCounts(w http.ResponseWriter, r *http.Request) {
	params := ParseFilterParams(r.URL.Query(), false)
	if len(params.Invalid) > 0 {
		JSONError(http.StatusBadRequest, "invalid year: "+strings.Join(params.Invalid, ", "), "").Write(w)
		return
	}
	if len(params.Filter.Years) == 0 {
		JSONError(http.StatusBadRequest, core.ErrNoYears.Error(), "").Write(w)
		return
	}

	counts, err := s.svc.YearCounts(r.Context(), params.Filter)
	if err != nil {
		JSONError(dataErrorStatus(err), dataErrorMessage(err), string(core.KindOf(err))).Write(w)
		return
	}
	if counts == nil {
		counts = []core.YearCount{}
	}

	NewHTMXResponse().BodyJSON(counts).Write(w)
}

type optionsResponse struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	field, err := core.ParseField(r.PathValue("field"))
	if err != nil {
		JSONError(http.StatusNotFound, err.Error(), "").Write(w)
		return
	}

	values, err := s.svc.Options(r.Context(), field)
	if err != nil {
		status := dataErrorStatus(err)
		if errors.Is(err, context.Canceled) {
			status = http.StatusServiceUnavailable
		}
		JSONError(status, dataErrorMessage(err), string(core.KindOf(err))).Write(w)
		return
	}

	NewHTMXResponse().BodyJSON(optionsResponse{Field: field.String(), Values: values}).Write(w)
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"rekord/internal/cache"
	"rekord/internal/core"
	"rekord/internal/log"
	"rekord/internal/middleware/ratelimit"
	"rekord/internal/report"
	"rekord/internal/services"
)

type fakeService struct {
	mu          sync.Mutex
	options     map[core.Field][]string
	optionsErr  error
	table       *core.Table
	reportErr   error
	readyErr    error
	reportCalls int
	countCalls  int
	lastFilter  core.Filter
	invalidated bool
	loadedAt    map[core.Field]time.Time
}

func (f *fakeService) Options(_ context.Context, field core.Field) ([]string, error) {
	if f.optionsErr != nil {
		return nil, f.optionsErr
	}
	return f.options[field], nil
}

func (f *fakeService) AllOptions(ctx context.Context) []services.OptionList {
	var lists []services.OptionList
	for _, field := range core.OptionFields() {
		values, err := f.Options(ctx, field)
		if err != nil {
			values = []string{}
		}
		lists = append(lists, services.OptionList{Field: field, Values: values, Err: err})
	}
	return lists
}

func (f *fakeService) Report(_ context.Context, filter core.Filter) (*services.Result, error) {
	f.mu.Lock()
	f.reportCalls++
	f.lastFilter = filter
	f.mu.Unlock()
	if f.reportErr != nil {
		return nil, f.reportErr
	}
	return &services.Result{Filter: filter, Table: f.table, Counts: report.Aggregate(f.table)}, nil
}

func (f *fakeService) YearCounts(_ context.Context, filter core.Filter) ([]core.YearCount, error) {
	f.mu.Lock()
	f.countCalls++
	f.lastFilter = filter
	f.mu.Unlock()
	if f.reportErr != nil {
		return nil, f.reportErr
	}
	return report.Aggregate(f.table), nil
}

func (f *fakeService) OptionsLoadedAt(field core.Field) (time.Time, bool) {
	at, ok := f.loadedAt[field]
	return at, ok
}

func (f *fakeService) Ready(context.Context) error { return f.readyErr }

func (f *fakeService) InvalidateOptions() { f.invalidated = true }

func (f *fakeService) CacheStats() cache.Stats { return cache.Stats{Entries: 2, Hits: 5, Misses: 2} }

func sampleTable() *core.Table {
	t := &core.Table{Columns: core.Columns}
	for i, y := range []int{2024, 2024, 2024, 2023} {
		t.Records = append(t.Records, core.Record{Year: y, Number: int64(10 - i)})
	}
	return t
}

func newTestServer(t *testing.T, svc *fakeService) *Server {
	t.Helper()
	srv, err := NewServer(":0", svc, Options{
		Logger:    log.New(log.Config{Output: &bytes.Buffer{}}),
		Settings:  [][2]string{{"Sterownik", "sqlite"}, {"Hasło", "••••••"}},
		RateLimit: ratelimit.Config{RequestsPerMinute: 1000},
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func get(t *testing.T, srv *Server, target string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestIndexRedirectsToCharts(t *testing.T) {
	srv := newTestServer(t, &fakeService{table: sampleTable()})
	rec := get(t, srv, "/?year=2024")
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/charts?year=2024" {
		t.Errorf("Location = %q", loc)
	}
}

func TestHealthAndReady(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc)

	if rec := get(t, srv, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	if rec := get(t, srv, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d", rec.Code)
	}

	svc.readyErr = core.NewDataError(core.KindConnection, "ping", errors.New("down"))
	if rec := get(t, srv, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with db down = %d", rec.Code)
	}
}

func TestChartsPageDefaults(t *testing.T) {
	svc := &fakeService{
		table: sampleTable(),
		options: map[core.Field][]string{
			core.FieldOrderCategory: {"P", "W"},
			core.FieldObjectSymbol:  {"A1"},
		},
	}
	srv := newTestServer(t, svc)

	rec := get(t, srv, "/charts")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()

	for _, want := range []string{
		"📊 Wykresy",
		report.ChartTitle,
		"<svg",
		`value="P"`,
		`name="symbol"`,
		"Filtr: Kategoria zlecenia (KAT_ZLEC)",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if got := svc.lastFilter.Years; len(got) != 3 || got[0] != 2023 || got[2] != 2025 {
		t.Errorf("default years = %v", got)
	}
	if !strings.Contains(body, `value="2024" checked`) {
		t.Error("default year not checked")
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers missing")
	}
}

func TestTablePageRendersAllColumns(t *testing.T) {
	srv := newTestServer(t, &fakeService{table: sampleTable()})

	body := get(t, srv, "/table?year=2024").Body.String()
	for _, col := range core.Columns {
		if !strings.Contains(body, "<th>"+col+"</th>") {
			t.Errorf("missing column %s", col)
		}
	}
	if !strings.Contains(body, "Liczba wierszy: 4") {
		t.Error("row count missing")
	}
}

func TestReportPartialMessages(t *testing.T) {
	tests := []struct {
		name   string
		svc    *fakeService
		target string
		want   string
		class  string
		calls  int
	}{
		{
			name:   "no years on chart view",
			svc:    &fakeService{table: sampleTable()},
			target: "/ui/report?view=chart&f=1",
			want:   MsgChooseYearsChart,
			class:  "msg-info",
		},
		{
			name:   "no years on table view",
			svc:    &fakeService{table: sampleTable()},
			target: "/ui/report?view=table&f=1&category=P",
			want:   MsgChooseYearsTable,
			class:  "msg-info",
		},
		{
			name:   "empty result",
			svc:    &fakeService{table: &core.Table{Columns: core.Columns}},
			target: "/ui/report?view=chart&year=2024",
			want:   MsgNoData,
			class:  "msg-warning",
			calls:  1,
		},
		{
			name:   "connection failure",
			svc:    &fakeService{reportErr: core.NewDataError(core.KindConnection, "records", errors.New("refused"))},
			target: "/ui/report?view=table&year=2024",
			want:   MsgConnection,
			class:  "msg-error",
			calls:  1,
		},
		{
			name:   "timeout",
			svc:    &fakeService{reportErr: core.NewDataError(core.KindTimeout, "records", context.DeadlineExceeded)},
			target: "/ui/report?view=chart&year=2024",
			want:   MsgTimeout,
			class:  "msg-error",
			calls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.svc)
			rec := get(t, srv, tt.target, "HX-Request", "true")

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			body := rec.Body.String()
			if !strings.Contains(body, tt.want) || !strings.Contains(body, tt.class) {
				t.Errorf("body = %s", body)
			}
			if strings.Contains(body, "<svg") || strings.Contains(body, "<table") {
				t.Error("message responses must not render chart or table")
			}
			if tt.svc.reportCalls != tt.calls {
				t.Errorf("report calls = %d, want %d", tt.svc.reportCalls, tt.calls)
			}
		})
	}
}

func TestReportPartialChart(t *testing.T) {
	svc := &fakeService{table: sampleTable()}
	srv := newTestServer(t, svc)

	rec := get(t, srv, "/ui/report?view=chart&year=2023&year=2024&category=P", "HX-Request", "true")
	body := rec.Body.String()

	if strings.Count(body, `class="bar"`) != 2 {
		t.Errorf("expected two bars: %s", body)
	}
	if !strings.Contains(body, "rotate(-45") {
		t.Error("year labels not rotated")
	}
	if push := rec.Header().Get("HX-Push-Url"); push != "/charts?category=P&f=1&year=2023&year=2024" {
		t.Errorf("HX-Push-Url = %q", push)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("partials must not be cached")
	}
	if got := svc.lastFilter.OrderCategories; len(got) != 1 || got[0] != "P" {
		t.Errorf("categories = %v", got)
	}
}

func TestReportPartialInvalidYearsWarn(t *testing.T) {
	srv := newTestServer(t, &fakeService{table: sampleTable()})
	body := get(t, srv, "/ui/report?view=chart&year=1999&year=2024").Body.String()
	if !strings.Contains(body, MsgInvalidYears+"1999") {
		t.Errorf("missing invalid year notice: %s", body)
	}
	if !strings.Contains(body, "<svg") {
		t.Error("valid years should still render")
	}
}

func TestOptionFailureDegrades(t *testing.T) {
	svc := &fakeService{
		table:      sampleTable(),
		optionsErr: core.NewDataError(core.KindConnection, "distinct values", errors.New("refused")),
	}
	srv := newTestServer(t, svc)

	rec := get(t, srv, "/charts")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, MsgOptionsPrefix+"KAT_ZLEC") {
		t.Error("option error not shown")
	}
	if !strings.Contains(body, "<svg") {
		t.Error("chart should render despite option failure")
	}
}

func TestYearCountsAPI(t *testing.T) {
	svc := &fakeService{table: sampleTable()}
	srv := newTestServer(t, svc)

	rec := get(t, srv, "/api/year-counts?year=2023&year=2024")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var counts []core.YearCount
	if err := json.Unmarshal(rec.Body.Bytes(), &counts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []core.YearCount{{Year: 2023, Count: 1}, {Year: 2024, Count: 3}}
	if len(counts) != 2 || counts[0] != want[0] || counts[1] != want[1] {
		t.Errorf("counts = %v", counts)
	}
	if svc.countCalls != 1 || svc.reportCalls != 0 {
		t.Errorf("count calls = %d, report calls = %d", svc.countCalls, svc.reportCalls)
	}

	if rec := get(t, srv, "/api/year-counts"); rec.Code != http.StatusBadRequest {
		t.Errorf("missing years status = %d", rec.Code)
	}
	if rec := get(t, srv, "/api/year-counts?year=1990"); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid year status = %d", rec.Code)
	}
}

func TestYearCountsAPIDataError(t *testing.T) {
	srv := newTestServer(t, &fakeService{reportErr: core.NewDataError(core.KindConnection, "records", errors.New("refused"))})

	rec := get(t, srv, "/api/year-counts?year=2024")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"kind":"connection"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestOptionsAPI(t *testing.T) {
	srv := newTestServer(t, &fakeService{options: map[core.Field][]string{core.FieldObjectSymbol: {"A1", "B2"}}})

	rec := get(t, srv, "/api/options/symbol_obj")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body optionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Field != "SYMBOL_OBJ" || len(body.Values) != 2 {
		t.Errorf("body = %+v", body)
	}

	if rec := get(t, srv, "/api/options/OPIS"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown field status = %d", rec.Code)
	}
}

func TestSettingsPage(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc)

	body := get(t, srv, "/settings").Body.String()
	for _, want := range []string{"⚙️ Ustawienia", "Sterownik", "sqlite", "••••••", "Odśwież listy wartości"} {
		if !strings.Contains(body, want) {
			t.Errorf("settings missing %q", want)
		}
	}
	if svc.reportCalls != 0 {
		t.Error("settings page must not query records")
	}
	if !strings.Contains(body, "pobrano: nie pobrano") {
		t.Error("lists never loaded should say so")
	}

	req := httptest.NewRequest(http.MethodPost, "/ui/options/refresh", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !svc.invalidated {
		t.Errorf("refresh status = %d invalidated = %v", rec.Code, svc.invalidated)
	}
}

func TestStaticAssets(t *testing.T) {
	srv := newTestServer(t, &fakeService{})
	rec := get(t, srv, "/static/app.css")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Cache-Control"), "max-age=3600") {
		t.Errorf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}
}

func TestRateLimitedPartial(t *testing.T) {
	srv, err := NewServer(":0", &fakeService{table: sampleTable()}, Options{
		Logger:    log.New(log.Config{Output: &bytes.Buffer{}}),
		RateLimit: ratelimit.Config{RequestsPerMinute: 1},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Shutdown(context.Background())

	get(t, srv, "/api/year-counts?year=2024")
	rec := get(t, srv, "/api/year-counts?year=2024")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSettingsPageShowsLoadTimesAndMetrics(t *testing.T) {
	svc := &fakeService{
		table:    sampleTable(),
		loadedAt: map[core.Field]time.Time{core.FieldOrderCategory: time.Date(2025, 3, 4, 8, 15, 0, 0, time.Local)},
	}
	srv := newTestServer(t, svc)

	get(t, srv, "/charts?year=2024")
	get(t, srv, "/.env")

	body := get(t, srv, "/settings").Body.String()
	for _, want := range []string{
		"Kategoria zlecenia (KAT_ZLEC)</th><td>pobrano: 2025-03-04 08:15:00",
		"Kategoria niezgodności (SYMBOL_OBJ)</th><td>pobrano: nie pobrano",
		"<th>Żądania HTTP</th><td>2</td>",
		"<th>Podejrzane żądania</th><td>1</td>",
		"<th>Zablokowane żądania</th><td>1</td>",
		"<th>Odrzucone przez limit</th><td>0</td>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("settings missing %q", want)
		}
	}
}

func TestPaddedOptionStaysSelected(t *testing.T) {
	svc := &fakeService{
		table:   sampleTable(),
		options: map[core.Field][]string{core.FieldOrderCategory: {"P", "P "}},
	}
	srv := newTestServer(t, svc)

	body := get(t, srv, "/charts?year=2024&category=P%20").Body.String()
	if !strings.Contains(body, `value="P " selected`) {
		t.Errorf("padded option not selected: %s", body)
	}
	if strings.Contains(body, `value="P" selected`) {
		t.Error("unpadded option must not be selected")
	}
	if got := svc.lastFilter.OrderCategories; len(got) != 1 || got[0] != "P " {
		t.Errorf("categories = %q", got)
	}
}

func TestRateLimitedPage(t *testing.T) {
	srv, err := NewServer(":0", &fakeService{table: sampleTable()}, Options{
		Logger:    log.New(log.Config{Output: &bytes.Buffer{}}),
		RateLimit: ratelimit.Config{RequestsPerMinute: 1},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Shutdown(context.Background())

	if rec := get(t, srv, "/charts?year=2024"); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	for _, target := range []string{"/charts?year=2024", "/table?year=2024"} {
		rec := get(t, srv, target)
		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("%s status = %d", target, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), MsgRateLimited) {
			t.Errorf("%s body = %s", target, rec.Body.String())
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Errorf("%s missing Retry-After", target)
		}
	}
}

func TestTrustedProxyClientsLimitedSeparately(t *testing.T) {
	srv, err := NewServer(":0", &fakeService{table: sampleTable()}, Options{
		Logger:         log.New(log.Config{Output: &bytes.Buffer{}}),
		RateLimit:      ratelimit.Config{RequestsPerMinute: 1},
		TrustedProxies: []string{"192.0.2.0/24"},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Shutdown(context.Background())

	// httptest requests come from 192.0.2.1.
	for _, client := range []string{"203.0.113.7", "203.0.113.8"} {
		if rec := get(t, srv, "/api/year-counts?year=2024", "X-Forwarded-For", client); rec.Code != http.StatusOK {
			t.Errorf("client %s status = %d", client, rec.Code)
		}
	}
	if rec := get(t, srv, "/api/year-counts?year=2024", "X-Forwarded-For", "203.0.113.7"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("repeat client status = %d", rec.Code)
	}
}

func TestNewServerRejectsInvalidTrustedProxy(t *testing.T) {
	_, err := NewServer(":0", &fakeService{}, Options{
		Logger:         log.New(log.Config{Output: &bytes.Buffer{}}),
		TrustedProxies: []string{"10.0.0.1"},
	})
	if err == nil {
		t.Fatal("expected an error for a proxy that is not a CIDR")
	}
}

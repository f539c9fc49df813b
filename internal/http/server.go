package http

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"rekord/internal/cache"
	"rekord/internal/core"
	"rekord/internal/log"
	"rekord/internal/middleware/ratelimit"
	"rekord/internal/middleware/security"
	"rekord/internal/middleware/trace"
	"rekord/internal/services"
	appweb "rekord/web"
)

// ReportService is what the web layer needs from the service layer.
type ReportService interface {
	Options(ctx context.Context, field core.Field) ([]string, error)
	AllOptions(ctx context.Context) []services.OptionList
	Report(ctx context.Context, f core.Filter) (*services.Result, error)
	YearCounts(ctx context.Context, f core.Filter) ([]core.YearCount, error)
	Ready(ctx context.Context) error
	InvalidateOptions()
	OptionsLoadedAt(field core.Field) (time.Time, bool)
	CacheStats() cache.Stats
}

// Options configures a Server.
type Options struct {
	Logger *log.Logger
	// Settings is the redacted configuration shown on the settings page.
	Settings  [][2]string
	RateLimit ratelimit.Config
	// TrustedProxies are CIDRs added to the private networks whose
	// forwarding headers are believed.
	TrustedProxies []string
	Version        string
}

type Server struct {
	http.Server
	templates *template.Template
	svc       ReportService
	logger    *log.Logger
	settings  [][2]string
	version   string

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, svc ReportService, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		templates: t,
		svc:       svc,
		logger:    logger.WithComponent(log.ComponentHTTP),
		settings:  opts.Settings,
		version:   opts.Version,
		limiter:   ratelimit.NewLimiter(opts.RateLimit),
		detector:  security.NewDetector(),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.limiter.Stop()
			return nil, err
		}
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	mux := http.NewServeMux()

	// Static assets (served from embedded FS)
	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(
		http.StripPrefix("/static/", http.FileServer(http.FS(sub)))))

	limited := func(h http.HandlerFunc) http.Handler {
		return security.NoStore(s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)(h))
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /charts", limited(s.handlePage(ViewChart)))
	mux.Handle("GET /table", limited(s.handlePage(ViewTable)))
	mux.HandleFunc("GET /settings", s.handleSettings)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	// UI partials
	mux.Handle("GET /ui/report", limited(s.handleReportPartial))
	mux.Handle("POST /ui/options/refresh", limited(s.handleRefreshOptions))

	// JSON API
	mux.Handle("GET /api/year-counts", limited(s.handleYearCounts))
	mux.Handle("GET /api/options/{field}", limited(s.handleOptions))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Server = http.Server{
		Addr:    addr,
		Handler: s.tracer.Middleware(s.detector.Middleware(headers.Middleware(mux))),
	}

	return s, nil
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) execute(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("execute %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// render writes a full template response. Output is buffered so a failing
// template never leaves a half written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	body, err := s.execute(name, data)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldOperation, log.OpRender,
			log.FieldError, err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	if b == nil {
		b = NewHTMXResponse()
	}
	b.Header("Content-Type", "text/html; charset=utf-8").Body(body).Write(w)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldPath, r.URL.Path)
	switch {
	case r.Header.Get("HX-Request") == "true":
		MessageResponse(NotificationWarning, MsgRateLimited).Write(w)
	case strings.HasPrefix(r.URL.Path, "/api/"):
		JSONError(http.StatusTooManyRequests, "rate limit exceeded", "").Write(w)
	default:
		http.Error(w, MsgRateLimited, http.StatusTooManyRequests)
	}
}

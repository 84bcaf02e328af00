package httpx

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/cors"

	"github.com/splax/expensetracker/internal/apperror"
	"github.com/splax/expensetracker/internal/service/auth"
	"github.com/splax/expensetracker/internal/service/expense"
)

// Dependencies are the collaborators a Router serves.
type Dependencies struct {
	Logger   *slog.Logger
	Auth     auth.Service
	Expenses expense.Service
	// Limiter defaults to an in-memory limiter when nil.
	Limiter RateLimiter
	// DBHealth backs /healthz; nil reports no database component.
	DBHealth func(context.Context) error
	// Diagnostics adds the wrapped cause of internal errors to responses.
	Diagnostics    bool
	AllowedOrigins []string
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux         *http.ServeMux
	handler     http.Handler
	logger      *slog.Logger
	auth        auth.Service
	expenses    expense.Service
	limiter     RateLimiter
	metrics     *metrics
	dbHealth    func(context.Context) error
	diagnostics bool
}

// handlerFunc is an endpoint that reports failures by returning them.
type handlerFunc func(http.ResponseWriter, *http.Request) error

// middleware is one stage of a route's pipeline.
type middleware func(http.HandlerFunc) http.HandlerFunc

const (
	rateWindowDefault  = time.Minute
	rateLimitRegister  = 5
	rateLimitLogin     = 12
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(deps Dependencies) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:         http.NewServeMux(),
		logger:      logger,
		auth:        deps.Auth,
		expenses:    deps.Expenses,
		limiter:     deps.Limiter,
		metrics:     newMetrics(),
		dbHealth:    deps.DBHealth,
		diagnostics: deps.Diagnostics,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.register()

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	r.handler = cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	})(r.mux)
	return r
}

// ServeHTTP runs the CORS stage, then the route pipeline.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("GET /{$}", r.audit(r.handleWelcome))
	r.mux.HandleFunc("GET /healthz", r.audit(r.handleHealthz))
	r.mux.Handle("GET /metrics", r.metrics.handler())

	// Public routes are limited per client IP.
	r.route("POST /api/register", r.handleRegister, r.limit("register", rateLimitRegister, rateWindowDefault, rateLimitKeyIP))
	r.route("POST /api/login", r.handleLogin, r.limit("login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP))

	// Expense routes are limited per authenticated user.
	read := r.limit("expenses_read", rateLimitUserRead, rateWindowDefault, rateLimitKeyUser)
	write := r.limit("expenses_write", rateLimitUserWrite, rateWindowDefault, rateLimitKeyUser)
	r.route("GET /api/expenses", r.handleListExpenses, r.requireAuth, read)
	r.route("POST /api/expenses", r.handleCreateExpense, r.requireAuth, write)
	r.route("GET /api/expenses/summary", r.handleExpenseSummary, r.requireAuth, read)
	r.route("GET /api/expenses/{id}", r.handleGetExpense, r.requireAuth, read)
	r.route("DELETE /api/expenses/{id}", r.handleDeleteExpense, r.requireAuth, write)

	r.route("/", func(w http.ResponseWriter, req *http.Request) error {
		return apperror.NotFound("Route not found")
	})
}

// route registers h behind recovery and audit, followed by stages in order.
func (r *Router) route(pattern string, h handlerFunc, stages ...middleware) {
	final := r.handle(h)
	for i := len(stages) - 1; i >= 0; i-- {
		final = stages[i](final)
	}
	r.mux.HandleFunc(pattern, r.audit(r.recoverPanic(final)))
}

// handle is the terminal error stage.
func (r *Router) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			r.writeFailure(w, req, err)
		}
	}
}

func (r *Router) recoverPanic(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				r.logger.Error("panic recovered", "path", req.URL.Path, "panic", v, "stack", string(debug.Stack()))
				r.writeFailure(w, req, apperror.Internal(errors.New("panic in handler")))
			}
		}()
		next(w, req)
	}
}

func (r *Router) handleWelcome(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Expense tracker API"})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			r.logger.Warn("database health check failed", "error", err)
			components["database"] = map[string]any{"status": "down"}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		route := req.Pattern
		if route == "" || route == "/" {
			route = "unmatched"
		}
		r.metrics.recordRequest(req.Method, route, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			fields = append(fields, "user_id", info.UserID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

// clientIP is the caller as reported by X-Forwarded-For, for logging only.
// The header is client controlled; use remoteHost for anything enforced.
func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return remoteHost(req)
}

// remoteHost is the host of the connection peer.
func remoteHost(req *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/service"
	"pharmapos/backend/internal/telemetry"
)

const maxBodyBytes = 1 << 20

var (
	writers    = []string{domain.RoleAdmin, domain.RolePharmacist}
	adminsOnly = []string{domain.RoleAdmin}
)

type Options struct {
	AllowedOrigin string
	Logger        *zap.Logger
	Metrics       *telemetry.Metrics
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	logger        *zap.Logger
	metrics       *telemetry.Metrics
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewMetrics()
	}
	return &API{
		service:       svc,
		auth:          auth,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		allowedOrigin: opts.AllowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.observe)
	r.Use(middleware.Recoverer)
	r.Use(a.secureHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.allowedOrigin},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "Idempotency-Key"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth())
			r.Get("/auth/me", a.handleMe)
			r.Get("/dashboard", a.handleDashboard)

			r.Route("/users", func(r chi.Router) {
				r.Use(a.requireAuth(adminsOnly...))
				r.Get("/", a.handleListUsers)
				r.Post("/", a.handleCreateUser)
				r.Get("/{id}", a.handleGetUser)
				r.Patch("/{id}", a.handleUpdateUser)
				r.Delete("/{id}", a.handleDeleteUser)
			})

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", a.handleListCategories)
				r.Get("/{id}", a.handleGetCategory)
				r.With(a.requireAuth(writers...)).Post("/", a.handleCreateCategory)
				r.With(a.requireAuth(writers...)).Patch("/{id}", a.handleUpdateCategory)
				r.With(a.requireAuth(adminsOnly...)).Delete("/{id}", a.handleDeleteCategory)
			})

			r.Route("/suppliers", func(r chi.Router) {
				r.Get("/", a.handleListSuppliers)
				r.Get("/{id}", a.handleGetSupplier)
				r.With(a.requireAuth(writers...)).Post("/", a.handleCreateSupplier)
				r.With(a.requireAuth(writers...)).Patch("/{id}", a.handleUpdateSupplier)
				r.With(a.requireAuth(adminsOnly...)).Delete("/{id}", a.handleDeleteSupplier)
			})

			r.Route("/customers", func(r chi.Router) {
				r.Get("/", a.handleListCustomers)
				r.Post("/", a.handleCreateCustomer)
				r.Get("/{id}", a.handleGetCustomer)
				r.Patch("/{id}", a.handleUpdateCustomer)
				r.With(a.requireAuth(adminsOnly...)).Delete("/{id}", a.handleDeleteCustomer)
			})

			r.Route("/drugs", func(r chi.Router) {
				r.Get("/", a.handleListDrugs)
				r.Get("/{id}", a.handleGetDrug)
				r.With(a.requireAuth(writers...)).Post("/", a.handleCreateDrug)
				r.With(a.requireAuth(writers...)).Patch("/{id}", a.handleUpdateDrug)
				r.With(a.requireAuth(adminsOnly...)).Delete("/{id}", a.handleDeleteDrug)
			})

			r.Route("/batches", func(r chi.Router) {
				r.Get("/", a.handleListBatches)
				r.Get("/{id}", a.handleGetBatch)
				r.With(a.requireAuth(writers...)).Post("/", a.handleCreateBatch)
				r.With(a.requireAuth(writers...)).Patch("/{id}", a.handleUpdateBatch)
				r.With(a.requireAuth(adminsOnly...)).Delete("/{id}", a.handleDeleteBatch)
			})

			r.Route("/sales", func(r chi.Router) {
				r.Post("/", a.handleCommitSale)
				r.Get("/", a.handleListSales)
				r.Get("/idempotency/{key}", a.handleSaleLookup)
				r.Get("/{id}", a.handleGetSale)
				r.Get("/{id}/items", a.handleListSaleItems)
				r.With(a.requireAuth(adminsOnly...)).Post("/{id}/refund", a.handleRefundSale)
				r.With(a.requireAuth(adminsOnly...)).Post("/{id}/cancel", a.handleCancelSale)
			})

			r.Route("/purchases", func(r chi.Router) {
				r.Use(a.requireAuth(writers...))
				r.Get("/", a.handleListPurchases)
				r.Post("/", a.handleCreatePurchase)
				r.Get("/{id}", a.handleGetPurchase)
				r.Delete("/{id}", a.handleDeletePurchase)
				r.Post("/{id}/receive", a.handleReceivePurchase)
			})

			r.Route("/settings", func(r chi.Router) {
				r.Get("/", a.handleListSettings)
				r.Get("/{key}", a.handleGetSetting)
				r.With(a.requireAuth(adminsOnly...)).Put("/{key}", a.handlePutSetting)
				r.With(a.requireAuth(adminsOnly...)).Delete("/{key}", a.handleDeleteSetting)
			})
		})
	})

	return r
}

// requireAuth resolves the bearer token into an actor. With roles given,
// callers outside them get 403.
func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok {
				authorization := strings.TrimSpace(r.Header.Get("Authorization"))
				if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
					writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
					return
				}

				token := strings.TrimSpace(authorization[len("Bearer "):])
				parsed, err := a.auth.Authenticate(r.Context(), token)
				if errors.Is(err, errInvalidToken) || errors.Is(err, errInactiveAccount) {
					writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
					return
				}
				if err != nil {
					a.fail(w, r, err)
					return
				}
				actor = parsed
			}

			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, "forbidden", "forbidden role")
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// observe logs every request and records its latency under the matched
// route pattern.
func (a *API) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(startedAt)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		a.metrics.HTTPDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).Observe(elapsed.Seconds())
		a.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// statusFor maps a service or store error to its HTTP status.
func statusFor(err error) int {
	switch service.ErrorCode(err) {
	case "invalid_input":
		return http.StatusBadRequest
	case "forbidden":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "conflict", "insufficient_stock", "batch_expired", "invalid_state":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		msg = "internal server error"
	}
	writeError(w, status, service.ErrorCode(err), msg)
}

func (a *API) badRequest(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusBadRequest, "invalid_input", "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if decoder.More() {
		return errors.New("request body must hold a single JSON object")
	}
	return nil
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

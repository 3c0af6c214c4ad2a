package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	"github.com/unrolled/secure"

	"stockledger/internal/domain"
	"stockledger/internal/ledger"
	"stockledger/internal/service"
)

const maxBodyBytes = 1 << 20

// HealthChecker reports whether the durable store is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Backlog reports how many change sets are waiting to be persisted.
type Backlog interface {
	Pending(ctx context.Context) (int, error)
}

type Options struct {
	AllowedOrigin string
	Production    bool
	Store         HealthChecker
	Backlog       Backlog
	// LoginAttempts per client IP per minute; defaults to 5.
	LoginAttempts int
	Logger        zerolog.Logger
}

type API struct {
	service *service.Service
	auth    *AuthManager
	opts    Options
	log     zerolog.Logger
	handler http.Handler
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.LoginAttempts < 1 {
		opts.LoginAttempts = 5
	}
	if strings.TrimSpace(opts.AllowedOrigin) == "" {
		opts.AllowedOrigin = "*"
	}
	a := &API{
		service: svc,
		auth:    auth,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "http").Logger(),
	}
	a.handler = a.routes()
	return a
}

// Handler returns the router. It is built once so rate limits hold across
// calls.
func (a *API) Handler() http.Handler {
	return a.handler
}

func (a *API) routes() http.Handler {
	r := chi.NewRouter()

	headers := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:      !a.opts.Production,
	})

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		a.requestLogger,
		middleware.Recoverer,
		headers.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{a.opts.AllowedOrigin},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}),
		limitBody,
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(httprate.Limit(a.opts.LoginAttempts, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
			}),
		)).Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Get("/locations", a.handleLocations)

			r.Get("/items", a.handleListItems)
			r.Post("/items", a.handleCreateItem)
			r.Get("/items/{id}", a.handleGetItem)
			r.Patch("/items/{id}", a.handleUpdateItem)
			r.Delete("/items/{id}", a.handleDeleteItem)
			r.Get("/stats", a.handleStats)

			r.Post("/stock/adjust", a.handleAdjust)
			r.Post("/stock/bulk", a.handleBulkAdjust)
			r.Post("/stock/transfer", a.handleTransfer)
			r.Get("/transactions", a.handleTransactions)

			r.Post("/sales", a.handleSale)
			r.Post("/refunds", a.handleRefund)
			r.Post("/audits", a.handleAudit)

			r.Get("/purchase-orders", a.handleListPurchaseOrders)
			r.Post("/purchase-orders", a.handleCreatePurchaseOrder)
			r.Get("/purchase-orders/{id}", a.handleGetPurchaseOrder)
			r.Post("/purchase-orders/{id}/receive", a.handleReceivePurchaseOrder)
			r.Post("/purchase-orders/{id}/cancel", a.handleCancelPurchaseOrder)

			r.Post("/shifts/open", a.handleShiftOpen)
			r.Post("/shifts/close", a.handleShiftClose)
			r.Get("/shifts/active", a.handleShiftActive)
			r.Get("/shifts", a.handleListShifts)

			r.Get("/customers", a.handleListCustomers)
			r.Post("/customers", a.handleCreateCustomer)
			r.Get("/customers/{id}", a.handleGetCustomer)
			r.Patch("/customers/{id}", a.handleUpdateCustomer)

			r.Get("/suppliers", a.handleListSuppliers)
			r.Post("/suppliers", a.handleCreateSupplier)
			r.Get("/expenses", a.handleListExpenses)
			r.Post("/expenses", a.handleRecordExpense)

			r.With(a.requireRole(domain.RoleAdmin, domain.RoleManager)).Get("/employees", a.handleListEmployees)
			r.Post("/employees", a.handleCreateEmployee)

			r.With(a.requireRole(domain.RoleAdmin, domain.RoleManager)).Get("/reports/sales", a.handleSalesReport)
		})
	})

	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func (a *API) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok || !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}
			next.ServeHTTP(w, r)
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

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)

		event := a.log.Info()
		if ww.Status() >= 500 {
			event = a.log.Error()
		}
		event.
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("latency", time.Since(startedAt)).
			Msg("request")
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"ok":       true,
		"at":       time.Now().UTC().Format(time.RFC3339),
		"revision": a.service.Ledger().Revision(),
	}
	if a.opts.Store != nil {
		body["store"] = "ok"
		if err := a.opts.Store.Health(r.Context()); err != nil {
			body["store"] = "unavailable"
		}
	}
	if a.opts.Backlog != nil {
		if n, err := a.opts.Backlog.Pending(r.Context()); err == nil {
			body["pending_changes"] = n
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		a.log.Warn().Str("email", req.Email).Str("ip", r.RemoteAddr).Msg("login rejected")
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps ledger and service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrItemNotFound),
		errors.Is(err, ledger.ErrLocationNotFound),
		errors.Is(err, ledger.ErrCustomerNotFound),
		errors.Is(err, ledger.ErrPurchaseOrderNotFound),
		errors.Is(err, ledger.ErrTransactionNotFound),
		errors.Is(err, ledger.ErrShiftNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrShiftAlreadyOpen),
		errors.Is(err, ledger.ErrPurchaseOrderReceived),
		errors.Is(err, ledger.ErrInvalidState),
		errors.Is(err, ledger.ErrVersionConflict),
		errors.Is(err, ledger.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		a.log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("request failed")
	}
	writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
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

// parseTime accepts RFC 3339 timestamps or plain dates; empty yields zero.
func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.New("time must be RFC 3339 or YYYY-MM-DD")
	}
	return t, nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the detail goes to the log.
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

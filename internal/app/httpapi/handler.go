// Package httpapi exposes the application services over REST. Handlers stay
// thin: decode, call the service with the caller's identity, map error kinds
// to statuses.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	app "github.com/vanitypay/vanitypay/internal/app"
	"github.com/vanitypay/vanitypay/internal/app/auth"
	"github.com/vanitypay/vanitypay/internal/app/core/service"
	"github.com/vanitypay/vanitypay/internal/app/domain/account"
	"github.com/vanitypay/vanitypay/internal/app/domain/request"
	"github.com/vanitypay/vanitypay/internal/app/metrics"
	"github.com/vanitypay/vanitypay/internal/app/services/accounts"
	"github.com/vanitypay/vanitypay/internal/app/services/requests"
	"github.com/vanitypay/vanitypay/internal/middleware"
	"github.com/vanitypay/vanitypay/pkg/logger"
)

// Options configures the HTTP surface around the handlers.
type Options struct {
	AuditPath      string
	AuditMax       int
	RateLimitRPS   int
	RateLimitBurst int
	CORSOrigins    []string
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app     *app.Application
	authMgr *auth.Manager
	audit   *auditLog
	log     *logger.Logger
}

// NewHandler returns the assembled API: routes, auth, rate limiting, metrics,
// logging, auditing and CORS.
func NewHandler(application *app.Application, authMgr *auth.Manager, log *logger.Logger, opts Options) (http.Handler, error) {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}

	sink, err := newFileAuditSink(opts.AuditPath)
	if err != nil {
		return nil, err
	}
	h := &handler{
		app:     application,
		authMgr: authMgr,
		audit:   newAuditLog(opts.AuditMax, sink),
		log:     log,
	}

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(log))
	r.Use(middleware.MetricsMiddleware())

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)

	rps := opts.RateLimitRPS
	if rps <= 0 {
		rps = 10
	}
	burst := opts.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}
	publicLimiter := middleware.NewRateLimiter(rps, burst, log)
	publicLimiter.StartCleanup(10 * time.Minute)

	pay := r.PathPrefix("/pay").Subrouter()
	pay.Use(publicLimiter.Handler)
	pay.HandleFunc("/{handle}", h.publicAccount).Methods(http.MethodGet)
	pay.HandleFunc("/{handle}/{token}", h.publicRequest).Methods(http.MethodGet)

	authMW := middleware.NewAuthMiddleware(authMgr, log)
	api := r.PathPrefix("").Subrouter()
	api.Use(authMW.Handler)
	api.Use(h.auditMiddleware)

	api.HandleFunc("/accounts", h.createAccount).Methods(http.MethodPost)
	api.HandleFunc("/accounts", h.listAccounts).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}", h.getAccount).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}", h.updateAccount).Methods(http.MethodPut)
	api.HandleFunc("/accounts/{id}", h.deleteAccount).Methods(http.MethodDelete)

	api.HandleFunc("/payment-requests", h.createRequest).Methods(http.MethodPost)
	api.HandleFunc("/payment-requests", h.listRequests).Methods(http.MethodGet)
	api.HandleFunc("/payment-requests/{id}", h.getRequest).Methods(http.MethodGet)
	api.HandleFunc("/payment-requests/{id}", h.updateRequest).Methods(http.MethodPut)
	api.HandleFunc("/payment-requests/{id}", h.deleteRequest).Methods(http.MethodDelete)

	api.HandleFunc("/audit", h.listAudit).Methods(http.MethodGet)

	cors := middleware.NewCORSMiddleware(opts.CORSOrigins)
	return cors.Handler(r), nil
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Auth ---------------------------------------------------------------

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	token, err := h.authMgr.Login(payload.Username, payload.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// --- Payment accounts ----------------------------------------------------

func (h *handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Handle      string            `json:"handle"`
		Type        string            `json:"type"`
		Name        string            `json:"name"`
		Description string            `json:"description"`
		Status      string            `json:"status"`
		Metadata    map[string]string `json:"metadata"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	acct := account.Account{
		Handle:      payload.Handle,
		Type:        account.Type(payload.Type),
		Name:        payload.Name,
		Description: payload.Description,
		Status:      account.Status(payload.Status),
		Metadata:    payload.Metadata,
	}
	created, err := h.app.Accounts.Create(r.Context(), callerID(r), acct)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accts, err := h.app.Accounts.List(r.Context(), callerID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accts)
}

func (h *handler) getAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.app.Accounts.Get(r.Context(), callerID(r), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Handle      *string           `json:"handle"`
		Type        *string           `json:"type"`
		Name        *string           `json:"name"`
		Description *string           `json:"description"`
		Status      *string           `json:"status"`
		Metadata    map[string]string `json:"metadata"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	upd := accounts.Update{
		Handle:      payload.Handle,
		Type:        payload.Type,
		Name:        payload.Name,
		Description: payload.Description,
		Status:      payload.Status,
		Metadata:    payload.Metadata,
	}
	updated, err := h.app.Accounts.UpdateAccount(r.Context(), callerID(r), mux.Vars(r)["id"], upd)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Accounts.Delete(r.Context(), callerID(r), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Payment requests -----------------------------------------------------

// requestView pairs a request with its linked payment account, when set.
type requestView struct {
	Request request.Request  `json:"request"`
	Account *account.Account `json:"account,omitempty"`
}

func (h *handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PaymentAccountID string            `json:"payment_account_id"`
		Title            string            `json:"title"`
		Description      string            `json:"description"`
		Currency         string            `json:"currency"`
		Amount           float64           `json:"amount"`
		Status           string            `json:"status"`
		ExpiresAt        *time.Time        `json:"expires_at"`
		Metadata         map[string]string `json:"metadata"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req := request.Request{
		AccountID:   payload.PaymentAccountID,
		Title:       payload.Title,
		Description: payload.Description,
		Currency:    payload.Currency,
		Amount:      payload.Amount,
		Status:      request.Status(payload.Status),
		ExpiresAt:   payload.ExpiresAt,
		Metadata:    payload.Metadata,
	}
	created, err := h.app.Requests.Create(r.Context(), callerID(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) listRequests(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	reqs, err := h.app.Requests.List(r.Context(), caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	accts, err := h.app.Accounts.List(r.Context(), caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	byID := make(map[string]account.Account, len(accts))
	for _, a := range accts {
		byID[a.ID] = a
	}

	views := make([]requestView, 0, len(reqs))
	for _, req := range reqs {
		views = append(views, h.viewFor(req, byID))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) getRequest(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	req, err := h.app.Requests.Get(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}

	view := requestView{Request: req}
	if req.AccountID != "" {
		if acct, err := h.app.Accounts.Get(r.Context(), caller, req.AccountID); err == nil {
			view.Account = &acct
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) updateRequest(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PaymentAccountID *string           `json:"payment_account_id"`
		Title            *string           `json:"title"`
		Description      *string           `json:"description"`
		Currency         *string           `json:"currency"`
		Amount           *float64          `json:"amount"`
		Status           *string           `json:"status"`
		ExpiresAt        *time.Time        `json:"expires_at"`
		ClearExpiresAt   bool              `json:"clear_expires_at"`
		Metadata         map[string]string `json:"metadata"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	upd := requests.Update{
		AccountID:   payload.PaymentAccountID,
		Title:       payload.Title,
		Description: payload.Description,
		Currency:    payload.Currency,
		Amount:      payload.Amount,
		Status:      payload.Status,
		ExpiresAt:   payload.ExpiresAt,
		ClearExpiry: payload.ClearExpiresAt,
		Metadata:    payload.Metadata,
	}
	updated, err := h.app.Requests.UpdateRequest(r.Context(), callerID(r), mux.Vars(r)["id"], upd)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Requests.Delete(r.Context(), callerID(r), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) viewFor(req request.Request, byID map[string]account.Account) requestView {
	view := requestView{Request: req}
	if req.AccountID != "" {
		if acct, ok := byID[req.AccountID]; ok {
			view.Account = &acct
		}
	}
	return view
}

// --- Public pay pages ------------------------------------------------------

func (h *handler) publicAccount(w http.ResponseWriter, r *http.Request) {
	page, err := h.app.Accounts.ResolvePublic(r.Context(), mux.Vars(r)["handle"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handler) publicRequest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	payment, err := h.app.Requests.ResolvePublic(r.Context(), vars["handle"], vars["token"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// --- Audit ------------------------------------------------------------------

func (h *handler) listAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

// auditMiddleware records every authenticated mutation.
func (h *handler) auditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.audit.add(auditEntry{
			Time:       time.Now().UTC(),
			User:       callerID(r),
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     rec.status,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// --- Helpers ----------------------------------------------------------------

func callerID(r *http.Request) string {
	return middleware.GetUserID(r.Context())
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// writeServiceError maps service error kinds onto HTTP statuses. Validation
// failures carry the full field map.
func writeServiceError(w http.ResponseWriter, err error) {
	var verrs *service.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error":  "validation failed",
			"fields": verrs.Fields(),
		})
	case service.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err)
	case service.IsForbidden(err):
		// Never echo ownership details back to the caller.
		writeError(w, http.StatusForbidden, errors.New("forbidden"))
	case service.IsNotFound(err):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err)
	case service.IsConflict(err):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

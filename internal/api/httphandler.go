package api

import (
	"context"
	"crypto/subtle"
	"entitled/internal/metrics"
	"entitled/internal/types"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// EntitlementResolver reads (cached) entitlements and drops cached ones.
type EntitlementResolver interface {
	ResolveUser(ctx context.Context, userID string) (types.EntitlementSnapshot, error)
	Invalidate(userID string)
}

// GrantActions is the set of grant mutations exposed over HTTP.
type GrantActions interface {
	GrantTemporaryAccess(ctx context.Context, userID string, d time.Duration, reason, grantedBy string) (types.TemporaryGrant, error)
	RevokeTemporaryAccess(ctx context.Context, userID string) error
	StartTrial(ctx context.Context, userID string) (types.TrialGrant, error)
	RedeemPromo(ctx context.Context, userID, code string) (types.TemporaryGrant, error)
	SetAdmin(ctx context.Context, userID string, admin bool) error
	CompleteCheckout(ctx context.Context, payload map[string]any) (string, types.PaidSubscription, error)
}

type Handler struct {
	Resolver EntitlementResolver
	Grants   GrantActions
	// AdminKey guards the admin routes; WebhookKey the checkout webhook.
	// An empty key disables its routes.
	AdminKey   string
	WebhookKey string
}

func NewHandler(res EntitlementResolver, grants GrantActions, adminKey, webhookKey string) *Handler {
	return &Handler{
		Resolver:   res,
		Grants:     grants,
		AdminKey:   adminKey,
		WebhookKey: webhookKey,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	h.handle(mux, "/entitlement", http.MethodGet, h.handleEntitlement)
	h.handle(mux, "/trial", http.MethodPost, h.handleStartTrial)
	h.handle(mux, "/promo/redeem", http.MethodPost, h.handleRedeemPromo)
	h.handle(mux, "/grants/temporary", "", h.admin(h.handleTemporary))
	h.handle(mux, "/grants/admin", http.MethodPost, h.admin(h.handleSetAdmin))
	h.handle(mux, "/cache/invalidate", http.MethodPost, h.admin(h.handleInvalidate))
	h.handle(mux, "/webhooks/checkout", http.MethodPost, h.handleCheckout)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// handle registers fn at path, rejecting other methods when method is set, and
// counts every response by status.
func (h *Handler) handle(mux *http.ServeMux, path, method string, fn http.HandlerFunc) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() { metrics.ObserveHTTP(path, rec.status) }()
		if method != "" && r.Method != method {
			http.Error(rec, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fn(rec, r)
	})
}

func (h *Handler) admin(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !keyMatches(h.AdminKey, r.Header.Get(types.AdminKeyHdrName)) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		fn(w, r)
	}
}

func (h *Handler) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	snap, err := h.Resolver.ResolveUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	reply(w, http.StatusOK, snap)
}

func (h *Handler) handleStartTrial(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	t, err := h.Grants.StartTrial(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	reply(w, http.StatusCreated, t)
}

type redeemRequest struct {
	Code string `json:"code"`
}

func (h *Handler) handleRedeemPromo(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req redeemRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	g, err := h.Grants.RedeemPromo(r.Context(), userID, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	reply(w, http.StatusOK, g)
}

type temporaryRequest struct {
	UserID          string `json:"user_id"`
	DurationSeconds int64  `json:"duration_seconds"`
	Reason          string `json:"reason"`
	GrantedBy       string `json:"granted_by"`
}

func (h *Handler) handleTemporary(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req temporaryRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		grantedBy := req.GrantedBy
		if grantedBy == "" {
			grantedBy = "admin"
		}
		g, err := h.Grants.GrantTemporaryAccess(r.Context(), req.UserID,
			time.Duration(req.DurationSeconds)*time.Second, req.Reason, grantedBy)
		if err != nil {
			writeError(w, err)
			return
		}
		reply(w, http.StatusCreated, g)
	case http.MethodDelete:
		if err := h.Grants.RevokeTemporaryAccess(r.Context(), r.URL.Query().Get("user_id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type setAdminRequest struct {
	UserID string `json:"user_id"`
	Admin  bool   `json:"admin"`
}

func (h *Handler) handleSetAdmin(w http.ResponseWriter, r *http.Request) {
	var req setAdminRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Grants.SetAdmin(r.Context(), req.UserID, req.Admin); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type invalidateRequest struct {
	UserID string `json:"user_id"`
}

// handleInvalidate lets another instance (or a grant event consumer) drop this
// instance's cached entitlement after a change it made.
func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.UserID == "" {
		writeError(w, types.Err(types.ErrInvalidRequest, nil, "user_id is required"))
		return
	}
	h.Resolver.Invalidate(req.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if !keyMatches(h.WebhookKey, r.Header.Get(types.WebhookKeyHdrName)) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload map[string]any
	if err := readJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	userID, sub, err := h.Grants.CompleteCheckout(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	reply(w, http.StatusAccepted, map[string]any{
		"user_id": userID,
		"status":  sub.Status,
		"plan":    sub.PlanType,
	})
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(types.UserIDHdrName))
	if userID == "" {
		http.Error(w, "missing "+types.UserIDHdrName, http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func keyMatches(want, got string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func readJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return types.Err(types.ErrInvalidRequest, err, "read error")
	}
	defer func() {
		_ = r.Body.Close()
	}()
	if len(body) == 0 {
		return types.Err(types.ErrInvalidRequest, nil, "empty body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return types.Err(types.ErrInvalidRequest, err, "invalid json")
	}
	return nil
}

// writeError maps the service's sentinel errors to HTTP statuses. A failed
// entitlement fetch is reported as unknown, never as "no access".
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrFetchFailure):
		reply(w, http.StatusServiceUnavailable, map[string]any{"status": "unknown"})
		return
	case errors.Is(err, types.ErrInvalidRequest),
		errors.Is(err, types.ErrInvalidPromo),
		errors.Is(err, types.ErrInvalidCheckout):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrPrecondition):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
		reply(w, status, map[string]any{"error": "internal error"})
		return
	}
	reply(w, status, map[string]any{"error": err.Error()})
}

func reply(w http.ResponseWriter, code int, v any) {
	if err := writeJSON(w, code, v); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

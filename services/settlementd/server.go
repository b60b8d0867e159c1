package settlementd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"questchain/crypto"
	"questchain/observability/metrics"
)

const maxBodyBytes = 64 << 10

// Server exposes the completion and authorization API.
type Server struct {
	store   *Store
	signer  *Signer
	auth    *Authenticator
	nonces  NonceSource
	logger  *slog.Logger
	limiter *clientLimiter
}

// NewServer wires the API. nonces may be nil, in which case the caller must
// supply the nonce explicitly.
func NewServer(store *Store, signer *Signer, auth *Authenticator, nonces NonceSource, limits RateLimitConfig, logger *slog.Logger) (*Server, error) {
	if store == nil || signer == nil || auth == nil {
		return nil, fmt.Errorf("store, signer and authenticator are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if limits.RequestsPerSecond <= 0 {
		limits.RequestsPerSecond = 10
	}
	if limits.Burst <= 0 {
		limits.Burst = 20
	}
	return &Server{
		store:   store,
		signer:  signer,
		auth:    auth,
		nonces:  nonces,
		logger:  logger,
		limiter: newClientLimiter(rate.Limit(limits.RequestsPerSecond), limits.Burst),
	}, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.With(s.auth.Middleware(ScopeCompletionsWrite)).Post("/completions", s.handleRecordCompletion)
		r.Get("/completions/{account}", s.handlePendingCompletions)
		r.With(s.auth.Middleware(ScopeAuthorizationsWrite)).Post("/authorizations", s.handleIssueAuthorization)
		r.Get("/authorizations/{account}", s.handleListAuthorizations)
	})
	return otelhttp.NewHandler(r, "settlementd")
}

type completionRequest struct {
	Account    string `json:"account"`
	CampaignID uint64 `json:"campaignId"`
}

type completionResponse struct {
	ID         uuid.UUID `json:"id"`
	Account    string    `json:"account"`
	CampaignID uint64    `json:"campaignId"`
	Issued     bool      `json:"issued"`
	Duplicate  bool      `json:"duplicate,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type authorizationRequest struct {
	Account string  `json:"account"`
	Nonce   *uint64 `json:"nonce,omitempty"`
}

type authorizationResponse struct {
	ID          uuid.UUID `json:"id"`
	Account     string    `json:"account"`
	Nonce       uint64    `json:"nonce"`
	CampaignIDs []uint64  `json:"campaignIds"`
	Signature   string    `json:"signature"`
	Digest      string    `json:"digest"`
	Replayed    bool      `json:"replayed,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"authority": crypto.FromRaw(s.signer.Address()).String(),
	})
}

func (s *Server) handleRecordCompletion(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := crypto.ParseAccount(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account")
		return
	}
	if req.CampaignID == 0 {
		writeError(w, http.StatusBadRequest, "campaignId required")
		return
	}
	record, duplicate, err := s.store.RecordCompletion(r.Context(), account, req.CampaignID, subjectFrom(r.Context()))
	if err != nil {
		s.fail(w, "record_completion", err)
		return
	}
	metrics.Settlementd().RecordCompletion(duplicate)
	status := http.StatusCreated
	if duplicate {
		status = http.StatusOK
	}
	s.logger.Info("completion recorded",
		"account", record.Account,
		"campaignId", record.CampaignID,
		"duplicate", duplicate,
		"verifier", record.Verifier)
	writeJSON(w, status, newCompletionResponse(record, duplicate))
}

func (s *Server) handlePendingCompletions(w http.ResponseWriter, r *http.Request) {
	account, err := crypto.ParseAccount(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account")
		return
	}
	rows, err := s.store.PendingCompletions(r.Context(), account)
	if err != nil {
		s.fail(w, "list_completions", err)
		return
	}
	out := make([]completionResponse, len(rows))
	for i := range rows {
		out[i] = newCompletionResponse(&rows[i], false)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIssueAuthorization(w http.ResponseWriter, r *http.Request) {
	var req authorizationRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := crypto.ParseAccount(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account")
		return
	}
	nonce, err := s.resolveNonce(r, account, req.Nonce)
	if err != nil {
		switch {
		case errors.Is(err, ErrNonceMismatch):
			writeError(w, http.StatusConflict, err.Error())
		case req.Nonce == nil && s.nonces == nil:
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("nonce lookup failed", "account", req.Account, "error", err)
			metrics.Settlementd().RecordError("nonce_lookup")
			writeError(w, http.StatusBadGateway, "nonce lookup failed")
		}
		return
	}
	record, replayed, err := s.store.IssueAuthorization(r.Context(), account, nonce, s.signer.Sign(account, nonce))
	if errors.Is(err, ErrNothingToAuthorize) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.fail(w, "issue_authorization", err)
		return
	}
	resp, err := newAuthorizationResponse(record, replayed)
	if err != nil {
		s.fail(w, "issue_authorization", err)
		return
	}
	metrics.Settlementd().RecordAuthorization(replayed, len(resp.CampaignIDs))
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	s.logger.Info("authorization issued",
		"account", record.Account,
		"nonce", record.Nonce,
		"campaigns", len(resp.CampaignIDs),
		"replayed", replayed)
	writeJSON(w, status, resp)
}

// resolveNonce returns the nonce to issue under. With a node configured only
// the account's current on-chain nonce is accepted.
func (s *Server) resolveNonce(r *http.Request, account [20]byte, requested *uint64) (uint64, error) {
	if s.nonces == nil {
		if requested == nil {
			return 0, fmt.Errorf("nonce required")
		}
		return *requested, nil
	}
	current, err := s.nonces.Nonce(r.Context(), account)
	if err != nil {
		return 0, err
	}
	if requested != nil && *requested != current {
		return 0, fmt.Errorf("%w: requested %d, chain expects %d", ErrNonceMismatch, *requested, current)
	}
	return current, nil
}

func (s *Server) handleListAuthorizations(w http.ResponseWriter, r *http.Request) {
	account, err := crypto.ParseAccount(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account")
		return
	}
	rows, err := s.store.Authorizations(r.Context(), account)
	if err != nil {
		s.fail(w, "list_authorizations", err)
		return
	}
	out := make([]authorizationResponse, 0, len(rows))
	for i := range rows {
		resp, err := newAuthorizationResponse(&rows[i], false)
		if err != nil {
			s.fail(w, "list_authorizations", err)
			return
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) fail(w http.ResponseWriter, reason string, err error) {
	s.logger.Error("request failed", "reason", reason, "error", err)
	metrics.Settlementd().RecordError(reason)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func newCompletionResponse(row *Completion, duplicate bool) completionResponse {
	return completionResponse{
		ID:         row.ID,
		Account:    row.Account,
		CampaignID: row.CampaignID,
		Issued:     row.AuthorizationID != nil,
		Duplicate:  duplicate,
		CreatedAt:  row.CreatedAt,
	}
}

func newAuthorizationResponse(row *Authorization, replayed bool) (authorizationResponse, error) {
	ids, err := row.Campaigns()
	if err != nil {
		return authorizationResponse{}, err
	}
	return authorizationResponse{
		ID:          row.ID,
		Account:     row.Account,
		Nonce:       row.Nonce,
		CampaignIDs: ids,
		Signature:   row.Signature,
		Digest:      row.Digest,
		Replayed:    replayed,
		CreatedAt:   row.CreatedAt,
	}, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// clientLimiter applies a token bucket per remote host.
type clientLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

const maxTrackedClients = 4096

func newClientLimiter(limit rate.Limit, burst int) *clientLimiter {
	return &clientLimiter{limit: limit, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (l *clientLimiter) allow(host string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		if len(l.limiters) >= maxTrackedClients {
			l.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !s.limiter.allow(strings.TrimSpace(host)) {
			metrics.Settlementd().RecordError("rate_limited")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

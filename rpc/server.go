// Package rpc exposes the questchain contracts over JSON-RPC 2.0 on HTTP,
// together with a websocket feed of committed events.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"questchain/core/state"
	"questchain/native/bank"
	"questchain/native/campaign"
	"questchain/native/nft"
	"questchain/observability/metrics"
)

// Config tunes the HTTP surface.
type Config struct {
	RequestsPerSecond float64
	Burst             int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	// MaxSkew bounds how far a signed request timestamp may drift from now.
	MaxSkew time.Duration
	// AllowedOrigins lists websocket origin patterns; empty allows same-origin only.
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 20
	}
	if c.Burst <= 0 {
		c.Burst = 40
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.MaxSkew <= 0 {
		c.MaxSkew = 5 * time.Minute
	}
	return c
}

// Backend bundles the state and contracts served by the RPC server.
type Backend struct {
	State    *state.Manager
	Ledger   *bank.Ledger
	NFT      *nft.Engine
	Campaign *campaign.Engine
}

// handlerFunc serves one method. caller is the authenticated signer for
// methods that require authentication and the zero account otherwise.
type handlerFunc func(caller [20]byte, req *RPCRequest) (interface{}, error)

type method struct {
	module string
	// signed methods need an authenticated caller and commit state on success.
	signed bool
	fn     handlerFunc
}

// Server serialises contract calls, committing state after each successful
// mutation.
type Server struct {
	mu       sync.Mutex
	state    *state.Manager
	ledger   *bank.Ledger
	nft      *nft.Engine
	campaign *campaign.Engine
	stream   *Stream
	cfg      Config
	logger   *slog.Logger
	limiter  *ipLimiter
	replays  *replayCache
	methods  map[string]method
	nowFn    func() time.Time

	httpMu  sync.Mutex
	httpSrv *http.Server
}

// NewServer wires the backend into a server and routes contract events into
// the server's stream.
func NewServer(backend Backend, cfg Config, logger *slog.Logger) (*Server, error) {
	if backend.State == nil || backend.Ledger == nil || backend.NFT == nil || backend.Campaign == nil {
		return nil, fmt.Errorf("rpc: incomplete backend")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	s := &Server{
		state:    backend.State,
		ledger:   backend.Ledger,
		nft:      backend.NFT,
		campaign: backend.Campaign,
		stream:   NewStream(),
		cfg:      cfg,
		logger:   logger.With("component", "rpc"),
		limiter:  newIPLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		replays:  newReplayCache(),
		nowFn:    time.Now,
	}
	s.ledger.SetEmitter(s.stream)
	s.nft.SetEmitter(s.stream)
	s.campaign.SetEmitter(s.stream)
	s.methods = make(map[string]method)
	s.registerNFT()
	s.registerCampaign()
	s.registerBank()
	return s, nil
}

// SetNowFunc overrides the clock used for request timestamp checks.
func (s *Server) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.nowFn = now
}

// Stream exposes the committed event feed.
func (s *Server) Stream() *Stream { return s.stream }

func (s *Server) register(name, module string, signed bool, fn handlerFunc) {
	s.methods[name] = method{module: module, signed: signed, fn: fn}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleEvents)
	r.With(s.rateLimit).Post("/", s.handle)
	return otelhttp.NewHandler(r, "questd.rpc")
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen: %w", err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.httpMu.Lock()
	s.httpSrv = srv
	s.httpMu.Unlock()
	s.logger.Info("rpc server listening", "address", listener.Addr().String())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.httpMu.Lock()
	srv := s.httpSrv
	s.httpMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// handle decodes the envelope and dispatches to the registered method.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	m, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}

	start := time.Now()
	status := http.StatusOK
	defer func() {
		metrics.RPC().Observe(m.module, req.Method, status, time.Since(start))
	}()

	var caller [20]byte
	if m.signed {
		var authErr *RPCError
		caller, authErr = s.authenticate(r, body)
		if authErr != nil {
			status = http.StatusUnauthorized
			writeError(w, status, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}

	result, err := s.execute(m, caller, req)
	if err != nil {
		var code int
		status, code = classifyError(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("rpc call failed", "method", req.Method, "error", err)
		}
		var data interface{}
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			data = rpcErr.Data
		}
		writeError(w, status, req.ID, code, errorMessage(err), data)
		return
	}
	writeResult(w, req.ID, result)
}

// execute runs one method under the server lock. Signed methods commit the
// staged state and publish their events on success and discard both on error.
func (s *Server) execute(m method, caller [20]byte, req *RPCRequest) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := m.fn(caller, req)
	if !m.signed {
		return result, err
	}
	if err != nil {
		s.state.Discard()
		s.stream.Drop()
		return nil, err
	}
	if err := s.state.Commit(); err != nil {
		s.state.Discard()
		s.stream.Drop()
		return nil, err
	}
	s.stream.Publish()
	return result, nil
}

// ipLimiter applies a token bucket per remote host.
type ipLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

const maxTrackedClients = 4096

func newIPLimiter(limit rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{limit: limit, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (l *ipLimiter) allow(host string) bool {
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
		if !s.limiter.allow(host) {
			metrics.RPC().RecordThrottle("rate_limit")
			w.Header().Set("Content-Type", "application/json")
			writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"augmint/core"
	coreerrors "augmint/core/errors"
	"augmint/crypto"
	"augmint/native/exchange"
	"augmint/native/loan"
	"augmint/native/locker"
	"augmint/native/rates"
	"augmint/rpc/middleware"
	"augmint/storage/eventlog"
)

const maxRequestBytes = 1 << 20

var errCallerRequired = errors.New("caller address required")

type Config struct {
	ListenAddress string
	Auth          middleware.AuthConfig
	RateLimit     middleware.RateLimit
	CORS          middleware.CORSConfig
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// Server exposes the node over a JSON HTTP API.
type Server struct {
	cfg     Config
	node    *core.Node
	archive *eventlog.Archive
	logger  *slog.Logger
	handler http.Handler
	httpSrv *http.Server
}

// NewServer builds the router. archive may be nil, in which case /v1/events
// answers 503.
func NewServer(cfg Config, node *core.Node, archive *eventlog.Archive, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		node:    node,
		archive: archive,
		logger:  logger.With("component", "rpc"),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	auth := middleware.NewAuthenticator(s.cfg.Auth, s.logger)
	limiter := middleware.NewRateLimiter(s.cfg.RateLimit, s.logger)
	obs := middleware.NewObservability(s.logger)

	r := chi.NewRouter()
	r.Use(middleware.CORS(s.cfg.CORS))
	r.Use(middleware.RequestID)
	r.Use(obs.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", obs.MetricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Use(limiter.Middleware)

		r.Get("/token", s.handleTokenInfo)
		r.Post("/token/transfer", s.handleTransfer)
		r.Post("/token/transfer-from", s.handleTransferFrom)
		r.Post("/token/transfer-and-notify", s.handleTransferAndNotify)
		r.Post("/token/approve", s.handleApprove)
		r.Post("/token/fees", s.handleSetTransferFees)
		r.Get("/accounts/{address}", s.handleAccount)
		r.Get("/accounts/{address}/loans", s.handleAccountLoans)
		r.Get("/accounts/{address}/locks", s.handleAccountLocks)

		r.Get("/products", s.handleLoanProducts)
		r.Post("/products", s.handleAddLoanProduct)
		r.Post("/products/{id}/active", s.handleSetLoanProductActive)
		r.Post("/loans", s.handleNewLoan)
		r.Post("/loans/collect", s.handleCollectLoans)
		r.Get("/loans/matured", s.handleMaturedLoans)
		r.Get("/loans/{id}", s.handleLoan)
		r.Post("/loans/{id}/repay", s.handleRepayLoan)

		r.Get("/orders", s.handleOrderBook)
		r.Post("/orders", s.handleNewOrder)
		r.Post("/orders/match", s.handleMatchOrders)
		r.Post("/orders/match-multiple", s.handleMatchMultiple)
		r.Get("/orders/{id}", s.handleOrder)
		r.Delete("/orders/{id}", s.handleCancelOrder)

		r.Post("/rates", s.handleSetRates)
		r.Get("/rates/{symbol}", s.handleRate)

		r.Get("/supervisor", s.handleSupervisor)
		r.Post("/supervisor/legacy-tokens", s.handleSetLegacyToken)
		r.Post("/supervisor/legacy-tokens/convert", s.handleConvertLegacy)
		r.Post("/supervisor/ltd-params", s.handleSetLtdParams)
		r.Post("/supervisor/reserve", s.handleReserve)

		r.Get("/lock-products", s.handleLockProducts)
		r.Post("/lock-products", s.handleAddLockProduct)
		r.Post("/lock-products/{id}/active", s.handleSetLockProductActive)
		r.Post("/locks", s.handleLockTokens)
		r.Get("/locks/{id}", s.handleLock)
		r.Post("/locks/{id}/release", s.handleReleaseFunds)

		r.Post("/admin/permissions", s.handlePermission)
		r.Post("/admin/pause", s.handlePause)

		r.Get("/events", s.handleEvents)
	})

	return otelhttp.NewHandler(r, "augmint.rpc")
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", "address", s.cfg.ListenAddress)
		errCh <- s.httpSrv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("rpc shutdown: %w", err)
		}
		return nil
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	if kind := coreerrors.Kind(err); kind != nil {
		resp.Kind = kind.Error()
	}
	writeJSON(w, status, resp)
}

type badRequestError struct{ err error }

func (e badRequestError) Error() string { return e.err.Error() }
func (e badRequestError) Unwrap() error { return e.err }

func badRequest(format string, args ...interface{}) error {
	return badRequestError{err: fmt.Errorf(format, args...)}
}

var notFound = []error{
	loan.ErrLoanNotFound,
	loan.ErrProductNotFound,
	locker.ErrLockNotFound,
	locker.ErrProductNotFound,
	exchange.ErrOrderNotFound,
	rates.ErrRateNotSet,
	core.ErrUnknownToken,
}

func statusFor(err error) int {
	var bad badRequestError
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, errCallerRequired):
		return http.StatusUnauthorized
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	for _, target := range notFound {
		if errors.Is(err, target) {
			return http.StatusNotFound
		}
	}
	switch coreerrors.Kind(err) {
	case coreerrors.ErrPermissionDenied:
		return http.StatusForbidden
	case coreerrors.ErrInvalidState, coreerrors.ErrInvariantViolation:
		return http.StatusConflict
	case coreerrors.ErrArithmeticBounds:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid JSON payload: %v", err)
	}
	return nil
}

func requireCaller(r *http.Request) (crypto.Address, error) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		return crypto.Address{}, errCallerRequired
	}
	return caller, nil
}

func parseAddress(field, raw string) (crypto.Address, error) {
	addr, err := crypto.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return crypto.Address{}, badRequest("%s: %v", field, err)
	}
	return addr, nil
}

// parseAmount reads a non-negative integer amount in base units.
func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, badRequest("%s required", field)
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || v.Sign() < 0 {
		return nil, badRequest("%s must be a non-negative integer", field)
	}
	return v, nil
}

func parseAmounts(field string, raw []string) ([]*big.Int, error) {
	out := make([]*big.Int, 0, len(raw))
	for i, value := range raw {
		v, err := parseAmount(fmt.Sprintf("%s[%d]", field, i), value)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func pathUint64(r *http.Request, name string) (uint64, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, badRequest("%s must be an unsigned integer", name)
	}
	return v, nil
}

func pathUint32(r *http.Request, name string) (uint32, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 32)
	if err != nil {
		return 0, badRequest("%s must be an unsigned integer", name)
	}
	return uint32(v), nil
}

func queryInt(r *http.Request, name string, def, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, badRequest("%s must be a non-negative integer", name)
	}
	if max > 0 && v > max {
		v = max
	}
	return v, nil
}

package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loanledger/native/common"
	"loanledger/native/lending"
	"loanledger/native/reputation"
	"loanledger/observability/metrics"
	"loanledger/state"
)

const requestLimit = 1 << 20 // 1 MiB

// Server exposes the lending operation surface over HTTP.
type Server struct {
	engine     *lending.Engine
	reputation *reputation.Engine
	feed       *EventFeed
	log        *slog.Logger
	metrics    *metrics.LendingMetrics
}

// NewServer wires the HTTP surface to the engine. The feed may be nil when no
// event endpoint is wanted.
func NewServer(engine *lending.Engine, feed *EventFeed, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:  engine,
		feed:    feed,
		log:     logger,
		metrics: metrics.Lending(),
	}
}

// SetReputation exposes the score-attestation surface backing the
// eligibility gate. Left unset, the reputation routes answer 404.
func (s *Server) SetReputation(engine *reputation.Engine) {
	if s == nil {
		return
	}
	s.reputation = engine
}

// Router builds the chi route tree for the service.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1/lending", func(r chi.Router) {
		r.Get("/pool", s.handleGetPool)
		r.Get("/positions/{address}", s.handleGetPosition)
		r.Get("/events", s.handleEvents)
		r.Post("/supply", s.handleSupply)
		r.Post("/supply/withdraw", s.handleWithdrawSupply)
		r.Post("/collateral/deposit", s.handleDepositCollateral)
		r.Post("/collateral/withdraw", s.handleWithdrawCollateral)
		r.Post("/positions/open", s.handleOpenPosition)
		r.Post("/borrow", s.handleBorrow)
		r.Post("/repay", s.handleRepay)
		r.Post("/liquidate", s.handleLiquidate)
		r.Post("/pause", s.handleSetPaused)
	})
	r.Route("/v1/reputation", func(r chi.Router) {
		r.Post("/attest", s.handleAttest)
		r.Get("/scores/{address}", s.handleGetScore)
	})
	return r
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into interface{}) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, requestLimit))
	decoder.DisallowUnknownFields()
	return decoder.Decode(into)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

// errStatus maps engine failures onto HTTP status codes. Validation errors
// and policy violations are caller-correctable; dependency failures surface
// as 503.
func errStatus(err error) int {
	switch {
	case errors.Is(err, lending.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, lending.ErrEligibilityTooLow),
		errors.Is(err, lending.ErrNotAuthorized),
		errors.Is(err, reputation.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, lending.ErrNoActivePosition):
		return http.StatusNotFound
	case errors.Is(err, lending.ErrPositionAlreadyActive),
		errors.Is(err, lending.ErrNotLiquidatable),
		errors.Is(err, lending.ErrFullCoverRequired),
		errors.Is(err, lending.ErrOperationNotSupported):
		return http.StatusConflict
	case errors.Is(err, lending.ErrNoCollateral),
		errors.Is(err, lending.ErrNoDebt),
		errors.Is(err, lending.ErrExceedsBorrowLimit),
		errors.Is(err, lending.ErrAmountExceedsDebt),
		errors.Is(err, lending.ErrInsufficientCollateral),
		errors.Is(err, lending.ErrInsufficientBalance),
		errors.Is(err, lending.ErrInsufficientLiquidity),
		errors.Is(err, state.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lending.ErrOracleUnavailable),
		errors.Is(err, reputation.ErrStoreUnavailable),
		errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, op string, err error) {
	status := errStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("operation failed", "op", op, "err", err)
	} else {
		s.log.Info("operation rejected", "op", op, "err", err)
	}
	s.metrics.ObserveReject(op)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) committed(op string) {
	s.metrics.ObserveCommit(op)
	if pool, err := s.engine.PoolAggregates(); err == nil {
		s.metrics.SetAggregates(pool)
	}
}

package rpc

import (
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"loanledger/crypto"
	"loanledger/native/lending"
)

type amountRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type liquidateRequest struct {
	Liquidator    string `json:"liquidator"`
	Borrower      string `json:"borrower"`
	AmountToCover string `json:"amountToCover"`
}

type pauseRequest struct {
	Actor  string `json:"actor"`
	Paused bool   `json:"paused"`
}

type attestRequest struct {
	Attester string `json:"attester"`
	Subject  string `json:"subject"`
	Score    uint64 `json:"score"`
}

type poolResponse struct {
	TotalCollateral string `json:"totalCollateral"`
	TotalSupplied   string `json:"totalSupplied"`
	TotalBorrowed   string `json:"totalBorrowed"`
}

type positionResponse struct {
	Address    string `json:"address"`
	Collateral string `json:"collateral"`
	Debt       string `json:"debt"`
	OpenedAt   uint64 `json:"openedAt"`
	Active     bool   `json:"active"`
}

func parseAddress(value string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid address: %w", err)
	}
	return addr, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

func (s *Server) decodeAmountRequest(w http.ResponseWriter, r *http.Request) (crypto.Address, *big.Int, bool) {
	var req amountRequest
	if err := s.decode(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return crypto.Address{}, nil, false
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		writeBadRequest(w, err)
		return crypto.Address{}, nil, false
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return crypto.Address{}, nil, false
	}
	return addr, amount, true
}

func poolToResponse(pool *lending.Pool) poolResponse {
	pool.EnsureDefaults()
	return poolResponse{
		TotalCollateral: pool.TotalCollateral.String(),
		TotalSupplied:   pool.TotalSupplied.String(),
		TotalBorrowed:   pool.TotalBorrowed.String(),
	}
}

func positionToResponse(position *lending.Position) positionResponse {
	position.EnsureDefaults()
	return positionResponse{
		Address:    position.Address.String(),
		Collateral: position.Collateral.String(),
		Debt:       position.Debt.String(),
		OpenedAt:   position.OpenedAt,
		Active:     position.Active,
	}
}

func (s *Server) handleGetPool(w http.ResponseWriter, _ *http.Request) {
	pool, err := s.engine.PoolAggregates()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, poolToResponse(pool))
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	position, err := s.engine.Position(addr)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if position == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no active position"})
		return
	}
	writeJSON(w, http.StatusOK, positionToResponse(position))
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	if s.feed == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "event feed not enabled"})
		return
	}
	writeJSON(w, http.StatusOK, s.feed.Events())
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	addr, amount, ok := s.decodeAmountRequest(w, r)
	if !ok {
		return
	}
	if err := s.engine.Supply(addr, amount); err != nil {
		s.writeEngineError(w, "supply", err)
		return
	}
	s.committed("supply")
	balance, err := s.engine.SupplyBalanceOf(addr)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"suppliedBalance": balance.Amount.String()})
}

func (s *Server) handleWithdrawSupply(w http.ResponseWriter, r *http.Request) {
	addr, amount, ok := s.decodeAmountRequest(w, r)
	if !ok {
		return
	}
	if err := s.engine.WithdrawSupply(addr, amount); err != nil {
		s.writeEngineError(w, "withdrawSupply", err)
		return
	}
	s.committed("withdrawSupply")
	balance, err := s.engine.SupplyBalanceOf(addr)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"suppliedBalance": balance.Amount.String()})
}

func (s *Server) handleDepositCollateral(w http.ResponseWriter, r *http.Request) {
	addr, amount, ok := s.decodeAmountRequest(w, r)
	if !ok {
		return
	}
	if err := s.engine.DepositCollateral(addr, amount); err != nil {
		s.writeEngineError(w, "depositCollateral", err)
		return
	}
	s.committed("depositCollateral")
	s.respondWithPosition(w, addr)
}

func (s *Server) handleWithdrawCollateral(w http.ResponseWriter, r *http.Request) {
	addr, amount, ok := s.decodeAmountRequest(w, r)
	if !ok {
		return
	}
	if err := s.engine.WithdrawCollateral(addr, amount); err != nil {
		s.writeEngineError(w, "withdrawCollateral", err)
		return
	}
	s.committed("withdrawCollateral")
	s.respondWithPosition(w, addr)
}

func (s *Server) handleOpenPosition(w http.ResponseWriter, r *http.Request) {
	addr, amount, ok := s.decodeAmountRequest(w, r)
	if !ok {
		return
	}
	borrowed, err := s.engine.OpenPosition(addr, amount)
	if err != nil {
		s.writeEngineError(w, "openPosition", err)
		return
	}
	s.committed("openPosition")
	writeJSON(w, http.StatusOK, map[string]string{"borrowed": borrowed.String()})
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	addr, amount, ok := s.decodeAmountRequest(w, r)
	if !ok {
		return
	}
	if err := s.engine.Borrow(addr, amount); err != nil {
		s.writeEngineError(w, "borrow", err)
		return
	}
	s.committed("borrow")
	s.respondWithPosition(w, addr)
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	addr, amount, ok := s.decodeAmountRequest(w, r)
	if !ok {
		return
	}
	if err := s.engine.Repay(addr, amount); err != nil {
		s.writeEngineError(w, "repay", err)
		return
	}
	s.committed("repay")
	position, err := s.engine.Position(addr)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if position == nil {
		// Full repay under a close-on-repay policy deletes the position.
		writeJSON(w, http.StatusOK, map[string]bool{"closed": true})
		return
	}
	writeJSON(w, http.StatusOK, positionToResponse(position))
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := s.decode(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	liquidator, err := parseAddress(req.Liquidator)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	borrower, err := parseAddress(req.Borrower)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(req.AmountToCover)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	seized, err := s.engine.Liquidate(liquidator, borrower, amount)
	if err != nil {
		s.writeEngineError(w, "liquidate", err)
		return
	}
	s.committed("liquidate")
	writeJSON(w, http.StatusOK, map[string]string{"seized": seized.String()})
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := s.decode(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	actor, err := parseAddress(req.Actor)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.engine.SetPaused(actor, req.Paused); err != nil {
		s.writeEngineError(w, "setPaused", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

func (s *Server) handleAttest(w http.ResponseWriter, r *http.Request) {
	if s.reputation == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "reputation not enabled"})
		return
	}
	var req attestRequest
	if err := s.decode(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	attester, err := parseAddress(req.Attester)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	subject, err := parseAddress(req.Subject)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.reputation.Attest(attester, subject, req.Score); err != nil {
		status := errStatus(err)
		if status >= http.StatusInternalServerError {
			s.log.Error("attest failed", "err", err)
		} else {
			s.log.Info("attest rejected", "err", err)
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"subject": subject.String(),
		"score":   req.Score,
	})
}

func (s *Server) handleGetScore(w http.ResponseWriter, r *http.Request) {
	if s.reputation == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "reputation not enabled"})
		return
	}
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	score, err := s.reputation.Score(addr)
	if err != nil {
		writeJSON(w, errStatus(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": addr.String(),
		"score":   score,
	})
}

func (s *Server) respondWithPosition(w http.ResponseWriter, addr crypto.Address) {
	position, err := s.engine.Position(addr)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if position == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"closed": true})
		return
	}
	writeJSON(w, http.StatusOK, positionToResponse(position))
}

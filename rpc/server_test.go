package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"loanledger/core/types"
	"loanledger/crypto"
	"loanledger/native/lending"
	"loanledger/native/reputation"
	"loanledger/state"
	"loanledger/storage"
)

type testHarness struct {
	router  http.Handler
	manager *state.Manager
	engine  *lending.Engine
	owner   crypto.Address
}

func testAddr(suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.LoanPrefix, raw)
}

func wad(n int64) *big.Int {
	scale, _ := new(big.Int).SetString("1000000000000000000", 10)
	return new(big.Int).Mul(big.NewInt(n), scale)
}

func fraction(n int64) *big.Int {
	f := wad(n)
	return f.Quo(f, big.NewInt(100))
}

func newHarness(t *testing.T, policy lending.Policy) *testHarness {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	owner := testAddr(0x01)
	engine := lending.NewEngine(owner, policy)
	engine.SetState(manager)
	engine.SetCustodian(state.NewVaultCustodian(manager, testAddr(0xA1), testAddr(0xA2)))

	feed := NewEventFeed(0)
	engine.SetEmitter(feed)

	server := NewServer(engine, feed, nil)
	return &testHarness{
		router:  server.Router(),
		manager: manager,
		engine:  engine,
		owner:   owner,
	}
}

// newGatedHarness builds a credit-line service with the reputation ledger
// wired as both the eligibility gate and the attestation surface.
func newGatedHarness(t *testing.T, minScore uint64) (*testHarness, crypto.Address) {
	t.Helper()
	db := storage.NewMemDB()
	manager := state.NewManager(db)
	owner := testAddr(0x01)
	engine := lending.NewEngine(owner, lending.NewCreditLinePolicy(fraction(80), fraction(110), minScore))
	engine.SetState(manager)
	engine.SetCustodian(state.NewVaultCustodian(manager, testAddr(0xA1), testAddr(0xA2)))

	attester := testAddr(0x0A)
	ledger := reputation.NewLedger(db)
	ledger.SetAttester(attester)
	scores := reputation.NewEngine(ledger)
	engine.SetEligibilityGate(scores)

	feed := NewEventFeed(0)
	engine.SetEmitter(feed)

	server := NewServer(engine, feed, nil)
	server.SetReputation(scores)
	return &testHarness{
		router:  server.Router(),
		manager: manager,
		engine:  engine,
		owner:   owner,
	}, attester
}

func (h *testHarness) fund(t *testing.T, addr crypto.Address, asset, collateral *big.Int) {
	t.Helper()
	account, err := h.manager.GetAccount(addr)
	require.NoError(t, err)
	account.BalanceAsset = new(big.Int).Add(account.BalanceAsset, asset)
	account.BalanceCollateral = new(big.Int).Add(account.BalanceCollateral, collateral)
	require.NoError(t, h.manager.PutAccount(addr, account))
}

func (h *testHarness) post(t *testing.T, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *testHarness) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), into))
}

func TestSupplyEndpoint(t *testing.T) {
	h := newHarness(t, lending.NewFixedRatioPolicy(fraction(25)))
	supplier := testAddr(0x10)
	h.fund(t, supplier, wad(500), big.NewInt(0))

	rec := h.post(t, "/v1/lending/supply", map[string]string{
		"address": supplier.String(),
		"amount":  wad(500).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	decodeBody(t, rec, &resp)
	require.Equal(t, wad(500).String(), resp["suppliedBalance"])

	pool := h.get(t, "/v1/lending/pool")
	require.Equal(t, http.StatusOK, pool.Code)
	var poolResp poolResponse
	decodeBody(t, pool, &poolResp)
	require.Equal(t, wad(500).String(), poolResp.TotalSupplied)
}

func TestSupplyRejectsMalformedRequests(t *testing.T) {
	h := newHarness(t, lending.NewFixedRatioPolicy(fraction(25)))
	supplier := testAddr(0x10)

	rec := h.post(t, "/v1/lending/supply", map[string]string{
		"address": supplier.String(),
		"amount":  "not-a-number",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.post(t, "/v1/lending/supply", map[string]string{
		"address": "not-an-address",
		"amount":  "100",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown fields are rejected rather than ignored.
	rec = h.post(t, "/v1/lending/supply", map[string]string{
		"address": supplier.String(),
		"amount":  "100",
		"extra":   "field",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Zero amounts reach the engine and map to 400.
	h.fund(t, supplier, wad(1), big.NewInt(0))
	rec = h.post(t, "/v1/lending/supply", map[string]string{
		"address": supplier.String(),
		"amount":  "0",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBorrowFlowOverHTTP(t *testing.T) {
	h := newHarness(t, lending.NewFixedRatioPolicy(fraction(25)))
	supplier := testAddr(0x10)
	borrower := testAddr(0x20)
	h.fund(t, supplier, wad(1000), big.NewInt(0))
	h.fund(t, borrower, big.NewInt(0), wad(400))

	rec := h.post(t, "/v1/lending/supply", map[string]string{
		"address": supplier.String(), "amount": wad(1000).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.post(t, "/v1/lending/collateral/deposit", map[string]string{
		"address": borrower.String(), "amount": wad(400).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.post(t, "/v1/lending/borrow", map[string]string{
		"address": borrower.String(), "amount": wad(100).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var position positionResponse
	decodeBody(t, rec, &position)
	require.Equal(t, wad(100).String(), position.Debt)

	// The ceiling for 400 collateral at ratio 0.25 is 100: one more unit fails.
	rec = h.post(t, "/v1/lending/borrow", map[string]string{
		"address": borrower.String(), "amount": "1",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	got := h.get(t, fmt.Sprintf("/v1/lending/positions/%s", borrower.String()))
	require.Equal(t, http.StatusOK, got.Code)
	decodeBody(t, got, &position)
	require.Equal(t, wad(400).String(), position.Collateral)
}

func TestGetPositionNotFound(t *testing.T) {
	h := newHarness(t, lending.NewFixedRatioPolicy(fraction(25)))
	rec := h.get(t, fmt.Sprintf("/v1/lending/positions/%s", testAddr(0x77).String()))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOpenAndRepayCloseOverHTTP(t *testing.T) {
	h := newHarness(t, lending.NewCreditLinePolicy(fraction(80), fraction(110), 0))
	supplier := testAddr(0x10)
	principal := testAddr(0x20)
	h.fund(t, supplier, wad(1000), big.NewInt(0))
	h.fund(t, principal, big.NewInt(0), wad(100))

	rec := h.post(t, "/v1/lending/supply", map[string]string{
		"address": supplier.String(), "amount": wad(1000).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.post(t, "/v1/lending/positions/open", map[string]string{
		"address": principal.String(), "amount": wad(100).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var opened map[string]string
	decodeBody(t, rec, &opened)
	require.Equal(t, wad(80).String(), opened["borrowed"])

	// The deposit/borrow flows are not part of this variant.
	rec = h.post(t, "/v1/lending/borrow", map[string]string{
		"address": principal.String(), "amount": "1",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = h.post(t, "/v1/lending/repay", map[string]string{
		"address": principal.String(), "amount": wad(80).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var closed map[string]bool
	decodeBody(t, rec, &closed)
	require.True(t, closed["closed"])

	got := h.get(t, fmt.Sprintf("/v1/lending/positions/%s", principal.String()))
	require.Equal(t, http.StatusNotFound, got.Code)
}

func TestPauseEndpoint(t *testing.T) {
	h := newHarness(t, lending.NewFixedRatioPolicy(fraction(25)))
	supplier := testAddr(0x10)
	h.fund(t, supplier, wad(10), big.NewInt(0))

	rec := h.post(t, "/v1/lending/pause", map[string]interface{}{
		"actor": testAddr(0x99).String(), "paused": true,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.post(t, "/v1/lending/pause", map[string]interface{}{
		"actor": h.owner.String(), "paused": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.post(t, "/v1/lending/supply", map[string]string{
		"address": supplier.String(), "amount": wad(10).String(),
	})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEventsEndpoint(t *testing.T) {
	h := newHarness(t, lending.NewFixedRatioPolicy(fraction(25)))
	supplier := testAddr(0x10)
	h.fund(t, supplier, wad(10), big.NewInt(0))

	rec := h.post(t, "/v1/lending/supply", map[string]string{
		"address": supplier.String(), "amount": wad(10).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := h.get(t, "/v1/lending/events")
	require.Equal(t, http.StatusOK, got.Code)
	var records []types.Event
	decodeBody(t, got, &records)
	require.NotEmpty(t, records)
	require.Equal(t, "lending.supplied", records[len(records)-1].Type)
}

func TestAttestUnlocksGatedOpen(t *testing.T) {
	h, attester := newGatedHarness(t, 30)
	supplier := testAddr(0x10)
	principal := testAddr(0x20)
	h.fund(t, supplier, wad(1000), big.NewInt(0))
	h.fund(t, principal, big.NewInt(0), wad(100))

	rec := h.post(t, "/v1/lending/supply", map[string]string{
		"address": supplier.String(), "amount": wad(1000).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Unattested principals score zero and stay below the threshold.
	rec = h.post(t, "/v1/lending/positions/open", map[string]string{
		"address": principal.String(), "amount": wad(100).String(),
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// A stranger cannot write scores.
	rec = h.post(t, "/v1/reputation/attest", map[string]interface{}{
		"attester": testAddr(0x99).String(), "subject": principal.String(), "score": 55,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.post(t, "/v1/reputation/attest", map[string]interface{}{
		"attester": attester.String(), "subject": principal.String(), "score": 55,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := h.get(t, fmt.Sprintf("/v1/reputation/scores/%s", principal.String()))
	require.Equal(t, http.StatusOK, got.Code)
	var scoreResp map[string]interface{}
	decodeBody(t, got, &scoreResp)
	require.Equal(t, float64(55), scoreResp["score"])

	rec = h.post(t, "/v1/lending/positions/open", map[string]string{
		"address": principal.String(), "amount": wad(100).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var opened map[string]string
	decodeBody(t, rec, &opened)
	require.Equal(t, wad(80).String(), opened["borrowed"])
}

func TestReputationRoutesDisabledWithoutEngine(t *testing.T) {
	h := newHarness(t, lending.NewFixedRatioPolicy(fraction(25)))
	rec := h.post(t, "/v1/reputation/attest", map[string]interface{}{
		"attester": testAddr(0x0A).String(), "subject": testAddr(0x20).String(), "score": 10,
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	got := h.get(t, fmt.Sprintf("/v1/reputation/scores/%s", testAddr(0x20).String()))
	require.Equal(t, http.StatusNotFound, got.Code)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, lending.NewFixedRatioPolicy(fraction(25)))
	rec := h.get(t, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
}

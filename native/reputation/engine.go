package reputation

import "loanledger/crypto"

// Engine wraps the score ledger to provide the read-only admission query
// consumed by the lending engine's eligibility gate, without exposing storage
// concerns to callers.
type Engine struct {
	ledger *Ledger
}

// NewEngine constructs an engine backed by the provided ledger.
func NewEngine(ledger *Ledger) *Engine {
	return &Engine{ledger: ledger}
}

// Score returns the admission score for the principal. It satisfies the
// lending module's EligibilityGate contract: a pure query whose failures
// propagate to the caller.
func (e *Engine) Score(principal crypto.Address) (uint64, error) {
	if e == nil || e.ledger == nil {
		return 0, ErrStoreUnavailable
	}
	return e.ledger.Score(principal)
}

// Attest records a new score for the subject on behalf of the acting
// identity.
func (e *Engine) Attest(actor, subject crypto.Address, score uint64) error {
	if e == nil || e.ledger == nil {
		return ErrStoreUnavailable
	}
	return e.ledger.Put(actor, subject, score)
}

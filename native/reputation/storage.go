package reputation

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"loanledger/crypto"
	"loanledger/storage"
)

var (
	// ErrStoreUnavailable wraps backing-store failures. Callers treat it as a
	// hard failure of the querying operation.
	ErrStoreUnavailable = errors.New("reputation: score store unavailable")
	// ErrNotAuthorized rejects score writes from identities other than the
	// configured attester.
	ErrNotAuthorized = errors.New("reputation: attester not authorized")
)

var scorePrefix = []byte("reputation/score/")

// store is the slice of the KV interface the ledger needs.
type store interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
}

// Ledger persists admission scores keyed by principal address.
type Ledger struct {
	store    store
	attester crypto.Address
	now      func() uint64
}

// NewLedger constructs a score ledger backed by the provided storage.
func NewLedger(s store) *Ledger {
	return &Ledger{store: s, now: func() uint64 { return 0 }}
}

// SetAttester configures the only identity allowed to write scores.
func (l *Ledger) SetAttester(attester crypto.Address) {
	if l == nil {
		return
	}
	l.attester = attester
}

// SetNowFunc overrides the logical clock stamped onto score updates.
func (l *Ledger) SetNowFunc(now func() uint64) {
	if l == nil || now == nil {
		return
	}
	l.now = now
}

func scoreKey(subject crypto.Address) []byte {
	return append(append([]byte(nil), scorePrefix...), subject.Bytes()...)
}

// Put records the subject's score. Only the configured attester may write.
func (l *Ledger) Put(actor, subject crypto.Address, score uint64) error {
	if l == nil || l.store == nil {
		return ErrStoreUnavailable
	}
	if l.attester.IsZero() || !actor.Equal(l.attester) {
		return ErrNotAuthorized
	}
	record := &ScoreRecord{
		Subject:   append([]byte(nil), subject.Bytes()...),
		Score:     score,
		UpdatedAt: l.now(),
	}
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return fmt.Errorf("reputation: encode score: %w", err)
	}
	if err := l.store.Put(scoreKey(subject), encoded); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Score returns the subject's recorded score. Principals without a record
// score zero.
func (l *Ledger) Score(subject crypto.Address) (uint64, error) {
	if l == nil || l.store == nil {
		return 0, ErrStoreUnavailable
	}
	data, err := l.store.Get(scoreKey(subject))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	record := new(ScoreRecord)
	if err := rlp.DecodeBytes(data, record); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return record.Score, nil
}

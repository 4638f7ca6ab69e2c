package lending

import (
	"math/big"

	"loanledger/crypto"
)

// Asset identifies which of the two ledger assets a custodian transfer moves.
type Asset uint8

const (
	// AssetPrincipal is the asset lent out of the pool.
	AssetPrincipal Asset = iota
	// AssetCollateral is the asset pledged against debt.
	AssetCollateral
)

// String renders the asset for event attributes and logs.
func (a Asset) String() string {
	switch a {
	case AssetPrincipal:
		return "principal"
	case AssetCollateral:
		return "collateral"
	default:
		return "unknown"
	}
}

// Custodian moves value between principals and the pool's vaults. Transfers
// are synchronous; a returned error means nothing moved and the calling
// operation must be rejected.
type Custodian interface {
	// TransferIn pulls amount of asset from the principal into custody.
	TransferIn(from crypto.Address, asset Asset, amount *big.Int) error
	// TransferOut releases amount of asset from custody to the principal.
	TransferOut(to crypto.Address, asset Asset, amount *big.Int) error
}

// EligibilityGate scores a principal for admission. The gate is a pure query
// and must not mutate state. Implementations report infrastructure failures
// through the returned error; the engine propagates them as
// ErrOracleUnavailable without falling back to a default score.
type EligibilityGate interface {
	Score(principal crypto.Address) (uint64, error)
}

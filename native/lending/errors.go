package lending

import "errors"

var (
	// ErrInvalidAmount rejects zero or negative amounts.
	ErrInvalidAmount = errors.New("lending engine: amount must be positive")
	// ErrEligibilityTooLow rejects position openings below the admission
	// threshold.
	ErrEligibilityTooLow = errors.New("lending engine: eligibility score below minimum")
	// ErrOracleUnavailable signals the eligibility oracle could not be
	// queried. The failing operation is rejected without fallback.
	ErrOracleUnavailable = errors.New("lending engine: eligibility oracle unavailable")
	// ErrPositionAlreadyActive rejects a second opening for a principal with
	// an active position.
	ErrPositionAlreadyActive = errors.New("lending engine: position already active")
	// ErrNoActivePosition is returned when an operation requires an open
	// position and none exists.
	ErrNoActivePosition = errors.New("lending engine: no active position")
	// ErrNoCollateral rejects borrowing without deposited collateral.
	ErrNoCollateral = errors.New("lending engine: no collateral deposited")
	// ErrExceedsBorrowLimit rejects borrowing past the policy's debt ceiling.
	ErrExceedsBorrowLimit = errors.New("lending engine: borrow exceeds collateral limit")
	// ErrAmountExceedsDebt rejects repaying or covering more than is owed.
	ErrAmountExceedsDebt = errors.New("lending engine: amount exceeds outstanding debt")
	// ErrInsufficientCollateral rejects withdrawals or liquidations that the
	// position's collateral cannot cover.
	ErrInsufficientCollateral = errors.New("lending engine: insufficient collateral")
	// ErrInsufficientBalance rejects supply withdrawals past the supplied
	// balance.
	ErrInsufficientBalance = errors.New("lending engine: insufficient balance")
	// ErrInsufficientLiquidity rejects payouts the pool cannot fund.
	ErrInsufficientLiquidity = errors.New("lending engine: insufficient liquidity")
	// ErrNoDebt rejects liquidating a borrower without outstanding debt.
	ErrNoDebt = errors.New("lending engine: no outstanding debt")
	// ErrNotLiquidatable rejects liquidating a healthy position.
	ErrNotLiquidatable = errors.New("lending engine: borrower not eligible for liquidation")
	// ErrFullCoverRequired rejects partial liquidation under a policy that
	// seizes the entire position.
	ErrFullCoverRequired = errors.New("lending engine: liquidation must cover the full debt")
	// ErrOperationNotSupported is returned when the configured policy does not
	// expose the requested flow.
	ErrOperationNotSupported = errors.New("lending engine: operation not supported by policy")
	// ErrNotAuthorized rejects privileged calls from a non-owner identity.
	ErrNotAuthorized = errors.New("lending engine: caller not authorized")

	errNilState     = errors.New("lending engine: state not configured")
	errNilCustodian = errors.New("lending engine: custodian not configured")
)

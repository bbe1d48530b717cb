package engine

import "errors"

// Engine errors. Every public entry point returns one of these (possibly
// wrapped) so callers can map failures to client-facing codes 1:1.
var (
	// Authorization
	ErrNotAuthorized = errors.New("caller is not authorized")
	ErrLastAdmin     = errors.New("cannot remove the last admin")

	// Validation
	ErrInvalidQuestion  = errors.New("question must be 1-500 characters")
	ErrInvalidThreshold = errors.New("threshold must be greater than zero")
	ErrInvalidDeadline  = errors.New("deadline must be in the future")
	ErrInvalidAmount    = errors.New("amount is below the minimum bet")

	// Not found
	ErrMarketNotFound = errors.New("market not found")

	// State conflicts
	ErrMarketNotOpen          = errors.New("market is not open")
	ErrMarketNotCancelled     = errors.New("market is not cancelled")
	ErrMarketAlreadyFinalized = errors.New("market is already finalized")
	ErrAlreadyResolved        = errors.New("market is already resolved")
	ErrNotResolved            = errors.New("market is not resolved")
	ErrAlreadyClaimed         = errors.New("payout already claimed")

	// Economic
	ErrNotWinner           = errors.New("no winnings to claim")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAmountOverflow      = errors.New("amount arithmetic overflow")

	// Oracle / timing
	ErrDeadlinePassed     = errors.New("betting deadline has passed")
	ErrDeadlineNotReached = errors.New("market deadline not reached")
	ErrStalePrice         = errors.New("price update is stale")
)

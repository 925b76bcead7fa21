package escrow

import "errors"

// Validation errors: the caller's input was wrong and the call can be
// retried with corrected input.
var (
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrInvalidHash         = errors.New("invalid hash")
	ErrInvalidTimeout      = errors.New("invalid timeout")
	ErrInvalidFee          = errors.New("invalid fee")
	ErrNotFound            = errors.New("request not found")
)

// Authorization errors: terminal for the call, never retried.
var (
	ErrNotAgentOwner    = errors.New("caller is not the agent owner")
	ErrNotRequestClient = errors.New("caller is not the request client")
)

// State-conflict errors: the request is not (or no longer) in a state that
// permits the transition. These reflect a race the caller lost, not a bug.
var (
	ErrAlreadyCompleted = errors.New("request already completed")
	ErrAlreadySettled   = errors.New("request already settled")
	ErrNotYetEligible   = errors.New("escrow timeout not reached")
	ErrScoreTooHigh     = errors.New("feedback score too high for refund")
	ErrScoreNotRecorded = errors.New("feedback score not recorded for client")
)

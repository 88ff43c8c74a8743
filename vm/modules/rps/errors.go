package rps

import "errors"

// Error kinds returned by the wager operations. Every failure aborts the
// whole transaction; the executor rolls the write buffer back, so a failed
// call leaves stage, slots and balances exactly as they were.
var (
	ErrNotInitialized     = errors.New("wager: game not initialized")
	ErrAlreadyInitialized = errors.New("wager: game already initialized")
	ErrInvalidStage       = errors.New("wager: invalid stage")
	ErrLocked             = errors.New("wager: game is locked")
	ErrUnauthorized       = errors.New("wager: caller is not the owner")
	ErrDuplicatePlayer    = errors.New("wager: duplicate player")
	ErrInsufficientFunds  = errors.New("wager: insufficient funds")
	ErrUnknownPlayer      = errors.New("wager: caller occupies no slot")
	ErrInvalidChoice      = errors.New("wager: invalid choice")
	ErrInvalidCommitment  = errors.New("wager: invalid commitment")
	ErrTransferFailed     = errors.New("wager: transfer failed")
	ErrDistributeFailed   = errors.New("wager: distribute failed")
	ErrInvalidSnapshot    = errors.New("wager: invalid snapshot")
)

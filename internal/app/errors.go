package app

import "errors"

// txError is a sentinel error carrying the ABCI result code for its kind.
// Handlers wrap these with fmt.Errorf("%w: detail", ...) so the code survives
// while the log keeps the specifics.
type txError struct {
	code uint32
	msg  string
}

func (e *txError) Error() string { return e.msg }

func regErr(code uint32, msg string) *txError {
	return &txError{code: code, msg: msg}
}

var (
	ErrParse = regErr(1, "invalid request")

	// Permission errors.
	ErrPermissionDenied = regErr(2, "permission denied")

	// State errors.
	ErrNoActiveRound    = regErr(3, "no active round")
	ErrRoundInProgress  = regErr(4, "round in progress")
	ErrAlreadyRevealed  = regErr(5, "round already revealed")
	ErrRoundNotRevealed = regErr(6, "round not revealed")
	ErrRevealTooEarly   = regErr(7, "reveal too early")
	ErrRoundNotFound    = regErr(8, "round not found")

	// Validation errors.
	ErrInvalidSlot        = regErr(9, "invalid slot")
	ErrInvalidDuration    = regErr(10, "invalid duration")
	ErrStakeTooSmall      = regErr(11, "stake too small")
	ErrBettingClosed      = regErr(12, "betting closed")
	ErrCommitmentMismatch = regErr(13, "commitment mismatch")
	ErrNotWinningSlot     = regErr(14, "not winning slot")
	ErrNoStake            = regErr(15, "no stake")
	ErrWinnersExist       = regErr(16, "winners exist")

	// Transfer errors.
	ErrTransferFailed = regErr(17, "transfer failed")
)

// abciCode extracts the result code for an error chain; unclassified errors
// map to the generic parse/validation code.
func abciCode(err error) uint32 {
	var te *txError
	if errors.As(err, &te) {
		return te.code
	}
	return ErrParse.code
}

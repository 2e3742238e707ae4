package allocation

import "errors"

var (
	ErrOverflow        = errors.New("allocation: row exceeds remaining stock")
	ErrNothingToCommit = errors.New("allocation: nothing to commit")
	ErrCommitInFlight  = errors.New("allocation: commit already in progress")
	ErrRowNotFound     = errors.New("allocation: row not found")
	ErrRowNotEditable  = errors.New("allocation: row is locked or sold out")
	ErrInvalidReason   = errors.New("allocation: invalid disposal reason")
	ErrNoStagedPrice   = errors.New("allocation: no staged price")
	ErrGateClosed      = errors.New("allocation: no disposal is waiting for a reason")
)

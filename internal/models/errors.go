package models

import "errors"

// Error kinds recovered at the API boundary and mapped to client-facing
// responses. Core operations wrap these with fmt.Errorf("%w: ...") so callers
// can classify failures with errors.Is.
var (
	// ErrPhaseViolation means the operation is not valid for the campaign's
	// current phase.
	ErrPhaseViolation = errors.New("phase violation")

	// ErrDuplicateCommitment means an active pledge already exists for the
	// (campaign, buyer) pair.
	ErrDuplicateCommitment = errors.New("duplicate commitment")

	// ErrPledgeAccessDenied means the requesting buyer does not own the pledge.
	ErrPledgeAccessDenied = errors.New("pledge access denied")

	// ErrInvalidTransition means the state machine table rejects the move.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrRetryLimitExceeded means the intent already used all retry attempts.
	ErrRetryLimitExceeded = errors.New("retry limit exceeded")

	// ErrNotRetryable means the intent's status does not admit a retry.
	ErrNotRetryable = errors.New("intent not retryable")

	// ErrOrganizationNotActive means the acting organization is deactivated.
	ErrOrganizationNotActive = errors.New("organization not active")

	// ErrBracketConfigInvalid means the bracket list does not form a valid
	// partition of quantity space, or the quantity falls outside it.
	ErrBracketConfigInvalid = errors.New("bracket configuration invalid")

	// ErrNotFound means the campaign, pledge, intent or organization does
	// not exist.
	ErrNotFound = errors.New("not found")
)

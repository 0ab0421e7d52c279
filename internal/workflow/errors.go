package workflow

import (
	"errors"
	"fmt"

	"homematch/server/internal/models"
)

var (
	ErrWorkflowComplete   = errors.New("workflow is already complete")
	ErrWorkflowTerminated = errors.New("workflow has been terminated")
	ErrUnknownSlot        = errors.New("unknown document slot")
	ErrWrongStage         = errors.New("operation not allowed at current stage")
	ErrNothingToRead      = errors.New("no observed status change to acknowledge")
)

// GuardError is returned when a stage advance is attempted while its
// precondition is unmet. It is recoverable: the caller fixes the missing
// precondition and retries.
type GuardError struct {
	Stage  models.Stage
	Reason string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("guard not satisfied at stage %s: %s", e.Stage, e.Reason)
}

// IsGuardNotSatisfied reports whether err is a GuardError.
func IsGuardNotSatisfied(err error) bool {
	var guardErr *GuardError
	return errors.As(err, &guardErr)
}

// StatusChangeError is returned when the counterparty changed the offer
// status between the applicant's last observation and the attempted
// transition. The applicant must acknowledge the new status before the
// workflow moves on.
type StatusChangeError struct {
	Observed models.OfferStatus
}

func (e *StatusChangeError) Error() string {
	return fmt.Sprintf("offer status changed concurrently to %s", e.Observed)
}

// IsConcurrentStatusChange reports whether err is a StatusChangeError.
func IsConcurrentStatusChange(err error) bool {
	var statusErr *StatusChangeError
	return errors.As(err, &statusErr)
}

// ExternalError wraps a failed or timed-out persistence/payment call. The
// workflow stays at its last confirmed stage and the caller may retry the
// same operation; all external operations are idempotent.
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("external operation %s failed: %v", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// IsExternalFailure reports whether err is an ExternalError.
func IsExternalFailure(err error) bool {
	var externalErr *ExternalError
	return errors.As(err, &externalErr)
}

package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds surfaced to callers. Match them with errors.Is.
var (
	ErrNetworkRejected     = errors.New("network change rejected by user")
	ErrWrongNetwork        = errors.New("endpoint is connected to a different network")
	ErrContractUnavailable = errors.New("no contract deployed at configured address")
	ErrRegistryUnavailable = errors.New("meeting registry unavailable")
	ErrStatusUnavailable   = errors.New("participant status unavailable")
	ErrAlreadyCheckedIn    = errors.New("participant already checked in")
	ErrMeetingFull         = errors.New("meeting is full")
	ErrMeetingEnded        = errors.New("meeting has ended")
	ErrAlreadyEnded        = errors.New("meeting already ended")
	ErrNotCreator          = errors.New("only the meeting creator can end it")
	ErrMeetingNotFound     = errors.New("meeting not found")
	ErrSubmissionFailed    = errors.New("transaction submission failed")
	ErrNoSigningCapability = errors.New("no signing capability: connect a wallet first")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotConfirmed        = errors.New("action not confirmed")
)

// RejectionError is a ledger refusal with a known reason. It unwraps to its
// Kind, so errors.Is(err, ErrMeetingFull) and friends work.
type RejectionError struct {
	Kind   error
	Reason string
}

func (e *RejectionError) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s (ledger: %s)", e.Kind, e.Reason)
}

func (e *RejectionError) Unwrap() error { return e.Kind }

// SubmissionError wraps any failure of a state-changing submission.
type SubmissionError struct {
	Op  string
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit %s: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() []error {
	return []error{ErrSubmissionFailed, e.Err}
}

// IsRejection reports whether err is a ledger rejection that retrying will
// not fix.
func IsRejection(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej)
}

// Operation names used to classify reverts.
const (
	OpCreateMeeting = "createMeeting"
	OpCheckIn       = "checkIn"
	OpEndMeeting    = "endMeeting"
)

// Classify turns a revert carried inside err into a RejectionError for the
// given operation. Errors without a recognisable revert are returned as is.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var revert *RevertError
	if !errors.As(err, &revert) {
		return err
	}
	kind := rejectionKind(op, revert)
	if kind == nil {
		return err
	}
	return &RejectionError{Kind: kind, Reason: revert.Describe()}
}

// custom error names the contract may declare, keyed by lower-cased name
var customErrorKinds = map[string]error{
	"alreadycheckedin": ErrAlreadyCheckedIn,
	"meetingfull":      ErrMeetingFull,
	"notcreator":       ErrNotCreator,
	"unauthorized":     ErrNotCreator,
	"meetingnotfound":  ErrMeetingNotFound,
	"invalidmeeting":   ErrInvalidArgument,
}

func rejectionKind(op string, revert *RevertError) error {
	name := strings.ToLower(revert.ErrorName)
	if kind, ok := customErrorKinds[name]; ok {
		return kind
	}
	reason := strings.ToLower(revert.Reason)
	if name != "" {
		reason = name + " " + reason
	}

	switch {
	case strings.Contains(reason, "invalid meeting"), strings.Contains(reason, "invalid argument"):
		return ErrInvalidArgument
	case strings.Contains(reason, "already checked"), strings.Contains(reason, "alreadycheckedin"):
		return ErrAlreadyCheckedIn
	case strings.Contains(reason, "full"), strings.Contains(reason, "capacity"), strings.Contains(reason, "max participants"):
		return ErrMeetingFull
	case strings.Contains(reason, "creator"), strings.Contains(reason, "not authorized"), strings.Contains(reason, "only owner"):
		return ErrNotCreator
	case strings.Contains(reason, "not found"), strings.Contains(reason, "does not exist"):
		return ErrMeetingNotFound
	case strings.Contains(reason, "not active"), strings.Contains(reason, "notactive"),
		strings.Contains(reason, "ended"), strings.Contains(reason, "inactive"), strings.Contains(reason, "closed"):
		if op == OpEndMeeting {
			return ErrAlreadyEnded
		}
		return ErrMeetingEnded
	}
	return nil
}

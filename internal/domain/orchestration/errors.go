package orchestration

import (
	"context"
	"errors"
)

// Sentinel errors for registry validation and run execution. Wrap them with
// fmt.Errorf("...: %w", ...) and classify with Classify.
var (
	ErrUnknownAgent      = errors.New("unknown agent")
	ErrDuplicateAgent    = errors.New("duplicate agent")
	ErrInvalidHandoff    = errors.New("invalid handoff target")
	ErrIllegalHandoff    = errors.New("illegal handoff")
	ErrCollaborator      = errors.New("collaborator failure")
	ErrTurnLimitExceeded = errors.New("turn limit exceeded")
	ErrUnknownTool       = errors.New("unknown tool")
	ErrRunFinished       = errors.New("run already finished")
)

// ErrorKind is the machine-readable failure category surfaced to callers.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindUnknownAgent      ErrorKind = "unknown_agent"
	KindInvalidHandoff    ErrorKind = "invalid_handoff"
	KindIllegalHandoff    ErrorKind = "illegal_handoff"
	KindCollaborator      ErrorKind = "collaborator"
	KindTurnLimitExceeded ErrorKind = "turn_limit_exceeded"
	KindInternal          ErrorKind = "internal"
)

// Classify maps an error chain to its ErrorKind. Context cancellation and
// deadline errors count as collaborator failures since the only suspension
// point in a run is the generator call.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTurnLimitExceeded):
		return KindTurnLimitExceeded
	case errors.Is(err, ErrIllegalHandoff):
		return KindIllegalHandoff
	case errors.Is(err, ErrUnknownAgent):
		return KindUnknownAgent
	case errors.Is(err, ErrInvalidHandoff):
		return KindInvalidHandoff
	case errors.Is(err, ErrCollaborator),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindCollaborator
	default:
		return KindInternal
	}
}

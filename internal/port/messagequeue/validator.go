package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
)

var errMissingRunID = errors.New("run_id is required")

// runScoped is implemented by payloads that belong to one orchestration run.
type runScoped interface {
	runID() string
}

func (p *ScheduleRequestPayload) runID() string { return p.RunID }
func (p *ScheduleResultPayload) runID() string  { return p.RunID }
func (p *RunStartedPayload) runID() string      { return p.RunID }
func (p *RunHandoffPayload) runID() string      { return p.RunID }
func (p *RunToolCallPayload) runID() string     { return p.RunID }
func (p *RunFinishedPayload) runID() string     { return p.RunID }

// Validate checks that data decodes into the payload registered for subject
// and names its run. Subjects without a payload only need valid JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	var target runScoped
	switch subject {
	case SubjectScheduleRequest:
		target = &ScheduleRequestPayload{}
	case SubjectScheduleResult:
		target = &ScheduleResultPayload{}
	case SubjectRunStarted:
		target = &RunStartedPayload{}
	case SubjectRunHandoff:
		target = &RunHandoffPayload{}
	case SubjectRunToolCall:
		target = &RunToolCallPayload{}
	case SubjectRunFinished:
		target = &RunFinishedPayload{}
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	if target.runID() == "" {
		return fmt.Errorf("schema validation failed for %s: %w", subject, errMissingRunID)
	}
	return nil
}

// Package orchestration holds the run state machine, turn results and the
// error taxonomy of a schedule-generation run.
package orchestration

import (
	"errors"
	"strings"
)

// HandoffToolPrefix prefixes the tool id that transfers control to another
// agent, e.g. "transfer_to_cs_advisor".
const HandoffToolPrefix = "transfer_to_"

// HandoffToolID returns the tool id that hands control to target.
func HandoffToolID(target string) string {
	return HandoffToolPrefix + target
}

// HandoffTarget extracts the target agent id from a handoff tool id.
func HandoffTarget(toolID string) (string, bool) {
	target, ok := strings.CutPrefix(toolID, HandoffToolPrefix)
	if !ok || target == "" {
		return "", false
	}
	return target, true
}

// HandoffEvent records one transfer of control inside a run.
type HandoffEvent struct {
	RunID         string `json:"run_id"`
	SourceAgentID string `json:"source_agent_id"`
	TargetAgentID string `json:"target_agent_id"`
	Turn          int    `json:"turn"`
}

// Validate checks that a HandoffEvent has all required fields.
func (e *HandoffEvent) Validate() error {
	if e.SourceAgentID == "" {
		return errors.New("source_agent_id is required")
	}
	if e.TargetAgentID == "" {
		return errors.New("target_agent_id is required")
	}
	return nil
}

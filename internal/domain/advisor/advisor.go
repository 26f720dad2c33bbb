// Package advisor defines the router and department advisor agents and the
// registry that owns them for the lifetime of the process.
package advisor

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"text/template"

	"github.com/Strob0t/CourseForge/internal/domain"
	"github.com/Strob0t/CourseForge/internal/domain/orchestration"
	"github.com/Strob0t/CourseForge/internal/domain/student"
)

// ToolKind distinguishes catalog lookups from transfers of control.
type ToolKind string

const (
	ToolKindData    ToolKind = "data"
	ToolKindHandoff ToolKind = "handoff"
)

// ToolRef describes one tool an agent may invoke.
type ToolRef struct {
	ID          string   `json:"id"`
	Kind        ToolKind `json:"kind"`
	Department  string   `json:"department,omitempty"` // data tools only
	Target      string   `json:"target,omitempty"`     // handoff tools only
	Description string   `json:"description"`
}

// Agent is a named advisor. Agents are immutable once registered.
type Agent struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Department          string    `json:"department,omitempty"`
	InstructionTemplate string    `json:"instruction_template"`
	DataTools           []ToolRef `json:"data_tools,omitempty"`
	HandoffTargets      []string  `json:"handoff_targets,omitempty"`

	tmpl *template.Template
}

// Policy carries the schedule rules exposed to instruction templates.
type Policy struct {
	TopN                   int
	CourseCount            int
	PhysicalEducationAddon bool
}

// TemplateData is the value instruction templates are executed against.
type TemplateData struct {
	AgentName              string
	Department             string
	CompletedCourses       []string
	Interests              []string
	Goals                  string
	DepartmentNames        []string
	TopN                   int
	CourseCount            int
	PhysicalEducationAddon bool
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
}

func (a *Agent) parse() error {
	t, err := template.New(a.ID).Funcs(templateFuncs).Option("missingkey=error").Parse(a.InstructionTemplate)
	if err != nil {
		return fmt.Errorf("%w: agent %q instructions: %v", domain.ErrValidation, a.ID, err)
	}
	a.tmpl = t
	return nil
}

// Render produces the instructions for one turn. It is pure: the same agent,
// context and policy always render the same text.
func (a *Agent) Render(ctx student.Context, p Policy) (string, error) {
	if a.tmpl == nil {
		if err := a.parse(); err != nil {
			return "", err
		}
	}
	data := TemplateData{
		AgentName:              a.Name,
		Department:             a.Department,
		CompletedCourses:       ctx.CompletedCourses(),
		Interests:              ctx.Interests(),
		Goals:                  ctx.Goals(),
		DepartmentNames:        ctx.DepartmentNames(),
		TopN:                   p.TopN,
		CourseCount:            p.CourseCount,
		PhysicalEducationAddon: p.PhysicalEducationAddon,
	}
	var buf bytes.Buffer
	if err := a.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render instructions for %s: %w", a.ID, err)
	}
	return buf.String(), nil
}

// Tools returns the data tools followed by one handoff tool per target.
func (a *Agent) Tools() []ToolRef {
	out := make([]ToolRef, 0, len(a.DataTools)+len(a.HandoffTargets))
	out = append(out, a.DataTools...)
	for _, target := range a.HandoffTargets {
		out = append(out, ToolRef{
			ID:          orchestration.HandoffToolID(target),
			Kind:        ToolKindHandoff,
			Target:      target,
			Description: "Transfer the conversation to " + target + ".",
		})
	}
	return out
}

// Tool looks up a declared tool by id.
func (a *Agent) Tool(id string) (ToolRef, bool) {
	for _, t := range a.Tools() {
		if t.ID == id {
			return t, true
		}
	}
	return ToolRef{}, false
}

// CanHandoffTo reports whether target is a declared handoff target.
func (a *Agent) CanHandoffTo(target string) bool {
	return slices.Contains(a.HandoffTargets, target)
}

func (a Agent) clone() Agent {
	a.DataTools = slices.Clone(a.DataTools)
	a.HandoffTargets = slices.Clone(a.HandoffTargets)
	return a
}

// Package student defines the immutable bag of student attributes threaded
// through a schedule-generation run.
package student

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Strob0t/CourseForge/internal/domain"
)

// Context is created once per request and never mutated afterwards. Fields are
// unexported so agents and tools can only read copies.
type Context struct {
	completed   []string
	interests   []string
	goals       string
	departments []string
}

// Request is the caller-supplied shape a Context is built from. The JSON tags
// accept the field names the web form posts.
type Request struct {
	CompletedCourses []string `json:"completedCourses"`
	Interests        []string `json:"interests"`
	Sports           []string `json:"sports,omitempty"`
	FutureGoals      string   `json:"futureGoals"`
	DepartmentNames  []string `json:"departmentNames"`
}

// Validate checks the request for structural problems.
func (r *Request) Validate() error {
	for i, c := range r.CompletedCourses {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: completedCourses[%d] is empty", domain.ErrValidation, i)
		}
	}
	for i, d := range r.DepartmentNames {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("%w: departmentNames[%d] is empty", domain.ErrValidation, i)
		}
	}
	return nil
}

// New builds a Context. Completed courses and department names keep their
// order; interests are de-duplicated (first occurrence wins) since they form a
// set. Sports are folded into interests; the web form collects both as one
// list.
func New(req Request) Context {
	interests := make([]string, 0, len(req.Interests)+len(req.Sports))
	seen := make(map[string]struct{}, cap(interests))
	for _, list := range [][]string{req.Interests, req.Sports} {
		for _, s := range list {
			if _, dup := seen[s]; dup || s == "" {
				continue
			}
			seen[s] = struct{}{}
			interests = append(interests, s)
		}
	}
	return Context{
		completed:   slices.Clone(req.CompletedCourses),
		interests:   interests,
		goals:       req.FutureGoals,
		departments: slices.Clone(req.DepartmentNames),
	}
}

// CompletedCourses returns the completed course titles in caller order.
func (c Context) CompletedCourses() []string { return slices.Clone(c.completed) }

// Interests returns the student's extracurricular interests.
func (c Context) Interests() []string { return slices.Clone(c.interests) }

// Goals returns the student's stated goals.
func (c Context) Goals() string { return c.goals }

// DepartmentNames returns the departments the student asked about.
func (c Context) DepartmentNames() []string { return slices.Clone(c.departments) }

// HasCompleted reports whether title is among the completed courses.
func (c Context) HasCompleted(title string) bool {
	return slices.Contains(c.completed, title)
}

// WithDefaultDepartments returns a copy whose department list is names when
// the original list is empty. The receiver is left untouched.
func (c Context) WithDefaultDepartments(names []string) Context {
	if len(c.departments) > 0 {
		return c
	}
	c.departments = slices.Clone(names)
	return c
}

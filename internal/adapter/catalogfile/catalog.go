package catalogfile

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/Strob0t/CourseForge/internal/domain/course"
)

// Catalog is an immutable in-memory catalog.Gateway.
type Catalog struct {
	byDept map[string][]course.Course
	depts  []course.Department
}

// New indexes courses by department, keeping their order.
func New(courses []course.Course) *Catalog {
	c := &Catalog{byDept: make(map[string][]course.Course)}
	for i := range courses {
		d := courses[i].Department
		if _, ok := c.byDept[d]; !ok {
			c.depts = append(c.depts, course.Department{Name: d})
		}
		c.byDept[d] = append(c.byDept[d], courses[i])
	}
	slices.SortFunc(c.depts, func(a, b course.Department) int { return strings.Compare(a.Name, b.Name) })
	for i := range c.depts {
		c.depts[i].ID = int64(i + 1)
	}
	return c
}

// Open parses the Workday export at path and indexes it.
func Open(path string) (*Catalog, error) {
	courses, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return New(courses), nil
}

// CoursesByDepartment returns a copy of the department's courses.
func (c *Catalog) CoursesByDepartment(ctx context.Context, department string) ([]course.Course, error) {
	courses, ok := c.byDept[department]
	if !ok {
		slog.WarnContext(ctx, "department not found in catalog", "department", department)
		return []course.Course{}, nil
	}
	return slices.Clone(courses), nil
}

// ListDepartments returns all departments ordered by name.
func (c *Catalog) ListDepartments(context.Context) ([]course.Department, error) {
	return slices.Clone(c.depts), nil
}

// Len reports the number of courses held.
func (c *Catalog) Len() int {
	n := 0
	for _, cs := range c.byDept {
		n += len(cs)
	}
	return n
}

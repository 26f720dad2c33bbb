// Package catalog defines the read-only port to the course catalog.
package catalog

import (
	"context"

	"github.com/Strob0t/CourseForge/internal/domain/course"
)

// Gateway looks up courses. Implementations must be safe for concurrent use.
type Gateway interface {
	// CoursesByDepartment returns the department's courses in catalog order.
	// An unknown department yields an empty slice and no error.
	CoursesByDepartment(ctx context.Context, department string) ([]course.Course, error)

	// ListDepartments returns all departments ordered by name.
	ListDepartments(ctx context.Context) ([]course.Department, error)
}

// Importer writes catalog entries. Only the admin tooling uses it.
type Importer interface {
	UpsertCourses(ctx context.Context, courses []course.Course) (int, error)
}

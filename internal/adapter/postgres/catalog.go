package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/CourseForge/internal/domain"
	"github.com/Strob0t/CourseForge/internal/domain/course"
)

// CatalogStore implements catalog.Gateway and catalog.Importer on PostgreSQL.
type CatalogStore struct {
	pool *pgxpool.Pool
}

// NewCatalogStore creates a CatalogStore backed by the given connection pool.
func NewCatalogStore(pool *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

const courseColumns = `c.course_title, c.course_section, d.name, c.subject, c.course_description,
	c.credits, c.academic_level, c.offering_period, c.instructional_format, c.delivery_mode,
	c.start_date, c.end_date`

// CoursesByDepartment returns the department's courses in insertion order. An
// unknown department yields an empty slice.
func (s *CatalogStore) CoursesByDepartment(ctx context.Context, department string) ([]course.Course, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+courseColumns+`
		 FROM courses c JOIN departments d ON d.id = c.department_id
		 WHERE d.name = $1
		 ORDER BY c.id`, department)
	if err != nil {
		return nil, fmt.Errorf("courses by department %q: %w", department, err)
	}
	defer rows.Close()

	var out []course.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("courses by department %q: %w", department, err)
	}

	if len(out) == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM departments WHERE name = $1)`, department).Scan(&exists); err != nil {
			return nil, fmt.Errorf("department exists %q: %w", department, err)
		}
		if !exists {
			slog.WarnContext(ctx, "department not found in catalog", "department", department)
		}
	}
	return orEmpty(out), nil
}

// ListDepartments returns all departments ordered by name.
func (s *CatalogStore) ListDepartments(ctx context.Context) ([]course.Department, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM departments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	var out []course.Department
	for rows.Next() {
		var d course.Department
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		out = append(out, d)
	}
	return orEmpty(out), rows.Err()
}

// UpsertCourses writes courses in one transaction, creating departments on
// first sight. Sections are unique, so re-importing the same export updates
// rows in place. Returns the number of courses written.
func (s *CatalogStore) UpsertCourses(ctx context.Context, courses []course.Course) (int, error) {
	for i := range courses {
		if strings.TrimSpace(courses[i].Section) == "" || strings.TrimSpace(courses[i].Title) == "" {
			return 0, fmt.Errorf("%w: course %d needs a title and a section", domain.ErrValidation, i)
		}
		if strings.TrimSpace(courses[i].Department) == "" {
			return 0, fmt.Errorf("%w: course %s has no department", domain.ErrValidation, courses[i].Section)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	deptIDs := make(map[string]int64)
	written := 0
	for i := range courses {
		c := &courses[i]
		id, ok := deptIDs[c.Department]
		if !ok {
			if id, err = upsertDepartment(ctx, tx, c.Department); err != nil {
				return 0, err
			}
			deptIDs[c.Department] = id
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO courses (department_id, course_section, course_title, subject, course_description,
				credits, academic_level, offering_period, instructional_format, delivery_mode, start_date, end_date)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (course_section) DO UPDATE SET
				department_id = EXCLUDED.department_id,
				course_title = EXCLUDED.course_title,
				subject = EXCLUDED.subject,
				course_description = EXCLUDED.course_description,
				credits = EXCLUDED.credits,
				academic_level = EXCLUDED.academic_level,
				offering_period = EXCLUDED.offering_period,
				instructional_format = EXCLUDED.instructional_format,
				delivery_mode = EXCLUDED.delivery_mode,
				start_date = EXCLUDED.start_date,
				end_date = EXCLUDED.end_date,
				updated_at = now()`,
			id, c.Section, c.Title, c.Subject, c.Description,
			c.Credits, c.AcademicLevel, c.OfferingPeriod, c.Format, c.DeliveryMode,
			nullTime(c.StartDate), nullTime(c.EndDate))
		if err != nil {
			return 0, fmt.Errorf("upsert course %s: %w", c.Section, err)
		}
		written += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return written, nil
}

func upsertDepartment(ctx context.Context, tx pgx.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO departments (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert department %q: %w", name, err)
	}
	return id, nil
}

func scanCourse(row scannable) (course.Course, error) {
	var c course.Course
	var start, end *time.Time
	err := row.Scan(&c.Title, &c.Section, &c.Department, &c.Subject, &c.Description,
		&c.Credits, &c.AcademicLevel, &c.OfferingPeriod, &c.Format, &c.DeliveryMode,
		&start, &end)
	if err != nil {
		return course.Course{}, err
	}
	if start != nil {
		c.StartDate = *start
	}
	if end != nil {
		c.EndDate = *end
	}
	return c, nil
}

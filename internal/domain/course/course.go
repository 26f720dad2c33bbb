// Package course defines the read-only catalog entities and the filtering
// policy advisors apply before recommending courses.
package course

import "time"

// Department is an academic unit that owns a set of courses.
type Department struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

// Course is a single catalog section. Title is the field matched against a
// student's completed courses.
type Course struct {
	Title      string `json:"title"`
	Section    string `json:"section"`
	Department string `json:"department"`

	Subject        string    `json:"subject,omitempty"`
	Description    string    `json:"description,omitempty"`
	Credits        float64   `json:"credits,omitempty"`
	AcademicLevel  string    `json:"academic_level,omitempty"`
	OfferingPeriod string    `json:"offering_period,omitempty"`
	Format         string    `json:"instructional_format,omitempty"`
	DeliveryMode   string    `json:"delivery_mode,omitempty"`
	StartDate      time.Time `json:"start_date,omitzero"`
	EndDate        time.Time `json:"end_date,omitzero"`
}

// Label renders the course the way advisors present it: "Title (Section)".
// A course without a section renders as its bare title.
func (c *Course) Label() string {
	if c.Section == "" {
		return c.Title
	}
	return c.Title + " (" + c.Section + ")"
}

package catalogfile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/CourseForge/internal/adapter/catalogfile"
	"github.com/Strob0t/CourseForge/internal/domain"
)

const export = `{
  "Report_Entry": [
    {
      "Course_Section": "CS 1101-A01 - Introduction To Program Design",
      "Course_Title": "CS 1101",
      "Subject": "Computer Science",
      "Course_Description": "<p>Introduces <b>functional</b> programming.</p><p>Cat. I</p>",
      "Credits": "3.00",
      "Academic_Level": "Undergraduate",
      "Offering_Period": "Fall A Term",
      "Course_Section_Start_Date": "2024-08-22",
      "Course_Section_End_Date": "2024-10-11",
      "Instructional_Format": "Lecture",
      "Delivery_Mode": "In-Person",
      "Academic_Units": "  Computer Science Department "
    },
    {
      "Course_Section": "CS 2102-A01",
      "Course_Title": "CS 2102",
      "Credits": 3,
      "Academic_Units": "Computer Science Department"
    },
    {
      "Course_Section": "MA 1021-A01",
      "Course_Title": "MA 1021",
      "Course_Description": "Calculus &amp; applications",
      "Academic_Units": "Mathematical Sciences Department"
    }
  ]
}`

func TestParse(t *testing.T) {
	courses, err := catalogfile.Parse(strings.NewReader(export))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(courses) != 3 {
		t.Fatalf("expected 3 courses, got %d", len(courses))
	}

	cs := courses[0]
	if cs.Department != "Computer Science Department" {
		t.Errorf("department not trimmed: %q", cs.Department)
	}
	if cs.Description != "Introduces functional programming.\nCat. I" {
		t.Errorf("unexpected description %q", cs.Description)
	}
	if cs.Credits != 3 || courses[1].Credits != 3 {
		t.Errorf("credits not parsed: %v / %v", cs.Credits, courses[1].Credits)
	}
	if !cs.StartDate.Equal(time.Date(2024, 8, 22, 0, 0, 0, 0, time.UTC)) || !courses[1].StartDate.IsZero() {
		t.Errorf("unexpected dates %v / %v", cs.StartDate, courses[1].StartDate)
	}
	if courses[2].Description != "Calculus & applications" {
		t.Errorf("entities not decoded: %q", courses[2].Description)
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not json", "Report_Entry"},
		{"bad date", `{"Report_Entry":[{"Course_Section":"X","Course_Section_Start_Date":"22/08/2024"}]}`},
		{"bad credits", `{"Report_Entry":[{"Course_Section":"X","Credits":"three"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := catalogfile.Parse(strings.NewReader(tt.in)); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"  padded  ", "padded"},
		{"<p>one</p><p>two</p>", "one\ntwo"},
		{"line<br/>break", "line\nbreak"},
		{"<ul><li>a</li><li>b</li></ul>", "a\nb"},
		{"<span>in</span>line", "inline"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := catalogfile.StripHTML(tt.in); got != tt.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courses.json")
	if err := os.WriteFile(path, []byte(export), 0o600); err != nil {
		t.Fatal(err)
	}
	cat, err := catalogfile.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()

	if cat.Len() != 3 {
		t.Errorf("expected 3 courses, got %d", cat.Len())
	}

	cs, err := cat.CoursesByDepartment(ctx, "Computer Science Department")
	if err != nil || len(cs) != 2 || cs[0].Title != "CS 1101" || cs[1].Title != "CS 2102" {
		t.Fatalf("unexpected CS courses %+v, %v", cs, err)
	}
	cs[0].Title = "mutated"
	again, _ := cat.CoursesByDepartment(ctx, "Computer Science Department")
	if again[0].Title != "CS 1101" {
		t.Fatal("catalog mutated through returned slice")
	}

	none, err := cat.CoursesByDepartment(ctx, "Astrology Department")
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("expected empty slice for unknown department, got %#v, %v", none, err)
	}

	depts, _ := cat.ListDepartments(ctx)
	if len(depts) != 2 || depts[0].Name != "Computer Science Department" || depts[1].ID != 2 {
		t.Fatalf("unexpected departments %+v", depts)
	}
}

func TestOpen_MissingFile(t *testing.T) {
	if _, err := catalogfile.Open(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

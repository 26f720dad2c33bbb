// Package catalogfile reads course catalogs from Workday report exports and
// serves them from memory.
package catalogfile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/Strob0t/CourseForge/internal/domain"
	"github.com/Strob0t/CourseForge/internal/domain/course"
)

const dateLayout = "2006-01-02"

// report is the top level of a Workday "Find Course Sections" export.
type report struct {
	Entries []entry `json:"Report_Entry"`
}

type entry struct {
	Section        string    `json:"Course_Section"`
	Title          string    `json:"Course_Title"`
	Subject        string    `json:"Subject"`
	Description    string    `json:"Course_Description"`
	Credits        flexFloat `json:"Credits"`
	AcademicLevel  string    `json:"Academic_Level"`
	OfferingPeriod string    `json:"Offering_Period"`
	StartDate      string    `json:"Course_Section_Start_Date"`
	EndDate        string    `json:"Course_Section_End_Date"`
	Format         string    `json:"Instructional_Format"`
	DeliveryMode   string    `json:"Delivery_Mode"`
	AcademicUnits  string    `json:"Academic_Units"`
}

// flexFloat accepts both 3 and "3.00"; exports disagree on the type.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("credits %s: %w", b, err)
	}
	*f = flexFloat(v)
	return nil
}

// Parse decodes a Workday export. Department names are trimmed and HTML is
// stripped from descriptions. Entries keep their export order.
func Parse(r io.Reader) ([]course.Course, error) {
	var rep report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("%w: decode workday report: %w", domain.ErrValidation, err)
	}

	out := make([]course.Course, 0, len(rep.Entries))
	for i := range rep.Entries {
		e := &rep.Entries[i]
		c := course.Course{
			Title:          strings.TrimSpace(e.Title),
			Section:        strings.TrimSpace(e.Section),
			Department:     strings.TrimSpace(e.AcademicUnits),
			Subject:        e.Subject,
			Description:    StripHTML(e.Description),
			Credits:        float64(e.Credits),
			AcademicLevel:  e.AcademicLevel,
			OfferingPeriod: e.OfferingPeriod,
			Format:         e.Format,
			DeliveryMode:   e.DeliveryMode,
		}
		var err error
		if c.StartDate, err = parseDate(e.StartDate); err != nil {
			return nil, fmt.Errorf("%w: entry %d (%s): start date: %w", domain.ErrValidation, i, c.Section, err)
		}
		if c.EndDate, err = parseDate(e.EndDate); err != nil {
			return nil, fmt.Errorf("%w: entry %d (%s): end date: %w", domain.ErrValidation, i, c.Section, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// ParseFile is Parse on the named file.
func ParseFile(path string) ([]course.Course, error) {
	f, err := os.Open(path) //nolint:gosec // G304: operator-supplied catalog path
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

// StripHTML returns the text content of an HTML fragment with block and
// line-break elements turned into newlines, trimmed at both ends.
func StripHTML(fragment string) string {
	if !strings.ContainsRune(fragment, '<') {
		return strings.TrimSpace(html.UnescapeString(fragment))
	}

	z := html.NewTokenizer(strings.NewReader(fragment))
	var parts []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			parts = append(parts, s)
		}
		cur.Reset()
	}
	for {
		switch z.Next() {
		case html.ErrorToken:
			flush()
			return strings.Join(parts, "\n")
		case html.TextToken:
			cur.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "p", "br", "div", "li", "ul", "ol", "tr", "h1", "h2", "h3", "h4":
				flush()
			}
		}
	}
}

package course

import "strings"

// Filter returns the courses whose Title does not appear in completedTitles.
// Matching is exact string equality; catalog order is preserved and every
// retained course appears exactly once per occurrence in the input.
func Filter(courses []Course, completedTitles []string) []Course {
	completed := make(map[string]struct{}, len(completedTitles))
	for _, t := range completedTitles {
		completed[t] = struct{}{}
	}

	unseen := make([]Course, 0, len(courses))
	for i := range courses {
		if _, done := completed[courses[i].Title]; done {
			continue
		}
		unseen = append(unseen, courses[i])
	}
	return unseen
}

// Selection is the outcome of SelectTop. NoNewCourses is set only when the
// unseen list itself was empty, so callers can tell "nothing left to take"
// apart from a selection that was truncated to zero.
type Selection struct {
	Courses      []Course `json:"courses"`
	NoNewCourses bool     `json:"no_new_courses"`
}

// SelectTop returns the first n unseen courses in catalog order. There is no
// ranking beyond source order; the cut is a policy choice, not a relevance
// score. A negative n is treated as zero.
func SelectTop(unseen []Course, n int) Selection {
	if len(unseen) == 0 {
		return Selection{Courses: []Course{}, NoNewCourses: true}
	}
	if n < 0 {
		n = 0
	}
	if n > len(unseen) {
		n = len(unseen)
	}
	out := make([]Course, n)
	copy(out, unseen[:n])
	return Selection{Courses: out}
}

// Recommend applies Filter then SelectTop. A limit of zero means no limit.
func Recommend(courses []Course, completedTitles []string, limit int) Selection {
	unseen := Filter(courses, completedTitles)
	if limit == 0 {
		limit = len(unseen)
	}
	return SelectTop(unseen, limit)
}

// Render formats the selection as the tool output an advisor sees.
func (s Selection) Render(department string) string {
	if s.NoNewCourses {
		return "No new " + department + " courses to recommend."
	}
	var b strings.Builder
	b.WriteString("Recommended " + department + " courses:")
	for i := range s.Courses {
		b.WriteByte('\n')
		b.WriteString(s.Courses[i].Label())
	}
	return b.String()
}

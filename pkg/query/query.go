// Package query filters the course-resource collection and groups the matches
// for display: by department, then by (subject, level), then lecture vs
// practice material.
package query

import (
	"net/url"
	"strings"

	"golang.org/x/text/cases"

	"aercd/pkg/domain"
)

// All disables the department or level constraint.
const All = "all"

// Criteria selects resources. Empty Department/Level behave like All.
type Criteria struct {
	Term       string `json:"q"`
	Department string `json:"department"`
	Level      string `json:"level"`
}

// ParseCriteria reads the q, department and level query parameters.
func ParseCriteria(values url.Values) Criteria {
	return Criteria{
		Term:       strings.TrimSpace(values.Get("q")),
		Department: strings.TrimSpace(values.Get("department")),
		Level:      strings.TrimSpace(values.Get("level")),
	}
}

// SubjectGroup holds the resources sharing one subject text and level.
type SubjectGroup struct {
	Subject  string                  `json:"subject"`
	Level    domain.Level            `json:"level"`
	Lectures []domain.CourseResource `json:"lectures"`
	Practice []domain.CourseResource `json:"practice"`
}

// Len returns the number of resources in the group.
func (g SubjectGroup) Len() int {
	return len(g.Lectures) + len(g.Practice)
}

// DepartmentGroup holds the subject groups of one department.
type DepartmentGroup struct {
	DepartmentID string         `json:"departmentId"`
	Subjects     []SubjectGroup `json:"subjects"`
}

// Result is the grouped view of a query.
type Result struct {
	Criteria    Criteria          `json:"criteria"`
	Total       int               `json:"total"`
	Departments []DepartmentGroup `json:"departments"`
}

// Empty reports whether nothing matched.
func (r Result) Empty() bool {
	return r.Total == 0
}

type matcher struct {
	term       string
	department string
	level      string
	fold       cases.Caser
}

func newMatcher(c Criteria) matcher {
	fold := cases.Fold()
	m := matcher{fold: fold}
	if t := strings.TrimSpace(c.Term); t != "" {
		m.term = fold.String(t)
	}
	if d := strings.TrimSpace(c.Department); d != "" && !strings.EqualFold(d, All) {
		m.department = d
	}
	if l := strings.TrimSpace(c.Level); l != "" && !strings.EqualFold(l, All) {
		m.level = l
	}
	return m
}

func (m matcher) match(r domain.CourseResource) bool {
	if m.term != "" &&
		!strings.Contains(m.fold.String(r.Title), m.term) &&
		!strings.Contains(m.fold.String(r.Subject), m.term) {
		return false
	}
	if m.department != "" && r.DepartmentID != m.department {
		return false
	}
	if m.level != "" && string(r.Level) != m.level {
		return false
	}
	return true
}

// Matches reports whether r satisfies all three predicates of c.
func Matches(r domain.CourseResource, c Criteria) bool {
	return newMatcher(c).match(r)
}

// Filter returns the resources matching c, in input order.
func Filter(resources []domain.CourseResource, c Criteria) []domain.CourseResource {
	m := newMatcher(c)
	out := make([]domain.CourseResource, 0, len(resources))
	for _, r := range resources {
		if m.match(r) {
			out = append(out, r)
		}
	}
	return out
}

type subjectKey struct {
	subject string
	level   domain.Level
}

// Group partitions resources by department, then by (subject, level).
// Departments and subject groups appear in first-encounter order, and every
// list keeps the relative order of the input.
func Group(resources []domain.CourseResource) []DepartmentGroup {
	groups := make([]DepartmentGroup, 0)
	deptIndex := make(map[string]int)
	subjectIndex := make(map[string]map[subjectKey]int)
	for _, r := range resources {
		di, ok := deptIndex[r.DepartmentID]
		if !ok {
			di = len(groups)
			deptIndex[r.DepartmentID] = di
			subjectIndex[r.DepartmentID] = make(map[subjectKey]int)
			groups = append(groups, DepartmentGroup{DepartmentID: r.DepartmentID})
		}
		dept := &groups[di]
		key := subjectKey{subject: r.Subject, level: r.Level}
		si, ok := subjectIndex[r.DepartmentID][key]
		if !ok {
			si = len(dept.Subjects)
			subjectIndex[r.DepartmentID][key] = si
			dept.Subjects = append(dept.Subjects, SubjectGroup{
				Subject:  r.Subject,
				Level:    r.Level,
				Lectures: []domain.CourseResource{},
				Practice: []domain.CourseResource{},
			})
		}
		sg := &dept.Subjects[si]
		if r.IsLecture() {
			sg.Lectures = append(sg.Lectures, r)
		} else {
			sg.Practice = append(sg.Practice, r)
		}
	}
	return groups
}

// Run filters then groups. A query matching nothing yields an empty grouping.
func Run(resources []domain.CourseResource, c Criteria) Result {
	matched := Filter(resources, c)
	return Result{
		Criteria:    c,
		Total:       len(matched),
		Departments: Group(matched),
	}
}

// Flatten lists the grouped resources department by department, subject
// group by subject group, lectures before practice.
func Flatten(groups []DepartmentGroup) []domain.CourseResource {
	var out []domain.CourseResource
	for _, d := range groups {
		for _, s := range d.Subjects {
			out = append(out, s.Lectures...)
			out = append(out, s.Practice...)
		}
	}
	return out
}

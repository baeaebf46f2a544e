package registry

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"aercd/pkg/domain"
)

//go:embed registry.yaml
var defaultDocument []byte

// Registry holds the immutable department reference data.
type Registry struct {
	departments []domain.Department
	byID        map[string]int
}

type document struct {
	Departments []domain.Department `yaml:"departments"`
}

// Default returns the registry compiled into the binary.
func Default() *Registry {
	reg, err := Load(bytes.NewReader(defaultDocument))
	if err != nil {
		panic(fmt.Sprintf("registry: embedded document: %v", err))
	}
	return reg
}

// LoadFile reads a registry document from path.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a YAML registry document.
func Load(r io.Reader) (*Registry, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if err := validate(doc.Departments); err != nil {
		return nil, err
	}
	reg := &Registry{
		departments: doc.Departments,
		byID:        make(map[string]int, len(doc.Departments)),
	}
	for i, d := range doc.Departments {
		reg.byID[d.ID] = i
	}
	return reg, nil
}

func validate(departments []domain.Department) error {
	if len(departments) == 0 {
		return errors.New("registry: no departments")
	}
	seen := make(map[string]struct{}, len(departments))
	for _, d := range departments {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			return errors.New("registry: department id is required")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("registry: duplicate department id %q", id)
		}
		seen[id] = struct{}{}
		codes := make(map[string]struct{}, len(d.SubDepartments))
		for _, sub := range d.SubDepartments {
			codes[sub.Code] = struct{}{}
		}
		for _, p := range d.Programs {
			if p.Level != domain.ProgramLicence && p.Level != domain.ProgramMaster {
				return fmt.Errorf("registry: program %q in %s has invalid level %q", p.Name, id, p.Level)
			}
			if p.SubDepartment == "" {
				continue
			}
			if _, ok := codes[p.SubDepartment]; !ok {
				return fmt.Errorf("registry: program %q in %s references unknown sub-department %q", p.Name, id, p.SubDepartment)
			}
		}
	}
	return nil
}

// Departments returns deep copies of all departments in document order.
func (r *Registry) Departments() []domain.Department {
	out := make([]domain.Department, len(r.departments))
	for i, d := range r.departments {
		out[i] = cloneDepartment(d)
	}
	return out
}

// Department looks up a department by id and returns a deep copy.
func (r *Registry) Department(id string) (domain.Department, bool) {
	i, ok := r.byID[id]
	if !ok {
		return domain.Department{}, false
	}
	return cloneDepartment(r.departments[i]), true
}

func cloneDepartment(d domain.Department) domain.Department {
	d.Context = slices.Clone(d.Context)
	d.SubDepartments = slices.Clone(d.SubDepartments)
	d.Staff = slices.Clone(d.Staff)
	programs := slices.Clone(d.Programs)
	for i := range programs {
		programs[i].Courses = slices.Clone(programs[i].Courses)
	}
	d.Programs = programs
	return d
}

// DepartmentIDs returns department ids in document order.
func (r *Registry) DepartmentIDs() []string {
	ids := make([]string, 0, len(r.departments))
	for _, d := range r.departments {
		ids = append(ids, d.ID)
	}
	return ids
}

// ExtendedProfiles returns the departments rendered with the multi-tab layout.
func (r *Registry) ExtendedProfiles() []domain.Department {
	var out []domain.Department
	for _, d := range r.departments {
		if d.HasExtendedProfile {
			out = append(out, cloneDepartment(d))
		}
	}
	return out
}

// WithDescriptions returns the departments with descriptions shadowed by site content overrides.
func (r *Registry) WithDescriptions(content domain.SiteContent) []domain.Department {
	out := r.Departments()
	for i := range out {
		out[i] = applyDescription(out[i], content)
	}
	return out
}

// DepartmentWithDescription is Department with the site content override applied.
func (r *Registry) DepartmentWithDescription(id string, content domain.SiteContent) (domain.Department, bool) {
	d, ok := r.Department(id)
	if !ok {
		return domain.Department{}, false
	}
	return applyDescription(d, content), true
}

func applyDescription(d domain.Department, content domain.SiteContent) domain.Department {
	if desc := strings.TrimSpace(content.DepartmentDescriptions[d.ID]); desc != "" {
		d.Description = desc
	}
	return d
}

// Snapshot serializes the registry as YAML for prompt grounding.
func (r *Registry) Snapshot() (string, error) {
	data, err := yaml.Marshal(document{Departments: r.departments})
	if err != nil {
		return "", fmt.Errorf("marshal registry: %w", err)
	}
	return string(data), nil
}

// Mismatch reports a resource whose subject does not name a known program.
type Mismatch struct {
	ResourceID   string `json:"resourceId"`
	Title        string `json:"title"`
	DepartmentID string `json:"departmentId"`
	Subject      string `json:"subject"`
	Reason       string `json:"reason"`
}

// UnmatchedSubjects runs the subject/program validation pass over resources.
// Subjects are compared case-insensitively against the program names and
// course lists of the resource's department; there is no referential
// integrity beyond this check.
func (r *Registry) UnmatchedSubjects(resources []domain.CourseResource) []Mismatch {
	fold := cases.Fold()
	programs := make(map[string]map[string]struct{}, len(r.departments))
	for _, d := range r.departments {
		names := make(map[string]struct{}, len(d.Programs))
		for _, p := range d.Programs {
			names[fold.String(strings.TrimSpace(p.Name))] = struct{}{}
			for _, c := range p.Courses {
				names[fold.String(strings.TrimSpace(c))] = struct{}{}
			}
		}
		programs[d.ID] = names
	}
	var out []Mismatch
	for _, res := range resources {
		names, ok := programs[res.DepartmentID]
		if !ok {
			out = append(out, mismatch(res, "unknown department"))
			continue
		}
		if _, ok := names[fold.String(strings.TrimSpace(res.Subject))]; !ok {
			out = append(out, mismatch(res, "subject matches no program"))
		}
	}
	return out
}

func mismatch(res domain.CourseResource, reason string) Mismatch {
	return Mismatch{
		ResourceID:   res.ID,
		Title:        res.Title,
		DepartmentID: res.DepartmentID,
		Subject:      res.Subject,
		Reason:       reason,
	}
}

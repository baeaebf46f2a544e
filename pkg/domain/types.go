package domain

import "time"

type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleStudent UserRole = "student"
	RoleGuest   UserRole = "guest"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleStudent, RoleGuest:
		return true
	}
	return false
}

type ResourceType string

const (
	TypeCours  ResourceType = "COURS"
	TypeTD     ResourceType = "TD"
	TypeTP     ResourceType = "TP"
	TypeExamen ResourceType = "EXAMEN"
)

// ResourceTypes lists the resource types in display order.
var ResourceTypes = []ResourceType{TypeCours, TypeTD, TypeTP, TypeExamen}

type Level string

const (
	LevelL1 Level = "L1"
	LevelL2 Level = "L2"
	LevelL3 Level = "L3"
	LevelM1 Level = "M1"
	LevelM2 Level = "M2"
)

// Levels lists the academic years in ascending order.
var Levels = []Level{LevelL1, LevelL2, LevelL3, LevelM1, LevelM2}

type ProgramLevel string

const (
	ProgramLicence ProgramLevel = "Licence"
	ProgramMaster  ProgramLevel = "Master"
)

type User struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Role       UserRole `json:"role"`
	Department string   `json:"department,omitempty"`
}

// IsAdmin reports whether the user may use the admin dashboard.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

type CourseResource struct {
	ID            string       `json:"id" yaml:"id"`
	Title         string       `json:"title" yaml:"title"`
	Description   string       `json:"description,omitempty" yaml:"description,omitempty"`
	Type          ResourceType `json:"type" yaml:"type"`
	DepartmentID  string       `json:"departmentId" yaml:"departmentId"`
	SubDepartment string       `json:"subDepartment,omitempty" yaml:"subDepartment,omitempty"`
	Level         Level        `json:"level" yaml:"level"`
	Subject       string       `json:"subject" yaml:"subject"`
	Author        string       `json:"author" yaml:"author"`
	DateAdded     time.Time    `json:"dateAdded" yaml:"dateAdded"`
	Downloads     int          `json:"downloads" yaml:"downloads"`
	Size          string       `json:"size,omitempty" yaml:"size,omitempty"`
}

// IsLecture reports whether the resource is lecture material (as opposed to practice).
func (r CourseResource) IsLecture() bool {
	return r.Type == TypeCours
}

// ResourceInput carries the caller-supplied fields of a resource.
type ResourceInput struct {
	Title         string       `json:"title" validate:"required,max=200"`
	Description   string       `json:"description" validate:"max=2000"`
	Type          ResourceType `json:"type" validate:"required,oneof=COURS TD TP EXAMEN"`
	DepartmentID  string       `json:"departmentId" validate:"required"`
	SubDepartment string       `json:"subDepartment" validate:"max=50"`
	Level         Level        `json:"level" validate:"required,oneof=L1 L2 L3 M1 M2"`
	Subject       string       `json:"subject" validate:"required,max=200"`
	Author        string       `json:"author" validate:"required,max=200"`
	Size          string       `json:"size" validate:"max=20"`
}

// Apply copies the input fields onto r, leaving identity and counters untouched.
func (in ResourceInput) Apply(r CourseResource) CourseResource {
	r.Title = in.Title
	r.Description = in.Description
	r.Type = in.Type
	r.DepartmentID = in.DepartmentID
	r.SubDepartment = in.SubDepartment
	r.Level = in.Level
	r.Subject = in.Subject
	r.Author = in.Author
	r.Size = in.Size
	return r
}

type SubDepartment struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}

type Program struct {
	Name          string       `json:"name" yaml:"name"`
	Level         ProgramLevel `json:"level" yaml:"level"`
	SubDepartment string       `json:"subDepartment,omitempty" yaml:"subDepartment,omitempty"`
	Description   string       `json:"description" yaml:"description"`
	Courses       []string     `json:"courses,omitempty" yaml:"courses,omitempty"`
}

type StaffMember struct {
	Name  string `json:"name" yaml:"name"`
	Title string `json:"title" yaml:"title"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
}

type ContextBlock struct {
	Title string `json:"title" yaml:"title"`
	Body  string `json:"body" yaml:"body"`
}

type Department struct {
	ID                 string          `json:"id" yaml:"id"`
	ShortName          string          `json:"shortName" yaml:"shortName"`
	FullName           string          `json:"fullName" yaml:"fullName"`
	Description        string          `json:"description" yaml:"description"`
	Context            []ContextBlock  `json:"context,omitempty" yaml:"context,omitempty"`
	Color              string          `json:"color" yaml:"color"`
	Icon               string          `json:"icon" yaml:"icon"`
	SubDepartments     []SubDepartment `json:"subDepartments" yaml:"subDepartments"`
	Programs           []Program       `json:"programs" yaml:"programs"`
	Staff              []StaffMember   `json:"staff,omitempty" yaml:"staff,omitempty"`
	HasExtendedProfile bool            `json:"hasExtendedProfile" yaml:"hasExtendedProfile"`
}

type SiteContent struct {
	WelcomeText            string            `json:"welcomeText" yaml:"welcomeText"`
	AmicaleMission         string            `json:"amicaleMission" yaml:"amicaleMission"`
	AmicaleVision          string            `json:"amicaleVision" yaml:"amicaleVision"`
	DepartmentDescriptions map[string]string `json:"departmentDescriptions" yaml:"departmentDescriptions"`
}

// SiteContentPatch is a partial SiteContent update; nil fields are left unchanged.
// A non-nil DepartmentDescriptions replaces the whole map.
type SiteContentPatch struct {
	WelcomeText            *string            `json:"welcomeText,omitempty"`
	AmicaleMission         *string            `json:"amicaleMission,omitempty"`
	AmicaleVision          *string            `json:"amicaleVision,omitempty"`
	DepartmentDescriptions *map[string]string `json:"departmentDescriptions,omitempty"`
}

// Empty reports whether the patch carries no field.
func (p SiteContentPatch) Empty() bool {
	return p.WelcomeText == nil && p.AmicaleMission == nil && p.AmicaleVision == nil && p.DepartmentDescriptions == nil
}

type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type ChatReply struct {
	ConversationID string    `json:"conversationId"`
	RequestID      string    `json:"requestId"`
	Reply          string    `json:"reply"`
	Fallback       bool      `json:"fallback"`
	CreatedAt      time.Time `json:"createdAt"`
}

type DepartmentStats struct {
	DepartmentID string `json:"departmentId"`
	Resources    int    `json:"resources"`
	Downloads    int    `json:"downloads"`
}

type Stats struct {
	TotalResources int                  `json:"totalResources"`
	TotalDownloads int                  `json:"totalDownloads"`
	ByDepartment   []DepartmentStats    `json:"byDepartment"`
	ByType         map[ResourceType]int `json:"byType"`
	ByLevel        map[Level]int        `json:"byLevel"`
	TopDownloaded  []CourseResource     `json:"topDownloaded"`
}

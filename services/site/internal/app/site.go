package app

import (
	"fmt"
	"strings"

	"aercd/pkg/domain"
)

// SiteContent returns the editable site text.
func (a *App) SiteContent() domain.SiteContent {
	return a.store.SiteContent()
}

// UpdateSiteContent merges patch into the site text. Description overrides
// may only name known departments.
func (a *App) UpdateSiteContent(user domain.User, patch domain.SiteContentPatch) (domain.SiteContent, error) {
	if !user.IsAdmin() {
		return domain.SiteContent{}, ErrForbidden
	}
	if patch.Empty() {
		return domain.SiteContent{}, ErrEmptyPatch
	}
	if patch.DepartmentDescriptions != nil {
		var errs ValidationErrors
		for id := range *patch.DepartmentDescriptions {
			if _, ok := a.registry.Department(id); !ok {
				errs = append(errs, ValidationError{
					Field:   "departmentDescriptions." + id,
					Message: "unknown department",
					Rule:    "registry",
				})
			}
		}
		if len(errs) > 0 {
			return domain.SiteContent{}, errs
		}
	}
	return a.store.UpdateSiteContent(patch), nil
}

// Departments lists the departments with description overrides applied.
func (a *App) Departments() []domain.Department {
	return a.registry.WithDescriptions(a.store.SiteContent())
}

// ExtendedProfiles lists the ids of the departments whose page uses the
// multi-tab profile layout.
func (a *App) ExtendedProfiles() []string {
	profiles := a.registry.ExtendedProfiles()
	ids := make([]string, 0, len(profiles))
	for _, d := range profiles {
		ids = append(ids, d.ID)
	}
	return ids
}

// Department returns one department with its description override applied.
func (a *App) Department(id string) (domain.Department, error) {
	d, ok := a.registry.DepartmentWithDescription(strings.TrimSpace(id), a.store.SiteContent())
	if !ok {
		return domain.Department{}, fmt.Errorf("%w: %s", ErrDepartmentNotFound, id)
	}
	return d, nil
}

package app

import (
	"aercd/pkg/domain"
	"aercd/pkg/query"
)

// Browse runs a resource query over the current collection.
func (a *App) Browse(c query.Criteria) query.Result {
	return query.Run(a.store.ListResources(), c)
}

// Resource looks up one resource.
func (a *App) Resource(id string) (domain.CourseResource, error) {
	r, ok := a.store.GetResource(id)
	if !ok {
		return domain.CourseResource{}, ErrResourceNotFound
	}
	return r, nil
}

// AddResource validates the input and inserts a new resource at the front
// of the collection.
func (a *App) AddResource(user domain.User, in domain.ResourceInput) (domain.CourseResource, error) {
	if !user.IsAdmin() {
		return domain.CourseResource{}, ErrForbidden
	}
	in = normalizeInput(in)
	if err := a.validator.Validate(in); err != nil {
		return domain.CourseResource{}, err
	}
	return a.store.AddResource(in)
}

// UpdateResource replaces every field of an existing resource except its
// identity, creation date and download count.
func (a *App) UpdateResource(user domain.User, id string, in domain.ResourceInput) (domain.CourseResource, error) {
	if !user.IsAdmin() {
		return domain.CourseResource{}, ErrForbidden
	}
	in = normalizeInput(in)
	if err := a.validator.Validate(in); err != nil {
		return domain.CourseResource{}, err
	}
	existing, ok := a.store.GetResource(id)
	if !ok {
		return domain.CourseResource{}, ErrResourceNotFound
	}
	return a.store.UpdateResource(in.Apply(existing))
}

// DeleteResource removes a resource; deleting an unknown id succeeds.
func (a *App) DeleteResource(user domain.User, id string) error {
	if !user.IsAdmin() {
		return ErrForbidden
	}
	return a.store.DeleteResource(id)
}

// Download records one download of the resource and returns it.
func (a *App) Download(id string) (domain.CourseResource, error) {
	return a.store.IncrementDownload(id)
}

package store

import (
	"context"
	"errors"

	"aercd/pkg/domain"
)

// ErrResourceNotFound indicates an update or download against an unknown id.
var ErrResourceNotFound = errors.New("resource not found")

// Store is the single writer of the resource collection and the editable site text.
type Store interface {
	// resources, most recent first
	ListResources() []domain.CourseResource
	GetResource(id string) (domain.CourseResource, bool)
	AddResource(in domain.ResourceInput) (domain.CourseResource, error)
	UpdateResource(r domain.CourseResource) (domain.CourseResource, error)
	DeleteResource(id string) error
	IncrementDownload(id string) (domain.CourseResource, error)

	// site text
	SiteContent() domain.SiteContent
	UpdateSiteContent(patch domain.SiteContentPatch) domain.SiteContent
}

// SessionStore persists the identity of logged-in users across requests.
type SessionStore interface {
	NewSession(ctx context.Context, user domain.User) (string, error)
	GetUser(ctx context.Context, token string) (domain.User, bool, error)
	DeleteSession(ctx context.Context, token string) error
}

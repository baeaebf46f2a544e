package store

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aercd/pkg/domain"
)

// MemoryStore keeps the site state in-process; it is lost on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	resources []domain.CourseResource // most recent first
	content   domain.SiteContent
	now       func() time.Time
	newID     func() string
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock overrides the clock used for DateAdded.
func WithClock(now func() time.Time) Option {
	return func(m *MemoryStore) { m.now = now }
}

// WithIDGenerator overrides resource id generation.
func WithIDGenerator(newID func() string) Option {
	return func(m *MemoryStore) { m.newID = newID }
}

// WithResources seeds the collection; the slice order is kept as listing order.
func WithResources(resources []domain.CourseResource) Option {
	return func(m *MemoryStore) {
		m.resources = append([]domain.CourseResource(nil), resources...)
	}
}

// WithSiteContent sets the initial site text.
func WithSiteContent(content domain.SiteContent) Option {
	return func(m *MemoryStore) { m.content = cloneContent(content) }
}

// NewMemoryStore initializes an empty store with default site text.
func NewMemoryStore(opts ...Option) *MemoryStore {
	m := &MemoryStore{
		content: DefaultSiteContent(),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ListResources returns a copy of the collection, most recent first.
func (m *MemoryStore) ListResources() []domain.CourseResource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.CourseResource, len(m.resources))
	copy(out, m.resources)
	return out
}

// GetResource retrieves a resource by id.
func (m *MemoryStore) GetResource(id string) (domain.CourseResource, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.indexOf(id); i >= 0 {
		return m.resources[i], true
	}
	return domain.CourseResource{}, false
}

// AddResource assigns id, date and a zero download count, then inserts at the front.
func (m *MemoryStore) AddResource(in domain.ResourceInput) (domain.CourseResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := in.Apply(domain.CourseResource{
		ID:        m.newID(),
		DateAdded: m.now(),
	})
	m.resources = append([]domain.CourseResource{r}, m.resources...)
	return r, nil
}

// UpdateResource replaces the stored record with the same id. ID, DateAdded and
// Downloads keep their stored values.
func (m *MemoryStore) UpdateResource(r domain.CourseResource) (domain.CourseResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(r.ID)
	if i < 0 {
		return domain.CourseResource{}, ErrResourceNotFound
	}
	current := m.resources[i]
	r.DateAdded = current.DateAdded
	r.Downloads = current.Downloads
	m.resources[i] = r
	return r, nil
}

// DeleteResource removes the resource; deleting an unknown id is a no-op.
func (m *MemoryStore) DeleteResource(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(id)
	if i < 0 {
		return nil
	}
	m.resources = append(m.resources[:i:i], m.resources[i+1:]...)
	return nil
}

// IncrementDownload adds one to the download counter.
func (m *MemoryStore) IncrementDownload(id string) (domain.CourseResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(id)
	if i < 0 {
		return domain.CourseResource{}, ErrResourceNotFound
	}
	m.resources[i].Downloads++
	return m.resources[i], nil
}

// SiteContent returns a copy of the site text.
func (m *MemoryStore) SiteContent() domain.SiteContent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneContent(m.content)
}

// UpdateSiteContent merges patch into the site text and returns the result.
func (m *MemoryStore) UpdateSiteContent(patch domain.SiteContentPatch) domain.SiteContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if patch.WelcomeText != nil {
		m.content.WelcomeText = *patch.WelcomeText
	}
	if patch.AmicaleMission != nil {
		m.content.AmicaleMission = *patch.AmicaleMission
	}
	if patch.AmicaleVision != nil {
		m.content.AmicaleVision = *patch.AmicaleVision
	}
	if patch.DepartmentDescriptions != nil {
		m.content.DepartmentDescriptions = cloneMap(*patch.DepartmentDescriptions)
	}
	return cloneContent(m.content)
}

func (m *MemoryStore) indexOf(id string) int {
	id = strings.TrimSpace(id)
	if id == "" {
		return -1
	}
	for i := range m.resources {
		if m.resources[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneContent(c domain.SiteContent) domain.SiteContent {
	c.DepartmentDescriptions = cloneMap(c.DepartmentDescriptions)
	return c
}

func cloneMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aercd/pkg/auth"
	"aercd/pkg/domain"
	"aercd/pkg/registry"
	"aercd/services/site/internal/chat"
	"aercd/services/site/internal/store"
)

// Config holds the collaborators of the application. Store, Sessions and
// Authenticator are required; Registry defaults to the embedded one and a
// nil Bridge is built in offline mode.
type Config struct {
	Store         store.Store
	Sessions      store.SessionStore
	Authenticator auth.Authenticator
	Registry      *registry.Registry
	Bridge        *chat.Bridge
}

// App is the use-case layer behind the HTTP server.
type App struct {
	store     store.Store
	sessions  store.SessionStore
	auth      auth.Authenticator
	registry  *registry.Registry
	bridge    *chat.Bridge
	validator *resourceValidator
}

// New wires the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store required")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("authenticator required")
	}
	reg := cfg.Registry
	if reg == nil {
		reg = registry.Default()
	}
	bridge := cfg.Bridge
	if bridge == nil {
		var err error
		bridge, err = chat.New(chat.Config{Registry: reg})
		if err != nil {
			return nil, fmt.Errorf("init chat bridge: %w", err)
		}
	}
	return &App{
		store:     cfg.Store,
		sessions:  cfg.Sessions,
		auth:      cfg.Authenticator,
		registry:  reg,
		bridge:    bridge,
		validator: newResourceValidator(reg),
	}, nil
}

// Login verifies credentials and opens a session. On failure no session is
// created.
func (a *App) Login(ctx context.Context, creds auth.Credentials) (string, domain.User, error) {
	user, err := a.auth.Verify(ctx, creds)
	if err != nil {
		return "", domain.User{}, err
	}
	token, err := a.sessions.NewSession(ctx, user)
	if err != nil {
		return "", domain.User{}, fmt.Errorf("create session: %w", err)
	}
	return token, user, nil
}

// Logout ends the session. Unknown or empty tokens are a no-op.
func (a *App) Logout(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return a.sessions.DeleteSession(ctx, token)
}

// CurrentUser resolves the user behind a session token.
func (a *App) CurrentUser(ctx context.Context, token string) (domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return domain.User{}, ErrUnauthenticated
	}
	user, ok, err := a.sessions.GetUser(ctx, token)
	if err != nil {
		return domain.User{}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUnauthenticated
	}
	return user, nil
}

// ListAccounts lists the users known to the authenticator, when it can
// enumerate them.
func (a *App) ListAccounts(user domain.User) ([]domain.User, error) {
	if !user.IsAdmin() {
		return nil, ErrForbidden
	}
	lister, ok := a.auth.(interface{ Users() []domain.User })
	if !ok {
		return []domain.User{}, nil
	}
	return lister.Users(), nil
}

// Ask forwards a question to the chat bridge. Anonymous visitors pass a
// zero user.
func (a *App) Ask(ctx context.Context, user domain.User, conversationID, question string) (domain.ChatReply, error) {
	return a.bridge.Ask(ctx, user.ID, conversationID, question)
}

// Transcript returns a conversation visible to user.
func (a *App) Transcript(ctx context.Context, user domain.User, conversationID string) ([]domain.ChatMessage, error) {
	return a.bridge.Transcript(ctx, user.ID, conversationID)
}

// ChatOnline reports whether the assistant has a generator configured.
func (a *App) ChatOnline() bool {
	return a.bridge.Online()
}

// CatalogIssues lists resources whose subject names no known program.
func (a *App) CatalogIssues(user domain.User) ([]registry.Mismatch, error) {
	if !user.IsAdmin() {
		return nil, ErrForbidden
	}
	issues := a.registry.UnmatchedSubjects(a.store.ListResources())
	if issues == nil {
		issues = []registry.Mismatch{}
	}
	return issues, nil
}

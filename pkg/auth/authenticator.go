package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"aercd/pkg/domain"
)

// ErrInvalidCredentials is returned when no account matches the credentials.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Credentials are the identifier/secret pair submitted at login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Authenticator verifies credentials and returns the matching user.
type Authenticator interface {
	Verify(ctx context.Context, creds Credentials) (domain.User, error)
}

// Account is a known credential. PasswordHash is a bcrypt hash; Password is
// accepted for local setups and hashed when the authenticator is built.
type Account struct {
	Email        string          `yaml:"email" json:"email"`
	Password     string          `yaml:"password" json:"-"`
	PasswordHash string          `yaml:"passwordHash" json:"-"`
	Name         string          `yaml:"name" json:"name"`
	Role         domain.UserRole `yaml:"role" json:"role"`
	Department   string          `yaml:"department" json:"department,omitempty"`
}

// DefaultAccounts returns the single demo administrator.
func DefaultAccounts() []Account {
	return []Account{{
		Email:    "admin@aercd.sn",
		Password: "aercd-admin",
		Name:     "Administrateur AERCD",
		Role:     domain.RoleAdmin,
	}}
}

// StaticAuthenticator checks credentials against a fixed account list.
type StaticAuthenticator struct {
	accounts map[string]Account
	order    []string
}

// NewStaticAuthenticator normalizes and hashes the accounts.
func NewStaticAuthenticator(accounts []Account) (*StaticAuthenticator, error) {
	if len(accounts) == 0 {
		return nil, errors.New("at least one account required")
	}
	a := &StaticAuthenticator{accounts: make(map[string]Account, len(accounts))}
	for _, acc := range accounts {
		acc.Email = normalizeEmail(acc.Email)
		if acc.Email == "" {
			return nil, errors.New("account email required")
		}
		if _, dup := a.accounts[acc.Email]; dup {
			return nil, fmt.Errorf("duplicate account %s", acc.Email)
		}
		if acc.Role == "" {
			acc.Role = domain.RoleStudent
		}
		if !acc.Role.Valid() {
			return nil, fmt.Errorf("account %s: invalid role %q", acc.Email, acc.Role)
		}
		if acc.PasswordHash == "" {
			hash, err := HashPassword(acc.Password)
			if err != nil {
				return nil, fmt.Errorf("account %s: %w", acc.Email, err)
			}
			acc.PasswordHash = hash
		}
		acc.Password = ""
		a.accounts[acc.Email] = acc
		a.order = append(a.order, acc.Email)
	}
	return a, nil
}

// Verify implements Authenticator.
func (a *StaticAuthenticator) Verify(_ context.Context, creds Credentials) (domain.User, error) {
	acc, ok := a.accounts[normalizeEmail(creds.Email)]
	if !ok || !CheckPassword(creds.Password, acc.PasswordHash) {
		return domain.User{}, ErrInvalidCredentials
	}
	return userFromAccount(acc), nil
}

// Users lists the users behind the known accounts in configuration order.
func (a *StaticAuthenticator) Users() []domain.User {
	out := make([]domain.User, 0, len(a.order))
	for _, email := range a.order {
		out = append(out, userFromAccount(a.accounts[email]))
	}
	return out
}

func userFromAccount(acc Account) domain.User {
	name := strings.TrimSpace(acc.Name)
	if name == "" {
		name = acc.Email
	}
	return domain.User{
		ID:         UserID(acc.Email),
		Name:       name,
		Email:      acc.Email,
		Role:       acc.Role,
		Department: acc.Department,
	}
}

// UserID derives a stable user id from an email address.
func UserID(email string) string {
	sum := sha256.Sum256([]byte(normalizeEmail(email)))
	return "u-" + hex.EncodeToString(sum[:8])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

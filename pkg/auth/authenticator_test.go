package auth

import (
	"context"
	"errors"
	"testing"

	"aercd/pkg/domain"
)

func TestStaticAuthenticatorAdminLogin(t *testing.T) {
	a, err := NewStaticAuthenticator(DefaultAccounts())
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	user, err := a.Verify(context.Background(), Credentials{Email: " Admin@AERCD.sn ", Password: "aercd-admin"})
	if err != nil {
		t.Fatalf("verify admin: %v", err)
	}
	if user.Role != domain.RoleAdmin {
		t.Fatalf("role = %q, want admin", user.Role)
	}
	if user.ID != UserID("admin@aercd.sn") {
		t.Fatalf("user id must be derived from the email, got %q", user.ID)
	}
}

func TestStaticAuthenticatorRejectsOtherCredentials(t *testing.T) {
	a, err := NewStaticAuthenticator(DefaultAccounts())
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	cases := []Credentials{
		{Email: "admin@aercd.sn", Password: "wrong"},
		{Email: "someone@aercd.sn", Password: "aercd-admin"},
		{},
	}
	for _, creds := range cases {
		if _, err := a.Verify(context.Background(), creds); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("verify %+v: err = %v, want ErrInvalidCredentials", creds, err)
		}
	}
}

func TestStaticAuthenticatorRoleFromAccount(t *testing.T) {
	a, err := NewStaticAuthenticator([]Account{
		{Email: "admin@aercd.sn", Password: "a", Role: domain.RoleAdmin},
		{Email: "etudiant@aercd.sn", Password: "e", Department: "satic"},
	})
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	user, err := a.Verify(context.Background(), Credentials{Email: "etudiant@aercd.sn", Password: "e"})
	if err != nil {
		t.Fatalf("verify student: %v", err)
	}
	if user.Role != domain.RoleStudent || user.Department != "satic" {
		t.Fatalf("unexpected user %+v", user)
	}
	if got := len(a.Users()); got != 2 {
		t.Fatalf("users = %d, want 2", got)
	}
}

func TestNewStaticAuthenticatorValidation(t *testing.T) {
	if _, err := NewStaticAuthenticator(nil); err == nil {
		t.Fatalf("expected error without accounts")
	}
	if _, err := NewStaticAuthenticator([]Account{{Email: "x@y", Password: "p", Role: "root"}}); err == nil {
		t.Fatalf("expected error for invalid role")
	}
	if _, err := NewStaticAuthenticator([]Account{{Email: "x@y", Password: "p"}, {Email: "X@Y", Password: "q"}}); err == nil {
		t.Fatalf("expected error for duplicate account")
	}
}

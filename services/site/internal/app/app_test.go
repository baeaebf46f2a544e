package app

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"aercd/pkg/auth"
	"aercd/pkg/domain"
	"aercd/pkg/query"
	"aercd/services/site/internal/store"
)

var (
	admin   = domain.User{ID: "u-admin", Role: domain.RoleAdmin}
	student = domain.User{ID: "u-student", Role: domain.RoleStudent}
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	authenticator, err := auth.NewStaticAuthenticator(auth.DefaultAccounts())
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	a, err := New(Config{
		Store:         store.NewMemoryStore(store.DefaultSeed().Options()...),
		Sessions:      store.NewMemorySessionStore(time.Hour),
		Authenticator: authenticator,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func validInput() domain.ResourceInput {
	return domain.ResourceInput{
		Title:         "  Analyse - Chapitre 2 : Suites  ",
		Type:          domain.TypeCours,
		DepartmentID:  "satic",
		SubDepartment: "MATH",
		Level:         domain.LevelL1,
		Subject:       "Analyse",
		Author:        "Dr. Ousmane Faye",
		Size:          "800 KB",
	}
}

func TestLoginLogoutRoundTrip(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	token, user, err := a.Login(ctx, auth.Credentials{Email: "admin@aercd.sn", Password: "aercd-admin"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.Role != domain.RoleAdmin {
		t.Fatalf("role = %q, want admin", user.Role)
	}
	current, err := a.CurrentUser(ctx, token)
	if err != nil || current.Email != "admin@aercd.sn" {
		t.Fatalf("current user: %+v %v", current, err)
	}
	if err := a.Logout(ctx, token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := a.CurrentUser(ctx, token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("after logout: err = %v, want ErrUnauthenticated", err)
	}
	if err := a.Logout(ctx, ""); err != nil {
		t.Fatalf("logout without session must be a no-op: %v", err)
	}
}

func TestLoginFailureCreatesNoSession(t *testing.T) {
	a := newTestApp(t)
	token, _, err := a.Login(context.Background(), auth.Credentials{Email: "admin@aercd.sn", Password: "nope"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if token != "" {
		t.Fatalf("unexpected token %q", token)
	}
}

func TestAddResourceAppearsFirst(t *testing.T) {
	a := newTestApp(t)
	created, err := a.AddResource(admin, validInput())
	if err != nil {
		t.Fatalf("add resource: %v", err)
	}
	if created.Title != "Analyse - Chapitre 2 : Suites" || created.Downloads != 0 || created.ID == "" {
		t.Fatalf("unexpected resource %+v", created)
	}
	result := a.Browse(query.Criteria{})
	first := result.Departments[0].Subjects[0]
	if len(first.Lectures) == 0 || first.Lectures[0].ID != created.ID {
		t.Fatalf("new resource is not the first lecture of the first group: %+v", first)
	}
}

func TestAddResourceValidation(t *testing.T) {
	a := newTestApp(t)
	in := validInput()
	in.Title = " "
	in.Type = "CM"
	in.SubDepartment = "ENV"
	_, err := a.AddResource(admin, in)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("err = %v, want ValidationErrors", err)
	}
	fields := map[string]bool{}
	for _, e := range verrs {
		fields[e.Field] = true
	}
	for _, f := range []string{"title", "type", "subDepartment"} {
		if !fields[f] {
			t.Fatalf("missing error for %s in %+v", f, verrs)
		}
	}

	in = validInput()
	in.DepartmentID = "medecine"
	in.SubDepartment = ""
	if _, err := a.AddResource(admin, in); !errors.As(err, &verrs) || verrs[0].Field != "departmentId" {
		t.Fatalf("unknown department: err = %v", err)
	}
}

func TestMutationsRequireAdmin(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.AddResource(student, validInput()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("add: err = %v", err)
	}
	if _, err := a.UpdateResource(student, "res-satic-001", validInput()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("update: err = %v", err)
	}
	if err := a.DeleteResource(domain.User{}, "res-satic-001"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("delete: err = %v", err)
	}
	if _, err := a.Stats(student); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stats: err = %v", err)
	}
}

func TestUpdateResourceKeepsIdentityAndCounters(t *testing.T) {
	a := newTestApp(t)
	before, err := a.Resource("res-satic-001")
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	updated, err := a.UpdateResource(admin, "res-satic-001", validInput())
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != before.ID || updated.Downloads != before.Downloads || !updated.DateAdded.Equal(before.DateAdded) {
		t.Fatalf("identity or counters changed: %+v -> %+v", before, updated)
	}
	if updated.Subject != "Analyse" {
		t.Fatalf("subject = %q", updated.Subject)
	}
	if _, err := a.UpdateResource(admin, "missing", validInput()); !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("update missing: err = %v", err)
	}
}

func TestDownloadCounts(t *testing.T) {
	a := newTestApp(t)
	for i := 0; i < 3; i++ {
		if _, err := a.Download("res-satic-001"); err != nil {
			t.Fatalf("download: %v", err)
		}
	}
	r, _ := a.Resource("res-satic-001")
	if r.Downloads != 45 {
		t.Fatalf("downloads = %d, want 45", r.Downloads)
	}
	if _, err := a.Download("missing"); !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("err = %v, want ErrResourceNotFound", err)
	}
}

func TestSiteContentAndDepartmentOverrides(t *testing.T) {
	a := newTestApp(t)
	before := a.SiteContent()
	mission := "X"
	content, err := a.UpdateSiteContent(admin, domain.SiteContentPatch{AmicaleMission: &mission})
	if err != nil {
		t.Fatalf("update content: %v", err)
	}
	if content.AmicaleMission != "X" || content.AmicaleVision != before.AmicaleVision || content.WelcomeText != before.WelcomeText {
		t.Fatalf("merge touched other fields: %+v", content)
	}

	descriptions := map[string]string{"sdd": "Nouvelle description"}
	if _, err := a.UpdateSiteContent(admin, domain.SiteContentPatch{DepartmentDescriptions: &descriptions}); err != nil {
		t.Fatalf("update descriptions: %v", err)
	}
	sdd, err := a.Department("sdd")
	if err != nil || sdd.Description != "Nouvelle description" {
		t.Fatalf("override not applied: %+v %v", sdd, err)
	}
	satic, _ := a.Department("satic")
	if satic.Description == "" || !satic.HasExtendedProfile {
		t.Fatalf("satic must keep its registry description and extended profile: %+v", satic)
	}
	if _, err := a.Department("medecine"); !errors.Is(err, ErrDepartmentNotFound) {
		t.Fatalf("err = %v, want ErrDepartmentNotFound", err)
	}

	bad := map[string]string{"medecine": "?"}
	var verrs ValidationErrors
	if _, err := a.UpdateSiteContent(admin, domain.SiteContentPatch{DepartmentDescriptions: &bad}); !errors.As(err, &verrs) {
		t.Fatalf("err = %v, want ValidationErrors", err)
	}
	if _, err := a.UpdateSiteContent(admin, domain.SiteContentPatch{}); !errors.Is(err, ErrEmptyPatch) {
		t.Fatalf("err = %v, want ErrEmptyPatch", err)
	}
}

func TestStats(t *testing.T) {
	a := newTestApp(t)
	stats, err := a.Stats(admin)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalResources != 6 || stats.TotalDownloads != 236 {
		t.Fatalf("totals = %d/%d, want 6/236", stats.TotalResources, stats.TotalDownloads)
	}
	if stats.ByDepartment[0].DepartmentID != "satic" || stats.ByDepartment[0].Resources != 4 || stats.ByDepartment[0].Downloads != 147 {
		t.Fatalf("satic stats = %+v", stats.ByDepartment[0])
	}
	if stats.ByType[domain.TypeCours] != 3 || stats.ByLevel[domain.LevelM2] != 0 {
		t.Fatalf("breakdowns = %v / %v", stats.ByType, stats.ByLevel)
	}
	if len(stats.TopDownloaded) != 5 || stats.TopDownloaded[0].Downloads != 64 {
		t.Fatalf("top downloaded = %+v", stats.TopDownloaded)
	}
}

func TestExportResources(t *testing.T) {
	a := newTestApp(t)
	var buf bytes.Buffer
	if err := a.ExportResources(admin, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Ressources")
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	if len(rows) != 7 {
		t.Fatalf("rows = %d, want header + 6", len(rows))
	}
	if rows[0][0] != "ID" || rows[1][0] == "" {
		t.Fatalf("unexpected rows %v", rows[:2])
	}
	if idx, _ := f.GetSheetIndex("Statistiques"); idx < 0 {
		t.Fatalf("missing stats sheet")
	}
	if err := a.ExportResources(student, &buf); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestCatalogIssues(t *testing.T) {
	a := newTestApp(t)
	issues, err := a.CatalogIssues(admin)
	if err != nil {
		t.Fatalf("catalog issues: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("seed should match the registry, got %+v", issues)
	}
	in := validInput()
	in.Subject = "Astrologie"
	created, err := a.AddResource(admin, in)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	issues, _ = a.CatalogIssues(admin)
	if len(issues) != 1 || issues[0].ResourceID != created.ID {
		t.Fatalf("issues = %+v", issues)
	}
}

func TestAskOfflineByDefault(t *testing.T) {
	a := newTestApp(t)
	if a.ChatOnline() {
		t.Fatalf("app without generator must be offline")
	}
	reply, err := a.Ask(context.Background(), domain.User{}, "", "Bonjour")
	if err != nil || !reply.Fallback {
		t.Fatalf("reply = %+v, err = %v", reply, err)
	}
	msgs, err := a.Transcript(context.Background(), domain.User{}, reply.ConversationID)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("transcript = %+v, err = %v", msgs, err)
	}
}

package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aercd/internal/ratelimit"
	"aercd/internal/util"
	"aercd/pkg/auth"
	"aercd/pkg/domain"
	"aercd/pkg/query"
	"aercd/services/site/internal/app"
)

// SessionCookie carries the session token for browser clients.
const SessionCookie = "aercd_session"

const maxBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server. Nil limiters
// disable rate limiting.
type Config struct {
	App            *app.App
	LoginLimiter   ratelimit.Limiter
	ChatLimiter    ratelimit.Limiter
	TrustedProxies *util.TrustedProxies
	CORSOrigins    []string
	CookieSecure   bool
	SessionTTL     time.Duration
}

// Server exposes the site's JSON API.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	loginLimiter   ratelimit.Limiter
	chatLimiter    ratelimit.Limiter
	trustedProxies *util.TrustedProxies
	corsOrigins    []string
	cookieSecure   bool
	sessionTTL     time.Duration
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		loginLimiter:   cfg.LoginLimiter,
		chatLimiter:    cfg.ChatLimiter,
		trustedProxies: cfg.TrustedProxies,
		corsOrigins:    cfg.CORSOrigins,
		cookieSecure:   cfg.CookieSecure,
		sessionTTL:     ttl,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.corsOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.Handle("/api/users/me", s.authenticated(s.handleMe))

	// public content
	s.mux.HandleFunc("/api/site", s.handleSite)
	s.mux.HandleFunc("/api/departments", s.handleDepartments)
	s.mux.HandleFunc("/api/departments/", s.handleDepartmentByID)
	s.mux.HandleFunc("/api/resources", s.handleResources)
	s.mux.HandleFunc("/api/resources/", s.handleResourceByID)

	// chat (anonymous or logged in)
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/chat/", s.handleChatTranscript)

	// admin
	s.mux.Handle("/api/admin/resources", s.adminOnly(s.handleAdminResources))
	s.mux.Handle("/api/admin/resources/", s.adminOnly(s.handleAdminResourceByID))
	s.mux.Handle("/api/admin/site", s.adminOnly(s.handleAdminSite))
	s.mux.Handle("/api/admin/stats", s.adminOnly(s.handleAdminStats))
	s.mux.Handle("/api/admin/users", s.adminOnly(s.handleAdminUsers))
	s.mux.Handle("/api/admin/catalog/issues", s.adminOnly(s.handleAdminCatalogIssues))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	chat := "offline"
	if s.app.ChatOnline() {
		chat = "online"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "chat": chat})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			s.audit(r, "site.authorize", "fail")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			s.audit(r, "site.admin.authorize", "fail", "reason", "unauthenticated")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !user.IsAdmin() {
			s.audit(r, "site.admin.authorize", "fail", "user_id", user.ID, "reason", "forbidden")
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		s.audit(r, "site.admin.authorize", "success", "user_id", user.ID)
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token, ok := sessionToken(r)
	if !ok {
		return domain.User{}, false
	}
	user, err := s.app.CurrentUser(r.Context(), token)
	if err != nil {
		if !errors.Is(err, app.ErrUnauthenticated) {
			util.LoggerFromContext(r.Context()).Error("session lookup failed", "err", err)
		}
		return domain.User{}, false
	}
	return user, true
}

// optionalUser resolves the caller when a valid session is presented and
// returns the zero user otherwise.
func (s *Server) optionalUser(r *http.Request) domain.User {
	user, _ := s.authorize(r)
	return user
}

// auth handlers
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "site.login", "rate_limited")
		return
	}
	var req auth.Credentials
	if err := decodeJSON(r, &req); err != nil {
		s.audit(r, "site.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token, user, err := s.app.Login(r.Context(), req)
	if err != nil {
		s.audit(r, "site.login", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "site.login", "success", "user_id", user.ID)
	http.SetCookie(w, s.sessionCookie(token, int(s.sessionTTL.Seconds())))
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if token, ok := sessionToken(r); ok {
		if err := s.app.Logout(r.Context(), token); err != nil {
			s.audit(r, "site.logout", "fail", "reason", err.Error())
			writeAppError(w, r, err)
			return
		}
	}
	s.audit(r, "site.logout", "success")
	http.SetCookie(w, s.sessionCookie("", -1))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// content handlers
func (s *Server) handleSite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, siteResponse{
		Content:          s.app.SiteContent(),
		Departments:      s.app.Departments(),
		ExtendedProfiles: s.app.ExtendedProfiles(),
	})
}

func (s *Server) handleDepartments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.app.Departments()})
}

func (s *Server) handleDepartmentByID(w http.ResponseWriter, r *http.Request) {
	id, rest := splitID(r.URL.Path, "/api/departments/")
	if id == "" || rest != "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	dept, err := s.app.Department(id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dept)
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.app.Browse(query.ParseCriteria(r.URL.Query())))
}

func (s *Server) handleResourceByID(w http.ResponseWriter, r *http.Request) {
	id, rest := splitID(r.URL.Path, "/api/resources/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch rest {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		res, err := s.app.Resource(id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	case "download":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		res, err := s.app.Download(id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	default:
		http.NotFound(w, r)
	}
}

// chat handlers
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.chatLimiter, "too many chat messages") {
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reply, err := s.app.Ask(r.Context(), s.optionalUser(r), req.ConversationID, req.Question)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleChatTranscript(w http.ResponseWriter, r *http.Request) {
	id, rest := splitID(r.URL.Path, "/api/chat/")
	if id == "" || rest != "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	messages, err := s.app.Transcript(r.Context(), s.optionalUser(r), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversationId": id, "messages": messages})
}

// admin handlers
func (s *Server) handleAdminResources(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var in domain.ResourceInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := s.app.AddResource(user, in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "site.admin.resource.create", "success", "user_id", user.ID, "resource_id", res.ID)
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleAdminResourceByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, rest := splitID(r.URL.Path, "/api/admin/resources/")
	if id == "" || rest != "" {
		http.NotFound(w, r)
		return
	}
	if id == "export" {
		s.handleAdminExport(w, r, user)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var in domain.ResourceInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		res, err := s.app.UpdateResource(user, id, in)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "site.admin.resource.update", "success", "user_id", user.ID, "resource_id", id)
		writeJSON(w, http.StatusOK, res)
	case http.MethodDelete:
		if err := s.app.DeleteResource(user, id); err != nil {
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "site.admin.resource.delete", "success", "user_id", user.ID, "resource_id", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAdminExport(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	var buf bytes.Buffer
	if err := s.app.ExportResources(user, &buf); err != nil {
		writeAppError(w, r, err)
		return
	}
	filename := fmt.Sprintf("ressources-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleAdminSite(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	var patch domain.SiteContentPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	content, err := s.app.UpdateSiteContent(user, patch)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "site.admin.content.update", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, content)
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.Stats(user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	users, err := s.app.ListAccounts(user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users})
}

func (s *Server) handleAdminCatalogIssues(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	issues, err := s.app.CatalogIssues(user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": issues})
}

type loginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type siteResponse struct {
	Content          domain.SiteContent  `json:"content"`
	Departments      []domain.Department `json:"departments"`
	ExtendedProfiles []string            `json:"extendedProfiles"`
}

type chatRequest struct {
	ConversationID string `json:"conversationId"`
	Question       string `json:"question"`
}

type validationResponse struct {
	Error  string               `json:"error"`
	Fields app.ValidationErrors `json:"fields"`
}

func sessionToken(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		return token, token != ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value), true
	}
	return "", false
}

func (s *Server) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// splitID splits "<prefix><id>[/<rest>]".
func splitID(path, prefix string) (id, rest string) {
	parts := strings.SplitN(strings.TrimPrefix(path, prefix), "/", 2)
	id = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		rest = parts[1]
	}
	return id, rest
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
}

func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs app.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, validationResponse{Error: "validation failed", Fields: verrs})
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, app.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, app.ErrForbidden), errors.Is(err, app.ErrConversationForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrResourceNotFound),
		errors.Is(err, app.ErrDepartmentNotFound),
		errors.Is(err, app.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrEmptyPatch),
		errors.Is(err, app.ErrEmptyQuestion),
		errors.Is(err, app.ErrQuestionTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(r.Context(), key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GertsDev/burgerverse-backend/internal/adapters/cache"
	"github.com/GertsDev/burgerverse-backend/internal/adapters/security"
	"github.com/GertsDev/burgerverse-backend/internal/application"
	"github.com/GertsDev/burgerverse-backend/internal/domain"
	"github.com/GertsDev/burgerverse-backend/internal/ports"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router http.Handler
	mailer *captureMailer
}

type serverSetup struct {
	trustProxy    bool
	registerLimit int
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newConfiguredServer(t, serverSetup{registerLimit: 100})
}

func newConfiguredServer(t *testing.T, setup serverSetup) *testServer {
	t.Helper()

	srv := miniredis.RunT(t)
	client, err := cache.Connect(context.Background(), srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	issuer, err := security.NewJWTIssuer("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)

	mailer := &captureMailer{}
	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			FailedLoginThreshold:       5,
			LockoutDuration:            15 * time.Minute,
			RegisterRateLimitThreshold: setup.registerLimit,
			RegisterRateLimitWindow:    time.Minute,
			ResetRateLimitThreshold:    100,
			ResetRateLimitWindow:       time.Minute,
		},
		Identities: newMemoryIdentities(),
		Registry:   cache.NewRedisRefreshRegistry(client),
		Lockouts:   cache.NewRedisLockoutStore(client),
		Hasher:     security.NewBcryptHasher(10, 4),
		Tokens:     issuer,
		Mailer:     mailer,
	})

	handler := NewHandler(svc, Options{
		Cookie:         CookieConfig{MaxAge: issuer.RefreshTTL()},
		AllowedOrigins: []string{"http://localhost:4000"},
		TrustProxy:     setup.trustProxy,
	})
	return &testServer{router: NewRouter(handler), mailer: mailer}
}

func (s *testServer) do(t *testing.T, method, path, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func refreshCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == defaultRefreshCookieName {
			return c
		}
	}
	return nil
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value}) }
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func TestRegisterSetsCookieAndHidesRefreshToken(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/register", `{"email":"ann@example.com","name":"Ann","password":"secret1"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["accessToken"])
	assert.Equal(t, map[string]any{"email": "ann@example.com", "name": "Ann"}, body["user"])
	assert.NotContains(t, body, "refreshToken")

	cookie := refreshCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.NotContains(t, rec.Body.String(), cookie.Value)
}

func TestRegisterErrors(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/register", `{"email":"bad","name":"","password":"1"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "password")

	rec = s.do(t, http.MethodPost, "/api/auth/register", `{"email":"ann@example.com","name":"Ann","password":"secret1"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/auth/register", `{"email":"ANN@example.com","name":"Ann","password":"secret1"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "EMAIL_TAKEN", decode(t, rec)["code"])

	rec = s.do(t, http.MethodPost, "/api/auth/register", `{not json`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func registerFrom(t *testing.T, s *testServer, i int, forwardedFor string) int {
	t.Helper()
	body := fmt.Sprintf(`{"email":"user%d@example.com","name":"User","password":"secret1"}`, i)
	return s.do(t, http.MethodPost, "/api/auth/register", body, func(req *http.Request) {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}).Code
}

func TestForwardedForIsIgnoredByDefault(t *testing.T) {
	t.Parallel()
	s := newConfiguredServer(t, serverSetup{registerLimit: 3})

	assert.Equal(t, http.StatusCreated, registerFrom(t, s, 1, "198.51.100.1"))
	assert.Equal(t, http.StatusCreated, registerFrom(t, s, 2, "198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, registerFrom(t, s, 3, "198.51.100.3"),
		"a spoofed header must not reset the per-address limit")
}

func TestForwardedForIsHonouredBehindTrustedProxy(t *testing.T) {
	t.Parallel()
	s := newConfiguredServer(t, serverSetup{registerLimit: 3, trustProxy: true})

	for i := 1; i <= 3; i++ {
		assert.Equal(t, http.StatusCreated, registerFrom(t, s, i, fmt.Sprintf("198.51.100.%d", i)))
	}
	assert.Equal(t, http.StatusCreated, registerFrom(t, s, 4, "198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, registerFrom(t, s, 5, "198.51.100.1"))
}

func TestReadIPStripsPort(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "2001:db8::1", readIP(req))

	req.RemoteAddr = "203.0.113.7"
	assert.Equal(t, "203.0.113.7", readIP(req))
}

func TestLoginFailureDoesNotLeakAccountExistence(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	s.do(t, http.MethodPost, "/api/auth/register", `{"email":"ann@example.com","name":"Ann","password":"secret1"}`, nil)

	unknown := s.do(t, http.MethodPost, "/api/auth/login", `{"email":"bob@example.com","password":"secret1"}`, nil)
	wrong := s.do(t, http.MethodPost, "/api/auth/login", `{"email":"ann@example.com","password":"wrong-pass"}`, nil)

	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	require.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.JSONEq(t, unknown.Body.String(), wrong.Body.String())

	ok := s.do(t, http.MethodPost, "/api/auth/login", `{"email":"ann@example.com","password":"secret1"}`, nil)
	require.Equal(t, http.StatusOK, ok.Code)
	assert.NotNil(t, refreshCookie(ok))
}

func TestTokenRotatesCookie(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	reg := s.do(t, http.MethodPost, "/api/auth/register", `{"email":"ann@example.com","name":"Ann","password":"secret1"}`, nil)
	first := refreshCookie(reg)
	require.NotNil(t, first)

	rec := s.do(t, http.MethodPost, "/api/auth/token", "", withCookie(first))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.NotEmpty(t, body["accessToken"])
	assert.NotContains(t, body, "user")
	second := refreshCookie(rec)
	require.NotNil(t, second)
	assert.NotEqual(t, first.Value, second.Value)

	replay := s.do(t, http.MethodPost, "/api/auth/token", "", withCookie(first))
	require.Equal(t, http.StatusUnauthorized, replay.Code)
	assert.Equal(t, "INVALID_TOKEN", decode(t, replay)["code"])

	viaBody := s.do(t, http.MethodPost, "/api/auth/token", `{"token":"`+second.Value+`"}`, nil)
	require.Equal(t, http.StatusOK, viaBody.Code)

	missing := s.do(t, http.MethodPost, "/api/auth/token", "", nil)
	require.Equal(t, http.StatusUnauthorized, missing.Code)
	assert.Equal(t, "MISSING_TOKEN", decode(t, missing)["code"])
}

func TestLogoutAlwaysSucceedsAndClearsCookie(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	reg := s.do(t, http.MethodPost, "/api/auth/register", `{"email":"ann@example.com","name":"Ann","password":"secret1"}`, nil)
	cookie := refreshCookie(reg)
	require.NotNil(t, cookie)

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/api/auth/logout", "", withCookie(cookie))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true}`, rec.Body.String())
		cleared := refreshCookie(rec)
		require.NotNil(t, cleared)
		assert.Empty(t, cleared.Value)
		assert.Less(t, cleared.MaxAge, 0)
	}

	rec := s.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	after := s.do(t, http.MethodPost, "/api/auth/token", "", withCookie(cookie))
	require.Equal(t, http.StatusUnauthorized, after.Code)
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	cases := []struct {
		name   string
		mutate func(*http.Request)
		code   string
	}{
		{name: "missing", code: "MISSING_TOKEN"},
		{name: "malformed", mutate: func(r *http.Request) { r.Header.Set("Authorization", "Token abc") }, code: "MALFORMED_HEADER"},
		{name: "invalid", mutate: withBearer("not-a-jwt"), code: "INVALID_TOKEN"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/auth/user", "", tc.mutate)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tc.code, body["code"])
			assert.Equal(t, "unauthorized", body["message"])
		})
	}
}

func TestUserProfileEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	reg := s.do(t, http.MethodPost, "/api/auth/register", `{"email":"ann@example.com","name":"Ann","password":"secret1"}`, nil)
	access := decode(t, reg)["accessToken"].(string)

	rec := s.do(t, http.MethodGet, "/api/auth/user", "", withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"user":{"email":"ann@example.com","name":"Ann"}}`, rec.Body.String())

	rec = s.do(t, http.MethodPatch, "/api/auth/user", `{"name":"Anna"}`, withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"user":{"email":"ann@example.com","name":"Anna"}}`, rec.Body.String())

	rec = s.do(t, http.MethodPatch, "/api/auth/user", `{"email":"nope"}`, withBearer(access))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionsEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	reg := s.do(t, http.MethodPost, "/api/auth/register", `{"email":"ann@example.com","name":"Ann","password":"secret1"}`, nil)
	access := decode(t, reg)["accessToken"].(string)
	s.do(t, http.MethodPost, "/api/auth/login", `{"email":"ann@example.com","password":"secret1"}`, nil)

	rec := s.do(t, http.MethodGet, "/api/auth/sessions", "", withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code)
	sessions, ok := decode(t, rec)["sessions"].([]any)
	require.True(t, ok)
	assert.Len(t, sessions, 2)

	rec = s.do(t, http.MethodDelete, "/api/auth/sessions", "", withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["revoked"])

	cookie := refreshCookie(reg)
	after := s.do(t, http.MethodPost, "/api/auth/token", "", withCookie(cookie))
	require.Equal(t, http.StatusUnauthorized, after.Code)
}

func TestPasswordResetEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	s.do(t, http.MethodPost, "/api/auth/register", `{"email":"ann@example.com","name":"Ann","password":"secret1"}`, nil)

	unknown := s.do(t, http.MethodPost, "/api/auth/password-reset", `{"email":"nobody@example.com"}`, nil)
	known := s.do(t, http.MethodPost, "/api/auth/password-reset", `{"email":"ann@example.com"}`, nil)
	require.Equal(t, http.StatusOK, unknown.Code)
	require.Equal(t, http.StatusOK, known.Code)
	assert.JSONEq(t, unknown.Body.String(), known.Body.String())

	malformed := s.do(t, http.MethodPost, "/api/auth/password-reset", `{"email":"nope"}`, nil)
	require.Equal(t, http.StatusBadRequest, malformed.Code)

	code := s.mailer.lastCode()
	require.Len(t, code, 6)

	bad := s.do(t, http.MethodPost, "/api/auth/password-reset/reset", `{"token":"000000x","password":"newsecret"}`, nil)
	require.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Equal(t, "INVALID_OR_EXPIRED_CODE", decode(t, bad)["code"])

	ok := s.do(t, http.MethodPost, "/api/auth/password-reset/reset", `{"token":"`+code+`","password":"newsecret"}`, nil)
	require.Equal(t, http.StatusOK, ok.Code, ok.Body.String())

	login := s.do(t, http.MethodPost, "/api/auth/login", `{"email":"ann@example.com","password":"newsecret"}`, nil)
	require.Equal(t, http.StatusOK, login.Code)
}

func TestHealthAndSwagger(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", "", nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/readyz", "", nil).Code)

	spec := s.do(t, http.MethodGet, "/swagger/openapi.yaml", "", nil)
	require.Equal(t, http.StatusOK, spec.Code)
	assert.Contains(t, spec.Body.String(), "/password-reset/reset")
}

func TestReadyzReportsDependencyFailure(t *testing.T) {
	t.Parallel()

	h := NewHandler(nil, Options{Ready: func(context.Context) error { return errors.New("db down") }})
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSAllowsConfiguredOriginWithCredentials(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodOptions, "/api/auth/login", "", func(r *http.Request) {
		r.Header.Set("Origin", "http://localhost:4000")
		r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	})
	assert.Equal(t, "http://localhost:4000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestMapDomainErrorHidesInternalDetail(t *testing.T) {
	t.Parallel()

	status, code, msg := mapDomainError(errors.New("pq: connection refused to 10.0.0.5"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL_ERROR", code)
	assert.NotContains(t, msg, "10.0.0.5")

	status, _, _ = mapDomainError(domain.ErrTokenExpired)
	assert.Equal(t, http.StatusUnauthorized, status)
}

var resetCodePattern = regexp.MustCompile(`code is (\d{6})`)

type captureMailer struct {
	mu       sync.Mutex
	messages []ports.MailMessage
}

func (m *captureMailer) Send(_ context.Context, msg ports.MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *captureMailer) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return ""
	}
	match := resetCodePattern.FindStringSubmatch(m.messages[len(m.messages)-1].Body)
	if len(match) != 2 {
		return ""
	}
	return match[1]
}

// memoryIdentities is an in-process identity store for router tests.
type memoryIdentities struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Identity
}

func newMemoryIdentities() *memoryIdentities {
	return &memoryIdentities{byID: map[uuid.UUID]domain.Identity{}}
}

func (m *memoryIdentities) CreateWithOutboxTx(_ context.Context, params ports.CreateIdentityParams, _ ports.OutboxEvent) (domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.byID {
		if it.Email == params.Email {
			return domain.Identity{}, domain.ErrConflict
		}
	}
	identity := domain.Identity{
		ID:           uuid.New(),
		Email:        params.Email,
		Name:         params.Name,
		PasswordHash: params.PasswordHash,
		CreatedAt:    params.RegisteredAtUTC,
		UpdatedAt:    params.RegisteredAtUTC,
	}
	m.byID[identity.ID] = identity
	return identity, nil
}

func (m *memoryIdentities) GetByEmail(_ context.Context, email string) (domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.byID {
		if it.Email == email {
			return it, nil
		}
	}
	return domain.Identity{}, domain.ErrNotFound
}

func (m *memoryIdentities) GetByID(_ context.Context, id uuid.UUID) (domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.byID[id]
	if !ok {
		return domain.Identity{}, domain.ErrNotFound
	}
	return it, nil
}

func (m *memoryIdentities) UpdateProfile(_ context.Context, id uuid.UUID, update ports.ProfileUpdate, at time.Time) (domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.byID[id]
	if !ok {
		return domain.Identity{}, domain.ErrNotFound
	}
	if update.Email != nil {
		it.Email = *update.Email
	}
	if update.Name != nil {
		it.Name = *update.Name
	}
	if update.PasswordHash != nil {
		it.PasswordHash = *update.PasswordHash
	}
	it.UpdatedAt = at
	m.byID[id] = it
	return it, nil
}

func (m *memoryIdentities) SetResetChallenge(_ context.Context, id uuid.UUID, codeHash string, expiresAt, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	it.ResetCodeHash = &codeHash
	it.ResetCodeExpiresAt = &expiresAt
	it.UpdatedAt = at
	m.byID[id] = it
	return nil
}

func (m *memoryIdentities) ConsumeResetChallenge(_ context.Context, codeHash, newPasswordHash string, at time.Time) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, it := range m.byID {
		if it.ResetCodeHash != nil && *it.ResetCodeHash == codeHash && it.ResetCodeExpiresAt.After(at) {
			it.PasswordHash = newPasswordHash
			it.ResetCodeHash, it.ResetCodeExpiresAt = nil, nil
			m.byID[id] = it
			return id, nil
		}
	}
	return uuid.Nil, domain.ErrNotFound
}

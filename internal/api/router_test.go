// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/storeguard/internal/account"
	"github.com/tomtom215/storeguard/internal/audit"
	"github.com/tomtom215/storeguard/internal/auth"
	"github.com/tomtom215/storeguard/internal/authz"
	"github.com/tomtom215/storeguard/internal/csrf"
	"github.com/tomtom215/storeguard/internal/lockout"
	"github.com/tomtom215/storeguard/internal/middleware"
	"github.com/tomtom215/storeguard/internal/password"
	"github.com/tomtom215/storeguard/internal/ratelimit"
	"github.com/tomtom215/storeguard/internal/session"
)

const (
	customerEmail  = "alice@example.com"
	customerSecret = "correct horse battery staple"
	adminUser      = "root"
	adminSecret    = "hunter2-but-longer"
	managerUser    = "mgr"
	managerSecret  = "manager-secret"
	ipA            = "203.0.113.10"
	ipB            = "198.51.100.20"
)

// flakyAccounts fails every lookup while down is set.
type flakyAccounts struct {
	*account.MemoryStore
	down bool
}

var errBackendDown = errors.New("connection refused")

func (f *flakyAccounts) Lookup(ctx context.Context, kind account.Kind, identifier string) (*account.Account, error) {
	if f.down {
		return nil, errBackendDown
	}
	return f.MemoryStore.Lookup(ctx, kind, identifier)
}

type testServer struct {
	*httptest.Server
	accounts *flakyAccounts
	auditLog *audit.Logger
	events   *audit.MemoryStore

	customerID int64
}

type serverOption func(*Dependencies, *ratelimit.Config)

func withLoginLimit(n int) serverOption {
	return func(_ *Dependencies, c *ratelimit.Config) { c.Limit = n }
}

func withChecks(checks map[string]HealthCheck) serverOption {
	return func(d *Dependencies, _ *ratelimit.Config) { d.Checks = checks }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	hasher, err := password.New(password.Params{MemoryKiB: 64, Iterations: 1, Parallelism: 1})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}

	ts := &testServer{
		accounts: &flakyAccounts{MemoryStore: account.NewMemoryStore()},
		events:   audit.NewMemoryStore(),
	}
	ts.auditLog = audit.NewLogger(ts.events, audit.DefaultConfig())
	t.Cleanup(func() { _ = ts.auditLog.Close() })

	create := func(kind account.Kind, identifier, secret, role string) int64 {
		digest, err := hasher.Hash(secret)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		id, err := ts.accounts.Create(context.Background(), &account.Account{
			Kind: kind, Identifier: identifier, CredentialHash: digest, Role: role,
		})
		if err != nil {
			t.Fatalf("create account: %v", err)
		}
		return id
	}
	ts.customerID = create(account.KindCustomer, customerEmail, customerSecret, "customer")
	create(account.KindAdmin, adminUser, adminSecret, "super_admin")
	create(account.KindAdmin, managerUser, managerSecret, "manager")

	deps := Dependencies{}
	limits := ratelimit.DefaultConfig()
	for _, opt := range opts {
		opt(&deps, &limits)
	}

	sessions := session.NewManager(session.NewMemoryStore(), ts.auditLog, session.DefaultConfig())
	svc, err := auth.NewService(auth.Deps{
		Accounts: ts.accounts,
		Hasher:   hasher,
		Limiter:  ratelimit.New(ratelimit.NewMemoryStore(), limits),
		Lockout:  lockout.New(ts.accounts, lockout.DefaultConfig()),
		Sessions: sessions,
		Audit:    ts.auditLog,
	})
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	authorizer, err := authz.New(authz.Config{})
	if err != nil {
		t.Fatalf("authorizer: %v", err)
	}

	deps.Auth = svc
	deps.Sessions = sessions
	deps.CSRF = csrf.NewManager(sessions, csrf.DefaultConfig())
	deps.Cookies = session.NewCookies(session.CookieConfig{})
	deps.Authz = authorizer
	deps.Audit = ts.auditLog
	deps.Events = ts.auditLog

	handler, err := NewHandler(deps)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	proxies, err := middleware.ParseProxies([]string{"127.0.0.1", "::1"})
	if err != nil {
		t.Fatalf("proxies: %v", err)
	}
	ts.Server = httptest.NewServer(NewRouter(handler, RouterConfig{
		RequestsPerMinute: 0,
		TrustedProxies:    proxies,
	}).SetupChi())
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) kinds(t *testing.T) []audit.EventKind {
	t.Helper()
	if err := ts.auditLog.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	return ts.events.Kinds()
}

func (ts *testServer) has(t *testing.T, kind audit.EventKind) bool {
	t.Helper()
	for _, k := range ts.kinds(t) {
		if k == kind {
			return true
		}
	}
	return false
}

// browser is one cookie-carrying client presenting from ip.
type browser struct {
	t      *testing.T
	ts     *testServer
	client *http.Client
	ip     string
	token  string
}

func (ts *testServer) browser(t *testing.T, ip string) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &browser{t: t, ts: ts, client: &http.Client{Jar: jar}, ip: ip}
}

type testResponse struct {
	Status  int
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func (b *browser) do(method, path, contentType string, body io.Reader) *testResponse {
	b.t.Helper()
	req, err := http.NewRequest(method, b.ts.URL+path, body)
	if err != nil {
		b.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Forwarded-For", b.ip)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if b.token != "" {
		req.Header.Set(csrf.HeaderName, b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		b.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := &testResponse{Status: resp.StatusCode}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			b.t.Fatalf("%s %s: body is not an API response: %s", method, path, raw)
		}
	}
	return out
}

func (b *browser) get(path string) *testResponse {
	return b.do(http.MethodGet, path, "", nil)
}

func (b *browser) postJSON(path string, v interface{}) *testResponse {
	b.t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		b.t.Fatalf("marshal: %v", err)
	}
	return b.do(http.MethodPost, path, "application/json", bytes.NewReader(body))
}

// fetchToken calls GET /csrf and remembers the token.
func (b *browser) fetchToken() string {
	b.t.Helper()
	resp := b.get("/csrf")
	if resp.Status != http.StatusOK {
		b.t.Fatalf("GET /csrf = %d", resp.Status)
	}
	var body CSRFTokenResponse
	decodeData(b.t, resp, &body)
	b.token = body.CSRFToken
	return b.token
}

func (b *browser) loginCustomer(email, secret string) *testResponse {
	b.t.Helper()
	resp := b.postJSON("/login", map[string]string{"email": email, "password": secret})
	b.adoptToken(resp)
	return resp
}

func (b *browser) loginAdmin(username, secret string) *testResponse {
	b.t.Helper()
	resp := b.postJSON("/admin/login", map[string]string{"username": username, "password": secret})
	b.adoptToken(resp)
	return resp
}

func (b *browser) adoptToken(resp *testResponse) {
	if resp.Status != http.StatusOK {
		return
	}
	var body LoginResponse
	decodeData(b.t, resp, &body)
	b.token = body.CSRFToken
}

func (b *browser) cookie(name string) string {
	u, _ := url.Parse(b.ts.URL)
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func decodeData(t *testing.T, resp *testResponse, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(resp.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", resp.Data, err)
	}
}

func expectError(t *testing.T, resp *testResponse, status int, code string) {
	t.Helper()
	if resp.Status != status {
		t.Fatalf("status = %d, want %d (error %+v)", resp.Status, status, resp.Error)
	}
	if resp.Success || resp.Error == nil || resp.Error.Code != code {
		t.Fatalf("error = %+v, want code %s", resp.Error, code)
	}
}

func TestCSRF_IssuesGuestSessionWithStableToken(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t, ipA)

	first := b.fetchToken()
	if len(first) != 64 {
		t.Fatalf("token length = %d, want 64 hex chars", len(first))
	}
	transport := b.cookie(session.CookieTransport)
	if transport == "" {
		t.Fatal("GET /csrf must start a guest session")
	}

	if second := b.fetchToken(); second != first {
		t.Errorf("token changed between reads: %s -> %s", first, second)
	}
	if b.cookie(session.CookieTransport) != transport {
		t.Error("guest session must be reused")
	}
}

func TestLogin_RequiresCSRFToken(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t, ipA)

	resp := b.loginCustomer(customerEmail, customerSecret)
	expectError(t, resp, http.StatusForbidden, ErrCodeCSRFInvalid)

	b.fetchToken()
	b.token = strings.Repeat("0", 64)
	resp = b.loginCustomer(customerEmail, customerSecret)
	expectError(t, resp, http.StatusForbidden, ErrCodeCSRFInvalid)

	if !ts.has(t, audit.EventCSRFFailed) {
		t.Error("expected csrf_failed audit event")
	}
	if ts.has(t, audit.EventCustomerLoginSuccess) {
		t.Error("forged login must not reach the auth service")
	}
}

func TestCustomerLogin_FullFlow(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t, ipA)

	guestToken := b.fetchToken()
	guestTransport := b.cookie(session.CookieTransport)

	resp := b.loginCustomer(customerEmail, customerSecret)
	if resp.Status != http.StatusOK {
		t.Fatalf("login = %d %+v", resp.Status, resp.Error)
	}
	var login LoginResponse
	decodeData(t, resp, &login)
	if login.Principal == nil || login.Principal.Identifier != customerEmail || login.Principal.RoleName != "customer" {
		t.Errorf("unexpected principal %+v", login.Principal)
	}
	if login.CSRFToken == "" || login.CSRFToken == guestToken {
		t.Error("login must bind a new CSRF token to the new transport session")
	}
	if got := b.cookie(session.CookieTransport); got == "" || got == guestTransport {
		t.Error("login must replace the transport session id")
	}
	if b.cookie(session.CookieCustomer) == "" {
		t.Error("login must set the customer cookie")
	}

	me := b.get("/me")
	if me.Status != http.StatusOK {
		t.Fatalf("GET /me = %d", me.Status)
	}
	var p auth.Principal
	decodeData(t, me, &p)
	if p.AccountID != ts.customerID {
		t.Errorf("GET /me account = %d, want %d", p.AccountID, ts.customerID)
	}

	if out := b.do(http.MethodPost, "/logout", "", nil); out.Status != http.StatusOK {
		t.Fatalf("logout = %d %+v", out.Status, out.Error)
	}
	expectError(t, b.get("/me"), http.StatusUnauthorized, ErrCodeNotAuthenticated)

	if !ts.has(t, audit.EventCustomerLoginSuccess) || !ts.has(t, audit.EventLogout) {
		t.Errorf("missing audit events: %v", ts.kinds(t))
	}
}

func TestLogin_FormEncoded(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t, ipA)
	token := b.fetchToken()
	b.token = ""

	form := url.Values{"email": {customerEmail}, "password": {customerSecret}, csrf.FormField: {token}}
	resp := b.do(http.MethodPost, "/login", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if resp.Status != http.StatusOK {
		t.Fatalf("form login = %d %+v", resp.Status, resp.Error)
	}
}

func TestLogin_InvalidAndLockedAreIndistinguishable(t *testing.T) {
	ts := newTestServer(t)

	wrong := ts.browser(t, ipA)
	wrong.fetchToken()
	wrongResp := wrong.loginCustomer(customerEmail, "not the password")
	expectError(t, wrongResp, http.StatusUnauthorized, ErrCodeUnauthorized)

	unknown := ts.browser(t, ipA)
	unknown.fetchToken()
	unknownResp := unknown.loginCustomer("nobody@example.com", "whatever")
	expectError(t, unknownResp, http.StatusUnauthorized, ErrCodeUnauthorized)

	if _, err := ts.accounts.RecordFailure(context.Background(), ts.customerID, 1, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("lock: %v", err)
	}
	locked := ts.browser(t, ipB)
	locked.fetchToken()
	lockedResp := locked.loginCustomer(customerEmail, customerSecret)
	expectError(t, lockedResp, http.StatusUnauthorized, ErrCodeUnauthorized)

	if wrongResp.Error.Message != lockedResp.Error.Message || unknownResp.Error.Message != lockedResp.Error.Message {
		t.Errorf("messages differ: %q / %q / %q", wrongResp.Error.Message, unknownResp.Error.Message, lockedResp.Error.Message)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	ts := newTestServer(t, withLoginLimit(2))
	b := ts.browser(t, ipA)
	b.fetchToken()

	for i := 0; i < 2; i++ {
		expectError(t, b.loginCustomer(customerEmail, "bad"), http.StatusUnauthorized, ErrCodeUnauthorized)
	}
	expectError(t, b.loginCustomer(customerEmail, customerSecret), http.StatusTooManyRequests, ErrCodeTooManyRequests)

	if !ts.has(t, audit.EventLoginRateLimited) {
		t.Error("expected login_rate_limited audit event")
	}
}

func TestLogin_ValidationAndBody(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t, ipA)
	b.fetchToken()

	expectError(t, b.postJSON("/login", map[string]string{"email": customerEmail}), http.StatusBadRequest, ErrCodeValidationFailed)
	expectError(t, b.do(http.MethodPost, "/login", "application/json", strings.NewReader("{")), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, b.postJSON("/login", map[string]string{"email": customerEmail, "password": "x", "remember": "1"}), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, b.do(http.MethodPost, "/login", "text/plain", strings.NewReader("hi")), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestLogin_MalformedEmailRejectedBeforeLookup(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t, ipA)
	b.fetchToken()

	for _, email := range []string{"not-an-email", "alice@", "@example.com", "alice example.com"} {
		resp := b.postJSON("/login", map[string]string{"email": email, "password": customerSecret})
		expectError(t, resp, http.StatusBadRequest, ErrCodeValidationFailed)
	}
	if ts.has(t, audit.EventCustomerLoginFailed) {
		t.Error("malformed email reached the credential check")
	}
}

func TestLogin_StorageOutageFailsClosed(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t, ipA)
	b.fetchToken()

	ts.accounts.down = true
	expectError(t, b.loginCustomer(customerEmail, customerSecret), http.StatusServiceUnavailable, ErrCodeServiceUnavailable)
	if b.cookie(session.CookieCustomer) != "" {
		t.Error("no session may be issued while the credential store is down")
	}
	if !ts.has(t, audit.EventStorageUnavailable) {
		t.Error("expected storage_unavailable audit event")
	}
}

func TestSession_IPMismatchRevokes(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t, ipA)
	b.fetchToken()
	if resp := b.loginCustomer(customerEmail, customerSecret); resp.Status != http.StatusOK {
		t.Fatalf("login = %d", resp.Status)
	}

	b.ip = ipB
	expectError(t, b.get("/me"), http.StatusUnauthorized, ErrCodeNotAuthenticated)

	b.ip = ipA
	expectError(t, b.get("/me"), http.StatusUnauthorized, ErrCodeNotAuthenticated)

	if !ts.has(t, audit.EventSessionIPMismatch) {
		t.Error("expected session_ip_mismatch audit event")
	}
}

func TestAdmin_RoleEnforcement(t *testing.T) {
	ts := newTestServer(t)

	anon := ts.browser(t, ipA)
	expectError(t, anon.get("/admin/me"), http.StatusUnauthorized, ErrCodeNotAuthenticated)

	mgr := ts.browser(t, ipA)
	mgr.fetchToken()
	if resp := mgr.loginAdmin(managerUser, managerSecret); resp.Status != http.StatusOK {
		t.Fatalf("manager login = %d %+v", resp.Status, resp.Error)
	}

	me := mgr.get("/admin/me")
	if me.Status != http.StatusOK {
		t.Fatalf("GET /admin/me = %d", me.Status)
	}
	var p auth.Principal
	decodeData(t, me, &p)
	if p.RoleName != "manager" {
		t.Errorf("role = %q, want manager", p.RoleName)
	}

	expectError(t, mgr.get("/admin/accounts/locked"), http.StatusForbidden, ErrCodeForbidden)
	expectError(t, mgr.get("/admin/security/events"), http.StatusForbidden, ErrCodeForbidden)
	if !ts.has(t, audit.EventAccessDenied) {
		t.Error("expected access_denied audit event")
	}

	// A customer session never satisfies an admin route.
	cust := ts.browser(t, ipA)
	cust.fetchToken()
	cust.loginCustomer(customerEmail, customerSecret)
	expectError(t, cust.get("/admin/me"), http.StatusUnauthorized, ErrCodeNotAuthenticated)
}

func TestAdmin_UnlockAndEvents(t *testing.T) {
	ts := newTestServer(t)

	if _, err := ts.accounts.RecordFailure(context.Background(), ts.customerID, 1, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("lock: %v", err)
	}

	root := ts.browser(t, ipA)
	root.fetchToken()
	if resp := root.loginAdmin(adminUser, adminSecret); resp.Status != http.StatusOK {
		t.Fatalf("admin login = %d %+v", resp.Status, resp.Error)
	}

	var locked []LockedAccount
	decodeData(t, root.get("/admin/accounts/locked"), &locked)
	if len(locked) != 1 || locked[0].ID != ts.customerID || locked[0].LockedUntil.IsZero() {
		t.Fatalf("locked accounts = %+v", locked)
	}

	expectError(t, root.do(http.MethodPost, "/admin/accounts/abc/unlock", "", nil), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, root.do(http.MethodPost, "/admin/accounts/9999/unlock", "", nil), http.StatusNotFound, ErrCodeNotFound)

	if resp := root.do(http.MethodPost, fmt.Sprintf("/admin/accounts/%d/unlock", ts.customerID), "", nil); resp.Status != http.StatusOK {
		t.Fatalf("unlock = %d %+v", resp.Status, resp.Error)
	}
	decodeData(t, root.get("/admin/accounts/locked"), &locked)
	if len(locked) != 0 {
		t.Errorf("expected no locked accounts after unlock, got %+v", locked)
	}

	var events EventsResponse
	decodeData(t, root.get("/admin/security/events?limit=3"), &events)
	if events.Count != 3 || len(events.Events) != 3 {
		t.Fatalf("events = %+v", events)
	}
	if events.Events[0].Event != audit.EventAdminAction {
		t.Errorf("newest event = %s, want admin_action", events.Events[0].Event)
	}

	expectError(t, root.get("/admin/security/events?limit=0"), http.StatusBadRequest, ErrCodeValidationFailed)
	expectError(t, root.get("/admin/security/events?limit=x"), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestAdmin_LogoutKeepsCustomerSlot(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t, ipA)
	b.fetchToken()
	b.loginCustomer(customerEmail, customerSecret)
	b.loginAdmin(adminUser, adminSecret)

	if resp := b.do(http.MethodPost, "/admin/logout", "", nil); resp.Status != http.StatusOK {
		t.Fatalf("admin logout = %d %+v", resp.Status, resp.Error)
	}
	if b.cookie(session.CookieAdmin) != "" {
		t.Error("admin cookie must be expired")
	}
	if resp := b.get("/me"); resp.Status != http.StatusOK {
		t.Errorf("customer slot must survive admin logout, got %d", resp.Status)
	}

	// The token used before the admin logout is retired.
	stale := b.token
	resp := b.do(http.MethodPost, "/logout", "", nil)
	expectError(t, resp, http.StatusForbidden, ErrCodeCSRFInvalid)
	if fresh := b.fetchToken(); fresh == stale {
		t.Error("GET /csrf returned the retired token")
	}
	if resp := b.do(http.MethodPost, "/logout", "", nil); resp.Status != http.StatusOK {
		t.Errorf("customer logout with fresh token = %d %+v", resp.Status, resp.Error)
	}
}

func TestHealth(t *testing.T) {
	healthy := newTestServer(t, withChecks(map[string]HealthCheck{
		"credential_store": func(context.Context) error { return nil },
	}))
	b := healthy.browser(t, ipA)
	if resp := b.get("/healthz"); resp.Status != http.StatusOK {
		t.Errorf("healthz = %d", resp.Status)
	}
	if resp := b.get("/readyz"); resp.Status != http.StatusOK {
		t.Errorf("readyz = %d", resp.Status)
	}

	degraded := newTestServer(t, withChecks(map[string]HealthCheck{
		"credential_store": func(context.Context) error { return nil },
		"rate_limit_store": func(context.Context) error { return errBackendDown },
	}))
	resp := degraded.browser(t, ipA).get("/readyz")
	expectError(t, resp, http.StatusServiceUnavailable, ErrCodeServiceUnavailable)
}

func TestRouter_UnknownRoute(t *testing.T) {
	ts := newTestServer(t)
	expectError(t, ts.browser(t, ipA).get("/wp-admin"), http.StatusNotFound, ErrCodeNotFound)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/store"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const (
	testJWTSecret = "test-secret-for-jwt-integration-tests"
	testPassword  = "supersecretpassword"
)

// testEnv holds all the shared state for integration tests.
type testEnv struct {
	server  *Server
	store   *store.Store
	authSvc *service.AuthService
}

// newTestEnv creates a fresh test environment with an in-memory store and a
// fully wired Server. Rate limiting is off so request-heavy tests don't trip
// it; it has its own dedicated test.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("store.NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	authSvc := service.NewAuthService(st, testJWTSecret, time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := DefaultConfig()
	cfg.RateLimitEnabled = false
	srv := New(cfg, st, authSvc, logger)

	return &testEnv{
		server:  srv,
		store:   st,
		authSvc: authSvc,
	}
}

// seedAdmin creates a default admin account.
func (e *testEnv) seedAdmin(t *testing.T) *model.Admin {
	t.Helper()
	hash, err := service.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	admin := &model.Admin{Username: "root", PasswordHash: hash}
	if err := e.store.CreateAdmin(context.Background(), admin); err != nil {
		t.Fatalf("seedAdmin: %v", err)
	}
	return admin
}

// seedReseller creates a reseller account with the given balance.
func (e *testEnv) seedReseller(t *testing.T, username string, credits int64) *model.Reseller {
	t.Helper()
	hash, err := service.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	res := &model.Reseller{Username: username, PasswordHash: hash, Credits: credits}
	if err := e.store.CreateReseller(context.Background(), res); err != nil {
		t.Fatalf("seedReseller: %v", err)
	}
	return res
}

// seedInjector registers an injector.
func (e *testEnv) seedInjector(t *testing.T, name string) *model.Injector {
	t.Helper()
	inj := &model.Injector{Name: name}
	if err := e.store.CreateInjector(context.Background(), inj); err != nil {
		t.Fatalf("seedInjector: %v", err)
	}
	return inj
}

// adminToken logs in as the default admin and returns the JWT token string.
func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	return e.login(t, "/api/v1/system/admin/session", "root")
}

// resellerToken logs in as the named reseller and returns the token.
func (e *testEnv) resellerToken(t *testing.T, username string) string {
	t.Helper()
	return e.login(t, "/api/v1/system/reseller/session", username)
}

func (e *testEnv) login(t *testing.T, path, username string) string {
	t.Helper()
	body := jsonBody(t, map[string]string{
		"username": username,
		"password": testPassword,
	})
	rr := e.do(t, "POST", path, body, nil)
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		Token string `json:"session_token"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Token == "" {
		t.Fatal("login: got empty token")
	}
	return resp.Token
}

// do executes an HTTP request against the test server and returns the recorder.
// headers is an optional map of header key-value pairs.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

// doAuth executes an authenticated HTTP request using a JWT.
func (e *testEnv) doAuth(t *testing.T, method, path string, body io.Reader, token string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// verify posts a validation request and returns the decoded verdict.
func (e *testEnv) verify(t *testing.T, path string, payload map[string]interface{}) (int, model.Verdict) {
	t.Helper()
	rr := e.do(t, "POST", path, jsonBody(t, payload), nil)
	var verdict model.Verdict
	decodeJSON(t, rr, &verdict)
	return rr.Code, verdict
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("jsonBody: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Health and spec endpoints
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/healthz", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Status != "ok" || resp.Checks["storage"] != "ok" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestOpenAPISpec(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/openapi.json", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var spec struct {
		OpenAPI string                 `json:"openapi"`
		Paths   map[string]interface{} `json:"paths"`
	}
	decodeJSON(t, rr, &spec)
	if spec.OpenAPI != "3.1.0" {
		t.Errorf("openapi = %q", spec.OpenAPI)
	}
	if _, ok := spec.Paths["/api/verifyLogin"]; !ok {
		t.Error("spec missing /api/verifyLogin")
	}
}

// ---------------------------------------------------------------------------
// Session tests
// ---------------------------------------------------------------------------

func TestAdminLogin(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t)

	token := env.adminToken(t)
	if token == "" {
		t.Fatal("empty token")
	}

	// Wrong password.
	rr := env.do(t, "POST", "/api/v1/system/admin/session",
		jsonBody(t, map[string]string{"username": "root", "password": "wrong"}), nil)
	assertStatus(t, rr, http.StatusUnauthorized)

	// Missing fields.
	rr = env.do(t, "POST", "/api/v1/system/admin/session",
		jsonBody(t, map[string]string{"username": "root"}), nil)
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestResellerLogin(t *testing.T) {
	env := newTestEnv(t)
	env.seedReseller(t, "shop", 10)

	token := env.resellerToken(t, "shop")

	// The reseller token opens the reseller surface.
	rr := env.doAuth(t, "GET", "/api/v1/reseller/profile", nil, token)
	assertStatus(t, rr, http.StatusOK)

	var res model.Reseller
	decodeJSON(t, rr, &res)
	if res.Username != "shop" || res.Credits != 10 {
		t.Errorf("profile = %+v", res)
	}
}

func TestSystemRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t)
	env.seedReseller(t, "shop", 0)

	// No token.
	rr := env.do(t, "GET", "/api/v1/system/key", nil, nil)
	assertStatus(t, rr, http.StatusUnauthorized)

	// Reseller token on the admin surface.
	resellerTok := env.resellerToken(t, "shop")
	rr = env.doAuth(t, "GET", "/api/v1/system/key", nil, resellerTok)
	assertStatus(t, rr, http.StatusForbidden)

	// Admin token on the reseller surface.
	adminTok := env.adminToken(t)
	rr = env.doAuth(t, "GET", "/api/v1/reseller/profile", nil, adminTok)
	assertStatus(t, rr, http.StatusForbidden)
}

// ---------------------------------------------------------------------------
// Public validation endpoint tests
// ---------------------------------------------------------------------------

func TestVerifyLoginEndpoint(t *testing.T) {
	env := newTestEnv(t)
	key := &model.LoginKey{Key: "GAME-KEY-1"}
	if err := env.store.CreateKey(context.Background(), key); err != nil {
		t.Fatal(err)
	}

	code, verdict := env.verify(t, "/api/verifyLogin", map[string]interface{}{
		"key": "GAME-KEY-1", "deviceId": "hwid-1",
	})
	if code != http.StatusOK || !verdict.Valid || verdict.Message != "Login successful" {
		t.Errorf("code=%d verdict=%+v", code, verdict)
	}

	// Unknown key still returns 200 with a rejection verdict.
	code, verdict = env.verify(t, "/api/verifyLogin", map[string]interface{}{
		"key": "NOPE", "deviceId": "hwid-1",
	})
	if code != http.StatusOK || verdict.Valid || verdict.Message != "Key not found" {
		t.Errorf("code=%d verdict=%+v", code, verdict)
	}
}

func TestVerifyLoginMissingFields(t *testing.T) {
	env := newTestEnv(t)

	for _, payload := range []map[string]interface{}{
		{},
		{"key": "K"},
		{"deviceId": "D"},
	} {
		code, verdict := env.verify(t, "/api/verifyLogin", payload)
		if code != http.StatusBadRequest || verdict.Message != "Missing required fields" {
			t.Errorf("payload %v: code=%d verdict=%+v", payload, code, verdict)
		}
	}
}

func TestVerifyLoginWithInjectorEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	injA := env.seedInjector(t, "Alpha Loader")
	injB := env.seedInjector(t, "Beta Loader")
	key := &model.LoginKey{Key: "SCOPED", InjectorID: &injA.ID}
	if err := env.store.CreateKey(ctx, key); err != nil {
		t.Fatal(err)
	}

	// Wrong injector names the key's actual one.
	code, verdict := env.verify(t, "/api/verifyLoginWithInjector", map[string]interface{}{
		"key": "SCOPED", "deviceId": "hwid-1", "injectorId": injB.ID,
	})
	if code != http.StatusOK || verdict.Valid || verdict.Message != "This key is not valid for Alpha Loader" {
		t.Errorf("code=%d verdict=%+v", code, verdict)
	}

	// Matching injector, ID as a JSON string.
	code, verdict = env.verify(t, "/api/verifyLoginWithInjector", map[string]interface{}{
		"key": "SCOPED", "deviceId": "hwid-1", "injectorId": "1",
	})
	if code != http.StatusOK || !verdict.Valid {
		t.Errorf("code=%d verdict=%+v", code, verdict)
	}

	// Injector ID via query parameter, as redirect URLs send it.
	rr := env.do(t, "POST", "/api/verifyLoginWithInjector?injectorId=1",
		jsonBody(t, map[string]string{"key": "SCOPED", "deviceId": "hwid-2"}), nil)
	assertStatus(t, rr, http.StatusOK)

	// Non-numeric injector ID.
	code, verdict = env.verify(t, "/api/verifyLoginWithInjector", map[string]interface{}{
		"key": "SCOPED", "deviceId": "hwid-1", "injectorId": "abc",
	})
	if code != http.StatusBadRequest || verdict.Message != "Invalid injectorId" {
		t.Errorf("code=%d verdict=%+v", code, verdict)
	}

	// Missing injector ID entirely.
	code, verdict = env.verify(t, "/api/verifyLoginWithInjector", map[string]interface{}{
		"key": "SCOPED", "deviceId": "hwid-1",
	})
	if code != http.StatusBadRequest || verdict.Message != "Missing required fields" {
		t.Errorf("code=%d verdict=%+v", code, verdict)
	}
}

func TestVerifyRejectionLadderOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	max := int64(1)

	expired := &model.LoginKey{Key: "EXPIRED", ExpiresAt: &past}
	limited := &model.LoginKey{Key: "LIMITED", MaxDevices: &max}
	blocked := &model.LoginKey{Key: "BLOCKED"}
	for _, k := range []*model.LoginKey{expired, limited, blocked} {
		if err := env.store.CreateKey(ctx, k); err != nil {
			t.Fatal(err)
		}
	}
	if err := env.store.SetKeyBlocked(ctx, blocked.ID, true); err != nil {
		t.Fatal(err)
	}

	_, verdict := env.verify(t, "/api/verifyLogin", map[string]interface{}{
		"key": "EXPIRED", "deviceId": "hwid-1",
	})
	if verdict.Message != "Key has expired" {
		t.Errorf("expired: %+v", verdict)
	}

	_, verdict = env.verify(t, "/api/verifyLogin", map[string]interface{}{
		"key": "BLOCKED", "deviceId": "hwid-1",
	})
	if verdict.Message != "Key is blocked" {
		t.Errorf("blocked: %+v", verdict)
	}

	// Fill the single slot, then try a second device.
	_, verdict = env.verify(t, "/api/verifyLogin", map[string]interface{}{
		"key": "LIMITED", "deviceId": "hwid-1",
	})
	if !verdict.Valid {
		t.Fatalf("first device rejected: %+v", verdict)
	}
	_, verdict = env.verify(t, "/api/verifyLogin", map[string]interface{}{
		"key": "LIMITED", "deviceId": "hwid-2",
	})
	if verdict.Message != "Device limit reached" {
		t.Errorf("limit: %+v", verdict)
	}
}

func TestVerifyRateLimit(t *testing.T) {
	st, err := store.NewStore("")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	cfg := DefaultConfig()
	cfg.RateLimitEnabled = true
	cfg.RequestsPerMinute = 3
	srv := New(cfg, st, service.NewAuthService(st, testJWTSecret, time.Hour),
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	var last int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("POST", "/api/verifyLogin",
			bytes.NewBufferString(`{"key":"K","deviceId":"D"}`))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		srv.ServeHTTP(rr, req)
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("fifth request status = %d, want 429", last)
	}
}

// ---------------------------------------------------------------------------
// Key management tests
// ---------------------------------------------------------------------------

func TestKeyManagement(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t)
	token := env.adminToken(t)

	// Create with an explicit key string.
	rr := env.doAuth(t, "POST", "/api/v1/system/key",
		jsonBody(t, map[string]interface{}{"key": "MANUAL-1"}), token)
	assertStatus(t, rr, http.StatusCreated)
	var created model.LoginKey
	decodeJSON(t, rr, &created)
	if created.ID == 0 || created.Key != "MANUAL-1" {
		t.Errorf("created = %+v", created)
	}

	// Duplicate key string conflicts.
	rr = env.doAuth(t, "POST", "/api/v1/system/key",
		jsonBody(t, map[string]interface{}{"key": "MANUAL-1"}), token)
	assertStatus(t, rr, http.StatusConflict)

	// Server-side generation.
	rr = env.doAuth(t, "POST", "/api/v1/system/key",
		jsonBody(t, map[string]interface{}{"generate": true}), token)
	assertStatus(t, rr, http.StatusCreated)
	var generated model.LoginKey
	decodeJSON(t, rr, &generated)
	if len(generated.Key) != 19 {
		t.Errorf("generated key %q", generated.Key)
	}

	// Existence check.
	rr = env.doAuth(t, "GET", "/api/v1/system/key/exists?key=MANUAL-1", nil, token)
	assertStatus(t, rr, http.StatusOK)
	var exists struct {
		Exists bool `json:"exists"`
	}
	decodeJSON(t, rr, &exists)
	if !exists.Exists {
		t.Error("exists = false for a live key")
	}

	// List.
	rr = env.doAuth(t, "GET", "/api/v1/system/key", nil, token)
	assertStatus(t, rr, http.StatusOK)
	var list struct {
		Resource []model.LoginKey    `json:"resource"`
		Meta     *model.ResponseMeta `json:"meta"`
	}
	decodeJSON(t, rr, &list)
	if list.Meta.Count != 2 {
		t.Errorf("count = %d, want 2", list.Meta.Count)
	}

	// Block, then verify the rejection, then unblock.
	rr = env.doAuth(t, "POST", "/api/v1/system/key/1/block", nil, token)
	assertStatus(t, rr, http.StatusOK)
	_, verdict := env.verify(t, "/api/verifyLogin", map[string]interface{}{
		"key": "MANUAL-1", "deviceId": "hwid-1",
	})
	if verdict.Message != "Key is blocked" {
		t.Errorf("verdict = %+v", verdict)
	}
	rr = env.doAuth(t, "POST", "/api/v1/system/key/1/unblock", nil, token)
	assertStatus(t, rr, http.StatusOK)

	// Device ledger after a validation.
	_, verdict = env.verify(t, "/api/verifyLogin", map[string]interface{}{
		"key": "MANUAL-1", "deviceId": "hwid-1",
	})
	if !verdict.Valid {
		t.Fatalf("verdict = %+v", verdict)
	}
	rr = env.doAuth(t, "GET", "/api/v1/system/key/1/device", nil, token)
	assertStatus(t, rr, http.StatusOK)
	var devices struct {
		Resource []model.DeviceBinding `json:"resource"`
	}
	decodeJSON(t, rr, &devices)
	if len(devices.Resource) != 1 || devices.Resource[0].DeviceID != "hwid-1" {
		t.Errorf("devices = %+v", devices.Resource)
	}

	// Delete frees the key string for reuse.
	rr = env.doAuth(t, "DELETE", "/api/v1/system/key/1", nil, token)
	assertStatus(t, rr, http.StatusOK)
	rr = env.doAuth(t, "GET", "/api/v1/system/key/1", nil, token)
	assertStatus(t, rr, http.StatusNotFound)
	rr = env.doAuth(t, "POST", "/api/v1/system/key",
		jsonBody(t, map[string]interface{}{"key": "MANUAL-1"}), token)
	assertStatus(t, rr, http.StatusCreated)
}

func TestKeyJSONExposesBothDeviceCountFields(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t)
	token := env.adminToken(t)

	rr := env.doAuth(t, "POST", "/api/v1/system/key",
		jsonBody(t, map[string]interface{}{"key": "K1"}), token)
	assertStatus(t, rr, http.StatusCreated)

	var raw map[string]interface{}
	decodeJSON(t, rr, &raw)
	if _, ok := raw["deviceCount"]; !ok {
		t.Error("deviceCount missing")
	}
	if _, ok := raw["devicesUsed"]; !ok {
		t.Error("devicesUsed missing")
	}
}

// ---------------------------------------------------------------------------
// Injector management tests
// ---------------------------------------------------------------------------

func TestInjectorManagement(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t)
	token := env.adminToken(t)

	rr := env.doAuth(t, "POST", "/api/v1/system/injector",
		jsonBody(t, map[string]string{"name": "Alpha Loader"}), token)
	assertStatus(t, rr, http.StatusCreated)
	var inj model.Injector
	decodeJSON(t, rr, &inj)
	if inj.ID == 0 || inj.Name != "Alpha Loader" || !inj.Status {
		t.Errorf("injector = %+v", inj)
	}

	// Nameless creation is rejected.
	rr = env.doAuth(t, "POST", "/api/v1/system/injector",
		jsonBody(t, map[string]string{}), token)
	assertStatus(t, rr, http.StatusBadRequest)

	// Redirect URL set and clear.
	rr = env.doAuth(t, "PUT", "/api/v1/system/injector/1/redirect",
		jsonBody(t, map[string]string{"redirectUrl": "https://dl.example.com"}), token)
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &inj)
	if inj.RedirectURL == nil || *inj.RedirectURL != "https://dl.example.com" {
		t.Errorf("redirect = %v", inj.RedirectURL)
	}
	rr = env.doAuth(t, "PUT", "/api/v1/system/injector/1/redirect",
		jsonBody(t, map[string]interface{}{"redirectUrl": nil}), token)
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &inj)
	if inj.RedirectURL != nil {
		t.Errorf("redirect not cleared: %v", inj.RedirectURL)
	}

	// Login URL embeds the injector ID.
	rr = env.doAuth(t, "GET", "/api/v1/system/injector/1/login-url", nil, token)
	assertStatus(t, rr, http.StatusOK)
	var urlResp struct {
		URL string `json:"url"`
	}
	decodeJSON(t, rr, &urlResp)
	want := "http://localhost:8080/api/verifyLoginWithInjector?injectorId=1"
	if urlResp.URL != want {
		t.Errorf("url = %q, want %q", urlResp.URL, want)
	}

	// Key counts per injector.
	injID := inj.ID
	for _, ks := range []string{"K1", "K2"} {
		key := &model.LoginKey{Key: ks, InjectorID: &injID}
		if err := env.store.CreateKey(context.Background(), key); err != nil {
			t.Fatal(err)
		}
	}
	rr = env.doAuth(t, "GET", "/api/v1/system/injector/key-count", nil, token)
	assertStatus(t, rr, http.StatusOK)
	var counts struct {
		Resource []model.InjectorKeyCount `json:"resource"`
	}
	decodeJSON(t, rr, &counts)
	if len(counts.Resource) != 1 || counts.Resource[0].Count != 2 {
		t.Errorf("counts = %+v", counts.Resource)
	}

	// Deleting the injector leaves its keys unscoped and valid.
	rr = env.doAuth(t, "DELETE", "/api/v1/system/injector/1", nil, token)
	assertStatus(t, rr, http.StatusOK)
	_, verdict := env.verify(t, "/api/verifyLogin", map[string]interface{}{
		"key": "K1", "deviceId": "hwid-1",
	})
	if !verdict.Valid {
		t.Errorf("orphaned key rejected: %+v", verdict)
	}
}

// ---------------------------------------------------------------------------
// Reseller management tests
// ---------------------------------------------------------------------------

func TestResellerManagement(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t)
	token := env.adminToken(t)

	rr := env.doAuth(t, "POST", "/api/v1/system/reseller",
		jsonBody(t, map[string]interface{}{
			"username": "shop", "password": testPassword, "credits": 5,
		}), token)
	assertStatus(t, rr, http.StatusCreated)
	var res model.Reseller
	decodeJSON(t, rr, &res)
	if res.Credits != 5 {
		t.Errorf("credits = %d", res.Credits)
	}

	// Password hash never leaves the server.
	var raw map[string]interface{}
	rr = env.doAuth(t, "GET", "/api/v1/system/reseller/1", nil, token)
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &raw)
	for field := range raw {
		if field == "password" || field == "passwordHash" || field == "password_hash" {
			t.Errorf("response leaks %q", field)
		}
	}

	// Duplicate username conflicts.
	rr = env.doAuth(t, "POST", "/api/v1/system/reseller",
		jsonBody(t, map[string]interface{}{"username": "shop", "password": testPassword}), token)
	assertStatus(t, rr, http.StatusConflict)

	// Add, subtract, and overdraw credits.
	rr = env.doAuth(t, "POST", "/api/v1/system/reseller/1/credits",
		jsonBody(t, map[string]int64{"amount": 10}), token)
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &res)
	if res.Credits != 15 {
		t.Errorf("credits = %d, want 15", res.Credits)
	}

	rr = env.doAuth(t, "POST", "/api/v1/system/reseller/1/credits",
		jsonBody(t, map[string]int64{"amount": -15}), token)
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &res)
	if res.Credits != 0 {
		t.Errorf("credits = %d, want 0", res.Credits)
	}

	rr = env.doAuth(t, "POST", "/api/v1/system/reseller/1/credits",
		jsonBody(t, map[string]int64{"amount": -1}), token)
	assertStatus(t, rr, http.StatusPaymentRequired)
}

func TestResellerSelfService(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t)
	env.seedReseller(t, "shop", 2)
	env.seedReseller(t, "rival", 2)
	inj := env.seedInjector(t, "Alpha Loader")
	token := env.resellerToken(t, "shop")

	// Credit cost is visible before buying.
	rr := env.doAuth(t, "GET", "/api/v1/reseller/credit-cost", nil, token)
	assertStatus(t, rr, http.StatusOK)
	var cost struct {
		CreditCost int64 `json:"creditCost"`
	}
	decodeJSON(t, rr, &cost)
	if cost.CreditCost != 1 {
		t.Errorf("creditCost = %d, want 1", cost.CreditCost)
	}

	// Creating a key debits the balance.
	rr = env.doAuth(t, "POST", "/api/v1/reseller/key",
		jsonBody(t, map[string]interface{}{"generate": true, "injector": inj.ID}), token)
	assertStatus(t, rr, http.StatusCreated)
	var key model.LoginKey
	decodeJSON(t, rr, &key)
	if key.ResellerID == nil {
		t.Fatal("key not attributed to reseller")
	}

	rr = env.doAuth(t, "GET", "/api/v1/reseller/profile", nil, token)
	var profile model.Reseller
	decodeJSON(t, rr, &profile)
	if profile.Credits != 1 {
		t.Errorf("credits = %d, want 1", profile.Credits)
	}

	// Unscoped keys are an admin privilege.
	rr = env.doAuth(t, "POST", "/api/v1/reseller/key",
		jsonBody(t, map[string]interface{}{"generate": true}), token)
	assertStatus(t, rr, http.StatusBadRequest)

	// Own keys list.
	rr = env.doAuth(t, "GET", "/api/v1/reseller/key", nil, token)
	assertStatus(t, rr, http.StatusOK)
	var list struct {
		Meta *model.ResponseMeta `json:"meta"`
	}
	decodeJSON(t, rr, &list)
	if list.Meta.Count != 1 {
		t.Errorf("count = %d, want 1", list.Meta.Count)
	}

	// A rival reseller cannot delete the key; the owner can, with no refund.
	rivalToken := env.resellerToken(t, "rival")
	rr = env.doAuth(t, "DELETE", "/api/v1/reseller/key/1", nil, rivalToken)
	assertStatus(t, rr, http.StatusForbidden)
	rr = env.doAuth(t, "DELETE", "/api/v1/reseller/key/1", nil, token)
	assertStatus(t, rr, http.StatusOK)
	rr = env.doAuth(t, "GET", "/api/v1/reseller/profile", nil, token)
	decodeJSON(t, rr, &profile)
	if profile.Credits != 1 {
		t.Errorf("credits = %d after delete, want 1 (no refund)", profile.Credits)
	}

	// An empty balance blocks creation.
	rr = env.doAuth(t, "POST", "/api/v1/reseller/key",
		jsonBody(t, map[string]interface{}{"generate": true, "injector": inj.ID}), token)
	assertStatus(t, rr, http.StatusCreated)
	rr = env.doAuth(t, "POST", "/api/v1/reseller/key",
		jsonBody(t, map[string]interface{}{"generate": true, "injector": inj.ID}), token)
	assertStatus(t, rr, http.StatusPaymentRequired)
}

// ---------------------------------------------------------------------------
// Settings, credit cost, stats, account
// ---------------------------------------------------------------------------

func TestPanelSettings(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t)
	token := env.adminToken(t)

	rr := env.doAuth(t, "GET", "/api/v1/system/settings", nil, token)
	assertStatus(t, rr, http.StatusOK)
	var settings model.PanelSettings
	decodeJSON(t, rr, &settings)
	if settings.PanelName == "" || settings.ThemePreset == "" {
		t.Errorf("defaults missing: %+v", settings)
	}

	rr = env.doAuth(t, "PUT", "/api/v1/system/settings",
		jsonBody(t, model.PanelSettings{PanelName: "My Panel", ThemePreset: "light"}), token)
	assertStatus(t, rr, http.StatusOK)

	rr = env.doAuth(t, "GET", "/api/v1/system/settings", nil, token)
	decodeJSON(t, rr, &settings)
	if settings.PanelName != "My Panel" || settings.ThemePreset != "light" {
		t.Errorf("settings = %+v", settings)
	}
}

func TestCreditCostEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t)
	token := env.adminToken(t)

	rr := env.doAuth(t, "PUT", "/api/v1/system/credit-cost",
		jsonBody(t, map[string]int64{"creditCost": 3}), token)
	assertStatus(t, rr, http.StatusOK)

	rr = env.doAuth(t, "GET", "/api/v1/system/credit-cost", nil, token)
	assertStatus(t, rr, http.StatusOK)
	var cost struct {
		CreditCost int64 `json:"creditCost"`
	}
	decodeJSON(t, rr, &cost)
	if cost.CreditCost != 3 {
		t.Errorf("creditCost = %d, want 3", cost.CreditCost)
	}

	// Zero or negative cost is rejected.
	rr = env.doAuth(t, "PUT", "/api/v1/system/credit-cost",
		jsonBody(t, map[string]int64{"creditCost": 0}), token)
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t)
	token := env.adminToken(t)

	key := &model.LoginKey{Key: "K1"}
	if err := env.store.CreateKey(context.Background(), key); err != nil {
		t.Fatal(err)
	}
	env.verify(t, "/api/verifyLogin", map[string]interface{}{"key": "K1", "deviceId": "d1"})
	env.verify(t, "/api/verifyLogin", map[string]interface{}{"key": "NOPE", "deviceId": "d1"})

	rr := env.doAuth(t, "GET", "/api/v1/system/stats", nil, token)
	assertStatus(t, rr, http.StatusOK)
	var snap struct {
		TotalKeys int   `json:"totalKeys"`
		Accepted  int64 `json:"validationsAccepted"`
		Rejected  int64 `json:"validationsRejected"`
	}
	decodeJSON(t, rr, &snap)
	if snap.TotalKeys != 1 || snap.Accepted != 1 || snap.Rejected != 1 {
		t.Errorf("snap = %+v", snap)
	}
}

func TestAdminAccountUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t)
	token := env.adminToken(t)

	rr := env.doAuth(t, "PUT", "/api/v1/system/admin/account",
		jsonBody(t, map[string]string{"username": "root2"}), token)
	assertStatus(t, rr, http.StatusOK)

	// Old username no longer logs in; the new one does.
	rr = env.do(t, "POST", "/api/v1/system/admin/session",
		jsonBody(t, map[string]string{"username": "root", "password": testPassword}), nil)
	assertStatus(t, rr, http.StatusUnauthorized)
	env.login(t, "/api/v1/system/admin/session", "root2")
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/eyedx/eyedx/internal/config"
	"github.com/eyedx/eyedx/internal/platform/auth"
)

const classifierBody = `{"probabilities":[0.1,0.7,0.2],"labels":["Bacterial","Fungal","Others"],"predicted_label":"Fungal"}`

func newClassifier(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(classifierBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, classifierURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Port:           "0",
		Env:            "development",
		DataDir:        t.TempDir(),
		StoreDriver:    config.StoreDriverFile,
		ClassifierURL:  classifierURL,
		CORSOrigins:    []string{"http://localhost:19006"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		MaxImageBytes:  1 << 20,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *echo.Echo {
	t.Helper()
	e, cleanup, err := buildServer(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildServer: %v", err)
	}
	t.Cleanup(cleanup)
	return e
}

func do(e *echo.Echo, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const intakeBody = `{"age":"45","sex":"Female","ethnicity":"Japanese","chiefComplaints":["pain","redness"],"history":["contact lens"],"image":null}`

func TestServer_RecordLifecycle(t *testing.T) {
	e := newTestServer(t, testConfig(t, newClassifier(t).URL))

	rec := do(e, http.MethodPost, "/api/v1/diagnoses", intakeBody, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("diagnose: %d %s", rec.Code, rec.Body.String())
	}
	var diag struct {
		RawText  string `json:"raw_text"`
		Fallback bool   `json:"fallback"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &diag)
	if diag.RawText != classifierBody || diag.Fallback {
		t.Fatalf("unexpected diagnosis %s", rec.Body.String())
	}

	body := `{"patient":` + intakeBody + `,"raw_text":` + strconv.Quote(diag.RawText) + `}`
	rec = do(e, http.MethodPost, "/api/v1/records", body, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	if created.ID == "" {
		t.Fatal("expected record id")
	}

	rec = do(e, http.MethodGet, "/api/v1/records", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), created.ID) {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodPut, "/api/v1/records/"+created.ID+"/definitive-diagnosis", `{"value":"Fungal"}`, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"confirmed"`) {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodDelete, "/api/v1/records/"+created.ID, "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(e, http.MethodGet, "/api/v1/records/"+created.ID, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	e := newTestServer(t, testConfig(t, newClassifier(t).URL))

	rec := do(e, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"store":"file"`) {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}

	do(e, http.MethodPost, "/api/v1/diagnoses", intakeBody, nil)

	rec = do(e, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	for _, want := range []string{`eyedx_classifier_requests_total{outcome="success"} 1`, "eyedx_http_requests_total"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestServer_ClassifierDownFallsBack(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	e := newTestServer(t, testConfig(t, down.URL))

	rec := do(e, http.MethodPost, "/api/v1/diagnoses", intakeBody, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with fallback, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"fallback":true`) || !strings.Contains(rec.Body.String(), `"predicted_label":"Acanthamoeba"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func signToken(t *testing.T, key string, roles ...string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "clinician-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestServer_JWTRoles(t *testing.T) {
	cfg := testConfig(t, newClassifier(t).URL)
	cfg.Env = "production"
	cfg.AuthSigningKey = "test-signing-key"
	e := newTestServer(t, cfg)

	if rec := do(e, http.MethodGet, "/api/v1/records", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("expected health to stay public, got %d", rec.Code)
	}

	viewer := http.Header{"Authorization": {"Bearer " + signToken(t, cfg.AuthSigningKey, auth.RoleViewer)}}
	if rec := do(e, http.MethodGet, "/api/v1/records", "", viewer); rec.Code != http.StatusOK {
		t.Errorf("expected viewer to list, got %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/api/v1/diagnoses", intakeBody, viewer); rec.Code != http.StatusForbidden {
		t.Errorf("expected viewer to be refused a diagnosis, got %d", rec.Code)
	}

	clinician := http.Header{"Authorization": {"Bearer " + signToken(t, cfg.AuthSigningKey, auth.RoleClinician)}}
	if rec := do(e, http.MethodPost, "/api/v1/diagnoses", intakeBody, clinician); rec.Code != http.StatusOK {
		t.Errorf("expected clinician to diagnose, got %d", rec.Code)
	}

	forged := http.Header{"Authorization": {"Bearer " + signToken(t, "other-key", auth.RoleAdmin)}}
	if rec := do(e, http.MethodGet, "/api/v1/records", "", forged); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a token signed with another key, got %d", rec.Code)
	}
}

func TestServer_ProfileAndLegacyIntake(t *testing.T) {
	e := newTestServer(t, testConfig(t, newClassifier(t).URL))

	rec := do(e, http.MethodGet, "/api/v1/profile", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"occupation":"Ophthalmologist"`) {
		t.Fatalf("profile defaults: %d %s", rec.Code, rec.Body.String())
	}

	if rec := do(e, http.MethodGet, "/api/v1/intake/legacy", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 before any legacy save, got %d", rec.Code)
	}
	if rec := do(e, http.MethodPut, "/api/v1/intake/legacy", intakeBody, nil); rec.Code != http.StatusOK {
		t.Fatalf("legacy save: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(e, http.MethodGet, "/api/v1/intake/legacy", "", nil); rec.Code != http.StatusOK {
		t.Errorf("expected legacy intake, got %d", rec.Code)
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLI_DiagnoseListDelete(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("STORE_DRIVER", "file")
	t.Setenv("AUTH_SIGNING_KEY", "")
	t.Setenv("CLASSIFIER_URL", newClassifier(t).URL)

	out, err := runCLI(t, "diagnose", "--age", "30", "--complaint", "pain", "--history", "trauma", "--save")
	if err != nil {
		t.Fatalf("diagnose: %v\n%s", err, out)
	}
	var saved struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(out), &saved); err != nil || saved.ID == "" {
		t.Fatalf("expected saved record JSON, got %q (%v)", out, err)
	}

	out, err = runCLI(t, "records", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, saved.ID) || !strings.Contains(out, "Fungal") {
		t.Errorf("list output missing record: %s", out)
	}

	if _, err := runCLI(t, "records", "delete"); err == nil {
		t.Error("expected delete without a selector to fail")
	}
	if _, err := runCLI(t, "records", "delete", "--id", saved.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := runCLI(t, "records", "show", saved.ID); err == nil {
		t.Error("expected show to fail after delete")
	}
}

func TestCLI_DiagnoseInvalidIntake(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("CLASSIFIER_URL", "http://127.0.0.1:1/predict")

	if _, err := runCLI(t, "diagnose", "--age", "old"); err == nil {
		t.Error("expected invalid age to be rejected")
	}
}

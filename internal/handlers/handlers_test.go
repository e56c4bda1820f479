package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/example/eco-collect/internal/auth"
	"github.com/example/eco-collect/internal/classifier"
	"github.com/example/eco-collect/internal/repository"
	"github.com/example/eco-collect/internal/security"
	"github.com/example/eco-collect/internal/storage"
	"github.com/example/eco-collect/internal/usecase"
)

const (
	testMaxUploadSize = 4 << 10
	testCookieName    = "eco_session"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)

type stubClassifier struct {
	result *classifier.Result
	calls  int
}

func (s *stubClassifier) Classify(context.Context, []byte) (*classifier.Result, error) {
	s.calls++
	if s.result == nil {
		return nil, fmt.Errorf("model offline")
	}
	r := *s.result
	return &r, nil
}

type testServer struct {
	router *gin.Engine
	users  *repository.UserRepository
	model  *stubClassifier
}

func newTestServer(t *testing.T, opts ...func(*Options)) *testServer {
	t.Helper()
	store := auth.NewMemorySessionStore()
	t.Cleanup(func() { _ = store.Close() })
	return newTestServerWithStore(t, store, opts...)
}

func newTestServerWithStore(t *testing.T, store auth.SessionStore, opts ...func(*Options)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx := context.Background()
	db, err := repository.Open(ctx, repository.DriverSQLite, ":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := repository.AutoMigrate(ctx, db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	logger := zap.NewNop()
	users := repository.NewUserRepository(db, logger)
	uploads := repository.NewUploadRepository(db, logger)
	centers := repository.NewCenterRepository(db, logger)

	fs := afero.NewMemMapFs()
	avatars, err := storage.NewLocalStore(fs, "avatars", "")
	if err != nil {
		t.Fatalf("failed to create avatar store: %v", err)
	}

	model := &stubClassifier{result: &classifier.Result{Category: "plastic", Confidence: 0.82}}
	classification := usecase.NewClassificationService(model, nil, time.Hour, logger)
	uploadUC, err := usecase.NewUploadUseCase(uploads, centers, classification, fs, "work", logger)
	if err != nil {
		t.Fatalf("failed to create upload use case: %v", err)
	}

	hasher := &security.ArgonHasher{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}
	options := Options{
		Environment:       "test",
		CookieName:        testCookieName,
		CORSOrigins:       []string{"http://localhost:3000"},
		MaxUploadSize:     testMaxUploadSize,
		AllowedExtensions: []string{"png", "jpg", "jpeg", "bmp", "gif"},
		RateLimitRPS:      1000,
		RateLimitBurst:    1000,
	}
	for _, opt := range opts {
		opt(&options)
	}

	router := NewRouter(Deps{
		Accounts: usecase.NewAccountUseCase(users, hasher, usecase.AccountPolicy{ResetTTL: time.Hour, AllowPrivilegedSignup: true}, logger),
		Profiles: usecase.NewProfileUseCase(users, avatars, options.AllowedExtensions, logger),
		Centers:  usecase.NewCenterUseCase(centers, users),
		Uploads:  uploadUC,
		Sessions: auth.NewManager("test-secret", time.Hour, store, logger),
		Logger:   logger,
		Options:  options,
	})

	return &testServer{router: router, users: users, model: model}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, contentType, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	s.router.ServeHTTP(resp, req)
	return resp
}

func (s *testServer) doJSON(t *testing.T, method, path string, payload any, token string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to encode payload: %v", err)
	}
	return s.do(t, method, path, bytes.NewReader(data), "application/json", token)
}

// register creates an account and returns its session token.
func (s *testServer) register(t *testing.T, name string, role repository.Role) string {
	t.Helper()
	resp := s.doJSON(t, http.MethodPost, "/register", map[string]any{
		"user_name":      name,
		"email":          name + "@example.com",
		"password":       "correct-horse",
		"role":           role,
		"terms_approved": true,
	}, "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("register %s: expected status %d, got %d: %s", name, http.StatusCreated, resp.Code, resp.Body.String())
	}
	return sessionCookie(t, resp)
}

func sessionCookie(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range resp.Result().Cookies() {
		if c.Name == testCookieName {
			return c.Value
		}
	}
	t.Fatalf("response carries no %s cookie", testCookieName)
	return ""
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", resp.Body.String(), err)
	}
	return out
}

func buildMultipartBody(t *testing.T, field, filename, contentType string, payload []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field %s: %v", k, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func (s *testServer) submit(t *testing.T, token string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := buildMultipartBody(t, "file", "bottle.png", "image/png", pngBytes, fields)
	return s.do(t, http.MethodPost, "/uploads/", body, contentType, token)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/health", nil, "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if got := decode(t, resp)["status"]; got != "healthy" {
		t.Fatalf("expected healthy, got %v", got)
	}
	if resp.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
}

func TestUploadApproveCreditsOnce(t *testing.T) {
	s := newTestServer(t)
	owner := s.register(t, "owner", repository.RoleCivilian)
	reviewer := s.register(t, "reviewer", repository.RoleCorporate)

	resp := s.submit(t, owner, map[string]string{"weight": "1.5"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, resp.Code, resp.Body.String())
	}
	upload := decode(t, resp)["upload"].(map[string]any)
	if upload["category"] != "plastic" || upload["points_awarded"] != float64(82) || upload["not_verified"] != true {
		t.Fatalf("unexpected upload: %v", upload)
	}
	id := int(upload["id"].(float64))

	resp = s.do(t, http.MethodPatch, fmt.Sprintf("/uploads/approve/%d", id), nil, "", reviewer)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.Code, resp.Body.String())
	}
	first := decode(t, resp)
	if first["user_point_score"] != float64(82) {
		t.Fatalf("expected point score 82, got %v", first["user_point_score"])
	}
	if first["message"] != fmt.Sprintf("Upload #%d verified successfully.", id) {
		t.Fatalf("unexpected message %v", first["message"])
	}

	resp = s.do(t, http.MethodPatch, fmt.Sprintf("/uploads/approve/%d", id), nil, "", reviewer)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	second := decode(t, resp)
	if second["message"] != "Upload already verified" {
		t.Fatalf("unexpected message %v", second["message"])
	}
	if _, ok := second["user_point_score"]; ok {
		t.Fatal("second approval must not report a credit")
	}

	me := decode(t, s.do(t, http.MethodGet, "/me", nil, "", owner))["user"].(map[string]any)
	if me["point_score"] != float64(82) {
		t.Fatalf("expected balance 82, got %v", me["point_score"])
	}
}

func TestApproveMissingUpload(t *testing.T) {
	s := newTestServer(t)
	reviewer := s.register(t, "admin", repository.RoleAdmin)

	resp := s.do(t, http.MethodPatch, "/uploads/approve/999", nil, "", reviewer)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.Code)
	}
	if got := decode(t, resp)["error"]; got != codeNotFound {
		t.Fatalf("expected %s, got %v", codeNotFound, got)
	}
}

func TestPreviewDoesNotPersist(t *testing.T) {
	s := newTestServer(t)
	owner := s.register(t, "owner", repository.RoleCivilian)

	resp := s.submit(t, owner, map[string]string{"preview": "true"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.Code, resp.Body.String())
	}
	out := decode(t, resp)
	if out["preview"] != true {
		t.Fatalf("expected preview flag, got %v", out)
	}
	if got := out["upload"].(map[string]any)["points_awarded"]; got != float64(82) {
		t.Fatalf("expected 82 points, got %v", got)
	}

	list := decode(t, s.do(t, http.MethodGet, "/uploads/", nil, "", owner))
	if n := len(list["uploads"].([]any)); n != 0 {
		t.Fatalf("expected no stored uploads, got %d", n)
	}
}

func TestSubmitRejections(t *testing.T) {
	s := newTestServer(t)
	owner := s.register(t, "owner", repository.RoleCivilian)

	tests := []struct {
		name        string
		field       string
		filename    string
		payload     []byte
		fields      map[string]string
		token       string
		wantStatus  int
		wantErrCode string
	}{
		{name: "anonymous", field: "file", filename: "a.png", payload: pngBytes, wantStatus: http.StatusUnauthorized, wantErrCode: codeNotAuthenticated},
		{name: "missing file", field: "other", filename: "a.png", payload: pngBytes, token: owner, wantStatus: http.StatusBadRequest, wantErrCode: codeValidation},
		{name: "extension", field: "file", filename: "a.txt", payload: pngBytes, token: owner, wantStatus: http.StatusBadRequest, wantErrCode: codeValidation},
		{name: "not an image", field: "file", filename: "a.png", payload: []byte("plain text"), token: owner, wantStatus: http.StatusUnsupportedMediaType, wantErrCode: codeUnsupportedMedia},
		{name: "too large", field: "file", filename: "a.png", payload: bytes.Repeat([]byte("a"), testMaxUploadSize+1), token: owner, wantStatus: http.StatusRequestEntityTooLarge, wantErrCode: codePayloadTooLarge},
		{name: "unknown centre", field: "file", filename: "a.png", payload: pngBytes, fields: map[string]string{"centre_id": "42"}, token: owner, wantStatus: http.StatusNotFound, wantErrCode: codeNotFound},
		{name: "bad weight", field: "file", filename: "a.png", payload: pngBytes, fields: map[string]string{"weight": "heavy"}, token: owner, wantStatus: http.StatusBadRequest, wantErrCode: codeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := buildMultipartBody(t, tt.field, tt.filename, "image/png", tt.payload, tt.fields)
			resp := s.do(t, http.MethodPost, "/uploads/", body, contentType, tt.token)
			if resp.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, resp.Code, resp.Body.String())
			}
			if got := decode(t, resp)["error"]; got != tt.wantErrCode {
				t.Fatalf("expected error %s, got %v", tt.wantErrCode, got)
			}
		})
	}

	if s.model.calls != 0 {
		t.Fatalf("rejected uploads must not reach the classifier, got %d calls", s.model.calls)
	}
}

func TestReviewerRoutesRequireRole(t *testing.T) {
	s := newTestServer(t)
	civilian := s.register(t, "civilian", repository.RoleCivilian)

	for _, path := range []string{"/uploads/all", "/uploads/stats", "/uploads/duplicates/1"} {
		resp := s.do(t, http.MethodGet, path, nil, "", civilian)
		if resp.Code != http.StatusForbidden {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusForbidden, resp.Code)
		}
	}

	resp := s.do(t, http.MethodPatch, "/uploads/approve/1", nil, "", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, resp.Code)
	}
}

func TestListAllFiltersAndCounts(t *testing.T) {
	s := newTestServer(t)
	owner := s.register(t, "owner", repository.RoleCivilian)
	reviewer := s.register(t, "reviewer", repository.RoleCorporate)

	for i := 0; i < 2; i++ {
		if resp := s.submit(t, owner, nil); resp.Code != http.StatusCreated {
			t.Fatalf("submit: expected status %d, got %d", http.StatusCreated, resp.Code)
		}
	}
	if resp := s.do(t, http.MethodPatch, "/uploads/approve/1", nil, "", reviewer); resp.Code != http.StatusOK {
		t.Fatalf("approve: expected status %d, got %d", http.StatusOK, resp.Code)
	}

	all := decode(t, s.do(t, http.MethodGet, "/uploads/all", nil, "", reviewer))
	if all["count"] != float64(2) {
		t.Fatalf("expected 2 uploads, got %v", all["count"])
	}
	pending := decode(t, s.do(t, http.MethodGet, "/uploads/all?not_verified=true", nil, "", reviewer))
	if pending["count"] != float64(1) {
		t.Fatalf("expected 1 pending upload, got %v", pending["count"])
	}

	resp := s.do(t, http.MethodGet, "/uploads/all?not_verified=maybe", nil, "", reviewer)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}

	dups := decode(t, s.do(t, http.MethodGet, "/uploads/duplicates/1", nil, "", reviewer))
	if dups["count"] != float64(1) {
		t.Fatalf("expected 1 duplicate, got %v", dups["count"])
	}

	stats := decode(t, s.do(t, http.MethodGet, "/uploads/stats", nil, "", reviewer))
	if stats["total_uploads"] != float64(2) || stats["awarded_points"] != float64(82) {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice", repository.RoleCivilian)

	resp := s.doJSON(t, http.MethodPost, "/auth/register", map[string]any{
		"user_name": "someone-else",
		"email":     "alice@example.com",
		"password":  "correct-horse",
	}, "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
	if got := decode(t, resp)["message"]; got != "Email already registered" {
		t.Fatalf("unexpected message %v", got)
	}
}

type unavailableSessionStore struct{}

func (unavailableSessionStore) Save(context.Context, auth.Session, time.Duration) error {
	return fmt.Errorf("session backend unavailable")
}

func (unavailableSessionStore) Load(context.Context, string) (*auth.Session, error) {
	return nil, auth.ErrSessionNotFound
}

func (unavailableSessionStore) Delete(context.Context, string) error { return nil }

func TestRegisterSucceedsWithoutSessionBackend(t *testing.T) {
	s := newTestServerWithStore(t, unavailableSessionStore{})

	resp := s.doJSON(t, http.MethodPost, "/register", map[string]any{
		"user_name": "alice",
		"email":     "alice@example.com",
		"password":  "correct-horse",
	}, "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, resp.Code, resp.Body.String())
	}
	for _, c := range resp.Result().Cookies() {
		if c.Name == testCookieName {
			t.Fatalf("expected no session cookie, got %q", c.Value)
		}
	}
	if _, err := s.users.FindByEmail(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("expected the account to be stored: %v", err)
	}

	resp = s.doJSON(t, http.MethodPost, "/login", map[string]any{"email": "alice@example.com", "password": "correct-horse"}, "")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("login: expected status %d, got %d", http.StatusInternalServerError, resp.Code)
	}
}

func TestLoginLogout(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice", repository.RoleCivilian)

	resp := s.doJSON(t, http.MethodPost, "/login", map[string]any{"email": "alice@example.com", "password": "wrong-password"}, "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, resp.Code)
	}

	resp = s.doJSON(t, http.MethodPost, "/login", map[string]any{"email": "ALICE@example.com", "password": "correct-horse"}, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.Code, resp.Body.String())
	}
	token := sessionCookie(t, resp)

	if resp := s.do(t, http.MethodGet, "/profile/me", nil, "", token); resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}

	if resp := s.do(t, http.MethodPost, "/logout", nil, "", token); resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}

	if resp := s.do(t, http.MethodGet, "/profile/me", nil, "", token); resp.Code != http.StatusUnauthorized {
		t.Fatalf("revoked session: expected status %d, got %d", http.StatusUnauthorized, resp.Code)
	}
	me := decode(t, s.do(t, http.MethodGet, "/me", nil, "", token))
	if me["user"] != nil {
		t.Fatalf("expected null user, got %v", me["user"])
	}
}

func TestPasswordReset(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice", repository.RoleCivilian)

	resp := s.doJSON(t, http.MethodPost, "/forgot-password", map[string]any{"email": "nobody@example.com"}, "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.Code)
	}

	resp = s.doJSON(t, http.MethodPost, "/forgot-password", map[string]any{"email": "alice@example.com"}, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	token := decode(t, resp)["reset_token"].(string)

	resp = s.doJSON(t, http.MethodPost, "/reset-password/"+token, map[string]any{"new_password": "brand-new-secret"}, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.Code, resp.Body.String())
	}

	resp = s.doJSON(t, http.MethodPost, "/reset-password/"+token, map[string]any{"new_password": "another-secret"}, "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("reused token: expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}

	resp = s.doJSON(t, http.MethodPost, "/login", map[string]any{"email": "alice@example.com", "password": "brand-new-secret"}, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
}

func TestAvatarUploadAndServe(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "alice", repository.RoleCivilian)

	body, contentType := buildMultipartBody(t, "image", "me.png", "image/png", pngBytes, nil)
	resp := s.do(t, http.MethodPost, "/profile/upload-avatar", body, contentType, token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.Code, resp.Body.String())
	}
	avatar := decode(t, resp)["avatar"].(string)
	if !strings.HasPrefix(avatar, "/profile/uploads/user_") {
		t.Fatalf("unexpected avatar reference %q", avatar)
	}

	resp = s.do(t, http.MethodGet, avatar, nil, "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if got := resp.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("expected image/png, got %q", got)
	}
	if !bytes.Equal(resp.Body.Bytes(), pngBytes) {
		t.Fatal("served avatar differs from the upload")
	}

	profile := decode(t, s.do(t, http.MethodGet, "/profile/me", nil, "", token))
	if profile["avatar"] != avatar || profile["name"] != "alice" {
		t.Fatalf("unexpected profile: %v", profile)
	}

	resp = s.do(t, http.MethodGet, "/profile/uploads/missing.png", nil, "", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.Code)
	}
}

func TestCenterLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "operator", repository.RoleCorporate)

	resp := s.doJSON(t, http.MethodPost, "/api/centers/", map[string]any{
		"name":       "North Depot",
		"location":   "Main St 1",
		"metadata":   map[string]any{"bins": 4},
		"created_by": 1,
	}, "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, resp.Code, resp.Body.String())
	}
	if got := resp.Header().Get("Location"); got != "/api/centers/1" {
		t.Fatalf("unexpected Location header %q", got)
	}

	resp = s.doJSON(t, http.MethodPatch, "/api/centers/1", map[string]any{"location": ""}, "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}

	resp = s.doJSON(t, http.MethodPut, "/api/centers/1", map[string]any{"time_open": "08:00-17:00"}, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if got := decode(t, resp)["time_open"]; got != "08:00-17:00" {
		t.Fatalf("unexpected time_open %v", got)
	}

	var centres []centreSummary
	resp = s.do(t, http.MethodGet, "/uploads/centres", nil, "", "")
	if err := json.Unmarshal(resp.Body.Bytes(), &centres); err != nil {
		t.Fatalf("failed to decode centres: %v", err)
	}
	if len(centres) != 1 || centres[0].Name != "North Depot" {
		t.Fatalf("unexpected centres: %+v", centres)
	}

	if resp := s.do(t, http.MethodDelete, "/api/centers/1", nil, "", ""); resp.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, resp.Code)
	}
	if resp := s.do(t, http.MethodGet, "/api/centers/1", nil, "", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.Code)
	}
	if resp := s.do(t, http.MethodGet, "/api/centers/abc", nil, "", ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
}

func TestCentreDirectoryFollowsWrites(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "operator", repository.RoleCorporate)

	readCentres := func() []centreSummary {
		t.Helper()
		resp := s.do(t, http.MethodGet, "/uploads/centres", nil, "", "")
		if resp.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
		}
		var centres []centreSummary
		if err := json.Unmarshal(resp.Body.Bytes(), &centres); err != nil {
			t.Fatalf("failed to decode centres: %v", err)
		}
		return centres
	}

	if got := readCentres(); len(got) != 0 {
		t.Fatalf("expected no centres, got %+v", got)
	}

	resp := s.doJSON(t, http.MethodPost, "/api/centers/", map[string]any{"name": "North Depot", "location": "Main St 1", "created_by": 1}, "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, resp.Code, resp.Body.String())
	}
	if got := readCentres(); len(got) != 1 || got[0].Name != "North Depot" {
		t.Fatalf("after create: unexpected centres %+v", got)
	}

	resp = s.doJSON(t, http.MethodPatch, "/api/centers/1", map[string]any{"name": "South Depot"}, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.Code, resp.Body.String())
	}
	if got := readCentres(); len(got) != 1 || got[0].Name != "South Depot" {
		t.Fatalf("after update: unexpected centres %+v", got)
	}

	if resp := s.do(t, http.MethodDelete, "/api/centers/1", nil, "", ""); resp.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, resp.Code)
	}
	if got := readCentres(); len(got) != 0 {
		t.Fatalf("after delete: expected no centres, got %+v", got)
	}
}

func TestCreateCenterWithoutName(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "operator", repository.RoleCorporate)

	resp := s.doJSON(t, http.MethodPost, "/api/centers/", map[string]any{"location": "Dock 3", "created_by": 1}, "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, resp.Code, resp.Body.String())
	}
	body := decode(t, resp)
	if body["location"] != "Dock 3" || body["name"] != "" {
		t.Fatalf("unexpected centre %v", body)
	}

	resp = s.doJSON(t, http.MethodPatch, "/api/centers/1", map[string]any{"name": "  "}, "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("blank name patch: expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
}

func TestCreateCenterRequiresCreator(t *testing.T) {
	s := newTestServer(t)

	resp := s.doJSON(t, http.MethodPost, "/api/centers/", map[string]any{"name": "Depot", "location": "Somewhere"}, "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
}

func TestHistoryEmbedsCentre(t *testing.T) {
	s := newTestServer(t)
	owner := s.register(t, "owner", repository.RoleCivilian)

	resp := s.doJSON(t, http.MethodPost, "/api/centers/", map[string]any{"name": "Depot", "location": "Dock 3"}, owner)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, resp.Code, resp.Body.String())
	}

	if resp := s.submit(t, owner, map[string]string{"centre_id": "1"}); resp.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, resp.Code, resp.Body.String())
	}

	history := decode(t, s.do(t, http.MethodGet, "/uploads/history", nil, "", owner))
	submissions := history["submissions"].([]any)
	if len(submissions) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(submissions))
	}
	centre := submissions[0].(map[string]any)["centre"].(map[string]any)
	if centre["name"] != "Depot" {
		t.Fatalf("unexpected centre %v", centre)
	}
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.RateLimitRPS = 0.001
		o.RateLimitBurst = 1
	})

	payload := map[string]any{"email": "a@example.com", "password": "whatever-pass"}
	s.doJSON(t, http.MethodPost, "/login", payload, "")
	resp := s.doJSON(t, http.MethodPost, "/login", payload, "")
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d, got %d", http.StatusTooManyRequests, resp.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/nope", nil, "", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.Code)
	}
	if got := decode(t, resp)["error"]; got != codeNotFound {
		t.Fatalf("expected %s, got %v", codeNotFound, got)
	}
}

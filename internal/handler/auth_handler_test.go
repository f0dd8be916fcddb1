package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nsnotes/noteauth/internal/middleware"
	"github.com/nsnotes/noteauth/internal/model"
	"github.com/nsnotes/noteauth/internal/user"
)

// --- モック定義 ---

type mockAuthService struct {
	loginFn   func(ctx context.Context, code string) (*user.AuthTokens, error)
	refreshFn func(ctx context.Context, userID, presentedToken string) (string, error)
	logoutFn  func(ctx context.Context, userID string) error
}

func (m *mockAuthService) Login(ctx context.Context, code string) (*user.AuthTokens, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, code)
	}
	return nil, nil
}

func (m *mockAuthService) Refresh(ctx context.Context, userID, presentedToken string) (string, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, userID, presentedToken)
	}
	return "", nil
}

func (m *mockAuthService) Logout(ctx context.Context, userID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, userID)
	}
	return nil
}

type mockAuthMetrics struct {
	logins int
}

func (m *mockAuthMetrics) RecordLogin() { m.logins++ }

var _ AuthServiceInterface = (*mockAuthService)(nil)
var _ AuthMetrics = (*mockAuthMetrics)(nil)

// --- テスト ---

func TestLogin_Success(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, code string) (*user.AuthTokens, error) {
			if code != "auth-code-123" {
				t.Errorf("code = %q, want %q", code, "auth-code-123")
			}
			return &user.AuthTokens{AccessToken: "at", RefreshToken: "rt"}, nil
		},
	}
	metrics := &mockAuthMetrics{}
	h := NewAuthHandler(svc, metrics)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"code":"auth-code-123"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["accessToken"] != "at" || body["refreshToken"] != "rt" {
		t.Errorf("body = %v, want both tokens", body)
	}
	if metrics.logins != 1 {
		t.Errorf("login metric = %d, want 1", metrics.logins)
	}
}

func TestLogin_MissingCode_BadRequest(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, &mockAuthMetrics{})

	cases := []struct {
		name string
		body string
	}{
		{"empty code", `{"code":""}`},
		{"no body", ``},
		{"broken json", `{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.Login(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestLogin_ServiceFailure_Returns503(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, code string) (*user.AuthTokens, error) {
			return nil, errors.New("idp unreachable")
		},
	}
	metrics := &mockAuthMetrics{}
	h := NewAuthHandler(svc, metrics)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"code":"c"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	// レスポンスボディはupstream障害の統一フォーマットであり、障害元の詳細を含まない
	var body ErrorResponseBody
	json.NewDecoder(rec.Body).Decode(&body)
	want := model.NewUpstreamUnavailableError()
	if body.Code != want.Code {
		t.Errorf("code = %q, want %q", body.Code, want.Code)
	}
	if body.Message != want.Message {
		t.Errorf("message = %q, want %q", body.Message, want.Message)
	}
	if strings.Contains(body.Message, "idp unreachable") {
		t.Error("response message should not leak the underlying error")
	}

	if metrics.logins != 0 {
		t.Error("login metric should not be recorded on failure")
	}
}

func TestRefresh_Success(t *testing.T) {
	svc := &mockAuthService{
		refreshFn: func(ctx context.Context, userID, presentedToken string) (string, error) {
			if userID != "U1" || presentedToken != "rt" {
				t.Errorf("refresh args = (%q, %q), want (U1, rt)", userID, presentedToken)
			}
			return "new-access", nil
		},
	}
	h := NewAuthHandler(svc, &mockAuthMetrics{})

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{"userId":"U1","refreshToken":"rt"}`))
	rec := httptest.NewRecorder()
	h.Refresh(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["accessToken"] != "new-access" {
		t.Errorf("accessToken = %q, want %q", body["accessToken"], "new-access")
	}
}

func TestRefresh_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"session not found", model.ErrRefreshTokenNotFound, http.StatusNotFound, model.ErrCodeRefreshTokenNotFound},
		{"token mismatch", model.ErrRefreshTokenMismatch, http.StatusUnauthorized, model.ErrCodeRefreshTokenMismatch},
		{"token expired", model.ErrRefreshTokenExpired, http.StatusUnauthorized, model.ErrCodeRefreshTokenExpired},
		{"user gone", model.ErrUserNotFound, http.StatusNotFound, model.ErrCodeUserNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockAuthService{
				refreshFn: func(ctx context.Context, userID, presentedToken string) (string, error) {
					return "", tc.err
				},
			}
			h := NewAuthHandler(svc, &mockAuthMetrics{})

			req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{"userId":"U1","refreshToken":"rt"}`))
			rec := httptest.NewRecorder()
			h.Refresh(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var body ErrorResponseBody
			json.NewDecoder(rec.Body).Decode(&body)
			if body.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tc.wantCode)
			}
		})
	}
}

func TestRefresh_MissingFields_BadRequest(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, &mockAuthMetrics{})

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{"userId":"U1"}`))
	rec := httptest.NewRecorder()
	h.Refresh(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestLogout_Success(t *testing.T) {
	var loggedOut string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, userID string) error {
			loggedOut = userID
			return nil
		},
	}
	h := NewAuthHandler(svc, &mockAuthMetrics{})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "U1"))
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if loggedOut != "U1" {
		t.Errorf("logged out user = %q, want %q", loggedOut, "U1")
	}
}

func TestLogout_NoIdentity_Unauthorized(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, &mockAuthMetrics{})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

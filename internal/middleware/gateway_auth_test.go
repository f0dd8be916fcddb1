package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nsnotes/noteauth/internal/token"
)

type mockTokenValidator struct {
	validateFn func(tokenString string) (*token.Claims, error)
}

func (m *mockTokenValidator) Validate(tokenString string) (*token.Claims, error) {
	if m.validateFn != nil {
		return m.validateFn(tokenString)
	}
	return nil, token.ErrEmptyClaims
}

var _ TokenValidator = (*mockTokenValidator)(nil)

func newAuthTestHandler(validator TokenValidator, publicPaths []string) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := NewGatewayAuthMiddleware(validator, GatewayAuthConfig{PublicPaths: publicPaths})
	return mw(inner)
}

func TestGatewayAuth_PublicPathBypassesValidation(t *testing.T) {
	validator := &mockTokenValidator{
		validateFn: func(tokenString string) (*token.Claims, error) {
			t.Error("validator should not be called for public paths")
			return nil, nil
		},
	}
	h := newAuthTestHandler(validator, []string{"/auth/login", "/healthz"})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestGatewayAuth_MissingHeader_Returns401WithBody(t *testing.T) {
	h := newAuthTestHandler(&mockTokenValidator{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/permissions/me", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	var body AuthErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Error != ErrNoAuthHeader {
		t.Errorf("error = %q, want %q", body.Error, ErrNoAuthHeader)
	}
	if body.Status != http.StatusUnauthorized {
		t.Errorf("body status = %d, want 401", body.Status)
	}
	if body.Path != "/api/permissions/me" {
		t.Errorf("path = %q, want %q", body.Path, "/api/permissions/me")
	}
	if body.Timestamp == "" {
		t.Error("expected non-empty timestamp")
	}
}

func TestGatewayAuth_NonBearerHeader_InvalidTokenFormat(t *testing.T) {
	h := newAuthTestHandler(&mockTokenValidator{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body AuthErrorBody
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Error != ErrInvalidTokenFormat {
		t.Errorf("error = %q, want %q", body.Error, ErrInvalidTokenFormat)
	}
}

func TestGatewayAuth_ValidationFailures_MapToErrorCodes(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"expired", token.ErrExpired, http.StatusUnauthorized, ErrExpiredToken},
		{"invalid signature", token.ErrInvalidSignature, http.StatusUnauthorized, ErrInvalidSignature},
		{"unsupported", token.ErrUnsupported, http.StatusUnauthorized, ErrUnsupportedToken},
		{"malformed", token.ErrMalformed, http.StatusUnauthorized, ErrMalformedToken},
		{"empty claims", token.ErrEmptyClaims, http.StatusUnauthorized, ErrEmptyClaims},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			validator := &mockTokenValidator{
				validateFn: func(tokenString string) (*token.Claims, error) {
					return nil, tc.err
				},
			}
			h := newAuthTestHandler(validator, nil)

			req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
			req.Header.Set("Authorization", "Bearer some-token")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var body AuthErrorBody
			json.NewDecoder(rec.Body).Decode(&body)
			if body.Error != tc.wantCode {
				t.Errorf("error = %q, want %q", body.Error, tc.wantCode)
			}
		})
	}
}

func TestGatewayAuth_UnexpectedValidationError_Returns500(t *testing.T) {
	validator := &mockTokenValidator{
		validateFn: func(tokenString string) (*token.Claims, error) {
			return nil, http.ErrHandlerTimeout // 分類外のエラー
		},
	}
	h := newAuthTestHandler(validator, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body AuthErrorBody
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Error != ErrAuthenticationFailed {
		t.Errorf("error = %q, want %q", body.Error, ErrAuthenticationFailed)
	}
}

func TestGatewayAuth_MissingSubject_Rejected(t *testing.T) {
	validator := &mockTokenValidator{
		validateFn: func(tokenString string) (*token.Claims, error) {
			return &token.Claims{Type: token.TypeAccess}, nil
		},
	}
	h := newAuthTestHandler(validator, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body AuthErrorBody
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Error != ErrMissingUserID {
		t.Errorf("error = %q, want %q", body.Error, ErrMissingUserID)
	}
}

func TestGatewayAuth_ValidToken_InjectsTrustedHeaders(t *testing.T) {
	p := token.NewProvider(token.Config{
		Secret:           "test-secret-key",
		AccessExpMinutes: 30,
		RefreshExpDays:   14,
	})
	signed, err := p.IssueAccess("U1", "u@example.com", "U", "USER,ADMIN")
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}

	var gotUserID, gotRoles, gotAuthz string
	var ctxUserID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = r.Header.Get(HeaderUserID)
		gotRoles = r.Header.Get(HeaderUserRoles)
		gotAuthz = r.Header.Get("Authorization")
		ctxUserID, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	mw := NewGatewayAuthMiddleware(p, GatewayAuthConfig{})
	h := mw(inner)

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUserID != "U1" {
		t.Errorf("X-User-ID = %q, want %q", gotUserID, "U1")
	}
	if gotRoles != "USER,ADMIN" {
		t.Errorf("X-User-Roles = %q, want %q", gotRoles, "USER,ADMIN")
	}
	// 元のAuthorizationヘッダーは保持される
	if gotAuthz != "Bearer "+signed {
		t.Error("Authorization header should be preserved")
	}
	if ctxUserID != "U1" {
		t.Errorf("context user ID = %q, want %q", ctxUserID, "U1")
	}
}

func TestUserIDFromContext_Missing_ReturnsError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := UserIDFromContext(req.Context()); err == nil {
		t.Error("expected error when user ID is absent from context")
	}
}

func TestIsPublicPath_PrefixMatching(t *testing.T) {
	publicPaths := []string{"/auth/login", "/healthz"}

	cases := []struct {
		path string
		want bool
	}{
		{"/auth/login", true},
		{"/auth/login/", true},
		{"/auth/logout", false},
		{"/healthz", true},
		{"/api/notes", false},
	}

	for _, tc := range cases {
		if got := isPublicPath(tc.path, publicPaths); got != tc.want {
			t.Errorf("isPublicPath(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

type mockAuthFailureMetrics struct {
	codes []string
}

func (m *mockAuthFailureMetrics) RecordAuthFailure(code string) {
	m.codes = append(m.codes, code)
}

var _ AuthFailureMetrics = (*mockAuthFailureMetrics)(nil)

func TestGatewayAuth_RecordsFailureMetrics(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
		validateFn func(string) (*token.Claims, error)
		wantCode   string
	}{
		{
			name:     "missing header",
			wantCode: ErrNoAuthHeader,
		},
		{
			name:       "non-bearer header",
			authHeader: "Basic dXNlcjpwYXNz",
			wantCode:   ErrInvalidTokenFormat,
		},
		{
			name:       "expired token",
			authHeader: "Bearer some-token",
			validateFn: func(string) (*token.Claims, error) { return nil, token.ErrExpired },
			wantCode:   ErrExpiredToken,
		},
		{
			name:       "empty subject",
			authHeader: "Bearer some-token",
			validateFn: func(string) (*token.Claims, error) { return &token.Claims{Type: token.TypeAccess}, nil },
			wantCode:   ErrMissingUserID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &mockAuthFailureMetrics{}
			mw := NewGatewayAuthMiddleware(&mockTokenValidator{validateFn: tt.validateFn}, GatewayAuthConfig{
				Metrics: recorder,
			})
			h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/permissions/me", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if len(recorder.codes) != 1 || recorder.codes[0] != tt.wantCode {
				t.Errorf("recorded codes = %v, want [%s]", recorder.codes, tt.wantCode)
			}
		})
	}
}

func TestGatewayAuth_NoFailureMetricOnSuccess(t *testing.T) {
	recorder := &mockAuthFailureMetrics{}
	validator := &mockTokenValidator{
		validateFn: func(string) (*token.Claims, error) {
			c := &token.Claims{Role: "USER", Type: token.TypeAccess}
			c.Subject = "U1"
			return c, nil
		},
	}
	mw := NewGatewayAuthMiddleware(validator, GatewayAuthConfig{
		PublicPaths: []string{"/healthz"},
		Metrics:     recorder,
	})
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// 認証成功
	req := httptest.NewRequest(http.MethodGet, "/api/permissions/me", nil)
	req.Header.Set("Authorization", "Bearer valid")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	// 公開パスのバイパス
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if len(recorder.codes) != 0 {
		t.Errorf("recorded codes = %v, want none", recorder.codes)
	}
}

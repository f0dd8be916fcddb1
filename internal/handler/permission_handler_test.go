package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nsnotes/noteauth/internal/middleware"
	"github.com/nsnotes/noteauth/internal/model"
)

// --- モック定義 ---

type mockPermissionService struct {
	registerOwnerFn func(ctx context.Context, noteID, userID string) error
	grantFn         func(ctx context.Context, noteID, targetUserID string, role model.Role, requesterID string) error
	revokeFn        func(ctx context.Context, noteID, targetUserID string, role model.Role, requesterID string) error
	roleOfFn        func(ctx context.Context, noteID, userID string) (model.Role, error)
}

func (m *mockPermissionService) RegisterOwner(ctx context.Context, noteID, userID string) error {
	if m.registerOwnerFn != nil {
		return m.registerOwnerFn(ctx, noteID, userID)
	}
	return nil
}

func (m *mockPermissionService) Grant(ctx context.Context, noteID, targetUserID string, role model.Role, requesterID string) error {
	if m.grantFn != nil {
		return m.grantFn(ctx, noteID, targetUserID, role, requesterID)
	}
	return nil
}

func (m *mockPermissionService) Revoke(ctx context.Context, noteID, targetUserID string, role model.Role, requesterID string) error {
	if m.revokeFn != nil {
		return m.revokeFn(ctx, noteID, targetUserID, role, requesterID)
	}
	return nil
}

func (m *mockPermissionService) RoleOf(ctx context.Context, noteID, userID string) (model.Role, error) {
	if m.roleOfFn != nil {
		return m.roleOfFn(ctx, noteID, userID)
	}
	return "", nil
}

var _ PermissionServiceInterface = (*mockPermissionService)(nil)

// authedRequest は認証済みユーザーとしてのリクエストを作成する。
func authedRequest(method, target, body, userID string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(middleware.ContextWithUserID(req.Context(), userID))
}

// --- テスト ---

func TestRegisterOwner_Success(t *testing.T) {
	var gotNote, gotUser string
	svc := &mockPermissionService{
		registerOwnerFn: func(ctx context.Context, noteID, userID string) error {
			gotNote = noteID
			gotUser = userID
			return nil
		},
	}
	h := NewPermissionHandler(svc)

	req := authedRequest(http.MethodPost, "/api/permissions/owner", `{"noteId":"N1"}`, "U1")
	rec := httptest.NewRecorder()
	h.RegisterOwner(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if gotNote != "N1" || gotUser != "U1" {
		t.Errorf("registered (%q, %q), want (N1, U1)", gotNote, gotUser)
	}
}

func TestRegisterOwner_DuplicateOwner_Returns409(t *testing.T) {
	svc := &mockPermissionService{
		registerOwnerFn: func(ctx context.Context, noteID, userID string) error {
			return model.ErrPermissionAlreadyExists
		},
	}
	h := NewPermissionHandler(svc)

	req := authedRequest(http.MethodPost, "/api/permissions/owner", `{"noteId":"N1"}`, "U2")
	rec := httptest.NewRecorder()
	h.RegisterOwner(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var body ErrorResponseBody
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Code != model.ErrCodePermissionAlreadyExists {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodePermissionAlreadyExists)
	}
}

func TestRegisterOwner_NoIdentity_Unauthorized(t *testing.T) {
	h := NewPermissionHandler(&mockPermissionService{})

	req := httptest.NewRequest(http.MethodPost, "/api/permissions/owner", strings.NewReader(`{"noteId":"N1"}`))
	rec := httptest.NewRecorder()
	h.RegisterOwner(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestGrant_Success(t *testing.T) {
	var gotRole model.Role
	var gotRequester string
	svc := &mockPermissionService{
		grantFn: func(ctx context.Context, noteID, targetUserID string, role model.Role, requesterID string) error {
			gotRole = role
			gotRequester = requesterID
			return nil
		},
	}
	h := NewPermissionHandler(svc)

	req := authedRequest(http.MethodPost, "/api/permissions/grant",
		`{"noteId":"N1","targetUserId":"U2","role":"WRITER"}`, "U1")
	rec := httptest.NewRecorder()
	h.Grant(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if gotRole != model.RoleWriter {
		t.Errorf("role = %q, want WRITER", gotRole)
	}
	if gotRequester != "U1" {
		t.Errorf("requester = %q, want U1", gotRequester)
	}
}

func TestGrant_InvalidRole_BadRequest(t *testing.T) {
	h := NewPermissionHandler(&mockPermissionService{})

	req := authedRequest(http.MethodPost, "/api/permissions/grant",
		`{"noteId":"N1","targetUserId":"U2","role":"EDITOR"}`, "U1")
	rec := httptest.NewRecorder()
	h.Grant(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGrant_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not owner", model.ErrPermissionOwnerOnly, http.StatusForbidden},
		{"owner role change", model.ErrPermissionCannotChangeOwner, http.StatusForbidden},
		{"duplicate grant", model.ErrPermissionAlreadyExists, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockPermissionService{
				grantFn: func(ctx context.Context, noteID, targetUserID string, role model.Role, requesterID string) error {
					return tc.err
				},
			}
			h := NewPermissionHandler(svc)

			req := authedRequest(http.MethodPost, "/api/permissions/grant",
				`{"noteId":"N1","targetUserId":"U2","role":"READER"}`, "U1")
			rec := httptest.NewRecorder()
			h.Grant(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestRevoke_Success(t *testing.T) {
	svc := &mockPermissionService{}
	h := NewPermissionHandler(svc)

	req := authedRequest(http.MethodPost, "/api/permissions/revoke",
		`{"noteId":"N1","targetUserId":"U2","role":"READER"}`, "U1")
	rec := httptest.NewRecorder()
	h.Revoke(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestRevoke_MissingRecord_Returns404(t *testing.T) {
	svc := &mockPermissionService{
		revokeFn: func(ctx context.Context, noteID, targetUserID string, role model.Role, requesterID string) error {
			return model.ErrPermissionNotFound
		},
	}
	h := NewPermissionHandler(svc)

	req := authedRequest(http.MethodPost, "/api/permissions/revoke",
		`{"noteId":"N1","targetUserId":"U2","role":"READER"}`, "U1")
	rec := httptest.NewRecorder()
	h.Revoke(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestMyRole_Success(t *testing.T) {
	svc := &mockPermissionService{
		roleOfFn: func(ctx context.Context, noteID, userID string) (model.Role, error) {
			return model.RoleReader, nil
		},
	}
	h := NewPermissionHandler(svc)

	req := authedRequest(http.MethodGet, "/api/permissions/me?noteId=N1", "", "U2")
	rec := httptest.NewRecorder()
	h.MyRole(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["noteId"] != "N1" || body["role"] != "READER" {
		t.Errorf("body = %v, want noteId=N1 role=READER", body)
	}
}

func TestMyRole_NoRole_Returns404(t *testing.T) {
	h := NewPermissionHandler(&mockPermissionService{})

	req := authedRequest(http.MethodGet, "/api/permissions/me?noteId=N1", "", "stranger")
	rec := httptest.NewRecorder()
	h.MyRole(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestMyRole_MissingNoteID_BadRequest(t *testing.T) {
	h := NewPermissionHandler(&mockPermissionService{})

	req := authedRequest(http.MethodGet, "/api/permissions/me", "", "U1")
	rec := httptest.NewRecorder()
	h.MyRole(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nsnotes/noteauth/internal/middleware"
	"github.com/nsnotes/noteauth/internal/model"
)

// PermissionServiceInterface は権限ハンドラーが必要とするサービスインターフェース。
type PermissionServiceInterface interface {
	RegisterOwner(ctx context.Context, noteID, userID string) error
	Grant(ctx context.Context, noteID, targetUserID string, role model.Role, requesterID string) error
	Revoke(ctx context.Context, noteID, targetUserID string, role model.Role, requesterID string) error
	RoleOf(ctx context.Context, noteID, userID string) (model.Role, error)
}

// PermissionHandler はノート権限管理のHTTPハンドラー。
// 呼び出し元のユーザーIDはゲートウェイ認証ミドルウェアがコンテキストへ注入する。
type PermissionHandler struct {
	service PermissionServiceInterface
}

// NewPermissionHandler はPermissionHandlerを生成する。
func NewPermissionHandler(service PermissionServiceInterface) *PermissionHandler {
	return &PermissionHandler{service: service}
}

type ownerRegisterRequest struct {
	NoteID string `json:"noteId"`
}

// RegisterOwner は新規ノートのOWNERレコードを登録する。
// POST /api/permissions/owner
func (h *PermissionHandler) RegisterOwner(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req ownerRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NoteID == "" {
		writeBadRequest(w, "noteIdは必須です。")
		return
	}

	if err := h.service.RegisterOwner(r.Context(), req.NoteID, userID); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

type permissionChangeRequest struct {
	NoteID       string `json:"noteId"`
	TargetUserID string `json:"targetUserId"`
	Role         string `json:"role"`
}

// parseChangeRequest はgrant/revoke共通のリクエストボディを解析する。
func parseChangeRequest(r *http.Request) (permissionChangeRequest, model.Role, bool) {
	var req permissionChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, "", false
	}
	if req.NoteID == "" || req.TargetUserID == "" {
		return req, "", false
	}
	role, ok := model.ParseRole(req.Role)
	if !ok {
		return req, "", false
	}
	return req, role, true
}

// Grant はノートのOWNERが他ユーザーへロールを付与する。
// POST /api/permissions/grant
func (h *PermissionHandler) Grant(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	req, role, ok := parseChangeRequest(r)
	if !ok {
		writeBadRequest(w, "noteId、targetUserId、role（OWNER/WRITER/READER）は必須です。")
		return
	}

	if err := h.service.Grant(r.Context(), req.NoteID, req.TargetUserID, role, userID); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// Revoke はノートのOWNERが他ユーザーのロールを剥奪する。
// POST /api/permissions/revoke
func (h *PermissionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	req, role, ok := parseChangeRequest(r)
	if !ok {
		writeBadRequest(w, "noteId、targetUserId、role（OWNER/WRITER/READER）は必須です。")
		return
	}

	if err := h.service.Revoke(r.Context(), req.NoteID, req.TargetUserID, role, userID); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type myRoleResponse struct {
	NoteID string `json:"noteId"`
	Role   string `json:"role"`
}

// MyRole は呼び出し元ユーザーがノートに対して持つロールを返す。
// ロールを持たない場合はPERMISSION_NOT_FOUNDで404を返す。
// GET /api/permissions/me?noteId=xxx
func (h *PermissionHandler) MyRole(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	noteID := r.URL.Query().Get("noteId")
	if noteID == "" {
		writeBadRequest(w, "noteIdは必須です。")
		return
	}

	role, err := h.service.RoleOf(r.Context(), noteID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if role == "" {
		writeError(w, r, model.ErrPermissionNotFound)
		return
	}

	writeJSON(w, http.StatusOK, myRoleResponse{
		NoteID: noteID,
		Role:   string(role),
	})
}

// writeUnauthorized は認証情報欠落時の401レスポンスを書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, ErrorResponseBody{
		Code:    "UNAUTHORIZED",
		Message: "認証情報がありません。",
	})
}

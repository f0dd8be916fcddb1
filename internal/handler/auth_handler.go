package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nsnotes/noteauth/internal/middleware"
	"github.com/nsnotes/noteauth/internal/user"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, code string) (*user.AuthTokens, error)
	Refresh(ctx context.Context, userID, presentedToken string) (string, error)
	Logout(ctx context.Context, userID string) error
}

// AuthMetrics は認証ハンドラーが記録するメトリクスのインターフェース。
type AuthMetrics interface {
	RecordLogin()
}

// AuthHandler はログイン・リフレッシュ・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	metrics AuthMetrics
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, metrics AuthMetrics) *AuthHandler {
	return &AuthHandler{
		service: service,
		metrics: metrics,
	}
}

type loginRequest struct {
	Code string `json:"code"`
}

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Login は外部IdPの認可コードを受け取り、セッショントークンを発行する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeBadRequest(w, "codeは必須です。")
		return
	}

	tokens, err := h.service.Login(r.Context(), req.Code)
	if err != nil {
		slog.Error("login failed", slog.String("error", err.Error()))
		writeError(w, r, err)
		return
	}

	h.metrics.RecordLogin()

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
}

type refreshRequest struct {
	UserID       string `json:"userId"`
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// Refresh は保存済みリフレッシュセッションを検証し、新しいアクセストークンを返す。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.RefreshToken == "" {
		writeBadRequest(w, "userIdとrefreshTokenは必須です。")
		return
	}

	accessToken, err := h.service.Refresh(r.Context(), req.UserID, req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{AccessToken: accessToken})
}

// Logout はリフレッシュセッションを破棄する。冪等。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Logout(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nsnotes/noteauth/internal/token"
)

// 認証失敗時のエラーコード。レスポンスボディのerrorフィールドに入る。
const (
	ErrNoAuthHeader         = "NO_AUTH_HEADER"
	ErrInvalidTokenFormat   = "INVALID_TOKEN_FORMAT"
	ErrInvalidSignature     = "INVALID_SIGNATURE"
	ErrExpiredToken         = "EXPIRED_TOKEN"
	ErrUnsupportedToken     = "UNSUPPORTED_TOKEN"
	ErrMalformedToken       = "MALFORMED_TOKEN"
	ErrEmptyClaims          = "EMPTY_CLAIMS"
	ErrMissingUserID        = "MISSING_USER_ID"
	ErrAuthenticationFailed = "AUTHENTICATION_FAILED"
)

// 検証済みアイデンティティを下流へ伝搬する信頼ヘッダー。
// 下流サービスはトークンを再検証せず、このヘッダーを信頼する。
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRoles = "X-User-Roles"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// TokenValidator はセッショントークンの検証に必要なインターフェース。
// token.Providerの部分集合として定義する。
type TokenValidator interface {
	Validate(tokenString string) (*token.Claims, error)
}

// AuthFailureMetrics は認証失敗をエラーコード別に記録するインターフェース。
// metrics.Collectorの部分集合として定義する。
type AuthFailureMetrics interface {
	RecordAuthFailure(code string)
}

// GatewayAuthConfig はゲートウェイ認証フィルターの設定。
type GatewayAuthConfig struct {
	// PublicPaths は認証が不要なパスプレフィックスのリスト
	// （ログイン、リフレッシュ、webhook、ヘルスチェック等）。
	PublicPaths []string

	// Metrics は認証失敗カウンタの記録先。nilの場合は記録しない。
	Metrics AuthFailureMetrics
}

// AuthErrorBody は認証失敗時の統一エラーレスポンス。
type AuthErrorBody struct {
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Path      string `json:"path"`
}

// NewGatewayAuthMiddleware は全インバウンドリクエストのセッショントークンを
// 検証するミドルウェアを返す。公開パスは全チェックをバイパスする。
//
// 検証成功時はX-User-ID / X-User-Rolesヘッダーを付与し、Authorizationヘッダーは
// そのまま保持する。ユーザーIDはリクエストコンテキストにも注入する。
// 検証失敗は種別ごとのエラーコードで401（予期しない失敗のみ500）を返す。
func NewGatewayAuthMiddleware(validator TokenValidator, config GatewayAuthConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fail := func(w http.ResponseWriter, r *http.Request, status int, code string) {
			if config.Metrics != nil {
				config.Metrics.RecordAuthFailure(code)
			}
			writeAuthError(w, r, status, code)
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path, config.PublicPaths) {
				next.ServeHTTP(w, r)
				return
			}

			tokenString, errCode := extractBearerToken(r)
			if errCode != "" {
				fail(w, r, http.StatusUnauthorized, errCode)
				return
			}

			claims, err := validator.Validate(tokenString)
			if err != nil {
				status, code := classifyValidationError(err)
				slog.Warn("token validation failed",
					slog.String("code", code),
					slog.String("path", r.URL.Path),
				)
				fail(w, r, status, code)
				return
			}

			if claims.Subject == "" {
				fail(w, r, http.StatusUnauthorized, ErrMissingUserID)
				return
			}

			roles := splitRoles(claims.Role)

			// 信頼ヘッダーの付与。元のAuthorizationヘッダーは保持する。
			r.Header.Set(HeaderUserID, claims.Subject)
			r.Header.Set(HeaderUserRoles, strings.Join(roles, ","))

			ctx := context.WithValue(r.Context(), userIDContextKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
// ゲートウェイ認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// extractBearerToken はAuthorizationヘッダーからbearerトークンを取り出す。
// 失敗時はエラーコードを返す。
func extractBearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrNoAuthHeader
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrInvalidTokenFormat
	}
	return header[len(prefix):], ""
}

// classifyValidationError はトークン検証エラーをHTTPステータスとエラーコードに
// マッピングする。分類できない失敗は内部エラーとして500を返す。
func classifyValidationError(err error) (int, string) {
	switch {
	case errors.Is(err, token.ErrInvalidSignature):
		return http.StatusUnauthorized, ErrInvalidSignature
	case errors.Is(err, token.ErrExpired):
		return http.StatusUnauthorized, ErrExpiredToken
	case errors.Is(err, token.ErrUnsupported):
		return http.StatusUnauthorized, ErrUnsupportedToken
	case errors.Is(err, token.ErrMalformed):
		return http.StatusUnauthorized, ErrMalformedToken
	case errors.Is(err, token.ErrEmptyClaims):
		return http.StatusUnauthorized, ErrEmptyClaims
	default:
		return http.StatusInternalServerError, ErrAuthenticationFailed
	}
}

// writeAuthError は統一フォーマットの認証エラーレスポンスを書き込む。
func writeAuthError(w http.ResponseWriter, r *http.Request, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(AuthErrorBody{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
		Error:     code,
		Path:      r.URL.Path,
	})
}

// splitRoles はroleクレームをロールのリストに分解する。
func splitRoles(role string) []string {
	if role == "" {
		return nil
	}
	parts := strings.Split(role, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			roles = append(roles, trimmed)
		}
	}
	return roles
}

// isPublicPath はパスが公開プレフィックスのいずれかで始まるかを返す。
func isPublicPath(path string, publicPaths []string) bool {
	for _, prefix := range publicPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

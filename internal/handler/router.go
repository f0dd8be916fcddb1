package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nsnotes/noteauth/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenValidator    middleware.TokenValidator
	PublicPaths       []string
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	GatewayMetrics    middleware.AuthFailureMetrics

	// 認証
	AuthService AuthServiceInterface
	AuthMetrics AuthMetrics

	// 権限管理
	PermissionService PermissionServiceInterface

	// コラボトークン・webhook
	CollabIssuer      CollabIssuerInterface
	WebhookAuthorizer WebhookAuthorizerInterface
	CollabMetrics     CollabMetrics

	// メトリクス公開
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成した
// chi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → CORS → GatewayAuth
//
// ゲートウェイ認証は全ルートに適用され、公開パスプレフィックス
// （ログイン、リフレッシュ、webhook、ヘルスチェック、メトリクス）のみが
// バイパスする。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewGatewayAuthMiddleware(deps.TokenValidator, middleware.GatewayAuthConfig{
		PublicPaths: deps.PublicPaths,
		Metrics:     deps.GatewayMetrics,
	}))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthMetrics)
	permHandler := NewPermissionHandler(deps.PermissionService)
	collabHandler := NewCollabHandler(deps.CollabIssuer, deps.WebhookAuthorizer, deps.CollabMetrics)

	// --- 公開ルート ---

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// ログイン系（IPキーのレート制限を追加）
	r.Route("/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/refresh", authHandler.Refresh)

		// ログアウトは認証必須（公開パスに含めない）
		r.Post("/logout", authHandler.Logout)
	})

	// 共同編集サーバーからの認可webhook
	r.Post("/collab/auth", collabHandler.AuthorizeWebhook)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/permissions", func(r chi.Router) {
			r.Post("/owner", permHandler.RegisterOwner)
			r.Post("/grant", permHandler.Grant)
			r.Post("/revoke", permHandler.Revoke)
			r.Get("/me", permHandler.MyRole)
		})

		r.Route("/api/collab", func(r chi.Router) {
			r.Post("/token", collabHandler.IssueToken)
		})
	})

	return r
}

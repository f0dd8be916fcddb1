package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nsnotes/noteauth/internal/collab"
	"github.com/nsnotes/noteauth/internal/middleware"
)

// WebhookSecretHeader は共同編集サーバーとの共有シークレットを運ぶヘッダー。
const WebhookSecretHeader = "X-Webhook-Secret"

// CollabIssuerInterface はコラボトークン発行ハンドラーが必要とするインターフェース。
type CollabIssuerInterface interface {
	Issue(ctx context.Context, noteID, requesterID string) (*collab.IssueResult, error)
}

// WebhookAuthorizerInterface は認可webhookハンドラーが必要とするインターフェース。
type WebhookAuthorizerInterface interface {
	Authorize(headerSecret string, req *collab.WebhookRequest) collab.Decision
}

// CollabMetrics はコラボハンドラーが記録するメトリクスのインターフェース。
type CollabMetrics interface {
	RecordCollabTokenIssued()
	RecordWebhookDecision(allowed bool, reason string)
}

// CollabHandler はコラボトークン発行と認可webhookのHTTPハンドラー。
type CollabHandler struct {
	issuer     CollabIssuerInterface
	authorizer WebhookAuthorizerInterface
	metrics    CollabMetrics
}

// NewCollabHandler はCollabHandlerを生成する。
func NewCollabHandler(issuer CollabIssuerInterface, authorizer WebhookAuthorizerInterface, metrics CollabMetrics) *CollabHandler {
	return &CollabHandler{
		issuer:     issuer,
		authorizer: authorizer,
		metrics:    metrics,
	}
}

type collabTokenRequest struct {
	NoteID string `json:"noteId"`
}

type documentAttributeBody struct {
	Key  string `json:"key"`
	Verb string `json:"verb"`
}

type collabTokenResponse struct {
	Token             string                `json:"token"`
	TTLSeconds        int                   `json:"ttlSeconds"`
	DocumentAttribute documentAttributeBody `json:"documentAttribute"`
}

// IssueToken はノートに接続するためのコラボトークンを発行する。
// POST /api/collab/token
func (h *CollabHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req collabTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NoteID == "" {
		writeBadRequest(w, "noteIdは必須です。")
		return
	}

	result, err := h.issuer.Issue(r.Context(), req.NoteID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.metrics.RecordCollabTokenIssued()

	writeJSON(w, http.StatusOK, collabTokenResponse{
		Token:      result.Token,
		TTLSeconds: result.TTLSeconds,
		DocumentAttribute: documentAttributeBody{
			Key:  result.DocumentKey,
			Verb: result.Verb,
		},
	})
}

type webhookResponse struct {
	Allowed bool    `json:"allowed"`
	Reason  *string `json:"reason"`
}

// AuthorizeWebhook は共同編集サーバーからの認可webhookを処理する。
// ポリシー上の拒否はトランスポートエラーと区別するため、判定結果は常に
// HTTP 200で返す。ボディの解析に失敗した場合も拒否として応答し、
// 共同編集サーバーが5xxを受け取ることはない。
// POST /collab/auth
func (h *CollabHandler) AuthorizeWebhook(w http.ResponseWriter, r *http.Request) {
	var req collab.WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.RecordWebhookDecision(false, collab.ReasonInvalidAttributes)
		writeDecision(w, collab.Decision{Allowed: false, Reason: collab.ReasonInvalidAttributes})
		return
	}

	decision := h.authorizer.Authorize(r.Header.Get(WebhookSecretHeader), &req)

	h.metrics.RecordWebhookDecision(decision.Allowed, decision.Reason)
	if !decision.Allowed {
		slog.Info("collab webhook denied",
			slog.String("method", req.Method),
			slog.String("reason", decision.Reason),
		)
	}

	writeDecision(w, decision)
}

// writeDecision は判定結果を200で書き込む。許可時のreasonはnull。
func writeDecision(w http.ResponseWriter, decision collab.Decision) {
	body := webhookResponse{Allowed: decision.Allowed}
	if decision.Reason != "" {
		body.Reason = &decision.Reason
	}
	writeJSON(w, http.StatusOK, body)
}

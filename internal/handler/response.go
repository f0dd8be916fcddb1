// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nsnotes/noteauth/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError はサービス層のエラーをHTTPレスポンスへマッピングする。
// model.APIErrorはそのコードとステータスで応答する。
// それ以外のエラーはコラボレーター（DB・キャッシュ）の一時障害の伝搬であり、
// 詳細はログにのみ記録し503で応答する。自動リトライはしない。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if apiErr := model.AsAPIError(err); apiErr != nil {
		writeJSON(w, apiErr.Status, ErrorResponseBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		})
		return
	}

	slog.Error("upstream failure",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
	upstream := model.NewUpstreamUnavailableError()
	writeJSON(w, upstream.Status, ErrorResponseBody{
		Code:    upstream.Code,
		Message: upstream.Message,
	})
}

// writeBadRequest はリクエストボディ不正時の400レスポンスを書き込む。
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponseBody{
		Code:    "BAD_REQUEST",
		Message: message,
	})
}

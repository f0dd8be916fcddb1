package model

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError は統一エラーフォーマットを表す。
// エラーコードとHTTPステータスを持ち、ハンドラーでのステータスマッピングに使う。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Status   int    // HTTPステータスコード
	Category string // カテゴリ: auth, authorization, upstream, validation, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodePermissionAlreadyExists     = "PERMISSION_ALREADY_EXISTS"
	ErrCodePermissionNotFound          = "PERMISSION_NOT_FOUND"
	ErrCodePermissionOwnerOnly         = "PERMISSION_OWNER_ONLY"
	ErrCodePermissionCannotChangeOwner = "PERMISSION_CANNOT_CHANGE_OWNER"
	ErrCodeRefreshTokenNotFound        = "REFRESH_TOKEN_NOT_FOUND"
	ErrCodeRefreshTokenMismatch        = "REFRESH_TOKEN_MISMATCH"
	ErrCodeRefreshTokenExpired         = "REFRESH_TOKEN_EXPIRED"
	ErrCodeUserNotFound                = "USER_NOT_FOUND"
	ErrCodeUpstreamUnavailable         = "UPSTREAM_UNAVAILABLE"
)

// 権限管理のエラー定義。
var (
	// ErrPermissionAlreadyExists は同一のアクティブな権限レコードが既に存在する場合のエラー。
	ErrPermissionAlreadyExists = &APIError{
		Code:     ErrCodePermissionAlreadyExists,
		Message:  "同じ権限が既に登録されています。",
		Status:   http.StatusConflict,
		Category: "authorization",
	}

	// ErrPermissionNotFound は対象の権限レコードが見つからない場合のエラー。
	ErrPermissionNotFound = &APIError{
		Code:     ErrCodePermissionNotFound,
		Message:  "対象の権限が見つかりません。",
		Status:   http.StatusNotFound,
		Category: "authorization",
	}

	// ErrPermissionOwnerOnly はノートのOWNER以外が権限操作を試みた場合のエラー。
	ErrPermissionOwnerOnly = &APIError{
		Code:     ErrCodePermissionOwnerOnly,
		Message:  "ノートの所有者のみが実行できる操作です。",
		Status:   http.StatusForbidden,
		Category: "authorization",
	}

	// ErrPermissionCannotChangeOwner はOWNERロールをgrant/revokeで変更しようとした場合のエラー。
	ErrPermissionCannotChangeOwner = &APIError{
		Code:     ErrCodePermissionCannotChangeOwner,
		Message:  "OWNERロールは付与・剥奪の対象にできません。",
		Status:   http.StatusForbidden,
		Category: "authorization",
	}
)

// セッション・ユーザー関連のエラー定義。
var (
	// ErrRefreshTokenNotFound は保存されたリフレッシュセッションが存在しない場合のエラー。
	ErrRefreshTokenNotFound = &APIError{
		Code:     ErrCodeRefreshTokenNotFound,
		Message:  "リフレッシュトークンが見つかりません。",
		Status:   http.StatusNotFound,
		Category: "auth",
	}

	// ErrRefreshTokenMismatch は提示されたトークンが保存値と一致しない場合のエラー。
	ErrRefreshTokenMismatch = &APIError{
		Code:     ErrCodeRefreshTokenMismatch,
		Message:  "リフレッシュトークンが一致しません。",
		Status:   http.StatusUnauthorized,
		Category: "auth",
	}

	// ErrRefreshTokenExpired はリフレッシュトークンが期限切れまたは無効な場合のエラー。
	ErrRefreshTokenExpired = &APIError{
		Code:     ErrCodeRefreshTokenExpired,
		Message:  "リフレッシュトークンが無効または期限切れです。",
		Status:   http.StatusUnauthorized,
		Category: "auth",
	}

	// ErrUserNotFound はユーザーが見つからない場合のエラー。
	ErrUserNotFound = &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "該当するユーザーが見つかりません。",
		Status:   http.StatusNotFound,
		Category: "auth",
	}
)

// NewUpstreamUnavailableError は外部コラボレーター（DB・キャッシュ等）の
// 一時障害を表すエラーを生成する。障害元の詳細はログ側に残し、
// レスポンスには含めない。自動リトライはしない。
func NewUpstreamUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  "外部サービスが利用できません。しばらく待ってから再度お試しください。",
		Status:   http.StatusServiceUnavailable,
		Category: "upstream",
	}
}

// AsAPIError はエラーチェーンから*APIErrorを取り出す。見つからない場合はnilを返す。
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

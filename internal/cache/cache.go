// Package cache はキャッシュストアのインターフェースとRedis実装を提供する。
//
// 権限キャッシュは耐久ストア（PostgreSQL）から導出される結果整合な射影であり、
// 真実の源は常に耐久ストア側にある。キャッシュの欠落・乖離は一時的なものとして
// 扱い、オーナーチェック時のread-repairで自己修復する。
package cache

import (
	"context"
	"time"

	"github.com/nsnotes/noteauth/internal/model"
)

// PermissionCache はノート権限の低レイテンシ参照用キャッシュのインターフェース。
type PermissionCache interface {
	// Owner はノートのオーナーIDを返す。エントリが存在しない場合は空文字列を返す。
	Owner(ctx context.Context, noteID string) (string, error)

	// SetOwner はノートのオーナーエントリを書き込む。
	// 耐久ストアへの書き込みが成功した後にのみ呼ぶこと。
	SetOwner(ctx context.Context, noteID, userID string) error

	// AddRoleMember はWRITERまたはREADERのロールセットにユーザーを追加する。
	AddRoleMember(ctx context.Context, noteID string, role model.Role, userID string) error

	// RemoveRoleMember はロールセットからユーザーを除去する。
	RemoveRoleMember(ctx context.Context, noteID string, role model.Role, userID string) error

	// IsRoleMember はユーザーがロールセットに含まれるかを返す。
	IsRoleMember(ctx context.Context, noteID string, role model.Role, userID string) (bool, error)
}

// RefreshSessionStore はユーザーごとのリフレッシュセッションのインターフェース。
// ユーザーにつきライブセッションは最大1つ。再ログインは上書き、ログアウトは削除。
type RefreshSessionStore interface {
	// Save はリフレッシュトークンをTTL付きで保存する。既存の値は上書きされる。
	Save(ctx context.Context, userID, refreshToken string, ttl time.Duration) error

	// Find は保存されたリフレッシュトークンを返す。存在しない場合は空文字列を返す。
	Find(ctx context.Context, userID string) (string, error)

	// Delete はリフレッシュセッションを削除する。存在しない場合も成功とする。
	Delete(ctx context.Context, userID string) error
}

// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/nsnotes/noteauth/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error
}

// PermissionRepository はノート権限レコードの永続化インターフェース。
// レコードの削除はソフトデリートのみで、物理削除は行わない。
type PermissionRepository interface {
	// Create は権限レコードを作成する。
	// アクティブなレコードの一意制約（OWNERはノートごとに1件、
	// (note, user, role)の組は1件）に違反した場合は
	// model.ErrPermissionAlreadyExistsを返す。
	Create(ctx context.Context, permission *model.Permission) error

	// ExistsActive はアクティブな(note, user, role)レコードの存在を返す。
	ExistsActive(ctx context.Context, noteID, userID string, role model.Role) (bool, error)

	// FindActive はアクティブな(note, user, role)レコードを取得する。
	// 見つからない場合はnilを返す。
	FindActive(ctx context.Context, noteID, userID string, role model.Role) (*model.Permission, error)

	// SoftDelete は指定IDのレコードをソフトデリートする。
	SoftDelete(ctx context.Context, id string) error

	// FindActiveRole は(note, user)のアクティブなロールを返す。
	// 複数ある場合はOWNER > WRITER > READERの優先順で返す。
	// 見つからない場合は空文字列を返す。
	FindActiveRole(ctx context.Context, noteID, userID string) (model.Role, error)
}

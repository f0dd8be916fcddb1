package model

import "time"

// Role はノートに対する権限ロールを表す。
type Role string

const (
	// RoleOwner はノートの所有者。ノートごとに必ず1人だけ存在する。
	RoleOwner Role = "OWNER"
	// RoleWriter は読み書き権限を持つ共有相手。
	RoleWriter Role = "WRITER"
	// RoleReader は読み取り専用の共有相手。
	RoleReader Role = "READER"
)

// ParseRole は文字列をRoleに変換する。未知の値の場合はfalseを返す。
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleOwner, RoleWriter, RoleReader:
		return Role(s), true
	}
	return "", false
}

// Permission はノートに対する権限レコードを表す。
// 削除はソフトデリート（DeletedAtのセット）のみで、物理削除は行わない。
// アクティブなレコードについて、(NoteID) ごとにOWNERは最大1件、
// (NoteID, UserID, Role) の組は最大1件という一意性をDB制約で保証する。
type Permission struct {
	ID        string
	NoteID    string
	UserID    string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

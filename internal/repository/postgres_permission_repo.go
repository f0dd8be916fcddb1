package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/nsnotes/noteauth/internal/model"
)

// PostgresPermissionRepo はPostgreSQLを使用した権限リポジトリ。
//
// アクティブなレコードの一意性は部分ユニークインデックスで保証する:
//   - (note_id) WHERE role = 'OWNER' AND deleted_at IS NULL
//   - (note_id, user_id, role) WHERE deleted_at IS NULL
//
// 並行するgrant/registerは同インデックスで直列化され、敗者にはエラーが返る。
type PostgresPermissionRepo struct {
	db *sql.DB
}

// NewPostgresPermissionRepo はPostgresPermissionRepoを生成する。
func NewPostgresPermissionRepo(db *sql.DB) *PostgresPermissionRepo {
	return &PostgresPermissionRepo{db: db}
}

// Create は権限レコードを作成する。
// 一意制約違反はmodel.ErrPermissionAlreadyExistsへ変換して返す。
func (r *PostgresPermissionRepo) Create(ctx context.Context, permission *model.Permission) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO permissions (id, note_id, user_id, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		permission.ID, permission.NoteID, permission.UserID, permission.Role,
		permission.CreatedAt, permission.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrPermissionAlreadyExists
		}
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

// ExistsActive はアクティブな(note, user, role)レコードの存在を返す。
func (r *PostgresPermissionRepo) ExistsActive(ctx context.Context, noteID, userID string, role model.Role) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM permissions
		   WHERE note_id = $1 AND user_id = $2 AND role = $3 AND deleted_at IS NULL
		 )`,
		noteID, userID, role,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check permission existence: %w", err)
	}
	return exists, nil
}

// FindActive はアクティブな(note, user, role)レコードを取得する。
// 見つからない場合はnilを返す。
func (r *PostgresPermissionRepo) FindActive(ctx context.Context, noteID, userID string, role model.Role) (*model.Permission, error) {
	permission := &model.Permission{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, note_id, user_id, role, created_at, updated_at
		 FROM permissions
		 WHERE note_id = $1 AND user_id = $2 AND role = $3 AND deleted_at IS NULL`,
		noteID, userID, role,
	).Scan(&permission.ID, &permission.NoteID, &permission.UserID, &permission.Role,
		&permission.CreatedAt, &permission.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find permission: %w", err)
	}

	return permission, nil
}

// SoftDelete は指定IDのレコードをソフトデリートする。
func (r *PostgresPermissionRepo) SoftDelete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE permissions SET deleted_at = now(), updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to soft-delete permission: %w", err)
	}
	return nil
}

// FindActiveRole は(note, user)のアクティブなロールをOWNER > WRITER > READERの
// 優先順で返す。見つからない場合は空文字列を返す。
func (r *PostgresPermissionRepo) FindActiveRole(ctx context.Context, noteID, userID string) (model.Role, error) {
	var role model.Role
	err := r.db.QueryRowContext(ctx,
		`SELECT role FROM permissions
		 WHERE note_id = $1 AND user_id = $2 AND deleted_at IS NULL
		 ORDER BY CASE role WHEN 'OWNER' THEN 0 WHEN 'WRITER' THEN 1 ELSE 2 END
		 LIMIT 1`,
		noteID, userID,
	).Scan(&role)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find active role: %w", err)
	}

	return role, nil
}

// isUniqueViolation はPostgreSQLの一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation"
}

// compile-time interface check
var _ PermissionRepository = (*PostgresPermissionRepo)(nil)

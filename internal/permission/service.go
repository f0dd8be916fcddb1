// Package permission はノート権限の登録・付与・剥奪・参照を提供する。
//
// 耐久ストア（PostgreSQL）が真実の源であり、Redisキャッシュはその射影。
// 書き込みは常に「耐久ストア → キャッシュ」の順で行い、途中でクラッシュしても
// キャッシュが耐久ストアより先行することはない。キャッシュの欠落は
// オーナーチェック時のread-repairで自己修復される。
package permission

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsnotes/noteauth/internal/cache"
	"github.com/nsnotes/noteauth/internal/model"
	"github.com/nsnotes/noteauth/internal/repository"
)

// Service はノート権限に関するビジネスロジックを提供する。
type Service struct {
	repo  repository.PermissionRepository
	cache cache.PermissionCache
}

// NewService はServiceを生成する。
func NewService(repo repository.PermissionRepository, permCache cache.PermissionCache) *Service {
	return &Service{
		repo:  repo,
		cache: permCache,
	}
}

// RegisterOwner は新規ノートの唯一のOWNERレコードを作成する。
// 既にOWNERが存在する場合はmodel.ErrPermissionAlreadyExistsを返す
// （一意制約違反はクラッシュではなくこのエラーとして表面化する）。
func (s *Service) RegisterOwner(ctx context.Context, noteID, userID string) error {
	now := time.Now()
	record := &model.Permission{
		ID:        uuid.New().String(),
		NoteID:    noteID,
		UserID:    userID,
		Role:      model.RoleOwner,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// 耐久ストアへの書き込みが先。成功後にのみキャッシュへ反映する。
	if err := s.repo.Create(ctx, record); err != nil {
		return err
	}

	if err := s.cache.SetOwner(ctx, noteID, userID); err != nil {
		return err
	}

	slog.Info("note owner registered",
		slog.String("note_id", noteID),
		slog.String("user_id", userID),
	)
	return nil
}

// Grant はノートのOWNERがtargetUserへWRITERまたはREADERロールを付与する。
// OWNERロールの付与は拒否する。同一のアクティブなレコードが既に存在する場合は
// model.ErrPermissionAlreadyExistsを返す。
func (s *Service) Grant(ctx context.Context, noteID, targetUserID string, role model.Role, requesterID string) error {
	if err := s.EnsureOwner(ctx, noteID, requesterID); err != nil {
		return err
	}

	if role == model.RoleOwner {
		return model.ErrPermissionCannotChangeOwner
	}

	exists, err := s.repo.ExistsActive(ctx, noteID, targetUserID, role)
	if err != nil {
		return err
	}
	if exists {
		return model.ErrPermissionAlreadyExists
	}

	now := time.Now()
	record := &model.Permission{
		ID:        uuid.New().String(),
		NoteID:    noteID,
		UserID:    targetUserID,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// 並行するgrantとの競合はDBの一意制約で直列化される。敗者はAlreadyExists。
	if err := s.repo.Create(ctx, record); err != nil {
		return err
	}

	if err := s.cache.AddRoleMember(ctx, noteID, role, targetUserID); err != nil {
		return err
	}

	slog.Info("permission granted",
		slog.String("note_id", noteID),
		slog.String("target_user_id", targetUserID),
		slog.String("role", string(role)),
		slog.String("requester_id", requesterID),
	)
	return nil
}

// Revoke はノートのOWNERがtargetUserのWRITERまたはREADERロールを剥奪する。
// OWNERロールの剥奪は拒否する。対象のアクティブなレコードが存在しない場合は
// model.ErrPermissionNotFoundを返す。
func (s *Service) Revoke(ctx context.Context, noteID, targetUserID string, role model.Role, requesterID string) error {
	if err := s.EnsureOwner(ctx, noteID, requesterID); err != nil {
		return err
	}

	if role == model.RoleOwner {
		return model.ErrPermissionCannotChangeOwner
	}

	record, err := s.repo.FindActive(ctx, noteID, targetUserID, role)
	if err != nil {
		return err
	}
	if record == nil {
		return model.ErrPermissionNotFound
	}

	if err := s.repo.SoftDelete(ctx, record.ID); err != nil {
		return err
	}

	if err := s.cache.RemoveRoleMember(ctx, noteID, role, targetUserID); err != nil {
		return err
	}

	slog.Info("permission revoked",
		slog.String("note_id", noteID),
		slog.String("target_user_id", targetUserID),
		slog.String("role", string(role)),
		slog.String("requester_id", requesterID),
	)
	return nil
}

// RoleOf はユーザーがノートに対して持つロールを返す。ロールなしは空文字列。
// キャッシュのロールセット（WRITER/READER）→ オーナーエントリの順に参照し、
// 全てミスした場合のみ耐久ストアへフォールバックする。
func (s *Service) RoleOf(ctx context.Context, noteID, userID string) (model.Role, error) {
	isWriter, err := s.cache.IsRoleMember(ctx, noteID, model.RoleWriter, userID)
	if err != nil {
		return "", err
	}
	if isWriter {
		return model.RoleWriter, nil
	}

	isReader, err := s.cache.IsRoleMember(ctx, noteID, model.RoleReader, userID)
	if err != nil {
		return "", err
	}
	if isReader {
		return model.RoleReader, nil
	}

	owner, err := s.cache.Owner(ctx, noteID)
	if err != nil {
		return "", err
	}
	if owner == userID && owner != "" {
		return model.RoleOwner, nil
	}

	// キャッシュ全ミス。耐久ストアを参照する。
	return s.repo.FindActiveRole(ctx, noteID, userID)
}

// EnsureOwner はrequesterがノートのOWNERであることを検証する。
// cache-aside + read-repair:
//  1. オーナーキャッシュを参照。ヒット時は一致すれば通過、不一致は即Forbidden。
//  2. キャッシュミス時は耐久ストアでアクティブなOWNERレコードを確認。
//     不在はForbidden。存在すれば通過し、オーナーエントリをキャッシュへ
//     書き戻してから返る（自己修復）。
//
// この書き戻しにより、別個の照合ジョブなしでキャッシュは耐久状態に収束する。
func (s *Service) EnsureOwner(ctx context.Context, noteID, requesterID string) error {
	owner, err := s.cache.Owner(ctx, noteID)
	if err != nil {
		return err
	}
	if owner != "" {
		if owner != requesterID {
			return model.ErrPermissionOwnerOnly
		}
		return nil
	}

	isOwner, err := s.repo.ExistsActive(ctx, noteID, requesterID, model.RoleOwner)
	if err != nil {
		return err
	}
	if !isOwner {
		return model.ErrPermissionOwnerOnly
	}

	// read-repair: 耐久ストアにあった情報をキャッシュへ書き戻す
	if err := s.cache.SetOwner(ctx, noteID, requesterID); err != nil {
		return err
	}

	return nil
}

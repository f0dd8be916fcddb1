// Package user はログイン・トークンリフレッシュ・ログアウトのビジネスロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nsnotes/noteauth/internal/cache"
	"github.com/nsnotes/noteauth/internal/model"
	"github.com/nsnotes/noteauth/internal/repository"
	"github.com/nsnotes/noteauth/internal/token"
)

// VerifiedIdentity は外部IdPで検証済みのユーザー情報を表す。
type VerifiedIdentity struct {
	Sub      string // 外部プロバイダーのsubject。ユーザーIDとしてそのまま使う。
	Email    string
	Name     string
	Provider string // "GOOGLE" 等
}

// IdentityVerifier は外部IdPによる本人確認のインターフェース。
// 認可コード交換・IDトークン検証の実体は外部コラボレーターであり、
// 本サービスは検証済みの結果のみを受け取る。
type IdentityVerifier interface {
	// Verify は認可コードを検証し、検証済みユーザー情報を返す。
	Verify(ctx context.Context, code string) (*VerifiedIdentity, error)
}

// AuthTokens はログインで発行されるトークンの組。
type AuthTokens struct {
	AccessToken  string
	RefreshToken string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	sessions cache.RefreshSessionStore
	tokens   *token.Provider
	verifier IdentityVerifier
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessions cache.RefreshSessionStore,
	tokens *token.Provider,
	verifier IdentityVerifier,
) *Service {
	return &Service{
		userRepo: userRepo,
		sessions: sessions,
		tokens:   tokens,
		verifier: verifier,
	}
}

// Login は外部IdPでの本人確認を経てアクセス/リフレッシュトークンを発行する。
// 未登録ユーザーの場合はユーザーレコードを自動作成する。
// リフレッシュセッションはユーザーごとに1つで、再ログインは前回分を上書きする。
func (s *Service) Login(ctx context.Context, code string) (*AuthTokens, error) {
	identity, err := s.verifier.Verify(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to verify identity: %w", err)
	}

	user, err := s.userRepo.FindByID(ctx, identity.Sub)
	if err != nil {
		return nil, err
	}

	if user == nil {
		now := time.Now()
		user = &model.User{
			ID:        identity.Sub,
			Email:     identity.Email,
			Name:      identity.Name,
			Role:      "USER",
			Provider:  identity.Provider,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, err
		}
		slog.Info("new user created",
			slog.String("user_id", user.ID),
			slog.String("provider", user.Provider),
		)
	}

	accessToken, err := s.tokens.IssueAccess(user.ID, user.Email, user.Name, user.Role)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Save(ctx, user.ID, refreshToken, s.tokens.RefreshExpiry()); err != nil {
		return nil, err
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))

	return &AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Refresh は保存済みリフレッシュセッションを検証し、新しいアクセストークンを発行する。
// リフレッシュトークン自体は再発行しない。
//
// 新しいアクセストークンのクレーム（email/name/role）はユーザーレコードから
// 再構成する。リフレッシュトークンはsubとtypeしか持たないため、
// トークンのクレームから読み出してはならない。
func (s *Service) Refresh(ctx context.Context, userID, presentedToken string) (string, error) {
	saved, err := s.sessions.Find(ctx, userID)
	if err != nil {
		return "", err
	}
	if saved == "" {
		return "", model.ErrRefreshTokenNotFound
	}
	if saved != presentedToken {
		return "", model.ErrRefreshTokenMismatch
	}

	claims, err := s.tokens.Validate(presentedToken)
	if err != nil {
		return "", model.ErrRefreshTokenExpired
	}
	if claims.Type != token.TypeRefresh {
		return "", model.ErrRefreshTokenExpired
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", model.ErrUserNotFound
	}

	newAccessToken, err := s.tokens.IssueAccess(user.ID, user.Email, user.Name, user.Role)
	if err != nil {
		return "", err
	}

	return newAccessToken, nil
}

// Logout はリフレッシュセッションを削除する。冪等で、未ログイン状態でも成功する。
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.sessions.Delete(ctx, userID); err != nil {
		return err
	}
	slog.Info("user logged out", slog.String("user_id", userID))
	return nil
}

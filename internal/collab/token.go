// Package collab はリアルタイム共同編集サーバー向けのケイパビリティトークンの
// 発行と、同サーバーからの認可webhookの判定を提供する。
package collab

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nsnotes/noteauth/internal/model"
)

// ドキュメントに対するアクセス動詞。
const (
	// VerbRead は読み取り専用アクセスを示す。
	VerbRead = "r"
	// VerbReadWrite は読み書きアクセスを示す。
	VerbReadWrite = "rw"
)

// TokenScope はコラボトークンのscopeクレームに入る固定タグ。
const TokenScope = "collab"

// コラボトークン検証失敗の種別。
var (
	// ErrTokenExpired はコラボトークンの有効期限切れを示す。
	ErrTokenExpired = errors.New("collab token expired")
	// ErrTokenInvalid は署名不正・形式破損などそれ以外の検証失敗を示す。
	ErrTokenInvalid = errors.New("invalid collab token")
)

// TokenClaims はコラボトークンのクレームを表す。
// subにはユーザーIDを格納する。セッショントークンとは別の鍵で署名され、
// 失効機構を持たない短命のケイパビリティとして扱う。
type TokenClaims struct {
	NoteID string `json:"noteId"`
	Role   string `json:"role"`
	Verb   string `json:"verb"`
	Scope  string `json:"scope"`
	jwt.RegisteredClaims
}

// TokenProvider はコラボトークンのHS256署名・検証を行う。
type TokenProvider struct {
	key []byte
}

// NewTokenProvider はTokenProviderを生成する。
func NewTokenProvider(secret string) *TokenProvider {
	return &TokenProvider{key: []byte(secret)}
}

// Generate はノートに対するケイパビリティを表すコラボトークンを発行する。
func (p *TokenProvider) Generate(userID, noteID string, role model.Role, verb string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &TokenClaims{
		NoteID: noteID,
		Role:   string(role),
		Verb:   verb,
		Scope:  TokenScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign collab token: %w", err)
	}
	return signed, nil
}

// Validate はコラボトークンの署名と有効期限を検証し、クレームを返す。
// 期限切れはErrTokenExpired、それ以外の検証失敗はErrTokenInvalidを返す。
func (p *TokenProvider) Validate(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return p.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

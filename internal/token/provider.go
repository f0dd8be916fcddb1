// Package token はセッショントークン（アクセス/リフレッシュ）の発行と検証を提供する。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// トークン種別。
const (
	// TypeAccess はアクセストークンを示す。
	TypeAccess = "access"
	// TypeRefresh はリフレッシュトークンを示す。
	TypeRefresh = "refresh"
)

// 検証失敗の種別。呼び出し元はerrors.Isで判別し、HTTPステータスにマッピングする。
var (
	// ErrExpired はトークンの有効期限切れを示す。
	ErrExpired = errors.New("token expired")
	// ErrInvalidSignature は署名検証の失敗を示す。
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrMalformed はトークン形式の破損を示す。
	ErrMalformed = errors.New("malformed token")
	// ErrUnsupported はサポート外のトークン（署名アルゴリズム不一致等）を示す。
	ErrUnsupported = errors.New("unsupported token")
	// ErrEmptyClaims はトークン文字列またはクレームが空であることを示す。
	ErrEmptyClaims = errors.New("empty token claims")
)

// Claims はセッショントークンのクレームを表す。
// subにはユーザーID（外部プロバイダーのsubject）を格納する。
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

// Config はトークンプロバイダーの設定。
type Config struct {
	Secret           string // HS256署名鍵
	AccessExpMinutes int    // アクセストークンの有効期間（分）
	RefreshExpDays   int    // リフレッシュトークンの有効期間（日）
}

// Provider はHS256署名のセッショントークンを発行・検証する。
type Provider struct {
	key        []byte
	accessExp  time.Duration
	refreshExp time.Duration
}

// NewProvider はProviderを生成する。
func NewProvider(config Config) *Provider {
	return &Provider{
		key:        []byte(config.Secret),
		accessExp:  time.Duration(config.AccessExpMinutes) * time.Minute,
		refreshExp: time.Duration(config.RefreshExpDays) * 24 * time.Hour,
	}
}

// RefreshExpiry はリフレッシュトークンの有効期間を返す。
// リフレッシュセッションのTTLとして使う。
func (p *Provider) RefreshExpiry() time.Duration {
	return p.refreshExp
}

// IssueAccess はアクセストークンを発行する。
func (p *Provider) IssueAccess(userID, email, name, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: email,
		Name:  name,
		Role:  role,
		Type:  TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.accessExp)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefresh はリフレッシュトークンを発行する。
// リフレッシュトークンはsubとtypeのみを持ち、email/name/roleは含まない。
func (p *Provider) IssueRefresh(userID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Type: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.refreshExp)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, nil
}

// Validate はトークンの署名と有効期限を検証し、クレームを返す。
// 失敗時はErrExpired、ErrInvalidSignature、ErrMalformed、ErrUnsupported、
// ErrEmptyClaimsのいずれかを返す。
func (p *Provider) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrEmptyClaims
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return p.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, classifyJWTError(err)
	}

	if claims.Subject == "" && claims.Type == "" {
		return nil, ErrEmptyClaims
	}

	return claims, nil
}

// classifyJWTError はjwtライブラリのエラーを検証失敗の種別に分類する。
func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrUnsupported
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return ErrMalformed
	}
}

package collab

import (
	"context"
	"log/slog"
	"time"

	"github.com/nsnotes/noteauth/internal/model"
)

// documentKeyPrefix は共同編集サーバー上のドキュメントキーの固定プレフィックス。
// ノートID "123" のドキュメントキーは "note-123"。
const documentKeyPrefix = "note-"

// DocumentKey はノートIDから共同編集サーバー上のドキュメントキーを構成する。
func DocumentKey(noteID string) string {
	return documentKeyPrefix + noteID
}

// ParseDocumentKey はドキュメントキーからノートIDを取り出す。
// プレフィックス不一致の場合は空文字列を返す。
func ParseDocumentKey(key string) string {
	if len(key) <= len(documentKeyPrefix) || key[:len(documentKeyPrefix)] != documentKeyPrefix {
		return ""
	}
	return key[len(documentKeyPrefix):]
}

// RoleResolver はノートに対するユーザーの実ロールを解決するインターフェース。
// permission.Serviceの部分集合として定義する。
type RoleResolver interface {
	RoleOf(ctx context.Context, noteID, userID string) (model.Role, error)
}

// IssuerConfig はコラボトークン発行の設定。
type IssuerConfig struct {
	TTL time.Duration // トークンの有効期間。デフォルト600秒。
}

// IssueResult はコラボトークン発行の結果。
// トークンに加えて、共同編集サーバーに渡すドキュメントキーと動詞を返す。
type IssueResult struct {
	Token       string
	TTLSeconds  int
	DocumentKey string
	Verb        string
}

// Issuer は権限ストアを参照してコラボトークンを発行する。
type Issuer struct {
	permissions RoleResolver
	tokens      *TokenProvider
	config      IssuerConfig
}

// NewIssuer はIssuerを生成する。
func NewIssuer(permissions RoleResolver, tokens *TokenProvider, config IssuerConfig) *Issuer {
	return &Issuer{
		permissions: permissions,
		tokens:      tokens,
		config:      config,
	}
}

// Issue はrequesterのノートに対する実ロールを解決し、対応する動詞を持つ
// コラボトークンを発行する。ロールを持たない場合は
// model.ErrPermissionNotFoundを返す。
// ロール解決は必ず権限ストアに対して行う。ロールの仮定・固定はしない。
func (i *Issuer) Issue(ctx context.Context, noteID, requesterID string) (*IssueResult, error) {
	role, err := i.permissions.RoleOf(ctx, noteID, requesterID)
	if err != nil {
		return nil, err
	}
	if role == "" {
		return nil, model.ErrPermissionNotFound
	}

	verb := verbForRole(role)

	tokenString, err := i.tokens.Generate(requesterID, noteID, role, verb, i.config.TTL)
	if err != nil {
		return nil, err
	}

	slog.Info("collab token issued",
		slog.String("note_id", noteID),
		slog.String("user_id", requesterID),
		slog.String("role", string(role)),
		slog.String("verb", verb),
	)

	return &IssueResult{
		Token:       tokenString,
		TTLSeconds:  int(i.config.TTL / time.Second),
		DocumentKey: DocumentKey(noteID),
		Verb:        verb,
	}, nil
}

// verbForRole はロールをアクセス動詞にマッピングする。
func verbForRole(role model.Role) string {
	switch role {
	case model.RoleOwner, model.RoleWriter:
		return VerbReadWrite
	case model.RoleReader:
		return VerbRead
	default:
		return VerbRead
	}
}

package collab

import (
	"log/slog"
)

// 共同編集サーバーのwebhookが問い合わせるメソッド。
const (
	// MethodActivateClient はクライアント登録。ドキュメント接続に先行するため
	// ドキュメント属性を持たず、無条件に許可される。
	MethodActivateClient = "ActivateClient"
	// MethodAttachDocument はドキュメントへの接続。
	MethodAttachDocument = "AttachDocument"
	// MethodWatchDocuments はドキュメント変更の購読。
	MethodWatchDocuments = "WatchDocuments"
	// MethodPushPull は変更の送受信。書き込み権限（rw）が必要。
	MethodPushPull = "PushPull"
)

// 拒否理由。許可時のreasonは常に空。
const (
	ReasonSecretMismatch    = "SECRET_MISMATCH"
	ReasonInvalidAttributes = "INVALID_ATTRIBUTES"
	ReasonInvalidNoteOrVerb = "INVALID_NOTE_OR_VERB"
	ReasonTokenExpired      = "TOKEN_EXPIRED"
	ReasonTokenInvalid      = "TOKEN_INVALID"
	ReasonNoteIDMismatch    = "NOTE_ID_MISMATCH"
	ReasonVerbMismatch      = "VERB_MISMATCH"
	ReasonReadOnly          = "READ_ONLY"
	ReasonMethodNotAllowed  = "METHOD_NOT_ALLOWED"
)

// DocumentAttribute はwebhookリクエスト中のドキュメント属性を表す。
type DocumentAttribute struct {
	Key  string `json:"key"`
	Verb string `json:"verb"`
}

// WebhookRequest は共同編集サーバーからの認可webhookのリクエストボディ。
type WebhookRequest struct {
	Token      string              `json:"token"`
	Method     string              `json:"method"`
	Attributes []DocumentAttribute `json:"attributes"`
}

// Decision は認可webhookの判定結果。
// Reasonは拒否時に必ず設定され、許可時は常に空。
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// AuthorizerConfig は認可webhookの設定。
type AuthorizerConfig struct {
	// WebhookSecret は共同編集サーバーとの共有シークレット。
	// 空の場合はシークレット検証をスキップする。
	WebhookSecret string
}

// Authorizer は共同編集サーバーからのwebhook呼び出しを、提示された
// コラボトークンとメソッドごとのポリシーに対して検証する。
type Authorizer struct {
	tokens *TokenProvider
	config AuthorizerConfig
}

// NewAuthorizer はAuthorizerを生成する。
func NewAuthorizer(tokens *TokenProvider, config AuthorizerConfig) *Authorizer {
	return &Authorizer{
		tokens: tokens,
		config: config,
	}
}

// Authorize はwebhook呼び出しを厳密な順序で判定する。
// 最初に失敗したステップが拒否理由を決める:
//
//  1. シークレット検証（設定時のみ）
//  2. ActivateClientは無条件許可（ドキュメント属性を持たないため）
//  3. ドキュメント属性の検証（単一・key/verb非空・"note-"プレフィックス）
//  4. コラボトークンの署名・期限・scope検証
//  5. トークンとリクエスト属性の交差検証（noteId一致・動詞カバー）
//  6. メソッドポリシー（PushPullはrwのみ）
//
// ポリシー上の拒否はトランスポートエラーではない。結果は常にDecisionで返り、
// 呼び出し側はHTTP 200で応答する。
func (a *Authorizer) Authorize(headerSecret string, req *WebhookRequest) Decision {
	// 1. シークレット検証
	if a.config.WebhookSecret != "" && headerSecret != a.config.WebhookSecret {
		return deny(ReasonSecretMismatch)
	}

	// 2. ブートストラップはバイパス
	if req.Method == MethodActivateClient {
		return allow()
	}

	// 3. ドキュメント属性の検証
	attr, ok := singleAttribute(req.Attributes)
	if !ok {
		return deny(ReasonInvalidAttributes)
	}

	noteID := ParseDocumentKey(attr.Key)
	if noteID == "" || attr.Verb == "" {
		return deny(ReasonInvalidNoteOrVerb)
	}

	// 4. トークン検証
	claims, err := a.tokens.Validate(req.Token)
	if err != nil {
		if err == ErrTokenExpired {
			return deny(ReasonTokenExpired)
		}
		return deny(ReasonTokenInvalid)
	}

	// scopeクレームがないトークン（セッショントークン等）はコラボ用途に使えない
	if claims.Scope != TokenScope {
		return deny(ReasonTokenInvalid)
	}

	// 5. 交差検証: トークンのクレーム vs リクエスト属性
	if claims.NoteID != noteID {
		slog.Warn("collab webhook note id mismatch",
			slog.String("token_note_id", claims.NoteID),
			slog.String("attr_note_id", noteID),
		)
		return deny(ReasonNoteIDMismatch)
	}
	if !verbCovers(claims.Verb, attr.Verb) {
		return deny(ReasonVerbMismatch)
	}

	// 6. メソッドポリシー
	switch req.Method {
	case MethodAttachDocument, MethodWatchDocuments:
		return allow()
	case MethodPushPull:
		if claims.Verb != VerbReadWrite {
			return deny(ReasonReadOnly)
		}
		return allow()
	default:
		return deny(ReasonMethodNotAllowed)
	}
}

// singleAttribute はドキュメント属性がちょうど1件かつkey/verb非空の場合に
// その属性を返す。
func singleAttribute(attrs []DocumentAttribute) (DocumentAttribute, bool) {
	if len(attrs) != 1 {
		return DocumentAttribute{}, false
	}
	attr := attrs[0]
	if attr.Key == "" || attr.Verb == "" {
		return DocumentAttribute{}, false
	}
	return attr, true
}

// verbCovers はトークンの動詞が要求された動詞をカバーするかを返す。
// "rw" は "r" と "rw" の両方を、"r" は "r" のみをカバーする。
func verbCovers(tokenVerb, requested string) bool {
	switch tokenVerb {
	case VerbReadWrite:
		return requested == VerbRead || requested == VerbReadWrite
	case VerbRead:
		return requested == VerbRead
	default:
		return false
	}
}

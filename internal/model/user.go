// Package model はドメインモデルを定義する。
package model

import "time"

// User は外部IdPで認証されたユーザーを表す。
// IDは外部プロバイダーのsubject（例: Google sub）をそのまま主キーとして使い、
// 初回ログイン時に作成される。IDは不変。
type User struct {
	ID        string
	Email     string
	Name      string
	Role      string // アプリケーションロール（"USER" 等）
	Provider  string // 認証プロバイダー（"GOOGLE" 等）
	CreatedAt time.Time
	UpdatedAt time.Time
}

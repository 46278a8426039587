// Package model はドメインモデルを定義する。
package model

import (
	"time"
	"unicode/utf8"
)

// Identity は認証済みユーザーのプロフィールを表す。
// セッションが有効な間だけ存在し、クライアント側ではSession Managerだけが保持する。
type Identity struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	Name        string         `json:"name"`
	Preferences map[string]any `json:"prefs"`
}

// SessionHandle はデバイスに紐づくサーバー側セッションの不透明なハンドル。
type SessionHandle struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Account はバックエンドに保存されるアカウントを表す。
// PasswordHashはArgon2idでハッシュ化された値で、APIレスポンスには含めない。
type Account struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Preferences  map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity はアカウントからクライアントに公開するIdentityを生成する。
func (a *Account) Identity() *Identity {
	prefs := a.Preferences
	if prefs == nil {
		prefs = map[string]any{}
	}
	return &Identity{
		ID:          a.ID,
		Email:       a.Email,
		Name:        a.Name,
		Preferences: prefs,
	}
}

// Session はアカウントのログインセッションを表す。
type Session struct {
	ID        string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Handle はセッションからクライアント向けハンドルを生成する。
func (s *Session) Handle() *SessionHandle {
	return &SessionHandle{
		ID:        s.ID,
		UserID:    s.AccountID,
		ExpiresAt: s.ExpiresAt,
	}
}

// IsWeakPassword はパスワードが最小文字数に満たないかどうかを判定する。
// 文字数はバイト数ではなくrune数で数える。
func IsWeakPassword(password string) bool {
	return utf8.RuneCountInString(password) < MinPasswordLength
}

package model

import (
	"errors"
	"fmt"
)

// AuthErrorKind は認証エラーの種別を表す。
type AuthErrorKind string

const (
	AuthInvalidCredentials     AuthErrorKind = "invalid_credentials"
	AuthWeakPassword           AuthErrorKind = "weak_password"
	AuthDuplicateEmail         AuthErrorKind = "duplicate_email"
	AuthMissingCurrentPassword AuthErrorKind = "missing_current_password"
	AuthNetworkError           AuthErrorKind = "network_error"
)

// 認証エラー種別ごとの比較用センチネル。
// errors.Is(err, model.ErrWeakPassword) のように使う。
var (
	ErrInvalidCredentials     = &AuthError{Kind: AuthInvalidCredentials}
	ErrWeakPassword           = &AuthError{Kind: AuthWeakPassword}
	ErrDuplicateEmail         = &AuthError{Kind: AuthDuplicateEmail}
	ErrMissingCurrentPassword = &AuthError{Kind: AuthMissingCurrentPassword}
	ErrAuthNetwork            = &AuthError{Kind: AuthNetworkError}
)

// ErrNotAuthenticated はセッションが存在しないか期限切れであることを表す。
// 未ログインと、操作中のスコープ失効の両方をこのエラーで表す。
var ErrNotAuthenticated = errors.New("not authenticated")

// AuthError はログイン・登録・プロフィール更新の失敗を表す。
type AuthError struct {
	Kind AuthErrorKind
	Err  error // 原因となったバックエンドエラー（ローカル検証の場合はnil）
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth error (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("auth error (%s)", e.Kind)
}

// Unwrap は原因エラーを返す。
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is は種別が一致するAuthErrorを同一とみなす。
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewAuthError は原因付きのAuthErrorを生成する。
func NewAuthError(kind AuthErrorKind, cause error) *AuthError {
	return &AuthError{Kind: kind, Err: cause}
}

// RemoteError はバックエンドまたはネットワークの失敗を表す。
// Messageには表示用に元のメッセージを保持する。タイムアウトもこのエラーになる。
type RemoteError struct {
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *RemoteError) Error() string {
	return "remote error: " + e.Message
}

// Unwrap は原因エラーを返す。
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// DataAnomaly はデータ整合性の異常を表す。処理は継続し、ログにのみ記録する。
type DataAnomaly struct {
	Kind    string
	UserID  string
	MovieID int64
	Count   int
}

// 既知の異常種別
const (
	AnomalyDuplicateFavorites  = "duplicate_favorites"
	AnomalyDuplicateSearchTerm = "duplicate_search_term"
)

// Error はerrorインターフェースを実装する。
func (a *DataAnomaly) Error() string {
	return fmt.Sprintf("data anomaly (%s): user=%s movie=%d count=%d", a.Kind, a.UserID, a.MovieID, a.Count)
}

// Package gateway はリモートストア（ドキュメントDB・認証バックエンド）との境界を定義する。
// Session Manager、お気に入りトグル、検索回数集計はこのインターフェースだけに依存する。
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/moviesync/internal/model"
)

// Gateway はリモートストアが提供する操作のインターフェース。
// セッションはデバイス（Gatewayインスタンス）ごとに高々1つ保持される。
// タイムアウトは実装側の責務で、呼び出し側からは Error または任意のerrorとして見える。
type Gateway interface {
	// CreateSession はメールアドレスとパスワードでセッションを作成する。
	CreateSession(ctx context.Context, email, password string) (*model.SessionHandle, error)
	// GetCurrentIdentity は現在のセッションのIdentityを取得する。
	// セッションがない場合は401のErrorを返す。
	GetCurrentIdentity(ctx context.Context) (*model.Identity, error)
	// DeleteCurrentSession は現在のセッションを破棄する。
	DeleteCurrentSession(ctx context.Context) error
	// CreateAccount はアカウントを作成する。セッションは作成しない。
	CreateAccount(ctx context.Context, email, password, name string) error
	// UpdateDisplayName は現在のアカウントの表示名を更新する。
	UpdateDisplayName(ctx context.Context, name string) error
	// UpdatePassword は現在のパスワードを確認したうえでパスワードを更新する。
	UpdatePassword(ctx context.Context, newPassword, currentPassword string) error

	// ListDocuments は述語に一致するドキュメントを述語の並び順で返す。
	ListDocuments(ctx context.Context, collection string, queries ...model.Query) ([]model.Document, error)
	// CreateDocument はドキュメントを作成する。IDはバックエンドが採番する。
	CreateDocument(ctx context.Context, collection string, fields map[string]any) (*model.Document, error)
	// UpdateDocument は指定フィールドだけを上書きする。
	UpdateDocument(ctx context.Context, collection, id string, fields map[string]any) (*model.Document, error)
	// DeleteDocument はドキュメントを削除する。
	DeleteDocument(ctx context.Context, collection, id string) error
}

// Error はリモートストアが返したエラーを表す。
// Typeはバックエンドのエラーコード（例: user_unauthorized）。
type Error struct {
	Status  int
	Type    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Type, e.Status, e.Message)
}

// FromAPIError はバックエンドのAPIErrorとHTTPステータスからErrorを生成する。
func FromAPIError(status int, apiErr *model.APIError) *Error {
	return &Error{Status: status, Type: apiErr.Code, Message: apiErr.Message}
}

// IsConflict は一意キー重複によるエラーかどうかを判定する。
func IsConflict(err error) bool {
	var gwErr *Error
	if !asError(err, &gwErr) {
		return false
	}
	return gwErr.Status == http.StatusConflict || gwErr.Type == model.ErrCodeDocumentAlreadyExists
}

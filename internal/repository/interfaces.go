// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/moviesync/internal/model"
)

// ErrUniqueViolation は一意制約違反（メールアドレス重複、ドキュメントの一意キー重複）を表す。
var ErrUniqueViolation = errors.New("unique constraint violation")

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)
	// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	// Create はアカウントを作成する。メールアドレスが重複する場合は ErrUniqueViolation を返す。
	Create(ctx context.Context, account *model.Account) error
	// UpdateName は表示名を更新する。
	UpdateName(ctx context.Context, id, name string) error
	// UpdatePasswordHash はパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByAccountID は指定アカウントの全セッションを削除する。
	DeleteByAccountID(ctx context.Context, accountID string) error
	// DeleteExpiredBefore は指定日時より前に期限切れになったセッションを削除し、削除件数を返す。
	DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error)
}

// CollectionRepository はコレクション定義の永続化インターフェース。
type CollectionRepository interface {
	// FindByID は指定IDのコレクションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Collection, error)
	// List は全コレクションをID順で返す。
	List(ctx context.Context) ([]model.Collection, error)
}

// DocumentFilter はドキュメント一覧の取得条件。
type DocumentFilter struct {
	CollectionID string
	OwnerID      string // 空の場合は作成者で絞り込まない
	Queries      []model.Query
}

// DocumentRepository はドキュメントデータの永続化インターフェース。
type DocumentRepository interface {
	// List は条件に一致するドキュメントを述語の並び順で返す。
	List(ctx context.Context, filter DocumentFilter) ([]model.Document, error)
	// FindByID は指定IDのドキュメントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, collectionID, id string) (*model.Document, error)
	// Create はドキュメントを作成する。一意キーが重複する場合は ErrUniqueViolation を返す。
	Create(ctx context.Context, doc *model.Document, uniqueKey string) error
	// Update はドキュメントのフィールドと一意キーを置き換える。
	// 一意キーが他のドキュメントと重複する場合は ErrUniqueViolation を返す。
	Update(ctx context.Context, doc *model.Document, uniqueKey string) error
	// Delete は指定IDのドキュメントを削除する。
	Delete(ctx context.Context, collectionID, id string) error
}

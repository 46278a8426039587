// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError はバックエンドAPIの統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, document, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUserUnauthorized      = "user_unauthorized"
	ErrCodeInvalidCredentials    = "user_invalid_credentials"
	ErrCodeUserAlreadyExists     = "user_already_exists"
	ErrCodePasswordTooWeak       = "password_too_weak"
	ErrCodeUserNotFound          = "user_not_found"
	ErrCodeInvalidRequest        = "general_argument_invalid"
	ErrCodeInvalidQuery          = "general_query_invalid"
	ErrCodeCollectionNotFound    = "collection_not_found"
	ErrCodeDocumentNotFound      = "document_not_found"
	ErrCodeDocumentAlreadyExists = "document_already_exists"
	ErrCodeRateLimitExceeded     = "general_rate_limit_exceeded"
	ErrCodeInvalidOrigin         = "general_invalid_origin"
	ErrCodeInternal              = "general_unknown"
)

// NewMissingScopeError はゲストが権限のない操作を行った場合のエラーを生成する。
// メッセージに含まれる "missing scope" をクライアントは未認証として扱う。
func NewMissingScopeError(scope string) *APIError {
	return &APIError{
		Code:     ErrCodeUserUnauthorized,
		Message:  fmt.Sprintf("User (role: guests) missing scope (%s)", scope),
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワードが誤っている場合のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid credentials. Please check the email and password.",
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewUserAlreadyExistsError は登録済みのメールアドレスで登録しようとした場合のエラーを生成する。
func NewUserAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeUserAlreadyExists,
		Message:  "A user with the same email already exists.",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスを使用してください。",
	}
}

// NewPasswordTooWeakError はパスワードが短すぎる場合のエラーを生成する。
func NewPasswordTooWeakError(minLength int) *APIError {
	return &APIError{
		Code:     ErrCodePasswordTooWeak,
		Message:  fmt.Sprintf("Password must be at least %d characters.", minLength),
		Category: "validation",
		Action:   fmt.Sprintf("%d文字以上のパスワードを入力してください。", minLength),
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User with the requested ID could not be found.",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidRequestError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidQueryError はドキュメント検索クエリが不正な場合のエラーを生成する。
func NewInvalidQueryError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuery,
		Message:  fmt.Sprintf("Invalid query: %s", reason),
		Category: "validation",
		Action:   "クエリの属性名と値を確認してください。",
	}
}

// NewCollectionNotFoundError はコレクションが存在しない場合のエラーを生成する。
func NewCollectionNotFoundError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeCollectionNotFound,
		Message:  fmt.Sprintf("Collection with the requested ID could not be found: %s", name),
		Category: "document",
		Action:   "コレクションIDの設定を確認してください。",
	}
}

// NewDocumentNotFoundError はドキュメントが存在しない場合のエラーを生成する。
func NewDocumentNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeDocumentNotFound,
		Message:  fmt.Sprintf("Document with the requested ID could not be found: %s", id),
		Category: "document",
		Action:   "一覧を再読み込みしてください。",
	}
}

// NewDocumentAlreadyExistsError は一意キーが重複するドキュメントを作成しようとした場合のエラーを生成する。
func NewDocumentAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeDocumentAlreadyExists,
		Message:  "Document with the requested unique key already exists.",
		Category: "document",
		Action:   "一覧を再読み込みしてください。",
	}
}

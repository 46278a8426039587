// Package gatewaytest はテスト用の gateway.Gateway モックを提供する。
package gatewaytest

import (
	"context"
	"sync"

	"github.com/hitoshi/moviesync/internal/gateway"
	"github.com/hitoshi/moviesync/internal/model"
)

// Mock は関数フィールドで振る舞いを差し替えられる gateway.Gateway。
// 未設定のメソッドはゼロ値を返す。呼び出し回数はメソッド名ごとに記録する。
type Mock struct {
	CreateSessionFn        func(ctx context.Context, email, password string) (*model.SessionHandle, error)
	GetCurrentIdentityFn   func(ctx context.Context) (*model.Identity, error)
	DeleteCurrentSessionFn func(ctx context.Context) error
	CreateAccountFn        func(ctx context.Context, email, password, name string) error
	UpdateDisplayNameFn    func(ctx context.Context, name string) error
	UpdatePasswordFn       func(ctx context.Context, newPassword, currentPassword string) error
	ListDocumentsFn        func(ctx context.Context, collection string, queries ...model.Query) ([]model.Document, error)
	CreateDocumentFn       func(ctx context.Context, collection string, fields map[string]any) (*model.Document, error)
	UpdateDocumentFn       func(ctx context.Context, collection, id string, fields map[string]any) (*model.Document, error)
	DeleteDocumentFn       func(ctx context.Context, collection, id string) error

	mu    sync.Mutex
	calls map[string]int
}

// Calls はメソッド名ごとの呼び出し回数を返す。
func (m *Mock) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// TotalCalls は全メソッドの呼び出し回数の合計を返す。
func (m *Mock) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

func (m *Mock) CreateSession(ctx context.Context, email, password string) (*model.SessionHandle, error) {
	m.record("CreateSession")
	if m.CreateSessionFn != nil {
		return m.CreateSessionFn(ctx, email, password)
	}
	return &model.SessionHandle{}, nil
}

func (m *Mock) GetCurrentIdentity(ctx context.Context) (*model.Identity, error) {
	m.record("GetCurrentIdentity")
	if m.GetCurrentIdentityFn != nil {
		return m.GetCurrentIdentityFn(ctx)
	}
	return nil, nil
}

func (m *Mock) DeleteCurrentSession(ctx context.Context) error {
	m.record("DeleteCurrentSession")
	if m.DeleteCurrentSessionFn != nil {
		return m.DeleteCurrentSessionFn(ctx)
	}
	return nil
}

func (m *Mock) CreateAccount(ctx context.Context, email, password, name string) error {
	m.record("CreateAccount")
	if m.CreateAccountFn != nil {
		return m.CreateAccountFn(ctx, email, password, name)
	}
	return nil
}

func (m *Mock) UpdateDisplayName(ctx context.Context, name string) error {
	m.record("UpdateDisplayName")
	if m.UpdateDisplayNameFn != nil {
		return m.UpdateDisplayNameFn(ctx, name)
	}
	return nil
}

func (m *Mock) UpdatePassword(ctx context.Context, newPassword, currentPassword string) error {
	m.record("UpdatePassword")
	if m.UpdatePasswordFn != nil {
		return m.UpdatePasswordFn(ctx, newPassword, currentPassword)
	}
	return nil
}

func (m *Mock) ListDocuments(ctx context.Context, collection string, queries ...model.Query) ([]model.Document, error) {
	m.record("ListDocuments")
	if m.ListDocumentsFn != nil {
		return m.ListDocumentsFn(ctx, collection, queries...)
	}
	return nil, nil
}

func (m *Mock) CreateDocument(ctx context.Context, collection string, fields map[string]any) (*model.Document, error) {
	m.record("CreateDocument")
	if m.CreateDocumentFn != nil {
		return m.CreateDocumentFn(ctx, collection, fields)
	}
	return &model.Document{Collection: collection, Fields: fields}, nil
}

func (m *Mock) UpdateDocument(ctx context.Context, collection, id string, fields map[string]any) (*model.Document, error) {
	m.record("UpdateDocument")
	if m.UpdateDocumentFn != nil {
		return m.UpdateDocumentFn(ctx, collection, id, fields)
	}
	return &model.Document{ID: id, Collection: collection, Fields: fields}, nil
}

func (m *Mock) DeleteDocument(ctx context.Context, collection, id string) error {
	m.record("DeleteDocument")
	if m.DeleteDocumentFn != nil {
		return m.DeleteDocumentFn(ctx, collection, id)
	}
	return nil
}

// compile-time interface check
var _ gateway.Gateway = (*Mock)(nil)

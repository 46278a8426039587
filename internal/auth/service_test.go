package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/moviesync/internal/model"
	"github.com/hitoshi/moviesync/internal/repository"
	"github.com/hitoshi/moviesync/internal/security"
)

// --- モック定義 ---

type mockAccountRepo struct {
	findByIDFn           func(ctx context.Context, id string) (*model.Account, error)
	findByEmailFn        func(ctx context.Context, email string) (*model.Account, error)
	createFn             func(ctx context.Context, account *model.Account) error
	updateNameFn         func(ctx context.Context, id, name string) error
	updatePasswordHashFn func(ctx context.Context, id, hash string) error
}

func (m *mockAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockAccountRepo) Create(ctx context.Context, account *model.Account) error {
	if m.createFn != nil {
		return m.createFn(ctx, account)
	}
	return nil
}

func (m *mockAccountRepo) UpdateName(ctx context.Context, id, name string) error {
	if m.updateNameFn != nil {
		return m.updateNameFn(ctx, id, name)
	}
	return nil
}

func (m *mockAccountRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	if m.updatePasswordHashFn != nil {
		return m.updatePasswordHashFn(ctx, id, hash)
	}
	return nil
}

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *model.Session) error
	findByIDFn   func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByAccountID(_ context.Context, _ string) error {
	return nil
}

func (m *mockSessionRepo) DeleteExpiredBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

// --- compile-time interface checks ---
var _ repository.AccountRepository = (*mockAccountRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)

func newTestService(accounts *mockAccountRepo, sessions *mockSessionRepo) *Service {
	return NewService(accounts, sessions, security.NewNameSanitizer(), ServiceConfig{
		SessionMaxAge:  86400,
		PasswordParams: testPasswordParams,
	})
}

func hashedAccount(t *testing.T, id, email, password string) *model.Account {
	t.Helper()
	hash, err := HashPassword(password, testPasswordParams)
	if err != nil {
		t.Fatalf("HashPassword がエラーを返した: %v", err)
	}
	return &model.Account{ID: id, Email: email, Name: "Alice", PasswordHash: hash}
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %q, want %q", apiErr.Code, code)
	}
}

// --- テスト ---

func TestSignup_CreatesAccountWithHashedPassword(t *testing.T) {
	var created *model.Account
	accounts := &mockAccountRepo{
		createFn: func(ctx context.Context, account *model.Account) error {
			created = account
			return nil
		},
	}
	svc := newTestService(accounts, &mockSessionRepo{})

	account, err := svc.Signup(context.Background(), "  Alice@Example.com ", "password123", "<b>Alice</b>")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created == nil {
		t.Fatal("アカウントが保存されていない")
	}
	if account.Email != "alice@example.com" {
		t.Errorf("email = %q, want normalized address", account.Email)
	}
	if account.Name != "Alice" {
		t.Errorf("name = %q, want markup stripped", account.Name)
	}
	if account.PasswordHash == "password123" {
		t.Error("パスワードが平文で保存されている")
	}
	if ok, _ := VerifyPassword("password123", account.PasswordHash); !ok {
		t.Error("保存されたハッシュでパスワードを検証できない")
	}
}

func TestSignup_WeakPassword_NoRepositoryCall(t *testing.T) {
	accounts := &mockAccountRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.Account, error) {
			t.Fatal("弱いパスワードでリポジトリを呼び出してはならない")
			return nil, nil
		},
	}
	svc := newTestService(accounts, &mockSessionRepo{})

	_, err := svc.Signup(context.Background(), "a@example.com", "short", "A")
	assertAPIErrorCode(t, err, model.ErrCodePasswordTooWeak)
}

func TestSignup_DuplicateEmail(t *testing.T) {
	t.Run("既存アカウントがある場合", func(t *testing.T) {
		accounts := &mockAccountRepo{
			findByEmailFn: func(ctx context.Context, email string) (*model.Account, error) {
				return &model.Account{ID: "acc-1", Email: email}, nil
			},
		}
		svc := newTestService(accounts, &mockSessionRepo{})

		_, err := svc.Signup(context.Background(), "a@example.com", "password123", "A")
		assertAPIErrorCode(t, err, model.ErrCodeUserAlreadyExists)
	})

	t.Run("同時登録で一意制約違反になった場合", func(t *testing.T) {
		accounts := &mockAccountRepo{
			createFn: func(ctx context.Context, account *model.Account) error {
				return repository.ErrUniqueViolation
			},
		}
		svc := newTestService(accounts, &mockSessionRepo{})

		_, err := svc.Signup(context.Background(), "a@example.com", "password123", "A")
		assertAPIErrorCode(t, err, model.ErrCodeUserAlreadyExists)
	})
}

func TestLogin_ValidCredentials_CreatesSession(t *testing.T) {
	account := hashedAccount(t, "acc-1", "a@example.com", "password123")
	accounts := &mockAccountRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.Account, error) {
			if email == "a@example.com" {
				return account, nil
			}
			return nil, nil
		},
	}
	var saved *model.Session
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			saved = session
			return nil
		},
	}
	svc := newTestService(accounts, sessions)

	session, err := svc.Login(context.Background(), "A@example.com", "password123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if saved == nil || saved.ID != session.ID {
		t.Fatal("セッションが保存されていない")
	}
	if session.AccountID != "acc-1" {
		t.Errorf("AccountID = %q, want acc-1", session.AccountID)
	}
	if len(session.ID) != 64 {
		t.Errorf("セッションIDは64文字の16進文字列であるべき: got %d", len(session.ID))
	}
	remaining := time.Until(session.ExpiresAt)
	if remaining < 23*time.Hour || remaining > 25*time.Hour {
		t.Errorf("有効期限が SessionMaxAge と一致しない: %v", remaining)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	account := hashedAccount(t, "acc-1", "a@example.com", "password123")
	accounts := &mockAccountRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.Account, error) {
			if email == "a@example.com" {
				return account, nil
			}
			return nil, nil
		},
	}
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			t.Fatal("認証失敗時にセッションを作成してはならない")
			return nil
		},
	}
	svc := newTestService(accounts, sessions)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"パスワード誤り", "a@example.com", "wrong-password"},
		{"未登録のメールアドレス", "nobody@example.com", "password123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.email, tt.password)
			assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)
		})
	}
}

func TestLogout_DeletesSession(t *testing.T) {
	var deletedID string
	sessions := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	svc := newTestService(&mockAccountRepo{}, sessions)

	if err := svc.Logout(context.Background(), "session-123"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if deletedID != "session-123" {
		t.Errorf("deleted session ID = %q, want %q", deletedID, "session-123")
	}
}

func TestLogout_EmptySessionID_ReturnsError(t *testing.T) {
	svc := newTestService(&mockAccountRepo{}, &mockSessionRepo{})

	if err := svc.Logout(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty session ID")
	}
}

func TestGetCurrentAccount(t *testing.T) {
	accounts := &mockAccountRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Account, error) {
			if id == "acc-1" {
				return &model.Account{ID: "acc-1", Email: "a@example.com"}, nil
			}
			return nil, nil
		},
	}
	sessions := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			switch id {
			case "valid":
				return &model.Session{ID: id, AccountID: "acc-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
			case "orphan":
				return &model.Session{ID: id, AccountID: "deleted", ExpiresAt: time.Now().Add(time.Hour)}, nil
			}
			return nil, nil
		},
	}
	svc := newTestService(accounts, sessions)

	t.Run("有効なセッション", func(t *testing.T) {
		account, err := svc.GetCurrentAccount(context.Background(), "valid")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if account.ID != "acc-1" {
			t.Errorf("account ID = %q, want acc-1", account.ID)
		}
	})

	for _, id := range []string{"", "expired", "orphan"} {
		t.Run("無効なセッション_"+id, func(t *testing.T) {
			_, err := svc.GetCurrentAccount(context.Background(), id)
			if !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("expected ErrSessionNotFound, got %v", err)
			}
		})
	}
}

func TestUpdateName_SanitizesName(t *testing.T) {
	var savedName string
	accounts := &mockAccountRepo{
		updateNameFn: func(ctx context.Context, id, name string) error {
			savedName = name
			return nil
		},
		findByIDFn: func(ctx context.Context, id string) (*model.Account, error) {
			return &model.Account{ID: id, Name: savedName}, nil
		},
	}
	svc := newTestService(accounts, &mockSessionRepo{})

	account, err := svc.UpdateName(context.Background(), "acc-1", "<script>x</script>Bob")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if savedName != "Bob" {
		t.Errorf("saved name = %q, want %q", savedName, "Bob")
	}
	if account.Name != "Bob" {
		t.Errorf("returned name = %q, want %q", account.Name, "Bob")
	}
}

func TestUpdatePassword(t *testing.T) {
	account := hashedAccount(t, "acc-1", "a@example.com", "password123")

	newSvc := func(updated *string) *Service {
		accounts := &mockAccountRepo{
			findByIDFn: func(ctx context.Context, id string) (*model.Account, error) {
				return account, nil
			},
			updatePasswordHashFn: func(ctx context.Context, id, hash string) error {
				*updated = hash
				return nil
			},
		}
		return newTestService(accounts, &mockSessionRepo{})
	}

	t.Run("現在のパスワードが正しい場合は更新される", func(t *testing.T) {
		var updated string
		svc := newSvc(&updated)
		if err := svc.UpdatePassword(context.Background(), "acc-1", "new-password", "password123"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if ok, _ := VerifyPassword("new-password", updated); !ok {
			t.Error("新しいパスワードで検証できない")
		}
	})

	t.Run("現在のパスワードが誤っている場合", func(t *testing.T) {
		var updated string
		svc := newSvc(&updated)
		err := svc.UpdatePassword(context.Background(), "acc-1", "new-password", "wrong")
		assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)
		if updated != "" {
			t.Error("パスワードが更新されてはならない")
		}
	})

	t.Run("新しいパスワードが短すぎる場合", func(t *testing.T) {
		var updated string
		svc := newSvc(&updated)
		err := svc.UpdatePassword(context.Background(), "acc-1", "short", "password123")
		assertAPIErrorCode(t, err, model.ErrCodePasswordTooWeak)
	})
}

// Package auth はメールアドレスとパスワードによるアカウント登録・ログイン、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/moviesync/internal/model"
	"github.com/hitoshi/moviesync/internal/repository"
	"github.com/hitoshi/moviesync/internal/security"
)

// ErrSessionNotFound はセッションが存在しない、または期限切れの場合のエラー。
var ErrSessionNotFound = errors.New("session not found or expired")

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge  int            // セッション有効期間（秒）
	PasswordParams PasswordParams // ゼロ値の場合は DefaultPasswordParams
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	accountRepo repository.AccountRepository
	sessionRepo repository.SessionRepository
	sanitizer   *security.NameSanitizer
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	accountRepo repository.AccountRepository,
	sessionRepo repository.SessionRepository,
	sanitizer *security.NameSanitizer,
	config ServiceConfig,
) *Service {
	if config.PasswordParams == (PasswordParams{}) {
		config.PasswordParams = DefaultPasswordParams
	}
	return &Service{
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		sanitizer:   sanitizer,
		config:      config,
	}
}

// Signup はアカウントを作成する。セッションは発行しない。
// パスワードが短すぎる場合は password_too_weak、登録済みのメールアドレスの場合は
// user_already_exists の *model.APIError を返す。
func (s *Service) Signup(ctx context.Context, email, password, name string) (*model.Account, error) {
	email = normalizeEmail(email)

	// 1. パスワード強度の検証
	if model.IsWeakPassword(password) {
		return nil, model.NewPasswordTooWeakError(model.MinPasswordLength)
	}

	// 2. メールアドレスの重複確認
	existing, err := s.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if existing != nil {
		return nil, model.NewUserAlreadyExistsError()
	}

	// 3. パスワードのハッシュ化
	hash, err := HashPassword(password, s.config.PasswordParams)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// 4. アカウントを作成（同時登録による一意制約違反も重複として扱う）
	now := time.Now()
	account := &model.Account{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         s.sanitizer.Sanitize(name),
		PasswordHash: hash,
		Preferences:  map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accountRepo.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, model.NewUserAlreadyExistsError()
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	slog.Info("account created",
		slog.String("account_id", account.ID),
	)
	return account, nil
}

// Login はメールアドレスとパスワードを検証し、セッションを発行する。
// 認証に失敗した場合は user_invalid_credentials の *model.APIError を返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, error) {
	// 1. アカウントを検索
	account, err := s.accountRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	// 2. パスワードを検証
	ok, err := VerifyPassword(password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		slog.Info("login failed",
			slog.String("account_id", account.ID),
		)
		return nil, model.NewInvalidCredentialsError()
	}

	// 3. セッションを発行
	session, err := s.createSession(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("account logged in",
		slog.String("account_id", account.ID),
	)
	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("account logged out")
	return nil
}

// GetCurrentAccount はセッションから現在のアカウントを取得する。
// セッションが無効な場合、またはアカウントが削除済みの場合は ErrSessionNotFound を返す。
func (s *Service) GetCurrentAccount(ctx context.Context, sessionID string) (*model.Account, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	account, err := s.accountRepo.FindByID(ctx, session.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, ErrSessionNotFound
	}

	return account, nil
}

// GetAccount は指定IDのアカウントを取得する。存在しない場合は user_not_found を返す。
func (s *Service) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewUserNotFoundError()
	}
	return account, nil
}

// UpdateName は表示名を更新する。表示名はマークアップを除去してから保存する。
func (s *Service) UpdateName(ctx context.Context, accountID, name string) (*model.Account, error) {
	if err := s.accountRepo.UpdateName(ctx, accountID, s.sanitizer.Sanitize(name)); err != nil {
		return nil, fmt.Errorf("failed to update name: %w", err)
	}
	return s.GetAccount(ctx, accountID)
}

// UpdatePassword は現在のパスワードを確認したうえでパスワードを更新する。
// 現在のパスワードが誤っている場合は user_invalid_credentials を返す。
func (s *Service) UpdatePassword(ctx context.Context, accountID, newPassword, oldPassword string) error {
	// 1. 現在のパスワードを検証
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	ok, err := VerifyPassword(oldPassword, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return model.NewInvalidCredentialsError()
	}

	// 2. 新しいパスワードの強度を検証
	if model.IsWeakPassword(newPassword) {
		return model.NewPasswordTooWeakError(model.MinPasswordLength)
	}

	// 3. ハッシュ化して保存
	hash, err := HashPassword(newPassword, s.config.PasswordParams)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.accountRepo.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	slog.Info("password updated",
		slog.String("account_id", accountID),
	)
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, accountID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		AccountID: accountID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

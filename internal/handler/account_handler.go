// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/moviesync/internal/metrics"
	"github.com/hitoshi/moviesync/internal/middleware"
	"github.com/hitoshi/moviesync/internal/model"
	"github.com/hitoshi/moviesync/internal/validation"
)

// scopeAccount はアカウント操作に必要なスコープ名。
const scopeAccount = "account"

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	Signup(ctx context.Context, email, password, name string) (*model.Account, error)
	Login(ctx context.Context, email, password string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)
	UpdateName(ctx context.Context, accountID, name string) (*model.Account, error)
	UpdatePassword(ctx context.Context, accountID, newPassword, oldPassword string) error
}

// AccountHandlerConfig はアカウントハンドラーの設定。
type AccountHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AccountHandler はアカウントとセッションのHTTPハンドラー。
type AccountHandler struct {
	service   AccountServiceInterface
	config    AccountHandlerConfig
	validator *validation.Validator
	metrics   metrics.MetricsCollector
}

// NewAccountHandler はAccountHandlerを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewAccountHandler(service AccountServiceInterface, config AccountHandlerConfig, collector metrics.MetricsCollector) *AccountHandler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &AccountHandler{
		service:   service,
		config:    config,
		validator: validation.New(),
		metrics:   collector,
	}
}

// パスワードの最小文字数はサービス層で検証し、password_too_weakとして返す。
type signupRequest struct {
	Email    string `json:"email" validate:"required,email,max=320"`
	Password string `json:"password" validate:"max=1024"`
	Name     string `json:"name" validate:"max=128"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,max=320"`
	Password string `json:"password" validate:"required,max=1024"`
}

type updateNameRequest struct {
	Name string `json:"name" validate:"max=128"`
}

type updatePasswordRequest struct {
	Password    string `json:"password" validate:"max=1024"`
	OldPassword string `json:"old_password" validate:"required,max=1024"`
}

// Signup はアカウントを作成する。セッションは発行しない。
// POST /v1/account
func (h *AccountHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := h.decodeAndValidate(w, r, &req); err != nil {
		h.metrics.RecordSignup(metrics.ResultFailure)
		handleServiceError(w, err)
		return
	}

	account, err := h.service.Signup(r.Context(), req.Email, req.Password, req.Name)
	h.metrics.RecordSignup(resultOf(err))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, account.Identity())
}

// Get は現在のアカウントのIdentityを返す。
// GET /v1/account
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewMissingScopeError(scopeAccount))
		return
	}

	account, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account.Identity())
}

// UpdateName は表示名を更新する。
// PATCH /v1/account/name
func (h *AccountHandler) UpdateName(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewMissingScopeError(scopeAccount))
		return
	}

	var req updateNameRequest
	if err := h.decodeAndValidate(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	account, err := h.service.UpdateName(r.Context(), accountID, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account.Identity())
}

// UpdatePassword は現在のパスワードを確認したうえでパスワードを更新する。
// PATCH /v1/account/password
func (h *AccountHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewMissingScopeError(scopeAccount))
		return
	}

	var req updatePasswordRequest
	if err := h.decodeAndValidate(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.UpdatePassword(r.Context(), accountID, req.Password, req.OldPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateSession はメールアドレスとパスワードでログインし、セッションCookieを発行する。
// POST /v1/account/sessions/email
func (h *AccountHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decodeAndValidate(w, r, &req); err != nil {
		h.metrics.RecordLogin(metrics.ResultFailure)
		handleServiceError(w, err)
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	h.metrics.RecordLogin(resultOf(err))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// セッションCookieを設定（HTTP Only）
	h.setSessionCookie(w, session.ID, h.config.SessionMaxAge)

	writeJSON(w, http.StatusCreated, session.Handle())
}

// DeleteCurrentSession は現在のセッションを破棄し、セッションCookieをクリアする。
// DELETE /v1/account/sessions/current
func (h *AccountHandler) DeleteCurrentSession(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		handleServiceError(w, model.NewMissingScopeError(scopeAccount))
		return
	}

	if err := h.service.Logout(r.Context(), sessionID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) error {
	if err := decodeJSON(w, r, v); err != nil {
		return err
	}
	return h.validator.Validate(v)
}

func (h *AccountHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

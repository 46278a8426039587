// Package rest はバックエンドのREST APIに対する gateway.Gateway の実装を提供する。
// セッションはHTTP Only Cookieとしてクッキージャーに保持し、ジャーがデバイスのセッション文脈となる。
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/hitoshi/moviesync/internal/gateway"
	"github.com/hitoshi/moviesync/internal/model"
)

const (
	// SessionCookieName はバックエンドが発行するセッションCookieの名前。
	SessionCookieName = "session_id"
	// maxResponseSize はレスポンスボディの読み取り上限。
	maxResponseSize = 4 << 20
	userAgent       = "moviesync-client/1.0"
)

// SessionStore はプロセスをまたいでセッショントークンを保持するストア。
// Restoreが既存セッションを復元できるよう、ログイン時に保存しログアウト時に消去する。
type SessionStore interface {
	Load() (string, error)
	Save(token string) error
}

// Config はRESTクライアントの設定。
type Config struct {
	Endpoint     string        // 例: https://api.example.com
	Timeout      time.Duration // 1リクエストあたりのタイムアウト
	SessionStore SessionStore  // nilの場合はメモリ上のみで保持する
	HTTPClient   *http.Client  // nilの場合はTimeoutを設定した新しいクライアントを使う
	Logger       *slog.Logger
}

// Client はREST APIを呼び出す gateway.Gateway の実装。
type Client struct {
	baseURL *url.URL
	http    *http.Client
	jar     http.CookieJar
	store   SessionStore
	logger  *slog.Logger
}

// NewClient はClientを生成する。SessionStoreに保存済みのトークンがあればジャーに復元する。
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint scheme: %q", base.Scheme)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	// ジャーはクライアントごとに持つ。呼び出し元のクライアントは変更しない。
	hc := *httpClient
	hc.Jar = jar

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL: base,
		http:    &hc,
		jar:     jar,
		store:   cfg.SessionStore,
		logger:  logger,
	}

	if c.store != nil {
		token, err := c.store.Load()
		if err != nil {
			c.logger.Warn("failed to load stored session", slog.String("error", err.Error()))
		} else if token != "" {
			c.setSessionCookie(token, 0)
		}
	}

	return c, nil
}

// SessionToken は現在ジャーに保持されているセッショントークンを返す。
func (c *Client) SessionToken() string {
	for _, ck := range c.jar.Cookies(c.baseURL) {
		if ck.Name == SessionCookieName {
			return ck.Value
		}
	}
	return ""
}

// --- account ---

type accountCreateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type sessionCreateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type nameUpdateRequest struct {
	Name string `json:"name"`
}

type passwordUpdateRequest struct {
	Password    string `json:"password"`
	OldPassword string `json:"old_password"`
}

// CreateSession はセッションを作成し、トークンをSessionStoreに保存する。
func (c *Client) CreateSession(ctx context.Context, email, password string) (*model.SessionHandle, error) {
	var handle model.SessionHandle
	err := c.do(ctx, http.MethodPost, "/v1/account/sessions/email", sessionCreateRequest{
		Email:    email,
		Password: password,
	}, &handle)
	if err != nil {
		return nil, err
	}
	c.persist(c.SessionToken())
	return &handle, nil
}

// GetCurrentIdentity は現在のセッションのIdentityを取得する。
func (c *Client) GetCurrentIdentity(ctx context.Context) (*model.Identity, error) {
	var identity model.Identity
	if err := c.do(ctx, http.MethodGet, "/v1/account", nil, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// DeleteCurrentSession は現在のセッションを破棄する。
// リモートの破棄に失敗しても、ローカルのCookieと保存済みトークンは必ず消去する。
func (c *Client) DeleteCurrentSession(ctx context.Context) error {
	err := c.do(ctx, http.MethodDelete, "/v1/account/sessions/current", nil, nil)
	c.setSessionCookie("", -1)
	c.persist("")
	return err
}

// CreateAccount はアカウントを作成する。
func (c *Client) CreateAccount(ctx context.Context, email, password, name string) error {
	return c.do(ctx, http.MethodPost, "/v1/account", accountCreateRequest{
		Email:    email,
		Password: password,
		Name:     name,
	}, nil)
}

// UpdateDisplayName は表示名を更新する。
func (c *Client) UpdateDisplayName(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPatch, "/v1/account/name", nameUpdateRequest{Name: name}, nil)
}

// UpdatePassword はパスワードを更新する。
func (c *Client) UpdatePassword(ctx context.Context, newPassword, currentPassword string) error {
	return c.do(ctx, http.MethodPatch, "/v1/account/password", passwordUpdateRequest{
		Password:    newPassword,
		OldPassword: currentPassword,
	}, nil)
}

// --- documents ---

type documentWriteRequest struct {
	Data map[string]any `json:"data"`
}

type documentListResponse struct {
	Total     int              `json:"total"`
	Documents []model.Document `json:"documents"`
}

// ListDocuments は述語に一致するドキュメントを取得する。
func (c *Client) ListDocuments(ctx context.Context, collection string, queries ...model.Query) ([]model.Document, error) {
	path := documentsPath(collection)
	encoded, err := model.EncodeQueries(queries)
	if err != nil {
		return nil, err
	}
	if encoded != "" {
		path += "?" + url.Values{"queries": {encoded}}.Encode()
	}

	var resp documentListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

// CreateDocument はドキュメントを作成する。
func (c *Client) CreateDocument(ctx context.Context, collection string, fields map[string]any) (*model.Document, error) {
	var doc model.Document
	if err := c.do(ctx, http.MethodPost, documentsPath(collection), documentWriteRequest{Data: fields}, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateDocument はドキュメントの指定フィールドを更新する。
func (c *Client) UpdateDocument(ctx context.Context, collection, id string, fields map[string]any) (*model.Document, error) {
	var doc model.Document
	path := documentsPath(collection) + "/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPatch, path, documentWriteRequest{Data: fields}, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteDocument はドキュメントを削除する。
func (c *Client) DeleteDocument(ctx context.Context, collection, id string) error {
	path := documentsPath(collection) + "/" + url.PathEscape(id)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func documentsPath(collection string) string {
	return "/v1/collections/" + url.PathEscape(collection) + "/documents"
}

// --- transport ---

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do はリクエストを送信し、2xxの場合はレスポンスをoutにデコードする。
// 2xx以外はバックエンドのエラーボディから gateway.Error を組み立てて返す。
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err != nil || eb.Code == "" {
		return &gateway.Error{
			Status:  status,
			Type:    model.ErrCodeInternal,
			Message: strings.TrimSpace(http.StatusText(status) + " " + string(bytes.TrimSpace(data))),
		}
	}
	return &gateway.Error{Status: status, Type: eb.Code, Message: eb.Message}
}

func (c *Client) setSessionCookie(token string, maxAge int) {
	c.jar.SetCookies(c.baseURL, []*http.Cookie{{
		Name:   SessionCookieName,
		Value:  token,
		Path:   "/",
		MaxAge: maxAge,
	}})
}

func (c *Client) persist(token string) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(token); err != nil {
		c.logger.Warn("failed to persist session", slog.String("error", err.Error()))
	}
}

// compile-time interface check
var _ gateway.Gateway = (*Client)(nil)

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/moviesync/internal/gateway"
	"github.com/hitoshi/moviesync/internal/model"
)

// memoryStore はテスト用のSessionStore。
type memoryStore struct {
	mu    sync.Mutex
	token string
	saves []string
}

func (s *memoryStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *memoryStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.saves = append(s.saves, token)
	return nil
}

func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, handler http.Handler, store SessionStore) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient(Config{
		Endpoint:     server.URL + "/",
		Timeout:      2 * time.Second,
		SessionStore: store,
	})
	if err != nil {
		t.Fatalf("NewClient がエラーを返した: %v", err)
	}
	return c
}

// sessionBackend はセッションCookieを発行・検証する最小限のバックエンド。
func sessionBackend(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/account/sessions/email", func(w http.ResponseWriter, r *http.Request) {
		var req sessionCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("リクエストボディのデコードに失敗: %v", err)
		}
		if req.Password != "password123" {
			writeJSONResponse(w, http.StatusUnauthorized, map[string]string{
				"code":    model.ErrCodeInvalidCredentials,
				"message": "Invalid credentials",
			})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: "token-1", Path: "/", HttpOnly: true})
		writeJSONResponse(w, http.StatusCreated, model.SessionHandle{ID: "token-1", UserID: "user-1"})
	})
	mux.HandleFunc("GET /v1/account", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie(SessionCookieName)
		if err != nil || ck.Value == "" {
			writeJSONResponse(w, http.StatusUnauthorized, map[string]string{
				"code":    model.ErrCodeUserUnauthorized,
				"message": "User (role: guests) missing scope (account)",
			})
			return
		}
		writeJSONResponse(w, http.StatusOK, model.Identity{ID: "user-1", Email: "a@example.com", Name: ck.Value})
	})
	mux.HandleFunc("DELETE /v1/account/sessions/current", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return mux
}

func TestNewClient_InvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"ftp://example.com", "example.com", "://bad"} {
		if _, err := NewClient(Config{Endpoint: endpoint}); err == nil {
			t.Errorf("NewClient(%q) はエラーを返すべき", endpoint)
		}
	}
}

func TestClient_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	c := newTestClient(t, sessionBackend(t), store)

	t.Run("ログイン前はスコープ不足エラー", func(t *testing.T) {
		_, err := c.GetCurrentIdentity(ctx)
		var gwErr *gateway.Error
		if !errors.As(err, &gwErr) {
			t.Fatalf("gateway.Error であるべき: %v", err)
		}
		if gwErr.Status != http.StatusUnauthorized || gwErr.Type != model.ErrCodeUserUnauthorized {
			t.Errorf("got (%d, %s), want (401, %s)", gwErr.Status, gwErr.Type, model.ErrCodeUserUnauthorized)
		}
		if !errors.Is(gateway.Classify(err), model.ErrNotAuthenticated) {
			t.Error("未認証として分類されるべき")
		}
	})

	t.Run("パスワード違いは認証エラー", func(t *testing.T) {
		_, err := c.CreateSession(ctx, "a@example.com", "wrong")
		if !errors.Is(gateway.ClassifyAuth(err), model.ErrInvalidCredentials) {
			t.Errorf("AuthInvalidCredentials として分類されるべき: %v", err)
		}
		if c.SessionToken() != "" {
			t.Error("失敗したログインでセッションを保持してはならない")
		}
	})

	t.Run("ログインでCookieを保持し保存する", func(t *testing.T) {
		handle, err := c.CreateSession(ctx, "a@example.com", "password123")
		if err != nil {
			t.Fatalf("CreateSession がエラーを返した: %v", err)
		}
		if handle.UserID != "user-1" {
			t.Errorf("UserID = %q, want user-1", handle.UserID)
		}
		if got := c.SessionToken(); got != "token-1" {
			t.Errorf("SessionToken = %q, want token-1", got)
		}
		if store.token != "token-1" {
			t.Errorf("保存されたトークン = %q, want token-1", store.token)
		}
	})

	t.Run("以降のリクエストにCookieが付与される", func(t *testing.T) {
		identity, err := c.GetCurrentIdentity(ctx)
		if err != nil {
			t.Fatalf("GetCurrentIdentity がエラーを返した: %v", err)
		}
		if identity.Name != "token-1" {
			t.Errorf("サーバーが受け取ったCookie = %q, want token-1", identity.Name)
		}
	})

	t.Run("リモートの破棄に失敗してもローカルのセッションは消去する", func(t *testing.T) {
		if err := c.DeleteCurrentSession(ctx); err == nil {
			t.Error("サーバーエラーは呼び出し元に返すべき")
		}
		if c.SessionToken() != "" {
			t.Error("Cookieが消去されるべき")
		}
		if store.token != "" {
			t.Error("保存済みトークンが消去されるべき")
		}
	})
}

func TestClient_RestoresStoredSession(t *testing.T) {
	store := &memoryStore{token: "stored-token"}
	c := newTestClient(t, sessionBackend(t), store)

	identity, err := c.GetCurrentIdentity(context.Background())
	if err != nil {
		t.Fatalf("保存済みトークンで認証されるべき: %v", err)
	}
	if identity.Name != "stored-token" {
		t.Errorf("サーバーが受け取ったCookie = %q, want stored-token", identity.Name)
	}
}

func TestClient_AccountRequests(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string]map[string]string{}
	)
	mux := http.NewServeMux()
	record := func(status int) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			seen[r.Method+" "+r.URL.Path] = body
			mu.Unlock()
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			w.WriteHeader(status)
		}
	}
	mux.HandleFunc("POST /v1/account", record(http.StatusCreated))
	mux.HandleFunc("PATCH /v1/account/name", record(http.StatusOK))
	mux.HandleFunc("PATCH /v1/account/password", record(http.StatusNoContent))

	ctx := context.Background()
	c := newTestClient(t, mux, nil)

	if err := c.CreateAccount(ctx, "a@example.com", "password123", "Alice"); err != nil {
		t.Fatalf("CreateAccount がエラーを返した: %v", err)
	}
	if err := c.UpdateDisplayName(ctx, "Alicia"); err != nil {
		t.Fatalf("UpdateDisplayName がエラーを返した: %v", err)
	}
	if err := c.UpdatePassword(ctx, "newpassword123", "password123"); err != nil {
		t.Fatalf("UpdatePassword がエラーを返した: %v", err)
	}

	if got := seen["POST /v1/account"]["name"]; got != "Alice" {
		t.Errorf("signup name = %q, want Alice", got)
	}
	if got := seen["PATCH /v1/account/name"]["name"]; got != "Alicia" {
		t.Errorf("name = %q, want Alicia", got)
	}
	pw := seen["PATCH /v1/account/password"]
	if pw["password"] != "newpassword123" || pw["old_password"] != "password123" {
		t.Errorf("password body = %v", pw)
	}
}

func TestClient_DocumentRequests(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/collections/{collection}/documents", func(w http.ResponseWriter, r *http.Request) {
		queries, err := model.DecodeQueries(r.URL.Query().Get("queries"))
		if err != nil {
			t.Errorf("queries のデコードに失敗: %v", err)
		}
		if len(queries) != 2 || queries[0].Method != model.QueryMethodEqual || queries[1].Method != model.QueryMethodLimit {
			t.Errorf("queries = %+v", queries)
		}
		writeJSONResponse(w, http.StatusOK, map[string]any{
			"total": 1,
			"documents": []model.Document{{
				ID:         "doc-1",
				Collection: r.PathValue("collection"),
				Fields:     map[string]any{model.FieldSearchTerm: "matrix", model.FieldCount: 3},
				CreatedAt:  created,
				UpdatedAt:  created,
			}},
		})
	})
	mux.HandleFunc("POST /v1/collections/{collection}/documents", func(w http.ResponseWriter, r *http.Request) {
		var req documentWriteRequest
		json.NewDecoder(r.Body).Decode(&req)
		writeJSONResponse(w, http.StatusCreated, model.Document{ID: "doc-2", Collection: r.PathValue("collection"), Fields: req.Data})
	})
	mux.HandleFunc("PATCH /v1/collections/{collection}/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req documentWriteRequest
		json.NewDecoder(r.Body).Decode(&req)
		writeJSONResponse(w, http.StatusOK, model.Document{ID: r.PathValue("id"), Collection: r.PathValue("collection"), Fields: req.Data})
	})
	mux.HandleFunc("DELETE /v1/collections/{collection}/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "doc-9" {
			writeJSONResponse(w, http.StatusNotFound, map[string]string{
				"code":    model.ErrCodeDocumentNotFound,
				"message": "Document not found",
			})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	ctx := context.Background()
	c := newTestClient(t, mux, nil)

	t.Run("述語をqueriesパラメータで送る", func(t *testing.T) {
		docs, err := c.ListDocuments(ctx, model.SearchCountsCollection,
			model.Equal(model.FieldSearchTerm, "matrix"), model.Limit(1))
		if err != nil {
			t.Fatalf("ListDocuments がエラーを返した: %v", err)
		}
		if len(docs) != 1 || docs[0].ID != "doc-1" || !docs[0].CreatedAt.Equal(created) {
			t.Fatalf("docs = %+v", docs)
		}
		if n, err := docs[0].Int(model.FieldCount); err != nil || n != 3 {
			t.Errorf("count = %d (err=%v), want 3", n, err)
		}
	})

	t.Run("作成と更新はdataで送る", func(t *testing.T) {
		doc, err := c.CreateDocument(ctx, model.SearchCountsCollection, map[string]any{model.FieldSearchTerm: "heat"})
		if err != nil {
			t.Fatalf("CreateDocument がエラーを返した: %v", err)
		}
		if doc.ID != "doc-2" || doc.String(model.FieldSearchTerm) != "heat" {
			t.Errorf("doc = %+v", doc)
		}
		doc, err = c.UpdateDocument(ctx, model.SearchCountsCollection, "doc-2", map[string]any{model.FieldCount: 4})
		if err != nil {
			t.Fatalf("UpdateDocument がエラーを返した: %v", err)
		}
		if doc.ID != "doc-2" {
			t.Errorf("ID = %q, want doc-2", doc.ID)
		}
	})

	t.Run("削除とエラーの変換", func(t *testing.T) {
		if err := c.DeleteDocument(ctx, model.FavoritesCollection, "doc-9"); err != nil {
			t.Fatalf("DeleteDocument がエラーを返した: %v", err)
		}
		err := c.DeleteDocument(ctx, model.FavoritesCollection, "missing")
		var gwErr *gateway.Error
		if !errors.As(err, &gwErr) || gwErr.Type != model.ErrCodeDocumentNotFound {
			t.Errorf("document_not_found であるべき: %v", err)
		}
	})
}

func TestClient_NonJSONErrorBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}), nil)

	_, err := c.GetCurrentIdentity(context.Background())
	var gwErr *gateway.Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("gateway.Error であるべき: %v", err)
	}
	if gwErr.Status != http.StatusBadGateway || gwErr.Type != model.ErrCodeInternal {
		t.Errorf("got (%d, %s), want (502, %s)", gwErr.Status, gwErr.Type, model.ErrCodeInternal)
	}

	var remote *model.RemoteError
	if !errors.As(gateway.Classify(err), &remote) {
		t.Error("RemoteError として分類されるべき")
	}
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	c, err := NewClient(Config{Endpoint: server.URL, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewClient がエラーを返した: %v", err)
	}

	_, err = c.ListDocuments(context.Background(), model.SearchCountsCollection)
	if err == nil {
		t.Fatal("タイムアウト時はエラーを返すべき")
	}
	var remote *model.RemoteError
	if !errors.As(gateway.Classify(err), &remote) {
		t.Errorf("RemoteError として分類されるべき: %v", err)
	}
}

func TestFileSessionStore(t *testing.T) {
	store := FileSessionStore{Path: filepath.Join(t.TempDir(), "nested", "session")}

	token, err := store.Load()
	if err != nil || token != "" {
		t.Fatalf("ファイルがない場合は空文字列を返すべき: token=%q err=%v", token, err)
	}

	if err := store.Save("abc123"); err != nil {
		t.Fatalf("Save がエラーを返した: %v", err)
	}
	if token, _ := store.Load(); token != "abc123" {
		t.Errorf("Load = %q, want abc123", token)
	}

	if err := store.Save(""); err != nil {
		t.Fatalf("空文字列のSaveはファイルを削除するべき: %v", err)
	}
	if token, _ := store.Load(); token != "" {
		t.Errorf("削除後の Load = %q, want 空文字列", token)
	}
	if err := store.Save(""); err != nil {
		t.Errorf("ファイルがない状態での削除はエラーにしない: %v", err)
	}
}

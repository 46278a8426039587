// Package memgw はプロセス内で完結するリモートストアの実装を提供する。
// RESTバックエンドと同じ権限モデル（ゲストスコープ、作成者スコープ、一意キー）と
// 並び順を再現し、ローカル実行とテストで使用する。
package memgw

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/moviesync/internal/gateway"
	"github.com/hitoshi/moviesync/internal/model"
)

// defaultSessionTTL はセッションの有効期間。
const defaultSessionTTL = 365 * 24 * time.Hour

type account struct {
	model.Account
	password string
}

type document struct {
	model.Document
	uniqueKey string
	seq       int64
}

// Backend は複数デバイスで共有されるストアの状態を保持する。
type Backend struct {
	mu          sync.Mutex
	now         func() time.Time
	seq         int64
	sessionTTL  time.Duration
	accounts    map[string]*account       // id -> account
	emails      map[string]string         // email -> id
	sessions    map[string]*model.Session // id -> session
	collections map[string]model.Collection
	documents   map[string]map[string]*document // collection -> id -> doc
}

// NewBackend は既定のコレクションを持つBackendを生成する。
func NewBackend() *Backend {
	b := &Backend{
		now:         time.Now,
		sessionTTL:  defaultSessionTTL,
		accounts:    make(map[string]*account),
		emails:      make(map[string]string),
		sessions:    make(map[string]*model.Session),
		collections: make(map[string]model.Collection),
		documents:   make(map[string]map[string]*document),
	}
	for _, c := range model.DefaultCollections() {
		b.AddCollection(c)
	}
	return b
}

// AddCollection はコレクションを追加または置き換える。
func (b *Backend) AddCollection(c model.Collection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.collections[c.ID] = c
	if _, ok := b.documents[c.ID]; !ok {
		b.documents[c.ID] = make(map[string]*document)
	}
}

// ExpireSessions はすべてのセッションを失効させる。セッション切れの再現に使う。
func (b *Backend) ExpireSessions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.sessions {
		delete(b.sessions, id)
	}
}

// DocumentCount はコレクション内のドキュメント数を返す。
func (b *Backend) DocumentCount(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.documents[collection])
}

// InsertRaw は権限と一意キーの検査を行わずにドキュメントを挿入する。
// 一意キーのないストアで発生しうる重複データの再現に使う。
func (b *Backend) InsertRaw(collection, ownerID string, fields map[string]any) *model.Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc := b.newDocument(collection, ownerID, fields)
	b.documents[collection][doc.ID] = doc
	out := doc.Document
	return &out
}

// Device はこのBackendに接続する新しいデバイス（Gateway）を返す。
func (b *Backend) Device() *Gateway {
	return &Gateway{backend: b}
}

// Gateway はデバイス単位のセッションを保持する gateway.Gateway の実装。
type Gateway struct {
	backend *Backend

	mu        sync.Mutex
	sessionID string
}

// New は単独のBackendに接続したGatewayを生成する。
func New() *Gateway {
	return NewBackend().Device()
}

// Backend は接続先のBackendを返す。
func (g *Gateway) Backend() *Backend {
	return g.backend
}

func (g *Gateway) currentSessionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessionID
}

func (g *Gateway) setSessionID(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessionID = id
}

// CreateSession はメールアドレスとパスワードでセッションを作成する。
// 既存のセッションは置き換える。
func (g *Gateway) CreateSession(ctx context.Context, email, password string) (*model.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := g.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.emails[normalizeEmail(email)]
	if !ok {
		return nil, apiError(http.StatusUnauthorized, model.NewInvalidCredentialsError())
	}
	acc := b.accounts[id]
	if subtle.ConstantTimeCompare([]byte(acc.password), []byte(password)) != 1 {
		return nil, apiError(http.StatusUnauthorized, model.NewInvalidCredentialsError())
	}

	if old := g.currentSessionID(); old != "" {
		delete(b.sessions, old)
	}
	now := b.now()
	session := &model.Session{
		ID:        newSessionID(),
		AccountID: acc.ID,
		ExpiresAt: now.Add(b.sessionTTL),
		CreatedAt: now,
	}
	b.sessions[session.ID] = session
	g.setSessionID(session.ID)
	return session.Handle(), nil
}

// GetCurrentIdentity は現在のセッションのIdentityを返す。
func (g *Gateway) GetCurrentIdentity(ctx context.Context) (*model.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := g.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, err := g.requireAccount("account")
	if err != nil {
		return nil, err
	}
	return acc.Identity(), nil
}

// DeleteCurrentSession は現在のセッションを破棄する。
func (g *Gateway) DeleteCurrentSession(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := g.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	id := g.currentSessionID()
	g.setSessionID("")
	if _, ok := b.sessions[id]; !ok {
		return apiError(http.StatusUnauthorized, model.NewMissingScopeError("account"))
	}
	delete(b.sessions, id)
	return nil
}

// CreateAccount はアカウントを作成する。
func (g *Gateway) CreateAccount(ctx context.Context, email, password, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if model.IsWeakPassword(password) {
		return apiError(http.StatusBadRequest, model.NewPasswordTooWeakError(model.MinPasswordLength))
	}
	b := g.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	key := normalizeEmail(email)
	if _, exists := b.emails[key]; exists {
		return apiError(http.StatusConflict, model.NewUserAlreadyExistsError())
	}
	now := b.now()
	acc := &account{
		Account: model.Account{
			ID:          uuid.New().String(),
			Email:       key,
			Name:        name,
			Preferences: map[string]any{},
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		password: password,
	}
	b.accounts[acc.ID] = acc
	b.emails[key] = acc.ID
	return nil
}

// UpdateDisplayName は表示名を更新する。
func (g *Gateway) UpdateDisplayName(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := g.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, err := g.requireAccount("account")
	if err != nil {
		return err
	}
	acc.Name = name
	acc.UpdatedAt = b.now()
	return nil
}

// UpdatePassword は現在のパスワードを確認してからパスワードを更新する。
func (g *Gateway) UpdatePassword(ctx context.Context, newPassword, currentPassword string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := g.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, err := g.requireAccount("account")
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(acc.password), []byte(currentPassword)) != 1 {
		return apiError(http.StatusUnauthorized, model.NewInvalidCredentialsError())
	}
	if model.IsWeakPassword(newPassword) {
		return apiError(http.StatusBadRequest, model.NewPasswordTooWeakError(model.MinPasswordLength))
	}
	acc.password = newPassword
	acc.UpdatedAt = b.now()
	return nil
}

// ListDocuments は述語に一致するドキュメントを返す。
func (g *Gateway) ListDocuments(ctx context.Context, collection string, queries ...model.Query) ([]model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, q := range queries {
		if err := q.Validate(); err != nil {
			return nil, apiError(http.StatusBadRequest, model.NewInvalidQueryError(err.Error()))
		}
	}
	b := g.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	coll, acc, err := g.authorize(collection, "documents.read")
	if err != nil {
		return nil, err
	}

	var matched []*document
	for _, doc := range b.documents[collection] {
		if coll.OwnerScoped && doc.OwnerID != acc.ID {
			continue
		}
		if matches(doc, queries) {
			matched = append(matched, doc)
		}
	}
	sortDocuments(matched, queries)

	limit := len(matched)
	for _, q := range queries {
		if q.Method == model.QueryMethodLimit && q.LimitValue() < limit {
			limit = q.LimitValue()
		}
	}
	out := make([]model.Document, 0, limit)
	for _, doc := range matched[:limit] {
		out = append(out, cloneDocument(doc))
	}
	return out, nil
}

// CreateDocument はドキュメントを作成する。
func (g *Gateway) CreateDocument(ctx context.Context, collection string, fields map[string]any) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := g.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	coll, acc, err := g.authorize(collection, "documents.write")
	if err != nil {
		return nil, err
	}

	ownerID := ""
	if acc != nil {
		ownerID = acc.ID
	}
	doc := b.newDocument(collection, ownerID, fields)
	if doc.uniqueKey = coll.DocumentKey(ownerID, doc.Fields); doc.uniqueKey != "" {
		for _, other := range b.documents[collection] {
			if other.uniqueKey == doc.uniqueKey {
				return nil, apiError(http.StatusConflict, model.NewDocumentAlreadyExistsError())
			}
		}
	}
	b.documents[collection][doc.ID] = doc
	out := cloneDocument(doc)
	return &out, nil
}

// UpdateDocument は指定フィールドを上書きする。
func (g *Gateway) UpdateDocument(ctx context.Context, collection, id string, fields map[string]any) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := g.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	coll, acc, err := g.authorize(collection, "documents.write")
	if err != nil {
		return nil, err
	}
	doc, err := g.findOwned(coll, acc, id)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(doc.Fields)+len(fields))
	for k, v := range doc.Fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	key := coll.DocumentKey(doc.OwnerID, merged)
	if key != "" && key != doc.uniqueKey {
		for _, other := range b.documents[collection] {
			if other.ID != doc.ID && other.uniqueKey == key {
				return nil, apiError(http.StatusConflict, model.NewDocumentAlreadyExistsError())
			}
		}
	}
	doc.Fields = merged
	doc.uniqueKey = key
	doc.UpdatedAt = b.now()
	out := cloneDocument(doc)
	return &out, nil
}

// DeleteDocument はドキュメントを削除する。
func (g *Gateway) DeleteDocument(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := g.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	coll, acc, err := g.authorize(collection, "documents.write")
	if err != nil {
		return err
	}
	if _, err := g.findOwned(coll, acc, id); err != nil {
		return err
	}
	delete(b.documents[collection], id)
	return nil
}

// requireAccount は現在のセッションのアカウントを返す。b.muを保持した状態で呼ぶこと。
func (g *Gateway) requireAccount(scope string) (*account, error) {
	session, ok := g.backend.sessions[g.currentSessionID()]
	if !ok || !session.ExpiresAt.After(g.backend.now()) {
		return nil, apiError(http.StatusUnauthorized, model.NewMissingScopeError(scope))
	}
	acc, ok := g.backend.accounts[session.AccountID]
	if !ok {
		return nil, apiError(http.StatusUnauthorized, model.NewMissingScopeError(scope))
	}
	return acc, nil
}

// authorize はコレクションへのアクセス権を検証する。ゲストアクセス可能な場合accはnilになり得る。
func (g *Gateway) authorize(collection, scope string) (model.Collection, *account, error) {
	coll, ok := g.backend.collections[collection]
	if !ok {
		return model.Collection{}, nil, apiError(http.StatusNotFound, model.NewCollectionNotFoundError(collection))
	}
	acc, err := g.requireAccount(scope)
	if err != nil {
		if coll.GuestAccess {
			return coll, nil, nil
		}
		return coll, nil, err
	}
	return coll, acc, nil
}

func (g *Gateway) findOwned(coll model.Collection, acc *account, id string) (*document, error) {
	doc, ok := g.backend.documents[coll.ID][id]
	if !ok || (coll.OwnerScoped && (acc == nil || doc.OwnerID != acc.ID)) {
		return nil, apiError(http.StatusNotFound, model.NewDocumentNotFoundError(id))
	}
	return doc, nil
}

func (b *Backend) newDocument(collection, ownerID string, fields map[string]any) *document {
	b.seq++
	now := b.now()
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = normalizeValue(v)
	}
	if _, ok := b.documents[collection]; !ok {
		b.documents[collection] = make(map[string]*document)
	}
	return &document{
		Document: model.Document{
			ID:         uuid.New().String(),
			Collection: collection,
			OwnerID:    ownerID,
			Fields:     copied,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		seq: b.seq,
	}
}

func matches(doc *document, queries []model.Query) bool {
	for _, q := range queries {
		if q.Method != model.QueryMethodEqual {
			continue
		}
		if model.ValueText(attribute(doc, q.Attribute)) != model.ValueText(q.Values[0]) {
			return false
		}
	}
	return true
}

func sortDocuments(docs []*document, queries []model.Query) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, q := range queries {
			var desc bool
			switch q.Method {
			case model.QueryMethodOrderAsc:
			case model.QueryMethodOrderDesc:
				desc = true
			default:
				continue
			}
			c := compare(attribute(docs[i], q.Attribute), attribute(docs[j], q.Attribute))
			if c == 0 {
				continue
			}
			if desc {
				return c > 0
			}
			return c < 0
		}
		return docs[i].seq < docs[j].seq
	})
}

func attribute(doc *document, name string) any {
	switch name {
	case model.AttrID:
		return doc.ID
	case model.AttrCreatedAt:
		return doc.seq
	case model.AttrUpdatedAt:
		return doc.UpdatedAt.UnixNano()
	}
	return doc.Fields[name]
}

func compare(a, b any) int {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	switch {
	case aNum && bNum:
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case aNum:
		return 1
	case bNum:
		return -1
	}
	return strings.Compare(model.ValueText(a), model.ValueText(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// normalizeValue はJSONを経由した場合と同じ型に値を揃える。
func normalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	}
	return v
}

func cloneDocument(doc *document) model.Document {
	out := doc.Document
	out.Fields = make(map[string]any, len(doc.Fields))
	for k, v := range doc.Fields {
		out.Fields[k] = v
	}
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newSessionID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func apiError(status int, apiErr *model.APIError) error {
	return gateway.FromAPIError(status, apiErr)
}

// compile-time interface check
var _ gateway.Gateway = (*Gateway)(nil)

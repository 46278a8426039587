// Package session は認証済みIdentityのライフサイクル（ログイン・登録・ログアウト・復元・再取得）を管理する。
package session

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/hitoshi/moviesync/internal/gateway"
	"github.com/hitoshi/moviesync/internal/model"
)

// State はセッションの状態を表す。
type State string

const (
	StateUnknown       State = "unknown"       // 起動直後、Restore前
	StateAuthenticated State = "authenticated" // Identityあり
	StateAnonymous     State = "anonymous"     // Identityなし
)

// Snapshot はUIが購読するセッション状態の読み取り専用コピー。
type Snapshot struct {
	Identity *model.Identity
	State    State
	Busy     bool
}

// ProfileUpdate はUpdateProfileの入力。
// Nameがnilの場合は表示名を変更しない。NewPasswordが空の場合はパスワードを変更しない。
type ProfileUpdate struct {
	Name            *string
	NewPassword     string
	CurrentPassword string
}

// Manager はIdentityを保持する唯一の状態セル。
// 状態の変更は購読者に通知される。同一操作の直列化は行わないため、
// 処理中はUI側で操作を無効化すること。
//
// Identityを書き換えるたびに世代(gen)が進む。バックエンドの応答を待つ間に
// LoginやLogoutが完了していた場合、Restore・Refreshの結果は古いものとして捨てる。
type Manager struct {
	gw     gateway.Gateway
	logger *slog.Logger

	mu       sync.Mutex
	identity *model.Identity
	state    State
	gen      uint64
	inflight int
	subs     map[int]func(Snapshot)
	nextSub  int

	// 通知を1つずつ順に配送する。muより先に取得する。
	notifyMu sync.Mutex
}

// NewManager はManagerを生成する。loggerがnilの場合は slog.Default() を使う。
func NewManager(gw gateway.Gateway, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		gw:     gw,
		logger: logger,
		state:  StateUnknown,
		subs:   make(map[int]func(Snapshot)),
	}
}

// Restore は既存の有効なセッションからIdentityを復元する。
// エラーは返さず、バックエンドのエラー（セッション期限切れ・未作成など）はIdentityなしとして扱う。
// 応答待ちの間に他の操作がIdentityを確定させた場合は、その結果を優先して返す。
func (m *Manager) Restore(ctx context.Context) *model.Identity {
	defer m.begin()()
	gen := m.generation()

	identity, err := m.gw.GetCurrentIdentity(ctx)
	if err != nil {
		m.logger.Info("no session to restore", slog.String("reason", err.Error()))
		identity = nil
	}

	state := StateAnonymous
	if identity != nil {
		state = StateAuthenticated
	}
	if !m.publish(gen, identity, state) {
		m.logger.Info("discarding stale restore result")
		return m.Current()
	}
	return cloneIdentity(identity)
}

// Login はセッションを作成し、Identityを取得する。
// 失敗時は公開中のIdentityを変更しない。
func (m *Manager) Login(ctx context.Context, email, password string) (*model.Identity, error) {
	defer m.begin()()
	return m.login(ctx, email, password)
}

func (m *Manager) login(ctx context.Context, email, password string) (*model.Identity, error) {
	// 1. セッション作成
	if _, err := m.gw.CreateSession(ctx, email, password); err != nil {
		m.logger.Warn("login failed", slog.String("error", err.Error()))
		return nil, loginError(err)
	}

	// 2. Identity取得
	// セッション作成後に取得に失敗した場合、リモートのセッションは有効なまま残り、次回のRestoreで復元される。
	identity, err := m.gw.GetCurrentIdentity(ctx)
	if err != nil {
		m.logger.Warn("identity fetch after login failed", slog.String("error", err.Error()))
		return nil, model.NewAuthError(model.AuthNetworkError, err)
	}

	m.set(identity, StateAuthenticated)
	m.logger.Info("logged in", slog.String("user_id", identity.ID))
	return cloneIdentity(identity), nil
}

// loginError はセッション作成の失敗をInvalidCredentialsかNetworkErrorに分類する。
func loginError(err error) error {
	classified := gateway.ClassifyAuth(err)
	if ae, ok := classified.(*model.AuthError); ok && ae.Kind == model.AuthInvalidCredentials {
		return ae
	}
	return model.NewAuthError(model.AuthNetworkError, err)
}

// Signup はアカウントを作成し、同じ資格情報でログインする。
// パスワード強度はネットワーク呼び出しの前にローカルで検証する。
func (m *Manager) Signup(ctx context.Context, name, email, password string) (*model.Identity, error) {
	if model.IsWeakPassword(password) {
		return nil, model.NewAuthError(model.AuthWeakPassword, nil)
	}

	defer m.begin()()

	if err := m.gw.CreateAccount(ctx, email, password, name); err != nil {
		m.logger.Warn("signup failed", slog.String("error", err.Error()))
		return nil, signupError(err)
	}

	return m.login(ctx, email, password)
}

// signupError はアカウント作成の失敗をWeakPassword・DuplicateEmail・NetworkErrorに分類する。
func signupError(err error) error {
	classified := gateway.ClassifyAuth(err)
	if ae, ok := classified.(*model.AuthError); ok {
		switch ae.Kind {
		case model.AuthWeakPassword, model.AuthDuplicateEmail:
			return ae
		}
	}
	return model.NewAuthError(model.AuthNetworkError, err)
}

// Logout は現在のセッションを破棄し、Identityを必ずクリアする。
// リモートでの破棄に失敗してもローカルの状態を優先し、エラーはログにのみ記録する。
func (m *Manager) Logout(ctx context.Context) {
	defer m.begin()()

	if err := m.gw.DeleteCurrentSession(ctx); err != nil {
		m.logger.Warn("failed to delete remote session", slog.String("error", err.Error()))
	}

	m.set(nil, StateAnonymous)
	m.logger.Info("logged out")
}

// UpdateProfile は表示名・パスワードを更新し、成功後にIdentityをバックエンドから再取得する。
// パスワード変更には現在のパスワードが必須で、未指定の場合はネットワーク呼び出し前に失敗する。
func (m *Manager) UpdateProfile(ctx context.Context, in ProfileUpdate) (*model.Identity, error) {
	// 1. ローカル検証
	if in.NewPassword != "" {
		if in.CurrentPassword == "" {
			return nil, model.NewAuthError(model.AuthMissingCurrentPassword, nil)
		}
		if model.IsWeakPassword(in.NewPassword) {
			return nil, model.NewAuthError(model.AuthWeakPassword, nil)
		}
	}

	current := m.Current()
	if current == nil {
		return nil, model.ErrNotAuthenticated
	}

	defer m.begin()()
	gen := m.generation()

	// 2. 表示名の更新（変更がある場合のみ）
	renamed := false
	if in.Name != nil && *in.Name != current.Name {
		if err := m.gw.UpdateDisplayName(ctx, *in.Name); err != nil {
			m.logger.Warn("failed to update display name",
				slog.String("user_id", current.ID),
				slog.String("error", err.Error()),
			)
			return nil, m.classify(gen, err)
		}
		renamed = true
	}

	// 3. パスワードの更新
	if in.NewPassword != "" {
		if err := m.gw.UpdatePassword(ctx, in.NewPassword, in.CurrentPassword); err != nil {
			m.logger.Warn("failed to update password",
				slog.String("user_id", current.ID),
				slog.String("error", err.Error()),
			)
			classified := gateway.ClassifyAuth(err)
			if classified == model.ErrNotAuthenticated {
				m.publish(gen, nil, StateAnonymous)
				return nil, classified
			}
			// 表示名はすでに変更済みのため、サーバーの状態を取り込んでから失敗を返す
			if renamed {
				if _, rerr := m.refresh(ctx, gen); rerr != nil {
					m.logger.Warn("identity refetch after partial update failed",
						slog.String("user_id", current.ID),
						slog.String("error", rerr.Error()),
					)
				}
			}
			return nil, classified
		}
	}

	// 4. サーバー側の状態を正としてIdentityを再取得
	return m.refresh(ctx, gen)
}

// Refresh はIdentityをバックエンドから再取得する。
// セッションが失効していた場合はIdentityをクリアし ErrNotAuthenticated を返す。
// それ以外のエラーではIdentityを変更しない。
func (m *Manager) Refresh(ctx context.Context) (*model.Identity, error) {
	defer m.begin()()
	return m.refresh(ctx, m.generation())
}

// refresh はgenの時点から他の操作がIdentityを書き換えていない場合だけ結果を公開する。
func (m *Manager) refresh(ctx context.Context, gen uint64) (*model.Identity, error) {
	identity, err := m.gw.GetCurrentIdentity(ctx)
	if err != nil {
		return nil, m.classify(gen, err)
	}
	if !m.publish(gen, identity, StateAuthenticated) {
		m.logger.Info("discarding stale identity refetch")
		return m.Current(), nil
	}
	return cloneIdentity(identity), nil
}

// classify はゲートウェイのエラーを分類し、セッション失効の場合はIdentityをクリアする。
func (m *Manager) classify(gen uint64, err error) error {
	classified := gateway.Classify(err)
	if classified == model.ErrNotAuthenticated {
		m.logger.Info("session expired")
		m.publish(gen, nil, StateAnonymous)
	}
	return classified
}

// --- 状態セル ---

// Current は現在のIdentityのコピーを返す。未認証の場合はnil。
func (m *Manager) Current() *model.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneIdentity(m.identity)
}

// State は現在の状態を返す。
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Busy は処理中の操作があるかどうかを返す。
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight > 0
}

// Snapshot は現在の状態のスナップショットを返す。
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe は状態変更の通知を登録し、解除用の関数を返す。
// 登録直後に現在の状態で一度呼び出される。
// 通知は1つずつ順に届き、各通知はその時点の最新の状態を表す。
// 通知関数の中から状態を変更する操作（Login・Logoutなど）を呼んではならない。
func (m *Manager) Subscribe(fn func(Snapshot)) (cancel func()) {
	m.notifyMu.Lock()
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	snap := m.snapshotLocked()
	m.mu.Unlock()

	fn(snap)
	m.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// begin は処理中カウンタを増やし、減らす関数を返す。
func (m *Manager) begin() func() {
	m.mutate(func() bool { m.inflight++; return true })
	return func() {
		m.mutate(func() bool { m.inflight--; return true })
	}
}

func (m *Manager) generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// set はIdentityを無条件に書き換える。LoginとLogoutが使う。
func (m *Manager) set(identity *model.Identity, state State) {
	m.mutate(func() bool {
		m.assignLocked(identity, state)
		return true
	})
}

// publish はgenから世代が進んでいない場合だけIdentityを書き換え、書き換えたかどうかを返す。
func (m *Manager) publish(gen uint64, identity *model.Identity, state State) bool {
	applied := false
	m.mutate(func() bool {
		if m.gen != gen {
			return false
		}
		m.assignLocked(identity, state)
		applied = true
		return true
	})
	return applied
}

func (m *Manager) assignLocked(identity *model.Identity, state State) {
	m.identity = cloneIdentity(identity)
	m.state = state
	m.gen++
}

// mutate はロック下で状態を変更し、変更があれば購読者へ通知する。
// 配送はnotifyMuで直列化し、配送時点の状態を読み直すため、最後の通知は常に最新の状態になる。
func (m *Manager) mutate(fn func() bool) {
	m.mu.Lock()
	changed := fn()
	m.mu.Unlock()
	if !changed {
		return
	}

	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	snap := m.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s(snap)
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		Identity: cloneIdentity(m.identity),
		State:    m.state,
		Busy:     m.inflight > 0,
	}
}

func cloneIdentity(identity *model.Identity) *model.Identity {
	if identity == nil {
		return nil
	}
	c := *identity
	c.Preferences = maps.Clone(identity.Preferences)
	return &c
}

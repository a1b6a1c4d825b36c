// Package session は認証済みセッションの保持とライフサイクル管理を提供する。
// セッションの状態遷移（ログイン/登録/ログアウト/無効化）はすべてこのパッケージが
// 所有し、他コンポーネントは読み取りのみを行う。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/feedsync/internal/model"
)

// Authenticator はセッション発行に必要なリモート操作のインターフェース。
// api.RemoteServiceの部分集合として定義する。
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*model.Session, error)
	RegisterAccount(ctx context.Context, username, password string) (*model.Session, error)
}

// Hooks はセッションの状態遷移に対するコールバック群。
// 全フィールドはnil可。フックはロックの外で呼び出されるため、
// フック内からManagerのメソッドを呼び出しても安全。
type Hooks struct {
	// OnLogin はログイン/登録成功後に呼ばれる（フィードストアの全量取得のトリガー）。
	OnLogin func(ctx context.Context, sess *model.Session)
	// OnClear はログアウト/無効化後に呼ばれる（フィードストアのクリアのトリガー）。
	OnClear func()
	// OnExpired は無効化時のみ呼ばれる（「セッション切れ」のUI表示とログイン導線の再提示）。
	OnExpired func()
}

// Manager はセッションコンテキストを管理する。
// 現在のセッションはManagerのみが書き換え、他コンポーネントは
// Current()のスナップショットをその呼び出し限りで有効なものとして扱う。
type Manager struct {
	remote Authenticator
	logger *slog.Logger
	hooks  Hooks

	mu      sync.Mutex
	current *model.Session
}

// NewManager はManagerの新しいインスタンスを生成する。
func NewManager(remote Authenticator, logger *slog.Logger, hooks Hooks) *Manager {
	return &Manager{
		remote: remote,
		logger: logger,
		hooks:  hooks,
	}
}

// Current は現在のセッションを返す。未認証の場合はnilを返す。
// 返り値は呼び出し時点のスナップショットであり、保持し続けてはならない。
func (m *Manager) Current() *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Login はユーザー名とパスワードで認証し、セッションを確立する。
// 成功時はOnLoginフックを発火する（フィードストアが全量取得を行う）。
func (m *Manager) Login(ctx context.Context, username, password string) (*model.Session, error) {
	return m.establish(ctx, username, password, m.remote.Authenticate, "login")
}

// Register はアカウントを新規登録し、セッションを確立する。
// 成功時の挙動はLoginと同一。
func (m *Manager) Register(ctx context.Context, username, password string) (*model.Session, error) {
	return m.establish(ctx, username, password, m.remote.RegisterAccount, "register")
}

// establish は認証系操作の共通処理。
func (m *Manager) establish(
	ctx context.Context,
	username, password string,
	call func(ctx context.Context, username, password string) (*model.Session, error),
	operation string,
) (*model.Session, error) {
	// 資格情報の事前検証（ネットワーク呼び出しなしで拒否）
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, model.NewAuthFailedError("ユーザー名とパスワードは必須です")
	}

	sess, err := call(ctx, username, password)
	if err != nil {
		m.logger.Warn("認証に失敗しました",
			slog.String("operation", operation),
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return nil, model.NewAuthFailedError(err.Error())
	}
	if !sess.HasToken() {
		return nil, model.NewAuthFailedError("リモートサービスがトークンを返しませんでした")
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	m.logger.Info("セッションを確立しました",
		slog.String("operation", operation),
		slog.String("user_id", sess.UserID()),
	)

	if m.hooks.OnLogin != nil {
		m.hooks.OnLogin(ctx, sess)
	}
	return sess, nil
}

// Logout はセッションを破棄する。
// OnClearフックを発火する（フィードストアがクリアされる）。
// 未認証状態での呼び出しは何もしない。
func (m *Manager) Logout() {
	if !m.clear() {
		return
	}
	m.logger.Info("ログアウトしました")
	if m.hooks.OnClear != nil {
		m.hooks.OnClear()
	}
}

// Invalidate はリモートサービスの401応答を受けてセッションを強制破棄する。
// OnClearに加えてOnExpiredフックを発火し、UIコラボレーターに
// 「セッション切れ」を通知する。未認証状態での呼び出しは何もしない。
func (m *Manager) Invalidate() {
	if !m.clear() {
		return
	}
	m.logger.Warn("セッションを無効化しました")
	if m.hooks.OnClear != nil {
		m.hooks.OnClear()
	}
	if m.hooks.OnExpired != nil {
		m.hooks.OnExpired()
	}
}

// clear はセッションを破棄し、破棄が行われたかどうかを返す。
func (m *Manager) clear() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return false
	}
	m.current = nil
	return true
}

// RequireToken は現在のセッションからトークンのスナップショットを取り出す。
// 未認証の場合はAuthRequiredエラーを返す。
func (m *Manager) RequireToken(operation string) (string, error) {
	sess := m.Current()
	if !sess.HasToken() {
		return "", model.NewAuthRequiredError(operation)
	}
	return sess.Token, nil
}

// String はデバッグ用の状態表現を返す。トークンそのものは含めない。
func (m *Manager) String() string {
	sess := m.Current()
	if sess == nil {
		return "session(anonymous)"
	}
	return fmt.Sprintf("session(user_id=%s)", sess.UserID())
}

// Package model はドメインモデルを定義する。
package model

// UserRef はユーザーへの弱参照を表す。
// ストアはUserRefを投稿の所有者として扱わない（著者性は関係であり所有ではない）。
// 同一ユーザーが異なるペイロード経由で届くことがあるため、
// 同一性の比較は必ずIDの等価性で行う。
type UserRef struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Followers []string `json:"followers"`
}

// Is は2つのUserRefが同一ユーザーを指しているかをID等価で判定する。
func (u *UserRef) Is(other *UserRef) bool {
	if u == nil || other == nil {
		return false
	}
	return u.ID != "" && u.ID == other.ID
}

// Session は認証済みセッションを表す。
// ログイン/登録成功時にのみ生成され、ログアウトまたは401応答で破棄される。
// Tokenはその呼び出しのために取得したスナップショットとして扱うこと。
type Session struct {
	User  *UserRef `json:"user"`
	Token string   `json:"token"`
}

// HasToken はセッションが有効なトークンを保持しているかを返す。
// nilセッションに対しても安全に呼び出せる。
func (s *Session) HasToken() bool {
	return s != nil && s.Token != ""
}

// UserID は認証済みユーザーのIDを返す。未認証の場合は空文字列を返す。
func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}

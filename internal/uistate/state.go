// Package uistate は同期に参加しない一時的なUI状態を保持する。
// どのコメントを編集中か、どの投稿の共有パネルが開いているか、
// 投稿ごとのコメント下書きなど、権威を持たないプロセスローカルな状態のみを扱う。
// リモートサービスへは一切送信されない。
package uistate

import "sync"

// State は一時的なUI状態を保持する。
// セッションのクリア時にReset()で全て破棄される。
type State struct {
	mu             sync.Mutex
	editingComment string            // 編集中のコメントID（空なら編集中なし）
	sharePanelPost string            // 共有パネルが開いている投稿ID（空なら閉）
	drafts         map[string]string // 投稿ID → コメント下書き
}

// New はStateの新しいインスタンスを生成する。
func New() *State {
	return &State{
		drafts: make(map[string]string),
	}
}

// StartEditing はコメントの編集を開始する。既に別のコメントを編集中の場合は置き換える。
func (s *State) StartEditing(commentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editingComment = commentID
}

// StopEditing はコメントの編集を終了する。
func (s *State) StopEditing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editingComment = ""
}

// EditingComment は編集中のコメントIDを返す。編集中でない場合は空文字列を返す。
func (s *State) EditingComment() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editingComment
}

// ToggleSharePanel は投稿の共有パネルの開閉を切り替える。
// 別の投稿のパネルが開いていた場合はそちらを閉じて指定の投稿を開く。
func (s *State) ToggleSharePanel(postID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sharePanelPost == postID {
		s.sharePanelPost = ""
		return
	}
	s.sharePanelPost = postID
}

// OpenSharePanel は共有パネルが開いている投稿IDを返す。閉じている場合は空文字列を返す。
func (s *State) OpenSharePanel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sharePanelPost
}

// SetDraft は投稿のコメント下書きを保存する。空文字列を渡すと下書きを破棄する。
func (s *State) SetDraft(postID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text == "" {
		delete(s.drafts, postID)
		return
	}
	s.drafts[postID] = text
}

// Draft は投稿のコメント下書きを返す。下書きがない場合は空文字列を返す。
func (s *State) Draft(postID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drafts[postID]
}

// Reset は全ての一時状態を破棄する。ログアウト/セッション無効化時に呼ばれる。
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editingComment = ""
	s.sharePanelPost = ""
	s.drafts = make(map[string]string)
}

// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrUnauthorized はリモートサービスが401相当の応答を返したことを示す番兵エラー。
// トランスポート層（api）が返し、ストア/コーディネーター境界で
// SessionExpiredに変換される。セッション無効化の唯一のトリガー。
var ErrUnauthorized = errors.New("リモートサービスが認証エラー（401）を返しました")

// SyncError は同期層の統一エラーフォーマットを表す。
// UIコラボレーターに表示する原因カテゴリと対処方法を含む。
type SyncError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, sync
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *SyncError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthRequired     = "AUTH_REQUIRED"
	ErrCodeSessionExpired   = "SESSION_EXPIRED"
	ErrCodeFetchFailed      = "FETCH_FAILED"
	ErrCodeMutationFailed   = "MUTATION_FAILED"
	ErrCodeEmptyComment     = "EMPTY_COMMENT"
	ErrCodeNotCommentAuthor = "NOT_COMMENT_AUTHOR"
	ErrCodeInvalidReaction  = "INVALID_REACTION"
	ErrCodeAuthFailed       = "AUTH_FAILED"
)

// NewAuthRequiredError はセッションなしで認証必須の操作を試みた場合のエラーを生成する。
// ハードエラーとしては扱わず、ログイン導線の提示によってローカルに回復する。
func NewAuthRequiredError(operation string) *SyncError {
	return &SyncError{
		Code:     ErrCodeAuthRequired,
		Message:  fmt.Sprintf("この操作にはログインが必要です: %s", operation),
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewSessionExpiredError はリモートサービスの401応答によるセッション失効エラーを生成する。
func NewSessionExpiredError() *SyncError {
	return &SyncError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションの有効期限が切れました。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewFetchFailedError はフィード取得が認証以外の理由で失敗した場合のエラーを生成する。
// 直前のフィード内容は保持される。再試行はユーザー操作によってのみ行われる。
func NewFetchFailedError(reason string) *SyncError {
	return &SyncError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("フィードの読み込みに失敗しました: %s", reason),
		Category: "sync",
		Action:   "しばらく待ってから再読み込みしてください。",
	}
}

// NewMutationFailedError は書き込み操作が認証以外の理由で失敗した場合のエラーを生成する。
// ローカル状態は変更されない（悲観的書き込み設計のため部分適用は発生しない）。
func NewMutationFailedError(operation, reason string) *SyncError {
	return &SyncError{
		Code:     ErrCodeMutationFailed,
		Message:  fmt.Sprintf("%s に失敗しました: %s", operation, reason),
		Category: "sync",
		Action:   "同じ操作をもう一度お試しください。",
	}
}

// NewEmptyCommentError は空または空白のみのコメント本文エラーを生成する。
// ネットワーク呼び出しの前にローカルで拒否される。
func NewEmptyCommentError() *SyncError {
	return &SyncError{
		Code:     ErrCodeEmptyComment,
		Message:  "コメント本文が空です。",
		Category: "validation",
		Action:   "コメント本文を入力してください。",
	}
}

// NewNotCommentAuthorError はコメント著者以外による編集試行エラーを生成する。
// クライアント側でも防御的に強制される（権限の最終的な権威はサーバー）。
func NewNotCommentAuthorError(commentID string) *SyncError {
	return &SyncError{
		Code:     ErrCodeNotCommentAuthor,
		Message:  fmt.Sprintf("自分以外のコメントは編集できません: %s", commentID),
		Category: "validation",
		Action:   "編集できるのは自分のコメントのみです。",
	}
}

// NewInvalidReactionError は未定義のリアクション種別エラーを生成する。
func NewInvalidReactionError(typ string) *SyncError {
	return &SyncError{
		Code:     ErrCodeInvalidReaction,
		Message:  fmt.Sprintf("無効なリアクション種別です: %s", typ),
		Category: "validation",
		Action:   "リアクションには LIKE または LOVE を指定してください。",
	}
}

// NewAuthFailedError はログイン/登録の失敗エラーを生成する。
func NewAuthFailedError(reason string) *SyncError {
	return &SyncError{
		Code:     ErrCodeAuthFailed,
		Message:  fmt.Sprintf("認証に失敗しました: %s", reason),
		Category: "auth",
		Action:   "ユーザー名とパスワードを確認してください。",
	}
}

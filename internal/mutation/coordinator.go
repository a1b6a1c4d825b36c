// Package mutation は認証済みの書き込み操作とその結果のローカル整合を提供する。
// 各操作は「リクエスト → 待機 → 整合」の単一ユニットであり、成功時のみ
// リモートが返した権威あるエンティティをフィードストアに反映する
// （悲観的書き込み設計。失敗した呼び出しの部分的な書き込みは残らない）。
// 自動リトライは行わず、再試行はすべてユーザー操作による。
package mutation

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hitoshi/feedsync/internal/model"
)

// Remote はミューテーションに必要なリモート操作のインターフェース。
// api.RemoteServiceの部分集合として定義する。
type Remote interface {
	PostComment(ctx context.Context, postID, text, token string) (*model.Post, error)
	EditComment(ctx context.Context, postID, commentID, text, token string) (*model.Post, error)
	DeleteComment(ctx context.Context, commentID, token string) error
	ReactToPost(ctx context.Context, postID string, typ model.ReactionType, token string) (*model.Post, error)
	FollowUser(ctx context.Context, userID, token string) ([]string, error)
}

// Store はミューテーション結果の反映に必要なフィードストア操作のインターフェース。
type Store interface {
	Find(postID string) *model.Post
	Patch(postID string, updated *model.Post) bool
	RemoveComment(postID, commentID string) bool
	PatchFollowers(postID string, followers []string) bool
}

// Sessions はセッションの読み取りと無効化のインターフェース。
// session.Managerの部分集合として定義する。
type Sessions interface {
	Current() *model.Session
	Invalidate()
}

// Notifier はUIコラボレーターへのシグナルのインターフェース。
type Notifier interface {
	// OpenLogin は認証フローを開くようUIに要求する。
	OpenLogin()
}

// MutationRecorder はミューテーションの観測に必要なインターフェース。
// metrics.Collectorの部分集合として定義する。
type MutationRecorder interface {
	RecordMutationSuccess(kind string)
	RecordMutationFailure(kind, reason string)
}

// Coordinator は5種のミューテーションを調整する。
// 全操作は共通の失敗方針に従う: 401応答はセッションを無効化して
// SessionExpiredを返し、その他の失敗はMutationFailedを返して
// フィードストアを変更しない。
type Coordinator struct {
	remote   Remote
	store    Store
	sessions Sessions
	notifier Notifier
	metrics  MutationRecorder // nil可（観測なし）
	logger   *slog.Logger
}

// NewCoordinator はCoordinatorの新しいインスタンスを生成する。
// metricsにnilを渡した場合は観測を行わない。
func NewCoordinator(
	remote Remote,
	store Store,
	sessions Sessions,
	notifier Notifier,
	metrics MutationRecorder,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		remote:   remote,
		store:    store,
		sessions: sessions,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// AddComment は投稿にコメントを追加する。
// 空または空白のみの本文はネットワーク呼び出しなしでローカルに拒否する。
// 未認証の場合は操作を静かに破棄する（ログのみ。ハードエラーにはしない）。
// 成功時はリモートが返した更新後のPost全体をストアにpatchする。
func (c *Coordinator) AddComment(ctx context.Context, postID, text string) error {
	if strings.TrimSpace(text) == "" {
		return model.NewEmptyCommentError()
	}

	sess := c.sessions.Current()
	if !sess.HasToken() {
		c.logger.Info("未認証のコメント追加を破棄しました",
			slog.String("post_id", postID),
		)
		return model.NewAuthRequiredError("addComment")
	}

	post, err := c.remote.PostComment(ctx, postID, text, sess.Token)
	if err != nil {
		return c.remoteFailure("add_comment", "コメントの追加", err)
	}

	c.store.Patch(postID, post)
	c.recordSuccess("add_comment")
	return nil
}

// EditComment はコメントを編集する。
// 呼び出しユーザーの同一性がコメント著者と一致する場合のみ許可される。
// 権限はサーバーでも強制されるが、クライアント側でも防御的に
// ネットワーク呼び出しの前に検証する。同一性の比較はIDの等価性で行う
// （同一ユーザーが異なるペイロード経由で届くことがあるため）。
func (c *Coordinator) EditComment(ctx context.Context, postID, commentID, text string) error {
	if strings.TrimSpace(text) == "" {
		return model.NewEmptyCommentError()
	}

	sess := c.sessions.Current()
	if !sess.HasToken() {
		c.logger.Info("未認証のコメント編集を破棄しました",
			slog.String("post_id", postID),
			slog.String("comment_id", commentID),
		)
		return model.NewAuthRequiredError("editComment")
	}

	post := c.store.Find(postID)
	if post == nil {
		return model.NewMutationFailedError("コメントの編集", "投稿が見つかりません: "+postID)
	}
	comment := post.FindComment(commentID)
	if comment == nil {
		return model.NewMutationFailedError("コメントの編集", "コメントが見つかりません: "+commentID)
	}
	if comment.Author.ID != sess.UserID() {
		c.logger.Warn("著者以外によるコメント編集を拒否しました",
			slog.String("comment_id", commentID),
			slog.String("author_id", comment.Author.ID),
			slog.String("user_id", sess.UserID()),
		)
		return model.NewNotCommentAuthorError(commentID)
	}

	updated, err := c.remote.EditComment(ctx, postID, commentID, text, sess.Token)
	if err != nil {
		return c.remoteFailure("edit_comment", "コメントの編集", err)
	}

	c.store.Patch(postID, updated)
	c.recordSuccess("edit_comment")
	return nil
}

// DeleteComment はコメントを削除する。
// この層では無条件に許可される（権限の権威はサーバー）。
// 削除のリモート応答にはPost本体が含まれないため、
// 成功時はストアのRemoveCommentでローカルのみを更新する。
func (c *Coordinator) DeleteComment(ctx context.Context, postID, commentID string) error {
	sess := c.sessions.Current()
	if !sess.HasToken() {
		c.logger.Info("未認証のコメント削除を破棄しました",
			slog.String("comment_id", commentID),
		)
		return model.NewAuthRequiredError("deleteComment")
	}

	if err := c.remote.DeleteComment(ctx, commentID, sess.Token); err != nil {
		return c.remoteFailure("delete_comment", "コメントの削除", err)
	}

	c.store.RemoveComment(postID, commentID)
	c.recordSuccess("delete_comment")
	return nil
}

// ToggleReaction は呼び出しユーザーのリアクションを追加/置換する。
// UIからはファイアアンドフォーゲットだが、patchの前に必ず結果を待機する。
// 未認証の場合は操作を静かに破棄する。
func (c *Coordinator) ToggleReaction(ctx context.Context, postID string, typ model.ReactionType) error {
	if !typ.IsValid() {
		return model.NewInvalidReactionError(string(typ))
	}

	sess := c.sessions.Current()
	if !sess.HasToken() {
		c.logger.Info("未認証のリアクションを破棄しました",
			slog.String("post_id", postID),
		)
		return model.NewAuthRequiredError("toggleReaction")
	}

	post, err := c.remote.ReactToPost(ctx, postID, typ, sess.Token)
	if err != nil {
		return c.remoteFailure("toggle_reaction", "リアクション", err)
	}

	c.store.Patch(postID, post)
	c.recordSuccess("toggle_reaction")
	return nil
}

// Follow は投稿の著者（targetUserID）をフォローする。
// 未認証の場合は失敗させる代わりに認証フローを開くようUIに要求する。
// 成功時の応答はフォローされたユーザーの更新後フォロワー列であり
// 投稿ではないため、ストアのPatchFollowersで反映する。
func (c *Coordinator) Follow(ctx context.Context, postID, targetUserID string) error {
	sess := c.sessions.Current()
	if !sess.HasToken() {
		c.logger.Info("未認証のフォロー操作のためログイン導線を開きます",
			slog.String("target_user_id", targetUserID),
		)
		c.notifier.OpenLogin()
		return nil
	}

	followers, err := c.remote.FollowUser(ctx, targetUserID, sess.Token)
	if err != nil {
		return c.remoteFailure("follow", "フォロー", err)
	}

	c.store.PatchFollowers(postID, followers)
	c.recordSuccess("follow")
	return nil
}

// remoteFailure はリモート呼び出し失敗の共通処理。
// 401応答はセッションを無効化してSessionExpiredを返す。
// その他の失敗はログに記録し、MutationFailedを返す（ストアは変更されない）。
func (c *Coordinator) remoteFailure(kind, operation string, err error) error {
	if errors.Is(err, model.ErrUnauthorized) {
		c.sessions.Invalidate()
		if c.metrics != nil {
			c.metrics.RecordMutationFailure(kind, "unauthorized")
		}
		return model.NewSessionExpiredError()
	}
	c.logger.Error("ミューテーションに失敗しました",
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
	if c.metrics != nil {
		c.metrics.RecordMutationFailure(kind, "remote")
	}
	return model.NewMutationFailedError(operation, err.Error())
}

// recordSuccess はミューテーション成功を観測に記録する。
func (c *Coordinator) recordSuccess(kind string) {
	if c.metrics != nil {
		c.metrics.RecordMutationSuccess(kind)
	}
}

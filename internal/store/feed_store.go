// Package store はフィードのローカル権威コレクションを提供する。
// リモートサービスから取得した投稿列の全量置換（refresh）と、
// ミューテーション成功後の部分的な整合（patch系）を担う。
// ストアが唯一の可変共有リソースであり、二つのコンポーネントが
// 食い違ったコピーを持つことはない。
package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/security"
)

// PostFetcher はフィード全量取得に必要なリモート操作のインターフェース。
// api.RemoteServiceの部分集合として定義する。
type PostFetcher interface {
	FetchPosts(ctx context.Context, token string) ([]model.Post, error)
}

// SessionInvalidator はセッション無効化のインターフェース。
// session.Managerの部分集合として定義する。
type SessionInvalidator interface {
	Invalidate()
}

// RefreshRecorder はフィード取得の観測に必要なインターフェース。
// metrics.Collectorの部分集合として定義する。
type RefreshRecorder interface {
	RecordRefreshSuccess(postCount int)
	RecordRefreshFailure(reason string)
}

// FeedStore は投稿のローカルコレクションを保持する。
// 取り込み時に本文のサニタイズとリアクションの重複排除を行う。
// 外に出す投稿は全てクローンであり、内部状態と共有されない。
type FeedStore struct {
	remote      PostFetcher
	invalidator SessionInvalidator
	sanitizer   security.ContentSanitizerService
	metrics     RefreshRecorder // nil可（観測なし）
	logger      *slog.Logger

	mu    sync.Mutex
	posts []model.Post
	// latestGen は最後に開始されたrefreshの世代番号。
	// 古いrefreshの結果が新しいrefreshの結果を上書きしないためのフェンス。
	latestGen uint64
}

// NewFeedStore はFeedStoreの新しいインスタンスを生成する。
// metricsにnilを渡した場合は観測を行わない。
func NewFeedStore(
	remote PostFetcher,
	invalidator SessionInvalidator,
	sanitizer security.ContentSanitizerService,
	metrics RefreshRecorder,
	logger *slog.Logger,
) *FeedStore {
	return &FeedStore{
		remote:      remote,
		invalidator: invalidator,
		sanitizer:   sanitizer,
		metrics:     metrics,
		logger:      logger,
	}
}

// Refresh はリモートサービスから投稿の全量を取得し、ローカルコレクションを
// 原子的に置換する（部分マージは行わず、取得した列が新しい正となる）。
//
// 失敗時の方針:
//   - トークンなし: リモートに接続せず即座にAuthRequiredで失敗する
//   - 401応答: セッションを無効化し、SessionExpiredを返す
//   - その他の失敗: FetchFailedを返し、直前のコレクションを保持する
//     （空のフィードではなく「読み込み失敗」として見える）
//
// 取得開始後により新しいRefreshが開始されていた場合、この結果は破棄され、
// 現在のコレクションのスナップショットが返る。
func (s *FeedStore) Refresh(ctx context.Context, sess *model.Session) ([]model.Post, error) {
	if !sess.HasToken() {
		return nil, model.NewAuthRequiredError("refresh")
	}

	s.mu.Lock()
	s.latestGen++
	gen := s.latestGen
	s.mu.Unlock()

	posts, err := s.remote.FetchPosts(ctx, sess.Token)
	if err != nil {
		if errors.Is(err, model.ErrUnauthorized) {
			s.invalidator.Invalidate()
			if s.metrics != nil {
				s.metrics.RecordRefreshFailure("unauthorized")
			}
			return nil, model.NewSessionExpiredError()
		}
		s.logger.Error("フィードの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		if s.metrics != nil {
			s.metrics.RecordRefreshFailure("fetch")
		}
		return nil, model.NewFetchFailedError(err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.latestGen {
		// より新しいrefreshが開始済み。この古い結果では上書きしない。
		s.logger.Info("古いrefresh結果を破棄しました",
			slog.Uint64("generation", gen),
			slog.Uint64("latest_generation", s.latestGen),
		)
		return snapshotLocked(s.posts), nil
	}

	ingested := make([]model.Post, len(posts))
	for i := range posts {
		ingested[i] = *s.normalize(&posts[i])
	}
	s.posts = ingested

	if s.metrics != nil {
		s.metrics.RecordRefreshSuccess(len(ingested))
	}
	s.logger.Info("フィードを置換しました",
		slog.Int("post_count", len(ingested)),
	)
	return snapshotLocked(s.posts), nil
}

// Posts は現在のコレクションのスナップショットをサーバー順で返す。
// 返される投稿はクローンであり、変更してもストアには影響しない。
func (s *FeedStore) Posts() []model.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshotLocked(s.posts)
}

// Find はIDが一致する投稿のクローンを返す。見つからない場合はnilを返す。
func (s *FeedStore) Find(postID string) *model.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.posts {
		if s.posts[i].ID == postID {
			return s.posts[i].Clone()
		}
	}
	return nil
}

// Len は現在保持している投稿数を返す。
func (s *FeedStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}

// Patch はIDが一致する単一の投稿をその場で置換する。
// 他の投稿の位置と同一性は保たれる。ミューテーション成功時に
// リモートが返した権威ある投稿を反映するために使う。
// 該当IDの投稿が存在しない場合（例: 置換前にストアがクリアされた場合）は
// 何もせずfalseを返す。
func (s *FeedStore) Patch(postID string, updated *model.Post) bool {
	if updated == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.posts {
		if s.posts[i].ID == postID {
			s.posts[i] = *s.normalize(updated)
			return true
		}
	}
	s.logger.Warn("patch対象の投稿が見つかりません",
		slog.String("post_id", postID),
	)
	return false
}

// RemoveComment は単一投稿のコメント列から1件のコメントを取り除く。
// コメント削除のリモート応答にはPost本体が含まれないため、
// Post全体の往復なしでローカルのみを更新する。
func (s *FeedStore) RemoveComment(postID, commentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.posts {
		if s.posts[i].ID != postID {
			continue
		}
		comments := s.posts[i].Comments
		for j := range comments {
			if comments[j].ID == commentID {
				s.posts[i].Comments = append(comments[:j:j], comments[j+1:]...)
				return true
			}
		}
		return false
	}
	return false
}

// PatchFollowers は投稿の著者のフォロワー列のみを更新する。
// フォロー操作のリモート応答はフォローされたユーザーの更新後レコードであり
// 投稿ではないため、他のフィールドには触れない。
// 同一著者の投稿すべてに反映する（著者は関係であり、複数投稿で共有される）。
func (s *FeedStore) PatchFollowers(postID string, followers []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var authorID string
	for i := range s.posts {
		if s.posts[i].ID == postID {
			authorID = s.posts[i].Author.ID
			break
		}
	}
	if authorID == "" {
		return false
	}

	for i := range s.posts {
		if s.posts[i].Author.ID == authorID {
			copied := make([]string, len(followers))
			copy(copied, followers)
			s.posts[i].Author.Followers = copied
		}
	}
	return true
}

// Clear はコレクションを空にする。ログアウト/セッション無効化時に呼ばれる。
func (s *FeedStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = nil
}

// normalize は取り込み時の正規化を行う。
//   - 投稿本文とコメント本文をサニタイズする（他ユーザー由来の信頼できないHTML）
//   - リアクションをユーザー単位で重複排除する（サーバー順で最後のものを残す）
func (s *FeedStore) normalize(p *model.Post) *model.Post {
	clone := p.Clone()
	clone.Content = s.sanitizer.Sanitize(clone.Content)
	for i := range clone.Comments {
		clone.Comments[i].Text = s.sanitizer.Sanitize(clone.Comments[i].Text)
	}
	clone.Reactions = dedupeReactions(clone.Reactions)
	return clone
}

// dedupeReactions はユーザーごとに最後のリアクションのみを残す。
// UIのトグル前提（1ユーザー1投稿1リアクション）をストア側で保証する。
// 順序は残ったリアクションの元の出現順を保持する。
func dedupeReactions(reactions []model.Reaction) []model.Reaction {
	if len(reactions) <= 1 {
		return reactions
	}
	last := make(map[string]int, len(reactions))
	for i, r := range reactions {
		last[r.UserID] = i
	}
	if len(last) == len(reactions) {
		return reactions
	}
	deduped := make([]model.Reaction, 0, len(last))
	for i, r := range reactions {
		if last[r.UserID] == i {
			deduped = append(deduped, r)
		}
	}
	return deduped
}

// snapshotLocked は投稿列のクローンを返す。呼び出し側でロックを保持していること。
func snapshotLocked(posts []model.Post) []model.Post {
	out := make([]model.Post, len(posts))
	for i := range posts {
		out[i] = *posts[i].Clone()
	}
	return out
}

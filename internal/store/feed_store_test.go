package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/security"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// --- テスト用モック ---

// mockFetcher はPostFetcherのモック。
type mockFetcher struct {
	mu      sync.Mutex
	fetchFn func(ctx context.Context, token string) ([]model.Post, error)
	calls   int
}

func (m *mockFetcher) FetchPosts(ctx context.Context, token string) ([]model.Post, error) {
	m.mu.Lock()
	m.calls++
	fn := m.fetchFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, token)
	}
	return nil, nil
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockInvalidator はSessionInvalidatorのモック。
type mockInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (m *mockInvalidator) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
}

func (m *mockInvalidator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestStore(fetcher *mockFetcher, invalidator *mockInvalidator) *FeedStore {
	return NewFeedStore(fetcher, invalidator, security.NewContentSanitizer(), nil, newTestLogger())
}

func testSession() *model.Session {
	return &model.Session{
		User:  &model.UserRef{ID: "u1", Username: "hitoshi"},
		Token: "token-1",
	}
}

// --- Refresh のテスト ---

// TestRefresh_NoToken_FailsWithoutNetworkCall はトークンなしのrefreshが
// リモートに接続せずAuthRequiredで失敗し、ストアが以前の状態のままであることをテストする。
func TestRefresh_NoToken_FailsWithoutNetworkCall(t *testing.T) {
	fetcher := &mockFetcher{}
	s := newTestStore(fetcher, &mockInvalidator{})

	_, err := s.Refresh(context.Background(), nil)
	var syncErr *model.SyncError
	if !errors.As(err, &syncErr) || syncErr.Code != model.ErrCodeAuthRequired {
		t.Fatalf("err = %v, want AuthRequired", err)
	}
	if fetcher.callCount() != 0 {
		t.Errorf("リモート呼び出し数 = %d, want 0", fetcher.callCount())
	}
	if s.Len() != 0 {
		t.Errorf("初回ロード前のストアは空のままであるべき: %d件", s.Len())
	}
}

func TestRefresh_Success_ReplacesCollection(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, token string) ([]model.Post, error) {
			if token != "token-1" {
				t.Errorf("token = %q, want %q", token, "token-1")
			}
			return []model.Post{
				{ID: "1", Title: "first"},
				{ID: "2", Title: "second"},
			}, nil
		},
	}
	s := newTestStore(fetcher, &mockInvalidator{})

	posts, err := s.Refresh(context.Background(), testSession())
	if err != nil {
		t.Fatalf("Refresh がエラーを返した: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("取得件数 = %d, want 2", len(posts))
	}
	// サーバーの返した順序が保たれる
	if posts[0].ID != "1" || posts[1].ID != "2" {
		t.Errorf("投稿順序 = [%s %s], want [1 2]", posts[0].ID, posts[1].ID)
	}
}

func TestRefresh_Unauthorized_InvalidatesSession(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, token string) ([]model.Post, error) {
			return nil, model.ErrUnauthorized
		},
	}
	invalidator := &mockInvalidator{}
	s := newTestStore(fetcher, invalidator)

	_, err := s.Refresh(context.Background(), testSession())
	var syncErr *model.SyncError
	if !errors.As(err, &syncErr) || syncErr.Code != model.ErrCodeSessionExpired {
		t.Fatalf("err = %v, want SessionExpired", err)
	}
	if invalidator.callCount() != 1 {
		t.Errorf("Invalidate呼び出し数 = %d, want 1", invalidator.callCount())
	}
}

// TestRefresh_OtherFailure_KeepsPreviousCollection は認証以外の失敗時に
// 直前のコレクションが保持されることをテストする（空のフィードではなく「読み込み失敗」）。
func TestRefresh_OtherFailure_KeepsPreviousCollection(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, token string) ([]model.Post, error) {
			return []model.Post{{ID: "1", Title: "kept"}}, nil
		},
	}
	invalidator := &mockInvalidator{}
	s := newTestStore(fetcher, invalidator)

	if _, err := s.Refresh(context.Background(), testSession()); err != nil {
		t.Fatalf("初回Refreshが失敗した: %v", err)
	}

	fetcher.fetchFn = func(ctx context.Context, token string) ([]model.Post, error) {
		return nil, errors.New("connection reset")
	}
	_, err := s.Refresh(context.Background(), testSession())
	var syncErr *model.SyncError
	if !errors.As(err, &syncErr) || syncErr.Code != model.ErrCodeFetchFailed {
		t.Fatalf("err = %v, want FetchFailed", err)
	}
	if invalidator.callCount() != 0 {
		t.Error("認証以外の失敗でセッションを無効化してはならない")
	}
	if s.Len() != 1 {
		t.Errorf("失敗後のストア = %d件, want 1件（直前の状態を保持）", s.Len())
	}
}

// TestRefresh_StaleResultDiscarded は遅いrefreshの結果が、その後に開始された
// 新しいrefreshの結果を上書きしないことをテストする。
func TestRefresh_StaleResultDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	first := true

	fetcher := &mockFetcher{}
	fetcher.fetchFn = func(ctx context.Context, token string) ([]model.Post, error) {
		fetcher.mu.Lock()
		slow := first
		first = false
		fetcher.mu.Unlock()
		if slow {
			close(started)
			<-release
			return []model.Post{{ID: "stale", Title: "old snapshot"}}, nil
		}
		return []model.Post{{ID: "fresh", Title: "new snapshot"}}, nil
	}
	s := newTestStore(fetcher, &mockInvalidator{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Refresh(context.Background(), testSession())
	}()

	<-started
	if _, err := s.Refresh(context.Background(), testSession()); err != nil {
		t.Fatalf("2回目のRefreshが失敗した: %v", err)
	}
	close(release)
	<-done

	posts := s.Posts()
	if len(posts) != 1 || posts[0].ID != "fresh" {
		t.Errorf("古いrefresh結果がストアを上書きした: %v", posts)
	}
}

// TestRefresh_SanitizesContent は取り込み時に投稿本文がサニタイズされることをテストする。
func TestRefresh_SanitizesContent(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, token string) ([]model.Post, error) {
			return []model.Post{{
				ID:      "1",
				Content: `<p>hello</p><script>alert("xss")</script>`,
				Comments: []model.Comment{
					{ID: "c1", Text: `<img src="javascript:alert(1)">ok`},
				},
			}}, nil
		},
	}
	s := newTestStore(fetcher, &mockInvalidator{})

	posts, err := s.Refresh(context.Background(), testSession())
	if err != nil {
		t.Fatalf("Refresh がエラーを返した: %v", err)
	}
	if got := posts[0].Content; got != "<p>hello</p>" {
		t.Errorf("サニタイズ後の本文 = %q, want %q", got, "<p>hello</p>")
	}
	if got := posts[0].Comments[0].Text; got != "ok" {
		t.Errorf("サニタイズ後のコメント = %q, want %q", got, "ok")
	}
}

// --- Patch のテスト ---

func seedStore(t *testing.T, s *FeedStore, fetcher *mockFetcher, posts []model.Post) {
	t.Helper()
	fetcher.mu.Lock()
	fetcher.fetchFn = func(ctx context.Context, token string) ([]model.Post, error) {
		return posts, nil
	}
	fetcher.mu.Unlock()
	if _, err := s.Refresh(context.Background(), testSession()); err != nil {
		t.Fatalf("シード用Refreshが失敗した: %v", err)
	}
}

// TestPatch_ReplacesSinglePostPreservingOrder はpatch後、対象の投稿が
// 更新後の内容と一致し、他の投稿が元の順序のまま無変更であることをテストする。
func TestPatch_ReplacesSinglePostPreservingOrder(t *testing.T) {
	fetcher := &mockFetcher{}
	s := newTestStore(fetcher, &mockInvalidator{})
	seedStore(t, s, fetcher, []model.Post{
		{ID: "1", Title: "one"},
		{ID: "2", Title: "two"},
		{ID: "3", Title: "three"},
	})

	updated := &model.Post{ID: "2", Title: "two (edited)", Tags: "Updated"}
	if !s.Patch("2", updated) {
		t.Fatal("Patch は既存IDに対してtrueを返すべき")
	}

	posts := s.Posts()
	if len(posts) != 3 {
		t.Fatalf("投稿数 = %d, want 3", len(posts))
	}
	if posts[0].ID != "1" || posts[1].ID != "2" || posts[2].ID != "3" {
		t.Errorf("投稿順序が変わった: [%s %s %s]", posts[0].ID, posts[1].ID, posts[2].ID)
	}
	if posts[1].Title != "two (edited)" || posts[1].Tags != "Updated" {
		t.Errorf("patch対象の内容が反映されていない: %+v", posts[1])
	}
	if posts[0].Title != "one" || posts[2].Title != "three" {
		t.Error("patch対象以外の投稿が変更された")
	}
}

func TestPatch_UnknownID_ReturnsFalse(t *testing.T) {
	fetcher := &mockFetcher{}
	s := newTestStore(fetcher, &mockInvalidator{})
	seedStore(t, s, fetcher, []model.Post{{ID: "1"}})

	if s.Patch("missing", &model.Post{ID: "missing"}) {
		t.Error("存在しないIDのpatchはfalseを返すべき")
	}
	if s.Len() != 1 {
		t.Errorf("投稿数 = %d, want 1", s.Len())
	}
}

// TestPatch_DedupesReactionsPerUser は同一ユーザーの重複リアクションが
// 取り込み時に排除され、最後のものが残ることをテストする。
func TestPatch_DedupesReactionsPerUser(t *testing.T) {
	fetcher := &mockFetcher{}
	s := newTestStore(fetcher, &mockInvalidator{})
	seedStore(t, s, fetcher, []model.Post{{ID: "1"}})

	updated := &model.Post{
		ID: "1",
		Reactions: []model.Reaction{
			{UserID: "u1", Type: model.ReactionLike},
			{UserID: "u2", Type: model.ReactionLove},
			{UserID: "u1", Type: model.ReactionLike},
		},
	}
	s.Patch("1", updated)

	post := s.Find("1")
	if len(post.Reactions) != 2 {
		t.Fatalf("リアクション数 = %d, want 2（u1の重複が排除される）", len(post.Reactions))
	}
	count := 0
	for _, r := range post.Reactions {
		if r.UserID == "u1" && r.Type == model.ReactionLike {
			count++
		}
	}
	if count != 1 {
		t.Errorf("u1のLIKE = %d件, want 1件", count)
	}
}

// --- RemoveComment のテスト ---

func TestRemoveComment(t *testing.T) {
	fetcher := &mockFetcher{}
	s := newTestStore(fetcher, &mockInvalidator{})
	seedStore(t, s, fetcher, []model.Post{{
		ID: "1",
		Comments: []model.Comment{
			{ID: "c1", Text: "first"},
			{ID: "c2", Text: "second"},
		},
	}})

	if !s.RemoveComment("1", "c1") {
		t.Fatal("既存コメントの削除はtrueを返すべき")
	}
	post := s.Find("1")
	if len(post.Comments) != 1 || post.Comments[0].ID != "c2" {
		t.Errorf("削除後のコメント列が期待と異なる: %+v", post.Comments)
	}

	if s.RemoveComment("1", "missing") {
		t.Error("存在しないコメントの削除はfalseを返すべき")
	}
	if s.RemoveComment("missing", "c2") {
		t.Error("存在しない投稿への削除はfalseを返すべき")
	}
}

// --- PatchFollowers のテスト ---

// TestPatchFollowers_UpdatesOnlyFollowers はフォロワー列のみが更新され、
// 投稿の他のフィールドが無変更であることをテストする。
func TestPatchFollowers_UpdatesOnlyFollowers(t *testing.T) {
	fetcher := &mockFetcher{}
	s := newTestStore(fetcher, &mockInvalidator{})
	seedStore(t, s, fetcher, []model.Post{
		{ID: "1", Title: "a", Author: model.UserRef{ID: "author-1", Username: "alice"}},
		{ID: "2", Title: "b", Author: model.UserRef{ID: "author-1", Username: "alice"}},
		{ID: "3", Title: "c", Author: model.UserRef{ID: "author-2", Username: "bob"}},
	})

	if !s.PatchFollowers("1", []string{"u1", "u2"}) {
		t.Fatal("PatchFollowers は既存投稿に対してtrueを返すべき")
	}

	posts := s.Posts()
	// 同一著者の全投稿に反映される
	for _, p := range posts[:2] {
		if len(p.Author.Followers) != 2 {
			t.Errorf("投稿%sのフォロワー数 = %d, want 2", p.ID, len(p.Author.Followers))
		}
		if p.Author.Username != "alice" {
			t.Errorf("フォロワー以外のフィールドが変更された: %+v", p.Author)
		}
	}
	// 別著者の投稿には影響しない
	if len(posts[2].Author.Followers) != 0 {
		t.Errorf("別著者のフォロワーが変更された: %v", posts[2].Author.Followers)
	}
	if posts[0].Title != "a" {
		t.Error("投稿本体のフィールドが変更された")
	}
}

// --- Clear / スナップショットのテスト ---

func TestClear_EmptiesCollection(t *testing.T) {
	fetcher := &mockFetcher{}
	s := newTestStore(fetcher, &mockInvalidator{})
	seedStore(t, s, fetcher, []model.Post{{ID: "1"}, {ID: "2"}})

	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Clear後の投稿数 = %d, want 0", s.Len())
	}
}

// TestPosts_ReturnsIndependentSnapshot は返されたスナップショットを変更しても
// ストアの内部状態に影響しないことをテストする。
func TestPosts_ReturnsIndependentSnapshot(t *testing.T) {
	fetcher := &mockFetcher{}
	s := newTestStore(fetcher, &mockInvalidator{})
	seedStore(t, s, fetcher, []model.Post{{
		ID:       "1",
		Title:    "original",
		Comments: []model.Comment{{ID: "c1", Text: "hi"}},
	}})

	snapshot := s.Posts()
	snapshot[0].Title = "mutated"
	snapshot[0].Comments[0].Text = "mutated"

	fresh := s.Find("1")
	if fresh.Title != "original" {
		t.Error("スナップショット経由でストアのタイトルが変更された")
	}
	if fresh.Comments[0].Text != "hi" {
		t.Error("スナップショット経由でストアのコメントが変更された")
	}
}

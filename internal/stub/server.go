// Package stub はリモートフィードサービスのインプロセスのフェイク実装を提供する。
// 統合テストとローカル開発のための支援であり、本番のサーバーロジックではない。
// APIクライアントが期待する全エンドポイントをインメモリのデータセットに対して提供する。
package stub

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/feedsync/internal/model"
)

// account はフェイクサービスの登録済みアカウント。
type account struct {
	user     model.UserRef
	password string
}

// Server はフェイクのリモートフィードサービス。
// 全状態はインメモリで、ミューテーションはmutexで直列化される。
type Server struct {
	mu       sync.Mutex
	accounts map[string]*account // username → account
	tokens   map[string]string   // token → userID
	posts    []model.Post
	router   chi.Router
}

// NewServer はServerの新しいインスタンスを生成する。
func NewServer() *Server {
	s := &Server{
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
	}
	s.router = s.buildRouter()
	return s
}

// Handler はフェイクサービスのHTTPハンドラーを返す。
// httptest.NewServerにそのまま渡せる。
func (s *Server) Handler() http.Handler {
	return s.router
}

// AddUser はアカウントを事前登録し、そのUserRefを返す。
func (s *Server) AddUser(username, password string) model.UserRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := model.UserRef{
		ID:       uuid.New().String(),
		Username: username,
	}
	s.accounts[username] = &account{user: user, password: password}
	return user
}

// SeedPosts は投稿列を事前投入する。既存の投稿は置き換えられる。
func (s *Server) SeedPosts(posts []model.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = make([]model.Post, len(posts))
	for i := range posts {
		s.posts[i] = *posts[i].Clone()
	}
}

// RevokeToken は発行済みトークンを失効させる。
// セッション失効（401経路）のテストに使う。
func (s *Server) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// buildRouter は全エンドポイントのルーティングを構成する。
// 認証ルート（/auth/*）以外はベアラートークン検証の内側に置く。
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/register", s.handleRegister)

	r.Group(func(r chi.Router) {
		r.Use(s.bearerAuth)
		r.Get("/posts", s.handleListPosts)
		r.Post("/posts/{postID}/comments", s.handleAddComment)
		r.Put("/posts/{postID}/comments/{commentID}", s.handleEditComment)
		r.Delete("/comments/{commentID}", s.handleDeleteComment)
		r.Post("/posts/{postID}/reactions", s.handleReact)
		r.Post("/users/{userID}/follow", s.handleFollow)
	})

	return r
}

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストに認証済みユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// contextWithUserID は認証済みユーザーIDをコンテキストに注入する。
func contextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// userIDFromContext はコンテキストから認証済みユーザーIDを取り出す。
func userIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDContextKey).(string); ok {
		return v
	}
	return ""
}

// bearerAuth はAuthorizationヘッダーのベアラートークンを検証するミドルウェア。
// 無効なトークンには401 Unauthorizedを返す（クライアント側の
// セッション無効化経路をテストできるようにする）。
func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		s.mu.Lock()
		userID, found := s.tokens[token]
		s.mu.Unlock()
		if !found {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := contextWithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// credentials は認証/登録のリクエストボディ。
type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin は資格情報を検証してセッションを発行する。
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[creds.Username]
	if !ok || acct.password != creds.Password {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.issueSession(w, &acct.user)
}

// handleRegister はアカウントを新規作成してセッションを発行する。
// 既存ユーザー名の場合は409 Conflictを返す。
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[creds.Username]; exists {
		http.Error(w, "conflict", http.StatusConflict)
		return
	}
	user := model.UserRef{
		ID:       uuid.New().String(),
		Username: creds.Username,
	}
	s.accounts[creds.Username] = &account{user: user, password: creds.Password}
	s.issueSession(w, &user)
}

// issueSession はトークンを発行してセッションを書き出す。呼び出し側でロックを保持していること。
func (s *Server) issueSession(w http.ResponseWriter, user *model.UserRef) {
	token := uuid.New().String()
	s.tokens[token] = user.ID
	writeJSON(w, http.StatusOK, model.Session{User: user, Token: token})
}

// handleListPosts は投稿の全量をサーバー順で返す。
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	posts := make([]model.Post, len(s.posts))
	for i := range s.posts {
		posts[i] = *s.posts[i].Clone()
	}
	writeJSON(w, http.StatusOK, posts)
}

// commentBody はコメント追加/編集のリクエストボディ。
type commentBody struct {
	Text string `json:"text"`
}

// handleAddComment はコメントを追加して更新後のPost全体を返す。
func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	var body commentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Text) == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	post := s.findPost(postID)
	if post == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	author := s.userByID(userIDFromContext(r.Context()))
	post.Comments = append(post.Comments, model.Comment{
		ID:        uuid.New().String(),
		Text:      body.Text,
		Author:    author,
		CreatedAt: time.Now().UTC(),
	})
	writeJSON(w, http.StatusOK, post.Clone())
}

// handleEditComment はコメントを編集して更新後のPost全体を返す。
// 著者以外による編集には403 Forbiddenを返す（権限の権威はサーバー側）。
func (s *Server) handleEditComment(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	commentID := chi.URLParam(r, "commentID")
	var body commentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	post := s.findPost(postID)
	if post == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	comment := post.FindComment(commentID)
	if comment == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if comment.Author.ID != userIDFromContext(r.Context()) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	comment.Text = body.Text
	writeJSON(w, http.StatusOK, post.Clone())
}

// handleDeleteComment はコメントを削除する。応答にPost本体は含まれない。
func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	commentID := chi.URLParam(r, "commentID")

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.posts {
		comments := s.posts[i].Comments
		for j := range comments {
			if comments[j].ID == commentID {
				s.posts[i].Comments = append(comments[:j:j], comments[j+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
	}
	http.Error(w, "not found", http.StatusNotFound)
}

// reactionBody はリアクション追加のリクエストボディ。
type reactionBody struct {
	Type model.ReactionType `json:"reactionType"`
}

// handleReact は呼び出しユーザーのリアクションを追加/置換して更新後のPostを返す。
func (s *Server) handleReact(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	var body reactionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !body.Type.IsValid() {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	post := s.findPost(postID)
	if post == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	userID := userIDFromContext(r.Context())

	// 既存のリアクションを置換する（1ユーザー1投稿1リアクション）
	kept := post.Reactions[:0]
	for _, reaction := range post.Reactions {
		if reaction.UserID != userID {
			kept = append(kept, reaction)
		}
	}
	post.Reactions = append(kept, model.Reaction{UserID: userID, Type: body.Type})
	writeJSON(w, http.StatusOK, post.Clone())
}

// followResult はフォロー操作の応答ボディ。
type followResult struct {
	Followers []string `json:"followers"`
}

// handleFollow は呼び出しユーザーを対象ユーザーのフォロワーに追加し、
// 更新後のフォロワーID列を返す。投稿は返さない。
func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	targetUserID := chi.URLParam(r, "userID")
	followerID := userIDFromContext(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.accountByID(targetUserID)
	if target == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	already := false
	for _, id := range target.user.Followers {
		if id == followerID {
			already = true
			break
		}
	}
	if !already {
		target.user.Followers = append(target.user.Followers, followerID)
	}

	// 投稿に埋め込まれた著者レコードにも反映する
	for i := range s.posts {
		if s.posts[i].Author.ID == targetUserID {
			followers := make([]string, len(target.user.Followers))
			copy(followers, target.user.Followers)
			s.posts[i].Author.Followers = followers
		}
	}

	writeJSON(w, http.StatusOK, followResult{Followers: target.user.Followers})
}

// findPost はIDが一致する投稿を返す。呼び出し側でロックを保持していること。
func (s *Server) findPost(postID string) *model.Post {
	for i := range s.posts {
		if s.posts[i].ID == postID {
			return &s.posts[i]
		}
	}
	return nil
}

// userByID はユーザーIDからUserRefを返す。呼び出し側でロックを保持していること。
func (s *Server) userByID(userID string) model.UserRef {
	if acct := s.accountByID(userID); acct != nil {
		return acct.user
	}
	return model.UserRef{ID: userID}
}

// accountByID はユーザーIDからアカウントを返す。呼び出し側でロックを保持していること。
func (s *Server) accountByID(userID string) *account {
	for _, acct := range s.accounts {
		if acct.user.ID == userID {
			return acct
		}
	}
	return nil
}

// writeJSON はJSON応答を書き出す。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Package api はリモートフィードサービスのHTTPクライアントを提供する。
// 同期層が消費する外部コラボレーターであり、認証（ログイン/登録）以外の
// 全呼び出しはベアラートークンを必要とする。
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/feedsync/internal/model"
)

// RemoteService はリモートフィードサービスの操作を定義する。
// コーディネーター/ストアはこのインターフェース経由でのみリモートと通信する。
// 401相当の応答は全メソッド共通でmodel.ErrUnauthorizedとして返される。
type RemoteService interface {
	// FetchPosts は投稿の全量を取得する。サーバーの返した順序が正となる。
	FetchPosts(ctx context.Context, token string) ([]model.Post, error)
	// PostComment はコメントを追加し、更新後のPost全体を返す。
	PostComment(ctx context.Context, postID, text, token string) (*model.Post, error)
	// EditComment はコメントを編集し、更新後のPost全体を返す。
	EditComment(ctx context.Context, postID, commentID, text, token string) (*model.Post, error)
	// DeleteComment はコメントを削除する。応答にPost本体は含まれない。
	DeleteComment(ctx context.Context, commentID, token string) error
	// ReactToPost は呼び出しユーザーのリアクションを追加/置換し、更新後のPostを返す。
	ReactToPost(ctx context.Context, postID string, typ model.ReactionType, token string) (*model.Post, error)
	// FollowUser は対象ユーザーをフォローし、更新後のフォロワーID列を返す。
	FollowUser(ctx context.Context, userID, token string) ([]string, error)
	// Authenticate はユーザー名とパスワードで認証し、セッションを返す。
	Authenticate(ctx context.Context, username, password string) (*model.Session, error)
	// RegisterAccount はアカウントを新規登録し、セッションを返す。
	RegisterAccount(ctx context.Context, username, password string) (*model.Session, error)
}

// MetricsRecorder はHTTP呼び出しの観測に必要なインターフェース。
// metrics.Collectorの部分集合として定義する。
type MetricsRecorder interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Client はリモートフィードサービスAPIのHTTPクライアント。
// アウトバウンド呼び出しはrate.Limiterで平滑化される。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	metrics    MetricsRecorder // nil可（観測なし）
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
// metricsにnilを渡した場合は観測を行わない。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string, limit float64, burst int, metrics MetricsRecorder) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(limit), burst),
		metrics:    metrics,
		baseURL:    baseURL,
	}
}

// FetchPosts は投稿の全量を取得する。
func (c *Client) FetchPosts(ctx context.Context, token string) ([]model.Post, error) {
	var posts []model.Post
	if err := c.doJSON(ctx, http.MethodGet, "/posts", token, nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// commentRequest はコメント追加/編集のリクエストボディ。
type commentRequest struct {
	Text string `json:"text"`
}

// PostComment はコメントを追加し、更新後のPost全体を返す。
func (c *Client) PostComment(ctx context.Context, postID, text, token string) (*model.Post, error) {
	var post model.Post
	path := fmt.Sprintf("/posts/%s/comments", postID)
	if err := c.doJSON(ctx, http.MethodPost, path, token, commentRequest{Text: text}, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// EditComment はコメントを編集し、更新後のPost全体を返す。
func (c *Client) EditComment(ctx context.Context, postID, commentID, text, token string) (*model.Post, error) {
	var post model.Post
	path := fmt.Sprintf("/posts/%s/comments/%s", postID, commentID)
	if err := c.doJSON(ctx, http.MethodPut, path, token, commentRequest{Text: text}, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// DeleteComment はコメントを削除する。
// このエンドポイントの応答にはPost本体が含まれないため、戻り値はエラーのみ。
func (c *Client) DeleteComment(ctx context.Context, commentID, token string) error {
	path := fmt.Sprintf("/comments/%s", commentID)
	return c.doJSON(ctx, http.MethodDelete, path, token, nil, nil)
}

// reactionRequest はリアクション追加のリクエストボディ。
type reactionRequest struct {
	Type model.ReactionType `json:"reactionType"`
}

// ReactToPost は呼び出しユーザーのリアクションを追加/置換し、更新後のPostを返す。
func (c *Client) ReactToPost(ctx context.Context, postID string, typ model.ReactionType, token string) (*model.Post, error) {
	var post model.Post
	path := fmt.Sprintf("/posts/%s/reactions", postID)
	if err := c.doJSON(ctx, http.MethodPost, path, token, reactionRequest{Type: typ}, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// followResponse はフォロー操作の応答ボディ。
// フォローされたユーザーの更新後レコードの一部（フォロワー列）のみが返る。
type followResponse struct {
	Followers []string `json:"followers"`
}

// FollowUser は対象ユーザーをフォローし、更新後のフォロワーID列を返す。
func (c *Client) FollowUser(ctx context.Context, userID, token string) ([]string, error) {
	var resp followResponse
	path := fmt.Sprintf("/users/%s/follow", userID)
	if err := c.doJSON(ctx, http.MethodPost, path, token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Followers, nil
}

// credentialsRequest は認証/登録のリクエストボディ。
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Authenticate はユーザー名とパスワードで認証し、セッションを返す。
func (c *Client) Authenticate(ctx context.Context, username, password string) (*model.Session, error) {
	var session model.Session
	body := credentialsRequest{Username: username, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", "", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// RegisterAccount はアカウントを新規登録し、セッションを返す。
func (c *Client) RegisterAccount(ctx context.Context, username, password string) (*model.Session, error) {
	var session model.Session
	body := credentialsRequest{Username: username, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register", "", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// doJSON はJSONリクエストを送信し、応答をoutにデコードする共通処理。
// tokenが空でない場合はAuthorizationヘッダーにベアラートークンを付与する。
// 401応答はmodel.ErrUnauthorizedとして返す（セッション無効化の唯一のトリガー）。
// outがnilの場合は応答ボディを読み捨てる。
func (c *Client) doJSON(ctx context.Context, method, path, token string, reqBody, out any) error {
	// アウトバウンド呼び出しの平滑化
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("レート制限の待機に失敗しました: %w", err)
	}

	var bodyReader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Feedsync/1.0")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("リモートAPIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordHTTPStatus(resp.StatusCode)
		c.metrics.RecordRequestLatency(time.Since(start))
	}

	// 401は番兵エラーに変換する。呼び出し元がセッション無効化を判断する。
	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("リモートAPIが認証エラーを返しました",
			slog.String("method", method),
			slog.String("path", path),
		)
		return model.ErrUnauthorized
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("リモートAPIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("リモートAPIがステータス %d を返しました", resp.StatusCode)
	}

	if out == nil {
		// 204 No Content等はボディを読み捨てる
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("リモートAPIのレスポンスのパースに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return nil
}

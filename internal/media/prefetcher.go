// Package media は投稿画像のプリフェッチを提供する。
// 投稿の画像URLは他ユーザー由来のコンテンツであり、取得前にSSRF検証を行い、
// safeurlベースのHTTPクライアントでのみアクセスする。
// プリフェッチは表示の先読みのための任意機能であり、失敗しても
// フィードの同期には影響しない。
package media

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// URLValidator は画像URLの検証と安全なクライアント生成のインターフェース。
// security.ImageGuardServiceの部分集合として定義する。
type URLValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// Prefetcher は画像URLの一括プリフェッチを行う。
type Prefetcher struct {
	guard         URLValidator
	logger        *slog.Logger
	timeout       time.Duration
	maxBodySize   int64
	maxConcurrent int
}

// NewPrefetcher はPrefetcherの新しいインスタンスを生成する。
func NewPrefetcher(guard URLValidator, logger *slog.Logger, timeout time.Duration, maxBodySize int64, maxConcurrent int) *Prefetcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Prefetcher{
		guard:         guard,
		logger:        logger,
		timeout:       timeout,
		maxBodySize:   maxBodySize,
		maxConcurrent: maxConcurrent,
	}
}

// Result は1件の画像プリフェッチの結果。
type Result struct {
	URL string
	OK  bool
	Err error
}

// Prefetch は画像URL列を並行に取得してウォームアップする。
// 各URLは取得前にSSRF検証され、検証に失敗したURLは取得せずに失敗として記録される。
// ボディはmaxBodySizeまで読み捨てる（キャッシュのウォームアップが目的で、
// 内容は保持しない）。戻り値は入力と同じ順序の結果列。
func (p *Prefetcher) Prefetch(ctx context.Context, urls []string) []Result {
	if len(urls) == 0 {
		return nil
	}

	client := p.guard.NewSafeClient(p.timeout)
	results := make([]Result, len(urls))

	sem := make(chan struct{}, p.maxConcurrent)
	var wg sync.WaitGroup
	for i, rawURL := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, rawURL string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.fetchOne(ctx, client, rawURL)
		}(i, rawURL)
	}
	wg.Wait()

	return results
}

// fetchOne は単一の画像URLを検証して取得する。
func (p *Prefetcher) fetchOne(ctx context.Context, client *http.Client, rawURL string) Result {
	if err := p.guard.ValidateURL(rawURL); err != nil {
		p.logger.Warn("画像URLの検証に失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return Result{URL: rawURL, OK: false, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{URL: rawURL, OK: false, Err: err}
	}
	req.Header.Set("User-Agent", "Feedsync/1.0")

	resp, err := client.Do(req)
	if err != nil {
		p.logger.Warn("画像のプリフェッチに失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return Result{URL: rawURL, OK: false, Err: err}
	}
	defer resp.Body.Close()

	// ボディはサイズ上限まで読み捨てる
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, p.maxBodySize))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{URL: rawURL, OK: false, Err: nil}
	}
	return Result{URL: rawURL, OK: true}
}

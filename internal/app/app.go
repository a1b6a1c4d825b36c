// Package app は同期層の各コンポーネントを構成する合成ルートを提供する。
// UIコラボレーター（描画側）はAppを生成し、Sessions/Store/Mutations経由で
// 操作を発行し、状態変化のたびにVisible/Tagsで射影を再計算する。
package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/feedsync/internal/api"
	"github.com/hitoshi/feedsync/internal/config"
	"github.com/hitoshi/feedsync/internal/logger"
	"github.com/hitoshi/feedsync/internal/media"
	"github.com/hitoshi/feedsync/internal/metrics"
	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/mutation"
	"github.com/hitoshi/feedsync/internal/security"
	"github.com/hitoshi/feedsync/internal/session"
	"github.com/hitoshi/feedsync/internal/store"
	"github.com/hitoshi/feedsync/internal/uistate"
	"github.com/hitoshi/feedsync/internal/view"
)

// UINotifier はUIコラボレーターへのシグナルのインターフェース。
// 同期層はこのインターフェース経由でのみUIに通知し、描画の契約は持たない。
type UINotifier interface {
	// OpenLogin は認証フローを開くようUIに要求する。
	OpenLogin()
	// ShowMessage はユーザー向けメッセージの表示をUIに要求する。
	ShowMessage(message string)
}

// App は同期層全体を束ねるファサード。
type App struct {
	Sessions  *session.Manager
	Store     *store.FeedStore
	Mutations *mutation.Coordinator
	UI        *uistate.State

	cfg        *config.Config
	notifier   UINotifier
	prefetcher *media.Prefetcher
	registry   *prometheus.Registry
	logger     *slog.Logger
}

// New はAppの新しいインスタンスを生成し、全コンポーネントを配線する。
// セッションの状態遷移は次の制御フローに配線される:
//
//	ログイン/登録成功 → ストアの全量取得 → (設定次第で画像プリフェッチ)
//	ログアウト/無効化 → ストアのクリア + 一時UI状態のリセット
//	無効化のみ       → 「セッション切れ」メッセージ表示
//
// logWriterにnilを渡した場合はos.Stdoutにログを出力する。
func New(cfg *config.Config, notifier UINotifier, logWriter io.Writer) *App {
	var log *slog.Logger
	if logWriter != nil {
		log = logger.Setup(logWriter)
	} else {
		logger.SetupDefault(nil)
		log = slog.Default()
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	remote := api.NewClient(httpClient, log, cfg.APIBaseURL, cfg.APIRate, cfg.APIBurst, collector)

	app := &App{
		UI:       uistate.New(),
		cfg:      cfg,
		notifier: notifier,
		registry: registry,
		logger:   log,
	}

	if cfg.PrefetchEnabled {
		guard := security.NewImageGuard()
		app.prefetcher = media.NewPrefetcher(
			guard, log, cfg.PrefetchTimeout, cfg.PrefetchMaxSize, cfg.PrefetchMaxConcurrent,
		)
	}

	hooks := session.Hooks{
		OnLogin: func(ctx context.Context, sess *model.Session) {
			if _, err := app.Store.Refresh(ctx, sess); err != nil {
				log.Error("ログイン後のフィード取得に失敗しました",
					slog.String("error", err.Error()),
				)
				notifier.ShowMessage("フィードの読み込みに失敗しました。再読み込みしてください。")
				return
			}
			app.prefetchImages(ctx)
		},
		OnClear: func() {
			app.Store.Clear()
			app.UI.Reset()
		},
		OnExpired: func() {
			collector.RecordSessionInvalidation()
			notifier.ShowMessage("セッションの有効期限が切れました。再度ログインしてください。")
			notifier.OpenLogin()
		},
	}

	app.Sessions = session.NewManager(remote, log, hooks)
	sanitizer := security.NewContentSanitizer()
	app.Store = store.NewFeedStore(remote, app.Sessions, sanitizer, collector, log)
	app.Mutations = mutation.NewCoordinator(remote, app.Store, app.Sessions, notifier, collector, log)

	return app
}

// Refresh は現在のセッションでフィードの全量取得を行う。
// 再試行はユーザー操作で本メソッドを再度呼ぶことで行う（自動リトライなし）。
func (a *App) Refresh(ctx context.Context) ([]model.Post, error) {
	return a.Store.Refresh(ctx, a.Sessions.Current())
}

// Visible は現在のストア内容にフィルタ状態を適用した表示用の投稿列を返す。
// フィルタは常に全量の未フィルタコレクションから再導出される。
func (a *App) Visible(filter model.FilterState) []model.Post {
	return view.Apply(a.Store.Posts(), filter)
}

// Tags は現在のストア内容から導出したタグ一覧（先頭は"All"）を返す。
func (a *App) Tags() []string {
	return view.Tags(a.Store.Posts())
}

// MetricsHandler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func (a *App) MetricsHandler() http.Handler {
	return metrics.Handler(a.registry)
}

// prefetchImages は現在のストア内容の画像URLをウォームアップする。
// プリフェッチが無効な場合は何もしない。失敗は同期に影響しない。
func (a *App) prefetchImages(ctx context.Context) {
	if a.prefetcher == nil {
		return
	}
	var urls []string
	for _, p := range a.Store.Posts() {
		urls = append(urls, p.ImageList()...)
	}
	if len(urls) == 0 {
		return
	}
	results := a.prefetcher.Prefetch(ctx, urls)
	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
		}
	}
	if failed > 0 {
		a.logger.Info("画像プリフェッチが一部失敗しました",
			slog.Int("total", len(results)),
			slog.Int("failed", failed),
		)
	}
}

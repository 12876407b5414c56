package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/straycat158/craftboard/internal/announcement"
	"github.com/straycat158/craftboard/internal/auth"
	"github.com/straycat158/craftboard/internal/comment"
	"github.com/straycat158/craftboard/internal/config"
	"github.com/straycat158/craftboard/internal/database"
	"github.com/straycat158/craftboard/internal/handler"
	"github.com/straycat158/craftboard/internal/logger"
	"github.com/straycat158/craftboard/internal/metrics"
	"github.com/straycat158/craftboard/internal/middleware"
	"github.com/straycat158/craftboard/internal/post"
	"github.com/straycat158/craftboard/internal/realtime"
	"github.com/straycat158/craftboard/internal/repository"
	"github.com/straycat158/craftboard/internal/resource"
	"github.com/straycat158/craftboard/internal/security"
	"github.com/straycat158/craftboard/internal/storage"
	"github.com/straycat158/craftboard/internal/user"
	"github.com/straycat158/craftboard/internal/worker/cleanup"
	"github.com/straycat158/craftboard/internal/worker/newsfeed"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// rateLimiterConfigFrom はreq/min単位の設定値をrate.Limit（req/sec）に変換する。
// 未設定（0以下）の項目はデフォルト値を使用する。
func rateLimiterConfigFrom(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rlCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitWrite > 0 {
		rlCfg.WriteRate = rate.Limit(float64(cfg.RateLimitWrite) / 60.0)
		rlCfg.WriteBurst = cfg.RateLimitWrite
	}
	return rlCfg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)
	tagRepo := repository.NewPostgresTagRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)
	announcementRepo := repository.NewPostgresAnnouncementRepo(db)
	resourceRepo := repository.NewPostgresResourceRepo(db)

	// 3. セキュリティサービスとメトリクスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	// 4. ドメインサービスの初期化
	authService := auth.NewService(
		userRepo, sessionRepo, auth.NewBcryptHasher(0),
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	postService := post.NewService(postRepo, tagRepo, sanitizer)
	commentService := comment.NewService(commentRepo, postRepo, sanitizer)
	announcementService := announcement.NewService(announcementRepo, sanitizer)
	resourceService := resource.NewService(
		resourceRepo, ssrfGuard, resource.NewFaviconFetcher(ssrfGuard),
	)
	userService := user.NewService(userRepo, sessionRepo)

	// 5. 画像ストレージの初期化
	diskStore, err := storage.NewDiskStore(cfg.UploadDir, cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize upload storage: %w", err)
	}
	if err := diskStore.EnsureBucket(context.Background(), "uploads"); err != nil {
		return fmt.Errorf("failed to prepare upload bucket: %w", err)
	}

	// 6. リアルタイム配信の初期化
	hub := realtime.NewHub()
	hub.SetRecorder(collector)
	ticketIssuer := realtime.NewTicketIssuer(cfg.TicketSecret, cfg.TicketTTL)
	realtimeHandler := realtime.NewHandler(hub, ticketIssuer, cfg.CORSAllowedOrigin)

	notifier := realtime.NewPQNotifier(cfg.DatabaseURL)
	listener := realtime.NewListener(
		notifier, hub, commentRepo, announcementRepo, slog.Default(),
	)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfigFrom(cfg))
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		SessionFinder:     sessionRepo,
		UserFinder:        userRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:     rateLimiter,
		MetricsRecorder: collector,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		PostService:         postService,
		CommentService:      commentService,
		CommentRecorder:     collector,
		AnnouncementService: announcementService,
		ResourceService:     resourceService,
		UserService:         userService,

		ObjectStore: diskStore,
		FileRoot:    diskStore.RootDir(),

		TicketIssuer:    ticketIssuer,
		RealtimeHandler: realtimeHandler,

		MetricsHandler: metrics.Handler(promRegistry),
	}

	router := handler.NewRouter(deps)

	// 8. LISTEN/NOTIFYリスナーの起動
	listenerCtx, cancelListener := context.WithCancel(context.Background())
	defer cancelListener()

	go func() {
		if err := listener.Run(listenerCtx); err != nil && listenerCtx.Err() == nil {
			slog.Error("realtime listener stopped",
				slog.String("error", err.Error()),
			)
		}
	}()

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	cancelListener()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// セッションクリーンアップとニュースフィード取込を定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリとセキュリティサービスの初期化
	announcementRepo := repository.NewPostgresAnnouncementRepo(db)
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	// 3. ジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default(), collector)

	importer := newsfeed.NewImporter(
		announcementRepo, ssrfGuard, sanitizer, collector, slog.Default(),
		newsfeed.ImporterConfig{
			FeedURL:  cfg.NewsFeedURL,
			Interval: cfg.NewsImportInterval,
		},
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.String("news_feed_url", cfg.NewsFeedURL),
		slog.Duration("news_import_interval", cfg.NewsImportInterval),
	)

	// ワーカー自身の /health と /metrics を公開する（Dockerヘルスチェック用）
	workerServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: workerStatusHandler(promRegistry),
	}
	go func() {
		if err := workerServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker status server error", slog.String("error", err.Error()))
		}
	}()

	// ニュース取込をバックグラウンドで起動（フィードURL未設定なら即終了する）
	go importer.Start(ctx)

	// セッションクリーンアップをメインgoroutineで日次実行（ブロッキング）
	cleanupJob.Start(ctx, 24*time.Hour)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := workerServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("worker status server shutdown failed", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// workerStatusHandler はワーカープロセス用の最小限のHTTPハンドラーを返す。
func workerStatusHandler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", metrics.Handler(gatherer))
	return mux
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

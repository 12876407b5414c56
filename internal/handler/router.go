package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/straycat158/craftboard/internal/middleware"
	"github.com/straycat158/craftboard/internal/storage"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	UserFinder        middleware.UserFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	MetricsRecorder   middleware.HTTPRequestRecorder // nilの場合は記録しない

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ドメインサービス
	PostService         PostServiceInterface
	CommentService      CommentServiceInterface
	CommentRecorder     CommentCreatedRecorder // nilの場合は記録しない
	AnnouncementService AnnouncementServiceInterface
	ResourceService     ResourceServiceInterface
	UserService         UserServiceInterface

	// アップロード
	ObjectStore storage.ObjectStore
	FileRoot    string // /files/* で配信するストレージのルートディレクトリ

	// リアルタイム
	TicketIssuer    TicketIssuerInterface
	RealtimeHandler http.Handler // GET /realtime/ws

	// 監視
	MetricsHandler http.Handler // GET /metrics（nilの場合は公開しない）
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → CSRF
//
// 認証が必要なルートではさらに Session → RateLimit(General) が適用され、
// 書き込み系エンドポイントには書き込み専用レート制限を追加する。
// /realtime/ws・/files/*・/health・/metrics はCSRF検証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	if deps.MetricsRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.MetricsRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	postHandler := NewPostHandler(deps.PostService)
	commentHandler := NewCommentHandler(deps.CommentService, deps.CommentRecorder)
	announcementHandler := NewAnnouncementHandler(deps.AnnouncementService)
	resourceHandler := NewResourceHandler(deps.ResourceService)
	userHandler := NewUserHandler(deps.UserService)
	uploadHandler := NewUploadHandler(deps.ObjectStore)
	ticketHandler := NewTicketHandler(deps.TicketIssuer)

	// --- CSRF検証の外のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// WebSocket接続（チケットで認証するためセッション不要）
	if deps.RealtimeHandler != nil {
		r.Method(http.MethodGet, "/realtime/ws", deps.RealtimeHandler)
	}

	// アップロード済みファイルの静的配信
	if deps.FileRoot != "" {
		fileServer := http.StripPrefix("/files/", http.FileServer(http.Dir(deps.FileRoot)))
		r.Method(http.MethodGet, "/files/*", fileServer)
	}

	// --- CSRF検証下のルート ---

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// 認証ルート
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.Signup)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// 公開リードルート（未ログインでも閲覧可能）
		r.Get("/api/posts", postHandler.ListPosts)
		r.Get("/api/posts/{id}", postHandler.GetPost)
		r.Get("/api/posts/{id}/comments", commentHandler.ListComments)
		r.Get("/api/tags", postHandler.ListTags)
		r.Get("/api/announcements", announcementHandler.ListAnnouncements)
		r.Get("/api/announcements/latest", announcementHandler.LatestAnnouncement)
		r.Get("/api/resources", resourceHandler.ListResources)
		r.Get("/api/resources/{id}", resourceHandler.GetResource)
		r.Get("/api/resources/{id}/favicon", resourceHandler.GetResourceFavicon)
		r.Get("/api/users/{id}", userHandler.GetProfile)

		// 認証が必要なルート
		// ミドルウェアスタック: Session → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.UserFinder))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			writeLimit := deps.RateLimiter.WriteMiddleware()

			// 投稿
			r.With(writeLimit).Post("/api/posts", postHandler.CreatePost)
			r.Delete("/api/posts/{id}", postHandler.DeletePost)

			// コメント
			r.With(writeLimit).Post("/api/posts/{id}/comments", commentHandler.CreateComment)
			r.Delete("/api/comments/{id}", commentHandler.DeleteComment)

			// お知らせ（管理者のみ。権限チェックはサービス層）
			r.With(writeLimit).Post("/api/announcements", announcementHandler.CreateAnnouncement)
			r.Delete("/api/announcements/{id}", announcementHandler.DeleteAnnouncement)

			// リソース
			r.With(writeLimit).Post("/api/resources", resourceHandler.CreateResource)
			r.Delete("/api/resources/{id}", resourceHandler.DeleteResource)

			// プロフィール・退会
			r.Put("/api/users/me", userHandler.UpdateProfile)
			r.Delete("/api/users/me", userHandler.Withdraw)

			// 画像アップロード
			r.With(writeLimit).Post("/api/uploads", uploadHandler.Upload)

			// リアルタイム接続チケット
			r.Post("/api/realtime/ticket", ticketHandler.IssueTicket)
		})
	})

	return r
}

package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/authman/internal/metrics"
	"github.com/hitoshi/authman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	Collector   metrics.MetricsCollector
	Gatherer    prometheus.Gatherer
	RateLimiter *middleware.RateLimiter

	CORSAllowedOrigin string

	// ヘルスチェック用。nilの場合は常に200を返す。
	HealthCheck func() error
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → [BearerAuth → RateLimit(General)]
//
// 未認証ルート（register/login/refresh/googleフロー）にはIPベースの
// 認証用レート制限のみを適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	h := NewAuthHandler(deps.AuthService, deps.Collector, deps.AuthConfig)

	// トークン検証レイテンシは検証を実際に行うミドルウェア側で計測する
	var observeValidation func(time.Duration)
	if deps.Collector != nil {
		observeValidation = deps.Collector.RecordTokenValidationLatency
	}

	// --- 認証不要のルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
		r.Post("/auth/refresh", h.Refresh)
		r.Get("/auth/google/login", h.GoogleLogin)
		r.Get("/auth/google/callback", h.GoogleCallback)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.AuthService, observeValidation))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/auth/validate", h.Validate)
		r.Get("/auth/me", h.Me)
		r.Post("/auth/revoke", h.Revoke)
		r.Post("/auth/identities", h.AddIdentity)
	})

	// --- 運用系ルート ---
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.Write([]byte("ok"))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	return r
}

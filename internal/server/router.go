// internal/server/router.go
package server

import (
	"context"
	"net/http"
	"time"

	"esplit/internal/handlers"
	"esplit/internal/jobs"
	"esplit/internal/metrics"
	"esplit/internal/middleware"
	"esplit/internal/upload"

	"github.com/gin-gonic/gin"
)

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Auth       handlers.Authenticator
	Verifier   middleware.Verifier
	Uploads    *upload.Registry
	Jobs       jobs.Store
	Signer     handlers.URLSigner
	Cookies    handlers.CookieConfig
	Upload     handlers.UploadConfig
	CORS       string
	LoginRate  float64
	LoginBurst int
	// Checks are pinged by /readyz, keyed by dependency name.
	Checks map[string]Pinger
}

func NewRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	if opts.CORS != "" {
		r.Use(middleware.CORSMiddleware(opts.CORS))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", readiness(opts.Checks))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	limiter := middleware.NewIPRateLimiter(opts.LoginRate, opts.LoginBurst)

	// Public routes
	public := r.Group("/api")
	{
		public.POST("/register", middleware.RateLimit(limiter), handlers.Register(opts.Auth, opts.Cookies))
		public.POST("/login", middleware.RateLimit(limiter), handlers.Login(opts.Auth, opts.Cookies))
		public.POST("/logout", handlers.Logout(opts.Auth, opts.Cookies))
		public.POST("/session", handlers.Session(opts.Auth, opts.Cookies))
	}

	// Protected routes
	protected := r.Group("/api")
	protected.Use(middleware.AuthMiddleware(opts.Verifier))
	{
		protected.GET("/profile", handlers.GetProfile(opts.Auth))

		protected.POST("/uploads/candidate", handlers.SelectCandidate(opts.Uploads, opts.Upload))
		protected.POST("/uploads/start", handlers.StartUpload(opts.Uploads))
		protected.GET("/uploads/status", handlers.UploadStatus(opts.Uploads))
		protected.GET("/uploads/events", handlers.UploadEvents(opts.Uploads))
		protected.POST("/uploads/cancel", handlers.CancelUpload(opts.Uploads))

		protected.GET("/jobs", handlers.GetHistory(opts.Jobs, opts.Signer))
		protected.GET("/jobs/:id", handlers.GetJob(opts.Jobs, opts.Signer))
		protected.GET("/jobs/:id/download", handlers.DownloadJob(opts.Jobs, opts.Signer))
	}

	return r
}

func readiness(checks map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		failed := gin.H{}
		for name, p := range checks {
			if err := p.Ping(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "failed": failed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Package http exposes the finance aggregator as a JSON API and serves the
// app shell through the asset cache.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"smartbudget/internal/core"
	"smartbudget/internal/finance"
	applog "smartbudget/internal/log"
)

// Finance is the aggregator surface the handlers use.
// *finance.Aggregator satisfies it.
type Finance interface {
	State() finance.State
	Transactions() []core.Transaction
	Categories() []core.Category
	Budgets() []core.Budget
	Profile() *core.Profile
	AddTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	AddBudget(ctx context.Context, in core.BudgetInput) (core.Budget, error)
	SaveProfile(ctx context.Context, in core.ProfileInput) (core.Profile, error)
	Stats(period core.Period) core.Stats
	Export(ctx context.Context) ([]byte, error)
}

// Options configures a Server.
type Options struct {
	Addr        string
	Production  bool
	CORSOrigins []string
	// Assets serves every path the API does not own. Nil means 404.
	Assets    http.Handler
	Logger    *applog.Logger
	RateLimit int
	Now       func() time.Time
}

type Server struct {
	http.Server
	router      *gin.Engine
	finance     Finance
	assets      http.Handler
	logger      *applog.Logger
	rateLimiter *rateLimiter
	metrics     *securityMetrics
	now         func() time.Time
}

// NewServer builds the gin engine and wraps it in an http.Server.
func NewServer(fin Finance, opts Options) *Server {
	if opts.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		router:      gin.New(),
		finance:     fin,
		assets:      opts.Assets,
		logger:      opts.Logger.WithComponent(applog.ComponentHTTP),
		rateLimiter: newRateLimiter(opts.RateLimit, opts.Now),
		metrics:     &securityMetrics{},
		now:         opts.Now,
	}

	s.router.Use(gin.Recovery())
	s.router.Use(applog.Middleware(opts.Logger))
	s.router.Use(securityHeaders())
	if len(opts.CORSOrigins) > 0 {
		s.router.Use(cors.New(cors.Config{
			AllowOrigins:  opts.CORSOrigins,
			AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", applog.RequestIDHeader},
			ExposeHeaders: []string{"Content-Length", "Content-Disposition", applog.RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}
	s.router.Use(s.requestGuard())
	s.setupRoutes()

	s.Addr = opts.Addr
	s.Handler = s.router
	s.ReadHeaderTimeout = 10 * time.Second
	s.ReadTimeout = 15 * time.Second
	s.WriteTimeout = 30 * time.Second
	s.IdleTimeout = 60 * time.Second
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	s.router.GET("/readyz", s.handleReady)

	api := s.router.Group("/api")
	{
		transactions := api.Group("/transactions")
		transactions.GET("", s.listTransactions)
		transactions.POST("", s.createTransaction)
		transactions.PUT("/:id", s.updateTransaction)
		transactions.DELETE("/:id", s.deleteTransaction)

		api.GET("/categories", s.listCategories)

		budgets := api.Group("/budgets")
		budgets.GET("", s.listBudgets)
		budgets.POST("", s.createBudget)

		api.GET("/profile", s.getProfile)
		api.PUT("/profile", s.saveProfile)

		api.GET("/stats", s.getStats)
		api.GET("/export", s.exportSnapshot)
	}

	s.router.NoRoute(s.serveAssets)
}

// Start runs the server in the background and starts the rate limiter's
// cleanup loop. Listen errors other than a clean shutdown are sent on the
// returned channel.
func (s *Server) Start() <-chan error {
	s.rateLimiter.start()
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.Addr)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown stops accepting requests and drains in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.stop()
	return s.Server.Shutdown(ctx)
}

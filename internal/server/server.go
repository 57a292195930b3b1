// Package server wires the HTTP surface: billing reconciliation entry
// points, the stylist generation endpoint, and account routes.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wearly/wearly/internal/auth"
	authdomain "github.com/wearly/wearly/internal/auth/domain"
	"github.com/wearly/wearly/internal/config"
	"github.com/wearly/wearly/internal/generation"
	generationdomain "github.com/wearly/wearly/internal/generation/domain"
	obsmiddleware "github.com/wearly/wearly/internal/observability/logger"
	obsmetrics "github.com/wearly/wearly/internal/observability/metrics"
	obstracing "github.com/wearly/wearly/internal/observability/tracing"
	"github.com/wearly/wearly/internal/preapproval"
	"github.com/wearly/wearly/internal/providers/pdf"
	"github.com/wearly/wearly/internal/ratelimit"
	"github.com/wearly/wearly/internal/reconcile"
	reconciledomain "github.com/wearly/wearly/internal/reconcile/domain"
	"github.com/wearly/wearly/internal/subscription"
	subscriptiondomain "github.com/wearly/wearly/internal/subscription/domain"
	"github.com/wearly/wearly/internal/transaction"
	transactiondomain "github.com/wearly/wearly/internal/transaction/domain"
	"github.com/wearly/wearly/internal/usage"
	usagedomain "github.com/wearly/wearly/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	auth.Module,
	transaction.Module,
	preapproval.Module,
	subscription.Module,
	usage.Module,
	ratelimit.Module,
	reconcile.Module,
	generation.Module,
	pdf.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	authSvc         authdomain.Service
	reconcileSvc    reconciledomain.Service
	subscriptionSvc subscriptiondomain.Service
	usageSvc        usagedomain.Service
	generationSvc   generationdomain.Service
	transactionSvc  transactiondomain.Service
	pdfProvider     *pdf.Provider
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	AuthSvc         authdomain.Service
	ReconcileSvc    reconciledomain.Service
	SubscriptionSvc subscriptiondomain.Service
	UsageSvc        usagedomain.Service
	GenerationSvc   generationdomain.Service
	TransactionSvc  transactiondomain.Service
	PDFProvider     *pdf.Provider
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		authSvc:         p.AuthSvc,
		reconcileSvc:    p.ReconcileSvc,
		subscriptionSvc: p.SubscriptionSvc,
		usageSvc:        p.UsageSvc,
		generationSvc:   p.GenerationSvc,
		transactionSvc:  p.TransactionSvc,
		pdfProvider:     p.PDFProvider,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/signup", s.Signup)
	auth.POST("/login", s.Login)
	auth.GET("/me", s.AuthRequired(), s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	billing := api.Group("/billing", s.AuthRequired())
	{
		billing.POST("/webhooks/mercadopago", s.HandleMercadoPagoWebhook)
		billing.POST("/checkout/return", s.HandleCheckoutReturn)
		billing.GET("/subscription", s.GetSubscription)
		billing.GET("/usage", s.GetUsage)
		billing.GET("/receipts/:transaction_id", s.GetReceipt)
	}

	stylist := api.Group("/stylist", s.AuthRequired())
	{
		stylist.POST("/generations", s.CreateGeneration)
	}
}

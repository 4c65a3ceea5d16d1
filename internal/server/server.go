package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/kitties/internal/auth"
	"github.com/smallbiznis/kitties/internal/config"
	"github.com/smallbiznis/kitties/internal/events"
	"github.com/smallbiznis/kitties/internal/kitty/domain"
	"github.com/smallbiznis/kitties/internal/observability"
	obsmiddleware "github.com/smallbiznis/kitties/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/kitties/internal/observability/metrics"
	obstracing "github.com/smallbiznis/kitties/internal/observability/tracing"
	"github.com/smallbiznis/kitties/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
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
	engine   *gin.Engine
	cfg      config.Config
	kittySvc domain.Service
	tokens   *auth.TokenService
	hub      *events.Hub
	limiter  *ratelimit.MutationLimiter
	log      *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	KittySvc domain.Service
	Tokens   *auth.TokenService
	Hub      *events.Hub                `optional:"true"`
	Limiter  *ratelimit.MutationLimiter `optional:"true"`
	Log      *zap.Logger
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		kittySvc: p.KittySvc,
		tokens:   p.Tokens,
		hub:      p.Hub,
		limiter:  p.Limiter,
		log:      p.Log.Named("http"),
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.BodyLimit(), s.BearerAuthRequired())

	// -------- Kitties --------
	api.POST("/kitties", s.MutationRateLimit(), s.CreateKitty)
	api.GET("/kitties/:id", s.GetKitty)
	api.POST("/kitties/:id/transfer", s.MutationRateLimit(), s.TransferKitty)

	// -------- Owners --------
	api.GET("/owners/:principal/kitties", s.ListOwnedKitties)
	api.GET("/owners/:principal/events", s.StreamOwnerEvents)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kdiawara/branchstock/internal/server/handlers"
	"github.com/kdiawara/branchstock/internal/server/middleware"
	"github.com/kdiawara/branchstock/pkg/clients/identity"
	"github.com/kdiawara/branchstock/pkg/ratelimit"
)

// New wires the Gin engine with required routes and middlewares.
func New(handler *handlers.RequisitionHandler, productHandler *handlers.ProductHandler, identityClient identity.Client, limiter ratelimit.Limiter, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(limiter, logger))
	api.Use(middleware.Auth(identityClient, logger))

	api.GET("/requisitions", handler.List)
	api.POST("/requisitions", handler.Create)
	api.GET("/requisitions/:id", handler.Get)
	api.POST("/requisitions/:id/approve", handler.Approve)
	api.POST("/requisitions/:id/reject", handler.Reject)
	api.POST("/requisitions/:id/in-transit", handler.MarkInTransit)
	api.POST("/requisitions/:id/receive", handler.MarkReceived)
	api.DELETE("/requisitions/:id", handler.Delete)

	api.GET("/products/:id/counters", productHandler.GetCounters)
	api.PUT("/products/:id/counters", productHandler.SetCounters)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

package transport

import (
	"strings"
	"time"

	"github.com/ds124wfegd/imagecaption/internal/pkg/redis"
	"github.com/ds124wfegd/imagecaption/internal/transport/middleware"
	"github.com/gin-gonic/gin"
)

type RouteOptions struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	// Counter enables per-client rate limiting on the caption routes.
	Counter    redis.Counter
	RateLimit  int64
	RateWindow time.Duration
}

func InitRoutes(h *CaptionHandler, opts RouteOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger())

	origins := strings.Join(opts.AllowedOrigins, ", ")
	if origins == "" {
		origins = "*"
	}
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origins)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	captions := router.Group("/",
		middleware.RateLimit(opts.Counter, opts.RateLimit, opts.RateWindow),
		middleware.Timeout(opts.RequestTimeout),
	)
	captions.POST("/caption", h.GenerateCaption)
	captions.POST("/batch-caption", h.BatchCaption)

	router.GET("/styles", h.GetStyles)
	router.GET("/health", h.Health)

	return router
}

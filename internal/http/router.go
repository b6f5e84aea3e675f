package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kumahost/portal/wordpress-service/internal/config"
)

type Server struct {
	router  *gin.Engine
	handler *Handler
	cfg     *config.Config
}

// 全局速率限制器: 每用户每分钟最多 30 次请求
var userRateLimiter = NewRateLimiter(30, time.Minute)

// サイト作成は重い処理なので別枠で制限する (每用户每小时最多 5 次)
var createRateLimiter = NewRateLimiter(5, time.Hour)

func NewServer(cfg *config.Config, handler *Handler) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(MetricsMiddleware())

	s := &Server{
		router:  router,
		handler: handler,
		cfg:     cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "wordpress-service",
		})
	})

	s.router.GET("/metrics", MetricsHandler())

	// Portal API - requires JWT authentication
	api := s.router.Group("/api/v1")
	api.Use(JWTAuthMiddleware(s.cfg.JWT.SecretKey))
	api.Use(RateLimitMiddleware(userRateLimiter))
	{
		wp := api.Group("/wordpress")
		{
			wp.GET("/sites", s.handler.ListSites)
			wp.GET("/sites/:id", s.handler.GetSite)
			wp.GET("/sites/by-name/:name", s.handler.GetSiteByName)
			wp.POST("/sites", RateLimitMiddleware(createRateLimiter), s.handler.CreateSite)
			wp.PUT("/sites/:id", s.handler.UpdateSite)
			wp.DELETE("/sites/:id", s.handler.DeleteSite)
			wp.GET("/sites/:id/audit-logs", s.handler.GetSiteAuditLogs)
			wp.GET("/php-versions", s.handler.ListPHPVersions)
		}
	}

	// Internal Admin API (供 unified-portal 调用，需要 Internal Secret)
	internalAdmin := s.router.Group("/api/internal/admin")
	internalAdmin.Use(InternalAuthMiddleware(s.cfg.InternalSecret))
	{
		internalAdmin.GET("/databases", s.handler.ListDatabases)
	}
}

// Engine exposes the underlying router for serving and tests.
func (s *Server) Engine() *gin.Engine {
	return s.router
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

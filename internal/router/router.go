package router

import (
	"github.com/gin-gonic/gin"
	"github.com/ikkim/marketplace-admin/config"
	"github.com/ikkim/marketplace-admin/internal/app/controller"
	"github.com/ikkim/marketplace-admin/internal/app/model"
	"github.com/ikkim/marketplace-admin/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Router struct {
	verificationController *controller.VerificationController
	authMiddleware         *middleware.AuthMiddleware
	config                 *config.Config
}

func NewRouter(
	verificationController *controller.VerificationController,
	authMiddleware *middleware.AuthMiddleware,
	cfg *config.Config,
) *Router {
	return &Router{
		verificationController: verificationController,
		authMiddleware:         authMiddleware,
		config:                 cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"message": "Marketplace admin API is running",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 실시간 심사 알림 (토큰은 query parameter로 전달)
	router.GET("/ws/verifications",
		r.authMiddleware.Authenticate(),
		r.authMiddleware.RequireRole(string(model.RoleAdmin), string(model.RoleStaff)),
		r.verificationController.HandleWebSocket,
	)

	v1 := router.Group("/api/v1")
	{
		admin := v1.Group("/admin")
		admin.Use(r.authMiddleware.Authenticate())
		{
			verifications := admin.Group("/verifications")
			{
				// 조회는 직원도 가능
				read := verifications.Group("")
				read.Use(r.authMiddleware.RequireRole(string(model.RoleAdmin), string(model.RoleStaff)))
				{
					read.GET("", r.verificationController.ListCredentials)
					read.GET("/stats", r.verificationController.GetStats)
					read.GET("/export", r.verificationController.ExportCredentials)
					read.GET("/:id", r.verificationController.GetCredential)
					read.GET("/:id/document", r.verificationController.GetDocument)
				}

				// 심사 결정은 관리자만
				decide := verifications.Group("")
				decide.Use(r.authMiddleware.RequireRole(string(model.RoleAdmin)))
				{
					decide.POST("/:id/decision", r.verificationController.DecideCredential)
					decide.POST("/:id/sync-business", r.verificationController.SyncBusiness)
				}
			}
		}
	}

	return router
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Request-ID, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

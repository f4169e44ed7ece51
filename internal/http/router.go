package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"flowdesk/internal/apperr"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	authH *AuthHandler,
	healthH *HealthHandler,
	requireAuth gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), recoveryMiddleware(authH.responder), jsonContentTypeMiddleware())

	r.GET("/healthz", healthH.Health)

	auth := r.Group("/auth")
	auth.POST("/register", authH.Register)
	auth.POST("/login", authH.Login)
	auth.GET("/verify-email", authH.VerifyEmail)
	auth.POST("/resend-verification", authH.ResendVerification)
	auth.POST("/forgot-password", authH.ForgotPassword)
	auth.POST("/reset-password", authH.ResetPassword)
	auth.POST("/refresh", authH.RefreshToken)
	auth.POST("/logout", authH.Logout)

	auth.GET("/me", requireAuth, authH.Me)
	auth.PATCH("/me", requireAuth, authH.UpdateProfile)
	auth.POST("/change-password", requireAuth, authH.ChangePassword)

	users := r.Group("/users", requireAuth)
	users.GET("/:id", authH.GetUser)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// recoveryMiddleware responde un ServerError con el sobre estándar ante un panic.
func recoveryMiddleware(resp responder) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		resp.logger.Error("panic recovered", zap.Any("panic", recovered))
		resp.fail(c, apperr.New(apperr.KindServer, apperr.MessageServer))
	})
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}

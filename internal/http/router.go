package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trait-consensus/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
// jwtSvc nil deja /evaluations sin autenticacion (uso local).
func NewRouter(
	logger *zap.Logger,
	evalH *EvaluationHandler,
	jwtSvc *service.JWTService,
) *gin.Engine {
	r := gin.New()

	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/health", evalH.Health)
	r.GET("/questionnaire", evalH.Questionnaire)

	evals := r.Group("/evaluations")
	if jwtSvc != nil {
		evals.Use(JWTAuthMiddleware(jwtSvc))
	}
	evals.POST("", evalH.CreateEvaluation)
	evals.GET("/:id", evalH.GetEvaluation)
	evals.GET("/:id/traits", evalH.GetTraitScores)

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

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}

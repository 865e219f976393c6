package router

import (
	"time"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/handler"
	"github.com/Payphone-Digital/auth-service/internal/middleware"
	"github.com/gin-gonic/gin"
)

type Router struct {
	authHandler   *handler.AuthHandler
	oauthHandler  *handler.OAuthHandler
	healthHandler *handler.HealthHandler

	authMw *middleware.AuthMiddleware
	Config *config.Config
}

func NewRouter(
	auth *handler.AuthHandler,
	oauth *handler.OAuthHandler,
	health *handler.HealthHandler,

	authMw *middleware.AuthMiddleware,
	config *config.Config,
) *Router {
	return &Router{
		authHandler:   auth,
		oauthHandler:  oauth,
		healthHandler: health,

		authMw: authMw,
		Config: config,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.RequestContext("http"))
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.SecurityLoggingMiddleware())
	router.Use(middleware.CORS(r.Config.App.CORSOrigins))
	router.Use(middleware.RequestTimeout(r.Config.App.Timeout))

	api := router.Group("/api")
	{
		api.GET("/health", r.healthHandler.HealthCheck)
		api.GET("/health/live", r.healthHandler.BasicHealth)

		v1 := api.Group("/v1")
		{
			v1.Use(middleware.RateLimit(r.Config.RateLimit.Request, time.Duration(r.Config.RateLimit.Duration)*time.Second))

			r.authRoutes(v1)
			r.oauthRoutes(v1)
		}
	}

	return router
}

// credentialLimit is the stricter limiter for endpoints that take a
// password or an OTP.
func (r *Router) credentialLimit() gin.HandlerFunc {
	return middleware.RateLimit(r.Config.RateLimit.AuthRequest, time.Duration(r.Config.RateLimit.AuthDuration)*time.Second)
}

// authenticated chains the auth middleware with the given gates.
func (r *Router) authenticated(gates ...gin.HandlerFunc) []gin.HandlerFunc {
	return append([]gin.HandlerFunc{r.authMw.RequireAuth()}, gates...)
}

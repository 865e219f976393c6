package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Payphone-Digital/auth-service/internal/constants"
	"github.com/Payphone-Digital/auth-service/pkg/cache"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"github.com/Payphone-Digital/auth-service/pkg/pool"
	"github.com/Payphone-Digital/auth-service/pkg/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDegraded  = "degraded"
	statusDisabled  = "disabled"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthDeps struct {
	Database  Pinger
	Redis     Pinger
	Scheduler *scheduler.Scheduler
	Pool      *pool.ConnectionPool
	Cache     *cache.Cache
}

type HealthHandler struct {
	deps HealthDeps
}

type HealthCheckResponse struct {
	Status    string                     `json:"status"`
	Version   string                     `json:"version"`
	Timestamp time.Time                  `json:"timestamp"`
	Checks    map[string]HealthCheck     `json:"checks"`
	Jobs      []scheduler.Result         `json:"jobs,omitempty"`
	Providers map[string]pool.HostHealth `json:"providers,omitempty"`
	Cache     *cache.Stats               `json:"cache,omitempty"`
}

type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(deps HealthDeps) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// HealthCheck reports the database (required), Redis (optional) and the
// state of background jobs and provider hosts.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := HealthCheckResponse{
		Status:    statusHealthy,
		Version:   constants.AppVersion,
		Timestamp: time.Now(),
		Checks:    make(map[string]HealthCheck),
	}

	db := ping(ctx, "database", h.deps.Database)
	response.Checks["database"] = db
	if db.Status != statusHealthy {
		response.Status = statusUnhealthy
	}

	// Redis is optional
	rc := ping(ctx, "redis", h.deps.Redis)
	response.Checks["redis"] = rc
	if rc.Status == statusUnhealthy && response.Status == statusHealthy {
		response.Status = statusDegraded
	}

	if h.deps.Scheduler != nil {
		response.Jobs = h.deps.Scheduler.Results()
	}
	if h.deps.Pool != nil {
		response.Providers = h.deps.Pool.GetHealthStats()
	}
	if h.deps.Cache != nil {
		stats := h.deps.Cache.Stats()
		response.Cache = &stats
	}

	statusCode := http.StatusOK
	if response.Status == statusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	logger.GetLogger().Debug("Health check performed",
		zap.String("overall_status", response.Status),
		zap.Int("status_code", statusCode),
	)

	c.JSON(statusCode, response)
}

// BasicHealth is the cheap liveness probe for load balancers.
func (h *HealthHandler) BasicHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    statusHealthy,
		"version":   constants.AppVersion,
		"timestamp": time.Now(),
	})
}

func ping(ctx context.Context, name string, p Pinger) HealthCheck {
	if p == nil {
		return HealthCheck{Status: statusDisabled}
	}
	if err := p.Ping(ctx); err != nil {
		logger.GetLogger().Warn("Health ping failed", zap.String("component", name), zap.Error(err))
		return HealthCheck{Status: statusUnhealthy, Message: name + " ping failed"}
	}
	return HealthCheck{Status: statusHealthy}
}

// Package health provides liveness and readiness probes for the Fern service.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

const checkTimeout = 5 * time.Second

// CheckResult represents the result of one dependency check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Response represents a health check response
type Response struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

// Checker probes the service's backing dependencies
type Checker struct {
	db        *sqlx.DB
	redis     *redis.Client
	startTime time.Time
	version   string
	mu        sync.RWMutex
	ready     bool
}

// NewChecker creates a new health checker
func NewChecker(db *sqlx.DB, redisClient *redis.Client, version string) *Checker {
	return &Checker{
		db:        db,
		redis:     redisClient,
		startTime: time.Now(),
		version:   version,
	}
}

// SetReady marks the service as ready to receive traffic
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// IsReady returns whether the service is ready
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// LivenessHandler reports that the process is running.
func (c *Checker) LivenessHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, Response{
		Status:     StatusHealthy,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		ReportedAt: time.Now(),
	})
}

// ReadinessHandler reports whether the service can serve traffic, including
// connectivity to Postgres and Redis.
func (c *Checker) ReadinessHandler(ctx echo.Context) error {
	if !c.IsReady() {
		return ctx.JSON(http.StatusServiceUnavailable, Response{
			Status:     StatusUnhealthy,
			Version:    c.version,
			ReportedAt: time.Now(),
			Checks: map[string]CheckResult{
				"startup": {Status: StatusUnhealthy, Message: "service is still starting up"},
			},
		})
	}

	checks := map[string]CheckResult{
		"database": c.checkDatabase(ctx.Request().Context()),
		"redis":    c.checkRedis(ctx.Request().Context()),
	}

	status := StatusHealthy
	statusCode := http.StatusOK
	for _, check := range checks {
		if check.Status == StatusUnhealthy {
			status = StatusUnhealthy
			statusCode = http.StatusServiceUnavailable
		}
	}

	return ctx.JSON(statusCode, Response{
		Status:     status,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     checks,
		ReportedAt: time.Now(),
	})
}

func (c *Checker) checkDatabase(ctx context.Context) CheckResult {
	if c.db == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "database not configured"}
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error(), Latency: time.Since(start).String()}
	}
	return CheckResult{Status: StatusHealthy, Latency: time.Since(start).String()}
}

func (c *Checker) checkRedis(ctx context.Context) CheckResult {
	if c.redis == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "redis not configured"}
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := c.redis.Ping(ctx).Err(); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error(), Latency: time.Since(start).String()}
	}
	return CheckResult{Status: StatusHealthy, Latency: time.Since(start).String()}
}

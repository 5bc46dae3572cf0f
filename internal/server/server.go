// Package server wires the HTTP surface: routes, middleware, and graceful
// shutdown.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ncobase/jobstream/internal/config"
	"github.com/ncobase/jobstream/internal/data"
	jobHandler "github.com/ncobase/jobstream/internal/job/handler"
	"github.com/ncobase/jobstream/internal/job/structs"
	"github.com/ncobase/jobstream/internal/middleware"
	"github.com/ncobase/jobstream/internal/realtime"
	"github.com/ncobase/jobstream/pkg/jwt"
	"github.com/ncobase/jobstream/pkg/logger"
	"github.com/ncobase/jobstream/pkg/resp"
)

// Server is the API runtime.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	conf   *config.Config
}

// New builds the router and binds all endpoints.
func New(conf *config.Config, d *data.Data, jobs *jobHandler.JobHandler, ws *realtime.Handler, tokens *jwt.TokenManager) *Server {
	if conf.RunMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.Trace())

	engine.GET("/health", func(c *gin.Context) {
		if err := d.Ping(c.Request.Context()); err != nil {
			resp.Fail(c.Writer, resp.ServiceUnavailable(err.Error()))
			return
		}
		resp.Success(c.Writer, map[string]any{"status": "ok"})
	})

	// The gateway authenticates after the upgrade so clients get close
	// codes instead of HTTP errors.
	engine.GET("/ws", ws.HandleConnection)

	authed := engine.Group("/", middleware.Auth(tokens))
	{
		authed.POST("/jobs", jobs.CreateJob)
		authed.GET("/jobs", jobs.ListJobs)
		authed.GET("/jobs/types", jobs.GetTypes)
		authed.GET("/jobs/:id", jobs.GetJob)
		authed.GET("/jobs/:id/progress", jobs.GetProgress)
		authed.GET("/jobs/:id/logs", jobs.GetLogs)
		authed.DELETE("/jobs/:id", jobs.CancelJob)
		authed.GET("/archive/jobs/:id", jobs.GetArchivedJob)

		admin := authed.Group("/", middleware.RequireRole(structs.RoleAdmin))
		{
			admin.POST("/jobs/:id/restart", jobs.RestartJob)
			admin.GET("/jobs/stats", jobs.GetStats)
			admin.GET("/ws/stats", ws.HandleStats)
		}
	}

	return &Server{
		engine: engine,
		conf:   conf,
		http: &http.Server{
			Addr:         conf.Addr(),
			Handler:      engine,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	logger.StdLogger().Infof(ctx, "%s listening on %s", s.conf.AppName, s.conf.Addr())
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

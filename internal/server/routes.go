package server

import (
	"github.com/ephram/relay/internal/server/middleware"
	v1 "github.com/ephram/relay/internal/server/v1"
)

func (s *Server) setupRoutes() {
	s.engine.Use(middleware.Logger(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))
	if s.cfg.Load().Tracing.Enabled {
		s.engine.Use(middleware.Tracing(serviceName))
	}

	healthHandler := v1.NewHealthHandler(s, s.version)
	messageHandler := v1.NewMessageHandler(s, s.analytics)
	modelHandler := v1.NewModelHandler(s)
	adminHandler := v1.NewAdminHandler(s)

	s.engine.GET("/", healthHandler.Root)
	s.engine.GET("/health", healthHandler.Health)

	api := s.engine.Group("/v1")
	{
		api.POST("/messages", messageHandler.CreateMessage)
		api.GET("/models", modelHandler.ListModels)
		if s.analytics != nil {
			api.GET("/usage", v1.NewUsageHandler(s.analytics).Overview)
		}
	}

	admin := s.engine.Group("/admin")
	{
		admin.POST("/reload", adminHandler.Reload)
		admin.POST("/backend", adminHandler.SwitchBackend)
	}
}

package server

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := gin.Default()

	r.Use(cors.New(s.corsConfig()))

	r.GET("/health", s.readyHandler)
	r.GET("/online", s.onlineHandler)

	if s.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1", s.AuthMiddleware())
	{
		v1.POST("/batches/:id/process", s.processBatchHandler)
		v1.POST("/dispatch", s.dispatchHandler)
		v1.POST("/pending-reports/poll", s.pollReportsHandler)
		v1.GET("/campaigns/:id/analysis", s.analysisHandler)
	}

	return r
}

// corsConfig maps the configured policy onto gin-contrib/cors. An empty
// origin list allows every origin instead of tripping the library's panic.
func (s *Server) corsConfig() cors.Config {
	c := cors.Config{
		AllowMethods:     s.config.CORS.AllowedMethods,
		AllowHeaders:     s.config.CORS.AllowedHeaders,
		AllowCredentials: s.config.CORS.AllowCredentials,
		MaxAge:           time.Duration(s.config.CORS.MaxAge) * time.Second,
	}
	if len(s.config.CORS.AllowedOrigins) == 0 || slices.Contains(s.config.CORS.AllowedOrigins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = s.config.CORS.AllowedOrigins
	}
	return c
}

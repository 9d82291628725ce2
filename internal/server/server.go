package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"rsyaclean/internal/config"
	"rsyaclean/internal/controller"
)

type Server struct {
	sc       controller.ServerController
	ec       controller.EngineController
	registry *prometheus.Registry
	config   config.Config
}

// New wires the HTTP surface. registry may be nil, in which case /metrics
// is not served.
func New(config config.Config, sc controller.ServerController, ec controller.EngineController, registry *prometheus.Registry) *http.Server {
	server := Server{
		sc:       sc,
		ec:       ec,
		registry: registry,
		config:   config,
	}

	// batch processing runs as long as the invoke deadline allows
	writeTimeout := config.Engine.InvokeDeadline() + 30*time.Second

	return &http.Server{
		Addr:         fmt.Sprintf(":%v", config.Port),
		Handler:      server.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: writeTimeout,
	}
}

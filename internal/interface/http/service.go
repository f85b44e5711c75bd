package httpservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lastword-games/roundd/internal/core/application"
	service_interface "github.com/lastword-games/roundd/internal/interface"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func init() {
	gin.SetMode(gin.ReleaseMode)
}

type service struct {
	config Config
	appSvc application.Service
	server *http.Server
}

func NewService(
	config Config, appSvc application.Service,
) (service_interface.Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}
	if appSvc == nil {
		return nil, fmt.Errorf("missing app service")
	}

	server := &http.Server{
		Addr:              config.address(),
		Handler:           NewHandler(appSvc, config.AdminSecret),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return &service{config, appSvc, server}, nil
}

func (s *service) Start() error {
	if err := s.appSvc.Start(); err != nil {
		return fmt.Errorf("failed to start app service: %s", err)
	}
	log.Info("started app service")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server stopped unexpectedly")
		}
	}()
	log.Infof("started listening at %s", s.config.address())

	return nil
}

func (s *service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	//nolint:all
	s.server.Shutdown(ctx)
	log.Info("stopped http server")

	s.appSvc.Stop()
	log.Info("stopped app service")
}

// NewHandler returns the router of the round engine api. Admin routes are
// open if adminSecret is empty.
func NewHandler(appSvc application.Service, adminSecret string) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	h := &handler{appSvc}
	admin := adminAuth(adminSecret)

	router.GET("/healthz", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.POST("/rounds", admin, h.createRound)
	v1.GET("/rounds/:id", h.getRound)
	v1.POST("/rounds/:id/participants", h.joinRound)
	v1.POST("/rounds/:id/contributions", admin, h.contribute)
	v1.POST("/rounds/:id/keepalive", h.keepAlive)
	v1.POST("/rounds/:id/tick", h.tick)
	v1.POST("/rounds/:id/cancel", admin, h.cancelRound)
	v1.POST("/rounds/:id/settlement/resume", admin, h.resumeSettlement)
	v1.POST("/ticks", h.runDueTicks)

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("request served")
	}
}

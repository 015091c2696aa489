package api

import (
	"context"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog/log"

	"example.com/keeptend/config"
	"example.com/keeptend/eventstore"
	"example.com/keeptend/handlers"
	"example.com/keeptend/repositories"
	"example.com/keeptend/usage"
	"example.com/keeptend/views"
)

// Dependencies are the components the API serves
type Dependencies struct {
	Store          eventstore.EventStore
	Live           *views.Live
	Repo           *repositories.StateRepository
	Tracker        *usage.Tracker
	PlantHandler   *handlers.PlantHandler
	ChatHandler    *handlers.ChatHandler
	NamingHandler  *handlers.NamingHandler
	AccountHandler *handlers.AccountHandler
	NewRelic       *newrelic.Application
}

// Server is the HTTP server for the API
type Server struct {
	cfg        config.Config
	router     *gin.Engine
	httpServer *http.Server
	nrApp      *newrelic.Application

	store          eventstore.EventStore
	live           *views.Live
	repo           *repositories.StateRepository
	tracker        *usage.Tracker
	plantHandler   *handlers.PlantHandler
	chatHandler    *handlers.ChatHandler
	namingHandler  *handlers.NamingHandler
	accountHandler *handlers.AccountHandler
}

// NewServer creates a new API server
func NewServer(cfg config.Config, deps Dependencies) *Server {
	server := &Server{
		cfg:            cfg,
		router:         gin.New(),
		store:          deps.Store,
		live:           deps.Live,
		repo:           deps.Repo,
		tracker:        deps.Tracker,
		plantHandler:   deps.PlantHandler,
		chatHandler:    deps.ChatHandler,
		namingHandler:  deps.NamingHandler,
		accountHandler: deps.AccountHandler,
		nrApp:          deps.NewRelic,
	}

	server.setupMiddleware()
	server.setupRoutes()

	// view streams end when shutdown begins
	baseCtx, cancel := context.WithCancel(context.Background())
	server.httpServer = &http.Server{
		Addr:        cfg.HTTPServerAddress,
		Handler:     server.router,
		ReadTimeout: cfg.HTTPServerTimeout,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	server.httpServer.RegisterOnShutdown(cancel)

	return server
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(RequestIDMiddleware())
	if s.nrApp != nil {
		s.router.Use(NewRelicMiddleware(s.nrApp)...)
	}
	if s.cfg.CorsEnabled {
		s.router.Use(CORSMiddleware())
	}
	s.router.Use(gin.Recovery())
	s.router.Use(LoggingMiddleware())
}

func (s *Server) setupRoutes() {
	s.router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	v1 := s.router.Group("/api/v1")

	plantRoutes := v1.Group("/plants")
	{
		plantRoutes.GET("", s.listPlants)
		plantRoutes.POST("", s.createPlant)
		plantRoutes.GET("/:id", s.getPlant)
		plantRoutes.PATCH("/:id", s.updatePlant)
		plantRoutes.DELETE("/:id", s.deletePlant)
		plantRoutes.GET("/:id/messages", s.listMessages)
		plantRoutes.POST("/:id/messages", s.sendMessage)
		plantRoutes.DELETE("/:id/messages", s.clearChat)
	}

	usageRoutes := v1.Group("/usage")
	{
		usageRoutes.GET("", s.getUsage)
		usageRoutes.POST("/names", s.generateName)
		usageRoutes.POST("/reset", s.resetUsage)
	}

	v1.POST("/photos/describe", s.describePhoto)
	v1.POST("/purchases", s.applyPurchase)

	eventRoutes := v1.Group("/events")
	{
		eventRoutes.GET("", s.listEvents)
		eventRoutes.POST("", s.commitEvent)
	}

	v1.GET("/views/:label/stream", s.streamView)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Msgf("HTTP server starting on %s", s.cfg.HTTPServerAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

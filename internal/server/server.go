// Package server provides the HTTP server setup and routing configuration.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cwaldron/scenecast/internal/api"
	"github.com/cwaldron/scenecast/internal/config"
	"github.com/cwaldron/scenecast/internal/db"
	"github.com/cwaldron/scenecast/internal/logger"
	"github.com/cwaldron/scenecast/internal/metadata"
	"github.com/cwaldron/scenecast/internal/middleware"
	"github.com/cwaldron/scenecast/internal/pathmap"
	"github.com/cwaldron/scenecast/internal/streaming"
)

// Server represents the HTTP server
type Server struct {
	config         *config.Config
	db             *db.DB
	repos          *db.Repositories
	metaClient     *metadata.Client
	mapper         *pathmap.Mapper
	resolver       *sceneResolver
	sessionManager *streaming.Manager
	router         *gin.Engine
	server         *http.Server
}

// New creates a new server instance and wires the streaming stack
func New(cfg *config.Config, database *db.DB) (*Server, error) {
	repos := db.NewRepositories(database)

	metaClient := metadata.NewClient(metadata.ClientConfig{
		BaseURL:  cfg.Metadata.BaseURL,
		APIKey:   cfg.Metadata.APIKey,
		CacheTTL: cfg.Metadata.CacheTTL,
		Timeout:  cfg.Metadata.Timeout,
	}, logger.Log.With().Str("component", "metadata").Logger())

	prober := metadata.NewProber("ffprobe", logger.Log.With().Str("component", "prober").Logger())

	mapper := pathmap.NewMapper(nil)
	if err := loadPathMappings(repos, mapper); err != nil {
		return nil, fmt.Errorf("failed to load path mappings: %w", err)
	}

	resolver := newSceneResolver(metaClient, prober, mapper)

	if err := streaming.CleanOrphanedDirs(cfg.Streaming.ConfigDir, logger.Log); err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to clean orphaned session directories")
	}

	managerCfg := streaming.ManagerConfig{
		ConfigDir:       cfg.Streaming.ConfigDir,
		SegmentDuration: cfg.Streaming.SegmentDuration,
		IdleTimeout:     time.Duration(cfg.Streaming.IdleTimeout) * time.Second,
		MaxSessions:     cfg.Streaming.MaxSessions,
		Supervisor: streaming.SupervisorConfig{
			FFmpegPath:     cfg.Streaming.FFmpegPath,
			StartupTimeout: time.Duration(cfg.Streaming.StartupTimeout) * time.Second,
			SegmentTimeout: 60 * time.Second,
			StopGrace:      streaming.RunnerStopGrace,
			MaxRetries:     3,
		},
	}
	sessionManager := streaming.NewManager(managerCfg, resolver, mapper,
		logger.Log.With().Str("component", "session_manager").Logger())

	return &Server{
		config:         cfg,
		db:             database,
		repos:          repos,
		metaClient:     metaClient,
		mapper:         mapper,
		resolver:       resolver,
		sessionManager: sessionManager,
	}, nil
}

// setupRouter initializes the Gin router with middleware and routes
func (s *Server) setupRouter() {
	if s.config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()

	s.router.Use(middleware.RequestLogger())
	s.router.Use(gin.Recovery())
	s.router.Use(cors.Default())

	apiGroup := s.router.Group("/api")

	// Open routes: playback must work for plain HLS clients that cannot
	// attach headers
	api.SetupHealthRoutes(apiGroup, s.db, s.metaClient)
	api.SetupSceneRoutes(apiGroup, s.resolver)
	api.SetupStreamRoutes(apiGroup, s.sessionManager, s.resolver, s.mapper,
		time.Duration(s.config.Streaming.SegmentWaitTimeout)*time.Second,
		s.config.Streaming.SegmentDuration)
	api.SetupProxyRoutes(apiGroup, s.resolver)

	// Authenticated routes
	authed := apiGroup.Group("")
	authed.Use(middleware.APIKeyAuth(s.repos.Users))
	api.SetupRatingRoutes(authed, s.repos.Ratings)
	api.SetupPlaylistRoutes(authed, s.repos.Playlists)
	api.SetupHistoryRoutes(authed, s.repos.WatchHistory)

	// Admin routes
	admin := apiGroup.Group("")
	admin.Use(middleware.APIKeyAuth(s.repos.Users), middleware.RequireAdmin())
	api.SetupUserRoutes(admin, s.repos.Users)
	api.SetupPathMappingRoutes(admin, s.repos.PathMappings, s.mapper)
	api.SetupSessionRoutes(admin, s.sessionManager)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.setupRouter()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.server = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	logger.Log.Info().
		Str("host", s.config.Server.Host).
		Int("port", s.config.Server.Port).
		Msg("Starting HTTP server")

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and tears down all sessions
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Log.Info().Msg("Shutting down server gracefully")

	if s.sessionManager != nil {
		s.sessionManager.Stop()
	}

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	logger.Log.Info().Msg("Server stopped")
	return nil
}

func loadPathMappings(repos *db.Repositories, mapper *pathmap.Mapper) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mappings, err := repos.PathMappings.List(ctx)
	if err != nil {
		return err
	}
	mapper.SetMappings(api.ToMapperEntries(mappings))
	return nil
}

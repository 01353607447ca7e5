// Package server exposes the HTTP surface: auth, assistant management,
// chat, function definitions, files, and usage reporting.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aide/internal/assistants"
	"aide/internal/auth"
	"aide/internal/chat"
	"aide/internal/dispatch"
	"aide/internal/logging"
	"aide/internal/mail"
	"aide/internal/store"
)

// RemoteAPI is the slice of the remote client the handlers call directly.
type RemoteAPI interface {
	CreateAssistant(ctx context.Context, req assistants.CreateAssistantRequest) (*assistants.Assistant, error)
	RetrieveAssistant(ctx context.Context, assistantID string) (*assistants.Assistant, error)
	UpdateAssistant(ctx context.Context, assistantID string, req assistants.UpdateAssistantRequest) (*assistants.Assistant, error)
	DeleteAssistant(ctx context.Context, assistantID string) error
	RetrieveFile(ctx context.Context, fileID string) (*assistants.File, error)
	FileContent(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// Config tunes the HTTP server.
type Config struct {
	Addr           string
	Environment    string
	EnableCORS     bool
	MetricsEnabled bool
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Deps bundles everything the handlers need.
type Deps struct {
	Chat       *chat.Service
	Remote     RemoteAPI
	Tokens     *auth.TokenManager
	Users      store.UserRepo
	Assistants store.AssistantRepo
	Threads    store.ThreadRepo
	Functions  store.FunctionRepo
	Usage      store.UsageRepo
	Dynamic    *dispatch.DynamicRegistry
	Mailer     mail.Mailer
	Logger     logging.Logger
}

// Server is the HTTP front of the service.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	deps       Deps
	fileNames  *assistants.FileNameResolver
	logger     logging.Logger
	startTime  time.Time
}

// New builds the engine and registers all routes.
func New(cfg Config, deps Deps) *Server {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Chat requests block for the whole run; the write timeout has
		// to outlive the run deadline.
		cfg.WriteTimeout = 10 * time.Minute
	}
	if deps.Mailer == nil {
		deps.Mailer = mail.NopMailer{}
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	if cfg.EnableCORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
		engine.Use(cors.New(corsConfig))
	}

	s := &Server{
		engine: engine,
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      engine,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		deps:      deps,
		fileNames: assistants.NewFileNameResolver(deps.Remote),
		logger:    logging.OrNop(deps.Logger),
		startTime: time.Now(),
	}
	s.setupRoutes(cfg.MetricsEnabled)
	return s
}

func (s *Server) setupRoutes(metricsEnabled bool) {
	if metricsEnabled {
		s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := s.engine.Group("/api")
	api.GET("/health", s.handleHealth)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", s.handleRegister)
		authGroup.POST("/login", s.handleLogin)
	}

	protected := api.Group("")
	protected.Use(auth.Middleware(s.deps.Tokens, s.deps.Users))
	{
		protected.POST("/assistants", s.handleCreateAssistant)
		protected.GET("/assistants", s.handleListAssistants)
		protected.GET("/assistants/:assistant_id", s.handleGetAssistant)
		protected.PUT("/assistants/:assistant_id", s.handleUpdateAssistant)
		protected.DELETE("/assistants/:assistant_id", s.handleDeleteAssistant)

		protected.POST("/assistants/:assistant_id/chats", s.handleSendMessage)
		protected.POST("/assistants/:assistant_id/chats/edit", s.handleEditPrompt)
		protected.GET("/assistants/:assistant_id/chats", s.handleHistory)

		protected.GET("/threads", s.handleListThreads)

		protected.POST("/functions", s.handleCreateFunction)
		protected.POST("/functions/validate", s.handleValidateFunction)
		protected.GET("/functions", s.handleListFunctions)
		protected.PUT("/functions/:function_id", s.handleUpdateFunction)
		protected.DELETE("/functions/:function_id", s.handleDeleteFunction)

		protected.GET("/files/:file_id", s.handleDownloadFile)
		protected.GET("/usage", s.handleUsage)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

// Run serves until the context is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}

// Handler exposes the engine for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

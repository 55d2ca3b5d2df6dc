// Package api serves the journal to the view layer over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/veritasvoid/TradeZen/internal/config"
	"github.com/veritasvoid/TradeZen/internal/models"
	"go.uber.org/zap"
)

// Session is the credential lifecycle the API drives.
type Session interface {
	Initialize(ctx context.Context) error
	SignIn(ctx context.Context) (string, error)
	SignOut()
	SignedIn() bool
}

// Consent hands out consent prompts and receives the provider redirect.
type Consent interface {
	Prompts() <-chan string
	PendingURL() (string, bool)
	Resolve(state, code, providerErr string) error
}

// Journal is the remote store of trades and tags.
type Journal interface {
	ListTrades(ctx context.Context) ([]models.Trade, error)
	MonthTrades(ctx context.Context, year int, month time.Month) ([]models.Trade, error)
	AddTrade(ctx context.Context, t models.Trade) (models.Trade, error)
	UpdateTrade(ctx context.Context, t models.Trade) (models.Trade, error)
	DeleteTrade(ctx context.Context, tradeID string) error

	ListTags(ctx context.Context) ([]models.Tag, error)
	GetTag(ctx context.Context, tagID string) (models.Tag, bool, error)
	AddTag(ctx context.Context, t models.Tag) (models.Tag, error)
	UpdateTag(ctx context.Context, t models.Tag) (models.Tag, error)
	DeleteTag(ctx context.Context, tagID string) error

	UploadScreenshot(ctx context.Context, data []byte, date, clock string) (string, error)
}

// Settings is the synchronized settings store.
type Settings interface {
	Load(ctx context.Context) error
	Loaded() bool
	Settings() map[string]any
	Update(ctx context.Context, partial map[string]any) <-chan error
	Currency() string
	StartingBalance() decimal.Decimal
	PrivacyMode() bool
}

// Server is the HTTP interface of the journal.
type Server struct {
	server   *http.Server
	router   *gin.Engine
	session  Session
	consent  Consent
	journal  Journal
	settings Settings
	logger   *zap.Logger

	// consentWait bounds how long sign-in waits for either a credential or a
	// consent prompt before answering.
	consentWait time.Duration
	now         func() time.Time
}

// NewServer wires the routes.
func NewServer(cfg *config.Server, session Session, consent Consent, journal Journal, settings Settings, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		router:      router,
		session:     session,
		consent:     consent,
		journal:     journal,
		settings:    settings,
		logger:      logger.Named("api-server"),
		consentWait: 30 * time.Second,
		now:         time.Now,
	}
	router.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/oauth/callback", s.callbackHandler)

	api := s.router.Group("/api")

	session := api.Group("/session")
	session.GET("", s.sessionStatusHandler)
	session.POST("/signin", s.signInHandler)
	session.POST("/signout", s.signOutHandler)

	trades := api.Group("/trades")
	trades.GET("", s.listTradesHandler)
	trades.POST("", s.addTradeHandler)
	trades.PUT("/:id", s.updateTradeHandler)
	trades.DELETE("/:id", s.deleteTradeHandler)
	trades.POST("/screenshots", s.uploadScreenshotHandler)

	tags := api.Group("/tags")
	tags.GET("", s.listTagsHandler)
	tags.POST("", s.addTagHandler)
	tags.PUT("/:id", s.updateTagHandler)
	tags.DELETE("/:id", s.deleteTagHandler)
	tags.GET("/:id/trades", s.tagTradesHandler)

	api.GET("/dashboard", s.dashboardHandler)
	api.GET("/months/:year/:month", s.monthHandler)

	api.GET("/settings", s.getSettingsHandler)
	api.PATCH("/settings", s.patchSettingsHandler)
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

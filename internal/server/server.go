// Package server exposes the HTTP API: media processing, clipping, chat,
// billing, webhooks, and artifact downloads.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"clipscribe/internal/chat"
	"clipscribe/internal/config"
	"clipscribe/internal/deliver"
	"clipscribe/internal/domain"
	"clipscribe/internal/orchestrator"
)

// mediaPipeline is the orchestrator surface the handlers drive.
type mediaPipeline interface {
	Info(ctx context.Context, sourceURL string) (domain.MediaInfo, error)
	ProcessMedia(ctx context.Context, req domain.MediaRequest) (orchestrator.ProcessResult, error)
	Clip(ctx context.Context, req orchestrator.ClipRequest) (orchestrator.ClipResult, error)
}

// chatResponder answers authenticated chat turns.
type chatResponder interface {
	Respond(ctx context.Context, req chat.Request) (chat.Reply, error)
}

// billingGateway creates checkout sessions and consumes provider events.
type billingGateway interface {
	Configured() bool
	CreateCheckout(ctx context.Context, userID, tier string) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// tokenVerifier resolves bearer credentials to user IDs.
type tokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// artifactSender forwards a stored artifact to the external drop point.
type artifactSender interface {
	Configured() bool
	Send(ctx context.Context, filePath string, meta deliver.Metadata) (string, error)
}

// Deps bundles the server's collaborators. Chat, Billing, Verifier, and
// Delivery may be nil when their integration is not configured.
type Deps struct {
	Pipeline mediaPipeline
	Chat     chatResponder
	Billing  billingGateway
	Verifier tokenVerifier
	Delivery artifactSender
	Recorder *orchestrator.Recorder
	Report   domain.DiagnosticReport
	Logger   *log.Logger
}

// Server wires the gin engine to the service layer.
type Server struct {
	cfg    *config.Config
	deps   Deps
	engine *gin.Engine
}

// New builds the router with all routes registered.
func New(cfg *config.Config, deps Deps) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{cfg: cfg, deps: deps}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", "Stripe-Signature"},
	}))

	engine.Static("/downloads", cfg.DownloadsDir)

	api := engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/activity", s.handleActivity)
	api.POST("/video-info", s.handleVideoInfo)
	api.POST("/process-media", s.handleProcessMedia)
	api.POST("/clip-media", s.handleClipMedia)
	api.POST("/webhook/google-drive", s.handleDriveDelivery)
	api.POST("/webhook/billing", s.handleBillingWebhook)
	api.POST("/chat", s.requireAuth(), s.handleChat)
	api.POST("/billing/checkout", s.requireAuth(), s.handleCheckout)

	s.engine = engine
	return s
}

// Handler exposes the router for an http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// requestLogger records each request at debug level through the service
// logger instead of gin's default writer.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.deps.Logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}

// requireAuth resolves the bearer token to a user ID and stores it in the
// request context.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Verifier == nil {
			respondError(c, domain.E(domain.KindAuth, "authentication is not configured", nil))
			c.Abort()
			return
		}

		userID, err := s.deps.Verifier.VerifyToken(bearerToken(c))
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// baseURL derives the absolute URL prefix for artifact links: the configured
// public base when set, the request's host otherwise.
func (s *Server) baseURL(c *gin.Context) string {
	if base := strings.TrimSpace(s.cfg.PublicBaseURL); base != "" {
		return strings.TrimRight(base, "/")
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

// statusForError maps error kinds onto HTTP statuses. Caller mistakes are
// 400s, missing clip sources 404, credential problems 401, everything else
// is a server-side failure.
func statusForError(err error) int {
	switch domain.KindOf(err) {
	case domain.KindInvalidRequest, domain.KindDownload, domain.KindNoTranscript, domain.KindDocumentExport:
		return http.StatusBadRequest
	case domain.KindClipSourceNotFound:
		return http.StatusNotFound
	case domain.KindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the uniform failure envelope. The outward message is
// the domain error's own text, not the wrapped cause.
func respondError(c *gin.Context, err error) {
	respondErrorStatus(c, statusForError(err), err)
}

// respondErrorStatus writes the failure envelope with an explicit status, for
// routes whose contract overrides the kind mapping.
func respondErrorStatus(c *gin.Context, status int, err error) {
	message := err.Error()
	var derr *domain.Error
	if errors.As(err, &derr) {
		message = derr.Message
	}
	c.JSON(status, gin.H{"success": false, "message": message})
}

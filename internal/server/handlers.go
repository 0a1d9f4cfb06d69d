package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"clipscribe/internal/chat"
	"clipscribe/internal/deliver"
	"clipscribe/internal/domain"
	"clipscribe/internal/orchestrator"
)

// handleHealth reports liveness plus the startup diagnostic report.
func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	if s.deps.Report.HasFailures {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "diagnostics": s.deps.Report})
}

// handleActivity returns recent processing events after the given sequence.
func (s *Server) handleActivity(c *gin.Context) {
	since, _ := strconv.ParseInt(c.Query("since"), 10, 64)
	c.JSON(http.StatusOK, gin.H{
		"latest": s.deps.Recorder.Latest(),
		"events": s.deps.Recorder.Since(since),
	})
}

// handleVideoInfo fetches source metadata without downloading anything.
func (s *Server) handleVideoInfo(c *gin.Context) {
	var body struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, domain.E(domain.KindInvalidRequest, "invalid request body", err))
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	info, err := s.deps.Pipeline.Info(ctx, body.URL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// handleProcessMedia runs the full pipeline for one request. A bearer token
// is optional; when present it must be valid and overrides the requesting
// user from the body.
func (s *Server) handleProcessMedia(c *gin.Context) {
	var req domain.MediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.E(domain.KindInvalidRequest, "invalid request body", err))
		return
	}

	if token := bearerToken(c); token != "" && s.deps.Verifier != nil {
		userID, err := s.deps.Verifier.VerifyToken(token)
		if err != nil {
			respondError(c, err)
			return
		}
		req.UserID = userID
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	res, err := s.deps.Pipeline.ProcessMedia(ctx, req)
	if err != nil {
		// Every process-media failure is a caller-visible processing error,
		// including the metadata fetch that precedes any download.
		if domain.KindOf(err) == domain.KindInfoFetch {
			respondErrorStatus(c, http.StatusBadRequest, err)
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":              true,
		"message":              res.Message,
		"fileName":             res.FileName,
		"fileUrl":              s.baseURL(c) + "/downloads/" + res.FileName,
		"mediaInfo":            res.Media,
		"method":               res.Method,
		"savedToKnowledgeBase": res.SavedToKnowledgeBase,
		"mediaItemId":          res.MediaItemID,
		"transcriptId":         res.TranscriptID,
		"delivered":            res.Delivered,
	})
}

// handleClipMedia cuts a time range out of an existing or remote file.
func (s *Server) handleClipMedia(c *gin.Context) {
	var req orchestrator.ClipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.E(domain.KindInvalidRequest, "invalid request body", err))
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	res, err := s.deps.Pipeline.Clip(ctx, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": res.Message,
		"fileUrl": s.baseURL(c) + "/downloads/" + res.FileName,
	})
}

// handleDriveDelivery forwards an already-produced artifact to the delivery
// webhook on demand.
func (s *Server) handleDriveDelivery(c *gin.Context) {
	var body struct {
		FilePath string           `json:"filePath"`
		Metadata deliver.Metadata `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, domain.E(domain.KindInvalidRequest, "invalid request body", err))
		return
	}

	// Only the basename is honored; the artifact must live in the downloads
	// directory.
	path := strings.TrimSpace(body.FilePath)
	if path == "" || strings.Contains(path, "..") {
		respondError(c, domain.E(domain.KindInvalidRequest, "filePath must name a stored artifact", nil))
		return
	}
	name := filepath.Base(path)
	if s.deps.Delivery == nil || !s.deps.Delivery.Configured() {
		respondError(c, domain.E(domain.KindDelivery, "delivery webhook not configured", nil))
		return
	}

	local := filepath.Join(s.cfg.DownloadsDir, name)
	if _, err := os.Stat(local); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "artifact not found"})
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	result, err := s.deps.Delivery.Send(ctx, local, body.Metadata)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

// handleChat answers one authenticated chat turn.
func (s *Server) handleChat(c *gin.Context) {
	if s.deps.Chat == nil {
		respondError(c, domain.E(domain.KindProvider, "chat provider not configured", nil))
		return
	}

	var body struct {
		ConversationID string   `json:"conversationId"`
		Message        string   `json:"message"`
		MediaIDs       []string `json:"contextMediaIds"`
		TranscriptIDs  []string `json:"contextTranscriptIds"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, domain.E(domain.KindInvalidRequest, "invalid request body", err))
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	reply, err := s.deps.Chat.Respond(ctx, chat.Request{
		ConversationID:       body.ConversationID,
		UserID:               c.GetString("userID"),
		Message:              body.Message,
		ContextMediaIDs:      body.MediaIDs,
		ContextTranscriptIDs: body.TranscriptIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": reply.Message,
		"model":   reply.Model,
		"usage": gin.H{
			"promptTokens":     reply.PromptTokens,
			"completionTokens": reply.CompletionTokens,
			"totalTokens":      reply.TotalTokens,
		},
	})
}

// handleCheckout opens a subscription checkout session for the caller.
func (s *Server) handleCheckout(c *gin.Context) {
	if s.deps.Billing == nil {
		respondError(c, domain.E(domain.KindBillingConfig, "billing is not configured", nil))
		return
	}

	var body struct {
		Tier string `json:"tier"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, domain.E(domain.KindInvalidRequest, "invalid request body", err))
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	url, err := s.deps.Billing.CreateCheckout(ctx, c.GetString("userID"), body.Tier)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "url": url})
}

// handleBillingWebhook verifies and applies payment provider events. The raw
// body is needed for signature verification, so no JSON binding here.
func (s *Server) handleBillingWebhook(c *gin.Context) {
	if s.deps.Billing == nil {
		respondError(c, domain.E(domain.KindBillingConfig, "billing is not configured", nil))
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, domain.E(domain.KindInvalidRequest, "read webhook payload", err))
		return
	}

	if err := s.deps.Billing.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// requestContext bounds a handler by the configured request budget.
func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout())
}

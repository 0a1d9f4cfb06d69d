// Command clipscribe runs the media processing HTTP service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"clipscribe/internal/billing"
	"clipscribe/internal/chat"
	"clipscribe/internal/config"
	"clipscribe/internal/deliver"
	"clipscribe/internal/diagnostics"
	"clipscribe/internal/docexport"
	"clipscribe/internal/domain"
	"clipscribe/internal/media"
	"clipscribe/internal/orchestrator"
	"clipscribe/internal/server"
	"clipscribe/internal/store"
	"clipscribe/internal/transcribe"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load configuration", "error", err)
	}

	level := log.InfoLevel
	if cfg.Debug {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           level,
		Prefix:          "clipscribe",
	})

	report := diagnostics.NewChecker().Run(cfg)
	for _, item := range report.Items {
		switch item.Status {
		case domain.DiagnosticStatusFail:
			logger.Error(item.Message, "check", item.ID, "hint", item.Hint)
		case domain.DiagnosticStatusWarn:
			logger.Warn(item.Message, "check", item.ID, "hint", item.Hint)
		default:
			logger.Debug(item.Message, "check", item.ID)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stale extractors break downloads more often than anything else.
	go diagnostics.UpdateYTDLP(ctx, logger.With("component", "ytdlp"))

	var kb *store.Store
	if cfg.HasSupabase() {
		kb, err = store.New(cfg.SupabaseURL, cfg.SupabaseKey, logger.With("component", "store"))
		if err != nil {
			log.Fatal("connect knowledge base", "error", err)
		}
	}

	delivery := deliver.NewWebhook(cfg.DeliveryWebhookURL, logger.With("component", "deliver"))
	recorder := orchestrator.NewRecorder(0)

	orchDeps := orchestrator.Deps{
		Acquirer:  media.NewDownloader(cfg.YtDlpPath, cfg.DownloadTimeout(), logger.With("component", "ytdlp")),
		Processor: media.NewProcessor(cfg.FFmpegPath, cfg.DownloadTimeout(), logger.With("component", "ffmpeg")),
		Exporter:  docexport.NewExporter(),
		Recorder:  recorder,
		Logger:    logger.With("component", "orchestrator"),
	}
	if cfg.HasOpenAI() {
		orchDeps.Transcriber = transcribe.NewWhisperClient(
			cfg.OpenAIAPIKey, cfg.TranscribeTimeout(), logger.With("component", "whisper"))
	}
	if kb != nil {
		orchDeps.Persistence = kb
	}
	if delivery.Configured() {
		orchDeps.Delivery = delivery
	}

	srvDeps := server.Deps{
		Pipeline: orchestrator.New(cfg.DownloadsDir, orchDeps),
		Delivery: delivery,
		Recorder: recorder,
		Report:   report,
		Logger:   logger.With("component", "server"),
	}
	if kb != nil {
		srvDeps.Verifier = kb
		if cfg.HasOpenAI() {
			chatSvc, err := chat.NewService(cfg.OpenAIAPIKey, cfg.ChatModel, kb, logger.With("component", "chat"))
			if err != nil {
				log.Fatal("initialize chat service", "error", err)
			}
			srvDeps.Chat = chatSvc
		}
	}
	billingCfg := billing.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		SuccessURL:    cfg.CheckoutSuccessURL,
		CancelURL:     cfg.CheckoutCancelURL,
		PriceIDs: map[string]string{
			"pro":     cfg.PriceIDForTier("pro"),
			"premium": cfg.PriceIDForTier("premium"),
		},
	}
	if kb != nil {
		srvDeps.Billing = billing.NewService(billingCfg, kb, logger.With("component", "billing"))
	} else {
		srvDeps.Billing = billing.NewService(billingCfg, nil, logger.With("component", "billing"))
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(cfg, srvDeps).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

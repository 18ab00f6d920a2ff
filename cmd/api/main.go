package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hampstead-renovations/voice-agent/cmd/mainconfig"
	"github.com/hampstead-renovations/voice-agent/internal/api/router"
	appconfig "github.com/hampstead-renovations/voice-agent/internal/config"
	"github.com/hampstead-renovations/voice-agent/internal/conversation"
	"github.com/hampstead-renovations/voice-agent/internal/crm"
	"github.com/hampstead-renovations/voice-agent/internal/http/handlers"
	httpmiddleware "github.com/hampstead-renovations/voice-agent/internal/http/middleware"
	"github.com/hampstead-renovations/voice-agent/internal/leads"
	"github.com/hampstead-renovations/voice-agent/internal/notify"
	"github.com/hampstead-renovations/voice-agent/internal/observability/metrics"
	"github.com/hampstead-renovations/voice-agent/internal/speech"
	"github.com/hampstead-renovations/voice-agent/internal/storage"
	"github.com/hampstead-renovations/voice-agent/internal/whatsapp"
	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting voice-agent API server", "env", cfg.Env, "port", cfg.Port)

	ctx := context.Background()

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(redisOpts)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	// LLM: Bedrock primary, Gemini fallback when a key is configured.
	var llm conversation.LLMClient = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
	if cfg.GeminiAPIKey != "" {
		gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Warn("gemini fallback unavailable", "error", err)
		} else {
			llm = conversation.NewFallbackLLMClient(llm, gemini, logger)
		}
	}

	var leadsRepo leads.Repository = leads.NewInMemoryRepository()
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		leadsRepo = leads.NewPostgresRepository(pool)
	}

	// Operator notifications
	var emailSender notify.EmailSender
	switch cfg.EmailProvider {
	case "ses":
		emailSender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.CompanyName,
		}, logger)
	default:
		if sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sg != nil {
			emailSender = sg
		} else {
			emailSender = notify.NewStubEmailSender(logger)
		}
	}
	var smsSender notify.SMSSender = notify.NewStubSMSSender(logger)
	if cfg.SMSSenderAPIURL != "" {
		smsSender = notify.NewHTTPSMSSender(cfg.SMSSenderAPIURL, cfg.SMSSenderAPIKey, cfg.SMSFromNumber, logger)
	}
	notifier := notify.NewService(
		notify.NewSlackClient(cfg.SlackWebhookURL, logger),
		smsSender,
		emailSender,
		notify.Config{CompanyName: cfg.CompanyName, OpsPhone: cfg.OpsPhoneNumber, OpsEmail: cfg.OpsAlertEmail},
		logger,
	)

	cache := conversation.NewCache(rdb, cfg.ConversationTTL, logger)
	classifier := conversation.NewSentimentClassifier(logger)
	detector := conversation.NewTriggerDetector()
	engine := conversation.NewEngine(detector, llm, cfg.BedrockModelID, notifier, logger)
	flagStore := conversation.NewFlagStore(rdb, logger)
	responder := conversation.NewResponder(llm, cfg.BedrockModelID, logger)
	aggregator := leads.NewAggregator(leadsRepo, logger)

	convMetrics := metrics.NewConversationMetrics(prometheus.DefaultRegisterer)

	serviceOpts := []conversation.ServiceOption{
		conversation.WithMetrics(convMetrics),
		conversation.WithLeadNotifier(notifier),
	}
	if cfg.CRMAPIKey != "" {
		crmClient := crm.NewClient(cfg.CRMBaseURL, cfg.CRMAPIKey, logger)
		serviceOpts = append(serviceOpts, conversation.WithCRM(crm.NewSyncer(crmClient, leadsRepo, logger)))
	}
	if cfg.TranscriptBucket != "" {
		archive := storage.NewTranscriptArchive(s3.NewFromConfig(awsCfg), cfg.TranscriptBucket, logger)
		serviceOpts = append(serviceOpts, conversation.WithArchiver(archive))
	}
	service := conversation.NewService(cache, classifier, engine, flagStore, responder, aggregator, logger, serviceOpts...)

	var publisher *conversation.Publisher
	var worker *conversation.Worker

	waClient := whatsapp.NewClient(cfg.WhatsAppAPIURL, cfg.WhatsAppAPIKey, cfg.WhatsAppTimeout, logger)
	workerOpts := []conversation.WorkerOption{conversation.WithWorkerCount(cfg.WorkerCount)}
	if cfg.DeepgramAPIKey != "" {
		workerOpts = append(workerOpts, conversation.WithTranscriber(
			speech.NewTranscriber("", cfg.DeepgramAPIKey, waClient, logger)))
	}
	if cfg.ElevenLabsAPIKey != "" && cfg.AudioBucket != "" {
		audioStore := storage.NewAudioStore(s3.NewFromConfig(awsCfg), cfg.AudioBucket, cfg.AudioBucketRegion, logger)
		workerOpts = append(workerOpts, conversation.WithVoiceSynthesizer(
			speech.NewSynthesizer("", cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, audioStore, logger)))
	}

	if cfg.UseMemoryQueue {
		// Single-process mode: the API binary also runs the consumer.
		memQueue := conversation.NewMemoryQueue(256)
		publisher = conversation.NewPublisher(memQueue, logger)
		worker = conversation.NewWorker(service, memQueue, waClient, logger, workerOpts...)
	} else {
		sqsQueue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ConversationQueueURL)
		publisher = conversation.NewPublisher(sqsQueue, logger)
	}

	rateLimiter := httpmiddleware.NewRateLimiter(rdb, cfg.RateLimitWindow, cfg.RateLimitMax, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		Health:             handlers.NewHealthHandler(rdb),
		WhatsAppWebhook:    handlers.NewWhatsAppWebhookHandler(publisher, logger),
		VoiceWebhook:       handlers.NewVoiceWebhookHandler(cache, publisher, logger),
		AdminFlags:         handlers.NewAdminFlagsHandler(flagStore, logger),
		AdminConversations: handlers.NewAdminConversationsHandler(cache, logger),
		AdminLeads:         handlers.NewAdminLeadsHandler(leadsRepo, logger),
		RateLimiter:        rateLimiter,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	if worker != nil {
		worker.Start(workerCtx)
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	stopWorkers()
	if worker != nil {
		worker.Wait()
	}

	logger.Info("server stopped")
}

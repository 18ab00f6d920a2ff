package main

import (
	"context"
	"crypto/tls"
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
	"github.com/redis/go-redis/v9"

	"github.com/hampstead-renovations/voice-agent/cmd/mainconfig"
	appconfig "github.com/hampstead-renovations/voice-agent/internal/config"
	"github.com/hampstead-renovations/voice-agent/internal/conversation"
	"github.com/hampstead-renovations/voice-agent/internal/crm"
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
	logger.Info("starting voice-agent worker", "env", cfg.Env)

	ctx := context.Background()

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(redisOpts)

	var llm conversation.LLMClient = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsConfig))
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

	var emailSender notify.EmailSender
	switch cfg.EmailProvider {
	case "ses":
		emailSender = notify.NewSESSender(sesv2.NewFromConfig(awsConfig), notify.SESConfig{
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
	engine := conversation.NewEngine(conversation.NewTriggerDetector(), llm, cfg.BedrockModelID, notifier, logger)
	responder := conversation.NewResponder(llm, cfg.BedrockModelID, logger)

	serviceOpts := []conversation.ServiceOption{
		conversation.WithMetrics(metrics.NewConversationMetrics(prometheus.DefaultRegisterer)),
		conversation.WithLeadNotifier(notifier),
	}
	if cfg.CRMAPIKey != "" {
		crmClient := crm.NewClient(cfg.CRMBaseURL, cfg.CRMAPIKey, logger)
		serviceOpts = append(serviceOpts, conversation.WithCRM(crm.NewSyncer(crmClient, leadsRepo, logger)))
	}
	if cfg.TranscriptBucket != "" {
		archive := storage.NewTranscriptArchive(s3.NewFromConfig(awsConfig), cfg.TranscriptBucket, logger)
		serviceOpts = append(serviceOpts, conversation.WithArchiver(archive))
	}
	service := conversation.NewService(
		cache,
		conversation.NewSentimentClassifier(logger),
		engine,
		conversation.NewFlagStore(rdb, logger),
		responder,
		leads.NewAggregator(leadsRepo, logger),
		logger,
		serviceOpts...,
	)

	queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsConfig), cfg.ConversationQueueURL)
	waClient := whatsapp.NewClient(cfg.WhatsAppAPIURL, cfg.WhatsAppAPIKey, cfg.WhatsAppTimeout, logger)

	workerOpts := []conversation.WorkerOption{conversation.WithWorkerCount(cfg.WorkerCount)}
	if cfg.DeepgramAPIKey != "" {
		workerOpts = append(workerOpts, conversation.WithTranscriber(
			speech.NewTranscriber("", cfg.DeepgramAPIKey, waClient, logger)))
	}
	if cfg.ElevenLabsAPIKey != "" && cfg.AudioBucket != "" {
		audioStore := storage.NewAudioStore(s3.NewFromConfig(awsConfig), cfg.AudioBucket, cfg.AudioBucketRegion, logger)
		workerOpts = append(workerOpts, conversation.WithVoiceSynthesizer(
			speech.NewSynthesizer("", cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, audioStore, logger)))
	}

	worker := conversation.NewWorker(service, queue, waClient, logger, workerOpts...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	worker.Start(runCtx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("worker stopped")
	case <-doneCtx.Done():
		logger.Error("worker shutdown timed out", "error", doneCtx.Err())
	}
}

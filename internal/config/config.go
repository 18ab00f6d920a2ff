package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	PublicBaseURL  string
	LogLevel       string
	UseMemoryQueue bool
	WorkerCount    int
	DatabaseURL    string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	ConversationTTL  time.Duration
	RateLimitWindow  time.Duration
	RateLimitMax     int
	AdminJWTSecret   string
	CompanyName      string
	ServiceAreaCodes string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	ConversationQueueURL string
	BedrockModelID      string
	GeminiAPIKey        string
	GeminiModelID       string
	LLMTimeout          time.Duration

	AudioBucket       string
	AudioBucketRegion string
	TranscriptBucket  string

	WhatsAppAPIURL  string
	WhatsAppAPIKey  string
	WhatsAppTimeout time.Duration

	CRMBaseURL string
	CRMAPIKey  string

	DeepgramAPIKey     string
	ElevenLabsAPIKey   string
	ElevenLabsVoiceID  string

	SlackWebhookURL  string
	OpsPhoneNumber   string
	SMSSenderAPIURL  string
	SMSSenderAPIKey  string
	SMSFromNumber    string

	// SendGrid / SES email alerts
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	OpsAlertEmail     string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		ConversationTTL:  getEnvAsDuration("CONVERSATION_TTL", 24*time.Hour),
		RateLimitWindow:  getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitMax:     getEnvAsInt("RATE_LIMIT_MAX", 60),
		AdminJWTSecret:   getEnv("ADMIN_JWT_SECRET", ""),
		CompanyName:      getEnv("COMPANY_NAME", "Hampstead Renovations"),
		ServiceAreaCodes: getEnv("SERVICE_AREA_CODES", "NW3,NW6,NW8,N2,N6,NW11"),

		AWSRegion:            getEnv("AWS_REGION", "eu-west-2"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ConversationQueueURL: getEnv("CONVERSATION_QUEUE_URL", ""),
		BedrockModelID:       getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:        getEnv("GEMINI_MODEL_ID", "gemini-1.5-flash"),
		LLMTimeout:           getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),

		AudioBucket:       getEnv("AUDIO_BUCKET", ""),
		AudioBucketRegion: getEnv("AUDIO_BUCKET_REGION", ""),
		TranscriptBucket:  getEnv("TRANSCRIPT_BUCKET", ""),

		WhatsAppAPIURL:  getEnv("WHATSAPP_API_URL", "https://waba.360dialog.io"),
		WhatsAppAPIKey:  getEnv("WHATSAPP_API_KEY", ""),
		WhatsAppTimeout: getEnvAsDuration("WHATSAPP_TIMEOUT", 30*time.Second),

		CRMBaseURL: getEnv("CRM_BASE_URL", "https://api.hubapi.com"),
		CRMAPIKey:  getEnv("CRM_API_KEY", ""),

		DeepgramAPIKey:    getEnv("DEEPGRAM_API_KEY", ""),
		ElevenLabsAPIKey:  getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", ""),

		SlackWebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
		OpsPhoneNumber:  getEnv("OPS_PHONE_NUMBER", ""),
		SMSSenderAPIURL: getEnv("SMS_SENDER_API_URL", ""),
		SMSSenderAPIKey: getEnv("SMS_SENDER_API_KEY", ""),
		SMSFromNumber:   getEnv("SMS_FROM_NUMBER", ""),

		EmailProvider:     getEnv("EMAIL_PROVIDER", "sendgrid"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Hampstead Renovations"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		OpsAlertEmail:     getEnv("OPS_ALERT_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

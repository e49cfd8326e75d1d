package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	PublicBaseURL      string
	LogLevel           string
	UseMemoryQueue     bool
	WorkerCount        int
	DatabaseURL        string
	CORSAllowedOrigins []string
	AdminJWTSecret     string
	DashboardURL       string

	// Per-client request budgets for the public endpoints.
	WidgetRateLimit  float64
	WidgetRateBurst  int
	WebhookRateLimit float64
	WebhookRateBurst int

	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string
	ConversationQueueURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// PropertiesFile is an optional YAML file of property configs used when
	// Redis is unavailable or for local development.
	PropertiesFile string

	// Language model providers
	ProviderOrder      []string
	ProviderTimeout    time.Duration
	GeminiAPIKey       string
	GeminiModel        string
	OpenAIAPIKey       string
	OpenAIModel        string
	AnthropicAPIKey    string
	AnthropicModel     string
	BedrockModelID     string
	ExtractionProvider string

	// Embeddings / knowledge base
	EmbeddingOrder          []string
	EmbeddingDimensions     int
	GeminiEmbeddingModel    string
	OpenAIEmbeddingModel    string
	BedrockEmbeddingModelID string
	EmbeddingTimeout        time.Duration
	KBSearchTimeout         time.Duration
	KBMaxDistance           float64

	// Circuit breakers
	LLMBreakerThreshold      int
	LLMBreakerRecovery       time.Duration
	DeliveryBreakerThreshold int
	DeliveryBreakerRecovery  time.Duration

	IntentKeywordsPath string

	// WhatsApp via Twilio
	WhatsAppVerifyToken string
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioWhatsAppFrom  string

	// Email
	EmailProvider          string
	SendGridAPIKey         string
	SendGridFromEmail      string
	SendGridFromName       string
	SESFromEmail           string
	StaffNotificationEmail string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue:     getEnvAsBool("USE_MEMORY_QUEUE", true),
		WorkerCount:        getEnvAsInt("WORKER_COUNT", 4),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		DashboardURL:       getEnv("DASHBOARD_URL", ""),

		WidgetRateLimit:  getEnvAsFloat("WIDGET_RATE_LIMIT", 1),
		WidgetRateBurst:  getEnvAsInt("WIDGET_RATE_BURST", 10),
		WebhookRateLimit: getEnvAsFloat("WEBHOOK_RATE_LIMIT", 20),
		WebhookRateBurst: getEnvAsInt("WEBHOOK_RATE_BURST", 100),

		AWSRegion:            getEnv("AWS_REGION", "ap-southeast-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ConversationQueueURL: getEnv("CONVERSATION_QUEUE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		PropertiesFile: getEnv("PROPERTIES_FILE", ""),

		ProviderOrder:      getEnvAsList("PROVIDER_ORDER", []string{"gemini", "openai", "anthropic"}),
		ProviderTimeout:    getEnvAsDuration("PROVIDER_TIMEOUT", 15*time.Second),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey:    getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:     getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-20241022"),
		BedrockModelID:     getEnv("BEDROCK_MODEL_ID", ""),
		ExtractionProvider: getEnv("EXTRACTION_PROVIDER", ""),

		EmbeddingOrder:          getEnvAsList("EMBEDDING_ORDER", []string{"gemini", "openai"}),
		EmbeddingDimensions:     getEnvAsInt("EMBEDDING_DIMENSIONS", 768),
		GeminiEmbeddingModel:    getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
		OpenAIEmbeddingModel:    getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		BedrockEmbeddingModelID: getEnv("BEDROCK_EMBEDDING_MODEL_ID", ""),
		EmbeddingTimeout:        getEnvAsDuration("EMBEDDING_TIMEOUT", 3*time.Second),
		KBSearchTimeout:         getEnvAsDuration("KB_SEARCH_TIMEOUT", 5*time.Second),
		KBMaxDistance:           getEnvAsFloat("KB_MAX_DISTANCE", 0.3),

		LLMBreakerThreshold:      getEnvAsInt("LLM_BREAKER_THRESHOLD", 3),
		LLMBreakerRecovery:       getEnvAsDuration("LLM_BREAKER_RECOVERY", 30*time.Second),
		DeliveryBreakerThreshold: getEnvAsInt("DELIVERY_BREAKER_THRESHOLD", 5),
		DeliveryBreakerRecovery:  getEnvAsDuration("DELIVERY_BREAKER_RECOVERY", 60*time.Second),

		IntentKeywordsPath: getEnv("INTENT_KEYWORDS_PATH", ""),

		WhatsAppVerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioWhatsAppFrom:  getEnv("TWILIO_WHATSAPP_FROM", ""),

		EmailProvider:          strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:         getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:      getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:       getEnv("SENDGRID_FROM_NAME", "Concierge"),
		SESFromEmail:           getEnv("SES_FROM_EMAIL", ""),
		StaffNotificationEmail: getEnv("STAFF_NOTIFICATION_EMAIL", ""),
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

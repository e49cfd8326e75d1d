package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("PROVIDER_ORDER", "")
	t.Setenv("LLM_BREAKER_THRESHOLD", "")
	t.Setenv("DELIVERY_BREAKER_RECOVERY", "")
	t.Setenv("WIDGET_RATE_LIMIT", "")
	t.Setenv("WIDGET_RATE_BURST", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if len(cfg.ProviderOrder) != 3 || cfg.ProviderOrder[0] != "gemini" {
		t.Fatalf("unexpected default provider order %v", cfg.ProviderOrder)
	}
	if cfg.LLMBreakerThreshold != 3 || cfg.LLMBreakerRecovery != 30*time.Second {
		t.Fatalf("unexpected llm breaker defaults %d/%s", cfg.LLMBreakerThreshold, cfg.LLMBreakerRecovery)
	}
	if cfg.DeliveryBreakerThreshold != 5 || cfg.DeliveryBreakerRecovery != time.Minute {
		t.Fatalf("unexpected delivery breaker defaults %d/%s", cfg.DeliveryBreakerThreshold, cfg.DeliveryBreakerRecovery)
	}
	if cfg.KBMaxDistance != 0.3 {
		t.Fatalf("expected default max distance 0.3, got %v", cfg.KBMaxDistance)
	}
	if cfg.EmbeddingDimensions != 768 {
		t.Fatalf("expected 768 dimensions, got %d", cfg.EmbeddingDimensions)
	}
	if cfg.WidgetRateLimit != 1 || cfg.WidgetRateBurst != 10 {
		t.Fatalf("unexpected widget rate defaults %v/%d", cfg.WidgetRateLimit, cfg.WidgetRateBurst)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("PROVIDER_ORDER", " OpenAI, ,anthropic ")
	t.Setenv("PROVIDER_TIMEOUT", "4s")
	t.Setenv("KB_MAX_DISTANCE", "0.25")
	t.Setenv("USE_MEMORY_QUEUE", "false")
	t.Setenv("EMAIL_PROVIDER", " SES ")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if len(cfg.ProviderOrder) != 2 || cfg.ProviderOrder[0] != "openai" || cfg.ProviderOrder[1] != "anthropic" {
		t.Fatalf("unexpected provider order %v", cfg.ProviderOrder)
	}
	if cfg.ProviderTimeout != 4*time.Second {
		t.Fatalf("expected provider timeout 4s, got %s", cfg.ProviderTimeout)
	}
	if cfg.KBMaxDistance != 0.25 {
		t.Fatalf("expected max distance override, got %v", cfg.KBMaxDistance)
	}
	if cfg.UseMemoryQueue {
		t.Fatalf("expected memory queue disabled")
	}
	if cfg.EmailProvider != "ses" {
		t.Fatalf("expected email provider ses, got %q", cfg.EmailProvider)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("WORKER_COUNT", "lots")
	t.Setenv("PROVIDER_TIMEOUT", "soon")
	t.Setenv("REDIS_TLS", "maybe")
	cfg := Load()
	if cfg.WorkerCount != 4 {
		t.Fatalf("expected default worker count, got %d", cfg.WorkerCount)
	}
	if cfg.ProviderTimeout != 15*time.Second {
		t.Fatalf("expected default timeout, got %s", cfg.ProviderTimeout)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected redis tls false")
	}
}

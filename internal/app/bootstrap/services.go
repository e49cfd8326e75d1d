package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/hotel-concierge-ai/internal/breaker"
	"github.com/wolfman30/hotel-concierge-ai/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/hotel-concierge-ai/internal/config"
	"github.com/wolfman30/hotel-concierge-ai/internal/conversation"
	"github.com/wolfman30/hotel-concierge-ai/internal/events"
	"github.com/wolfman30/hotel-concierge-ai/internal/http/handlers"
	"github.com/wolfman30/hotel-concierge-ai/internal/knowledge"
	"github.com/wolfman30/hotel-concierge-ai/internal/leads"
	"github.com/wolfman30/hotel-concierge-ai/internal/llm"
	"github.com/wolfman30/hotel-concierge-ai/internal/messaging"
	"github.com/wolfman30/hotel-concierge-ai/internal/notify"
	"github.com/wolfman30/hotel-concierge-ai/internal/observability/metrics"
	"github.com/wolfman30/hotel-concierge-ai/internal/property"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

// Delivery breaker names. The LLM and embedding providers register under
// their own provider names.
const (
	BreakerTwilio   = "twilio"
	BreakerSendGrid = "sendgrid"
	BreakerSES      = "ses"
)

// Metrics groups the Prometheus collectors shared by the binaries.
type Metrics struct {
	Messaging    *metrics.MessagingMetrics
	Conversation *metrics.ConversationMetrics
	Provider     *metrics.ProviderMetrics
}

// NewMetrics registers every collector on reg.
func NewMetrics(reg prometheus.Registerer) Metrics {
	return Metrics{
		Messaging:    metrics.NewMessagingMetrics(reg),
		Conversation: metrics.NewConversationMetrics(reg),
		Provider:     metrics.NewProviderMetrics(reg),
	}
}

// NewBreakers builds the shared registry: LLM thresholds by default,
// delivery thresholds for the outbound senders.
func NewBreakers(cfg *appconfig.Config, observer breaker.StateObserver, logger *logging.Logger) *breaker.Registry {
	opts := []breaker.Option{breaker.WithLogger(logger)}
	if observer != nil {
		opts = append(opts, breaker.WithObserver(observer))
	}
	reg := breaker.NewRegistry(breaker.Settings{
		FailureThreshold: cfg.LLMBreakerThreshold,
		RecoveryTimeout:  cfg.LLMBreakerRecovery,
	}, opts...)
	delivery := breaker.Settings{
		FailureThreshold: cfg.DeliveryBreakerThreshold,
		RecoveryTimeout:  cfg.DeliveryBreakerRecovery,
	}
	for _, name := range []string{BreakerTwilio, BreakerSendGrid, BreakerSES} {
		reg.Configure(name, delivery)
	}
	return reg
}

// Knowledge is the retrieval half of the service graph. cmd/ingest builds
// only this part.
type Knowledge struct {
	Embedder  *knowledge.FallbackEmbedder
	Index     knowledge.Index
	Ingestor  *knowledge.Ingestor
	Retriever *knowledge.Retriever
}

// BuildKnowledge wires embeddings over pgvector when pool is set, else over
// the in-memory index.
func BuildKnowledge(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, pool *pgxpool.Pool, breakers *breaker.Registry, recorder knowledge.StageRecorder, logger *logging.Logger) Knowledge {
	providers := BuildEmbeddingProviders(ctx, cfg, awsCfg, logger)
	embedder := knowledge.NewFallbackEmbedder(providers, breakers, cfg.EmbeddingDimensions, cfg.EmbeddingTimeout, logger)

	var index knowledge.Index
	if pool != nil {
		index = knowledge.NewPostgresIndex(pool)
	} else {
		logger.Warn("DATABASE_URL not set; knowledge base is in-memory")
		index = knowledge.NewMemoryIndex()
	}

	return Knowledge{
		Embedder: embedder,
		Index:    index,
		Ingestor: knowledge.NewIngestor(embedder, index, logger),
		Retriever: knowledge.NewRetriever(embedder, index, knowledge.RetrieverConfig{
			MaxDistance: cfg.KBMaxDistance,
			Timeout:     cfg.KBSearchTimeout,
			Logger:      logger,
			Recorder:    recorder,
		}),
	}
}

// Services is the conversation graph shared by the API and the worker.
type Services struct {
	AWS        *aws.Config
	Redis      *redis.Client
	Pool       *pgxpool.Pool
	Breakers   *breaker.Registry
	Metrics    Metrics
	Properties property.Chain
	Store      conversation.Store
	Leads      leads.Repository
	Processed  whatsapp.Deduper
	Knowledge  Knowledge

	Orchestrator *conversation.Orchestrator
	Queue        conversation.Queue
	Publisher    *conversation.Publisher
	Dispatcher   *messaging.Dispatcher
}

// BuildServices wires every backend named by cfg. Optional backends fall
// back to in-memory implementations; the caller must Close the result.
func BuildServices(ctx context.Context, cfg *appconfig.Config, reg prometheus.Registerer, logger *logging.Logger) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Services{Metrics: NewMetrics(reg)}
	s.Breakers = NewBreakers(cfg, s.Metrics.Provider, logger)

	if NeedsAWS(cfg) {
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.AWS = &awsCfg
	}

	s.Redis = BuildRedisClient(ctx, cfg, logger, true)
	props, err := BuildPropertyLookup(cfg, s.Redis, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Properties = props

	pool, err := BuildPostgresPool(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Pool = pool
	if pool != nil {
		s.Store = conversation.NewPostgresStore(pool)
		s.Leads = leads.NewPostgresRepository(pool)
		s.Processed = events.NewProcessedStore(pool)
	} else {
		logger.Warn("DATABASE_URL not set; conversations and leads are in-memory")
		s.Store = conversation.NewMemoryStore()
		s.Leads = leads.NewInMemoryRepository()
		s.Processed = events.NewMemoryProcessedStore(0)
	}

	s.Knowledge = BuildKnowledge(ctx, cfg, s.AWS, pool, s.Breakers, s.Metrics.Provider, logger)

	chatProviders, err := BuildChatProviders(ctx, cfg, s.AWS, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	chat := llm.NewChain("chat", s.Breakers, chatProviders,
		llm.WithTimeout(cfg.ProviderTimeout),
		llm.WithLogger(logger),
		llm.WithRecorder(s.Metrics.Provider),
	)
	extraction := llm.NewChain("extraction", s.Breakers, SelectExtractionProviders(chatProviders, cfg.ExtractionProvider),
		llm.WithTimeout(cfg.ProviderTimeout),
		llm.WithLogger(logger),
		llm.WithRecorder(s.Metrics.Provider),
	)
	logger.Info("language model chains ready", "chat", chat.Providers(), "extraction", extraction.Providers())

	rules, err := conversation.LoadIntentRules(cfg.IntentKeywordsPath)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("bootstrap: load intent rules: %w", err)
	}

	email, emailProvider := BuildEmailSender(cfg, s.AWS, s.Breakers, logger)
	logger.Info("email sender ready", "provider", emailProvider)

	s.Orchestrator = conversation.NewOrchestrator(conversation.Deps{
		Store:      s.Store,
		Properties: s.Properties,
		Knowledge:  s.Knowledge.Retriever,
		Generator:  chat,
		Extractor:  leads.NewExtractor(extraction, logger),
		Leads:      s.Leads,
	},
		conversation.WithIntentRules(rules),
		conversation.WithHandoffNotifier(notify.NewService(email, cfg.StaffNotificationEmail, cfg.DashboardURL, logger)),
		conversation.WithRecorder(s.Metrics.Conversation),
		conversation.WithLogger(logger),
	)

	queue, err := BuildQueue(cfg, s.AWS)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Queue = queue
	s.Publisher = conversation.NewPublisher(queue, logger)

	waSender := BuildWhatsAppSender(cfg, s.Breakers, logger)
	if waSender == nil {
		logger.Warn("twilio not configured; whatsapp replies will not be delivered")
	}
	s.Dispatcher = messaging.NewDispatcher(s.Properties, waSender, email, logger).WithRecorder(s.Metrics.Messaging)
	return s, nil
}

// NewWorker builds a queue consumer over the service graph.
func (s *Services) NewWorker(cfg *appconfig.Config, logger *logging.Logger) *conversation.Worker {
	return conversation.NewWorker(s.Orchestrator, s.Queue, s.Dispatcher, logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
	)
}

// Ping returns the health checks for the configured backends.
func (s *Services) Ping() map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{}
	if s.Pool != nil {
		checks["postgres"] = s.Pool
	}
	if s.Redis != nil {
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return s.Redis.Ping(ctx).Err()
		})
	}
	return checks
}

// Close releases connections. Safe on a partially built graph.
func (s *Services) Close() {
	if s == nil {
		return
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
}

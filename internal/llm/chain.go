package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TemplateProvider is reported when every provider failed and the static
// reply was served.
const TemplateProvider = "fallback_template"

// FallbackText is served when no provider produced a reply. It carries no
// technical detail on purpose.
const FallbackText = "Thank you for your message! Our team will get back to you shortly. " +
	"For urgent matters, please call the front desk directly.\n\n" +
	"Terima kasih atas mesej anda! Pasukan kami akan menghubungi anda secepat mungkin. " +
	"Untuk perkara segera, sila hubungi kaunter hadapan kami."

var errEmptyOutput = errors.New("llm: provider returned empty output")

// Breaker is the subset of the circuit breaker registry the chain needs.
type Breaker interface {
	CanExecute(service string) bool
	RecordSuccess(service string)
	RecordFailure(service string)
}

// Recorder receives per-call observations.
type Recorder interface {
	ObserveCall(provider, outcome string, seconds float64)
	ObserveTemplate(chain string)
}

// Result is what Generate hands back to callers.
type Result struct {
	Text     string
	Usage    TokenUsage
	Provider string
}

// FromTemplate reports whether the static fallback was served.
func (r Result) FromTemplate() bool {
	return r.Provider == TemplateProvider
}

// Chain tries providers in order until one returns non-empty text.
type Chain struct {
	name      string
	providers []Provider
	breakers  Breaker
	timeout   time.Duration
	logger    *logging.Logger
	recorder  Recorder
	tracer    trace.Tracer
	fallback  string
}

// ChainOption customises a Chain.
type ChainOption func(*Chain)

// WithTimeout sets the per-provider call timeout.
func WithTimeout(d time.Duration) ChainOption {
	return func(c *Chain) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(logger *logging.Logger) ChainOption {
	return func(c *Chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithRecorder(recorder Recorder) ChainOption {
	return func(c *Chain) {
		c.recorder = recorder
	}
}

// WithFallbackText replaces the static reply served when all providers fail.
func WithFallbackText(text string) ChainOption {
	return func(c *Chain) {
		if strings.TrimSpace(text) != "" {
			c.fallback = text
		}
	}
}

// NewChain builds a chain named for logging (e.g. "chat", "extraction").
func NewChain(name string, breakers Breaker, providers []Provider, opts ...ChainOption) *Chain {
	if breakers == nil {
		panic("llm: breaker registry cannot be nil")
	}
	c := &Chain{
		name:      name,
		providers: providers,
		breakers:  breakers,
		timeout:   15 * time.Second,
		logger:    logging.Default(),
		tracer:    otel.Tracer("concierge.internal.llm"),
		fallback:  FallbackText,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Component("llm").With("chain", name)
	return c
}

// Providers returns the provider names in call order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Generate never fails. The first provider to return non-empty text wins;
// when all are skipped or fail, the static template is returned.
func (c *Chain) Generate(ctx context.Context, req Request) Result {
	ctx, span := c.tracer.Start(ctx, "llm.generate", trace.WithAttributes(attribute.String("llm.chain", c.name)))
	defer span.End()

	for _, provider := range c.providers {
		name := provider.Name()
		if !c.breakers.CanExecute(name) {
			c.logger.Info("provider skipped, circuit open", "provider", name)
			c.observe(name, "skipped", 0)
			continue
		}

		start := time.Now()
		resp, err := c.call(ctx, provider, req)
		elapsed := time.Since(start)
		if err == nil && strings.TrimSpace(resp.Text) == "" {
			err = errEmptyOutput
		}
		if err != nil {
			c.breakers.RecordFailure(name)
			outcome := "error"
			if errors.Is(err, errEmptyOutput) {
				outcome = "empty"
			}
			c.observe(name, outcome, elapsed.Seconds())
			span.RecordError(err)
			c.logger.Warn("provider failed, trying next", "provider", name, "error", err, "elapsed_ms", elapsed.Milliseconds())
			continue
		}

		c.breakers.RecordSuccess(name)
		c.observe(name, "success", elapsed.Seconds())
		span.SetAttributes(attribute.String("llm.provider", name))
		return Result{
			Text:     strings.TrimSpace(resp.Text),
			Usage:    resp.Usage,
			Provider: name,
		}
	}

	c.logger.Error("all providers failed, serving fallback template", "providers", len(c.providers))
	if c.recorder != nil {
		c.recorder.ObserveTemplate(c.name)
	}
	span.SetAttributes(attribute.String("llm.provider", TemplateProvider))
	return Result{Text: c.fallback, Provider: TemplateProvider}
}

// call bounds a single provider by the chain timeout. Caller cancellation
// is not propagated; the timeout is the ceiling.
func (c *Chain) call(ctx context.Context, provider Provider, req Request) (resp Response, err error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("provider panicked", "provider", provider.Name(), "panic", r)
			err = errors.New("llm: provider panicked")
		}
	}()
	return provider.Complete(callCtx, req)
}

func (c *Chain) observe(provider, outcome string, seconds float64) {
	if c.recorder == nil {
		return
	}
	c.recorder.ObserveCall(provider, outcome, seconds)
}

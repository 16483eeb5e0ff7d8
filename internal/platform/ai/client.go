// Package ai wraps a text generator with the fallbacks the treatment
// workflow relies on: every call returns a document, degraded when the
// generator is missing, slow or failing, and never an error.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/patientmgr/internal/config"
	"github.com/ehr/patientmgr/internal/platform/telemetry"
	"github.com/ehr/patientmgr/pkg/document"
)

const DefaultTimeout = 30 * time.Second

// Generator turns a prompt into text. Implementations should honour ctx.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// operation holds the per-call wording of fallback documents.
type operation struct {
	name        string
	unavailable string
	timedOut    string
	empty       string
	failed      string
}

var (
	symptomAnalysis = operation{
		name:        "symptom_analysis",
		unavailable: "AI analysis unavailable - no API key configured",
		timedOut:    "AI analysis timed out after %s. Please try again later.",
		empty:       "AI analysis could not be generated due to an error with the AI service.",
		failed:      "AI analysis could not be generated due to an error.",
	}
	treatmentPlan = operation{
		name:        "treatment_plan",
		unavailable: "AI treatment plan unavailable - no API key configured",
		timedOut:    "Treatment plan generation timed out after %s. Please try again later.",
		empty:       "AI treatment plan could not be generated due to an error with the AI service.",
		failed:      "Treatment plan could not be generated due to an error.",
	}
)

type Client struct {
	gen     Generator
	timeout time.Duration
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New returns a Client over gen. A nil gen means no credential is
// configured and every call yields an "unavailable" document.
func New(gen Generator, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		gen:     gen,
		timeout: DefaultTimeout,
		logger:  logger.With().Str("component", "ai").Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if gen == nil {
		c.logger.Warn().Msg("no API key configured, AI documents will be unavailable")
	}
	return c
}

// NewFromConfig builds a Client backed by Gemini when cfg carries an API
// key, and an unavailable Client otherwise.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics *telemetry.Metrics) (*Client, error) {
	opts := []Option{WithTimeout(cfg.AITimeout), WithMetrics(metrics)}
	if !cfg.AIEnabled() {
		return New(nil, logger, opts...), nil
	}
	gen, err := NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("model", cfg.GeminiModel).Msg("AI service initialized")
	return New(gen, logger, opts...), nil
}

// Enabled reports whether a generator is configured.
func (c *Client) Enabled() bool {
	return c.gen != nil
}

// AnalyzeSymptoms asks for possible conditions, test categories and
// lifestyle recommendations for the described symptoms.
func (c *Client) AnalyzeSymptoms(ctx context.Context, symptoms string) document.Document {
	return c.generate(ctx, symptomAnalysis, buildSymptomPrompt(symptoms))
}

// GeneratePlan asks for a general treatment approach for condition, given
// the patient's history.
func (c *Client) GeneratePlan(ctx context.Context, condition, history string) document.Document {
	return c.generate(ctx, treatmentPlan, buildPlanPrompt(condition, history))
}

func (c *Client) generate(ctx context.Context, op operation, prompt string) document.Document {
	log := c.logger.With().Str("operation", op.name).Logger()

	if c.gen == nil {
		log.Warn().Msg("generation requested but no API key configured")
		c.metrics.Generation(op.name, string(document.ReasonUnavailable), 0)
		return document.Degraded{
			Reason:    document.ReasonUnavailable,
			Content:   op.unavailable,
			Timestamp: c.now(),
		}
	}

	start := time.Now()
	text, err := runBounded(ctx, c.timeout, func(ctx context.Context) (string, error) {
		return c.gen.Generate(ctx, prompt)
	})
	waited := time.Since(start)

	switch {
	case errors.Is(err, ErrTimeout):
		log.Error().Dur("timeout", c.timeout).Msg("generation timed out")
		c.metrics.Generation(op.name, string(document.ReasonTimeout), waited)
		return document.Degraded{
			Reason:    document.ReasonTimeout,
			Content:   fmt.Sprintf(op.timedOut, formatTimeout(c.timeout)),
			Timestamp: c.now(),
		}

	case err != nil:
		log.Error().Err(err).Msg("generation failed")
		c.metrics.Generation(op.name, string(document.ReasonRemoteError), waited)
		return document.Degraded{
			Reason:    document.ReasonRemoteError,
			Error:     err.Error(),
			Content:   op.failed,
			Timestamp: c.now(),
		}

	case strings.TrimSpace(text) == "":
		log.Error().Msg("generator returned an empty response")
		c.metrics.Generation(op.name, string(document.ReasonRemoteError), waited)
		return document.Degraded{
			Reason:    document.ReasonRemoteError,
			Error:     "empty response",
			Content:   op.empty,
			Timestamp: c.now(),
		}
	}

	log.Info().Dur("elapsed", waited).Msg("document generated")
	c.metrics.Generation(op.name, "generated", waited)
	return document.Generated{Content: text, Timestamp: c.now()}
}

package ai

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/patientmgr/internal/config"
	"github.com/ehr/patientmgr/pkg/document"
)

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func TestClient_Unavailable(t *testing.T) {
	c := New(nil, zerolog.Nop())
	if c.Enabled() {
		t.Fatal("expected client without generator to be disabled")
	}

	doc := c.AnalyzeSymptoms(context.Background(), "fever")
	d, ok := doc.(document.Degraded)
	if !ok {
		t.Fatalf("expected degraded document, got %T", doc)
	}
	if d.Reason != document.ReasonUnavailable {
		t.Errorf("expected unavailable, got %s", d.Reason)
	}
	if d.Content != "AI analysis unavailable - no API key configured" {
		t.Errorf("unexpected content %q", d.Content)
	}
	if d.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}

	plan := c.GeneratePlan(context.Background(), "flu", "none")
	if plan.Text() != "AI treatment plan unavailable - no API key configured" {
		t.Errorf("unexpected plan content %q", plan.Text())
	}
}

func TestClient_Generated(t *testing.T) {
	var gotPrompt string
	gen := generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		gotPrompt = prompt
		return "1. Common cold\n2. Influenza", nil
	})
	c := New(gen, zerolog.Nop())

	doc := c.AnalyzeSymptoms(context.Background(), "runny nose")
	g, ok := doc.(document.Generated)
	if !ok {
		t.Fatalf("expected generated document, got %T", doc)
	}
	if g.Content != "1. Common cold\n2. Influenza" {
		t.Errorf("unexpected content %q", g.Content)
	}
	if !strings.Contains(gotPrompt, "Symptoms: runny nose") {
		t.Errorf("expected symptoms in prompt, got %q", gotPrompt)
	}
}

func TestClient_PlanPrompt(t *testing.T) {
	var gotPrompt string
	gen := generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		gotPrompt = prompt
		return "Rest", nil
	})
	c := New(gen, zerolog.Nop())

	c.GeneratePlan(context.Background(), "Sprain", "Athlete, no allergies")
	if !strings.Contains(gotPrompt, "Condition: Sprain") || !strings.Contains(gotPrompt, "Patient History: Athlete, no allergies") {
		t.Errorf("unexpected prompt %q", gotPrompt)
	}
}

func TestClient_Timeout(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	c := New(gen, zerolog.Nop(), WithTimeout(20*time.Millisecond))

	start := time.Now()
	doc := c.GeneratePlan(context.Background(), "flu", "")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected bounded wait, took %s", elapsed)
	}

	d, ok := doc.(document.Degraded)
	if !ok {
		t.Fatalf("expected degraded document, got %T", doc)
	}
	if d.Reason != document.ReasonTimeout {
		t.Errorf("expected timeout, got %s", d.Reason)
	}
	if d.Error != "" {
		t.Errorf("timeout documents carry no error, got %q", d.Error)
	}
	if !strings.HasPrefix(d.Content, "Treatment plan generation timed out after") {
		t.Errorf("unexpected content %q", d.Content)
	}
}

func TestClient_TimeoutAbandonsStuckGenerator(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	var finished atomic.Bool
	gen := generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		<-release
		finished.Store(true)
		return "too late", nil
	})
	c := New(gen, zerolog.Nop(), WithTimeout(10*time.Millisecond))

	doc := c.AnalyzeSymptoms(context.Background(), "cough")
	if doc.(document.Degraded).Reason != document.ReasonTimeout {
		t.Fatalf("expected timeout, got %#v", doc)
	}
	if finished.Load() {
		t.Error("expected caller to return before the generator finished")
	}
}

func TestClient_CallerDeadlineNotReportedAsTimeout(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	c := New(gen, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	d, ok := c.AnalyzeSymptoms(ctx, "fever").(document.Degraded)
	if !ok {
		t.Fatal("expected degraded document")
	}
	if d.Reason != document.ReasonRemoteError {
		t.Errorf("expected remote error, got %s", d.Reason)
	}
	if strings.Contains(d.Content, "timed out after") {
		t.Errorf("expected no configured-timeout message, got %q", d.Content)
	}
}

func TestClient_DefaultTimeoutMessage(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", nil
	})
	c := New(gen, zerolog.Nop())
	if c.timeout != DefaultTimeout {
		t.Fatalf("expected default timeout %s, got %s", DefaultTimeout, c.timeout)
	}
	want := "AI analysis timed out after 30 seconds. Please try again later."
	if got := strings.Replace(symptomAnalysis.timedOut, "%s", formatTimeout(c.timeout), 1); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestClient_RemoteError(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("quota exceeded")
	})
	c := New(gen, zerolog.Nop())

	doc := c.AnalyzeSymptoms(context.Background(), "rash")
	d, ok := doc.(document.Degraded)
	if !ok {
		t.Fatalf("expected degraded document, got %T", doc)
	}
	if d.Reason != document.ReasonRemoteError {
		t.Errorf("expected remote error, got %s", d.Reason)
	}
	if d.Error != "quota exceeded" {
		t.Errorf("expected error message to be kept, got %q", d.Error)
	}
	if d.Content != "AI analysis could not be generated due to an error." {
		t.Errorf("unexpected content %q", d.Content)
	}
}

func TestClient_EmptyResponse(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "  \n", nil
	})
	c := New(gen, zerolog.Nop())

	doc := c.GeneratePlan(context.Background(), "flu", "")
	if !document.IsDegraded(doc) {
		t.Fatalf("expected degraded document, got %T", doc)
	}
	if doc.Text() != "AI treatment plan could not be generated due to an error with the AI service." {
		t.Errorf("unexpected content %q", doc.Text())
	}
}

func TestClient_GeneratorPanic(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		panic("boom")
	})
	c := New(gen, zerolog.Nop())

	doc := c.AnalyzeSymptoms(context.Background(), "dizziness")
	d, ok := doc.(document.Degraded)
	if !ok || d.Reason != document.ReasonRemoteError {
		t.Fatalf("expected remote error document, got %#v", doc)
	}
	if !strings.Contains(d.Error, "boom") {
		t.Errorf("expected panic value in error, got %q", d.Error)
	}
}

func TestNewFromConfig_NoKey(t *testing.T) {
	cfg := &config.Config{AITimeout: 5 * time.Second}
	c, err := NewFromConfig(context.Background(), cfg, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Enabled() {
		t.Error("expected disabled client without key")
	}
	if c.timeout != 5*time.Second {
		t.Errorf("expected configured timeout, got %s", c.timeout)
	}
}

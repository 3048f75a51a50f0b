package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vocatutor/vocatutor/internal/config"
	"github.com/vocatutor/vocatutor/internal/llmgateway/provider"
)

const sampleYAML = `
llm:
  backend: anyllm
  anyllm_provider: openai
  model: gpt-4o-mini
  rate_per_min: 1000
  max_inflight: 5

lesson:
  words_per_lesson: 8
  timeout_s: 300

srs:
  default_ef: 2.5
  min_ef: 1.3
  mastered_threshold: 5
  choice_to_input_threshold: 3

validator:
  fuzzy_threshold: 3

notify:
  inactive_hours: 6
  window_start: "07:00"
  window_end: "23:00"
  sweep_period_s: 900

default_tz: Europe/Berlin
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Backend != "anyllm" {
		t.Errorf("llm.backend: got %q, want anyllm", cfg.LLM.Backend)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm.model: got %q", cfg.LLM.Model)
	}
	if cfg.Lesson.WordsPerLesson != 8 {
		t.Errorf("lesson.words_per_lesson: got %d, want 8", cfg.Lesson.WordsPerLesson)
	}
	if cfg.DefaultTZ != "Europe/Berlin" {
		t.Errorf("default_tz: got %q", cfg.DefaultTZ)
	}
}

func TestLoadFromReader_DefaultsApplyOverEmptyDocument(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Lesson.WordsPerLesson != 30 {
		t.Errorf("expected default words_per_lesson 30, got %d", cfg.Lesson.WordsPerLesson)
	}
	if cfg.Srs.DefaultEF != 2.5 {
		t.Errorf("expected default ef 2.5, got %.2f", cfg.Srs.DefaultEF)
	}
}

func TestLoadFromReader_YAMLOverridesDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(`lesson:
  words_per_lesson: 20
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Lesson.WordsPerLesson != 20 {
		t.Errorf("expected override to 20, got %d", cfg.Lesson.WordsPerLesson)
	}
}

func TestValidate_MissingBotTokenAndAPIKey(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("llm:\n  model: gpt-4o-mini\n"))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	err = config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for missing secrets")
	}
	if !strings.Contains(err.Error(), "bot token") {
		t.Errorf("error should mention bot token, got: %v", err)
	}
	if !strings.Contains(err.Error(), "api key") {
		t.Errorf("error should mention api key, got: %v", err)
	}
}

func TestValidate_MockBackendSkipsAPIKeyRequirement(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("llm:\n  backend: mock\n  model: test\n"))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	cfg.Discord.BotToken = "test-token"
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("unexpected error for mock backend: %v", err)
	}
}

func TestValidate_InvalidBackend(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("llm:\n  backend: carrier-pigeon\n"))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	cfg.Discord.BotToken = "t"
	cfg.LLM.APIKey = "k"
	err = config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "llm.backend") {
		t.Fatalf("expected llm.backend error, got: %v", err)
	}
}

func TestValidate_InvalidNotifyWindow(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("notify:\n  window_start: \"25:99\"\n"))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	cfg.Discord.BotToken = "t"
	cfg.LLM.APIKey = "k"
	err = config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "window_start") {
		t.Fatalf("expected window_start error, got: %v", err)
	}
}

func TestValidate_InvalidTimezone(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("default_tz: Not/A_Zone\n"))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	cfg.Discord.BotToken = "t"
	cfg.LLM.APIKey = "k"
	err = config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "default_tz") {
		t.Fatalf("expected default_tz error, got: %v", err)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_UnknownBackend(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.Create(config.LLMConfig{Backend: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_RegisteredBackend(t *testing.T) {
	reg := config.NewRegistry()
	want := &stubProvider{}
	reg.Register("stub", func(c config.LLMConfig) (provider.Provider, error) {
		return want, nil
	})
	got, err := reg.Create(config.LLMConfig{Backend: "stub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.Register("broken", func(c config.LLMConfig) (provider.Provider, error) {
		return nil, wantErr
	})
	_, err := reg.Create(config.LLMConfig{Backend: "broken"})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}

type stubProvider struct{}

func (s *stubProvider) Complete(_ context.Context, _ provider.CompletionRequest) (*provider.CompletionResponse, error) {
	return &provider.CompletionResponse{}, nil
}

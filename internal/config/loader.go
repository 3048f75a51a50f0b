package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidLLMBackends lists the backend names [Validate] accepts for
// LLMConfig.Backend.
var ValidLLMBackends = []string{"anyllm", "openai", "mock"}

// Load reads the YAML configuration file at path, applies defaults and
// environment-sourced secrets, and returns a validated [Config]. It is a
// convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over [defaults] and returns
// the result without applying environment overrides or validation. Useful
// in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return &cfg, nil
}

// applyEnv overlays secrets that must never live in the YAML file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
		cfg.Discord.BotToken = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("VOCATUTOR_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Discord.BotToken == "" {
		errs = append(errs, errors.New("discord bot token is required (set DISCORD_BOT_TOKEN)"))
	}

	if !slices.Contains(ValidLLMBackends, cfg.LLM.Backend) {
		errs = append(errs, fmt.Errorf("llm.backend %q is invalid; valid values: %v", cfg.LLM.Backend, ValidLLMBackends))
	}
	if cfg.LLM.Backend != "mock" && cfg.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm api key is required when llm.backend is not mock (set LLM_API_KEY)"))
	}
	if cfg.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}

	if cfg.Lesson.WordsPerLesson <= 0 {
		errs = append(errs, fmt.Errorf("lesson.words_per_lesson must be positive, got %d", cfg.Lesson.WordsPerLesson))
	}

	if cfg.Srs.MinEF <= 0 || cfg.Srs.MinEF > cfg.Srs.DefaultEF {
		errs = append(errs, fmt.Errorf("srs.min_ef (%.2f) must be positive and <= srs.default_ef (%.2f)", cfg.Srs.MinEF, cfg.Srs.DefaultEF))
	}
	if cfg.Srs.MasteredThreshold <= 0 {
		errs = append(errs, fmt.Errorf("srs.mastered_threshold must be positive, got %d", cfg.Srs.MasteredThreshold))
	}
	if cfg.Srs.ChoiceToInputThreshold <= 0 {
		errs = append(errs, fmt.Errorf("srs.choice_to_input_threshold must be positive, got %d", cfg.Srs.ChoiceToInputThreshold))
	}

	if cfg.Validator.FuzzyThreshold < 0 || cfg.Validator.FuzzyThreshold > 10 {
		errs = append(errs, fmt.Errorf("validator.fuzzy_threshold %d is out of range [0, 10]", cfg.Validator.FuzzyThreshold))
	}

	if _, err := parseClock(cfg.Notify.WindowStart); err != nil {
		errs = append(errs, fmt.Errorf("notify.window_start: %w", err))
	}
	if _, err := parseClock(cfg.Notify.WindowEnd); err != nil {
		errs = append(errs, fmt.Errorf("notify.window_end: %w", err))
	}

	if cfg.DefaultTZ != "" {
		if _, err := loadLocation(cfg.DefaultTZ); err != nil {
			errs = append(errs, fmt.Errorf("default_tz %q: %w", cfg.DefaultTZ, err))
		}
	}

	return errors.Join(errs...)
}

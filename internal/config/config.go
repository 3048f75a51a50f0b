// Package config defines the flat application configuration tree and its
// YAML loader (spec §6, §9 C10), the same way the teacher keeps a single
// Config struct decoded from a YAML file with env-overridden secrets.
package config

import "time"

// Config is the full application configuration. It is loaded from a YAML
// file on disk by [Load]; secrets (bot token, LLM API key, Postgres DSN)
// are always taken from the environment, never from the file, so the file
// can be checked into version control.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discord   DiscordConfig   `yaml:"discord"`
	LLM       LLMConfig       `yaml:"llm"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Lesson    LessonConfig    `yaml:"lesson"`
	Srs       SRSConfig       `yaml:"srs"`
	Validator ValidatorConfig `yaml:"validator"`
	Notify    NotifyConfig    `yaml:"notify"`
	Observe   ObserveConfig   `yaml:"observe"`
	DefaultTZ string          `yaml:"default_tz"`
}

// ServerConfig tunes the process-level concerns main.go sets up before
// wiring the application: log verbosity and the health HTTP listener
// address.
type ServerConfig struct {
	LogLevel   string `yaml:"log_level"`
	ListenAddr string `yaml:"listen_addr"`
}

// DiscordConfig configures the bot's chat transport. BotToken is never read
// from the file — it must come from the DISCORD_BOT_TOKEN environment
// variable, the same secret-handling split the teacher applies to its
// Discord token.
type DiscordConfig struct {
	BotToken string `yaml:"-"`
}

// LLMConfig selects and tunes the backend behind internal/llmgateway.
type LLMConfig struct {
	// Backend is one of "anyllm", "openai", "mock".
	Backend string `yaml:"backend"`
	// AnyLLMProvider is the underlying provider name passed to anyllm.New
	// when Backend is "anyllm" ("openai", "anthropic", "gemini", "ollama",
	// "deepseek", "mistral", "groq").
	AnyLLMProvider string `yaml:"anyllm_provider"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	// APIKey is never read from the file — it comes from LLM_API_KEY.
	APIKey                 string `yaml:"-"`
	RatePerMinute          int    `yaml:"rate_per_min"`
	MaxInflight            int    `yaml:"max_inflight"`
	CircuitFailThreshold   int    `yaml:"circuit_fail_threshold"`
	CircuitRecoverySeconds int    `yaml:"circuit_recovery_s"`
	CallTimeoutSeconds     int    `yaml:"call_timeout_s"`
	Retries                int    `yaml:"retries"`
}

// PostgresConfig configures the vocab store backend.
type PostgresConfig struct {
	// DSN is never read from the file — it comes from VOCATUTOR_POSTGRES_DSN.
	// Empty means use the in-memory store instead (development/tests).
	DSN string `yaml:"-"`
}

// LessonConfig tunes lesson assembly and pacing.
type LessonConfig struct {
	WordsPerLesson int `yaml:"words_per_lesson"`
	TimeoutSeconds int `yaml:"timeout_s"`
}

// SRSConfig tunes the spaced-repetition scheduler and mastery thresholds.
type SRSConfig struct {
	DefaultEF              float64 `yaml:"default_ef"`
	MinEF                  float64 `yaml:"min_ef"`
	MasteredThreshold      int     `yaml:"mastered_threshold"`
	ChoiceToInputThreshold int     `yaml:"choice_to_input_threshold"`
}

// ValidatorConfig tunes the answer-validation pipeline.
type ValidatorConfig struct {
	FuzzyThreshold int `yaml:"fuzzy_threshold"`
}

// NotifyConfig tunes the inactivity-reminder sweep.
type NotifyConfig struct {
	InactiveHours  int    `yaml:"inactive_hours"`
	WindowStart    string `yaml:"window_start"`
	WindowEnd      string `yaml:"window_end"`
	SweepPeriodSec int    `yaml:"sweep_period_s"`
}

// ObserveConfig tunes metrics export.
type ObserveConfig struct {
	PrometheusAddr string `yaml:"prometheus_addr"`
}

// LessonTimeout returns Lesson.TimeoutSeconds as a [time.Duration].
func (c Config) LessonTimeout() time.Duration {
	return time.Duration(c.Lesson.TimeoutSeconds) * time.Second
}

// CallTimeout returns LLM.CallTimeoutSeconds as a [time.Duration].
func (c Config) CallTimeout() time.Duration {
	return time.Duration(c.LLM.CallTimeoutSeconds) * time.Second
}

// CircuitRecovery returns LLM.CircuitRecoverySeconds as a [time.Duration].
func (c Config) CircuitRecovery() time.Duration {
	return time.Duration(c.LLM.CircuitRecoverySeconds) * time.Second
}

// SweepPeriod returns Notify.SweepPeriodSec as a [time.Duration].
func (c Config) SweepPeriod() time.Duration {
	return time.Duration(c.Notify.SweepPeriodSec) * time.Second
}

// InactiveAfter returns Notify.InactiveHours as a [time.Duration].
func (c Config) InactiveAfter() time.Duration {
	return time.Duration(c.Notify.InactiveHours) * time.Hour
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			LogLevel:   "info",
			ListenAddr: ":8080",
		},
		LLM: LLMConfig{
			Backend:                "anyllm",
			AnyLLMProvider:         "openai",
			Model:                  "gpt-4o-mini",
			RatePerMinute:          2500,
			MaxInflight:            10,
			CircuitFailThreshold:   5,
			CircuitRecoverySeconds: 60,
			CallTimeoutSeconds:     30,
			Retries:                3,
		},
		Lesson: LessonConfig{
			WordsPerLesson: 30,
			TimeoutSeconds: 7200,
		},
		Srs: SRSConfig{
			DefaultEF:              2.5,
			MinEF:                  1.3,
			MasteredThreshold:      30,
			ChoiceToInputThreshold: 3,
		},
		Validator: ValidatorConfig{
			FuzzyThreshold: 2,
		},
		Notify: NotifyConfig{
			InactiveHours:  6,
			WindowStart:    "07:00",
			WindowEnd:      "23:00",
			SweepPeriodSec: 900,
		},
		DefaultTZ: "UTC",
	}
}

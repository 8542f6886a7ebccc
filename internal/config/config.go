package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"askia-quiz-service/internal/app"
	"askia-quiz-service/internal/domain"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" validate:"omitempty,numeric"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Content struct {
		Dir      string `yaml:"dir"`
		BaseURL  string `yaml:"baseURL" validate:"omitempty,url"`
		CacheTTL string `yaml:"cacheTTL"`
	} `yaml:"content"`
	Quiz struct {
		TimePerQuestion  string            `yaml:"timePerQuestion"`
		DailyFocusTokens *int              `yaml:"dailyFocusTokens" validate:"omitempty,gte=0"`
		FeedbackDelay    map[string]string `yaml:"feedbackDelay"`
	} `yaml:"quiz"`
	League struct {
		SeedSample bool `yaml:"seedSample"`
	} `yaml:"league"`
}

var validate = validator.New()

// Load reads YAML config from path, applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks field constraints and that every feedback delay names a question type.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for name := range c.Quiz.FeedbackDelay {
		if _, ok := domain.ParseQuestionKind(name); !ok {
			return fmt.Errorf("invalid config: unknown question type %q in quiz.feedbackDelay", name)
		}
	}
	return nil
}

// Settings converts the quiz section, keeping defaults for anything left unset.
func (c Config) Settings() app.Settings {
	settings := app.DefaultSettings()
	settings.TimePerQuestion = TTLDuration(c.Quiz.TimePerQuestion, settings.TimePerQuestion)
	if c.Quiz.DailyFocusTokens != nil {
		settings.DailyFocusTokens = *c.Quiz.DailyFocusTokens
	}
	for name, raw := range c.Quiz.FeedbackDelay {
		kind, ok := domain.ParseQuestionKind(name)
		if !ok {
			continue
		}
		settings.FeedbackDelay[kind] = TTLDuration(raw, settings.FeedbackDelay[kind])
	}
	return settings
}

// Port resolves the listen port: flag, then config, then 8080.
func (c Config) Port(flag string) string {
	if flag != "" {
		return flag
	}
	if _, err := strconv.Atoi(c.Server.Port); err == nil {
		return c.Server.Port
	}
	return "8080"
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

const (
	defaultPath = "config.yaml"
	pathEnv     = "POLLCHAT_CONFIG"
)

type Config struct {
	Log     Log     `yaml:"log"`
	HTTP    HTTP    `yaml:"http"`
	OpenAI  OpenAI  `yaml:"openai"`
	Session Session `yaml:"session"`
}

type Log struct {
	// Console log level
	Level string `yaml:"level" example:"debug" validate:"oneof=debug info warn error"`
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

type HTTP struct {
	// Address the widget server listens on
	Listen string `yaml:"listen" example:":8080" validate:"required"`
}

type OpenAI struct {
	// Client implementation: openai or langchain
	Provider string `yaml:"provider" example:"openai" validate:"oneof=openai langchain"`
	// OpenAI base url
	BaseURL string `yaml:"base_url" example:"https://api.openai.com/v1" validate:"required,url"`
	// OpenAI token, may be left empty and supplied from the widget
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX"`
	// OpenAI model
	Model string `yaml:"model" example:"gpt-3.5-turbo" validate:"required"`
	// Sampling temperature
	Temperature float32 `yaml:"temperature" example:"1" validate:"min=0,max=2"`
	// Number of choices requested per tick
	Choices int `yaml:"choices" example:"1" validate:"min=1,max=8"`
	// Max completion tokens per choice
	MaxTokens int `yaml:"max_tokens" example:"500" validate:"min=1"`
}

type Session struct {
	// Poll interval
	Interval time.Duration `yaml:"interval" example:"2s" validate:"min=100ms"`
	// Timeout of a single completion call
	RequestTimeout time.Duration `yaml:"request_timeout" example:"30s" validate:"min=1s"`
	// Attentiveness score written into the preamble, 0 sleeps at once, 10 never sleeps
	Attentiveness int `yaml:"attentiveness" example:"3" validate:"min=0,max=10"`
	// What a submit while idle appends: preserve keeps the typed text, marker replaces it
	ResumePolicy string `yaml:"resume_policy" example:"preserve" validate:"oneof=preserve marker"`
	// Control token detection: exact or substring
	TokenMatch string `yaml:"token_match" example:"exact" validate:"oneof=exact substring"`
}

func Load() (*Config, error) {
	path := os.Getenv(pathEnv)
	if path == "" {
		path = defaultPath
	}

	return LoadFile(path)
}

func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	result := Default()

	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

// Default returns the configuration used for every key missing from the file.
func Default() Config {
	return Config{
		Log: Log{
			Level: "debug",
		},
		HTTP: HTTP{
			Listen: ":8080",
		},
		OpenAI: OpenAI{
			Provider:    "openai",
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-3.5-turbo",
			Temperature: 1,
			Choices:     1,
			MaxTokens:   500,
		},
		Session: Session{
			Interval:       2 * time.Second,
			RequestTimeout: 30 * time.Second,
			Attentiveness:  3,
			ResumePolicy:   "preserve",
			TokenMatch:     "exact",
		},
	}
}

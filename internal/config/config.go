package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile   = "config.yaml"
	DefaultStoragePath  = ".relaypan/relaypan.db"
	DefaultUserAgent    = "relaypan/1.0"
	DefaultInterval     = 5 * time.Minute
	DefaultFetchLimit   = 10
	DefaultMaxParallel  = 4
	DefaultMessagesPerS = 1.0
	DefaultMaxAttempts  = 5
	DefaultMediaMaxMB   = 50
	DefaultMediaTimeout = 2 * time.Minute
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Reddit   RedditConfig   `yaml:"reddit"`
	Poll     PollConfig     `yaml:"poll"`
	Telegram TelegramConfig `yaml:"telegram"`
	Message  MessageConfig  `yaml:"message"`
	Media    MediaConfig    `yaml:"media"`
	Storage  StorageConfig  `yaml:"storage"`
}

type RedditConfig struct {
	UserAgent       string      `yaml:"user_agent"`
	ClientIDEnv     string      `yaml:"client_id_env"`
	ClientSecretEnv string      `yaml:"client_secret_env"`
	Subreddits      []Subreddit `yaml:"subreddits"`

	// Resolved from env vars at load time.
	ClientID     string `yaml:"-"`
	ClientSecret string `yaml:"-"`
}

// Subreddit is one polled feed. Limit and Every fall back to the global
// poll settings when zero.
type Subreddit struct {
	Name  string   `yaml:"name"`
	Limit int      `yaml:"limit"`
	Every Duration `yaml:"every"`
}

type PollConfig struct {
	Interval    Duration `yaml:"interval"`
	MaxParallel int      `yaml:"max_parallel"`
}

type TelegramConfig struct {
	BotTokenEnv string  `yaml:"bot_token_env"`
	ChatID      int64   `yaml:"chat_id"`
	MessagesPer float64 `yaml:"messages_per_second"`
	MaxAttempts int     `yaml:"max_attempts"`

	// Resolved from env var at load time.
	BotToken string `yaml:"-"`
}

type MessageConfig struct {
	CategoryEmoji bool   `yaml:"category_emoji"`
	CTALink       string `yaml:"cta_link"`
	SendTextPosts *bool  `yaml:"send_text_posts"`
	SkipNSFW      bool   `yaml:"skip_nsfw"`
}

type MediaConfig struct {
	MaxSizeMB int      `yaml:"max_size_mb"`
	Timeout   Duration `yaml:"timeout"`
	TempDir   string   `yaml:"temp_dir"`
}

type StorageConfig struct {
	Path       string `yaml:"path"`
	MaxEntries int    `yaml:"max_entries"`
}

// SendTextPostsEnabled reports whether text-only submissions are delivered.
// Defaults to true when unset.
func (m MessageConfig) SendTextPostsEnabled() bool {
	if m.SendTextPosts == nil {
		return true
	}
	return *m.SendTextPosts
}

// Load reads config.yaml from dir, applies defaults, resolves env vars, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Reddit.UserAgent == "" {
		cfg.Reddit.UserAgent = DefaultUserAgent
	}
	if cfg.Poll.Interval.Duration == 0 {
		cfg.Poll.Interval.Duration = DefaultInterval
	}
	if cfg.Poll.MaxParallel == 0 {
		cfg.Poll.MaxParallel = DefaultMaxParallel
	}
	if cfg.Telegram.MessagesPer == 0 {
		cfg.Telegram.MessagesPer = DefaultMessagesPerS
	}
	if cfg.Telegram.MaxAttempts == 0 {
		cfg.Telegram.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Media.MaxSizeMB == 0 {
		cfg.Media.MaxSizeMB = DefaultMediaMaxMB
	}
	if cfg.Media.Timeout.Duration == 0 {
		cfg.Media.Timeout.Duration = DefaultMediaTimeout
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}

	for i := range cfg.Reddit.Subreddits {
		sub := &cfg.Reddit.Subreddits[i]
		if sub.Limit == 0 {
			sub.Limit = DefaultFetchLimit
		}
		if sub.Every.Duration == 0 {
			sub.Every.Duration = cfg.Poll.Interval.Duration
		}
	}
}

func resolveEnv(cfg *Config) {
	if cfg.Reddit.ClientIDEnv != "" {
		cfg.Reddit.ClientID = os.Getenv(cfg.Reddit.ClientIDEnv)
	}
	if cfg.Reddit.ClientSecretEnv != "" {
		cfg.Reddit.ClientSecret = os.Getenv(cfg.Reddit.ClientSecretEnv)
	}
	if cfg.Telegram.BotTokenEnv != "" {
		cfg.Telegram.BotToken = os.Getenv(cfg.Telegram.BotTokenEnv)
	}
}

func validate(cfg *Config) error {
	if len(cfg.Reddit.Subreddits) == 0 {
		return errors.New("reddit.subreddits: at least one subreddit must be configured")
	}
	for _, sub := range cfg.Reddit.Subreddits {
		if strings.TrimSpace(sub.Name) == "" {
			return errors.New("reddit.subreddits: subreddit name must not be empty")
		}
		if sub.Limit < 0 {
			return fmt.Errorf("reddit.subreddits: %s: limit must not be negative", sub.Name)
		}
	}

	if (cfg.Reddit.ClientID == "") != (cfg.Reddit.ClientSecret == "") {
		return errors.New("reddit: client_id and client_secret must be set together")
	}

	if cfg.Telegram.BotTokenEnv == "" {
		return errors.New("telegram.bot_token_env: env var name is required")
	}
	if cfg.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id: chat id is required")
	}
	if cfg.Telegram.MessagesPer < 0 {
		return errors.New("telegram.messages_per_second: must not be negative")
	}

	if cfg.Poll.MaxParallel < 1 {
		return errors.New("poll.max_parallel: must be at least 1")
	}
	if cfg.Media.MaxSizeMB < 1 {
		return errors.New("media.max_size_mb: must be at least 1")
	}

	return nil
}

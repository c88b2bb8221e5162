package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cafe_notifier/internal/domain"
)

// ErrMissingToken is returned by Validate when no bot credential is configured.
var ErrMissingToken = errors.New("discord token is not set (DISCORD_TOKEN or TOKEN)")

type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Wiki     WikiConfig     `yaml:"wiki"`
	Cafe     CafeConfig     `yaml:"cafe"`
	Boards   []BoardConfig  `yaml:"boards"`
	State    StateConfig    `yaml:"state"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Sync     SyncConfig     `yaml:"sync"`
	LogLevel string         `yaml:"log_level"`
}

type DiscordConfig struct {
	Token         string `yaml:"token"`
	GuildID       string `yaml:"guild_id"`
	ChannelID     string `yaml:"channel_id"`
	SyncCommands  bool   `yaml:"sync_commands"`
	CommandGuild  string `yaml:"command_guild_id"`
	ReadyNotice   string `yaml:"ready_notice"`
	TitleMaxRunes int    `yaml:"title_max_runes"`
}

type WikiConfig struct {
	BaseURL    string        `yaml:"base_url"`
	MaxExtract int           `yaml:"max_extract"`
	Timeout    time.Duration `yaml:"timeout"`
	UserAgent  string        `yaml:"user_agent"`
}

type CafeConfig struct {
	APIBaseURL string        `yaml:"api_base_url"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
	// Minimum spacing between two upstream requests.
	RequestSpacing time.Duration `yaml:"request_spacing"`
}

type BoardConfig struct {
	Key         string `yaml:"key"`
	DisplayName string `yaml:"display_name"`
	Strategy    string `yaml:"strategy"`
	ClubID      string `yaml:"club_id"`
	MenuID      string `yaml:"menu_id"`
	PageURL     string `yaml:"page_url"`
	Referer     string `yaml:"referer"`
	LinkBase    string `yaml:"link_base"`
}

type StateConfig struct {
	Backend string `yaml:"backend"` // "file", "sqlite" or "postgres"
	Path    string `yaml:"path"`
	DSN     string `yaml:"dsn"`
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type SyncConfig struct {
	EveryMinutes int           `yaml:"every_minutes"`
	RunOnStart   bool          `yaml:"run_on_start"`
	CycleTimeout time.Duration `yaml:"cycle_timeout"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse expands environment references in data and decodes it.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validateBoards(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings needed to connect to Discord.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return ErrMissingToken
	}
	if c.Discord.ChannelID == "" {
		return errors.New("discord channel_id is not set")
	}
	return nil
}

func (c *Config) validateBoards() error {
	seen := make(map[string]bool, len(c.Boards))
	for i, b := range c.Boards {
		if b.Key == "" {
			return fmt.Errorf("board %d: key is required", i)
		}
		if seen[b.Key] {
			return fmt.Errorf("board %q: duplicate key", b.Key)
		}
		seen[b.Key] = true

		switch b.Strategy {
		case domain.StrategyAPI:
			if b.ClubID == "" || b.MenuID == "" {
				return fmt.Errorf("board %q: club_id and menu_id are required for the api strategy", b.Key)
			}
		case domain.StrategyScrape:
			if b.PageURL == "" {
				return fmt.Errorf("board %q: page_url is required for the scrape strategy", b.Key)
			}
		default:
			return fmt.Errorf("board %q: unknown strategy %q", b.Key, b.Strategy)
		}
		if b.LinkBase == "" {
			return fmt.Errorf("board %q: link_base is required", b.Key)
		}
	}
	return nil
}

// DomainBoards converts the configured boards, keeping their order.
func (c *Config) DomainBoards() []domain.BoardConfig {
	boards := make([]domain.BoardConfig, 0, len(c.Boards))
	for _, b := range c.Boards {
		boards = append(boards, domain.BoardConfig{
			Key:         b.Key,
			DisplayName: b.DisplayName,
			Strategy:    b.Strategy,
			ClubID:      b.ClubID,
			MenuID:      b.MenuID,
			PageURL:     b.PageURL,
			Referer:     b.Referer,
			LinkBase:    b.LinkBase,
		})
	}
	return boards
}

func (c *Config) setDefaults() {
	if c.Discord.Token == "" {
		c.Discord.Token = os.Getenv("DISCORD_TOKEN")
	}
	if c.Discord.Token == "" {
		c.Discord.Token = os.Getenv("TOKEN")
	}
	if c.Discord.TitleMaxRunes == 0 {
		c.Discord.TitleMaxRunes = 100
	}
	if c.Wiki.BaseURL == "" {
		c.Wiki.BaseURL = "https://en.wikipedia.org/api/rest_v1"
	}
	if c.Wiki.MaxExtract == 0 {
		c.Wiki.MaxExtract = 500
	}
	if c.Wiki.Timeout == 0 {
		c.Wiki.Timeout = 10 * time.Second
	}
	if c.Wiki.UserAgent == "" {
		c.Wiki.UserAgent = "cafe-notifier/1.0 (discord bot)"
	}
	if c.Cafe.APIBaseURL == "" {
		c.Cafe.APIBaseURL = "https://apis.naver.com/cafe-web/cafe2/ArticleListV2dot1.json"
	}
	if c.Cafe.UserAgent == "" {
		c.Cafe.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	}
	if c.Cafe.Timeout == 0 {
		c.Cafe.Timeout = 20 * time.Second
	}
	if c.Cafe.RequestSpacing == 0 {
		c.Cafe.RequestSpacing = 2 * time.Second
	}
	for i := range c.Boards {
		if c.Boards[i].Strategy == "" {
			c.Boards[i].Strategy = domain.StrategyAPI
		}
		if c.Boards[i].DisplayName == "" {
			c.Boards[i].DisplayName = c.Boards[i].Key
		}
	}
	if c.State.Backend == "" {
		c.State.Backend = "file"
	}
	if c.State.Path == "" {
		c.State.Path = "last_posts.json"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "cafe_notifier"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "announcements"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "cafe_announcements"
	}
	if c.Sync.EveryMinutes == 0 {
		c.Sync.EveryMinutes = 5
	}
	if c.Sync.CycleTimeout == 0 {
		c.Sync.CycleTimeout = 4 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the main config struct
type Config struct {
	Environment string         `yaml:"environment" env:"ENVIRONMENT" env-default:"production" env-description:"Environment name"`
	Secret      string         `yaml:"secret" env:"SECRET" env-default:"" env-description:"Secret key for the admin API surface"`
	Verbose     string         `yaml:"verbose" env:"VERBOSE" env-default:"info" env-description:"Verbose mode for debug output"`
	Database    DatabaseConfig `yaml:"database"`
	Discord     DiscordConfig  `yaml:"discord"`
	Crawler     CrawlerConfig  `yaml:"crawler"`
	Repost      RepostConfig   `yaml:"repost"`
	Viewer      ViewerConfig   `yaml:"viewer"`
	API         APIConfig      `yaml:"api"`
	Proxy       ProxyConfig    `yaml:"proxy"`
	Influx      InfluxConfig   `yaml:"influx"`
}

// Discord config
type DiscordConfig struct {
	Token            string            `yaml:"token" env:"DISCORD_TOKEN" env-required:"true" env-description:"Discord bot token"`
	SourceGuildID    string            `yaml:"source_guild_id" env:"DISCORD_SOURCE_GUILD_ID" env-required:"true" env-description:"Guild to archive"`
	SourceGuildName  string            `yaml:"source_guild_name" env:"DISCORD_SOURCE_GUILD_NAME" env-default:"" env-description:"Guild name shown in repost attribution"`
	MirrorGuildID    string            `yaml:"mirror_guild_id" env:"DISCORD_MIRROR_GUILD_ID" env-default:"" env-description:"Guild that receives mirrored GM posts"`
	CentralChannelID string            `yaml:"central_channel_id" env:"DISCORD_CENTRAL_CHANNEL_ID" env-default:"" env-description:"Central feed channel in the mirror guild"`
	GameMasters      []string          `yaml:"game_masters" env:"DISCORD_GAME_MASTERS" env-default:"" env-description:"Seed list of GM member ids"`
	GameMasterNames  map[string]string `yaml:"game_master_names" env:"DISCORD_GAME_MASTER_NAMES" env-default:"" env-description:"Display-name overrides per GM id"`
	PrivateChannels  []string          `yaml:"private_channels" env:"DISCORD_PRIVATE_CHANNELS" env-default:"" env-description:"Channels archived but never reposted"`
	QueueSize        int               `yaml:"queue_size" env:"DISCORD_QUEUE_SIZE" env-default:"256" env-description:"Capture work queue capacity"`
	Workers          int               `yaml:"workers" env:"DISCORD_WORKERS" env-default:"4" env-description:"Capture worker pool size"`
}

// Historical crawler config
type CrawlerConfig struct {
	BackfillHorizon time.Duration `yaml:"backfill_horizon" env:"CRAWLER_BACKFILL_HORIZON" env-default:"240h" env-description:"How far back to walk channel history"`
	RequestPause    time.Duration `yaml:"request_pause" env:"CRAWLER_REQUEST_PAUSE" env-default:"1500ms" env-description:"Minimum spacing between platform API calls"`
	PageSize        int           `yaml:"page_size" env:"CRAWLER_PAGE_SIZE" env-default:"100" env-description:"Messages per history page (platform max 100)"`
	CycleInterval   time.Duration `yaml:"cycle_interval" env:"CRAWLER_CYCLE_INTERVAL" env-default:"1h" env-description:"Sleep between full crawl passes"`
	RecheckCooldown time.Duration `yaml:"recheck_cooldown" env:"CRAWLER_RECHECK_COOLDOWN" env-default:"6h" env-description:"Cooldown before re-trying an inaccessible channel"`
	MaxRetries      int           `yaml:"max_retries" env:"CRAWLER_MAX_RETRIES" env-default:"5" env-description:"Bounded retry attempts per platform call"`
}

// Repost dispatcher config
type RepostConfig struct {
	Delay        time.Duration `yaml:"delay" env:"REPOST_DELAY" env-default:"5m" env-description:"Cooldown before a queued GM post becomes due"`
	PollInterval time.Duration `yaml:"poll_interval" env:"REPOST_POLL_INTERVAL" env-default:"30s" env-description:"Dispatcher poll interval"`
	SendPause    time.Duration `yaml:"send_pause" env:"REPOST_SEND_PAUSE" env-default:"2100ms" env-description:"Pause between webhook sends"`
	MaxAttempts  int           `yaml:"max_attempts" env:"REPOST_MAX_ATTEMPTS" env-default:"5" env-description:"Delivery attempts before an entry turns terminal"`
	RetryBase    time.Duration `yaml:"retry_base" env:"REPOST_RETRY_BASE" env-default:"500ms" env-description:"Base delay for in-cycle delivery retries"`
	BatchSize    int           `yaml:"batch_size" env:"REPOST_BATCH_SIZE" env-default:"10" env-description:"Due entries fetched per poll cycle"`
}

// Viewer notification config
type ViewerConfig struct {
	URL     string        `yaml:"url" env:"VIEWER_URL" env-default:"" env-description:"Base URL of the viewer service, empty disables notifications"`
	Timeout time.Duration `yaml:"timeout" env:"VIEWER_TIMEOUT" env-default:"5s" env-description:"Notification request timeout"`
}

// API config
type APIConfig struct {
	Host         string        `yaml:"host" env:"API_HOST" env-default:"localhost" env-description:"API host address to bind to"`
	Port         int           `yaml:"port" env:"API_PORT" env-default:"8080" env-description:"API port to bind to"`
	Timeout      time.Duration `yaml:"timeout" env:"API_TIMEOUT" env-default:"30s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"API_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"API_WRITE_TIMEOUT" env-default:"10s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"API_IDLE_TIMEOUT" env-default:"15s"`
}

// SQLite, PostgreSQL or MySQL config
type DatabaseConfig struct {
	// Driver is the database driver to use. Supported drivers are "sqlite3", "postgres" and "mysql".
	Driver         string `yaml:"driver" env:"DATABASE_DRIVER" env-default:"sqlite3" env-description:"Database driver to use"`
	Connection     string `yaml:"connection" env:"DATABASE_CONNECTION" env-default:":memory:" env-description:"Database connection string"`
	MaxConnections int    `yaml:"max_connections" env:"DATABASE_MAX_CONNECTIONS" env-default:"10" env-description:"Connection pool size"`
}

// Optional SOCKS5 proxy for outbound HTTP
type ProxyConfig struct {
	Address  string `yaml:"address" env:"PROXY_ADDRESS" env-default:""`
	Port     int    `yaml:"port" env:"PROXY_PORT" env-default:"0"`
	Username string `yaml:"username" env:"PROXY_USERNAME" env-default:""`
	Password string `yaml:"password" env:"PROXY_PASSWORD" env-default:""`
}

// InfluxDB metrics config, empty URL disables metrics
type InfluxConfig struct {
	URL    string `yaml:"url" env:"INFLUX_URL" env-default:""`
	Token  string `yaml:"token" env:"INFLUX_TOKEN" env-default:""`
	Org    string `yaml:"org" env:"INFLUX_ORG" env-default:""`
	Bucket string `yaml:"bucket" env:"INFLUX_BUCKET" env-default:""`
}

// ConfigError - config loading error
type ConfigError struct {
	Message string
}

// Error - implement the error interface
func (e *ConfigError) Error() string {
	return e.Message
}

// MustLoadConfig reads the config file pointed to by CONFIG_PATH (config.yml by
// default) and overlays environment variables. When no file exists the
// environment alone must satisfy the required fields.
func MustLoadConfig() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yml"
	}

	var config Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cleanenv.ReadEnv(&config); err != nil {
			return nil, &ConfigError{
				Message: fmt.Sprintf("Cannot read config from environment: %s", err),
			}
		}

		return &config, nil
	}

	if err := cleanenv.ReadConfig(configPath, &config); err != nil {
		return nil, &ConfigError{
			Message: fmt.Sprintf("Cannot read config file: %s", err),
		}
	}

	return &config, nil
}

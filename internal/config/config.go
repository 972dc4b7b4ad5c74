package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App   AppConfig   `mapstructure:"app"`
	Store StoreConfig `mapstructure:"store"`
	Toast ToastConfig `mapstructure:"toast"`
	Chat  ChatConfig  `mapstructure:"chat"`
	Forum ForumConfig `mapstructure:"forum"`
	Cache CacheConfig `mapstructure:"cache"`
	Jobs  JobsConfig  `mapstructure:"jobs"`
	WS    WSConfig    `mapstructure:"ws"`
	Log   LogConfig   `mapstructure:"log"`

	DB           DBConfig `mapstructure:"-"`
	RedisAddr    string   `mapstructure:"-"`
	RabbitMQ     string   `mapstructure:"-"`
	AccessSecret string   `mapstructure:"-"`
}

type AppConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type StoreConfig struct {
	// Driver is "redis" or "memory".
	Driver    string `mapstructure:"driver"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type ToastConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type ChatConfig struct {
	MaxLength int `mapstructure:"max_length"`
	PageSize  int `mapstructure:"page_size"`
}

type ForumConfig struct {
	PageMaxLimit int `mapstructure:"page_max_limit"`
}

type CacheConfig struct {
	AdminTTL time.Duration `mapstructure:"admin_ttl"`
}

type JobsConfig struct {
	OrphanAuditInterval time.Duration `mapstructure:"orphan_audit_interval"`
	ChatRetention       time.Duration `mapstructure:"chat_retention"`
	ChatPruneInterval   time.Duration `mapstructure:"chat_prune_interval"`
}

type WSConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

type LogConfig struct {
	OutputPaths []string `mapstructure:"output_paths"`
}

type DBConfig struct {
	Username string
	Password string
	Host     string
	Port     string
	DBName   string
	SSLMode  string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.Username, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

func setDefaults() {
	viper.SetDefault("app.port", ":8080")
	viper.SetDefault("app.allowed_origins", []string{"*"})
	viper.SetDefault("store.driver", "redis")
	viper.SetDefault("store.key_prefix", "community:")
	viper.SetDefault("toast.ttl", 5*time.Second)
	viper.SetDefault("chat.max_length", 500)
	viper.SetDefault("chat.page_size", 50)
	viper.SetDefault("forum.page_max_limit", 20)
	viper.SetDefault("cache.admin_ttl", 2*time.Minute)
	viper.SetDefault("jobs.orphan_audit_interval", 24*time.Hour)
	viper.SetDefault("jobs.chat_retention", 30*24*time.Hour)
	viper.SetDefault("jobs.chat_prune_interval", 12*time.Hour)
	viper.SetDefault("ws.ping_interval", 30*time.Second)
	viper.SetDefault("log.output_paths", []string{"./app.log", "stderr"})
}

// Load reads app.yaml from dir (a missing file leaves the defaults in place)
// and takes connection settings and secrets from the environment.
func Load(dir string) (*Config, error) {
	viper.AddConfigPath(dir)
	viper.SetConfigType("yaml")
	viper.SetConfigName("app")
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.DB = DBConfig{
		Username: os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Host:     os.Getenv("POSTGRES_HOST"),
		Port:     os.Getenv("POSTGRES_PORT"),
		DBName:   os.Getenv("POSTGRES_DB"),
		SSLMode:  os.Getenv("POSTGRES_SSLMODE"),
	}
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RabbitMQ = os.Getenv("RABBITMQ_CONN_STRING")
	cfg.AccessSecret = os.Getenv("ACCESS_SECRET")

	normalize(&cfg)
	return &cfg, nil
}

func normalize(c *Config) {
	if c.DB.SSLMode == "" {
		c.DB.SSLMode = "disable"
	}
	if c.Toast.TTL <= 0 {
		c.Toast.TTL = 5 * time.Second
	}
	if c.Chat.MaxLength <= 0 {
		c.Chat.MaxLength = 500
	}
	if c.Chat.PageSize <= 0 {
		c.Chat.PageSize = 50
	}
	if c.Forum.PageMaxLimit <= 0 {
		c.Forum.PageMaxLimit = 20
	}
}

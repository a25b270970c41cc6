// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Chat      ChatConfig      `mapstructure:"chat"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Icons     IconsConfig     `mapstructure:"icons"`
	Session   SessionConfig   `mapstructure:"session"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// ChatConfig 存储会话与输入校验相关的配置。
type ChatConfig struct {
	MaxMessageLength   int `mapstructure:"max_message_length"`
	HistoryLimit       int `mapstructure:"history_limit"`
	MaxConversations   int `mapstructure:"max_conversations"`
	EvictBatch         int `mapstructure:"evict_batch"`
	PromptHistoryTurns int `mapstructure:"prompt_history_turns"`
}

// RateLimitConfig 存储滑动窗口限流的配置。
type RateLimitConfig struct {
	Backend       string        `mapstructure:"backend"` // memory 或 redis
	Limit         int           `mapstructure:"limit"`
	Window        time.Duration `mapstructure:"window"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ProvidersConfig 存储所有模型供应商的配置。
type ProvidersConfig struct {
	Default   string         `mapstructure:"default"`
	Timeout   time.Duration  `mapstructure:"timeout"`
	Gemini    ProviderConfig `mapstructure:"gemini"`
	OpenAI    ProviderConfig `mapstructure:"openai"`
	Anthropic ProviderConfig `mapstructure:"anthropic"`
}

// ProviderConfig 存储单个模型供应商的配置。
type ProviderConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// IconsConfig 存储图标词表的配置。为空时使用内置词表。
type IconsConfig struct {
	VocabularyPath string `mapstructure:"vocabulary_path"`
}

// SessionConfig 存储会话令牌的配置。TokenSecret 为空时不签发令牌。
type SessionConfig struct {
	TokenSecret   string `mapstructure:"token_secret"`
	TokenTTLHours int    `mapstructure:"token_ttl_hours"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。DSN 为空时不记录生成日志。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时不发布生成事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// MetricsConfig 存储 Prometheus 指标的配置。
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Token   string `mapstructure:"token"` // 非空时抓取需要携带 Bearer 令牌
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("chat.max_message_length", 4000)
	v.SetDefault("chat.history_limit", 20)
	v.SetDefault("chat.max_conversations", 1000)
	v.SetDefault("chat.evict_batch", 100)
	v.SetDefault("chat.prompt_history_turns", 6)

	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.limit", 60)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.idle_timeout", 5*time.Minute)
	v.SetDefault("rate_limit.sweep_interval", time.Minute)

	v.SetDefault("providers.default", "openai")
	v.SetDefault("providers.timeout", 30*time.Second)
	v.SetDefault("providers.gemini.model", "gemini-1.5-flash")
	v.SetDefault("providers.gemini.temperature", 0.2)
	v.SetDefault("providers.gemini.max_tokens", 2048)
	v.SetDefault("providers.openai.model", "gpt-4o-mini")
	v.SetDefault("providers.openai.temperature", 0.2)
	v.SetDefault("providers.openai.max_tokens", 2048)
	v.SetDefault("providers.anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("providers.anthropic.temperature", 0.2)
	v.SetDefault("providers.anthropic.max_tokens", 2048)

	// 空字符串默认值让 AutomaticEnv 能覆盖这些键
	for _, key := range []string{
		"log.output_path", "icons.vocabulary_path", "session.token_secret",
		"providers.gemini.base_url", "providers.openai.base_url", "providers.anthropic.base_url",
		"database.mysql.dsn", "database.redis.addr", "database.redis.password", "kafka.brokers",
		"metrics.token",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("session.token_ttl_hours", 24)
	v.SetDefault("kafka.topic", "diagram-generations")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// 兼容各供应商约定俗成的环境变量名
	_ = v.BindEnv("providers.openai.api_key", "PROVIDERS_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("providers.gemini.api_key", "PROVIDERS_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("providers.anthropic.api_key", "PROVIDERS_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
}

// Load 读取配置文件（可选）、.env 文件与环境变量，返回解析后的配置。
// 配置文件不存在时只使用默认值与环境变量。
func Load(configPath string) (Config, error) {
	// .env 不存在是正常情况
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) error {
	cfg, err := Load(configPath)
	if err != nil {
		return err
	}
	Conf = cfg
	return nil
}

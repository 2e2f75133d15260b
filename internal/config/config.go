// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Log          LogConfig          `mapstructure:"log"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	MinIO        MinIOConfig        `mapstructure:"minio"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Session      SessionConfig      `mapstructure:"session"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Upstream     UpstreamConfig     `mapstructure:"upstream"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。文档上传后的元数据提取任务走这个 topic。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	// MaxUploadBytes 是单个 PDF 的大小上限，默认 10MB。
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// LLMConfig 存储生成式 AI 后端相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	Model      string              `mapstructure:"model"`
	NotesModel string              `mapstructure:"notes_model"`
	QuizModel  string              `mapstructure:"quiz_model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// SessionConfig 控制会话协调器的行为。
type SessionConfig struct {
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	IdleTTL     time.Duration `mapstructure:"idle_ttl"`
}

// ConversationConfig 控制对话存储。
type ConversationConfig struct {
	// Store 取值 redis 或 memory。
	Store        string        `mapstructure:"store"`
	HistoryLimit int           `mapstructure:"history_limit"`
	TTL          time.Duration `mapstructure:"ttl"`
}

// UpstreamConfig 是 /courses、/users 等透传路由的上游服务。
type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.group_id", "stututor-document-consumer")
	v.SetDefault("minio.bucket_name", "pdfs")
	v.SetDefault("minio.max_upload_bytes", 10*1024*1024)
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("session.call_timeout", 60*time.Second)
	v.SetDefault("session.idle_ttl", 2*time.Hour)
	v.SetDefault("conversation.store", "redis")
	v.SetDefault("conversation.history_limit", 10)
	v.SetDefault("conversation.ttl", 30*24*time.Hour)
	v.SetDefault("upstream.base_url", "http://localhost:8000")
	v.SetDefault("upstream.timeout", 15*time.Second)
}

// Load 读取指定的 YAML 文件，叠加 .env 与环境变量后解析为 Config。
// 配置文件不存在时只使用默认值和环境变量。
func Load(configPath string) (*Config, error) {
	// .env 缺失不是错误
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 沿用原有前端/后端使用的环境变量名
	_ = v.BindEnv("llm.api_key", "LLM_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("upstream.base_url", "UPSTREAM_BASE_URL", "API_BASE_URL")

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if cfg.LLM.NotesModel == "" {
		cfg.LLM.NotesModel = cfg.LLM.Model
	}
	if cfg.LLM.QuizModel == "" {
		cfg.LLM.QuizModel = cfg.LLM.Model
	}
	return &cfg, nil
}

// Init 初始化配置加载，失败时直接 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}

// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Voice         VoiceConfig         `mapstructure:"voice"`
	Video         VideoConfig         `mapstructure:"video"`
	Content       ContentConfig       `mapstructure:"content"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL       MySQLConfig `mapstructure:"mysql"`
	Redis       RedisConfig `mapstructure:"redis"`
	AutoMigrate bool        `mapstructure:"auto_migrate"`
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

// JWTConfig 存储语音会话票据的签名配置。
type JWTConfig struct {
	Secret               string `mapstructure:"secret"`
	VoiceTicketExpireMin int    `mapstructure:"voice_ticket_expire_minutes"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。为空的 Brokers 表示关闭线索管道。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	URLExpireMin    int    `mapstructure:"url_expire_minutes"`
}

// LLMConfig 存储文本模型（OpenRouter）相关的配置。
type LLMConfig struct {
	APIKey       string              `mapstructure:"api_key"`
	BaseURL      string              `mapstructure:"base_url"`
	Model        string              `mapstructure:"model"`
	Referer      string              `mapstructure:"referer"`
	Title        string              `mapstructure:"title"`
	MaxToolSteps int                 `mapstructure:"max_tool_steps"`
	Generation   LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// VoiceConfig 存储实时语音教练的配置。
type VoiceConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	APIVersion string `mapstructure:"api_version"`
	VoiceName  string `mapstructure:"voice_name"`
}

// VideoConfig 存储视频检索的配置。
type VideoConfig struct {
	SearchBackend   string `mapstructure:"search_backend"` // "sql" 或 "elasticsearch"
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
	SeedPath        string `mapstructure:"seed_path"` // 启动时导入的视频目录 JSON，为空则跳过
}

// ContentConfig 存储静态内容文件的位置。
type ContentConfig struct {
	FAQPath string `mapstructure:"faq_path"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 密钥与连接串允许从环境变量覆盖
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.api_key", "OPENROUTER_API_KEY")
	_ = v.BindEnv("voice.api_key", "GOOGLE_API_KEY")
	_ = v.BindEnv("database.mysql.dsn", "DATABASE_URL")

	if err := v.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := v.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jwt.voice_ticket_expire_minutes", 10)
	v.SetDefault("kafka.topic", "coaching-leads")
	v.SetDefault("kafka.group_id", "boxing-locker-lead-consumer")
	v.SetDefault("elasticsearch.index_name", "video_catalog")
	v.SetDefault("minio.bucket_name", "coaching-plans")
	v.SetDefault("minio.url_expire_minutes", 60)
	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.model", "google/gemini-2.5-flash")
	v.SetDefault("llm.title", "The Boxing Locker - AI Coach")
	v.SetDefault("llm.max_tool_steps", 3)
	v.SetDefault("voice.model", "gemini-2.5-flash-native-audio-preview-12-2025")
	v.SetDefault("voice.api_version", "v1alpha")
	v.SetDefault("voice.voice_name", "Aoede")
	v.SetDefault("video.search_backend", "sql")
	v.SetDefault("video.cache_ttl_seconds", 600)
	v.SetDefault("content.faq_path", "./configs/faq.md")
}

package config

import (
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
)

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Address    string `yaml:"address"`    // MongoDB 服务器地址
	Username   string `yaml:"username"`   // 用户名
	Password   string `yaml:"password"`   // 密码
	Database   string `yaml:"database"`   // 数据库名称
	Collection string `yaml:"collection"` // 用户集合名称 (例如: "users")
}

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
	TTL      int    `yaml:"ttl"`      // 描述符缓存的过期时间 (秒)
}

// MinIOConfig 定义了 MinIO 对象存储的连接配置。
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`  // MinIO 服务端点
	AccessKey string `yaml:"accessKey"` // 访问密钥
	SecretKey string `yaml:"secretKey"` // Secret 密钥
	Bucket    string `yaml:"bucket"`    // 照片存储桶名称
	Secure    bool   `yaml:"secure"`    // 是否使用HTTPS
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
// brokers 为空时，变更事件发布功能整体关闭。
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // Kafka Broker 地址列表
	Topic   string   `yaml:"topic"`   // 变更事件主题 (例如: "relation_events")
}

// DatabaseConfigs 包含所有数据库的配置。
type DatabaseConfigs struct {
	MongoDB MongoConfig `yaml:"mongodb"` // MongoDB 数据库配置
	Redis   RedisConfig `yaml:"redis"`   // Redis 数据库配置
	MinIO   MinIOConfig `yaml:"minio"`   // MinIO 对象存储配置
	Kafka   KafkaConfig `yaml:"kafka"`   // Kafka 消息队列配置
}

// RateLimitConfig 定义了全局限流配置。rps 为 0 时关闭限流。
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`   // 每秒允许的请求数
	Burst int     `yaml:"burst"` // 允许的突发请求数
}

// ServerConfig 定义了 HTTP 服务器的配置。
type ServerConfig struct {
	Port      int             `yaml:"port"`      // 监听端口
	RateLimit RateLimitConfig `yaml:"rateLimit"` // 全局限流配置
}

// CORSConfig 定义了跨域资源共享的配置。
type CORSConfig struct {
	AllowOrigins []string `yaml:"allowOrigins"` // 允许的来源列表
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App       AppInfo         `yaml:"app"`       // 应用程序信息
	Server    ServerConfig    `yaml:"server"`    // HTTP 服务器配置
	Logger    LoggerConfig    `yaml:"logger"`    // 日志记录器配置
	Databases DatabaseConfigs `yaml:"databases"` // 数据库配置
	CORS      CORSConfig      `yaml:"cors"`      // 跨域配置
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
//
// 参数:
//
//	path: YAML 配置文件的路径。
//
// 返回值:
//
//	*AppConfig: 解析后的应用程序配置结构体。
//	error: 如果文件读取或解析失败，则返回错误。
func LoadConfig(path string) (*AppConfig, error) {
	// 读取 YAML 文件内容。
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	var cfg AppConfig // 声明一个AppConfig变量用于存储解析后的配置。
	// 将 YAML 内容解析到 cfg 结构体中。
	err = yaml.Unmarshal(yamlFile, &cfg)
	if err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	return &cfg, nil // 返回解析后的配置和nil错误。
}

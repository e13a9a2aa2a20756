package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config 引擎配置
type Config struct {
	Engine   EngineConfig   `json:"engine"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Kafka    KafkaConfig    `json:"kafka"`
	Consul   ConsulConfig   `json:"consul"`
	Jaeger   JaegerConfig   `json:"jaeger"`
	Payment  PaymentConfig  `json:"payment"`
	Dispatch DispatchConfig `json:"dispatch"`
	Retry    RetryConfig    `json:"retry"`
	Log      LogConfig      `json:"log"`
}

// EngineConfig 引擎实例配置
type EngineConfig struct {
	Name string `json:"name"` // 实例名称（用于日志/追踪）
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `json:"driver"`   // 数据库驱动
	Host     string `json:"host"`     // 数据库地址
	Port     int    `json:"port"`     // 数据库端口
	User     string `json:"user"`     // 用户名
	Password string `json:"password"` // 密码
	Database string `json:"database"` // 数据库名
	MaxIdle  int    `json:"max_idle"` // 最大空闲连接
	MaxOpen  int    `json:"max_open"` // 最大打开连接
}

// RedisConfig Redis配置（降级缓存的可选后端）
type RedisConfig struct {
	Enabled  bool   `json:"enabled"` // false 时使用进程内缓存
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// KafkaConfig Kafka配置（通知事件出口）
type KafkaConfig struct {
	Enabled bool     `json:"enabled"` // false 时通知仅写日志
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

// ConsulConfig Consul配置
type ConsulConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// JaegerConfig Jaeger配置
type JaegerConfig struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"` // 采样率 0.0-1.0
}

// PaymentConfig 支付协调配置
type PaymentConfig struct {
	AuthorizeTimeoutMS int `json:"authorize_timeout_ms"` // 单次授权的最大等待
	RefundTimeoutMS    int `json:"refund_timeout_ms"`
}

// DispatchConfig 派单配置
type DispatchConfig struct {
	SearchRadiusMeters float64 `json:"search_radius_meters"` // 骑手搜索半径
	QueryTimeoutMS     int     `json:"query_timeout_ms"`     // 地理编码/骑手查询超时
}

// RetryConfig 重试策略配置
type RetryConfig struct {
	MaxAttempts   int `json:"max_attempts"`    // 最大尝试次数（含首次）
	BaseBackoffMS int `json:"base_backoff_ms"` // 首次退避
	MaxBackoffMS  int `json:"max_backoff_ms"`  // 退避上限
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, file
	Path   string `json:"path"`   // 日志文件路径
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig 加载配置
func LoadConfig(configPath string) (*Config, error) {
	var err error
	configOnce.Do(func() {
		globalConfig = &Config{}
		// 如果配置文件不存在，使用默认配置
		if _, err = os.Stat(configPath); os.IsNotExist(err) {
			logrus.Warnf("Config file not found: %s, using default config", configPath)
			globalConfig = defaultConfig()
			err = nil
			return
		}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file: %w", readErr)
			return
		}

		if unmarshalErr := json.Unmarshal(data, globalConfig); unmarshalErr != nil {
			err = fmt.Errorf("failed to parse config file: %w", unmarshalErr)
			return
		}
	})

	if err != nil {
		return nil, err
	}

	return globalConfig, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if globalConfig == nil {
		return defaultConfig()
	}
	return globalConfig
}

// defaultConfig 默认配置（开发环境）
func defaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Name: "order-engine",
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "root",
			Database: "fleeteats",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		Kafka: KafkaConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topic:   "order-notifications",
		},
		Consul: ConsulConfig{
			Host: "localhost",
			Port: 8500,
		},
		Jaeger: JaegerConfig{
			Endpoint: "http://localhost:14268/api/traces",
			Sampler:  1.0,
		},
		Payment: PaymentConfig{
			AuthorizeTimeoutMS: 15000,
			RefundTimeoutMS:    15000,
		},
		Dispatch: DispatchConfig{
			SearchRadiusMeters: 10000,
			QueryTimeoutMS:     5000,
		},
		Retry: RetryConfig{
			MaxAttempts:   3,
			BaseBackoffMS: 200,
			MaxBackoffMS:  5000,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
			Output: "stdout",
			Path:   "logs/engine.log",
		},
	}
}

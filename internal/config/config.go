package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Loyalty  LoyaltyConfig  `mapstructure:"loyalty"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	LoyaltyEvents string `mapstructure:"loyalty_events"`
	OrderEvents   string `mapstructure:"order_events"`
}

// LoyaltyConfig 积分台账相关配置
type LoyaltyConfig struct {
	MaxRetries           int `mapstructure:"max_retries"`            // 余额 CAS 更新的最大重试次数
	LockTTLSeconds       int `mapstructure:"lock_ttl_seconds"`       // 账户锁过期时间
	LockRetryIntervalMs  int `mapstructure:"lock_retry_interval_ms"` // 抢锁重试间隔
	LockMaxRetries       int `mapstructure:"lock_max_retries"`       // 抢锁最大重试次数
	AuditIntervalSeconds int `mapstructure:"audit_interval_seconds"` // 余额对账周期
	HistoryMaxLimit      int `mapstructure:"history_max_limit"`      // 流水查询单页上限
}

type BusinessConfig struct {
	MaxRetryCount   int `mapstructure:"max_retry_count"` // outbox 消息最大重试次数
	DefaultPageSize int `mapstructure:"default_page_size"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}

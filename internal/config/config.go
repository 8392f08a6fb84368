package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Business BusinessConfig `mapstructure:"business"`

	location *time.Location
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type DatabaseConfig struct {
	Driver  string       `mapstructure:"driver"`
	LogMode bool         `mapstructure:"log_mode"`
	MySQL   MySQLConfig  `mapstructure:"mysql"`
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
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

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	LedgerEvents    string `mapstructure:"ledger_events"`
	RecurringEvents string `mapstructure:"recurring_events"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type BusinessConfig struct {
	Timezone              string `mapstructure:"timezone"`
	SweepIntervalSeconds  int    `mapstructure:"sweep_interval_seconds"`
	SweepBatchSize        int    `mapstructure:"sweep_batch_size"`
	AuditIntervalSeconds  int    `mapstructure:"audit_interval_seconds"`
	MaxRetryCount         int    `mapstructure:"max_retry_count"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// Location 业务时区，用于计算"今天"
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (b BusinessConfig) SweepInterval() time.Duration {
	return time.Duration(b.SweepIntervalSeconds) * time.Second
}

func (b BusinessConfig) AuditInterval() time.Duration {
	return time.Duration(b.AuditIntervalSeconds) * time.Second
}

func (b BusinessConfig) RequestTimeout() time.Duration {
	return time.Duration(b.RequestTimeoutSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", DriverMySQL)
	v.SetDefault("database.mysql.max_open_conns", 20)
	v.SetDefault("database.mysql.max_idle_conns", 10)
	v.SetDefault("database.sqlite.path", "data/fintrack.db")
	v.SetDefault("kafka.topic.ledger_events", "fintrack.ledger")
	v.SetDefault("kafka.topic.recurring_events", "fintrack.recurring")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("business.timezone", "UTC")
	v.SetDefault("business.sweep_interval_seconds", 3600)
	v.SetDefault("business.sweep_batch_size", 200)
	v.SetDefault("business.audit_interval_seconds", 1800)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.request_timeout_seconds", 10)
}

// Load 加载配置文件，环境变量 FINTRACK_* 覆盖文件中的值
// 例如 FINTRACK_SERVER_PORT=9000、FINTRACK_AUTH_JWT_SECRET=xxx
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FINTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	return decode(v)
}

// LoadFromString 从 YAML 字符串加载配置，测试使用
func LoadFromString(content string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}

	loc, err := time.LoadLocation(c.Business.Timezone)
	if err != nil {
		return fmt.Errorf("业务时区无效 %q: %w", c.Business.Timezone, err)
	}
	c.location = loc

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret 不能为空")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka 已启用但未配置 brokers")
	}
	if c.Business.SweepBatchSize <= 0 {
		return fmt.Errorf("business.sweep_batch_size 必须大于0")
	}
	return nil
}

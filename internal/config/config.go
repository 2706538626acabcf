package config

import (
	"fmt"
	"time"

	"taskflow/pkg/config"
)

type Config struct {
	Env    string              `yaml:"-"`
	DB     config.DBConfig     `yaml:"db"`
	MQ     config.MQConfig     `yaml:"mq"`
	Redis  config.RedisConfig  `yaml:"redis"`
	JWT    config.JWTConfig    `yaml:"jwt"`
	Server config.ServerConfig `yaml:"server"`
	Google config.GoogleConfig `yaml:"google"`
	AI     config.AIConfig     `yaml:"ai"`
	SMTP   config.SMTPConfig   `yaml:"smtp"`
	Otel   config.OtelConfig   `yaml:"otel"`
	Log    config.LogConfig    `yaml:"log"`
	Worker WorkerConfig        `yaml:"worker"`
	Outbox OutboxConfig        `yaml:"outbox"`
}

// OutboxConfig api 进程内的 outbox 投递
type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

// WorkerConfig 邮件消费者与定时任务
type WorkerConfig struct {
	MaxRetries       int64         `yaml:"max_retries"`
	DedupTTL         time.Duration `yaml:"dedup_ttl"`
	RetryCounterTTL  time.Duration `yaml:"retry_counter_ttl"`
	ResetTokenPurge  string        `yaml:"reset_token_purge"`
	OutboxPurge      string        `yaml:"outbox_purge"`
	OutboxRetainDays int           `yaml:"outbox_retain_days"`
	// 健康检查与 /metrics 端口
	HealthPort       string        `yaml:"health_port"`
}

// Load 读取 config/base.yaml + config/<env>.yaml，再用环境变量覆盖
func Load(env, dir string) (*Config, error) {
	if env == "" {
		env = config.GetConfigEnv()
	}

	raw, err := config.LoadConfig(env, dir)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := config.Decode(raw, cfg); err != nil {
		return nil, err
	}
	cfg.Env = env

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideGoogleFromEnv(&cfg.Google)
	config.OverrideAIFromEnv(&cfg.AI)
	config.OverrideSMTPFromEnv(&cfg.SMTP)
	config.OverrideOtelFromEnv(&cfg.Otel)

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret is required")
	}
	return cfg, nil
}

// Default 未在 yaml 中出现的字段使用这些值
func Default() *Config {
	return &Config{
		DB: config.DBConfig{
			Host:        "localhost",
			Port:        5432,
			SSLMode:     "disable",
			MaxConns:    10,
			SlowQueryMS: 100,
		},
		MQ:    config.MQConfig{Prefetch: 10},
		Redis: config.RedisConfig{Addr: "localhost:6379"},
		JWT: config.JWTConfig{
			AccessTTL:  time.Hour,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Server: config.ServerConfig{
			Port:        ":5000",
			FrontendURL: "http://localhost:5173",
		},
		AI: config.AIConfig{
			Timeout:       15 * time.Second,
			RatePerSecond: 1,
			Burst:         5,
		},
		SMTP: config.SMTPConfig{Port: 587},
		Log:  config.LogConfig{Level: "info"},
		Worker: WorkerConfig{
			MaxRetries:       3,
			DedupTTL:         24 * time.Hour,
			RetryCounterTTL:  time.Hour,
			ResetTokenPurge:  "@every 10m",
			OutboxPurge:      "0 3 * * *",
			OutboxRetainDays: 7,
			HealthPort:       ":8085",
		},
		Outbox: OutboxConfig{
			Interval:   time.Second,
			BatchSize:  100,
			MaxRetries: 5,
		},
	}
}

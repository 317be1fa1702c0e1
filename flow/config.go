package flow

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

// EngineConfig 引擎宿主的配置, 配置文件 + FLOW_ 开头的环境变量
type EngineConfig struct {
	DSN           string        `mapstructure:"dsn" validate:"required"`
	LockBackend   string        `mapstructure:"lock_backend" validate:"oneof=local redis"`
	RedisAddr     string        `mapstructure:"redis_addr" validate:"required_if=LockBackend redis"`
	LockTTL       time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
	SubmitRetries uint64        `mapstructure:"submit_retries"`
	WorkCacheTTL  time.Duration `mapstructure:"work_cache_ttl"`
	LogFormat     string        `mapstructure:"log_format" validate:"oneof=text json"`
	LogLevel      string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

func newEngineViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("dsn", "flow.db")
	v.SetDefault("lock_backend", LockBackendLocal)
	v.SetDefault("redis_addr", "")
	v.SetDefault("lock_ttl", time.Minute)
	v.SetDefault("submit_retries", 3)
	v.SetDefault("work_cache_ttl", 5*time.Minute)
	v.SetDefault("log_format", "text")
	v.SetDefault("log_level", "info")
	v.SetEnvPrefix("FLOW")
	v.AutomaticEnv()
	return v
}

// LoadEngineConfig configPath 为空时只读取默认值和环境变量
func LoadEngineConfig(configPath string) (*EngineConfig, error) {
	v := newEngineViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WithMessagef(err, "read engine config failed, path: %s", configPath)
		}
	}
	return unmarshalEngineConfig(v)
}

// ParseEngineConfig 从 yaml 内容读取配置, 环境变量依然生效
func ParseEngineConfig(r io.Reader) (*EngineConfig, error) {
	v := newEngineViper()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(r); err != nil {
		return nil, errors.WithMessage(err, "parse engine config failed")
	}
	return unmarshalEngineConfig(v)
}

func unmarshalEngineConfig(v *viper.Viper) (*EngineConfig, error) {
	config := &EngineConfig{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errors.WithMessage(err, "unmarshal engine config failed")
	}
	config.LockBackend = strings.ToLower(config.LockBackend)
	config.LogFormat = strings.ToLower(config.LogFormat)
	config.LogLevel = strings.ToLower(config.LogLevel)
	if err := validatorUtil.Struct(config); err != nil {
		return nil, errors.Wrapf(ErrFlowParamInvalid, "engine config invalid, err: %v", err)
	}
	return config, nil
}

func (c *EngineConfig) slogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger 按配置生成 text 或 json 格式的 logger
func (c *EngineConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     c.slogLevel(),
		AddSource: c.slogLevel() == slog.LevelDebug,
	}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewFlowLock redis 后端时同时返回 client, 由调用方负责关闭
func (c *EngineConfig) NewFlowLock() (FlowLock, *redis.Client) {
	if c.LockBackend == LockBackendRedis {
		client := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		return NewRedisFlowLock(client), client
	}
	return NewLocalFlowLock(), nil
}

// ServiceOptions 配置对应的服务参数
func (c *EngineConfig) ServiceOptions() []Option {
	return []Option{
		WithSubmitRetry(c.SubmitRetries),
		WithLockTimeout(c.LockTTL),
	}
}

// Initializing captioner configuration
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "CAPTIONER"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Models   ModelsConfig   `mapstructure:"models"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	AppVersion     string        `mapstructure:"app_version"`
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	Timeout        time.Duration `mapstructure:"timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Mode           string        `mapstructure:"mode"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type PipelineConfig struct {
	MaxBytes      int64         `mapstructure:"max_bytes"`
	MaxBatchSize  int           `mapstructure:"max_batch_size"`
	BatchWorkers  int           `mapstructure:"batch_workers"`
	MaxInFlight   int64         `mapstructure:"max_in_flight"`
	AdmissionWait time.Duration `mapstructure:"admission_wait"`
	DecodeTimeout time.Duration `mapstructure:"decode_timeout"`
	DefaultStyle  string        `mapstructure:"default_style"`
}

type ModelsConfig struct {
	Dir     string     `mapstructure:"dir"`
	Encoder string     `mapstructure:"encoder"`
	Seed    uint64     `mapstructure:"seed"`
	ONNX    ONNXConfig `mapstructure:"onnx"`
	// DecodeSeed fixes sampling for every request. Zero derives it from the
	// image and style.
	DecodeSeed uint64 `mapstructure:"decode_seed"`
}

type ONNXConfig struct {
	Model   string `mapstructure:"model"`
	Library string `mapstructure:"library"`
	Input   string `mapstructure:"input"`
	Output  string `mapstructure:"output"`
}

type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// Rate limit per client IP
	RateLimit  int64         `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`

	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads config.yaml from ./config, or from path when it is set.
// A missing file is not an error; defaults and CAPTIONER_* variables apply.
func LoadConfig(path string) (*viper.Viper, error) {

	viperInstance := viper.New()
	setDefaults(viperInstance)

	if path != "" {
		viperInstance.SetConfigFile(path)
	} else {
		viperInstance.AddConfigPath("./config")
		viperInstance.SetConfigName("config")
		viperInstance.SetConfigType("yaml")
	}

	viperInstance.SetEnvPrefix(EnvPrefix)
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperInstance.AutomaticEnv()

	err := viperInstance.ReadInConfig()

	var notFound viper.ConfigFileNotFoundError
	if err != nil && !(path == "" && errors.As(err, &notFound)) {
		return nil, err
	}
	return viperInstance, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {

	var c Config

	err := v.Unmarshal(&c)
	if err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Pipeline.MaxBytes <= 0:
		return fmt.Errorf("pipeline.max_bytes must be positive")
	case c.Pipeline.MaxBatchSize <= 0:
		return fmt.Errorf("pipeline.max_batch_size must be positive")
	case c.Pipeline.BatchWorkers <= 0:
		return fmt.Errorf("pipeline.batch_workers must be positive")
	case c.Pipeline.MaxInFlight <= 0:
		return fmt.Errorf("pipeline.max_in_flight must be positive")
	case c.Pipeline.DecodeTimeout <= 0:
		return fmt.Errorf("pipeline.decode_timeout must be positive")
	}
	return nil
}

func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.app_version", "1.0.0")
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", GetEnv("PORT", "5000"))
	v.SetDefault("server.timeout", 2*time.Minute)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 90*time.Second)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("pipeline.max_bytes", 10<<20)
	v.SetDefault("pipeline.max_batch_size", 10)
	v.SetDefault("pipeline.batch_workers", 4)
	v.SetDefault("pipeline.max_in_flight", 8)
	v.SetDefault("pipeline.admission_wait", 5*time.Second)
	v.SetDefault("pipeline.decode_timeout", 10*time.Second)
	v.SetDefault("pipeline.default_style", "creative")

	v.SetDefault("models.dir", "./models")
	v.SetDefault("models.encoder", "builtin")
	v.SetDefault("models.seed", 0)
	v.SetDefault("models.decode_seed", 0)
	v.SetDefault("models.onnx.model", "clip-vision.onnx")
	v.SetDefault("models.onnx.input", "pixel_values")
	v.SetDefault("models.onnx.output", "image_embeds")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "caption-events")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.rate_limit", 60)
	v.SetDefault("redis.rate_window", time.Minute)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.pool_timeout", 4*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

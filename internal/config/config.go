package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host          string
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	MaxUploadSize int64
}

type DatabaseConfig struct {
	Type       string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
	Migrations string
}

type StorageConfig struct {
	// Backend is "disk" or "s3".
	Backend   string
	Path      string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type OracleConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

type DetectorConfig struct {
	Weight  float64
	Enabled bool
}

type PipelineConfig struct {
	PolicyVersion    string
	SuspiciousAt     float64
	ManipulatedAt    float64
	DetectorTimeout  time.Duration
	HammingThreshold int
	Detectors        map[string]DetectorConfig
	ReferenceSeed    string
}

type LedgerConfig struct {
	Secret string
}

type AppConfig struct {
	Environment string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Storage     StorageConfig
	Redis       RedisConfig
	Oracle      OracleConfig
	Pipeline    PipelineConfig
	Ledger      LedgerConfig
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("VERIFYAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "30s")
	v.SetDefault("http.writetimeout", "30s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.maxuploadsize", 104857600)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.sqlitepath", "./verifyai.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "verifyai")
	v.SetDefault("database.name", "verifyai")
	v.SetDefault("database.migrations", "./migrations")

	v.SetDefault("storage.backend", "disk")
	v.SetDefault("storage.path", "./objects")
	v.SetDefault("storage.bucket", "verifyai-artifacts")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")

	v.SetDefault("oracle.timeout", "30s")

	v.SetDefault("pipeline.policyversion", "v1")
	v.SetDefault("pipeline.suspiciousat", 0.3)
	v.SetDefault("pipeline.manipulatedat", 0.7)
	v.SetDefault("pipeline.detectortimeout", "45s")
	v.SetDefault("pipeline.hammingthreshold", 16)
	v.SetDefault("pipeline.detectors.ela.weight", 0.40)
	v.SetDefault("pipeline.detectors.ela.enabled", true)
	v.SetDefault("pipeline.detectors.phash.weight", 0.25)
	v.SetDefault("pipeline.detectors.phash.enabled", true)
	v.SetDefault("pipeline.detectors.model.weight", 0.35)
	v.SetDefault("pipeline.detectors.model.enabled", true)

	v.SetDefault("ledger.secret", "change-me-in-production")
}

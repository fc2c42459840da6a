// Package config reads the service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type ReportCacheCfg struct {
	Enabled   bool          `env:"ENABLED"`
	RedisAddr string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	TTL       time.Duration `env:"TTL" envDefault:"1h"`
	OpTimeout time.Duration `env:"OP_TIMEOUT" envDefault:"150ms"`

	PoolSize    int           `env:"POOL_SIZE" envDefault:"32"`
	MinIdle     int           `env:"MIN_IDLE" envDefault:"4"`
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" envDefault:"500ms"`
}

type ExtractionCfg struct {
	URL     string        `env:"URL"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

type EventsCfg struct {
	Enabled bool     `env:"ENABLED"`
	Brokers []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic   string   `env:"TOPIC" envDefault:"foncier-parcel-analyses"`
	Queue   int      `env:"QUEUE" envDefault:"1024"`
}

type InvalidationCfg struct {
	Enabled       bool     `env:"ENABLED"`
	Brokers       []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic         string   `env:"TOPIC" envDefault:"foncier-layer-changes"`
	GroupID       string   `env:"GROUP_ID" envDefault:"foncier-report-invalidator"`
	InitialOldest bool     `env:"INITIAL_OLDEST" envDefault:"true"`
}

type MetricsCfg struct {
	Enabled bool   `env:"ENABLED"`
	Addr    string `env:"ADDR" envDefault:":9090"`
	Path    string `env:"PATH" envDefault:"/metrics"`
}

type Config struct {
	Addr       string `env:"ADDR" envDefault:":8090"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogConsole bool   `env:"LOG_CONSOLE"`
	LogSampleN int    `env:"LOG_SAMPLE_N"`

	DataDir          string        `env:"DATA_DIR" envDefault:"./data"`
	SourceCRS        string        `env:"SOURCE_CRS" envDefault:"EPSG:32631"`
	LayerCacheSize   int           `env:"LAYER_CACHE_SIZE" envDefault:"32"`
	LayerLoadWorkers int           `env:"LAYER_LOAD_WORKERS" envDefault:"4"`
	AnalysisTimeout  time.Duration `env:"ANALYSIS_TIMEOUT" envDefault:"30s"`
	MaxUploadBytes   int64         `env:"MAX_UPLOAD_BYTES" envDefault:"20971520"`

	H3Res      int `env:"H3_RES" envDefault:"9"`
	H3MaxCells int `env:"H3_MAX_CELLS" envDefault:"5000"`

	ReportCache  ReportCacheCfg  `envPrefix:"REPORT_CACHE_"`
	Extraction   ExtractionCfg   `envPrefix:"EXTRACTION_"`
	Events       EventsCfg       `envPrefix:"ANALYSIS_EVENTS_"`
	Invalidation InvalidationCfg `envPrefix:"INVALIDATION_"`
	Metrics      MetricsCfg      `envPrefix:"METRICS_"`
}

// FromEnv parses the process environment.
func FromEnv() (Config, error) {
	return parse(env.Options{})
}

// FromMap parses an explicit environment; unset keys take their defaults.
func FromMap(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	c.clamp()
	return c, nil
}

func (c *Config) clamp() {
	if c.H3Res < 0 {
		c.H3Res = 0
	}
	if c.H3Res > 15 {
		c.H3Res = 15
	}
	if c.LayerLoadWorkers < 1 {
		c.LayerLoadWorkers = 1
	}
	if c.LayerCacheSize < 0 {
		c.LayerCacheSize = 0
	}
	if c.LogSampleN < 0 {
		c.LogSampleN = 0
	}
	if c.AnalysisTimeout < 0 {
		c.AnalysisTimeout = 0
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 20 << 20
	}
	if c.ReportCache.PoolSize < 1 {
		c.ReportCache.PoolSize = 1
	}
	if c.ReportCache.MinIdle > c.ReportCache.PoolSize {
		c.ReportCache.MinIdle = c.ReportCache.PoolSize
	}
	if c.Events.Queue <= 0 {
		c.Events.Queue = 1024
	}
}

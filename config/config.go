package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"thermal-render/frame"
	"thermal-render/imaging"
	"thermal-render/palette"
	"thermal-render/paths"
	"thermal-render/storage"
)

type Config struct {
	Address string `json:"address" env:"APP_ADDRESS" envDefault:":3000"`
	Prefork bool   `json:"prefork" env:"APP_PREFORK"`

	AllowedOrigins []string `json:"allowedOrigins" env:"APP_ALLOWED_ORIGINS"`
	HmacKey        string   `json:"-" env:"APP_HMAC_KEY"`
	Token          string   `json:"-" env:"APP_TOKEN"`
	// MaxMatrixSize bounds uploaded and fetched matrix files, in bytes.
	MaxMatrixSize int64 `json:"maxMatrixSize" env:"APP_MAX_MATRIX_SIZE" envDefault:"8388608"`

	Format      string `json:"format" env:"APP_FORMAT" envDefault:"png"`
	Quality     int    `json:"quality" env:"APP_QUALITY" envDefault:"90"`
	Scale       int    `json:"scale" env:"APP_SCALE" envDefault:"1"`
	Palette     string `json:"palette" env:"APP_PALETTE"`
	GrayPalette string `json:"grayPalette" env:"APP_GRAY_PALETTE"`

	Workers       int    `json:"workers" env:"APP_WORKERS" envDefault:"7"`
	InputPattern  string `json:"inputPattern" env:"APP_INPUT_PATTERN" envDefault:"*.txt"`
	Recursive     bool   `json:"recursive" env:"APP_RECURSIVE"`
	OutputSegment int    `json:"outputSegment" env:"APP_OUTPUT_SEGMENT"`
	OutputName    string `json:"outputName" env:"APP_OUTPUT_NAME"`
	OutputRename  string `json:"outputRename" env:"APP_OUTPUT_RENAME"`
	OutputRoot    string `json:"outputRoot" env:"APP_OUTPUT_ROOT"`

	Sink        string `json:"sink" env:"APP_SINK" envDefault:"file"`
	S3Endpoint  string `json:"s3Endpoint" env:"APP_S3_ENDPOINT"`
	S3AccessKey string `json:"-" env:"APP_S3_ACCESS_KEY"`
	S3SecretKey string `json:"-" env:"APP_S3_SECRET_KEY"`
	S3Bucket    string `json:"s3Bucket" env:"APP_S3_BUCKET"`
	S3Prefix    string `json:"s3Prefix" env:"APP_S3_PREFIX"`
	S3UseSSL    bool   `json:"s3UseSsl" env:"APP_S3_USE_SSL" envDefault:"true"`

	CacheNumCounters int64 `json:"cacheNumCounters" env:"APP_CACHE_NUM_COUNTERS" envDefault:"100000"`
	CacheMaxCost     int64 `json:"cacheMaxCost" env:"APP_CACHE_MAX_COST" envDefault:"268435456"`
	CacheBufferItems int64 `json:"cacheBufferItems" env:"APP_CACHE_BUFFER_ITEMS" envDefault:"64"`
	// CacheTTL is in seconds.
	CacheTTL int `json:"cacheTtl" env:"APP_CACHE_TTL" envDefault:"1800"`

	Metrics  *bool  `json:"metrics" env:"APP_METRICS"`
	LogLevel string `json:"logLevel" env:"APP_LOG_LEVEL" envDefault:"info"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, err
	}
	if cfg.Metrics == nil {
		metrics := true
		cfg.Metrics = &metrics
	}
	return cfg, cfg.Validate()
}

// Validate checks ranges and that every derived setting parses.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("APP_WORKERS must be at least 1, got %d", c.Workers))
	}
	if _, err := c.Encoder(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Palettes(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.OutputRule(); err != nil {
		errs = append(errs, err)
	}
	if c.MaxMatrixSize <= 0 {
		errs = append(errs, fmt.Errorf("APP_MAX_MATRIX_SIZE must be positive, got %d", c.MaxMatrixSize))
	}
	switch c.Sink {
	case "file":
	case "s3":
		if c.S3Endpoint == "" || c.S3Bucket == "" {
			errs = append(errs, errors.New("APP_SINK=s3 needs APP_S3_ENDPOINT and APP_S3_BUCKET"))
		}
	default:
		errs = append(errs, fmt.Errorf("APP_SINK must be file or s3, got %q", c.Sink))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("APP_LOG_LEVEL: %w", err))
	}
	return errors.Join(errs...)
}

// Encoder returns the image encoder for APP_FORMAT, APP_QUALITY and APP_SCALE.
func (c Config) Encoder() (imaging.Encoder, error) {
	f, err := imaging.ParseFormat(c.Format)
	if err != nil {
		return imaging.Encoder{}, fmt.Errorf("APP_FORMAT: %w", err)
	}
	e := imaging.Encoder{Format: f, Quality: c.Quality, Scale: c.Scale}
	if c.Quality < 1 {
		return e, fmt.Errorf("APP_QUALITY must be 1-100, got %d", c.Quality)
	}
	if c.Scale < 1 {
		return e, fmt.Errorf("APP_SCALE must be at least 1, got %d", c.Scale)
	}
	return e, e.Validate()
}

// Palettes returns the frame renderer for APP_PALETTE and APP_GRAY_PALETTE.
// Unset palettes fall back to palette.Iron and palette.Grayscale.
func (c Config) Palettes() (frame.Renderer, error) {
	var r frame.Renderer
	var err error
	if c.Palette != "" {
		if r.Color, err = palette.ParseStops(c.Palette); err != nil {
			return r, fmt.Errorf("APP_PALETTE: %w", err)
		}
	}
	if c.GrayPalette != "" {
		if r.Gray, err = palette.ParseStops(c.GrayPalette); err != nil {
			return r, fmt.Errorf("APP_GRAY_PALETTE: %w", err)
		}
	}
	return r, nil
}

// OutputRule returns the output path rule.
func (c Config) OutputRule() (paths.Rule, error) {
	r := paths.Rule{Segment: c.OutputSegment, Name: c.OutputName, Root: c.OutputRoot}
	if c.OutputRename != "" {
		from, to, err := paths.ParseRename(c.OutputRename)
		if err != nil {
			return r, fmt.Errorf("APP_OUTPUT_RENAME: %w", err)
		}
		r.From, r.To = from, to
	}
	return r, r.Validate()
}

func (c Config) S3() storage.S3Config {
	return storage.S3Config{
		Endpoint:  c.S3Endpoint,
		AccessKey: c.S3AccessKey,
		SecretKey: c.S3SecretKey,
		Bucket:    c.S3Bucket,
		Prefix:    c.S3Prefix,
		UseSSL:    c.S3UseSSL,
	}
}

func (c Config) Cache() storage.CacheConfig {
	return storage.CacheConfig{
		NumCounters: c.CacheNumCounters,
		MaxCost:     c.CacheMaxCost,
		BufferItems: c.CacheBufferItems,
		TTL:         time.Duration(c.CacheTTL) * time.Second,
	}
}

// NewLogger builds a production zap logger at APP_LOG_LEVEL.
func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type WatchConfig struct {
	Dir                string
	StabilityThreshold time.Duration
	PollInterval       time.Duration
}

type StorageConfig struct {
	BaseDir      string
	ProcessedDir string
}

type QueueConfig struct {
	Concurrency int
	BatchSize   int
	Capacity    int
}

type HeaderOCRConfig struct {
	Language   string
	CropPct    float64
	MaxRetries int
	RetryDelay time.Duration
	Greyscale  bool
	Sharpen    bool
	Normalize  bool
}

type PlateCropConfig struct {
	TopOffset    float64
	BottomMargin float64
	LeftMargin   float64
	RightMargin  float64
	TargetWidth  int
	JPEGQuality  int
}

type OllamaConfig struct {
	Host              string
	Model             string
	KeepAliveValue    string
	KeepAliveInterval time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	RequestTimeout    time.Duration
	NumCtx            int
	NumPredict        int
	Temperature       float64
	TopP              float64
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Watch       WatchConfig
	Storage     StorageConfig
	Queue       QueueConfig
	HeaderOCR   HeaderOCRConfig
	PlateCrop   PlateCropConfig
	Ollama      OllamaConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")

	v.AutomaticEnv()

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Watch: WatchConfig{
			Dir:                v.GetString("WATCH_DIR"),
			StabilityThreshold: v.GetDuration("WATCH_STABILITY_THRESHOLD"),
			PollInterval:       v.GetDuration("WATCH_POLL_INTERVAL"),
		},
		Storage: StorageConfig{
			BaseDir:      v.GetString("FILES_BASE_DIR"),
			ProcessedDir: v.GetString("PROCESSED_FILES_DIR"),
		},
		Queue: QueueConfig{
			Concurrency: v.GetInt("QUEUE_CONCURRENCY"),
			BatchSize:   v.GetInt("QUEUE_BATCH_SIZE"),
			Capacity:    v.GetInt("QUEUE_CAPACITY"),
		},
		HeaderOCR: HeaderOCRConfig{
			Language:   v.GetString("HEADER_OCR_LANGUAGE"),
			CropPct:    v.GetFloat64("HEADER_CROP_PCT"),
			MaxRetries: v.GetInt("HEADER_OCR_MAX_RETRIES"),
			RetryDelay: v.GetDuration("HEADER_OCR_RETRY_DELAY"),
			Greyscale:  v.GetBool("HEADER_OCR_GREYSCALE"),
			Sharpen:    v.GetBool("HEADER_OCR_SHARPEN"),
			Normalize:  v.GetBool("HEADER_OCR_NORMALIZE"),
		},
		PlateCrop: PlateCropConfig{
			TopOffset:    v.GetFloat64("PLATE_CROP_TOP_OFFSET"),
			BottomMargin: v.GetFloat64("PLATE_CROP_BOTTOM_MARGIN"),
			LeftMargin:   v.GetFloat64("PLATE_CROP_LEFT_MARGIN"),
			RightMargin:  v.GetFloat64("PLATE_CROP_RIGHT_MARGIN"),
			TargetWidth:  v.GetInt("PLATE_CROP_TARGET_WIDTH"),
			JPEGQuality:  v.GetInt("PLATE_CROP_JPEG_QUALITY"),
		},
		Ollama: OllamaConfig{
			Host:              v.GetString("OLLAMA_HOST"),
			Model:             v.GetString("OLLAMA_MODEL"),
			KeepAliveValue:    v.GetString("OLLAMA_KEEP_ALIVE"),
			KeepAliveInterval: v.GetDuration("OLLAMA_KEEP_ALIVE_INTERVAL"),
			MaxRetries:        v.GetInt("OLLAMA_MAX_RETRIES"),
			RetryDelay:        v.GetDuration("OLLAMA_RETRY_DELAY"),
			RequestTimeout:    v.GetDuration("OLLAMA_REQUEST_TIMEOUT"),
			NumCtx:            v.GetInt("OLLAMA_NUM_CTX"),
			NumPredict:        v.GetInt("OLLAMA_NUM_PREDICT"),
			Temperature:       v.GetFloat64("OLLAMA_TEMPERATURE"),
			TopP:              v.GetFloat64("OLLAMA_TOP_P"),
		},
	}

	applyDefaults(cfg, v)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config, v *viper.Viper) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Watch.Dir == "" {
		cfg.Watch.Dir = "./images"
	}
	if cfg.Watch.StabilityThreshold == 0 {
		cfg.Watch.StabilityThreshold = 4 * time.Second
	}
	if cfg.Watch.PollInterval == 0 {
		cfg.Watch.PollInterval = 300 * time.Millisecond
	}
	if cfg.Storage.BaseDir == "" {
		cfg.Storage.BaseDir = "."
	}
	if cfg.Storage.ProcessedDir == "" {
		cfg.Storage.ProcessedDir = "processed-images"
	}
	if cfg.Queue.Concurrency == 0 {
		cfg.Queue.Concurrency = 1
	}
	if cfg.Queue.BatchSize == 0 {
		cfg.Queue.BatchSize = 16
	}
	if cfg.Queue.Capacity == 0 {
		cfg.Queue.Capacity = 1024
	}
	if cfg.HeaderOCR.Language == "" {
		cfg.HeaderOCR.Language = "spa"
	}
	if cfg.HeaderOCR.CropPct == 0 {
		cfg.HeaderOCR.CropPct = 0.15
	}
	if cfg.HeaderOCR.MaxRetries == 0 {
		cfg.HeaderOCR.MaxRetries = 2
	}
	if cfg.HeaderOCR.RetryDelay == 0 {
		cfg.HeaderOCR.RetryDelay = time.Second
	}
	// Preprocessing toggles default to on unless explicitly set off.
	if !v.IsSet("HEADER_OCR_GREYSCALE") {
		cfg.HeaderOCR.Greyscale = true
	}
	if !v.IsSet("HEADER_OCR_SHARPEN") {
		cfg.HeaderOCR.Sharpen = true
	}
	if !v.IsSet("HEADER_OCR_NORMALIZE") {
		cfg.HeaderOCR.Normalize = true
	}
	if cfg.PlateCrop.TopOffset == 0 {
		cfg.PlateCrop.TopOffset = 0.35
	}
	if cfg.PlateCrop.BottomMargin == 0 {
		cfg.PlateCrop.BottomMargin = 0.05
	}
	if cfg.PlateCrop.LeftMargin == 0 {
		cfg.PlateCrop.LeftMargin = 0.15
	}
	if cfg.PlateCrop.RightMargin == 0 {
		cfg.PlateCrop.RightMargin = 0.15
	}
	if cfg.PlateCrop.TargetWidth == 0 {
		cfg.PlateCrop.TargetWidth = 640
	}
	if cfg.PlateCrop.JPEGQuality == 0 {
		cfg.PlateCrop.JPEGQuality = 80
	}
	if cfg.Ollama.Host == "" {
		cfg.Ollama.Host = "http://127.0.0.1:11434"
	}
	if cfg.Ollama.Model == "" {
		cfg.Ollama.Model = "minicpm-v"
	}
	if cfg.Ollama.KeepAliveValue == "" {
		cfg.Ollama.KeepAliveValue = "10m"
	}
	if cfg.Ollama.KeepAliveInterval == 0 {
		cfg.Ollama.KeepAliveInterval = 4 * time.Minute
	}
	if cfg.Ollama.MaxRetries == 0 {
		cfg.Ollama.MaxRetries = 3
	}
	if cfg.Ollama.RetryDelay == 0 {
		cfg.Ollama.RetryDelay = time.Second
	}
	if cfg.Ollama.RequestTimeout == 0 {
		cfg.Ollama.RequestTimeout = 2 * time.Minute
	}
	if cfg.Ollama.NumCtx == 0 {
		cfg.Ollama.NumCtx = 2048
	}
	if cfg.Ollama.NumPredict == 0 {
		cfg.Ollama.NumPredict = 100
	}
	if cfg.Ollama.Temperature == 0 {
		cfg.Ollama.Temperature = 0.1
	}
	if cfg.Ollama.TopP == 0 {
		cfg.Ollama.TopP = 0.1
	}
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.HeaderOCR.CropPct <= 0 || cfg.HeaderOCR.CropPct > 1 {
		return fmt.Errorf("HEADER_CROP_PCT must be in (0, 1]")
	}
	if cfg.Queue.Concurrency < 1 {
		return fmt.Errorf("QUEUE_CONCURRENCY must be at least 1")
	}
	return nil
}

package common

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/claims-processor/internal/ocr"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Claims   ClaimsConfig
	LogLevel string
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string // empty -> in-memory sqlite
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCAddr       string
	RequestTimeout time.Duration
	AllowedOrigins []string
	MaxUploadBytes int64
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Pdftoppm      string `yaml:"pdftoppm"`
	Tesseract     string `yaml:"tesseract"`
	TesseractLang string `yaml:"lang"`
	TessdataDir   string `yaml:"tessdataDir"`
	PSM           int    `yaml:"psm"`
	OEM           int    `yaml:"oem"`
	DPI           int    `yaml:"dpi"`
	MinTextChars  int    `yaml:"minTextChars"`

	Preprocess ocr.PreprocessConfig `yaml:"preprocess"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     float32
	ClassifyTimeout time.Duration
	ExtractTimeout  time.Duration
}

// ClaimsConfig holds claim pipeline configuration
type ClaimsConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
	JobTTL    time.Duration // how long finished job statuses stay queryable
}

// LoadConfig loads configuration from environment variables.
// A .env file in the working directory is honoured when present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
			GRPCAddr:       getEnv("GRPC_ADDR", ":8080"),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 5*time.Minute),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_MB", 64)) << 20,
		},
		OCR: OCRConfig{
			Pdftoppm:      getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:     getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			TessdataDir:   getEnv("TESSDATA_PREFIX", ""),
			PSM:           getEnvAsInt("TESSERACT_PSM", 0),
			OEM:           getEnvAsInt("TESSERACT_OEM", 0),
			DPI:           getEnvAsInt("OCR_DPI", ocr.DefaultDPI),
			MinTextChars:  getEnvAsInt("OCR_MIN_TEXT_CHARS", ocr.DefaultMinTextChars),
			Preprocess: ocr.PreprocessConfig{
				Threshold:        getEnvAsInt("OCR_THRESHOLD", ocr.DefaultThreshold),
				Contrast:         getEnvAsFloat64("OCR_CONTRAST", ocr.DefaultContrast),
				SharpenRadius:    getEnvAsFloat64("OCR_SHARPEN_RADIUS", ocr.DefaultSharpenRadius),
				SharpenPercent:   getEnvAsInt("OCR_SHARPEN_PERCENT", ocr.DefaultSharpenPercent),
				SharpenThreshold: intPtr(getEnvAsInt("OCR_SHARPEN_THRESHOLD", ocr.DefaultSharpenThreshold)),
			},
		},
		LLM: LLMConfig{
			APIKey:          getEnv("OPENROUTER_API_KEY", ""),
			BaseURL:         baseURLFromEndpoint(getEnv("OPENROUTER_API_URL", "https://openrouter.ai/api/v1")),
			Model:           getEnv("OPENROUTER_MODEL", "openai/gpt-4o"),
			Temperature:     getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			ClassifyTimeout: getEnvAsDuration("LLM_CLASSIFY_TIMEOUT", 30*time.Second),
			ExtractTimeout:  getEnvAsDuration("LLM_EXTRACT_TIMEOUT", 60*time.Second),
		},
		Claims: ClaimsConfig{
			Workers:   getEnvAsInt("CLAIM_WORKERS", 4),
			QueueSize: getEnvAsInt("CLAIM_QUEUE_SIZE", 256),
			Timeout:   getEnvAsDuration("CLAIM_TIMEOUT", 5*time.Minute),
			JobTTL:    getEnvAsDuration("CLAIM_JOB_TTL", time.Hour),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// fileConfig is the optional YAML overlay (CLAIMS_CONFIG_FILE). Only OCR and LLM model
// settings live there; secrets stay in the environment.
type fileConfig struct {
	OCR *OCRConfig `yaml:"ocr"`
	LLM struct {
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base"`
	} `yaml:"llm"`
}

// LoadConfigFile overlays non-zero values from a YAML file onto cfg.
func LoadConfigFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return NewAppError("CONFIG_ERROR", "read config file", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("parse config file %s", path), err)
	}
	if fc.OCR != nil {
		overlayOCR(&cfg.OCR, *fc.OCR)
		if err := cfg.OCR.validate(); err != nil {
			return err
		}
	}
	if fc.LLM.Model != "" {
		cfg.LLM.Model = fc.LLM.Model
	}
	if fc.LLM.BaseURL != "" {
		cfg.LLM.BaseURL = baseURLFromEndpoint(fc.LLM.BaseURL)
	}
	return nil
}

func overlayOCR(dst *OCRConfig, src OCRConfig) {
	setStr := func(d *string, s string) {
		if s != "" {
			*d = s
		}
	}
	setInt := func(d *int, s int) {
		if s != 0 {
			*d = s
		}
	}
	setStr(&dst.Pdftoppm, src.Pdftoppm)
	setStr(&dst.Tesseract, src.Tesseract)
	setStr(&dst.TesseractLang, src.TesseractLang)
	setStr(&dst.TessdataDir, src.TessdataDir)
	setInt(&dst.PSM, src.PSM)
	setInt(&dst.OEM, src.OEM)
	setInt(&dst.DPI, src.DPI)
	setInt(&dst.MinTextChars, src.MinTextChars)
	setInt(&dst.Preprocess.SharpenPercent, src.Preprocess.SharpenPercent)
	setInt(&dst.Preprocess.Threshold, src.Preprocess.Threshold)
	if src.Preprocess.SharpenThreshold != nil {
		dst.Preprocess.SharpenThreshold = src.Preprocess.SharpenThreshold
	}
	if src.Preprocess.Contrast != 0 {
		dst.Preprocess.Contrast = src.Preprocess.Contrast
	}
	if src.Preprocess.SharpenRadius != 0 {
		dst.Preprocess.SharpenRadius = src.Preprocess.SharpenRadius
	}
}

// Extractor converts the OCR section into the extractor's own config.
func (c OCRConfig) Extractor() ocr.Config {
	return ocr.Config{
		Pdftoppm:      c.Pdftoppm,
		Tesseract:     c.Tesseract,
		TesseractLang: c.TesseractLang,
		TessdataDir:   c.TessdataDir,
		PSM:           c.PSM,
		OEM:           c.OEM,
		DPI:           c.DPI,
		MinTextChars:  c.MinTextChars,
		Preprocess:    c.Preprocess,
	}
}

// SlogLevel maps LOG_LEVEL to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func intPtr(v int) *int { return &v }

// baseURLFromEndpoint accepts either an API base or a full chat/completions URL.
func baseURLFromEndpoint(u string) string {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	return strings.TrimSuffix(u, "/chat/completions")
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.LLM.APIKey != "" && c.LLM.Model == "" {
		return NewAppError("CONFIG_ERROR", "OPENROUTER_MODEL is required when OPENROUTER_API_KEY is set", ErrInvalidInput)
	}
	if c.OCR.Preprocess.Contrast < 0 {
		return NewAppError("CONFIG_ERROR", "OCR_CONTRAST must not be negative", ErrInvalidInput)
	}
	if err := c.OCR.validate(); err != nil {
		return err
	}
	if c.Claims.Workers < 1 {
		return NewAppError("CONFIG_ERROR", "CLAIM_WORKERS must be at least 1", ErrInvalidInput)
	}
	return nil
}

// validate range-checks the OCR knobs. Out-of-range values are rejected rather than wrapped
// or clamped.
func (c OCRConfig) validate() error {
	if c.DPI < 1 || c.DPI > 1200 {
		return NewAppError("CONFIG_ERROR", "OCR_DPI must be between 1 and 1200", ErrInvalidInput)
	}
	if c.MinTextChars < 1 {
		return NewAppError("CONFIG_ERROR", "OCR_MIN_TEXT_CHARS must be at least 1", ErrInvalidInput)
	}
	if t := c.Preprocess.Threshold; t < 1 || t > 255 {
		return NewAppError("CONFIG_ERROR", "OCR_THRESHOLD must be between 1 and 255", ErrInvalidInput)
	}
	if c.Preprocess.SharpenPercent < 1 {
		return NewAppError("CONFIG_ERROR", "OCR_SHARPEN_PERCENT must be at least 1", ErrInvalidInput)
	}
	if st := c.Preprocess.SharpenThreshold; st != nil && (*st < 0 || *st > 255) {
		return NewAppError("CONFIG_ERROR", "OCR_SHARPEN_THRESHOLD must be between 0 and 255", ErrInvalidInput)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultAPIKeyPath     = "/run/secrets/api_keys/openrouter"
	APIKeyPathEnvVar      = "OPENROUTER_API_KEY_FILE"
	ConfigPathEnvVar      = "SNAPPY_OCR"
	DefaultScreenshotPath = "screenshot.png"
	DefaultLanguage       = "eng"
	DefaultPageSegMode    = 6
	DefaultDeadlineSec    = 20
	DefaultHotkey         = "Ctrl+Alt+S"
	DefaultBaseURL        = "https://openrouter.ai/api/v1"

	EngineTesseract = "tesseract"
	EngineVision    = "vision"

	AssistantEcho = "echo"
	AssistantLLM  = "llm"
)

type LoadOptions struct {
	APIKeyPathOverride     string
	ScreenshotPathOverride string
	// DisplayIndexOverride is ignored when negative.
	DisplayIndexOverride int
	// CaptureRegionOverride is "x,y,w,h"; empty keeps CAPTURE_REGION.
	CaptureRegionOverride string
	ConfigFile            string
}

type Config struct {
	ScreenshotPath    string
	DisplayIndex      int
	CaptureRegion     string
	Language          string
	PageSegMode       int
	Engine            string
	Assistant         string
	OCRDeadlineSec    int
	APIKey            string
	APIKeyPath        string
	Model             string
	BaseURL           string
	Providers         []string
	Hotkey            string
	EnableFileLogging bool
	LogLevel          string
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Sources in priority order (lowest first):
	// 1) defaults
	// 2) snappy.yaml (working dir or ~/.config/snappy), or opts.ConfigFile
	// 3) .env beside the executable, else the file named by SNAPPY_OCR
	// 4) process environment
	// 5) LoadOptions overrides
	envPath := resolveEnvPath()
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	v := newViper()
	if err := readConfigFile(v, opts.ConfigFile); err != nil {
		return nil, err
	}

	apiKeyPath := resolveAPIKeyPath(opts, dotenvValues)

	cfg := &Config{
		ScreenshotPath:    v.GetString("screenshot_path"),
		DisplayIndex:      v.GetInt("display_index"),
		CaptureRegion:     strings.TrimSpace(v.GetString("capture_region")),
		Language:          strings.TrimSpace(v.GetString("ocr_language")),
		PageSegMode:       v.GetInt("ocr_psm"),
		Engine:            resolveChoice(v.GetString("ocr_engine"), EngineTesseract, EngineTesseract, EngineVision),
		Assistant:         resolveChoice(v.GetString("assistant"), AssistantEcho, AssistantEcho, AssistantLLM),
		OCRDeadlineSec:    v.GetInt("ocr_deadline_sec"),
		APIKey:            resolveAPIKey(apiKeyPath),
		APIKeyPath:        apiKeyPath,
		Model:             v.GetString("model"),
		BaseURL:           v.GetString("llm_base_url"),
		Providers:         splitList(v.GetString("providers")),
		Hotkey:            strings.TrimSpace(v.GetString("hotkey")),
		EnableFileLogging: v.GetBool("enable_file_logging"),
		LogLevel:          strings.ToLower(v.GetString("log_level")),
	}

	if p := strings.TrimSpace(opts.ScreenshotPathOverride); p != "" {
		cfg.ScreenshotPath = p
	}
	if opts.DisplayIndexOverride >= 0 {
		cfg.DisplayIndex = opts.DisplayIndexOverride
	}
	if r := strings.TrimSpace(opts.CaptureRegionOverride); r != "" {
		cfg.CaptureRegion = r
	}

	normalize(cfg)
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("screenshot_path", DefaultScreenshotPath)
	v.SetDefault("display_index", 0)
	v.SetDefault("capture_region", "")
	v.SetDefault("ocr_language", DefaultLanguage)
	v.SetDefault("ocr_psm", DefaultPageSegMode)
	v.SetDefault("ocr_engine", EngineTesseract)
	v.SetDefault("assistant", AssistantEcho)
	v.SetDefault("ocr_deadline_sec", DefaultDeadlineSec)
	v.SetDefault("model", "")
	v.SetDefault("llm_base_url", DefaultBaseURL)
	v.SetDefault("providers", "")
	v.SetDefault("hotkey", DefaultHotkey)
	v.SetDefault("enable_file_logging", false)
	v.SetDefault("log_level", "info")
	v.AutomaticEnv()
	return v
}

func readConfigFile(v *viper.Viper, explicit string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", explicit, err)
		}
		return nil
	}

	v.SetConfigName("snappy")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "snappy"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func normalize(cfg *Config) {
	if strings.TrimSpace(cfg.ScreenshotPath) == "" {
		cfg.ScreenshotPath = DefaultScreenshotPath
	}
	if cfg.DisplayIndex < 0 {
		cfg.DisplayIndex = 0
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	// tesseract accepts 0..13
	if cfg.PageSegMode < 0 || cfg.PageSegMode > 13 {
		cfg.PageSegMode = DefaultPageSegMode
	}
	if cfg.OCRDeadlineSec <= 0 {
		cfg.OCRDeadlineSec = DefaultDeadlineSec
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	execDir := filepath.Dir(execPath)
	exeEnv := filepath.Join(execDir, ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv(ConfigPathEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return map[string]string{}
	}

	return values
}

func resolveAPIKeyPath(opts LoadOptions, dotenvValues map[string]string) string {
	keyPath := DefaultAPIKeyPath

	if envPath := strings.TrimSpace(os.Getenv(APIKeyPathEnvVar)); envPath != "" {
		keyPath = envPath
	}

	if dotenvPath := strings.TrimSpace(dotenvValues[APIKeyPathEnvVar]); dotenvPath != "" {
		keyPath = dotenvPath
	}

	if overridePath := strings.TrimSpace(opts.APIKeyPathOverride); overridePath != "" {
		keyPath = overridePath
	}

	return keyPath
}

func resolveAPIKey(keyPath string) string {
	if data, err := os.ReadFile(keyPath); err == nil {
		if fileKey := strings.TrimSpace(string(data)); fileKey != "" {
			return fileKey
		}
	}

	return os.Getenv("OPENROUTER_API_KEY")
}

// resolveChoice lower-cases value and returns it when it is one of allowed,
// otherwise fallback.
func resolveChoice(value, fallback string, allowed ...string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if value == a {
			return a
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

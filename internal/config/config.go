package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	AccessSecret string
}

type ModelConfig struct {
	Path         string
	InputSize    int
	PlateClassID int
	NMSThreshold float64
}

// ModeConfig is one operating point of the detection filter.
type ModeConfig struct {
	Confidence float64
	Padding    int
	ROIMask    bool
}

type CameraConfig struct {
	ID        string
	Model     string
	Index     int
	Width     int
	Height    int
	FrameSkip int
}

type OCRConfig struct {
	Language  string
	Whitelist string
}

type ExternalServicesConfig struct {
	ANPRServiceURL    string
	ANPRInternalToken string
	RedisURL          string
	RedisChannel      string
}

type Config struct {
	Environment      string
	LogLevel         string
	DebugDir         string
	HTTP             HTTPConfig
	Auth             AuthConfig
	Model            ModelConfig
	Batch            ModeConfig
	Live             ModeConfig
	Camera           CameraConfig
	OCR              OCRConfig
	ExternalServices ExternalServicesConfig
}

// Flags registers the command-line overrides. Flag names map to env keys
// by upper-casing and replacing '-' with '_'.
func Flags(fs *pflag.FlagSet) {
	fs.String("model-path", "", "path to the ONNX plate detection model (MODEL_PATH)")
	fs.Int("camera-index", 0, "capture device index (CAMERA_INDEX)")
	fs.Int("frame-skip", 0, "submit every Nth live frame to the detector (FRAME_SKIP)")
	fs.String("ocr-language", "", "Tesseract language (OCR_LANGUAGE)")
	fs.String("debug-dir", "", "directory for saved crops (DEBUG_DIR)")
	fs.String("log-level", "", "log level (LOG_LEVEL)")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("DEBUG_DIR", ".")
	v.SetDefault("MODEL_INPUT_SIZE", 640)
	v.SetDefault("PLATE_CLASS_ID", 0)
	v.SetDefault("NMS_THRESHOLD", 0.45)
	v.SetDefault("BATCH_CONFIDENCE", 0.3)
	v.SetDefault("BATCH_PADDING", 15)
	v.SetDefault("BATCH_ROI_MASK", false)
	v.SetDefault("LIVE_CONFIDENCE", 0.7)
	v.SetDefault("LIVE_PADDING", 25)
	v.SetDefault("LIVE_ROI_MASK", true)
	v.SetDefault("CAMERA_ID", "camera-0")
	v.SetDefault("CAMERA_INDEX", 0)
	v.SetDefault("CAMERA_WIDTH", 1280)
	v.SetDefault("CAMERA_HEIGHT", 720)
	v.SetDefault("FRAME_SKIP", 5)
	v.SetDefault("OCR_LANGUAGE", "eng")
	v.SetDefault("REDIS_CHANNEL", "anpr:plates")
}

// Load reads app.env, the environment and any changed flags in fs (which
// may be nil). Flags win over the environment.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")

	v.AutomaticEnv()
	setDefaults(v)

	_ = v.ReadInConfig()

	if fs != nil {
		var bindErr error
		fs.Visit(func(f *pflag.Flag) {
			if bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(envKey(f.Name), f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		DebugDir:    v.GetString("DEBUG_DIR"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Model: ModelConfig{
			Path:         v.GetString("MODEL_PATH"),
			InputSize:    v.GetInt("MODEL_INPUT_SIZE"),
			PlateClassID: v.GetInt("PLATE_CLASS_ID"),
			NMSThreshold: v.GetFloat64("NMS_THRESHOLD"),
		},
		Batch: ModeConfig{
			Confidence: v.GetFloat64("BATCH_CONFIDENCE"),
			Padding:    v.GetInt("BATCH_PADDING"),
			ROIMask:    v.GetBool("BATCH_ROI_MASK"),
		},
		Live: ModeConfig{
			Confidence: v.GetFloat64("LIVE_CONFIDENCE"),
			Padding:    v.GetInt("LIVE_PADDING"),
			ROIMask:    v.GetBool("LIVE_ROI_MASK"),
		},
		Camera: CameraConfig{
			ID:        v.GetString("CAMERA_ID"),
			Model:     v.GetString("CAMERA_MODEL"),
			Index:     v.GetInt("CAMERA_INDEX"),
			Width:     v.GetInt("CAMERA_WIDTH"),
			Height:    v.GetInt("CAMERA_HEIGHT"),
			FrameSkip: v.GetInt("FRAME_SKIP"),
		},
		OCR: OCRConfig{
			Language:  v.GetString("OCR_LANGUAGE"),
			Whitelist: v.GetString("OCR_WHITELIST"),
		},
		ExternalServices: ExternalServicesConfig{
			ANPRServiceURL:    v.GetString("ANPR_SERVICE_URL"),
			ANPRInternalToken: v.GetString("ANPR_INTERNAL_TOKEN"),
			RedisURL:          v.GetString("REDIS_URL"),
			RedisChannel:      v.GetString("REDIS_CHANNEL"),
		},
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
		if cfg.Environment == "development" {
			cfg.LogLevel = "debug"
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envKey(flag string) string {
	out := []byte(flag)
	for i, c := range out {
		switch {
		case c == '-':
			out[i] = '_'
		case c >= 'a' && c <= 'z':
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}

func validate(cfg *Config) error {
	for name, conf := range map[string]float64{
		"BATCH_CONFIDENCE": cfg.Batch.Confidence,
		"LIVE_CONFIDENCE":  cfg.Live.Confidence,
		"NMS_THRESHOLD":    cfg.Model.NMSThreshold,
	} {
		if conf < 0 || conf > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, conf)
		}
	}
	if cfg.Batch.Padding < 0 || cfg.Live.Padding < 0 {
		return fmt.Errorf("BATCH_PADDING and LIVE_PADDING must not be negative")
	}
	if cfg.Camera.FrameSkip < 1 {
		return fmt.Errorf("FRAME_SKIP must be at least 1, got %d", cfg.Camera.FrameSkip)
	}
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		return fmt.Errorf("CAMERA_WIDTH and CAMERA_HEIGHT must be positive")
	}
	if cfg.Model.InputSize <= 0 {
		return fmt.Errorf("MODEL_INPUT_SIZE must be positive, got %d", cfg.Model.InputSize)
	}
	return nil
}

// RequireModel checks the settings needed by commands that run detection.
func (c *Config) RequireModel() error {
	if c.Model.Path == "" {
		return fmt.Errorf("MODEL_PATH is required")
	}
	return nil
}

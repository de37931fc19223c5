package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration. It is loaded once at
// startup and passed explicitly into constructors; nothing reads it
// ambiently.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Tasks      TasksConfig      `yaml:"tasks" mapstructure:"tasks"`
	Thresholds ThresholdsConfig `yaml:"thresholds" mapstructure:"thresholds"`
	Media      MediaConfig      `yaml:"media" mapstructure:"media"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Vocab      VocabConfig      `yaml:"vocab" mapstructure:"vocab"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// TaskConfig configures one vision task kind: which model answers it, how
// many images it may be given, and how long one call may take.
type TaskConfig struct {
	Model     string `yaml:"model" mapstructure:"model"`
	MaxImages int    `yaml:"max_images" mapstructure:"max_images"`
	TimeoutMS int    `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// TasksConfig holds per-task-kind settings.
type TasksConfig struct {
	Cut         TaskConfig `yaml:"cut" mapstructure:"cut"`
	Color       TaskConfig `yaml:"color" mapstructure:"color"`
	Primary     TaskConfig `yaml:"primary" mapstructure:"primary"`
	Label       TaskConfig `yaml:"label" mapstructure:"label"`
	Measurement TaskConfig `yaml:"measurement" mapstructure:"measurement"`
}

// ThresholdsConfig collects the tunable confidence thresholds used by
// consolidation and review flagging.
type ThresholdsConfig struct {
	LowConfidence        float64 `yaml:"low_confidence" mapstructure:"low_confidence"`
	Disagreement         float64 `yaml:"disagreement" mapstructure:"disagreement"`
	DisagreementDiscount float64 `yaml:"disagreement_discount" mapstructure:"disagreement_discount"`
	PrimaryMinScore      float64 `yaml:"primary_min_score" mapstructure:"primary_min_score"`
	CleanSubjectBoost    float64 `yaml:"clean_subject_boost" mapstructure:"clean_subject_boost"`
	AcceptableBoost      float64 `yaml:"acceptable_boost" mapstructure:"acceptable_boost"`
}

// MediaConfig configures the media normalizer.
type MediaConfig struct {
	MaxLongEdge          int     `yaml:"max_long_edge" mapstructure:"max_long_edge"`
	JPEGQuality          int     `yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
	TargetVideoKbps      int     `yaml:"target_video_kbps" mapstructure:"target_video_kbps"`
	MaxFileBytes         int64   `yaml:"max_file_bytes" mapstructure:"max_file_bytes"`
	TranscodeTimeoutSecs int     `yaml:"transcode_timeout_secs" mapstructure:"transcode_timeout_secs"`
	ThumbnailOffsetSecs  float64 `yaml:"thumbnail_offset_secs" mapstructure:"thumbnail_offset_secs"`
	FFmpegPath           string  `yaml:"ffmpeg_path" mapstructure:"ffmpeg_path"`
	FFprobePath          string  `yaml:"ffprobe_path" mapstructure:"ffprobe_path"`
	WorkDir              string  `yaml:"work_dir" mapstructure:"work_dir"`
}

// PipelineConfig configures orchestration behavior.
type PipelineConfig struct {
	Version            int      `yaml:"version" mapstructure:"version"`
	WallClockCeilingMS int64    `yaml:"wall_clock_ceiling_ms" mapstructure:"wall_clock_ceiling_ms"`
	RequiredProperties []string `yaml:"required_properties" mapstructure:"required_properties"`
}

// BatchConfig configures batch sweeps over multiple gemstones.
type BatchConfig struct {
	MaxConcurrentGemstones int     `yaml:"max_concurrent_gemstones" mapstructure:"max_concurrent_gemstones"`
	VisionCallsPerSec      float64 `yaml:"vision_calls_per_sec" mapstructure:"vision_calls_per_sec"`
	// GemstoneTimeoutMS bounds one gemstone's shielded run during a batch
	// sweep; a stop signal lets the in-flight gemstone finish up to this
	// deadline before the sweep exits.
	GemstoneTimeoutMS int `yaml:"gemstone_timeout_ms" mapstructure:"gemstone_timeout_ms"`
}

// VocabConfig holds the enumerated cut/color vocabularies that detections
// are validated against. File, when set, points at a YAML file overriding
// the compiled-in defaults.
type VocabConfig struct {
	File   string   `yaml:"file" mapstructure:"file"`
	Cuts   []string `yaml:"cuts" mapstructure:"cuts"`
	Colors []string `yaml:"colors" mapstructure:"colors"`
}

// PricingConfig holds per-model token pricing (USD per million tokens).
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds one model's token rates.
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEMSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "gemscan.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tasks.cut.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("tasks.cut.max_images", 3)
	v.SetDefault("tasks.cut.timeout_ms", 30000)
	v.SetDefault("tasks.cut.max_tokens", 1024)
	v.SetDefault("tasks.color.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("tasks.color.max_images", 10)
	v.SetDefault("tasks.color.timeout_ms", 30000)
	v.SetDefault("tasks.color.max_tokens", 1024)
	v.SetDefault("tasks.primary.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("tasks.primary.max_images", 10)
	v.SetDefault("tasks.primary.timeout_ms", 45000)
	v.SetDefault("tasks.primary.max_tokens", 2048)
	v.SetDefault("tasks.label.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("tasks.label.max_images", 4)
	v.SetDefault("tasks.label.timeout_ms", 30000)
	v.SetDefault("tasks.label.max_tokens", 2048)
	v.SetDefault("tasks.measurement.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("tasks.measurement.max_images", 4)
	v.SetDefault("tasks.measurement.timeout_ms", 30000)
	v.SetDefault("tasks.measurement.max_tokens", 2048)

	v.SetDefault("thresholds.low_confidence", 0.6)
	v.SetDefault("thresholds.disagreement", 0.6)
	v.SetDefault("thresholds.disagreement_discount", 0.8)
	v.SetDefault("thresholds.primary_min_score", 0.5)
	v.SetDefault("thresholds.clean_subject_boost", 0.2)
	v.SetDefault("thresholds.acceptable_boost", 0.1)

	v.SetDefault("media.max_long_edge", 2048)
	v.SetDefault("media.jpeg_quality", 85)
	v.SetDefault("media.target_video_kbps", 4000)
	v.SetDefault("media.max_file_bytes", 50*1024*1024)
	v.SetDefault("media.transcode_timeout_secs", 120)
	v.SetDefault("media.thumbnail_offset_secs", 1.0)
	v.SetDefault("media.ffmpeg_path", "ffmpeg")
	v.SetDefault("media.ffprobe_path", "ffprobe")
	v.SetDefault("media.work_dir", os.TempDir())

	v.SetDefault("pipeline.version", 1)
	v.SetDefault("pipeline.wall_clock_ceiling_ms", 30000)
	v.SetDefault("pipeline.required_properties", []string{"cut", "color", "weight_carats"})

	v.SetDefault("batch.max_concurrent_gemstones", 3)
	v.SetDefault("batch.vision_calls_per_sec", 2.0)
	v.SetDefault("batch.gemstone_timeout_ms", 300000)

	v.SetDefault("vocab.cuts", DefaultCuts)
	v.SetDefault("vocab.colors", DefaultColors)

	v.SetDefault("pricing.anthropic", map[string]any{
		"claude-sonnet-4-5-20250929": map[string]any{
			"input": 3.00, "output": 15.00, "cache_write_mul": 1.25, "cache_read_mul": 0.1,
		},
		"claude-haiku-4-5-20251001": map[string]any{
			"input": 0.80, "output": 4.00, "cache_write_mul": 1.25, "cache_read_mul": 0.1,
		},
	})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Vocab.loadFile(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ByKind returns the task settings for a kind string
// ("cut_detection", "color_detection", ...).
func (t TasksConfig) ByKind(kind string) TaskConfig {
	switch kind {
	case "cut_detection":
		return t.Cut
	case "color_detection":
		return t.Color
	case "primary_selection":
		return t.Primary
	case "label_extraction":
		return t.Label
	case "measurement_extraction":
		return t.Measurement
	default:
		return TaskConfig{}
	}
}

// loadFile overlays vocabularies from the configured YAML file, if any.
func (vc *VocabConfig) loadFile() error {
	if vc.File == "" {
		return nil
	}
	data, err := os.ReadFile(vc.File)
	if err != nil {
		return eris.Wrapf(err, "config: read vocab file %s", vc.File)
	}
	var overlay struct {
		Cuts   []string `yaml:"cuts"`
		Colors []string `yaml:"colors"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return eris.Wrapf(err, "config: parse vocab file %s", vc.File)
	}
	if len(overlay.Cuts) > 0 {
		vc.Cuts = overlay.Cuts
	}
	if len(overlay.Colors) > 0 {
		vc.Colors = overlay.Colors
	}
	return nil
}

// DefaultCuts is the compiled-in cut vocabulary.
var DefaultCuts = []string{
	"round", "oval", "cushion", "emerald", "princess", "pear",
	"marquise", "radiant", "asscher", "heart", "trillion", "baguette",
	"cabochon", "rose", "briolette", "raw",
}

// DefaultColors is the compiled-in color palette.
var DefaultColors = []string{
	"colorless", "white", "yellow", "orange", "pink", "red",
	"purple", "violet", "blue", "teal", "green", "brown",
	"black", "gray", "bi-color", "multi-color",
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

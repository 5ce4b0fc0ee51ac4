// Package config loads runtime configuration from the environment and holds
// the mutable feature flags the admin surface toggles.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"
)

// Config is the typed process configuration. Values come from the
// environment; cmd loads an optional .env first.
type Config struct {
	AdminAddr string

	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string

	DeepgramAPIKey string
	PollyRegion    string
	PollyVoice     string
	GoogleTTSLang  string

	RedisURL   string
	SQLitePath string

	JWTSecret string

	PrimaryFailureThreshold  uint32
	FallbackFailureThreshold uint32
	ModelCallTimeout         time.Duration

	ConfidenceFloor  float64
	VoiceFailStreak  uint32
	VoiceCallTimeout time.Duration

	VoiceQuotaMultiplier int64
	DefaultQuotaUnits    int64
	QuotaWindow          time.Duration

	ExamQuestionCap int
	RetentionMaxAge time.Duration

	FeatureEnabled bool
	VoiceEnabled   bool
}

// Load reads the environment into a Config.
func Load() (Config, error) {
	cfg := Config{
		AdminAddr:                envString("TEACHBACK_ADMIN_ADDR", ":8090"),
		AnthropicAPIKey:          os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:           os.Getenv("TEACHBACK_ANTHROPIC_MODEL"),
		OpenAIAPIKey:             os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:              os.Getenv("TEACHBACK_OPENAI_MODEL"),
		DeepgramAPIKey:           os.Getenv("DEEPGRAM_API_KEY"),
		PollyRegion:              os.Getenv("TEACHBACK_POLLY_REGION"),
		PollyVoice:               os.Getenv("TEACHBACK_POLLY_VOICE"),
		GoogleTTSLang:            envString("TEACHBACK_GOOGLE_TTS_LANG", "en-US"),
		RedisURL:                 os.Getenv("TEACHBACK_REDIS_URL"),
		SQLitePath:               envString("TEACHBACK_SQLITE_PATH", "teachback.sqlite"),
		JWTSecret:                os.Getenv("TEACHBACK_JWT_SECRET"),
		PrimaryFailureThreshold:  uint32(envInt("TEACHBACK_PRIMARY_FAILURE_THRESHOLD", 3)),
		FallbackFailureThreshold: uint32(envInt("TEACHBACK_FALLBACK_FAILURE_THRESHOLD", 3)),
		ModelCallTimeout:         envDuration("TEACHBACK_MODEL_CALL_TIMEOUT", 30*time.Second),
		ConfidenceFloor:          envFloat("TEACHBACK_STT_CONFIDENCE_FLOOR", 0.6),
		VoiceFailStreak:          uint32(envInt("TEACHBACK_VOICE_FAIL_STREAK", 3)),
		VoiceCallTimeout:         envDuration("TEACHBACK_VOICE_CALL_TIMEOUT", 10*time.Second),
		VoiceQuotaMultiplier:     int64(envInt("TEACHBACK_VOICE_QUOTA_MULTIPLIER", 3)),
		DefaultQuotaUnits:        int64(envInt("TEACHBACK_DEFAULT_QUOTA_UNITS", 50)),
		QuotaWindow:              envDuration("TEACHBACK_QUOTA_WINDOW", 24*time.Hour),
		ExamQuestionCap:          envInt("TEACHBACK_EXAM_QUESTION_CAP", 5),
		RetentionMaxAge:          envDuration("TEACHBACK_RETENTION_MAX_AGE", 90*24*time.Hour),
		FeatureEnabled:           envBool("TEACHBACK_FEATURE_ENABLED", true),
		VoiceEnabled:             envBool("TEACHBACK_VOICE_ENABLED", true),
	}
	if cfg.PrimaryFailureThreshold == 0 || cfg.FallbackFailureThreshold == 0 {
		return Config{}, fmt.Errorf("failure thresholds must be positive")
	}
	if cfg.ConfidenceFloor <= 0 || cfg.ConfidenceFloor > 1 {
		return Config{}, fmt.Errorf("confidence floor must be in (0, 1], got %v", cfg.ConfidenceFloor)
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

// Flags are the admin-togglable switches consulted on every session
// creation.
type Flags struct {
	feature atomic.Bool
	voice   atomic.Bool
}

// NewFlags seeds the switches.
func NewFlags(feature, voice bool) *Flags {
	f := &Flags{}
	f.feature.Store(feature)
	f.voice.Store(voice)
	return f
}

// FeatureEnabled reports the teach-back feature switch.
func (f *Flags) FeatureEnabled() bool { return f.feature.Load() }

// VoiceEnabled reports the voice switch.
func (f *Flags) VoiceEnabled() bool { return f.voice.Load() }

// SetFeature flips the teach-back feature switch.
func (f *Flags) SetFeature(enabled bool) { f.feature.Store(enabled) }

// SetVoice flips the voice switch.
func (f *Flags) SetVoice(enabled bool) { f.voice.Store(enabled) }

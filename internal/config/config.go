package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the emergency pipeline.
type Config struct {
	Deepgram DeepgramConfig
	Audio    AudioConfig
	Video    VideoConfig
	Store    StoreConfig
	Phrase   PhraseConfig
	SOS      SOSConfig
	Listen   ListenConfig
	Shake    ShakeConfig
}

type DeepgramConfig struct {
	APIKey     string
	APIBaseURL string
	Model      string
	Language   string
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type VideoConfig struct {
	InputFormat string
	InputDevice string
	OutputDir   string
}

type StoreConfig struct {
	Dir      string
	SyncPath string
	InMemory bool
}

type PhraseConfig struct {
	RulesPath string
}

type SOSConfig struct {
	HoldDuration    time.Duration
	CountdownTicks  int
	TickInterval    time.Duration
	RecordingWindow time.Duration
}

type ListenConfig struct {
	Window    time.Duration
	ChunkSize int
}

type ShakeConfig struct {
	Threshold float64
	Debounce  time.Duration
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	dataDir := envOrDefault("CIVICSOS_DATA_DIR", filepath.Join(home, ".local", "share", "civicsos"))

	cfg := Config{
		Deepgram: DeepgramConfig{
			APIKey:     strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL: envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:      envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:   strings.TrimSpace(os.Getenv("DEEPGRAM_LANGUAGE")),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("CIVICSOS_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("CIVICSOS_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     envOrDefault("CIVICSOS_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      envOrDefaultInt("CIVICSOS_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("CIVICSOS_CHANNELS", 1),
		},
		Video: VideoConfig{
			InputFormat: envOrDefault("CIVICSOS_VIDEO_INPUT_FORMAT", "v4l2"),
			InputDevice: envOrDefault("CIVICSOS_VIDEO_INPUT_DEVICE", "/dev/video0"),
			OutputDir:   envOrDefault("CIVICSOS_MEDIA_DIR", filepath.Join(dataDir, "media")),
		},
		Store: StoreConfig{
			Dir:      envOrDefault("CIVICSOS_STORE_DIR", filepath.Join(dataDir, "store")),
			SyncPath: envOrDefault("CIVICSOS_SYNC_FILE", filepath.Join(dataDir, "sync", "broadcast.json")),
			InMemory: envOrDefaultBool("CIVICSOS_STORE_IN_MEMORY", false),
		},
		Phrase: PhraseConfig{
			RulesPath: strings.TrimSpace(os.Getenv("CIVICSOS_PHRASE_RULES_FILE")),
		},
		SOS: SOSConfig{
			HoldDuration:    envOrDefaultMillis("CIVICSOS_HOLD_MS", 1000),
			CountdownTicks:  envOrDefaultInt("CIVICSOS_COUNTDOWN_TICKS", 3),
			TickInterval:    envOrDefaultMillis("CIVICSOS_TICK_MS", 1000),
			RecordingWindow: envOrDefaultMillis("CIVICSOS_RECORDING_MS", 60000),
		},
		Listen: ListenConfig{
			Window:    envOrDefaultMillis("CIVICSOS_LISTEN_WINDOW_MS", 7000),
			ChunkSize: envOrDefaultInt("CIVICSOS_AUDIO_CHUNK_SIZE", 4096),
		},
		Shake: ShakeConfig{
			Threshold: envOrDefaultFloat("CIVICSOS_SHAKE_THRESHOLD", 15),
			Debounce:  envOrDefaultMillis("CIVICSOS_SHAKE_DEBOUNCE_MS", 1000),
		},
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.SOS.CountdownTicks <= 0 {
		cfg.SOS.CountdownTicks = 3
	}
	if cfg.SOS.TickInterval <= 0 {
		cfg.SOS.TickInterval = time.Second
	}
	if cfg.SOS.RecordingWindow <= 0 {
		cfg.SOS.RecordingWindow = time.Minute
	}
	if cfg.Listen.Window <= 0 {
		cfg.Listen.Window = 7 * time.Second
	}
	if cfg.Listen.ChunkSize < 256 {
		cfg.Listen.ChunkSize = 4096
	}
	if cfg.Shake.Threshold <= 0 {
		cfg.Shake.Threshold = 15
	}

	return cfg, nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envOrDefaultMillis(key string, fallback int) time.Duration {
	ms := envOrDefaultInt(key, fallback)
	if ms < 0 {
		ms = fallback
	}
	return time.Duration(ms) * time.Millisecond
}

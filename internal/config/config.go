package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultCaptureFormats is the recording container preference, most preferred first.
// The empty entry lets the platform pick its default container.
var DefaultCaptureFormats = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/mp4",
	"",
}

// Config holds the client and agent simulator configuration
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	Control  ControlConfig  `yaml:"control"`
	Capture  CaptureConfig  `yaml:"capture"`
	Playback PlaybackConfig `yaml:"playback"`
	Stats    StatsConfig    `yaml:"stats"`
	Logging  LoggingConfig  `yaml:"logging"`
	Sim      SimConfig      `yaml:"sim"`
}

// AgentConfig describes the agent endpoint and the transport heartbeat
type AgentConfig struct {
	URL       string        `yaml:"url"`
	Token     string        `yaml:"token"`
	JWTSecret string        `yaml:"jwt_secret"`
	ClientID  string        `yaml:"client_id"`
	WriteWait time.Duration `yaml:"write_wait"`
	PongWait  time.Duration `yaml:"pong_wait"`
	// PingPeriod of zero disables the heartbeat and read deadlines.
	PingPeriod     time.Duration `yaml:"ping_period"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	MaxMessageSize int64         `yaml:"max_message_size"`
}

// ControlConfig configures the local control API
type ControlConfig struct {
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// CaptureConfig configures microphone capture and encoding
type CaptureConfig struct {
	Formats     []string `yaml:"formats"`
	SampleRate  int      `yaml:"sample_rate"`
	Channels    int      `yaml:"channels"`
	FFmpegPath  string   `yaml:"ffmpeg_path"`
	InputFormat string   `yaml:"input_format"`
	InputDevice string   `yaml:"input_device"`
}

// PlaybackConfig configures reassembly and playback
type PlaybackConfig struct {
	ReassemblyWindow time.Duration `yaml:"reassembly_window"`
	UnitTimeout      time.Duration `yaml:"unit_timeout"`
	SampleRate       int           `yaml:"sample_rate"`
	FFplayPath       string        `yaml:"ffplay_path"`
	Volume           int           `yaml:"volume"`
}

// StatsConfig selects where usage statistics are persisted
type StatsConfig struct {
	Backend       string `yaml:"backend"`
	File          string `yaml:"file"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SimConfig configures the development agent endpoint
type SimConfig struct {
	Address    string        `yaml:"address"`
	AudioFile  string        `yaml:"audio_file"`
	ChunkSize  int           `yaml:"chunk_size"`
	ChunkDelay time.Duration `yaml:"chunk_delay"`
	Greeting   string        `yaml:"greeting"`
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	return Config{
		Agent: AgentConfig{
			URL:            "ws://localhost:8000/api/agent/voice",
			ClientID:       "voicecall",
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
			PingPeriod:     54 * time.Second,
			DialTimeout:    10 * time.Second,
			MaxMessageSize: 16 * 1024 * 1024,
		},
		Control: ControlConfig{
			Address: "127.0.0.1:8090",
			Enabled: true,
		},
		Capture: CaptureConfig{
			Formats:    append([]string(nil), DefaultCaptureFormats...),
			SampleRate: 16000,
			Channels:   1,
			FFmpegPath: "ffmpeg",
		},
		Playback: PlaybackConfig{
			ReassemblyWindow: 150 * time.Millisecond,
			UnitTimeout:      2 * time.Minute,
			SampleRate:       24000,
			FFplayPath:       "ffplay",
			Volume:           80,
		},
		Stats: StatsConfig{
			Backend:       "file",
			File:          defaultStatsFile(),
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "voicecall",
			RedisAddr:     "localhost:6379",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Sim: SimConfig{
			Address:    ":8000",
			AudioFile:  "sample_audio.mp3",
			ChunkSize:  1024,
			ChunkDelay: 30 * time.Millisecond,
			Greeting:   "Hi there! This is Sarah from Lifelong. I hope I'm catching you at a good time?",
		},
	}
}

// Load reads .env, an optional YAML file named by CONFIG_FILE, and environment overrides
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.overlayEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) overlayEnv() error {
	c.Agent.URL = getEnv("AGENT_URL", c.Agent.URL)
	c.Agent.Token = getEnv("AGENT_TOKEN", c.Agent.Token)
	c.Agent.JWTSecret = getEnv("AGENT_JWT_SECRET", c.Agent.JWTSecret)
	c.Agent.ClientID = getEnv("CLIENT_ID", c.Agent.ClientID)
	c.Control.Address = getEnv("CONTROL_ADDRESS", c.Control.Address)
	c.Capture.FFmpegPath = getEnv("FFMPEG_PATH", c.Capture.FFmpegPath)
	c.Capture.InputFormat = getEnv("CAPTURE_INPUT_FORMAT", c.Capture.InputFormat)
	c.Capture.InputDevice = getEnv("CAPTURE_INPUT_DEVICE", c.Capture.InputDevice)
	c.Playback.FFplayPath = getEnv("FFPLAY_PATH", c.Playback.FFplayPath)
	c.Stats.Backend = getEnv("STATS_BACKEND", c.Stats.Backend)
	c.Stats.File = getEnv("STATS_FILE", c.Stats.File)
	c.Stats.MongoURI = getEnv("MONGODB_URI", c.Stats.MongoURI)
	c.Stats.MongoDatabase = getEnv("MONGODB_DATABASE", c.Stats.MongoDatabase)
	c.Stats.RedisAddr = getEnv("REDIS_ADDR", c.Stats.RedisAddr)
	c.Stats.RedisPassword = getEnv("REDIS_PASSWORD", c.Stats.RedisPassword)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
	c.Sim.Address = getEnv("SIM_ADDRESS", c.Sim.Address)
	c.Sim.AudioFile = getEnv("SIM_AUDIO_FILE", c.Sim.AudioFile)

	if v, ok := os.LookupEnv("CAPTURE_FORMATS"); ok {
		c.Capture.Formats = ParseFormats(v)
	}
	if v, ok := os.LookupEnv("CONTROL_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CONTROL_ENABLED: %w", err)
		}
		c.Control.Enabled = enabled
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"REASSEMBLY_WINDOW", &c.Playback.ReassemblyWindow},
		{"PLAYBACK_UNIT_TIMEOUT", &c.Playback.UnitTimeout},
		{"AGENT_PING_PERIOD", &c.Agent.PingPeriod},
		{"AGENT_PONG_WAIT", &c.Agent.PongWait},
		{"AGENT_DIAL_TIMEOUT", &c.Agent.DialTimeout},
		{"SIM_CHUNK_DELAY", &c.Sim.ChunkDelay},
	}
	for _, d := range durations {
		v, ok := os.LookupEnv(d.key)
		if !ok || v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

// ParseFormats splits a comma separated preference list. A literal "default"
// entry stands for the platform default container.
func ParseFormats(v string) []string {
	parts := strings.Split(v, ",")
	formats := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if strings.EqualFold(p, "default") {
			p = ""
		}
		formats = append(formats, p)
	}
	return formats
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if c.Agent.URL == "" {
		return fmt.Errorf("agent url cannot be empty")
	}
	if !strings.HasPrefix(c.Agent.URL, "ws://") && !strings.HasPrefix(c.Agent.URL, "wss://") {
		return fmt.Errorf("agent url must use ws:// or wss://, got %s", c.Agent.URL)
	}
	if c.Agent.PingPeriod > 0 && c.Agent.PingPeriod >= c.Agent.PongWait {
		return fmt.Errorf("agent ping_period must be less than pong_wait")
	}
	if c.Playback.ReassemblyWindow <= 0 {
		return fmt.Errorf("playback reassembly_window must be positive, got %s", c.Playback.ReassemblyWindow)
	}
	if c.Playback.UnitTimeout <= 0 {
		return fmt.Errorf("playback unit_timeout must be positive, got %s", c.Playback.UnitTimeout)
	}
	if len(c.Capture.Formats) == 0 {
		return fmt.Errorf("capture formats cannot be empty")
	}
	if c.Capture.SampleRate < 8000 || c.Capture.SampleRate > 48000 {
		return fmt.Errorf("capture sample_rate must be between 8000 and 48000, got %d", c.Capture.SampleRate)
	}
	switch c.Stats.Backend {
	case "file":
		if c.Stats.File == "" {
			return fmt.Errorf("stats file cannot be empty for the file backend")
		}
	case "mongo":
		if c.Stats.MongoURI == "" {
			return fmt.Errorf("mongo uri cannot be empty for the mongo backend")
		}
	case "redis":
		if c.Stats.RedisAddr == "" {
			return fmt.Errorf("redis addr cannot be empty for the redis backend")
		}
	case "memory":
	default:
		return fmt.Errorf("stats backend must be one of file, mongo, redis, memory, got %q", c.Stats.Backend)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	return nil
}

func defaultStatsFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "voicecall-stats.json"
	}
	return filepath.Join(dir, "voicecall", "stats.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

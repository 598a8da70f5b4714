package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/flamingo/go/internal/dbconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Snapshot backends
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendNATS     = "nats"
	BackendNone     = "none"
)

// DefaultPath is the config file read when FLAMINGO_CONFIG is not set
const DefaultPath = "flamingo.yaml"

type Config struct {
	ServerURL  string `yaml:"server_url"`
	RoomID     string `yaml:"room_id"`
	PlayerName string `yaml:"player_name"`
	SessionID  string `yaml:"session_id"`
	Strict     bool   `yaml:"strict"`
	LogLevel   string `yaml:"log_level"`

	Canvas    CanvasConfig    `yaml:"canvas"`
	Websocket WebsocketConfig `yaml:"websocket"`
	Inspect   InspectConfig   `yaml:"inspect"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Database  dbconfig.Config `yaml:"database"`
}

type CanvasConfig struct {
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	StrokeColor string  `yaml:"stroke_color"`
	LineWidth   float64 `yaml:"line_width"`
}

type WebsocketConfig struct {
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	MaxMessageSize   int           `yaml:"max_message_size"`
}

type InspectConfig struct {
	// Addr is the listen address of the inspector; empty disables it
	Addr string `yaml:"addr"`
}

type SnapshotConfig struct {
	Backend string        `yaml:"backend"`
	Dir     string        `yaml:"dir"`
	NATSURL string        `yaml:"nats_url"`
	Bucket  string        `yaml:"bucket"`
	TTL     time.Duration `yaml:"ttl"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		ServerURL: "http://localhost:8080",
		LogLevel:  "info",
		Canvas: CanvasConfig{
			Width:       800,
			Height:      600,
			StrokeColor: "#000000",
			LineWidth:   3,
		},
		Websocket: WebsocketConfig{
			WriteTimeout:     10 * time.Second,
			ReadTimeout:      60 * time.Second,
			PingInterval:     30 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			MaxMessageSize:   64 * 1024,
		},
		Snapshot: SnapshotConfig{
			Backend: BackendFile,
			Dir:     ".flamingo/snapshots",
			NATSURL: "nats://127.0.0.1:4222",
			Bucket:  "FLAMINGO_SNAPSHOTS",
			TTL:     24 * time.Hour,
		},
		Database: dbconfig.Default(),
	}
}

// Load reads .env, then the YAML file at path, then environment overrides.
// A missing .env or config file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg := Default()
	if path == "" {
		path = getEnv("FLAMINGO_CONFIG", DefaultPath)
	}
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("path", path).Msg("no config file, using defaults")
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServerURL = getEnv("FLAMINGO_SERVER_URL", c.ServerURL)
	c.RoomID = getEnv("FLAMINGO_ROOM_ID", c.RoomID)
	c.PlayerName = getEnv("FLAMINGO_PLAYER_NAME", c.PlayerName)
	c.SessionID = getEnv("FLAMINGO_SESSION_ID", c.SessionID)
	c.Strict = getEnvAsBool("FLAMINGO_STRICT", c.Strict)
	c.LogLevel = getEnv("FLAMINGO_LOG_LEVEL", c.LogLevel)

	c.Canvas.Width = getEnvAsInt("FLAMINGO_CANVAS_WIDTH", c.Canvas.Width)
	c.Canvas.Height = getEnvAsInt("FLAMINGO_CANVAS_HEIGHT", c.Canvas.Height)
	c.Canvas.StrokeColor = getEnv("FLAMINGO_STROKE_COLOR", c.Canvas.StrokeColor)
	c.Canvas.LineWidth = getEnvAsFloat("FLAMINGO_LINE_WIDTH", c.Canvas.LineWidth)

	c.Websocket.WriteTimeout = getEnvAsDuration("FLAMINGO_WS_WRITE_TIMEOUT", c.Websocket.WriteTimeout)
	c.Websocket.ReadTimeout = getEnvAsDuration("FLAMINGO_WS_READ_TIMEOUT", c.Websocket.ReadTimeout)
	c.Websocket.PingInterval = getEnvAsDuration("FLAMINGO_WS_PING_INTERVAL", c.Websocket.PingInterval)
	c.Websocket.HandshakeTimeout = getEnvAsDuration("FLAMINGO_WS_HANDSHAKE_TIMEOUT", c.Websocket.HandshakeTimeout)
	c.Websocket.MaxMessageSize = getEnvAsInt("FLAMINGO_WS_MAX_MESSAGE_SIZE", c.Websocket.MaxMessageSize)

	c.Inspect.Addr = getEnv("FLAMINGO_INSPECT_ADDR", c.Inspect.Addr)

	c.Snapshot.Backend = strings.ToLower(getEnv("FLAMINGO_SNAPSHOT_BACKEND", c.Snapshot.Backend))
	c.Snapshot.Dir = getEnv("FLAMINGO_SNAPSHOT_DIR", c.Snapshot.Dir)
	c.Snapshot.NATSURL = getEnv("NATS_URL", c.Snapshot.NATSURL)
	c.Snapshot.Bucket = getEnv("FLAMINGO_SNAPSHOT_BUCKET", c.Snapshot.Bucket)
	c.Snapshot.TTL = getEnvAsDuration("FLAMINGO_SNAPSHOT_TTL", c.Snapshot.TTL)

	c.Database = c.Database.WithEnv()
}

// Validate checks values that would otherwise fail much later
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server url %q: %w", c.ServerURL, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("invalid server url %q: unsupported scheme %q", c.ServerURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid server url %q: missing host", c.ServerURL)
	}

	switch c.Snapshot.Backend {
	case BackendFile, BackendPostgres, BackendNATS, BackendNone:
	default:
		return fmt.Errorf("unknown snapshot backend %q", c.Snapshot.Backend)
	}

	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		return fmt.Errorf("invalid canvas size %dx%d", c.Canvas.Width, c.Canvas.Height)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Level returns the configured zerolog level, info when unparsable
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// WebsocketURL derives the game endpoint of a room from the HTTP server URL
func (c *Config) WebsocketURL(roomID, playerName string) (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", c.ServerURL, err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/" + url.PathEscape(roomID)
	u.RawPath = ""
	q := url.Values{}
	if playerName != "" {
		q.Set("playerName", playerName)
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring invalid integer")
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring invalid number")
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring invalid boolean")
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring invalid duration")
	}
	return defaultValue
}

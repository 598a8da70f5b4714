package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flamingo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
server_url: https://draw.example.com
room_id: abc123
player_name: naruto
log_level: debug
canvas:
  stroke_color: "#ff0000"
  line_width: 5
websocket:
  ping_interval: 15s
snapshot:
  backend: postgres
database:
  host: db.internal
  database: flamingo_prod
`)
	t.Setenv("FLAMINGO_PLAYER_NAME", "sasuke")
	t.Setenv("FLAMINGO_WS_READ_TIMEOUT", "2m")
	t.Setenv("FLAMINGO_STRICT", "true")
	t.Setenv("DB_PORT", "6543")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://draw.example.com", cfg.ServerURL)
	assert.Equal(t, "abc123", cfg.RoomID)
	assert.Equal(t, "sasuke", cfg.PlayerName)
	assert.True(t, cfg.Strict)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
	assert.Equal(t, "#ff0000", cfg.Canvas.StrokeColor)
	assert.Equal(t, 5.0, cfg.Canvas.LineWidth)
	assert.Equal(t, 800, cfg.Canvas.Width)
	assert.Equal(t, 15*time.Second, cfg.Websocket.PingInterval)
	assert.Equal(t, 2*time.Minute, cfg.Websocket.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Websocket.WriteTimeout)
	assert.Equal(t, BackendPostgres, cfg.Snapshot.Backend)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "flamingo_prod", cfg.Database.Database)
}

func TestInvalidEnvValuesKeepDefaults(t *testing.T) {
	t.Setenv("FLAMINGO_CANVAS_WIDTH", "wide")
	t.Setenv("FLAMINGO_WS_PING_INTERVAL", "often")
	t.Setenv("FLAMINGO_STRICT", "maybe")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Canvas.Width)
	assert.Equal(t, 30*time.Second, cfg.Websocket.PingInterval)
	assert.False(t, cfg.Strict)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		desc string
		file string
		env  map[string]string
	}{
		{desc: "unparsable yaml", file: "server_url: [oops"},
		{desc: "unknown backend", env: map[string]string{"FLAMINGO_SNAPSHOT_BACKEND": "redis"}},
		{desc: "bad scheme", env: map[string]string{"FLAMINGO_SERVER_URL": "ftp://example.com"}},
		{desc: "missing host", env: map[string]string{"FLAMINGO_SERVER_URL": "http://"}},
		{desc: "bad log level", env: map[string]string{"FLAMINGO_LOG_LEVEL": "loud"}},
		{desc: "empty canvas", file: "canvas:\n  width: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "missing.yaml")
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		server string
		room   string
		name   string
		want   string
	}{
		{server: "http://localhost:8080", room: "abc", name: "naruto", want: "ws://localhost:8080/ws/abc?playerName=naruto"},
		{server: "https://draw.example.com/", room: "abc", name: "", want: "wss://draw.example.com/ws/abc"},
		{server: "https://draw.example.com/game", room: "abc", name: "uzumaki naruto", want: "wss://draw.example.com/game/ws/abc?playerName=uzumaki+naruto"},
		{server: "ws://10.0.0.2:9000", room: "r1", name: "a&b", want: "ws://10.0.0.2:9000/ws/r1?playerName=a%26b"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			cfg := Default()
			cfg.ServerURL = tt.server
			got, err := cfg.WebsocketURL(tt.room, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/ubiquity/internal/domain/playlist"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_YAMLDefaults(t *testing.T) {
	path := writeConfig(t, "server.yaml", `
server:
  token: secret
library:
  music_dirs: [/music]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7019", cfg.Server.Addr)
	assert.Equal(t, []string{"/music"}, cfg.Library.MusicDirs)
	assert.True(t, cfg.WatchEnabled())
	assert.Equal(t, 500*time.Millisecond, cfg.Debounce())
	assert.Equal(t, playlist.LoopQueue, cfg.LoopMode())
	assert.True(t, cfg.Gapless())
	assert.Equal(t, 70, cfg.Playback.Volume)
	assert.Equal(t, 10, cfg.Playback.Speed)
	assert.Equal(t, 5, cfg.Playback.VolumeStep)
	assert.Equal(t, 1, cfg.Playback.SpeedStep)
	assert.Equal(t, RememberAuto, cfg.Playback.RememberLastPosition)
	assert.False(t, cfg.Playback.Autoplay)
	assert.Equal(t, "beep", cfg.Backend.Type)
	assert.Equal(t, 2000, cfg.Backend.AboutToFinishMs)
	assert.Equal(t, 1000, cfg.Backend.ProgressIntervalMs)
	assert.Equal(t, "ubiquity.db", cfg.Store.Path)
}

func TestLoad_YAMLExplicitValues(t *testing.T) {
	path := writeConfig(t, "server.yml", `
server:
  addr: 127.0.0.1:9000
  token: secret
  hooks:
    on_started: ["echo up"]
library:
  music_dirs: [/music, /more]
  watch: false
  filters:
    duration_limit_filter:
      enabled: true
      settings:
        min_seconds: 30
playback:
  loop_mode: playlist
  gapless: false
  remember_last_position: "yes"
backend:
  type: process
  settings:
    command: mpv
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, []string{"echo up"}, cfg.Server.Hooks.OnStarted)
	assert.False(t, cfg.WatchEnabled())
	assert.False(t, cfg.Gapless())
	assert.Equal(t, playlist.LoopPlaylist, cfg.LoopMode())
	assert.Equal(t, RememberYes, cfg.Playback.RememberLastPosition)
	assert.True(t, cfg.IsFilterEnabled("duration_limit_filter"))
	assert.False(t, cfg.IsFilterEnabled("hidden_file_filter"))
	assert.Equal(t, 30, cfg.Library.Filters["duration_limit_filter"].Settings["min_seconds"])
	assert.Equal(t, "mpv", cfg.Backend.Settings["command"])
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "server.toml", `
[server]
token = "secret"

[library]
music_dirs = ["/music"]

[library.filters.hidden_file_filter]
enabled = true

[playback]
loop_mode = "single"
volume = 40

[backend]
type = "clock"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, playlist.LoopSingle, cfg.LoopMode())
	assert.Equal(t, 40, cfg.Playback.Volume)
	assert.Equal(t, "clock", cfg.Backend.Type)
	assert.True(t, cfg.IsFilterEnabled("hidden_file_filter"))
	assert.Equal(t, ":7019", cfg.Server.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server.yaml", "library:\n  music_dirs: [/music]\n")
	t.Setenv("UBIQUITY_TOKEN", "from-env")
	t.Setenv("UBIQUITY_MUSIC_DIRS", "/a"+string(os.PathListSeparator)+"/b")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Server.Token)
	assert.Equal(t, []string{"/a", "/b"}, cfg.Library.MusicDirs)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "missing token", file: "c.yaml", content: "library:\n  music_dirs: [/music]\n"},
		{name: "missing music dirs", file: "c.yaml", content: "server:\n  token: x\n"},
		{name: "bad loop mode", file: "c.yaml", content: "server:\n  token: x\nlibrary:\n  music_dirs: [/m]\nplayback:\n  loop_mode: shuffle\n"},
		{name: "bad backend", file: "c.yaml", content: "server:\n  token: x\nlibrary:\n  music_dirs: [/m]\nbackend:\n  type: alsa\n"},
		{name: "volume out of range", file: "c.yaml", content: "server:\n  token: x\nlibrary:\n  music_dirs: [/m]\nplayback:\n  volume: 150\n"},
		{name: "bad remember mode", file: "c.yaml", content: "server:\n  token: x\nlibrary:\n  music_dirs: [/m]\nplayback:\n  remember_last_position: maybe\n"},
		{name: "broken yaml", file: "c.yaml", content: "server: [\n"},
		{name: "broken toml", file: "c.toml", content: "[server\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("UBIQUITY_TOKEN", "")
			t.Setenv("UBIQUITY_MUSIC_DIRS", "")
			_, err := Load(writeConfig(t, tt.file, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

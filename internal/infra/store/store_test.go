package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/ubiquity/internal/domain/playlist"
	"github.com/osa030/ubiquity/internal/domain/track"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ubiquity.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func testTracks() []track.Track {
	a := track.New("/music/a.mp3")
	a.SetArtist("Artist A")
	a.SetAlbum("Album")
	a.SetGenre("Jazz")
	a.Duration = 3*time.Minute + 250*time.Millisecond
	b := track.New("/music/b.flac")
	b.SetTitle("Bee")
	b.Duration = 12 * time.Minute
	return []track.Track{a, b}
}

func TestStore_NoSession(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.LoadSession(context.Background())
	assert.True(t, errors.Is(err, ErrNoSession))
}

func TestStore_SaveAndLoad(t *testing.T) {
	s, path := openTestStore(t)
	ctx := context.Background()
	savedAt := time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC)

	want := Session{
		Tracks:   testTracks(),
		Index:    1,
		LoopMode: playlist.LoopPlaylist,
		Gapless:  true,
		Volume:   55,
		Speed:    12,
		Position: 95 * time.Second,
		SavedAt:  savedAt,
	}
	require.NoError(t, s.SaveSession(ctx, want))

	got, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Tracks, got.Tracks)
	assert.Equal(t, 1, got.Index)
	assert.Equal(t, playlist.LoopPlaylist, got.LoopMode)
	assert.True(t, got.Gapless)
	assert.Equal(t, 55, got.Volume)
	assert.Equal(t, 12, got.Speed)
	assert.Equal(t, 95*time.Second, got.Position)
	assert.True(t, savedAt.Equal(got.SavedAt))

	// survives reopening
	require.NoError(t, s.Close())
	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err = reopened.LoadSession(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Tracks, 2)
}

func TestStore_SaveReplaces(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, Session{Tracks: testTracks(), Index: 1, LoopMode: playlist.LoopSingle}))
	require.NoError(t, s.SaveSession(ctx, Session{Tracks: testTracks()[:1], Index: -1, LoopMode: playlist.LoopQueue}))

	got, err := s.LoadSession(ctx)
	require.NoError(t, err)
	require.Len(t, got.Tracks, 1)
	assert.Equal(t, "/music/a.mp3", got.Tracks[0].FilePath)
	assert.Equal(t, -1, got.Index)
	assert.Equal(t, playlist.LoopQueue, got.LoopMode)
}

func TestStore_IndexBeyondTracks(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, Session{Index: 3, LoopMode: playlist.LoopQueue}))
	got, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.Tracks)
	assert.Equal(t, -1, got.Index)
}

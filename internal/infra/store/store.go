// Package store persists the player session in SQLite.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ubiquity/internal/domain/playlist"
	"github.com/osa030/ubiquity/internal/domain/track"
)

// ErrNoSession is returned by LoadSession before the first save.
var ErrNoSession = errors.New("no saved session")

// Session is the state restored at start-up.
type Session struct {
	Tracks   []track.Track
	Index    int // -1 when no track was selected
	LoopMode playlist.LoopMode
	Gapless  bool
	Volume   int
	Speed    int
	Position time.Duration // Position within the track at Index
	SavedAt  time.Time
}

// Store wraps the session database. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create tables")
	}
	zlog.Info().Msgf("store: opened: path=%s", path)
	return s, nil
}

func (s *Store) createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			current_index INTEGER NOT NULL,
			loop_mode TEXT NOT NULL,
			gapless BOOLEAN NOT NULL,
			volume INTEGER NOT NULL,
			speed INTEGER NOT NULL,
			position_ms INTEGER NOT NULL,
			saved_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS session_tracks (
			position INTEGER PRIMARY KEY,
			file_path TEXT NOT NULL,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			album TEXT NOT NULL,
			genre TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		);`,
	}
	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return err
		}
	}
	return nil
}

// SaveSession replaces the saved session.
func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_tracks`); err != nil {
		return errors.Wrap(err, "failed to clear tracks")
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO session_tracks (position, file_path, title, artist, album, genre, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare insert")
	}
	defer stmt.Close()

	for i, t := range sess.Tracks {
		if _, err := stmt.ExecContext(ctx, i, t.FilePath, t.Title, t.Artist, t.Album, t.Genre, t.Duration.Milliseconds()); err != nil {
			return errors.Wrapf(err, "failed to save track %s", t.FilePath)
		}
	}

	savedAt := sess.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO session (id, current_index, loop_mode, gapless, volume, speed, position_ms, saved_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			current_index = excluded.current_index,
			loop_mode = excluded.loop_mode,
			gapless = excluded.gapless,
			volume = excluded.volume,
			speed = excluded.speed,
			position_ms = excluded.position_ms,
			saved_at = excluded.saved_at`,
		sess.Index, sess.LoopMode.String(), sess.Gapless, sess.Volume, sess.Speed,
		sess.Position.Milliseconds(), savedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "failed to save session")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit session")
	}
	zlog.Debug().Msgf("store: session saved: tracks=%d index=%d", len(sess.Tracks), sess.Index)
	return nil
}

// LoadSession returns the saved session or ErrNoSession.
func (s *Store) LoadSession(ctx context.Context) (*Session, error) {
	var (
		sess       Session
		loopMode   string
		positionMs int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT current_index, loop_mode, gapless, volume, speed, position_ms, saved_at
		FROM session WHERE id = 1`).
		Scan(&sess.Index, &loopMode, &sess.Gapless, &sess.Volume, &sess.Speed, &positionMs, &sess.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load session")
	}
	sess.Position = time.Duration(positionMs) * time.Millisecond

	mode, err := playlist.ParseLoopMode(loopMode)
	if err != nil {
		zlog.Warn().Err(err).Msg("store: stored loop mode ignored")
		mode = playlist.LoopQueue
	}
	sess.LoopMode = mode

	rows, err := s.db.QueryContext(ctx, `
		SELECT file_path, title, artist, album, genre, duration_ms
		FROM session_tracks ORDER BY position`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load tracks")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			path, title, artist, album, genre string
			durationMs                        int64
		)
		if err := rows.Scan(&path, &title, &artist, &album, &genre, &durationMs); err != nil {
			return nil, errors.Wrap(err, "failed to scan track")
		}
		t := track.New(path)
		t.Title = title
		t.Artist = artist
		t.Album = album
		t.Genre = genre
		t.Duration = time.Duration(durationMs) * time.Millisecond
		sess.Tracks = append(sess.Tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read tracks")
	}

	if sess.Index >= len(sess.Tracks) {
		sess.Index = -1
	}
	return &sess, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lokal-ai/vidtrack/session"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned when no run has the requested ID
var ErrRunNotFound = errors.New("run not found")

// Store persists session results in a SQLite database
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and migrates it to the latest
// schema.  Use ":memory:" for a throwaway database
func Open(path string) (*Store, error) {

	db, err := sql.Open("sqlite", path)

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// a single connection keeps an in memory database alive and serialises
	// writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// migrateUp applies all pending migrations
func (s *Store) migrateUp() error {

	m, err := s.newMigrate()

	if err != nil {
		return err
	}

	// closing m would close the underlying database connection

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}

// Version returns the current schema version, 0 if no migrations have been
// applied
func (s *Store) Version() (uint, error) {

	m, err := s.newMigrate()

	if err != nil {
		return 0, err
	}

	version, dirty, err := m.Version()

	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}

	if err != nil {
		return 0, err
	}

	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}

	return version, nil
}

// newMigrate creates a migrate instance over the embedded migrations
func (s *Store) newMigrate() (*migrate.Migrate, error) {

	src, err := iofs.New(migrationsFS, "migrations")

	if err != nil {
		return nil, fmt.Errorf("failed to open migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})

	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)

	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m.Log = migrateLogger{}

	return m, nil
}

// migrateLogger implements migrate.Logger
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool {
	return false
}

// SaveResult stores the run summary and every emitted track snapshot in a
// single transaction.  Saving a run ID twice replaces the earlier result
func (s *Store) SaveResult(ctx context.Context, res *session.Result) error {

	tx, err := s.db.BeginTx(ctx, nil)

	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, res.RunID); err != nil {
		return fmt.Errorf("failed to replace run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, video, total_frames, total_tracks, total_detections,
			avg_track_duration, max_track_id, detector_errors
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID,
		res.Video,
		res.TotalFrames,
		res.TotalTracks,
		res.Stats.TotalDetections,
		res.Stats.AvgTrackDuration,
		int64(res.Stats.MaxTrackID),
		res.DetectorErrors,
	)

	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO track_observations (
			run_id, frame_number, timestamp_ms, track_id, class_id, class_name,
			x1, y1, x2, y2, confidence, hits, age, state,
			stability, consistency, quality
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	if err != nil {
		return fmt.Errorf("failed to prepare observation insert: %w", err)
	}

	defer stmt.Close()

	for _, fr := range res.FrameResults {
		for _, snap := range fr.Tracks {

			_, err := stmt.ExecContext(ctx,
				res.RunID,
				fr.FrameNumber,
				fr.TimestampMS,
				int64(snap.TrackID),
				snap.ClassID,
				snap.ClassName,
				snap.Box.X1(),
				snap.Box.Y1(),
				snap.Box.X2(),
				snap.Box.Y2(),
				snap.Confidence,
				snap.Hits,
				snap.Age,
				snap.State.String(),
				snap.Quality.Stability,
				snap.Quality.Consistency,
				snap.Quality.Quality,
			)

			if err != nil {
				return fmt.Errorf("failed to insert track %d on frame %d: %w", snap.TrackID, fr.FrameNumber, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result: %w", err)
	}

	return nil
}

// Run is the stored summary of a session result
type Run struct {
	RunID            string
	Video            string
	TotalFrames      int
	TotalTracks      int
	TotalDetections  int
	AvgTrackDuration float64
	MaxTrackID       uint64
	DetectorErrors   int
}

// GetRun returns the stored summary of a run
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {

	var (
		r     Run
		maxID int64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, video, total_frames, total_tracks, total_detections,
			avg_track_duration, max_track_id, detector_errors
		FROM runs WHERE run_id = ?`, runID).Scan(
		&r.RunID,
		&r.Video,
		&r.TotalFrames,
		&r.TotalTracks,
		&r.TotalDetections,
		&r.AvgTrackDuration,
		&maxID,
		&r.DetectorErrors,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	if err != nil {
		return Run{}, fmt.Errorf("failed to query run: %w", err)
	}

	r.MaxTrackID = uint64(maxID)

	return r, nil
}

// TrackDurations returns the number of frames each track of a run was
// emitted in
func (s *Store) TrackDurations(ctx context.Context, runID string) (map[uint64]int, error) {

	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT track_id, COUNT(*)
		FROM track_observations
		WHERE run_id = ?
		GROUP BY track_id`, runID)

	if err != nil {
		return nil, fmt.Errorf("failed to query track durations: %w", err)
	}

	defer rows.Close()

	durations := make(map[uint64]int)

	for rows.Next() {
		var (
			id    int64
			count int
		)

		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("failed to scan track duration: %w", err)
		}

		durations[uint64(id)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read track durations: %w", err)
	}

	return durations, nil
}

// DeleteRun removes a run and its observations
func (s *Store) DeleteRun(ctx context.Context, runID string) error {

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)

	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	return nil
}

// Package store records received batches and samples in SQLite, grouped by
// receiver session.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/notnil/tofcan"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a SQLite recorder bound to one session.
type Store struct {
	db      *sql.DB
	session string
}

// Open opens (creating if needed) the database at path, migrates it to the
// latest schema and starts a new session with the given description.
func Open(ctx context.Context, path, description string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, session: uuid.NewString()}
	_, err = db.ExecContext(ctx,
		`INSERT INTO sessions (id, description, started_at) VALUES (?, ?, ?)`,
		s.session, description, time.Now().UTC())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: start session: %w", err)
	}
	return s, nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("store: migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("store: sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return m, nil
}

// migrateUp applies pending migrations. The migrate instance is not closed
// since that would close db.
func migrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migration up failed: %w", err)
	}
	return nil
}

// Version returns the applied schema version.
func (s *Store) Version() (version uint, dirty bool, err error) {
	m, err := newMigrate(s.db)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Session returns the id of the current session.
func (s *Store) Session() string { return s.session }

func (s *Store) Close() error { return s.db.Close() }

func encodeSamples(samples []int16) []byte {
	b := make([]byte, 2*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(v))
	}
	return b
}

func decodeSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

// RecordBatch stores a batch received at at. Samples are kept up to the
// highest offset written, so an interrupted batch keeps every sample that
// arrived even when earlier packets are missing.
func (s *Store) RecordBatch(ctx context.Context, sb tofcan.SensorBatch, at time.Time) error {
	b := sb.Batch
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (session_id, sensor, batch_id, valid, data_length,
			packets_received, packets_expected, samples, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.session, sb.Sensor, b.BatchID, sb.Valid, b.DataLength,
		b.PacketsReceived, b.PacketsExpected, encodeSamples(b.Received()), at.UTC())
	if err != nil {
		return fmt.Errorf("store: record batch: %w", err)
	}
	return nil
}

// RecordSample stores a single sample from sensor received at at.
func (s *Store) RecordSample(ctx context.Context, sensor int, smp tofcan.Sample, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO samples (session_id, sensor, distance, below_threshold, received_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.session, sensor, smp.Distance, smp.BelowThreshold, at.UTC())
	if err != nil {
		return fmt.Errorf("store: record sample: %w", err)
	}
	return nil
}

// RecordedSample is a stored sample.
type RecordedSample struct {
	Sensor     int
	Sample     tofcan.Sample
	ReceivedAt time.Time
}

// RecordedBatch is a stored batch.
type RecordedBatch struct {
	tofcan.SensorBatch
	ReceivedAt time.Time
}

// Batches returns up to limit batches of the current session from sensor,
// newest first. A negative sensor matches every sensor.
func (s *Store) Batches(ctx context.Context, sensor, limit int) ([]RecordedBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sensor, batch_id, valid, data_length, packets_received,
			packets_expected, samples, received_at
		FROM batches
		WHERE session_id = ? AND (? < 0 OR sensor = ?)
		ORDER BY id DESC
		LIMIT ?`,
		s.session, sensor, sensor, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query batches: %w", err)
	}
	defer rows.Close()

	var out []RecordedBatch
	for rows.Next() {
		var (
			rb   RecordedBatch
			blob []byte
		)
		b := &rb.Batch
		if err := rows.Scan(&rb.Sensor, &b.BatchID, &rb.Valid, &b.DataLength,
			&b.PacketsReceived, &b.PacketsExpected, &blob, &rb.ReceivedAt); err != nil {
			return nil, fmt.Errorf("store: scan batch: %w", err)
		}
		b.Extent = copy(b.Data[:], decodeSamples(blob))
		out = append(out, rb)
	}
	return out, rows.Err()
}

// Samples returns up to limit samples of the current session from sensor,
// newest first. A negative sensor matches every sensor.
func (s *Store) Samples(ctx context.Context, sensor, limit int) ([]RecordedSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sensor, distance, below_threshold, received_at
		FROM samples
		WHERE session_id = ? AND (? < 0 OR sensor = ?)
		ORDER BY id DESC
		LIMIT ?`,
		s.session, sensor, sensor, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query samples: %w", err)
	}
	defer rows.Close()

	var out []RecordedSample
	for rows.Next() {
		var rs RecordedSample
		if err := rows.Scan(&rs.Sensor, &rs.Sample.Distance, &rs.Sample.BelowThreshold, &rs.ReceivedAt); err != nil {
			return nil, fmt.Errorf("store: scan sample: %w", err)
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Counts returns the number of batches and samples in the current session.
func (s *Store) Counts(ctx context.Context) (batches, samples int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM batches WHERE session_id = ?),
		       (SELECT COUNT(*) FROM samples WHERE session_id = ?)`,
		s.session, s.session).Scan(&batches, &samples)
	if err != nil {
		return 0, 0, fmt.Errorf("store: count: %w", err)
	}
	return batches, samples, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"

	"github.com/clipflow/clipflow/internal/domain"
	"github.com/clipflow/clipflow/internal/port"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sql.DB
}

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
				"PRAGMA foreign_keys = ON",
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

func NewStore(dataDir string) (*Store, error) {
	registerHook()

	dbPath := filepath.Join(dataDir, "clipflow.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection for SQLite (WAL allows concurrent reads but only one writer)
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

const mediaColumns = `id, filename, bucket, object_key, source_kind, source_ref,
	lifecycle_status, processing_status, processing_progress, processing_step,
	hls_ready, hls_master_key, thumbnail_key, active_version, posted_at, uploaded_at`

func (s *Store) Save(m *domain.MediaItem) error {
	_, err := s.db.Exec(`INSERT INTO media (`+mediaColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			bucket = excluded.bucket,
			object_key = excluded.object_key,
			source_kind = excluded.source_kind,
			source_ref = excluded.source_ref,
			lifecycle_status = excluded.lifecycle_status,
			active_version = excluded.active_version`,
		m.ID, m.Filename, m.Bucket, m.ObjectKey,
		string(m.Source.Kind), sourceRef(m.Source),
		string(m.Lifecycle), string(m.Processing), m.Progress, m.Step,
		m.HLSReady, m.HLSMasterKey, m.ThumbnailKey, m.ActiveVersion,
		nullTime(m.PostedAt), m.UploadedAt)
	return err
}

func (s *Store) Get(id string) (*domain.MediaItem, error) {
	row := s.db.QueryRow(`SELECT `+mediaColumns+` FROM media WHERE id = ?`, id)
	m, err := scanMedia(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM media WHERE id = ?`, id)
	return err
}

func (s *Store) UpdateProcessing(id string, status domain.ProcessingStatus, progress int, step string) error {
	res, err := s.db.Exec(`UPDATE media
		SET processing_status = ?, processing_progress = ?, processing_step = ?
		WHERE id = ?`,
		string(status), progress, step, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) SetSourceLocator(id string, src domain.SourceLocator) error {
	res, err := s.db.Exec(`UPDATE media SET source_kind = ?, source_ref = ? WHERE id = ?`,
		string(src.Kind), sourceRef(src), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) MarkCompleted(id string, masterKey string) error {
	res, err := s.db.Exec(`UPDATE media
		SET processing_status = ?, processing_progress = 100, processing_step = '',
			hls_ready = 1, hls_master_key = ?
		WHERE id = ?`,
		string(domain.ProcessingCompleted), masterKey, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) SetThumbnailKey(id string, key string) error {
	res, err := s.db.Exec(`UPDATE media SET thumbnail_key = ? WHERE id = ?`, key, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) MarkPosted(id string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE media SET lifecycle_status = ?, posted_at = ? WHERE id = ?`,
		string(domain.LifecyclePosted), at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) ListStuck() ([]*domain.MediaItem, error) {
	rows, err := s.db.Query(`SELECT `+mediaColumns+` FROM media
		WHERE processing_status IN (?, ?) AND hls_ready = 0
		ORDER BY uploaded_at ASC`,
		string(domain.ProcessingQueued), string(domain.ProcessingActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMedia(rows)
}

func (s *Store) ListStalePosted(cutoff time.Time) ([]*domain.MediaItem, error) {
	rows, err := s.db.Query(`SELECT `+mediaColumns+` FROM media
		WHERE lifecycle_status = ? AND active_version = 1
			AND posted_at IS NOT NULL AND posted_at < ?
		ORDER BY posted_at ASC`,
		string(domain.LifecyclePosted), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMedia(rows)
}

func (s *Store) AddFeedback(mediaID, body string, at time.Time) error {
	_, err := s.db.Exec(`INSERT INTO feedback (media_id, body, created_at) VALUES (?, ?, ?)`,
		mediaID, body, at)
	return err
}

func (s *Store) HasFeedbackSince(mediaID string, since time.Time) (bool, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM feedback WHERE media_id = ? AND created_at > ?`,
		mediaID, since).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) RecordPostedStat(mediaID string, postedAt time.Time) error {
	_, err := s.db.Exec(`INSERT INTO media_stats (media_id, posted_at, recorded_at) VALUES (?, ?, ?)`,
		mediaID, postedAt, time.Now())
	return err
}

func (s *Store) CountPostedStats() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM media_stats`).Scan(&n)
	return n, err
}

// Helper conversions

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedia(row rowScanner) (*domain.MediaItem, error) {
	var m domain.MediaItem
	var kind, ref string
	var posted sql.NullTime
	err := row.Scan(
		&m.ID, &m.Filename, &m.Bucket, &m.ObjectKey, &kind, &ref,
		&m.Lifecycle, &m.Processing, &m.Progress, &m.Step,
		&m.HLSReady, &m.HLSMasterKey, &m.ThumbnailKey, &m.ActiveVersion,
		&posted, &m.UploadedAt)
	if err != nil {
		return nil, err
	}
	m.Source = locatorFromRow(kind, ref)
	if posted.Valid {
		m.PostedAt = posted.Time
	}
	return &m, nil
}

func collectMedia(rows *sql.Rows) ([]*domain.MediaItem, error) {
	var result []*domain.MediaItem
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func sourceRef(src domain.SourceLocator) string {
	if src.Kind == domain.SourceLocal {
		return src.Path
	}
	return src.Key
}

func locatorFromRow(kind, ref string) domain.SourceLocator {
	if domain.SourceKind(kind) == domain.SourceLocal {
		return domain.LocalSource(ref)
	}
	return domain.RemoteSource(ref)
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ port.MediaStore = (*Store)(nil)

package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// timestampLayout has fixed-width fractions so stored values sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Database struct {
	db *sql.DB
}

type PlayRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"-"`
	Board     string    `json:"board"`
	Category  string    `json:"category"`
	ChartDate string    `json:"chartDate"`
	Ranking   int       `json:"ranking"`
	VideoID   string    `json:"videoId"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	PlayedAt  time.Time `json:"playedAt"`
}

type MostPlayedRecord struct {
	VideoID    string    `json:"videoId"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist"`
	PlayCount  int       `json:"playCount"`
	LastPlayed time.Time `json:"lastPlayed"`
}

// New opens (creating if needed) the sqlite database at dbPath and runs migrations.
func New(dbPath string) (*Database, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	d := &Database{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Infof("Database initialized at %s", dbPath)
	return d, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) Ping() error {
	return d.db.Ping()
}

func (d *Database) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS preferences (
			session_id TEXT NOT NULL,
			pref_key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (session_id, pref_key)
		)`,
		`CREATE TABLE IF NOT EXISTS play_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			board TEXT NOT NULL,
			category TEXT NOT NULL,
			chart_date TEXT NOT NULL,
			ranking INTEGER NOT NULL DEFAULT 0,
			video_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			artist TEXT NOT NULL DEFAULT '',
			played_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_play_history_session ON play_history(session_id, played_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_play_history_board_video ON play_history(board, video_id)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	return nil
}

// GetPreference returns the stored value for (sessionID, key).
func (d *Database) GetPreference(sessionID, key string) (string, bool, error) {
	query, args, err := sq.Select("value").
		From("preferences").
		Where(sq.Eq{"session_id": sessionID, "pref_key": key}).
		ToSql()
	if err != nil {
		return "", false, err
	}

	var value string
	err = d.db.QueryRow(query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read preference: %w", err)
	}
	return value, true, nil
}

// SetPreference upserts (sessionID, key) = value.
func (d *Database) SetPreference(sessionID, key, value string) error {
	query, args, err := sq.Insert("preferences").
		Columns("session_id", "pref_key", "value", "updated_at").
		Values(sessionID, key, value, time.Now().UTC().Format(timestampLayout)).
		Suffix("ON CONFLICT(session_id, pref_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := d.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to write preference: %w", err)
	}
	return nil
}

// RecordPlay inserts a play record.
func (d *Database) RecordPlay(r PlayRecord) error {
	playedAt := r.PlayedAt
	if playedAt.IsZero() {
		playedAt = time.Now()
	}
	query, args, err := sq.Insert("play_history").
		Columns("session_id", "board", "category", "chart_date", "ranking", "video_id", "title", "artist", "played_at").
		Values(r.SessionID, r.Board, r.Category, r.ChartDate, r.Ranking, r.VideoID, r.Title, r.Artist,
			playedAt.UTC().Format(timestampLayout)).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := d.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}
	return nil
}

// GetHistory returns the most recent plays for a session, newest first.
func (d *Database) GetHistory(sessionID string, limit int) ([]PlayRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	query, args, err := sq.Select("id", "session_id", "board", "category", "chart_date", "ranking",
		"video_id", "title", "artist", "played_at").
		From("play_history").
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("played_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []PlayRecord
	for rows.Next() {
		var r PlayRecord
		var playedAt string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Board, &r.Category, &r.ChartDate, &r.Ranking,
			&r.VideoID, &r.Title, &r.Artist, &playedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		r.PlayedAt = parseTimestamp(playedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetMostPlayed returns the most played tracks on a board across all sessions.
func (d *Database) GetMostPlayed(board string, limit int) ([]MostPlayedRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	query, args, err := sq.Select("video_id", "MAX(title)", "MAX(artist)", "COUNT(*) AS play_count", "MAX(played_at) AS last_played").
		From("play_history").
		Where(sq.Eq{"board": board}).
		GroupBy("video_id").
		OrderBy("play_count DESC", "last_played DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query most played: %w", err)
	}
	defer rows.Close()

	var records []MostPlayedRecord
	for rows.Next() {
		var r MostPlayedRecord
		var lastPlayed string
		if err := rows.Scan(&r.VideoID, &r.Title, &r.Artist, &r.PlayCount, &lastPlayed); err != nil {
			return nil, fmt.Errorf("failed to scan most played row: %w", err)
		}
		r.LastPlayed = parseTimestamp(lastPlayed)
		records = append(records, r)
	}
	return records, rows.Err()
}

func parseTimestamp(s string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, layout := range formats {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	log.Warnf("failed to parse timestamp '%s' with all known formats", s)
	return time.Time{}
}

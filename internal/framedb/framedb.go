// Package framedb persists decoded frames and their pixels to SQLite for
// offline analysis and the recent-frames API. Frames are grouped into capture
// sessions so several device runs can share one database file.
package framedb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/headtrack/internal/trackir"
)

type DB struct {
	*sql.DB

	sessionID string
}

// Open opens (creating if needed) the database at path and brings the schema
// up to date.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open frame database: %w", err)
	}

	db := &DB{DB: sqlDB}
	if err := db.migrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// StartSession records a new capture session and scopes subsequent
// RecordFrame calls to it.
func (db *DB) StartSession(vendorID, productID uint16, notes string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO sessions (id, vendor_id, product_id, started_at, notes) VALUES (?, ?, ?, ?, ?)`,
		id, vendorID, productID, time.Now().UnixNano(), notes,
	)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	db.sessionID = id
	return id, nil
}

// EndSession closes the current capture session.
func (db *DB) EndSession() error {
	if db.sessionID == "" {
		return nil
	}
	_, err := db.Exec(
		`UPDATE sessions SET ended_at = ? WHERE id = ?`,
		time.Now().UnixNano(), db.sessionID,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	db.sessionID = ""
	return nil
}

// RecordFrame stores one decoded frame and, for data frames, its pixels.
func (db *DB) RecordFrame(f trackir.Frame) error {
	if db.sessionID == "" {
		return fmt.Errorf("framedb: no open session")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("record frame: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO frames (session_id, type_code, length, payload, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		db.sessionID, f.Raw()[1], f.Length(), f.Payload(), f.Timestamp().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert frame: %w", err)
	}

	if data, ok := f.(*trackir.DataFrame); ok && len(data.Pixels) > 0 {
		frameID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("frame id: %w", err)
		}
		for i, p := range data.Pixels {
			_, err := tx.Exec(
				`INSERT INTO pixels (frame_id, ordinal, sensor_row, x, y, delim) VALUES (?, ?, ?, ?, ?, ?)`,
				frameID, i, p.Row, p.X, p.Y, p.Delim,
			)
			if err != nil {
				return fmt.Errorf("insert pixel %d: %w", i, err)
			}
		}
	}

	return tx.Commit()
}

// FrameRecord is one stored frame row, with its pixel count resolved.
type FrameRecord struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	TypeCode   byte      `json:"type_code"`
	Length     int       `json:"length"`
	RecordedAt time.Time `json:"recorded_at"`
	PixelCount int       `json:"pixel_count"`
}

// RecentFrames returns the newest frames first, up to limit.
func (db *DB) RecentFrames(limit int) ([]FrameRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT f.id, f.session_id, f.type_code, f.length, f.recorded_at,
		       (SELECT COUNT(*) FROM pixels p WHERE p.frame_id = f.id)
		FROM frames f
		ORDER BY f.recorded_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent frames: %w", err)
	}
	defer rows.Close()

	var out []FrameRecord
	for rows.Next() {
		var rec FrameRecord
		var recordedAt int64
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.TypeCode, &rec.Length, &recordedAt, &rec.PixelCount); err != nil {
			return nil, fmt.Errorf("scan frame row: %w", err)
		}
		rec.RecordedAt = time.Unix(0, recordedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FramePixels returns the stored pixels of one frame in scan order.
func (db *DB) FramePixels(frameID int64) ([]trackir.Pixel, error) {
	rows, err := db.Query(
		`SELECT sensor_row, x, y, delim FROM pixels WHERE frame_id = ? ORDER BY ordinal`,
		frameID)
	if err != nil {
		return nil, fmt.Errorf("query pixels: %w", err)
	}
	defer rows.Close()

	var out []trackir.Pixel
	for rows.Next() {
		var p trackir.Pixel
		if err := rows.Scan(&p.Row, &p.X, &p.Y, &p.Delim); err != nil {
			return nil, fmt.Errorf("scan pixel row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/glog"
	_ "modernc.org/sqlite"
)

// InMemory keeps the registry for the life of the process only
const InMemory = ":memory:"

const timeLayout = "2006-01-02 15:04:05"

type Database struct {
	db *sql.DB
}

type Room struct {
	ID           string
	Name         string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is one websocket connection of a peer to a room
type Session struct {
	PeerID         string     `json:"peer_id"`
	RoomID         string     `json:"room_id"`
	MessageCount   int        `json:"message_count"`
	ConnectedAt    time.Time  `json:"connected_at"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
}

func New(dbPath string) (*Database, error) {
	if dbPath != InMemory {
		// Ensure directory exists
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if dbPath == InMemory {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	glog.Infof("Database initialized at %s", dbPath)
	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		message_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		peer_id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		connected_at DATETIME NOT NULL,
		disconnected_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_room_id ON sessions(room_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_disconnected_at ON sessions(disconnected_at);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

func stamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Room operations

func (d *Database) CreateRoom(id, name string) error {
	now := stamp(time.Now())
	_, err := d.db.Exec(
		"INSERT OR IGNORE INTO rooms (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)",
		id, name, now, now,
	)
	return err
}

func (d *Database) GetRoom(id string) (*Room, error) {
	row := d.db.QueryRow(
		"SELECT id, name, message_count, created_at, updated_at FROM rooms WHERE id = ?",
		id,
	)

	var room Room
	err := row.Scan(&room.ID, &room.Name, &room.MessageCount, &room.CreatedAt, &room.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (d *Database) ListRooms(limit, offset int) ([]Room, error) {
	rows, err := d.db.Query(
		"SELECT id, name, message_count, created_at, updated_at FROM rooms ORDER BY updated_at DESC, id ASC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.ID, &room.Name, &room.MessageCount, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// Removes the room and every session recorded for it
func (d *Database) DeleteRoom(id string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM sessions WHERE room_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM rooms WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// Session operations

func (d *Database) OpenSession(peerID, roomID string) error {
	if err := d.CreateRoom(roomID, ""); err != nil {
		return fmt.Errorf("create room: %w", err)
	}

	now := stamp(time.Now())
	_, err := d.db.Exec(
		"INSERT INTO sessions (peer_id, room_id, connected_at) VALUES (?, ?, ?)",
		peerID, roomID, now,
	)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	_, err = d.db.Exec("UPDATE rooms SET updated_at = ? WHERE id = ?", now, roomID)
	return err
}

func (d *Database) CloseSession(peerID string) error {
	_, err := d.db.Exec(
		"UPDATE sessions SET disconnected_at = ? WHERE peer_id = ? AND disconnected_at IS NULL",
		stamp(time.Now()), peerID,
	)
	return err
}

// Marks every session still open as closed now. Used at startup, when no
// connection from a previous run can still be alive.
func (d *Database) CloseOpenSessions() (int64, error) {
	result, err := d.db.Exec(
		"UPDATE sessions SET disconnected_at = ? WHERE disconnected_at IS NULL",
		stamp(time.Now()),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Counts one relayed frame against the sender's session and its room
func (d *Database) RecordMessage(peerID, roomID string) error {
	now := stamp(time.Now())
	if _, err := d.db.Exec(
		"UPDATE sessions SET message_count = message_count + 1 WHERE peer_id = ?",
		peerID,
	); err != nil {
		return err
	}
	_, err := d.db.Exec(
		"UPDATE rooms SET message_count = message_count + 1, updated_at = ? WHERE id = ?",
		now, roomID,
	)
	return err
}

func (d *Database) ListSessions(roomID string) ([]Session, error) {
	rows, err := d.db.Query(`
		SELECT peer_id, room_id, message_count, connected_at, disconnected_at
		FROM sessions
		WHERE room_id = ?
		ORDER BY connected_at ASC, peer_id ASC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var disconnected sql.NullTime
		if err := rows.Scan(&s.PeerID, &s.RoomID, &s.MessageCount, &s.ConnectedAt, &disconnected); err != nil {
			return nil, err
		}
		if disconnected.Valid {
			t := disconnected.Time
			s.DisconnectedAt = &t
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Retention

// Deletes closed sessions that ended before the cutoff
func (d *Database) PruneSessions(before time.Time) (int64, error) {
	result, err := d.db.Exec(
		"DELETE FROM sessions WHERE disconnected_at IS NOT NULL AND disconnected_at < ?",
		stamp(before),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Deletes rooms untouched since the cutoff that have no open session
func (d *Database) DeleteIdleRooms(before time.Time) (int64, error) {
	result, err := d.db.Exec(`
		DELETE FROM rooms
		WHERE updated_at < ? AND id NOT IN (
			SELECT room_id FROM sessions WHERE disconnected_at IS NULL
		)
	`, stamp(before))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Stats

func (d *Database) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var roomCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM rooms").Scan(&roomCount); err != nil {
		return nil, err
	}
	stats["room_count"] = roomCount

	var sessionCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&sessionCount); err != nil {
		return nil, err
	}
	stats["session_count"] = sessionCount

	var openCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM sessions WHERE disconnected_at IS NULL").Scan(&openCount); err != nil {
		return nil, err
	}
	stats["open_sessions"] = openCount

	var messageCount int
	if err := d.db.QueryRow("SELECT COALESCE(SUM(message_count), 0) FROM rooms").Scan(&messageCount); err != nil {
		return nil, err
	}
	stats["message_count"] = messageCount

	return stats, nil
}

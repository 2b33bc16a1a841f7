package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDB implements the Database interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB creates a new SQLite database instance
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %v", err)
	}

	if err := initTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %v", err)
	}

	return &SQLiteDB{db: db}, nil
}

// initTables creates the necessary tables if they don't exist
func initTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS videos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL UNIQUE,
			path TEXT NOT NULL,
			camera_address TEXT,
			hostname TEXT,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS detections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			video_id INTEGER NOT NULL,
			label TEXT,
			start_frame INTEGER NOT NULL,
			end_frame INTEGER NOT NULL,
			confidence REAL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (video_id) REFERENCES videos(id)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_detections_video ON detections (video_id)
	`)
	return err
}

// RegisterVideo inserts a new video row and returns its id
func (s *SQLiteDB) RegisterVideo(row VideoRow) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO videos (filename, path, camera_address, hostname, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		row.Filename,
		row.Path,
		row.CameraAddress,
		row.Hostname,
		row.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to register video: %v", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get video id: %v", err)
	}
	return id, nil
}

// GetVideo retrieves a video row by its id
func (s *SQLiteDB) GetVideo(id int64) (*VideoRow, error) {
	var row VideoRow
	var cameraAddress, hostname sql.NullString

	err := s.db.QueryRow(`
		SELECT id, filename, path, camera_address, hostname, created_at
		FROM videos
		WHERE id = ?
	`, id).Scan(
		&row.ID,
		&row.Filename,
		&row.Path,
		&cameraAddress,
		&hostname,
		&row.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %v", err)
	}

	if cameraAddress.Valid {
		row.CameraAddress = cameraAddress.String
	}
	if hostname.Valid {
		row.Hostname = hostname.String
	}

	return &row, nil
}

// GetVideoByFilename retrieves a video row by segment filename
func (s *SQLiteDB) GetVideoByFilename(filename string) (*VideoRow, error) {
	var row VideoRow
	var cameraAddress, hostname sql.NullString

	err := s.db.QueryRow(`
		SELECT id, filename, path, camera_address, hostname, created_at
		FROM videos
		WHERE filename = ?
	`, filename).Scan(
		&row.ID,
		&row.Filename,
		&row.Path,
		&cameraAddress,
		&hostname,
		&row.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video by filename: %v", err)
	}

	if cameraAddress.Valid {
		row.CameraAddress = cameraAddress.String
	}
	if hostname.Valid {
		row.Hostname = hostname.String
	}

	return &row, nil
}

// DeleteVideo removes a video row and its detections
func (s *SQLiteDB) DeleteVideo(id int64) error {
	if _, err := s.db.Exec("DELETE FROM detections WHERE video_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete detections for video: %v", err)
	}
	if _, err := s.db.Exec("DELETE FROM videos WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete video: %v", err)
	}
	return nil
}

// CreateDetection inserts a detection row and returns its id
func (s *SQLiteDB) CreateDetection(det Detection) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO detections (video_id, label, start_frame, end_frame, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		det.VideoID,
		det.Label,
		det.StartFrame,
		det.EndFrame,
		det.Confidence,
		det.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create detection: %v", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get detection id: %v", err)
	}
	return id, nil
}

// GetDetection retrieves a detection by its id
func (s *SQLiteDB) GetDetection(id int64) (*Detection, error) {
	var det Detection
	var label sql.NullString

	err := s.db.QueryRow(`
		SELECT id, video_id, label, start_frame, end_frame, confidence, created_at
		FROM detections
		WHERE id = ?
	`, id).Scan(
		&det.ID,
		&det.VideoID,
		&label,
		&det.StartFrame,
		&det.EndFrame,
		&det.Confidence,
		&det.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get detection: %v", err)
	}

	if label.Valid {
		det.Label = label.String
	}

	return &det, nil
}

// ListDetectionsByVideo retrieves all detections recorded for a video
func (s *SQLiteDB) ListDetectionsByVideo(videoID int64) ([]Detection, error) {
	rows, err := s.db.Query(`
		SELECT id, video_id, label, start_frame, end_frame, confidence, created_at
		FROM detections
		WHERE video_id = ?
		ORDER BY start_frame ASC
	`, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list detections: %v", err)
	}
	defer rows.Close()

	var detections []Detection
	for rows.Next() {
		var det Detection
		var label sql.NullString

		if err := rows.Scan(
			&det.ID,
			&det.VideoID,
			&label,
			&det.StartFrame,
			&det.EndFrame,
			&det.Confidence,
			&det.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan detection row: %v", err)
		}

		if label.Valid {
			det.Label = label.String
		}
		detections = append(detections, det)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %v", err)
	}

	return detections, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

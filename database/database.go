package database

import (
	"time"
)

// VideoRow is the row this hub registers in the detection subsystem's
// store for every ingested segment. The schema is owned by the detection
// subsystem; this hub only writes videos and reads detections.
type VideoRow struct {
	ID            int64     `json:"id"`
	Filename      string    `json:"filename"`
	Path          string    `json:"path"`
	CameraAddress string    `json:"cameraAddress"`
	Hostname      string    `json:"hostname"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Detection describes an occurrence the detection pipeline found within
// a video's frame range. Read-only from the hub's perspective except for
// the pipeline-completion callback that inserts rows.
type Detection struct {
	ID         int64     `json:"id"`
	VideoID    int64     `json:"videoId"`
	Label      string    `json:"label"`
	StartFrame int       `json:"startFrame"`
	EndFrame   int       `json:"endFrame"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Database defines the operations the hub needs against the external
// detection store.
type Database interface {
	// Video operations
	RegisterVideo(row VideoRow) (int64, error)
	GetVideo(id int64) (*VideoRow, error)
	GetVideoByFilename(filename string) (*VideoRow, error)
	DeleteVideo(id int64) error

	// Detection operations
	CreateDetection(det Detection) (int64, error)
	GetDetection(id int64) (*Detection, error)
	ListDetectionsByVideo(videoID int64) ([]Detection, error)

	// Helper operations
	Close() error
}

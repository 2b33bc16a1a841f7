package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestSQLiteDB tests SQLite detection store operations
func TestSQLiteDB(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "camhub-db-test")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "test.db")
	db, err := NewSQLiteDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create SQLite database: %v", err)
	}
	defer db.Close()

	testRegisterAndGetVideo(t, db)
	testDetections(t, db)
	testDeleteVideo(t, db)
}

func testRegisterAndGetVideo(t *testing.T, db *SQLiteDB) {
	row := VideoRow{
		Filename:      "segment_pi_20250101_120000_ab12cd34.mp4",
		Path:          "/data/videos/segment_pi_20250101_120000_ab12cd34.mp4",
		CameraAddress: "10.0.0.5",
		Hostname:      "pi-livingroom",
		CreatedAt:     time.Now(),
	}

	id, err := db.RegisterVideo(row)
	if err != nil {
		t.Fatalf("Failed to register video: %v", err)
	}
	if id == 0 {
		t.Fatal("Expected non-zero video id")
	}

	retrieved, err := db.GetVideo(id)
	if err != nil {
		t.Fatalf("Failed to get video: %v", err)
	}
	if retrieved == nil {
		t.Fatal("Expected to retrieve video, got nil")
	}
	if retrieved.Filename != row.Filename {
		t.Errorf("Expected filename %s, got %s", row.Filename, retrieved.Filename)
	}
	if retrieved.CameraAddress != row.CameraAddress {
		t.Errorf("Expected camera address %s, got %s", row.CameraAddress, retrieved.CameraAddress)
	}

	byFilename, err := db.GetVideoByFilename(row.Filename)
	if err != nil {
		t.Fatalf("Failed to get video by filename: %v", err)
	}
	if byFilename == nil || byFilename.ID != id {
		t.Errorf("Expected video id %d by filename, got %+v", id, byFilename)
	}

	missing, err := db.GetVideo(99999)
	if err != nil {
		t.Fatalf("Expected no error for missing video, got: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for missing video, got: %v", missing)
	}
}

func testDetections(t *testing.T, db *SQLiteDB) {
	videoID, err := db.RegisterVideo(VideoRow{
		Filename:  "segment_det_test.mp4",
		Path:      "/data/videos/segment_det_test.mp4",
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to register video: %v", err)
	}

	detID, err := db.CreateDetection(Detection{
		VideoID:    videoID,
		Label:      "person",
		StartFrame: 120,
		EndFrame:   300,
		Confidence: 0.91,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to create detection: %v", err)
	}

	det, err := db.GetDetection(detID)
	if err != nil {
		t.Fatalf("Failed to get detection: %v", err)
	}
	if det == nil {
		t.Fatal("Expected detection, got nil")
	}
	if det.StartFrame != 120 || det.EndFrame != 300 {
		t.Errorf("Expected frame range 120-300, got %d-%d", det.StartFrame, det.EndFrame)
	}
	if det.Label != "person" {
		t.Errorf("Expected label person, got %s", det.Label)
	}

	_, err = db.CreateDetection(Detection{
		VideoID:    videoID,
		Label:      "cat",
		StartFrame: 10,
		EndFrame:   50,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to create second detection: %v", err)
	}

	list, err := db.ListDetectionsByVideo(videoID)
	if err != nil {
		t.Fatalf("Failed to list detections: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 detections, got %d", len(list))
	}
	if list[0].StartFrame > list[1].StartFrame {
		t.Error("Expected detections ordered by start frame")
	}

	missing, err := db.GetDetection(99999)
	if err != nil {
		t.Fatalf("Expected no error for missing detection, got: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for missing detection, got: %v", missing)
	}
}

func testDeleteVideo(t *testing.T, db *SQLiteDB) {
	videoID, err := db.RegisterVideo(VideoRow{
		Filename:  "segment_delete_test.mp4",
		Path:      "/data/videos/segment_delete_test.mp4",
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to register video: %v", err)
	}

	detID, err := db.CreateDetection(Detection{
		VideoID:    videoID,
		StartFrame: 0,
		EndFrame:   100,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to create detection: %v", err)
	}

	if err := db.DeleteVideo(videoID); err != nil {
		t.Fatalf("Failed to delete video: %v", err)
	}

	video, err := db.GetVideo(videoID)
	if err != nil {
		t.Fatalf("Failed to query deleted video: %v", err)
	}
	if video != nil {
		t.Error("Expected video row to be deleted")
	}

	det, err := db.GetDetection(detID)
	if err != nil {
		t.Fatalf("Failed to query detection of deleted video: %v", err)
	}
	if det != nil {
		t.Error("Expected detections to be deleted with their video")
	}
}

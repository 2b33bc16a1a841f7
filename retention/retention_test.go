package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"camhub/catalog"
	"camhub/database"
)

type recordingPublisher struct {
	events []string
	data   []interface{}
}

func (p *recordingPublisher) Broadcast(event string, data interface{}) {
	p.events = append(p.events, event)
	p.data = append(p.data, data)
}

const mb = 1024 * 1024

func newTestIndex(t *testing.T) (*catalog.SegmentIndex, string) {
	t.Helper()
	dir := t.TempDir()
	videosDir := filepath.Join(dir, "videos")
	if err := os.MkdirAll(videosDir, 0755); err != nil {
		t.Fatalf("failed to create videos dir: %v", err)
	}
	index, err := catalog.NewSegmentIndex(filepath.Join(dir, "index.json"))
	if err != nil {
		t.Fatalf("failed to open index: %v", err)
	}
	return index, videosDir
}

func addSegment(t *testing.T, index *catalog.SegmentIndex, videosDir string, n int, size int64, createdAt time.Time) catalog.VideoSegment {
	t.Helper()
	filename := fmt.Sprintf("segment_cam1_%s_%08d.mp4", createdAt.Format("20060102_150405"), n)
	path := filepath.Join(videosDir, filename)
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("failed to write segment: %v", err)
	}
	seg := catalog.VideoSegment{
		Filename:      filename,
		Path:          path,
		SizeBytes:     size,
		CreatedAt:     createdAt,
		CameraAddress: "192.168.1.10",
	}
	index.Append(seg)
	return seg
}

func TestCheckAndCleanEnforcesWatermarks(t *testing.T) {
	index, videosDir := newTestIndex(t)
	pub := &recordingPublisher{}

	// Six 20MB segments against a 100MB quota: 120MB used, high
	// watermark at 85MB, low watermark at 80MB.
	base := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	for n := 0; n < 6; n++ {
		addSegment(t, index, videosDir, n, 20*mb, base.Add(time.Duration(n)*time.Minute))
	}

	mgr := NewManager(index, nil, pub, videosDir, 100*mb, 0.85, 0.80)
	deleted := mgr.CheckAndClean()

	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if used, _ := mgr.Usage(); used > 80*mb {
		t.Errorf("usage after cleanup = %d, want <= %d", used, 80*mb)
	}

	// Oldest segments go first.
	for _, seg := range index.All() {
		if seg.CreatedAt.Before(base.Add(2 * time.Minute)) {
			t.Errorf("old segment %s survived cleanup", seg.Filename)
		}
	}

	if len(pub.events) != 1 || pub.events[0] != "storage-cleaned" {
		t.Errorf("expected storage-cleaned broadcast, got %v", pub.events)
	}
}

func TestCheckAndCleanBelowWatermarkIsNoop(t *testing.T) {
	index, videosDir := newTestIndex(t)
	pub := &recordingPublisher{}

	addSegment(t, index, videosDir, 0, 10*mb, time.Now())
	mgr := NewManager(index, nil, pub, videosDir, 100*mb, 0.85, 0.80)

	if deleted := mgr.CheckAndClean(); deleted != 0 {
		t.Errorf("nothing should be deleted under the watermark, got %d", deleted)
	}
	if index.Count() != 1 {
		t.Error("segment should survive")
	}
	if len(pub.events) != 0 {
		t.Errorf("no broadcast expected, got %v", pub.events)
	}
}

func TestCheckAndCleanCountsUntrackedFiles(t *testing.T) {
	index, videosDir := newTestIndex(t)
	pub := &recordingPublisher{}

	// 60MB of catalogued segments stays under the 85MB watermark on
	// its own; a 40MB file dropped into the directory by hand pushes
	// on-disk usage over it.
	base := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	for n := 0; n < 3; n++ {
		addSegment(t, index, videosDir, n, 20*mb, base.Add(time.Duration(n)*time.Minute))
	}
	stray := filepath.Join(videosDir, "manual_copy.mp4")
	if err := os.WriteFile(stray, make([]byte, 40*mb), 0644); err != nil {
		t.Fatalf("failed to write stray file: %v", err)
	}

	mgr := NewManager(index, nil, pub, videosDir, 100*mb, 0.85, 0.80)
	if deleted := mgr.CheckAndClean(); deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := os.Stat(stray); err != nil {
		t.Errorf("untracked file should be left alone: %v", err)
	}
	if index.Count() != 2 {
		t.Errorf("segments remaining = %d, want 2", index.Count())
	}
}

func TestCheckAndCleanDropsDetectionRows(t *testing.T) {
	index, videosDir := newTestIndex(t)
	db, err := database.NewSQLiteDB(filepath.Join(filepath.Dir(videosDir), "detections.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	seg := addSegment(t, index, videosDir, 0, 90*mb, time.Now().Add(-time.Hour))
	addSegment(t, index, videosDir, 1, 10*mb, time.Now())

	videoID, err := db.RegisterVideo(database.VideoRow{Filename: seg.Filename, Path: seg.Path})
	if err != nil {
		t.Fatalf("failed to register video: %v", err)
	}
	if _, err := db.CreateDetection(database.Detection{VideoID: videoID, Label: "person", StartFrame: 1, EndFrame: 2, Confidence: 0.9}); err != nil {
		t.Fatalf("failed to create detection: %v", err)
	}

	mgr := NewManager(index, db, nil, videosDir, 100*mb, 0.85, 0.80)
	if deleted := mgr.CheckAndClean(); deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	row, err := db.GetVideoByFilename(seg.Filename)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if row != nil {
		t.Error("video row should be gone after eviction")
	}
	if _, err := os.Stat(seg.Path); !os.IsNotExist(err) {
		t.Error("segment file should be deleted")
	}
}

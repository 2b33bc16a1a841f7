package ingest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"camhub/catalog"
	"camhub/database"
)

type recordingPublisher struct {
	events []string
}

func (p *recordingPublisher) Broadcast(event string, data interface{}) {
	p.events = append(p.events, event)
}

type recordingDispatcher struct {
	videoIDs []int64
	paths    []string
}

func (d *recordingDispatcher) Dispatch(videoID int64, path string) {
	d.videoIDs = append(d.videoIDs, videoID)
	d.paths = append(d.paths, path)
}

func newTestIngestor(t *testing.T) (*Ingestor, *catalog.SegmentIndex, database.Database, *recordingPublisher, *recordingDispatcher, string) {
	t.Helper()
	dir := t.TempDir()

	videosDir := filepath.Join(dir, "videos")
	if err := os.MkdirAll(videosDir, 0755); err != nil {
		t.Fatal(err)
	}

	index, err := catalog.NewSegmentIndex(filepath.Join(dir, "index.json"))
	if err != nil {
		t.Fatalf("failed to open segment index: %v", err)
	}
	db, err := database.NewSQLiteDB(filepath.Join(dir, "detections.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	pub := &recordingPublisher{}
	disp := &recordingDispatcher{}
	return NewIngestor(videosDir, index, db, pub, disp), index, db, pub, disp, videosDir
}

func TestIngestStoresSegment(t *testing.T) {
	ing, index, db, pub, disp, videosDir := newTestIngestor(t)

	body := bytes.Repeat([]byte("v"), 2048)
	meta := `{"timestamp":"2026-08-31T10:15:00","duration":180.0,"hostname":"cam-porch","camera_ip":"192.168.1.20"}`

	seg, err := ing.Ingest(context.Background(), bytes.NewReader(body), meta)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if !strings.HasPrefix(seg.Filename, "segment_cam-porch_20260831_101500_") {
		t.Errorf("unexpected filename %q", seg.Filename)
	}
	if seg.SizeBytes != 2048 {
		t.Errorf("sizeBytes = %d, want 2048", seg.SizeBytes)
	}
	if seg.CameraAddress != "192.168.1.20" {
		t.Errorf("camera address = %q", seg.CameraAddress)
	}

	data, err := os.ReadFile(filepath.Join(videosDir, seg.Filename))
	if err != nil {
		t.Fatalf("segment file missing: %v", err)
	}
	if len(data) != 2048 {
		t.Errorf("stored file is %d bytes, want 2048", len(data))
	}

	if _, ok := index.Find(seg.Filename); !ok {
		t.Error("segment not in index")
	}
	row, err := db.GetVideoByFilename(seg.Filename)
	if err != nil || row == nil {
		t.Fatalf("segment not registered in detection store: %v", err)
	}

	if len(disp.videoIDs) != 1 || disp.videoIDs[0] != row.ID {
		t.Errorf("detection dispatch missing or wrong id: %v", disp.videoIDs)
	}
	if len(pub.events) != 1 || pub.events[0] != "video-uploaded" {
		t.Errorf("expected video-uploaded broadcast, got %v", pub.events)
	}
}

func TestIngestRejectsMissingFile(t *testing.T) {
	ing, index, _, _, _, _ := newTestIngestor(t)

	_, err := ing.Ingest(context.Background(), nil, "{}")
	if !errors.Is(err, ErrNoVideo) {
		t.Fatalf("expected ErrNoVideo, got %v", err)
	}
	if index.Count() != 0 {
		t.Error("nothing should be indexed for a rejected upload")
	}
}

func TestIngestToleratesMalformedMetadata(t *testing.T) {
	ing, index, _, _, _, _ := newTestIngestor(t)

	seg, err := ing.Ingest(context.Background(), strings.NewReader("payload"), "{not json")
	if err != nil {
		t.Fatalf("Ingest should tolerate malformed metadata, got %v", err)
	}
	if !strings.HasPrefix(seg.Filename, "segment_unknown_") {
		t.Errorf("expected unknown-host fallback name, got %q", seg.Filename)
	}
	if index.Count() != 1 {
		t.Error("segment should still be indexed")
	}
}

func TestIngestRunsAfterStoreHooks(t *testing.T) {
	ing, _, _, _, _, _ := newTestIngestor(t)

	var hookSeg catalog.VideoSegment
	ing.AfterStore(func(seg catalog.VideoSegment) { hookSeg = seg })

	seg, err := ing.Ingest(context.Background(), strings.NewReader("payload"), `{"hostname":"cam1"}`)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if hookSeg.Filename != seg.Filename {
		t.Errorf("after-store hook saw %q, want %q", hookSeg.Filename, seg.Filename)
	}
}

func TestIngestProbesMissingDuration(t *testing.T) {
	ing, index, _, _, _, _ := newTestIngestor(t)

	var probed []string
	ing.ProbeDuration(func(path string) (float64, error) {
		probed = append(probed, path)
		return 120.5, nil
	})

	seg, err := ing.Ingest(context.Background(), strings.NewReader("payload"), `{"hostname":"cam1","duration":0}`)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if len(probed) != 1 || probed[0] != seg.Path {
		t.Errorf("duration probe calls = %v, want one for %q", probed, seg.Path)
	}
	if seg.DurationSeconds != 120.5 {
		t.Errorf("duration = %v, want 120.5", seg.DurationSeconds)
	}
	if indexed, ok := index.Find(seg.Filename); !ok || indexed.DurationSeconds != 120.5 {
		t.Errorf("indexed duration = %v, want 120.5", indexed.DurationSeconds)
	}

	// An agent-reported duration is trusted as-is.
	_, err = ing.Ingest(context.Background(), strings.NewReader("payload"), `{"hostname":"cam1","duration":180}`)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if len(probed) != 1 {
		t.Errorf("probe ran for a reported duration: %v", probed)
	}
}

func TestIngestUniqueFilenamesForSameSecond(t *testing.T) {
	ing, index, _, _, _, _ := newTestIngestor(t)

	meta := `{"timestamp":"2026-08-31T10:15:00","hostname":"cam1"}`
	first, err := ing.Ingest(context.Background(), strings.NewReader("a"), meta)
	if err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}
	second, err := ing.Ingest(context.Background(), strings.NewReader("b"), meta)
	if err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}
	if first.Filename == second.Filename {
		t.Errorf("segments from the same second must not collide: %q", first.Filename)
	}
	if index.Count() != 2 {
		t.Errorf("expected 2 indexed segments, got %d", index.Count())
	}
}

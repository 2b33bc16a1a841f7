package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"camhub/catalog"
	"camhub/database"
)

// ErrNoVideo means the upload carried no video file part.
var ErrNoVideo = errors.New("upload is missing the video file")

// Metadata is the JSON blob a camera agent attaches to each uploaded
// segment. Every field is optional on the wire; missing ones fall back
// to defaults.
type Metadata struct {
	Timestamp string  `json:"timestamp"`
	Duration  float64 `json:"duration"`
	Hostname  string  `json:"hostname"`
	CameraIP  string  `json:"camera_ip"`
}

// Publisher pushes events to connected dashboard clients.
type Publisher interface {
	Broadcast(event string, data interface{})
}

// Dispatcher hands a stored segment to the detection pipeline.
type Dispatcher interface {
	Dispatch(videoID int64, path string)
}

// Ingestor persists uploaded video segments: file to disk, entry to the
// segment index, row to the detection store, then downstream hooks.
type Ingestor struct {
	videosDir  string
	index      *catalog.SegmentIndex
	db         database.Database
	publisher  Publisher
	dispatcher Dispatcher

	// durationProbe fills in the segment duration when the agent
	// metadata omits it. Optional.
	durationProbe func(path string) (float64, error)

	// afterStore hooks run once per accepted segment, in order. Used
	// for the retention check and the offsite backup sweep.
	afterStore []func(seg catalog.VideoSegment)
}

// NewIngestor creates an ingestor writing segments under videosDir.
func NewIngestor(videosDir string, index *catalog.SegmentIndex, db database.Database, publisher Publisher, dispatcher Dispatcher) *Ingestor {
	return &Ingestor{
		videosDir:  videosDir,
		index:      index,
		db:         db,
		publisher:  publisher,
		dispatcher: dispatcher,
	}
}

// ProbeDuration sets the function used to measure a stored segment
// when the agent did not report a duration.
func (i *Ingestor) ProbeDuration(fn func(path string) (float64, error)) {
	i.durationProbe = fn
}

// AfterStore registers a hook invoked after each accepted segment.
func (i *Ingestor) AfterStore(fn func(seg catalog.VideoSegment)) {
	i.afterStore = append(i.afterStore, fn)
}

// Ingest accepts one uploaded segment. The reader is the video file
// part; metadataJSON is the agent's metadata form field, tolerated when
// malformed or absent.
func (i *Ingestor) Ingest(ctx context.Context, video io.Reader, metadataJSON string) (catalog.VideoSegment, error) {
	if video == nil {
		return catalog.VideoSegment{}, ErrNoVideo
	}

	meta := parseMetadata(metadataJSON)
	createdAt := parseTimestamp(meta.Timestamp)

	filename := segmentFilename(meta.Hostname, createdAt)
	path := filepath.Join(i.videosDir, filename)

	size, err := writeAtomic(path, video)
	if err != nil {
		return catalog.VideoSegment{}, fmt.Errorf("failed to store segment: %v", err)
	}

	duration := meta.Duration
	if duration <= 0 && i.durationProbe != nil {
		// Agents routinely report a zero duration; measure the file
		// instead.
		probed, err := i.durationProbe(path)
		if err != nil {
			log.Printf("[ingest] Failed to measure duration of %s: %v", filename, err)
		} else {
			duration = probed
		}
	}

	seg := catalog.VideoSegment{
		Filename:        filename,
		Path:            path,
		SizeBytes:       size,
		CreatedAt:       createdAt,
		CameraAddress:   meta.CameraIP,
		Hostname:        meta.Hostname,
		DurationSeconds: duration,
	}
	i.index.Append(seg)

	videoID, err := i.db.RegisterVideo(database.VideoRow{
		Filename:      filename,
		Path:          path,
		CameraAddress: meta.CameraIP,
		Hostname:      meta.Hostname,
	})
	if err != nil {
		// The segment is on disk and indexed; a detection-store
		// failure must not reject the upload.
		log.Printf("[ingest] Failed to register %s in detection store: %v", filename, err)
	} else if i.dispatcher != nil {
		i.dispatcher.Dispatch(videoID, path)
	}

	log.Printf("[ingest] Stored segment %s (%d bytes) from %s", filename, size, meta.Hostname)

	if i.publisher != nil {
		i.publisher.Broadcast("video-uploaded", map[string]interface{}{
			"filename":  filename,
			"sizeBytes": size,
			"hostname":  meta.Hostname,
			"address":   meta.CameraIP,
		})
	}
	for _, fn := range i.afterStore {
		fn(seg)
	}
	return seg, nil
}

// parseMetadata decodes the agent's metadata field. A malformed or
// empty blob is logged and replaced with defaults rather than failing
// the upload.
func parseMetadata(raw string) Metadata {
	var meta Metadata
	if raw == "" {
		return meta
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		log.Printf("[ingest] Malformed upload metadata, using defaults: %v", err)
		return Metadata{}
	}
	return meta
}

func parseTimestamp(raw string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if ts, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return ts
		}
	}
	return time.Now()
}

// segmentFilename builds a collision-free name for a stored segment.
func segmentFilename(hostname string, createdAt time.Time) string {
	if hostname == "" {
		hostname = "unknown"
	}
	hostname = strings.ReplaceAll(hostname, string(os.PathSeparator), "_")
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("segment_%s_%s_%s.mp4", hostname, createdAt.Format("20060102_150405"), suffix)
}

// writeAtomic streams the upload to a temporary file and renames it
// into place, so readers never observe a half-written segment.
func writeAtomic(path string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()

	size, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, err
	}
	return size, nil
}

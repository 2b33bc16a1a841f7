package clipcache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"camhub/catalog"
	"camhub/database"
)

var (
	// ErrDetectionNotFound means no detection exists for the requested id.
	ErrDetectionNotFound = errors.New("detection not found")
	// ErrVideoNotFound means the detection's source segment is gone,
	// either from the database or from disk.
	ErrVideoNotFound = errors.New("source video not found")
)

// ClipArtifact describes a finished detection clip on disk.
type ClipArtifact struct {
	DetectionID     int64   `json:"detectionId"`
	Path            string  `json:"path"`
	StartSeconds    float64 `json:"startSeconds"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// ExtractFunc cuts a clip out of a source video. Injected so tests can
// observe invocations without a real ffmpeg.
type ExtractFunc func(ctx context.Context, inputPath, outputPath string, startSeconds, durationSeconds float64) error

// FrameRateFunc probes the frame rate of a video file.
type FrameRateFunc func(filePath string) (float64, error)

// Cache produces detection clips on demand and reuses ones already on
// disk. A hit is served from the in-memory artifact map plus a single
// existence check; store lookups and the frame-rate probe only run when
// the clip has to be materialized. Concurrent requests for the same
// detection are coalesced so the extraction runs once.
type Cache struct {
	db         database.Database
	index      *catalog.SegmentIndex
	clipsDir   string
	extract    ExtractFunc
	frameRate  FrameRateFunc
	padSeconds float64
	maxSeconds float64
	defaultFPS float64

	mu        sync.Mutex
	artifacts map[int64]ClipArtifact

	group singleflight.Group
}

// Options configures a clip cache.
type Options struct {
	ClipsDir   string
	Extract    ExtractFunc
	FrameRate  FrameRateFunc
	PadSeconds float64
	MaxSeconds float64
	DefaultFPS float64
}

// NewCache creates a clip cache writing artifacts under opts.ClipsDir.
func NewCache(db database.Database, index *catalog.SegmentIndex, opts Options) *Cache {
	return &Cache{
		db:         db,
		index:      index,
		clipsDir:   opts.ClipsDir,
		extract:    opts.Extract,
		frameRate:  opts.FrameRate,
		padSeconds: opts.PadSeconds,
		maxSeconds: opts.MaxSeconds,
		defaultFPS: opts.DefaultFPS,
		artifacts:  make(map[int64]ClipArtifact),
	}
}

// Get returns the clip for a detection, extracting it first if it is
// not already cached.
func (c *Cache) Get(ctx context.Context, detectionID int64) (ClipArtifact, error) {
	if artifact, ok := c.cached(detectionID); ok {
		return artifact, nil
	}

	key := strconv.FormatInt(detectionID, 10)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		artifact, err := c.materialize(ctx, detectionID)
		if err != nil {
			return ClipArtifact{}, err
		}
		c.mu.Lock()
		c.artifacts[detectionID] = artifact
		c.mu.Unlock()
		return artifact, nil
	})
	if err != nil {
		return ClipArtifact{}, err
	}
	return v.(ClipArtifact), nil
}

// cached returns a previously materialized artifact, verifying only
// that its file still exists. A missing file drops the entry so the
// next request rebuilds it.
func (c *Cache) cached(detectionID int64) (ClipArtifact, bool) {
	c.mu.Lock()
	artifact, ok := c.artifacts[detectionID]
	c.mu.Unlock()
	if !ok {
		return ClipArtifact{}, false
	}

	if _, err := os.Stat(artifact.Path); err != nil {
		c.mu.Lock()
		delete(c.artifacts, detectionID)
		c.mu.Unlock()
		return ClipArtifact{}, false
	}
	return artifact, true
}

func (c *Cache) materialize(ctx context.Context, detectionID int64) (ClipArtifact, error) {
	det, err := c.db.GetDetection(detectionID)
	if err != nil {
		return ClipArtifact{}, fmt.Errorf("failed to load detection %d: %v", detectionID, err)
	}
	if det == nil {
		return ClipArtifact{}, ErrDetectionNotFound
	}

	video, err := c.db.GetVideo(det.VideoID)
	if err != nil {
		return ClipArtifact{}, fmt.Errorf("failed to load video %d: %v", det.VideoID, err)
	}
	if video == nil {
		return ClipArtifact{}, ErrVideoNotFound
	}

	sourcePath := video.Path
	if seg, ok := c.index.Find(video.Filename); ok {
		sourcePath = seg.Path
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return ClipArtifact{}, ErrVideoNotFound
	}

	start, duration := c.window(det, sourcePath)
	clipPath := filepath.Join(c.clipsDir, fmt.Sprintf("clip_%d.mp4", detectionID))

	artifact := ClipArtifact{
		DetectionID:     detectionID,
		Path:            clipPath,
		StartSeconds:    start,
		DurationSeconds: duration,
	}

	// Cache hit: the artifact already exists.
	if _, err := os.Stat(clipPath); err == nil {
		return artifact, nil
	}

	if err := c.extract(ctx, sourcePath, clipPath, start, duration); err != nil {
		return ClipArtifact{}, fmt.Errorf("failed to extract clip for detection %d: %v", detectionID, err)
	}
	log.Printf("[clipcache] Extracted clip for detection %d: %s (%.2fs at %.2fs)",
		detectionID, filepath.Base(clipPath), duration, start)
	return artifact, nil
}

// window converts the detection's frame range into a padded time window
// inside the source segment, capped at the maximum clip length.
func (c *Cache) window(det *database.Detection, sourcePath string) (start, duration float64) {
	fps := c.defaultFPS
	if c.frameRate != nil {
		if probed, err := c.frameRate(sourcePath); err == nil && probed > 0 {
			fps = probed
		} else if err != nil {
			log.Printf("[clipcache] Frame rate probe failed for %s, using %.0f fps: %v",
				filepath.Base(sourcePath), fps, err)
		}
	}

	padFrames := c.padSeconds * fps
	startFrame := float64(det.StartFrame) - padFrames
	if startFrame < 0 {
		startFrame = 0
	}
	endFrame := float64(det.EndFrame) + padFrames

	start = startFrame / fps
	duration = (endFrame - startFrame) / fps
	if c.maxSeconds > 0 && duration > c.maxSeconds {
		duration = c.maxSeconds
	}
	return start, duration
}

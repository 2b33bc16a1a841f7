package retention

import (
	"log"
	"os"
	"sort"
	"sync"

	"camhub/catalog"
	"camhub/database"
	"camhub/storage"
)

// Publisher pushes events to connected dashboard clients.
type Publisher interface {
	Broadcast(event string, data interface{})
}

// Manager enforces the storage quota over the segment catalog. When
// usage crosses the high watermark it evicts oldest segments first
// until usage is back under the low watermark.
type Manager struct {
	index     *catalog.SegmentIndex
	db        database.Database
	publisher Publisher
	videosDir string

	quotaBytes int64
	highWater  float64
	lowWater   float64

	mu sync.Mutex // one cleanup pass at a time
}

// NewManager creates a retention manager for the given quota and
// watermark ratios. Usage is measured against videosDir on disk, so
// files that reached the directory outside the upload path still count.
func NewManager(index *catalog.SegmentIndex, db database.Database, publisher Publisher, videosDir string, quotaBytes int64, highWater, lowWater float64) *Manager {
	return &Manager{
		index:      index,
		db:         db,
		publisher:  publisher,
		videosDir:  videosDir,
		quotaBytes: quotaBytes,
		highWater:  highWater,
		lowWater:   lowWater,
	}
}

// CheckAndClean evicts old segments if usage exceeds the high
// watermark. Returns the number of segments deleted.
func (m *Manager) CheckAndClean() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	usage := m.usage()
	highMark := int64(float64(m.quotaBytes) * m.highWater)
	if usage <= highMark {
		return 0
	}

	target := int64(float64(m.quotaBytes) * m.lowWater)
	log.Printf("[retention] Storage usage %d bytes exceeds %d, cleaning down to %d", usage, highMark, target)

	segments := m.index.All()
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].CreatedAt.Before(segments[j].CreatedAt)
	})

	deleted := 0
	for _, seg := range segments {
		if usage <= target {
			break
		}
		if !m.evict(seg) {
			continue
		}
		usage -= seg.SizeBytes
		deleted++
	}

	log.Printf("[retention] Cleanup done: deleted %d segments, usage now %d bytes", deleted, usage)
	if m.publisher != nil && deleted > 0 {
		m.publisher.Broadcast("storage-cleaned", map[string]interface{}{
			"deleted": deleted,
			"usage":   usage,
		})
	}
	return deleted
}

// Usage reports current storage usage against the quota.
func (m *Manager) Usage() (usedBytes, quotaBytes int64) {
	return m.usage(), m.quotaBytes
}

// usage measures the videos directory on disk, falling back to the
// catalog total if the walk fails.
func (m *Manager) usage() int64 {
	used, err := storage.DirUsage(m.videosDir)
	if err != nil {
		log.Printf("[retention] Failed to measure %s, falling back to catalog size: %v", m.videosDir, err)
		return m.index.TotalSize()
	}
	return used
}

// evict removes one segment from disk, the index, and the detection
// store. A failed disk delete skips the segment so one stuck file
// cannot wedge the whole cleanup.
func (m *Manager) evict(seg catalog.VideoSegment) bool {
	if err := os.Remove(seg.Path); err != nil && !os.IsNotExist(err) {
		log.Printf("[retention] Failed to delete %s, skipping: %v", seg.Filename, err)
		return false
	}
	m.index.Remove(seg.Filename)

	if m.db != nil {
		if row, err := m.db.GetVideoByFilename(seg.Filename); err != nil {
			log.Printf("[retention] Detection store lookup failed for %s: %v", seg.Filename, err)
		} else if row != nil {
			if err := m.db.DeleteVideo(row.ID); err != nil {
				log.Printf("[retention] Failed to drop detection rows for %s: %v", seg.Filename, err)
			}
		}
	}
	log.Printf("[retention] Evicted %s (%d bytes)", seg.Filename, seg.SizeBytes)
	return true
}

package catalog

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// VideoSegment represents one recorded segment uploaded by a camera agent.
// Immutable after ingestion; removed only by the retention manager.
type VideoSegment struct {
	Filename        string    `json:"filename"`
	Path            string    `json:"path"`
	SizeBytes       int64     `json:"sizeBytes"`
	CreatedAt       time.Time `json:"createdAt"`
	CameraAddress   string    `json:"cameraAddress"`
	Hostname        string    `json:"hostname"`
	DurationSeconds float64   `json:"durationSeconds"`
}

// SegmentIndex is a durable catalog of known video segments, backed by a
// flat JSON file that is rewritten after every mutation. The index file
// and the video directory are owned by a single process instance.
type SegmentIndex struct {
	mu        sync.RWMutex
	segments  map[string]VideoSegment // keyed by filename
	indexPath string
}

// NewSegmentIndex loads the index file at indexPath, creating an empty
// index if the file does not exist yet.
func NewSegmentIndex(indexPath string) (*SegmentIndex, error) {
	idx := &SegmentIndex{
		segments:  make(map[string]VideoSegment),
		indexPath: indexPath,
	}

	data, err := os.ReadFile(indexPath)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index file: %v", err)
	}

	var list []VideoSegment
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse index file: %v", err)
	}
	for _, seg := range list {
		idx.segments[seg.Filename] = seg
	}

	log.Printf("[catalog] Loaded %d segments from %s", len(idx.segments), indexPath)
	return idx, nil
}

// Append adds a segment and rewrites the index file. A write failure is
// logged, not returned: the in-memory copy stays authoritative until the
// next successful write.
func (idx *SegmentIndex) Append(seg VideoSegment) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.segments[seg.Filename] = seg
	idx.persistLocked()
}

// Remove deletes the entry for filename, if present, and rewrites the file.
func (idx *SegmentIndex) Remove(filename string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.segments[filename]; !ok {
		return
	}
	delete(idx.segments, filename)
	idx.persistLocked()
}

// Find returns the segment with the given filename.
func (idx *SegmentIndex) Find(filename string) (VideoSegment, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seg, ok := idx.segments[filename]
	return seg, ok
}

// FindByCamera returns all segments recorded by the camera at address,
// newest first.
func (idx *SegmentIndex) FindByCamera(address string) []VideoSegment {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []VideoSegment
	for _, seg := range idx.segments {
		if seg.CameraAddress == address {
			out = append(out, seg)
		}
	}
	sortNewestFirst(out)
	return out
}

// All returns every known segment, newest first.
func (idx *SegmentIndex) All() []VideoSegment {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]VideoSegment, 0, len(idx.segments))
	for _, seg := range idx.segments {
		out = append(out, seg)
	}
	sortNewestFirst(out)
	return out
}

// Latest returns the most recently created segment.
func (idx *SegmentIndex) Latest() (VideoSegment, bool) {
	all := idx.All()
	if len(all) == 0 {
		return VideoSegment{}, false
	}
	return all[0], true
}

// Count returns the number of indexed segments.
func (idx *SegmentIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.segments)
}

// TotalSize returns the summed size of all indexed segments in bytes.
func (idx *SegmentIndex) TotalSize() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var total int64
	for _, seg := range idx.segments {
		total += seg.SizeBytes
	}
	return total
}

// Reconcile drops entries whose backing file is missing from disk and
// rewrites the index with the surviving set. It runs once at process
// start and is idempotent: a second pass over an already reconciled
// index removes nothing.
func (idx *SegmentIndex) Reconcile() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var dropped int
	for filename, seg := range idx.segments {
		if _, err := os.Stat(seg.Path); os.IsNotExist(err) {
			log.Printf("[catalog] Dropping %s: backing file missing at %s", filename, seg.Path)
			delete(idx.segments, filename)
			dropped++
		}
	}

	if dropped > 0 {
		idx.persistLocked()
		log.Printf("[catalog] Reconcile dropped %d stale entries, %d remain", dropped, len(idx.segments))
	}
	return dropped
}

// persistLocked rewrites the index file. Caller must hold the write lock.
// Write to a temporary file first, then rename for atomic replacement.
func (idx *SegmentIndex) persistLocked() {
	list := make([]VideoSegment, 0, len(idx.segments))
	for _, seg := range idx.segments {
		list = append(list, seg)
	}
	sortNewestFirst(list)

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		log.Printf("[catalog] Failed to marshal index: %v", err)
		return
	}

	dir := filepath.Dir(idx.indexPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("[catalog] Failed to create index directory %s: %v", dir, err)
		return
	}

	tempPath := idx.indexPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		log.Printf("[catalog] Failed to write index file: %v", err)
		return
	}
	if err := os.Rename(tempPath, idx.indexPath); err != nil {
		log.Printf("[catalog] Failed to replace index file: %v", err)
	}
}

func sortNewestFirst(list []VideoSegment) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

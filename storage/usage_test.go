package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirUsage(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "a.mp4"), make([]byte, 1000), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b.mp4"), make([]byte, 500), 0644); err != nil {
		t.Fatal(err)
	}

	total, err := DirUsage(dir)
	if err != nil {
		t.Fatalf("DirUsage failed: %v", err)
	}
	if total != 1500 {
		t.Errorf("total = %d, want 1500", total)
	}
}

func TestDirUsageEmptyDir(t *testing.T) {
	total, err := DirUsage(t.TempDir())
	if err != nil {
		t.Fatalf("DirUsage failed: %v", err)
	}
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
}

func TestVolumeUsage(t *testing.T) {
	stats, err := VolumeUsage(t.TempDir())
	if err != nil {
		t.Fatalf("VolumeUsage failed: %v", err)
	}
	if stats.TotalBytes == 0 {
		t.Error("volume total should be non-zero")
	}
}

package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.ServerPort != "9000" {
		t.Errorf("ServerPort = %q, want 9000", cfg.ServerPort)
	}
	if cfg.HighWaterRatio != 0.85 || cfg.LowWaterRatio != 0.80 {
		t.Errorf("watermarks = %f/%f, want 0.85/0.80", cfg.HighWaterRatio, cfg.LowWaterRatio)
	}
	if cfg.HeartbeatTimeout != 90*time.Second {
		t.Errorf("HeartbeatTimeout = %s, want 90s", cfg.HeartbeatTimeout)
	}
	if cfg.VideosDir != filepath.Join(cfg.StoragePath, "videos") {
		t.Errorf("VideosDir = %q, not under storage path", cfg.VideosDir)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9500")
	t.Setenv("STORAGE_QUOTA_BYTES", "104857600")
	t.Setenv("SEGMENT_MINUTES", "5")
	t.Setenv("HEARTBEAT_TIMEOUT", "2m")
	t.Setenv("DETECTION_ARGS", "--model yolo --conf 0.5")

	cfg := LoadConfig()
	if cfg.ServerPort != "9500" {
		t.Errorf("ServerPort = %q, want 9500", cfg.ServerPort)
	}
	if cfg.StorageQuotaBytes != 104857600 {
		t.Errorf("StorageQuotaBytes = %d, want 104857600", cfg.StorageQuotaBytes)
	}
	if cfg.SegmentMinutes != 5 {
		t.Errorf("SegmentMinutes = %d, want 5", cfg.SegmentMinutes)
	}
	if cfg.HeartbeatTimeout != 2*time.Minute {
		t.Errorf("HeartbeatTimeout = %s, want 2m", cfg.HeartbeatTimeout)
	}
	want := []string{"--model", "yolo", "--conf", "0.5"}
	if len(cfg.DetectionArgs) != len(want) {
		t.Fatalf("DetectionArgs = %v, want %v", cfg.DetectionArgs, want)
	}
	for i, arg := range want {
		if cfg.DetectionArgs[i] != arg {
			t.Errorf("DetectionArgs[%d] = %q, want %q", i, cfg.DetectionArgs[i], arg)
		}
	}
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	t.Setenv("SEGMENT_MINUTES", "not-a-number")
	t.Setenv("HIGH_WATER_RATIO", "lots")

	cfg := LoadConfig()
	if cfg.SegmentMinutes != 2 {
		t.Errorf("SegmentMinutes = %d, want fallback 2", cfg.SegmentMinutes)
	}
	if cfg.HighWaterRatio != 0.85 {
		t.Errorf("HighWaterRatio = %f, want fallback 0.85", cfg.HighWaterRatio)
	}
}

func TestIndexPath(t *testing.T) {
	cfg := Config{StoragePath: "/var/lib/camhub"}
	if got := cfg.IndexPath(); got != filepath.Join("/var/lib/camhub", "segments.json") {
		t.Errorf("IndexPath = %q", got)
	}
}

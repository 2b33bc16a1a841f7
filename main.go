package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"camhub/api"
	"camhub/catalog"
	"camhub/clipcache"
	"camhub/config"
	"camhub/cron"
	"camhub/database"
	"camhub/detectjob"
	"camhub/events"
	"camhub/ingest"
	"camhub/monitoring"
	"camhub/registry"
	"camhub/retention"
	"camhub/signaling"
	"camhub/storage"
	"camhub/transcode"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file:", err)
	}

	cfg := config.LoadConfig()
	config.EnsurePaths(cfg)

	index, err := catalog.NewSegmentIndex(cfg.IndexPath())
	if err != nil {
		log.Fatalf("Failed to load segment index: %v", err)
	}
	if dropped := index.Reconcile(); dropped > 0 {
		log.Printf("Segment index reconciled: dropped %d entries with missing files", dropped)
	}

	db, err := database.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open detection store: %v", err)
	}
	defer db.Close()

	hub := events.NewHub()

	commander := registry.NewHTTPCommander(cfg.AgentPort, cfg.ProbeTimeout, cfg.ProbeRetries, cfg.ProbeRetryDelay)
	reg := registry.NewRegistry(commander, hub, cfg.SegmentMinutes)

	ret := retention.NewManager(index, db, hub, cfg.VideosDir, cfg.StorageQuotaBytes, cfg.HighWaterRatio, cfg.LowWaterRatio)

	tr := transcode.NewTranscoder(cfg.FFmpegPath, cfg.FFprobePath)
	clips := clipcache.NewCache(db, index, clipcache.Options{
		ClipsDir:   cfg.ClipsDir,
		Extract:    tr.ExtractClip,
		FrameRate:  tr.GetVideoFrameRate,
		PadSeconds: cfg.ClipPadSeconds,
		MaxSeconds: cfg.ClipMaxSeconds,
		DefaultFPS: cfg.DefaultFPS,
	})

	detector := detectjob.NewRunner(cfg.DetectionCommand, cfg.DetectionArgs, cfg.DetectionWorkers)
	if detector.Enabled() {
		log.Printf("Detection pipeline enabled: %s (max %d workers)", cfg.DetectionCommand, cfg.DetectionWorkers)
	}

	ingestor := ingest.NewIngestor(cfg.VideosDir, index, db, hub, detector)
	ingestor.ProbeDuration(tr.GetVideoDuration)
	ingestor.AfterStore(func(seg catalog.VideoSegment) {
		go ret.CheckAndClean()
	})

	cron.StartRetentionCron(ret)
	cron.StartCameraLivenessCron(reg, commander, cfg.HeartbeatTimeout)

	if cfg.S3Enabled {
		backup, err := storage.NewS3Backup(storage.S3Config{
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Prefix:    "segments",
			BaseURL:   cfg.S3BaseURL,
		})
		if err != nil {
			log.Printf("Offsite backup disabled: %v", err)
		} else {
			cron.StartBackupCron(backup, index)
		}
	}

	if cfg.SerialPort != "" {
		startPanelTrigger(cfg, reg)
	}

	monitoring.StartMonitoring(5 * time.Minute)

	server := api.NewServer(cfg, db, index, reg, ret, clips, hub, ingestor)
	if err := server.Start(); err != nil {
		log.Fatalf("API server failed: %v", err)
	}
}

// startPanelTrigger maps the wired panel's button to streaming on the
// configured camera: "S" starts, "X" stops.
func startPanelTrigger(cfg config.Config, reg *registry.Registry) {
	panel := signaling.NewPanelSignal(cfg.SerialPort, cfg.SerialBaudRate, func(signal string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		switch signal {
		case "S":
			return reg.StartStreaming(ctx, cfg.TriggerCamera, registry.StartOptions{})
		case "X":
			return reg.StopStreaming(ctx, cfg.TriggerCamera)
		default:
			log.Printf("Ignoring unknown panel signal %q", signal)
			return nil
		}
	})
	if err := panel.Connect(); err != nil {
		log.Printf("Panel trigger disabled: %v", err)
		return
	}
	log.Printf("Panel trigger connected on %s for camera %s", cfg.SerialPort, cfg.TriggerCamera)
}

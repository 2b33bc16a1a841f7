package cron

import (
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"camhub/catalog"
	"camhub/storage"
)

// StartBackupCron sweeps the segment catalog every 10 minutes and
// mirrors segments not yet pushed offsite. The synced set lives in
// memory only; after a restart segments are re-uploaded and the bucket
// keeps the latest copy under the same key.
func StartBackupCron(backup *storage.S3Backup, index *catalog.SegmentIndex) {
	go func() {
		var mu sync.Mutex
		synced := make(map[string]bool)

		sweep := func() {
			for _, seg := range index.All() {
				mu.Lock()
				done := synced[seg.Filename]
				mu.Unlock()
				if done {
					continue
				}

				url, err := backup.UploadSegment(seg.Path)
				if err != nil {
					log.Printf("[cron] Backup failed for %s: %v", seg.Filename, err)
					continue
				}
				log.Printf("[cron] Backed up %s to %s", seg.Filename, url)
				mu.Lock()
				synced[seg.Filename] = true
				mu.Unlock()
			}
		}

		schedule := cron.New()
		_, err := schedule.AddFunc("@every 10m", sweep)
		if err != nil {
			log.Fatalf("Error scheduling backup cron: %v", err)
		}

		schedule.Start()
		log.Println("[cron] Offsite backup cron started - will run every 10 minutes")
	}()
}

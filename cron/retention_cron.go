package cron

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"camhub/retention"
)

// StartRetentionCron runs an hourly storage-quota backstop. Uploads
// trigger the check inline; this catches segments that appear on disk
// outside the upload path.
func StartRetentionCron(mgr *retention.Manager) {
	go func() {
		// Initial delay before first run
		time.Sleep(10 * time.Second)

		mgr.CheckAndClean()

		schedule := cron.New()
		_, err := schedule.AddFunc("@hourly", func() {
			mgr.CheckAndClean()
		})
		if err != nil {
			log.Fatalf("Error scheduling retention cron: %v", err)
		}

		schedule.Start()
		log.Println("[cron] Retention cron started - will run hourly")
	}()
}

package cron

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"camhub/registry"
)

// StartCameraLivenessCron checks camera health every minute: sessions
// with no heartbeat inside the timeout go offline, and cameras still
// marked online get an active probe so a silently dead agent is caught
// before its heartbeat window expires.
func StartCameraLivenessCron(reg *registry.Registry, commander registry.Commander, heartbeatTimeout time.Duration) {
	go func() {
		schedule := cron.New()
		_, err := schedule.AddFunc("@every 1m", func() {
			checkCameraLiveness(reg, commander, heartbeatTimeout)
		})
		if err != nil {
			log.Fatalf("Error scheduling camera liveness cron: %v", err)
		}

		schedule.Start()
		log.Println("[cron] Camera liveness cron started - will run every minute")
	}()
}

func checkCameraLiveness(reg *registry.Registry, commander registry.Commander, heartbeatTimeout time.Duration) {
	if stale := reg.MarkStaleOffline(heartbeatTimeout); len(stale) > 0 {
		log.Printf("[cron] Marked stale cameras offline: %v", stale)
	}

	for _, sess := range reg.Snapshot() {
		if !sess.Online {
			continue
		}
		addr := sess.Address
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := commander.Probe(ctx, addr); err == nil {
				reg.Touch(addr)
			}
		}()
	}
}

package detectjob

import (
	"context"
	"log"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"
)

// Runner launches an external detection command against uploaded
// segments, at most maxWorkers at a time. Jobs are fire-and-forget:
// the detector writes its findings straight into the detection store.
type Runner struct {
	command string
	args    []string
	sem     *semaphore.Weighted
}

// NewRunner builds a runner for the configured detection command. An
// empty command disables dispatching entirely.
func NewRunner(command string, args []string, maxWorkers int) *Runner {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Runner{
		command: command,
		args:    args,
		sem:     semaphore.NewWeighted(int64(maxWorkers)),
	}
}

// Enabled reports whether a detection command is configured.
func (r *Runner) Enabled() bool {
	return r.command != ""
}

// Dispatch schedules detection for one stored segment. Returns
// immediately; the job runs on its own goroutine once a worker slot
// frees up.
func (r *Runner) Dispatch(videoID int64, path string) {
	if !r.Enabled() {
		return
	}

	go func() {
		if err := r.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer r.sem.Release(1)

		start := time.Now()
		args := append(append([]string{}, r.args...), "--video-id", strconv.FormatInt(videoID, 10), path)
		cmd := exec.Command(r.command, args...)

		output, err := cmd.CombinedOutput()
		if err != nil {
			log.Printf("[detectjob] Detection failed for video %d: %v (%s)", videoID, err, string(output))
			return
		}
		log.Printf("[detectjob] Detection done for video %d in %.1fs", videoID, time.Since(start).Seconds())
	}()
}

package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"
)

// Commander sends control commands to a camera agent's own HTTP server.
type Commander interface {
	StartFeed(ctx context.Context, address string) error
	StopFeed(ctx context.Context, address string) error
	StartRecording(ctx context.Context, address string, segmentMinutes int) error
	StopRecording(ctx context.Context, address string) error
	Probe(ctx context.Context, address string) error
}

// HTTPCommander talks to the agent endpoints (/start-stream,
// /stop-stream, /start-recording, /stop-recording, /status) exposed on
// the agent's port.
type HTTPCommander struct {
	agentPort  string
	client     *http.Client
	retries    int
	retryDelay time.Duration

	// Failure logging against a camera that stays offline is rate
	// limited to once per minute per address.
	logMu      sync.Mutex
	lastLogged map[string]time.Time
}

const probeLogInterval = time.Minute

// NewHTTPCommander creates a commander for agents listening on agentPort.
func NewHTTPCommander(agentPort string, timeout time.Duration, retries int, retryDelay time.Duration) *HTTPCommander {
	return &HTTPCommander{
		agentPort: agentPort,
		client: &http.Client{
			Timeout: timeout,
		},
		retries:    retries,
		retryDelay: retryDelay,
		lastLogged: make(map[string]time.Time),
	}
}

func (c *HTTPCommander) StartFeed(ctx context.Context, address string) error {
	return c.post(ctx, address, "/start-stream", nil)
}

func (c *HTTPCommander) StopFeed(ctx context.Context, address string) error {
	return c.post(ctx, address, "/stop-stream", nil)
}

func (c *HTTPCommander) StartRecording(ctx context.Context, address string, segmentMinutes int) error {
	return c.post(ctx, address, "/start-recording", map[string]interface{}{
		"segment_minutes": segmentMinutes,
	})
}

func (c *HTTPCommander) StopRecording(ctx context.Context, address string) error {
	return c.post(ctx, address, "/stop-recording", nil)
}

// Probe checks agent liveness with bounded retries and a fixed delay
// between attempts.
func (c *HTTPCommander) Probe(ctx context.Context, address string) error {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.agentURL(address, "/status"), nil)
		if err != nil {
			return err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return nil
		}
		lastErr = fmt.Errorf("agent %s returned status %d", address, resp.StatusCode)
	}

	c.logThrottled(address, lastErr)
	return lastErr
}

func (c *HTTPCommander) post(ctx context.Context, address, path string, body map[string]interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode command body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.agentURL(address, path), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("camera %s unreachable: %v", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("camera %s rejected %s: status %d", address, path, resp.StatusCode)
	}
	return nil
}

func (c *HTTPCommander) agentURL(address, path string) string {
	return "http://" + net.JoinHostPort(address, c.agentPort) + path
}

func (c *HTTPCommander) logThrottled(address string, err error) {
	if err == nil {
		return
	}
	c.logMu.Lock()
	defer c.logMu.Unlock()

	if last, ok := c.lastLogged[address]; ok && time.Since(last) < probeLogInterval {
		return
	}
	c.lastLogged[address] = time.Now()
	log.Printf("[registry] Liveness probe failed for %s: %v", address, err)
}

package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrAddressRequired is returned when a streaming operation is attempted
// without a camera address.
var ErrAddressRequired = errors.New("camera address is required")

// Conn is the handle for a connected camera agent. Implemented by the
// events package's camera socket client.
type Conn interface {
	Send(event string, data interface{}) error
}

// Publisher broadcasts hub state changes to connected app clients.
type Publisher interface {
	Broadcast(event string, data interface{})
}

// StartOptions carries optional parameters for StartStreaming.
type StartOptions struct {
	SegmentMinutes int
	Name           string
	Role           string
}

// CameraSession is the hub's view of one remote camera. Process-wide
// state only; lost and rebuilt on restart.
type CameraSession struct {
	Address   string                 `json:"address"`
	Online    bool                   `json:"online"`
	Streaming bool                   `json:"streaming"`
	LastSeen  time.Time              `json:"lastSeen"`
	Name      string                 `json:"name,omitempty"`
	Role      string                 `json:"role,omitempty"`
	Hostname  string                 `json:"hostname,omitempty"`
	Recording map[string]interface{} `json:"recording,omitempty"`

	conn Conn
}

// Registry tracks every camera session, keyed by camera address, with a
// reverse map from connection handle to address so a disconnect resolves
// its owner without scanning all sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*CameraSession
	handles  map[Conn]string

	commander Commander
	publisher Publisher

	segmentMinutes int // default segment length for start-recording
}

// NewRegistry creates a camera registry. The publisher may be nil (no
// broadcasts); the commander must not be.
func NewRegistry(commander Commander, publisher Publisher, segmentMinutes int) *Registry {
	return &Registry{
		sessions:       make(map[string]*CameraSession),
		handles:        make(map[Conn]string),
		commander:      commander,
		publisher:      publisher,
		segmentMinutes: segmentMinutes,
	}
}

// RegisterConnect records a camera agent's connection handshake.
func (r *Registry) RegisterConnect(address, hostname string, conn Conn) {
	r.mu.Lock()
	sess := r.getOrCreateLocked(address)
	sess.Online = true
	sess.LastSeen = time.Now()
	sess.Hostname = hostname
	if sess.conn != nil && sess.conn != conn {
		delete(r.handles, sess.conn)
	}
	sess.conn = conn
	if conn != nil {
		r.handles[conn] = address
	}
	snapshot := *sess
	r.mu.Unlock()

	log.Printf("[registry] Camera connected: %s (%s)", address, hostname)
	r.publish("camera-status", snapshot)
}

// RegisterDisconnect marks the camera owning the handle offline. The
// owning session is resolved through the reverse map.
func (r *Registry) RegisterDisconnect(conn Conn) {
	r.mu.Lock()
	address, ok := r.handles[conn]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.handles, conn)
	sess := r.sessions[address]
	sess.Online = false
	sess.Streaming = false
	sess.conn = nil
	snapshot := *sess
	r.mu.Unlock()

	log.Printf("[registry] Camera disconnected: %s", address)
	r.publish("camera-status", snapshot)
	r.publish("streaming-status", r.StreamingSummary())
}

// RecordStatus stores a status report pushed by a camera agent over its
// connection and refreshes the session's liveness timestamp.
func (r *Registry) RecordStatus(conn Conn, info map[string]interface{}) {
	r.mu.Lock()
	address, ok := r.handles[conn]
	if !ok {
		r.mu.Unlock()
		return
	}
	sess := r.sessions[address]
	sess.Recording = info
	sess.LastSeen = time.Now()
	sess.Online = true
	r.mu.Unlock()
}

// StartStreaming tells the camera at address to start its live feed and
// begin segmented recording. An empty address is a validation error,
// rejected before any side effect; an unknown-but-provided address
// creates the session.
func (r *Registry) StartStreaming(ctx context.Context, address string, opts StartOptions) error {
	if address == "" {
		return ErrAddressRequired
	}

	segmentMinutes := opts.SegmentMinutes
	if segmentMinutes <= 0 {
		segmentMinutes = r.segmentMinutes
	}

	// A camera with a live socket gets the command pushed down it;
	// otherwise fall back to the agent's HTTP endpoints.
	if conn := r.connFor(address); conn != nil {
		if err := conn.Send("start-recording", map[string]interface{}{"segmentMinutes": segmentMinutes}); err != nil {
			return fmt.Errorf("failed to push start-recording to %s: %v", address, err)
		}
	} else {
		if err := r.commander.StartFeed(ctx, address); err != nil {
			return err
		}
		if err := r.commander.StartRecording(ctx, address, segmentMinutes); err != nil {
			// The camera was already told to start its feed; roll that back.
			// Best effort: a failed rollback is logged, never assumed done.
			if stopErr := r.commander.StopFeed(ctx, address); stopErr != nil {
				log.Printf("[registry] Rollback stop-feed failed for %s: %v", address, stopErr)
			}
			return err
		}
	}

	r.mu.Lock()
	sess := r.getOrCreateLocked(address)
	sess.Online = true
	sess.Streaming = true
	sess.LastSeen = time.Now()
	if opts.Name != "" {
		sess.Name = opts.Name
	}
	if opts.Role != "" {
		sess.Role = opts.Role
	}
	snapshot := *sess
	r.mu.Unlock()

	log.Printf("[registry] Streaming started: %s (%d-minute segments)", address, segmentMinutes)
	r.publish("camera-status", snapshot)
	r.publish("streaming-status", r.StreamingSummary())
	return nil
}

// StopStreaming stops recording on one camera, or on every streaming
// camera when address is empty. Stop commands are best effort: a camera
// that cannot be reached is logged and its session still cleared, so a
// dead camera never wedges the hub's view.
func (r *Registry) StopStreaming(ctx context.Context, address string) error {
	var targets []string
	r.mu.Lock()
	if address != "" {
		targets = append(targets, address)
	} else {
		for addr, sess := range r.sessions {
			if sess.Streaming {
				targets = append(targets, addr)
			}
		}
	}
	r.mu.Unlock()

	for _, addr := range targets {
		if conn := r.connFor(addr); conn != nil {
			if err := conn.Send("stop-recording", nil); err != nil {
				log.Printf("[registry] Failed to push stop-recording to %s: %v", addr, err)
			}
		} else {
			if err := r.commander.StopRecording(ctx, addr); err != nil {
				log.Printf("[registry] Stop-recording failed for %s: %v", addr, err)
			}
			if err := r.commander.StopFeed(ctx, addr); err != nil {
				log.Printf("[registry] Stop-feed failed for %s: %v", addr, err)
			}
		}

		r.mu.Lock()
		if sess, ok := r.sessions[addr]; ok {
			sess.Streaming = false
			snapshot := *sess
			r.mu.Unlock()
			r.publish("camera-status", snapshot)
		} else {
			r.mu.Unlock()
		}
		log.Printf("[registry] Streaming stopped: %s", addr)
	}

	r.publish("streaming-status", r.StreamingSummary())
	return nil
}

// Snapshot returns a copy of every session.
func (r *Registry) Snapshot() []CameraSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]CameraSession, 0, len(r.sessions))
	for _, sess := range r.sessions {
		dup := *sess
		dup.conn = nil
		out = append(out, dup)
	}
	return out
}

// Get returns a copy of the session at address.
func (r *Registry) Get(address string) (CameraSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[address]
	if !ok {
		return CameraSession{}, false
	}
	dup := *sess
	dup.conn = nil
	return dup, true
}

// AnyStreaming reports whether any camera is currently streaming. It is
// recomputed from the full registry on every call rather than tracked as
// a separate flag, so it cannot drift from the per-session state.
func (r *Registry) AnyStreaming() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sess := range r.sessions {
		if sess.Streaming {
			return true
		}
	}
	return false
}

// AnyOnline reports whether any camera is currently connected.
func (r *Registry) AnyOnline() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sess := range r.sessions {
		if sess.Online {
			return true
		}
	}
	return false
}

// StreamingSummary returns the payload broadcast with streaming-status
// events.
func (r *Registry) StreamingSummary() map[string]interface{} {
	return map[string]interface{}{
		"anyStreaming": r.AnyStreaming(),
		"anyOnline":    r.AnyOnline(),
	}
}

// MarkStaleOffline flips sessions with no traffic within timeout to
// offline and returns their addresses. Run periodically as the
// overdue-heartbeat backstop.
func (r *Registry) MarkStaleOffline(timeout time.Duration) []string {
	cutoff := time.Now().Add(-timeout)

	var stale []string
	r.mu.Lock()
	for addr, sess := range r.sessions {
		if sess.Online && sess.LastSeen.Before(cutoff) {
			sess.Online = false
			sess.Streaming = false
			stale = append(stale, addr)
		}
	}
	r.mu.Unlock()

	for _, addr := range stale {
		log.Printf("[registry] Camera %s overdue, marked offline", addr)
		if sess, ok := r.Get(addr); ok {
			r.publish("camera-status", sess)
		}
	}
	if len(stale) > 0 {
		r.publish("streaming-status", r.StreamingSummary())
	}
	return stale
}

// Touch refreshes a session's liveness timestamp, creating the session
// if the address is new. Used by the liveness probe.
func (r *Registry) Touch(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := r.getOrCreateLocked(address)
	sess.Online = true
	sess.LastSeen = time.Now()
}

// connFor returns the live agent socket for address, or nil.
func (r *Registry) connFor(address string) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[address]; ok {
		return sess.conn
	}
	return nil
}

func (r *Registry) getOrCreateLocked(address string) *CameraSession {
	sess, ok := r.sessions[address]
	if !ok {
		sess = &CameraSession{Address: address}
		r.sessions[address] = sess
	}
	return sess
}

func (r *Registry) publish(event string, data interface{}) {
	if r.publisher != nil {
		r.publisher.Broadcast(event, data)
	}
}

package events

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"camhub/registry"
)

// CameraSocket is the hub side of one camera agent's WebSocket. It
// satisfies registry.Conn so the registry can push commands and status
// back down the same connection.
type CameraSocket struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

// Send pushes one event down to the camera agent.
func (s *CameraSocket) Send(event string, data interface{}) error {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// ServeCameraWS handles a camera agent's persistent connection. The
// agent must open with a camera-connected event carrying its hostname
// and address; after that it streams recording-status-update events
// until it drops.
func ServeCameraWS(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[events] Camera WebSocket upgrade failed: %v", err)
			return
		}
		sock := &CameraSocket{conn: conn}

		conn.SetReadLimit(readLimit)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		address, ok := handshake(conn, sock, reg, c.ClientIP())
		if !ok {
			conn.Close()
			return
		}

		defer func() {
			reg.RegisterDisconnect(sock)
			conn.Close()
			log.Printf("[events] Camera disconnected: %s", address)
		}()

		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[events] Camera read error for %s: %v", address, err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(pongWait))

			switch env.Event {
			case "recording-status-update":
				if info, ok := env.Data.(map[string]interface{}); ok {
					reg.RecordStatus(sock, info)
				}
				reg.Touch(address)
			case "heartbeat":
				reg.Touch(address)
			default:
				log.Printf("[events] Unknown camera event %q from %s", env.Event, address)
			}
		}
	}
}

// handshake reads the opening camera-connected event and registers the
// session. The address defaults to the connection's remote IP when the
// agent does not report one.
func handshake(conn *websocket.Conn, sock *CameraSocket, reg *registry.Registry, remoteIP string) (string, bool) {
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		log.Printf("[events] Camera handshake read failed: %v", err)
		return "", false
	}
	if env.Event != "camera-connected" {
		log.Printf("[events] Camera handshake expected camera-connected, got %q", env.Event)
		return "", false
	}

	var hostname, address string
	if info, ok := env.Data.(map[string]interface{}); ok {
		hostname, _ = info["hostname"].(string)
		address, _ = info["address"].(string)
	}
	if address == "" {
		address = remoteIP
	}
	if address == "" {
		log.Printf("[events] Camera handshake carried no address and remote IP is unknown")
		return "", false
	}

	reg.RegisterConnect(address, hostname, sock)
	log.Printf("[events] Camera connected: %s (%s)", address, hostname)
	return address, true
}

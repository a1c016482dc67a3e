package main

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"hb_sweep_engine/logx"

	"github.com/gorilla/websocket"
)

// WSHub manages WebSocket connections and broadcasts sweep state to any
// attached monitor (browser dashboard, scripts)
type WSHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan WSMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.RWMutex
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type string      `json:"type"` // "progress", "result", "summary", "status"
	Data interface{} `json:"data"` // Payload data
	Time int64       `json:"time"` // Unix timestamp
}

var wsHub *WSHub
var webMonitorEnabled = false

// WSMessageType constants
const (
	MsgTypeProgress = "progress"
	MsgTypeResult   = "result"
	MsgTypeSummary  = "summary"
	MsgTypeStatus   = "status"
)

// StartWebMonitor starts the HTTP/WebSocket monitor server in the background
func StartWebMonitor(port int) {
	wsHub = &WSHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan WSMessage, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
	go wsHub.run()
	webMonitorEnabled = true

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHub.handleWebSocket)

	addr := fmt.Sprintf(":%d", port)
	fmt.Printf("%s live monitor on ws://localhost%s/ws\n", logx.Channel("PROG"), addr)

	go func() {
		if err := http.ListenAndServe(addr, corsMiddleware(mux)); err != nil {
			fmt.Printf("%s %s\n", logx.Channel("PROG"), logx.Warnf("monitor server stopped: %v", err))
		}
	}()
}

// handleWebSocket handles WebSocket connections
func (hub *WSHub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Upgrade(w, r, nil, 0, 0)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	hub.register <- ws
	defer func() {
		hub.unregister <- ws
		ws.Close()
	}()

	// Greet new connections so clients know the stream is live
	ws.WriteJSON(WSMessage{
		Type: MsgTypeStatus,
		Data: map[string]interface{}{"status": "running", "msg": "monitor connected"},
		Time: time.Now().Unix(),
	})

	// Read messages from client (ping/heartbeat only)
	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			break
		}
	}
}

// run processes messages in the hub
func (hub *WSHub) run() {
	for {
		select {
		case client := <-hub.register:
			hub.mutex.Lock()
			hub.clients[client] = true
			hub.mutex.Unlock()

		case client := <-hub.unregister:
			hub.mutex.Lock()
			delete(hub.clients, client)
			hub.mutex.Unlock()

		case message := <-hub.broadcast:
			hub.mutex.RLock()
			for client := range hub.clients {
				if err := client.WriteJSON(message); err != nil {
					// Client disconnected, will be cleaned up by unregister
					continue
				}
			}
			hub.mutex.RUnlock()
		}
	}
}

// Broadcast sends a message to all connected clients
func Broadcast(msgType string, data interface{}) {
	if !webMonitorEnabled || wsHub == nil {
		return
	}

	msg := WSMessage{
		Type: msgType,
		Data: data,
		Time: time.Now().Unix(),
	}

	select {
	case wsHub.broadcast <- msg:
		// Message queued
	default:
		// Channel full, skip this message (backpressure protection)
	}
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// FindAvailablePort finds an available port starting from startPort
func FindAvailablePort(startPort int) int {
	for port := startPort; port < startPort+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			ln.Close()
			return port
		}
	}
	return startPort // fallback
}

// sweepProgressData is the websocket payload for progress updates
type sweepProgressData struct {
	SweepID   string  `json:"sweep_id"`
	Completed int64   `json:"completed"`
	Failed    int64   `json:"failed"`
	TimedOut  int64   `json:"timed_out"`
	Total     int64   `json:"total"`
	Percent   float64 `json:"percent"`
	Rate      float64 `json:"rate_per_sec"`
	ETASec    int64   `json:"eta_sec"`
	Best      float64 `json:"best,omitempty"`
	BestRunID int64   `json:"best_run_id,omitempty"`
}

// SendSweepProgress broadcasts a scheduler progress snapshot
func SendSweepProgress(sweepID string, p Progress) {
	Broadcast(MsgTypeProgress, sweepProgressData{
		SweepID:   sweepID,
		Completed: p.Completed,
		Failed:    p.Failed,
		TimedOut:  p.TimedOut,
		Total:     p.Total,
		Percent:   p.Percent,
		Rate:      p.Rate,
		ETASec:    int64(p.ETA.Seconds()),
		Best:      p.BestValue,
		BestRunID: p.BestRunID,
	})
}

// SendSweepSummary broadcasts the final summary when the sweep drains
func SendSweepSummary(s Summary) {
	Broadcast(MsgTypeSummary, s)
}

// SendStatus broadcasts a lifecycle status change
func SendStatus(status, msg string) {
	Broadcast(MsgTypeStatus, map[string]interface{}{"status": status, "msg": msg})
}

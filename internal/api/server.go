// Package api serves the local HTTP surface of the driver: device status,
// recent recorded frames, LED control, and live frame streams over SSE and
// websocket.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/headtrack/internal/framedb"
	"github.com/banshee-data/headtrack/internal/monitoring"
	"github.com/banshee-data/headtrack/internal/trackir"
)

// Controller is the slice of the device session the API needs.
type Controller interface {
	State() trackir.DeviceState
	FrameCount() uint64
	SetLED(mask, intensity byte) error
	SetIllumination(on bool) error
}

// Server exposes one session over HTTP. The frame store is optional; the
// recent-frames endpoint reports unavailable without it.
type Server struct {
	ctrl     Controller
	db       *framedb.DB
	hub      *Hub
	upgrader websocket.Upgrader
	started  time.Time
}

func NewServer(ctrl Controller, db *framedb.DB, hub *Hub) *Server {
	return &Server{
		ctrl: ctrl,
		db:   db,
		hub:  hub,
		upgrader: websocket.Upgrader{
			// local tooling talks to this from file:// pages and odd origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		started: time.Now(),
	}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/frames/recent", s.handleRecentFrames)
	mux.HandleFunc("/api/led", s.handleLED)
	mux.HandleFunc("/api/tail", s.handleTail)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/", s.handleHome)
	return mux
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("headtrack driver API\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := map[string]any{
		"state":          s.ctrl.State().String(),
		"frames":         s.ctrl.FrameCount(),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	}
	writeJSON(w, status)
}

func (s *Server) handleRecentFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		http.Error(w, "Frame store not configured", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	frames, err := s.db.RecentFrames(limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to query frames: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, frames)
}

// handleLED accepts either on=true/false or mask+intensity byte values.
func (s *Server) handleLED(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var err error
	switch {
	case r.FormValue("on") != "":
		var on bool
		on, err = strconv.ParseBool(r.FormValue("on"))
		if err != nil {
			http.Error(w, "Invalid on value", http.StatusBadRequest)
			return
		}
		err = s.ctrl.SetIllumination(on)

	case r.FormValue("mask") != "":
		mask, maskErr := parseByte(r.FormValue("mask"))
		intensity, intErr := parseByte(r.FormValue("intensity"))
		if maskErr != nil || intErr != nil {
			http.Error(w, "Invalid mask or intensity", http.StatusBadRequest)
			return
		}
		err = s.ctrl.SetLED(mask, intensity)

	default:
		http.Error(w, "Missing on or mask parameter", http.StatusBadRequest)
		return
	}

	if err != nil {
		http.Error(w, fmt.Sprintf("LED command failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Write([]byte("ok\n"))
}

// handleTail streams frame summaries as Server-Sent Events.
func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)

	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case summary, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(summary)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// handleWS pushes frame summaries as JSON over a websocket.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id, ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)

	for {
		select {
		case summary, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(summary); err != nil {
				monitoring.Logf("ws client dropped: %v", err)
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("failed to encode response: %v", err)
	}
}

func parseByte(s string) (byte, error) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, err
	}
	return byte(n), nil
}

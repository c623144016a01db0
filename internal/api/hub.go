package api

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/banshee-data/headtrack/internal/track"
	"github.com/banshee-data/headtrack/internal/trackir"
)

// FrameSummary is the JSON shape pushed to SSE and websocket clients.
type FrameSummary struct {
	Type      string      `json:"type"`
	Length    int         `json:"length"`
	Timestamp time.Time   `json:"timestamp"`
	Pixels    int         `json:"pixels,omitempty"`
	Stats     track.Stats `json:"stats,omitzero"`
}

// Summarize flattens a decoded frame for the streaming endpoints.
func Summarize(f trackir.Frame) FrameSummary {
	s := FrameSummary{
		Type:      trackir.TypeName(f),
		Length:    int(f.Length()),
		Timestamp: f.Timestamp(),
	}
	if df, ok := f.(*trackir.DataFrame); ok {
		s.Pixels = len(df.Pixels)
		s.Stats = track.FrameStats(df.Pixels)
	}
	return s
}

// Hub fans frame summaries out to streaming clients without blocking the
// reader loop: a slow client misses frames instead of stalling the device.
type Hub struct {
	mu   sync.Mutex
	subs map[string]chan FrameSummary
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan FrameSummary)}
}

// Subscribe registers a new client channel and returns its ID for
// Unsubscribe.
func (h *Hub) Subscribe() (string, chan FrameSummary) {
	id := randomID()
	ch := make(chan FrameSummary, 8)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a client channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		close(ch)
		delete(h.subs, id)
	}
}

// Publish delivers a summary to every subscriber that has room.
func (h *Hub) Publish(s FrameSummary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- s:
		default:
			// client is behind; skip rather than block the reader
		}
	}
}

// randomID generates an 8-byte hex channel ID.
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Package presence pushes session state changes to a device's open tabs
// over WebSocket.
package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Hub manages active WebSocket connections per device and tab.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewHub creates an empty presence hub.
func NewHub() *Hub {
	return &Hub{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Register adds a connection for a device/tab. An existing connection for
// the same tab is replaced and closed.
func (h *Hub) Register(userID, tabID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[userID]; !exists {
		h.active[userID] = make(map[string]*websocket.Conn)
	}

	if existing, exists := h.active[userID][tabID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "tab replaced")
	}

	h.active[userID][tabID] = conn
	slog.Info("Presence connection registered", "user_id", userID, "tab_id", tabID)
}

// Unregister removes a connection for a device/tab. Stale unregisters
// (the tab reconnected first) are ignored.
func (h *Hub) Unregister(userID, tabID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if tabs, ok := h.active[userID]; ok {
		if current, exists := tabs[tabID]; exists && current == conn {
			delete(tabs, tabID)
			if len(tabs) == 0 {
				delete(h.active, userID)
			}
			slog.Info("Presence connection unregistered", "user_id", userID, "tab_id", tabID)
		}
	}
}

// ActiveTabs returns the number of connected tabs for a device.
func (h *Hub) ActiveTabs(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[userID])
}

// Broadcast sends an event to every connected tab of a device. Writes to
// dead connections are logged and skipped; the read loop of the affected
// tab handles the actual teardown.
func (h *Hub) Broadcast(userID string, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal presence event", "error", err, "user_id", userID)
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.active[userID]))
	for _, conn := range h.active[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			slog.Debug("Presence write failed", "error", err, "user_id", userID)
		}
		cancel()
	}
}

// CloseDevice forcefully closes all connections for a device.
func (h *Hub) CloseDevice(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tabs, ok := h.active[userID]
	if !ok {
		return
	}

	for tid, conn := range tabs {
		_ = conn.Close(websocket.StatusNormalClosure, "device closed")
		slog.Info("Presence connection closed", "user_id", userID, "tab_id", tid)
	}
	delete(h.active, userID)
}

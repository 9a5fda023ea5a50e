// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ws fans live relay events out to dashboard websockets.
//
// Delivery is best effort: a subscriber that cannot keep up is
// disconnected rather than allowed to apply backpressure to the probe
// or combo runs producing the events. Per-subscriber ordering is
// preserved; cross-subscriber ordering is not guaranteed.
package ws

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Frame types pushed to subscribers.
const (
	FrameProbeStarted      = "probe_started"
	FrameProbeFinished     = "probe_finished"
	FrameSweepStarted      = "sweep_started"
	FrameProfileComplete   = "profile_complete"
	FrameComboProgress     = "combo_test_progress"
	FrameComboResult       = "combo_test_result"
	FrameComboMainExcluded = "combo_test_main_excluded"
	FrameComboError        = "combo_test_error"
	FrameComboCompleted    = "combo_test_completed"
	FrameFailureLogged     = "failure_logged"
	FrameWorkspaceSwitch   = "workspace_switched"
	FrameStatus            = "status"
	FrameSystemMetrics     = "system_metrics"
	FrameSessionCreated    = "session_created"
	FrameSessionUpdated    = "session_updated"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

// Frame is the wire envelope: {"type": ..., "data": {...}}.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan Frame
}

// Hub tracks subscribers and broadcasts frames.
//
// Thread Safety: safe for concurrent use.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber

	// onCountChange reports the live subscriber count, for the active
	// websocket gauge. May be nil.
	onCountChange func(n int)
}

// NewHub builds an empty hub. onCountChange may be nil.
func NewHub(onCountChange func(n int)) *Hub {
	return &Hub{
		subscribers:   make(map[string]*subscriber),
		onCountChange: onCountChange,
	}
}

// Broadcast queues a frame for every subscriber. Subscribers with full
// buffers are disconnected.
func (h *Hub) Broadcast(frameType string, data any) {
	frame := Frame{Type: frameType, Data: data}

	h.mu.RLock()
	var stale []*subscriber
	for _, sub := range h.subscribers {
		select {
		case sub.send <- frame:
		default:
			stale = append(stale, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range stale {
		slog.Warn("websocket subscriber lagging, disconnecting", "subscriber_id", sub.id)
		h.remove(sub)
	}
}

// Serve registers an upgraded connection and pumps frames until the
// peer goes away. Blocks; call from the connection's handler goroutine.
func (h *Hub) Serve(conn *websocket.Conn) {
	sub := &subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Frame, sendBufferSize),
	}

	h.mu.Lock()
	h.subscribers[sub.id] = sub
	count := len(h.subscribers)
	h.mu.Unlock()
	h.notifyCount(count)
	slog.Info("websocket subscriber connected", "subscriber_id", sub.id, "total", count)

	// The subscriber learns its session id before any broadcast frame.
	sub.send <- Frame{Type: FrameSessionCreated, Data: map[string]any{"session_id": sub.id}}

	go h.readPump(sub)
	h.writePump(sub)
}

// readPump drains the connection (pong handling lives here) and tears
// the subscriber down when the peer closes.
func (h *Hub) readPump(sub *subscriber) {
	defer h.remove(sub)
	sub.conn.SetReadLimit(1024)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(sub)
	}()

	for {
		select {
		case frame, ok := <-sub.send:
			if !ok {
				return
			}
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[sub.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subscribers, sub.id)
	count := len(h.subscribers)
	close(sub.send)
	h.mu.Unlock()

	_ = sub.conn.Close()
	h.notifyCount(count)
	slog.Info("websocket subscriber disconnected", "subscriber_id", sub.id, "total", count)
}

func (h *Hub) notifyCount(n int) {
	if h.onCountChange != nil {
		h.onCountChange(n)
	}
}

// Heartbeat broadcasts a status frame with basic process metrics every
// interval until ctx is canceled. Blocks; run it in its own goroutine.
func (h *Hub) Heartbeat(ctx context.Context, interval time.Duration) {
	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.Count() == 0 {
				continue
			}
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			h.Broadcast(FrameStatus, map[string]any{
				"uptime_seconds": int64(time.Since(start).Seconds()),
				"subscribers":    h.Count(),
			})
			h.Broadcast(FrameSystemMetrics, map[string]any{
				"goroutines":    runtime.NumGoroutine(),
				"heap_alloc_mb": mem.HeapAlloc / (1 << 20),
				"num_cpu":       runtime.NumCPU(),
			})
		}
	}
}

// Shutdown disconnects every subscriber. Hijacked websocket
// connections are outside http.Server.Shutdown's drain, so the hub
// closes them itself during process shutdown.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()
	for _, sub := range subs {
		h.remove(sub)
	}
}

// Count returns the live subscriber count.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mirror-control/mcc/internal/config"
	"github.com/mirror-control/mcc/internal/mirror"
)

// ErrHubStopped is returned by Publish once Stop has been called.
var ErrHubStopped = errors.New("telemetry hub stopped")

// Event is one SSE frame.
type Event struct {
	ID   int64                  `json:"id,omitempty"`
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
	at   time.Time
}

// StatusFunc supplies the snapshot sent in the ready event.
type StatusFunc func() interface{}

// Client represents an SSE client connection.
type Client struct {
	ID      string
	Writer  http.ResponseWriter
	Request *http.Request
	Context context.Context
	Cancel  context.CancelFunc
	LastID  int64
	Events  chan Event
	once    sync.Once
	mu      sync.Mutex // Protect Writer access
}

// Hub manages SSE telemetry distribution.
//
// Lock ordering: h.mu before EventBuffer.mu. Client channels are closed
// through Client.once.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	lastID  int64 // atomic

	buffer *EventBuffer
	config *config.TimingConfig
	status StatusFunc

	heartbeatTicker *time.Ticker
	stopHeartbeat   chan bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHub creates a telemetry hub. status may be nil.
func NewHub(timingConfig *config.TimingConfig, status StatusFunc) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		buffer:  NewEventBuffer(timingConfig.EventBufferSize, timingConfig.EventBufferRetention),
		config:  timingConfig,
		status:  status,
		done:    make(chan struct{}),
	}
}

// Subscribe streams events to w until ctx ends or the hub stops.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")

	clientCtx, cancel := context.WithCancel(ctx)

	lastEventID := int64(0)
	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if id, err := strconv.ParseInt(lastIDStr, 10, 64); err == nil {
			lastEventID = id
		}
	}

	client := &Client{
		ID:      uuid.NewString(),
		Writer:  w,
		Request: r,
		Context: clientCtx,
		Cancel:  cancel,
		LastID:  lastEventID,
		Events:  make(chan Event, 100),
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	if err := h.sendReadyEvent(client); err != nil {
		h.unregisterClient(client.ID)
		return fmt.Errorf("failed to send ready event: %w", err)
	}

	if lastEventID > 0 {
		for _, event := range h.buffer.GetEventsAfter(lastEventID) {
			if err := h.sendEventToClient(client, event); err != nil {
				h.unregisterClient(client.ID)
				return fmt.Errorf("failed to replay events: %w", err)
			}
		}
	}

	h.mu.Lock()
	if len(h.clients) == 1 && h.heartbeatTicker == nil {
		h.startHeartbeat()
	}
	h.mu.Unlock()

	h.handleClient(client)
	return nil
}

// HandleEvent publishes a mirror event.
func (h *Hub) HandleEvent(ev mirror.Event) {
	data := map[string]interface{}{
		"snapshot": ev.Snapshot,
	}
	if ev.Err != nil {
		data["code"] = mirror.StatusOf(ev.Err)
		data["error"] = ev.Err.Error()
	}
	if err := h.Publish(Event{Type: ev.Type.String(), Data: data}); err != nil {
		log.Printf("telemetry: publish %s event: %v", ev.Type, err)
	}
}

// Publish assigns the next event ID, buffers the event and sends it to
// every client. Slow clients drop events.
func (h *Hub) Publish(event Event) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	if event.ID == 0 {
		event.ID = atomic.AddInt64(&h.lastID, 1)
	}
	if event.Type != "heartbeat" {
		h.buffer.AddEvent(event)
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case <-client.Context.Done():
			continue
		case <-h.done:
			return ErrHubStopped
		case client.Events <- event:
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) sendReadyEvent(client *Client) error {
	data := map[string]interface{}{}
	if h.status != nil {
		data["snapshot"] = h.status()
	}
	return h.sendEventToClient(client, Event{
		ID:   atomic.LoadInt64(&h.lastID),
		Type: "ready",
		Data: data,
	})
}

// sendEventToClient writes one SSE frame and flushes it.
func (h *Hub) sendEventToClient(client *Client, event Event) error {
	client.mu.Lock()
	defer client.mu.Unlock()

	if event.ID > 0 {
		if _, err := fmt.Fprintf(client.Writer, "id: %d\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if _, err := fmt.Fprintf(client.Writer, "event: %s\n", event.Type); err != nil {
		return fmt.Errorf("failed to write event type: %w", err)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(client.Writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event data: %w", err)
	}

	if flusher, ok := client.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

func (h *Hub) handleClient(client *Client) {
	defer func() {
		client.once.Do(func() {
			close(client.Events)
		})
		h.unregisterClient(client.ID)
	}()

	for {
		select {
		case <-client.Context.Done():
			return
		case <-h.done:
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			if err := h.sendEventToClient(client, event); err != nil {
				return
			}
		}
	}
}

func (h *Hub) unregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, exists := h.clients[clientID]
	if !exists {
		return
	}
	client.Cancel()
	delete(h.clients, clientID)

	if len(h.clients) == 0 && h.heartbeatTicker != nil {
		h.heartbeatTicker.Stop()
		h.heartbeatTicker = nil
		if h.stopHeartbeat != nil {
			close(h.stopHeartbeat)
			h.stopHeartbeat = nil
		}
	}
}

// startHeartbeat starts the heartbeat ticker. Caller holds h.mu and has
// checked h.heartbeatTicker == nil.
func (h *Hub) startHeartbeat() {
	interval := h.config.HeartbeatInterval + h.config.HeartbeatJitter/2

	h.heartbeatTicker = time.NewTicker(interval)
	h.stopHeartbeat = make(chan bool)
	ticker := h.heartbeatTicker
	stopChan := h.stopHeartbeat

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-ticker.C:
				h.sendHeartbeat()
			case <-stopChan:
				return
			case <-h.done:
				return
			}
		}
	}()
}

func (h *Hub) sendHeartbeat() {
	_ = h.Publish(Event{
		Type: "heartbeat",
		Data: map[string]interface{}{
			"ts": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// Stop disconnects every client and stops the heartbeat. It is safe to call
// more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		for _, client := range h.clients {
			client.Cancel()
		}
		if h.heartbeatTicker != nil {
			h.heartbeatTicker.Stop()
			h.heartbeatTicker = nil
		}
		if h.stopHeartbeat != nil {
			close(h.stopHeartbeat)
			h.stopHeartbeat = nil
		}
		h.mu.Unlock()

		done := make(chan struct{})
		go func() {
			h.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	})
}

// EventBuffer keeps the most recent events for replay.
type EventBuffer struct {
	mu        sync.RWMutex
	events    []Event
	capacity  int
	retention time.Duration
	now       func() time.Time
}

// NewEventBuffer creates a buffer holding up to capacity events no older
// than retention. A zero retention keeps events until displaced.
func NewEventBuffer(capacity int, retention time.Duration) *EventBuffer {
	return &EventBuffer{
		events:    make([]Event, 0, capacity),
		capacity:  capacity,
		retention: retention,
		now:       time.Now,
	}
}

// AddEvent appends event, displacing the oldest beyond capacity.
func (b *EventBuffer) AddEvent(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.capacity <= 0 {
		return
	}
	event.at = b.now()
	b.events = append(b.events, event)
	if len(b.events) > b.capacity {
		b.events = b.events[len(b.events)-b.capacity:]
	}
}

// GetEventsAfter returns retained events with an ID above lastID.
func (b *EventBuffer) GetEventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var cutoff time.Time
	if b.retention > 0 {
		cutoff = b.now().Add(-b.retention)
	}
	var result []Event
	for _, event := range b.events {
		if event.ID > lastID && event.at.After(cutoff) {
			result = append(result, event)
		}
	}
	return result
}

// GetCapacity returns the buffer capacity.
func (b *EventBuffer) GetCapacity() int {
	return b.capacity
}

// GetSize returns the current buffer size.
func (b *EventBuffer) GetSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/arbiter/pkg/domain"
)

// StreamManager fans engine events out to SSE subscribers, keyed by
// session. It implements ports.Transport, so it plugs straight into
// arbiter.WithTransport.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{}
	logger      *slog.Logger
}

// NewStreamManager creates an empty stream registry.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
	}
}

// Publish implements ports.Transport: the event goes to every subscriber
// of its session as a pre-rendered SSE frame.
func (sm *StreamManager) Publish(_ context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	sm.Broadcast(event.SessionID, fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, data))
	return nil
}

// Subscribe registers a listener for one session. The returned cancel
// removes and closes the channel.
func (sm *StreamManager) Subscribe(sessionID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 16)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sessionID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sessionID)
			}
		}
	}
}

// Broadcast sends a frame to all subscribers of a session. Slow clients
// drop frames instead of blocking the engine.
func (sm *StreamManager) Broadcast(sessionID, frame string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[sessionID] {
		select {
		case ch <- frame:
		default:
			sm.logger.Warn("sse client buffer full, dropping frame", "session_id", sessionID)
		}
	}
}

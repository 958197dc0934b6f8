// Package events fans board changes out to Server-Sent Events subscribers.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const (
	subscriberBuffer  = 16
	heartbeatInterval = 25 * time.Second
)

type Event struct {
	Type    string `json:"type"`
	Entity  string `json:"entity,omitempty"`
	BoardID string `json:"boardId"`
	ListID  string `json:"listId,omitempty"`
	CardID  string `json:"cardId,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Bus keeps per-board subscriber channels. Slow subscribers miss events
// rather than blocking publishers.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string]map[chan []byte]struct{}
	heartbeat time.Duration
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[chan []byte]struct{}), heartbeat: heartbeatInterval}
}

func (b *Bus) Subscribe(boardID string) (ch chan []byte, cancel func()) {
	ch = make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	if b.subs[boardID] == nil {
		b.subs[boardID] = make(map[chan []byte]struct{})
	}
	b.subs[boardID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.subs[boardID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, boardID)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish is a no-op on a nil Bus or an event without a board.
func (b *Bus) Publish(ev Event) {
	if b == nil || ev.BoardID == "" {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[ev.BoardID] {
		select {
		case ch <- data:
		default:
		}
	}
}

// Subscribers reports the number of open streams on a board.
func (b *Bus) Subscribers(boardID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[boardID])
}

// ServeSSE streams a board's events until the client disconnects.
func (b *Bus) ServeSSE(w http.ResponseWriter, r *http.Request, boardID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := b.Subscribe(boardID)
	defer cancel()

	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			// heartbeat keeps idle proxies from closing the stream
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

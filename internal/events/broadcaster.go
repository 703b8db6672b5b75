// Package events streams scan detections to HTTP clients as Server-Sent Events.
package events

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/clusterscan/pkg/models"
)

// WriteTimeout bounds a single write to a subscriber.
const WriteTimeout = 2 * time.Second

// Event types.
const (
	TypeConnected = "connected"
	TypeDetection = "detection"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// Event is one message on the stream.
type Event struct {
	Type      string            `json:"type"`
	PatchID   string            `json:"patch_id,omitempty"`
	Detection *models.Detection `json:"detection,omitempty"`
}

type subscriber struct {
	w       http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
	once    sync.Once
	id      int

	// writes tracks in-flight writes to w. Once retired is set no new write
	// may start, so the handler can wait for writes to drain before returning.
	writeMu sync.Mutex
	retired bool
	writes  sync.WaitGroup
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// beginWrite reserves a write slot. It fails once the handler has retired.
func (s *subscriber) beginWrite() bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.retired {
		return false
	}
	s.writes.Add(1)
	return true
}

// retire blocks new writes and waits for in-flight ones to return.
func (s *subscriber) retire() {
	s.writeMu.Lock()
	s.retired = true
	s.writeMu.Unlock()
	s.writes.Wait()
}

// Broadcaster fans detections out to connected subscribers. It satisfies the
// scanner's sink contract, so it can sit alongside the CSV and database sinks.
type Broadcaster struct {
	subs   map[int]*subscriber
	mu     sync.RWMutex
	nextID int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]*subscriber)}
}

func (b *Broadcaster) subscribe(w http.ResponseWriter) (*subscriber, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	b.mu.Lock()
	b.nextID++
	sub := &subscriber{id: b.nextID, w: w, flusher: flusher, done: make(chan struct{})}
	b.subs[sub.id] = sub
	n := len(b.subs)
	b.mu.Unlock()

	log.Debug().Int("subscriber", sub.id).Int("total", n).Msg("Event subscriber connected")
	return sub, nil
}

func (b *Broadcaster) unsubscribe(id int) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	delete(b.subs, id)
	n := len(b.subs)
	b.mu.Unlock()

	if ok {
		sub.close()
		log.Debug().Int("subscriber", id).Int("total", n).Msg("Event subscriber removed")
	}
}

// Len returns the number of connected subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish sends ev to every subscriber. Subscribers that fail or stall past
// WriteTimeout are dropped.
func (b *Broadcaster) Publish(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := []byte("data: " + string(payload) + "\n\n")

	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	dead := make(chan int, len(subs))
	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		go func(s *subscriber) {
			defer wg.Done()
			if !deliver(s, msg) {
				dead <- s.id
			}
		}(s)
	}
	wg.Wait()
	close(dead)

	for id := range dead {
		b.unsubscribe(id)
	}
	return nil
}

// deliver reports whether msg reached s in time. The write carries a
// deadline so a stalled client cannot hold the handler open indefinitely.
func deliver(s *subscriber, msg []byte) bool {
	if !s.beginWrite() {
		return true
	}

	result := make(chan error, 1)
	go func() {
		defer s.writes.Done()
		_ = http.NewResponseController(s.w).SetWriteDeadline(time.Now().Add(WriteTimeout))
		_, err := s.w.Write(msg)
		if err == nil {
			s.flusher.Flush()
		}
		result <- err
	}()

	select {
	case err := <-result:
		if err != nil {
			log.Debug().Err(err).Int("subscriber", s.id).Msg("Event write failed")
			return false
		}
		return true
	case <-time.After(WriteTimeout):
		log.Warn().Int("subscriber", s.id).Dur("timeout", WriteTimeout).Msg("Event write timed out")
		return false
	case <-s.done:
		return true
	}
}

// Write publishes a detection event.
func (b *Broadcaster) Write(_ context.Context, d models.Detection, _ models.PatchData) error {
	return b.Publish(Event{Type: TypeDetection, PatchID: d.PatchID(), Detection: &d})
}

// Close drops every subscriber.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[int]*subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
	return nil
}

// ServeHTTP holds the connection open and streams events until the client
// goes away or the broadcaster is closed.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, ErrStreamingUnsupported.Error(), http.StatusInternalServerError)
		return
	}
	hello, _ := json.Marshal(Event{Type: TypeConnected})
	if _, err := fmt.Fprintf(w, "data: %s\n\n", hello); err != nil {
		return
	}
	flusher.Flush()

	// Subscribe only after the greeting so Publish never races it.
	sub, err := b.subscribe(w)
	if err != nil {
		return
	}
	defer b.unsubscribe(sub.id)

	select {
	case <-r.Context().Done():
	case <-sub.done:
	}
	// w must not be written after the handler returns.
	sub.retire()
}

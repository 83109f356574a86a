package server

import (
	"context"
	"sync"
	"time"
)

const (
	EventRevisionSubmitted = "revision-submitted"
	EventRevisionApproved  = "revision-approved"
	EventRevisionRejected  = "revision-rejected"
	EventRevisionAmended   = "revision-amended"
	eventHeartbeat         = "heartbeat"
	eventSource            = "dong-backend"
)

// ReviewEvent notifies reviewers that a revision changed state.
type ReviewEvent struct {
	EventType  string    `json:"-"`
	RevisionID string    `json:"revisionId"`
	Character  string    `json:"character"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// ReviewDispatcher fans review events out to connected subscribers. Slow subscribers
// drop events rather than block publishers.
type ReviewDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*reviewSubscriber
	nextID      int64
	bufferSize  int
}

type reviewSubscriber struct {
	id        int64
	character string
	stream    chan ReviewEvent
}

func NewReviewDispatcher() *ReviewDispatcher {
	return &ReviewDispatcher{
		subscribers: make(map[int64]*reviewSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a subscriber until ctx is done or the returned cleanup runs.
// A non-empty character limits the stream to events about that character.
func (d *ReviewDispatcher) Subscribe(ctx context.Context, character string) (<-chan ReviewEvent, func()) {
	subscriber := &reviewSubscriber{
		character: character,
		stream:    make(chan ReviewEvent, d.bufferSize),
	}
	d.register(subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregister(subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *ReviewDispatcher) Publish(event ReviewEvent) {
	if event.EventType == "" || event.RevisionID == "" {
		return
	}
	d.mu.RLock()
	copies := make([]*reviewSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		if subscriber.character != "" && subscriber.character != event.Character {
			continue
		}
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

func (d *ReviewDispatcher) register(subscriber *reviewSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
}

func (d *ReviewDispatcher) unregister(subscriberID int64) {
	d.mu.Lock()
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
}

func (d *ReviewDispatcher) subscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

package queue

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler consumes one published payload. A non-nil error triggers a retry.
type Handler func(payload any) error

// Queue is a minimal pub/sub surface. The stub backend uses the in-memory
// implementation to hand started campaigns to the crawl simulator.
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler Handler)
}

// InMemory is a process-local queue with per-job bounded retry. Handlers run
// on their own goroutines; Publish never blocks on handler work.
type InMemory struct {
	mu         sync.Mutex
	handlers   map[string][]Handler
	log        *zap.Logger
	retryDelay time.Duration
}

func NewInMemory(log *zap.Logger) *InMemory {
	if log == nil {
		log = zap.NewNop()
	}
	return &InMemory{
		handlers:   make(map[string][]Handler),
		log:        log,
		retryDelay: 500 * time.Millisecond,
	}
}

const maxRetries = 3

// Publish delivers payload to every subscriber of topic. Publishing to a
// topic nobody listens on is an error; jobs must not vanish silently.
func (q *InMemory) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}
	for _, handler := range handlers {
		go q.process(topic, handler, payload)
	}
	return nil
}

func (q *InMemory) process(topic string, handler Handler, payload any) {
	for attempt := 0; ; attempt++ {
		err := handler(payload)
		if err == nil {
			return
		}
		if attempt >= maxRetries {
			q.log.Error("job permanently failed",
				zap.String("topic", topic),
				zap.Int("attempts", attempt+1),
				zap.Error(err))
			return
		}
		q.log.Warn("job failed, retrying",
			zap.String("topic", topic),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		time.Sleep(time.Duration(attempt+1) * q.retryDelay)
	}
}

// Subscribe registers a handler for a topic.
func (q *InMemory) Subscribe(topic string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = append(q.handlers[topic], handler)
}

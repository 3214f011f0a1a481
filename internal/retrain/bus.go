package retrain

import (
	"sync"

	"go.uber.org/zap"

	"moderation-service/internal/models"
)

// Bus fans training events out to any number of subscribers. Each subscriber
// owns a bounded buffer; a subscriber that falls behind is disconnected
// rather than allowed to stall the run or its peers. The bus holds no run
// state of its own.
type Bus struct {
	mu         sync.Mutex
	subs       map[*subscriber]struct{}
	bufferSize int
	logger     *zap.Logger
}

type subscriber struct {
	outgoing chan models.TrainingEvent
	closed   bool
}

func NewBus(bufferSize int, logger *zap.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Bus{
		subs:       make(map[*subscriber]struct{}),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscribe attaches a new subscriber. If snapshot is non-nil it is delivered
// first, before any live events. The returned cancel func detaches the
// subscriber and closes its channel; it is safe to call after the bus has
// already disconnected the subscriber.
func (b *Bus) Subscribe(snapshot *models.TrainingEvent) (<-chan models.TrainingEvent, func()) {
	sub := &subscriber{outgoing: make(chan models.TrainingEvent, b.bufferSize)}
	if snapshot != nil {
		sub.outgoing <- *snapshot
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.drop(sub)
	}
	return sub.outgoing, cancel
}

// Publish delivers evt to every attached subscriber without blocking.
func (b *Bus) Publish(evt models.TrainingEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		select {
		case sub.outgoing <- evt:
		default:
			b.logger.Warn("event overflow, dropping subscriber")
			b.drop(sub)
		}
	}
}

// CloseAll disconnects every subscriber. Called after the terminal event of a
// run has been published, so each subscriber sees the terminal event and then
// a closed channel.
func (b *Bus) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		b.drop(sub)
	}
}

// drop must be called with b.mu held.
func (b *Bus) drop(sub *subscriber) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(b.subs, sub)
	close(sub.outgoing)
}

// SubscriberCount reports the number of attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Package eventbus fans node events out to asynchronous subscribers without
// ever blocking the publisher.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/serialx/hashring"

	"firestige.xyz/ethmqtt/internal/log"
)

var (
	ErrClosed    = errors.New("event bus is closed")
	ErrQueueFull = errors.New("event bus partition queue is full")
)

// EventBus is a partitioned publish/subscribe bus.
type EventBus interface {
	Publish(event *Event) error
	Subscribe(topic string, handler Handler) error
	Close() error
	GetStats() *Stats
}

// Stats is a point-in-time view of the bus counters.
type Stats struct {
	PublishedCount int64 `json:"published"`
	ProcessedCount int64 `json:"processed"`
	DroppedCount   int64 `json:"dropped"`
	PartitionCount int   `json:"partitions"`
	QueuedCount    []int `json:"queued"`
}

// InMemoryEventBus runs one goroutine per partition. Keys are mapped to
// partitions with a consistent hash ring.
type InMemoryEventBus struct {
	partitions     []*partition
	partitionNodes []string
	hashRing       *hashring.HashRing

	mu          sync.RWMutex
	subscribers map[string][]Handler
	closed      bool
	wg          sync.WaitGroup

	publishedCount int64
	processedCount int64
	droppedCount   int64
}

// NewInMemoryEventBus creates a bus and starts its partitions.
func NewInMemoryEventBus(partitionCount, queueSize int) *InMemoryEventBus {
	if partitionCount <= 0 {
		partitionCount = 1
	}
	bus := &InMemoryEventBus{
		subscribers:    make(map[string][]Handler),
		partitions:     make([]*partition, partitionCount),
		partitionNodes: make([]string, partitionCount),
	}

	for i := 0; i < partitionCount; i++ {
		bus.partitionNodes[i] = "partition-" + strconv.Itoa(i)
	}
	bus.hashRing = hashring.New(bus.partitionNodes)

	for i := 0; i < partitionCount; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		bus.partitions[i] = &partition{
			id:     i,
			queue:  make(chan *Event, queueSize),
			ctx:    ctx,
			cancel: cancel,
		}
		bus.wg.Add(1)
		go bus.runPartition(bus.partitions[i])
	}

	return bus
}

// Publish queues event on its partition. It never blocks: a full queue
// drops the event and returns ErrQueueFull.
func (b *InMemoryEventBus) Publish(event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	p := b.partitions[b.getPartitionID(event.Key)]
	select {
	case p.queue <- event:
		atomic.AddInt64(&b.publishedCount, 1)
		return nil
	default:
		atomic.AddInt64(&b.droppedCount, 1)
		return fmt.Errorf("partition %d: %w", p.id, ErrQueueFull)
	}
}

// Subscribe adds handler for topic. Several handlers may share a topic.
func (b *InMemoryEventBus) Subscribe(topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.subscribers[topic] = append(b.subscribers[topic], handler)

	log.GetLogger().Debugf("Subscribed to topic: %s", topic)
	return nil
}

// Close stops accepting events, lets every partition drain its queue and
// waits for the partitions to exit.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, p := range b.partitions {
		close(p.queue)
	}
	b.mu.Unlock()

	b.wg.Wait()
	for _, p := range b.partitions {
		p.cancel()
	}
	log.GetLogger().Debug("Event bus closed")
	return nil
}

func (b *InMemoryEventBus) GetStats() *Stats {
	stats := &Stats{
		PublishedCount: atomic.LoadInt64(&b.publishedCount),
		ProcessedCount: atomic.LoadInt64(&b.processedCount),
		DroppedCount:   atomic.LoadInt64(&b.droppedCount),
		PartitionCount: len(b.partitions),
		QueuedCount:    make([]int, len(b.partitions)),
	}
	for i, p := range b.partitions {
		stats.QueuedCount[i] = len(p.queue)
	}
	return stats
}

// getPartitionID maps key to a partition through the hash ring.
func (b *InMemoryEventBus) getPartitionID(key string) int {
	node, ok := b.hashRing.GetNode(key)
	if !ok {
		return 0
	}
	for i, partitionNode := range b.partitionNodes {
		if partitionNode == node {
			return i
		}
	}
	return 0
}

func (b *InMemoryEventBus) handlers(topic string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subscribers[topic]
}

func (b *InMemoryEventBus) runPartition(p *partition) {
	defer b.wg.Done()
	logger := log.GetLogger()

	for event := range p.queue {
		handlers := b.handlers(event.Topic)
		if len(handlers) == 0 {
			logger.Debugf("No handler for topic: %s", event.Topic)
		}
		ok := true
		for _, h := range handlers {
			if err := h(event); err != nil {
				ok = false
				logger.WithError(err).Errorf("Failed to handle %s event in partition %d", event.Topic, p.id)
			}
		}
		if ok {
			atomic.AddInt64(&b.processedCount, 1)
		}
	}
}

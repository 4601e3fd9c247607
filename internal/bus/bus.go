// Package bus implements the in-process publish/subscribe message bus that
// the agent runtime, cron engine, and skill host communicate over.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const defaultBufferSize = 100

// MessageType enumerates the recognised Message.Type values.
type MessageType string

const (
	TypeTask         MessageType = "task"
	TypeQuery        MessageType = "query"
	TypeResponse     MessageType = "response"
	TypeNotification MessageType = "notification"
	TypeError        MessageType = "error"
)

// Message is the envelope carried over every publish and request/response.
type Message struct {
	ID            string
	Type          MessageType
	Sender        string
	Receiver      string
	Topic         string
	Payload       any
	Headers       map[string]string
	CorrelationID string
	Timestamp     time.Time
}

// ErrTimeout is returned by Request when no reply arrives within the deadline.
var ErrTimeout = errors.New("bus: request timed out")

// Handler processes a Message delivered to a subscription.
type Handler func(Message)

// Subscription is an active registration of a Handler against a topic
// pattern. Dispatch happens synchronously on the Publish goroutine, in
// subscription order.
type Subscription struct {
	id      int
	pattern string
	handler Handler
}

// Bus is an in-process pub/sub bus with MQTT-style wildcard topic matching.
// `*` matches exactly one `.`-delimited segment, `#` matches zero or more
// trailing segments.
type Bus struct {
	mu              sync.RWMutex
	subs            map[int]*Subscription
	order           []int
	nextID          int
	logger          *slog.Logger
	droppedEvents   atomic.Int64
	lastDropWarning atomic.Int64
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[int]*Subscription),
		logger: logger,
	}
}

// Subscribe registers handler against topic, which may contain `*`/`#`
// wildcard segments, and returns a subscriptionId usable with Unsubscribe.
func (b *Bus) Subscribe(pattern string, handler Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[id] = &Subscription{id: id, pattern: pattern, handler: handler}
	b.order = append(b.order, id)
	return id
}

// Unsubscribe removes a subscription. Idempotent.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return
	}
	delete(b.subs, id)
	for i, sid := range b.order {
		if sid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish delivers msg to every subscription whose pattern matches topic, in
// subscription order, synchronously on the calling goroutine. A handler
// panic is recovered, counted as a dropped delivery, and does not stop
// delivery to subsequent subscribers.
func (b *Bus) Publish(topic string, msg Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.Topic = topic

	b.mu.RLock()
	matched := make([]*Subscription, 0, len(b.order))
	for _, id := range b.order {
		sub := b.subs[id]
		if topicMatches(sub.pattern, topic) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		b.deliver(sub, msg)
	}
}

func (b *Bus) deliver(sub *Subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			newCount := b.droppedEvents.Add(1)
			b.maybeLogDropWarning(newCount, msg.Topic)
			b.logger.Warn("bus_handler_panic",
				slog.String("topic", msg.Topic), slog.Any("recovered", r))
		}
	}()
	sub.handler(msg)
}

// Request publishes msg to topic and waits up to timeout for the first
// message published on reply:{correlationId}. Returns ErrTimeout if none
// arrives in time, or ctx.Err() if ctx is cancelled first.
func (b *Bus) Request(ctx context.Context, topic string, msg Message, timeout time.Duration) (Message, error) {
	correlationID := uuid.NewString()
	msg.CorrelationID = correlationID
	if msg.Type == "" {
		msg.Type = TypeQuery
	}

	replyCh := make(chan Message, 1)
	replyTopic := "reply:" + correlationID
	subID := b.Subscribe(replyTopic, func(m Message) {
		select {
		case replyCh <- m:
		default:
		}
	})
	defer b.Unsubscribe(subID)

	b.Publish(topic, msg)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reply := <-replyCh:
		return reply, nil
	case <-timer.C:
		return Message{}, ErrTimeout
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Reply publishes resp on the reply topic for the correlationId msg carried,
// satisfying any in-flight Request. A no-op if msg has no CorrelationID.
func (b *Bus) Reply(msg Message, resp Message) {
	if msg.CorrelationID == "" {
		return
	}
	resp.CorrelationID = msg.CorrelationID
	if resp.Type == "" {
		resp.Type = TypeResponse
	}
	b.Publish("reply:"+msg.CorrelationID, resp)
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// DroppedEventCount returns the total number of deliveries dropped due to a
// handler panic.
func (b *Bus) DroppedEventCount() int64 {
	return b.droppedEvents.Load()
}

// topicMatches reports whether pattern matches topic under MQTT-style
// wildcard rules: `*` matches exactly one `.`-delimited segment, `#` matches
// zero or more trailing segments and must be the pattern's last segment. An
// empty pattern matches every topic.
func topicMatches(pattern, topic string) bool {
	if pattern == "" {
		return true
	}
	pSegs := strings.Split(pattern, ".")
	tSegs := strings.Split(topic, ".")

	i := 0
	for ; i < len(pSegs); i++ {
		if pSegs[i] == "#" {
			return true
		}
		if i >= len(tSegs) {
			return false
		}
		if pSegs[i] == "*" || pSegs[i] == tSegs[i] {
			continue
		}
		return false
	}
	return i == len(tSegs)
}

// dropThreshold returns the next exponential threshold (1, 10, 100, ...) at
// or below count.
func dropThreshold(count int64) int64 {
	threshold := int64(1)
	for threshold*10 <= count {
		threshold *= 10
	}
	return threshold
}

func (b *Bus) maybeLogDropWarning(newCount int64, topic string) {
	if b.logger == nil {
		return
	}
	threshold := dropThreshold(newCount)
	if newCount != threshold {
		return
	}
	lastWarned := b.lastDropWarning.Load()
	if threshold <= lastWarned {
		return
	}
	if b.lastDropWarning.CompareAndSwap(lastWarned, threshold) {
		b.logger.Warn("bus_dropped_events_reached_threshold",
			slog.Int64("count", newCount), slog.String("topic", topic))
	}
}

package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/meshboard/meshboard-core/internal/infrastructure/logging"
	"github.com/meshboard/meshboard-core/internal/message"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultSendBuffer        = 256

	// missedHeartbeats is how many heartbeat intervals a subscriber may
	// stay silent before it is reaped.
	missedHeartbeats = 2
)

// HubConfig tunes subscriber management.
type HubConfig struct {
	// HeartbeatInterval is the liveness check period. Defaults to 30s.
	HeartbeatInterval time.Duration

	// SendBuffer is the per-subscriber frame buffer. A subscriber whose
	// buffer fills is disconnected. Defaults to 256.
	SendBuffer int
}

// Subscription is one consumer's attachment to the hub.
//
// The transport adapter reads batches from Frames and must watch Done:
// when the hub evicts the subscription (buffer overflow, missed
// heartbeats, shutdown) Done closes and no further frames arrive.
type Subscription struct {
	id     string
	frames chan []message.Record
	hub    *Hub

	lastSeen  atomic.Int64 // unix nanoseconds
	closeOnce sync.Once
	done      chan struct{}
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() string { return s.id }

// Frames returns the batch delivery channel.
func (s *Subscription) Frames() <-chan []message.Record { return s.frames }

// Done is closed when the hub has dropped this subscription.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Touch marks the subscriber alive. Transports call it on pong or any
// client activity.
func (s *Subscription) Touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unregister(s)
	s.markDone()
}

func (s *Subscription) markDone() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Hub fans message batches out to live subscribers.
//
// Delivery is best-effort and never blocks the broadcaster: each
// subscriber has a bounded buffer, and one that stops draining it is
// disconnected rather than slowing everyone else down. A heartbeat
// loop reaps subscribers that have gone silent.
type Hub struct {
	cfg    HubConfig
	logger *logging.Logger

	mu   sync.RWMutex
	subs map[string]*Subscription

	broadcastTotal atomic.Uint64
	evictedTotal   atomic.Uint64
}

// NewHub creates a hub. Run must be started for heartbeat reaping.
func NewHub(cfg HubConfig, logger *logging.Logger) *Hub {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		cfg:    cfg,
		logger: logger.With("component", "hub"),
		subs:   make(map[string]*Subscription),
	}
}

// Run reaps unresponsive subscribers until ctx is cancelled, then
// drops every remaining subscription.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	h.logger.Info("hub started", "heartbeat_interval", h.cfg.HeartbeatInterval.String())

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("hub stopped")
			return
		case <-ticker.C:
			h.reap()
		}
	}
}

// Subscribe attaches a new subscriber, initially alive.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		id:     uuid.New().String(),
		frames: make(chan []message.Record, h.cfg.SendBuffer),
		hub:    h,
		done:   make(chan struct{}),
	}
	sub.Touch()

	h.mu.Lock()
	h.subs[sub.id] = sub
	count := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug("subscriber attached", "subscriber", sub.id, "subscribers", count)
	return sub
}

// Broadcast delivers one batch to every subscriber. A subscriber whose
// buffer is full is evicted; the batch still reaches everyone else.
func (h *Hub) Broadcast(batch []message.Record) {
	if len(batch) == 0 {
		return
	}
	h.broadcastTotal.Add(1)

	for _, sub := range h.snapshot() {
		select {
		case sub.frames <- batch:
		default:
			h.logger.Warn("subscriber buffer full, disconnecting", "subscriber", sub.id)
			h.evict(sub)
		}
	}
}

// SubscriberCount returns the number of attached subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Stats returns hub counters for status reporting.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Subscribers:    h.SubscriberCount(),
		BroadcastTotal: h.broadcastTotal.Load(),
		EvictedTotal:   h.evictedTotal.Load(),
	}
}

// HubStats holds hub counters.
type HubStats struct {
	Subscribers    int    `json:"subscribers"`
	BroadcastTotal uint64 `json:"broadcast_total"`
	EvictedTotal   uint64 `json:"evicted_total"`
}

// reap drops subscribers that missed consecutive heartbeats.
func (h *Hub) reap() {
	cutoff := time.Now().Add(-time.Duration(missedHeartbeats) * h.cfg.HeartbeatInterval)

	for _, sub := range h.snapshot() {
		if time.Unix(0, sub.lastSeen.Load()).Before(cutoff) {
			h.logger.Info("reaping unresponsive subscriber", "subscriber", sub.id)
			h.evict(sub)
		}
	}
}

func (h *Hub) snapshot() []*Subscription {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()
	return subs
}

func (h *Hub) evict(sub *Subscription) {
	h.evictedTotal.Add(1)
	h.unregister(sub)
	sub.markDone()
}

// unregister removes the subscription from the map. The frames channel
// is never closed; readers leave via Done instead, so a concurrent
// Broadcast can not send on a closed channel.
func (h *Hub) unregister(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub.id)
	count := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug("subscriber detached", "subscriber", sub.id, "subscribers", count)
}

func (h *Hub) closeAll() {
	for _, sub := range h.snapshot() {
		h.unregister(sub)
		sub.markDone()
	}
}

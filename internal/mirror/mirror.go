// Package mirror republishes stored messages onto the MQTT bus.
//
// Each record the ingest pipeline stores is published to a per-channel
// or per-sender topic as the same JSON document WebSocket subscribers
// receive, letting home-automation stacks consume mesh traffic without
// speaking the radio protocol. The mirror is strictly one-way and
// best-effort: publish failures are logged and counted, never
// propagated back into ingestion.
package mirror

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/meshboard/meshboard-core/internal/infrastructure/logging"
	"github.com/meshboard/meshboard-core/internal/infrastructure/mqtt"
	"github.com/meshboard/meshboard-core/internal/message"
)

// queueSize bounds how many records may wait on a slow broker before
// the mirror starts shedding.
const queueSize = 256

// Publisher is the broker surface the mirror publishes through.
// *mqtt.Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Mirror forwards stored records to MQTT topics.
//
// Publish enqueues without blocking; a worker goroutine does the
// broker I/O so a stalled broker can never stall the radio drain.
// When the queue is full the newest records are dropped and counted.
type Mirror struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
	logger *logging.Logger

	queue chan message.Record

	publishedTotal atomic.Uint64
	failedTotal    atomic.Uint64
	droppedTotal   atomic.Uint64
}

// New creates a mirror publishing through pub. Run must be started for
// records to flow.
func New(pub Publisher, topics mqtt.Topics, qos byte, logger *logging.Logger) *Mirror {
	if logger == nil {
		logger = logging.Default()
	}
	return &Mirror{
		pub:    pub,
		topics: topics,
		qos:    qos,
		logger: logger.With("component", "mirror"),
		queue:  make(chan message.Record, queueSize),
	}
}

// Publish enqueues one record for mirroring. It never blocks: when the
// queue is full the record is dropped and counted.
func (m *Mirror) Publish(rec *message.Record) {
	if rec == nil {
		return
	}
	select {
	case m.queue <- *rec:
	default:
		m.droppedTotal.Add(1)
		m.logger.Warn("queue full, dropping record", "identity", rec.IdentityKey())
	}
}

// Run publishes queued records until ctx is cancelled. Records still
// queued at shutdown are discarded; the mirror is best-effort.
func (m *Mirror) Run(ctx context.Context) {
	m.logger.Info("mirror started", "qos", int(m.qos))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("mirror stopped", "pending", len(m.queue))
			return
		case rec := <-m.queue:
			m.publishOne(&rec)
		}
	}
}

// Stats returns mirror counters for status reporting.
func (m *Mirror) Stats() Stats {
	return Stats{
		Pending:        len(m.queue),
		PublishedTotal: m.publishedTotal.Load(),
		FailedTotal:    m.failedTotal.Load(),
		DroppedTotal:   m.droppedTotal.Load(),
	}
}

// Stats holds mirror counters.
type Stats struct {
	Pending        int    `json:"pending"`
	PublishedTotal uint64 `json:"published_total"`
	FailedTotal    uint64 `json:"failed_total"`
	DroppedTotal   uint64 `json:"dropped_total"`
}

func (m *Mirror) publishOne(rec *message.Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		m.failedTotal.Add(1)
		m.logger.Error("failed to marshal record", "error", err)
		return
	}

	var topic string
	if rec.MsgType == message.MsgTypeDirect {
		topic = m.topics.DirectMessage(rec.SenderPubkeyPrefix)
	} else {
		topic = m.topics.ChannelMessage(rec.ChannelIdx)
	}

	if err := m.pub.Publish(topic, payload, m.qos, false); err != nil {
		m.failedTotal.Add(1)
		m.logger.Warn("publish failed", "topic", topic, "error", err)
		return
	}
	m.publishedTotal.Add(1)
}

// Package broadcast fans freshly ingested messages out to live
// subscribers in real time.
//
// Two pieces sit between the ingest pipeline and the transports:
//
//	┌────────┐  Submit   ┌───────────┐  Broadcast  ┌─────┐  Frames   ┌─────────────┐
//	│ ingest │──────────▶│ Debouncer │────────────▶│ Hub │──────────▶│ subscribers │
//	└────────┘           └───────────┘             └─────┘           └─────────────┘
//
// The Debouncer absorbs ingest bursts. A radio drain can store dozens
// of messages back to back; instead of one broadcast per message, the
// debouncer buffers them and flushes one window after the burst
// starts, in arrival order, split into bounded batches. Submit never
// blocks, so a slow or absent consumer can never stall the poller.
//
// The Hub tracks subscribers and delivers batches best-effort. Each
// subscription carries a bounded frame buffer; a subscriber that stops
// draining it is disconnected rather than allowed to apply back
// pressure to the rest. A heartbeat loop reaps subscriptions that have
// gone silent for two intervals, so half-dead connections do not
// accumulate.
//
// The hub is transport-agnostic. The API layer adapts each WebSocket
// connection into a Subscription: it forwards frames to the socket,
// calls Touch on pong, and watches Done for eviction.
package broadcast

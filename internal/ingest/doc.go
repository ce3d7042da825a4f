// Package ingest implements the message ingestion pipeline: the poll
// loop that owns the radio connection, the normalizer that shapes raw
// frames into records, and the resolver that caches channel and
// contact names.
//
// # Pipeline
//
//	┌────────┐  DrainOne  ┌────────────┐  Record  ┌───────┐
//	│ Poller │───────────►│ Normalizer │─────────►│ Store │──► Sink
//	└────────┘            └────────────┘          └───────┘
//	     │                      ▲
//	     │ Refresh on connect   │ name lookups
//	     ▼                      │
//	┌──────────┐────────────────┘
//	│ Resolver │
//	└──────────┘
//
// The poller is the single owner of the radio connection. Each poll
// tick drains the device queue one message at a time; each drained
// message is normalized, written to the store, and only then handed to
// the broadcast sink. A message that fails normalization or storage is
// dropped and logged; the cycle and the connection continue.
//
// API handlers never touch the session directly. Outbound work (send
// message, cache refresh) goes through Poller.Do, which runs the
// function on the poll loop's goroutine against the live session.
//
// # Reconnection
//
// Transport failures tear down the session and enter backoff: the
// delay starts at 2s and doubles per consecutive failure up to 60s.
// A successful connect resets the counter and re-primes the resolver
// caches.
package ingest

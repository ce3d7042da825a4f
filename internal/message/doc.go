// Package message holds the normalized message model and its SQLite
// persistence.
//
// A Record is one message as drained from the radio and normalized by
// the ingest pipeline. Records are identified by their natural key
// (msg_type, channel_idx, sender_timestamp, sender_pubkey_prefix, text)
// rather than the database row id: the same logical message can be
// inserted more than once across reconnects, so the table is
// append-only with no uniqueness constraint on the identity columns.
//
// Convergence is eventual. Query collapses duplicates at read time
// (latest received_at wins), and the background Merger deletes the
// losing rows on an interval. Between an insert and the next merge
// pass the raw table may briefly hold duplicate identities; only raw
// SQL sees that window, never Repository readers.
package message

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/meshboard/meshboard-core/internal/ingest"
	"github.com/meshboard/meshboard-core/internal/message"
)

// sendMessageRequest is the request body for POST /messages.
type sendMessageRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// sendMessageResponse is the response body for POST /messages.
type sendMessageResponse struct {
	Status       string `json:"status"`
	ChannelIndex int    `json:"channel_index"`
	ChannelName  string `json:"channel_name"`
}

// handleListMessages returns stored messages, newest first by default.
//
// Query parameters:
//   - limit: maximum records to return (default 50, max 500)
//   - before: only messages received strictly before this time
//   - since: only messages received strictly after this time
//   - order: "asc" or "desc" (default "desc")
//   - channel: channel slot index to filter on
//   - type: CHANNEL or DIRECT
//
// Timestamps accept RFC 3339 or Unix milliseconds. before and since are
// mutually exclusive: before pages backwards through history, since
// polls forward from a known point.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	opts, err := parseMessageQuery(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	records, err := s.repo.Query(r.Context(), opts)
	if err != nil {
		if errors.Is(err, message.ErrInvalidQuery) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("message query failed", "error", err)
		writeUnavailable(w, "message store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": records,
		"count":    len(records),
	})
}

// handleSendMessage transmits a text message to a named channel via the
// radio and mirrors it into the store so it shows up in queries and on
// the live feed like any received message.
//
// The channel field accepts names with or without a leading '#';
// matching against the cached channel table is case-insensitive.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	text := strings.TrimSpace(req.Text)
	if strings.TrimSpace(req.Channel) == "" {
		writeBadRequest(w, "channel must not be empty")
		return
	}
	if text == "" {
		writeBadRequest(w, "text must not be empty")
		return
	}

	idx, name, ok := s.resolveChannel(req.Channel)
	if !ok {
		writeNotFound(w, fmt.Sprintf("channel %q not found on device", req.Channel))
		return
	}

	err := s.device.Do(r.Context(), func(ctx context.Context, session ingest.Session) error {
		return session.SendChannelMessage(ctx, idx, text)
	})
	if err != nil {
		if errors.Is(err, ingest.ErrSessionUnavailable) {
			writeUnavailable(w, "device not connected")
			return
		}
		s.logger.Error("message send failed", "channel", name, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeDeviceError, "device rejected the send")
		return
	}

	s.logger.Info("message sent", "channel", name, "channel_idx", idx, "length", len(text))
	s.storeSentMessage(r.Context(), idx, name, text)

	writeJSON(w, http.StatusAccepted, sendMessageResponse{
		Status:       "accepted",
		ChannelIndex: idx,
		ChannelName:  name,
	})
}

// resolveChannel maps a channel name to its slot index using the cached
// channel table. Matching is case-insensitive with leading '#' ignored.
func (s *Server) resolveChannel(raw string) (int, string, bool) {
	needle := strings.ToLower(strings.TrimLeft(strings.TrimSpace(raw), "#"))
	for _, ch := range s.channels.Channels() {
		if strings.ToLower(strings.TrimLeft(ch.Name, "#")) == needle {
			return ch.Index, ch.Name, true
		}
	}
	return 0, "", false
}

// storeSentMessage records an outgoing message. The radio does not echo
// our own channel sends back through the receive queue, so without this
// the sender's client would never see its message. Failures are logged
// and swallowed; the send already happened.
func (s *Server) storeSentMessage(ctx context.Context, idx int, name, text string) {
	now := time.Now().UTC()
	rec := &message.Record{
		ReceivedAt:      now,
		MsgType:         message.MsgTypeChannel,
		ChannelIdx:      idx,
		ChannelName:     name,
		SenderTimestamp: now.Unix(),
		SenderName:      s.device.Status().NodeName,
		Text:            text,
		TxtType:         message.TxtTypePlain,
	}

	if err := s.repo.Insert(ctx, rec); err != nil {
		s.logger.Warn("failed to store sent message", "error", err)
		return
	}
	if s.sink != nil {
		s.sink.Publish(rec)
	}
}

// parseMessageQuery builds repository query options from URL parameters.
func parseMessageQuery(r *http.Request) (message.QueryOptions, error) {
	q := r.URL.Query()
	var opts message.QueryOptions

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return opts, fmt.Errorf("invalid limit")
		}
		if limit > message.MaxQueryLimit {
			return opts, fmt.Errorf("limit exceeds maximum of %d", message.MaxQueryLimit)
		}
		opts.Limit = limit
	}

	before, err := parseTimeParam(q.Get("before"))
	if err != nil {
		return opts, fmt.Errorf("invalid before timestamp")
	}
	opts.Before = before

	since, err := parseTimeParam(q.Get("since"))
	if err != nil {
		return opts, fmt.Errorf("invalid since timestamp")
	}
	opts.Since = since

	switch q.Get("order") {
	case "", "desc":
	case "asc":
		opts.Ascending = true
	default:
		return opts, fmt.Errorf("order must be asc or desc")
	}

	if raw := q.Get("channel"); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil {
			return opts, fmt.Errorf("invalid channel index")
		}
		opts.Channel = &idx
	}

	opts.MsgType = message.MsgType(strings.ToUpper(q.Get("type")))

	return opts, nil
}

// parseTimeParam parses a timestamp in RFC 3339 (with or without
// fractional seconds) or Unix milliseconds. An empty value is the zero
// time, meaning no bound.
func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}

	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return parsed.UTC(), nil
	}

	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis).UTC(), nil
}

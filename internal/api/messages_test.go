package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/meshboard/meshboard-core/internal/ingest"
	"github.com/meshboard/meshboard-core/internal/message"
)

// insertTestRecord stores one record, filling ReceivedAt when unset.
func insertTestRecord(t *testing.T, repo message.Repository, rec message.Record) message.Record {
	t.Helper()
	if err := repo.Insert(context.Background(), &rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return rec
}

// listMessages performs an authenticated GET /messages and decodes the body.
func listMessages(t *testing.T, router http.Handler, query string) (int, []message.Record) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages"+query, nil)
	req.Header.Set("Authorization", authHeader(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		return w.Code, nil
	}
	var resp struct {
		Messages []message.Record `json:"messages"`
		Count    int              `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != len(resp.Messages) {
		t.Errorf("count = %d, want %d", resp.Count, len(resp.Messages))
	}
	return w.Code, resp.Messages
}

// sendMessage performs an authenticated POST /messages.
func sendMessage(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body))
	req.Header.Set("Authorization", authHeader(t))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ─── Message Query Tests ───────────────────────────────────────────

func TestListMessages_NewestFirst(t *testing.T) {
	srv, deps := testServer(t)
	base := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"first", "second", "third"} {
		insertTestRecord(t, deps.repo, message.Record{
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
			MsgType:    message.MsgTypeChannel, ChannelIdx: 0,
			SenderTimestamp: int64(100 + i),
			Text:            text, TxtType: message.TxtTypePlain,
		})
	}
	router := srv.buildRouter()

	code, records := listMessages(t, router, "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}
	if len(records) != 3 {
		t.Fatalf("len = %d, want 3", len(records))
	}
	if records[0].Text != "third" || records[2].Text != "first" {
		t.Errorf("order = [%s %s %s], want newest first",
			records[0].Text, records[1].Text, records[2].Text)
	}
}

func TestListMessages_AscendingOrder(t *testing.T) {
	srv, deps := testServer(t)
	base := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"first", "second"} {
		insertTestRecord(t, deps.repo, message.Record{
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
			MsgType:    message.MsgTypeChannel, ChannelIdx: 0,
			SenderTimestamp: int64(100 + i),
			Text:            text, TxtType: message.TxtTypePlain,
		})
	}
	router := srv.buildRouter()

	code, records := listMessages(t, router, "?order=asc")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}
	if records[0].Text != "first" {
		t.Errorf("records[0] = %q, want first", records[0].Text)
	}
}

func TestListMessages_Filters(t *testing.T) {
	srv, deps := testServer(t)
	base := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	insertTestRecord(t, deps.repo, message.Record{
		ReceivedAt: base, MsgType: message.MsgTypeChannel, ChannelIdx: 0,
		SenderTimestamp: 100, Text: "general chatter", TxtType: message.TxtTypePlain,
	})
	insertTestRecord(t, deps.repo, message.Record{
		ReceivedAt: base.Add(time.Minute), MsgType: message.MsgTypeChannel, ChannelIdx: 2,
		SenderTimestamp: 101, Text: "ops message", TxtType: message.TxtTypePlain,
	})
	insertTestRecord(t, deps.repo, message.Record{
		ReceivedAt: base.Add(2 * time.Minute), MsgType: message.MsgTypeDirect,
		ChannelIdx: message.DirectChannelIdx, SenderTimestamp: 102,
		SenderPubkeyPrefix: "a1b2c3d4e5f6", Text: "psst", TxtType: message.TxtTypePlain,
	})
	router := srv.buildRouter()

	code, records := listMessages(t, router, "?channel=2")
	if code != http.StatusOK || len(records) != 1 || records[0].Text != "ops message" {
		t.Errorf("channel filter: status %d, got %d records", code, len(records))
	}

	code, records = listMessages(t, router, "?type=DIRECT")
	if code != http.StatusOK || len(records) != 1 || records[0].Text != "psst" {
		t.Errorf("type filter: status %d, got %d records", code, len(records))
	}

	code, records = listMessages(t, router, "?since="+base.Add(30*time.Second).Format(time.RFC3339))
	if code != http.StatusOK || len(records) != 2 {
		t.Errorf("since filter: status %d, got %d records, want 2", code, len(records))
	}

	code, records = listMessages(t, router, "?before="+base.Add(30*time.Second).Format(time.RFC3339))
	if code != http.StatusOK || len(records) != 1 || records[0].Text != "general chatter" {
		t.Errorf("before filter: status %d, got %d records, want 1", code, len(records))
	}
}

func TestListMessages_UnixMillisTimestamps(t *testing.T) {
	srv, deps := testServer(t)
	base := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	insertTestRecord(t, deps.repo, message.Record{
		ReceivedAt: base, MsgType: message.MsgTypeChannel, ChannelIdx: 0,
		SenderTimestamp: 100, Text: "old", TxtType: message.TxtTypePlain,
	})
	insertTestRecord(t, deps.repo, message.Record{
		ReceivedAt: base.Add(time.Hour), MsgType: message.MsgTypeChannel, ChannelIdx: 0,
		SenderTimestamp: 101, Text: "new", TxtType: message.TxtTypePlain,
	})
	router := srv.buildRouter()

	cursor := strconv.FormatInt(base.Add(30*time.Minute).UnixMilli(), 10)
	code, records := listMessages(t, router, "?since="+cursor)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}
	if len(records) != 1 || records[0].Text != "new" {
		t.Errorf("got %d records, want just the newer one", len(records))
	}
}

func TestListMessages_Limit(t *testing.T) {
	srv, deps := testServer(t)
	base := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		insertTestRecord(t, deps.repo, message.Record{
			ReceivedAt: base.Add(time.Duration(i) * time.Second),
			MsgType:    message.MsgTypeChannel, ChannelIdx: 0,
			SenderTimestamp: int64(100 + i),
			Text:            "msg", TxtType: message.TxtTypePlain,
		})
	}
	router := srv.buildRouter()

	code, records := listMessages(t, router, "?limit=2")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}
	if len(records) != 2 {
		t.Errorf("len = %d, want 2", len(records))
	}
}

func TestListMessages_BadParams(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	tests := []struct {
		name  string
		query string
	}{
		{"limit not a number", "?limit=abc"},
		{"limit zero", "?limit=0"},
		{"limit negative", "?limit=-5"},
		{"limit too large", "?limit=50000"},
		{"bad before", "?before=yesterday"},
		{"bad since", "?since=tomorrow"},
		{"bad order", "?order=sideways"},
		{"bad channel", "?channel=general"},
		{"unknown type", "?type=BROADCAST"},
		{"before and since", "?before=1760000000000&since=1750000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := listMessages(t, router, tt.query)
			if code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", code, http.StatusBadRequest)
			}
		})
	}
}

func TestListMessages_Empty(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil)
	req.Header.Set("Authorization", authHeader(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	// Empty result is a JSON array, not null.
	if !strings.Contains(w.Body.String(), `"messages":[]`) {
		t.Errorf("body = %s, want empty array", w.Body.String())
	}
}

func TestListMessages_StoreError(t *testing.T) {
	srv, _ := testServer(t)
	srv.repo = &fakeRepo{queryErr: errors.New("disk gone")}
	router := srv.buildRouter()

	code, _ := listMessages(t, router, "")
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", code, http.StatusServiceUnavailable)
	}
}

func TestListMessages_RequiresAuth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// ─── Message Send Tests ────────────────────────────────────────────

func TestSendMessage(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()

	w := sendMessage(t, router, `{"channel":"ops","text":"hello mesh"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	var resp sendMessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "accepted" {
		t.Errorf("status = %q, want accepted", resp.Status)
	}
	if resp.ChannelIndex != 2 || resp.ChannelName != "#ops" {
		t.Errorf("resolved = (%d, %q), want (2, #ops)", resp.ChannelIndex, resp.ChannelName)
	}

	sends := deps.session.sentCalls()
	if len(sends) != 1 {
		t.Fatalf("device sends = %d, want 1", len(sends))
	}
	if sends[0].idx != 2 || sends[0].text != "hello mesh" {
		t.Errorf("sent = %+v, want {2 hello mesh}", sends[0])
	}

	// The send is mirrored into the store and onto the live feed.
	records, err := deps.repo.Query(context.Background(), message.QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("stored records = %d, want 1", len(records))
	}
	if records[0].SenderName != "meshboard-node" {
		t.Errorf("sender_name = %q, want meshboard-node", records[0].SenderName)
	}
	if records[0].MsgType != message.MsgTypeChannel || records[0].Text != "hello mesh" {
		t.Errorf("stored = %+v, want the sent message", records[0])
	}
	if deps.sink.count() != 1 {
		t.Errorf("sink publishes = %d, want 1", deps.sink.count())
	}
}

func TestSendMessage_ResolvesNameCaseInsensitive(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()

	// "#ops" on the device; request uses uppercase with an extra hash.
	w := sendMessage(t, router, `{"channel":"#OPS","text":"case test"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	sends := deps.session.sentCalls()
	if len(sends) != 1 || sends[0].idx != 2 {
		t.Errorf("sends = %+v, want one send to slot 2", sends)
	}
}

func TestSendMessage_UnknownChannel(t *testing.T) {
	srv, deps := testServer(t)
	router := srv.buildRouter()

	w := sendMessage(t, router, `{"channel":"nowhere","text":"lost"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if len(deps.session.sentCalls()) != 0 {
		t.Error("expected no device send for unknown channel")
	}
}

func TestSendMessage_DeviceNotConnected(t *testing.T) {
	srv, deps := testServer(t)
	deps.gateway.doErr = ingest.ErrSessionUnavailable
	router := srv.buildRouter()

	w := sendMessage(t, router, `{"channel":"ops","text":"void"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestSendMessage_DeviceRejects(t *testing.T) {
	srv, deps := testServer(t)
	deps.session.sendErr = errors.New("radio refused")
	router := srv.buildRouter()

	w := sendMessage(t, router, `{"channel":"ops","text":"no luck"}`)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}

	// Nothing may reach the store or the feed when the device said no.
	records, err := deps.repo.Query(context.Background(), message.QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("stored records = %d, want 0", len(records))
	}
	if deps.sink.count() != 0 {
		t.Errorf("sink publishes = %d, want 0", deps.sink.count())
	}
}

func TestSendMessage_Validation(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{oops`},
		{"empty channel", `{"channel":"","text":"hi"}`},
		{"empty text", `{"channel":"ops","text":""}`},
		{"whitespace text", `{"channel":"ops","text":"   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := sendMessage(t, router, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

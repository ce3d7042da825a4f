package broadcast

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/meshboard/meshboard-core/internal/message"
)

// fakeBroadcaster records every batch it is handed.
type fakeBroadcaster struct {
	mu      sync.Mutex
	batches [][]message.Record
}

func (f *fakeBroadcaster) Broadcast(batch []message.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]message.Record, len(batch))
	copy(cp, batch)
	f.batches = append(f.batches, cp)
}

func (f *fakeBroadcaster) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeBroadcaster) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, batch := range f.batches {
		for _, rec := range batch {
			out = append(out, rec.Text)
		}
	}
	return out
}

func testRecord(i int) *message.Record {
	return &message.Record{
		MsgType:         message.MsgTypeChannel,
		ChannelIdx:      0,
		TxtType:         message.TxtTypePlain,
		SenderTimestamp: int64(i),
		Text:            fmt.Sprintf("msg-%d", i),
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func startDebouncer(t *testing.T, d *Debouncer) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestDebouncerFlushesAfterWindow(t *testing.T) {
	target := &fakeBroadcaster{}
	d := NewDebouncer(DebouncerConfig{Window: 50 * time.Millisecond}, target, nil)
	startDebouncer(t, d)

	d.Submit(testRecord(1))
	d.Submit(testRecord(2))
	d.Submit(testRecord(3))

	if got := target.batchCount(); got != 0 {
		t.Fatalf("flushed before window expired, batches = %d", got)
	}

	waitFor(t, func() bool { return target.batchCount() == 1 }, "batch never flushed")

	want := []string{"msg-1", "msg-2", "msg-3"}
	got := target.texts()
	if len(got) != len(want) {
		t.Fatalf("flushed %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %q, want %q", i, got[i], want[i])
		}
	}

	if stats := d.Stats(); stats.FlushedTotal != 3 || stats.Pending != 0 {
		t.Errorf("stats = %+v, want FlushedTotal=3 Pending=0", stats)
	}
}

func TestDebouncerSplitsLargeFlush(t *testing.T) {
	target := &fakeBroadcaster{}
	d := NewDebouncer(DebouncerConfig{Window: time.Hour, BatchSize: 2}, target, nil)

	for i := 1; i <= 5; i++ {
		d.Submit(testRecord(i))
	}
	d.flush()

	if got := target.batchCount(); got != 3 {
		t.Fatalf("batch count = %d, want 3", got)
	}
	target.mu.Lock()
	sizes := []int{len(target.batches[0]), len(target.batches[1]), len(target.batches[2])}
	target.mu.Unlock()
	if sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("batch sizes = %v, want [2 2 1]", sizes)
	}

	got := target.texts()
	for i := range got {
		want := fmt.Sprintf("msg-%d", i+1)
		if got[i] != want {
			t.Errorf("record %d = %q, want %q", i, got[i], want)
		}
	}
}

func TestDebouncerEvictsOldest(t *testing.T) {
	target := &fakeBroadcaster{}
	d := NewDebouncer(DebouncerConfig{Window: time.Hour, Capacity: 3}, target, nil)

	for i := 1; i <= 5; i++ {
		d.Submit(testRecord(i))
	}

	if stats := d.Stats(); stats.EvictedTotal != 2 || stats.Pending != 3 {
		t.Fatalf("stats = %+v, want EvictedTotal=2 Pending=3", stats)
	}

	d.flush()

	want := []string{"msg-3", "msg-4", "msg-5"}
	got := target.texts()
	if len(got) != len(want) {
		t.Fatalf("flushed %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDebouncerShutdownFlushesPending(t *testing.T) {
	target := &fakeBroadcaster{}
	d := NewDebouncer(DebouncerConfig{Window: time.Hour}, target, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()

	d.Submit(testRecord(1))
	d.Submit(testRecord(2))
	cancel()
	<-done

	if got := target.batchCount(); got != 1 {
		t.Fatalf("batch count = %d, want 1", got)
	}
	if got := target.texts(); len(got) != 2 {
		t.Errorf("flushed %d records, want 2", len(got))
	}
}

func TestDebouncerSubmitNil(t *testing.T) {
	d := NewDebouncer(DebouncerConfig{}, &fakeBroadcaster{}, nil)
	d.Submit(nil)

	if stats := d.Stats(); stats.Pending != 0 {
		t.Errorf("pending = %d, want 0", stats.Pending)
	}
}

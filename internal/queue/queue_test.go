package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bobarin/codereel/internal/models"
)

func TestNewMessageRoundTrip(t *testing.T) {
	body := models.PrepMessage{JobID: "j1", Code: "def f(): pass", Language: models.LanguagePython, Size: 13}
	msg, err := NewMessage(DefaultPrepQueue, TypePrep, body)
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	if msg.ID == "" || msg.Queue() != DefaultPrepQueue {
		t.Errorf("unexpected envelope %+v", msg)
	}

	// The raw form is what Ack removes, so it must decode back to the same envelope.
	var wire Message
	if err := json.Unmarshal([]byte(msg.raw), &wire); err != nil {
		t.Fatalf("raw envelope is not JSON: %v", err)
	}
	if wire.ID != msg.ID || wire.Type != TypePrep {
		t.Errorf("raw envelope mismatch: %+v", wire)
	}

	var got models.PrepMessage
	if err := wire.Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.JobID != "j1" || got.Language != models.LanguagePython || got.Size != 13 {
		t.Errorf("unexpected body %+v", got)
	}
}

func TestDecodeRejectsWrongShape(t *testing.T) {
	msg := &Message{ID: "m", Type: TypePrep, Body: json.RawMessage(`"not an object"`)}
	var got models.PrepMessage
	if err := msg.Decode(&got); err == nil {
		t.Error("expected decode error")
	}
}

func TestProcessingList(t *testing.T) {
	if got := processingList("queue:prep"); got != "queue:prep:processing" {
		t.Errorf("processingList = %q", got)
	}
}

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := New("redis://"+mr.Addr(), "", "")
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q, mr
}

func listLen(t *testing.T, mr *miniredis.Miniredis, key string) int {
	t.Helper()
	if !mr.Exists(key) {
		return 0
	}
	items, err := mr.List(key)
	if err != nil {
		t.Fatalf("list %s: %v", key, err)
	}
	return len(items)
}

func TestDequeueHoldsMessageUntilAck(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	if err := q.EnqueuePrep(ctx, models.PrepMessage{JobID: "j1", Language: models.LanguageJava}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	msg, err := q.DequeuePrep(ctx, time.Second)
	if err != nil || msg == nil {
		t.Fatalf("dequeue: msg=%v err=%v", msg, err)
	}
	var body models.PrepMessage
	if err := msg.Decode(&body); err != nil || body.JobID != "j1" {
		t.Fatalf("decode: %+v %v", body, err)
	}
	if n := listLen(t, mr, DefaultPrepQueue); n != 0 {
		t.Errorf("queue length after dequeue = %d", n)
	}
	if n := listLen(t, mr, processingList(DefaultPrepQueue)); n != 1 {
		t.Fatalf("processing length after dequeue = %d, want 1", n)
	}

	if err := q.Ack(ctx, msg); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if n := listLen(t, mr, processingList(DefaultPrepQueue)); n != 0 {
		t.Errorf("processing length after ack = %d", n)
	}
}

func TestRecoverRequeuesUnacknowledged(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	for _, id := range []string{"j1", "j2"} {
		if err := q.EnqueuePrep(ctx, models.PrepMessage{JobID: id}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	first, _ := q.DequeuePrep(ctx, time.Second)
	second, _ := q.DequeuePrep(ctx, time.Second)
	if first == nil || second == nil {
		t.Fatal("expected two deliveries")
	}

	// Simulate a crash: neither message is acked.
	moved, err := q.RecoverPrep(ctx)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if moved != 2 {
		t.Errorf("moved = %d, want 2", moved)
	}
	if n := listLen(t, mr, processingList(DefaultPrepQueue)); n != 0 {
		t.Errorf("processing length after recover = %d", n)
	}
	if backlog, err := q.PrepBacklog(ctx); err != nil || backlog != 2 {
		t.Errorf("backlog = %d, %v", backlog, err)
	}

	// Recovered messages are delivered again in their original order.
	again, err := q.DequeuePrep(ctx, time.Second)
	if err != nil || again == nil || again.ID != first.ID {
		t.Errorf("redelivered %v, want %s", again, first.ID)
	}
}

func TestDequeueEmptyQueue(t *testing.T) {
	q, _ := newTestQueue(t)
	msg, err := q.DequeuePrep(context.Background(), time.Second)
	if err != nil || msg != nil {
		t.Errorf("dequeue on empty queue = %v, %v", msg, err)
	}
}

func TestRenderMessagesUseRenderQueue(t *testing.T) {
	q, mr := newTestQueue(t)
	if err := q.EnqueueRender(context.Background(), models.RenderMessage{JobID: "j1", AlgoID: "kadane"}); err != nil {
		t.Fatalf("enqueue render: %v", err)
	}
	if n := listLen(t, mr, DefaultRenderQueue); n != 1 {
		t.Errorf("render queue length = %d", n)
	}
	if n := listLen(t, mr, DefaultPrepQueue); n != 0 {
		t.Errorf("prep queue length = %d", n)
	}
}

package receiver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rezhaque35/wifi-location-data-pipeline/internal/logging"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/queue"
)

type fakeQueue struct {
	mu       sync.Mutex
	batches  [][]queue.Message
	next     int
	deleted  []string
}

func (f *fakeQueue) Receive(ctx context.Context) ([]queue.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next >= len(f.batches) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	b := f.batches[f.next]
	f.next++
	return b, nil
}

func (f *fakeQueue) Delete(ctx context.Context, receiptHandles []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, receiptHandles...)
	return nil
}

type fakeProcessor struct {
	mu        sync.Mutex
	processed []string
	poison    map[string]bool
	fail      map[string]bool
}

func (f *fakeProcessor) Process(ctx context.Context, m queue.Message) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, m.MessageID)
	if f.fail[m.MessageID] {
		return f.poison[m.MessageID], errors.New("boom")
	}
	return false, nil
}

func TestReceiverDeletesSuccessfulMessages(t *testing.T) {
	fq := &fakeQueue{batches: [][]queue.Message{
		{{MessageID: "m1", ReceiptHandle: "r1"}},
	}}
	fp := &fakeProcessor{}
	r := New(Config{Concurrency: 2, ShutdownDeadline: time.Second}, fq, fp, logging.NewStderrLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatal(err)
	}

	fq.mu.Lock()
	defer fq.mu.Unlock()
	if len(fq.deleted) != 1 || fq.deleted[0] != "r1" {
		t.Fatalf("expected r1 deleted, got %v", fq.deleted)
	}
	if r.Counters().MessagesDeleted != 1 {
		t.Errorf("expected 1 deleted counter, got %+v", r.Counters())
	}
}

func TestReceiverLeavesFailedMessagesUndeleted(t *testing.T) {
	fq := &fakeQueue{batches: [][]queue.Message{
		{{MessageID: "m1", ReceiptHandle: "r1"}},
	}}
	fp := &fakeProcessor{fail: map[string]bool{"m1": true}, poison: map[string]bool{"m1": false}}
	r := New(Config{Concurrency: 2, ShutdownDeadline: time.Second}, fq, fp, logging.NewStderrLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatal(err)
	}

	fq.mu.Lock()
	defer fq.mu.Unlock()
	if len(fq.deleted) != 0 {
		t.Fatalf("expected no deletes for a transient failure, got %v", fq.deleted)
	}
	if r.Counters().MessagesFailed != 1 {
		t.Errorf("expected 1 failed counter, got %+v", r.Counters())
	}
}

func TestReceiverDeletesPoisonMessages(t *testing.T) {
	fq := &fakeQueue{batches: [][]queue.Message{
		{{MessageID: "m1", ReceiptHandle: "r1"}},
	}}
	fp := &fakeProcessor{fail: map[string]bool{"m1": true}, poison: map[string]bool{"m1": true}}
	r := New(Config{Concurrency: 2, ShutdownDeadline: time.Second}, fq, fp, logging.NewStderrLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatal(err)
	}

	fq.mu.Lock()
	defer fq.mu.Unlock()
	if len(fq.deleted) != 1 {
		t.Fatalf("expected the poison message deleted, got %v", fq.deleted)
	}
	if r.Counters().MessagesFailed != 1 {
		t.Errorf("expected a poison message to count as failed too, got %+v", r.Counters())
	}
}

func TestReceiverReachesStoppedState(t *testing.T) {
	fq := &fakeQueue{}
	fp := &fakeProcessor{}
	r := New(Config{ShutdownDeadline: time.Second}, fq, fp, logging.NewStderrLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if r.State() != Stopped {
		t.Errorf("expected Stopped, got %v", r.State())
	}
}

package queue

import (
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unclebandit/phishsim-backend/internal/logger"
)

func init() {
	logger.SetOutput(io.Discard)
}

func TestInMemoryQueueDeliversDispatchJob(t *testing.T) {
	q := NewInMemoryQueue()

	got := make(chan int, 1)
	q.Subscribe("campaign_dispatch", func(payload []byte) error {
		job, err := DecodeDispatch(payload)
		if err != nil {
			return err
		}
		got <- job.CampaignID
		return nil
	})

	if err := PublishDispatch(q, "campaign_dispatch", 42); err != nil {
		t.Fatalf("publish: %v", err)
	}
	q.Wait()

	select {
	case id := <-got:
		if id != 42 {
			t.Errorf("expected campaign 42, got %d", id)
		}
	default:
		t.Fatal("job was not delivered")
	}
}

func TestInMemoryQueueDoesNotRetryByDefault(t *testing.T) {
	q := NewInMemoryQueue()
	var calls int32
	q.Subscribe("t", func([]byte) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	})

	q.Publish("t", []byte("{}"))
	q.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected a single attempt, got %d", n)
	}
}

func TestInMemoryQueueRetriesWhenConfigured(t *testing.T) {
	q := NewInMemoryQueue()
	q.MaxRetries = 2
	q.Backoff = time.Millisecond

	var calls int32
	q.Subscribe("t", func([]byte) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	})

	q.Publish("t", []byte("{}"))
	q.Wait()

	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	if err := NewInMemoryQueue().Publish("nobody", nil); err == nil {
		t.Error("expected error when no subscriber is registered")
	}
}

func TestDecodeDispatchRejectsBadPayload(t *testing.T) {
	for _, p := range []string{"", "{", `{"campaign_id":0}`, `{"campaign_id":"x"}`} {
		if _, err := DecodeDispatch([]byte(p)); err == nil {
			t.Errorf("expected error for %q", p)
		}
	}
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }
func (f *fakeAck) Nack(_, requeue bool) error {
	f.nacked, f.requeued = true, requeue
	return nil
}

func TestProcessAcksAndNacksWithoutRequeue(t *testing.T) {
	ok := &fakeAck{}
	process(delivery{ack: ok, body: []byte("{}")}, func([]byte) error { return nil })
	if !ok.acked || ok.nacked {
		t.Errorf("successful job should be acked: %+v", ok)
	}

	failed := &fakeAck{}
	process(delivery{ack: failed, body: []byte("{}")}, func([]byte) error { return errors.New("x") })
	if failed.acked || !failed.nacked || failed.requeued {
		t.Errorf("failed job should be nacked without requeue: %+v", failed)
	}
}

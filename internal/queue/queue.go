package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/unclebandit/phishsim-backend/internal/logger"
)

// Queue carries opaque job payloads between the API and the dispatch
// workers.
type Queue interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler func(payload []byte) error) error
}

// DispatchJob asks a worker to send one campaign.
type DispatchJob struct {
	CampaignID int `json:"campaign_id"`
}

// PublishDispatch encodes and publishes a DispatchJob.
func PublishDispatch(q Queue, topic string, campaignID int) error {
	body, err := json.Marshal(DispatchJob{CampaignID: campaignID})
	if err != nil {
		return err
	}
	return q.Publish(topic, body)
}

func DecodeDispatch(payload []byte) (DispatchJob, error) {
	var job DispatchJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return job, fmt.Errorf("invalid dispatch job: %w", err)
	}
	if job.CampaignID <= 0 {
		return job, fmt.Errorf("invalid dispatch job: campaign_id %d", job.CampaignID)
	}
	return job, nil
}

// InMemoryQueue delivers each published payload to every subscriber on its
// own goroutine. Failed jobs are retried MaxRetries times with linear
// backoff; the default of zero means a failure is logged and dropped.
type InMemoryQueue struct {
	MaxRetries int
	Backoff    time.Duration

	mu       sync.Mutex
	handlers map[string][]func(payload []byte) error
	wg       sync.WaitGroup
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		Backoff:  500 * time.Millisecond,
		handlers: make(map[string][]func(payload []byte) error),
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Topic      string
	Payload    []byte
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload []byte) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		job := JobPayload{
			Topic:      topic,
			Payload:    append([]byte(nil), payload...),
			MaxRetries: q.MaxRetries,
		}
		q.wg.Add(1)
		go q.processJob(handler, job)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(payload []byte) error, job JobPayload) {
	defer q.wg.Done()

	for {
		err := handler(job.Payload)
		if err == nil {
			logger.Debugf("job on %s processed: %s", job.Topic, job.Payload)
			return
		}

		job.RetryCount++
		if job.RetryCount > job.MaxRetries {
			logger.WithFields(logger.Fields{
				"topic":    job.Topic,
				"attempts": job.RetryCount,
			}).Errorf("⚠️ job permanently failed: %v", err)
			return
		}

		logger.Warnf("job on %s failed (attempt %d/%d): %v", job.Topic, job.RetryCount, job.MaxRetries+1, err)
		time.Sleep(time.Duration(job.RetryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has finished.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

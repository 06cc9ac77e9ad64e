package service

import (
	"context"
	"time"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/logger"
	"github.com/unclebandit/phishsim-backend/internal/queue"
)

// Worker turns queued dispatch jobs into dispatcher runs.
type Worker struct {
	Dispatcher CampaignDispatcher
	// Timeout bounds a whole campaign run; zero means no bound.
	Timeout time.Duration
}

func NewWorker(d CampaignDispatcher, timeout time.Duration) *Worker {
	return &Worker{Dispatcher: d, Timeout: timeout}
}

// Handle processes one job payload. Jobs for campaigns that no longer
// exist, are paused or are already being sent are acknowledged and
// dropped; anything else that fails before sending is returned.
func (w *Worker) Handle(payload []byte) error {
	job, err := queue.DecodeDispatch(payload)
	if err != nil {
		logger.Warnf("dropping job: %v", err)
		return nil
	}

	ctx := context.Background()
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	report, err := w.Dispatcher.Dispatch(ctx, job.CampaignID)
	if err != nil {
		if appErrors.IsNotFound(err) || appErrors.IsConflict(err) {
			logger.Warnf("skipping campaign %d: %v", job.CampaignID, err)
			return nil
		}
		return err
	}

	entry := logger.WithFields(logger.Fields{
		"campaign_id": job.CampaignID,
		"sent":        report.Sent,
		"skipped":     report.Skipped,
	})
	if len(report.Errors) > 0 {
		entry.Warnf("❌ %d targets failed", len(report.Errors))
	} else {
		entry.Info("✅ campaign dispatched")
	}
	return nil
}

// Start subscribes the worker to topic.
func (w *Worker) Start(q queue.Queue, topic string) error {
	return q.Subscribe(topic, w.Handle)
}

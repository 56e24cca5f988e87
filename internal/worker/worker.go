package worker

import (
	"context"
	"log"
	"time"

	"groupbuy-service/internal/broker"
	"groupbuy-service/internal/service"
	"groupbuy-service/internal/util"

	"go.uber.org/zap"
)

const schedulerLockKey = "scheduler-tick"

// JobLocker keeps concurrent scheduler instances from double-running a tick.
type JobLocker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// Scheduler is the periodic trigger for phase advancement, checkout dispatch
// and retry reconciliation. The core never self-schedules; this worker is the
// trigger collaborator.
type Scheduler struct {
	campaigns *service.CampaignService
	payments  *service.PaymentService
	locker    JobLocker
	interval  time.Duration
	logger    *zap.Logger
}

// NewScheduler creates a new scheduler worker
func NewScheduler(
	campaigns *service.CampaignService,
	payments *service.PaymentService,
	locker JobLocker,
	interval time.Duration,
) *Scheduler {
	return &Scheduler{
		campaigns: campaigns,
		payments:  payments,
		locker:    locker,
		interval:  interval,
		logger:    util.GetLogger(),
	}
}

// Start runs ticks until the context is cancelled
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping...")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one scheduler pass under the distributed lock. Each job's
// failure is logged and the remaining jobs still run.
func (s *Scheduler) tick(ctx context.Context) {
	acquired, err := s.locker.AcquireLock(ctx, schedulerLockKey, s.interval)
	if err != nil {
		s.logger.Error("Failed to acquire scheduler lock", zap.Error(err))
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := s.locker.ReleaseLock(ctx, schedulerLockKey); err != nil {
			s.logger.Error("Failed to release scheduler lock", zap.Error(err))
		}
	}()

	now := time.Now()

	graced, locked, err := s.campaigns.AdvanceDuePhases(ctx, now)
	if err != nil {
		s.logger.Error("Phase advancement failed", zap.Error(err))
	} else if graced > 0 || locked > 0 {
		s.logger.Info("Phases advanced",
			zap.Int("entered_grace", graced),
			zap.Int("locked", locked))
	}

	dispatched, dispatchFailed, err := s.payments.DispatchPending(ctx)
	if err != nil {
		s.logger.Error("Checkout dispatch failed", zap.Error(err))
	} else if dispatched > 0 || dispatchFailed > 0 {
		s.logger.Info("Checkouts dispatched",
			zap.Int("dispatched", dispatched),
			zap.Int("failed", dispatchFailed))
	}

	if _, _, err := s.payments.ReconcileRetries(ctx); err != nil {
		s.logger.Error("Retry reconciliation failed", zap.Error(err))
	}
}

// GatewayWorker consumes normalized payment outcomes from the gateway topic
// and applies them through the payment intent state machine.
type GatewayWorker struct {
	consumer *broker.Consumer
	handler  *broker.GatewayEventHandler
}

// NewGatewayWorker creates a new gateway outcome worker
func NewGatewayWorker(consumer *broker.Consumer, payments *service.PaymentService) *GatewayWorker {
	handler := broker.NewGatewayEventHandler()
	handler.OnOutcome(payments.HandleGatewayOutcome)

	return &GatewayWorker{
		consumer: consumer,
		handler:  handler,
	}
}

// Start starts the worker
func (w *GatewayWorker) Start(ctx context.Context) error {
	log.Println("Starting gateway outcome worker...")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *GatewayWorker) Stop() error {
	log.Println("Stopping gateway outcome worker...")
	return w.consumer.Close()
}

package service

import (
	"context"
	"fmt"

	"groupbuy-service/internal/models"
	"groupbuy-service/internal/util"

	"go.uber.org/zap"
)

// PaymentService owns the payment intent lifecycle. Every mutation passes
// through the transition table before touching storage, and the storage write
// itself is a compare-and-set, so two concurrent callers attempting the same
// move observe exactly one winner.
type PaymentService struct {
	intents   IntentStore
	processed ProcessedEventStore
	events    Publisher
	logger    *zap.Logger

	// retryCap bounds automated collection attempts. Operational policy,
	// injected.
	retryCap int
}

// NewPaymentService creates a new payment service
func NewPaymentService(intents IntentStore, processed ProcessedEventStore, events Publisher, retryCap int) *PaymentService {
	return &PaymentService{
		intents:   intents,
		processed: processed,
		events:    events,
		logger:    util.GetLogger(),
		retryCap:  retryCap,
	}
}

// transition applies one table-checked, compare-and-set status move.
func (ps *PaymentService) transition(ctx context.Context, intent *models.PaymentIntent, to models.IntentStatus, retryCount int, providerTxID string) error {
	if err := models.CheckIntentTransition(intent.Status, to); err != nil {
		return err
	}

	ok, err := ps.intents.UpdateIntentStatus(ctx, intent.ID, intent.Status, to, retryCount, providerTxID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: payment intent %d left %s concurrently",
			models.ErrInvalidTransition, intent.ID, intent.Status)
	}

	intent.Status = to
	intent.RetryCount = retryCount
	return nil
}

// StartCheckout moves a PENDING intent to PROCESSING and asks the gateway
// integration to open a checkout.
func (ps *PaymentService) StartCheckout(ctx context.Context, intentID int64) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.StartCheckout")
	defer span.End()

	intent, err := ps.intents.GetIntentByID(ctx, intentID)
	if err != nil {
		return err
	}
	if err := ps.transition(ctx, intent, models.IntentProcessing, intent.RetryCount, ""); err != nil {
		return err
	}

	ps.publishCheckoutRequested(ctx, intent)
	return nil
}

// DispatchPending opens checkouts for all freshly settled intents. Called
// from the scheduler tick; per-item failures are isolated.
func (ps *PaymentService) DispatchPending(ctx context.Context) (dispatched, failed int, err error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.DispatchPending")
	defer span.End()

	pending, err := ps.intents.ListIntentsByStatuses(ctx, []models.IntentStatus{models.IntentPending})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list pending intents: %w", err)
	}

	for i := range pending {
		intent := pending[i]
		if err := ps.transition(ctx, &intent, models.IntentProcessing, intent.RetryCount, ""); err != nil {
			failed++
			ps.logger.Error("Failed to dispatch intent",
				zap.Int64("intent_id", intent.ID), zap.Error(err))
			continue
		}
		ps.publishCheckoutRequested(ctx, &intent)
		dispatched++
	}

	return dispatched, failed, nil
}

// Retry drives one more collection attempt for an intent.
//
// From FAILED_RETRY_1 or FAILED_RETRY_2 the intent is re-dispatched to the
// gateway (status back to PROCESSING, count unchanged). From PROCESSING the
// in-flight attempt is recorded as failed (count incremented, status to the
// matching FAILED_RETRY_n). A count at the cap is RetryLimitExceeded; any
// other source status is NotRetryable. The two conditions stay distinct.
func (ps *PaymentService) Retry(ctx context.Context, intentID int64) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.Retry")
	defer span.End()

	intent, err := ps.intents.GetIntentByID(ctx, intentID)
	if err != nil {
		return err
	}

	// An exhausted intent reports the cap, not the status: FAILED_RETRY_3 is
	// past the limit, everything else outside the retryable set is simply not
	// retryable. The two conditions stay distinguishable.
	exhaustible := intent.Status.Retryable() || intent.Status == models.IntentFailedRetry3
	if exhaustible && intent.RetryCount >= ps.retryCap {
		return fmt.Errorf("%w: payment intent %d already used %d attempts",
			models.ErrRetryLimitExceeded, intent.ID, intent.RetryCount)
	}
	if !intent.Status.Retryable() {
		return fmt.Errorf("%w: payment intent %d is %s", models.ErrNotRetryable, intent.ID, intent.Status)
	}

	if intent.Status == models.IntentProcessing {
		return ps.markAttemptFailed(ctx, intent, "retry requested while processing")
	}

	if err := ps.transition(ctx, intent, models.IntentProcessing, intent.RetryCount, ""); err != nil {
		util.IntentRetriesTotal.WithLabelValues("error").Inc()
		return err
	}

	util.IntentRetriesTotal.WithLabelValues("dispatched").Inc()
	ps.logger.Info("Payment intent re-dispatched",
		zap.Int64("intent_id", intent.ID),
		zap.Int("retry_count", intent.RetryCount))

	ps.publishCheckoutRequested(ctx, intent)
	return nil
}

// markAttemptFailed records a failed collection attempt: the retry count
// increments and the status becomes the FAILED_RETRY_n matching it.
func (ps *PaymentService) markAttemptFailed(ctx context.Context, intent *models.PaymentIntent, reason string) error {
	newCount := intent.RetryCount + 1
	target, err := models.FailedRetryStatus(newCount)
	if err != nil {
		return fmt.Errorf("%w: payment intent %d", models.ErrRetryLimitExceeded, intent.ID)
	}

	if err := ps.transition(ctx, intent, target, newCount, ""); err != nil {
		return err
	}

	util.PaymentFailedTotal.Inc()
	ps.logger.Warn("Collection attempt failed",
		zap.Int64("intent_id", intent.ID),
		zap.Int("retry_count", newCount),
		zap.String("reason", reason))

	event := &models.PaymentFailedEvent{
		BaseEvent:  newBaseEvent(models.EventTypePaymentFailed),
		IntentID:   intent.ID,
		CampaignID: intent.CampaignID,
		RetryCount: newCount,
		Reason:     reason,
	}
	if err := ps.events.PublishPaymentFailed(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
	}
	return nil
}

// EscalateToAR hands an intent that exhausted automated retries to manual
// collection. Allowed only from FAILED_RETRY_3 with the count exactly at the
// cap; this is an explicit administrative action, never automatic.
func (ps *PaymentService) EscalateToAR(ctx context.Context, intentID int64) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.EscalateToAR")
	defer span.End()

	intent, err := ps.intents.GetIntentByID(ctx, intentID)
	if err != nil {
		return err
	}
	if intent.Status != models.IntentFailedRetry3 || intent.RetryCount != models.MaxIntentRetries {
		return fmt.Errorf("%w: payment intent %d cannot move from %s (retry count %d) to %s",
			models.ErrInvalidTransition, intent.ID, intent.Status, intent.RetryCount, models.IntentSentToAR)
	}

	if err := ps.transition(ctx, intent, models.IntentSentToAR, intent.RetryCount, ""); err != nil {
		return err
	}

	util.IntentsEscalatedTotal.Inc()
	ps.logger.Info("Payment intent escalated to AR", zap.Int64("intent_id", intent.ID))

	event := &models.IntentSentToAREvent{
		BaseEvent:  newBaseEvent(models.EventTypeIntentSentToAR),
		IntentID:   intent.ID,
		CampaignID: intent.CampaignID,
		BuyerOrgID: intent.BuyerOrgID,
		Amount:     intent.Amount,
	}
	if err := ps.events.PublishIntentSentToAR(ctx, event); err != nil {
		ps.logger.Error("Failed to publish IntentSentToAR event", zap.Error(err))
	}
	return nil
}

// AR resolution outcomes
const (
	AROutcomeCollected  = "collected"
	AROutcomeWrittenOff = "written_off"
)

// ResolveAR retires a SENT_TO_AR intent once manual collection concludes.
func (ps *PaymentService) ResolveAR(ctx context.Context, intentID int64, outcome string) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.ResolveAR")
	defer span.End()

	var target models.IntentStatus
	switch outcome {
	case AROutcomeCollected:
		target = models.IntentCollectedViaAR
	case AROutcomeWrittenOff:
		target = models.IntentWrittenOff
	default:
		return fmt.Errorf("unknown AR outcome %q", outcome)
	}

	intent, err := ps.intents.GetIntentByID(ctx, intentID)
	if err != nil {
		return err
	}
	if err := ps.transition(ctx, intent, target, intent.RetryCount, ""); err != nil {
		return err
	}

	ps.logger.Info("AR collection resolved",
		zap.Int64("intent_id", intent.ID),
		zap.String("outcome", outcome))
	return nil
}

// HandleGatewayOutcome applies a normalized gateway signal through the
// transition table. The event ID guards against redelivery; a `pending`
// outcome is an acknowledgement and changes nothing.
func (ps *PaymentService) HandleGatewayOutcome(ctx context.Context, event *models.GatewayOutcomeEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleGatewayOutcome")
	defer span.End()

	done, err := ps.processed.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if done {
		ps.logger.Info("Gateway event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if event.Outcome == models.GatewayOutcomePending {
		return ps.processed.MarkEventProcessed(ctx, event.EventID, event.EventType)
	}

	intent, err := ps.intents.GetIntentByID(ctx, event.IntentID)
	if err != nil {
		return err
	}

	switch event.Outcome {
	case models.GatewayOutcomeSucceeded:
		if err := ps.transition(ctx, intent, models.IntentSucceeded, intent.RetryCount, event.ProviderTxID); err != nil {
			return err
		}

		util.PaymentSucceededTotal.Inc()
		ps.logger.Info("Payment succeeded",
			zap.Int64("intent_id", intent.ID),
			zap.String("provider_tx_id", event.ProviderTxID))

		succeededEvent := &models.PaymentSucceededEvent{
			BaseEvent:    newBaseEvent(models.EventTypePaymentSucceeded),
			IntentID:     intent.ID,
			CampaignID:   intent.CampaignID,
			BuyerOrgID:   intent.BuyerOrgID,
			Amount:       intent.Amount,
			ProviderTxID: event.ProviderTxID,
		}
		if err := ps.events.PublishPaymentSucceeded(ctx, succeededEvent); err != nil {
			ps.logger.Error("Failed to publish PaymentSucceeded event", zap.Error(err))
		}

	case models.GatewayOutcomeFailed:
		if err := ps.markAttemptFailed(ctx, intent, event.Reason); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown gateway outcome %q", event.Outcome)
	}

	return ps.processed.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

// ReconcileRetries is the periodic reconciliation job: it gathers every
// intent in FAILED_RETRY_1 or FAILED_RETRY_2 with attempts left, across all
// campaigns, and retries each one. Item failures are counted and skipped,
// never aborting the batch; only a storage-level fault fails the run.
func (ps *PaymentService) ReconcileRetries(ctx context.Context) (retried, failed int, err error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.ReconcileRetries")
	defer span.End()

	retryable, err := ps.intents.ListIntentsByStatuses(ctx,
		[]models.IntentStatus{models.IntentFailedRetry1, models.IntentFailedRetry2})
	if err != nil {
		util.ReconciliationRuns.WithLabelValues("error").Inc()
		return 0, 0, fmt.Errorf("failed to list retryable intents: %w", err)
	}

	for i := range retryable {
		intent := retryable[i]
		if intent.RetryCount >= ps.retryCap {
			continue
		}

		if err := ps.Retry(ctx, intent.ID); err != nil {
			failed++
			ps.logger.Error("Retry failed during reconciliation",
				zap.Int64("intent_id", intent.ID), zap.Error(err))
			continue
		}
		retried++
	}

	util.ReconciliationRuns.WithLabelValues("ok").Inc()
	if retried > 0 || failed > 0 {
		ps.logger.Info("Retry reconciliation finished",
			zap.Int("retried", retried),
			zap.Int("failed", failed))
	}
	return retried, failed, nil
}

// GetPaymentHistory lists the payment intents of a campaign.
func (ps *PaymentService) GetPaymentHistory(ctx context.Context, campaignID int64) ([]models.PaymentIntent, error) {
	return ps.intents.ListIntentsByCampaign(ctx, campaignID)
}

// GetIntent retrieves a single payment intent.
func (ps *PaymentService) GetIntent(ctx context.Context, intentID int64) (*models.PaymentIntent, error) {
	return ps.intents.GetIntentByID(ctx, intentID)
}

func (ps *PaymentService) publishCheckoutRequested(ctx context.Context, intent *models.PaymentIntent) {
	event := &models.CheckoutRequestedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeCheckoutRequested),
		IntentID:   intent.ID,
		CampaignID: intent.CampaignID,
		BuyerOrgID: intent.BuyerOrgID,
		Amount:     intent.Amount,
		Attempt:    intent.RetryCount + 1,
	}
	if err := ps.events.PublishCheckoutRequested(ctx, event); err != nil {
		ps.logger.Error("Failed to publish CheckoutRequested event", zap.Error(err))
	}
}

package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"groupbuy-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher publishes domain events for the notification collaborator.
// Delivery is fire-and-forget from the core's point of view: publish failures
// are surfaced to the caller for logging but never roll back state.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishCampaignPublished publishes CampaignPublished event
func (ep *EventPublisher) PublishCampaignPublished(ctx context.Context, event *models.CampaignPublishedEvent) error {
	key := fmt.Sprintf("campaign-%d", event.CampaignID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishCampaignLocked publishes CampaignLocked event
func (ep *EventPublisher) PublishCampaignLocked(ctx context.Context, event *models.CampaignLockedEvent) error {
	key := fmt.Sprintf("campaign-%d", event.CampaignID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishCampaignCancelled publishes CampaignCancelled event
func (ep *EventPublisher) PublishCampaignCancelled(ctx context.Context, event *models.CampaignCancelledEvent) error {
	key := fmt.Sprintf("campaign-%d", event.CampaignID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPledgeCommitted publishes PledgeCommitted event
func (ep *EventPublisher) PublishPledgeCommitted(ctx context.Context, event *models.PledgeCommittedEvent) error {
	key := fmt.Sprintf("campaign-%d", event.CampaignID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishCheckoutRequested publishes CheckoutRequested event
func (ep *EventPublisher) PublishCheckoutRequested(ctx context.Context, event *models.CheckoutRequestedEvent) error {
	key := fmt.Sprintf("intent-%d", event.IntentID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPaymentSucceeded publishes PaymentSucceeded event
func (ep *EventPublisher) PublishPaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error {
	key := fmt.Sprintf("intent-%d", event.IntentID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPaymentFailed publishes PaymentFailed event
func (ep *EventPublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	key := fmt.Sprintf("intent-%d", event.IntentID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishIntentSentToAR publishes IntentSentToAR event
func (ep *EventPublisher) PublishIntentSentToAR(ctx context.Context, event *models.IntentSentToAREvent) error {
	key := fmt.Sprintf("intent-%d", event.IntentID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// GatewayEventHandler routes normalized gateway outcome messages to a
// registered callback.
type GatewayEventHandler struct {
	onOutcome func(context.Context, *models.GatewayOutcomeEvent) error
}

// NewGatewayEventHandler creates a new gateway event handler
func NewGatewayEventHandler() *GatewayEventHandler {
	return &GatewayEventHandler{}
}

// OnOutcome registers a handler for gateway outcome events
func (gh *GatewayEventHandler) OnOutcome(handler func(context.Context, *models.GatewayOutcomeEvent) error) {
	gh.onOutcome = handler
}

// HandleMessage decodes and dispatches a gateway message
func (gh *GatewayEventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	if baseEvent.EventType != models.EventTypeGatewayOutcome {
		log.Printf("Unhandled event type on gateway topic: %s", baseEvent.EventType)
		return nil
	}

	if gh.onOutcome == nil {
		return nil
	}

	var event models.GatewayOutcomeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal GatewayOutcome event: %w", err)
	}
	return gh.onOutcome(ctx, &event)
}

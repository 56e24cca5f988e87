package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeCampaignPublished = "CAMPAIGN_PUBLISHED"
	EventTypeCampaignLocked    = "CAMPAIGN_LOCKED"
	EventTypeCampaignCancelled = "CAMPAIGN_CANCELLED"
	EventTypePledgeCommitted   = "PLEDGE_COMMITTED"
	EventTypeCheckoutRequested = "CHECKOUT_REQUESTED"
	EventTypePaymentSucceeded  = "PAYMENT_SUCCEEDED"
	EventTypePaymentFailed     = "PAYMENT_FAILED"
	EventTypeIntentSentToAR    = "INTENT_SENT_TO_AR"
	EventTypeGatewayOutcome    = "GATEWAY_OUTCOME"
)

// Normalized gateway outcomes. The gateway integration only ever reports one
// of these three; it never names a target state.
const (
	GatewayOutcomeSucceeded = "succeeded"
	GatewayOutcomeFailed    = "failed"
	GatewayOutcomePending   = "pending"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CampaignPublishedEvent published when a campaign goes live
type CampaignPublishedEvent struct {
	BaseEvent
	CampaignID    int64     `json:"campaign_id"`
	SupplierOrgID int64     `json:"supplier_org_id"`
	EndDate       time.Time `json:"end_date"`
}

// CampaignLockedEvent published once settlement has generated intents
type CampaignLockedEvent struct {
	BaseEvent
	CampaignID     int64           `json:"campaign_id"`
	TotalCommitted int64           `json:"total_committed"`
	ClearingPrice  decimal.Decimal `json:"clearing_price"`
	IntentCount    int             `json:"intent_count"`
}

// CampaignCancelledEvent published when a campaign is cancelled
type CampaignCancelledEvent struct {
	BaseEvent
	CampaignID int64  `json:"campaign_id"`
	Reason     string `json:"reason"`
}

// PledgeCommittedEvent published when a buyer commits during grace period
type PledgeCommittedEvent struct {
	BaseEvent
	PledgeID   int64 `json:"pledge_id"`
	CampaignID int64 `json:"campaign_id"`
	BuyerOrgID int64 `json:"buyer_org_id"`
	Quantity   int64 `json:"quantity"`
}

// CheckoutRequestedEvent asks the gateway integration to open a checkout for
// an intent. Attempt counts from 1 on the first dispatch.
type CheckoutRequestedEvent struct {
	BaseEvent
	IntentID   int64           `json:"intent_id"`
	CampaignID int64           `json:"campaign_id"`
	BuyerOrgID int64           `json:"buyer_org_id"`
	Amount     decimal.Decimal `json:"amount"`
	Attempt    int             `json:"attempt"`
}

// PaymentSucceededEvent published when an intent reaches SUCCEEDED
type PaymentSucceededEvent struct {
	BaseEvent
	IntentID     int64           `json:"intent_id"`
	CampaignID   int64           `json:"campaign_id"`
	BuyerOrgID   int64           `json:"buyer_org_id"`
	Amount       decimal.Decimal `json:"amount"`
	ProviderTxID string          `json:"provider_tx_id"`
}

// PaymentFailedEvent published when a collection attempt fails
type PaymentFailedEvent struct {
	BaseEvent
	IntentID   int64  `json:"intent_id"`
	CampaignID int64  `json:"campaign_id"`
	RetryCount int    `json:"retry_count"`
	Reason     string `json:"reason"`
}

// IntentSentToAREvent published when an intent is handed to manual collection
type IntentSentToAREvent struct {
	BaseEvent
	IntentID   int64           `json:"intent_id"`
	CampaignID int64           `json:"campaign_id"`
	BuyerOrgID int64           `json:"buyer_org_id"`
	Amount     decimal.Decimal `json:"amount"`
}

// GatewayOutcomeEvent is the normalized payment result consumed from the
// gateway integration.
type GatewayOutcomeEvent struct {
	BaseEvent
	IntentID     int64  `json:"intent_id"`
	Outcome      string `json:"outcome"`
	ProviderTxID string `json:"provider_tx_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

package service

import (
	"context"
	"time"

	"groupbuy-service/internal/models"
)

// Narrow repository interfaces injected into the services. *store.Store
// satisfies all of them; tests substitute in-memory fakes.

// OrganizationStore looks up acting organizations.
type OrganizationStore interface {
	GetOrganizationByID(ctx context.Context, id int64) (*models.Organization, error)
}

// CampaignStore owns campaign rows, bracket rows and the atomic
// lock-and-settle transaction.
type CampaignStore interface {
	CreateCampaign(ctx context.Context, campaign *models.Campaign, brackets []models.DiscountBracket) error
	GetCampaignByID(ctx context.Context, id int64) (*models.Campaign, error)
	GetBracketsByCampaignID(ctx context.Context, campaignID int64) ([]models.DiscountBracket, error)
	UpdateCampaignPhase(ctx context.Context, id int64, from, to models.CampaignPhase) (bool, error)
	DeleteDraftCampaign(ctx context.Context, id int64) (bool, error)
	ListDueForGracePeriod(ctx context.Context, cutoff time.Time) ([]models.Campaign, error)
	ListDueForLock(ctx context.Context, now time.Time) ([]models.Campaign, error)
	LockAndSettle(ctx context.Context, campaignID int64,
		settle func(committed []models.Pledge) ([]models.PaymentIntent, error)) (bool, error)
}

// PledgeStore owns pledge rows.
type PledgeStore interface {
	CreatePledge(ctx context.Context, pledge *models.Pledge) error
	GetPledgeByID(ctx context.Context, id int64) (*models.Pledge, error)
	GetPledgeForBuyer(ctx context.Context, campaignID, buyerOrgID int64) (*models.Pledge, error)
	ReactivatePledge(ctx context.Context, id, quantity int64) (bool, error)
	UpdatePledgeQuantity(ctx context.Context, id, quantity int64) (bool, error)
	WithdrawPledge(ctx context.Context, id int64) (bool, error)
	CommitPledge(ctx context.Context, id int64, at time.Time) (bool, error)
	SumCommittedQuantity(ctx context.Context, campaignID int64) (int64, error)
	SumActiveQuantity(ctx context.Context, campaignID int64) (int64, error)
}

// IntentStore owns payment intent rows.
type IntentStore interface {
	GetIntentByID(ctx context.Context, id int64) (*models.PaymentIntent, error)
	UpdateIntentStatus(ctx context.Context, id int64, from, to models.IntentStatus, retryCount int, providerTxID string) (bool, error)
	ListIntentsByStatuses(ctx context.Context, statuses []models.IntentStatus) ([]models.PaymentIntent, error)
	ListIntentsByCampaign(ctx context.Context, campaignID int64) ([]models.PaymentIntent, error)
}

// ProcessedEventStore provides callback idempotency.
type ProcessedEventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// ProgressCache is the short-TTL read cache for bracket progress.
type ProgressCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Publisher emits domain events for the notification collaborator.
type Publisher interface {
	PublishCampaignPublished(ctx context.Context, event *models.CampaignPublishedEvent) error
	PublishCampaignLocked(ctx context.Context, event *models.CampaignLockedEvent) error
	PublishCampaignCancelled(ctx context.Context, event *models.CampaignCancelledEvent) error
	PublishPledgeCommitted(ctx context.Context, event *models.PledgeCommittedEvent) error
	PublishCheckoutRequested(ctx context.Context, event *models.CheckoutRequestedEvent) error
	PublishPaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
	PublishIntentSentToAR(ctx context.Context, event *models.IntentSentToAREvent) error
}

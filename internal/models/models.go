package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CampaignPhase is the lifecycle phase of a campaign.
type CampaignPhase string

const (
	PhaseDraft       CampaignPhase = "DRAFT"
	PhaseActive      CampaignPhase = "ACTIVE"
	PhaseGracePeriod CampaignPhase = "GRACE_PERIOD"
	PhaseLocked      CampaignPhase = "LOCKED"
	PhaseCancelled   CampaignPhase = "CANCELLED"
	PhaseDone        CampaignPhase = "DONE"
)

// ParseCampaignPhase converts a stored string into a CampaignPhase.
func ParseCampaignPhase(s string) (CampaignPhase, error) {
	switch p := CampaignPhase(s); p {
	case PhaseDraft, PhaseActive, PhaseGracePeriod, PhaseLocked, PhaseCancelled, PhaseDone:
		return p, nil
	}
	return "", fmt.Errorf("unknown campaign phase %q", s)
}

// campaignTransitions is the adjacency map of valid phase moves. CANCELLED
// and DONE are terminal.
var campaignTransitions = map[CampaignPhase]map[CampaignPhase]struct{}{
	PhaseDraft:       {PhaseActive: {}, PhaseCancelled: {}},
	PhaseActive:      {PhaseGracePeriod: {}, PhaseCancelled: {}},
	PhaseGracePeriod: {PhaseLocked: {}, PhaseCancelled: {}},
	PhaseLocked:      {PhaseDone: {}},
	PhaseCancelled:   {},
	PhaseDone:        {},
}

// ValidCampaignTransition reports whether from -> to is an allowed phase move.
func ValidCampaignTransition(from, to CampaignPhase) bool {
	_, ok := campaignTransitions[from][to]
	return ok
}

// CheckCampaignTransition returns ErrPhaseViolation for a move outside the
// phase table.
func CheckCampaignTransition(from, to CampaignPhase) error {
	if !ValidCampaignTransition(from, to) {
		return fmt.Errorf("%w: campaign cannot move from %s to %s", ErrPhaseViolation, from, to)
	}
	return nil
}

// PledgeStatus is the lifecycle status of a pledge.
type PledgeStatus string

const (
	PledgePending   PledgeStatus = "PENDING"
	PledgeCommitted PledgeStatus = "COMMITTED"
	PledgeWithdrawn PledgeStatus = "WITHDRAWN"
)

// ParsePledgeStatus converts a stored string into a PledgeStatus.
func ParsePledgeStatus(s string) (PledgeStatus, error) {
	switch st := PledgeStatus(s); st {
	case PledgePending, PledgeCommitted, PledgeWithdrawn:
		return st, nil
	}
	return "", fmt.Errorf("unknown pledge status %q", s)
}

// IntentStatus is the lifecycle status of a payment intent.
type IntentStatus string

const (
	IntentPending        IntentStatus = "PENDING"
	IntentProcessing     IntentStatus = "PROCESSING"
	IntentSucceeded      IntentStatus = "SUCCEEDED"
	IntentFailedRetry1   IntentStatus = "FAILED_RETRY_1"
	IntentFailedRetry2   IntentStatus = "FAILED_RETRY_2"
	IntentFailedRetry3   IntentStatus = "FAILED_RETRY_3"
	IntentSentToAR       IntentStatus = "SENT_TO_AR"
	IntentCollectedViaAR IntentStatus = "COLLECTED_VIA_AR"
	IntentWrittenOff     IntentStatus = "WRITTEN_OFF"
)

// MaxIntentRetries is the hard cap on automated collection attempts.
const MaxIntentRetries = 3

// ParseIntentStatus converts a stored string into an IntentStatus.
func ParseIntentStatus(s string) (IntentStatus, error) {
	switch st := IntentStatus(s); st {
	case IntentPending, IntentProcessing, IntentSucceeded,
		IntentFailedRetry1, IntentFailedRetry2, IntentFailedRetry3,
		IntentSentToAR, IntentCollectedViaAR, IntentWrittenOff:
		return st, nil
	}
	return "", fmt.Errorf("unknown payment intent status %q", s)
}

// intentTransitions is the adjacency map of valid intent status moves. It is
// the single gate for intent mutations; every write path goes through
// CheckIntentTransition before touching storage.
var intentTransitions = map[IntentStatus]map[IntentStatus]struct{}{
	IntentPending:      {IntentProcessing: {}},
	IntentProcessing:   {IntentSucceeded: {}, IntentFailedRetry1: {}, IntentFailedRetry2: {}, IntentFailedRetry3: {}},
	IntentFailedRetry1: {IntentProcessing: {}},
	IntentFailedRetry2: {IntentProcessing: {}},
	IntentFailedRetry3: {IntentSentToAR: {}},
	IntentSentToAR:     {IntentCollectedViaAR: {}, IntentWrittenOff: {}},

	IntentSucceeded:      {},
	IntentCollectedViaAR: {},
	IntentWrittenOff:     {},
}

// ValidIntentTransition reports whether from -> to appears in the table.
func ValidIntentTransition(from, to IntentStatus) bool {
	_, ok := intentTransitions[from][to]
	return ok
}

// CheckIntentTransition returns ErrInvalidTransition naming both states when
// the move is outside the table.
func CheckIntentTransition(from, to IntentStatus) error {
	if !ValidIntentTransition(from, to) {
		return fmt.Errorf("%w: payment intent cannot move from %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Terminal reports whether the status has no outgoing transitions.
func (s IntentStatus) Terminal() bool {
	return len(intentTransitions[s]) == 0
}

// Retryable reports whether the retry operation may act on the status.
func (s IntentStatus) Retryable() bool {
	switch s {
	case IntentProcessing, IntentFailedRetry1, IntentFailedRetry2:
		return true
	}
	return false
}

// FailedRetryStatus maps a retry count to its FAILED_RETRY_n status.
func FailedRetryStatus(count int) (IntentStatus, error) {
	switch count {
	case 1:
		return IntentFailedRetry1, nil
	case 2:
		return IntentFailedRetry2, nil
	case 3:
		return IntentFailedRetry3, nil
	}
	return "", fmt.Errorf("no failed-retry status for attempt count %d", count)
}

// Organization kinds
const (
	OrgKindSupplier = "SUPPLIER"
	OrgKindBuyer    = "BUYER"
)

// Organization represents a supplier or buyer organization
type Organization struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Kind      string    `db:"kind" json:"kind"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Campaign represents a time-boxed group-buy offer with tiered pricing
type Campaign struct {
	ID             int64         `db:"id" json:"id"`
	SupplierOrgID  int64         `db:"supplier_org_id" json:"supplier_org_id"`
	Title          string        `db:"title" json:"title"`
	Description    string        `db:"description" json:"description"`
	StartDate      time.Time     `db:"start_date" json:"start_date"`
	EndDate        time.Time     `db:"end_date" json:"end_date"`
	TargetQuantity int64         `db:"target_quantity" json:"target_quantity"`
	Phase          CampaignPhase `db:"phase" json:"phase"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// DiscountBracket maps a quantity range to a unit price. The brackets of a
// campaign partition quantity space: contiguous, non-overlapping, ascending,
// with the final bracket unbounded (nil MaxQuantity).
type DiscountBracket struct {
	ID          int64           `db:"id" json:"id"`
	CampaignID  int64           `db:"campaign_id" json:"campaign_id"`
	MinQuantity int64           `db:"min_quantity" json:"min_quantity"`
	MaxQuantity *int64          `db:"max_quantity" json:"max_quantity,omitempty"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	Position    int             `db:"position" json:"position"`
}

// Contains reports whether quantity falls inside the bracket's range.
func (b DiscountBracket) Contains(quantity int64) bool {
	if quantity < b.MinQuantity {
		return false
	}
	return b.MaxQuantity == nil || quantity <= *b.MaxQuantity
}

// Pledge represents a buyer's stated intent to purchase a quantity under a
// campaign. At most one row exists per (campaign, buyer); a WITHDRAWN row is
// reactivated in place instead of duplicated.
type Pledge struct {
	ID          int64        `db:"id" json:"id"`
	CampaignID  int64        `db:"campaign_id" json:"campaign_id"`
	BuyerOrgID  int64        `db:"buyer_org_id" json:"buyer_org_id"`
	Quantity    int64        `db:"quantity" json:"quantity"`
	Status      PledgeStatus `db:"status" json:"status"`
	CommittedAt *time.Time   `db:"committed_at" json:"committed_at,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// PaymentIntent is the obligation to collect payment for one committed
// pledge at the campaign's clearing price. Amount is computed once at
// settlement and never re-derived.
type PaymentIntent struct {
	ID           int64           `db:"id" json:"id"`
	CampaignID   int64           `db:"campaign_id" json:"campaign_id"`
	PledgeID     int64           `db:"pledge_id" json:"pledge_id"`
	BuyerOrgID   int64           `db:"buyer_org_id" json:"buyer_org_id"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Status       IntentStatus    `db:"status" json:"status"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	ProviderTxID string          `db:"provider_tx_id" json:"provider_tx_id,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// ProcessedEvent records a consumed gateway event for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

package service

import (
	"context"
	"fmt"
	"time"

	"groupbuy-service/internal/models"
	"groupbuy-service/internal/pricing"
	"groupbuy-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const progressCacheTTL = 15 * time.Second

// CampaignService owns the campaign phase state machine and the settlement
// step that converts committed pledges into payment obligations.
type CampaignService struct {
	campaigns CampaignStore
	pledges   PledgeStore
	orgs      OrganizationStore
	cache     ProgressCache
	events    Publisher
	logger    *zap.Logger

	// graceWindow is the offset before the end date at which an ACTIVE
	// campaign enters GRACE_PERIOD. Operational policy, injected.
	graceWindow time.Duration
}

// NewCampaignService creates a new campaign service
func NewCampaignService(
	campaigns CampaignStore,
	pledges PledgeStore,
	orgs OrganizationStore,
	cache ProgressCache,
	events Publisher,
	graceWindow time.Duration,
) *CampaignService {
	return &CampaignService{
		campaigns:   campaigns,
		pledges:     pledges,
		orgs:        orgs,
		cache:       cache,
		events:      events,
		logger:      util.GetLogger(),
		graceWindow: graceWindow,
	}
}

// CreateCampaignRequest represents a request to create a draft campaign
type CreateCampaignRequest struct {
	SupplierOrgID  int64            `json:"supplier_org_id" binding:"required"`
	Title          string           `json:"title" binding:"required"`
	Description    string           `json:"description"`
	StartDate      time.Time        `json:"start_date" binding:"required"`
	EndDate        time.Time        `json:"end_date" binding:"required"`
	TargetQuantity int64            `json:"target_quantity" binding:"required,min=1"`
	Brackets       []BracketRequest `json:"brackets" binding:"required,min=1"`
}

// BracketRequest represents one discount bracket in a create request
type BracketRequest struct {
	MinQuantity int64           `json:"min_quantity"`
	MaxQuantity *int64          `json:"max_quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Position    int             `json:"position"`
}

// CreateCampaign creates a campaign in DRAFT with its brackets attached.
// The bracket partition is validated here so a broken configuration is
// rejected before it can ever be published.
func (s *CampaignService) CreateCampaign(ctx context.Context, req *CreateCampaignRequest) (*models.Campaign, error) {
	ctx, span := util.StartSpan(ctx, "CampaignService.CreateCampaign")
	defer span.End()

	org, err := s.orgs.GetOrganizationByID(ctx, req.SupplierOrgID)
	if err != nil {
		return nil, err
	}
	if !org.Active {
		return nil, fmt.Errorf("%w: supplier organization %d", models.ErrOrganizationNotActive, org.ID)
	}

	brackets := make([]models.DiscountBracket, len(req.Brackets))
	for i, b := range req.Brackets {
		brackets[i] = models.DiscountBracket{
			MinQuantity: b.MinQuantity,
			MaxQuantity: b.MaxQuantity,
			UnitPrice:   b.UnitPrice,
			Position:    b.Position,
		}
	}
	if err := pricing.ValidateBrackets(brackets); err != nil {
		return nil, err
	}

	campaign := &models.Campaign{
		SupplierOrgID:  req.SupplierOrgID,
		Title:          req.Title,
		Description:    req.Description,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		TargetQuantity: req.TargetQuantity,
		Phase:          models.PhaseDraft,
	}

	if err := s.campaigns.CreateCampaign(ctx, campaign, brackets); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	s.logger.Info("Campaign created", zap.Int64("campaign_id", campaign.ID))
	return campaign, nil
}

// Publish moves a DRAFT campaign to ACTIVE. Requires supplier ownership, a
// valid non-empty bracket partition and a future end date.
func (s *CampaignService) Publish(ctx context.Context, campaignID, supplierOrgID int64) (*models.Campaign, error) {
	ctx, span := util.StartSpan(ctx, "CampaignService.Publish")
	defer span.End()

	campaign, err := s.campaigns.GetCampaignByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.SupplierOrgID != supplierOrgID {
		return nil, fmt.Errorf("%w: campaign %d is not owned by organization %d",
			models.ErrPledgeAccessDenied, campaignID, supplierOrgID)
	}
	if err := models.CheckCampaignTransition(campaign.Phase, models.PhaseActive); err != nil {
		return nil, err
	}
	if !campaign.EndDate.After(time.Now()) {
		return nil, fmt.Errorf("%w: cannot publish campaign %d with past end date",
			models.ErrPhaseViolation, campaignID)
	}

	brackets, err := s.campaigns.GetBracketsByCampaignID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if err := pricing.ValidateBrackets(brackets); err != nil {
		return nil, err
	}

	ok, err := s.campaigns.UpdateCampaignPhase(ctx, campaignID, models.PhaseDraft, models.PhaseActive)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: campaign %d left DRAFT concurrently", models.ErrPhaseViolation, campaignID)
	}

	util.CampaignsPublishedTotal.Inc()
	campaign.Phase = models.PhaseActive
	s.logger.Info("Campaign published", zap.Int64("campaign_id", campaignID))

	event := &models.CampaignPublishedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeCampaignPublished),
		CampaignID:    campaign.ID,
		SupplierOrgID: campaign.SupplierOrgID,
		EndDate:       campaign.EndDate,
	}
	if err := s.events.PublishCampaignPublished(ctx, event); err != nil {
		s.logger.Error("Failed to publish CampaignPublished event", zap.Error(err))
	}

	return campaign, nil
}

// Cancel moves a campaign to CANCELLED from any pre-lock phase. No settlement
// occurs for a cancelled campaign.
func (s *CampaignService) Cancel(ctx context.Context, campaignID int64, reason string) error {
	ctx, span := util.StartSpan(ctx, "CampaignService.Cancel")
	defer span.End()

	campaign, err := s.campaigns.GetCampaignByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if err := models.CheckCampaignTransition(campaign.Phase, models.PhaseCancelled); err != nil {
		return err
	}

	ok, err := s.campaigns.UpdateCampaignPhase(ctx, campaignID, campaign.Phase, models.PhaseCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: campaign %d changed phase concurrently", models.ErrPhaseViolation, campaignID)
	}

	s.logger.Info("Campaign cancelled",
		zap.Int64("campaign_id", campaignID),
		zap.String("reason", reason))

	event := &models.CampaignCancelledEvent{
		BaseEvent:  newBaseEvent(models.EventTypeCampaignCancelled),
		CampaignID: campaignID,
		Reason:     reason,
	}
	if err := s.events.PublishCampaignCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish CampaignCancelled event", zap.Error(err))
	}

	return nil
}

// Complete moves a LOCKED campaign to DONE once fulfillment has concluded.
func (s *CampaignService) Complete(ctx context.Context, campaignID int64) error {
	ctx, span := util.StartSpan(ctx, "CampaignService.Complete")
	defer span.End()

	campaign, err := s.campaigns.GetCampaignByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if err := models.CheckCampaignTransition(campaign.Phase, models.PhaseDone); err != nil {
		return err
	}

	ok, err := s.campaigns.UpdateCampaignPhase(ctx, campaignID, models.PhaseLocked, models.PhaseDone)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: campaign %d changed phase concurrently", models.ErrPhaseViolation, campaignID)
	}

	s.logger.Info("Campaign completed", zap.Int64("campaign_id", campaignID))
	return nil
}

// DeleteDraft hard-deletes a never-published DRAFT campaign.
func (s *CampaignService) DeleteDraft(ctx context.Context, campaignID, supplierOrgID int64) error {
	campaign, err := s.campaigns.GetCampaignByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.SupplierOrgID != supplierOrgID {
		return fmt.Errorf("%w: campaign %d is not owned by organization %d",
			models.ErrPledgeAccessDenied, campaignID, supplierOrgID)
	}
	if campaign.Phase != models.PhaseDraft {
		return fmt.Errorf("%w: only DRAFT campaigns may be deleted", models.ErrPhaseViolation)
	}

	ok, err := s.campaigns.DeleteDraftCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: campaign %d left DRAFT concurrently", models.ErrPhaseViolation, campaignID)
	}
	return nil
}

// GetCampaign retrieves a campaign and its brackets
func (s *CampaignService) GetCampaign(ctx context.Context, campaignID int64) (*models.Campaign, []models.DiscountBracket, error) {
	campaign, err := s.campaigns.GetCampaignByID(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	brackets, err := s.campaigns.GetBracketsByCampaignID(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	return campaign, brackets, nil
}

// BracketProgress is the live tier standing of a campaign.
type BracketProgress struct {
	CampaignID     int64              `json:"campaign_id"`
	Phase          models.CampaignPhase `json:"phase"`
	Quantity       int64              `json:"quantity"`
	TargetQuantity int64              `json:"target_quantity"`
	Resolution     pricing.Resolution `json:"resolution"`
}

// GetBracketProgress resolves the current tier standing. Before lock the
// quantity counts committed plus pending pledges; from LOCKED onward only
// committed quantity counts, matching the clearing basis. Reads go through a
// short-TTL cache; the store remains the source of truth.
func (s *CampaignService) GetBracketProgress(ctx context.Context, campaignID int64) (*BracketProgress, error) {
	ctx, span := util.StartSpan(ctx, "CampaignService.GetBracketProgress")
	defer span.End()

	cacheKey := progressCacheKey(campaignID)
	var cached BracketProgress
	if hit, err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, nil
	} else if err != nil {
		s.logger.Warn("Progress cache read failed", zap.Error(err))
	}

	campaign, err := s.campaigns.GetCampaignByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	var quantity int64
	switch campaign.Phase {
	case models.PhaseLocked, models.PhaseDone:
		quantity, err = s.pledges.SumCommittedQuantity(ctx, campaignID)
	default:
		quantity, err = s.pledges.SumActiveQuantity(ctx, campaignID)
	}
	if err != nil {
		return nil, err
	}

	brackets, err := s.campaigns.GetBracketsByCampaignID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	resolution, err := pricing.Resolve(brackets, quantity)
	if err != nil {
		return nil, err
	}

	progress := &BracketProgress{
		CampaignID:     campaignID,
		Phase:          campaign.Phase,
		Quantity:       quantity,
		TargetQuantity: campaign.TargetQuantity,
		Resolution:     *resolution,
	}

	if err := s.cache.SetJSON(ctx, cacheKey, progress, progressCacheTTL); err != nil {
		s.logger.Warn("Progress cache write failed", zap.Error(err))
	}
	return progress, nil
}

// AdvanceDuePhases runs one scheduler tick: ACTIVE campaigns inside the grace
// window move to GRACE_PERIOD, and GRACE_PERIOD campaigns past their end date
// are locked and settled. Per-campaign failures are isolated.
func (s *CampaignService) AdvanceDuePhases(ctx context.Context, now time.Time) (graced, locked int, err error) {
	ctx, span := util.StartSpan(ctx, "CampaignService.AdvanceDuePhases")
	defer span.End()

	dueGrace, err := s.campaigns.ListDueForGracePeriod(ctx, now.Add(s.graceWindow))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list campaigns due for grace period: %w", err)
	}
	for _, campaign := range dueGrace {
		ok, err := s.campaigns.UpdateCampaignPhase(ctx, campaign.ID, models.PhaseActive, models.PhaseGracePeriod)
		if err != nil {
			s.logger.Error("Failed to enter grace period",
				zap.Int64("campaign_id", campaign.ID), zap.Error(err))
			continue
		}
		if ok {
			graced++
			s.logger.Info("Campaign entered grace period", zap.Int64("campaign_id", campaign.ID))
		}
	}

	dueLock, err := s.campaigns.ListDueForLock(ctx, now)
	if err != nil {
		return graced, 0, fmt.Errorf("failed to list campaigns due for lock: %w", err)
	}
	for _, campaign := range dueLock {
		ok, err := s.lockAndSettle(ctx, campaign.ID)
		if err != nil {
			s.logger.Error("Failed to lock and settle campaign",
				zap.Int64("campaign_id", campaign.ID), zap.Error(err))
			continue
		}
		if ok {
			locked++
		}
	}

	return graced, locked, nil
}

// lockAndSettle drives one campaign through the GRACE_PERIOD -> LOCKED
// transition: sweep uncommitted pledges, resolve the final bracket over the
// committed total, and emit one PENDING intent per committed pledge at the
// clearing price, all in a single transaction with the phase change.
func (s *CampaignService) lockAndSettle(ctx context.Context, campaignID int64) (bool, error) {
	start := time.Now()
	defer func() {
		util.SettlementLatency.Observe(time.Since(start).Seconds())
	}()

	brackets, err := s.campaigns.GetBracketsByCampaignID(ctx, campaignID)
	if err != nil {
		return false, err
	}

	var totalCommitted int64
	var clearingPrice decimal.Decimal
	var intentCount int

	locked, err := s.campaigns.LockAndSettle(ctx, campaignID, func(committed []models.Pledge) ([]models.PaymentIntent, error) {
		if len(committed) == 0 {
			return nil, nil
		}

		for _, p := range committed {
			totalCommitted += p.Quantity
		}
		resolution, err := pricing.Resolve(brackets, totalCommitted)
		if err != nil {
			return nil, err
		}
		clearingPrice = resolution.Current.UnitPrice

		intents := make([]models.PaymentIntent, 0, len(committed))
		for _, p := range committed {
			intents = append(intents, models.PaymentIntent{
				CampaignID: campaignID,
				PledgeID:   p.ID,
				BuyerOrgID: p.BuyerOrgID,
				Amount:     clearingPrice.Mul(decimal.NewFromInt(p.Quantity)),
				Status:     models.IntentPending,
				RetryCount: 0,
			})
		}
		intentCount = len(intents)
		return intents, nil
	})
	if err != nil {
		return false, err
	}
	if !locked {
		// Already locked by a concurrent tick; nothing to do.
		return false, nil
	}

	util.CampaignsLockedTotal.Inc()
	util.SettlementIntentsTotal.Add(float64(intentCount))

	if err := s.cache.Invalidate(ctx, progressCacheKey(campaignID)); err != nil {
		s.logger.Warn("Failed to invalidate progress cache", zap.Error(err))
	}

	s.logger.Info("Campaign locked and settled",
		zap.Int64("campaign_id", campaignID),
		zap.Int64("total_committed", totalCommitted),
		zap.Int("intent_count", intentCount))

	event := &models.CampaignLockedEvent{
		BaseEvent:      newBaseEvent(models.EventTypeCampaignLocked),
		CampaignID:     campaignID,
		TotalCommitted: totalCommitted,
		ClearingPrice:  clearingPrice,
		IntentCount:    intentCount,
	}
	if err := s.events.PublishCampaignLocked(ctx, event); err != nil {
		s.logger.Error("Failed to publish CampaignLocked event", zap.Error(err))
	}

	return true, nil
}

func progressCacheKey(campaignID int64) string {
	return fmt.Sprintf("progress:%d", campaignID)
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

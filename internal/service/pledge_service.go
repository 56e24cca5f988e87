package service

import (
	"context"
	"fmt"
	"time"

	"groupbuy-service/internal/models"
	"groupbuy-service/internal/util"

	"go.uber.org/zap"
)

// PledgeService is the pledge ledger: it owns buyer commitment records and
// enforces the phase-dependent mutation rules.
type PledgeService struct {
	pledges   PledgeStore
	campaigns CampaignStore
	orgs      OrganizationStore
	events    Publisher
	logger    *zap.Logger
}

// NewPledgeService creates a new pledge service
func NewPledgeService(
	pledges PledgeStore,
	campaigns CampaignStore,
	orgs OrganizationStore,
	events Publisher,
) *PledgeService {
	return &PledgeService{
		pledges:   pledges,
		campaigns: campaigns,
		orgs:      orgs,
		events:    events,
		logger:    util.GetLogger(),
	}
}

// CreatePledgeRequest represents a buyer's initial expression of interest
type CreatePledgeRequest struct {
	CampaignID int64 `json:"campaign_id" binding:"required"`
	BuyerOrgID int64 `json:"buyer_org_id" binding:"required"`
	Quantity   int64 `json:"quantity" binding:"required,min=1"`
}

// Create records a new pledge, or reactivates a previously withdrawn pledge
// for the same (campaign, buyer) pair in place. An existing PENDING or
// COMMITTED pledge makes the request a duplicate.
func (s *PledgeService) Create(ctx context.Context, req *CreatePledgeRequest) (*models.Pledge, error) {
	ctx, span := util.StartSpan(ctx, "PledgeService.Create")
	defer span.End()

	if req.Quantity <= 0 {
		return nil, fmt.Errorf("pledge quantity must be positive, got %d", req.Quantity)
	}

	org, err := s.orgs.GetOrganizationByID(ctx, req.BuyerOrgID)
	if err != nil {
		return nil, err
	}
	if !org.Active {
		return nil, fmt.Errorf("%w: buyer organization %d", models.ErrOrganizationNotActive, org.ID)
	}

	campaign, err := s.campaigns.GetCampaignByID(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Phase != models.PhaseActive && campaign.Phase != models.PhaseGracePeriod {
		return nil, fmt.Errorf("%w: campaign %d is %s, pledges require ACTIVE or GRACE_PERIOD",
			models.ErrPhaseViolation, campaign.ID, campaign.Phase)
	}

	existing, err := s.pledges.GetPledgeForBuyer(ctx, req.CampaignID, req.BuyerOrgID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if existing.Status != models.PledgeWithdrawn {
			return nil, fmt.Errorf("%w: pledge %d already active for campaign %d and buyer %d",
				models.ErrDuplicateCommitment, existing.ID, req.CampaignID, req.BuyerOrgID)
		}

		// The composite key is reused: the withdrawn row comes back as
		// PENDING with the new quantity and a cleared commit timestamp.
		ok, err := s.pledges.ReactivatePledge(ctx, existing.ID, req.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: pledge %d was reactivated concurrently",
				models.ErrDuplicateCommitment, existing.ID)
		}

		util.PledgesCreatedTotal.Inc()
		s.logger.Info("Pledge reactivated",
			zap.Int64("pledge_id", existing.ID),
			zap.Int64("campaign_id", req.CampaignID))
		return s.pledges.GetPledgeByID(ctx, existing.ID)
	}

	pledge := &models.Pledge{
		CampaignID: req.CampaignID,
		BuyerOrgID: req.BuyerOrgID,
		Quantity:   req.Quantity,
		Status:     models.PledgePending,
	}
	if err := s.pledges.CreatePledge(ctx, pledge); err != nil {
		return nil, err
	}

	util.PledgesCreatedTotal.Inc()
	s.logger.Info("Pledge created",
		zap.Int64("pledge_id", pledge.ID),
		zap.Int64("campaign_id", req.CampaignID),
		zap.Int64("quantity", req.Quantity))
	return pledge, nil
}

// Update changes a pledge's quantity. Only the owning buyer may update, and
// only while the campaign is ACTIVE.
func (s *PledgeService) Update(ctx context.Context, pledgeID, buyerOrgID, quantity int64) (*models.Pledge, error) {
	ctx, span := util.StartSpan(ctx, "PledgeService.Update")
	defer span.End()

	if quantity <= 0 {
		return nil, fmt.Errorf("pledge quantity must be positive, got %d", quantity)
	}

	pledge, err := s.ownedPledge(ctx, pledgeID, buyerOrgID)
	if err != nil {
		return nil, err
	}

	campaign, err := s.campaigns.GetCampaignByID(ctx, pledge.CampaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Phase != models.PhaseActive {
		return nil, fmt.Errorf("%w: campaign %d is %s, pledge updates require ACTIVE",
			models.ErrPhaseViolation, campaign.ID, campaign.Phase)
	}

	ok, err := s.pledges.UpdatePledgeQuantity(ctx, pledgeID, quantity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: pledge %d is %s and cannot be updated",
			models.ErrInvalidTransition, pledgeID, pledge.Status)
	}

	return s.pledges.GetPledgeByID(ctx, pledgeID)
}

// Cancel withdraws a pledge. Cancelling an already-withdrawn pledge is an
// idempotent no-op; otherwise ownership and the ACTIVE phase are required.
func (s *PledgeService) Cancel(ctx context.Context, pledgeID, buyerOrgID int64) error {
	ctx, span := util.StartSpan(ctx, "PledgeService.Cancel")
	defer span.End()

	pledge, err := s.ownedPledge(ctx, pledgeID, buyerOrgID)
	if err != nil {
		return err
	}
	if pledge.Status == models.PledgeWithdrawn {
		return nil
	}

	campaign, err := s.campaigns.GetCampaignByID(ctx, pledge.CampaignID)
	if err != nil {
		return err
	}
	if campaign.Phase != models.PhaseActive {
		return fmt.Errorf("%w: campaign %d is %s, pledge cancellation requires ACTIVE",
			models.ErrPhaseViolation, campaign.ID, campaign.Phase)
	}

	ok, err := s.pledges.WithdrawPledge(ctx, pledgeID)
	if err != nil {
		return err
	}
	if ok {
		util.PledgesWithdrawnTotal.WithLabelValues("buyer_cancel").Inc()
		s.logger.Info("Pledge withdrawn", zap.Int64("pledge_id", pledgeID))
	}
	return nil
}

// Commit confirms a PENDING pledge during grace period, stamping the commit
// time. Committing twice or outside grace period fails.
func (s *PledgeService) Commit(ctx context.Context, pledgeID, buyerOrgID int64) (*models.Pledge, error) {
	ctx, span := util.StartSpan(ctx, "PledgeService.Commit")
	defer span.End()

	pledge, err := s.ownedPledge(ctx, pledgeID, buyerOrgID)
	if err != nil {
		return nil, err
	}

	campaign, err := s.campaigns.GetCampaignByID(ctx, pledge.CampaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Phase != models.PhaseGracePeriod {
		return nil, fmt.Errorf("%w: campaign %d is %s, commitment requires GRACE_PERIOD",
			models.ErrPhaseViolation, campaign.ID, campaign.Phase)
	}
	if pledge.Status != models.PledgePending {
		return nil, fmt.Errorf("%w: pledge %d is %s, only PENDING pledges can be committed",
			models.ErrInvalidTransition, pledgeID, pledge.Status)
	}

	ok, err := s.pledges.CommitPledge(ctx, pledgeID, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: pledge %d left PENDING concurrently",
			models.ErrInvalidTransition, pledgeID)
	}

	util.PledgesCommittedTotal.Inc()
	s.logger.Info("Pledge committed",
		zap.Int64("pledge_id", pledgeID),
		zap.Int64("campaign_id", campaign.ID))

	event := &models.PledgeCommittedEvent{
		BaseEvent:  newBaseEvent(models.EventTypePledgeCommitted),
		PledgeID:   pledgeID,
		CampaignID: campaign.ID,
		BuyerOrgID: buyerOrgID,
		Quantity:   pledge.Quantity,
	}
	if err := s.events.PublishPledgeCommitted(ctx, event); err != nil {
		s.logger.Error("Failed to publish PledgeCommitted event", zap.Error(err))
	}

	return s.pledges.GetPledgeByID(ctx, pledgeID)
}

// Get retrieves a pledge for its owning buyer
func (s *PledgeService) Get(ctx context.Context, pledgeID, buyerOrgID int64) (*models.Pledge, error) {
	return s.ownedPledge(ctx, pledgeID, buyerOrgID)
}

func (s *PledgeService) ownedPledge(ctx context.Context, pledgeID, buyerOrgID int64) (*models.Pledge, error) {
	pledge, err := s.pledges.GetPledgeByID(ctx, pledgeID)
	if err != nil {
		return nil, err
	}
	if pledge.BuyerOrgID != buyerOrgID {
		return nil, fmt.Errorf("%w: pledge %d does not belong to organization %d",
			models.ErrPledgeAccessDenied, pledgeID, buyerOrgID)
	}
	return pledge, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"groupbuy-service/internal/models"
)

// CreateCampaign inserts a campaign and its brackets in one transaction.
func (s *Store) CreateCampaign(ctx context.Context, campaign *models.Campaign, brackets []models.DiscountBracket) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO campaigns (supplier_org_id, title, description, start_date, end_date, target_quantity, phase)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	if err := tx.GetContext(ctx, campaign, query,
		campaign.SupplierOrgID, campaign.Title, campaign.Description,
		campaign.StartDate, campaign.EndDate, campaign.TargetQuantity, campaign.Phase); err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	for i := range brackets {
		brackets[i].CampaignID = campaign.ID
		if err := tx.GetContext(ctx, &brackets[i].ID, `
			INSERT INTO discount_brackets (campaign_id, min_quantity, max_quantity, unit_price, position)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			brackets[i].CampaignID, brackets[i].MinQuantity, brackets[i].MaxQuantity,
			brackets[i].UnitPrice, brackets[i].Position); err != nil {
			return fmt.Errorf("failed to create bracket: %w", err)
		}
	}

	return tx.Commit()
}

// GetCampaignByID retrieves a campaign by ID
func (s *Store) GetCampaignByID(ctx context.Context, id int64) (*models.Campaign, error) {
	var campaign models.Campaign
	err := s.db.GetContext(ctx, &campaign, "SELECT * FROM campaigns WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: campaign %d", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// GetBracketsByCampaignID retrieves the bracket list in position order
func (s *Store) GetBracketsByCampaignID(ctx context.Context, campaignID int64) ([]models.DiscountBracket, error) {
	var brackets []models.DiscountBracket
	err := s.db.SelectContext(ctx, &brackets,
		"SELECT * FROM discount_brackets WHERE campaign_id = $1 ORDER BY position", campaignID)
	return brackets, err
}

// UpdateCampaignPhase moves a campaign's phase with a compare-and-set on the
// stored value. Returns false when the row was not in the expected phase, so
// a concurrent caller observes exactly one winner.
func (s *Store) UpdateCampaignPhase(ctx context.Context, id int64, from, to models.CampaignPhase) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE campaigns SET phase = $1, updated_at = NOW() WHERE id = $2 AND phase = $3",
		to, id, from)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// DeleteDraftCampaign hard-deletes a never-published draft and its brackets.
func (s *Store) DeleteDraftCampaign(ctx context.Context, id int64) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM discount_brackets WHERE campaign_id = $1", id); err != nil {
		return false, err
	}

	result, err := tx.ExecContext(ctx,
		"DELETE FROM campaigns WHERE id = $1 AND phase = $2", id, models.PhaseDraft)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ListDueForGracePeriod finds ACTIVE campaigns whose end date falls within
// the grace window of cutoff.
func (s *Store) ListDueForGracePeriod(ctx context.Context, cutoff time.Time) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := s.db.SelectContext(ctx, &campaigns,
		"SELECT * FROM campaigns WHERE phase = $1 AND end_date <= $2 ORDER BY end_date",
		models.PhaseActive, cutoff)
	return campaigns, err
}

// ListDueForLock finds GRACE_PERIOD campaigns whose end date has passed.
func (s *Store) ListDueForLock(ctx context.Context, now time.Time) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := s.db.SelectContext(ctx, &campaigns,
		"SELECT * FROM campaigns WHERE phase = $1 AND end_date <= $2 ORDER BY end_date",
		models.PhaseGracePeriod, now)
	return campaigns, err
}

// LockAndSettle atomically moves a campaign from GRACE_PERIOD to LOCKED,
// withdraws every still-PENDING pledge, and inserts the payment intents that
// settle builds from the surviving COMMITTED pledges. Either the phase change
// and all intents commit together or nothing does. A second caller loses the
// compare-and-set and gets (false, nil).
func (s *Store) LockAndSettle(ctx context.Context, campaignID int64,
	settle func(committed []models.Pledge) ([]models.PaymentIntent, error)) (bool, error) {

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"UPDATE campaigns SET phase = $1, updated_at = NOW() WHERE id = $2 AND phase = $3",
		models.PhaseLocked, campaignID, models.PhaseGracePeriod)
	if err != nil {
		return false, fmt.Errorf("failed to lock campaign: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		// Someone else already locked (or the campaign left grace period).
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE pledges SET status = $1, updated_at = NOW() WHERE campaign_id = $2 AND status = $3",
		models.PledgeWithdrawn, campaignID, models.PledgePending); err != nil {
		return false, fmt.Errorf("failed to sweep uncommitted pledges: %w", err)
	}

	var committed []models.Pledge
	if err := tx.SelectContext(ctx, &committed,
		"SELECT * FROM pledges WHERE campaign_id = $1 AND status = $2 ORDER BY id FOR UPDATE",
		campaignID, models.PledgeCommitted); err != nil {
		return false, fmt.Errorf("failed to load committed pledges: %w", err)
	}

	intents, err := settle(committed)
	if err != nil {
		return false, err
	}

	for i := range intents {
		err := tx.GetContext(ctx, &intents[i].ID, `
			INSERT INTO payment_intents (campaign_id, pledge_id, buyer_org_id, amount, status, retry_count)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			intents[i].CampaignID, intents[i].PledgeID, intents[i].BuyerOrgID,
			intents[i].Amount, intents[i].Status, intents[i].RetryCount)
		if err != nil {
			if isUniqueViolation(err) {
				// An intent already exists for this pledge; settling again
				// would double-charge, so fail loudly.
				return false, fmt.Errorf("intent already exists for pledge %d: %w", intents[i].PledgeID, err)
			}
			return false, fmt.Errorf("failed to create payment intent: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

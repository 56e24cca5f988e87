package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"groupbuy-service/internal/models"
)

// CreatePledge inserts a new PENDING pledge. The UNIQUE(campaign_id,
// buyer_org_id) constraint closes the check-then-create race: the losing
// concurrent caller gets ErrDuplicateCommitment.
func (s *Store) CreatePledge(ctx context.Context, pledge *models.Pledge) error {
	query := `
		INSERT INTO pledges (campaign_id, buyer_org_id, quantity, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, pledge, query,
		pledge.CampaignID, pledge.BuyerOrgID, pledge.Quantity, pledge.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: pledge already exists for campaign %d and buyer %d",
				models.ErrDuplicateCommitment, pledge.CampaignID, pledge.BuyerOrgID)
		}
		return err
	}
	return nil
}

// GetPledgeByID retrieves a pledge by ID
func (s *Store) GetPledgeByID(ctx context.Context, id int64) (*models.Pledge, error) {
	var pledge models.Pledge
	err := s.db.GetContext(ctx, &pledge, "SELECT * FROM pledges WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: pledge %d", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &pledge, nil
}

// GetPledgeForBuyer retrieves the single pledge row for a (campaign, buyer)
// pair, or nil when none exists.
func (s *Store) GetPledgeForBuyer(ctx context.Context, campaignID, buyerOrgID int64) (*models.Pledge, error) {
	var pledge models.Pledge
	err := s.db.GetContext(ctx, &pledge,
		"SELECT * FROM pledges WHERE campaign_id = $1 AND buyer_org_id = $2",
		campaignID, buyerOrgID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pledge, nil
}

// ReactivatePledge resets a WITHDRAWN pledge to PENDING in place with a new
// quantity and a cleared commit timestamp. The compare-and-set on status
// keeps a concurrent reactivation from racing.
func (s *Store) ReactivatePledge(ctx context.Context, id, quantity int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pledges
		SET status = $1, quantity = $2, committed_at = NULL, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		models.PledgePending, quantity, id, models.PledgeWithdrawn)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// UpdatePledgeQuantity changes the quantity of a still-PENDING pledge.
func (s *Store) UpdatePledgeQuantity(ctx context.Context, id, quantity int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE pledges SET quantity = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		quantity, id, models.PledgePending)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// WithdrawPledge sets a pledge to WITHDRAWN unless it is already withdrawn.
func (s *Store) WithdrawPledge(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE pledges SET status = $1, updated_at = NOW() WHERE id = $2 AND status != $1",
		models.PledgeWithdrawn, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// CommitPledge moves a PENDING pledge to COMMITTED and stamps the commit
// time. Returns false when the pledge was not PENDING.
func (s *Store) CommitPledge(ctx context.Context, id int64, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pledges
		SET status = $1, committed_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		models.PledgeCommitted, at, id, models.PledgePending)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// SweepUncommitted bulk-withdraws every still-PENDING pledge of a campaign.
// The end-of-grace sweep normally runs inside LockAndSettle; this standalone
// form backs administrative cleanup.
func (s *Store) SweepUncommitted(ctx context.Context, campaignID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE pledges SET status = $1, updated_at = NOW() WHERE campaign_id = $2 AND status = $3",
		models.PledgeWithdrawn, campaignID, models.PledgePending)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SumCommittedQuantity totals the quantity of COMMITTED pledges.
func (s *Store) SumCommittedQuantity(ctx context.Context, campaignID int64) (int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total,
		"SELECT COALESCE(SUM(quantity), 0) FROM pledges WHERE campaign_id = $1 AND status = $2",
		campaignID, models.PledgeCommitted)
	return total, err
}

// SumActiveQuantity totals committed plus pending quantity, the basis for
// live progress display before lock.
func (s *Store) SumActiveQuantity(ctx context.Context, campaignID int64) (int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total,
		"SELECT COALESCE(SUM(quantity), 0) FROM pledges WHERE campaign_id = $1 AND status != $2",
		campaignID, models.PledgeWithdrawn)
	return total, err
}

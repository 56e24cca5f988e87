package store

import (
	"context"
	"database/sql"
	"fmt"

	"groupbuy-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetIntentByID retrieves a payment intent by ID
func (s *Store) GetIntentByID(ctx context.Context, id int64) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := s.db.GetContext(ctx, &intent, "SELECT * FROM payment_intents WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: payment intent %d", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// GetIntentByPledgeID retrieves the intent for a pledge, or nil when none
// exists (the one-to-one pairing means there is never more than one).
func (s *Store) GetIntentByPledgeID(ctx context.Context, pledgeID int64) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := s.db.GetContext(ctx, &intent,
		"SELECT * FROM payment_intents WHERE pledge_id = $1", pledgeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// UpdateIntentStatus moves an intent's status with a compare-and-set on the
// stored value, writing the new retry count alongside. A non-empty
// providerTxID is recorded; an empty one leaves the stored value alone.
// Returns false when the row was not in the expected status.
func (s *Store) UpdateIntentStatus(ctx context.Context, id int64, from, to models.IntentStatus, retryCount int, providerTxID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE payment_intents
		SET status = $1, retry_count = $2,
		    provider_tx_id = COALESCE(NULLIF($3, ''), provider_tx_id),
		    updated_at = NOW()
		WHERE id = $4 AND status = $5`,
		to, retryCount, providerTxID, id, from)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ListIntentsByStatuses retrieves all intents currently in any of the given
// statuses, across campaigns.
func (s *Store) ListIntentsByStatuses(ctx context.Context, statuses []models.IntentStatus) ([]models.PaymentIntent, error) {
	if len(statuses) == 0 {
		return []models.PaymentIntent{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT * FROM payment_intents WHERE status IN (?) ORDER BY id", statuses)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var intents []models.PaymentIntent
	err = s.db.SelectContext(ctx, &intents, query, args...)
	return intents, err
}

// ListIntentsByCampaign retrieves the payment history of a campaign.
func (s *Store) ListIntentsByCampaign(ctx context.Context, campaignID int64) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	err := s.db.SelectContext(ctx, &intents,
		"SELECT * FROM payment_intents WHERE campaign_id = $1 ORDER BY created_at DESC", campaignID)
	return intents, err
}

package service

import (
	"context"
	"testing"
	"time"

	"groupbuy-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64ptr(v int64) *int64 { return &v }

func tierBrackets() []models.DiscountBracket {
	return []models.DiscountBracket{
		{MinQuantity: 0, MaxQuantity: int64ptr(99), UnitPrice: decimal.NewFromInt(10), Position: 0},
		{MinQuantity: 100, MaxQuantity: int64ptr(249), UnitPrice: decimal.NewFromInt(9), Position: 1},
		{MinQuantity: 250, MaxQuantity: nil, UnitPrice: decimal.NewFromInt(8), Position: 2},
	}
}

type pledgeFixture struct {
	store    *memStore
	events   *fakePublisher
	service  *PledgeService
	supplier *models.Organization
	buyer    *models.Organization
	campaign *models.Campaign
}

func newPledgeFixture(t *testing.T, phase models.CampaignPhase) *pledgeFixture {
	t.Helper()

	st := newMemStore()
	events := newFakePublisher()

	supplier := st.addOrg(models.Organization{Name: "Acme Wholesale", Kind: models.OrgKindSupplier, Active: true})
	buyer := st.addOrg(models.Organization{Name: "Corner Shop", Kind: models.OrgKindBuyer, Active: true})
	campaign := st.addCampaign(models.Campaign{
		SupplierOrgID:  supplier.ID,
		Title:          "Bulk widgets",
		Phase:          phase,
		TargetQuantity: 500,
		StartDate:      time.Now().Add(-24 * time.Hour),
		EndDate:        time.Now().Add(72 * time.Hour),
	}, tierBrackets())

	return &pledgeFixture{
		store:    st,
		events:   events,
		service:  NewPledgeService(st, st, st, events),
		supplier: supplier,
		buyer:    buyer,
		campaign: campaign,
	}
}

func TestCreatePledge(t *testing.T) {
	f := newPledgeFixture(t, models.PhaseActive)

	pledge, err := f.service.Create(context.Background(), &CreatePledgeRequest{
		CampaignID: f.campaign.ID,
		BuyerOrgID: f.buyer.ID,
		Quantity:   40,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PledgePending, pledge.Status)
	assert.Equal(t, int64(40), pledge.Quantity)
	assert.Nil(t, pledge.CommittedAt)
}

func TestCreatePledgeDuplicate(t *testing.T) {
	f := newPledgeFixture(t, models.PhaseActive)

	_, err := f.service.Create(context.Background(), &CreatePledgeRequest{
		CampaignID: f.campaign.ID, BuyerOrgID: f.buyer.ID, Quantity: 40,
	})
	require.NoError(t, err)

	_, err = f.service.Create(context.Background(), &CreatePledgeRequest{
		CampaignID: f.campaign.ID, BuyerOrgID: f.buyer.ID, Quantity: 10,
	})
	assert.ErrorIs(t, err, models.ErrDuplicateCommitment)
}

func TestCreatePledgeReactivatesWithdrawnRow(t *testing.T) {
	f := newPledgeFixture(t, models.PhaseActive)
	ctx := context.Background()

	first, err := f.service.Create(ctx, &CreatePledgeRequest{
		CampaignID: f.campaign.ID, BuyerOrgID: f.buyer.ID, Quantity: 40,
	})
	require.NoError(t, err)
	require.NoError(t, f.service.Cancel(ctx, first.ID, f.buyer.ID))

	second, err := f.service.Create(ctx, &CreatePledgeRequest{
		CampaignID: f.campaign.ID, BuyerOrgID: f.buyer.ID, Quantity: 75,
	})
	require.NoError(t, err)

	// The withdrawn row is reused, not replaced.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.PledgePending, second.Status)
	assert.Equal(t, int64(75), second.Quantity)
	assert.Nil(t, second.CommittedAt)
}

func TestCreatePledgeInactiveBuyer(t *testing.T) {
	f := newPledgeFixture(t, models.PhaseActive)
	suspended := f.store.addOrg(models.Organization{Name: "Suspended", Kind: models.OrgKindBuyer, Active: false})

	_, err := f.service.Create(context.Background(), &CreatePledgeRequest{
		CampaignID: f.campaign.ID, BuyerOrgID: suspended.ID, Quantity: 10,
	})
	assert.ErrorIs(t, err, models.ErrOrganizationNotActive)
}

func TestCreatePledgePhaseRules(t *testing.T) {
	for _, phase := range []models.CampaignPhase{models.PhaseDraft, models.PhaseLocked, models.PhaseCancelled, models.PhaseDone} {
		f := newPledgeFixture(t, phase)
		_, err := f.service.Create(context.Background(), &CreatePledgeRequest{
			CampaignID: f.campaign.ID, BuyerOrgID: f.buyer.ID, Quantity: 10,
		})
		assert.ErrorIs(t, err, models.ErrPhaseViolation, "phase %s", phase)
	}

	// Grace period still accepts new pledges.
	f := newPledgeFixture(t, models.PhaseGracePeriod)
	_, err := f.service.Create(context.Background(), &CreatePledgeRequest{
		CampaignID: f.campaign.ID, BuyerOrgID: f.buyer.ID, Quantity: 10,
	})
	assert.NoError(t, err)
}

func TestUpdatePledge(t *testing.T) {
	f := newPledgeFixture(t, models.PhaseActive)
	ctx := context.Background()

	pledge, err := f.service.Create(ctx, &CreatePledgeRequest{
		CampaignID: f.campaign.ID, BuyerOrgID: f.buyer.ID, Quantity: 40,
	})
	require.NoError(t, err)

	updated, err := f.service.Update(ctx, pledge.ID, f.buyer.ID, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(90), updated.Quantity)
}

func TestUpdatePledgeWrongOwner(t *testing.T) {
	f := newPledgeFixture(t, models.PhaseActive)
	ctx := context.Background()
	other := f.store.addOrg(models.Organization{Name: "Other Buyer", Kind: models.OrgKindBuyer, Active: true})

	pledge, err := f.service.Create(ctx, &CreatePledgeRequest{
		CampaignID: f.campaign.ID, BuyerOrgID: f.buyer.ID, Quantity: 40,
	})
	require.NoError(t, err)

	_, err = f.service.Update(ctx, pledge.ID, other.ID, 90)
	assert.ErrorIs(t, err, models.ErrPledgeAccessDenied)
}

func TestUpdatePledgeOutsideActive(t *testing.T) {
	f := newPledgeFixture(t, models.PhaseActive)
	ctx := context.Background()

	pledge, err := f.service.Create(ctx, &CreatePledgeRequest{
		CampaignID: f.campaign.ID, BuyerOrgID: f.buyer.ID, Quantity: 40,
	})
	require.NoError(t, err)

	_, err = f.store.UpdateCampaignPhase(ctx, f.campaign.ID, models.PhaseActive, models.PhaseGracePeriod)
	require.NoError(t, err)

	_, err = f.service.Update(ctx, pledge.ID, f.buyer.ID, 90)
	assert.ErrorIs(t, err, models.ErrPhaseViolation)
}

func TestCancelPledgeIdempotent(t *testing.T) {
	f := newPledgeFixture(t, models.PhaseActive)
	ctx := context.Background()

	pledge, err := f.service.Create(ctx, &CreatePledgeRequest{
		CampaignID: f.campaign.ID, BuyerOrgID: f.buyer.ID, Quantity: 40,
	})
	require.NoError(t, err)

	require.NoError(t, f.service.Cancel(ctx, pledge.ID, f.buyer.ID))
	// A second cancel is a no-op, not an error.
	require.NoError(t, f.service.Cancel(ctx, pledge.ID, f.buyer.ID))

	stored, err := f.store.GetPledgeByID(ctx, pledge.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PledgeWithdrawn, stored.Status)
}

func TestCommitPledgeDuringGracePeriod(t *testing.T) {
	f := newPledgeFixture(t, models.PhaseActive)
	ctx := context.Background()

	pledge, err := f.service.Create(ctx, &CreatePledgeRequest{
		CampaignID: f.campaign.ID, BuyerOrgID: f.buyer.ID, Quantity: 40,
	})
	require.NoError(t, err)

	_, err = f.store.UpdateCampaignPhase(ctx, f.campaign.ID, models.PhaseActive, models.PhaseGracePeriod)
	require.NoError(t, err)

	committed, err := f.service.Commit(ctx, pledge.ID, f.buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PledgeCommitted, committed.Status)
	require.NotNil(t, committed.CommittedAt)

	published := f.events.countOf(func(e interface{}) bool {
		_, ok := e.(*models.PledgeCommittedEvent)
		return ok
	})
	assert.Equal(t, 1, published)
}

func TestCommitPledgeWhileActive(t *testing.T) {
	f := newPledgeFixture(t, models.PhaseActive)
	ctx := context.Background()

	pledge, err := f.service.Create(ctx, &CreatePledgeRequest{
		CampaignID: f.campaign.ID, BuyerOrgID: f.buyer.ID, Quantity: 40,
	})
	require.NoError(t, err)

	_, err = f.service.Commit(ctx, pledge.ID, f.buyer.ID)
	assert.ErrorIs(t, err, models.ErrPhaseViolation)
}

func TestCommitPledgeTwice(t *testing.T) {
	f := newPledgeFixture(t, models.PhaseGracePeriod)
	ctx := context.Background()

	pledge, err := f.service.Create(ctx, &CreatePledgeRequest{
		CampaignID: f.campaign.ID, BuyerOrgID: f.buyer.ID, Quantity: 40,
	})
	require.NoError(t, err)

	_, err = f.service.Commit(ctx, pledge.ID, f.buyer.ID)
	require.NoError(t, err)

	_, err = f.service.Commit(ctx, pledge.ID, f.buyer.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestGetPledgeWrongOwner(t *testing.T) {
	f := newPledgeFixture(t, models.PhaseActive)
	ctx := context.Background()
	other := f.store.addOrg(models.Organization{Name: "Other Buyer", Kind: models.OrgKindBuyer, Active: true})

	pledge, err := f.service.Create(ctx, &CreatePledgeRequest{
		CampaignID: f.campaign.ID, BuyerOrgID: f.buyer.ID, Quantity: 40,
	})
	require.NoError(t, err)

	_, err = f.service.Get(ctx, pledge.ID, other.ID)
	assert.ErrorIs(t, err, models.ErrPledgeAccessDenied)
}

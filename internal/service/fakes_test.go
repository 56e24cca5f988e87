package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"groupbuy-service/internal/models"
)

// memStore is an in-memory stand-in for *store.Store implementing the narrow
// repository interfaces with the same compare-and-set and uniqueness
// semantics the Postgres store enforces.
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	orgs      map[int64]*models.Organization
	campaigns map[int64]*models.Campaign
	brackets  map[int64][]models.DiscountBracket
	pledges   map[int64]*models.Pledge
	intents   map[int64]*models.PaymentIntent
	processed map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		orgs:      make(map[int64]*models.Organization),
		campaigns: make(map[int64]*models.Campaign),
		brackets:  make(map[int64][]models.DiscountBracket),
		pledges:   make(map[int64]*models.Pledge),
		intents:   make(map[int64]*models.PaymentIntent),
		processed: make(map[string]bool),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addOrg(org models.Organization) *models.Organization {
	m.mu.Lock()
	defer m.mu.Unlock()
	if org.ID == 0 {
		org.ID = m.id()
	}
	m.orgs[org.ID] = &org
	return &org
}

func (m *memStore) addCampaign(c models.Campaign, brackets []models.DiscountBracket) *models.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.id()
	}
	m.campaigns[c.ID] = &c
	m.brackets[c.ID] = brackets
	return &c
}

func (m *memStore) addPledge(p models.Pledge) *models.Pledge {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.id()
	}
	m.pledges[p.ID] = &p
	return &p
}

func (m *memStore) addIntent(i models.PaymentIntent) *models.PaymentIntent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i.ID == 0 {
		i.ID = m.id()
	}
	m.intents[i.ID] = &i
	return &i
}

func (m *memStore) GetOrganizationByID(_ context.Context, id int64) (*models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.orgs[id]
	if !ok {
		return nil, fmt.Errorf("%w: organization %d", models.ErrNotFound, id)
	}
	copied := *org
	return &copied, nil
}

func (m *memStore) CreateCampaign(_ context.Context, campaign *models.Campaign, brackets []models.DiscountBracket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	campaign.ID = m.id()
	campaign.CreatedAt = time.Now()
	campaign.UpdatedAt = campaign.CreatedAt
	stored := *campaign
	m.campaigns[campaign.ID] = &stored
	for i := range brackets {
		brackets[i].ID = m.id()
		brackets[i].CampaignID = campaign.ID
	}
	m.brackets[campaign.ID] = brackets
	return nil
}

func (m *memStore) GetCampaignByID(_ context.Context, id int64) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("%w: campaign %d", models.ErrNotFound, id)
	}
	copied := *c
	return &copied, nil
}

func (m *memStore) GetBracketsByCampaignID(_ context.Context, campaignID int64) ([]models.DiscountBracket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	brackets := make([]models.DiscountBracket, len(m.brackets[campaignID]))
	copy(brackets, m.brackets[campaignID])
	return brackets, nil
}

func (m *memStore) UpdateCampaignPhase(_ context.Context, id int64, from, to models.CampaignPhase) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Phase != from {
		return false, nil
	}
	c.Phase = to
	c.UpdatedAt = time.Now()
	return true, nil
}

func (m *memStore) DeleteDraftCampaign(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Phase != models.PhaseDraft {
		return false, nil
	}
	delete(m.campaigns, id)
	delete(m.brackets, id)
	return true, nil
}

func (m *memStore) ListDueForGracePeriod(_ context.Context, cutoff time.Time) ([]models.Campaign, error) {
	return m.listByPhaseDue(models.PhaseActive, cutoff), nil
}

func (m *memStore) ListDueForLock(_ context.Context, now time.Time) ([]models.Campaign, error) {
	return m.listByPhaseDue(models.PhaseGracePeriod, now), nil
}

func (m *memStore) listByPhaseDue(phase models.CampaignPhase, cutoff time.Time) []models.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []models.Campaign
	for _, c := range m.campaigns {
		if c.Phase == phase && !c.EndDate.After(cutoff) {
			due = append(due, *c)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due
}

func (m *memStore) LockAndSettle(_ context.Context, campaignID int64,
	settle func(committed []models.Pledge) ([]models.PaymentIntent, error)) (bool, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[campaignID]
	if !ok || c.Phase != models.PhaseGracePeriod {
		return false, nil
	}

	var committed []models.Pledge
	for _, p := range m.pledges {
		if p.CampaignID != campaignID {
			continue
		}
		switch p.Status {
		case models.PledgePending:
			p.Status = models.PledgeWithdrawn
		case models.PledgeCommitted:
			committed = append(committed, *p)
		}
	}
	sort.Slice(committed, func(i, j int) bool { return committed[i].ID < committed[j].ID })

	intents, err := settle(committed)
	if err != nil {
		return false, err
	}
	for i := range intents {
		for _, existing := range m.intents {
			if existing.PledgeID == intents[i].PledgeID {
				return false, fmt.Errorf("intent already exists for pledge %d", intents[i].PledgeID)
			}
		}
		intents[i].ID = m.id()
		stored := intents[i]
		m.intents[stored.ID] = &stored
	}

	c.Phase = models.PhaseLocked
	c.UpdatedAt = time.Now()
	return true, nil
}

func (m *memStore) CreatePledge(_ context.Context, pledge *models.Pledge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pledges {
		if p.CampaignID == pledge.CampaignID && p.BuyerOrgID == pledge.BuyerOrgID {
			return fmt.Errorf("%w: pledge already exists for campaign %d and buyer %d",
				models.ErrDuplicateCommitment, pledge.CampaignID, pledge.BuyerOrgID)
		}
	}
	pledge.ID = m.id()
	pledge.CreatedAt = time.Now()
	pledge.UpdatedAt = pledge.CreatedAt
	stored := *pledge
	m.pledges[pledge.ID] = &stored
	return nil
}

func (m *memStore) GetPledgeByID(_ context.Context, id int64) (*models.Pledge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pledges[id]
	if !ok {
		return nil, fmt.Errorf("%w: pledge %d", models.ErrNotFound, id)
	}
	copied := *p
	return &copied, nil
}

func (m *memStore) GetPledgeForBuyer(_ context.Context, campaignID, buyerOrgID int64) (*models.Pledge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pledges {
		if p.CampaignID == campaignID && p.BuyerOrgID == buyerOrgID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) ReactivatePledge(_ context.Context, id, quantity int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pledges[id]
	if !ok || p.Status != models.PledgeWithdrawn {
		return false, nil
	}
	p.Status = models.PledgePending
	p.Quantity = quantity
	p.CommittedAt = nil
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *memStore) UpdatePledgeQuantity(_ context.Context, id, quantity int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pledges[id]
	if !ok || p.Status != models.PledgePending {
		return false, nil
	}
	p.Quantity = quantity
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *memStore) WithdrawPledge(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pledges[id]
	if !ok || p.Status == models.PledgeWithdrawn {
		return false, nil
	}
	p.Status = models.PledgeWithdrawn
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *memStore) CommitPledge(_ context.Context, id int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pledges[id]
	if !ok || p.Status != models.PledgePending {
		return false, nil
	}
	p.Status = models.PledgeCommitted
	p.CommittedAt = &at
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *memStore) SumCommittedQuantity(_ context.Context, campaignID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, p := range m.pledges {
		if p.CampaignID == campaignID && p.Status == models.PledgeCommitted {
			total += p.Quantity
		}
	}
	return total, nil
}

func (m *memStore) SumActiveQuantity(_ context.Context, campaignID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, p := range m.pledges {
		if p.CampaignID == campaignID && p.Status != models.PledgeWithdrawn {
			total += p.Quantity
		}
	}
	return total, nil
}

func (m *memStore) GetIntentByID(_ context.Context, id int64) (*models.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.intents[id]
	if !ok {
		return nil, fmt.Errorf("%w: payment intent %d", models.ErrNotFound, id)
	}
	copied := *i
	return &copied, nil
}

func (m *memStore) UpdateIntentStatus(_ context.Context, id int64, from, to models.IntentStatus, retryCount int, providerTxID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.intents[id]
	if !ok || i.Status != from {
		return false, nil
	}
	i.Status = to
	i.RetryCount = retryCount
	if providerTxID != "" {
		i.ProviderTxID = providerTxID
	}
	i.UpdatedAt = time.Now()
	return true, nil
}

func (m *memStore) ListIntentsByStatuses(_ context.Context, statuses []models.IntentStatus) ([]models.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[models.IntentStatus]struct{}, len(statuses))
	for _, s := range statuses {
		wanted[s] = struct{}{}
	}
	var out []models.PaymentIntent
	for _, i := range m.intents {
		if _, ok := wanted[i.Status]; ok {
			out = append(out, *i)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListIntentsByCampaign(_ context.Context, campaignID int64) ([]models.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentIntent
	for _, i := range m.intents {
		if i.CampaignID == campaignID {
			out = append(out, *i)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed[eventID], nil
}

func (m *memStore) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[eventID] = true
	return nil
}

// memCache implements ProgressCache over a plain map.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) GetJSON(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *memCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// fakePublisher records published domain events by type.
type fakePublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{}
}

func (p *fakePublisher) record(event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) countOf(match func(interface{}) bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if match(e) {
			n++
		}
	}
	return n
}

func (p *fakePublisher) PublishCampaignPublished(_ context.Context, e *models.CampaignPublishedEvent) error {
	return p.record(e)
}

func (p *fakePublisher) PublishCampaignLocked(_ context.Context, e *models.CampaignLockedEvent) error {
	return p.record(e)
}

func (p *fakePublisher) PublishCampaignCancelled(_ context.Context, e *models.CampaignCancelledEvent) error {
	return p.record(e)
}

func (p *fakePublisher) PublishPledgeCommitted(_ context.Context, e *models.PledgeCommittedEvent) error {
	return p.record(e)
}

func (p *fakePublisher) PublishCheckoutRequested(_ context.Context, e *models.CheckoutRequestedEvent) error {
	return p.record(e)
}

func (p *fakePublisher) PublishPaymentSucceeded(_ context.Context, e *models.PaymentSucceededEvent) error {
	return p.record(e)
}

func (p *fakePublisher) PublishPaymentFailed(_ context.Context, e *models.PaymentFailedEvent) error {
	return p.record(e)
}

func (p *fakePublisher) PublishIntentSentToAR(_ context.Context, e *models.IntentSentToAREvent) error {
	return p.record(e)
}

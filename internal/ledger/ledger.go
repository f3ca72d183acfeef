// Package ledger owns campaigns and their append-only email logs. The log id
// is a natural key: appending the same id twice is a no-op, which is what
// keeps concurrent dispatch runs from double-counting a send.
package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"RosterMail/internal/models"
)

var ErrCampaignNotFound = errors.New("ledger: campaign not found")

type Ledger interface {
	// CreateCampaign assigns the id and creation timestamp.
	CreateCampaign(ctx context.Context, name string) (*models.Campaign, error)
	Campaign(ctx context.Context, id string) (*models.Campaign, error)
	Campaigns(ctx context.Context) ([]models.Campaign, error)
	// AppendLog writes one log row. An empty logID makes the ledger generate
	// one; callers that embed the id in a tracking beacon must pre-generate
	// it and pass it here unchanged. A duplicate id is silently ignored.
	AppendLog(ctx context.Context, campaignID string, log models.EmailLog, logID string) error
	// RecordOpen registers one beacon hit against a log row.
	RecordOpen(ctx context.Context, logID string, at time.Time) error
}

// Memory is the in-process ledger used by tests and DATABASE_URL-less runs.
type Memory struct {
	mu        sync.Mutex
	campaigns map[string]*models.Campaign
	logIndex  map[string]string // logID -> campaignID
}

func NewMemory() *Memory {
	return &Memory{
		campaigns: make(map[string]*models.Campaign),
		logIndex:  make(map[string]string),
	}
}

func (m *Memory) CreateCampaign(_ context.Context, name string) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &models.Campaign{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	m.campaigns[c.ID] = c
	return cloneCampaign(c), nil
}

func (m *Memory) Campaign(_ context.Context, id string) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, ErrCampaignNotFound
	}
	return cloneCampaign(c), nil
}

func (m *Memory) Campaigns(_ context.Context) ([]models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Campaign, 0, len(m.campaigns))
	for _, c := range m.campaigns {
		out = append(out, *cloneCampaign(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) AppendLog(_ context.Context, campaignID string, log models.EmailLog, logID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok {
		return ErrCampaignNotFound
	}
	if logID == "" {
		logID = uuid.NewString()
	}
	if _, dup := m.logIndex[logID]; dup {
		return nil
	}
	log.ID = logID
	log.CampaignID = campaignID
	if log.SentAt.IsZero() {
		log.SentAt = time.Now()
	}
	c.Logs = append(c.Logs, log)
	m.logIndex[logID] = campaignID
	return nil
}

func (m *Memory) RecordOpen(_ context.Context, logID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	campaignID, ok := m.logIndex[logID]
	if !ok {
		return nil
	}
	c := m.campaigns[campaignID]
	for i := range c.Logs {
		if c.Logs[i].ID != logID {
			continue
		}
		if c.Logs[i].OpenedAt == nil {
			first := at
			c.Logs[i].OpenedAt = &first
		}
		last := at
		c.Logs[i].LastOpenedAt = &last
		c.Logs[i].OpenCount++
		return nil
	}
	return nil
}

func cloneCampaign(c *models.Campaign) *models.Campaign {
	out := *c
	out.Logs = append([]models.EmailLog(nil), c.Logs...)
	return &out
}

package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"RosterMail/internal/models"
)

// PG is the Postgres-backed ledger. Idempotency rides on the primary key of
// email_logs: a duplicate insert hits ON CONFLICT DO NOTHING, so independent
// dispatch runs appending the same log id stay safe without locking.
type PG struct {
	Pool *pgxpool.Pool
}

func NewPG(ctx context.Context, conn string) (*PG, error) {
	pool, err := pgxpool.New(ctx, conn)
	if err != nil {
		return nil, err
	}
	return &PG{Pool: pool}, nil
}

func (s *PG) Close() {
	s.Pool.Close()
}

func (s *PG) CreateCampaign(ctx context.Context, name string) (*models.Campaign, error) {
	c := &models.Campaign{Name: name}
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO campaigns (id, name, created_at)
		 VALUES ($1, $2, NOW())
		 RETURNING id, created_at`,
		uuid.NewString(), name,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PG) Campaign(ctx context.Context, id string) (*models.Campaign, error) {
	c := &models.Campaign{}
	err := s.Pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM campaigns WHERE id=$1`, id,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.Pool.Query(ctx,
		`SELECT id, recipient_id, recipient_email, sent_at, method, dataset_id,
		        opened_at, open_count, last_opened_at
		 FROM email_logs WHERE campaign_id=$1 ORDER BY sent_at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l models.EmailLog
		l.CampaignID = id
		if err := rows.Scan(&l.ID, &l.RecipientID, &l.RecipientEmail, &l.SentAt,
			&l.Method, &l.DatasetID, &l.OpenedAt, &l.OpenCount, &l.LastOpenedAt); err != nil {
			return nil, err
		}
		c.Logs = append(c.Logs, l)
	}
	return c, rows.Err()
}

func (s *PG) Campaigns(ctx context.Context) ([]models.Campaign, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, name, created_at FROM campaigns ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Campaign
	for rows.Next() {
		var c models.Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PG) AppendLog(ctx context.Context, campaignID string, log models.EmailLog, logID string) error {
	if logID == "" {
		logID = uuid.NewString()
	}
	if log.SentAt.IsZero() {
		log.SentAt = time.Now()
	}
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO email_logs
		 (id, campaign_id, recipient_id, recipient_email, sent_at, method, dataset_id, open_count)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,0)
		 ON CONFLICT (id) DO NOTHING`,
		logID, campaignID, log.RecipientID, log.RecipientEmail, log.SentAt, log.Method, log.DatasetID,
	)
	return err
}

func (s *PG) RecordOpen(ctx context.Context, logID string, at time.Time) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE email_logs
		 SET open_count = open_count + 1,
		     opened_at = COALESCE(opened_at, $2),
		     last_opened_at = $2
		 WHERE id=$1`,
		logID, at,
	)
	return err
}

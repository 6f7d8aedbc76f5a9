package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"outreach_backend/internal/reconciliation/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListConnectedUsers returns users holding at least one provider access token.
func (r *Repository) ListConnectedUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, email, gmail_access_token, outlook_access_token
		FROM users
		WHERE gmail_access_token IS NOT NULL OR outlook_access_token IS NOT NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var (
			user    domain.User
			gmail   *string
			outlook *string
		)
		if err := rows.Scan(&user.ID, &user.Email, &gmail, &outlook); err != nil {
			return nil, err
		}
		user.Credentials = make(map[domain.Provider]string, 2)
		if gmail != nil && *gmail != "" {
			user.Credentials[domain.ProviderGmail] = *gmail
		}
		if outlook != nil && *outlook != "" {
			user.Credentials[domain.ProviderOutlook] = *outlook
		}
		users = append(users, user)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return users, nil
}

// FindAwaitingProspect resolves an address to the user's most recently touched prospect
// that is still awaiting a response. Returns nil when nothing matches.
func (r *Repository) FindAwaitingProspect(ctx context.Context, userID uuid.UUID, email string) (*domain.Prospect, error) {
	var p domain.Prospect
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT p.id, p.campaign_id, p.email, p.status
		FROM prospects p
		JOIN campaigns c ON c.id = p.campaign_id
		WHERE c.user_id = $1
		  AND lower(p.email) = $2
		  AND p.status = ANY($3)
		ORDER BY p.updated_at DESC
		LIMIT 1
	`, userID, strings.ToLower(email), awaitingStatuses()).Scan(&p.ID, &p.CampaignID, &p.Email, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Status = domain.ProspectStatus(status)
	return &p, nil
}

// ListAwaitingProspects returns every awaiting prospect across the user's campaigns.
func (r *Repository) ListAwaitingProspects(ctx context.Context, userID uuid.UUID) ([]domain.Prospect, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.campaign_id, p.email, p.status
		FROM prospects p
		JOIN campaigns c ON c.id = p.campaign_id
		WHERE c.user_id = $1
		  AND p.status = ANY($2)
	`, userID, awaitingStatuses())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prospects := make([]domain.Prospect, 0)
	for rows.Next() {
		var p domain.Prospect
		var status string
		if err := rows.Scan(&p.ID, &p.CampaignID, &p.Email, &status); err != nil {
			return nil, err
		}
		p.Status = domain.ProspectStatus(status)
		prospects = append(prospects, p)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return prospects, nil
}

func (r *Repository) HasInteraction(ctx context.Context, prospectID uuid.UUID, kind domain.InteractionType) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM interactions WHERE prospect_id = $1 AND type = $2
		)
	`, prospectID, string(kind)).Scan(&exists)
	return exists, err
}

// RecordTransition inserts the interaction and moves the prospect status in one
// transaction. The prospect row is locked and the interaction existence re-checked
// inside the transaction; ErrInteractionExists is returned when it was already recorded.
func (r *Repository) RecordTransition(ctx context.Context, t domain.Transition) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM prospects WHERE id = $1 FOR UPDATE`, t.ProspectID).Scan(&locked); err != nil {
		return fmt.Errorf("lock prospect: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM interactions WHERE prospect_id = $1 AND type = $2
		)
	`, t.ProspectID, string(t.Interaction)).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return domain.ErrInteractionExists
	}

	occurredAt := t.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var content *string
	if t.Content != "" {
		content = &t.Content
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO interactions (prospect_id, type, content, created_at)
		VALUES ($1, $2, $3, $4)
	`, t.ProspectID, string(t.Interaction), content, occurredAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrInteractionExists
		}
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE prospects SET status = $2, updated_at = now() WHERE id = $1
	`, t.ProspectID, string(t.Status)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// CountInteractionsSince counts sends and bounces for a campaign in [since, until].
func (r *Repository) CountInteractionsSince(ctx context.Context, campaignID uuid.UUID, since, until time.Time) (domain.InteractionCounts, error) {
	var counts domain.InteractionCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE i.type = $2),
			COUNT(*) FILTER (WHERE i.type = $3)
		FROM interactions i
		JOIN prospects p ON p.id = i.prospect_id
		WHERE p.campaign_id = $1
		  AND i.created_at >= $4
		  AND i.created_at <= $5
	`, campaignID, string(domain.InteractionEmailSent), string(domain.InteractionEmailBounced), since, until).
		Scan(&counts.Sent, &counts.Bounced)
	return counts, err
}

func (r *Repository) GetCampaign(ctx context.Context, campaignID uuid.UUID) (domain.Campaign, error) {
	var c domain.Campaign
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, status, updated_at
		FROM campaigns
		WHERE id = $1
	`, campaignID).Scan(&c.ID, &c.UserID, &c.Name, &status, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Campaign{}, domain.ErrCampaignNotFound
	}
	if err != nil {
		return domain.Campaign{}, err
	}
	c.Status = domain.CampaignStatus(status)
	return c, nil
}

// AutoPauseCampaign moves an active campaign to paused_auto. It reports false when the
// campaign was no longer active, so a manual status change is never overwritten.
func (r *Repository) AutoPauseCampaign(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaigns
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`, campaignID, string(domain.CampaignStatusPausedAuto), string(domain.CampaignStatusActive))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetCursor returns the last successfully processed time for a user's provider.
func (r *Repository) GetCursor(ctx context.Context, userID uuid.UUID, provider domain.Provider) (time.Time, bool, error) {
	var at time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT last_processed_at
		FROM reconciliation_cursors
		WHERE user_id = $1 AND provider = $2
	`, userID, string(provider)).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

// SaveCursor advances the cursor; it never moves backwards.
func (r *Repository) SaveCursor(ctx context.Context, userID uuid.UUID, provider domain.Provider, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reconciliation_cursors (user_id, provider, last_processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, provider) DO UPDATE
		SET last_processed_at = GREATEST(reconciliation_cursors.last_processed_at, EXCLUDED.last_processed_at),
		    updated_at = now()
	`, userID, string(provider), at)
	return err
}

func awaitingStatuses() []string {
	statuses := make([]string, 0, len(domain.AwaitingResponseStatuses))
	for _, s := range domain.AwaitingResponseStatuses {
		statuses = append(statuses, string(s))
	}
	return statuses
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// DeleteCursorsBefore removes cursors that have not advanced since before.
func (r *Repository) DeleteCursorsBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM reconciliation_cursors
		WHERE updated_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

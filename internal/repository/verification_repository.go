package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civicfix/civicfix-api/internal/models"
)

// IssueCacheUpdate carries the denormalized fields recomputed alongside a
// verification write. They are read-optimization caches; the verification
// tables stay authoritative.
type IssueCacheUpdate struct {
	AIStatus      *models.VerificationCacheStatus
	CitizenStatus *models.VerificationCacheStatus
	TrustScore    *float64
}

// VerificationAggregates summarizes an issue's verification history for
// trust scoring.
type VerificationAggregates struct {
	LatestAIConfidence sql.NullFloat64 `db:"latest_ai_confidence"`
	CitizenTotal       int             `db:"citizen_total"`
	CitizenVerified    int             `db:"citizen_verified"`
	LocationVerified   int             `db:"location_verified"`
}

// VerificationRepository persists AI and citizen verification rows. Both
// record paths write the verification, the issue cache fields, and any
// timeline event in a single transaction.
type VerificationRepository struct {
	db *sqlx.DB
}

// NewVerificationRepository constructs the repository.
func NewVerificationRepository(db *sqlx.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// RecordAI inserts one immutable AI verification row.
func (r *VerificationRepository) RecordAI(ctx context.Context, v *models.AIVerification, cache IssueCacheUpdate, event *models.TimelineEvent) (err error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record ai verification: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO ai_verifications
	(id, issue_id, verification_type, status, confidence, rejection_reasons, checks_performed, created_at)
	VALUES (:id, :issue_id, :verification_type, :status, :confidence, :rejection_reasons, :checks_performed, :created_at)`
	if _, err = tx.NamedExecContext(ctx, query, v); err != nil {
		return fmt.Errorf("insert ai verification: %w", err)
	}

	if err = applyIssueCacheTx(ctx, tx, v.IssueID, cache); err != nil {
		return err
	}

	if event != nil {
		event.IssueID = v.IssueID
		if err = insertTimelineEventTx(ctx, tx, event); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit record ai verification: %w", err)
	}
	return nil
}

// RecordCitizen inserts one immutable citizen verification row.
func (r *VerificationRepository) RecordCitizen(ctx context.Context, v *models.CitizenVerification, cache IssueCacheUpdate, event *models.TimelineEvent) (err error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record citizen verification: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO citizen_verifications
	(id, issue_id, user_id, verification_type, status, image_urls, notes, location_verified, latitude, longitude, created_at)
	VALUES (:id, :issue_id, :user_id, :verification_type, :status, :image_urls, :notes, :location_verified, :latitude, :longitude, :created_at)`
	if _, err = tx.NamedExecContext(ctx, query, v); err != nil {
		return fmt.Errorf("insert citizen verification: %w", err)
	}

	if err = applyIssueCacheTx(ctx, tx, v.IssueID, cache); err != nil {
		return err
	}

	if event != nil {
		event.IssueID = v.IssueID
		if err = insertTimelineEventTx(ctx, tx, event); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit record citizen verification: %w", err)
	}
	return nil
}

// AggregatesForIssue returns the inputs for trust scoring.
func (r *VerificationRepository) AggregatesForIssue(ctx context.Context, issueID string) (VerificationAggregates, error) {
	var agg VerificationAggregates
	const query = `SELECT
	(SELECT confidence FROM ai_verifications WHERE issue_id = $1 ORDER BY created_at DESC, seq DESC LIMIT 1) AS latest_ai_confidence,
	(SELECT COUNT(*) FROM citizen_verifications WHERE issue_id = $1) AS citizen_total,
	(SELECT COUNT(*) FROM citizen_verifications WHERE issue_id = $1 AND status = 'VERIFIED') AS citizen_verified,
	(SELECT COUNT(*) FROM citizen_verifications WHERE issue_id = $1 AND location_verified) AS location_verified`
	if err := r.db.GetContext(ctx, &agg, query, issueID); err != nil {
		return agg, fmt.Errorf("aggregate verifications: %w", err)
	}
	return agg, nil
}

// CountNotVerifiedSince counts NOT_VERIFIED citizen rows recorded at or after
// the given time (the latest claimed resolution).
func (r *VerificationRepository) CountNotVerifiedSince(ctx context.Context, issueID string, since time.Time) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM citizen_verifications
	WHERE issue_id = $1 AND status = 'NOT_VERIFIED' AND created_at >= $2`
	if err := r.db.GetContext(ctx, &count, query, issueID, since); err != nil {
		return 0, fmt.Errorf("count non-verifications: %w", err)
	}
	return count, nil
}

// ListCitizenByIssue returns a page of citizen verifications, newest first.
func (r *VerificationRepository) ListCitizenByIssue(ctx context.Context, issueID string, limit int) ([]models.CitizenVerification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT id, issue_id, user_id, verification_type, status, image_urls, notes,
	location_verified, latitude, longitude, created_at
	FROM citizen_verifications WHERE issue_id = $1 ORDER BY created_at DESC LIMIT %d`, limit)
	var rows []models.CitizenVerification
	if err := r.db.SelectContext(ctx, &rows, query, issueID); err != nil {
		return nil, fmt.Errorf("list citizen verifications: %w", err)
	}
	return rows, nil
}

func applyIssueCacheTx(ctx context.Context, tx *sqlx.Tx, issueID string, cache IssueCacheUpdate) error {
	set := []string{"updated_at = $2"}
	args := []interface{}{issueID, time.Now().UTC()}
	if cache.AIStatus != nil {
		args = append(args, *cache.AIStatus)
		set = append(set, fmt.Sprintf("ai_verification_status = $%d", len(args)))
	}
	if cache.CitizenStatus != nil {
		args = append(args, *cache.CitizenStatus)
		set = append(set, fmt.Sprintf("citizen_verification_status = $%d", len(args)))
	}
	if cache.TrustScore != nil {
		args = append(args, *cache.TrustScore)
		set = append(set, fmt.Sprintf("trust_score = $%d", len(args)))
	}
	query := fmt.Sprintf("UPDATE issues SET %s WHERE id = $1", strings.Join(set, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update issue verification cache: %w", err)
	}
	return nil
}

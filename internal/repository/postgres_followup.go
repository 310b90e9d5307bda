package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"

	"go.uber.org/zap"
)

// PostgresFollowUpRepository 随访仓库
type PostgresFollowUpRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresFollowUpRepository 创建随访仓库
func NewPostgresFollowUpRepository(db *sql.DB, logger *zap.Logger) *PostgresFollowUpRepository {
	return &PostgresFollowUpRepository{
		db:     db,
		logger: logger,
	}
}

const followUpColumns = `id, visit_id, patient_id, due_date, reason, sms_consent, reminder_sent_at, synced`

// Insert 创建随访
func (r *PostgresFollowUpRepository) Insert(ctx context.Context, f *models.FollowUp) error {
	query := `
		INSERT INTO follow_ups (` + followUpColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		f.ID,
		f.VisitID,
		f.PatientID,
		f.DueDate,
		f.Reason,
		f.SMSConsent,
		f.ReminderSentAt,
		f.Synced,
	)
	if err != nil {
		return fmt.Errorf("failed to insert follow-up: %w", err)
	}
	return nil
}

// ListByVisit 获取就诊关联的随访
func (r *PostgresFollowUpRepository) ListByVisit(ctx context.Context, visitID string) ([]models.FollowUp, error) {
	query := `SELECT ` + followUpColumns + ` FROM follow_ups WHERE visit_id = $1 ORDER BY due_date`
	return r.queryFollowUps(ctx, query, visitID)
}

// ListDueForReminder 获取到期、已同意、未发送提醒的随访
func (r *PostgresFollowUpRepository) ListDueForReminder(ctx context.Context, now time.Time) ([]models.FollowUp, error) {
	query := `
		SELECT ` + followUpColumns + `
		FROM follow_ups
		WHERE due_date <= $1
		  AND sms_consent = TRUE
		  AND reminder_sent_at IS NULL
		ORDER BY due_date
	`
	return r.queryFollowUps(ctx, query, now)
}

// MarkReminderSent 设置提醒发送时间（只设置一次）
func (r *PostgresFollowUpRepository) MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE follow_ups SET reminder_sent_at = $2 WHERE id = $1 AND reminder_sent_at IS NULL`,
		id, at,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresFollowUpRepository) queryFollowUps(ctx context.Context, query string, args ...interface{}) ([]models.FollowUp, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query follow-ups: %w", err)
	}
	defer rows.Close()

	var out []models.FollowUp
	for rows.Next() {
		var f models.FollowUp
		var sentAt sql.NullTime
		if err := rows.Scan(
			&f.ID,
			&f.VisitID,
			&f.PatientID,
			&f.DueDate,
			&f.Reason,
			&f.SMSConsent,
			&sentAt,
			&f.Synced,
		); err != nil {
			return nil, fmt.Errorf("failed to scan follow-up: %w", err)
		}
		if sentAt.Valid {
			t := sentAt.Time
			f.ReminderSentAt = &t
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

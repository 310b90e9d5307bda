package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresAuditRepository 审计仓库（只追加）
type PostgresAuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAuditRepository 创建审计仓库
func NewPostgresAuditRepository(db *sql.DB, logger *zap.Logger) *PostgresAuditRepository {
	return &PostgresAuditRepository{
		db:     db,
		logger: logger,
	}
}

const auditColumns = `id, occurred_at, actor_id, action, entity_type, entity_id, detail, synced`

// Insert 写入审计记录；ID 重复时忽略（写入一次）
func (r *PostgresAuditRepository) Insert(ctx context.Context, e *models.AuditEntry) error {
	query := `
		INSERT INTO audit_entries (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.OccurredAt,
		e.ActorID,
		string(e.Action),
		e.EntityType,
		e.EntityID,
		e.Detail,
		e.Synced,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListUnsynced 获取未同步审计记录（按时间升序）
func (r *PostgresAuditRepository) ListUnsynced(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_entries
		WHERE synced = FALSE
		ORDER BY occurred_at
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var action string
		var detail sql.NullString
		if err := rows.Scan(
			&e.ID,
			&e.OccurredAt,
			&e.ActorID,
			&action,
			&e.EntityType,
			&e.EntityID,
			&detail,
			&e.Synced,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = models.AuditAction(action)
		e.Detail = nullStringPtr(detail)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkSynced 批量标记已同步
func (r *PostgresAuditRepository) MarkSynced(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `UPDATE audit_entries SET synced = TRUE WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to mark audit entries synced: %w", err)
	}
	return nil
}

// CountUnsynced 未同步数量
func (r *PostgresAuditRepository) CountUnsynced(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, `SELECT COUNT(*) FROM audit_entries WHERE synced = FALSE`)
}

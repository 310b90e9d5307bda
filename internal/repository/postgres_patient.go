package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"

	"go.uber.org/zap"
)

// PostgresPatientRepository 患者仓库
type PostgresPatientRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresPatientRepository 创建患者仓库
func NewPostgresPatientRepository(db *sql.DB, logger *zap.Logger) *PostgresPatientRepository {
	return &PostgresPatientRepository{
		db:     db,
		logger: logger,
	}
}

const patientColumns = `id, name, date_of_birth, sex, village, phone, caregiver_name, created_at, updated_at, synced`

// Upsert 新建患者或更新联系方式
func (r *PostgresPatientRepository) Upsert(ctx context.Context, p *models.Patient) error {
	if p.ID == "" {
		return fmt.Errorf("patient id is required")
	}

	query := `
		INSERT INTO patients (` + patientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			phone = EXCLUDED.phone,
			caregiver_name = EXCLUDED.caregiver_name,
			updated_at = EXCLUDED.updated_at,
			synced = EXCLUDED.synced
	`

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Name,
		p.DateOfBirth,
		string(p.Sex),
		p.Village,
		p.Phone,
		p.CaregiverName,
		p.CreatedAt,
		p.UpdatedAt,
		p.Synced,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert patient: %w", err)
	}
	return nil
}

// Get 根据 ID 获取患者
func (r *PostgresPatientRepository) Get(ctx context.Context, id string) (*models.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`

	p, err := scanPatient(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return p, nil
}

// Search 按姓名/村庄模糊匹配或 ID 精确匹配
func (r *PostgresPatientRepository) Search(ctx context.Context, q string, limit int) ([]models.Patient, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT ` + patientColumns + `
		FROM patients
		WHERE id = $1 OR name ILIKE $2 OR village ILIKE $2
		ORDER BY name
		LIMIT $3
	`
	pattern := "%" + strings.TrimSpace(q) + "%"
	return r.queryPatients(ctx, query, strings.TrimSpace(q), pattern, limit)
}

// ListUnsynced 获取未同步患者
func (r *PostgresPatientRepository) ListUnsynced(ctx context.Context) ([]models.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE synced = FALSE ORDER BY created_at`
	return r.queryPatients(ctx, query)
}

// MarkSynced 标记已上传的版本；上传期间被修改过的记录保持未同步
func (r *PostgresPatientRepository) MarkSynced(ctx context.Context, id string, updatedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE patients SET synced = TRUE WHERE id = $1 AND updated_at = $2`,
		id, updatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark patient synced: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark patient synced: %w", err)
	}
	return n > 0, nil
}

// CountUnsynced 未同步数量
func (r *PostgresPatientRepository) CountUnsynced(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, `SELECT COUNT(*) FROM patients WHERE synced = FALSE`)
}

func (r *PostgresPatientRepository) queryPatients(ctx context.Context, query string, args ...interface{}) ([]models.Patient, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()

	var patients []models.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		patients = append(patients, *p)
	}
	return patients, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPatient(row rowScanner) (*models.Patient, error) {
	var p models.Patient
	var sex string
	var phone, caregiver sql.NullString

	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.DateOfBirth,
		&sex,
		&p.Village,
		&phone,
		&caregiver,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Synced,
	); err != nil {
		return nil, err
	}

	p.Sex = models.Sex(sex)
	p.Phone = nullStringPtr(phone)
	p.CaregiverName = nullStringPtr(caregiver)
	return &p, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func countRows(ctx context.Context, db *sql.DB, query string) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

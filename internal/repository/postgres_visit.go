package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresVisitRepository 就诊仓库
// symptoms/vitals/danger_signs/referral 以 JSONB 存储，读取时还原为结构体
type PostgresVisitRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresVisitRepository 创建就诊仓库
func NewPostgresVisitRepository(db *sql.DB, logger *zap.Logger) *PostgresVisitRepository {
	return &PostgresVisitRepository{
		db:     db,
		logger: logger,
	}
}

const visitColumns = `id, patient_id, examiner_id, start_time, end_time, symptoms, vitals, danger_signs, rdt_result, assessment, treatment, referral, notes, synced`

// Upsert 保存就诊
func (r *PostgresVisitRepository) Upsert(ctx context.Context, v *models.Visit) error {
	if v.ID == "" || v.PatientID == "" {
		return fmt.Errorf("visit id and patient id are required")
	}

	symptoms, err := json.Marshal(nonNilSymptoms(v.Symptoms))
	if err != nil {
		return fmt.Errorf("failed to marshal symptoms: %w", err)
	}
	dangerSigns, err := json.Marshal(nonNilStrings(v.DangerSigns))
	if err != nil {
		return fmt.Errorf("failed to marshal danger signs: %w", err)
	}
	vitals, err := marshalNullable(v.Vitals)
	if err != nil {
		return fmt.Errorf("failed to marshal vitals: %w", err)
	}
	referral, err := marshalNullable(v.Referral)
	if err != nil {
		return fmt.Errorf("failed to marshal referral: %w", err)
	}

	query := `
		INSERT INTO visits (` + visitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			end_time = EXCLUDED.end_time,
			symptoms = EXCLUDED.symptoms,
			vitals = EXCLUDED.vitals,
			danger_signs = EXCLUDED.danger_signs,
			rdt_result = EXCLUDED.rdt_result,
			assessment = EXCLUDED.assessment,
			treatment = EXCLUDED.treatment,
			referral = EXCLUDED.referral,
			notes = EXCLUDED.notes,
			synced = EXCLUDED.synced
	`

	_, err = r.db.ExecContext(ctx, query,
		v.ID,
		v.PatientID,
		v.ExaminerID,
		v.StartTime,
		v.EndTime,
		string(symptoms),
		vitals,
		string(dangerSigns),
		string(v.RDTResult),
		v.Assessment,
		v.Treatment,
		referral,
		v.Notes,
		v.Synced,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert visit: %w", err)
	}
	return nil
}

// Get 根据 ID 获取就诊
func (r *PostgresVisitRepository) Get(ctx context.Context, id string) (*models.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE id = $1`

	v, err := scanVisit(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	return v, nil
}

// ListByPatient 获取患者就诊记录（最新在前）
func (r *PostgresVisitRepository) ListByPatient(ctx context.Context, patientID string, limit int) ([]models.Visit, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + visitColumns + ` FROM visits WHERE patient_id = $1 ORDER BY start_time DESC LIMIT $2`
	return r.queryVisits(ctx, query, patientID, limit)
}

// ListCompleted 获取时间段内结束的就诊
func (r *PostgresVisitRepository) ListCompleted(ctx context.Context, from, to time.Time) ([]models.Visit, error) {
	query := `
		SELECT ` + visitColumns + `
		FROM visits
		WHERE end_time IS NOT NULL AND end_time >= $1 AND end_time < $2
		ORDER BY end_time
	`
	return r.queryVisits(ctx, query, from, to)
}

// ListUnsynced 获取未同步就诊
func (r *PostgresVisitRepository) ListUnsynced(ctx context.Context) ([]models.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE synced = FALSE ORDER BY start_time`
	return r.queryVisits(ctx, query)
}

// MarkSynced 批量标记已同步
func (r *PostgresVisitRepository) MarkSynced(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `UPDATE visits SET synced = TRUE WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to mark visits synced: %w", err)
	}
	return nil
}

// CountUnsynced 未同步数量
func (r *PostgresVisitRepository) CountUnsynced(ctx context.Context) (int, error) {
	return countRows(ctx, r.db, `SELECT COUNT(*) FROM visits WHERE synced = FALSE`)
}

func (r *PostgresVisitRepository) queryVisits(ctx context.Context, query string, args ...interface{}) ([]models.Visit, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query visits: %w", err)
	}
	defer rows.Close()

	var visits []models.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			// 单条损坏不影响其他记录
			r.logger.Warn("Failed to scan visit, skipping", zap.Error(err))
			continue
		}
		visits = append(visits, *v)
	}
	return visits, rows.Err()
}

func scanVisit(row rowScanner) (*models.Visit, error) {
	var v models.Visit
	var endTime sql.NullTime
	var symptoms, vitals, dangerSigns, referral []byte
	var rdt string
	var assessment, treatment, notes sql.NullString

	if err := row.Scan(
		&v.ID,
		&v.PatientID,
		&v.ExaminerID,
		&v.StartTime,
		&endTime,
		&symptoms,
		&vitals,
		&dangerSigns,
		&rdt,
		&assessment,
		&treatment,
		&referral,
		&notes,
		&v.Synced,
	); err != nil {
		return nil, err
	}

	if endTime.Valid {
		t := endTime.Time
		v.EndTime = &t
	}
	if len(symptoms) > 0 {
		if err := json.Unmarshal(symptoms, &v.Symptoms); err != nil {
			return nil, fmt.Errorf("failed to parse symptoms: %w", err)
		}
	}
	if len(vitals) > 0 && string(vitals) != "null" {
		v.Vitals = &models.Vitals{}
		if err := json.Unmarshal(vitals, v.Vitals); err != nil {
			return nil, fmt.Errorf("failed to parse vitals: %w", err)
		}
	}
	if len(dangerSigns) > 0 {
		if err := json.Unmarshal(dangerSigns, &v.DangerSigns); err != nil {
			return nil, fmt.Errorf("failed to parse danger signs: %w", err)
		}
	}
	if len(referral) > 0 && string(referral) != "null" {
		v.Referral = &models.Referral{}
		if err := json.Unmarshal(referral, v.Referral); err != nil {
			return nil, fmt.Errorf("failed to parse referral: %w", err)
		}
	}

	v.RDTResult = models.RDTResult(rdt)
	v.Assessment = nullStringPtr(assessment)
	v.Treatment = nullStringPtr(treatment)
	v.Notes = nullStringPtr(notes)
	return &v, nil
}

// marshalNullable nil 指针存为 SQL NULL
func marshalNullable[T any](v *T) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nonNilSymptoms(s []models.Symptom) []models.Symptom {
	if s == nil {
		return []models.Symptom{}
	}
	return s
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

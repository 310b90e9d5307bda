package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"

	"go.uber.org/zap"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// PatientRepository 患者存储
type PatientRepository interface {
	// Upsert 新建或更新联系方式；身份字段（姓名/出生日期/性别/村庄）创建后不再修改
	Upsert(ctx context.Context, p *models.Patient) error
	Get(ctx context.Context, id string) (*models.Patient, error)
	// Search 按姓名/村庄模糊匹配或 ID 精确匹配
	Search(ctx context.Context, query string, limit int) ([]models.Patient, error)
	ListUnsynced(ctx context.Context) ([]models.Patient, error)
	// MarkSynced 仅当记录仍是已上传的版本（updated_at 相同）时标记；返回是否标记成功
	MarkSynced(ctx context.Context, id string, updatedAt time.Time) (bool, error)
	CountUnsynced(ctx context.Context) (int, error)
}

// VisitRepository 就诊存储
type VisitRepository interface {
	Upsert(ctx context.Context, v *models.Visit) error
	Get(ctx context.Context, id string) (*models.Visit, error)
	// ListByPatient 按开始时间倒序
	ListByPatient(ctx context.Context, patientID string, limit int) ([]models.Visit, error)
	// ListCompleted 返回 [from, to) 内结束的就诊
	ListCompleted(ctx context.Context, from, to time.Time) ([]models.Visit, error)
	ListUnsynced(ctx context.Context) ([]models.Visit, error)
	MarkSynced(ctx context.Context, ids ...string) error
	CountUnsynced(ctx context.Context) (int, error)
}

// AuditRepository 审计存储：只追加，无更新/删除（同步标记除外）
type AuditRepository interface {
	Insert(ctx context.Context, e *models.AuditEntry) error
	// ListUnsynced 按发生时间升序，最多 limit 条
	ListUnsynced(ctx context.Context, limit int) ([]models.AuditEntry, error)
	MarkSynced(ctx context.Context, ids ...string) error
	CountUnsynced(ctx context.Context) (int, error)
}

// FollowUpRepository 随访存储
type FollowUpRepository interface {
	Insert(ctx context.Context, f *models.FollowUp) error
	ListByVisit(ctx context.Context, visitID string) ([]models.FollowUp, error)
	// ListDueForReminder due_date <= now AND sms_consent AND reminder_sent_at IS NULL
	ListDueForReminder(ctx context.Context, now time.Time) ([]models.FollowUp, error)
	// MarkReminderSent 只在 reminder_sent_at 为空时生效，返回是否实际更新
	MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error)
}

// Store 各实体仓库的集合
type Store struct {
	Patients  PatientRepository
	Visits    VisitRepository
	Audit     AuditRepository
	FollowUps FollowUpRepository
}

// NewPostgresStore 创建基于 PostgreSQL 的存储
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{
		Patients:  NewPostgresPatientRepository(db, logger),
		Visits:    NewPostgresVisitRepository(db, logger),
		Audit:     NewPostgresAuditRepository(db, logger),
		FollowUps: NewPostgresFollowUpRepository(db, logger),
	}
}

package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/audit"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/metrics"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/repository"

	"go.uber.org/zap"
)

// Result 一次处理的统计
type Result struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Scheduler 随访提醒：到期、已同意、未发送的随访发送模板短信
type Scheduler struct {
	store   *repository.Store
	gateway Gateway
	audit   *audit.Logger
	metrics *metrics.Metrics
	logger  *zap.Logger

	actorID string
	now     func() time.Time
}

// NewScheduler 创建提醒调度器
func NewScheduler(st *repository.Store, gateway Gateway, auditLog *audit.Logger, m *metrics.Metrics, actorID string, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:   st,
		gateway: gateway,
		audit:   auditLog,
		metrics: m,
		logger:  logger,
		actorID: actorID,
		now:     time.Now,
	}
}

// ProcessDueReminders 处理到期提醒；发送失败不在本次重试
func (s *Scheduler) ProcessDueReminders(ctx context.Context) (Result, error) {
	var result Result

	due, err := s.store.FollowUps.ListDueForReminder(ctx, s.now())
	if err != nil {
		return result, fmt.Errorf("failed to list due follow-ups: %w", err)
	}

	for _, f := range due {
		// 存储层查询已过滤，这里再校验一次
		if !f.DueForReminder(s.now()) {
			result.Skipped++
			continue
		}

		patient, err := s.store.Patients.Get(ctx, f.PatientID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("Failed to load patient for reminder",
				zap.String("follow_up_id", f.ID),
				zap.Error(err),
			)
			result.Skipped++
			continue
		}
		if patient == nil || strings.TrimSpace(patient.PhoneNumber()) == "" {
			result.Skipped++
			s.metrics.RecordReminder("skipped")
			continue
		}

		message := BuildMessage(f.Reason, f.DueDate)
		if err := s.gateway.SendSMS(ctx, patient.PhoneNumber(), message); err != nil {
			s.logger.Warn("Reminder send failed",
				zap.String("follow_up_id", f.ID),
				zap.Error(err),
			)
			s.audit.ReminderFailed(s.actorID, f.ID, err)
			s.metrics.RecordReminder("failed")
			result.Failed++
			continue
		}

		if _, err := s.store.FollowUps.MarkReminderSent(ctx, f.ID, s.now()); err != nil {
			// 已发送但未标记：下个周期可能重发，记录告警
			s.logger.Error("Failed to mark reminder sent",
				zap.String("follow_up_id", f.ID),
				zap.Error(err),
			)
		}
		s.audit.ReminderSent(s.actorID, f.ID)
		s.metrics.RecordReminder("sent")
		result.Sent++
	}

	if len(due) > 0 {
		s.logger.Info("Reminders processed",
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed),
			zap.Int("skipped", result.Skipped),
		)
	}
	return result, nil
}

// BuildMessage 模板短信：不含患者姓名，附退订说明
func BuildMessage(reason string, due time.Time) string {
	reason = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(reason), "."))
	return fmt.Sprintf("Afya: Follow-up %s. %s. Reply STOP to stop.", due.Format("Mon 2 Jan"), reason)
}

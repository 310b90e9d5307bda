package audit

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/metrics"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultQueueSize 默认队列容量
	DefaultQueueSize = 256
	// MaxDetailLength detail 最大字符数
	MaxDetailLength = 200

	writeTimeout = 5 * time.Second
	redacted     = "[redacted]"
)

// 候选电话号码：可含空格、横线、括号及前导 +
var phonePattern = regexp.MustCompile(`\+?\d[\d ()\-]{6,}\d`)

// 至少 9 位数字才视为电话号码（日期、短编号不处理）
const minPhoneDigits = 9

// Logger 审计日志：Log 只入队不阻塞，单个后台 worker 按 FIFO 写入
// 写入失败只记录告警，不向调用方返回错误
type Logger struct {
	repo    repository.AuditRepository
	metrics *metrics.Metrics
	logger  *zap.Logger

	queue chan models.AuditEntry
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	now   func() time.Time
	newID func() string
}

// NewLogger 创建审计日志并启动后台 worker
func NewLogger(repo repository.AuditRepository, m *metrics.Metrics, logger *zap.Logger, queueSize int) *Logger {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	l := &Logger{
		repo:    repo,
		metrics: m,
		logger:  logger,
		queue:   make(chan models.AuditEntry, queueSize),
		now:     time.Now,
		newID:   uuid.NewString,
	}

	l.wg.Add(1)
	go l.run()
	return l
}

// Log 记录一条审计（时间戳和 ID 在调用时生成，保证顺序与操作顺序一致）
func (l *Logger) Log(actor string, action models.AuditAction, entityType, entityID, detail string) {
	entry := models.AuditEntry{
		ID:         l.newID(),
		OccurredAt: l.now(),
		ActorID:    actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
	}
	if scrubbed := Scrub(detail); scrubbed != "" {
		entry.Detail = &scrubbed
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		l.logger.Warn("Audit logger closed, dropping entry", zap.String("action", string(action)))
		l.metrics.AuditDropped()
		return
	}

	select {
	case l.queue <- entry:
	default:
		l.logger.Warn("Audit queue full, dropping entry",
			zap.String("action", string(action)),
			zap.String("entity_type", entityType),
		)
		l.metrics.AuditDropped()
	}
}

// Close 停止接收新记录，等待队列中的记录写完
func (l *Logger) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()
}

func (l *Logger) run() {
	defer l.wg.Done()
	for entry := range l.queue {
		l.write(entry)
	}
}

func (l *Logger) write(entry models.AuditEntry) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn("Audit sink panicked, entry dropped",
				zap.String("action", string(entry.Action)),
				zap.Any("panic", r),
			)
			l.metrics.AuditWriteFailed()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := l.repo.Insert(ctx, &entry); err != nil {
		l.logger.Warn("Failed to write audit entry",
			zap.String("action", string(entry.Action)),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err),
		)
		l.metrics.AuditWriteFailed()
	}
}

// Scrub 去除 detail 中的电话号码并截断
func Scrub(detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return ""
	}
	detail = scrubPhones(detail)
	if utf8.RuneCountInString(detail) > MaxDetailLength {
		detail = string([]rune(detail)[:MaxDetailLength])
	}
	return detail
}

func scrubPhones(s string) string {
	matches := phonePattern.FindAllStringIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		// 嵌在标识符中的数字串（如 UUID 片段）不是电话号码
		if start > 0 && isIdentChar(s[start-1]) {
			continue
		}
		if end < len(s) && isIdentChar(s[end]) {
			continue
		}
		digits := 0
		for i := start; i < end; i++ {
			if s[i] >= '0' && s[i] <= '9' {
				digits++
			}
		}
		if digits < minPhoneDigits {
			continue
		}
		b.WriteString(s[last:start])
		b.WriteString(redacted)
		last = end
	}
	b.WriteString(s[last:])
	return b.String()
}

func isIdentChar(c byte) bool {
	return c == '-' || c == '_' ||
		(c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Redact 将自由文本中出现的姓名替换为 [redacted]（忽略大小写）
func Redact(detail string, names ...string) string {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(name))
		if err != nil {
			continue
		}
		detail = re.ReplaceAllString(detail, redacted)
	}
	return detail
}

// ============================================
// 固定动作的便捷方法
// ============================================

func (l *Logger) PatientCreated(actor, patientID string) {
	l.Log(actor, models.ActionPatientCreated, models.EntityPatient, patientID, "")
}

func (l *Logger) PatientViewed(actor, patientID string) {
	l.Log(actor, models.ActionPatientViewed, models.EntityPatient, patientID, "")
}

func (l *Logger) VisitStarted(actor, visitID, patientID string) {
	l.Log(actor, models.ActionVisitStarted, models.EntityVisit, visitID, "patient:"+patientID)
}

func (l *Logger) VisitCompleted(actor, visitID string) {
	l.Log(actor, models.ActionVisitCompleted, models.EntityVisit, visitID, "")
}

func (l *Logger) SuggestionShown(actor, suggestionID, title string) {
	l.Log(actor, models.ActionSuggestionShown, models.EntitySuggestion, suggestionID, title)
}

func (l *Logger) SuggestionAccepted(actor, suggestionID, title string) {
	l.Log(actor, models.ActionSuggestionAccepted, models.EntitySuggestion, suggestionID, title)
}

func (l *Logger) SuggestionRejected(actor, suggestionID, reason string) {
	l.Log(actor, models.ActionSuggestionRejected, models.EntitySuggestion, suggestionID, reason)
}

func (l *Logger) DangerSignDetected(actor, visitID, sign string) {
	l.Log(actor, models.ActionDangerSignDetected, models.EntityVisit, visitID, sign)
}

func (l *Logger) ReferralMade(actor, visitID, facility string) {
	l.Log(actor, models.ActionReferralMade, models.EntityVisit, visitID, facility)
}

func (l *Logger) FollowUpScheduled(actor, followUpID string, due time.Time) {
	l.Log(actor, models.ActionFollowUpScheduled, models.EntityFollowUp, followUpID, "due:"+due.Format("2006-01-02"))
}

func (l *Logger) ReminderSent(actor, followUpID string) {
	l.Log(actor, models.ActionReminderSent, models.EntityFollowUp, followUpID, "")
}

func (l *Logger) ReminderFailed(actor, followUpID string, err error) {
	l.Log(actor, models.ActionReminderFailed, models.EntityFollowUp, followUpID, fmt.Sprintf("send failed: %v", err))
}

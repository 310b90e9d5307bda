package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"
)

// NewMemoryStore 创建内存存储（离线单机/测试使用）
func NewMemoryStore() *Store {
	return &Store{
		Patients:  &MemoryPatientRepository{items: make(map[string]models.Patient)},
		Visits:    &MemoryVisitRepository{items: make(map[string]models.Visit)},
		Audit:     &MemoryAuditRepository{},
		FollowUps: &MemoryFollowUpRepository{items: make(map[string]models.FollowUp)},
	}
}

// MemoryPatientRepository 内存患者仓库
type MemoryPatientRepository struct {
	mu    sync.RWMutex
	items map[string]models.Patient
}

func (r *MemoryPatientRepository) Upsert(_ context.Context, p *models.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.items[p.ID]; ok {
		existing.Phone = p.Phone
		existing.CaregiverName = p.CaregiverName
		existing.UpdatedAt = p.UpdatedAt
		existing.Synced = p.Synced
		r.items[p.ID] = existing
		return nil
	}
	r.items[p.ID] = *p
	return nil
}

func (r *MemoryPatientRepository) Get(_ context.Context, id string) (*models.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *MemoryPatientRepository) Search(_ context.Context, query string, limit int) ([]models.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	q := strings.ToLower(strings.TrimSpace(query))
	var out []models.Patient
	for _, p := range r.items {
		if p.ID == strings.TrimSpace(query) ||
			strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Village), q) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryPatientRepository) ListUnsynced(_ context.Context) ([]models.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Patient
	for _, p := range r.items {
		if !p.Synced {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryPatientRepository) MarkSynced(_ context.Context, id string, updatedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok || !p.UpdatedAt.Equal(updatedAt) {
		return false, nil
	}
	p.Synced = true
	r.items[id] = p
	return true, nil
}

func (r *MemoryPatientRepository) CountUnsynced(ctx context.Context) (int, error) {
	list, _ := r.ListUnsynced(ctx)
	return len(list), nil
}

// MemoryVisitRepository 内存就诊仓库
type MemoryVisitRepository struct {
	mu    sync.RWMutex
	items map[string]models.Visit
}

func (r *MemoryVisitRepository) Upsert(_ context.Context, v *models.Visit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[v.ID] = v.Clone()
	return nil
}

func (r *MemoryVisitRepository) Get(_ context.Context, id string) (*models.Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := v.Clone()
	return &out, nil
}

func (r *MemoryVisitRepository) ListByPatient(_ context.Context, patientID string, limit int) ([]models.Visit, error) {
	out := r.filter(func(v models.Visit) bool { return v.PatientID == patientID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryVisitRepository) ListCompleted(_ context.Context, from, to time.Time) ([]models.Visit, error) {
	out := r.filter(func(v models.Visit) bool {
		return v.EndTime != nil && !v.EndTime.Before(from) && v.EndTime.Before(to)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].EndTime.Before(*out[j].EndTime) })
	return out, nil
}

func (r *MemoryVisitRepository) ListUnsynced(_ context.Context) ([]models.Visit, error) {
	out := r.filter(func(v models.Visit) bool { return !v.Synced })
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func (r *MemoryVisitRepository) MarkSynced(_ context.Context, ids ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if v, ok := r.items[id]; ok {
			v.Synced = true
			r.items[id] = v
		}
	}
	return nil
}

func (r *MemoryVisitRepository) CountUnsynced(ctx context.Context) (int, error) {
	list, _ := r.ListUnsynced(ctx)
	return len(list), nil
}

func (r *MemoryVisitRepository) filter(keep func(models.Visit) bool) []models.Visit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Visit
	for _, v := range r.items {
		if keep(v) {
			out = append(out, v.Clone())
		}
	}
	return out
}

// MemoryAuditRepository 内存审计仓库（按写入顺序保存）
type MemoryAuditRepository struct {
	mu      sync.RWMutex
	entries []models.AuditEntry
}

func (r *MemoryAuditRepository) Insert(_ context.Context, e *models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.entries {
		if existing.ID == e.ID {
			return nil
		}
	}
	r.entries = append(r.entries, *e)
	return nil
}

func (r *MemoryAuditRepository) ListUnsynced(_ context.Context, limit int) ([]models.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.AuditEntry
	for _, e := range r.entries {
		if e.Synced {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryAuditRepository) MarkSynced(_ context.Context, ids ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for i := range r.entries {
		if set[r.entries[i].ID] {
			r.entries[i].Synced = true
		}
	}
	return nil
}

func (r *MemoryAuditRepository) CountUnsynced(ctx context.Context) (int, error) {
	list, _ := r.ListUnsynced(ctx, 0)
	return len(list), nil
}

// All 返回全部审计记录的副本（按写入顺序）
func (r *MemoryAuditRepository) All() []models.AuditEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.AuditEntry(nil), r.entries...)
}

// MemoryFollowUpRepository 内存随访仓库
type MemoryFollowUpRepository struct {
	mu    sync.RWMutex
	items map[string]models.FollowUp
}

func (r *MemoryFollowUpRepository) Insert(_ context.Context, f *models.FollowUp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[f.ID] = *f
	return nil
}

func (r *MemoryFollowUpRepository) ListByVisit(_ context.Context, visitID string) ([]models.FollowUp, error) {
	return r.filter(func(f models.FollowUp) bool { return f.VisitID == visitID }), nil
}

func (r *MemoryFollowUpRepository) ListDueForReminder(_ context.Context, now time.Time) ([]models.FollowUp, error) {
	return r.filter(func(f models.FollowUp) bool { return f.DueForReminder(now) }), nil
}

func (r *MemoryFollowUpRepository) MarkReminderSent(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.items[id]
	if !ok || f.ReminderSentAt != nil {
		return false, nil
	}
	f.ReminderSentAt = &at
	r.items[id] = f
	return true, nil
}

func (r *MemoryFollowUpRepository) filter(keep func(models.FollowUp) bool) []models.FollowUp {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.FollowUp
	for _, f := range r.items {
		if keep(f) {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out
}

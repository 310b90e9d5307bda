package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/repository"
	"github.com/Githafconsulting/Healthcare-Assistant/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeBackend 记录上传并按 ID 模拟失败
type fakeBackend struct {
	mu         sync.Mutex
	failIDs    map[string]bool
	failAudit  bool
	patients   []string
	visits     []string
	auditSizes []int
	block      chan struct{}
	healthErr  error
	onPatient  func(models.Patient)
	uploaded   []models.Patient
}

func (f *fakeBackend) UploadPatient(_ context.Context, p models.Patient) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	if f.failIDs[p.ID] {
		f.mu.Unlock()
		return errors.New("503 service unavailable")
	}
	f.patients = append(f.patients, p.ID)
	f.uploaded = append(f.uploaded, p)
	hook := f.onPatient
	f.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return nil
}

func (f *fakeBackend) UploadVisit(_ context.Context, v models.Visit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[v.ID] {
		return errors.New("timeout")
	}
	f.visits = append(f.visits, v.ID)
	return nil
}

func (f *fakeBackend) UploadAuditBatch(_ context.Context, entries []models.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAudit {
		return errors.New("413 payload too large")
	}
	f.auditSizes = append(f.auditSizes, len(entries))
	return nil
}

func (f *fakeBackend) Health(context.Context) error { return f.healthErr }

func seedStore(t *testing.T, patients, visits, audit int) *repository.Store {
	t.Helper()
	ctx := context.Background()
	st := repository.NewMemoryStore()
	base := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)

	for i := 1; i <= patients; i++ {
		require.NoError(t, st.Patients.Upsert(ctx, &models.Patient{
			ID: fmt.Sprintf("p-%d", i), Name: "x", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	for i := 1; i <= visits; i++ {
		require.NoError(t, st.Visits.Upsert(ctx, &models.Visit{
			ID: fmt.Sprintf("v-%d", i), PatientID: "p-1", StartTime: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	for i := 1; i <= audit; i++ {
		require.NoError(t, st.Audit.Insert(ctx, &models.AuditEntry{
			ID: fmt.Sprintf("a-%03d", i), OccurredAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	return st
}

func TestSyncAll_CountsPerRecord(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t, 3, 2, 0)
	backend := &fakeBackend{failIDs: map[string]bool{"p-2": true}}
	m := NewManager(st, backend, NewStaticConnectivity(true), zap.NewNop())

	result := m.SyncAll(ctx)

	assert.Equal(t, 4, result.Uploaded)
	assert.Equal(t, 1, result.Failed)
	assert.Empty(t, result.Error)
	assert.Equal(t, []string{"p-1", "p-3"}, backend.patients)
	assert.Equal(t, []string{"v-1", "v-2"}, backend.visits)

	unsynced, err := st.Patients.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, "p-2", unsynced[0].ID)

	n, err := st.Visits.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSyncAll_ContactEditDuringUploadIsNotLost(t *testing.T) {
	ctx := context.Background()
	st := repository.NewMemoryStore()
	v1 := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	oldPhone := "+254700000111"
	require.NoError(t, st.Patients.Upsert(ctx, &models.Patient{ID: "p-1", Name: "x", Phone: &oldPhone, CreatedAt: v1, UpdatedAt: v1}))

	newPhone := "+254700000999"
	backend := &fakeBackend{}
	backend.onPatient = func(p models.Patient) {
		// 操作员在上传过程中修改了联系方式
		backend.onPatient = nil
		edited := p
		edited.Phone = &newPhone
		edited.UpdatedAt = v1.Add(time.Minute)
		edited.Synced = false
		require.NoError(t, st.Patients.Upsert(ctx, &edited))
	}
	m := NewManager(st, backend, NewStaticConnectivity(true), zap.NewNop())

	m.SyncAll(ctx)
	n, err := st.Patients.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	second := m.SyncAll(ctx)
	assert.Equal(t, 1, second.Uploaded)
	require.Len(t, backend.uploaded, 2)
	assert.Equal(t, oldPhone, backend.uploaded[0].PhoneNumber())
	assert.Equal(t, newPhone, backend.uploaded[1].PhoneNumber())

	n, err = st.Patients.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSyncAll_OfflineDoesNothing(t *testing.T) {
	st := seedStore(t, 2, 1, 5)
	backend := &fakeBackend{}
	m := NewManager(st, backend, NewStaticConnectivity(false), zap.NewNop())

	result := m.SyncAll(context.Background())

	assert.Equal(t, 0, result.Uploaded)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, "no connection", result.Error)
	assert.Empty(t, backend.patients)
	assert.Empty(t, backend.auditSizes)
}

func TestSyncAll_AuditBatchBounded(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t, 0, 0, 150)
	backend := &fakeBackend{}
	m := NewManager(st, backend, NewStaticConnectivity(true), zap.NewNop())

	result := m.SyncAll(ctx)
	assert.Equal(t, 100, result.Uploaded)
	assert.Equal(t, []int{100}, backend.auditSizes)

	result = m.SyncAll(ctx)
	assert.Equal(t, 50, result.Uploaded)

	pending, err := m.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending.Total())
}

func TestSyncAll_AuditBatchFailureCountsWholeBatch(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t, 1, 0, 7)
	backend := &fakeBackend{failAudit: true}
	m := NewManager(st, backend, NewStaticConnectivity(true), zap.NewNop(), WithAuditBatch(5))

	result := m.SyncAll(ctx)
	assert.Equal(t, 1, result.Uploaded)
	assert.Equal(t, 5, result.Failed)

	n, err := st.Audit.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestSyncAll_RejectsConcurrentCycle(t *testing.T) {
	st := seedStore(t, 1, 0, 0)
	backend := &fakeBackend{block: make(chan struct{})}
	m := NewManager(st, backend, NewStaticConnectivity(true), zap.NewNop())

	done := make(chan models.SyncResult)
	go func() { done <- m.SyncAll(context.Background()) }()

	// 等待第一个周期持有锁
	require.Eventually(t, func() bool {
		if m.running.TryLock() {
			m.running.Unlock()
			return false
		}
		return true
	}, time.Second, 5*time.Millisecond)

	second := m.SyncAll(context.Background())
	assert.Equal(t, "sync already in progress", second.Error)

	close(backend.block)
	first := <-done
	assert.Equal(t, 1, first.Uploaded)
}

func TestSyncAll_IgnoresCallerCancellation(t *testing.T) {
	st := seedStore(t, 2, 0, 0)
	backend := &fakeBackend{}
	m := NewManager(st, backend, NewStaticConnectivity(true), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := m.SyncAll(ctx)
	assert.Equal(t, 2, result.Uploaded)
}

func TestSyncAll_CachesStatus(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t, 2, 0, 0)
	kv := store.NewMemoryKV()
	backend := &fakeBackend{failIDs: map[string]bool{"p-1": true}}
	m := NewManager(st, backend, NewStaticConnectivity(true), zap.NewNop(), WithStatusCache(kv, ""))

	m.SyncAll(ctx)

	status, err := m.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.LastResult)
	assert.Equal(t, 1, status.LastResult.Uploaded)
	assert.Equal(t, 1, status.LastResult.Failed)
	assert.Equal(t, 1, status.Pending.Patients)

	raw, err := kv.Get(ctx, DefaultStatusKey)
	require.NoError(t, err)
	assert.Contains(t, raw, `"uploaded":1`)
}

func TestStatus_WithoutCacheFallsBackToCounts(t *testing.T) {
	st := seedStore(t, 1, 2, 3)
	m := NewManager(st, &fakeBackend{}, NewStaticConnectivity(true), zap.NewNop())

	status, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.Nil(t, status.LastResult)
	assert.Equal(t, models.PendingCount{Patients: 1, Visits: 2, Audit: 3}, status.Pending)
}

func TestHealthConnectivity(t *testing.T) {
	assert.True(t, NewHealthConnectivity(&fakeBackend{}, 0).IsConnected(context.Background()))
	assert.False(t, NewHealthConnectivity(&fakeBackend{healthErr: errors.New("down")}, 0).IsConnected(context.Background()))
}

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Githafconsulting/Healthcare-Assistant/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPatients_IdentityImmutable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p := &models.Patient{ID: "p-1", Name: "Amina", Village: "Kisumu"}
	require.NoError(t, store.Patients.Upsert(ctx, p))

	phone := "+254700000001"
	require.NoError(t, store.Patients.Upsert(ctx, &models.Patient{ID: "p-1", Name: "Changed", Phone: &phone}))

	got, err := store.Patients.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Amina", got.Name)
	assert.Equal(t, phone, got.PhoneNumber())

	_, err = store.Patients.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	found, err := store.Patients.Search(ctx, "kisu", 10)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestMemoryPatients_MarkSyncedChecksVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	v1 := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	v2 := v1.Add(time.Minute)

	require.NoError(t, store.Patients.Upsert(ctx, &models.Patient{ID: "p-1", Name: "Amina", UpdatedAt: v1}))
	phone := "+254700000999"
	require.NoError(t, store.Patients.Upsert(ctx, &models.Patient{ID: "p-1", Phone: &phone, UpdatedAt: v2}))

	marked, err := store.Patients.MarkSynced(ctx, "p-1", v1)
	require.NoError(t, err)
	assert.False(t, marked)
	n, _ := store.Patients.CountUnsynced(ctx)
	assert.Equal(t, 1, n)

	marked, err = store.Patients.MarkSynced(ctx, "p-1", v2)
	require.NoError(t, err)
	assert.True(t, marked)
	n, _ = store.Patients.CountUnsynced(ctx)
	assert.Equal(t, 0, n)

	marked, err = store.Patients.MarkSynced(ctx, "missing", v2)
	require.NoError(t, err)
	assert.False(t, marked)
}

func TestMemoryVisits_SyncAndHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

	for i, id := range []string{"v-1", "v-2", "v-3"} {
		end := base.Add(time.Duration(i)*24*time.Hour + time.Hour)
		require.NoError(t, store.Visits.Upsert(ctx, &models.Visit{
			ID: id, PatientID: "p-1", StartTime: base.Add(time.Duration(i) * 24 * time.Hour), EndTime: &end,
		}))
	}

	history, err := store.Visits.ListByPatient(ctx, "p-1", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "v-3", history[0].ID)

	require.NoError(t, store.Visits.MarkSynced(ctx, "v-1"))
	n, err := store.Visits.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	completed, err := store.Visits.ListCompleted(ctx, base, base.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Len(t, completed, 2)
}

func TestMemoryAudit_AppendOnlyOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, id := range []string{"a-1", "a-2", "a-3", "a-1"} {
		require.NoError(t, store.Audit.Insert(ctx, &models.AuditEntry{ID: id, Action: models.ActionPatientViewed}))
	}

	batch, err := store.Audit.ListUnsynced(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "a-1", batch[0].ID)
	assert.Equal(t, "a-2", batch[1].ID)

	require.NoError(t, store.Audit.MarkSynced(ctx, "a-1", "a-2"))
	n, err := store.Audit.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryFollowUps_ReminderSetOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	require.NoError(t, store.FollowUps.Insert(ctx, &models.FollowUp{ID: "f-1", DueDate: now.Add(-time.Hour), SMSConsent: true}))
	require.NoError(t, store.FollowUps.Insert(ctx, &models.FollowUp{ID: "f-2", DueDate: now.Add(-time.Hour), SMSConsent: false}))
	require.NoError(t, store.FollowUps.Insert(ctx, &models.FollowUp{ID: "f-3", DueDate: now.Add(time.Hour), SMSConsent: true}))

	due, err := store.FollowUps.ListDueForReminder(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "f-1", due[0].ID)

	ok, err := store.FollowUps.MarkReminderSent(ctx, "f-1", now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.FollowUps.MarkReminderSent(ctx, "f-1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	due, err = store.FollowUps.ListDueForReminder(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

package hybrid

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/sessions/domain"
)

func TestStore_Reconcile_MarksExpiredAndEvicts(t *testing.T) {
	f := newFixture(t, false)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.store.now = func() time.Time { return now }

	stale := f.create(t, "u1", "tok-stale", now.Add(-time.Second))
	live := f.create(t, "u1", "tok-live", now.Add(time.Hour))

	evicted, err := f.store.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)

	assert.False(t, f.mr.Exists("session:active:tok-stale"))
	assert.True(t, f.mr.Exists("session:active:tok-live"))

	record := f.db.get(stale.ID)
	require.NotNil(t, record)
	assert.Equal(t, domain.SyncStatusExpired, record.SyncStatus)
	assert.True(t, now.Equal(record.LastSyncedAt))
	assert.Equal(t, domain.SyncStatusActive, f.db.get(live.ID).SyncStatus)

	members, err := f.mr.Members("user:sessions:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-live"}, members)
}

func TestStore_Reconcile_IsIdempotent(t *testing.T) {
	f := newFixture(t, false)
	f.create(t, "u1", "tok-stale", time.Now().Add(-time.Second))

	first, err := f.store.Reconcile(context.Background())
	require.NoError(t, err)
	second, err := f.store.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
}

func TestStore_Reconcile_MissingRecordStillEvicts(t *testing.T) {
	f := newFixture(t, false)
	stale := f.create(t, "u1", "tok-stale", time.Now().Add(-time.Second))
	f.db.remove(stale.ID)

	evicted, err := f.store.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)
	assert.False(t, f.mr.Exists("session:active:tok-stale"))
}

func TestStore_Reconcile_DatabaseDownKeepsEntry(t *testing.T) {
	f := newFixture(t, false)
	f.create(t, "u1", "tok-stale", time.Now().Add(-time.Second))
	f.db.fail(errDatabaseDown)

	evicted, err := f.store.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, evicted)
	assert.True(t, f.mr.Exists("session:active:tok-stale"))
}

func TestStore_Reconcile_DatabaseDownWithBufferEvicts(t *testing.T) {
	f := newFixture(t, true)
	f.create(t, "u1", "tok-stale", time.Now().Add(-time.Second))
	f.db.fail(errDatabaseDown)

	evicted, err := f.store.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)
	assert.False(t, f.mr.Exists("session:active:tok-stale"))
	assert.Equal(t, []string{domain.PendingMarkExpired}, f.buffer.kinds())
}

func TestStore_Reconcile_CacheDownReportsError(t *testing.T) {
	f := newFixture(t, false)
	f.mr.SetError("simulated outage")

	evicted, err := f.store.Reconcile(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, evicted)
}

func TestStore_StartStop(t *testing.T) {
	f := newFixture(t, false)
	f.store.cfg.ReconcileInterval = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.store.Start(ctx)
	f.store.Start(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	f.store.Stop(stopCtx)
	f.store.Stop(stopCtx)

	assert.Nil(t, f.store.cron)
}

package buffer

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/sessions/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "buffer", "sessions.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sessionItem(t *testing.T, op domain.PendingOperation) Item {
	t.Helper()
	item, err := NewSessionItem(op)
	require.NoError(t, err)
	return item
}

func TestStore_PeekKeepsEnqueueOrder(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	newToken := "tok-new"

	// Issue times are deliberately out of order: replay follows the queue, not the clock.
	require.NoError(t, store.Enqueue(sessionItem(t, domain.PendingOperation{Kind: domain.PendingUpdateSession, SessionID: "s1", Patch: &domain.SessionPatch{Token: &newToken}, At: base.Add(2 * time.Second)})))
	require.NoError(t, store.Enqueue(sessionItem(t, domain.PendingOperation{Kind: domain.PendingDeleteSession, Token: newToken, At: base})))
	require.NoError(t, store.Enqueue(sessionItem(t, domain.PendingOperation{Kind: domain.PendingMarkExpired, SessionID: "s2", At: base.Add(time.Second)})))

	items, err := store.Peek(10)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, domain.PendingUpdateSession, items[0].Operation)
	assert.Equal(t, domain.PendingDeleteSession, items[1].Operation)
	assert.Equal(t, domain.PendingMarkExpired, items[2].Operation)
	assert.Less(t, items[0].Seq, items[1].Seq)

	op, err := items[2].SessionOperation()
	require.NoError(t, err)
	assert.Equal(t, "s2", op.SessionID)
	assert.True(t, base.Add(time.Second).Equal(op.At))
}

func TestStore_AckAndLen(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Enqueue(sessionItem(t, domain.PendingOperation{Kind: domain.PendingDeleteUser, UserID: "u1"})))

	n, err := store.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items, err := store.Peek(1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NoError(t, store.Ack(items[0]))

	n, err = store.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_RetryKeepsPosition(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Enqueue(sessionItem(t, domain.PendingOperation{Kind: domain.PendingUpdateSession, SessionID: "s1"})))
	require.NoError(t, store.Enqueue(sessionItem(t, domain.PendingOperation{Kind: domain.PendingDeleteSession, Token: "tok"})))

	items, err := store.Peek(1)
	require.NoError(t, err)
	require.NoError(t, store.Retry(items[0]))

	items, err = store.Peek(10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, domain.PendingUpdateSession, items[0].Operation)
	assert.Equal(t, 1, items[0].Retries)
	assert.Equal(t, domain.PendingDeleteSession, items[1].Operation)

	require.NoError(t, store.Ack(items[0]))
	assert.Error(t, store.Retry(items[0]))
}

func TestStore_PurgeDropsOldItems(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()
	require.NoError(t, store.Enqueue(sessionItem(t, domain.PendingOperation{Kind: domain.PendingDeleteSession, Token: "a", At: now.Add(-48 * time.Hour)})))
	require.NoError(t, store.Enqueue(sessionItem(t, domain.PendingOperation{Kind: domain.PendingDeleteSession, Token: "b", At: now.Add(-47 * time.Hour)})))
	require.NoError(t, store.Enqueue(sessionItem(t, domain.PendingOperation{Kind: domain.PendingDeleteSession, Token: "c", At: now})))

	purged, err := store.Purge(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	n, err := store.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewSessionItem_RequiresKind(t *testing.T) {
	_, err := NewSessionItem(domain.PendingOperation{})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestItem_SessionOperationRejectsOtherEntities(t *testing.T) {
	_, err := Item{Entity: "profile"}.SessionOperation()
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestStore_ClosedStore(t *testing.T) {
	var store *Store
	assert.Error(t, store.Enqueue(Item{}))
	assert.NoError(t, store.Close())
}

package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	notification "esante-monitoring/internal/notification/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(id, recipient, correlation string, created time.Time) notification.Notification {
	return notification.Notification{
		ID:            id,
		RecipientID:   recipient,
		Title:         "t",
		Content:       "c",
		Severity:      notification.SeverityInfo,
		Status:        notification.StatusPending,
		CorrelationID: correlation,
		CreatedAt:     created,
		Deliveries: []notification.Delivery{
			{ID: id + "-d1", NotificationID: id, Channel: notification.ChannelInApp, Status: notification.DeliveryPending},
		},
	}
}

func TestCreateIsIdempotentByCorrelation(t *testing.T) {
	repo := NewRepository()
	now := time.Now().UTC()

	first, created, err := repo.Create(context.Background(), sample("n-1", "r", "mon-1", now))
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := repo.Create(context.Background(), sample("n-2", "r", "mon-1", now))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	got, err := repo.Get(context.Background(), "n-2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateWithoutCorrelationAlwaysInserts(t *testing.T) {
	repo := NewRepository()
	now := time.Now().UTC()
	_, created, err := repo.Create(context.Background(), sample("n-1", "r", "", now))
	require.NoError(t, err)
	assert.True(t, created)
	_, created, err = repo.Create(context.Background(), sample("n-2", "r", "", now))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestConcurrentCreateSameCorrelation(t *testing.T) {
	repo := NewRepository()
	now := time.Now().UTC()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[string]struct{}{}
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, ok, err := repo.Create(context.Background(), sample(fmt.Sprintf("n-%d", i), "r", "mon-x", now))
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				created++
			}
			ids[n.ID] = struct{}{}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)
}

func TestListNewestFirstWithPaging(t *testing.T) {
	repo := NewRepository()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, _, err := repo.Create(context.Background(), sample(fmt.Sprintf("n-%d", i), "r", "", base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	_, _, err := repo.Create(context.Background(), sample("other", "someone-else", "", base))
	require.NoError(t, err)

	page, err := repo.List(context.Background(), notification.Query{RecipientID: "r", Limit: 2, Offset: 0})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "n-4", page[0].ID)
	assert.Equal(t, "n-3", page[1].ID)

	page, err = repo.List(context.Background(), notification.Query{RecipientID: "r", Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "n-0", page[0].ID)

	page, err = repo.List(context.Background(), notification.Query{RecipientID: "r", Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMarkReadAndDelete(t *testing.T) {
	repo := NewRepository()
	_, _, err := repo.Create(context.Background(), sample("n-1", "r", "mon-1", time.Now().UTC()))
	require.NoError(t, err)

	require.NoError(t, repo.MarkRead(context.Background(), "n-1", time.Now()))
	got, err := repo.Get(context.Background(), "n-1")
	require.NoError(t, err)
	assert.Equal(t, notification.StatusRead, got.Status)
	assert.NotNil(t, got.ReadAt)

	assert.ErrorIs(t, repo.MarkRead(context.Background(), "missing", time.Now()), notification.ErrNotFound)

	require.NoError(t, repo.Delete(context.Background(), "n-1"))
	got, err = repo.Get(context.Background(), "n-1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, repo.Delete(context.Background(), "n-1"), notification.ErrNotFound)

	_, created, err := repo.Create(context.Background(), sample("n-9", "r", "mon-1", time.Now().UTC()))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestStoredCopiesAreIsolated(t *testing.T) {
	repo := NewRepository()
	n := sample("n-1", "r", "", time.Now().UTC())
	_, _, err := repo.Create(context.Background(), n)
	require.NoError(t, err)

	n.Deliveries[0].Status = notification.DeliverySent
	got, err := repo.Get(context.Background(), "n-1")
	require.NoError(t, err)
	assert.Equal(t, notification.DeliveryPending, got.Deliveries[0].Status)
}

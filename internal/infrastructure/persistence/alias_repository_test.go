package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/erp/reconciliation/internal/domain/alias"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormAliasRepository_RecordHit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormAliasRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()
	at := time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC)

	first, err := repo.RecordHit(ctx, tenantID, "transf # constructora", "vendor-1", at)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Hits)

	second, err := repo.RecordHit(ctx, tenantID, "transf # constructora", "vendor-1", at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(2), second.Hits)
	assert.True(t, at.Add(time.Hour).Equal(second.LastHitAt))

	other, err := repo.RecordHit(ctx, tenantID, "transf # constructora", "vendor-2", at)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestGormAliasRepository_ConcurrentHits(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormAliasRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()
	at := time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.RecordHit(ctx, tenantID, "pago # arriendo", "vendor-9", at)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, total, err := repo.List(ctx, tenantID, alias.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, int64(n), list[0].Hits)
}

func TestGormAliasRepository_PromoteAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormAliasRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()
	at := time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := repo.RecordHit(ctx, tenantID, "cuota # leasing", "vendor-1", at)
		require.NoError(t, err)
	}
	rare, err := repo.RecordHit(ctx, tenantID, "abono varios", "vendor-2", at)
	require.NoError(t, err)

	promoted, err := repo.Promote(ctx, tenantID, 3, nil, at.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Equal(t, "cuota # leasing", promoted[0].Pattern)
	assert.True(t, promoted[0].IsPromoted())

	again, err := repo.Promote(ctx, tenantID, 3, nil, at.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, again, "promotion happens once")

	none, err := repo.Promote(ctx, tenantID, 1, &rare.ID, at)
	require.NoError(t, err)
	require.Len(t, none, 1)
	assert.Equal(t, rare.ID, none[0].ID)

	yes, no := true, false
	minHits := int64(2)
	list, total, err := repo.List(ctx, tenantID, alias.ListFilter{MinHits: &minHits})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "cuota # leasing", list[0].Pattern)

	_, total, err = repo.List(ctx, tenantID, alias.ListFilter{Promoted: &yes})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, total, err = repo.List(ctx, tenantID, alias.ListFilter{Promoted: &no})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	page, total, err := repo.List(ctx, tenantID, alias.ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, page, 1)
	assert.Equal(t, "abono varios", page[0].Pattern)
}

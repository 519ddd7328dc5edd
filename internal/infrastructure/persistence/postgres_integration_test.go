//go:build integration

package persistence

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/erp/reconciliation/internal/domain/apmatch"
	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/migration"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupPostgres starts a PostgreSQL container and applies the embedded migrations
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("reconciliation_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.NewEmbedded(sqlDB, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	return db
}

func TestPostgres_ConcurrentConfirmKeepsOneActiveLink(t *testing.T) {
	db := setupPostgres(t)
	repo := NewGormLinkRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()
	source := matching.RecordRef{Kind: matching.KindBankMovement, ID: "B-pg"}

	const writers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := doc(matching.KindPurchaseInvoice, "F-"+string(rune('a'+i)), 700, day(3))
			_, ok, err := repo.Confirm(ctx, newTestLink(t, tenantID, source, target))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && ok:
				created++
			case shared.IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected result: created=%v err=%v", ok, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, writers-1, conflicts)

	links, err := repo.ListBySource(ctx, tenantID, source.Key())
	require.NoError(t, err)
	require.Len(t, links, 1)

	t.Run("voiding frees the source", func(t *testing.T) {
		link := links[0]
		require.NoError(t, link.Void("wrong invoice", "ana", confirmedAt.Add(time.Hour)))
		require.NoError(t, repo.Void(ctx, &link))

		target := doc(matching.KindPurchaseInvoice, "F-z", 700, day(3))
		_, ok, err := repo.Confirm(ctx, newTestLink(t, tenantID, source, target))
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestPostgres_ConfirmBatchNeverOverAllocates(t *testing.T) {
	db := setupPostgres(t)
	lines := NewGormPOLineRepository(db)
	repo := NewGormApLinkRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()
	require.NoError(t, lines.Upsert(ctx, tenantID, []apmatch.POLine{poLine("PO-1", "1", 1, 100, 10)}))

	var wg sync.WaitGroup
	results := make([]error, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			invoice := "F-" + string(rune('a'+i))
			batch := newBatch(t, tenantID, invoice, apmatch.Allocation{POID: "PO-1", POLineID: "1", Amount: decimal.NewFromInt(400)})
			_, _, results[i] = repo.ConfirmBatch(ctx, batch, decimal.NewFromInt(1000))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, shared.IsPolicyViolation(err), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 2, succeeded)

	current, err := lines.FindByPOs(ctx, tenantID, []string{"PO-1"})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(800).Equal(current[0].AllocatedAmount))
}

package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newMockDatabase creates a Database over a sqlmock connection speaking the postgres dialect
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	// gorm pings once on open
	mock.ExpectPing()

	db, err := NewDatabaseFromDialector(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), nil)
	require.NoError(t, err)

	return db, mock, mockDB
}

func TestDatabase_Ping(t *testing.T) {
	t.Run("healthy connection", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectPing()

		assert.NoError(t, db.Ping())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("connection refused", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectPing().WillReturnError(errors.New("dial tcp 10.0.0.5:5432: connect: connection refused"))

		err := db.Ping()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestDatabase_Close(t *testing.T) {
	db, mock, _ := newMockDatabase(t)
	mock.ExpectClose()

	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewDatabaseFromDialector_TranslatesDuplicates(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := NewDatabaseFromDialector(sqlite.Open(dsn), nil)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Ping())
	require.NoError(t, db.DB.AutoMigrate(models.AllModels()...))

	tenantID := uuid.New()
	row := func() *models.AliasCandidateModel {
		return &models.AliasCandidateModel{
			ID:        uuid.New(),
			TenantID:  tenantID,
			Pattern:   "pago hormigon",
			TargetID:  "hormigon-1",
			Hits:      1,
			LastHitAt: time.Now(),
			CreatedAt: time.Now(),
		}
	}
	require.NoError(t, db.DB.Create(row()).Error)

	err = db.DB.Create(row()).Error
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err), "same tenant, pattern and target must collide: %v", err)
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm sentinel", gorm.ErrDuplicatedKey, true},
		{"wrapped sentinel", fmt.Errorf("insert link: %w", gorm.ErrDuplicatedKey), true},
		{"postgres sqlstate", errors.New(`ERROR: duplicate key value violates unique constraint "idx_reco_links_active_source" (SQLSTATE 23505)`), true},
		{"sqlite", errors.New("UNIQUE constraint failed: alias_candidates.tenant_id"), true},
		{"other", errors.New("connection reset by peer"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestTranslateNotFound(t *testing.T) {
	assert.ErrorIs(t, translateNotFound(gorm.ErrRecordNotFound), shared.ErrNotFound)
	assert.ErrorIs(t, translateNotFound(fmt.Errorf("load: %w", gorm.ErrRecordNotFound)), shared.ErrNotFound)

	other := errors.New("timeout")
	assert.Equal(t, other, translateNotFound(other))
	assert.NoError(t, translateNotFound(nil))
}

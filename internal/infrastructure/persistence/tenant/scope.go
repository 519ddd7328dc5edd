// Package tenant provides multi-tenant database scoping for GORM.
//
// Every matching table carries a tenant_id column. Repositories never build a
// query without going through this package, so no statement can read or
// write another tenant's rows.
//
// Usage:
//
//	db := tenant.NewTenantDB(gormDB)
//	db.ForTenant(ctx, tenantID).Find(&links) // WHERE tenant_id = ? is added
package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrTenantIDRequired is returned when a query is built without a tenant
var ErrTenantIDRequired = errors.New("tenant_id is required")

// TenantScope applies tenant filtering to GORM queries
func TenantScope(tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}

// TenantDB wraps GORM DB with explicit tenant scoping
type TenantDB struct {
	db *gorm.DB
}

// NewTenantDB creates a new TenantDB
func NewTenantDB(db *gorm.DB) *TenantDB {
	return &TenantDB{db: db}
}

// DB returns the underlying GORM DB without tenant scoping
func (t *TenantDB) DB() *gorm.DB {
	return t.db
}

// ForTenant returns a DB bound to ctx and filtered to one tenant.
// A nil tenant yields a DB that fails on execution.
func (t *TenantDB) ForTenant(ctx context.Context, tenantID uuid.UUID) *gorm.DB {
	db := t.db.WithContext(ctx)
	if tenantID == uuid.Nil {
		_ = db.AddError(ErrTenantIDRequired)
		return db
	}
	return db.Scopes(TenantScope(tenantID))
}

// Transaction runs fn in a transaction bound to ctx. Statements inside fn
// must still scope themselves with TenantScope, since inserts cannot carry a filter.
func (t *TenantDB) Transaction(ctx context.Context, tenantID uuid.UUID, fn func(tx *gorm.DB) error) error {
	if tenantID == uuid.Nil {
		return ErrTenantIDRequired
	}
	return t.db.WithContext(ctx).Transaction(fn)
}

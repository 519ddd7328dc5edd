// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free
// from ORM concerns.
//
// Structure:
//   - base.go: shared columns (TenantModel) and JSON column helpers
//   - matching.go: document projections, reconciliation links and their targets, feedback
//   - apmatch.go: purchase order line projections and AP match links
//   - alias.go: alias candidates
package models

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// logger for model conversion errors
var modelLogger = zap.L().Named("persistence.models")

// TenantModel provides the identity columns of every tenant-scoped row
type TenantModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

// encodeJSON renders v for a jsonb column, falling back to fallback on error
func encodeJSON(v any, fallback string) string {
	data, err := json.Marshal(v)
	if err != nil {
		modelLogger.Warn("failed to encode JSON column", zap.Error(err))
		return fallback
	}
	return string(data)
}

// decodeJSON parses a jsonb column into dst; malformed data is logged and skipped
func decodeJSON(raw, column string, dst any) {
	if raw == "" || raw == "null" {
		return
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		modelLogger.Warn("failed to parse JSON column",
			zap.String("column", column),
			zap.String("raw_json", raw),
			zap.Error(err))
	}
}

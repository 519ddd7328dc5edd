package matching

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/google/uuid"
)

// SuggestionCache stores computed suggestion sets per tenant. Entries are
// dropped wholesale when a tenant's links or documents change.
type SuggestionCache interface {
	Get(ctx context.Context, tenantID uuid.UUID, key string) (*matching.SuggestionSet, bool, error)
	Set(ctx context.Context, tenantID uuid.UUID, key string, set *matching.SuggestionSet) error
	InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error
}

// suggestionCacheKey hashes every input that changes the result of a suggest call
func suggestionCacheKey(source matching.SourceRecord, kinds []matching.RecordKind, tol matching.ToleranceConfig) string {
	var b strings.Builder
	b.WriteString(source.Ref().Key())
	for _, part := range []string{
		source.Amount.String(),
		source.Date.UTC().Format("2006-01-02"),
		strings.ToUpper(source.Currency),
		source.Reference,
		source.CounterpartID,
		source.ProjectID,
		tol.AmountTolPct.String(),
		tol.NarrowTolPct.String(),
		strconv.Itoa(tol.DateWindowDays),
	} {
		b.WriteByte('|')
		b.WriteString(part)
	}
	b.WriteByte('|')
	for i, k := range kinds {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(string(k))
	}
	b.WriteByte('|')
	for i, k := range tol.SourceLayerOrder {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(string(k))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

package alias

import (
	"testing"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePattern(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"accents and case", "Transf. CONSTRUCCIÓN Ñandú", "transf construccion nandu"},
		{"folio numbers collapse", "TRANSF 884512 CONSTRUCTORA", "transf # constructora"},
		{"short numbers survive", "Obra 12 etapa 3", "obra 12 etapa 3"},
		{"punctuation only", "--- ...", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePattern(tt.in))
		})
	}
	assert.Equal(t, NormalizePattern("Transf. CONSTRUCCIÓN 884512"), NormalizePattern("transf construccion 991203"))
}

func TestCandidate_PromotionIsOneWay(t *testing.T) {
	first := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	c := &Candidate{Pattern: "pago arriendo", TargetID: "vendor-1", Hits: 3}

	assert.True(t, c.Eligible(3))
	assert.False(t, c.Eligible(4))
	require.True(t, c.Promote(first))
	assert.False(t, c.Promote(first.Add(time.Hour)))
	assert.Equal(t, first, *c.PromotedAt)
	assert.False(t, c.Eligible(1))
}

func TestHitInput_Normalize(t *testing.T) {
	got, err := HitInput{Pattern: "  Pago  ARRIENDO ", TargetID: " vendor-1 "}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, HitInput{Pattern: "pago arriendo", TargetID: "vendor-1"}, got)

	_, err = HitInput{Pattern: "!!!", TargetID: "x"}.Normalize()
	assert.True(t, shared.IsValidation(err))
	_, err = HitInput{Pattern: "pago", TargetID: ""}.Normalize()
	assert.True(t, shared.IsValidation(err))
}

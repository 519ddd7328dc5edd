package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFoldAccents(t *testing.T) {
	assert.Equal(t, "Construccion Pena", FoldAccents("Construcción Peña"))
}

func TestFoldText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TRANSF. Constructora  Ñuñoa", "transf constructora nunoa"},
		{"  --F-2024/0891-- ", "f 2024 0891"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FoldText(tt.in))
		})
	}
}

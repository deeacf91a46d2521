package rest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"missing falls back", "", 100},
		{"positive passes through", "25", 25},
		{"zero falls back", "0", 100},
		{"negative falls back", "-5", 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := clampLimit(tt.raw, 100)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := clampLimit("abc", 100)
	assert.Error(t, err)
}

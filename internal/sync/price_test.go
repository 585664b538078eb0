package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayoutPrice(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		want       *float64
		recognized bool
	}{
		{"ignore sentinel", "69", nil, true},
		{"negative marker", "-1", nil, true},
		{"zero payout", "0", ptr(0.0), true},
		{"full payout", "1000000000000000000", ptr(1.0), true},
		{"half payout", "500000000000000000", ptr(0.5), true},
		{"arbitrary value", "123456789", nil, false},
		{"near-one value", "999999999999999999", nil, false},
		{"not a number", "abc", nil, false},
		{"empty", "", nil, false},
		{"whitespace around sentinel", " 69 ", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, recognized := decodePayoutPrice(tt.raw)
			assert.Equal(t, tt.recognized, recognized)
			if tt.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tt.want, *got)
			}
		})
	}
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.5))
	assert.Equal(t, 0.0, clamp01(0))
	assert.Equal(t, 0.5, clamp01(0.5))
	assert.Equal(t, 1.0, clamp01(1))
	assert.Equal(t, 1.0, clamp01(1.5))
}

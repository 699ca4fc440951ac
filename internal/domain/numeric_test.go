package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *float64
	}{
		{"empty", "", nil},
		{"whitespace", "   ", nil},
		{"not available", "n/a", nil},
		{"dash marker", "-", nil},
		{"double dash", "--", nil},
		{"plain integer", "42", ptrf(42)},
		{"plain float", "1.2", ptrf(1.2)},
		{"negative", "-0.3", ptrf(-0.3)},
		{"explicit plus", "+0.5", ptrf(0.5)},
		{"percent stripped", "1.2%", ptrf(1.2)},
		{"negative percent", "-0.4%", ptrf(-0.4)},
		{"thousands suffix", "250K", ptrf(250000)},
		{"millions suffix", "1.2M", ptrf(1200000)},
		{"billions suffix", "3B", ptrf(3e9)},
		{"trillions suffix", "1.5T", ptrf(1.5e12)},
		{"lowercase suffix", "250k", ptrf(250000)},
		{"comma grouping", "1,234.5", ptrf(1234.5)},
		{"accounting negative", "(0.3)", ptrf(-0.3)},
		{"accounting negative percent", "(1.2%)", ptrf(-1.2)},
		{"embedded unit", "0.1 pips", ptrf(0.1)},
		{"nbsp separator", "1 234", ptrf(1234)},
		{"garbage", "pending", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseNumber(tt.raw)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestImpactScoreOf(t *testing.T) {
	tests := []struct {
		impact string
		want   *int
	}{
		{"High", ptri(3)},
		{"high impact expected", ptri(3)},
		{"Medium", ptri(2)},
		{"Med", ptri(2)},
		{"Low", ptri(1)},
		{"", nil},
		{"Holiday", nil},
	}

	for _, tt := range tests {
		t.Run(tt.impact, func(t *testing.T) {
			got := ImpactScoreOf(tt.impact)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func ptrf(v float64) *float64 { return &v }
func ptri(v int) *int         { return &v }

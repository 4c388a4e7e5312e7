package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/merchops/backend/internal/contracts"
)

func testVendors() []contracts.Vendor {
	return []contracts.Vendor{
		{ID: 7, Code: "ACME", Name: "Acme Textiles"},
		{ID: 9, Code: "NORD", Name: "Nordic Weave Co."},
		{ID: 12, Code: "", Name: "Weave"},
		{ID: 15, Code: "LUX", Name: "Luxe Home & Living"},
	}
}

func TestVendorResolver_Strategies(t *testing.T) {
	r := NewVendorResolver(testVendors())

	tests := []struct {
		name         string
		code         string
		vendorName   string
		wantID       int64
		wantStrategy ResolveStrategy
	}{
		{"code match is case-insensitive", "acme", "whatever", 7, StrategyCode},
		{"exact name", "", "acme textiles", 7, StrategyName},
		{"punctuation normalized", "", "Nordic-Weave Co", 9, StrategyNormalized},
		{"ampersand normalized", "", "LUXE HOME  LIVING", 15, StrategyNormalized},
		{"substring prefers longest vendor name", "", "Nordic Weave Company Ltd", 9, StrategySubstring},
		{"unknown code falls back to name", "ZZZ", "Acme Textiles", 7, StrategyName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := r.Resolve(tt.code, tt.vendorName)
			require.True(t, ok)
			assert.Equal(t, tt.wantID, res.Vendor.ID)
			assert.Equal(t, tt.wantStrategy, res.Strategy)
		})
	}
}

func TestVendorResolver_NoMatch(t *testing.T) {
	r := NewVendorResolver(testVendors())

	_, ok := r.Resolve("", "Globex")
	assert.False(t, ok)

	// 짧은 이름은 포함 매칭 대상이 아님
	_, ok = r.Resolve("", "Ac")
	assert.False(t, ok)

	_, ok = r.Resolve("", "")
	assert.False(t, ok)
}

func TestVendorResolver_LowestIDWinsDuplicates(t *testing.T) {
	r := NewVendorResolver([]contracts.Vendor{
		{ID: 30, Code: "DUP", Name: "Twin Mills"},
		{ID: 4, Code: "DUP", Name: "Twin Mills"},
	})

	res, ok := r.Resolve("DUP", "")
	require.True(t, ok)
	assert.Equal(t, int64(4), res.Vendor.ID)

	res, ok = r.Resolve("", "twin mills")
	require.True(t, ok)
	assert.Equal(t, int64(4), res.Vendor.ID)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "acmetextilesinc", normalizeName("ACME Textiles, Inc."))
	assert.Equal(t, "", normalizeName(" - "))
}

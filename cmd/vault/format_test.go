package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSOL(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected uint64
	}{
		{"2", 2 * lamportsPerSOL},
		{"0.25", lamportsPerSOL / 4},
		{".5", lamportsPerSOL / 2},
		{"1.", lamportsPerSOL},
		{"0.000000001", 1},
		{" 10 ", 10 * lamportsPerSOL},
		{"18446744073.709551615", math.MaxUint64},
	} {
		actual, err := parseSOL(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.expected, actual, tc.in)
	}

	for _, in := range []string{
		"",
		".",
		"-1",
		"1.2.3",
		"abc",
		"0.0000000001",
		"18446744074",
		"18446744073.709551616",
	} {
		_, err := parseSOL(in)
		assert.Error(t, err, in)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "2 SOL", formatSOL(2*lamportsPerSOL))
	assert.Equal(t, "0.25 SOL", formatSOL(lamportsPerSOL/4))
	assert.Equal(t, "1,000,000 SOL", formatSOL(1_000_000*lamportsPerSOL))
	assert.Equal(t, "890,880 lamports", formatLamports(890_880))
	assert.Equal(t, "0 SOL (0 lamports)", formatBalance(0))
}
